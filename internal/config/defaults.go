package config

const (
	defaultConfigPath            = "~/.config/storyforge/config.toml"
	defaultStateDir              = "~/.local/share/storyforge"
	defaultStagingDir            = "~/.local/share/storyforge/stories"
	defaultLogDir                = "~/.local/share/storyforge/logs"
	defaultPlatformBaseURL       = "https://api.yotoplay.com"
	defaultPlatformAuthURL       = "https://login.yotoplay.com/authorize"
	defaultPlatformTokenURL      = "https://login.yotoplay.com/oauth/token"
	defaultPlatformAudience      = "https://api.yotoplay.com"
	defaultPlatformRedirectURL   = "http://127.0.0.1:7489/auth/callback"
	defaultTrackURLPrefix        = "yoto:#"
	defaultRequestTimeout        = 30
	defaultTokenLeeway           = 60
	defaultTranscodePollInterval = 2
	defaultTranscodeMaxAttempts  = 30
	defaultPlaylistTitle         = "StoryForge"
	defaultDisplayIcon           = "yoto:#aUm9i3ex3qqAMYBv-i-O-pYMKuMJGICtR3Vhf289u2Q"
	defaultServerBind            = "127.0.0.1:7489"
	defaultMaxUploadMB           = 64
	defaultLLMBaseURL            = "https://openrouter.ai/api/v1/chat/completions"
	defaultLLMModel              = "google/gemini-3-flash-preview"
	defaultLLMReferer            = "https://github.com/storyforge/storyforge"
	defaultLLMTitle              = "StoryForge"
	defaultLLMTimeoutSeconds     = 60
	defaultTTSBaseURL            = "https://api.deepgram.com/v1/speak"
	defaultTTSVoice              = "aura-stella-en"
	defaultTTSTimeoutSeconds     = 120
	defaultLogFormat             = "console"
	defaultLogLevel              = "info"

	// ModeReconcile appends chapters to a single named playlist.
	ModeReconcile = "reconcile"
	// ModeCardPerStory creates a new card for every story.
	ModeCardPerStory = "card-per-story"
)

var defaultPlatformScopes = []string{"openid", "profile", "offline_access"}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir:   defaultStateDir,
			StagingDir: defaultStagingDir,
			LogDir:     defaultLogDir,
		},
		Platform: Platform{
			BaseURL:        defaultPlatformBaseURL,
			AuthURL:        defaultPlatformAuthURL,
			TokenURL:       defaultPlatformTokenURL,
			Audience:       defaultPlatformAudience,
			Scopes:         append([]string(nil), defaultPlatformScopes...),
			RedirectURL:    defaultPlatformRedirectURL,
			TrackURLPrefix: defaultTrackURLPrefix,
			RequestTimeout: defaultRequestTimeout,
			TokenLeeway:    defaultTokenLeeway,
		},
		Upload: Upload{
			TranscodePollInterval: defaultTranscodePollInterval,
			TranscodeMaxAttempts:  defaultTranscodeMaxAttempts,
		},
		Playlist: Playlist{
			DefaultTitle:        defaultPlaylistTitle,
			DisplayIcon:         defaultDisplayIcon,
			Mode:                ModeReconcile,
			VerifyBeforePersist: true,
		},
		Server: Server{
			Bind:        defaultServerBind,
			MaxUploadMB: defaultMaxUploadMB,
		},
		LLM: LLM{
			BaseURL:        defaultLLMBaseURL,
			Model:          defaultLLMModel,
			Referer:        defaultLLMReferer,
			Title:          defaultLLMTitle,
			TimeoutSeconds: defaultLLMTimeoutSeconds,
		},
		TTS: TTS{
			BaseURL:        defaultTTSBaseURL,
			Voice:          defaultTTSVoice,
			TimeoutSeconds: defaultTTSTimeoutSeconds,
		},
		Notifications: Notifications{
			RequestTimeout: 10,
			ChapterAdded:   true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
