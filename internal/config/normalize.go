package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizePlatform()
	c.normalizeUpload()
	c.normalizePlaylist()
	c.normalizeServer()
	c.normalizeLLM()
	c.normalizeTTS()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.StateDir) == "" {
		c.Paths.StateDir = defaultStateDir
	}
	if c.Paths.StateDir, err = expandPath(c.Paths.StateDir); err != nil {
		return fmt.Errorf("paths.state_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		c.Paths.StagingDir = defaultStagingDir
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizePlatform() {
	c.Platform.BaseURL = strings.TrimRight(strings.TrimSpace(c.Platform.BaseURL), "/")
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = defaultPlatformBaseURL
	}
	c.Platform.AuthURL = strings.TrimSpace(c.Platform.AuthURL)
	if c.Platform.AuthURL == "" {
		c.Platform.AuthURL = defaultPlatformAuthURL
	}
	c.Platform.TokenURL = strings.TrimSpace(c.Platform.TokenURL)
	if c.Platform.TokenURL == "" {
		c.Platform.TokenURL = defaultPlatformTokenURL
	}
	c.Platform.ClientID = strings.TrimSpace(c.Platform.ClientID)
	if value, ok := os.LookupEnv("STORYFORGE_CLIENT_ID"); ok && strings.TrimSpace(value) != "" {
		c.Platform.ClientID = strings.TrimSpace(value)
	}
	c.Platform.Audience = strings.TrimSpace(c.Platform.Audience)
	c.Platform.RedirectURL = strings.TrimSpace(c.Platform.RedirectURL)
	if c.Platform.RedirectURL == "" {
		c.Platform.RedirectURL = defaultPlatformRedirectURL
	}
	scopes := make([]string, 0, len(c.Platform.Scopes))
	seen := make(map[string]struct{}, len(c.Platform.Scopes))
	for _, scope := range c.Platform.Scopes {
		scope = strings.TrimSpace(scope)
		if scope == "" {
			continue
		}
		if _, dup := seen[scope]; dup {
			continue
		}
		seen[scope] = struct{}{}
		scopes = append(scopes, scope)
	}
	if len(scopes) == 0 {
		scopes = append(scopes, defaultPlatformScopes...)
	}
	c.Platform.Scopes = scopes
	c.Platform.TrackURLPrefix = strings.TrimSpace(c.Platform.TrackURLPrefix)
	if c.Platform.TrackURLPrefix == "" {
		c.Platform.TrackURLPrefix = defaultTrackURLPrefix
	}
	if c.Platform.RequestTimeout <= 0 {
		c.Platform.RequestTimeout = defaultRequestTimeout
	}
	if c.Platform.TokenLeeway < 0 {
		c.Platform.TokenLeeway = 0
	}
}

func (c *Config) normalizeUpload() {
	if c.Upload.TranscodePollInterval <= 0 {
		c.Upload.TranscodePollInterval = defaultTranscodePollInterval
	}
	if c.Upload.TranscodeMaxAttempts <= 0 {
		c.Upload.TranscodeMaxAttempts = defaultTranscodeMaxAttempts
	}
}

func (c *Config) normalizePlaylist() {
	c.Playlist.DefaultTitle = strings.TrimSpace(c.Playlist.DefaultTitle)
	if c.Playlist.DefaultTitle == "" {
		c.Playlist.DefaultTitle = defaultPlaylistTitle
	}
	c.Playlist.DisplayIcon = strings.TrimSpace(c.Playlist.DisplayIcon)
	c.Playlist.Mode = strings.ToLower(strings.TrimSpace(c.Playlist.Mode))
	if c.Playlist.Mode == "" {
		c.Playlist.Mode = ModeReconcile
	}
}

func (c *Config) normalizeServer() {
	c.Server.Bind = strings.TrimSpace(c.Server.Bind)
	if c.Server.Bind == "" {
		c.Server.Bind = defaultServerBind
	}
	c.Server.APIToken = strings.TrimSpace(c.Server.APIToken)
	if value, ok := os.LookupEnv("STORYFORGE_API_TOKEN"); ok && strings.TrimSpace(value) != "" {
		c.Server.APIToken = strings.TrimSpace(value)
	}
	if c.Server.MaxUploadMB <= 0 {
		c.Server.MaxUploadMB = defaultMaxUploadMB
	}
}

func (c *Config) normalizeLLM() {
	c.LLM.BaseURL = strings.TrimSpace(c.LLM.BaseURL)
	if c.LLM.BaseURL == "" {
		c.LLM.BaseURL = defaultLLMBaseURL
	}
	c.LLM.Model = strings.TrimSpace(c.LLM.Model)
	if c.LLM.Model == "" {
		c.LLM.Model = defaultLLMModel
	}
	c.LLM.Referer = strings.TrimSpace(c.LLM.Referer)
	if c.LLM.Referer == "" {
		c.LLM.Referer = defaultLLMReferer
	}
	c.LLM.Title = strings.TrimSpace(c.LLM.Title)
	if c.LLM.Title == "" {
		c.LLM.Title = defaultLLMTitle
	}
	if c.LLM.TimeoutSeconds <= 0 {
		c.LLM.TimeoutSeconds = defaultLLMTimeoutSeconds
	}
	c.LLM.APIKey = strings.TrimSpace(c.LLM.APIKey)
	if value, ok := os.LookupEnv("OPENROUTER_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.LLM.APIKey = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeTTS() {
	c.TTS.BaseURL = strings.TrimSpace(c.TTS.BaseURL)
	if c.TTS.BaseURL == "" {
		c.TTS.BaseURL = defaultTTSBaseURL
	}
	c.TTS.Voice = strings.TrimSpace(c.TTS.Voice)
	if c.TTS.Voice == "" {
		c.TTS.Voice = defaultTTSVoice
	}
	if c.TTS.TimeoutSeconds <= 0 {
		c.TTS.TimeoutSeconds = defaultTTSTimeoutSeconds
	}
	c.TTS.APIKey = strings.TrimSpace(c.TTS.APIKey)
	if value, ok := os.LookupEnv("TTS_API_KEY"); ok && strings.TrimSpace(value) != "" {
		c.TTS.APIKey = strings.TrimSpace(value)
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
