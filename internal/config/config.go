package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory configuration.
type Paths struct {
	StateDir   string `toml:"state_dir"`
	StagingDir string `toml:"staging_dir"`
	LogDir     string `toml:"log_dir"`
}

// Platform contains configuration for the playback platform API and its
// OAuth2 authorization server.
type Platform struct {
	BaseURL        string   `toml:"base_url"`
	AuthURL        string   `toml:"auth_url"`
	TokenURL       string   `toml:"token_url"`
	ClientID       string   `toml:"client_id"`
	Audience       string   `toml:"audience"`
	Scopes         []string `toml:"scopes"`
	RedirectURL    string   `toml:"redirect_url"`
	TrackURLPrefix string   `toml:"track_url_prefix"`
	RequestTimeout int      `toml:"request_timeout"`
	TokenLeeway    int      `toml:"token_leeway"`
}

// Upload contains media ingestion settings.
type Upload struct {
	TranscodePollInterval int `toml:"transcode_poll_interval"`
	TranscodeMaxAttempts  int `toml:"transcode_max_attempts"`
}

// Playlist contains reconciliation settings.
type Playlist struct {
	DefaultTitle string `toml:"default_title"`
	DisplayIcon  string `toml:"display_icon"`
	// Mode is "reconcile" (find-or-create and append) or "card-per-story"
	// (always create a new uniquely titled card).
	Mode                string `toml:"mode"`
	VerifyBeforePersist bool   `toml:"verify_before_persist"`
}

// Server contains configuration for the HTTP API.
type Server struct {
	Bind        string `toml:"bind"`
	APIToken    string `toml:"api_token"`
	MaxUploadMB int    `toml:"max_upload_mb"`
}

// LLM contains story text generation settings.
type LLM struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	Referer        string `toml:"referer"`
	Title          string `toml:"title"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// TTS contains speech synthesis settings.
type TTS struct {
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	Voice          string `toml:"voice"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	ChapterAdded   bool   `toml:"chapter_added"`
	Errors         bool   `toml:"errors"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for StoryForge.
//
// Configuration sections by subsystem:
//   - Paths: state, staging (local story artifacts), and log directories
//   - Platform: playback platform API + OAuth2/PKCE endpoints
//   - Upload: transcode polling cadence and ceiling
//   - Playlist: default title, chapter icon, reconciliation mode
//   - Server: HTTP API bind address and bearer token
//   - LLM: story text generation
//   - TTS: narration synthesis
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Platform      Platform      `toml:"platform"`
	Upload        Upload        `toml:"upload"`
	Playlist      Playlist      `toml:"playlist"`
	Server        Server        `toml:"server"`
	LLM           LLM           `toml:"llm"`
	TTS           TTS           `toml:"tts"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("storyforge.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for CLI and server operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.StateDir, c.Paths.StagingDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

// TokenStatePath is the file holding the persisted platform token pair.
func (c *Config) TokenStatePath() string {
	return filepath.Join(c.Paths.StateDir, "platform_auth.json")
}

// LedgerPath is the SQLite database recording reconciliation runs and uploads.
func (c *Config) LedgerPath() string {
	return filepath.Join(c.Paths.StateDir, "ledger.db")
}

// LockPath is the file lock serializing reconciliations across processes.
func (c *Config) LockPath() string {
	return filepath.Join(c.Paths.StateDir, "reconcile.lock")
}

// RequestTimeout returns the per-request timeout for platform calls.
func (c *Config) RequestTimeout() time.Duration {
	return time.Duration(c.Platform.RequestTimeout) * time.Second
}

// TokenLeeway returns how long before expiry an access token is treated as expired.
func (c *Config) TokenLeeway() time.Duration {
	return time.Duration(c.Platform.TokenLeeway) * time.Second
}

// TranscodePollInterval returns the delay between transcode status polls.
func (c *Config) TranscodePollInterval() time.Duration {
	return time.Duration(c.Upload.TranscodePollInterval) * time.Second
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
