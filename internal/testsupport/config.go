package testsupport

import (
	"path/filepath"
	"testing"

	"storyforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*configBuilder)

type configBuilder struct {
	t       testing.TB
	baseDir string
	cfg     *config.Config
}

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfgVal := config.Default()
	cfgVal.Platform.ClientID = "test-client"
	cfgVal.Paths.StateDir = filepath.Join(base, "state")
	cfgVal.Paths.StagingDir = filepath.Join(base, "staging")
	cfgVal.Paths.LogDir = filepath.Join(base, "logs")
	cfgVal.Server.Bind = "127.0.0.1:0"

	builder := &configBuilder{
		t:       t,
		baseDir: base,
		cfg:     &cfgVal,
	}

	for _, opt := range opts {
		opt(builder)
	}

	return builder.cfg
}

// WithPlatformURL points every platform endpoint at a test server.
func WithPlatformURL(baseURL string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Platform.BaseURL = baseURL
		b.cfg.Platform.AuthURL = baseURL + "/authorize"
		b.cfg.Platform.TokenURL = baseURL + "/oauth/token"
	}
}

// WithMode overrides the playlist reconciliation mode.
func WithMode(mode string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Playlist.Mode = mode
	}
}

// WithAPIToken sets the bearer token the HTTP server requires.
func WithAPIToken(token string) ConfigOption {
	return func(b *configBuilder) {
		b.cfg.Server.APIToken = token
	}
}

// BaseDir returns the root temp directory backing the generated config.
func BaseDir(cfg *config.Config) string {
	return filepath.Dir(cfg.Paths.StagingDir)
}
