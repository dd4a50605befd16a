package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"

	"github.com/spf13/cobra"

	"storyforge/internal/api"
	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/ledger"
	"storyforge/internal/logging"
	"storyforge/internal/platform"
	"storyforge/internal/reconcile"
	"storyforge/internal/story"
)

type commandContext struct {
	configFlag *string
	jsonFlag   *bool

	configOnce sync.Once
	config     *config.Config
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger

	mu      sync.Mutex
	ledger  *ledger.Store
	closers []func()
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{
		configFlag: configFlag,
		jsonFlag:   jsonFlag,
	}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, _, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		if err := cfg.EnsureDirectories(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) log() *slog.Logger {
	c.loggerOnce.Do(func() {
		cfg, err := c.ensureConfig()
		if err != nil {
			c.logger = logging.NewNop()
			return
		}
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			logger, _ = logging.New(logging.Options{Level: cfg.Logging.Level, Format: "console"})
		}
		c.logger = logger
	})
	return c.logger
}

func (c *commandContext) tokenManager() (*auth.TokenManager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return auth.NewTokenManager(cfg, auth.WithLogger(c.log()))
}

func (c *commandContext) openLedger() (*ledger.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ledger != nil {
		return c.ledger, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	store, err := ledger.Open(cfg)
	if err != nil {
		return nil, err
	}
	c.ledger = store
	c.closers = append(c.closers, func() { _ = store.Close() })
	return store, nil
}

func (c *commandContext) artifactStore() (*story.ArtifactStore, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return story.NewArtifactStore(cfg.Paths.StagingDir, c.log()), nil
}

// service wires the full workflow stack: token manager, platform client,
// reconciler with ledger and notifications, story pipeline and artifacts.
func (c *commandContext) service() (*api.Service, *auth.TokenManager, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, nil, err
	}
	logger := c.log()
	tokens, err := c.tokenManager()
	if err != nil {
		return nil, nil, err
	}
	store, err := c.openLedger()
	if err != nil {
		return nil, nil, err
	}
	artifacts, err := c.artifactStore()
	if err != nil {
		return nil, nil, err
	}
	client := platform.NewClient(cfg.Platform.BaseURL, tokens,
		platform.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout()}),
		platform.WithLogger(logger),
	)
	deps := api.Deps{
		Config:     cfg,
		Reconciler: reconcile.FromConfig(cfg, tokens, client, logger, reconcile.WithLedger(store)),
		Artifacts:  artifacts,
		Playlists:  client,
		Runs:       store,
		Session:    tokens,
		Logger:     logger,
	}
	if storyConfigured(cfg) {
		deps.Generator = story.NewPipelineFromConfig(cfg, artifacts, logger)
	}
	return api.NewService(deps), tokens, nil
}

func (c *commandContext) close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.closers) - 1; i >= 0; i-- {
		c.closers[i]()
	}
	c.closers = nil
	c.ledger = nil
}

func storyConfigured(cfg *config.Config) bool {
	return strings.TrimSpace(cfg.LLM.APIKey) != "" && strings.TrimSpace(cfg.TTS.APIKey) != ""
}

// signalContext cancels on SIGINT/SIGTERM so long uploads stop cleanly.
func signalContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
