package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePlatform(); err != nil {
		return err
	}
	if err := c.validateUpload(); err != nil {
		return err
	}
	if err := c.validatePlaylist(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePlatform() error {
	if c.Platform.ClientID == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = defaultConfigPath
		}
		return fmt.Errorf("platform.client_id is required. Set STORYFORGE_CLIENT_ID env var or edit %s (create with 'storyforge config init')", defaultPath)
	}
	for name, value := range map[string]string{
		"platform.base_url":     c.Platform.BaseURL,
		"platform.auth_url":     c.Platform.AuthURL,
		"platform.token_url":    c.Platform.TokenURL,
		"platform.redirect_url": c.Platform.RedirectURL,
	} {
		parsed, err := url.Parse(value)
		if err != nil || parsed.Scheme == "" || parsed.Host == "" {
			return fmt.Errorf("%s must be an absolute URL, got %q", name, value)
		}
	}
	if c.Platform.RequestTimeout <= 0 {
		return errors.New("platform.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateUpload() error {
	if c.Upload.TranscodePollInterval <= 0 {
		return errors.New("upload.transcode_poll_interval must be positive")
	}
	if c.Upload.TranscodeMaxAttempts <= 0 {
		return errors.New("upload.transcode_max_attempts must be positive")
	}
	return nil
}

func (c *Config) validatePlaylist() error {
	switch c.Playlist.Mode {
	case ModeReconcile, ModeCardPerStory:
	default:
		return fmt.Errorf("playlist.mode must be %q or %q, got %q", ModeReconcile, ModeCardPerStory, c.Playlist.Mode)
	}
	if strings.TrimSpace(c.Playlist.DefaultTitle) == "" {
		return errors.New("playlist.default_title must be set")
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.RequestTimeout < 0 {
		return errors.New("notifications.request_timeout must be >= 0")
	}
	return nil
}
