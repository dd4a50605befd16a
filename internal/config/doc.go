// Package config loads, normalizes, and validates StoryForge configuration data.
//
// It supplies repository defaults, expands user paths (including tilde
// shortcuts), reads TOML files, and honours environment fallbacks such as
// STORYFORGE_CLIENT_ID. The Config type centralizes every knob the CLI and the
// HTTP server need, from playback platform endpoints to transcode polling.
//
// Always obtain settings through this package so downstream code receives
// sanitized paths, canonical log formats, and clear validation errors.
package config
