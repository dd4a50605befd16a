// Package notifications pushes upload outcomes to the user via ntfy.
//
// The default implementation publishes to the topic configured in config.toml
// and degrades to a no-op when no topic is set. Chapter and failure events can
// be switched off individually.
package notifications
