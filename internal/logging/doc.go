// Package logging assembles structured slog loggers and formatting helpers used
// across StoryForge.
//
// It owns the configurable console/JSON handlers, centralizes level and output
// plumbing, and exposes context-aware helpers so reconciliation code can tag
// log lines with run IDs, phases, playlist titles, and correlation IDs. The
// package also provides a no-op logger for tests and wiring code that cannot
// fail.
package logging
