// Package main hosts the StoryForge CLI entrypoint and command graph.
//
// The Cobra command tree covers sign-in (auth), adding pre-made chapters
// (upload), generating stories (create), inspecting playlists, runs and
// orphaned media, managing saved artifacts (stories), the HTTP API (serve)
// and configuration scaffolding. Workflows live in internal/api so the CLI
// and the server behave the same; commands here resolve configuration, wire
// collaborators and render results.
package main
