// Package api holds the workflows shared by the CLI and the HTTP server and
// the transport types they render.
//
// # Workflows
//
// Service.UploadChapter: save the audio (and optional cover) as a local
// artifact, then reconcile it into a playlist and mark the artifact uploaded.
//
// Service.PublishArtifact: push a previously saved artifact again, e.g. after
// a transcode timeout.
//
// Service.CreateStory: generate text and narration from a prompt, then
// publish the resulting artifact.
//
// Service.ShowPlaylist, Runs, Orphans, ResolveOrphans, Artifacts: read-only
// views plus the orphan acknowledgement hook.
//
// # Design Notes
//
// DTOs use camelCase JSON tags. Timestamps use RFC3339 with milliseconds.
// Errors are rendered through FromError so every surface reports the failed
// phase, the run ID and the artifact ID to retry with.
package api
