// Package services defines shared utilities consumed by the reconciliation
// flow and the external integrations around it.
//
// Key responsibilities:
//   - Context helpers that stamp run IDs, phase names, playlist titles, and
//     correlation identifiers for logging.
//   - Structured error markers plus the Wrap helper so every failure carries
//     the phase that produced it and can be classified (auth, upload,
//     transcode, lookup, persist) without string matching.
//
// Use these helpers when wiring new platform calls so operational behaviour
// (error classification, observability, retry decisions) stays uniform.
package services
