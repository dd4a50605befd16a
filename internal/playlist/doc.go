// Package playlist holds the pure playlist rules: chapter key allocation,
// chapter titling, append-only merge, aggregate recomputation, and the
// title lookup tie-break. It performs no I/O.
package playlist
