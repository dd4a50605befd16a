// Package reconcile adds story chapters to playlists on the playback platform.
//
// A reconciliation runs its phases strictly in order: auth, lookup, fetch or
// create, cover, audio, transcode, merge, recompute, persist. Playlists are
// fetched in full before any change so chapters added elsewhere are preserved,
// and aggregates are recomputed from every track rather than patched.
//
// Only one reconciliation runs at a time. Guard enforces this inside the
// process with a mutex and across processes with a lock file in the state
// directory, because the platform replaces the whole card on write and
// concurrent writers would drop each other's chapters.
//
// Every failure is a *Failure naming the phase. Media uploaded before the
// failure is reported as orphaned through the ledger.
package reconcile
