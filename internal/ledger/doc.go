// Package ledger records reconciliation runs and the media they upload in a
// local SQLite database.
//
// Every uploaded cover or audio object is recorded as pending. A successful
// run marks its uploads referenced; a failed run marks them orphaned so the
// user can see media the platform holds but no playlist uses. The platform
// exposes no delete endpoint, so resolving an orphan only acknowledges it.
package ledger
