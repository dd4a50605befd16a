package testsupport

import (
	"context"
	"testing"

	"storyforge/internal/config"
	"storyforge/internal/ledger"
)

// MustOpenLedger opens a ledger.Store for tests and registers cleanup.
func MustOpenLedger(t testing.TB, cfg *config.Config) *ledger.Store {
	t.Helper()

	store, err := ledger.Open(cfg)
	if err != nil {
		t.Fatalf("ledger.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}

// StartRun records a running reconciliation for tests.
func StartRun(t testing.TB, store *ledger.Store, id, title string) {
	t.Helper()

	err := store.StartRun(context.Background(), ledger.Run{ID: id, PlaylistTitle: title, Mode: config.ModeReconcile})
	if err != nil {
		t.Fatalf("store.StartRun: %v", err)
	}
}
