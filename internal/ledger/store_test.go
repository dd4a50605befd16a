package ledger_test

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"

	"storyforge/internal/ledger"
	"storyforge/internal/testsupport"
)

func TestOpenCreatesSchema(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenLedger(t, cfg)

	if store.Path() != cfg.LedgerPath() {
		t.Fatalf("expected path %q, got %q", cfg.LedgerPath(), store.Path())
	}
	runs, err := store.ListRuns(context.Background(), 0)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 0 {
		t.Fatalf("expected empty ledger, got %d runs", len(runs))
	}
}

func TestOpenRejectsSchemaMismatch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	store, err := ledger.OpenPath(path)
	if err != nil {
		t.Fatalf("OpenPath: %v", err)
	}
	store.Close()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("sql.Open: %v", err)
	}
	if _, err := db.Exec("UPDATE schema_version SET version = 99"); err != nil {
		t.Fatalf("bump version: %v", err)
	}
	db.Close()

	if _, err := ledger.OpenPath(path); !errors.Is(err, ledger.ErrSchemaMismatch) {
		t.Fatalf("expected ErrSchemaMismatch, got %v", err)
	}
}

func TestCompleteRunReferencesUploads(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	testsupport.StartRun(t, store, "run-1", "StoryForge")

	if err := store.UpdatePhase(ctx, "run-1", "audio"); err != nil {
		t.Fatalf("UpdatePhase: %v", err)
	}
	if err := store.RecordUpload(ctx, "run-1", "audio", "yoto:#abc", "up-1"); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	done := ledger.Completion{CardID: "card-1", ChapterKey: "03", ChapterTitle: "Luna"}
	if err := store.CompleteRun(ctx, "run-1", done); err != nil {
		t.Fatalf("CompleteRun: %v", err)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.RunSucceeded || run.CardID != "card-1" || run.ChapterKey != "03" {
		t.Fatalf("unexpected run: %+v", run)
	}
	if run.CreatedAt.IsZero() {
		t.Fatal("expected created timestamp")
	}
	orphans, err := store.ListOrphans(ctx)
	if err != nil {
		t.Fatalf("ListOrphans: %v", err)
	}
	if len(orphans) != 0 {
		t.Fatalf("expected no orphans, got %+v", orphans)
	}
}

func TestFailRunOrphansPendingUploads(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	testsupport.StartRun(t, store, "run-1", "StoryForge")

	if err := store.RecordUpload(ctx, "run-1", "cover", "https://cdn/cover.png", ""); err != nil {
		t.Fatalf("RecordUpload cover: %v", err)
	}
	if err := store.RecordUpload(ctx, "run-1", "audio", "yoto:#abc", "up-1"); err != nil {
		t.Fatalf("RecordUpload audio: %v", err)
	}

	orphans, err := store.FailRun(ctx, "run-1", ledger.Failure{Phase: "persist", Kind: "persist", Message: "boom"})
	if err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	if len(orphans) != 2 {
		t.Fatalf("expected 2 orphans, got %d", len(orphans))
	}
	if orphans[0].Kind != "cover" || orphans[1].Locator != "yoto:#abc" {
		t.Fatalf("unexpected orphans: %+v", orphans)
	}

	run, err := store.GetRun(ctx, "run-1")
	if err != nil {
		t.Fatalf("GetRun: %v", err)
	}
	if run.Status != ledger.RunFailed || run.Phase != "persist" || run.ErrorMessage != "boom" {
		t.Fatalf("unexpected run: %+v", run)
	}

	resolved, err := store.ResolveOrphans(ctx, orphans[0].ID)
	if err != nil {
		t.Fatalf("ResolveOrphans: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", resolved)
	}
	remaining, err := store.ListOrphans(ctx)
	if err != nil {
		t.Fatalf("ListOrphans: %v", err)
	}
	if len(remaining) != 1 || remaining[0].ID != orphans[1].ID {
		t.Fatalf("unexpected remaining orphans: %+v", remaining)
	}

	resolved, err = store.ResolveOrphans(ctx)
	if err != nil {
		t.Fatalf("ResolveOrphans all: %v", err)
	}
	if resolved != 1 {
		t.Fatalf("expected 1 resolved, got %d", resolved)
	}
}

func TestUnknownRun(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))

	if _, err := store.GetRun(ctx, "missing"); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
	if err := store.UpdatePhase(ctx, "missing", "audio"); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Fatalf("expected ErrRunNotFound, got %v", err)
	}
}

func TestListRunsLimit(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	for _, id := range []string{"a", "b", "c"} {
		testsupport.StartRun(t, store, id, "StoryForge")
	}
	runs, err := store.ListRuns(ctx, 2)
	if err != nil {
		t.Fatalf("ListRuns: %v", err)
	}
	if len(runs) != 2 {
		t.Fatalf("expected 2 runs, got %d", len(runs))
	}
}

func TestSetUploadLocator(t *testing.T) {
	ctx := context.Background()
	store := testsupport.MustOpenLedger(t, testsupport.NewConfig(t))
	testsupport.StartRun(t, store, "run-1", "StoryForge")

	if err := store.RecordUpload(ctx, "run-1", "audio", "", "up-1"); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if err := store.SetUploadLocator(ctx, "run-1", "up-1", "yoto:#abc"); err != nil {
		t.Fatalf("SetUploadLocator: %v", err)
	}
	if err := store.SetUploadLocator(ctx, "run-1", "missing", "yoto:#zzz"); !errors.Is(err, ledger.ErrRunNotFound) {
		t.Fatalf("expected not found for unknown upload, got %v", err)
	}

	orphans, err := store.FailRun(ctx, "run-1", ledger.Failure{Phase: "persist", Kind: "persist", Message: "boom"})
	if err != nil {
		t.Fatalf("FailRun: %v", err)
	}
	if len(orphans) != 1 || orphans[0].Locator != "yoto:#abc" || orphans[0].UploadID != "up-1" {
		t.Fatalf("unexpected orphans: %+v", orphans)
	}
}
