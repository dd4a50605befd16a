package api

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"storyforge/internal/auth"
	"storyforge/internal/ledger"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/reconcile"
	"storyforge/internal/services"
	"storyforge/internal/story"
	"storyforge/internal/testsupport"
)

type fakeReconciler struct {
	inputs []reconcile.Input
	err    error
}

func (f *fakeReconciler) Reconcile(_ context.Context, in reconcile.Input) (*reconcile.Descriptor, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &reconcile.Descriptor{
		RunID:        "run-1",
		ArtifactID:   in.ArtifactID,
		Mode:         "reconcile",
		CardID:       "card-9",
		Title:        "StoryForge",
		ChapterKey:   "03",
		ChapterTitle: in.ChapterTitle,
		ChapterCount: 3,
	}, nil
}

func (f *fakeReconciler) Mode() string { return "reconcile" }

type fakeGenerator struct {
	store *story.ArtifactStore
}

func (f *fakeGenerator) Generate(_ context.Context, prompt story.Prompt) (*story.Artifact, error) {
	if err := prompt.Validate(); err != nil {
		return nil, err
	}
	a := &story.Artifact{Title: prompt.HeroName + " sails", HeroName: prompt.HeroName, Audio: []byte("mp3")}
	if err := f.store.Save(a); err != nil {
		return nil, err
	}
	return a, nil
}

type fakePlaylists struct {
	entries []playlist.Summary
	cards   map[string]platform.Card
	err     error
}

func (f *fakePlaylists) ListMine(context.Context) ([]playlist.Summary, error) {
	return f.entries, f.err
}

func (f *fakePlaylists) Fetch(_ context.Context, cardID string) (platform.Card, error) {
	card, ok := f.cards[cardID]
	if !ok {
		return platform.Card{}, &platform.StatusError{StatusCode: 404}
	}
	return card, nil
}

type fakeSession struct {
	status auth.Status
}

func (f fakeSession) Status() (auth.Status, error) { return f.status, nil }

func newTestService(t *testing.T, rec Reconciler) (*Service, *story.ArtifactStore, *ledger.Store) {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	artifacts := story.NewArtifactStore(cfg.Paths.StagingDir, nil)
	store := testsupport.MustOpenLedger(t, cfg)
	svc := NewService(Deps{
		Config:     cfg,
		Reconciler: rec,
		Generator:  &fakeGenerator{store: artifacts},
		Artifacts:  artifacts,
		Runs:       store,
		Session:    fakeSession{status: auth.Status{LoggedIn: true}},
	})
	return svc, artifacts, store
}

func TestUploadChapterSavesAndMarksArtifact(t *testing.T) {
	rec := &fakeReconciler{}
	svc, artifacts, _ := newTestService(t, rec)

	chapter, err := svc.UploadChapter(context.Background(), ChapterRequest{
		PlaylistTitle: "Bedtime",
		ChapterTitle:  "The Owl",
		Audio:         []byte("mp3"),
		Image:         []byte("\x89PNG"),
		ImageMIME:     "image/png",
	})
	if err != nil {
		t.Fatalf("UploadChapter: %v", err)
	}
	if len(rec.inputs) != 1 || rec.inputs[0].PlaylistTitle != "Bedtime" || rec.inputs[0].ArtifactID == "" {
		t.Fatalf("unexpected reconcile input %+v", rec.inputs)
	}
	if chapter.ChapterKey != "03" || chapter.ArtifactID != rec.inputs[0].ArtifactID {
		t.Fatalf("unexpected chapter %+v", chapter)
	}
	saved, err := artifacts.Load(chapter.ArtifactID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if saved.CardID != "card-9" || saved.ChapterKey != "03" {
		t.Fatalf("artifact not marked uploaded: %+v", saved)
	}
}

func TestUploadChapterRequiresAudio(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeReconciler{})
	_, err := svc.UploadChapter(context.Background(), ChapterRequest{ChapterTitle: "x"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestPublishArtifactFailureKeepsArtifact(t *testing.T) {
	failure := &reconcile.Failure{
		Phase: reconcile.PhaseTranscode,
		RunID: "run-7",
		Err:   services.Wrap(services.ErrTranscodeTimeout, "transcode", "wait", "", nil),
	}
	rec := &fakeReconciler{err: failure}
	svc, artifacts, _ := newTestService(t, rec)

	artifact := &story.Artifact{Title: "t", Audio: []byte("mp3")}
	if err := artifacts.Save(artifact); err != nil {
		t.Fatalf("Save: %v", err)
	}
	failure.ArtifactID = artifact.ID

	_, err := svc.PublishArtifact(context.Background(), artifact.ID, "")
	if !errors.Is(err, services.ErrTranscodeTimeout) {
		t.Fatalf("expected transcode timeout, got %v", err)
	}
	rendered := FromError(err)
	if rendered.Phase != "transcode" || rendered.RunID != "run-7" || rendered.ArtifactID != artifact.ID || !rendered.Retryable {
		t.Fatalf("unexpected rendered error %+v", rendered)
	}
	if rendered.Hint == "" {
		t.Fatal("expected a retry hint")
	}
	loaded, err := artifacts.Load(artifact.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Uploaded() {
		t.Fatal("failed publish must not mark the artifact uploaded")
	}
}

func TestPublishArtifactUnknownID(t *testing.T) {
	svc, _, _ := newTestService(t, &fakeReconciler{})
	_, err := svc.PublishArtifact(context.Background(), "6f1c1f5e-5c1a-4f0e-9d59-9f1d7d2f2a10", "")
	if !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestCreateStoryPublishesGeneratedArtifact(t *testing.T) {
	rec := &fakeReconciler{}
	svc, _, _ := newTestService(t, rec)

	result, err := svc.CreateStory(context.Background(), story.Prompt{HeroName: "Ada", Setup: "a boat"}, "")
	if err != nil {
		t.Fatalf("CreateStory: %v", err)
	}
	if result.Chapter == nil || result.Artifact.CardID != "card-9" {
		t.Fatalf("unexpected result %+v", result)
	}
	if rec.inputs[0].HeroName != "Ada" || rec.inputs[0].ChapterTitle != "Ada sails" {
		t.Fatalf("unexpected reconcile input %+v", rec.inputs[0])
	}
}

func TestCreateStoryWithoutGenerator(t *testing.T) {
	svc := NewService(Deps{Reconciler: &fakeReconciler{}})
	_, err := svc.CreateStory(context.Background(), story.Prompt{HeroName: "Ada", Setup: "x"}, "")
	if !errors.Is(err, services.ErrConfiguration) {
		t.Fatalf("expected configuration error, got %v", err)
	}
}

func TestShowPlaylistSumsChapterTracks(t *testing.T) {
	chapters, _ := json.Marshal([]map[string]any{
		{"key": "01", "title": "One", "tracks": []map[string]any{
			{"key": "01", "title": "a", "trackUrl": "yoto:#a", "type": "audio", "duration": 100, "fileSize": 500},
			{"key": "02", "title": "b", "trackUrl": "yoto:#b", "type": "audio", "duration": 50, "fileSize": 250},
		}},
	})
	reader := &fakePlaylists{
		entries: []playlist.Summary{
			{ID: "late", Title: "StoryForge", CreatedAt: "2026-02-01T00:00:00Z"},
			{ID: "early", Title: "StoryForge", CreatedAt: "2026-01-01T00:00:00Z"},
		},
		cards: map[string]platform.Card{
			"early": {CardID: "early", Title: "StoryForge", Content: map[string]json.RawMessage{"chapters": chapters}},
		},
	}
	cfg := testsupport.NewConfig(t)
	svc := NewService(Deps{Config: cfg, Playlists: reader})

	view, err := svc.ShowPlaylist(context.Background(), "")
	if err != nil {
		t.Fatalf("ShowPlaylist: %v", err)
	}
	if view.CardID != "early" || view.Duplicates != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if len(view.Chapters) != 1 || view.Chapters[0].DurationSeconds != 150 || view.Chapters[0].FileSizeBytes != 750 {
		t.Fatalf("unexpected chapters %+v", view.Chapters)
	}
}

func TestShowPlaylistNotFoundAndAuth(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	svc := NewService(Deps{Config: cfg, Playlists: &fakePlaylists{}})
	if _, err := svc.ShowPlaylist(context.Background(), "Missing"); !errors.Is(err, services.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}

	svc = NewService(Deps{Config: cfg, Playlists: &fakePlaylists{err: &platform.StatusError{StatusCode: 401}}})
	if _, err := svc.ShowPlaylist(context.Background(), "x"); !errors.Is(err, services.ErrAuth) {
		t.Fatalf("expected auth error, got %v", err)
	}
}

func TestOrphansAndResolve(t *testing.T) {
	svc, _, store := newTestService(t, &fakeReconciler{})
	ctx := context.Background()
	testsupport.StartRun(t, store, "run-1", "StoryForge")
	if err := store.RecordUpload(ctx, "run-1", "audio", "", "upload-1"); err != nil {
		t.Fatalf("RecordUpload: %v", err)
	}
	if _, err := store.FailRun(ctx, "run-1", ledger.Failure{Phase: "transcode", Kind: "transcode_timeout", Message: "timed out"}); err != nil {
		t.Fatalf("FailRun: %v", err)
	}

	orphans, err := svc.Orphans(ctx)
	if err != nil {
		t.Fatalf("Orphans: %v", err)
	}
	if len(orphans) != 1 || orphans[0].UploadID != "upload-1" || orphans[0].Status != "orphaned" {
		t.Fatalf("unexpected orphans %+v", orphans)
	}
	if status := svc.Status(ctx); status.Orphans != 1 || !status.Auth.SignedIn || !status.StoryEnabled {
		t.Fatalf("unexpected status %+v", status)
	}

	n, err := svc.ResolveOrphans(ctx)
	if err != nil || n != 1 {
		t.Fatalf("ResolveOrphans = %d, %v", n, err)
	}
	runs, err := svc.Runs(ctx, 10)
	if err != nil {
		t.Fatalf("Runs: %v", err)
	}
	if len(runs) != 1 || runs[0].Status != "failed" || runs[0].Phase != "transcode" {
		t.Fatalf("unexpected runs %+v", runs)
	}
}
