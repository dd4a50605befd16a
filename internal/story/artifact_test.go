package story

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/services"
)

func newTestStore(t *testing.T) *ArtifactStore {
	t.Helper()
	return NewArtifactStore(filepath.Join(t.TempDir(), "stories"), logging.NewNop())
}

func TestArtifactSaveAndLoad(t *testing.T) {
	store := newTestStore(t)
	artifact := &Artifact{
		Title:     "Milo and the Moon",
		HeroName:  "Milo",
		AgeBand:   "3-5",
		Text:      "Milo looked up.",
		Audio:     []byte("ID3-audio"),
		Image:     []byte("\x89PNG-cover"),
		ImageMIME: "image/png",
	}
	if err := store.Save(artifact); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if artifact.ID == "" || artifact.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamp to be assigned, got %+v", artifact)
	}
	for _, name := range []string{"story.txt", "audio.mp3", "cover.png", "meta.json"} {
		if _, err := os.Stat(filepath.Join(store.Path(artifact.ID), name)); err != nil {
			t.Fatalf("expected %s: %v", name, err)
		}
	}

	loaded, err := store.Load(artifact.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if loaded.Title != "Milo and the Moon" || loaded.HeroName != "Milo" || loaded.AgeBand != "3-5" {
		t.Fatalf("unexpected metadata %+v", loaded)
	}
	if loaded.Text != "Milo looked up." {
		t.Fatalf("unexpected text %q", loaded.Text)
	}
	if string(loaded.Audio) != "ID3-audio" || loaded.AudioMIME != "audio/mpeg" {
		t.Fatalf("unexpected audio %q (%s)", loaded.Audio, loaded.AudioMIME)
	}
	if string(loaded.Image) != "\x89PNG-cover" || loaded.ImageMIME != "image/png" {
		t.Fatalf("unexpected image %q (%s)", loaded.Image, loaded.ImageMIME)
	}
	if loaded.Uploaded() {
		t.Fatal("fresh artifact should not be uploaded")
	}
}

func TestArtifactSaveRequiresAudio(t *testing.T) {
	store := newTestStore(t)
	err := store.Save(&Artifact{Title: "silent"})
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArtifactLoadRejectsTraversal(t *testing.T) {
	store := newTestStore(t)
	if _, err := store.Load("../../etc"); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestArtifactLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("0b3f9f64-8a5d-4a39-9d2e-3c1a2f1b7e11")
	if !errors.Is(err, ErrArtifactNotFound) {
		t.Fatalf("expected ErrArtifactNotFound, got %v", err)
	}
}

func TestArtifactLoadDetectsCorruption(t *testing.T) {
	store := newTestStore(t)
	artifact := &Artifact{Title: "t", Audio: []byte("good-audio")}
	if err := store.Save(artifact); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := os.WriteFile(filepath.Join(store.Path(artifact.ID), "audio.mp3"), []byte("bad-audio!"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Load(artifact.ID); !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error for damaged audio, got %v", err)
	}
}

func TestArtifactListNewestFirstSkipsPartial(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC)
	older := &Artifact{Title: "older", Audio: []byte("a"), CreatedAt: base}
	newer := &Artifact{Title: "newer", Audio: []byte("b"), CreatedAt: base.Add(time.Hour)}
	for _, a := range []*Artifact{older, newer} {
		if err := store.Save(a); err != nil {
			t.Fatalf("Save: %v", err)
		}
	}
	if err := os.MkdirAll(filepath.Join(store.Dir(), "interrupted"), 0o755); err != nil {
		t.Fatal(err)
	}

	list, err := store.List()
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 artifacts, got %d", len(list))
	}
	if list[0].Title != "newer" || list[1].Title != "older" {
		t.Fatalf("unexpected order: %s, %s", list[0].Title, list[1].Title)
	}
	if len(list[0].Audio) != 0 {
		t.Fatal("List should not load media")
	}
}

func TestArtifactListMissingDir(t *testing.T) {
	store := NewArtifactStore(filepath.Join(t.TempDir(), "absent"), nil)
	list, err := store.List()
	if err != nil || len(list) != 0 {
		t.Fatalf("expected empty list, got %v, %v", list, err)
	}
}

func TestArtifactMarkUploaded(t *testing.T) {
	store := newTestStore(t)
	artifact := &Artifact{Title: "t", Audio: []byte("a")}
	if err := store.Save(artifact); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.MarkUploaded(artifact.ID, "card-1", "03"); err != nil {
		t.Fatalf("MarkUploaded: %v", err)
	}
	loaded, err := store.Load(artifact.ID)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !loaded.Uploaded() || loaded.CardID != "card-1" || loaded.ChapterKey != "03" || loaded.UploadedAt.IsZero() {
		t.Fatalf("unexpected upload state %+v", loaded)
	}
}
