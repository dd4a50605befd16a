package api

import (
	"errors"
	"time"

	"storyforge/internal/auth"
	"storyforge/internal/ledger"
	"storyforge/internal/playlist"
	"storyforge/internal/reconcile"
	"storyforge/internal/services"
	"storyforge/internal/story"
)

// FromDescriptor converts a reconcile result.
func FromDescriptor(d *reconcile.Descriptor) *Chapter {
	if d == nil {
		return nil
	}
	return &Chapter{
		RunID:           d.RunID,
		ArtifactID:      d.ArtifactID,
		Mode:            d.Mode,
		CardID:          d.CardID,
		Playlist:        d.Title,
		Created:         d.Created,
		ChapterKey:      d.ChapterKey,
		ChapterTitle:    d.ChapterTitle,
		ChapterCount:    d.ChapterCount,
		DurationSeconds: d.DurationSeconds,
		FileSizeBytes:   d.FileSizeBytes,
		CoverSet:        d.CoverSet,
	}
}

// FromArtifact converts a saved story.
func FromArtifact(a story.Artifact) Artifact {
	return Artifact{
		ID:         a.ID,
		Title:      a.Title,
		HeroName:   a.HeroName,
		AgeBand:    a.AgeBand,
		AudioMIME:  a.AudioMIME,
		HasCover:   a.ImageMIME != "" || len(a.Image) > 0,
		CreatedAt:  formatTime(a.CreatedAt),
		CardID:     a.CardID,
		ChapterKey: a.ChapterKey,
		UploadedAt: formatTime(a.UploadedAt),
	}
}

// FromPlaylist converts a fetched playlist. Chapter totals are the sums of
// their tracks.
func FromPlaylist(p playlist.Playlist) PlaylistView {
	view := PlaylistView{
		CardID:          p.ID,
		Title:           p.Title,
		DurationSeconds: p.AggregateDurationSeconds,
		FileSizeBytes:   p.AggregateFileSizeBytes,
		Cover:           p.Cover,
		UpdatedAt:       p.UpdatedAt,
		Chapters:        make([]ChapterView, 0, len(p.Chapters)),
	}
	for _, chapter := range p.Chapters {
		cv := ChapterView{Key: chapter.Key, Title: chapter.Title, Tracks: len(chapter.Tracks)}
		for _, track := range chapter.Tracks {
			cv.DurationSeconds += track.Media.DurationSeconds
			cv.FileSizeBytes += track.Media.FileSizeBytes
		}
		view.Chapters = append(view.Chapters, cv)
	}
	return view
}

// FromRun converts a ledger run.
func FromRun(r ledger.Run) Run {
	return Run{
		ID:            r.ID,
		PlaylistTitle: r.PlaylistTitle,
		Mode:          r.Mode,
		ArtifactID:    r.ArtifactID,
		Status:        string(r.Status),
		Phase:         r.Phase,
		ErrorKind:     r.ErrorKind,
		ErrorMessage:  r.ErrorMessage,
		CardID:        r.CardID,
		ChapterKey:    r.ChapterKey,
		ChapterTitle:  r.ChapterTitle,
		CreatedAt:     formatTime(r.CreatedAt),
		UpdatedAt:     formatTime(r.UpdatedAt),
	}
}

// FromRuns converts a slice of ledger runs.
func FromRuns(runs []ledger.Run) []Run {
	out := make([]Run, 0, len(runs))
	for _, r := range runs {
		out = append(out, FromRun(r))
	}
	return out
}

// FromUploads converts ledger upload records.
func FromUploads(uploads []ledger.Upload) []Upload {
	out := make([]Upload, 0, len(uploads))
	for _, u := range uploads {
		out = append(out, Upload{
			ID:        u.ID,
			RunID:     u.RunID,
			Kind:      u.Kind,
			Locator:   u.Locator,
			UploadID:  u.UploadID,
			Status:    string(u.Status),
			CreatedAt: formatTime(u.CreatedAt),
		})
	}
	return out
}

// FromAuthStatus converts the stored session status.
func FromAuthStatus(status auth.Status, statePath string) AuthStatus {
	return AuthStatus{
		SignedIn:  status.LoggedIn,
		Expired:   status.Expired,
		ExpiresAt: formatTime(status.ExpiresAt),
		StatePath: statePath,
	}
}

// FromError renders err for transport. Reconcile failures keep their phase,
// run and artifact so callers can retry.
func FromError(err error) Error {
	if err == nil {
		return Error{}
	}
	out := Error{
		Message:   err.Error(),
		Kind:      services.Kind(err),
		Retryable: services.Retryable(err),
	}
	var failure *reconcile.Failure
	if errors.As(err, &failure) {
		out.Phase = failure.Phase
		out.RunID = failure.RunID
		out.ArtifactID = failure.ArtifactID
		out.Hint = failure.Hint()
		out.Orphans = len(failure.Orphans)
	}
	return out
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(dateTimeFormat)
}
