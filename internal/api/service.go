package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"storyforge/internal/auth"
	"storyforge/internal/config"
	"storyforge/internal/ledger"
	"storyforge/internal/logging"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/reconcile"
	"storyforge/internal/services"
	"storyforge/internal/story"
)

// Reconciler adds one chapter to a playlist.
type Reconciler interface {
	Reconcile(ctx context.Context, in reconcile.Input) (*reconcile.Descriptor, error)
	Mode() string
}

// Generator writes and narrates a story.
type Generator interface {
	Generate(ctx context.Context, prompt story.Prompt) (*story.Artifact, error)
}

// PlaylistReader reads cards from the platform.
type PlaylistReader interface {
	ListMine(ctx context.Context) ([]playlist.Summary, error)
	Fetch(ctx context.Context, cardID string) (platform.Card, error)
}

// RunLog exposes the ledger views.
type RunLog interface {
	ListRuns(ctx context.Context, limit int) ([]ledger.Run, error)
	ListOrphans(ctx context.Context) ([]ledger.Upload, error)
	ResolveOrphans(ctx context.Context, ids ...int64) (int64, error)
}

// SessionInfo reports the stored platform session.
type SessionInfo interface {
	Status() (auth.Status, error)
}

// Service runs StoryForge workflows for the CLI and the HTTP server.
type Service struct {
	cfg        *config.Config
	reconciler Reconciler
	generator  Generator
	artifacts  *story.ArtifactStore
	playlists  PlaylistReader
	runs       RunLog
	session    SessionInfo
	logger     *slog.Logger
}

// Deps groups the collaborators of a Service. Generator, Playlists, Runs and
// Session are optional; the matching operations fail with
// services.ErrConfiguration when absent.
type Deps struct {
	Config     *config.Config
	Reconciler Reconciler
	Generator  Generator
	Artifacts  *story.ArtifactStore
	Playlists  PlaylistReader
	Runs       RunLog
	Session    SessionInfo
	Logger     *slog.Logger
}

// NewService constructs a Service.
func NewService(deps Deps) *Service {
	cfg := deps.Config
	if cfg == nil {
		def := config.Default()
		cfg = &def
	}
	return &Service{
		cfg:        cfg,
		reconciler: deps.Reconciler,
		generator:  deps.Generator,
		artifacts:  deps.Artifacts,
		playlists:  deps.Playlists,
		runs:       deps.Runs,
		session:    deps.Session,
		logger:     logging.NewComponentLogger(deps.Logger, "api"),
	}
}

// ChapterRequest is a pre-made chapter to add.
type ChapterRequest struct {
	PlaylistTitle string
	ChapterTitle  string
	HeroName      string
	Audio         []byte
	AudioMIME     string
	Image         []byte
	ImageMIME     string
}

// UploadChapter saves the request as an artifact and publishes it.
func (s *Service) UploadChapter(ctx context.Context, req ChapterRequest) (*Chapter, error) {
	if len(req.Audio) == 0 {
		return nil, services.Wrap(services.ErrValidation, "input", "upload chapter", "audio is required", nil)
	}
	if s.artifacts == nil {
		return nil, services.Wrap(services.ErrConfiguration, "input", "upload chapter", "artifact store unavailable", nil)
	}
	artifact := &story.Artifact{
		Title:     strings.TrimSpace(req.ChapterTitle),
		HeroName:  strings.TrimSpace(req.HeroName),
		Audio:     req.Audio,
		AudioMIME: req.AudioMIME,
		Image:     req.Image,
		ImageMIME: req.ImageMIME,
	}
	if err := s.artifacts.Save(artifact); err != nil {
		return nil, err
	}
	return s.publish(ctx, artifact, req.PlaylistTitle)
}

// PublishArtifact reconciles a saved artifact into playlistTitle (or the
// configured default).
func (s *Service) PublishArtifact(ctx context.Context, artifactID, playlistTitle string) (*Chapter, error) {
	if s.artifacts == nil {
		return nil, services.Wrap(services.ErrConfiguration, "input", "publish artifact", "artifact store unavailable", nil)
	}
	artifact, err := s.artifacts.Load(artifactID)
	if err != nil {
		if errors.Is(err, story.ErrArtifactNotFound) {
			return nil, services.Wrap(services.ErrNotFound, "input", "publish artifact", "", err)
		}
		return nil, err
	}
	if artifact.Uploaded() {
		s.logger.Info("artifact already uploaded; adding it again",
			logging.String("artifact_id", artifact.ID),
			logging.CardID(artifact.CardID),
			logging.String("chapter_key", artifact.ChapterKey),
		)
	}
	return s.publish(ctx, artifact, playlistTitle)
}

// CreateStory generates a story from prompt and publishes it. When publishing
// fails the saved artifact is still returned so the caller can retry.
func (s *Service) CreateStory(ctx context.Context, prompt story.Prompt, playlistTitle string) (*Story, error) {
	if s.generator == nil {
		return nil, services.Wrap(services.ErrConfiguration, "story", "create", "story generation is not configured", nil)
	}
	artifact, err := s.generator.Generate(ctx, prompt)
	if err != nil {
		return nil, err
	}
	result := &Story{Artifact: FromArtifact(*artifact)}
	chapter, err := s.publish(ctx, artifact, playlistTitle)
	if err != nil {
		return result, err
	}
	result.Chapter = chapter
	result.Artifact.CardID = chapter.CardID
	result.Artifact.ChapterKey = chapter.ChapterKey
	return result, nil
}

func (s *Service) publish(ctx context.Context, artifact *story.Artifact, playlistTitle string) (*Chapter, error) {
	if s.reconciler == nil {
		return nil, services.Wrap(services.ErrConfiguration, "input", "publish", "reconciler unavailable", nil)
	}
	desc, err := s.reconciler.Reconcile(ctx, reconcile.Input{
		PlaylistTitle: playlistTitle,
		ChapterTitle:  artifact.Title,
		HeroName:      artifact.HeroName,
		Audio:         artifact.Audio,
		Image:         artifact.Image,
		ImageMIME:     artifact.ImageMIME,
		ArtifactID:    artifact.ID,
	})
	if err != nil {
		return nil, err
	}
	if err := s.artifacts.MarkUploaded(artifact.ID, desc.CardID, desc.ChapterKey); err != nil {
		logging.WarnWithContext(s.logger, "failed to mark artifact uploaded", "artifact_mark_failed",
			logging.String("artifact_id", artifact.ID),
			logging.Error(err),
			logging.Impact("artifact will be pruned only with --include-pending"),
		)
	}
	return FromDescriptor(desc), nil
}

// ShowPlaylist fetches the playlist titled title (or the configured default).
func (s *Service) ShowPlaylist(ctx context.Context, title string) (*PlaylistView, error) {
	if s.playlists == nil {
		return nil, services.Wrap(services.ErrConfiguration, "lookup", "show playlist", "platform client unavailable", nil)
	}
	title = strings.TrimSpace(title)
	if title == "" {
		title = s.cfg.Playlist.DefaultTitle
	}
	entries, err := s.playlists.ListMine(ctx)
	if err != nil {
		return nil, classifyLookup("list playlists", err)
	}
	summary, ok := playlist.SelectByTitle(entries, title)
	if !ok {
		return nil, services.Wrap(services.ErrNotFound, "lookup", "show playlist", fmt.Sprintf("no playlist titled %q", title), nil)
	}
	card, err := s.playlists.Fetch(ctx, summary.ID)
	if err != nil {
		return nil, classifyLookup("fetch playlist", err)
	}
	p, err := platform.ToPlaylist(card)
	if err != nil {
		return nil, services.Wrap(services.ErrLookup, "fetch", "decode playlist", "", err)
	}
	view := FromPlaylist(p)
	if n := playlist.CountByTitle(entries, title); n > 1 {
		view.Duplicates = n - 1
	}
	return &view, nil
}

// Runs lists recent reconciliation runs.
func (s *Service) Runs(ctx context.Context, limit int) ([]Run, error) {
	if s.runs == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "list runs", "ledger unavailable", nil)
	}
	runs, err := s.runs.ListRuns(ctx, limit)
	if err != nil {
		return nil, err
	}
	return FromRuns(runs), nil
}

// Orphans lists uploaded media no playlist references.
func (s *Service) Orphans(ctx context.Context) ([]Upload, error) {
	if s.runs == nil {
		return nil, services.Wrap(services.ErrConfiguration, "ledger", "list orphans", "ledger unavailable", nil)
	}
	uploads, err := s.runs.ListOrphans(ctx)
	if err != nil {
		return nil, err
	}
	return FromUploads(uploads), nil
}

// ResolveOrphans marks orphans handled; no ids resolves all of them.
func (s *Service) ResolveOrphans(ctx context.Context, ids ...int64) (int64, error) {
	if s.runs == nil {
		return 0, services.Wrap(services.ErrConfiguration, "ledger", "resolve orphans", "ledger unavailable", nil)
	}
	n, err := s.runs.ResolveOrphans(ctx, ids...)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("orphaned media resolved",
			logging.Int64("count", n),
			logging.Event("orphans_resolved"),
		)
	}
	return n, nil
}

// Artifacts lists locally saved stories, newest first.
func (s *Service) Artifacts() ([]Artifact, error) {
	if s.artifacts == nil {
		return nil, nil
	}
	list, err := s.artifacts.List()
	if err != nil {
		return nil, err
	}
	out := make([]Artifact, 0, len(list))
	for _, a := range list {
		out = append(out, FromArtifact(a))
	}
	return out, nil
}

// Status summarizes configuration, session and ledger state.
func (s *Service) Status(ctx context.Context) Status {
	status := Status{
		Mode:         s.cfg.Playlist.Mode,
		DefaultTitle: s.cfg.Playlist.DefaultTitle,
		LedgerPath:   s.cfg.LedgerPath(),
		StagingDir:   s.cfg.Paths.StagingDir,
		StoryEnabled: s.generator != nil,
	}
	if s.reconciler != nil {
		status.Mode = s.reconciler.Mode()
	}
	if s.session != nil {
		if session, err := s.session.Status(); err == nil {
			status.Auth = FromAuthStatus(session, s.cfg.TokenStatePath())
		} else {
			logging.WarnWithContext(s.logger, "failed to read auth state", "auth_status_failed",
				logging.Error(err),
				logging.Hint("check state_dir permissions"),
			)
			status.Auth = AuthStatus{StatePath: s.cfg.TokenStatePath()}
		}
	}
	if s.runs != nil {
		if orphans, err := s.runs.ListOrphans(ctx); err == nil {
			status.Orphans = len(orphans)
		}
	}
	return status
}

func classifyLookup(operation string, err error) error {
	if errors.Is(err, services.ErrAuth) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if code := platform.StatusCode(err); code == 401 || code == 403 {
		return services.Wrap(services.ErrAuth, "lookup", operation, "platform rejected the access token", err)
	}
	return services.Wrap(services.ErrLookup, "lookup", operation, "", err)
}
