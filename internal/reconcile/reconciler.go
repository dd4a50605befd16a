package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"storyforge/internal/config"
	"storyforge/internal/ledger"
	"storyforge/internal/logging"
	"storyforge/internal/media"
	"storyforge/internal/notifications"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/services"
)

const (
	phaseLock      = "lock"
	phaseInput     = "input"
	PhaseAuth      = "auth"
	PhaseLookup    = "lookup"
	PhaseCreate    = "create"
	PhaseFetch     = "fetch"
	PhaseCover     = "cover"
	PhaseAudio     = "audio"
	PhaseTranscode = "transcode"
	PhaseMerge     = "merge"
	PhaseRecompute = "recompute"
	PhasePersist   = "persist"
	PhaseDone      = "done"
)

// TokenSource yields a usable access token or fails with services.ErrAuth.
type TokenSource interface {
	AccessToken(ctx context.Context) (string, error)
}

// ContentAPI is the card surface of the platform.
type ContentAPI interface {
	ListMine(ctx context.Context) ([]playlist.Summary, error)
	Fetch(ctx context.Context, cardID string) (platform.Card, error)
	Upsert(ctx context.Context, card platform.Card) (platform.Card, error)
}

// MediaUploader puts cover art and raw audio on the platform.
type MediaUploader interface {
	UploadImage(ctx context.Context, data []byte, mimeType string) (playlist.MediaReference, error)
	UploadAudioRaw(ctx context.Context, data []byte) (media.AudioUpload, error)
}

// TranscodeWaiter blocks until raw audio becomes a playable track.
type TranscodeWaiter interface {
	WaitForTranscode(ctx context.Context, uploadID string) (playlist.MediaReference, error)
}

// Ledger records runs and the media they upload.
type Ledger interface {
	StartRun(ctx context.Context, run ledger.Run) error
	UpdatePhase(ctx context.Context, runID, phase string) error
	RecordUpload(ctx context.Context, runID, kind, locator, uploadID string) error
	SetUploadLocator(ctx context.Context, runID, uploadID, locator string) error
	CompleteRun(ctx context.Context, runID string, done ledger.Completion) error
	FailRun(ctx context.Context, runID string, failure ledger.Failure) ([]ledger.Upload, error)
}

// Input is one chapter to add.
type Input struct {
	PlaylistTitle string
	ChapterTitle  string
	HeroName      string
	Audio         []byte
	Image         []byte
	ImageMIME     string
	ArtifactID    string
}

// Descriptor summarizes the playlist as persisted.
type Descriptor struct {
	RunID           string  `json:"run_id"`
	ArtifactID      string  `json:"artifact_id,omitempty"`
	Mode            string  `json:"mode"`
	CardID          string  `json:"card_id"`
	Title           string  `json:"title"`
	Created         bool    `json:"created"`
	ChapterKey      string  `json:"chapter_key"`
	ChapterTitle    string  `json:"chapter_title"`
	ChapterCount    int     `json:"chapter_count"`
	DurationSeconds float64 `json:"duration_seconds"`
	FileSizeBytes   int64   `json:"file_size_bytes"`
	CoverSet        bool    `json:"cover_set"`
}

// Option customises a Reconciler.
type Option func(*Reconciler)

// WithLedger records runs and uploads.
func WithLedger(l Ledger) Option {
	return func(r *Reconciler) {
		r.ledger = l
	}
}

// WithNotifier publishes outcomes.
func WithNotifier(n notifications.Service) Option {
	return func(r *Reconciler) {
		if n != nil {
			r.notifier = n
		}
	}
}

// WithGuard replaces the in-process guard.
func WithGuard(g *Guard) Option {
	return func(r *Reconciler) {
		if g != nil {
			r.guard = g
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Reconciler) {
		r.logger = logger
	}
}

// WithMode selects reconcile or card-per-story behaviour.
func WithMode(mode string) Option {
	return func(r *Reconciler) {
		if mode != "" {
			r.mode = mode
		}
	}
}

// WithDisplayIcon sets the icon reference stamped on new chapters.
func WithDisplayIcon(icon string) Option {
	return func(r *Reconciler) {
		r.displayIcon = icon
	}
}

// WithDefaultTitle sets the playlist used when the input names none.
func WithDefaultTitle(title string) Option {
	return func(r *Reconciler) {
		if strings.TrimSpace(title) != "" {
			r.defaultTitle = strings.TrimSpace(title)
		}
	}
}

// WithVerifyBeforePersist re-fetches an existing playlist before writing and
// fails with services.ErrConflict if it changed.
func WithVerifyBeforePersist(enabled bool) Option {
	return func(r *Reconciler) {
		r.verify = enabled
	}
}

// WithIDGenerator overrides run ID generation.
func WithIDGenerator(fn func() string) Option {
	return func(r *Reconciler) {
		if fn != nil {
			r.newID = fn
		}
	}
}

// Reconciler merges new chapters into playlists on the platform.
type Reconciler struct {
	tokens   TokenSource
	content  ContentAPI
	uploader MediaUploader
	waiter   TranscodeWaiter
	ledger   Ledger
	notifier notifications.Service
	guard    *Guard
	logger   *slog.Logger

	mode         string
	displayIcon  string
	defaultTitle string
	verify       bool
	newID        func() string
}

// New constructs a Reconciler.
func New(tokens TokenSource, content ContentAPI, uploader MediaUploader, waiter TranscodeWaiter, opts ...Option) *Reconciler {
	r := &Reconciler{
		tokens:       tokens,
		content:      content,
		uploader:     uploader,
		waiter:       waiter,
		notifier:     notifications.NewService(&config.Config{}),
		guard:        NewGuard(""),
		mode:         config.ModeReconcile,
		defaultTitle: "StoryForge",
		newID:        uuid.NewString,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "reconciler")
	return r
}

// FromConfig wires a Reconciler against the platform client using the
// configured cadence, mode and lock file.
func FromConfig(cfg *config.Config, tokens TokenSource, client *platform.Client, logger *slog.Logger, opts ...Option) *Reconciler {
	uploader := media.NewUploader(client, logger)
	waiter := media.NewTranscodeWaiter(client,
		media.WithPollInterval(cfg.TranscodePollInterval()),
		media.WithMaxAttempts(cfg.Upload.TranscodeMaxAttempts),
		media.WithTrackURLPrefix(cfg.Platform.TrackURLPrefix),
		media.WithWaiterLogger(logger),
	)
	base := []Option{
		WithLogger(logger),
		WithMode(cfg.Playlist.Mode),
		WithDisplayIcon(cfg.Playlist.DisplayIcon),
		WithDefaultTitle(cfg.Playlist.DefaultTitle),
		WithVerifyBeforePersist(cfg.Playlist.VerifyBeforePersist),
		WithGuard(NewGuard(cfg.LockPath())),
		WithNotifier(notifications.NewService(cfg)),
	}
	return New(tokens, client, uploader, waiter, append(base, opts...)...)
}

// Mode reports the configured reconciliation mode.
func (r *Reconciler) Mode() string {
	return r.mode
}

// Reconcile adds one chapter to the named playlist, creating the playlist when
// it does not exist, and persists the full result. Any error is a *Failure
// naming the phase that failed.
func (r *Reconciler) Reconcile(ctx context.Context, in Input) (*Descriptor, error) {
	if len(in.Audio) == 0 {
		return nil, &Failure{
			Phase:      phaseInput,
			ArtifactID: in.ArtifactID,
			Err:        services.Wrap(services.ErrValidation, phaseInput, "reconcile", "audio is required", nil),
		}
	}
	title := strings.TrimSpace(in.PlaylistTitle)
	if title == "" {
		title = r.defaultTitle
	}

	release, err := r.guard.Acquire()
	if err != nil {
		return nil, &Failure{Phase: phaseLock, ArtifactID: in.ArtifactID, Err: err}
	}
	defer release()

	s := &run{
		r:     r,
		id:    r.newID(),
		title: title,
		input: in,
	}
	ctx = services.WithRunID(ctx, s.id)
	ctx = services.WithPlaylistTitle(ctx, title)
	s.base = logging.WithContext(ctx, r.logger)
	s.logger = s.base
	started := time.Now()

	if r.ledger != nil {
		startErr := r.ledger.StartRun(ctx, ledger.Run{
			ID:            s.id,
			PlaylistTitle: title,
			Mode:          r.mode,
			ArtifactID:    in.ArtifactID,
			Phase:         PhaseAuth,
		})
		if startErr != nil {
			s.logger.Warn("failed to record run start", logging.Error(startErr))
		}
	}
	s.logger.Info("reconciliation started",
		logging.Event("reconcile_start"),
		logging.String("mode", r.mode),
		logging.String("artifact_id", in.ArtifactID),
	)

	desc, err := s.execute(ctx)
	if err != nil {
		return nil, r.fail(ctx, s, err)
	}

	if r.ledger != nil {
		done := ledger.Completion{CardID: desc.CardID, ChapterKey: desc.ChapterKey, ChapterTitle: desc.ChapterTitle}
		if err := r.ledger.CompleteRun(context.WithoutCancel(ctx), s.id, done); err != nil {
			s.logger.Warn("failed to record run completion", logging.Error(err))
		}
	}
	s.logger.Info("reconciliation complete",
		logging.Event("reconcile_complete"),
		logging.CardID(desc.CardID),
		logging.String("chapter_key", desc.ChapterKey),
		logging.Int("chapter_count", desc.ChapterCount),
		logging.Float64("duration_seconds", desc.DurationSeconds),
		logging.Bool("created", desc.Created),
		logging.Duration("elapsed", time.Since(started)),
	)
	event := notifications.EventChapterAdded
	if desc.Created {
		event = notifications.EventPlaylistCreated
	}
	r.publish(ctx, s.logger, event, notifications.Payload{
		"playlist":   desc.Title,
		"chapter":    desc.ChapterTitle,
		"chapterKey": desc.ChapterKey,
	})
	return desc, nil
}

func (r *Reconciler) fail(ctx context.Context, s *run, cause error) error {
	failure := &Failure{
		Phase:      s.phase,
		RunID:      s.id,
		ArtifactID: s.input.ArtifactID,
		Err:        cause,
	}
	// Bookkeeping must survive a cancelled request.
	bg := context.WithoutCancel(ctx)
	if r.ledger != nil {
		orphans, err := r.ledger.FailRun(bg, s.id, ledger.Failure{
			Phase:   s.phase,
			Kind:    services.Kind(cause),
			Message: cause.Error(),
		})
		if err != nil {
			s.logger.Warn("failed to record run failure", logging.Error(err))
		}
		failure.Orphans = orphans
	}

	logging.ErrorWithContext(s.logger, "reconciliation failed", "reconcile_failed",
		logging.String("error_kind", failure.Kind()),
		logging.Bool("retryable", failure.Retryable()),
		logging.Int("orphaned_uploads", len(failure.Orphans)),
		logging.Hint(failure.Hint()),
		logging.Error(cause),
	)
	if errors.Is(cause, context.Canceled) {
		return failure
	}
	r.publish(bg, s.logger, notifications.EventReconcileFailed, notifications.Payload{
		"phase":    s.phase,
		"playlist": s.title,
		"error":    cause.Error(),
		"artifact": s.input.ArtifactID,
	})
	return failure
}

func (r *Reconciler) publish(ctx context.Context, logger *slog.Logger, event notifications.Event, payload notifications.Payload) {
	if err := r.notifier.Publish(ctx, event, payload); err != nil {
		logger.Warn("notification failed",
			logging.String("event", string(event)),
			logging.Error(err),
		)
	}
}

// run is the state of one Reconcile call.
type run struct {
	r      *Reconciler
	id     string
	title  string
	input  Input
	phase  string
	base   *slog.Logger
	logger *slog.Logger
}

func (s *run) enter(ctx context.Context, phase string) context.Context {
	s.phase = phase
	s.logger = s.base.With(logging.Phase(phase))
	s.logger.Debug("phase entered")
	if s.r.ledger != nil {
		if err := s.r.ledger.UpdatePhase(ctx, s.id, phase); err != nil {
			s.logger.Warn("failed to record phase", logging.Error(err))
		}
	}
	return services.WithPhase(ctx, phase)
}

func (s *run) recordLocator(ctx context.Context, uploadID, locator string) {
	if s.r.ledger == nil || locator == "" {
		return
	}
	if err := s.r.ledger.SetUploadLocator(ctx, s.id, uploadID, locator); err != nil {
		s.logger.Warn("failed to record track locator", logging.String("locator", locator), logging.Error(err))
	}
}

// shortRunID keeps card-per-story titles unique without the full UUID.
func shortRunID(id string) string {
	id = strings.ReplaceAll(id, "-", "")
	if len(id) > 8 {
		id = id[:8]
	}
	return id
}

func (s *run) recordUpload(ctx context.Context, kind, locator, uploadID string) {
	if s.r.ledger == nil {
		return
	}
	if err := s.r.ledger.RecordUpload(ctx, s.id, kind, locator, uploadID); err != nil {
		s.logger.Warn("failed to record upload", logging.String("kind", kind), logging.Error(err))
	}
}

func (s *run) execute(ctx context.Context) (*Descriptor, error) {
	r := s.r
	ctx = s.enter(ctx, PhaseAuth)
	if _, err := r.tokens.AccessToken(ctx); err != nil {
		return nil, err
	}

	current, created, err := s.resolvePlaylist(ctx)
	if err != nil {
		return nil, err
	}

	coverSet := false
	if len(s.input.Image) > 0 {
		ctx = s.enter(ctx, PhaseCover)
		coverSet, err = s.uploadCover(ctx, &current)
		if err != nil {
			return nil, err
		}
	}

	ctx = s.enter(ctx, PhaseAudio)
	upload, err := r.uploader.UploadAudioRaw(ctx, s.input.Audio)
	if err != nil {
		return nil, err
	}
	s.recordUpload(ctx, string(playlist.MediaAudio), "", upload.UploadID)

	ctx = s.enter(ctx, PhaseTranscode)
	audio, err := r.waiter.WaitForTranscode(ctx, upload.UploadID)
	if err != nil {
		return nil, err
	}
	s.recordLocator(ctx, upload.UploadID, audio.Locator)

	ctx = s.enter(ctx, PhaseMerge)
	next, chapter := playlist.AppendChapter(current, playlist.ChapterSpec{
		Title:       s.input.ChapterTitle,
		HeroName:    s.input.HeroName,
		DisplayIcon: r.displayIcon,
		Audio:       audio,
	})

	ctx = s.enter(ctx, PhaseRecompute)
	next = playlist.Recompute(next)

	ctx = s.enter(ctx, PhasePersist)
	if r.verify && !created {
		if err := s.verifyUnchanged(ctx, current); err != nil {
			return nil, err
		}
	}
	card, err := platform.FromPlaylist(next)
	if err != nil {
		return nil, services.Wrap(services.ErrPersist, PhasePersist, "encode card", "", err)
	}
	saved, err := r.content.Upsert(ctx, card)
	if err != nil {
		return nil, persistError("upsert", err)
	}
	cardID := saved.CardID
	if cardID == "" {
		cardID = next.ID
	}
	s.phase = PhaseDone

	return &Descriptor{
		RunID:           s.id,
		ArtifactID:      s.input.ArtifactID,
		Mode:            r.mode,
		CardID:          cardID,
		Title:           next.Title,
		Created:         created,
		ChapterKey:      chapter.Key,
		ChapterTitle:    chapter.Title,
		ChapterCount:    len(next.Chapters),
		DurationSeconds: next.AggregateDurationSeconds,
		FileSizeBytes:   next.AggregateFileSizeBytes,
		CoverSet:        coverSet,
	}, nil
}

// resolvePlaylist finds the target playlist and fetches it in full, or starts
// an empty one.
func (s *run) resolvePlaylist(ctx context.Context) (playlist.Playlist, bool, error) {
	r := s.r
	if r.mode == config.ModeCardPerStory {
		s.enter(ctx, PhaseCreate)
		chapterTitle := playlist.ChapterTitle(s.input.ChapterTitle, s.input.HeroName, "01")
		return playlist.New(fmt.Sprintf("%s – %s (%s)", s.title, chapterTitle, shortRunID(s.id))), true, nil
	}

	ctx = s.enter(ctx, PhaseLookup)
	entries, err := r.content.ListMine(ctx)
	if err != nil {
		return playlist.Playlist{}, false, lookupError("list content", err)
	}
	match, found := playlist.SelectByTitle(entries, s.title)
	if !found {
		s.enter(ctx, PhaseCreate)
		s.logger.Info("playlist not found, creating", logging.Int("cards_listed", len(entries)))
		return playlist.New(s.title), true, nil
	}
	if n := playlist.CountByTitle(entries, s.title); n > 1 {
		logging.WarnWithContext(s.logger, "multiple playlists share the title", "duplicate_title",
			logging.Int("matches", n),
			logging.CardID(match.ID),
			logging.Impact("the earliest created playlist is updated"),
		)
	}

	ctx = s.enter(ctx, PhaseFetch)
	card, err := r.content.Fetch(ctx, match.ID)
	if err != nil {
		return playlist.Playlist{}, false, lookupError("fetch card", err)
	}
	current, err := platform.ToPlaylist(card)
	if err != nil {
		return playlist.Playlist{}, false, lookupError("decode card", err)
	}
	if current.ID == "" {
		current.ID = match.ID
	}
	if current.Title == "" {
		current.Title = s.title
	}
	s.logger.Info("playlist fetched",
		logging.CardID(current.ID),
		logging.Int("chapter_count", len(current.Chapters)),
	)
	return current, false, nil
}

// uploadCover sets the playlist cover. Only cancellation is fatal.
func (s *run) uploadCover(ctx context.Context, current *playlist.Playlist) (bool, error) {
	ref, err := s.r.uploader.UploadImage(ctx, s.input.Image, s.input.ImageMIME)
	switch {
	case err == nil:
		current.Cover = ref.Locator
		s.recordUpload(ctx, string(playlist.MediaImage), ref.Locator, "")
		return true, nil
	case ctx.Err() != nil:
		return false, ctx.Err()
	case errors.Is(err, media.ErrUnsupportedFormat):
		s.logger.Info("cover skipped, unsupported image format", logging.Error(err))
		return false, nil
	default:
		logging.WarnWithContext(s.logger, "cover upload failed", "cover_upload_failed",
			logging.Error(err),
			logging.Impact("playlist saved without a new cover"),
		)
		return false, nil
	}
}

// verifyUnchanged re-reads the playlist and fails when another writer has
// modified it since it was fetched.
func (s *run) verifyUnchanged(ctx context.Context, fetched playlist.Playlist) error {
	card, err := s.r.content.Fetch(ctx, fetched.ID)
	if err != nil {
		return persistError("verify", err)
	}
	latest, err := platform.ToPlaylist(card)
	if err != nil {
		return persistError("verify", err)
	}
	if latest.UpdatedAt != fetched.UpdatedAt || len(latest.Chapters) != len(fetched.Chapters) {
		return services.Wrap(services.ErrConflict, PhasePersist, "verify",
			fmt.Sprintf("playlist %s changed remotely (%d chapters, updated %q)", fetched.ID, len(latest.Chapters), latest.UpdatedAt),
			nil)
	}
	return nil
}

func lookupError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if errors.Is(err, services.ErrAuth) {
		return services.Wrap(services.ErrAuth, PhaseLookup, operation, "", err)
	}
	detail := ""
	if code := platform.StatusCode(err); code != 0 {
		detail = fmt.Sprintf("status %d", code)
	}
	return services.Wrap(services.ErrLookup, PhaseLookup, operation, detail, err)
}

func persistError(operation string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	detail := ""
	if code := platform.StatusCode(err); code != 0 {
		detail = fmt.Sprintf("status %d", code)
	}
	return services.Wrap(services.ErrPersist, PhasePersist, operation, detail, err)
}
