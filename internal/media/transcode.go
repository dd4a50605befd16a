package media

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"storyforge/internal/logging"
	"storyforge/internal/platform"
	"storyforge/internal/playlist"
	"storyforge/internal/services"
)

const (
	phaseTranscode = "transcode"

	// DefaultPollInterval is the delay between transcode status polls.
	DefaultPollInterval = 2 * time.Second
	// DefaultMaxAttempts bounds the number of status polls.
	DefaultMaxAttempts = 30
)

// TranscodeAPI is the subset of the platform client the waiter needs.
type TranscodeAPI interface {
	TranscodeStatus(ctx context.Context, uploadID string) (platform.TranscodeStatus, error)
}

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

// TranscodeWaiterOption customises a TranscodeWaiter.
type TranscodeWaiterOption func(*TranscodeWaiter)

// WithPollInterval overrides the delay between polls.
func WithPollInterval(d time.Duration) TranscodeWaiterOption {
	return func(w *TranscodeWaiter) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithMaxAttempts overrides the poll ceiling.
func WithMaxAttempts(n int) TranscodeWaiterOption {
	return func(w *TranscodeWaiter) {
		if n > 0 {
			w.maxAttempts = n
		}
	}
}

// WithSleeper overrides how waits between polls are performed.
func WithSleeper(sleeper Sleeper) TranscodeWaiterOption {
	return func(w *TranscodeWaiter) {
		if sleeper != nil {
			w.sleep = sleeper
		}
	}
}

// WithTrackURLPrefix sets the scheme prepended to the transcoded hash.
func WithTrackURLPrefix(prefix string) TranscodeWaiterOption {
	return func(w *TranscodeWaiter) {
		w.trackPrefix = prefix
	}
}

// WithWaiterLogger attaches a logger.
func WithWaiterLogger(logger *slog.Logger) TranscodeWaiterOption {
	return func(w *TranscodeWaiter) {
		w.logger = logger
	}
}

// TranscodeWaiter polls the platform until uploaded audio has been transcoded.
type TranscodeWaiter struct {
	api         TranscodeAPI
	interval    time.Duration
	maxAttempts int
	trackPrefix string
	sleep       Sleeper
	logger      *slog.Logger
}

// NewTranscodeWaiter constructs a waiter with the default cadence.
func NewTranscodeWaiter(api TranscodeAPI, opts ...TranscodeWaiterOption) *TranscodeWaiter {
	w := &TranscodeWaiter{
		api:         api,
		interval:    DefaultPollInterval,
		maxAttempts: DefaultMaxAttempts,
		trackPrefix: "yoto:#",
		sleep:       sleepContext,
	}
	for _, opt := range opts {
		opt(w)
	}
	w.logger = logging.NewComponentLogger(w.logger, "transcode")
	return w
}

// WaitForTranscode polls until the upload carries a transcoded hash and
// returns the playable reference. It polls at most maxAttempts times and
// sleeps between polls, never after the last one.
func (w *TranscodeWaiter) WaitForTranscode(ctx context.Context, uploadID string) (playlist.MediaReference, error) {
	for attempt := 1; attempt <= w.maxAttempts; attempt++ {
		status, err := w.api.TranscodeStatus(ctx, uploadID)
		switch {
		case err == nil && status.Done():
			w.logger.Info("transcode complete",
				logging.String("upload_id", uploadID),
				logging.Int("attempt", attempt),
				logging.Float64("duration_seconds", status.Duration),
				logging.Int64("file_size_bytes", status.FileSize),
			)
			return playlist.MediaReference{
				Kind:            playlist.MediaAudio,
				Locator:         w.trackPrefix + status.SHA256,
				Format:          status.Format,
				DurationSeconds: status.Duration,
				FileSizeBytes:   status.FileSize,
				Channels:        status.Channels,
			}, nil
		case err != nil:
			if errors.Is(err, services.ErrAuth) {
				return playlist.MediaReference{}, services.Wrap(services.ErrAuth, phaseTranscode, "poll status", "", err)
			}
			if ctxErr := ctx.Err(); ctxErr != nil {
				return playlist.MediaReference{}, ctxErr
			}
			logging.WarnWithContext(w.logger, "transcode status poll failed", "transcode_poll_failed",
				logging.String("upload_id", uploadID),
				logging.Int("attempt", attempt),
				logging.Error(err),
				logging.Impact("counts as one poll attempt"),
			)
		default:
			w.logger.Debug("transcode pending",
				logging.String("upload_id", uploadID),
				logging.Int("attempt", attempt),
			)
		}

		if attempt == w.maxAttempts {
			break
		}
		if err := w.sleep(ctx, w.interval); err != nil {
			return playlist.MediaReference{}, err
		}
	}
	return playlist.MediaReference{}, services.Wrap(
		services.ErrTranscodeTimeout,
		phaseTranscode,
		"wait",
		fmt.Sprintf("upload %s not transcoded after %d attempts", uploadID, w.maxAttempts),
		nil,
	)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
