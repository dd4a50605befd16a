package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"storyforge/internal/config"
)

// ErrRunNotFound is returned when a run ID is unknown.
var ErrRunNotFound = errors.New("run not found")

// Store persists reconciliation runs and uploaded media in SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open connects to the ledger database under the configured state directory.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("ensure directories: %w", err)
	}
	return OpenPath(cfg.LedgerPath())
}

// OpenPath connects to the ledger database at path and creates the schema if needed.
func OpenPath(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("ensure ledger directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	store := &Store{db: db, path: path}
	if err := store.initSchema(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// StartRun records a new running reconciliation.
func (s *Store) StartRun(ctx context.Context, run Run) error {
	if strings.TrimSpace(run.ID) == "" {
		return errors.New("start run: id required")
	}
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, playlist_title, mode, artifact_id, status, phase, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID,
		run.PlaylistTitle,
		run.Mode,
		nullableString(run.ArtifactID),
		RunRunning,
		nullableString(run.Phase),
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// UpdatePhase records the phase a running reconciliation has reached.
func (s *Store) UpdatePhase(ctx context.Context, runID, phase string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET phase = ?, updated_at = ? WHERE id = ?`,
		phase, timestamp(time.Now()), runID,
	)
	if err != nil {
		return fmt.Errorf("update run phase: %w", err)
	}
	return requireRow(res, runID)
}

// RecordUpload notes media a run put on the platform. It starts pending.
func (s *Store) RecordUpload(ctx context.Context, runID, kind, locator, uploadID string) error {
	now := timestamp(time.Now())
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO uploads (run_id, kind, locator, upload_id, status, created_at, updated_at)
         VALUES (?, ?, ?, ?, ?, ?, ?)`,
		runID, kind, nullableString(locator), nullableString(uploadID), UploadPending, now, now,
	)
	if err != nil {
		return fmt.Errorf("insert upload: %w", err)
	}
	return nil
}

// SetUploadLocator records where an upload ended up once the platform has
// processed it, so orphans can name the track.
func (s *Store) SetUploadLocator(ctx context.Context, runID, uploadID, locator string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE uploads SET locator = ?, updated_at = ? WHERE run_id = ? AND upload_id = ?`,
		nullableString(locator), timestamp(time.Now()), runID, uploadID,
	)
	if err != nil {
		return fmt.Errorf("update upload locator: %w", err)
	}
	return requireRow(res, runID)
}

// CompleteRun marks the run succeeded and its pending uploads referenced.
func (s *Store) CompleteRun(ctx context.Context, runID string, done Completion) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		now := timestamp(time.Now())
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, phase = 'done', card_id = ?, chapter_key = ?, chapter_title = ?, updated_at = ?
             WHERE id = ?`,
			RunSucceeded, nullableString(done.CardID), nullableString(done.ChapterKey), nullableString(done.ChapterTitle), now, runID,
		)
		if err != nil {
			return fmt.Errorf("complete run: %w", err)
		}
		if err := requireRow(res, runID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE uploads SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
			UploadReferenced, now, runID, UploadPending,
		); err != nil {
			return fmt.Errorf("mark uploads referenced: %w", err)
		}
		return nil
	})
}

// FailRun marks the run failed, turns its pending uploads into orphans, and
// returns them.
func (s *Store) FailRun(ctx context.Context, runID string, failure Failure) ([]Upload, error) {
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		now := timestamp(time.Now())
		res, err := tx.ExecContext(ctx,
			`UPDATE runs SET status = ?, phase = ?, error_kind = ?, error_message = ?, updated_at = ? WHERE id = ?`,
			RunFailed, nullableString(failure.Phase), nullableString(failure.Kind), nullableString(failure.Message), now, runID,
		)
		if err != nil {
			return fmt.Errorf("fail run: %w", err)
		}
		if err := requireRow(res, runID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE uploads SET status = ?, updated_at = ? WHERE run_id = ? AND status = ?`,
			UploadOrphaned, now, runID, UploadPending,
		); err != nil {
			return fmt.Errorf("mark uploads orphaned: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return s.queryUploads(ctx, `WHERE run_id = ? AND status = ? ORDER BY id`, runID, UploadOrphaned)
}

// GetRun returns one run.
func (s *Store) GetRun(ctx context.Context, runID string) (*Run, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, runID)
	run, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return nil, err
	}
	return run, nil
}

// ListRuns returns the most recent runs first. A non-positive limit returns all.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	query := `SELECT ` + runColumns + ` FROM runs ORDER BY created_at DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}
	return runs, rows.Err()
}

// ListOrphans returns uploaded media no persisted playlist references.
func (s *Store) ListOrphans(ctx context.Context) ([]Upload, error) {
	return s.queryUploads(ctx, `WHERE status = ? ORDER BY id`, UploadOrphaned)
}

// ResolveOrphans marks the given orphans handled, or every orphan when ids is
// empty. It returns the number of uploads updated.
func (s *Store) ResolveOrphans(ctx context.Context, ids ...int64) (int64, error) {
	now := timestamp(time.Now())
	query := `UPDATE uploads SET status = ?, updated_at = ? WHERE status = ?`
	args := []any{UploadResolved, now, UploadOrphaned}
	if len(ids) > 0 {
		placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")
		query += ` AND id IN (` + placeholders + `)`
		for _, id := range ids {
			args = append(args, id)
		}
	}
	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("resolve orphans: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("resolve orphans: %w", err)
	}
	return affected, nil
}

func (s *Store) queryUploads(ctx context.Context, where string, args ...any) ([]Upload, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+uploadColumns+` FROM uploads `+where, args...)
	if err != nil {
		return nil, fmt.Errorf("query uploads: %w", err)
	}
	defer rows.Close()

	var uploads []Upload
	for rows.Next() {
		upload, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		uploads = append(uploads, *upload)
	}
	return uploads, rows.Err()
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func requireRow(res sql.Result, runID string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	return nil
}
