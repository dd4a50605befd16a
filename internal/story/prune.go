package story

import (
	"context"
	"os"
	"path/filepath"
	"time"

	"storyforge/internal/logging"
)

// PruneResult contains the outcome of an artifact cleanup pass.
type PruneResult struct {
	Removed []string
	Kept    int
	Errors  []PruneError
}

// PruneError pairs an artifact directory with its cleanup error.
type PruneError struct {
	Path  string
	Error error
}

// Prune removes artifact directories older than maxAge. Artifacts that never
// reached the platform are kept unless includePending is set; directories
// left behind by interrupted saves are always eligible.
func (s *ArtifactStore) Prune(ctx context.Context, maxAge time.Duration, includePending bool) PruneResult {
	result := PruneResult{}
	if s.dir == "" {
		return result
	}

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if !os.IsNotExist(err) {
			result.Errors = append(result.Errors, PruneError{Path: s.dir, Error: err})
		}
		return result
	}

	cutoff := s.now().Add(-maxAge)
	for _, entry := range entries {
		if ctx.Err() != nil {
			result.Errors = append(result.Errors, PruneError{Path: s.dir, Error: ctx.Err()})
			return result
		}
		if !entry.IsDir() {
			continue
		}
		dirPath := filepath.Join(s.dir, entry.Name())

		var created time.Time
		pending := false
		if m, err := readManifest(dirPath); err == nil {
			created = m.CreatedAt
			pending = m.CardID == ""
		} else {
			info, err := entry.Info()
			if err != nil {
				result.Errors = append(result.Errors, PruneError{Path: dirPath, Error: err})
				continue
			}
			created = info.ModTime()
		}

		if !created.Before(cutoff) || (pending && !includePending) {
			result.Kept++
			continue
		}

		if err := os.RemoveAll(dirPath); err != nil {
			result.Errors = append(result.Errors, PruneError{Path: dirPath, Error: err})
			s.logger.Warn("failed to remove story artifact",
				logging.String("path", dirPath),
				logging.Error(err),
				logging.Event("artifact_prune_failed"),
				logging.Hint("check staging_dir permissions"),
				logging.Impact("disk space not reclaimed"),
			)
			continue
		}
		result.Removed = append(result.Removed, dirPath)
		s.logger.Info("removed story artifact",
			logging.String("path", dirPath),
			logging.Duration("age", s.now().Sub(created)),
			logging.Bool("pending", pending),
			logging.Event("artifact_pruned"),
		)
	}
	return result
}
