package reconcile

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"storyforge/internal/services"
)

// Guard allows at most one reconciliation at a time, within this process and
// across processes sharing the state directory.
type Guard struct {
	mu   sync.Mutex
	lock *flock.Flock
	path string
}

// NewGuard returns a guard backed by a lock file at path. An empty path
// limits the guard to this process.
func NewGuard(path string) *Guard {
	g := &Guard{path: path}
	if path != "" {
		g.lock = flock.New(path)
	}
	return g
}

// Acquire takes the guard without waiting. It returns ErrBusy when another
// reconciliation holds it. The returned function releases the guard.
func (g *Guard) Acquire() (func(), error) {
	if !g.mu.TryLock() {
		return nil, services.Wrap(services.ErrBusy, phaseLock, "acquire", "another upload is running in this process", nil)
	}
	if g.lock == nil {
		return g.mu.Unlock, nil
	}
	if err := os.MkdirAll(filepath.Dir(g.path), 0o755); err != nil {
		g.mu.Unlock()
		return nil, services.Wrap(services.ErrConfiguration, phaseLock, "acquire", "create lock directory", err)
	}
	ok, err := g.lock.TryLock()
	if err != nil {
		g.mu.Unlock()
		return nil, fmt.Errorf("acquire reconcile lock: %w", err)
	}
	if !ok {
		g.mu.Unlock()
		return nil, services.Wrap(services.ErrBusy, phaseLock, "acquire", "another storyforge process is uploading", nil)
	}
	return func() {
		_ = g.lock.Unlock()
		g.mu.Unlock()
	}, nil
}

// Path returns the lock file location.
func (g *Guard) Path() string {
	return g.path
}
