// Package lockfile prevents two concurrent runs of the same pipeline
// via an exclusive advisory lock on a well-known path.
package lockfile

import (
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrAlreadyRunning is returned when another process holds the lock.
// The caller must abort immediately; retrying is left to the next
// scheduler invocation.
var ErrAlreadyRunning = eris.New("lockfile: already held by another process")

// Guard holds an exclusive lock for the duration of one run.
type Guard struct {
	fl *flock.Flock
}

// Acquire takes the lock at path without blocking. The file's content is
// not meaningful; only the OS-level lock on it matters.
func Acquire(path string) (*Guard, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, eris.Wrapf(err, "lockfile: create dir for %s", path)
	}

	fl := flock.New(path)
	locked, err := fl.TryLock()
	if err != nil {
		return nil, eris.Wrapf(err, "lockfile: try lock %s", path)
	}
	if !locked {
		return nil, eris.Wrapf(ErrAlreadyRunning, "lockfile: %s", path)
	}

	zap.L().Debug("lock acquired", zap.String("path", path))
	return &Guard{fl: fl}, nil
}

// Release unlocks and is safe to call on every exit path.
func (g *Guard) Release() {
	if g == nil || g.fl == nil {
		return
	}
	if err := g.fl.Unlock(); err != nil {
		zap.L().Warn("failed to release lock",
			zap.String("path", g.fl.Path()),
			zap.Error(err),
		)
	}
}
