// Package filelock provides an advisory file lock with shared and
// exclusive modes, try and blocking acquisition, and upgrade/downgrade
// between modes, used by the store engine to enforce single-writer,
// many-reader access (§4.3, §5).
//
// The lock is taken directly on the store's file descriptor via the
// platform's native advisory-locking primitive (flock on unix, LockFileEx
// on windows), rather than a side lock file, so that the lock's lifetime is
// exactly the lifetime of the open handle.
package filelock

import (
	"context"
	"os"
	"time"

	"github.com/mv2s/mv2s/pkg/errors"
)

// Mode is the kind of advisory lock held.
type Mode int

const (
	// Shared allows any number of concurrent shared holders and no
	// exclusive holder; used by read-only opens.
	Shared Mode = iota
	// Exclusive allows exactly one holder and no concurrent shared
	// holders; used by the single writer.
	Exclusive
)

// pollInterval is how often a blocking Acquire retries a try-lock while
// waiting for a context to be cancelled or the lock to become available.
// Flock itself has no cancelable blocking form, so a blocking acquisition
// is built out of repeated non-blocking attempts.
const pollInterval = 10 * time.Millisecond

// Lock represents a held advisory lock on a file.
type Lock struct {
	file *os.File
	mode Mode
}

// TryAcquire attempts to acquire the lock in the given mode without
// blocking, returning an IO error immediately if it's already held
// incompatibly by another process.
func TryAcquire(file *os.File, mode Mode) (*Lock, error) {
	if err := tryFlock(file, mode); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to acquire file lock").
			WithPath(file.Name()).
			WithDetail("mode", modeName(mode))
	}
	return &Lock{file: file, mode: mode}, nil
}

// Acquire blocks (subject to ctx cancellation) until the lock can be taken
// in the given mode.
func Acquire(ctx context.Context, file *os.File, mode Mode) (*Lock, error) {
	for {
		lock, err := TryAcquire(file, mode)
		if err == nil {
			return lock, nil
		}
		select {
		case <-ctx.Done():
			return nil, errors.NewStorageError(ctx.Err(), errors.ErrorCodeIO, "timed out waiting for file lock").
				WithPath(file.Name()).
				WithDetail("mode", modeName(mode))
		case <-time.After(pollInterval):
		}
	}
}

// Upgrade converts a held Shared lock into an Exclusive one. It does not
// check how the file was opened; it fails only when the platform lock call
// refuses the exclusive lock.
func (l *Lock) Upgrade() error {
	if l.mode == Exclusive {
		return nil
	}
	if err := tryFlock(l.file, Exclusive); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to upgrade file lock to exclusive").
			WithPath(l.file.Name())
	}
	l.mode = Exclusive
	return nil
}

// Downgrade converts a held Exclusive lock into a Shared one.
func (l *Lock) Downgrade() error {
	if l.mode == Shared {
		return nil
	}
	if err := tryFlock(l.file, Shared); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to downgrade file lock to shared").
			WithPath(l.file.Name())
	}
	l.mode = Shared
	return nil
}

// Mode returns the lock's current mode.
func (l *Lock) Mode() Mode {
	return l.mode
}

// Release releases the lock. The underlying file is left open; callers
// close it separately.
func (l *Lock) Release() error {
	return unlockFlock(l.file)
}

func modeName(mode Mode) string {
	if mode == Exclusive {
		return "exclusive"
	}
	return "shared"
}
