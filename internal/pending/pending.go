// Package pending tracks WAL-accepted-but-not-yet-committed frame
// mutations, backing the "including_pending" read path described in
// §4.8/§9.1: callers can see a frame immediately after Put/Delete/
// Supersede even though the TOC on disk won't reflect it until the next
// Commit.
package pending

import (
	"context"
	stdErrors "errors"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/errors"
)

// ErrPendingClosed is returned by every method once Close has run.
var ErrPendingClosed = stdErrors.New("operation failed: cannot access closed pending overlay")

// Config configures a new Overlay.
type Config struct {
	Logger *zap.SugaredLogger
}

// Overlay is the in-memory map of not-yet-committed mutations: new frames,
// deletions, and supersede edges. The store consults it on every read that
// asks for pending visibility and clears it after each successful Commit.
type Overlay struct {
	log *zap.SugaredLogger

	mu sync.RWMutex

	puts       map[uint64]*format.FrameMeta
	deletes    map[uint64]bool
	supersedes map[uint64]uint64 // supersededID -> supersedingID
	supersedBy map[uint64]uint64 // supersedingID -> supersededID

	closed atomic.Bool
}

// New creates an empty Overlay.
func New(_ context.Context, config *Config) (*Overlay, error) {
	if config == nil || config.Logger == nil {
		return nil, errors.NewValidationError(
			nil, errors.ErrorCodeInvalidInput, "pending overlay configuration is required",
		).WithField("config").WithRule("required").WithProvided(config)
	}

	return &Overlay{
		log:        config.Logger,
		puts:       make(map[uint64]*format.FrameMeta, 256),
		deletes:    make(map[uint64]bool, 64),
		supersedes: make(map[uint64]uint64, 64),
		supersedBy: make(map[uint64]uint64, 64),
	}, nil
}

// RecordPut registers a frame created by a not-yet-committed PutFrame.
func (o *Overlay) RecordPut(fm *format.FrameMeta) error {
	if o.closed.Load() {
		return ErrPendingClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.puts[fm.ID] = fm
	return nil
}

// RecordDelete marks id as deleted by a not-yet-committed DeleteFrame.
func (o *Overlay) RecordDelete(id uint64) error {
	if o.closed.Load() {
		return ErrPendingClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.deletes[id] = true
	if fm, ok := o.puts[id]; ok {
		fm.Status = format.StatusDeleted
	}
	return nil
}

// RecordSupersede registers a not-yet-committed supersede edge.
func (o *Overlay) RecordSupersede(supersededID, supersedingID uint64) error {
	if o.closed.Load() {
		return ErrPendingClosed
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.supersedes[supersededID] = supersedingID
	o.supersedBy[supersedingID] = supersededID
	if fm, ok := o.puts[supersededID]; ok {
		id := supersedingID
		fm.SupersededBy = &id
	}
	if fm, ok := o.puts[supersedingID]; ok {
		id := supersededID
		fm.Supersedes = &id
	}
	return nil
}

// Apply overlays pending state onto a committed frame's metadata for the
// "including_pending" read path: a pending delete or supersede of a frame
// that already exists in the committed TOC is reflected without mutating
// the caller's copy.
func (o *Overlay) Apply(committed *format.FrameMeta) *format.FrameMeta {
	o.mu.RLock()
	defer o.mu.RUnlock()

	out := *committed
	if o.deletes[committed.ID] {
		out.Status = format.StatusDeleted
	}
	if newID, ok := o.supersedes[committed.ID]; ok {
		out.SupersededBy = &newID
	}
	if oldID, ok := o.supersedBy[committed.ID]; ok {
		out.Supersedes = &oldID
	}
	return &out
}

// PendingFrame returns a not-yet-committed frame by id, and whether it exists.
func (o *Overlay) PendingFrame(id uint64) (*format.FrameMeta, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	fm, ok := o.puts[id]
	return fm, ok
}

// PendingFrames returns every not-yet-committed frame, in no particular order.
func (o *Overlay) PendingFrames() []*format.FrameMeta {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]*format.FrameMeta, 0, len(o.puts))
	for _, fm := range o.puts {
		out = append(out, fm)
	}
	return out
}

// Empty reports whether the overlay has no pending mutations at all.
func (o *Overlay) Empty() bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.puts) == 0 && len(o.deletes) == 0 && len(o.supersedes) == 0
}

// IsDeleted reports whether id has a pending (not-yet-committed) delete.
func (o *Overlay) IsDeleted(id uint64) bool {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.deletes[id]
}

// PendingSupersedes returns a copy of every not-yet-committed supersede
// edge, keyed supersededID -> supersedingID, so callers can fold it into
// the effective supersede graph before committing.
func (o *Overlay) PendingSupersedes() map[uint64]uint64 {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make(map[uint64]uint64, len(o.supersedes))
	for k, v := range o.supersedes {
		out[k] = v
	}
	return out
}

// Reset clears every pending mutation, called after a successful Commit
// folds them into the TOC.
func (o *Overlay) Reset() {
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.puts)
	clear(o.deletes)
	clear(o.supersedes)
	clear(o.supersedBy)
}

// Close permanently disables the overlay.
func (o *Overlay) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return ErrPendingClosed
	}
	o.log.Infow("closing pending overlay")
	o.mu.Lock()
	defer o.mu.Unlock()
	clear(o.puts)
	clear(o.deletes)
	clear(o.supersedes)
	clear(o.supersedBy)
	o.log.Infow("pending overlay closed")
	return nil
}
