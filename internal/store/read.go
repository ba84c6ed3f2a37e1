package store

import (
	"github.com/mv2s/mv2s/internal/compress"
	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// ErrFrameNotFound is returned when a requested frame id doesn't exist in
// the committed TOC (and, for the *IncludingPending variants, not in the
// pending overlay either).
var ErrFrameNotFound = errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "frame not found").
	WithField("id").WithRule("exists")

// FrameMeta returns the committed metadata for id, ignoring any
// not-yet-committed mutation.
func (s *Store) FrameMeta(id uint64) (*format.FrameMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.committedFrameLocked(id)
}

func (s *Store) committedFrameLocked(id uint64) (*format.FrameMeta, error) {
	if id >= uint64(len(s.toc.Frames)) {
		return nil, ErrFrameNotFound
	}
	out := *s.toc.Frames[id]
	return &out, nil
}

// FrameMetaIncludingPending returns id's metadata with any pending (not
// yet committed) put/delete/supersede overlaid (§4.8/§9.1).
func (s *Store) FrameMetaIncludingPending(id uint64) (*format.FrameMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fm, ok := s.overlay.PendingFrame(id); ok {
		out := *fm
		return &out, nil
	}
	fm, err := s.committedFrameLocked(id)
	if err != nil {
		return nil, err
	}
	return s.overlay.Apply(fm), nil
}

// FrameMetasIncludingPending batches FrameMetaIncludingPending, skipping
// ids that don't resolve to any frame rather than failing the whole call.
func (s *Store) FrameMetasIncludingPending(ids []uint64) ([]*format.FrameMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*format.FrameMeta, 0, len(ids))
	for _, id := range ids {
		var fm *format.FrameMeta
		if p, ok := s.overlay.PendingFrame(id); ok {
			c := *p
			fm = &c
		} else if committed, err := s.committedFrameLocked(id); err == nil {
			fm = s.overlay.Apply(committed)
		} else {
			continue
		}
		out = append(out, fm)
	}
	return out, nil
}

// FrameContent reads and decompresses id's stored payload as committed,
// verifying both the stored-bytes checksum (if present) and the canonical
// checksum before returning.
func (s *Store) FrameContent(id uint64) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	fm, err := s.committedFrameLocked(id)
	if err != nil {
		return nil, err
	}
	return s.readFrameContentLocked(fm)
}

// FrameContentIncludingPending is FrameContent, but resolves id against
// the pending overlay first.
func (s *Store) FrameContentIncludingPending(id uint64) ([]byte, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if fm, ok := s.overlay.PendingFrame(id); ok {
		return s.readFrameContentLocked(fm)
	}
	fm, err := s.committedFrameLocked(id)
	if err != nil {
		return nil, err
	}
	return s.readFrameContentLocked(fm)
}

func (s *Store) readFrameContentLocked(fm *format.FrameMeta) ([]byte, error) {
	if fm.PayloadLength == 0 {
		return nil, nil
	}

	stored := make([]byte, fm.PayloadLength)
	if err := filesys.ReadExactAt(s.file, int64(fm.PayloadOffset), stored); err != nil {
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read frame payload").
			WithPath(s.path).WithOffset(int64(fm.PayloadOffset))
	}

	if fm.StoredChecksum != nil {
		if codec.Sum256(stored) != *fm.StoredChecksum {
			return nil, errors.NewStorageError(nil, errors.ErrorCodeChecksumMismatch, "stored payload checksum mismatch").
				WithPath(s.path).WithOffset(int64(fm.PayloadOffset))
		}
	}

	canonicalLength := len(stored)
	if fm.CanonicalLength != nil {
		canonicalLength = int(*fm.CanonicalLength)
	}

	codecImpl, err := compress.ForEncoding(fm.CanonicalEncoding)
	if err != nil {
		return nil, err
	}
	canonical, err := codecImpl.Decompress(stored, canonicalLength)
	if err != nil {
		return nil, err
	}

	if codec.Sum256(canonical) != fm.CanonicalChecksum {
		return nil, errors.NewStorageError(nil, errors.ErrorCodeChecksumMismatch, "canonical payload checksum mismatch").
			WithPath(s.path).WithOffset(int64(fm.PayloadOffset))
	}

	return canonical, nil
}

// FramePreview returns up to maxBytes of id's decompressed canonical
// content, for UI-style previews. The whole payload is read, verified and
// decompressed before it is cut to maxBytes. maxBytes <= 0 returns the full
// content.
func (s *Store) FramePreview(id uint64, maxBytes int) ([]byte, error) {
	content, err := s.FrameContent(id)
	if err != nil {
		return nil, err
	}
	if maxBytes > 0 && len(content) > maxBytes {
		return content[:maxBytes], nil
	}
	return content, nil
}

// TimelineQuery filters Timeline results.
type TimelineQuery struct {
	// Track, if non-empty, restricts results to that track tag.
	Track string
	// Role, if non-nil, restricts results to that role.
	Role *format.Role
	// IncludeDeleted includes frames whose Status is Deleted. Off by default.
	IncludeDeleted bool
	// IncludePending overlays not-yet-committed mutations onto the result.
	IncludePending bool
	// Since/Until bound CreatedAtMs inclusively; zero means unbounded.
	Since int64
	Until int64
	// Limit caps the number of frames returned; 0 means unbounded.
	Limit int
}

// Timeline returns frames ordered by ascending id (and therefore by append
// order, and by CreatedAtMs for any single-writer sequence), matching q.
func (s *Store) Timeline(q TimelineQuery) ([]*format.FrameMeta, error) {
	if err := s.checkOpen(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*format.FrameMeta, 0)
	for _, committed := range s.toc.Frames {
		fm := committed
		if q.IncludePending {
			fm = s.overlay.Apply(committed)
		}
		if matchesTimeline(fm, q) {
			out = append(out, fm)
			if q.Limit > 0 && len(out) >= q.Limit {
				return out, nil
			}
		}
	}

	if q.IncludePending {
		for id := uint64(len(s.toc.Frames)); id < s.nextFrameID; id++ {
			fm, ok := s.overlay.PendingFrame(id)
			if !ok {
				continue
			}
			if matchesTimeline(fm, q) {
				out = append(out, fm)
				if q.Limit > 0 && len(out) >= q.Limit {
					return out, nil
				}
			}
		}
	}

	return out, nil
}

func matchesTimeline(fm *format.FrameMeta, q TimelineQuery) bool {
	if !q.IncludeDeleted && fm.Status == format.StatusDeleted {
		return false
	}
	if q.Track != "" && fm.Track != q.Track {
		return false
	}
	if q.Role != nil && fm.Role != *q.Role {
		return false
	}
	if q.Since != 0 && fm.CreatedAtMs < q.Since {
		return false
	}
	if q.Until != 0 && fm.CreatedAtMs > q.Until {
		return false
	}
	return true
}
