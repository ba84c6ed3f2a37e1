package store

import (
	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/internal/wal"
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// Stats summarizes a store handle's current state for operators and the
// public facade.
type Stats struct {
	InstanceID     string
	Path           string
	FileGeneration uint64
	FrameCount     int
	SegmentCount   int
	DataEnd        uint64
	PendingPuts    int
}

// Stats returns a snapshot of the store's committed and pending state.
func (s *Store) Stats() (Stats, error) {
	if err := s.checkOpen(); err != nil {
		return Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	return Stats{
		InstanceID: s.opts.InstanceID, Path: s.path, FileGeneration: s.fileGeneration,
		FrameCount: len(s.toc.Frames), SegmentCount: len(s.toc.Segments), DataEnd: s.dataEnd,
		PendingPuts: len(s.overlay.PendingFrames()),
	}, nil
}

// WalStats exposes the write-ahead log ring's resume positions and
// lifetime diagnostic counters.
func (s *Store) WalStats() (wal.Stats, error) {
	if err := s.checkOpen(); err != nil {
		return wal.Stats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.ring.Stats(), nil
}

// VerifyReport is the result of Verify: whether the store passed, and the
// specific checks that failed, if any.
type VerifyReport struct {
	OK     bool
	Issues []string
}

// Verify checks the currently-committed TOC's structural invariants
// (§8): dense frame ids, sorted/non-overlapping segment catalog, and
// supersede acyclicity. When deep is true, it additionally re-reads and
// re-hashes every frame's stored and canonical payload bytes.
func (s *Store) Verify(deep bool) (VerifyReport, error) {
	if err := s.checkOpen(); err != nil {
		return VerifyReport{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	report := VerifyReport{OK: true}

	for i, fm := range s.toc.Frames {
		if fm.ID != uint64(i) {
			report.OK = false
			report.Issues = append(report.Issues, errors.NewTocError(nil, errors.ErrorCodeInvalidToc,
				"frame id is not dense").WithFrameID(fm.ID).Error())
		}
	}

	if err := format.ValidateCatalogSorted(s.toc.Segments); err != nil {
		report.OK = false
		report.Issues = append(report.Issues, err.Error())
	}

	if err := checkSupersedeAcyclic(s.toc.Frames); err != nil {
		report.OK = false
		report.Issues = append(report.Issues, err.Error())
	}

	if deep {
		for _, fm := range s.toc.Frames {
			if _, err := s.readFrameContentLocked(fm); err != nil {
				report.OK = false
				report.Issues = append(report.Issues, err.Error())
			}
		}
		for _, se := range s.toc.Segments {
			if err := s.verifySegmentChecksumLocked(se); err != nil {
				report.OK = false
				report.Issues = append(report.Issues, err.Error())
			}
		}
	}

	return report, nil
}

func (s *Store) verifySegmentChecksumLocked(se *format.SegmentEntry) error {
	if se.Length == 0 {
		return nil
	}
	buf := make([]byte, se.Length)
	if err := filesys.ReadExactAt(s.file, int64(se.Offset), buf); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to read segment bytes").
			WithPath(s.path).WithOffset(int64(se.Offset))
	}
	if codec.Sum256(buf) != se.Checksum {
		return errors.NewStorageError(nil, errors.ErrorCodeChecksumMismatch, "segment checksum mismatch").
			WithPath(s.path).WithOffset(int64(se.Offset))
	}
	return nil
}

// checkSupersedeAcyclic walks every frame's Supersedes chain in frames,
// failing if it ever revisits a frame (a cycle) instead of terminating.
// Called both by Verify, against the currently-committed TOC, and by
// commitLocked, against the freshly-folded TOC about to be written.
func checkSupersedeAcyclic(frames []*format.FrameMeta) error {
	for _, fm := range frames {
		visited := make(map[uint64]bool)
		cur := fm
		for cur.Supersedes != nil {
			if visited[cur.ID] {
				return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "supersede chain contains a cycle").
					WithFrameID(fm.ID)
			}
			visited[cur.ID] = true
			nextID := *cur.Supersedes
			if nextID >= uint64(len(frames)) {
				return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "supersede references unknown frame id").
					WithFrameID(fm.ID)
			}
			cur = frames[nextID]
		}
	}
	return nil
}
