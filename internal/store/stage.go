package store

import (
	"bytes"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// StageSegmentRequest describes one index segment's bytes to append to the
// data region, pending the next Commit folding it into the TOC.
type StageSegmentRequest struct {
	Kind        format.SegmentKind
	Bytes       []byte
	Compression format.CanonicalEncoding
}

// StageManifestRequest describes the manifest that accompanies a kind's
// staged segments (§3): at most one manifest per kind is ever committed at
// a time, and staging one identical to the currently committed manifest is
// a no-op.
type StageManifestRequest struct {
	Kind             format.SegmentKind
	Count            uint64
	FormatVersion    uint32
	SimilarityMetric *string
}

// StageLexIndex appends a lexical index segment's bytes to the data region
// and registers its catalog entry and manifest for the next Commit.
func (s *Store) StageLexIndex(seg StageSegmentRequest, manifest StageManifestRequest) error {
	if seg.Kind != format.SegmentKindLex || manifest.Kind != format.SegmentKindLex {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "StageLexIndex requires lex-kind segment and manifest").
			WithField("kind")
	}
	if manifest.SimilarityMetric != nil {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "a lex manifest must not carry a similarity metric").
			WithField("similarityMetric")
	}
	return s.stageIndex(seg, manifest)
}

// StageVecIndex appends a vector index segment's bytes to the data region
// and registers its catalog entry and manifest for the next Commit.
func (s *Store) StageVecIndex(seg StageSegmentRequest, manifest StageManifestRequest) error {
	if seg.Kind != format.SegmentKindVec || manifest.Kind != format.SegmentKindVec {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "StageVecIndex requires vec-kind segment and manifest").
			WithField("kind")
	}
	return s.stageIndex(seg, manifest)
}

func (s *Store) stageIndex(seg StageSegmentRequest, manifest StageManifestRequest) error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.committedManifestLocked(manifest.Kind); ok {
		if manifestUnchanged(existing, manifest, seg) {
			s.log.Infow("staged index identical to committed manifest, skipping", "kind", seg.Kind.String())
			return nil
		}
	}

	checksum := codec.Sum256(seg.Bytes)
	offset := s.dataEnd

	if len(seg.Bytes) > 0 {
		if err := filesys.WriteAllAt(s.file, int64(offset), seg.Bytes); err != nil {
			return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write staged segment bytes").
				WithPath(s.path).WithOffset(int64(offset))
		}
		s.dataEnd += uint64(len(seg.Bytes))
	}

	ordinal := uint32(0)
	for _, existing := range s.toc.Segments {
		if existing.Kind == seg.Kind && existing.Ordinal >= ordinal {
			ordinal = existing.Ordinal + 1
		}
	}
	for _, pending := range s.pendingSegments {
		if pending.Kind == seg.Kind && pending.Ordinal >= ordinal {
			ordinal = pending.Ordinal + 1
		}
	}

	entry := &format.SegmentEntry{
		SegmentID: s.nextSegmentIDLocked(), Kind: seg.Kind,
		Offset: offset, Length: uint64(len(seg.Bytes)),
		Checksum: checksum, Compression: seg.Compression, Ordinal: ordinal,
	}
	s.pendingSegments = append(s.pendingSegments, entry)

	s.pendingManifests[manifest.Kind] = &format.IndexManifest{
		Kind: manifest.Kind, Count: manifest.Count, Offset: offset, Length: uint64(len(seg.Bytes)),
		Checksum: checksum, FormatVersion: manifest.FormatVersion, SimilarityMetric: manifest.SimilarityMetric,
	}

	s.log.Infow("staged index segment", "kind", seg.Kind.String(), "bytes", len(seg.Bytes), "offset", offset)
	return nil
}

func (s *Store) committedManifestLocked(kind format.SegmentKind) (*format.IndexManifest, bool) {
	for _, im := range s.toc.Manifests {
		if im.Kind == kind {
			return im, true
		}
	}
	return nil, false
}

func (s *Store) nextSegmentIDLocked() uint64 {
	maxID := uint64(0)
	have := false
	for _, e := range s.toc.Segments {
		if !have || e.SegmentID >= maxID {
			maxID = e.SegmentID
			have = true
		}
	}
	for _, e := range s.pendingSegments {
		if !have || e.SegmentID >= maxID {
			maxID = e.SegmentID
			have = true
		}
	}
	if !have {
		return 0
	}
	return maxID + 1
}

func manifestUnchanged(existing *format.IndexManifest, req StageManifestRequest, seg StageSegmentRequest) bool {
	if existing.Count != req.Count || existing.FormatVersion != req.FormatVersion {
		return false
	}
	if existing.Length != uint64(len(seg.Bytes)) {
		return false
	}
	if !bytes.Equal(existing.Checksum[:], codec.Sum256(seg.Bytes)[:]) {
		return false
	}
	if (existing.SimilarityMetric == nil) != (req.SimilarityMetric == nil) {
		return false
	}
	if existing.SimilarityMetric != nil && *existing.SimilarityMetric != *req.SimilarityMetric {
		return false
	}
	return true
}
