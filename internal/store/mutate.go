package store

import (
	"github.com/mv2s/mv2s/internal/compress"
	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// PutRequest describes a frame to append via Put or PutBatch.
type PutRequest struct {
	AnchorAtMs *int64
	Kind       string
	Track      string
	URI        *string
	Title      *string
	Metadata   map[string]string
	SearchText *string
	Tags       []format.TagPair
	Labels     []string
	ContentDates []int64
	Role       format.Role
	ParentID   *uint64
	ChunkIndex *uint32
	ChunkCount *uint32

	// Payload is the frame's canonical (uncompressed) content. A nil or
	// empty payload is valid (a pure-metadata frame).
	Payload []byte
	// Encoding selects the stored representation; EncodingPlain stores
	// Payload verbatim. Zero value defaults to the store's configured
	// default compression.
	Encoding *format.CanonicalEncoding
}

// Put appends one frame. The frame becomes visible immediately through the
// *IncludingPending read path; it is durable and reflected in the TOC only
// after the next Commit.
func (s *Store) Put(req PutRequest) (uint64, error) {
	ids, err := s.PutBatch([]PutRequest{req})
	if err != nil {
		return 0, err
	}
	return ids[0], nil
}

// PutBatch appends multiple frames as a sequence of WAL records sharing no
// special atomicity beyond each record's own append discipline — callers
// that need all-or-nothing visibility should Commit immediately after.
func (s *Store) PutBatch(reqs []PutRequest) ([]uint64, error) {
	if err := s.checkWritable(); err != nil {
		return nil, err
	}
	if len(reqs) == 0 {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "put batch must not be empty").
			WithField("reqs").WithRule("required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]uint64, 0, len(reqs))
	for _, req := range reqs {
		id, err := s.putLocked(req)
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}

	s.maybeAutoCommitLocked()
	return ids, nil
}

func (s *Store) putLocked(req PutRequest) (uint64, error) {
	if !req.Role.Valid() {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "invalid frame role").
			WithField("role").WithProvided(req.Role)
	}

	encoding := format.EncodingPlain
	if req.Encoding != nil {
		encoding = *req.Encoding
	} else if enc, ok := parseEncodingName(s.opts.DefaultCompression); ok {
		encoding = enc
	}
	if !encoding.Valid() {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "invalid canonical encoding").
			WithField("encoding").WithProvided(encoding)
	}

	canonicalChecksum := codec.Sum256(req.Payload)

	var stored []byte
	var canonicalLength *uint64
	var storedChecksum *[32]byte
	if encoding == format.EncodingPlain {
		stored = req.Payload
	} else {
		cdc, err := compress.ForEncoding(encoding)
		if err != nil {
			return 0, err
		}
		compressed, err := cdc.Compress(req.Payload)
		if err != nil {
			return 0, err
		}
		stored = compressed
		length := uint64(len(req.Payload))
		canonicalLength = &length
		if len(stored) > 0 {
			sum := codec.Sum256(stored)
			storedChecksum = &sum
		}
	}

	id := s.nextFrameID
	payloadOffset := s.dataEnd
	payloadLength := uint64(len(stored))

	if payloadLength > 0 {
		if err := filesys.WriteAllAt(s.file, int64(payloadOffset), stored); err != nil {
			return 0, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write frame payload").
				WithPath(s.path).WithOffset(int64(payloadOffset))
		}
		s.dataEnd += payloadLength
	}

	createdAtMs := s.clockMs()

	wireMeta := format.FrameMetaSubset{
		AnchorAtMs: req.AnchorAtMs, Kind: req.Kind, Track: req.Track,
		URI: req.URI, Title: req.Title, Metadata: req.Metadata, SearchText: req.SearchText,
		Tags: req.Tags, Labels: req.Labels, ContentDates: req.ContentDates,
		Role: req.Role, ParentID: req.ParentID, ChunkIndex: req.ChunkIndex, ChunkCount: req.ChunkCount,
	}

	payload := &format.PutFramePayload{
		FrameID: id, CreatedAtMs: createdAtMs, Meta: wireMeta,
		PayloadOffset: payloadOffset, PayloadLength: payloadLength,
		CanonicalEncoding: encoding, CanonicalLength: canonicalLength,
		CanonicalChecksum: canonicalChecksum, StoredChecksum: storedChecksum,
	}
	encoded, err := payload.Encode()
	if err != nil {
		return 0, err
	}
	if _, err := s.ring.Append(format.OpPutFrame, encoded); err != nil {
		return 0, err
	}

	fm := &format.FrameMeta{
		ID: id, CreatedAtMs: createdAtMs, AnchorAtMs: req.AnchorAtMs,
		Kind: req.Kind, Track: req.Track,
		PayloadOffset: payloadOffset, PayloadLength: payloadLength,
		CanonicalChecksum: canonicalChecksum, CanonicalEncoding: encoding,
		CanonicalLength: canonicalLength, StoredChecksum: storedChecksum,
		URI: req.URI, Title: req.Title, Metadata: req.Metadata, SearchText: req.SearchText,
		Tags: req.Tags, Labels: req.Labels, ContentDates: req.ContentDates,
		Role: req.Role, ParentID: req.ParentID, ChunkIndex: req.ChunkIndex, ChunkCount: req.ChunkCount,
		Status: format.StatusActive,
	}
	if err := s.overlay.RecordPut(fm); err != nil {
		return 0, err
	}
	s.nextFrameID++

	return id, nil
}

// Delete marks id deleted (§4.9): monotonic, active never returns once
// deleted. Deleting an already-deleted or unknown id is accepted as a
// no-op WAL record, matching the teacher's idempotent-mutation style.
func (s *Store) Delete(id uint64) error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := &format.DeleteFramePayload{FrameID: id}
	if _, err := s.ring.Append(format.OpDeleteFrame, payload.Encode()); err != nil {
		return err
	}
	if err := s.overlay.RecordDelete(id); err != nil {
		return err
	}

	s.maybeAutoCommitLocked()
	return nil
}

// Supersede records that supersedingID replaces supersededID (§4.9):
// both ids must already be known (committed or pending in this
// transaction), the link must not conflict with one already recorded,
// and it must not close a cycle when walked through existing supersede
// links (§4.7). Commit re-validates the same invariants over the folded
// graph before writing.
func (s *Store) Supersede(supersededID, supersedingID uint64) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if supersededID == supersedingID {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "a frame cannot supersede itself").
			WithField("supersedingID").WithProvided(supersedingID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.validateSupersedeLocked(supersededID, supersedingID); err != nil {
		return err
	}

	payload := &format.SupersedeFramePayload{SupersededID: supersededID, SupersedingID: supersedingID}
	if _, err := s.ring.Append(format.OpSupersedeFrame, payload.Encode()); err != nil {
		return err
	}
	if err := s.overlay.RecordSupersede(supersededID, supersedingID); err != nil {
		return err
	}

	s.maybeAutoCommitLocked()
	return nil
}

// effectiveFrameLocked resolves id's current effective metadata, folding
// any pending mutation onto its committed form, or returning the pending
// frame directly when id was put but not yet committed. Returns nil if id
// is not known at all.
func (s *Store) effectiveFrameLocked(id uint64) *format.FrameMeta {
	if id < uint64(len(s.toc.Frames)) {
		return s.overlay.Apply(s.toc.Frames[id])
	}
	fm, ok := s.overlay.PendingFrame(id)
	if !ok {
		return nil
	}
	return fm
}

// frameKnownLocked reports whether id refers to a frame that already
// exists, either committed or pending in the current transaction.
func (s *Store) frameKnownLocked(id uint64) bool {
	return s.effectiveFrameLocked(id) != nil
}

// wouldCreateCycleLocked reports whether linking supersededID -> (superseded
// by) supersedingID would close a cycle, walking forward from
// supersedingID through every already-recorded SupersededBy edge up to
// frame_count hops (§4.7).
func (s *Store) wouldCreateCycleLocked(supersededID, supersedingID uint64) bool {
	visited := make(map[uint64]bool)
	cur := supersedingID
	for hops := uint64(0); hops <= s.nextFrameID; hops++ {
		if cur == supersededID {
			return true
		}
		if visited[cur] {
			return false
		}
		visited[cur] = true

		fm := s.effectiveFrameLocked(cur)
		if fm == nil || fm.SupersededBy == nil {
			return false
		}
		cur = *fm.SupersededBy
	}
	return true
}

// validateSupersedeLocked enforces the three append-time checks a
// supersede edge must pass (§4.7): both ids known, no existing conflicting
// link, and no cycle.
func (s *Store) validateSupersedeLocked(supersededID, supersedingID uint64) error {
	if !s.frameKnownLocked(supersededID) {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "supersede references unknown frame id").
			WithField("supersededID").WithProvided(supersededID)
	}
	if !s.frameKnownLocked(supersedingID) {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "supersede references unknown frame id").
			WithField("supersedingID").WithProvided(supersedingID)
	}

	if fm := s.effectiveFrameLocked(supersededID); fm != nil && fm.SupersededBy != nil && *fm.SupersededBy != supersedingID {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "frame already has a conflicting supersede link").
			WithField("supersededID").WithProvided(supersededID).WithExpected(*fm.SupersededBy)
	}

	if s.wouldCreateCycleLocked(supersededID, supersedingID) {
		return errors.NewSupersedeCycleError(supersededID, supersedingID)
	}

	return nil
}

// PutEmbedding attaches a dense vector to an existing frame id (§4.9). The
// store does not validate that id refers to a real frame at append time;
// the vector is simply carried in the WAL until staged into a vec segment.
func (s *Store) PutEmbedding(id uint64, vector []float32) error {
	if err := s.checkWritable(); err != nil {
		return err
	}
	if len(vector) == 0 {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "embedding vector must not be empty").
			WithField("vector").WithRule("required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	payload := &format.PutEmbeddingPayload{FrameID: id, Dimension: uint32(len(vector)), Vector: vector}
	if _, err := s.ring.Append(format.OpPutEmbedding, payload.Encode()); err != nil {
		return err
	}

	s.maybeAutoCommitLocked()
	return nil
}

// Commit folds every pending WAL-accepted mutation into a fresh TOC,
// appends the new TOC and footer after the last payload byte, writes a new
// header generation to the inactive header page, and checkpoints the WAL
// ring (§4.6, §4.7). The file only ever grows: prior TOC/footer bytes are
// left in place as dead bytes.
func (s *Store) Commit() error {
	if err := s.checkWritable(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	return s.commitLocked()
}

func (s *Store) commitLocked() error {
	if s.overlay.Empty() && len(s.pendingSegments) == 0 && len(s.pendingManifests) == 0 {
		return nil
	}

	newToc := s.buildNextToc()

	if err := checkSupersedeAcyclic(newToc.Frames); err != nil {
		return err
	}

	tocBytes, err := newToc.Encode()
	if err != nil {
		return err
	}
	tocChecksum, err := newToc.Checksum()
	if err != nil {
		return err
	}

	tocOffset := s.dataEnd
	if err := filesys.WriteAllAt(s.file, int64(tocOffset), tocBytes); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write toc").WithPath(s.path)
	}

	footerOffset := tocOffset + uint64(len(tocBytes))
	newFileGen := s.fileGeneration + 1
	footer := &format.Footer{
		TocLength: uint64(len(tocBytes)), TocChecksum: tocChecksum,
		Generation: newFileGen, WalCommittedSeq: s.ring.LastSequence(),
	}
	footerBytes, err := footer.Encode()
	if err != nil {
		return err
	}
	if err := filesys.WriteAllAt(s.file, int64(footerOffset), footerBytes); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write footer").WithPath(s.path)
	}

	if err := filesys.Fsync(s.file); err != nil {
		return errors.ClassifySyncError(err, s.path, int64(footerOffset))
	}

	s.ring.Checkpoint()

	nextHeaderOffset := otherHeaderOffset(s.activeHeaderOffset)
	newHeaderGen := s.headerGeneration + 1

	hp := &format.HeaderPage{
		FormatVersion: format.FormatVersion, SpecMajor: format.SpecMajor, SpecMinor: format.SpecMinor,
		HeaderPageGeneration: newHeaderGen, FileGeneration: newFileGen,
		FooterOffset: footerOffset,
		WalOffset:    s.walOffset, WalSize: s.walSize,
		WalWritePos: s.ring.WritePos(), WalCheckpointPos: s.ring.CheckpointPos(),
		WalCommittedSeq: s.ring.LastSequence(),
		TocChecksum:     tocChecksum,
		Replay: &format.ReplaySnapshot{
			LastAppliedSeq: s.ring.LastSequence(), FrameCount: uint64(len(newToc.Frames)), TocChecksum: tocChecksum,
		},
	}
	hpBytes, err := hp.Encode()
	if err != nil {
		return err
	}
	if err := filesys.WriteAllAt(s.file, int64(nextHeaderOffset), hpBytes); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write header page").
			WithPath(s.path).WithGeneration(newHeaderGen)
	}
	if err := filesys.Fsync(s.file); err != nil {
		return errors.ClassifySyncError(err, s.path, int64(nextHeaderOffset))
	}

	s.toc = newToc
	s.dataEnd = footerOffset + format.FooterSize
	s.activeHeaderOffset = nextHeaderOffset
	s.headerGeneration = newHeaderGen
	s.fileGeneration = newFileGen
	s.pendingSegments = nil
	s.pendingManifests = make(map[format.SegmentKind]*format.IndexManifest)
	s.overlay.Reset()

	s.log.Infow("commit complete", "file_generation", newFileGen, "frame_count", len(newToc.Frames),
		"toc_offset", tocOffset, "footer_offset", footerOffset)

	return nil
}

// buildNextToc folds the overlay's pending puts/deletes/supersedes onto
// the currently-committed TOC, plus any staged (not-yet-committed)
// segments and manifests.
func (s *Store) buildNextToc() *format.Toc {
	frames := make([]*format.FrameMeta, len(s.toc.Frames))
	for i, fm := range s.toc.Frames {
		frames[i] = s.overlay.Apply(fm)
	}
	pending := s.overlay.PendingFrames()
	byID := make(map[uint64]*format.FrameMeta, len(pending))
	for _, fm := range pending {
		byID[fm.ID] = fm
	}
	for i := uint64(len(frames)); i < s.nextFrameID; i++ {
		if fm, ok := byID[i]; ok {
			frames = append(frames, fm)
		}
	}

	segments := append([]*format.SegmentEntry{}, s.toc.Segments...)
	segments = append(segments, s.pendingSegments...)

	manifests := make([]*format.IndexManifest, 0, len(s.pendingManifests)+len(s.toc.Manifests))
	seen := make(map[format.SegmentKind]bool)
	for kind, im := range s.pendingManifests {
		manifests = append(manifests, im)
		seen[kind] = true
	}
	for _, im := range s.toc.Manifests {
		if !seen[im.Kind] {
			manifests = append(manifests, im)
		}
	}

	return &format.Toc{
		Version: format.TocVersion1, ReservedFlags: s.toc.ReservedFlags,
		Frames: frames, Segments: segments, Manifests: manifests,
	}
}

func (s *Store) maybeAutoCommitLocked() {
	if !s.ring.PressureExceeded() {
		return
	}
	s.log.Infow("wal pressure threshold exceeded, auto-committing")
	if err := s.commitLocked(); err != nil {
		s.log.Errorw("auto-commit failed", "error", err)
		return
	}
	s.ring.NoteAutoCommit()
}

func otherHeaderOffset(current uint64) uint64 {
	if current == format.HeaderOffsetA {
		return format.HeaderOffsetB
	}
	return format.HeaderOffsetA
}

func parseEncodingName(name string) (format.CanonicalEncoding, bool) {
	switch name {
	case "plain", "":
		return format.EncodingPlain, true
	case "lz4":
		return format.EncodingLz4, true
	case "deflate":
		return format.EncodingDeflate, true
	case "lzfse":
		return format.EncodingLzfse, true
	default:
		return format.EncodingPlain, false
	}
}
