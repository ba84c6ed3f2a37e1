// Package store implements the store engine lifecycle (§4.7, §6):
// Create, Open (with recovery), Put/PutBatch/Delete/Supersede, Commit,
// Close, Verify, and the read paths that back the public facade.
package store

import (
	stdErrors "errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/internal/pending"
	"github.com/mv2s/mv2s/internal/recovery"
	"github.com/mv2s/mv2s/internal/wal"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filelock"
	"github.com/mv2s/mv2s/pkg/filesys"
	"github.com/mv2s/mv2s/pkg/options"
)

// ErrStoreClosed is returned by every operation once Close has run.
var ErrStoreClosed = stdErrors.New("operation failed: cannot access closed store")

// Store is the single-writer, many-reader handle onto one store file.
type Store struct {
	mu sync.RWMutex

	path string
	file *os.File
	lock *filelock.Lock

	opts options.Options
	log  *zap.SugaredLogger

	closed atomic.Bool

	// activeHeaderOffset is the offset of the header page that currently
	// holds the winning generation; the next commit writes the other page.
	activeHeaderOffset uint64
	headerGeneration   uint64
	fileGeneration     uint64

	walOffset uint64
	walSize   uint64

	// dataEnd is the append cursor: the byte offset at which the next Put's
	// payload, or the next Commit's TOC+footer, will be written. The file
	// only ever grows at this position; nothing here is overwritten.
	dataEnd uint64

	toc *format.Toc

	ring     *wal.Ring
	overlay  *pending.Overlay
	nextFrameID uint64

	// pendingSegments/pendingManifests hold index-stage material not yet
	// folded into the committed TOC by a Commit (§4.9 StageLexIndex/
	// StageVecIndex); cleared by each successful Commit.
	pendingSegments  []*format.SegmentEntry
	pendingManifests map[format.SegmentKind]*format.IndexManifest
}

// Create initializes a brand-new store file at path: two identical header
// pages (generations 1 and 0), an empty TOC, and its footer (§4.7).
func Create(path string, opts options.Options, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	file, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_RDWR, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path)
	}

	lock, err := filelock.TryAcquire(file, filelock.Exclusive)
	if err != nil {
		file.Close()
		return nil, err
	}

	walOffset := uint64(format.HeaderRegionEnd)
	walSize := opts.WalSize

	emptyToc := &format.Toc{Version: format.TocVersion1}
	tocBytes, err := emptyToc.Encode()
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}
	tocChecksum, err := emptyToc.Checksum()
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}

	tocOffset := walOffset + walSize
	footerOffset := tocOffset + uint64(len(tocBytes))

	footer := &format.Footer{TocLength: uint64(len(tocBytes)), TocChecksum: tocChecksum, Generation: 1, WalCommittedSeq: 0}
	footerBytes, err := footer.Encode()
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}

	hpA := &format.HeaderPage{
		FormatVersion: format.FormatVersion, SpecMajor: format.SpecMajor, SpecMinor: format.SpecMinor,
		HeaderPageGeneration: 1, FileGeneration: 1, FooterOffset: footerOffset,
		WalOffset: walOffset, WalSize: walSize,
		TocChecksum: tocChecksum,
		Replay:      &format.ReplaySnapshot{TocChecksum: tocChecksum},
	}
	hpB := *hpA
	hpB.HeaderPageGeneration = 0

	hpABytes, err := hpA.Encode()
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}
	hpBBytes, err := hpB.Encode()
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}

	if err := filesys.WriteAllAt(file, format.HeaderOffsetA, hpABytes); err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write header page A").WithPath(path)
	}
	if err := filesys.WriteAllAt(file, format.HeaderOffsetB, hpBBytes); err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write header page B").WithPath(path)
	}
	if err := filesys.WriteAllAt(file, int64(tocOffset), tocBytes); err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write initial toc").WithPath(path)
	}
	if err := filesys.WriteAllAt(file, int64(footerOffset), footerBytes); err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to write initial footer").WithPath(path)
	}
	if err := filesys.Fsync(file); err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, errors.ClassifySyncError(err, path, 0)
	}

	overlay, err := pending.New(nil, &pending.Config{Logger: log})
	if err != nil {
		cleanupFailedCreate(file, lock, path)
		return nil, err
	}

	ring := wal.New(wal.Config{
		File: file, Region: walOffset, Size: walSize,
		AutoCommitThresholdPercent: opts.AutoCommitThresholdPercent,
		Logger:                     log,
	})

	log.Infow("created store file", "path", path, "wal_size", walSize, "footer_offset", footerOffset)

	return &Store{
		path: path, file: file, lock: lock,
		opts: opts, log: log,
		activeHeaderOffset: format.HeaderOffsetA,
		headerGeneration:   1, fileGeneration: 1,
		walOffset: walOffset, walSize: walSize,
		dataEnd:          footerOffset + format.FooterSize,
		toc:              emptyToc,
		ring:             ring,
		overlay:          overlay,
		nextFrameID:      0,
		pendingManifests: make(map[format.SegmentKind]*format.IndexManifest),
	}, nil
}

func cleanupFailedCreate(file *os.File, lock *filelock.Lock, path string) {
	lock.Release()
	file.Close()
	os.Remove(path)
}

// Open recovers an existing store file per §4.7/§4.8 and returns a handle
// ready to serve reads and, unless opts.ReadOnly, writes.
func Open(path string, opts options.Options, log *zap.SugaredLogger) (*Store, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}

	flags := os.O_RDWR
	if opts.ReadOnly {
		flags = os.O_RDONLY
	}
	file, err := os.OpenFile(path, flags, 0644)
	if err != nil {
		return nil, errors.ClassifyFileOpenError(err, path)
	}

	lockMode := filelock.Exclusive
	if opts.ReadOnly {
		lockMode = filelock.Shared
	}
	lock, err := filelock.TryAcquire(file, lockMode)
	if err != nil {
		file.Close()
		return nil, err
	}

	info, err := file.Stat()
	if err != nil {
		lock.Release()
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to stat store file").WithPath(path)
	}

	result, err := recovery.Bootstrap(file, info.Size(), log)
	if err != nil {
		lock.Release()
		file.Close()
		return nil, err
	}

	if opts.Repair {
		if err := repairTrailingBytes(file, info.Size(), result, log); err != nil {
			lock.Release()
			file.Close()
			return nil, err
		}
	}

	overlay, err := pending.New(nil, &pending.Config{Logger: log})
	if err != nil {
		lock.Release()
		file.Close()
		return nil, err
	}

	nextFrameID := uint64(len(result.Toc.Frames))
	for _, pm := range result.ScanResult.Pending {
		applyPendingMutation(overlay, pm, &nextFrameID)
	}

	ring := wal.New(wal.Config{
		File: file, Region: result.HeaderPage.WalOffset, Size: result.HeaderPage.WalSize,
		WritePos: result.ScanResult.WritePos, CheckpointPos: result.ScanResult.CheckpointPos,
		LastSequence:               result.ScanResult.LastSequence,
		AutoCommitThresholdPercent: opts.AutoCommitThresholdPercent,
		Logger:                     log,
	})

	info, err = file.Stat()
	if err != nil {
		lock.Release()
		file.Close()
		return nil, errors.NewStorageError(err, errors.ErrorCodeIO, "failed to re-stat store file").WithPath(path)
	}

	s := &Store{
		path: path, file: file, lock: lock,
		opts: opts, log: log,
		activeHeaderOffset: result.HeaderOffset,
		headerGeneration:   result.HeaderPage.HeaderPageGeneration,
		fileGeneration:     result.HeaderPage.FileGeneration,
		walOffset:          result.HeaderPage.WalOffset,
		walSize:            result.HeaderPage.WalSize,
		dataEnd:            uint64(info.Size()),
		toc:                result.Toc,
		ring:               ring,
		overlay:            overlay,
		nextFrameID:        nextFrameID,
		pendingManifests:   make(map[format.SegmentKind]*format.IndexManifest),
	}

	log.Infow("opened store file", "path", path, "frame_count", len(result.Toc.Frames),
		"scan_skipped", result.ScanSkipped, "next_frame_id", nextFrameID)

	return s, nil
}

// putPayloadToFrameMeta reconstructs the FrameMeta a PutFrame WAL record
// implies, for replay into the pending overlay on Open (§4.8).
func putPayloadToFrameMeta(p *format.PutFramePayload) *format.FrameMeta {
	return &format.FrameMeta{
		ID: p.FrameID, CreatedAtMs: p.CreatedAtMs, AnchorAtMs: p.Meta.AnchorAtMs,
		Kind: p.Meta.Kind, Track: p.Meta.Track,
		PayloadOffset: p.PayloadOffset, PayloadLength: p.PayloadLength,
		CanonicalChecksum: p.CanonicalChecksum, CanonicalEncoding: p.CanonicalEncoding,
		CanonicalLength: p.CanonicalLength, StoredChecksum: p.StoredChecksum,
		URI: p.Meta.URI, Title: p.Meta.Title, Metadata: p.Meta.Metadata, SearchText: p.Meta.SearchText,
		Tags: p.Meta.Tags, Labels: p.Meta.Labels, ContentDates: p.Meta.ContentDates,
		Role: p.Meta.Role, ParentID: p.Meta.ParentID, ChunkIndex: p.Meta.ChunkIndex, ChunkCount: p.Meta.ChunkCount,
		Status: format.StatusActive,
	}
}

func applyPendingMutation(overlay *pending.Overlay, pm wal.PendingMutation, nextFrameID *uint64) {
	switch pm.Opcode {
	case format.OpPutFrame:
		put, err := format.DecodePutFramePayload(pm.Payload)
		if err != nil {
			return
		}
		fm := putPayloadToFrameMeta(put)
		overlay.RecordPut(fm)
		if fm.ID >= *nextFrameID {
			*nextFrameID = fm.ID + 1
		}
	case format.OpDeleteFrame:
		del, err := format.DecodeDeleteFramePayload(pm.Payload)
		if err != nil {
			return
		}
		overlay.RecordDelete(del.FrameID)
	case format.OpSupersedeFrame:
		sup, err := format.DecodeSupersedeFramePayload(pm.Payload)
		if err != nil {
			return
		}
		overlay.RecordSupersede(sup.SupersededID, sup.SupersedingID)
	}
}

func repairTrailingBytes(file *os.File, size int64, result *recovery.Result, log *zap.SugaredLogger) error {
	truncateAt := int64(result.FooterOffset + format.FooterSize)
	// Pending puts wrote their payloads past the footer; keep those bytes.
	for _, pm := range result.ScanResult.Pending {
		if pm.Opcode != format.OpPutFrame {
			continue
		}
		put, err := format.DecodePutFramePayload(pm.Payload)
		if err != nil {
			continue
		}
		if pendingEnd := int64(put.PayloadOffset + put.PayloadLength); pendingEnd > truncateAt {
			truncateAt = pendingEnd
		}
	}
	if size <= truncateAt {
		return nil
	}
	log.Infow("repair: truncating trailing bytes", "from", truncateAt, "to", size)
	if err := filesys.Truncate(file, truncateAt); err != nil {
		return errors.NewStorageError(err, errors.ErrorCodeIO, "repair truncate failed")
	}
	return nil
}

// Close attempts a final, best-effort commit of any uncommitted local
// mutations, then releases the advisory lock and closes the underlying
// file handle (§4.7). A commit failure here does not abort Close: any WAL
// records left pending still roll forward on the next Open.
func (s *Store) Close() error {
	if !s.closed.CompareAndSwap(false, true) {
		return ErrStoreClosed
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.log.Infow("closing store", "path", s.path)

	if !s.opts.ReadOnly {
		if err := s.commitLocked(); err != nil {
			s.log.Errorw("final commit on close failed, uncommitted mutations remain pending", "error", err)
		}
	}

	var firstErr error
	if err := s.overlay.Close(); err != nil {
		firstErr = err
	}
	if err := s.lock.Release(); err != nil && firstErr == nil {
		firstErr = err
	}
	if err := s.file.Close(); err != nil && firstErr == nil {
		firstErr = err
	}

	s.log.Infow("store closed", "path", s.path)
	return firstErr
}

func (s *Store) clockMs() int64 {
	return time.Now().UnixMilli()
}

func (s *Store) checkOpen() error {
	if s.closed.Load() {
		return ErrStoreClosed
	}
	return nil
}

func (s *Store) checkWritable() error {
	if err := s.checkOpen(); err != nil {
		return err
	}
	if s.opts.ReadOnly {
		return errors.NewValidationError(nil, errors.ErrorCodeInvalidInput, "store was opened read-only").
			WithField("readOnly").WithProvided(true)
	}
	return nil
}
