// Package mv2s is the public entry point to the single-file store engine:
// a durable, checksummed, single-writer/many-reader content store backed
// by one on-disk file (§6 External Interfaces).
package mv2s

import (
	"context"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/internal/store"
	"github.com/mv2s/mv2s/internal/wal"
	"github.com/mv2s/mv2s/pkg/logger"
	"github.com/mv2s/mv2s/pkg/options"
)

// Instance is the primary entry point for interacting with a store file.
// It encapsulates the internal store engine handling persistence and
// recovery, and the configuration options for this handle.
type Instance struct {
	store   *store.Store
	options options.Options
}

// Create initializes a brand-new store file at path and returns a handle
// ready for writes.
func Create(_ context.Context, path, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)
	o := options.New(opts...)

	s, err := store.Create(path, o, log)
	if err != nil {
		return nil, err
	}
	return &Instance{store: s, options: o}, nil
}

// Open recovers an existing store file at path (§4.7/§4.8) and returns a
// handle ready to serve reads and, unless WithReadOnly was set, writes.
func Open(_ context.Context, path, service string, opts ...options.OptionFunc) (*Instance, error) {
	log := logger.New(service)
	o := options.New(opts...)

	s, err := store.Open(path, o, log)
	if err != nil {
		return nil, err
	}
	return &Instance{store: s, options: o}, nil
}

// PutRequest mirrors store.PutRequest at the public boundary.
type PutRequest = store.PutRequest

// TimelineQuery mirrors store.TimelineQuery at the public boundary.
type TimelineQuery = store.TimelineQuery

// StageSegmentRequest mirrors store.StageSegmentRequest at the public boundary.
type StageSegmentRequest = store.StageSegmentRequest

// StageManifestRequest mirrors store.StageManifestRequest at the public boundary.
type StageManifestRequest = store.StageManifestRequest

// VerifyReport mirrors store.VerifyReport at the public boundary.
type VerifyReport = store.VerifyReport

// Put appends one frame, visible immediately through the pending read
// path and durable only after the next Commit.
func (i *Instance) Put(_ context.Context, req PutRequest) (uint64, error) {
	return i.store.Put(req)
}

// PutBatch appends multiple frames.
func (i *Instance) PutBatch(_ context.Context, reqs []PutRequest) ([]uint64, error) {
	return i.store.PutBatch(reqs)
}

// Delete marks id deleted.
func (i *Instance) Delete(_ context.Context, id uint64) error {
	return i.store.Delete(id)
}

// Supersede records that supersedingID replaces supersededID.
func (i *Instance) Supersede(_ context.Context, supersededID, supersedingID uint64) error {
	return i.store.Supersede(supersededID, supersedingID)
}

// PutEmbedding attaches a dense vector to an existing frame id.
func (i *Instance) PutEmbedding(_ context.Context, id uint64, vector []float32) error {
	return i.store.PutEmbedding(id, vector)
}

// Commit folds every pending mutation into a fresh, durable TOC.
func (i *Instance) Commit(_ context.Context) error {
	return i.store.Commit()
}

// Close releases the instance's resources. Uncommitted mutations already
// accepted into the WAL are not lost; they roll forward on the next Open.
func (i *Instance) Close(_ context.Context) error {
	return i.store.Close()
}

// FrameMeta returns the committed metadata for id.
func (i *Instance) FrameMeta(_ context.Context, id uint64) (*format.FrameMeta, error) {
	return i.store.FrameMeta(id)
}

// FrameMetaIncludingPending returns id's metadata with pending mutations overlaid.
func (i *Instance) FrameMetaIncludingPending(_ context.Context, id uint64) (*format.FrameMeta, error) {
	return i.store.FrameMetaIncludingPending(id)
}

// FrameMetasIncludingPending batches FrameMetaIncludingPending.
func (i *Instance) FrameMetasIncludingPending(_ context.Context, ids []uint64) ([]*format.FrameMeta, error) {
	return i.store.FrameMetasIncludingPending(ids)
}

// FrameContent reads and decompresses id's committed payload.
func (i *Instance) FrameContent(_ context.Context, id uint64) ([]byte, error) {
	return i.store.FrameContent(id)
}

// FrameContentIncludingPending is FrameContent resolved against the
// pending overlay first.
func (i *Instance) FrameContentIncludingPending(_ context.Context, id uint64) ([]byte, error) {
	return i.store.FrameContentIncludingPending(id)
}

// FramePreview returns up to maxBytes of id's decompressed content.
func (i *Instance) FramePreview(_ context.Context, id uint64, maxBytes int) ([]byte, error) {
	return i.store.FramePreview(id, maxBytes)
}

// Timeline returns frames matching q in append order.
func (i *Instance) Timeline(_ context.Context, q TimelineQuery) ([]*format.FrameMeta, error) {
	return i.store.Timeline(q)
}

// StageLexIndex appends a lexical index segment pending the next Commit.
func (i *Instance) StageLexIndex(_ context.Context, seg StageSegmentRequest, manifest StageManifestRequest) error {
	return i.store.StageLexIndex(seg, manifest)
}

// StageVecIndex appends a vector index segment pending the next Commit.
func (i *Instance) StageVecIndex(_ context.Context, seg StageSegmentRequest, manifest StageManifestRequest) error {
	return i.store.StageVecIndex(seg, manifest)
}

// Stats returns a snapshot of committed and pending store state.
func (i *Instance) Stats(_ context.Context) (store.Stats, error) {
	return i.store.Stats()
}

// WalStats exposes the write-ahead log ring's resume positions and
// lifetime diagnostic counters.
func (i *Instance) WalStats(_ context.Context) (wal.Stats, error) {
	return i.store.WalStats()
}

// Verify checks the store's structural invariants, optionally re-hashing
// every stored payload and segment when deep is true.
func (i *Instance) Verify(_ context.Context, deep bool) (VerifyReport, error) {
	return i.store.Verify(deep)
}
