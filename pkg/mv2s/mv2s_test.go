package mv2s

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/options"
)

func createTestInstance(t *testing.T) (*Instance, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "facade.mv2s")
	inst, err := Create(context.Background(), path, "mv2s-test", options.WithWalSize(options.MinWalSize))
	require.NoError(t, err)
	t.Cleanup(func() { inst.Close(context.Background()) })
	return inst, path
}

// TestCreatePutCommitCloseOpenReadBack exercises the full public-facade
// life cycle end to end: create a store, write a frame, commit it, close
// the handle, reopen it, and read the frame back.
func TestCreatePutCommitCloseOpenReadBack(t *testing.T) {
	ctx := context.Background()
	inst, path := createTestInstance(t)

	id, err := inst.Put(ctx, PutRequest{Kind: "message", Track: "main", Role: format.RoleUser, Payload: []byte("hi")})
	require.NoError(t, err)
	require.NoError(t, inst.Commit(ctx))
	require.NoError(t, inst.Close(ctx))

	reopened, err := Open(ctx, path, "mv2s-test", options.WithWalSize(options.MinWalSize))
	require.NoError(t, err)
	defer reopened.Close(ctx)

	content, err := reopened.FrameContent(ctx, id)
	require.NoError(t, err)
	require.Equal(t, []byte("hi"), content)
}

// TestPutBatchThenTimeline verifies PutBatch assigns ids for every
// request and Timeline returns them once committed.
func TestPutBatchThenTimeline(t *testing.T) {
	ctx := context.Background()
	inst, _ := createTestInstance(t)

	ids, err := inst.PutBatch(ctx, []PutRequest{
		{Kind: "message", Track: "t", Role: format.RoleUser, Payload: []byte("a")},
		{Kind: "message", Track: "t", Role: format.RoleUser, Payload: []byte("b")},
	})
	require.NoError(t, err)
	require.Len(t, ids, 2)
	require.NoError(t, inst.Commit(ctx))

	out, err := inst.Timeline(ctx, TimelineQuery{Track: "t"})
	require.NoError(t, err)
	require.Len(t, out, 2)
}

// TestDeleteAndSupersedeThroughFacade verifies Delete and Supersede are
// reachable through the public facade and reflected after Commit.
func TestDeleteAndSupersedeThroughFacade(t *testing.T) {
	ctx := context.Background()
	inst, _ := createTestInstance(t)

	oldID, err := inst.Put(ctx, PutRequest{Kind: "message", Payload: []byte("v1")})
	require.NoError(t, err)
	newID, err := inst.Put(ctx, PutRequest{Kind: "message", Payload: []byte("v2")})
	require.NoError(t, err)
	require.NoError(t, inst.Commit(ctx))

	require.NoError(t, inst.Supersede(ctx, oldID, newID))
	require.NoError(t, inst.Commit(ctx))

	meta, err := inst.FrameMeta(ctx, oldID)
	require.NoError(t, err)
	require.Equal(t, newID, *meta.SupersededBy)

	require.NoError(t, inst.Delete(ctx, newID))
	require.NoError(t, inst.Commit(ctx))
	meta, err = inst.FrameMeta(ctx, newID)
	require.NoError(t, err)
	require.Equal(t, format.StatusDeleted, meta.Status)
}

// TestPutEmbeddingThroughFacade verifies a vector attaches to an existing
// frame and the store accepts it without error.
func TestPutEmbeddingThroughFacade(t *testing.T) {
	ctx := context.Background()
	inst, _ := createTestInstance(t)

	id, err := inst.Put(ctx, PutRequest{Kind: "chunk", Payload: []byte("x")})
	require.NoError(t, err)
	require.NoError(t, inst.PutEmbedding(ctx, id, []float32{0.1, 0.2, 0.3}))
	require.NoError(t, inst.Commit(ctx))
}

// TestStageLexAndVecIndexesThroughFacade verifies both staging entry
// points are reachable and distinct by kind.
func TestStageLexAndVecIndexesThroughFacade(t *testing.T) {
	ctx := context.Background()
	inst, _ := createTestInstance(t)

	require.NoError(t, inst.StageLexIndex(ctx,
		StageSegmentRequest{Kind: format.SegmentKindLex, Bytes: []byte("lex")},
		StageManifestRequest{Kind: format.SegmentKindLex, Count: 1, FormatVersion: 1}))
	require.NoError(t, inst.StageVecIndex(ctx,
		StageSegmentRequest{Kind: format.SegmentKindVec, Bytes: []byte("vec")},
		StageManifestRequest{Kind: format.SegmentKindVec, Count: 1, FormatVersion: 1}))
	require.NoError(t, inst.Commit(ctx))

	stats, err := inst.Stats(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, stats.SegmentCount)
}

// TestVerifyThroughFacade verifies Verify is reachable and reports a
// clean store after a normal commit.
func TestVerifyThroughFacade(t *testing.T) {
	ctx := context.Background()
	inst, _ := createTestInstance(t)
	_, err := inst.Put(ctx, PutRequest{Kind: "message", Payload: []byte("ok")})
	require.NoError(t, err)
	require.NoError(t, inst.Commit(ctx))

	report, err := inst.Verify(ctx, true)
	require.NoError(t, err)
	require.True(t, report.OK)
}
