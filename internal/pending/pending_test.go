package pending

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mv2s/mv2s/internal/format"
)

func newTestOverlay(t *testing.T) *Overlay {
	t.Helper()
	o, err := New(context.Background(), &Config{Logger: zap.NewNop().Sugar()})
	require.NoError(t, err)
	return o
}

// TestNewRejectsMissingLogger verifies the constructor requires a logger.
func TestNewRejectsMissingLogger(t *testing.T) {
	_, err := New(context.Background(), &Config{})
	require.Error(t, err)
}

// TestRecordPutAndPendingFrame verifies a recorded put is visible through
// PendingFrame and PendingFrames.
func TestRecordPutAndPendingFrame(t *testing.T) {
	o := newTestOverlay(t)
	fm := &format.FrameMeta{ID: 5, Kind: "message"}
	require.NoError(t, o.RecordPut(fm))

	got, ok := o.PendingFrame(5)
	require.True(t, ok)
	require.Equal(t, "message", got.Kind)
	require.Len(t, o.PendingFrames(), 1)
}

// TestRecordDeleteMarksPendingPutDeleted verifies deleting a frame that
// was put in the same uncommitted window flips its status in place.
func TestRecordDeleteMarksPendingPutDeleted(t *testing.T) {
	o := newTestOverlay(t)
	fm := &format.FrameMeta{ID: 1, Status: format.StatusActive}
	require.NoError(t, o.RecordPut(fm))
	require.NoError(t, o.RecordDelete(1))

	got, ok := o.PendingFrame(1)
	require.True(t, ok)
	require.Equal(t, format.StatusDeleted, got.Status)
	require.True(t, o.IsDeleted(1))
}

// TestApplyOverlaysDeleteOntoCommittedFrame verifies Apply reflects a
// pending delete of an already-committed frame without mutating the
// caller's copy.
func TestApplyOverlaysDeleteOntoCommittedFrame(t *testing.T) {
	o := newTestOverlay(t)
	committed := &format.FrameMeta{ID: 9, Status: format.StatusActive}
	require.NoError(t, o.RecordDelete(9))

	out := o.Apply(committed)
	require.Equal(t, format.StatusDeleted, out.Status)
	require.Equal(t, format.StatusActive, committed.Status)
}

// TestApplyOverlaysSupersedeOntoCommittedFrame verifies a pending
// supersede edge surfaces as SupersededBy on the superseded frame's copy
// and as Supersedes on the superseding frame's copy, when both already
// exist in the committed TOC.
func TestApplyOverlaysSupersedeOntoCommittedFrame(t *testing.T) {
	o := newTestOverlay(t)
	oldCommitted := &format.FrameMeta{ID: 3}
	newCommitted := &format.FrameMeta{ID: 4}
	require.NoError(t, o.RecordSupersede(3, 4))

	out := o.Apply(oldCommitted)
	require.NotNil(t, out.SupersededBy)
	require.Equal(t, uint64(4), *out.SupersededBy)

	newOut := o.Apply(newCommitted)
	require.NotNil(t, newOut.Supersedes)
	require.Equal(t, uint64(3), *newOut.Supersedes)
}

// TestRecordSupersedeLinksBothPendingFrames verifies both sides of a
// supersede edge are set when both frames are themselves pending.
func TestRecordSupersedeLinksBothPendingFrames(t *testing.T) {
	o := newTestOverlay(t)
	require.NoError(t, o.RecordPut(&format.FrameMeta{ID: 10}))
	require.NoError(t, o.RecordPut(&format.FrameMeta{ID: 11}))
	require.NoError(t, o.RecordSupersede(10, 11))

	old, _ := o.PendingFrame(10)
	newer, _ := o.PendingFrame(11)
	require.Equal(t, uint64(11), *old.SupersededBy)
	require.Equal(t, uint64(10), *newer.Supersedes)
}

// TestResetClearsAllPendingState verifies Reset empties puts, deletes,
// and supersedes after a commit folds them in.
func TestResetClearsAllPendingState(t *testing.T) {
	o := newTestOverlay(t)
	require.NoError(t, o.RecordPut(&format.FrameMeta{ID: 1}))
	require.NoError(t, o.RecordDelete(2))
	require.NoError(t, o.RecordSupersede(3, 4))

	o.Reset()
	require.Empty(t, o.PendingFrames())
	require.False(t, o.IsDeleted(2))
}

// TestCloseRejectsFurtherMutation verifies every mutating method fails
// with ErrPendingClosed after Close.
func TestCloseRejectsFurtherMutation(t *testing.T) {
	o := newTestOverlay(t)
	require.NoError(t, o.Close())

	require.ErrorIs(t, o.RecordPut(&format.FrameMeta{ID: 1}), ErrPendingClosed)
	require.ErrorIs(t, o.RecordDelete(1), ErrPendingClosed)
	require.ErrorIs(t, o.RecordSupersede(1, 2), ErrPendingClosed)
	require.ErrorIs(t, o.Close(), ErrPendingClosed)
}
