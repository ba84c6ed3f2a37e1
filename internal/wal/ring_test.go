package wal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mv2s/mv2s/internal/format"
)

func newTestRingFile(t *testing.T, region, size uint64) *os.File {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "ring-*.bin")
	require.NoError(t, err)
	t.Cleanup(func() { f.Close() })
	require.NoError(t, f.Truncate(int64(region+size)))
	return f
}

// TestRingAppendAssignsIncreasingSequences verifies sequential appends get
// strictly increasing sequence numbers and advance the write position.
func TestRingAppendAssignsIncreasingSequences(t *testing.T) {
	f := newTestRingFile(t, 0, 4096)
	r := New(Config{File: f, Region: 0, Size: 4096})

	seq1, err := r.Append(format.OpPutFrame, []byte("hello"))
	require.NoError(t, err)
	seq2, err := r.Append(format.OpDeleteFrame, []byte("world"))
	require.NoError(t, err)

	require.Equal(t, uint64(1), seq1)
	require.Equal(t, uint64(2), seq2)
	require.Greater(t, r.WritePos(), uint64(0))
}

// TestRingAppendRejectsEmptyPayload verifies an empty payload is rejected
// rather than silently producing a zero-length record.
func TestRingAppendRejectsEmptyPayload(t *testing.T) {
	f := newTestRingFile(t, 0, 4096)
	r := New(Config{File: f, Region: 0, Size: 4096})
	_, err := r.Append(format.OpPutFrame, nil)
	require.Error(t, err)
}

// TestRingAppendRejectsOversizedEntry verifies an entry larger than the
// ring's total capacity is rejected with CapacityExceeded.
func TestRingAppendRejectsOversizedEntry(t *testing.T) {
	f := newTestRingFile(t, 0, 128)
	r := New(Config{File: f, Region: 0, Size: 128})
	_, err := r.Append(format.OpPutFrame, make([]byte, 256))
	require.Error(t, err)
}

// TestRingScanRoundTripsAppendedRecords verifies records appended to a
// ring are recovered in order by Scan starting from the checkpoint.
func TestRingScanRoundTripsAppendedRecords(t *testing.T) {
	f := newTestRingFile(t, 8192, 4096)
	r := New(Config{File: f, Region: 8192, Size: 4096})

	seq1, err := r.Append(format.OpPutFrame, []byte("put-payload"))
	require.NoError(t, err)
	seq2, err := r.Append(format.OpSupersedeFrame, []byte("supersede-payload"))
	require.NoError(t, err)

	res, err := Scan(f, 8192, 4096, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Pending, 2)
	require.Equal(t, seq1, res.Pending[0].Sequence)
	require.Equal(t, format.OpPutFrame, res.Pending[0].Opcode)
	require.Equal(t, []byte("put-payload"), res.Pending[0].Payload)
	require.Equal(t, seq2, res.Pending[1].Sequence)
	require.Equal(t, format.OpSupersedeFrame, res.Pending[1].Opcode)
}

// TestRingScanStopsAtCheckpointedSequence verifies a scan starting after a
// Checkpoint only replays records appended after it.
func TestRingScanStopsAtCheckpointedSequence(t *testing.T) {
	f := newTestRingFile(t, 0, 4096)
	r := New(Config{File: f, Region: 0, Size: 4096})

	_, err := r.Append(format.OpPutFrame, []byte("first"))
	require.NoError(t, err)
	r.Checkpoint()
	seq2, err := r.Append(format.OpPutFrame, []byte("second"))
	require.NoError(t, err)

	res, err := Scan(f, 0, 4096, r.CheckpointPos(), 1)
	require.NoError(t, err)
	require.Len(t, res.Pending, 1)
	require.Equal(t, seq2, res.Pending[0].Sequence)
}

// TestRingWrapsAndScanRecoversAcrossWrap verifies an append that doesn't
// fit in the remaining contiguous space pads/wraps, and the scan still
// recovers the wrapped record correctly.
func TestRingWrapsAndScanRecoversAcrossWrap(t *testing.T) {
	size := uint64(256)
	f := newTestRingFile(t, 0, size)
	r := New(Config{File: f, Region: 0, Size: size})

	_, err := r.Append(format.OpPutFrame, make([]byte, 150))
	require.NoError(t, err)
	require.Equal(t, uint64(0), r.Counters().WrapCount)

	seq2, err := r.Append(format.OpPutFrame, make([]byte, 60))
	require.NoError(t, err)
	require.Equal(t, uint64(1), r.Counters().WrapCount)

	res, err := Scan(f, 0, size, 0, 0)
	require.NoError(t, err)
	require.Len(t, res.Pending, 2)
	require.Equal(t, seq2, res.Pending[1].Sequence)
}

// TestRingPressureExceededRespectsThreshold verifies PressureExceeded only
// trips once pending bytes cross the configured percentage of ring size.
func TestRingPressureExceededRespectsThreshold(t *testing.T) {
	size := uint64(1024)
	f := newTestRingFile(t, 0, size)
	r := New(Config{File: f, Region: 0, Size: size, AutoCommitThresholdPercent: 50})

	require.False(t, r.PressureExceeded())
	_, err := r.Append(format.OpPutFrame, make([]byte, 600))
	require.NoError(t, err)
	require.True(t, r.PressureExceeded())

	r.Checkpoint()
	require.False(t, r.PressureExceeded())
}
