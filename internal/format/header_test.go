package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func sampleHeaderPage() *HeaderPage {
	return &HeaderPage{
		FormatVersion:        FormatVersion,
		SpecMajor:            SpecMajor,
		SpecMinor:            SpecMinor,
		HeaderPageGeneration: 3,
		FileGeneration:       2,
		FooterOffset:         1 << 20,
		WalOffset:            HeaderRegionEnd,
		WalSize:              256 * 1024 * 1024,
		WalWritePos:          1024,
		WalCheckpointPos:     512,
		WalCommittedSeq:      77,
		TocChecksum:          [32]byte{1, 2, 3},
	}
}

// TestHeaderPageEncodeDecodeRoundTrip verifies every fixed field survives
// an encode/decode round trip and pads to exactly HeaderPageSize.
func TestHeaderPageEncodeDecodeRoundTrip(t *testing.T) {
	hp := sampleHeaderPage()
	buf, err := hp.Encode()
	require.NoError(t, err)
	require.Len(t, buf, HeaderPageSize)

	got, err := DecodeHeaderPage(buf)
	require.NoError(t, err)
	require.Equal(t, hp.HeaderPageGeneration, got.HeaderPageGeneration)
	require.Equal(t, hp.FileGeneration, got.FileGeneration)
	require.Equal(t, hp.FooterOffset, got.FooterOffset)
	require.Equal(t, hp.WalOffset, got.WalOffset)
	require.Equal(t, hp.TocChecksum, got.TocChecksum)
	require.Nil(t, got.Replay)
}

// TestHeaderPageWithReplaySnapshotRoundTrip verifies the optional replay
// snapshot survives the round trip and ConsistentWith matches correctly.
func TestHeaderPageWithReplaySnapshotRoundTrip(t *testing.T) {
	hp := sampleHeaderPage()
	hp.Replay = &ReplaySnapshot{
		LastAppliedSeq: 99,
		FrameCount:     12,
		TocChecksum:    [32]byte{9, 9, 9},
	}
	buf, err := hp.Encode()
	require.NoError(t, err)

	got, err := DecodeHeaderPage(buf)
	require.NoError(t, err)
	require.NotNil(t, got.Replay)
	require.Equal(t, uint64(99), got.Replay.LastAppliedSeq)
	require.True(t, got.ConsistentWith(hp.Replay.TocChecksum))
	require.False(t, got.ConsistentWith([32]byte{1}))
}

// TestDecodeHeaderPageRejectsChecksumMismatch verifies a flipped byte in a
// header page is detected instead of silently accepted.
func TestDecodeHeaderPageRejectsChecksumMismatch(t *testing.T) {
	hp := sampleHeaderPage()
	buf, err := hp.Encode()
	require.NoError(t, err)

	buf[20] ^= 0xff
	_, err = DecodeHeaderPage(buf)
	require.Error(t, err)
}

// TestDecodeHeaderPageRejectsWrongSize verifies a buffer that isn't
// exactly HeaderPageSize is rejected outright.
func TestDecodeHeaderPageRejectsWrongSize(t *testing.T) {
	_, err := DecodeHeaderPage(make([]byte, 100))
	require.Error(t, err)
}
