package format

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFooterEncodeDecodeRoundTrip verifies the 64-byte footer round-trips
// and cross-checks against a TOC checksum via MatchesToc.
func TestFooterEncodeDecodeRoundTrip(t *testing.T) {
	f := &Footer{
		TocLength:       4096,
		TocChecksum:     [32]byte{5, 6, 7},
		Generation:      3,
		WalCommittedSeq: 42,
	}
	buf, err := f.Encode()
	require.NoError(t, err)
	require.Len(t, buf, FooterSize)

	got, err := DecodeFooter(buf)
	require.NoError(t, err)
	require.Equal(t, f.TocLength, got.TocLength)
	require.Equal(t, f.TocChecksum, got.TocChecksum)
	require.Equal(t, f.Generation, got.Generation)
	require.Equal(t, f.WalCommittedSeq, got.WalCommittedSeq)
	require.True(t, got.MatchesToc(f.TocChecksum))
	require.False(t, got.MatchesToc([32]byte{1}))
	require.Equal(t, uint64(1<<16-4096), got.TocOffsetAt(1<<16))
}

// TestDecodeFooterRejectsBadMagic verifies a corrupted magic is rejected.
func TestDecodeFooterRejectsBadMagic(t *testing.T) {
	f := &Footer{TocLength: 1}
	buf, err := f.Encode()
	require.NoError(t, err)
	buf[0] = 'X'
	_, err = DecodeFooter(buf)
	require.Error(t, err)
}

// TestDecodeFooterRejectsWrongSize verifies a non-64-byte buffer is rejected.
func TestDecodeFooterRejectsWrongSize(t *testing.T) {
	_, err := DecodeFooter(make([]byte, 10))
	require.Error(t, err)
}
