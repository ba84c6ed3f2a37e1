package compress

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/mv2s/mv2s/internal/format"
)

// TestForEncodingRoundTripsEveryKnownEncoding verifies each defined
// CanonicalEncoding compresses and decompresses back to the original bytes.
func TestForEncodingRoundTripsEveryKnownEncoding(t *testing.T) {
	canonical := []byte("the quick brown fox jumps over the lazy dog, repeated: " +
		"the quick brown fox jumps over the lazy dog")

	for _, enc := range []format.CanonicalEncoding{
		format.EncodingPlain, format.EncodingLz4, format.EncodingDeflate, format.EncodingLzfse,
	} {
		cdc, err := ForEncoding(enc)
		require.NoError(t, err)
		require.Equal(t, enc, cdc.Encoding())

		stored, err := cdc.Compress(canonical)
		require.NoError(t, err)

		got, err := cdc.Decompress(stored, len(canonical))
		require.NoError(t, err)
		require.Equal(t, canonical, got)
	}
}

// TestForEncodingRejectsUnknownValue verifies an out-of-range encoding
// value is rejected instead of silently falling back to plain.
func TestForEncodingRejectsUnknownValue(t *testing.T) {
	_, err := ForEncoding(format.CanonicalEncoding(99))
	require.Error(t, err)
}

// TestPlainCodecCopiesWithoutAliasing verifies the plain codec returns an
// independent copy rather than aliasing the caller's slice.
func TestPlainCodecCopiesWithoutAliasing(t *testing.T) {
	cdc, err := ForEncoding(format.EncodingPlain)
	require.NoError(t, err)

	original := []byte("abc")
	stored, err := cdc.Compress(original)
	require.NoError(t, err)
	stored[0] = 'z'
	require.Equal(t, byte('a'), original[0])
}
