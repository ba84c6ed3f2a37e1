package format

import (
	"testing"

	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/stretchr/testify/require"
)

// TestSegmentEntryEncodeDecodeRoundTrip verifies a segment catalog entry
// survives an encode/decode round trip.
func TestSegmentEntryEncodeDecodeRoundTrip(t *testing.T) {
	se := &SegmentEntry{
		SegmentID:   42,
		Kind:        SegmentKindVec,
		Offset:      8192,
		Length:      1024,
		Checksum:    [32]byte{3},
		Compression: EncodingDeflate,
		Ordinal:     1,
	}
	e := codec.NewEncoder(64)
	require.NoError(t, se.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	got, err := DecodeSegmentEntry(d)
	require.NoError(t, err)
	require.Equal(t, se, got)
}

// TestValidateCatalogSortedAcceptsSortedNonOverlapping verifies sorted,
// disjoint same-kind entries pass I-SEGSORT.
func TestValidateCatalogSortedAcceptsSortedNonOverlapping(t *testing.T) {
	entries := []*SegmentEntry{
		{Kind: SegmentKindLex, Offset: 0, Length: 100},
		{Kind: SegmentKindLex, Offset: 100, Length: 50},
		{Kind: SegmentKindVec, Offset: 0, Length: 200},
	}
	require.NoError(t, ValidateCatalogSorted(entries))
}

// TestValidateCatalogSortedRejectsOutOfOrder verifies a same-kind entry
// placed before an earlier offset is rejected.
func TestValidateCatalogSortedRejectsOutOfOrder(t *testing.T) {
	entries := []*SegmentEntry{
		{Kind: SegmentKindLex, Offset: 100, Length: 50},
		{Kind: SegmentKindLex, Offset: 0, Length: 100},
	}
	require.Error(t, ValidateCatalogSorted(entries))
}

// TestValidateCatalogSortedRejectsOverlap verifies two same-kind entries
// whose byte ranges overlap are rejected.
func TestValidateCatalogSortedRejectsOverlap(t *testing.T) {
	entries := []*SegmentEntry{
		{Kind: SegmentKindVec, Offset: 0, Length: 100},
		{Kind: SegmentKindVec, Offset: 50, Length: 100},
	}
	require.Error(t, ValidateCatalogSorted(entries))
}

// TestIndexManifestEncodeDecodeRoundTrip verifies a vec manifest with a
// similarity metric round-trips.
func TestIndexManifestEncodeDecodeRoundTrip(t *testing.T) {
	metric := "cosine"
	im := &IndexManifest{
		Kind: SegmentKindVec, Count: 10, Offset: 0, Length: 512,
		Checksum: [32]byte{4}, FormatVersion: 1, SimilarityMetric: &metric,
	}
	e := codec.NewEncoder(64)
	require.NoError(t, im.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	got, err := DecodeIndexManifest(d)
	require.NoError(t, err)
	require.Equal(t, metric, *got.SimilarityMetric)
}

// TestDecodeIndexManifestRejectsLexWithSimilarityMetric verifies a lex
// manifest carrying a similarity metric is rejected on decode.
func TestDecodeIndexManifestRejectsLexWithSimilarityMetric(t *testing.T) {
	metric := "cosine"
	im := &IndexManifest{Kind: SegmentKindLex, SimilarityMetric: &metric}
	e := codec.NewEncoder(64)
	require.NoError(t, im.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	_, err := DecodeIndexManifest(d)
	require.Error(t, err)
}
