package format

import (
	"testing"

	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/stretchr/testify/require"
)

func sampleFrameMeta(id uint64) *FrameMeta {
	title := "hello world"
	return &FrameMeta{
		ID:                id,
		CreatedAtMs:       1700000000000,
		Kind:              "message",
		Track:             "main",
		PayloadOffset:     8192,
		PayloadLength:     11,
		CanonicalChecksum: [32]byte{1},
		CanonicalEncoding: EncodingPlain,
		Title:             &title,
		Metadata:          map[string]string{"b": "2", "a": "1"},
		Tags:              []TagPair{{Key: "lang", Value: "en"}},
		Labels:            []string{"starred"},
		ContentDates:      []int64{1, 2, 3},
		Role:              RoleUser,
		Status:            StatusActive,
	}
}

// TestFrameMetaEncodeDecodeRoundTrip verifies a plain-encoded frame with
// every optional field populated survives an encode/decode round trip.
func TestFrameMetaEncodeDecodeRoundTrip(t *testing.T) {
	fm := sampleFrameMeta(0)
	e := codec.NewEncoder(256)
	require.NoError(t, fm.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	got, err := DecodeFrameMeta(d)
	require.NoError(t, err)
	require.NoError(t, d.Finalize())

	require.Equal(t, fm.ID, got.ID)
	require.Equal(t, fm.Kind, got.Kind)
	require.Equal(t, *fm.Title, *got.Title)
	require.Equal(t, fm.Metadata, got.Metadata)
	require.Equal(t, fm.Tags, got.Tags)
	require.Equal(t, fm.Labels, got.Labels)
	require.Equal(t, fm.ContentDates, got.ContentDates)
	require.Equal(t, fm.Role, got.Role)
}

// TestFrameMetaCompressedRequiresCanonicalLength verifies I-CANONLEN:
// a non-plain encoding without a canonical length is rejected on decode.
func TestFrameMetaCompressedRequiresCanonicalLength(t *testing.T) {
	fm := sampleFrameMeta(0)
	fm.CanonicalEncoding = EncodingLz4
	fm.PayloadLength = 0
	e := codec.NewEncoder(256)
	require.NoError(t, fm.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	_, err := DecodeFrameMeta(d)
	require.Error(t, err)
}

// TestFrameMetaCompressedRequiresStoredChecksum verifies I-STOREDSUM: a
// non-plain encoding with a nonzero payload length but no stored checksum
// is rejected on decode.
func TestFrameMetaCompressedRequiresStoredChecksum(t *testing.T) {
	fm := sampleFrameMeta(0)
	fm.CanonicalEncoding = EncodingLz4
	length := uint64(100)
	fm.CanonicalLength = &length
	e := codec.NewEncoder(256)
	require.NoError(t, fm.Encode(e))

	d := codec.NewDecoder(e.Bytes())
	_, err := DecodeFrameMeta(d)
	require.Error(t, err)
}

// TestFrameMetaCompressedWithStoredChecksumRoundTrip verifies the
// compressed case succeeds once both optional fields are present.
func TestFrameMetaCompressedWithStoredChecksumRoundTrip(t *testing.T) {
	fm := sampleFrameMeta(0)
	fm.CanonicalEncoding = EncodingLz4
	length := uint64(100)
	fm.CanonicalLength = &length
	sum := [32]byte{2}
	fm.StoredChecksum = &sum

	e := codec.NewEncoder(256)
	require.NoError(t, fm.Encode(e))
	d := codec.NewDecoder(e.Bytes())
	got, err := DecodeFrameMeta(d)
	require.NoError(t, err)
	require.Equal(t, length, *got.CanonicalLength)
	require.Equal(t, sum, *got.StoredChecksum)
}

// TestDecodeFrameMetaRejectsInvalidRole verifies an out-of-range role
// enum value is rejected rather than silently accepted.
func TestDecodeFrameMetaRejectsInvalidRole(t *testing.T) {
	fm := sampleFrameMeta(0)
	fm.Role = Role(99)
	e := codec.NewEncoder(256)
	require.NoError(t, fm.Encode(e))
	d := codec.NewDecoder(e.Bytes())
	_, err := DecodeFrameMeta(d)
	require.Error(t, err)
}
