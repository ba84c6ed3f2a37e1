package codec

import (
	"testing"

	"github.com/stretchr/testify/require"
)

// TestEncodeDecodeRoundTrip verifies every primitive survives an
// encode/decode round trip in declaration order.
func TestEncodeDecodeRoundTrip(t *testing.T) {
	e := NewEncoder(64)
	e.U8(7)
	e.U16(1234)
	e.U32(567890)
	e.U64(123456789012345)
	e.I64(-42)
	require.NoError(t, e.String("hello"))
	require.NoError(t, e.Blob([]byte{1, 2, 3}))
	e.OptionalTag(true)
	require.NoError(t, e.ArrayLen(3))

	d := NewDecoder(e.Bytes())

	u8, err := d.U8()
	require.NoError(t, err)
	require.EqualValues(t, 7, u8)

	u16, err := d.U16()
	require.NoError(t, err)
	require.EqualValues(t, 1234, u16)

	u32, err := d.U32()
	require.NoError(t, err)
	require.EqualValues(t, 567890, u32)

	u64, err := d.U64()
	require.NoError(t, err)
	require.EqualValues(t, 123456789012345, u64)

	i64, err := d.I64()
	require.NoError(t, err)
	require.EqualValues(t, -42, i64)

	s, err := d.String()
	require.NoError(t, err)
	require.Equal(t, "hello", s)

	blob, err := d.Blob()
	require.NoError(t, err)
	require.Equal(t, []byte{1, 2, 3}, blob)

	tag, err := d.OptionalTag()
	require.NoError(t, err)
	require.True(t, tag)

	n, err := d.ArrayLen()
	require.NoError(t, err)
	require.Equal(t, 3, n)

	require.NoError(t, d.Finalize())
}

// TestDecoderTruncatedBuffer verifies reads past the end fail cleanly
// instead of panicking.
func TestDecoderTruncatedBuffer(t *testing.T) {
	d := NewDecoder([]byte{1, 2})
	_, err := d.U32()
	require.Error(t, err)
}

// TestDecoderFinalizeRejectsExcessBytes verifies Finalize catches trailing
// garbage a caller forgot to consume.
func TestDecoderFinalizeRejectsExcessBytes(t *testing.T) {
	e := NewEncoder(8)
	e.U32(1)
	e.U32(2)
	d := NewDecoder(e.Bytes())
	_, err := d.U32()
	require.NoError(t, err)
	require.Error(t, d.Finalize())
}

// TestStringRejectsInvalidUTF8 verifies the encoder validates UTF-8 before
// writing.
func TestStringRejectsInvalidUTF8(t *testing.T) {
	e := NewEncoder(8)
	err := e.String(string([]byte{0xff, 0xfe}))
	require.Error(t, err)
}

// TestOptionalTagRejectsInvalidByte verifies a tag byte outside {0,1}
// decodes as an error rather than being silently truthy.
func TestOptionalTagRejectsInvalidByte(t *testing.T) {
	d := NewDecoder([]byte{2})
	_, err := d.OptionalTag()
	require.Error(t, err)
}

// TestRawFixedRejectsWrongLength verifies a checksum-shaped field must be
// exactly the declared size.
func TestRawFixedRejectsWrongLength(t *testing.T) {
	e := NewEncoder(8)
	err := e.RawFixed([]byte{1, 2, 3}, 32)
	require.Error(t, err)
}

// TestFinalizeChecksummedRoundTrip verifies a checksummed buffer verifies
// correctly and is rejected after corruption.
func TestFinalizeChecksummedRoundTrip(t *testing.T) {
	e := NewEncoder(64)
	e.U64(42)
	checksumOffset := e.Len()
	e.Raw(make([]byte, 32))
	buf, err := e.FinalizeChecksummed(checksumOffset)
	require.NoError(t, err)
	require.True(t, VerifyChecksummed(buf, checksumOffset))

	buf[0] ^= 0xff
	require.False(t, VerifyChecksummed(buf, checksumOffset))
}

// TestArrayLenRejectsOverLimit verifies the encoder enforces MaxArrayCount.
func TestArrayLenRejectsOverLimit(t *testing.T) {
	e := NewEncoder(8)
	err := e.ArrayLen(MaxArrayCount + 1)
	require.Error(t, err)
}
