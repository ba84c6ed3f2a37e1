package codec

import (
	"encoding/binary"
	"unicode/utf8"

	"github.com/mv2s/mv2s/pkg/errors"
)

// Decoder reads little-endian wire format sequentially from a fixed buffer.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder reading from buf.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

func truncatedErr(field string, need, have int) error {
	return errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "truncated buffer").
		WithField(field).WithProvided(have).WithExpected(need)
}

// Remaining returns the number of unread bytes.
func (d *Decoder) Remaining() int {
	return len(d.buf) - d.pos
}

// Pos returns the current read offset.
func (d *Decoder) Pos() int {
	return d.pos
}

func (d *Decoder) take(n int) ([]byte, error) {
	if d.Remaining() < n {
		return nil, truncatedErr("take", n, d.Remaining())
	}
	b := d.buf[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// U8 reads a single byte.
func (d *Decoder) U8() (uint8, error) {
	b, err := d.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// U16 reads a little-endian uint16.
func (d *Decoder) U16() (uint16, error) {
	b, err := d.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// U32 reads a little-endian uint32.
func (d *Decoder) U32() (uint32, error) {
	b, err := d.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// U64 reads a little-endian uint64.
func (d *Decoder) U64() (uint64, error) {
	b, err := d.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// I64 reads a little-endian int64.
func (d *Decoder) I64() (int64, error) {
	v, err := d.U64()
	return int64(v), err
}

// RawFixed reads exactly n raw bytes with no length prefix, for magics and
// checksums. The returned slice aliases the decoder's input buffer.
func (d *Decoder) RawFixed(n int) ([]byte, error) {
	return d.take(n)
}

// Blob reads a u32-length-prefixed byte slice, failing with DecodingError
// if the declared length exceeds MaxBlobBytes or the buffer is truncated.
// The returned slice aliases the decoder's input buffer; callers that need
// to retain it past further decoding should copy it.
func (d *Decoder) Blob() ([]byte, error) {
	n, err := d.U32()
	if err != nil {
		return nil, err
	}
	if n > MaxBlobBytes {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "blob exceeds maximum size").
			WithField("blob").WithProvided(n).WithExpected(MaxBlobBytes)
	}
	return d.take(int(n))
}

// String reads a u32-length-prefixed UTF-8 string, failing with
// DecodingError on truncation, an over-limit length, or invalid UTF-8.
func (d *Decoder) String() (string, error) {
	n, err := d.U32()
	if err != nil {
		return "", err
	}
	if n > MaxStringBytes {
		return "", errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "string exceeds maximum size").
			WithField("string").WithProvided(n).WithExpected(MaxStringBytes)
	}
	b, err := d.take(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "string is not valid UTF-8").
			WithField("string")
	}
	return string(b), nil
}

// OptionalTag reads the u8 presence tag, failing with DecodingError if the
// byte isn't 0 or 1.
func (d *Decoder) OptionalTag() (bool, error) {
	tag, err := d.U8()
	if err != nil {
		return false, err
	}
	switch tag {
	case 0:
		return false, nil
	case 1:
		return true, nil
	default:
		return false, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid optional tag").
			WithField("optionalTag").WithProvided(tag).WithExpected("0 or 1")
	}
}

// ArrayLen reads the u32 element count for an array, failing with
// DecodingError if it exceeds MaxArrayCount.
func (d *Decoder) ArrayLen() (int, error) {
	n, err := d.U32()
	if err != nil {
		return 0, err
	}
	if n > MaxArrayCount {
		return 0, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "array count exceeds maximum").
			WithField("arrayLen").WithProvided(n).WithExpected(MaxArrayCount)
	}
	return int(n), nil
}

// Finalize fails with a DecodingError "excess bytes" error if any unread
// bytes remain in the buffer.
func (d *Decoder) Finalize() error {
	if d.Remaining() != 0 {
		return errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "excess bytes at finalize").
			WithField("remaining").WithProvided(d.Remaining()).WithExpected(0)
	}
	return nil
}
