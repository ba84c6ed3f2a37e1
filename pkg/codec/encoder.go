// Package codec implements the store engine's little-endian binary wire
// format (§4.1): fixed-size primitive encoding, u32 length-prefixed bytes
// and strings, u8 optional tags, u32-counted arrays, and a checksummed
// finalize helper shared by every on-disk structure that carries a
// self-hash (header page, TOC).
//
// The encoder never allocates beyond its own growing output buffer; the
// decoder never allocates beyond the slices it returns to the caller.
package codec

import (
	"crypto/sha256"
	"encoding/binary"
	"unicode/utf8"

	"github.com/mv2s/mv2s/pkg/errors"
)

// Encoder accumulates bytes in little-endian wire format.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an Encoder with an output buffer pre-sized to size
// bytes (a hint, not a limit).
func NewEncoder(sizeHint int) *Encoder {
	if sizeHint < 0 {
		sizeHint = 0
	}
	return &Encoder{buf: make([]byte, 0, sizeHint)}
}

// Bytes returns the accumulated output. The returned slice aliases the
// encoder's internal buffer; callers that need to keep mutating the
// encoder afterward should copy it.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// U8 appends a single byte.
func (e *Encoder) U8(v uint8) *Encoder {
	e.buf = append(e.buf, v)
	return e
}

// U16 appends a little-endian uint16.
func (e *Encoder) U16(v uint16) *Encoder {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// U32 appends a little-endian uint32.
func (e *Encoder) U32(v uint32) *Encoder {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// U64 appends a little-endian uint64.
func (e *Encoder) U64(v uint64) *Encoder {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	e.buf = append(e.buf, tmp[:]...)
	return e
}

// I64 appends a little-endian int64.
func (e *Encoder) I64(v int64) *Encoder {
	return e.U64(uint64(v))
}

// Raw appends b verbatim with no length prefix, for fixed-size fields like
// magics and checksums.
func (e *Encoder) Raw(b []byte) *Encoder {
	e.buf = append(e.buf, b...)
	return e
}

// RawFixed appends a checksum-shaped byte slice, failing with
// EncodingError if its length isn't exactly n (e.g. a 32-byte SHA-256).
func (e *Encoder) RawFixed(b []byte, n int) error {
	if len(b) != n {
		return errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "fixed-size field has wrong length").
			WithField("length").WithProvided(len(b)).WithExpected(n)
	}
	e.buf = append(e.buf, b...)
	return nil
}

// Blob appends a u32-length-prefixed byte slice, failing with
// EncodingError if b exceeds MaxBlobBytes.
func (e *Encoder) Blob(b []byte) error {
	if len(b) > MaxBlobBytes {
		return errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "blob exceeds maximum size").
			WithField("blob").WithProvided(len(b)).WithExpected(MaxBlobBytes)
	}
	e.U32(uint32(len(b)))
	e.buf = append(e.buf, b...)
	return nil
}

// String appends a u32-length-prefixed UTF-8 string, failing with
// EncodingError if s exceeds MaxStringBytes or isn't valid UTF-8.
func (e *Encoder) String(s string) error {
	if len(s) > MaxStringBytes {
		return errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "string exceeds maximum size").
			WithField("string").WithProvided(len(s)).WithExpected(MaxStringBytes)
	}
	if !utf8.ValidString(s) {
		return errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "string is not valid UTF-8").
			WithField("string")
	}
	e.U32(uint32(len(s)))
	e.buf = append(e.buf, s...)
	return nil
}

// OptionalTag appends the u8 presence tag ({0,1}) for an optional field.
func (e *Encoder) OptionalTag(present bool) *Encoder {
	if present {
		return e.U8(1)
	}
	return e.U8(0)
}

// ArrayLen appends the u32 element count for an array, failing with
// EncodingError if n exceeds MaxArrayCount.
func (e *Encoder) ArrayLen(n int) error {
	if n < 0 || n > MaxArrayCount {
		return errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "array count exceeds maximum").
			WithField("arrayLen").WithProvided(n).WithExpected(MaxArrayCount)
	}
	e.U32(uint32(n))
	return nil
}

// FinalizeChecksummed computes SHA-256 over the full accumulated buffer
// with the byte range [checksumOffset, checksumOffset+32) zeroed, writes
// the digest into that range, and returns the finalized bytes. Used by
// every self-checksummed structure: header page (§4.4), TOC (§3), and any
// future structure that embeds its own hash.
func (e *Encoder) FinalizeChecksummed(checksumOffset int) ([]byte, error) {
	if checksumOffset < 0 || checksumOffset+32 > len(e.buf) {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeEncodingError, "checksum offset out of range").
			WithField("checksumOffset").WithProvided(checksumOffset).WithExpected(len(e.buf))
	}

	clear(e.buf[checksumOffset : checksumOffset+32])
	sum := sha256.Sum256(e.buf)
	copy(e.buf[checksumOffset:checksumOffset+32], sum[:])
	return e.buf, nil
}
