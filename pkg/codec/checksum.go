package codec

import (
	"bytes"
	"crypto/sha256"
)

// Sum256 returns the SHA-256 digest of data (§4.2 one-shot digest).
func Sum256(data []byte) [32]byte {
	return sha256.Sum256(data)
}

// VerifyChecksummed reports whether buf's embedded checksum at
// [checksumOffset, checksumOffset+32) equals SHA-256 of buf with that
// range zeroed — the decode-side counterpart of Encoder.FinalizeChecksummed.
// buf is not mutated; a scratch copy is hashed instead.
func VerifyChecksummed(buf []byte, checksumOffset int) bool {
	if checksumOffset < 0 || checksumOffset+32 > len(buf) {
		return false
	}

	want := make([]byte, 32)
	copy(want, buf[checksumOffset:checksumOffset+32])

	scratch := make([]byte, len(buf))
	copy(scratch, buf)
	clear(scratch[checksumOffset : checksumOffset+32])

	got := sha256.Sum256(scratch)
	return bytes.Equal(want, got[:])
}
