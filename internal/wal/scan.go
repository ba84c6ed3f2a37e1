package wal

import (
	"os"

	"github.com/cespare/xxhash/v2"

	"github.com/mv2s/mv2s/internal/format"
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
	"github.com/mv2s/mv2s/pkg/filesys"
)

// PendingMutation is one not-yet-committed WAL record decoded during a
// scan, exposed to the store's "including_pending" read path.
type PendingMutation struct {
	Sequence uint64
	Opcode   format.Opcode
	Payload  []byte
}

// ScanResult is the full outcome of a recovery scan: the ring state it
// observed and the mutations accepted after the committed checkpoint.
type ScanResult struct {
	WritePos      uint64
	CheckpointPos uint64
	LastSequence  uint64
	PendingBytes  uint64
	WrapCount     uint64
	Pending       []PendingMutation
}

// zeroDigestCache memoizes xxhash64(zeros(n)) for the lengths the scan
// actually sees, letting the zero-fill short-circuit in Scan skip hashing
// the candidate payload against a freshly-allocated zero buffer each time.
var zeroDigestCache = map[int]uint64{}

func zeroDigest(n int) uint64 {
	if d, ok := zeroDigestCache[n]; ok {
		return d
	}
	d := xxhash.Sum64(make([]byte, n))
	zeroDigestCache[n] = d
	return d
}

// Scan reads the ring starting at startPos (the header's checkpoint
// position) and startSequence (its committed sequence), replaying records
// until a sentinel, a non-monotonic sequence, or any invariant violation
// stops the scan cleanly (§4.6, §4.8). The state observed up to that point
// is authoritative; a decode failure inside one mutation's payload aborts
// further pending-mutation decoding but does not invalidate the state scan.
func Scan(file *os.File, region, size, startPos, startSequence uint64) (*ScanResult, error) {
	res := &ScanResult{
		WritePos:      startPos,
		CheckpointPos: startPos,
		LastSequence:  startSequence,
	}

	pos := startPos
	lastSeq := startSequence
	wrapped := false

	for {
		if wrapped && pos >= startPos {
			break
		}

		header, err := readHeader(file, region, size, pos)
		if err != nil {
			break
		}
		if header.IsSentinel() {
			break
		}
		if header.Sequence == 0 || header.Sequence <= lastSeq {
			break
		}

		contiguous := size - pos
		if header.IsPadding() {
			if header.Checksum != format.EmptyPayloadChecksum {
				break
			}
			advance := uint64(format.WalRecordHeaderSize) + uint64(header.Length)
			if advance > contiguous {
				break
			}
			lastSeq = header.Sequence
			pos += advance
			if pos >= size {
				pos -= size
				wrapped = true
				res.WrapCount++
			}
			continue
		}

		if header.Length == 0 || uint64(header.Length) > size-format.WalRecordHeaderSize {
			break
		}
		entrySize := uint64(format.WalRecordHeaderSize) + uint64(header.Length)
		if entrySize > contiguous {
			break
		}

		payload := make([]byte, header.Length)
		if err := filesys.ReadExactAt(file, int64(region+pos+format.WalRecordHeaderSize), payload); err != nil {
			break
		}

		if !verifyPayload(payload, header.Checksum) {
			break
		}

		lastSeq = header.Sequence
		if lastSeq > startSequence {
			opcode, body := format.Opcode(0), []byte(nil)
			if len(payload) >= 1 {
				opcode = format.Opcode(payload[0])
				body = payload[1:]
			}
			res.Pending = append(res.Pending, PendingMutation{
				Sequence: lastSeq,
				Opcode:   opcode,
				Payload:  body,
			})
		}

		pos += entrySize
		if pos >= size {
			pos -= size
			wrapped = true
			res.WrapCount++
		}
	}

	res.WritePos = pos
	res.LastSequence = lastSeq
	if pos >= startPos {
		res.PendingBytes = pos - startPos
	} else {
		res.PendingBytes = size - startPos + pos
	}
	return res, nil
}

func readHeader(file *os.File, region, size, pos uint64) (*format.RecordHeader, error) {
	if size-pos < format.WalRecordHeaderSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeWalCorruption, "insufficient contiguous bytes for header")
	}
	buf := make([]byte, format.WalRecordHeaderSize)
	if err := filesys.ReadExactAt(file, int64(region+pos), buf); err != nil {
		return nil, err
	}
	return format.DecodeRecordHeader(buf)
}

// verifyPayload performs the cheap xxhash zero-fill pre-check before
// paying for the mandatory SHA-256 verification: a payload that hashes
// identically to an all-zero buffer of the same length is almost always
// unwritten ring space rather than a legitimate record, so the scan can
// stop without hashing potentially large payloads twice.
func verifyPayload(payload []byte, want [32]byte) bool {
	if len(payload) > 0 && xxhash.Sum64(payload) == zeroDigest(len(payload)) {
		return false
	}
	sum := codec.Sum256(payload)
	return sum == want
}
