package format

import (
	"bytes"

	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// ReplaySnapshot is an optional fast-path hint stored in the header page
// (§4.8): if it matches the TOC actually on disk, recovery can skip the
// WAL tail scan entirely and trust the header's generation pointers.
type ReplaySnapshot struct {
	LastAppliedSeq uint64
	FrameCount     uint64
	TocChecksum    [32]byte
}

// HeaderPage is one of the two 4096-byte header pages at offsets 0 and
// 4096 (§4.4). Two generations are kept so a crash mid-write to one page
// never invalidates the other; recovery picks the page with the higher
// HeaderPageGeneration whose own checksum verifies.
type HeaderPage struct {
	FormatVersion uint16
	SpecMajor     uint8
	SpecMinor     uint8

	// HeaderPageGeneration increments on every header write; the page with
	// the higher value (that also verifies) wins at open time.
	HeaderPageGeneration uint64
	// FileGeneration increments on every successful Commit.
	FileGeneration uint64

	FooterOffset uint64

	WalOffset        uint64
	WalSize          uint64
	WalWritePos      uint64
	WalCheckpointPos uint64
	WalCommittedSeq  uint64

	TocChecksum [32]byte

	Replay *ReplaySnapshot
}

// headerChecksumOffset is the byte offset of the 32-byte header_checksum
// field within the encoded page, per the §4.4 layout.
const headerChecksumOffset = 104

// Encode serializes hp into an exact HeaderPageSize-byte page, checksummed
// and zero-padded to the page boundary.
func (hp *HeaderPage) Encode() ([]byte, error) {
	e := codec.NewEncoder(HeaderPageSize)

	e.Raw([]byte(FileMagic))
	e.U16(hp.FormatVersion)
	e.U8(hp.SpecMajor)
	e.U8(hp.SpecMinor)
	e.U64(hp.HeaderPageGeneration)
	e.U64(hp.FileGeneration)
	e.U64(hp.FooterOffset)
	e.U64(hp.WalOffset)
	e.U64(hp.WalSize)
	e.U64(hp.WalWritePos)
	e.U64(hp.WalCheckpointPos)
	e.U64(hp.WalCommittedSeq)
	if err := e.RawFixed(hp.TocChecksum[:], 32); err != nil {
		return nil, err
	}

	if e.Len() != headerChecksumOffset {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "header layout drifted from fixed offsets").
			WithDetail("offset", e.Len()).WithDetail("expected", headerChecksumOffset)
	}
	e.Raw(make([]byte, 32)) // header_checksum placeholder, filled by FinalizeChecksummed.

	e.OptionalTag(hp.Replay != nil)
	if hp.Replay != nil {
		e.Raw([]byte(ReplaySnapshotMagic))
		e.U64(hp.Replay.LastAppliedSeq)
		e.U64(hp.Replay.FrameCount)
		if err := e.RawFixed(hp.Replay.TocChecksum[:], 32); err != nil {
			return nil, err
		}
	}

	if e.Len() > HeaderPageSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "header page contents exceed page size").
			WithDetail("size", e.Len()).WithDetail("max", HeaderPageSize)
	}

	// Pad before hashing: the checksum covers the whole page, which is what
	// DecodeHeaderPage verifies.
	e.Raw(make([]byte, HeaderPageSize-e.Len()))
	return e.FinalizeChecksummed(headerChecksumOffset)
}

// DecodeHeaderPage parses one HeaderPageSize-byte page and verifies its
// embedded checksum and magic. A checksum mismatch is reported, not
// fatal — callers try the other header page before giving up (§4.8).
func DecodeHeaderPage(page []byte) (*HeaderPage, error) {
	if len(page) != HeaderPageSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "header page has wrong size").
			WithDetail("size", len(page)).WithDetail("expected", HeaderPageSize)
	}
	if !codec.VerifyChecksummed(page, headerChecksumOffset) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeChecksumMismatch, "header page checksum mismatch")
	}

	d := codec.NewDecoder(page)
	magic, err := d.RawFixed(4)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(FileMagic)) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "bad header magic").
			WithDetail("magic", string(magic))
	}

	hp := &HeaderPage{}
	if hp.FormatVersion, err = d.U16(); err != nil {
		return nil, err
	}
	specMajor, err := d.U8()
	if err != nil {
		return nil, err
	}
	hp.SpecMajor = specMajor
	if hp.SpecMinor, err = d.U8(); err != nil {
		return nil, err
	}
	if hp.HeaderPageGeneration, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.FileGeneration, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.FooterOffset, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.WalOffset, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.WalSize, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.WalWritePos, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.WalCheckpointPos, err = d.U64(); err != nil {
		return nil, err
	}
	if hp.WalCommittedSeq, err = d.U64(); err != nil {
		return nil, err
	}
	toc, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(hp.TocChecksum[:], toc)

	if _, err := d.RawFixed(32); err != nil { // header_checksum, already verified.
		return nil, err
	}

	hasReplay, err := d.OptionalTag()
	if err != nil {
		return nil, err
	}
	if hasReplay {
		rsMagic, err := d.RawFixed(8)
		if err != nil {
			return nil, err
		}
		if !bytes.Equal(rsMagic, []byte(ReplaySnapshotMagic)) {
			return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidHeader, "bad replay snapshot magic").
				WithDetail("magic", string(rsMagic))
		}
		rs := &ReplaySnapshot{}
		if rs.LastAppliedSeq, err = d.U64(); err != nil {
			return nil, err
		}
		if rs.FrameCount, err = d.U64(); err != nil {
			return nil, err
		}
		sum, err := d.RawFixed(32)
		if err != nil {
			return nil, err
		}
		copy(rs.TocChecksum[:], sum)
		hp.Replay = rs
	}

	return hp, nil
}

// ConsistentWith reports whether the header's replay snapshot still
// matches tocChecksum, letting recovery skip the WAL tail scan (§4.8).
func (hp *HeaderPage) ConsistentWith(tocChecksum [32]byte) bool {
	return hp.Replay != nil && bytes.Equal(hp.Replay.TocChecksum[:], tocChecksum[:])
}
