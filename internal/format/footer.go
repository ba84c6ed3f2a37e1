package format

import (
	"bytes"

	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// Footer is the fixed 64-byte trailer written after the TOC on every
// commit (§3, §4.5): magic, the TOC's length and its own trailing
// checksum (so a reader can confirm the TOC is intact without decoding it
// first), and the commit generation/WAL sequence that produced it. The
// TOC immediately precedes its footer in the file, so a footer's TOC
// offset is always (the footer's own file offset) - TocLength; nothing
// in the footer needs to name it directly.
type Footer struct {
	TocLength       uint64
	TocChecksum     [32]byte
	Generation      uint64
	WalCommittedSeq uint64
}

// Encode serializes f into an exact FooterSize-byte buffer.
func (f *Footer) Encode() ([]byte, error) {
	e := codec.NewEncoder(FooterSize)
	e.Raw([]byte(FooterMagic))
	e.U64(f.TocLength)
	if err := e.RawFixed(f.TocChecksum[:], 32); err != nil {
		return nil, err
	}
	e.U64(f.Generation)
	e.U64(f.WalCommittedSeq)

	buf := e.Bytes()
	if len(buf) != FooterSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidFooter, "footer encoded to unexpected size").
			WithDetail("size", len(buf)).WithDetail("expected", FooterSize)
	}
	return buf, nil
}

// DecodeFooter parses an exact FooterSize-byte buffer and validates its
// magic.
func DecodeFooter(buf []byte) (*Footer, error) {
	if len(buf) != FooterSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidFooter, "footer has wrong size").
			WithDetail("size", len(buf)).WithDetail("expected", FooterSize)
	}

	d := codec.NewDecoder(buf)
	magic, err := d.RawFixed(8)
	if err != nil {
		return nil, err
	}
	if !bytes.Equal(magic, []byte(FooterMagic)) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidFooter, "bad footer magic").
			WithDetail("magic", string(magic))
	}

	f := &Footer{}
	if f.TocLength, err = d.U64(); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(f.TocChecksum[:], sum)

	if f.Generation, err = d.U64(); err != nil {
		return nil, err
	}
	if f.WalCommittedSeq, err = d.U64(); err != nil {
		return nil, err
	}

	return f, nil
}

// MatchesToc reports whether f's recorded checksum matches the TOC's own
// trailing self-hash, the cheap cross-check performed before the TOC's
// full contents are decoded (§4.8).
func (f *Footer) MatchesToc(tocChecksum [32]byte) bool {
	return bytes.Equal(f.TocChecksum[:], tocChecksum[:])
}

// TocOffsetAt returns the file offset of the TOC this footer describes,
// given the file offset the footer itself was read from.
func (f *Footer) TocOffsetAt(footerOffset uint64) uint64 {
	return footerOffset - f.TocLength
}
