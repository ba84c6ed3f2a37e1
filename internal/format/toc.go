package format

import (
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// Toc is the table of contents (§3, version 1): the frame table, the
// segment catalog, the index manifests, and a trailing self-hash that
// covers the whole serialized structure.
type Toc struct {
	Version       uint64
	ReservedFlags uint64
	Frames        []*FrameMeta
	Segments      []*SegmentEntry
	Manifests     []*IndexManifest
}

// Encode serializes t and appends its trailing SHA-256 self-hash,
// returning the complete byte representation.
func (t *Toc) Encode() ([]byte, error) {
	e := codec.NewEncoder(4096)

	e.U64(t.Version)
	e.U64(t.ReservedFlags)

	if err := e.ArrayLen(len(t.Frames)); err != nil {
		return nil, err
	}
	for _, fm := range t.Frames {
		if err := fm.Encode(e); err != nil {
			return nil, err
		}
	}

	if err := e.ArrayLen(len(t.Segments)); err != nil {
		return nil, err
	}
	for _, se := range t.Segments {
		if err := se.Encode(e); err != nil {
			return nil, err
		}
	}

	if err := e.ArrayLen(len(t.Manifests)); err != nil {
		return nil, err
	}
	for _, im := range t.Manifests {
		if err := im.Encode(e); err != nil {
			return nil, err
		}
	}

	checksumOffset := e.Len()
	e.Raw(make([]byte, 32))

	return e.FinalizeChecksummed(checksumOffset)
}

// DecodeToc parses and validates a complete serialized TOC, including its
// trailing self-hash, frame density (§8 I-DENSE), and segment catalog
// ordering (§8 I-SEGSORT). buf must be the exact encoded length; trailing
// garbage is rejected.
func DecodeToc(buf []byte) (*Toc, error) {
	if len(buf) < 32 {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "toc shorter than trailing checksum")
	}
	checksumOffset := len(buf) - 32
	if !codec.VerifyChecksummed(buf, checksumOffset) {
		return nil, errors.NewTocError(nil, errors.ErrorCodeChecksumMismatch, "toc checksum mismatch")
	}

	d := codec.NewDecoder(buf)
	t := &Toc{}

	var err error
	if t.Version, err = d.U64(); err != nil {
		return nil, err
	}
	if t.Version != TocVersion1 {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "unsupported toc version").
			WithDetail("version", t.Version)
	}
	if t.ReservedFlags, err = d.U64(); err != nil {
		return nil, err
	}
	if t.ReservedFlags != 0 {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "reserved flags must be zero in v1 toc").
			WithDetail("reserved_flags", t.ReservedFlags)
	}

	frameCount, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	t.Frames = make([]*FrameMeta, 0, frameCount)
	for i := 0; i < frameCount; i++ {
		fm, err := DecodeFrameMeta(d)
		if err != nil {
			return nil, err
		}
		if fm.ID != uint64(i) {
			return nil, errors.NewNonDenseFrameIDError(fm.ID, uint64(i))
		}
		t.Frames = append(t.Frames, fm)
	}

	segCount, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	t.Segments = make([]*SegmentEntry, 0, segCount)
	for i := 0; i < segCount; i++ {
		se, err := DecodeSegmentEntry(d)
		if err != nil {
			return nil, err
		}
		t.Segments = append(t.Segments, se)
	}
	if err := ValidateCatalogSorted(t.Segments); err != nil {
		return nil, err
	}

	manifestCount, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	t.Manifests = make([]*IndexManifest, 0, manifestCount)
	for i := 0; i < manifestCount; i++ {
		im, err := DecodeIndexManifest(d)
		if err != nil {
			return nil, err
		}
		t.Manifests = append(t.Manifests, im)
	}

	// Remaining 32 bytes are the trailing checksum already verified above.
	if d.Remaining() != 32 {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "unexpected trailing bytes before checksum").
			WithDetail("remaining", d.Remaining())
	}

	return t, nil
}

// Checksum returns the SHA-256 self-hash of t's encoded form: the trailing
// 32 bytes Encode writes.
func (t *Toc) Checksum() ([32]byte, error) {
	buf, err := t.Encode()
	if err != nil {
		return [32]byte{}, err
	}
	var sum [32]byte
	copy(sum[:], buf[len(buf)-32:])
	return sum, nil
}
