package format

import (
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// SegmentEntry describes one contiguous byte range of the data region that
// backs a staged lexical or vector index segment (§3). Entries of a given
// kind are sorted by Offset and pairwise non-overlapping (§8 I-SEGSORT).
type SegmentEntry struct {
	SegmentID   uint64
	Kind        SegmentKind
	Offset      uint64
	Length      uint64
	Checksum    [32]byte
	Compression CanonicalEncoding
	Ordinal     uint32 // Position among segments of the same kind, assigned at staging time.
}

// Encode appends se's wire representation to e.
func (se *SegmentEntry) Encode(e *codec.Encoder) error {
	e.U64(se.SegmentID)
	e.U8(uint8(se.Kind))
	e.U64(se.Offset)
	e.U64(se.Length)
	if err := e.RawFixed(se.Checksum[:], 32); err != nil {
		return err
	}
	e.U8(uint8(se.Compression))
	e.U32(se.Ordinal)
	return nil
}

// DecodeSegmentEntry reads a SegmentEntry from d.
func DecodeSegmentEntry(d *codec.Decoder) (*SegmentEntry, error) {
	se := &SegmentEntry{}
	var err error
	if se.SegmentID, err = d.U64(); err != nil {
		return nil, err
	}
	kind, err := d.U8()
	if err != nil {
		return nil, err
	}
	se.Kind = SegmentKind(kind)
	if !se.Kind.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid segment kind").
			WithField("kind").WithProvided(kind)
	}
	if se.Offset, err = d.U64(); err != nil {
		return nil, err
	}
	if se.Length, err = d.U64(); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(se.Checksum[:], sum)
	compression, err := d.U8()
	if err != nil {
		return nil, err
	}
	se.Compression = CanonicalEncoding(compression)
	if !se.Compression.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid segment compression").
			WithField("compression").WithProvided(compression)
	}
	if se.Ordinal, err = d.U32(); err != nil {
		return nil, err
	}
	return se, nil
}

// ValidateCatalogSorted checks that entries are sorted by Offset within
// each kind and that no two entries of the same kind overlap (§8
// I-SEGSORT). entries may mix kinds; only same-kind pairs are compared.
func ValidateCatalogSorted(entries []*SegmentEntry) error {
	lastOffsetByKind := map[SegmentKind]uint64{}
	haveByKind := map[SegmentKind]bool{}

	for _, e := range entries {
		if haveByKind[e.Kind] {
			prev := lastOffsetByKind[e.Kind]
			if e.Offset < prev {
				return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "segment catalog is not sorted by offset").
					WithSegment(e.Kind.String())
			}
		}
		lastOffsetByKind[e.Kind] = e.Offset + e.Length
		haveByKind[e.Kind] = true
	}

	for i := 0; i < len(entries); i++ {
		for j := i + 1; j < len(entries); j++ {
			a, b := entries[i], entries[j]
			if a.Kind != b.Kind {
				continue
			}
			if rangesOverlap(a.Offset, a.Length, b.Offset, b.Length) {
				return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "segment catalog entries overlap").
					WithSegment(a.Kind.String())
			}
		}
	}
	return nil
}

func rangesOverlap(off1, len1, off2, len2 uint64) bool {
	end1, end2 := off1+len1, off2+len2
	return off1 < end2 && off2 < end1
}

// IndexManifest is the committed description of a text (lex) or vector
// (vec) index segment (§3): at most one manifest per kind exists at a
// time; staging a manifest byte-identical to the committed one is a no-op.
type IndexManifest struct {
	Kind SegmentKind
	// Count is the document count for a lex manifest, or the vector count
	// for a vec manifest.
	Count            uint64
	Offset           uint64
	Length           uint64
	Checksum         [32]byte
	FormatVersion    uint32
	// SimilarityMetric is set only for Kind == SegmentKindVec (e.g. "cosine",
	// "dot", "l2").
	SimilarityMetric *string
}

// Encode appends im's wire representation to e.
func (im *IndexManifest) Encode(e *codec.Encoder) error {
	e.U8(uint8(im.Kind))
	e.U64(im.Count)
	e.U64(im.Offset)
	e.U64(im.Length)
	if err := e.RawFixed(im.Checksum[:], 32); err != nil {
		return err
	}
	e.U32(im.FormatVersion)
	return encodeOptionalString(e, im.SimilarityMetric)
}

// DecodeIndexManifest reads an IndexManifest from d, rejecting a
// similarity metric attached to a lex manifest.
func DecodeIndexManifest(d *codec.Decoder) (*IndexManifest, error) {
	im := &IndexManifest{}
	kind, err := d.U8()
	if err != nil {
		return nil, err
	}
	im.Kind = SegmentKind(kind)
	if !im.Kind.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid manifest kind").
			WithField("kind").WithProvided(kind)
	}
	if im.Count, err = d.U64(); err != nil {
		return nil, err
	}
	if im.Offset, err = d.U64(); err != nil {
		return nil, err
	}
	if im.Length, err = d.U64(); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(im.Checksum[:], sum)
	if im.FormatVersion, err = d.U32(); err != nil {
		return nil, err
	}
	if im.SimilarityMetric, err = decodeOptionalString(d); err != nil {
		return nil, err
	}
	if im.Kind == SegmentKindLex && im.SimilarityMetric != nil {
		return nil, errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "lex manifest must not carry a similarity metric").
			WithSegment(im.Kind.String())
	}
	return im, nil
}
