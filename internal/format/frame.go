package format

import (
	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// TagPair is a single free-form key/value label attached to a frame.
type TagPair struct {
	Key   string
	Value string
}

// FrameMeta is the per-frame metadata record carried in the TOC's frame
// table (§3). Frame ids are dense (§8 I-DENSE) and never reused; the
// payload range [PayloadOffset, PayloadOffset+PayloadLength) is disjoint
// from every other active frame's range (§8 I-DISJOINT).
type FrameMeta struct {
	ID          uint64
	CreatedAtMs int64
	AnchorAtMs  *int64

	Kind  string
	Track string

	PayloadOffset     uint64
	PayloadLength     uint64
	CanonicalChecksum [32]byte
	CanonicalEncoding CanonicalEncoding
	// CanonicalLength is the decompressed size; present iff CanonicalEncoding
	// != EncodingPlain (§8 I-CANONLEN).
	CanonicalLength *uint64
	// StoredChecksum is the checksum of the bytes actually stored on disk
	// (pre-decompression); present iff CanonicalEncoding != EncodingPlain
	// and PayloadLength > 0 (§8 I-STOREDSUM).
	StoredChecksum *[32]byte

	URI        *string
	Title      *string
	Metadata   map[string]string
	SearchText *string
	Tags       []TagPair
	Labels     []string
	// ContentDates holds free-form millisecond timestamps the caller wants
	// preserved alongside the frame (e.g. message edit history), distinct
	// from CreatedAtMs/AnchorAtMs.
	ContentDates []int64

	Role Role

	ParentID   *uint64
	ChunkIndex *uint32
	ChunkCount *uint32

	Status Status

	// Supersedes is the id of the frame this one replaces, if any.
	Supersedes *uint64
	// SupersededBy is the id of the frame that replaced this one, if any;
	// set by the store, never by the caller.
	SupersededBy *uint64
}

func encodeOptionalU64(e *codec.Encoder, v *uint64) {
	e.OptionalTag(v != nil)
	if v != nil {
		e.U64(*v)
	}
}

func decodeOptionalU64(d *codec.Decoder) (*uint64, error) {
	present, err := d.OptionalTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.U64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeOptionalI64(e *codec.Encoder, v *int64) {
	e.OptionalTag(v != nil)
	if v != nil {
		e.I64(*v)
	}
}

func decodeOptionalI64(d *codec.Decoder) (*int64, error) {
	present, err := d.OptionalTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.I64()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeOptionalU32(e *codec.Encoder, v *uint32) {
	e.OptionalTag(v != nil)
	if v != nil {
		e.U32(*v)
	}
}

func decodeOptionalU32(d *codec.Decoder) (*uint32, error) {
	present, err := d.OptionalTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.U32()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeOptionalString(e *codec.Encoder, v *string) error {
	e.OptionalTag(v != nil)
	if v != nil {
		return e.String(*v)
	}
	return nil
}

func decodeOptionalString(d *codec.Decoder) (*string, error) {
	present, err := d.OptionalTag()
	if err != nil || !present {
		return nil, err
	}
	v, err := d.String()
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func encodeOptionalChecksum(e *codec.Encoder, v *[32]byte) error {
	e.OptionalTag(v != nil)
	if v != nil {
		return e.RawFixed(v[:], 32)
	}
	return nil
}

func decodeOptionalChecksum(d *codec.Decoder) (*[32]byte, error) {
	present, err := d.OptionalTag()
	if err != nil || !present {
		return nil, err
	}
	b, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	var out [32]byte
	copy(out[:], b)
	return &out, nil
}

// Encode appends fm's wire representation to e.
func (fm *FrameMeta) Encode(e *codec.Encoder) error {
	e.U64(fm.ID)
	e.I64(fm.CreatedAtMs)
	encodeOptionalI64(e, fm.AnchorAtMs)

	if err := e.String(fm.Kind); err != nil {
		return err
	}
	if err := e.String(fm.Track); err != nil {
		return err
	}

	e.U64(fm.PayloadOffset)
	e.U64(fm.PayloadLength)
	if err := e.RawFixed(fm.CanonicalChecksum[:], 32); err != nil {
		return err
	}
	e.U8(uint8(fm.CanonicalEncoding))
	encodeOptionalU64(e, fm.CanonicalLength)
	if err := encodeOptionalChecksum(e, fm.StoredChecksum); err != nil {
		return err
	}

	if err := encodeOptionalString(e, fm.URI); err != nil {
		return err
	}
	if err := encodeOptionalString(e, fm.Title); err != nil {
		return err
	}

	if err := e.ArrayLen(len(fm.Metadata)); err != nil {
		return err
	}
	for _, k := range sortedKeys(fm.Metadata) {
		if err := e.String(k); err != nil {
			return err
		}
		if err := e.String(fm.Metadata[k]); err != nil {
			return err
		}
	}

	if err := encodeOptionalString(e, fm.SearchText); err != nil {
		return err
	}

	if err := e.ArrayLen(len(fm.Tags)); err != nil {
		return err
	}
	for _, t := range fm.Tags {
		if err := e.String(t.Key); err != nil {
			return err
		}
		if err := e.String(t.Value); err != nil {
			return err
		}
	}

	if err := e.ArrayLen(len(fm.Labels)); err != nil {
		return err
	}
	for _, l := range fm.Labels {
		if err := e.String(l); err != nil {
			return err
		}
	}

	if err := e.ArrayLen(len(fm.ContentDates)); err != nil {
		return err
	}
	for _, ts := range fm.ContentDates {
		e.I64(ts)
	}

	e.U8(uint8(fm.Role))

	encodeOptionalU64(e, fm.ParentID)
	encodeOptionalU32(e, fm.ChunkIndex)
	encodeOptionalU32(e, fm.ChunkCount)

	e.U8(uint8(fm.Status))

	encodeOptionalU64(e, fm.Supersedes)
	encodeOptionalU64(e, fm.SupersededBy)

	return nil
}

// DecodeFrameMeta reads a FrameMeta from d and validates its structural
// invariants (§8 I-CANONLEN, I-STOREDSUM, valid enum ranges).
func DecodeFrameMeta(d *codec.Decoder) (*FrameMeta, error) {
	fm := &FrameMeta{}

	var err error
	if fm.ID, err = d.U64(); err != nil {
		return nil, err
	}
	if fm.CreatedAtMs, err = d.I64(); err != nil {
		return nil, err
	}
	if fm.AnchorAtMs, err = decodeOptionalI64(d); err != nil {
		return nil, err
	}
	if fm.Kind, err = d.String(); err != nil {
		return nil, err
	}
	if fm.Track, err = d.String(); err != nil {
		return nil, err
	}
	if fm.PayloadOffset, err = d.U64(); err != nil {
		return nil, err
	}
	if fm.PayloadLength, err = d.U64(); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(fm.CanonicalChecksum[:], sum)

	enc, err := d.U8()
	if err != nil {
		return nil, err
	}
	fm.CanonicalEncoding = CanonicalEncoding(enc)
	if !fm.CanonicalEncoding.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid canonical encoding").
			WithField("canonicalEncoding").WithProvided(enc)
	}

	if fm.CanonicalLength, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}
	if fm.StoredChecksum, err = decodeOptionalChecksum(d); err != nil {
		return nil, err
	}
	if fm.URI, err = decodeOptionalString(d); err != nil {
		return nil, err
	}
	if fm.Title, err = decodeOptionalString(d); err != nil {
		return nil, err
	}

	mdLen, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	if mdLen > 0 {
		fm.Metadata = make(map[string]string, mdLen)
		for i := 0; i < mdLen; i++ {
			k, err := d.String()
			if err != nil {
				return nil, err
			}
			v, err := d.String()
			if err != nil {
				return nil, err
			}
			fm.Metadata[k] = v
		}
	}

	if fm.SearchText, err = decodeOptionalString(d); err != nil {
		return nil, err
	}

	tagLen, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < tagLen; i++ {
		k, err := d.String()
		if err != nil {
			return nil, err
		}
		v, err := d.String()
		if err != nil {
			return nil, err
		}
		fm.Tags = append(fm.Tags, TagPair{Key: k, Value: v})
	}

	labelLen, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < labelLen; i++ {
		l, err := d.String()
		if err != nil {
			return nil, err
		}
		fm.Labels = append(fm.Labels, l)
	}

	datesLen, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	for i := 0; i < datesLen; i++ {
		ts, err := d.I64()
		if err != nil {
			return nil, err
		}
		fm.ContentDates = append(fm.ContentDates, ts)
	}

	role, err := d.U8()
	if err != nil {
		return nil, err
	}
	fm.Role = Role(role)
	if !fm.Role.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid role").
			WithField("role").WithProvided(role)
	}

	if fm.ParentID, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}
	if fm.ChunkIndex, err = decodeOptionalU32(d); err != nil {
		return nil, err
	}
	if fm.ChunkCount, err = decodeOptionalU32(d); err != nil {
		return nil, err
	}

	status, err := d.U8()
	if err != nil {
		return nil, err
	}
	fm.Status = Status(status)
	if !fm.Status.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid status").
			WithField("status").WithProvided(status)
	}

	if fm.Supersedes, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}
	if fm.SupersededBy, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}

	if err := fm.validateInvariants(); err != nil {
		return nil, err
	}
	return fm, nil
}

func (fm *FrameMeta) validateInvariants() error {
	if fm.CanonicalEncoding != EncodingPlain {
		if fm.CanonicalLength == nil {
			return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "compressed frame missing canonical length").
				WithFrameID(fm.ID)
		}
		if fm.PayloadLength > 0 && fm.StoredChecksum == nil {
			return errors.NewTocError(nil, errors.ErrorCodeInvalidToc, "compressed frame missing stored checksum").
				WithFrameID(fm.ID)
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	if len(m) == 0 {
		return nil
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	// Insertion sort is fine here: metadata maps are small (user-supplied
	// key/value pairs per frame, not a bulk index).
	for i := 1; i < len(keys); i++ {
		for j := i; j > 0 && keys[j-1] > keys[j]; j-- {
			keys[j-1], keys[j] = keys[j], keys[j-1]
		}
	}
	return keys
}
