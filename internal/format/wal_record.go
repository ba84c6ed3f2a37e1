package format

import (
	"crypto/sha256"
	"math"

	"github.com/mv2s/mv2s/pkg/codec"
	"github.com/mv2s/mv2s/pkg/errors"
)

// RecordHeader is the fixed 48-byte header prefixing every WAL record
// (§4.6): sequence, payload length, flags, and a checksum whose meaning
// depends on FlagPadding.
type RecordHeader struct {
	Sequence uint64
	Length   uint32
	Flags    uint32
	Checksum [32]byte
}

const FlagPadding uint32 = 1 << 0

// IsPadding reports whether the padding bit is set.
func (h *RecordHeader) IsPadding() bool {
	return h.Flags&FlagPadding != 0
}

// IsSentinel reports whether h is the all-zero terminator header.
func (h *RecordHeader) IsSentinel() bool {
	return h.Sequence == 0 && h.Length == 0 && h.Flags == 0 && h.Checksum == [32]byte{}
}

// Encode writes h's 48-byte wire representation.
func (h *RecordHeader) Encode() []byte {
	e := codec.NewEncoder(WalRecordHeaderSize)
	e.U64(h.Sequence)
	e.U32(h.Length)
	e.U32(h.Flags)
	e.Raw(h.Checksum[:])
	return e.Bytes()
}

// DecodeRecordHeader parses an exact 48-byte buffer.
func DecodeRecordHeader(buf []byte) (*RecordHeader, error) {
	if len(buf) != WalRecordHeaderSize {
		return nil, errors.NewTocError(nil, errors.ErrorCodeWalCorruption, "wal record header has wrong size").
			WithDetail("size", len(buf)).WithDetail("expected", WalRecordHeaderSize)
	}
	d := codec.NewDecoder(buf)
	h := &RecordHeader{}
	var err error
	if h.Sequence, err = d.U64(); err != nil {
		return nil, err
	}
	if h.Length, err = d.U32(); err != nil {
		return nil, err
	}
	if h.Flags, err = d.U32(); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(h.Checksum[:], sum)
	return h, nil
}

// EmptyPayloadChecksum is the SHA-256 of a zero-length payload, used for
// padding records and computed once at init.
var EmptyPayloadChecksum = sha256.Sum256(nil)

// NewDataRecordHeader builds the header for a data record carrying payload.
func NewDataRecordHeader(sequence uint64, payload []byte) *RecordHeader {
	sum := sha256.Sum256(payload)
	return &RecordHeader{
		Sequence: sequence,
		Length:   uint32(len(payload)),
		Flags:    0,
		Checksum: sum,
	}
}

// NewPaddingRecordHeader builds the header for a padding record that skips
// skipBytes of ring space.
func NewPaddingRecordHeader(sequence uint64, skipBytes uint32) *RecordHeader {
	return &RecordHeader{
		Sequence: sequence,
		Length:   skipBytes,
		Flags:    FlagPadding,
		Checksum: EmptyPayloadChecksum,
	}
}

// FrameMetaSubset carries the caller-supplied fields of a frame at
// PutFrame append time — everything except the identifiers and links the
// store assigns or mutates later (§4.6).
type FrameMetaSubset struct {
	AnchorAtMs *int64
	Kind       string
	Track      string
	URI        *string
	Title      *string
	Metadata   map[string]string
	SearchText *string
	Tags       []TagPair
	Labels     []string
	ContentDates []int64
	Role       Role
	ParentID   *uint64
	ChunkIndex *uint32
	ChunkCount *uint32
}

func (s *FrameMetaSubset) encode(e *codec.Encoder) error {
	encodeOptionalI64(e, s.AnchorAtMs)
	if err := e.String(s.Kind); err != nil {
		return err
	}
	if err := e.String(s.Track); err != nil {
		return err
	}
	if err := encodeOptionalString(e, s.URI); err != nil {
		return err
	}
	if err := encodeOptionalString(e, s.Title); err != nil {
		return err
	}
	if err := e.ArrayLen(len(s.Metadata)); err != nil {
		return err
	}
	for _, k := range sortedKeys(s.Metadata) {
		if err := e.String(k); err != nil {
			return err
		}
		if err := e.String(s.Metadata[k]); err != nil {
			return err
		}
	}
	if err := encodeOptionalString(e, s.SearchText); err != nil {
		return err
	}
	if err := e.ArrayLen(len(s.Tags)); err != nil {
		return err
	}
	for _, t := range s.Tags {
		if err := e.String(t.Key); err != nil {
			return err
		}
		if err := e.String(t.Value); err != nil {
			return err
		}
	}
	if err := e.ArrayLen(len(s.Labels)); err != nil {
		return err
	}
	for _, l := range s.Labels {
		if err := e.String(l); err != nil {
			return err
		}
	}
	if err := e.ArrayLen(len(s.ContentDates)); err != nil {
		return err
	}
	for _, ts := range s.ContentDates {
		e.I64(ts)
	}
	e.U8(uint8(s.Role))
	encodeOptionalU64(e, s.ParentID)
	encodeOptionalU32(e, s.ChunkIndex)
	encodeOptionalU32(e, s.ChunkCount)
	return nil
}

func decodeFrameMetaSubset(d *codec.Decoder) (*FrameMetaSubset, error) {
	s := &FrameMetaSubset{}
	var err error
	if s.AnchorAtMs, err = decodeOptionalI64(d); err != nil {
		return nil, err
	}
	if s.Kind, err = d.String(); err != nil {
		return nil, err
	}
	if s.Track, err = d.String(); err != nil {
		return nil, err
	}
	if s.URI, err = decodeOptionalString(d); err != nil {
		return nil, err
	}
	if s.Title, err = decodeOptionalString(d); err != nil {
		return nil, err
	}
	mdLen, err := d.ArrayLen()
	if err != nil {
		return nil, err
	}
	if mdLen > 0 {
		s.Metadata = make(map[string]string, mdLen)
		for i := 0; i < mdLen; i++ {
			k, err := d.String()
			if err != nil {
				return nil, err
			}
			v, err := d.String()
			if err != nil {
				return nil, err
			}
			s.Metadata[k] = v
		}
	}
	if s.SearchText, err = decodeOptionalString(d); err != nil {
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
		s.Tags = append(s.Tags, TagPair{Key: k, Value: v})
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
		s.Labels = append(s.Labels, l)
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
		s.ContentDates = append(s.ContentDates, ts)
	}
	role, err := d.U8()
	if err != nil {
		return nil, err
	}
	s.Role = Role(role)
	if !s.Role.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid role").
			WithField("role").WithProvided(role)
	}
	if s.ParentID, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}
	if s.ChunkIndex, err = decodeOptionalU32(d); err != nil {
		return nil, err
	}
	if s.ChunkCount, err = decodeOptionalU32(d); err != nil {
		return nil, err
	}
	return s, nil
}

// PutFramePayload is the WAL payload for OpPutFrame.
type PutFramePayload struct {
	FrameID           uint64
	CreatedAtMs       int64
	Meta              FrameMetaSubset
	PayloadOffset     uint64
	PayloadLength     uint64
	CanonicalEncoding CanonicalEncoding
	CanonicalLength   *uint64
	CanonicalChecksum [32]byte
	StoredChecksum    *[32]byte
}

// Encode serializes p as a standalone WAL payload (no header/length prefix
// of its own — the caller wraps it in a RecordHeader).
func (p *PutFramePayload) Encode() ([]byte, error) {
	e := codec.NewEncoder(256)
	e.U64(p.FrameID)
	e.I64(p.CreatedAtMs)
	if err := p.Meta.encode(e); err != nil {
		return nil, err
	}
	e.U64(p.PayloadOffset)
	e.U64(p.PayloadLength)
	e.U8(uint8(p.CanonicalEncoding))
	encodeOptionalU64(e, p.CanonicalLength)
	if err := e.RawFixed(p.CanonicalChecksum[:], 32); err != nil {
		return nil, err
	}
	if err := encodeOptionalChecksum(e, p.StoredChecksum); err != nil {
		return nil, err
	}
	return e.Bytes(), nil
}

// DecodePutFramePayload parses a PutFrame WAL payload.
func DecodePutFramePayload(buf []byte) (*PutFramePayload, error) {
	d := codec.NewDecoder(buf)
	p := &PutFramePayload{}
	var err error
	if p.FrameID, err = d.U64(); err != nil {
		return nil, err
	}
	if p.CreatedAtMs, err = d.I64(); err != nil {
		return nil, err
	}
	meta, err := decodeFrameMetaSubset(d)
	if err != nil {
		return nil, err
	}
	p.Meta = *meta
	if p.PayloadOffset, err = d.U64(); err != nil {
		return nil, err
	}
	if p.PayloadLength, err = d.U64(); err != nil {
		return nil, err
	}
	enc, err := d.U8()
	if err != nil {
		return nil, err
	}
	p.CanonicalEncoding = CanonicalEncoding(enc)
	if !p.CanonicalEncoding.Valid() {
		return nil, errors.NewValidationError(nil, errors.ErrorCodeDecodingError, "invalid canonical encoding").
			WithField("canonicalEncoding").WithProvided(enc)
	}
	if p.CanonicalLength, err = decodeOptionalU64(d); err != nil {
		return nil, err
	}
	sum, err := d.RawFixed(32)
	if err != nil {
		return nil, err
	}
	copy(p.CanonicalChecksum[:], sum)
	if p.StoredChecksum, err = decodeOptionalChecksum(d); err != nil {
		return nil, err
	}
	return p, d.Finalize()
}

// DeleteFramePayload is the WAL payload for OpDeleteFrame.
type DeleteFramePayload struct {
	FrameID uint64
}

func (p *DeleteFramePayload) Encode() []byte {
	e := codec.NewEncoder(8)
	e.U64(p.FrameID)
	return e.Bytes()
}

func DecodeDeleteFramePayload(buf []byte) (*DeleteFramePayload, error) {
	d := codec.NewDecoder(buf)
	id, err := d.U64()
	if err != nil {
		return nil, err
	}
	return &DeleteFramePayload{FrameID: id}, d.Finalize()
}

// SupersedeFramePayload is the WAL payload for OpSupersedeFrame.
type SupersedeFramePayload struct {
	SupersededID  uint64
	SupersedingID uint64
}

func (p *SupersedeFramePayload) Encode() []byte {
	e := codec.NewEncoder(16)
	e.U64(p.SupersededID)
	e.U64(p.SupersedingID)
	return e.Bytes()
}

func DecodeSupersedeFramePayload(buf []byte) (*SupersedeFramePayload, error) {
	d := codec.NewDecoder(buf)
	old, err := d.U64()
	if err != nil {
		return nil, err
	}
	newID, err := d.U64()
	if err != nil {
		return nil, err
	}
	return &SupersedeFramePayload{SupersededID: old, SupersedingID: newID}, d.Finalize()
}

// PutEmbeddingPayload is the WAL payload for OpPutEmbedding: frame_id plus
// a dense float32 vector stored as LE bytes.
type PutEmbeddingPayload struct {
	FrameID   uint64
	Dimension uint32
	Vector    []float32
}

func (p *PutEmbeddingPayload) Encode() []byte {
	e := codec.NewEncoder(12 + 4*len(p.Vector))
	e.U64(p.FrameID)
	e.U32(p.Dimension)
	for _, f := range p.Vector {
		e.U32(math.Float32bits(f))
	}
	return e.Bytes()
}

// DecodePutEmbeddingPayload parses a PutEmbedding WAL payload, failing with
// WalCorruption if the declared dimension doesn't match the payload size.
func DecodePutEmbeddingPayload(buf []byte) (*PutEmbeddingPayload, error) {
	d := codec.NewDecoder(buf)
	p := &PutEmbeddingPayload{}
	var err error
	if p.FrameID, err = d.U64(); err != nil {
		return nil, err
	}
	if p.Dimension, err = d.U32(); err != nil {
		return nil, err
	}
	if d.Remaining() != int(p.Dimension)*4 {
		return nil, errors.NewTocError(nil, errors.ErrorCodeWalCorruption, "embedding payload length does not match dimension").
			WithDetail("dimension", p.Dimension).WithDetail("remaining", d.Remaining())
	}
	p.Vector = make([]float32, p.Dimension)
	for i := range p.Vector {
		bits, err := d.U32()
		if err != nil {
			return nil, err
		}
		p.Vector[i] = math.Float32frombits(bits)
	}
	return p, d.Finalize()
}
