package errors

// TocError provides specialized error handling for table-of-contents and
// recovery operations: frame/segment/manifest validation, supersede-cycle
// detection, and WAL replay decoding. It embeds baseError to inherit
// chaining and structured details, then adds the identifiers needed to
// pinpoint exactly which frame, segment, or sequence was involved.
type TocError struct {
	*baseError

	frameID  uint64 // Which frame id was being validated when the error occurred.
	segment  string // Which segment or manifest kind was involved ("lex", "vec", "").
	sequence uint64 // Which WAL sequence number was being replayed, if applicable.
}

// NewTocError creates a new TOC/recovery-specific error.
func NewTocError(err error, code ErrorCode, msg string) *TocError {
	return &TocError{baseError: NewBaseError(err, code, msg)}
}

// WithMessage updates the error message while preserving the TocError type.
func (te *TocError) WithMessage(msg string) *TocError {
	te.baseError.WithMessage(msg)
	return te
}

// WithDetail adds contextual information while preserving the TocError type.
func (te *TocError) WithDetail(key string, value any) *TocError {
	te.baseError.WithDetail(key, value)
	return te
}

// WithFrameID records which frame id was being validated.
func (te *TocError) WithFrameID(id uint64) *TocError {
	te.frameID = id
	return te
}

// WithSegment records which segment or manifest kind was involved.
func (te *TocError) WithSegment(kind string) *TocError {
	te.segment = kind
	return te
}

// WithSequence records which WAL sequence number was being replayed.
func (te *TocError) WithSequence(seq uint64) *TocError {
	te.sequence = seq
	return te
}

// FrameID returns the frame id associated with the error.
func (te *TocError) FrameID() uint64 {
	return te.frameID
}

// Segment returns the segment/manifest kind associated with the error.
func (te *TocError) Segment() string {
	return te.segment
}

// Sequence returns the WAL sequence number associated with the error.
func (te *TocError) Sequence() uint64 {
	return te.sequence
}

// NewSupersedeCycleError builds the InvalidToc error raised when a
// supersede edge would create a cycle.
func NewSupersedeCycleError(oldID, newID uint64) *TocError {
	return NewTocError(nil, ErrorCodeInvalidToc, "supersede edge would create a cycle").
		WithFrameID(oldID).
		WithDetail("superseding_id", newID)
}

// NewNonDenseFrameIDError builds the InvalidToc error raised when a
// PutFrame's assigned id does not equal the current frame count.
func NewNonDenseFrameIDError(gotID, wantID uint64) *TocError {
	return NewTocError(nil, ErrorCodeInvalidToc, "frame id is not dense").
		WithFrameID(gotID).
		WithDetail("expected_id", wantID)
}
