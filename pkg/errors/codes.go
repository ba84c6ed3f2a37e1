package errors

// ErrorCode represents a standardized way to categorize different types of errors.
type ErrorCode string

// Base error codes cover fundamental failure categories that don't map onto
// a single on-disk format concern.
const (
	// ErrorCodeInvalidInput represents caller-side errors where the provided
	// options or arguments don't meet the API's requirements.
	ErrorCodeInvalidInput ErrorCode = "INVALID_INPUT"

	// ErrorCodeInternal represents unexpected failures that don't fit into
	// any of the domain codes below — bugs or invariant violations.
	ErrorCodeInternal ErrorCode = "INTERNAL_ERROR"
)

// Domain error codes mirror the nine error kinds of the on-disk format
// specification: every failure the store engine raises maps to exactly one
// of these.
const (
	// ErrorCodeIO covers any file system operation failure: short reads,
	// write failures, fsync failures, lock acquisition failures.
	ErrorCodeIO ErrorCode = "IO_ERROR"

	// ErrorCodeInvalidHeader covers header page magic, version, or checksum
	// failures, and header-selection failure (neither page valid).
	ErrorCodeInvalidHeader ErrorCode = "INVALID_HEADER"

	// ErrorCodeInvalidFooter covers footer magic, bounded toc_len, or
	// no-valid-footer-found failures.
	ErrorCodeInvalidFooter ErrorCode = "INVALID_FOOTER"

	// ErrorCodeInvalidToc covers TOC version mismatch, non-dense frame ids,
	// reserved-field misuse, out-of-range enums, overlapping/unsorted
	// segments, missing checksum/length fields, supersede cycles, and range
	// violations against the data region.
	ErrorCodeInvalidToc ErrorCode = "INVALID_TOC"

	// ErrorCodeChecksumMismatch covers deep-verify and WAL record checksum
	// failures.
	ErrorCodeChecksumMismatch ErrorCode = "CHECKSUM_MISMATCH"

	// ErrorCodeEncodingError covers encoder precondition violations, e.g. a
	// checksum slice whose length isn't 32.
	ErrorCodeEncodingError ErrorCode = "ENCODING_ERROR"

	// ErrorCodeDecodingError covers truncated buffers, invalid UTF-8, excess
	// bytes at finalize, and invalid optional tags.
	ErrorCodeDecodingError ErrorCode = "DECODING_ERROR"

	// ErrorCodeCapacityExceeded covers a WAL entry (plus required padding
	// and trailing sentinel) that would not fit within wal_size or the
	// pending-bytes budget.
	ErrorCodeCapacityExceeded ErrorCode = "CAPACITY_EXCEEDED"

	// ErrorCodeWalCorruption covers internal inconsistencies in a WAL
	// record header: zero length, oversized length, bad flags.
	ErrorCodeWalCorruption ErrorCode = "WAL_CORRUPTION"
)

// I/O sub-reasons refine ErrorCodeIO with the specific syscall-level cause,
// surfaced through StorageError.WithDetail("reason", ...) rather than as
// distinct top-level codes, since callers branch on the nine kinds above.
const (
	ReasonPermissionDenied = "permission_denied"
	ReasonDiskFull         = "disk_full"
	ReasonFilesystemReadonly = "filesystem_readonly"
)
