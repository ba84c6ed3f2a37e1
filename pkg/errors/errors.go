// Package errors implements the store engine's error taxonomy: a
// foundational baseError extended into domain-specific error types so that
// callers can branch on a stable set of error kinds (see ErrorCode)
// instead of parsing messages, while still getting rich structured context
// for logging and diagnosis.
//
// The domain split mirrors where failures actually originate: a
// ValidationError describes bad caller input (options, ids) before any I/O
// happens; a StorageError describes file-position failures in the header
// pages, WAL ring, or data region; a TocError describes failures decoding
// or validating the table of contents and WAL replay stream. All three
// embed baseError and support the same fluent WithDetail/WithMessage
// pattern, so error construction reads the same regardless of which layer
// raised it.
package errors

import (
	stdErrors "errors"
	"os"
	"syscall"
)

// IsValidationError checks if the given error is a ValidationError or
// contains one in its error chain.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return stdErrors.As(err, &ve)
}

// IsStorageError determines if an error originated from a file-position
// operation: header/footer I/O, WAL append/scan, data region read/write.
func IsStorageError(err error) bool {
	var se *StorageError
	return stdErrors.As(err, &se)
}

// IsTocError identifies errors from TOC decode/validate or WAL replay.
func IsTocError(err error) bool {
	var te *TocError
	return stdErrors.As(err, &te)
}

// AsValidationError safely extracts a ValidationError from an error chain.
func AsValidationError(err error) (*ValidationError, bool) {
	var ve *ValidationError
	if stdErrors.As(err, &ve) {
		return ve, true
	}
	return nil, false
}

// AsStorageError safely extracts a StorageError from an error chain.
func AsStorageError(err error) (*StorageError, bool) {
	var se *StorageError
	if stdErrors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// AsTocError safely extracts a TocError from an error chain.
func AsTocError(err error) (*TocError, bool) {
	var te *TocError
	if stdErrors.As(err, &te) {
		return te, true
	}
	return nil, false
}

// Code extracts the error code from any error that supports it, or returns
// ErrorCodeInternal for errors that don't carry one.
func Code(err error) ErrorCode {
	if ve, ok := AsValidationError(err); ok {
		return ve.Code()
	}
	if se, ok := AsStorageError(err); ok {
		return se.Code()
	}
	if te, ok := AsTocError(err); ok {
		return te.Code()
	}
	return ErrorCodeInternal
}

// Details extracts structured details from any error that supports them,
// returning an empty map for errors without details.
func Details(err error) map[string]any {
	if ve, ok := AsValidationError(err); ok {
		if d := ve.Details(); d != nil {
			return d
		}
	}
	if se, ok := AsStorageError(err); ok {
		if d := se.Details(); d != nil {
			return d
		}
	}
	if te, ok := AsTocError(err); ok {
		if d := te.Details(); d != nil {
			return d
		}
	}
	return make(map[string]any)
}

// ClassifyFileOpenError analyzes a file-open failure and returns a
// StorageError carrying the specific syscall-level reason, so that callers
// and logs see "disk full" or "permission denied" rather than a generic
// I/O error.
func ClassifyFileOpenError(err error, path string) error {
	if os.IsPermission(err) {
		return NewStorageError(err, ErrorCodeIO, "failed to open store file").
			WithPath(path).
			WithDetail("reason", ReasonPermissionDenied)
	}

	var pathErr *os.PathError
	if stdErrors.As(err, &pathErr) {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ENOSPC:
				return NewStorageError(err, ErrorCodeIO, "failed to open store file: disk full").
					WithPath(path).
					WithDetail("reason", ReasonDiskFull)
			case syscall.EROFS:
				return NewStorageError(err, ErrorCodeIO, "failed to open store file: read-only filesystem").
					WithPath(path).
					WithDetail("reason", ReasonFilesystemReadonly)
			}
		}
	}

	return NewStorageError(err, ErrorCodeIO, "failed to open store file").WithPath(path)
}

// ClassifySyncError analyzes an fsync failure and returns a StorageError
// carrying the specific syscall-level reason.
func ClassifySyncError(err error, path string, offset int64) error {
	var pathErr *os.PathError
	if stdErrors.As(err, &pathErr) {
		if errno, ok := pathErr.Err.(syscall.Errno); ok {
			switch errno {
			case syscall.ENOSPC:
				return NewStorageError(err, ErrorCodeIO, "fsync failed: disk full").
					WithPath(path).WithOffset(offset).WithDetail("reason", ReasonDiskFull)
			case syscall.EROFS:
				return NewStorageError(err, ErrorCodeIO, "fsync failed: read-only filesystem").
					WithPath(path).WithOffset(offset).WithDetail("reason", ReasonFilesystemReadonly)
			case syscall.EIO:
				return NewStorageError(err, ErrorCodeIO, "fsync failed: I/O error").
					WithPath(path).WithOffset(offset).WithDetail("severity", "high")
			}
		}
	}
	return NewStorageError(err, ErrorCodeIO, "fsync failed").WithPath(path).WithOffset(offset)
}
