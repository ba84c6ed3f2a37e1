package errors

// StorageError is a specialized error type for file-level and on-disk
// region operations (header pages, WAL ring, data region, footer). It
// embeds baseError to inherit chaining and structured details, then adds
// the file-position context needed to pinpoint exactly where an I/O or
// format failure occurred.
type StorageError struct {
	*baseError
	offset     int64  // Byte offset within the store file where the problem happened.
	generation uint64 // Header/file generation in effect when the error occurred.
	path       string // Path of the store file.
}

// NewStorageError creates a new storage-specific error.
func NewStorageError(err error, code ErrorCode, msg string) *StorageError {
	return &StorageError{baseError: NewBaseError(err, code, msg)}
}

// WithOffset records the byte position where the error occurred.
func (se *StorageError) WithOffset(offset int64) *StorageError {
	se.offset = offset
	return se
}

// WithGeneration records the header/file generation in effect at the time
// of the error.
func (se *StorageError) WithGeneration(generation uint64) *StorageError {
	se.generation = generation
	return se
}

// WithPath captures which path was being processed when the error occurred.
func (se *StorageError) WithPath(path string) *StorageError {
	se.path = path
	return se
}

// WithMessage updates the error message while preserving the StorageError type.
func (se *StorageError) WithMessage(msg string) *StorageError {
	se.baseError.WithMessage(msg)
	return se
}

// WithDetail adds contextual information while preserving the StorageError type.
func (se *StorageError) WithDetail(key string, value any) *StorageError {
	se.baseError.WithDetail(key, value)
	return se
}

// Offset returns the byte offset where the error happened.
func (se *StorageError) Offset() int64 {
	return se.offset
}

// Generation returns the header/file generation in effect at the time of
// the error.
func (se *StorageError) Generation() uint64 {
	return se.generation
}

// Path returns the path of the file that was being processed.
func (se *StorageError) Path() string {
	return se.path
}
