package filesys

import (
	"io"
	"os"
)

// ReadAt reads up to len(buf) bytes from file starting at offset, returning
// however many bytes were actually read (which may be fewer than len(buf)
// at EOF). It never errors on a short read, matching §4.3's "positional
// read returns up to N bytes".
func ReadAt(file *os.File, offset int64, buf []byte) (int, error) {
	n, err := file.ReadAt(buf, offset)
	if err != nil && err != io.EOF {
		return n, err
	}
	return n, nil
}

// ReadExactAt reads exactly len(buf) bytes from file starting at offset,
// failing if fewer bytes are available.
func ReadExactAt(file *os.File, offset int64, buf []byte) error {
	_, err := file.ReadAt(buf, offset)
	return err
}

// WriteAllAt writes all of data to file at the given offset, extending the
// file as needed. The underlying os.File.WriteAt already loops until all
// bytes are written or an error occurs, so this is a thin, explicitly-named
// wrapper for readability at call sites.
func WriteAllAt(file *os.File, offset int64, data []byte) error {
	_, err := file.WriteAt(data, offset)
	return err
}

// Fsync commits both data and metadata for file to stable storage.
func Fsync(file *os.File) error {
	return file.Sync()
}

// Truncate resizes file to exactly size bytes.
func Truncate(file *os.File, size int64) error {
	return file.Truncate(size)
}

// Size returns the current size in bytes of file.
func Size(file *os.File) (int64, error) {
	info, err := file.Stat()
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
