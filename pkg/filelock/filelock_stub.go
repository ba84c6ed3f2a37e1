//go:build js || wasip1

package filelock

import "os"

// tryFlock is a no-op on js/wasm targets: there is no concurrent-process
// file system to arbitrate, so the caller is always granted the lock.
func tryFlock(file *os.File, mode Mode) error {
	return nil
}

func unlockFlock(file *os.File) error {
	return nil
}
