//go:build windows

package filelock

import (
	"os"
	"syscall"
	"unsafe"
)

var (
	modkernel32      = syscall.NewLazyDLL("kernel32.dll")
	procLockFileEx   = modkernel32.NewProc("LockFileEx")
	procUnlockFileEx = modkernel32.NewProc("UnlockFileEx")
)

const (
	lockfileExclusiveLock = 0x00000002
	lockfileFailImmediate = 0x00000001
)

func tryFlock(file *os.File, mode Mode) error {
	flags := uintptr(lockfileFailImmediate)
	if mode == Exclusive {
		flags |= lockfileExclusiveLock
	}

	ol := new(syscall.Overlapped)
	r1, _, err := procLockFileEx.Call(
		file.Fd(),
		flags,
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	if r1 == 0 {
		return err
	}
	return nil
}

func unlockFlock(file *os.File) error {
	ol := new(syscall.Overlapped)
	procUnlockFileEx.Call(
		file.Fd(),
		0,
		1, 0,
		uintptr(unsafe.Pointer(ol)),
	)
	return nil
}
