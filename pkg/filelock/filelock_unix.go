//go:build !windows && !js && !wasip1

package filelock

import (
	"os"
	"syscall"
)

func tryFlock(file *os.File, mode Mode) error {
	how := syscall.LOCK_EX
	if mode == Shared {
		how = syscall.LOCK_SH
	}
	return syscall.Flock(int(file.Fd()), how|syscall.LOCK_NB)
}

func unlockFlock(file *os.File) error {
	return syscall.Flock(int(file.Fd()), syscall.LOCK_UN)
}
