//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package store

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// ErrLocked is returned by Open/Create when another process already
// holds the file's exclusive lock.
var ErrLocked = errors.New("store: file is locked by another process")

// lockFile acquires a non-blocking exclusive lock on f, adapted from
// the teacher's turdb.lockFile. A store file is single-writer,
// single-process: MVCC handles concurrency between goroutines within
// one process, not between processes sharing one file.
func lockFile(f *os.File) error {
	if err := unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB); err != nil {
		if err == unix.EWOULDBLOCK {
			return ErrLocked
		}
		return err
	}
	return nil
}

func unlockFile(f *os.File) error {
	return unix.Flock(int(f.Fd()), unix.LOCK_UN)
}
