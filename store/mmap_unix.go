//go:build unix || darwin || linux || freebsd || openbsd || netbsd

package store

import (
	"errors"
	"os"

	"golang.org/x/sys/unix"
)

// openMmapFile maps at least initialSize bytes of an already-opened,
// already-locked file, growing it first if it's smaller. f is taken (not
// reopened by path) so the flock acquired by lockFile and the mapping
// share one open file description. Adapted from the teacher's
// pager.OpenMmapFile.
func openMmapFile(f *os.File, initialSize int64, growthIncrement int64) (*mappedFile, error) {
	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	size := stat.Size()
	if initialSize > size {
		if err := f.Truncate(initialSize); err != nil {
			return nil, err
		}
		size = initialSize
	}
	if size == 0 {
		return nil, errors.New("store: cannot mmap an empty file")
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, err
	}

	if growthIncrement <= 0 {
		growthIncrement = 1 << 20 // 1 MiB default
	}

	return &mappedFile{file: f, data: data, size: size, growthIncrement: growthIncrement}, nil
}

// sync flushes dirty mapped pages to disk.
func (m *mappedFile) sync() error {
	return unix.Msync(m.data, unix.MS_SYNC)
}

// grow extends the backing file to newSize and remaps it. Callers go
// through Grow (mmap.go), which picks newSize by adding whole
// growthIncrement steps to the current size.
func (m *mappedFile) grow(newSize int64) error {
	if newSize <= m.size {
		return nil
	}

	// With MAP_SHARED, dirty pages may still be sitting in the kernel
	// page cache only. Sync before unmapping so nothing is lost between
	// the unmap and the remap below.
	if err := unix.Msync(m.data, unix.MS_SYNC); err != nil {
		return err
	}
	if err := unix.Munmap(m.data); err != nil {
		return err
	}

	f := m.file.(*os.File)
	if err := f.Truncate(newSize); err != nil {
		return err
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(newSize), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return err
	}

	m.data = data
	m.size = newSize
	return nil
}

// close unmaps and closes the underlying file.
func (m *mappedFile) close() error {
	var firstErr error
	if m.data != nil {
		if err := unix.Munmap(m.data); err != nil && firstErr == nil {
			firstErr = err
		}
		m.data = nil
	}
	if m.file != nil {
		f := m.file.(*os.File)
		if err := unlockFile(f); err != nil && firstErr == nil {
			firstErr = err
		}
		if err := f.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
		m.file = nil
	}
	return firstErr
}
