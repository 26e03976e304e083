package store

// mappedFile is the growable, memory-mapped byte arena C8's allocator
// serializes into. Platform-specific Open/Grow/Sync/Close live in
// mmap_unix.go, adapted from the teacher's pkg/pager MmapFile to grow in
// configurable increments rather than doubling, since an object store's
// write volume is driven by transaction size, not page count.
type mappedFile struct {
	file interface{} // *os.File, boxed so this file stays platform-independent
	data []byte
	size int64

	growthIncrement int64
}

// Data satisfies the Arena interface BumpAllocator serializes through.
func (m *mappedFile) Data() []byte {
	return m.data
}

// Grow satisfies the Arena interface: ensures the mapping covers at
// least minSize bytes, extending by growthIncrement (or more, if
// minSize demands it) rather than to the exact requested size, so a
// sequence of small allocations doesn't remap the file on every one.
func (m *mappedFile) Grow(minSize int) error {
	if int64(minSize) <= m.size {
		return nil
	}
	target := m.size + m.growthIncrement
	for target < int64(minSize) {
		target += m.growthIncrement
	}
	return m.grow(target)
}
