package store

import "testing"

// growableArena is a plain in-memory Arena, growing by reallocating a
// slice, for exercising BumpAllocator without a real mapped file.
type growableArena struct {
	data []byte
}

func (a *growableArena) Data() []byte { return a.data }

func (a *growableArena) Grow(minSize int) error {
	if minSize <= len(a.data) {
		return nil
	}
	grown := make([]byte, minSize)
	copy(grown, a.data)
	a.data = grown
	return nil
}

func TestBumpAllocatorAlignment(t *testing.T) {
	arena := &growableArena{data: make([]byte, 64)}
	alloc := NewBumpAllocator(arena, 1)

	off, err := alloc.AllocateAligned(8, 8)
	if err != nil {
		t.Fatal(err)
	}
	if off%8 != 0 {
		t.Fatalf("AllocateAligned offset %d is not 8-byte aligned", off)
	}
}

func TestBumpAllocatorGrowsArenaOnOverrun(t *testing.T) {
	arena := &growableArena{data: make([]byte, 8)}
	alloc := NewBumpAllocator(arena, 0)

	off, err := alloc.AllocateAligned(64, 8)
	if err != nil {
		t.Fatal(err)
	}
	if len(arena.Data()) < int(off)+64 {
		t.Fatalf("arena did not grow to cover the allocation: len=%d, need=%d", len(arena.Data()), off+64)
	}
}

func TestBumpAllocatorReusesFreedSpaceOfTheSameSizeClass(t *testing.T) {
	arena := &growableArena{data: make([]byte, 128)}
	alloc := NewBumpAllocator(arena, 0)

	off1, _ := alloc.AllocateAligned(16, 8)
	alloc.Deallocate(off1, 16)
	off2, _ := alloc.AllocateAligned(16, 8)

	if off2 != off1 {
		t.Fatalf("BumpAllocator did not reuse freed offset %d; got %d instead", off1, off2)
	}
	used, freed := alloc.Stats()
	if freed != 0 {
		t.Fatalf("freed bytes = %d, want 0 after the reused allocation consumed the free region", freed)
	}
	if used != off1+16 {
		t.Fatalf("used = %d, want %d (no accretion past the first allocation's high-water mark)", used, off1+16)
	}
}

func TestBumpAllocatorDoesNotReuseSmallerSizeClassForLargerRequest(t *testing.T) {
	arena := &growableArena{data: make([]byte, 128)}
	alloc := NewBumpAllocator(arena, 0)

	off1, _ := alloc.AllocateAligned(8, 8)
	alloc.Deallocate(off1, 8)
	off2, err := alloc.AllocateAligned(32, 8)
	if err != nil {
		t.Fatal(err)
	}

	if off2 == off1 {
		t.Fatal("a 32-byte request must not reuse an 8-byte size class's free region")
	}
}

func TestBumpAllocatorBytesRoundTrip(t *testing.T) {
	arena := &growableArena{data: make([]byte, 128)}
	alloc := NewBumpAllocator(arena, 0)

	off, _ := alloc.AllocateAligned(4, 4)
	buf := alloc.Bytes(off, 4)
	copy(buf, []byte{1, 2, 3, 4})

	readBack := alloc.Bytes(off, 4)
	for i, want := range []byte{1, 2, 3, 4} {
		if readBack[i] != want {
			t.Fatalf("Bytes()[%d] = %d, want %d", i, readBack[i], want)
		}
	}
}
