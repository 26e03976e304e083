package store

import (
	"encoding/binary"
	"fmt"

	"eonstore/serialize"
)

// directoryFormatVersion is word 0 of a serialized directory; any other
// value encountered on reconstitution is a hard error (SPEC_FULL.md §6).
const directoryFormatVersion uint64 = 0

// directory is the manager's own versioned value (C7): a dense table
// mapping an ObjectID to the on-disk offset and byte size of its current
// serialized value. An offset of NoneOffset means the slot has never
// been serialized (brand new, still mid-transaction) or was removed.
// objectCount tracks live slots for ObjectCount(), distinct from
// len(offsets) which never shrinks. sizes is needed because codec.Decode
// takes a byte slice of known length: unlike a fixed-width word, most
// encodings (varint-prefixed bytes/strings) are variable length, so the
// directory itself is the only place that remembers how many bytes to
// slice back out of the mapped file for a given object.
type directory struct {
	offsets     []uint64
	sizes       []uint64
	objectCount int
}

func (d directory) clone() directory {
	offsets := make([]uint64, len(d.offsets))
	copy(offsets, d.offsets)
	sizes := make([]uint64, len(d.sizes))
	copy(sizes, d.sizes)
	return directory{offsets: offsets, sizes: sizes, objectCount: d.objectCount}
}

// directoryCodec serializes a directory per SPEC_FULL.md §6, extended
// with a parallel sizes array immediately after the offsets: word0
// version(0), word1 length N, word2 object_count, words 3..3+N-1
// offsets, words 3+N..3+2N-1 sizes.
type directoryCodec struct{}

func (directoryCodec) Size(d directory) int {
	return 8 * (3 + 2*len(d.offsets))
}

func (c directoryCodec) Encode(d directory, alloc serialize.Allocator) (uint64, error) {
	size := c.Size(d)
	off, err := alloc.AllocateAligned(size, 8)
	if err != nil {
		return 0, err
	}
	buf := alloc.Bytes(off, size)
	binary.LittleEndian.PutUint64(buf[0:8], directoryFormatVersion)
	binary.LittleEndian.PutUint64(buf[8:16], uint64(len(d.offsets)))
	binary.LittleEndian.PutUint64(buf[16:24], uint64(d.objectCount))
	n := len(d.offsets)
	for i, o := range d.offsets {
		binary.LittleEndian.PutUint64(buf[24+8*i:32+8*i], o)
	}
	for i, s := range d.sizes {
		binary.LittleEndian.PutUint64(buf[24+8*(n+i):32+8*(n+i)], s)
	}
	return off, nil
}

func (directoryCodec) Decode(raw []byte) (directory, error) {
	if len(raw) < 24 {
		return directory{}, fmt.Errorf("store: directory.Decode: truncated header")
	}
	version := binary.LittleEndian.Uint64(raw[0:8])
	if version != directoryFormatVersion {
		return directory{}, fmt.Errorf("store: directory.Decode: unrecognized format version %d", version)
	}
	length := binary.LittleEndian.Uint64(raw[8:16])
	count := binary.LittleEndian.Uint64(raw[16:24])
	n := int(length)
	need := 24 + 16*n
	if len(raw) < need {
		return directory{}, fmt.Errorf("store: directory.Decode: truncated entries")
	}
	offsets := make([]uint64, n)
	sizes := make([]uint64, n)
	for i := range offsets {
		offsets[i] = binary.LittleEndian.Uint64(raw[24+8*i : 32+8*i])
	}
	for i := range sizes {
		sizes[i] = binary.LittleEndian.Uint64(raw[24+8*(n+i) : 32+8*(n+i)])
	}
	return directory{offsets: offsets, sizes: sizes, objectCount: int(count)}, nil
}

func (directoryCodec) Deallocate(offset uint64, size int, alloc serialize.Allocator) {
	alloc.Deallocate(offset, size)
}
