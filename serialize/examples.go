package serialize

import (
	"encoding/binary"
	"fmt"
)

// Int64Codec is the example scalar codec referenced throughout the test
// suite's concrete scenarios (construct/lookup of plain integers).
type Int64Codec struct{}

func (Int64Codec) Size(int64) int { return 8 }

func (Int64Codec) Encode(v int64, alloc Allocator) (uint64, error) {
	off, err := alloc.AllocateAligned(8, 8)
	if err != nil {
		return 0, err
	}
	binary.LittleEndian.PutUint64(alloc.Bytes(off, 8), uint64(v))
	return off, nil
}

func (Int64Codec) Decode(raw []byte) (int64, error) {
	if len(raw) < 8 {
		return 0, fmt.Errorf("serialize: Int64Codec.Decode: need 8 bytes, got %d", len(raw))
	}
	return int64(binary.LittleEndian.Uint64(raw)), nil
}

func (Int64Codec) Deallocate(offset uint64, size int, alloc Allocator) {
	alloc.Deallocate(offset, size)
}

// BytesCodec stores a length-prefixed byte slice, the length packed with
// the ported SQLite-style varint so small payloads don't pay a full
// 8-byte length header.
type BytesCodec struct{}

func (BytesCodec) Size(v []byte) int {
	return VarintLen(uint64(len(v))) + len(v)
}

func (c BytesCodec) Encode(v []byte, alloc Allocator) (uint64, error) {
	size := c.Size(v)
	off, err := alloc.AllocateAligned(size, 8)
	if err != nil {
		return 0, err
	}
	buf := alloc.Bytes(off, size)
	n := PutVarint(buf, uint64(len(v)))
	copy(buf[n:], v)
	return off, nil
}

func (BytesCodec) Decode(raw []byte) ([]byte, error) {
	length, n := GetVarint(raw)
	if n == 0 || uint64(len(raw)-n) < length {
		return nil, fmt.Errorf("serialize: BytesCodec.Decode: truncated payload")
	}
	out := make([]byte, length)
	copy(out, raw[n:n+int(length)])
	return out, nil
}

func (BytesCodec) Deallocate(offset uint64, size int, alloc Allocator) {
	alloc.Deallocate(offset, size)
}

// StringCodec adapts BytesCodec to string values.
type StringCodec struct{}

func (StringCodec) Size(v string) int { return BytesCodec{}.Size([]byte(v)) }

func (StringCodec) Encode(v string, alloc Allocator) (uint64, error) {
	return BytesCodec{}.Encode([]byte(v), alloc)
}

func (StringCodec) Decode(raw []byte) (string, error) {
	b, err := BytesCodec{}.Decode(raw)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (StringCodec) Deallocate(offset uint64, size int, alloc Allocator) {
	alloc.Deallocate(offset, size)
}
