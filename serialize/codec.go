// Package serialize defines the external-interfaces seam (C9): the
// per-type encode/decode/deallocate contract a persistent object supplies,
// plus the allocator interface it encodes against. The MVCC core never
// imports this package's concrete codecs; it only depends on the Codec
// and Allocator interfaces, so user types never need to be known to
// mvcc or store.
package serialize

// Allocator is the seam a persistent store exposes to codecs: an aligned
// byte allocator over a single mapped region, plus the byte slice backing
// a previously-allocated offset. store.Store is the one implementation.
type Allocator interface {
	AllocateAligned(size int, align int) (offset uint64, err error)
	Deallocate(offset uint64, size int)
	Bytes(offset uint64, size int) []byte
}

// Codec is the per-type serializer/reconstitutor/deallocator triple (C9).
// T's own Codec is supplied by the caller constructing a persistent
// object; the MVCC core never inspects T.
type Codec[T any] interface {
	// Encode allocates space for v via alloc and writes its encoded form,
	// returning the offset at which it can later be Decoded.
	Encode(v T, alloc Allocator) (offset uint64, err error)

	// Decode reconstitutes a value from the bytes previously written by
	// Encode (read via alloc.Bytes at the stored offset/size).
	Decode(raw []byte) (T, error)

	// Size returns the number of bytes Encode will need for v, so the
	// caller can look the bytes back up via alloc.Bytes(offset, size).
	Size(v T) int

	// Deallocate frees the bytes at offset (of the size last returned by
	// Size for the value that was encoded there).
	Deallocate(offset uint64, size int, alloc Allocator)
}
