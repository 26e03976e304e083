// Package store implements the persistent object manager (C7) and root
// object store (C8): the directory of addressable objects, the aligned
// byte allocator over a memory-mapped file, and pointer/offset
// translation.
package store

// ObjectID identifies an object within one Manager's directory. IDs are
// dense: Construct takes the next value of the Manager's id counter,
// which a reopened Manager starts at the directory's length, so the first
// object built against an empty manager gets id 0. An id whose
// constructing transaction rolls back is not reused.
type ObjectID uint64

// NoneOffset is the sentinel stored for a directory slot with no
// serialized value yet (a brand-new object mid-transaction) or a removed
// object, matching SPEC_FULL.md §6's NONE = 2^64-1.
const NoneOffset uint64 = ^uint64(0)
