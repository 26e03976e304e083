package mvcc

import "errors"

// Error taxonomy per SPEC_FULL.md §7. Conflict is ErrConflict (txn.go);
// these are the Misuse/Resource-exhaustion categories.
var (
	// ErrRemoved is returned when reading or mutating an object that the
	// current transaction itself removed, or whose committed removal is
	// what the transaction's epoch sees.
	ErrRemoved = errors.New("mvcc: object was removed")

	// ErrUnknownID is returned when a lookup targets an id with no
	// committed value reachable at the transaction's epoch.
	ErrUnknownID = errors.New("mvcc: unknown object id")

	// ErrWrongType is returned when a lookup finds a cached handle for the
	// id whose type differs from the requested one. A lookup that is not
	// served from the cache decodes the stored bytes with the codec it was
	// given and does not detect a type mismatch.
	ErrWrongType = errors.New("mvcc: object exists but has a different type")

	// ErrBadFormatVersion is returned by store.DecodeHeader when a file
	// header's format version is one this build does not recognize. A
	// directory with an unrecognized version is rejected with its own
	// error from the directory decoder, not this one.
	ErrBadFormatVersion = errors.New("mvcc: unrecognized on-disk format version")

	// ErrAllocatorExhausted is not returned by any operation here: Setup
	// reports a failed allocation only as ok=false, and the commit
	// protocol then rolls back and Commit returns ErrConflict.
	ErrAllocatorExhausted = errors.New("mvcc: allocator exhausted mapped region")
)
