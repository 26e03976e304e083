// Package eonstore is an embedded, in-process object store with
// snapshot-isolated, epoch-based MVCC (C10). It wires together the
// version table (vtable), the transaction sandbox and commit protocol
// (mvcc), and the persistent object manager over a memory-mapped file
// (store) behind a small surface: Open/Create a Store, Begin a
// transaction, Construct or Lookup a Handle, Read/Mutate/Remove through
// it, then Commit or Rollback.
package eonstore

import (
	"eonstore/mvcc"
	"eonstore/serialize"
	"eonstore/store"
)

// Store is the on-disk object store. See store.Store for the
// lower-level surface (Stats, direct Manager access) this type wraps
// unchanged — the alias keeps a single import satisfying most callers.
type Store = store.Store

// Txn is a single transaction's speculative-write sandbox plus its
// pinned read epoch.
type Txn = mvcc.Txn

// Handle is a live reference to one addressable object.
type Handle[T any] = store.Handle[T]

// Option configures a Store at Open/Create time.
type Option = store.Option

// Codec serializes a value type to and from the store's mapped file.
type Codec[T any] = serialize.Codec[T]

// ObjectID identifies an object within a Store.
type ObjectID = store.ObjectID

// Sentinel errors surfaced by Read/Mutate/Remove/Commit; see mvcc and
// store for the full taxonomy (ErrWrongType, ErrBadFormatVersion,
// ErrAllocatorExhausted, store.ErrLocked, store.ErrInvalidMagic).
var (
	ErrConflict    = mvcc.ErrConflict
	ErrRemoved     = mvcc.ErrRemoved
	ErrUnknownID   = mvcc.ErrUnknownID
	ErrNotInTxn    = mvcc.ErrNotInTransaction
	ErrTxnDone     = mvcc.ErrTxnDone
	ErrWrongType   = mvcc.ErrWrongType
)

// Create makes a brand-new store file at path.
func Create(path string, opts ...Option) (*Store, error) {
	return store.Create(path, opts...)
}

// Open reopens an existing store file.
func Open(path string, opts ...Option) (*Store, error) {
	return store.Open(path, opts...)
}

// Construct stages a brand-new object within txn, returning a Handle
// usable for the rest of txn's lifetime and, once txn commits, by any
// later transaction via Lookup.
func Construct[T any](txn *Txn, s *Store, initial T, codec Codec[T]) *Handle[T] {
	return store.Construct[T](txn, s.Manager, initial, codec)
}

// Lookup resolves id to a live Handle as seen at txn's read epoch,
// rehydrating it from disk if it isn't already cached.
func Lookup[T any](txn *Txn, s *Store, id ObjectID, codec Codec[T]) (*Handle[T], error) {
	return store.Lookup[T](s.Manager, txn.Epoch(), id, codec)
}

// Int64Codec, BytesCodec, and StringCodec are ready-made codecs for the common scalar
// cases, so most callers never need to implement serialize.Codec
// themselves.
var (
	Int64Codec  = serialize.Int64Codec{}
	BytesCodec  = serialize.BytesCodec{}
	StringCodec = serialize.StringCodec{}
)
