package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync/atomic"

	"golang.org/x/sync/singleflight"

	"eonstore/epoch"
	"eonstore/mvcc"
	"eonstore/serialize"
)

// Manager is the persistent object manager (C7): a versioned directory
// mapping ObjectID to on-disk offset/size, a bump allocator to serialize
// into, and a bounded cache of live, rehydrated handles. Every object a
// Manager constructs has the manager's own directory object as its
// parent, so per the C5 commit protocol a child always serializes (and
// fixes up its directory slot) before the directory itself commits.
type Manager struct {
	dirObj *mvcc.TypedObject[directory]

	registry *epoch.Registry
	alloc    serialize.Allocator
	cache    *handleCache
	group    singleflight.Group

	nextID atomic.Uint64
}

// NewManager creates a brand-new, empty Manager and commits its initial
// (empty) directory as the first real transaction against clock/registry/
// commitMu, so the directory's zero state is an addressable, serialized
// object rather than an in-memory-only bootstrap value. host is where
// the directory's own on-disk offset is recorded — ordinarily the file's
// fixed root-offset header word (see store.Store).
func NewManager(clock *epoch.Clock, registry *epoch.Registry, commitMu mvcc.Locker, alloc serialize.Allocator, cacheBudget int, host mvcc.PersistentHost) (*Manager, error) {
	m := &Manager{
		registry: registry,
		alloc:    alloc,
		cache:    newHandleCache(cacheBudget),
	}
	m.dirObj = mvcc.NewPendingPersistentTypedObject[directory](registry, directoryCodec{}, alloc, host)

	txn, err := mvcc.Begin(context.Background(), clock, registry, commitMu)
	if err != nil {
		return nil, err
	}
	m.dirObj.SeedLocal(txn, directory{})
	if err := txn.Commit(); err != nil {
		return nil, fmt.Errorf("store: bootstrapping directory: %w", err)
	}
	return m, nil
}

// OpenManager reconstitutes a Manager from a directory previously
// serialized at rootOffset (the root-offset header word of a reopened
// file).
func OpenManager(registry *epoch.Registry, alloc serialize.Allocator, cacheBudget int, host mvcc.PersistentHost, rootOffset uint64) (*Manager, error) {
	dir, err := decodeDirectoryAt(alloc, rootOffset)
	if err != nil {
		return nil, err
	}
	m := &Manager{
		registry: registry,
		alloc:    alloc,
		cache:    newHandleCache(cacheBudget),
	}
	m.dirObj = mvcc.NewPersistentTypedObject[directory](dir, registry, directoryCodec{}, alloc, host)
	m.nextID.Store(uint64(len(dir.offsets)))
	return m, nil
}

func decodeDirectoryAt(alloc serialize.Allocator, offset uint64) (directory, error) {
	head := alloc.Bytes(offset, 24)
	if len(head) < 24 {
		return directory{}, fmt.Errorf("store: decodeDirectoryAt: truncated header at offset %d", offset)
	}
	length := binary.LittleEndian.Uint64(head[8:16])
	full := alloc.Bytes(offset, 24+16*int(length))
	return directoryCodec{}.Decode(full)
}

// ObjectCount returns the number of live (non-removed) objects the
// directory currently tracks.
func (m *Manager) ObjectCount() int {
	return m.dirObj.Latest().objectCount
}

// SetLogger overrides the manager's handle-cache eviction logger.
func (m *Manager) SetLogger(l *slog.Logger) {
	m.cache.setLogger(l)
}

// touch ensures the directory has a non-automatic, sandbox-local value
// for the transaction owning sbox, called from a child object's Setup
// before it fixes up its own slot.
func (m *Manager) touch(sbox *mvcc.Sandbox, atEpoch epoch.Epoch) {
	m.dirObj.MutateLocked(sbox, atEpoch)
}

// setVersion updates id's slot in the directory's sandbox-local copy,
// growing the offsets/sizes arrays if id is new. Called from a child
// object's Setup, strictly before the directory's own Setup runs in the
// same commit pass (see mvcc.PersistentHost's doc comment).
func (m *Manager) setVersion(sbox *mvcc.Sandbox, atEpoch epoch.Epoch, id ObjectID, offset uint64, size int, present bool) (oldOffset uint64, oldSize int, hadOld bool) {
	dPtr, _ := m.dirObj.MutateLocked(sbox, atEpoch)
	for int(id) >= len(dPtr.offsets) {
		dPtr.offsets = append(dPtr.offsets, NoneOffset)
		dPtr.sizes = append(dPtr.sizes, 0)
	}
	oldOffset = dPtr.offsets[id]
	oldSize = int(dPtr.sizes[id])
	hadOld = oldOffset != NoneOffset

	if present {
		if !hadOld {
			dPtr.objectCount++
		}
		dPtr.offsets[id] = offset
		dPtr.sizes[id] = uint64(size)
	} else if hadOld {
		dPtr.objectCount--
		dPtr.offsets[id] = NoneOffset
		dPtr.sizes[id] = 0
	}
	return oldOffset, oldSize, hadOld
}

// directoryHost is the per-object PersistentHost a Manager hands to
// every TypedObject it constructs: it closes over the object's id so
// Touch/SetVersion can find the right directory slot.
type directoryHost struct {
	mgr *Manager
	id  ObjectID
}

func (h directoryHost) Touch(sbox *mvcc.Sandbox, atEpoch epoch.Epoch) {
	h.mgr.touch(sbox, atEpoch)
}

func (h directoryHost) SetVersion(sbox *mvcc.Sandbox, atEpoch epoch.Epoch, offset uint64, size int, present bool) (uint64, int, bool) {
	oldOffset, oldSize, hadOld := h.mgr.setVersion(sbox, atEpoch, h.id, offset, size, present)
	if !present {
		// A removal: evict the cached handle so a later cold Lookup
		// re-consults the directory (now cleared) instead of serving a
		// handle whose id the directory no longer owns.
		h.mgr.cache.forget(h.id)
	}
	return oldOffset, oldSize, hadOld
}

// Handle is a live reference to one addressable object (C7/C10): the
// object's id plus the typed versioned object backing it. Handles are
// cheap to copy and safe to share across goroutines; the concurrency
// safety lives in the underlying TypedObject's CAS protocol.
type Handle[T any] struct {
	id  ObjectID
	obj *mvcc.TypedObject[T]
}

func (h *Handle[T]) ID() ObjectID { return h.id }

func (h *Handle[T]) Read(txn *mvcc.Txn) (T, error) { return h.obj.Read(txn) }

func (h *Handle[T]) Mutate(txn *mvcc.Txn) (*T, error) { return h.obj.Mutate(txn) }

func (h *Handle[T]) Remove(txn *mvcc.Txn) { h.obj.Remove(txn) }

// Construct stages a brand-new object's first value within txn (C7): it
// is assigned a fresh id immediately, but only becomes visible to other
// transactions, and only gets a real on-disk offset, once txn commits.
// A transaction that constructs an object and then rolls back burns that
// id permanently rather than risk a second concurrent Construct reusing
// it; ids are otherwise dense but not guaranteed contiguous.
func Construct[T any](txn *mvcc.Txn, mgr *Manager, initial T, codec serialize.Codec[T]) *Handle[T] {
	id := ObjectID(mgr.nextID.Add(1) - 1)

	obj := mvcc.NewPendingPersistentTypedObject[T](mgr.registry, codec, mgr.alloc, directoryHost{mgr, id})
	obj.SetParent(mgr.dirObj)
	obj.SeedLocal(txn, initial)

	h := &Handle[T]{id: id, obj: obj}
	mgr.cache.put(id, h)
	return h
}

// Lookup resolves id to a live Handle (C7), consulting the handle cache
// first (a cached handle is returned only if its object has a committed
// value at atEpoch, so a Construct that has not committed, or was rolled
// back, is not served from the cache) and falling back to decoding the
// object's committed bytes as of
// atEpoch — the caller's transaction epoch, so directory membership is
// snapshot-isolated the same way object-value reads already are (C4.7)
// instead of always seeing the directory's latest commit. Concurrent
// lookups of the same cold id collapse into a single decode via
// singleflight, keyed by both id and T so two different element types
// sharing an id (a caller bug) never return one goroutine's result
// under another's type.
func Lookup[T any](mgr *Manager, atEpoch epoch.Epoch, id ObjectID, codec serialize.Codec[T]) (*Handle[T], error) {
	if cached, ok := mgr.cache.get(id); ok {
		h, ok := cached.(*Handle[T])
		if !ok {
			return nil, mvcc.ErrWrongType
		}
		if _, committed := h.obj.CommittedAt(atEpoch); committed {
			return h, nil
		}
	}

	key := fmt.Sprintf("%d|%T", id, *new(T))
	result, err, _ := mgr.group.Do(key, func() (any, error) {
		if cached, ok := mgr.cache.get(id); ok {
			h, ok := cached.(*Handle[T])
			if !ok {
				return cached, nil
			}
			if _, committed := h.obj.CommittedAt(atEpoch); committed {
				return h, nil
			}
		}

		dir, ok := mgr.dirObj.CommittedAt(atEpoch)
		if !ok || int(id) >= len(dir.offsets) || dir.offsets[id] == NoneOffset {
			return nil, mvcc.ErrUnknownID
		}
		raw := mgr.alloc.Bytes(dir.offsets[id], int(dir.sizes[id]))
		val, err := codec.Decode(raw)
		if err != nil {
			return nil, err
		}

		obj := mvcc.NewPersistentTypedObject[T](val, mgr.registry, codec, mgr.alloc, directoryHost{mgr, id})
		obj.SetParent(mgr.dirObj)
		h := &Handle[T]{id: id, obj: obj}
		mgr.cache.put(id, h)
		return h, nil
	})
	if err != nil {
		return nil, err
	}
	h, ok := result.(*Handle[T])
	if !ok {
		return nil, mvcc.ErrWrongType
	}
	return h, nil
}

// Forget evicts id from the handle cache without affecting its
// committed, on-disk state, so the next Lookup of id re-reads the
// directory. A committed removal does not go through Forget:
// directoryHost.SetVersion evicts the removed id itself.
func (m *Manager) Forget(id ObjectID) {
	m.cache.forget(id)
}
