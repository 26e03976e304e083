package mvcc

import (
	"sync/atomic"

	"eonstore/epoch"
	"eonstore/serialize"
	"eonstore/vtable"
)

// versionToken is the opaque per-object state Setup produces and Commit/
// Rollback consume, for persistent TypedObjects. present=false represents
// a removal: the directory slot should be cleared rather than swapped.
// oldOffset/oldSize/hadOld capture what host.SetVersion reported during
// Setup, so Commit can schedule the old bytes' deallocation without
// calling back into the host a second time.
type versionToken struct {
	offset  uint64
	size    int
	present bool

	oldOffset uint64
	oldSize   int
	hadOld    bool
}

// PersistentHost is the owner-side half of the C6/C7 relationship: the
// manager directory entry a persistent TypedObject reports its new
// serialized offset to, and the codec/allocator it serializes through.
// store.Manager implements this per entry; kept as an interface here so
// mvcc never imports store (store imports mvcc, not the reverse).
//
// Both methods take the sandbox and the transaction's read epoch rather
// than relying on ambient state: a TypedObject's Setup always runs
// before its parent directory's own Setup in the same commit pass
// (children precede ancestors, see Sandbox.doInOrder), so a child fixing
// up its slot in the directory's sandbox-local copy here is guaranteed
// to be visible when the directory serializes itself moments later in
// the same single-threaded, commitMu-protected pass.
type PersistentHost interface {
	// Touch ensures the owning manager's directory has a non-automatic,
	// sandbox-local value for this transaction, materializing one from
	// atEpoch if this is the transaction's first touch of the directory.
	Touch(sbox *Sandbox, atEpoch epoch.Epoch)

	// SetVersion swaps the stored offset for this object's id (or clears
	// it, when present=false), returning the previous (offset, size) and
	// whether one existed yet.
	SetVersion(sbox *Sandbox, atEpoch epoch.Epoch, offset uint64, size int, present bool) (oldOffset uint64, oldSize int, hadOld bool)
}

// TypedObject wraps a value type T over a vtable.Table, implementing the
// VersionedObject contract (C6). It is the default participant: either a
// pure in-memory versioned value, or — when codec/alloc/host are set — a
// value whose committed form is also serialized into a mapped file.
type TypedObject[T any] struct {
	table atomic.Pointer[vtable.Table[T]]

	parent    VersionedObject
	hasParent bool

	registry *epoch.Registry

	codec serialize.Codec[T]
	alloc serialize.Allocator
	host  PersistentHost
}

// NewTypedObject returns a pure in-memory versioned object holding
// initial, registered for deferred cleanup against registry.
func NewTypedObject[T any](initial T, registry *epoch.Registry) *TypedObject[T] {
	o := &TypedObject[T]{registry: registry}
	o.table.Store(vtable.New(initial))
	return o
}

// NewPersistentTypedObject returns a TypedObject whose committed values
// are also serialized into a mapped region via codec/alloc, with host
// notified of every new on-disk offset.
func NewPersistentTypedObject[T any](initial T, registry *epoch.Registry, codec serialize.Codec[T], alloc serialize.Allocator, host PersistentHost) *TypedObject[T] {
	o := &TypedObject[T]{registry: registry, codec: codec, alloc: alloc, host: host}
	o.table.Store(vtable.New(initial))
	return o
}

// NewPendingPersistentTypedObject returns a persistent TypedObject with
// no committed version yet: its first value must be staged into a
// transaction's sandbox (see store.Construct) so it is serialized and
// assigned an on-disk offset through the ordinary Setup/Commit path
// instead of being baked in before any transaction touched it.
func NewPendingPersistentTypedObject[T any](registry *epoch.Registry, codec serialize.Codec[T], alloc serialize.Allocator, host PersistentHost) *TypedObject[T] {
	o := &TypedObject[T]{registry: registry, codec: codec, alloc: alloc, host: host}
	o.table.Store(vtable.Empty[T]())
	return o
}

// SetParent records the object this one must commit after and be torn
// down after. Used by store.Manager to make every persistent object a
// child of its owning directory.
func (o *TypedObject[T]) SetParent(p VersionedObject) {
	o.parent = p
	o.hasParent = true
}

func (o *TypedObject[T]) Parent() (VersionedObject, bool) {
	return o.parent, o.hasParent
}

func (o *TypedObject[T]) persistent() bool { return o.codec != nil }

// validFromForSetup computes the lower validity bound of the current
// entry: the upper bound of the second-to-last entry, or 1 if there is
// no such entry. Setup fails if this exceeds the transaction's read
// epoch, meaning someone else committed a newer version first.
func validFromForSetup[T any](d *vtable.Table[T]) epoch.Epoch {
	if d.Size() <= 1 {
		return 1
	}
	return d.Entry(d.Size() - 2).ValidTo
}

// Read returns obj's value as seen by txn: its own local value if it
// touched the object, else the committed value at txn's start epoch.
func (o *TypedObject[T]) Read(txn *Txn) (T, error) {
	if val, removed, present := txn.Sandbox().LocalValue(o); present {
		if removed {
			var zero T
			return zero, ErrRemoved
		}
		return *(val.(*T)), nil
	}
	d := o.table.Load()
	v, ok := d.ValueAtEpoch(txn.Epoch())
	if !ok {
		var zero T
		if d.Size() > 0 && d.Back().Removed {
			return zero, ErrRemoved
		}
		return zero, ErrUnknownID
	}
	return v, nil
}

// Mutate returns a pointer to txn's sandbox-owned speculative copy of the
// value, materializing one from the committed value at txn's start epoch
// if this is the transaction's first touch. It returns ErrNotInTransaction
// if txn has already committed or rolled back.
func (o *TypedObject[T]) Mutate(txn *Txn) (*T, error) {
	if txn.done {
		return nil, ErrNotInTransaction
	}
	return o.MutateLocked(txn.Sandbox(), txn.Epoch())
}

// MutateLocked is Mutate's body taking a sandbox and epoch directly
// instead of a *Txn, so a PersistentHost can materialize (Touch) the
// owning directory's local value without needing a full transaction
// handle — only the sandbox and the read epoch Setup already has.
func (o *TypedObject[T]) MutateLocked(sbox *Sandbox, atEpoch epoch.Epoch) (*T, error) {
	if val, removed, present := sbox.LocalValue(o); present {
		if removed {
			return nil, ErrRemoved
		}
		return val.(*T), nil
	}

	d := o.table.Load()
	v, ok := d.ValueAtEpoch(atEpoch)
	if !ok {
		if d.Size() > 0 && d.Back().Removed {
			return nil, ErrRemoved
		}
		var zero T
		v = zero
	}
	local := v
	ptr := &local
	sbox.SetLocalValue(o, ptr)
	return ptr, nil
}

// SeedLocal stages initial as obj's first speculative value within txn,
// used by store.Construct to give a brand-new object its first commit
// without reading any prior committed state (there is none yet).
func (o *TypedObject[T]) SeedLocal(txn *Txn, initial T) {
	local := initial
	txn.Sandbox().SetLocalValue(o, &local)
}

// CommittedAt returns obj's committed value as of e, ignoring any
// sandbox-local value a transaction may hold — used by store.Manager to
// read its own directory at a caller's transaction epoch (C4.7) rather
// than always at the latest commit.
func (o *TypedObject[T]) CommittedAt(e epoch.Epoch) (T, bool) {
	d := o.table.Load()
	return d.ValueAtEpoch(e)
}

// Latest returns the value at the most recently committed entry,
// bypassing epoch visibility entirely. Used by store.Manager to read
// its own directory's current state outside of any transaction (its
// ObjectCount; Lookup reads the directory through CommittedAt instead) —
// safe because the directory is only
// ever read this way for bookkeeping, never handed to a caller as a
// transactional view.
func (o *TypedObject[T]) Latest() T {
	d := o.table.Load()
	return d.Back().Value
}

// Remove marks obj as removed within txn.
func (o *TypedObject[T]) Remove(txn *Txn) {
	txn.Sandbox().SetRemoved(o)
}

func (o *TypedObject[T]) Check(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) bool {
	d := o.table.Load()
	return validFromForSetup(d) <= oldEpoch
}

func (o *TypedObject[T]) Setup(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) (any, bool) {
	if staged.Removed {
		for {
			d := o.table.Load()
			if validFromForSetup(d) > oldEpoch {
				return nil, false
			}

			tok := versionToken{present: false}
			if o.host != nil {
				tok.oldOffset, tok.oldSize, tok.hadOld = o.host.SetVersion(sbox, oldEpoch, 0, 0, false)
			}

			staged := d.StageRemoved(newEpoch)
			if o.table.CompareAndSwap(d, staged) {
				return tok, true
			}
		}
	}

	value := *(staged.Value.(*T))

	for {
		d := o.table.Load()
		if validFromForSetup(d) > oldEpoch {
			return nil, false
		}

		var tok versionToken
		if o.persistent() {
			size := o.codec.Size(value)
			off, err := o.codec.Encode(value, o.alloc)
			if err != nil {
				return nil, false
			}
			tok = versionToken{offset: off, size: size, present: true}
			if o.host != nil {
				o.host.Touch(sbox, oldEpoch)
				tok.oldOffset, tok.oldSize, tok.hadOld = o.host.SetVersion(sbox, oldEpoch, off, size, true)
			}
		}

		staged := d.Stage(newEpoch, value)
		if o.table.CompareAndSwap(d, staged) {
			return tok, true
		}
		// Lost the race: the table moved under us. Free the bytes we
		// just staged (never published) and retry against the new
		// table, per the "free_now" rule for unpublished resources.
		if o.persistent() {
			epoch.FreeNow(func() { o.codec.Deallocate(tok.offset, tok.size, o.alloc) })
		}
	}
}

func (o *TypedObject[T]) Commit(newEpoch epoch.Epoch, token any, sbox *Sandbox) {
	tok := token.(versionToken)

	d := o.table.Load()
	if d.Size() >= 3 {
		o.registry.RegisterObjectCleanup(o, d.Entry(d.Size()-3).ValidTo)
	}

	if tok.hadOld && o.persistent() {
		alloc, codec := o.alloc, o.codec
		oldOff, oldSize := tok.oldOffset, tok.oldSize
		o.registry.ScheduleCleanup(func() { codec.Deallocate(oldOff, oldSize, alloc) })
	}
}

func (o *TypedObject[T]) Rollback(newEpoch epoch.Epoch, localValue Staged, token any, sbox *Sandbox) {
	tok := token.(versionToken)

	for {
		d := o.table.Load()
		n := d.PopBack()
		if o.table.CompareAndSwap(d, n) {
			break
		}
	}
	if o.persistent() && tok.present {
		epoch.FreeNow(func() { o.codec.Deallocate(tok.offset, tok.size, o.alloc) })
	}
}

func (o *TypedObject[T]) Cleanup(unusedValidFrom, trigger epoch.Epoch) {
	for {
		d := o.table.Load()
		n := d.Cleanup(unusedValidFrom)
		if n == nil {
			panic("mvcc: cleanup target entry not found, invariant violation")
		}
		if o.table.CompareAndSwap(d, n) {
			return
		}
	}
}

func (o *TypedObject[T]) RenameEpoch(old, newE epoch.Epoch) epoch.Epoch {
	for {
		d := o.table.Load()
		n, neighbor, ok := d.RenameEpoch(old, newE)
		if !ok {
			panic("mvcc: rename_epoch target entry not found")
		}
		if o.table.CompareAndSwap(d, n) {
			return neighbor
		}
	}
}

func (o *TypedObject[T]) DestroyLocalValue(val any) {
	// Plain Go values need no explicit destructor; the sandbox simply
	// drops its reference and the GC reclaims it.
	_ = val
}
