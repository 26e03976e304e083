// Package mvcc implements the versioned object contract (C4), the
// transaction sandbox and commit protocol (C5), and the typed versioned
// object (C6) that wraps a value type over a vtable.Table.
package mvcc

import "eonstore/epoch"

// Staged is the speculative local state the sandbox hands a participant
// during check/setup/rollback: either a live value or a removal marker.
// A concrete struct (rather than a bare any) is needed because the
// removed flag lives alongside the value in the sandbox entry, not
// encoded into the value itself.
type Staged struct {
	Value   any
	Removed bool
}

// VersionedObject is the eight-operation contract (C4) every participant
// in a transaction implements. Values are passed as any because Go has no
// void*; each implementation is the only caller of its own Setup/Commit/
// Rollback and downcasts the values it produced itself.
type VersionedObject interface {
	// Parent returns the object that must commit after, and be torn down
	// after, this one — or (nil, false) if this object has no parent.
	Parent() (VersionedObject, bool)

	// Check is a fast pre-flight: it may return true and have Setup still
	// fail, but must never return false spuriously. sbox is the
	// transaction's sandbox, passed explicitly (a Go adaptation of the
	// spec's implicit "current transaction": see DESIGN.md) so a
	// participant like store.Manager can look up another object's
	// staged value within the same commit, e.g. to fix up a directory
	// entry's offset once a child object's Setup computes it.
	Check(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) bool

	// Setup attempts to stage the new version. ok=false signals failure;
	// the returned token is opaque to the sandbox and is handed back to
	// Commit or Rollback.
	Setup(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) (token any, ok bool)

	// Commit finalizes a successful Setup. Must not fail.
	Commit(newEpoch epoch.Epoch, token any, sbox *Sandbox)

	// Rollback undoes a successful Setup. Must not fail.
	Rollback(newEpoch epoch.Epoch, localValue Staged, token any, sbox *Sandbox)

	// Cleanup removes the historical entry whose lower validity bound is
	// unusedValidFrom, once the registry has determined it is unreachable.
	Cleanup(unusedValidFrom, trigger epoch.Epoch)

	// RenameEpoch relabels an entry's lower bound, returning the
	// neighboring entry's lower bound for propagation.
	RenameEpoch(old, new epoch.Epoch) epoch.Epoch

	// DestroyLocalValue disposes of a speculative value the sandbox still
	// holds at teardown. Most implementations no-op; it exists for
	// participants whose staged value owns external resources.
	DestroyLocalValue(val any)
}
