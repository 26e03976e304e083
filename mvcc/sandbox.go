package mvcc

import "eonstore/epoch"

// sandboxEntry is one object's speculative state within a transaction.
// prev/next splice entries into a chain where every descendant precedes
// its ancestors, mirroring original_source/jmvcc/sandbox.h's Entry.
type sandboxEntry struct {
	val       any
	removed   bool
	automatic bool
	prev      VersionedObject
	next      VersionedObject
}

// Sandbox is the per-transaction buffer of speculative writes (C5): an
// unordered map from object to entry, plus head/tail chain endpoints such
// that walking head->next->...->tail visits every descendant before its
// ancestor.
type Sandbox struct {
	localValues map[VersionedObject]*sandboxEntry
	head        VersionedObject
	tail        VersionedObject
}

// NewSandbox returns an empty sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{localValues: make(map[VersionedObject]*sandboxEntry)}
}

// insert ports Sandbox::Local_Values::insert from sandbox.cc: if obj is
// already present, return its existing entry; otherwise recursively
// insert its parent first, then splice obj in as the parent entry's
// prev (or at tail if parentless). While obj's parents are being inserted,
// obj is held in localValues as a nil placeholder; meeting that
// placeholder again means the parent chain loops back to obj, and insert
// panics.
func (s *Sandbox) insert(obj VersionedObject) (*sandboxEntry, bool) {
	if e, ok := s.localValues[obj]; ok {
		if e == nil {
			panic("mvcc: cycle in parent chain during sandbox insert")
		}
		return e, false
	}

	var nextEntry *sandboxEntry
	parent, hasParent := obj.Parent()
	if hasParent && parent != nil {
		s.localValues[obj] = nil
		nextEntry, _ = s.insert(parent)
	}

	var prevObj VersionedObject
	if nextEntry != nil {
		prevObj = nextEntry.prev
		nextEntry.prev = obj
	} else {
		prevObj = s.tail
		s.tail = obj
	}

	if prevObj != nil {
		prevEntry := s.localValues[prevObj]
		prevEntry.next = obj
	} else {
		s.head = obj
	}

	entry := &sandboxEntry{automatic: true, prev: prevObj}
	if hasParent {
		entry.next = parent
	}
	s.localValues[obj] = entry

	return entry, true
}

// SetLocalValue inserts obj (marking it non-automatic, i.e. actually
// touched by the user) and replaces its speculative value, returning the
// previous value and whether one already existed.
func (s *Sandbox) SetLocalValue(obj VersionedObject, val any) (old any, existed bool) {
	entry, _ := s.insert(obj)
	old = entry.val
	existed = !entry.automatic
	entry.val = val
	entry.removed = false
	entry.automatic = false
	return old, existed
}

// SetRemoved marks obj as removed in this transaction: its sandbox entry
// carries no value and Commit tells the owner to clear the id.
func (s *Sandbox) SetRemoved(obj VersionedObject) {
	entry, _ := s.insert(obj)
	entry.val = nil
	entry.removed = true
	entry.automatic = false
}

// LocalValue returns obj's speculative value in this transaction, if any.
func (s *Sandbox) LocalValue(obj VersionedObject) (val any, removed bool, present bool) {
	entry, ok := s.localValues[obj]
	if !ok || entry.automatic {
		return nil, false, false
	}
	return entry.val, entry.removed, true
}

// LocalValueInit creates obj's sandbox entry with initial if none exists
// yet (marked non-automatic), and returns the entry's current value.
func (s *Sandbox) LocalValueInit(obj VersionedObject, initial any) any {
	entry, created := s.insert(obj)
	if created || entry.automatic {
		entry.val = initial
		entry.automatic = false
	}
	return entry.val
}

// doInOrder walks the chain from start (head if start is nil) to finish
// (exclusive), invoking dowhat on each entry. It stops and returns the
// current object the first time dowhat returns false; returns nil if it
// reaches finish. Ported from Sandbox::Local_Values::do_in_order.
func (s *Sandbox) doInOrder(dowhat func(VersionedObject, *sandboxEntry) bool, finish VersionedObject) VersionedObject {
	for current := s.head; current != nil && current != finish; {
		entry, ok := s.localValues[current]
		if !ok {
			panic("mvcc: invalid sandbox iteration chain")
		}
		if !dowhat(current, entry) {
			return current
		}
		current = entry.next
	}
	return nil
}

// Clear tears down the sandbox: walks head->tail invoking
// DestroyLocalValue on every non-automatic entry (descendants before
// ancestors, since that is chain order), then empties the map.
func (s *Sandbox) Clear() {
	s.doInOrder(func(obj VersionedObject, e *sandboxEntry) bool {
		if !e.automatic {
			obj.DestroyLocalValue(e.val)
		}
		return true
	}, nil)
	s.localValues = make(map[VersionedObject]*sandboxEntry)
	s.head = nil
	s.tail = nil
}

// commitResult carries the outcome of one Commit attempt.
type commitResult struct {
	newEpoch epoch.Epoch
	ok       bool
}

// Commit runs the six-step commit protocol from
// original_source/jmvcc/sandbox.cc's Sandbox::commit, serialized on
// commitMu. It is a method on Sandbox taking the clock/registry/mutex
// explicitly rather than storing them, since a Sandbox is a plain
// transaction-local value with no knowledge of which store it belongs to
// until commit time.
func (s *Sandbox) Commit(oldEpoch epoch.Epoch, clock *epoch.Clock, commitMu Locker) epoch.Epoch {
	// Step 1: check everything before taking any lock.
	failed := s.doInOrder(func(obj VersionedObject, e *sandboxEntry) bool {
		if e.automatic {
			return true
		}
		return obj.Check(oldEpoch, clock.Current()+1, Staged{Value: e.val, Removed: e.removed}, s)
	}, nil)
	if failed != nil {
		s.Clear()
		return epoch.NoEpoch
	}

	commitMu.Lock()
	defer commitMu.Unlock()

	newEpoch := clock.Current() + 1

	type staged struct {
		obj   VersionedObject
		entry *sandboxEntry
	}
	var order []staged
	tokens := make(map[VersionedObject]any)

	failedObj := s.doInOrder(func(obj VersionedObject, e *sandboxEntry) bool {
		if e.automatic {
			return true
		}
		token, ok := obj.Setup(oldEpoch, newEpoch, Staged{Value: e.val, Removed: e.removed}, s)
		order = append(order, staged{obj: obj, entry: e})
		if !ok {
			return false
		}
		tokens[obj] = token
		return true
	}, nil)

	if failedObj == nil {
		// All setups succeeded: bump the epoch, then publish.
		clock.Set(newEpoch)
		for _, st := range order {
			st.obj.Commit(newEpoch, tokens[st.obj], s)
		}
		s.Clear()
		return newEpoch
	}

	// Setup failed partway: roll back everything set up before the
	// failure point (order holds every non-automatic entry visited up to
	// and including the failure; the last one is the failure itself and
	// carries no token, so it's excluded from rollback).
	for _, st := range order {
		if st.obj == failedObj {
			break
		}
		st.obj.Rollback(newEpoch, Staged{Value: st.entry.val, Removed: st.entry.removed}, tokens[st.obj], s)
	}
	s.Clear()
	return epoch.NoEpoch
}

// Locker is satisfied by *sync.Mutex; defined locally so this package
// doesn't need to import sync just to name the parameter type.
type Locker interface {
	Lock()
	Unlock()
}
