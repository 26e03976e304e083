// Package vtable implements the per-object version table (C3): an
// immutable-on-write, atomically-replaced history of (valid_to, value)
// entries supporting point-in-time lookup.
package vtable

import "eonstore/epoch"

// Entry is one historical value, valid up to (but not including) ValidTo.
// The newest entry in a Table has an implicit ValidTo of +infinity,
// represented here as the sentinel Forever. Removed marks a tombstone: the
// object was removed as of the entry's lower validity bound (the previous
// entry's ValidTo), and Value holds only the type's zero value.
type Entry[T any] struct {
	ValidTo epoch.Epoch
	Value   T
	Removed bool
}

// Forever marks the current (not-yet-superseded) entry's ValidTo.
const Forever epoch.Epoch = 0

// Table is an append-only, immutable-once-published history for one
// object. Mutation always means: build a brand new Table value and
// atomic.Pointer.CompareAndSwap it in for the old one; nothing here ever
// mutates an already-published Table in place.
type Table[T any] struct {
	entries []Entry[T]
}

// New returns a single-entry table holding v, current from epoch 1.
func New[T any](v T) *Table[T] {
	return &Table[T]{entries: []Entry[T]{{ValidTo: Forever, Value: v}}}
}

// Empty returns a table with no entries yet, for an object whose first
// value has not been committed by any transaction (a freshly constructed
// object awaiting its constructing transaction's commit).
func Empty[T any]() *Table[T] {
	return &Table[T]{}
}

// Size returns the number of historical entries.
func (t *Table[T]) Size() int { return len(t.entries) }

// Entry returns the i'th entry (0 = oldest).
func (t *Table[T]) Entry(i int) Entry[T] { return t.entries[i] }

// Back returns the newest entry.
func (t *Table[T]) Back() Entry[T] { return t.entries[len(t.entries)-1] }

// ValueAtEpoch performs the spec's backward linear search: the newest
// entry whose lower validity bound is <= e. Entries are few in practice
// (reclamation keeps history short), so a linear scan beats maintaining a
// second sorted index. A reachable tombstone entry (the object was removed
// by e) reports ok=false, the same as no reachable entry at all.
func (t *Table[T]) ValueAtEpoch(e epoch.Epoch) (T, bool) {
	for i := len(t.entries) - 1; i >= 0; i-- {
		lowerBound := epoch.Epoch(1)
		if i > 0 {
			lowerBound = t.entries[i-1].ValidTo
		}
		if lowerBound <= e {
			if t.entries[i].Removed {
				var zero T
				return zero, false
			}
			return t.entries[i].Value, true
		}
	}
	var zero T
	return zero, false
}

// Copy returns a new table with the same entries, its backing slice
// pre-sized to a total capacity of growTo entries (growTo must be at
// least Size()). This is the basis for every mutation: callers copy,
// mutate the copy, then CAS it in.
func (t *Table[T]) Copy(growTo int) *Table[T] {
	n := make([]Entry[T], len(t.entries), growTo)
	copy(n, t.entries)
	return &Table[T]{entries: n}
}

// PushBack appends a new current entry, first closing off the previous
// newest entry at validTo. The copy/append/CAS-publish sequence supplies
// the release barrier the spec calls for explicitly: readers only ever
// observe a *Table that was fully built before being published.
func (t *Table[T]) PushBack(validTo epoch.Epoch, value T) *Table[T] {
	n := t.Copy(len(t.entries) + 1)
	if len(n.entries) > 0 {
		n.entries[len(n.entries)-1].ValidTo = validTo
	}
	n.entries = append(n.entries, Entry[T]{ValidTo: Forever, Value: value})
	return n
}

// Stage returns a copy of t with the current newest entry closed off at
// newEpoch and a fresh current entry holding value appended. This is the
// single CAS-able step Setup uses to both retire the old current value
// and publish the staged one.
func (t *Table[T]) Stage(newEpoch epoch.Epoch, value T) *Table[T] {
	n := t.Copy(len(t.entries) + 1)
	if len(n.entries) > 0 {
		n.entries[len(n.entries)-1].ValidTo = newEpoch
	}
	n.entries = append(n.entries, Entry[T]{ValidTo: Forever, Value: value})
	return n
}

// StageRemoved is Stage's tombstone counterpart: it closes off the current
// newest entry at newEpoch and appends a Removed entry holding T's zero
// value, so a reachable read at or after newEpoch reports the object gone
// instead of resurrecting its last committed value.
func (t *Table[T]) StageRemoved(newEpoch epoch.Epoch) *Table[T] {
	n := t.Copy(len(t.entries) + 1)
	if len(n.entries) > 0 {
		n.entries[len(n.entries)-1].ValidTo = newEpoch
	}
	var zero T
	n.entries = append(n.entries, Entry[T]{ValidTo: Forever, Value: zero, Removed: true})
	return n
}

// CloseBack returns a copy of t with the current newest entry's ValidTo
// set to validTo (used when staging a new version: the prior "current"
// entry gets a real upper bound before the new one is appended).
func (t *Table[T]) CloseBack(validTo epoch.Epoch) *Table[T] {
	n := t.Copy(len(t.entries))
	if len(n.entries) > 0 {
		n.entries[len(n.entries)-1].ValidTo = validTo
	}
	return n
}

// PopBack removes the newest entry (used to undo a setup on rollback).
func (t *Table[T]) PopBack() *Table[T] {
	n := t.Copy(len(t.entries))
	n.entries = n.entries[:len(n.entries)-1]
	if len(n.entries) > 0 {
		n.entries[len(n.entries)-1].ValidTo = Forever
	}
	return n
}

// Cleanup returns a new table with the entry whose lower validity bound
// equals unusedValidFrom removed. No ValidTo is rewritten: lower bounds
// are implied by the previous entry's ValidTo, so the following entry's
// range extends down over the removed one and the epoch range stays
// contiguous. Returns nil if no entry
// has that lower bound (an invariant violation the caller must not
// silently ignore).
func (t *Table[T]) Cleanup(unusedValidFrom epoch.Epoch) *Table[T] {
	for i := range t.entries {
		lowerBound := epoch.Epoch(1)
		if i > 0 {
			lowerBound = t.entries[i-1].ValidTo
		}
		if lowerBound != unusedValidFrom {
			continue
		}
		n := make([]Entry[T], 0, len(t.entries)-1)
		n = append(n, t.entries[:i]...)
		if i+1 < len(t.entries) {
			rest := append([]Entry[T]{}, t.entries[i+1:]...)
			n = append(n, rest...)
		}
		return &Table[T]{entries: n}
	}
	return nil
}

// RenameEpoch returns a copy of t where the entry previously valid from
// oldValidFrom is relabeled to begin at newValidFrom, plus the neighbor's
// lower bound for the caller to propagate. ok is false if no entry has
// that lower bound.
func (t *Table[T]) RenameEpoch(oldValidFrom, newValidFrom epoch.Epoch) (renamed *Table[T], neighborLowerBound epoch.Epoch, ok bool) {
	for i := range t.entries {
		lowerBound := epoch.Epoch(1)
		if i > 0 {
			lowerBound = t.entries[i-1].ValidTo
		}
		if lowerBound != oldValidFrom {
			continue
		}
		n := t.Copy(len(t.entries))
		if i > 0 {
			n.entries[i-1].ValidTo = newValidFrom
		}
		next := n.entries[i].ValidTo
		return n, next, true
	}
	return nil, 0, false
}
