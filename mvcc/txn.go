package mvcc

import (
	"context"
	"errors"

	"eonstore/epoch"
)

// ErrTxnDone is returned when an operation is attempted on a transaction
// that has already committed or rolled back, mirroring the teacher's
// ErrTxDone (pkg/turdb/tx.go).
var ErrTxnDone = errors.New("mvcc: transaction has already been committed or rolled back")

// ErrConflict is returned by Commit when another transaction committed a
// conflicting change first. The caller's usual response is to retry with
// a fresh transaction.
var ErrConflict = errors.New("mvcc: commit conflict, transaction lost the race")

// ErrNotInTransaction is returned by TypedObject.Mutate when the *Txn it
// is given has already committed or rolled back: a mutation needs a live
// transaction.
var ErrNotInTransaction = errors.New("mvcc: operation requires an active transaction")

// Txn is an explicit, per-goroutine transaction handle: the spec's
// "current transaction per thread" is realized here as a value threaded
// through calls explicitly (see DESIGN.md's Open Question resolution),
// following the shape of the teacher's pkg/turdb.Tx.
type Txn struct {
	sandbox    *Sandbox
	startEpoch epoch.Epoch
	registry   *epoch.Registry
	clock      *epoch.Clock
	commitMu   Locker
	done       bool
}

// Begin pins the current epoch as a new snapshot and returns a fresh
// transaction. Mirrors the teacher's DB.BeginContext: context is checked
// before any bookkeeping, so a canceled context never registers a
// snapshot it won't release promptly.
func Begin(ctx context.Context, clock *epoch.Clock, registry *epoch.Registry, commitMu Locker) (*Txn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e := registry.RegisterSnapshot()
	return &Txn{
		sandbox:    NewSandbox(),
		startEpoch: e,
		registry:   registry,
		clock:      clock,
		commitMu:   commitMu,
	}, nil
}

// Epoch returns the epoch this transaction reads at.
func (t *Txn) Epoch() epoch.Epoch { return t.startEpoch }

// Sandbox exposes the transaction's speculative-write buffer to the
// typed-object layer (C6), which needs it to read/write local values.
func (t *Txn) Sandbox() *Sandbox { return t.sandbox }

// Commit runs the sandbox's commit protocol and releases this
// transaction's pinned snapshot regardless of outcome.
func (t *Txn) Commit() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	defer t.registry.ReleaseSnapshot(t.startEpoch)

	newEpoch := t.sandbox.Commit(t.startEpoch, t.clock, t.commitMu)
	if newEpoch == epoch.NoEpoch {
		return ErrConflict
	}
	return nil
}

// Rollback discards all speculative writes without attempting to commit.
func (t *Txn) Rollback() error {
	if t.done {
		return ErrTxnDone
	}
	t.done = true
	t.sandbox.Clear()
	t.registry.ReleaseSnapshot(t.startEpoch)
	return nil
}
