package mvcc

import (
	"context"
	"sync"
	"testing"

	"eonstore/epoch"
)

func newHarness() (*epoch.Clock, *epoch.Registry, *sync.Mutex) {
	clock := epoch.NewClock()
	registry := epoch.NewRegistry(clock)
	return clock, registry, &sync.Mutex{}
}

func TestReadYourOwnWriteWithinTransaction(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject(10, registry)

	txn, err := Begin(context.Background(), clock, registry, mu)
	if err != nil {
		t.Fatal(err)
	}
	ptr, err := obj.Mutate(txn)
	if err != nil {
		t.Fatal(err)
	}
	*ptr = 20

	got, err := obj.Read(txn)
	if err != nil {
		t.Fatal(err)
	}
	if got != 20 {
		t.Fatalf("Read() within txn = %d, want 20 (speculative write)", got)
	}

	if err := txn.Commit(); err != nil {
		t.Fatalf("Commit() = %v, want nil", err)
	}
}

func TestCommittedValueVisibleToLaterTransaction(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject(1, registry)

	txn1, _ := Begin(context.Background(), clock, registry, mu)
	ptr, _ := obj.Mutate(txn1)
	*ptr = 2
	if err := txn1.Commit(); err != nil {
		t.Fatal(err)
	}

	txn2, _ := Begin(context.Background(), clock, registry, mu)
	got, err := obj.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 2 {
		t.Fatalf("Read() = %d, want 2", got)
	}
	txn2.Commit()
}

func TestSnapshotIsolationHidesConcurrentUncommittedWrite(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject(1, registry)

	reader, _ := Begin(context.Background(), clock, registry, mu)

	writer, _ := Begin(context.Background(), clock, registry, mu)
	ptr, _ := obj.Mutate(writer)
	*ptr = 99
	if err := writer.Commit(); err != nil {
		t.Fatal(err)
	}

	got, err := obj.Read(reader)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("Read() on a snapshot begun before the writer's commit = %d, want 1", got)
	}
	reader.Commit()
}

func TestConcurrentMutatorsOneWinsOneConflicts(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject(1, registry)

	txnA, _ := Begin(context.Background(), clock, registry, mu)
	txnB, _ := Begin(context.Background(), clock, registry, mu)

	ptrA, _ := obj.Mutate(txnA)
	*ptrA = 2
	ptrB, _ := obj.Mutate(txnB)
	*ptrB = 3

	if err := txnA.Commit(); err != nil {
		t.Fatalf("first commit should succeed, got %v", err)
	}
	if err := txnB.Commit(); err != ErrConflict {
		t.Fatalf("second commit should conflict, got %v", err)
	}
}

func TestRollbackDoesNotAdvanceEpoch(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject(1, registry)
	before := clock.Current()

	txn, _ := Begin(context.Background(), clock, registry, mu)
	ptr, _ := obj.Mutate(txn)
	*ptr = 2
	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	if clock.Current() != before {
		t.Fatalf("clock advanced on rollback: before=%d after=%d", before, clock.Current())
	}

	txn2, _ := Begin(context.Background(), clock, registry, mu)
	got, err := obj.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if got != 1 {
		t.Fatalf("Read() after rollback = %d, want 1 (rolled-back write must not be visible)", got)
	}
	txn2.Commit()
}

func TestRemoveThenReadReturnsErrRemoved(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject("hello", registry)

	txn, _ := Begin(context.Background(), clock, registry, mu)
	obj.Remove(txn)

	if _, err := obj.Read(txn); err != ErrRemoved {
		t.Fatalf("Read() after Remove() within the same txn = %v, want ErrRemoved", err)
	}
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
}

func TestCommittedRemovalVisibleToLaterTransaction(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject("hello", registry)

	txn, _ := Begin(context.Background(), clock, registry, mu)
	obj.Remove(txn)
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn2, _ := Begin(context.Background(), clock, registry, mu)
	if _, err := obj.Read(txn2); err != ErrRemoved {
		t.Fatalf("Read() after a committed Remove() = %v, want ErrRemoved", err)
	}
	if _, err := obj.Mutate(txn2); err != ErrRemoved {
		t.Fatalf("Mutate() after a committed Remove() = %v, want ErrRemoved", err)
	}
	txn2.Commit()
}

func TestRollbackOfRemovalRestoresValue(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject("hello", registry)

	txn, _ := Begin(context.Background(), clock, registry, mu)
	obj.Remove(txn)
	if err := txn.Rollback(); err != nil {
		t.Fatal(err)
	}

	txn2, _ := Begin(context.Background(), clock, registry, mu)
	got, err := obj.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if got != "hello" {
		t.Fatalf("Read() after a rolled-back Remove() = %q, want %q", got, "hello")
	}
	txn2.Commit()
}

func TestConcurrentRemoveAndMutateOneWinsOneConflicts(t *testing.T) {
	clock, registry, mu := newHarness()
	obj := NewTypedObject("hello", registry)

	remover, _ := Begin(context.Background(), clock, registry, mu)
	mutator, _ := Begin(context.Background(), clock, registry, mu)

	obj.Remove(remover)
	ptr, _ := obj.Mutate(mutator)
	*ptr = "world"

	if err := remover.Commit(); err != nil {
		t.Fatalf("first commit (remove) should succeed, got %v", err)
	}
	if err := mutator.Commit(); err != ErrConflict {
		t.Fatalf("second commit (mutate) should conflict, got %v", err)
	}
}

func TestOperationsAfterCommitReturnErrTxnDone(t *testing.T) {
	clock, registry, mu := newHarness()
	txn, _ := Begin(context.Background(), clock, registry, mu)
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := txn.Commit(); err != ErrTxnDone {
		t.Fatalf("second Commit() = %v, want ErrTxnDone", err)
	}
	if err := txn.Rollback(); err != ErrTxnDone {
		t.Fatalf("Rollback() after Commit() = %v, want ErrTxnDone", err)
	}
}

// TestConcurrentTransferPreservesTotal runs many goroutines transferring
// one unit at a time between two accounts (the direction alternates with
// goroutine and iteration), retrying on conflict, and checks the
// sum is preserved at the end — the MVCC analogue of the classic bank
// transfer invariant test.
func TestConcurrentTransferPreservesTotal(t *testing.T) {
	clock, registry, mu := newHarness()
	accA := NewTypedObject(1000, registry)
	accB := NewTypedObject(1000, registry)

	const goroutines = 10
	const transfersEach = 20

	var wg sync.WaitGroup
	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for i := 0; i < transfersEach; i++ {
				for {
					txn, err := Begin(context.Background(), clock, registry, mu)
					if err != nil {
						t.Error(err)
						return
					}
					from, to := accA, accB
					if (n+i)%2 == 0 {
						from, to = accB, accA
					}
					fromPtr, err := from.Mutate(txn)
					if err != nil {
						t.Error(err)
						return
					}
					toPtr, err := to.Mutate(txn)
					if err != nil {
						t.Error(err)
						return
					}
					*fromPtr--
					*toPtr++

					err = txn.Commit()
					if err == nil {
						break
					}
					if err != ErrConflict {
						t.Error(err)
						return
					}
					// retry
				}
			}
		}(g)
	}
	wg.Wait()

	final, _ := Begin(context.Background(), clock, registry, mu)
	a, _ := accA.Read(final)
	b, _ := accB.Read(final)
	final.Commit()

	if a+b != 2000 {
		t.Fatalf("total after concurrent transfers = %d, want 2000 (a=%d b=%d)", a+b, a, b)
	}
}

// TestParentInsertedAsAutomaticWhenChildHasParent exercises the sandbox
// chain-insertion path directly (Sandbox.insert recurses into a touched
// object's parent before splicing itself in), independent of TypedObject,
// since verifying commit order through TypedObject requires overriding its
// Commit method — and TypedObject's own self-reference as the sandbox key
// means a wrapper embedding it cannot intercept that call (see the
// store-package tests for an end-to-end check of parent-after-child
// ordering with real persistent objects, where the ordering has an
// observable effect on the serialized directory).
func TestParentInsertedAsAutomaticWhenChildHasParent(t *testing.T) {
	parent := &recordingObject{}
	child := &recordingObject{parentObj: parent, hasParent: true}

	sbox := NewSandbox()
	sbox.SetLocalValue(child, 1)

	if _, _, present := sbox.LocalValue(parent); present {
		t.Fatal("parent should not be 'present' (non-automatic) until directly touched")
	}
	// But it must still be in the chain, since doInOrder visits every
	// inserted object (automatic or not) while walking head->tail.
	visited := sbox.doInOrder(func(obj VersionedObject, e *sandboxEntry) bool { return true }, nil)
	if visited != nil {
		t.Fatalf("doInOrder returned early at %v", visited)
	}
}

// recordingObject is a minimal VersionedObject double for exercising the
// sandbox chain in isolation from TypedObject.
type recordingObject struct {
	parentObj VersionedObject
	hasParent bool
}

func (o *recordingObject) Parent() (VersionedObject, bool) { return o.parentObj, o.hasParent }
func (o *recordingObject) Check(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) bool {
	return true
}
func (o *recordingObject) Setup(oldEpoch, newEpoch epoch.Epoch, staged Staged, sbox *Sandbox) (any, bool) {
	return nil, true
}
func (o *recordingObject) Commit(newEpoch epoch.Epoch, token any, sbox *Sandbox)                     {}
func (o *recordingObject) Rollback(newEpoch epoch.Epoch, localValue Staged, token any, sbox *Sandbox) {}
func (o *recordingObject) Cleanup(unusedValidFrom, trigger epoch.Epoch)                              {}
func (o *recordingObject) RenameEpoch(old, newE epoch.Epoch) epoch.Epoch                              { return old }
func (o *recordingObject) DestroyLocalValue(val any)                                                  {}
