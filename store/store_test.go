package store

import (
	"context"
	"path/filepath"
	"testing"

	"eonstore/serialize"
)

func TestCreateThenConstructThenCommit(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, err := s.Begin(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	h := Construct(txn, s.Manager, int64(42), serialize.Int64Codec{})
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	txn2, _ := s.Begin(context.Background())
	v, err := h.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if v != 42 {
		t.Fatalf("Read() = %d, want 42", v)
	}
	txn2.Commit()
}

func TestMutateAndRemoveThroughHandle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, _ := s.Begin(context.Background())
	h := Construct(txn, s.Manager, "hello", serialize.StringCodec{})
	txn.Commit()

	txn2, _ := s.Begin(context.Background())
	ptr, err := h.Mutate(txn2)
	if err != nil {
		t.Fatal(err)
	}
	*ptr = "world"
	if err := txn2.Commit(); err != nil {
		t.Fatal(err)
	}

	txn3, _ := s.Begin(context.Background())
	v, err := h.Read(txn3)
	if err != nil {
		t.Fatal(err)
	}
	if v != "world" {
		t.Fatalf("Read() after mutate = %q, want %q", v, "world")
	}
	txn3.Commit()

	txn4, _ := s.Begin(context.Background())
	h.Remove(txn4)
	if err := txn4.Commit(); err != nil {
		t.Fatal(err)
	}

	txn5, _ := s.Begin(context.Background())
	if _, err := h.Read(txn5); err == nil {
		t.Fatal("Read() after Remove()'s commit should fail")
	}
	txn5.Commit()
}

func TestPersistenceRoundTripAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")

	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	txn, _ := s.Begin(context.Background())
	h := Construct(txn, s.Manager, int64(777), serialize.Int64Codec{})
	id := h.ID()
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	txn2, _ := reopened.Begin(context.Background())
	h2, err := Lookup[int64](reopened.Manager, txn2.Epoch(), id, serialize.Int64Codec{})
	if err != nil {
		t.Fatal(err)
	}
	v, err := h2.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if v != 777 {
		t.Fatalf("Read() after reopen = %d, want 777", v)
	}
	txn2.Commit()
}

func TestReopenLocksAgainstSecondOpener(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if _, err := Open(path); err != ErrLocked {
		t.Fatalf("second Open() on an already-locked file = %v, want ErrLocked", err)
	}
}

func TestConstructedObjectBecomesParentedChildOfDirectory(t *testing.T) {
	// Ordering invariant: a persistent object's Setup must fix up the
	// directory's sandbox-local copy before the directory's own Setup
	// serializes it, so a fresh Lookup (after the constructing
	// transaction commits) always finds a valid offset/size pair rather
	// than a stale NoneOffset slot.
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, _ := s.Begin(context.Background())
	h := Construct(txn, s.Manager, int64(9), serialize.Int64Codec{})
	id := h.ID()
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	s.Manager.Forget(id)
	txn2, _ := s.Begin(context.Background())
	h2, err := Lookup[int64](s.Manager, txn2.Epoch(), id, serialize.Int64Codec{})
	if err != nil {
		t.Fatalf("Lookup() after Forget() = %v, want nil (directory slot must be committed)", err)
	}
	v, err := h2.Read(txn2)
	if err != nil {
		t.Fatal(err)
	}
	if v != 9 {
		t.Fatalf("Read() = %d, want 9", v)
	}
	txn2.Commit()
}

func TestLookupUnknownIDFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, _ := s.Begin(context.Background())
	defer txn.Commit()
	if _, err := Lookup[int64](s.Manager, txn.Epoch(), ObjectID(999), serialize.Int64Codec{}); err == nil {
		t.Fatal("Lookup() of a never-constructed id should fail")
	}
}

func TestStatsReportsAllocationAndObjectCount(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, _ := s.Begin(context.Background())
	Construct(txn, s.Manager, int64(1), serialize.Int64Codec{})
	Construct(txn, s.Manager, int64(2), serialize.Int64Codec{})
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	used, _, objects := s.Stats()
	if objects != 2 {
		t.Fatalf("Stats() objects = %d, want 2", objects)
	}
	if used == 0 {
		t.Fatal("Stats() used bytes should be nonzero after constructing objects")
	}
}

// TestRepeatedMutateCommitDoesNotAccrete exercises the free-memory
// invariant (repeated mutate+commit cycles must not grow allocator
// consumption without bound): once a superseded value's bytes are
// reclaimed, the next same-size mutation reuses them instead of the
// allocator's high-water mark climbing every commit.
func TestRepeatedMutateCommitDoesNotAccrete(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.eon")
	s, err := Create(path)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	txn, _ := s.Begin(context.Background())
	h := Construct(txn, s.Manager, int64(23), serialize.Int64Codec{})
	if err := txn.Commit(); err != nil {
		t.Fatal(err)
	}

	// One mutate+commit cycle establishes a steady-state high-water mark:
	// the superseded value's bytes are reclaimed into the free list once
	// this commit's snapshot is released.
	txn2, _ := s.Begin(context.Background())
	ptr, err := h.Mutate(txn2)
	if err != nil {
		t.Fatal(err)
	}
	*ptr = 45
	if err := txn2.Commit(); err != nil {
		t.Fatal(err)
	}
	steadyUsed, _, _ := s.Stats()

	for i := int64(0); i < 5; i++ {
		txn, _ := s.Begin(context.Background())
		ptr, err := h.Mutate(txn)
		if err != nil {
			t.Fatal(err)
		}
		*ptr = 100 + i
		if err := txn.Commit(); err != nil {
			t.Fatal(err)
		}
		used, _, _ := s.Stats()
		if used != steadyUsed {
			t.Fatalf("allocator consumption accreted on mutate cycle %d: used=%d, want %d (steady-state)", i, used, steadyUsed)
		}
	}
}
