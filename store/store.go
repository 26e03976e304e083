package store

import (
	"context"
	"log/slog"
	"os"
	"sync"

	"eonstore/config"
	"eonstore/epoch"
	"eonstore/mvcc"
)

// Option configures a Store at Open/Create time; an alias for
// config.Option so callers write store.WithCacheBudget(...) without a
// second import.
type Option = config.Option

// Store is the root object store (C8): a locked, memory-mapped file
// holding a fixed header, a bump allocator, and the Manager whose
// directory is anchored at the header's root offset. It owns the
// process-wide epoch clock, snapshot registry and commit mutex every
// transaction against this file shares.
type Store struct {
	file  *mappedFile
	alloc *BumpAllocator

	clock    *epoch.Clock
	registry *epoch.Registry
	commitMu mvcc.Locker

	logger *slog.Logger

	Manager *Manager
}

// Create makes a brand-new store file at path, fails if it already
// exists and is a valid eonstore file, and commits the manager's empty
// directory as the file's first transaction.
func Create(path string, opts ...Option) (*Store, error) {
	cfg, err := config.Load("", opts...)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	cfg.Logger.Debug("file lock acquired", "path", path)

	mf, err := openMmapFile(f, int64(HeaderSize), cfg.GrowthIncrement)
	if err != nil {
		f.Close()
		return nil, err
	}
	if _, err := DecodeHeader(mf.Data()[:HeaderSize]); err == nil {
		mf.close()
		return nil, &os.PathError{Op: "create", Path: path, Err: os.ErrExist}
	}

	hdr := NewHeader()
	copy(mf.Data()[:HeaderSize], hdr.Encode())
	cfg.Logger.Info("store created", "path", path, "instance_id", hdr.InstanceID)

	return newStore(mf, hdr, cfg)
}

// Open reopens an existing store file, validating its header and
// reconstituting its Manager from the directory at the header's root
// offset.
func Open(path string, opts ...Option) (*Store, error) {
	cfg, err := config.Load("", opts...)
	if err != nil {
		return nil, err
	}

	f, err := os.OpenFile(path, os.O_RDWR, 0644)
	if err != nil {
		return nil, err
	}
	if err := lockFile(f); err != nil {
		f.Close()
		return nil, err
	}
	cfg.Logger.Debug("file lock acquired", "path", path)

	mf, err := openMmapFile(f, int64(HeaderSize), cfg.GrowthIncrement)
	if err != nil {
		f.Close()
		return nil, err
	}

	hdr, err := DecodeHeader(mf.Data()[:HeaderSize])
	if err != nil {
		mf.close()
		return nil, err
	}

	s := &Store{
		file:     mf,
		clock:    epoch.NewClock(),
		commitMu: &sync.Mutex{},
		logger:   cfg.Logger,
	}
	s.registry = epoch.NewRegistry(s.clock)
	s.alloc = NewBumpAllocator(mf, hdr.AllocHighWater)
	s.alloc.SetLogger(cfg.Logger)

	mgr, err := OpenManager(s.registry, s.alloc, cfg.CacheBudget, headerHost{file: mf, alloc: s.alloc}, hdr.RootOffset)
	if err != nil {
		mf.close()
		return nil, err
	}
	mgr.SetLogger(cfg.Logger)
	s.Manager = mgr
	cfg.Logger.Info("store opened", "path", path, "instance_id", hdr.InstanceID, "objects", mgr.ObjectCount())
	return s, nil
}

func newStore(mf *mappedFile, hdr *Header, cfg *config.Options) (*Store, error) {
	s := &Store{
		file:     mf,
		clock:    epoch.NewClock(),
		commitMu: &sync.Mutex{},
		logger:   cfg.Logger,
	}
	s.registry = epoch.NewRegistry(s.clock)
	s.alloc = NewBumpAllocator(mf, uint64(HeaderSize))
	s.alloc.SetLogger(cfg.Logger)

	mgr, err := NewManager(s.clock, s.registry, s.commitMu, s.alloc, cfg.CacheBudget, headerHost{file: mf, alloc: s.alloc})
	if err != nil {
		mf.close()
		return nil, err
	}
	mgr.SetLogger(cfg.Logger)
	s.Manager = mgr
	return s, nil
}

// Begin starts a new transaction against this store (C10): its read
// epoch is fixed to the store's current epoch at call time.
func (s *Store) Begin(ctx context.Context) (*mvcc.Txn, error) {
	return mvcc.Begin(ctx, s.clock, s.registry, s.commitMu)
}

// Stats reports the allocator's high-water mark, the bytes currently on
// its free list (freed and not yet reused), and the directory's live
// object count.
func (s *Store) Stats() (allocUsed uint64, allocFreed uint64, objects int) {
	used, freed := s.alloc.Stats()
	return used, freed, s.Manager.ObjectCount()
}

// Logger returns the store's structured logger, for callers (such as the
// CLI) that want to log alongside it rather than to a separate default.
func (s *Store) Logger() *slog.Logger { return s.logger }

// Close flushes and unmaps the store's file, releasing its lock.
func (s *Store) Close() error {
	s.logger.Debug("store closing")
	if err := s.file.sync(); err != nil {
		return err
	}
	return s.file.close()
}
