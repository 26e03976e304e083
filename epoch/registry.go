package epoch

import (
	"container/heap"
	"sync"
)

// cleanupEntry is either a bare callback (scheduled via ScheduleCleanup) or
// an object-keyed cleanup (registered via RegisterObjectCleanup). Unifying
// both behind one interface lets Registry drain them with a single sweep
// instead of maintaining two parallel queues.
type cleanupEntry interface {
	run(trigger Epoch)
}

type funcCleanup struct {
	fn func()
}

func (f funcCleanup) run(Epoch) { f.fn() }

// ObjectCleanup is satisfied by anything whose historical version needs
// reclaiming once the epoch it was superseded at falls below the cleanup
// horizon. mvcc.TypedObject implements this.
type ObjectCleanup interface {
	Cleanup(unusedValidFrom Epoch, trigger Epoch)
}

type objectCleanup struct {
	obj       ObjectCleanup
	validFrom Epoch
}

func (o objectCleanup) run(trigger Epoch) { o.obj.Cleanup(o.validFrom, trigger) }

type liveEpoch struct {
	epoch   Epoch
	pinners int
	pending []cleanupEntry
}

// epochHeap is a min-heap over live epoch values, giving EarliestLiveEpoch
// an O(log n) update instead of an O(n) scan over a map, since Go has no
// built-in sorted map the way the original's std::map<Epoch, ...> provided.
type epochHeap []Epoch

func (h epochHeap) Len() int            { return len(h) }
func (h epochHeap) Less(i, j int) bool  { return h[i] < h[j] }
func (h epochHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i] }
func (h *epochHeap) Push(x interface{}) { *h = append(*h, x.(Epoch)) }
func (h *epochHeap) Pop() interface{} {
	old := *h
	n := len(old)
	v := old[n-1]
	*h = old[:n-1]
	return v
}

// Registry is the snapshot registry (C1) plus deferred cleanup queue (C2).
// It is guarded by a single mutex held only for short, constant-time
// inserts/removes/sweeps; readers of version tables never touch it.
type Registry struct {
	mu     sync.Mutex
	clock  *Clock
	live   map[Epoch]*liveEpoch
	ordered epochHeap
}

// NewRegistry returns an empty registry bound to clock.
func NewRegistry(clock *Clock) *Registry {
	return &Registry{
		clock: clock,
		live:  make(map[Epoch]*liveEpoch),
	}
}

// RegisterSnapshot pins the current epoch for a new transaction and returns
// it. The caller must later call ReleaseSnapshot with the same value.
func (r *Registry) RegisterSnapshot() Epoch {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.clock.Current()
	le, ok := r.live[e]
	if !ok {
		le = &liveEpoch{epoch: e}
		r.live[e] = le
		heap.Push(&r.ordered, e)
	}
	le.pinners++
	return e
}

// ReleaseSnapshot unpins epoch e. If this was the last pinner of the
// earliest live epoch (or of any epoch that is now unreachable), every
// liveEpoch entry below the new earliest-live-epoch has its pending
// cleanups run and is discarded.
func (r *Registry) ReleaseSnapshot(e Epoch) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if le, ok := r.live[e]; ok {
		le.pinners--
	}
	r.sweepLocked()
}

// sweepLocked drains and removes every liveEpoch entry with zero pinners
// that sits at or before the current earliest live epoch. Must be called
// with mu held.
func (r *Registry) sweepLocked() {
	for r.ordered.Len() > 0 {
		lowest := r.ordered[0]
		le, ok := r.live[lowest]
		if !ok {
			heap.Pop(&r.ordered)
			continue
		}
		if le.pinners > 0 {
			break
		}
		heap.Pop(&r.ordered)
		delete(r.live, lowest)
		for _, entry := range le.pending {
			entry.run(lowest)
		}
	}
}

// EarliestLiveEpoch returns the smallest pinned epoch, or the clock's
// current epoch plus one if nothing is pinned (no snapshot can observe
// anything beyond the current epoch).
func (r *Registry) EarliestLiveEpoch() Epoch {
	r.mu.Lock()
	defer r.mu.Unlock()

	for r.ordered.Len() > 0 {
		lowest := r.ordered[0]
		le, ok := r.live[lowest]
		if !ok {
			heap.Pop(&r.ordered)
			continue
		}
		if le.pinners == 0 {
			heap.Pop(&r.ordered)
			delete(r.live, lowest)
			for _, entry := range le.pending {
				entry.run(lowest)
			}
			continue
		}
		return lowest
	}
	return r.clock.Current() + 1
}

// RegisterObjectCleanup records that obj has a superseded version whose
// lower validity bound is validFrom; once EarliestLiveEpoch() > validFrom,
// obj.Cleanup(validFrom, trigger) runs.
func (r *Registry) RegisterObjectCleanup(obj ObjectCleanup, validFrom Epoch) {
	r.scheduleLocked(objectCleanup{obj: obj, validFrom: validFrom})
}

// ScheduleCleanup enqueues an arbitrary callback to run once no live
// snapshot predates the epoch current at scheduling time.
func (r *Registry) ScheduleCleanup(fn func()) {
	r.scheduleLocked(funcCleanup{fn: fn})
}

func (r *Registry) scheduleLocked(entry cleanupEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e := r.clock.Current()
	le, ok := r.live[e]
	if !ok {
		// Nothing pins e right now; still park the entry at e so a sweep
		// that later observes a pinner at or before e drains it in order.
		le = &liveEpoch{epoch: e}
		r.live[e] = le
		heap.Push(&r.ordered, e)
	}
	le.pending = append(le.pending, entry)
	r.sweepLocked()
}

// FreeNow runs fn immediately. Used only for a resource that was never
// published to any reader (e.g. a version table built but lost a CAS race).
func FreeNow(fn func()) {
	fn()
}
