// Package queue implements the AsyncQueue collaborator from spec.md §4.1:
// concurrent Add calls for the same key coalesce into a single processor
// invocation, and the queue's parallelism budget can be grown or shrunk
// live without disturbing work already in flight.
//
// Coalescing is delegated to golang.org/x/sync/singleflight, promoted here
// from an indirect dependency of the teacher's go-merkletree require to a
// direct one. The resizable parallelism budget is a small sync.Cond-based
// counting semaphore: x/sync/semaphore.Weighted cannot be resized once
// constructed, and nothing else in the retrieval pack demonstrates a
// live-resizable one, so this piece is grounded on sync.Cond directly
// (see DESIGN.md).
package queue

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Processor computes the value for a coalesced key. It is invoked at most
// once per outstanding Add group, no matter how many callers Add the same
// key concurrently.
type Processor[V any] func(key string) (V, error)

// AsyncQueue coalesces concurrent Add calls for the same key and bounds
// how many distinct keys are processed at once, per spec.md §4.1 and §5.
type AsyncQueue[V any] struct {
	group   singleflight.Group
	process Processor[V]
	gate    *gate
}

// New returns an AsyncQueue with the given starting parallelism and
// processor function.
func New[V any](parallelism int, process Processor[V]) *AsyncQueue[V] {
	return &AsyncQueue[V]{
		process: process,
		gate:    newGate(parallelism),
	}
}

// Add coalesces this call with any other in-flight Add for the same key,
// running Processor at most once for the group. The parallelism gate is
// acquired inside the singleflight leader closure so that followers
// waiting on an already-in-flight key do not themselves consume a gate
// slot; only the one caller that actually runs Processor does.
func (q *AsyncQueue[V]) Add(key string) (V, error) {
	v, err, _ := q.group.Do(key, func() (any, error) {
		q.gate.acquire()
		defer q.gate.release()
		return q.process(key)
	})
	if err != nil {
		var zero V
		return zero, err
	}
	return v.(V), nil
}

// IncreaseParallelism grows the queue's concurrency budget by n, releasing
// capacity to any keys currently waiting on the gate.
func (q *AsyncQueue[V]) IncreaseParallelism(n int) {
	q.gate.resize(n)
}

// DecreaseParallelism shrinks the queue's concurrency budget by n. Work
// already holding a slot runs to completion; only future acquires are
// throttled by the smaller budget.
func (q *AsyncQueue[V]) DecreaseParallelism(n int) {
	q.gate.resize(-n)
}

// gate is a counting semaphore whose capacity can change while goroutines
// are blocked waiting on it, which sync.WaitGroup and x/sync/semaphore
// cannot do.
type gate struct {
	mu       sync.Mutex
	cond     *sync.Cond
	capacity int
	inUse    int
}

func newGate(capacity int) *gate {
	if capacity < 1 {
		capacity = 1
	}
	g := &gate{capacity: capacity}
	g.cond = sync.NewCond(&g.mu)
	return g
}

func (g *gate) acquire() {
	g.mu.Lock()
	defer g.mu.Unlock()
	for g.inUse >= g.capacity {
		g.cond.Wait()
	}
	g.inUse++
}

func (g *gate) release() {
	g.mu.Lock()
	g.inUse--
	g.mu.Unlock()
	g.cond.Signal()
}

// resize adjusts capacity by delta, which may be negative. Capacity never
// drops below 1. Growing wakes any goroutines blocked in acquire.
func (g *gate) resize(delta int) {
	g.mu.Lock()
	g.capacity += delta
	if g.capacity < 1 {
		g.capacity = 1
	}
	g.mu.Unlock()
	g.cond.Broadcast()
}
