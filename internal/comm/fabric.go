// Package comm is the communication fabric the assembly stages are written
// against. A Fabric runs one single-program-multiple-data body on a team of
// ranks; each rank owns a shard of every distributed structure and is the
// only writer of that shard. Remote work arrives as closures executed by
// the owning rank at its progress points, so cross-rank mutation is always
// serialized through the owner.
//
// Blocking operations (Call, Barrier, FlushUpdates) service the caller's
// own inbox while they wait, which keeps mutual RPC between ranks from
// deadlocking. Handlers run on the owner's goroutine and may Send but must
// never block.
package comm

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
)

// message is a closure executed on the destination rank's goroutine.
type message func()

const inboxCap = 4096

// Fabric is the shared state of one team of ranks.
type Fabric struct {
	n       int
	inboxes []chan message
	barrier barrier

	// the single global cell behind Rank.FetchAdd, logically at rank 0
	counter atomic.Int64

	distMu    sync.Mutex
	distSlots map[int][]interface{}
}

// New creates a fabric of n ranks.
func New(n int) *Fabric {
	if n < 1 {
		panic(fmt.Sprintf("comm: team size %d, need at least 1", n))
	}
	f := &Fabric{
		n:         n,
		inboxes:   make([]chan message, n),
		distSlots: make(map[int][]interface{}),
	}
	for i := range f.inboxes {
		f.inboxes[i] = make(chan message, inboxCap)
	}
	f.barrier.n = int32(n)
	return f
}

// Run executes body once per rank and returns when every rank has finished.
func (f *Fabric) Run(body func(*Rank)) {
	var wg sync.WaitGroup
	for me := 0; me < f.n; me++ {
		wg.Add(1)
		go func(me int) {
			defer wg.Done()
			body(&Rank{f: f, me: me})
		}(me)
	}
	wg.Wait()
}

// Rank is one member of the team. All of its methods must be called from
// the rank's own goroutine.
type Rank struct {
	f        *Fabric
	me       int
	distNext int
}

// Me returns this rank's id.
func (r *Rank) Me() int { return r.me }

// N returns the team size.
func (r *Rank) N() int { return r.f.n }

// Progress services at most one pending remote request, yielding the
// scheduler when there is none.
func (r *Rank) Progress() {
	select {
	case m := <-r.f.inboxes[r.me]:
		m()
	default:
		runtime.Gosched()
	}
}

// post enqueues a message for target, servicing our own inbox rather than
// blocking when the target's inbox is full.
func (r *Rank) post(target int, m message) {
	inbox := r.f.inboxes[target]
	for {
		select {
		case inbox <- m:
			return
		default:
			r.Progress()
		}
	}
}

// Send runs fn on the target rank's goroutine and does not wait (the
// one-way RPC). fn must not block.
func (r *Rank) Send(target int, fn func()) {
	r.post(target, fn)
}

// Call runs fn on the target rank's goroutine and waits for its result,
// servicing this rank's inbox while it waits. A local target runs inline.
func Call[T any](r *Rank, target int, fn func() T) T {
	if target == r.me {
		return fn()
	}
	done := make(chan T, 1)
	r.post(target, func() { done <- fn() })
	for {
		select {
		case v := <-done:
			return v
		default:
			r.Progress()
		}
	}
}

// FetchAdd atomically adds delta to the team's single global counter and
// returns the value before the add.
func (r *Rank) FetchAdd(delta int64) int64 {
	return r.f.counter.Add(delta) - delta
}

// ResetCounter zeroes the team's global counter; collective. No FetchAdd
// may be in flight across the call.
func (r *Rank) ResetCounter() {
	r.Barrier()
	if r.me == 0 {
		r.f.counter.Store(0)
	}
	r.Barrier()
}

// barrier is sense-reversing: the last arrival resets the count and bumps
// the generation, releasing the spinners.
type barrier struct {
	n     int32
	count atomic.Int32
	gen   atomic.Uint64
}

// Barrier blocks until every rank has arrived, servicing incoming requests
// while waiting.
func (r *Rank) Barrier() {
	b := &r.f.barrier
	gen := b.gen.Load()
	if b.count.Add(1) == b.n {
		b.count.Store(0)
		b.gen.Add(1)
	}
	for b.gen.Load() == gen {
		r.Progress()
	}
}

// GPtr addresses one element of a per-rank arena: the owning rank and the
// element's index there.
type GPtr struct {
	Rank int32
	Idx  int32
}

// NilGPtr is the null global pointer.
var NilGPtr = GPtr{Rank: -1, Idx: -1}

// IsNil reports whether g addresses nothing.
func (g GPtr) IsNil() bool { return g.Rank < 0 }

func (g GPtr) String() string {
	if g.IsNil() {
		return "(nil)"
	}
	return fmt.Sprintf("%d:%d", g.Rank, g.Idx)
}
