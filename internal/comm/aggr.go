package comm

import (
	"github.com/sirupsen/logrus"
)

// defaultMaxInFlight caps outstanding batches per rank when the caller
// never calls SetSize.
const defaultMaxInFlight = 100

// AggrStore batches typed update records per destination rank and applies
// them at the destination with a registered merge function. A record
// enqueued before FlushUpdates is applied exactly once by the time
// FlushUpdates returns on all ranks.
type AggrStore[T any] struct {
	r    *Rank
	name string
	dist Dist[*AggrStore[T]]

	updateFn  func(T)
	bufs      [][]T
	perTarget int

	maxInFlight int
	pending     int // batches sent and not yet acked; owner goroutine only
}

// NewAggrStore is collective across the team.
func NewAggrStore[T any](r *Rank, name string) *AggrStore[T] {
	s := &AggrStore[T]{
		r:           r,
		name:        name,
		bufs:        make([][]T, r.N()),
		perTarget:   1,
		maxInFlight: defaultMaxInFlight,
	}
	s.dist = NewDist(r, s)
	return s
}

// SetUpdateFunc registers the destination-side merge. It runs on the
// destination rank's goroutine.
func (s *AggrStore[T]) SetUpdateFunc(fn func(T)) { s.updateFn = fn }

// SetSize divides a byte budget into per-destination buffers of records
// estimated at estElemSize bytes, and caps in-flight batches (0 for no
// cap). Exceeding the cap applies backpressure: the sender drains its own
// inbox until acks arrive.
func (s *AggrStore[T]) SetSize(maxBytes int64, estElemSize int, maxInFlight int) {
	if estElemSize < 1 {
		estElemSize = 1
	}
	per := maxBytes / int64(estElemSize) / int64(s.r.N())
	if per < 1 {
		per = 1
	}
	s.perTarget = int(per)
	s.maxInFlight = maxInFlight
	if s.r.Me() == 0 {
		logrus.Debugf("aggr store %s: %d records per target buffer, %d max in flight",
			s.name, s.perTarget, s.maxInFlight)
	}
}

// Update enqueues one record for the target rank, flushing that target's
// buffer when it fills.
func (s *AggrStore[T]) Update(target int, rec T) {
	s.bufs[target] = append(s.bufs[target], rec)
	if len(s.bufs[target]) >= s.perTarget {
		s.flushTarget(target)
	}
}

func (s *AggrStore[T]) flushTarget(target int) {
	if len(s.bufs[target]) == 0 {
		return
	}
	batch := s.bufs[target]
	s.bufs[target] = nil

	// locals apply immediately; nothing is in flight
	if target == s.r.Me() {
		for _, rec := range batch {
			s.updateFn(rec)
		}
		return
	}

	for s.maxInFlight > 0 && s.pending >= s.maxInFlight {
		s.r.Progress()
	}
	s.pending++
	d := s.dist
	me := s.r.Me()
	s.r.Send(target, func() {
		dst := d.On(target)
		for _, rec := range batch {
			dst.updateFn(rec)
		}
		dst.r.Send(me, func() { d.On(me).pending-- })
	})
}

// FlushUpdates drains every buffer, waits until all of this rank's batches
// are acked, then barriers. Afterwards every record enqueued anywhere
// before the flush has been applied at its destination.
func (s *AggrStore[T]) FlushUpdates() {
	for t := 0; t < s.r.N(); t++ {
		s.flushTarget(t)
	}
	for s.pending > 0 {
		s.r.Progress()
	}
	s.r.Barrier()
}

// Clear drops any locally buffered records without sending them.
func (s *AggrStore[T]) Clear() {
	s.bufs = make([][]T, s.r.N())
}
