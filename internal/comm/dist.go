package comm

// Dist holds one instance of a value per rank. Construction is collective:
// every rank must call NewDist in the same order so slot ids line up, the
// same way every other collective here is called symmetrically.
type Dist[T any] struct {
	f  *Fabric
	id int
}

// NewDist registers val as this rank's instance and returns the shared
// handle once every rank has registered.
func NewDist[T any](r *Rank, val T) Dist[T] {
	id := r.distNext
	r.distNext++
	f := r.f
	f.distMu.Lock()
	slot, ok := f.distSlots[id]
	if !ok {
		slot = make([]interface{}, f.n)
		f.distSlots[id] = slot
	}
	slot[r.me] = val
	f.distMu.Unlock()
	r.Barrier()
	return Dist[T]{f: f, id: id}
}

// On returns the instance registered by the given rank. Mutating state
// reached through a remote instance is only legal from a closure executing
// on that rank.
func (d Dist[T]) On(rank int) T {
	d.f.distMu.Lock()
	v := d.f.distSlots[d.id][rank].(T)
	d.f.distMu.Unlock()
	return v
}

// Number covers the value types the collectives reduce over.
type Number interface {
	~int | ~int32 | ~int64 | ~uint | ~uint32 | ~uint64 | ~float32 | ~float64
}

// gather shares one value per rank and returns all of them, in rank order,
// on every rank.
func gather[T Number](r *Rank, v T) []T {
	d := NewDist(r, v)
	out := make([]T, r.f.n)
	for i := range out {
		out[i] = d.On(i)
	}
	r.Barrier()
	return out
}

// ReduceSum returns the team-wide sum of v on every rank.
func ReduceSum[T Number](r *Rank, v T) T {
	var sum T
	for _, x := range gather(r, v) {
		sum += x
	}
	return sum
}

// ReduceMax returns the team-wide max of v on every rank.
func ReduceMax[T Number](r *Rank, v T) T {
	vals := gather(r, v)
	max := vals[0]
	for _, x := range vals[1:] {
		if x > max {
			max = x
		}
	}
	return max
}

// PrefixSum returns the inclusive prefix sum of v in rank order.
func PrefixSum[T Number](r *Rank, v T) T {
	vals := gather(r, v)
	var sum T
	for i := 0; i <= r.me; i++ {
		sum += vals[i]
	}
	return sum
}
