package comm

import (
	"sort"
	"sync"
	"testing"
)

func Test_barrierOrdering(t *testing.T) {
	const n = 4
	f := New(n)

	var mu sync.Mutex
	var order []int

	f.Run(func(r *Rank) {
		// rank 0 records before the barrier, everyone else after: the
		// barrier must force 0 to the front
		if r.Me() == 0 {
			mu.Lock()
			order = append(order, r.Me())
			mu.Unlock()
		}
		r.Barrier()
		if r.Me() != 0 {
			mu.Lock()
			order = append(order, r.Me())
			mu.Unlock()
		}
		r.Barrier()
	})

	if len(order) != n {
		t.Fatalf("got %d entries, expected %d", len(order), n)
	}
	if order[0] != 0 {
		t.Errorf("got rank %d first, expected rank 0 before the barrier", order[0])
	}
}

func Test_callRoundTrip(t *testing.T) {
	const n = 4
	f := New(n)

	f.Run(func(r *Rank) {
		// every rank asks every other rank to double a value
		for target := 0; target < n; target++ {
			in := r.Me()*10 + target
			got := Call(r, target, func() int { return in * 2 })
			if got != in*2 {
				t.Errorf("got %d, expected %d from rank %d", got, in*2, target)
			}
		}
		r.Barrier()
	})
}

func Test_callMutual(t *testing.T) {
	// all ranks call all ranks at once; progress servicing must prevent
	// deadlock
	const n = 8
	f := New(n)

	f.Run(func(r *Rank) {
		for round := 0; round < 50; round++ {
			target := (r.Me() + round + 1) % n
			got := Call(r, target, func() int { return target })
			if got != target {
				t.Errorf("got %d, expected %d", got, target)
			}
		}
		r.Barrier()
	})
}

func Test_sendIsApplied(t *testing.T) {
	const n = 3
	f := New(n)

	counts := make([]int, n)
	f.Run(func(r *Rank) {
		me := r.Me()
		for target := 0; target < n; target++ {
			if target == me {
				continue
			}
			target := target
			r.Send(target, func() { counts[target]++ })
		}
		// sends are applied by the target's progress; the barrier alone
		// does not guarantee application, so spin until they land
		r.Barrier()
		for counts[me] < n-1 {
			r.Progress()
		}
		r.Barrier()
	})

	for rank, c := range counts {
		if c != n-1 {
			t.Errorf("got %d sends applied at rank %d, expected %d", c, rank, n-1)
		}
	}
}

func Test_fetchAdd(t *testing.T) {
	const n = 4
	const per = 100
	f := New(n)

	var mu sync.Mutex
	var claimed []int64

	f.Run(func(r *Rank) {
		for i := 0; i < per; i++ {
			v := r.FetchAdd(2)
			mu.Lock()
			claimed = append(claimed, v)
			mu.Unlock()
		}
	})

	if len(claimed) != n*per {
		t.Fatalf("got %d claims, expected %d", len(claimed), n*per)
	}
	sort.Slice(claimed, func(i, j int) bool { return claimed[i] < claimed[j] })
	for i, v := range claimed {
		if v != int64(i*2) {
			t.Fatalf("got slot %d at position %d, expected %d", v, i, i*2)
		}
	}
}

func Test_reductions(t *testing.T) {
	const n = 5
	f := New(n)

	f.Run(func(r *Rank) {
		me := int64(r.Me())

		if got := ReduceSum(r, me+1); got != 15 {
			t.Errorf("got sum %d, expected 15", got)
		}
		if got := ReduceMax(r, me*10); got != 40 {
			t.Errorf("got max %d, expected 40", got)
		}
		// inclusive prefix of 1 is rank+1
		if got := PrefixSum(r, int64(1)); got != me+1 {
			t.Errorf("got prefix %d at rank %d, expected %d", got, me, me+1)
		}
		if got := ReduceSum(r, float64(r.Me())); got != 10.0 {
			t.Errorf("got float sum %v, expected 10", got)
		}
	})
}

func Test_distInstances(t *testing.T) {
	const n = 3
	f := New(n)

	f.Run(func(r *Rank) {
		type shard struct{ owner int }
		d := NewDist(r, &shard{owner: r.Me()})
		for rank := 0; rank < n; rank++ {
			if got := d.On(rank).owner; got != rank {
				t.Errorf("got owner %d, expected %d", got, rank)
			}
		}
		r.Barrier()
	})
}

func Test_gptr(t *testing.T) {
	if !NilGPtr.IsNil() {
		t.Error("expected NilGPtr to be nil")
	}
	g := GPtr{Rank: 2, Idx: 7}
	if g.IsNil() {
		t.Error("expected 2:7 to be non-nil")
	}
	if g.String() != "2:7" {
		t.Errorf("got %s, expected 2:7", g.String())
	}
	if g == NilGPtr {
		t.Error("expected distinct pointers to differ")
	}
}
