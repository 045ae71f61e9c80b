package traverse

import (
	"math"
	"testing"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

func Test_hasOverlap(t *testing.T) {
	cases := []struct {
		left, right string
		n           int
		want        bool
	}{
		{"AACGT", "CGTAC", 3, true},
		{"AACGT", "CGTAC", 4, false},
		{"AACGT", "GTAC", 2, true},
		{"AC", "CGTAC", 3, false},
		{"AACGT", "CGTAC", 0, false},
	}
	for _, c := range cases {
		if got := hasOverlap(c.left, c.right, c.n); got != c.want {
			t.Errorf("hasOverlap(%s, %s, %d) got %v, expected %v", c.left, c.right, c.n, got, c.want)
		}
	}
}

func Test_nonReciprocalLinkCleared(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		ga, gb, gc := a.alloc(), a.alloc(), a.alloc()
		fa, fb, fc := a.local(ga), a.local(gb), a.local(gc)
		fa.Seq = "AACGT"
		fb.Seq = "CGTAC"
		fc.Seq = "TCGT"
		// the overlap A->B holds, but B linked back to C, not A
		fa.Right = gb
		fb.Left = gc
		fc.Right = gb
		cleanFragLinks(r, 4, a)
		if !fa.Right.IsNil() {
			t.Error("non-reciprocal link should be cleared")
		}
		if fb.Left != gc {
			t.Error("the fragment pointed past should be unaffected")
		}
		if fc.Right != gb {
			t.Error("reciprocal links should survive")
		}
	})
}

func Test_equalLinksCleared(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		ga, gb := a.alloc(), a.alloc()
		fa, fb := a.local(ga), a.local(gb)
		fa.Seq = "AACGT"
		fb.Seq = "CGTAC"
		// both of A's walks collided with B
		fa.Left = gb
		fa.Right = gb
		fb.Left = ga
		cleanFragLinks(r, 4, a)
		if !fa.Left.IsNil() || !fa.Right.IsNil() {
			t.Error("a pair of links to the same fragment should be cleared")
		}
		// B's link to A dies with them: A's snapshot no longer names B
		if !fb.Left.IsNil() {
			t.Error("the back link should be cleared as non-reciprocal")
		}
	})
}

func Test_noOverlapLinkCleared(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		ga, gb := a.alloc(), a.alloc()
		fa, fb := a.local(ga), a.local(gb)
		fa.Seq = "AACGT"
		fb.Seq = "TTTTT"
		fa.Right = gb
		fb.Left = ga
		cleanFragLinks(r, 4, a)
		if !fa.Right.IsNil() || !fb.Left.IsNil() {
			t.Error("links without a k-1 overlap in either orientation should be cleared")
		}
	})
}

func Test_rcOverlapKept(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		ga, gb := a.alloc(), a.alloc()
		fa, fb := a.local(ga), a.local(gb)
		// revcomp(B) = CGTAC, which extends A's tail CGT
		fa.Seq = "AACGT"
		fb.Seq = "GTACG"
		fa.Right = gb
		fb.Right = ga
		cleanFragLinks(r, 4, a)
		if fa.Right != gb || !fa.RightIsRC {
			t.Errorf("got link %s rc=%v, expected the rc overlap kept", fa.Right, fa.RightIsRC)
		}
		if fb.Right != ga || !fb.RightIsRC {
			t.Errorf("got link %s rc=%v, expected the mirrored rc overlap kept", fb.Right, fb.RightIsRC)
		}
	})
}

func Test_connectStitchesChain(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		ga, gb := a.alloc(), a.alloc()
		fa, fb := a.local(ga), a.local(gb)
		fa.Seq = "AACGT"
		fa.SumDepths = 4
		fb.Seq = "CGTAC"
		fb.SumDepths = 6
		fa.Right = gb
		fb.Left = ga
		ctgs := contigs.New()
		connectFrags(r, 4, a, ctgs)
		if n := ctgs.LocalNum(); n != 1 {
			t.Fatalf("got %d contigs, expected the chain stitched into 1", n)
		}
		got := ctgs.Local()[0]
		if got.Seq != "AACGTAC" {
			t.Errorf("got %s, expected AACGTAC", got.Seq)
		}
		// the neighbor's depth is discounted by its shared k-1 bases
		want := (4 + 6*(1-3.0/5)) / 5.0
		if math.Abs(got.Depth-want) > 1e-9 {
			t.Errorf("got depth %f, expected %f", got.Depth, want)
		}
	})
}

func Test_connectYieldsToHigherRank(t *testing.T) {
	n := 2
	counts := make([]int, n)
	seqs := make([][]string, n)
	comm.New(n).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		g := a.alloc()
		fe := a.local(g)
		if r.Me() == 0 {
			fe.Seq = "AACGT"
			fe.SumDepths = 4
			fe.Right = comm.GPtr{Rank: 1, Idx: 0}
		} else {
			fe.Seq = "CGTAC"
			fe.SumDepths = 6
			fe.Left = comm.GPtr{Rank: 0, Idx: 0}
		}
		r.Barrier()
		ctgs := contigs.New()
		connectFrags(r, 4, a, ctgs)
		counts[r.Me()] = ctgs.LocalNum()
		for _, c := range ctgs.Local() {
			seqs[r.Me()] = append(seqs[r.Me()], c.Seq)
		}
		r.Barrier()
	})
	if counts[0] != 0 {
		t.Errorf("rank 0 emitted %d contigs, expected it to yield the chain", counts[0])
	}
	if counts[1] != 1 {
		t.Fatalf("rank 1 emitted %d contigs, expected 1", counts[1])
	}
	if got := seqs[1][0]; got != "AACGTAC" && got != util.Revcomp("AACGTAC") {
		t.Errorf("got %s, expected the whole chain", got)
	}
}

func Test_runtsSkipped(t *testing.T) {
	comm.New(1).Run(func(r *comm.Rank) {
		a := newFragArena(r)
		g := a.alloc()
		fe := a.local(g)
		fe.Seq = "ACG"
		cleanFragLinks(r, 4, a)
		ctgs := contigs.New()
		connectFrags(r, 4, a, ctgs)
		if n := ctgs.LocalNum(); n != 0 {
			t.Errorf("got %d contigs, expected fragments shorter than k dropped", n)
		}
	})
}
