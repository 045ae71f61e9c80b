package traverse

import (
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// Link cleaning. Construction leaves some fragment links unusable: the
// neighbor may not actually share a k-1 overlap (the walks met over a
// conflict), or it may have linked past us to a different fragment.
// Every link is checked for the overlap in both orientations and for
// reciprocity against the neighbor's own links, frozen at a barrier so
// the outcome does not depend on the order links are cleared in.

// hasOverlap reports whether the last n bases of left equal the first n
// bases of right.
func hasOverlap(left, right string, n int) bool {
	if n <= 0 || len(left) < n || len(right) < n {
		return false
	}
	return left[len(left)-n:] == right[:n]
}

type cleanCounts struct {
	runts      int64
	equal      int64
	links      int64
	overlaps   int64
	overlapsRC int64
	nonRecip   int64
	noOverlap  int64
}

// checkLink settles one side's link for the fragment at myGPtr with
// sequence seq: live is cleared unless the k-1 overlap holds in some
// orientation and the neighbor's snapshot points back at myGPtr on the
// matching side.
func checkLink(a *fragArena, dn dirn, myGPtr comm.GPtr, seq string, k int,
	live *comm.GPtr, isRC *bool, c *cleanCounts) {

	nb := *live
	if nb.IsNil() {
		return
	}
	c.links++
	snap := a.fetchSnap(nb)
	s1, s2 := snap.Seq, seq
	recip := snap.Right
	if dn == dirnRight {
		s1, s2 = seq, snap.Seq
		recip = snap.Left
	}
	if hasOverlap(s1, s2, k-1) {
		if recip != myGPtr {
			c.nonRecip++
			*live = comm.NilGPtr
			return
		}
		c.overlaps++
		return
	}
	nbRC := util.Revcomp(snap.Seq)
	s1, s2 = nbRC, seq
	recip = snap.Left
	if dn == dirnRight {
		s1, s2 = seq, nbRC
		recip = snap.Right
	}
	if hasOverlap(s1, s2, k-1) {
		if recip != myGPtr {
			c.nonRecip++
			*live = comm.NilGPtr
			return
		}
		c.overlapsRC++
		*isRC = true
		return
	}
	c.noOverlap++
	*live = comm.NilGPtr
}

// cleanFragLinks validates every fragment link; collective.
func cleanFragLinks(r *comm.Rank, k int, a *fragArena) {
	var c cleanCounts
	// local decisions first: runts stay out of the chains entirely, and
	// a pair of links to the same fragment means the two walks collided
	for _, fe := range a.elems {
		if len(fe.Seq) < k {
			c.runts++
			continue
		}
		if !fe.Left.IsNil() && fe.Left == fe.Right {
			fe.Left = comm.NilGPtr
			fe.Right = comm.NilGPtr
			c.equal++
		}
	}
	a.snapshotLinks()
	pb := util.NewProgressBar(r.Me(), int64(len(a.elems)), "cleaning fragment links")
	for i, fe := range a.elems {
		pb.Inc()
		r.Progress()
		if len(fe.Seq) < k {
			continue
		}
		myGPtr := comm.GPtr{Rank: int32(r.Me()), Idx: int32(i)}
		checkLink(a, dirnLeft, myGPtr, fe.Seq, k, &fe.Left, &fe.LeftIsRC, &c)
		checkLink(a, dirnRight, myGPtr, fe.Seq, k, &fe.Right, &fe.RightIsRC, &c)
	}
	pb.Done()
	r.Barrier()
	runts := comm.ReduceSum(r, c.runts)
	equal := comm.ReduceSum(r, c.equal)
	links := comm.ReduceSum(r, c.links)
	fwd := comm.ReduceSum(r, c.overlaps)
	rc := comm.ReduceSum(r, c.overlapsRC)
	nonRecip := comm.ReduceSum(r, c.nonRecip)
	noOv := comm.ReduceSum(r, c.noOverlap)
	util.SLogV(r.Me(), "cleaned fragment links: %d runts, %d equal pairs cleared", runts, equal)
	util.SLogV(r.Me(), "of %d checked links: %s overlap, %s overlap rc, %s non-reciprocal, %s no overlap",
		links, util.PercStr(fwd, links), util.PercStr(rc, links),
		util.PercStr(nonRecip, links), util.PercStr(noOv, links))
}
