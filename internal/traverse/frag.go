package traverse

import (
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// FragElem is one unextendable fragment of the graph: the bases a single
// walk claimed, plus links to the fragments the walk ran into on either
// side. The IsRC flags record the orientation the k-1 overlap holds in,
// set during link cleaning. Only the owning rank mutates an element;
// everyone else reads copies through the arena.
type FragElem struct {
	Left      comm.GPtr
	Right     comm.GPtr
	LeftIsRC  bool
	RightIsRC bool
	Seq       string
	SumDepths int64
	Visited   bool
}

// fragSnap is an element's link state frozen between the cleaning
// barriers, so reciprocity checks see the same picture on every rank no
// matter what order the live links are cleared in.
type fragSnap struct {
	Left  comm.GPtr
	Right comm.GPtr
	Seq   string
}

// fragArena owns this rank's fragment elements. A GPtr names an element
// as (owning rank, index here).
type fragArena struct {
	r     *comm.Rank
	dist  comm.Dist[*fragArena]
	elems []*FragElem
	snaps []fragSnap
}

// newFragArena creates the arena on every rank; collective.
func newFragArena(r *comm.Rank) *fragArena {
	a := &fragArena{r: r}
	a.dist = comm.NewDist(r, a)
	return a
}

// alloc adds an empty element and returns its global address.
func (a *fragArena) alloc() comm.GPtr {
	a.elems = append(a.elems, &FragElem{Left: comm.NilGPtr, Right: comm.NilGPtr})
	return comm.GPtr{Rank: int32(a.r.Me()), Idx: int32(len(a.elems) - 1)}
}

// local returns the element behind g, which must live on this rank.
func (a *fragArena) local(g comm.GPtr) *FragElem {
	if int(g.Rank) != a.r.Me() {
		util.Die("fragment %s dereferenced locally on rank %d", g, a.r.Me())
	}
	return a.elems[g.Idx]
}

// fetch returns a copy of the element behind g, wherever it lives.
func (a *fragArena) fetch(g comm.GPtr) FragElem {
	if int(g.Rank) == a.r.Me() {
		return *a.elems[g.Idx]
	}
	owner := a.dist.On(int(g.Rank))
	return comm.Call(a.r, int(g.Rank), func() FragElem {
		return *owner.elems[g.Idx]
	})
}

// snapshotLinks freezes every element's links; collective.
func (a *fragArena) snapshotLinks() {
	a.snaps = make([]fragSnap, len(a.elems))
	for i, fe := range a.elems {
		a.snaps[i] = fragSnap{Left: fe.Left, Right: fe.Right, Seq: fe.Seq}
	}
	a.r.Barrier()
}

// fetchSnap returns the frozen link state of the element behind g.
func (a *fragArena) fetchSnap(g comm.GPtr) fragSnap {
	if int(g.Rank) == a.r.Me() {
		return a.snaps[g.Idx]
	}
	owner := a.dist.On(int(g.Rank))
	return comm.Call(a.r, int(g.Rank), func() fragSnap {
		return owner.snaps[g.Idx]
	})
}

// release drops the elements once no rank can still be reading them;
// collective.
func (a *fragArena) release() {
	a.r.Barrier()
	a.elems = nil
	a.snaps = nil
}
