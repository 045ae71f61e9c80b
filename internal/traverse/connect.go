package traverse

import (
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// Fragment connection. Cleaned links chain fragments together; every
// chain must come out exactly once, so a walk gives up as soon as it
// would step onto a rank above its own and the chain is emitted by the
// highest rank owning a piece of it.

type connectCounts struct {
	walks       int64
	steps       int64
	drops       int64
	repeats     int64
	prevVisited int64
}

// otherSide returns the link of fe that does not point back at prev.
func otherSide(fe FragElem, prev comm.GPtr) comm.GPtr {
	if fe.Left == prev {
		return fe.Right
	}
	return fe.Left
}

// walkFrags follows links from next until the chain ends, growing uutig
// by each fragment's unshared bases. seen spans both directions of one
// chain walk, so a circular chain is folded in exactly once. Returns
// false when the chain crosses to a higher rank and the whole walk must
// be abandoned.
func walkFrags(r *comm.Rank, a *fragArena, k int, start, next comm.GPtr, uutig *[]byte,
	depths *float64, steps *int64, seen map[comm.GPtr]bool, localPath *[]*FragElem,
	c *connectCounts) bool {

	if next.IsNil() {
		return true
	}
	prev := start
	dn := dirnNone
	for !next.IsNil() {
		if int(next.Rank) > r.Me() {
			return false
		}
		if seen[next] {
			c.repeats++
			return true
		}
		seen[next] = true
		if int(next.Rank) == r.Me() {
			lfe := a.local(next)
			if lfe.Visited {
				util.Die("fragment %s was already folded into another chain", next)
			}
			*localPath = append(*localPath, lfe)
		}
		nfe := a.fetch(next)
		seq := nfe.Seq
		seqRC := util.Revcomp(seq)
		cur := string(*uutig)
		if dn == dirnNone {
			switch {
			case hasOverlap(cur, seq, k-1):
				dn = dirnRight
			case hasOverlap(seq, cur, k-1):
				dn = dirnLeft
			case hasOverlap(cur, seqRC, k-1):
				dn = dirnRight
			case hasOverlap(seqRC, cur, k-1):
				dn = dirnLeft
			default:
				util.Die("no k-1 overlap between chained fragments %s and %s", prev, next)
			}
		}
		if dn == dirnLeft {
			keep := len(seq) - k + 1
			switch {
			case hasOverlap(seq, cur, k-1):
				*uutig = append([]byte(seq[:keep]), *uutig...)
			case hasOverlap(seqRC, cur, k-1):
				*uutig = append([]byte(seqRC[:keep]), *uutig...)
			default:
				util.Die("no k-1 overlap between chained fragments %s and %s", prev, next)
			}
		} else {
			switch {
			case hasOverlap(cur, seq, k-1):
				*uutig = append(*uutig, seq[k-1:]...)
			case hasOverlap(cur, seqRC, k-1):
				*uutig = append(*uutig, seqRC[k-1:]...)
			default:
				util.Die("no k-1 overlap between chained fragments %s and %s", prev, next)
			}
		}
		// discount the shared overlap region of the neighbor's depth
		*depths += float64(nfe.SumDepths) * (1 - float64(k-1)/float64(len(seq)))
		*steps++
		hop := otherSide(nfe, prev)
		prev = next
		next = hop
	}
	return true
}

// connectFrags stitches chained fragments into uutigs; collective.
func connectFrags(r *comm.Rank, k int, a *fragArena, ctgs *contigs.Contigs) {
	var c connectCounts
	pb := util.NewProgressBar(r.Me(), int64(len(a.elems)), "connecting fragments")
	for i, fe := range a.elems {
		pb.Inc()
		r.Progress()
		if len(fe.Seq) < k {
			continue
		}
		if fe.Visited {
			c.prevVisited++
			continue
		}
		myGPtr := comm.GPtr{Rank: int32(r.Me()), Idx: int32(i)}
		seen := map[comm.GPtr]bool{myGPtr: true}
		var localPath []*FragElem
		uutig := []byte(fe.Seq)
		depths := float64(fe.SumDepths)
		steps := int64(1)
		ok := walkFrags(r, a, k, myGPtr, fe.Left, &uutig, &depths, &steps, seen, &localPath, &c)
		if ok {
			ok = walkFrags(r, a, k, myGPtr, fe.Right, &uutig, &depths, &steps, seen, &localPath, &c)
		}
		if !ok {
			c.drops++
			continue
		}
		c.walks++
		c.steps += steps
		for _, lfe := range localPath {
			lfe.Visited = true
		}
		ctgs.Add(contigs.Contig{Seq: string(uutig), Depth: depths / float64(len(uutig)-k+2)})
	}
	pb.Done()
	r.Barrier()
	walks := comm.ReduceSum(r, c.walks)
	steps := comm.ReduceSum(r, c.steps)
	drops := comm.ReduceSum(r, c.drops)
	reps := comm.ReduceSum(r, c.repeats)
	vis := comm.ReduceSum(r, c.prevVisited)
	util.SLogV(r.Me(), "connected %d chains over %d fragments (%d already chained, %d cycle stops), %d walks yielded to higher ranks",
		walks, steps, vis, reps, drops)
}
