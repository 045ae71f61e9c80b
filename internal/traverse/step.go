package traverse

import (
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmerdht"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

type dirn int

const (
	dirnNone dirn = iota
	dirnLeft
	dirnRight
)

// WalkStatus says how a graph walk ended.
type WalkStatus byte

const (
	StatusRunning  WalkStatus = '-'
	StatusDeadend  WalkStatus = 'X'
	StatusFork     WalkStatus = 'F'
	StatusConflict WalkStatus = 'O'
	StatusRepeat   WalkStatus = 'R'
	StatusVisited  WalkStatus = 'V'
)

// stepInfo carries a walk's cursor between steps. kmer is in walk
// orientation when the step returns; uutig and sumDepths hold only what
// this step batch claimed.
type stepInfo[K kmer.Mer[K]] struct {
	status    WalkStatus
	kmer      K
	uutig     string
	sumDepths int64
	prevExt   byte
	nextExt   byte
	visited   comm.GPtr
}

// getNextStep advances a walk over the k-mers this rank owns, claiming
// each for fragGPtr, until the walk ends or leaves the shard. cur must
// be canonical and isRC set when the walk is moving along its reverse
// strand. Runs on the owner's goroutine and never blocks, so it is safe
// to ship as a remote call.
func getNextStep[K kmer.Mer[K]](shard *kmerdht.KmerDHT[K], owner int, cur K, dn dirn,
	prevExt, nextExt byte, revisitAllowed, isRC bool, fragGPtr comm.GPtr) stepInfo[K] {

	step := stepInfo[K]{kmer: cur, prevExt: prevExt, nextExt: nextExt, visited: comm.NilGPtr}
	var claimed []byte
	for {
		kc := shard.LocalCounts(step.kmer)
		if kc == nil {
			step.status = StatusDeadend
			break
		}
		left, right := kc.Left, kc.Right
		if left == 'X' || right == 'X' {
			step.status = StatusDeadend
			break
		}
		if left == 'F' || right == 'F' {
			step.status = StatusFork
			break
		}
		if isRC {
			left, right = util.CompBase(right), util.CompBase(left)
		}
		// the previous k-mer's extension must be echoed by this one
		if step.prevExt != 0 && ((dn == dirnLeft && step.prevExt != right) ||
			(dn == dirnRight && step.prevExt != left)) {
			step.status = StatusConflict
			break
		}
		if !kc.UutigFrag.IsNil() && kc.UutigFrag != fragGPtr {
			step.status = StatusVisited
			step.visited = kc.UutigFrag
			break
		}
		if kc.UutigFrag == fragGPtr && !revisitAllowed {
			step.status = StatusRepeat
			break
		}
		kc.UutigFrag = fragGPtr
		claimed = append(claimed, step.nextExt)
		step.sumDepths += int64(kc.Count)
		if dn == dirnLeft {
			step.nextExt = left
		} else {
			step.nextExt = right
		}
		wk := step.kmer
		if isRC {
			wk = wk.Revcomp()
		}
		if dn == dirnLeft {
			step.prevExt = wk.Back()
			wk = wk.BackwardBase(step.nextExt)
		} else {
			step.prevExt = wk.Front()
			wk = wk.ForwardBase(step.nextExt)
		}
		step.status = StatusRunning
		step.kmer = wk
		revisitAllowed = false
		cn, rc := kmer.Canonical(wk)
		if shard.TargetRank(cn) != owner {
			// next k-mer lives elsewhere; hand the walk back
			break
		}
		step.kmer = cn
		isRC = rc
	}
	step.uutig = string(claimed)
	return step
}

// walkDirn walks the graph from km in one direction, claiming k-mers for
// fragGPtr and appending the claimed bases to uutig; for left walks the
// accumulated bases end up reversed into sequence order. Returns the
// claimant's fragment when the walk ended on a k-mer someone else owns.
func walkDirn[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], km K, fragGPtr comm.GPtr,
	dn dirn, uutig *[]byte, sumDepths *int64, stats *walkTermStats) comm.GPtr {

	var prevExt byte
	nextExt := km.Front()
	revisitAllowed := false
	if dn == dirnRight {
		nextExt = km.Back()
		// the left walk already claimed the start k-mer
		revisitAllowed = true
		s := km.String()
		*uutig = append(*uutig, s[1:len(s)-1]...)
	}
	for {
		cn, isRC := kmer.Canonical(km)
		target := dht.TargetRank(cn)
		var step stepInfo[K]
		if target == r.Me() {
			stats.localSteps++
			step = getNextStep(dht, target, cn, dn, prevExt, nextExt, revisitAllowed, isRC, fragGPtr)
		} else {
			stats.remoteSteps++
			shard := dht.OnRank(target)
			step = comm.Call(r, target, func() stepInfo[K] {
				return getNextStep(shard, target, cn, dn, prevExt, nextExt, revisitAllowed, isRC, fragGPtr)
			})
		}
		revisitAllowed = false
		*sumDepths += step.sumDepths
		*uutig = append(*uutig, step.uutig...)
		if step.status != StatusRunning {
			stats.update(step.status)
			if dn == dirnLeft {
				reverse(*uutig)
			}
			return step.visited
		}
		prevExt = step.prevExt
		nextExt = step.nextExt
		km = step.kmer
	}
}

func reverse(b []byte) {
	for i, j := 0, len(b)-1; i < j; i, j = i+1, j-1 {
		b[i], b[j] = b[j], b[i]
	}
}

// walkTermStats tallies how this rank's walks ended.
type walkTermStats struct {
	deadends  int64
	forks     int64
	conflicts int64
	repeats   int64
	visited   int64

	localSteps  int64
	remoteSteps int64
}

func (s *walkTermStats) update(status WalkStatus) {
	switch status {
	case StatusDeadend:
		s.deadends++
	case StatusFork:
		s.forks++
	case StatusConflict:
		s.conflicts++
	case StatusRepeat:
		s.repeats++
	case StatusVisited:
		s.visited++
	}
}

func (s *walkTermStats) log(r *comm.Rank) {
	dead := comm.ReduceSum(r, s.deadends)
	forks := comm.ReduceSum(r, s.forks)
	confl := comm.ReduceSum(r, s.conflicts)
	reps := comm.ReduceSum(r, s.repeats)
	vis := comm.ReduceSum(r, s.visited)
	tot := dead + forks + confl + reps + vis
	util.SLogV(r.Me(), "walk terminations: %s deadends, %s forks, %s conflicts, %s repeats, %s visited",
		util.PercStr(dead, tot), util.PercStr(forks, tot), util.PercStr(confl, tot),
		util.PercStr(reps, tot), util.PercStr(vis, tot))
	local := comm.ReduceSum(r, s.localSteps)
	remote := comm.ReduceSum(r, s.remoteSteps)
	util.SLogV(r.Me(), "graph steps: %d on the walking rank, %d shipped", local, remote)
}
