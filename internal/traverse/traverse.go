// Package traverse walks the distributed de Bruijn graph and emits the
// round's uutigs. Walks claim k-mers through their owning ranks, so the
// graph is consumed exactly once no matter how it is sharded: each k-mer
// ends up in one fragment, fragments link up where walks collided, and
// the linked chains are stitched into contigs.
package traverse

import (
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmerdht"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// constructFrags walks left and then right out of every eligible local
// k-mer, recording one fragment per walk pair; collective.
func constructFrags[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], arena *fragArena) {
	var stats walkTermStats
	pb := util.NewProgressBar(r.Me(), int64(dht.LocalNumKmers()), "traversing graph")
	dht.ForEachLocal(func(cn K, kc *kmerdht.KmerCounts) {
		pb.Inc()
		r.Progress()
		// claimed by an earlier walk, possibly a remote one
		if !kc.UutigFrag.IsNil() {
			return
		}
		// walks only start where both sides extend cleanly
		if kc.Left == 'X' || kc.Right == 'X' || kc.Left == 'F' || kc.Right == 'F' {
			return
		}
		fragGPtr := arena.alloc()
		var uutig []byte
		var sumDepths int64
		left := walkDirn(r, dht, cn, fragGPtr, dirnLeft, &uutig, &sumDepths, &stats)
		right := walkDirn(r, dht, cn, fragGPtr, dirnRight, &uutig, &sumDepths, &stats)
		fe := arena.local(fragGPtr)
		fe.Seq = string(uutig)
		fe.SumDepths = sumDepths
		fe.Left = left
		fe.Right = right
	})
	pb.Done()
	r.Barrier()
	stats.log(r)
	allFrags := comm.ReduceSum(r, int64(len(arena.elems)))
	util.SLogV(r.Me(), "constructed %d fragments", allFrags)
}

// TraverseDeBruijnGraph walks the whole graph and replaces ctgs with
// this round's uutigs, numbered globally; collective.
func TraverseDeBruijnGraph[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], ctgs *contigs.Contigs) {
	arena := newFragArena(r)
	constructFrags(r, dht, arena)
	cleanFragLinks(r, dht.K(), arena)
	ctgs.Clear()
	connectFrags(r, dht.K(), arena, ctgs)
	arena.release()
	ctgs.RenumberGlobal(r)
	util.SLog(r.Me(), "assembled %d uutigs for k = %d", ctgs.GlobalNum(r), dht.K())
}
