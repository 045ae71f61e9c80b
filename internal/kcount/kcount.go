// Package kcount feeds the k-mer table: a pass over the reads, then a
// pass over the previous round's contigs when there are any.
package kcount

import (
	"math"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmerdht"
	"github.com/ajpowelsnl/mhm2-proxy/internal/reads"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// bases scoring below this mark as low quality
const qualThres = 20

const (
	maxSampledReads = 100000
	maxHHEntries    = 1024
)

// EstimateNumKmers extrapolates the per-rank k-mer load from a sample of
// this rank's reads and returns the team maximum; collective.
func EstimateNumKmers(r *comm.Rank, k int, bank *reads.PackedReads) int64 {
	bank.Reset()
	sampled := 0
	var numKmers int64
	for sampled < maxSampledReads {
		rd, ok := bank.GetNextRead()
		if !ok {
			break
		}
		sampled++
		if rd.Len() >= k {
			numKmers += int64(rd.Len() - k + 1)
		}
	}
	est := numKmers
	if tot := bank.LocalNumReads(); sampled > 0 && tot > sampled {
		est = numKmers * int64(tot) / int64(sampled)
	}
	return comm.ReduceMax(r, est)
}

// hhKey identifies one combinable occurrence: identical k-mer with
// identical flanks.
type hhKey[K comparable] struct {
	km          K
	left, right byte
}

func flushHH[K kmer.Mer[K]](dht *kmerdht.KmerDHT[K], hh map[hhKey[K]]uint16) {
	for key, n := range hh {
		dht.AddKmer(key.km, n, key.left, key.right)
		delete(hh, key)
	}
}

func addHH[K kmer.Mer[K]](dht *kmerdht.KmerDHT[K], hh map[hhKey[K]]uint16, km K, left, right byte) {
	key := hhKey[K]{km: km, left: left, right: right}
	if cur, ok := hh[key]; ok {
		if cur == math.MaxUint16 {
			dht.AddKmer(km, cur, left, right)
			cur = 0
		}
		hh[key] = cur + 1
		return
	}
	if len(hh) >= maxHHEntries {
		flushHH(dht, hh)
	}
	hh[key] = 1
}

// CountKmers runs the read pass: every valid k-mer occurrence goes to
// its owner with its flanking bases, low-quality flanks lowercased. With
// useHH, identical occurrences combine locally before they ship.
func CountKmers[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], bank *reads.PackedReads, useHH bool) {
	k := dht.K()
	var z K
	var hh map[hhKey[K]]uint16
	if useHH {
		hh = make(map[hhKey[K]]uint16, maxHHEntries)
	}
	pb := util.NewProgressBar(r.Me(), int64(bank.LocalNumReads()), "counting k-mers")
	bank.Reset()
	var numReads, numKmers int64
	for {
		rd, ok := bank.GetNextRead()
		if !ok {
			break
		}
		pb.Inc()
		if rd.Len() < k {
			continue
		}
		numReads++
		seq := rd.SeqMasked(qualThres)
		kms, oks := kmer.Slide(z, k, seq)
		for i := range kms {
			if !oks[i] {
				continue
			}
			var left, right byte
			if i > 0 {
				left = seq[i-1]
			}
			if i+k < len(seq) {
				right = seq[i+k]
			}
			numKmers++
			if useHH {
				addHH(dht, hh, kms[i], left, right)
			} else {
				dht.AddKmer(kms[i], 1, left, right)
			}
		}
	}
	if useHH {
		flushHH(dht, hh)
	}
	pb.Done()
	util.RLogV(r.Me(), "counted %d k-mer occurrences in %d reads", numKmers, numReads)
}

// ctgKmerSpan returns how many seed k-mers a contig contributes:
// interior positions only, so every seed has both flanks.
func ctgKmerSpan(seqLen, k int) int {
	if seqLen < k+2 {
		return 0
	}
	return seqLen - k - 1
}

// AddCtgKmers runs the contig pass: interior k-mers of the previous
// round's contigs seed the table weighted by contig depth.
func AddCtgKmers[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], ctgs *contigs.Contigs) {
	k := dht.K()
	var z K
	pb := util.NewProgressBar(r.Me(), int64(ctgs.LocalNum()), "seeding contig k-mers")
	var numCtgs, numKmers int64
	for _, ctg := range ctgs.Local() {
		pb.Inc()
		if ctgKmerSpan(len(ctg.Seq), k) == 0 {
			continue
		}
		numCtgs++
		depth := uint16(1)
		if ctg.Depth > math.MaxUint16 {
			depth = math.MaxUint16
		} else if ctg.Depth > 1 {
			depth = uint16(ctg.Depth)
		}
		kms, oks := kmer.Slide(z, k, ctg.Seq)
		for i := 1; i+k < len(ctg.Seq); i++ {
			if !oks[i] {
				continue
			}
			dht.AddCtgKmer(kms[i], depth, ctg.Seq[i-1], ctg.Seq[i+k])
			numKmers++
		}
	}
	pb.Done()
	util.RLogV(r.Me(), "seeded %d k-mers from %d contigs", numKmers, numCtgs)
}

// AnalyzeKmers runs both passes and finalizes the table; collective.
func AnalyzeKmers[K kmer.Mer[K]](r *comm.Rank, dht *kmerdht.KmerDHT[K], bank *reads.PackedReads,
	ctgs *contigs.Contigs, useHH bool) {
	CountKmers(r, dht, bank, useHH)
	dht.FlushUpdates()
	if ctgs.GlobalNum(r) > 0 {
		var localSeeds int64
		for _, ctg := range ctgs.Local() {
			localSeeds += int64(ctgKmerSpan(len(ctg.Seq), dht.K()))
		}
		dht.InitCtgKmers(comm.ReduceMax(r, localSeeds) * 3 / 2)
		AddCtgKmers(r, dht, ctgs)
		dht.FlushUpdates()
	}
	dht.FinishUpdates()
	numKmers := dht.NumKmers()
	util.SLog(r.Me(), "k-mer table holds %d k-mers for k=%d", numKmers, dht.K())
}
