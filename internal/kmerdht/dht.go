// Package kmerdht distributes k-mer counts across the team. Each k-mer
// lives in canonical form on the rank its minimizer hashes to, with
// tallies of the bases seen next to it on both strands. Updates flow
// through aggregating stores and only become visible after FlushUpdates;
// FinishUpdates then fixes the consensus extensions the graph traversal
// follows.
package kmerdht

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"unsafe"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/willf/bloom"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// ExtCounts tallies votes for one side's neighboring base; adds
// saturate instead of wrapping.
type ExtCounts struct {
	A, C, G, T uint16
}

func satAdd(a, b uint16) uint16 {
	s := uint32(a) + uint32(b)
	if s > math.MaxUint16 {
		return math.MaxUint16
	}
	return uint16(s)
}

// Inc adds count votes for base, ignoring anything outside ACGT.
func (e *ExtCounts) Inc(base byte, count uint16) {
	switch base {
	case 'A':
		e.A = satAdd(e.A, count)
	case 'C':
		e.C = satAdd(e.C, count)
	case 'G':
		e.G = satAdd(e.G, count)
	case 'T':
		e.T = satAdd(e.T, count)
	}
}

// Get returns the votes for base.
func (e ExtCounts) Get(base byte) uint16 {
	switch base {
	case 'A':
		return e.A
	case 'C':
		return e.C
	case 'G':
		return e.G
	case 'T':
		return e.T
	}
	return 0
}

// Merge folds o's votes into e.
func (e *ExtCounts) Merge(o ExtCounts) {
	e.A = satAdd(e.A, o.A)
	e.C = satAdd(e.C, o.C)
	e.G = satAdd(e.G, o.G)
	e.T = satAdd(e.T, o.T)
}

// KmerCounts is the table entry for one canonical k-mer. The Lo tallies
// count every vote, the Hi tallies only votes from high-quality bases.
// Left and Right are unset until FinishUpdates. UutigFrag is the claim
// the traversal plants when it folds the k-mer into a fragment; only
// the owning rank's goroutine touches it.
type KmerCounts struct {
	UutigFrag comm.GPtr
	LeftLo    ExtCounts
	LeftHi    ExtCounts
	RightLo   ExtCounts
	RightHi   ExtCounts
	Count     uint16
	Left      byte
	Right     byte
}

// KmerAndExt is the update record shipped to a k-mer's owner: one
// occurrence (or a pre-combined batch) with the bases flanking it.
type KmerAndExt[K kmer.Mer[K]] struct {
	Kmer  K
	Count uint16
	Left  byte
	Right byte
}

// KmerDHT is one rank's shard of the distributed k-mer table.
type KmerDHT[K kmer.Mer[K]] struct {
	r            *comm.Rank
	dist         comm.Dist[*KmerDHT[K]]
	kmers        map[K]*KmerCounts
	ctgKmers     map[K]*KmerCounts
	readStore    *comm.AggrStore[KmerAndExt[K]]
	ctgStore     *comm.AggrStore[KmerAndExt[K]]
	bloom        *bloom.BloomFilter
	dminThres    float64
	k            int
	minimizerLen int
	useQF        bool
}

// New creates the table on every rank; collective. estKmers sizes this
// rank's shard, maxStoreBytes caps the aggregating buffers and useQF
// screens out singleton k-mers with a bloom filter.
func New[K kmer.Mer[K]](r *comm.Rank, k int, estKmers int64, maxStoreBytes int64,
	maxInFlight int, useQF bool, dminThres float64) *KmerDHT[K] {
	minimizerLen := 15
	if k < minimizerLen {
		minimizerLen = k
	}
	dht := &KmerDHT[K]{
		r:            r,
		kmers:        make(map[K]*KmerCounts, estKmers),
		ctgKmers:     make(map[K]*KmerCounts),
		dminThres:    dminThres,
		k:            k,
		minimizerLen: minimizerLen,
		useQF:        useQF,
	}
	if useQF {
		dht.bloom = bloom.NewWithEstimates(uint(estKmers)+1, 0.05)
	}
	elemSize := int(unsafe.Sizeof(KmerAndExt[K]{}))
	dht.readStore = comm.NewAggrStore[KmerAndExt[K]](r, "kmers")
	dht.readStore.SetUpdateFunc(dht.applyReadKmer)
	dht.readStore.SetSize(maxStoreBytes, elemSize, maxInFlight)
	dht.ctgStore = comm.NewAggrStore[KmerAndExt[K]](r, "ctg_kmers")
	dht.ctgStore.SetUpdateFunc(dht.applyCtgKmer)
	dht.ctgStore.SetSize(maxStoreBytes, elemSize, maxInFlight)
	dht.dist = comm.NewDist(r, dht)
	util.SLogV(r.Me(), "k-mer table for k=%d: estimated %d per rank, minimizer len %d", k, estKmers, minimizerLen)
	return dht
}

// OnRank returns the shard owned by rank; safe to call from any
// goroutine, but the shard itself must only be touched on its owner.
func (dht *KmerDHT[K]) OnRank(rank int) *KmerDHT[K] { return dht.dist.On(rank) }

// TargetRank returns the owner of canonical k-mer cn.
func (dht *KmerDHT[K]) TargetRank(cn K) int {
	return int(cn.MinimizerHash(dht.minimizerLen) % uint64(dht.r.N()))
}

// K returns the k-mer length the table was built for.
func (dht *KmerDHT[K]) K() int { return dht.k }

func compExt(b byte) byte {
	if b == 0 {
		return 0
	}
	return util.CompBase(b)
}

// AddKmer routes one read k-mer occurrence to its owner. The k-mer may
// be in either orientation; flanking bases keep their quality case and
// are 0 at a read boundary.
func (dht *KmerDHT[K]) AddKmer(km K, count uint16, left, right byte) {
	cn, isRC := kmer.Canonical(km)
	if isRC {
		left, right = compExt(right), compExt(left)
	}
	dht.readStore.Update(dht.TargetRank(cn), KmerAndExt[K]{Kmer: cn, Count: count, Left: left, Right: right})
}

// AddCtgKmer routes one k-mer drawn from a previous round's contig,
// weighted by the contig's depth.
func (dht *KmerDHT[K]) AddCtgKmer(km K, depth uint16, left, right byte) {
	cn, isRC := kmer.Canonical(km)
	if isRC {
		left, right = compExt(right), compExt(left)
	}
	dht.ctgStore.Update(dht.TargetRank(cn), KmerAndExt[K]{Kmer: cn, Count: depth, Left: left, Right: right})
}

// InitCtgKmers sizes the seed k-mer shard ahead of AddCtgKmer calls.
func (dht *KmerDHT[K]) InitCtgKmers(est int64) {
	dht.ctgKmers = make(map[K]*KmerCounts, est)
	util.SLogV(dht.r.Me(), "seeding k-mer table from contigs, estimated %d per rank", est)
}

func addVotes(kc *KmerCounts, left, right byte, count uint16) {
	if left != 0 {
		up := left
		if up >= 'a' {
			up -= 'a' - 'A'
		}
		kc.LeftLo.Inc(up, count)
		if left == up {
			kc.LeftHi.Inc(up, count)
		}
	}
	if right != 0 {
		up := right
		if up >= 'a' {
			up -= 'a' - 'A'
		}
		kc.RightLo.Inc(up, count)
		if right == up {
			kc.RightHi.Inc(up, count)
		}
	}
}

// seenBefore marks km in the singleton filter and reports whether it was
// already there.
func (dht *KmerDHT[K]) seenBefore(km K) bool {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], km.Hash())
	return dht.bloom.TestAndAdd(buf[:])
}

// applyReadKmer runs on the owner for every read k-mer record.
func (dht *KmerDHT[K]) applyReadKmer(rec KmerAndExt[K]) {
	if dht.useQF && rec.Count == 1 {
		if _, ok := dht.kmers[rec.Kmer]; !ok {
			if !dht.seenBefore(rec.Kmer) {
				// first sighting parks in the filter only
				return
			}
			// second sighting; count the parked first one too
			kc := &KmerCounts{UutigFrag: comm.NilGPtr, Count: 2}
			addVotes(kc, rec.Left, rec.Right, 1)
			dht.kmers[rec.Kmer] = kc
			return
		}
	}
	kc, ok := dht.kmers[rec.Kmer]
	if !ok {
		kc = &KmerCounts{UutigFrag: comm.NilGPtr}
		dht.kmers[rec.Kmer] = kc
	}
	kc.Count = satAdd(kc.Count, rec.Count)
	addVotes(kc, rec.Left, rec.Right, rec.Count)
}

// applyCtgKmer runs on the owner; the first contig to supply a k-mer
// wins and later duplicates are dropped.
func (dht *KmerDHT[K]) applyCtgKmer(rec KmerAndExt[K]) {
	if _, ok := dht.ctgKmers[rec.Kmer]; ok {
		return
	}
	kc := &KmerCounts{UutigFrag: comm.NilGPtr, Count: rec.Count}
	addVotes(kc, rec.Left, rec.Right, rec.Count)
	dht.ctgKmers[rec.Kmer] = kc
}

// FlushUpdates drains both stores; collective. Afterwards every AddKmer
// and AddCtgKmer issued before the call is applied exactly once.
func (dht *KmerDHT[K]) FlushUpdates() {
	dht.readStore.FlushUpdates()
	dht.ctgStore.FlushUpdates()
}

// FinishUpdates folds the contig seeds into the main table, drops
// k-mers below the depth threshold and fixes both consensus extensions;
// collective.
func (dht *KmerDHT[K]) FinishUpdates() {
	for km, ckc := range dht.ctgKmers {
		if kc, ok := dht.kmers[km]; ok {
			kc.Count = satAdd(kc.Count, ckc.Count)
			kc.LeftLo.Merge(ckc.LeftLo)
			kc.LeftHi.Merge(ckc.LeftHi)
			kc.RightLo.Merge(ckc.RightLo)
			kc.RightHi.Merge(ckc.RightHi)
		} else {
			dht.kmers[km] = ckc
		}
	}
	dht.ctgKmers = make(map[K]*KmerCounts)
	before := int64(len(dht.kmers))
	for km, kc := range dht.kmers {
		if float64(kc.Count) < dht.dminThres {
			delete(dht.kmers, km)
			continue
		}
		kc.Left = chooseExt(kc.LeftHi, kc.LeftLo, int(kc.Count))
		kc.Right = chooseExt(kc.RightHi, kc.RightLo, int(kc.Count))
	}
	dropped := before - int64(len(dht.kmers))
	util.RLogV(dht.r.Me(), "dropped %s low depth k-mers", util.PercStr(dropped, before))
	dht.r.Barrier()
}

// LocalCounts returns this shard's entry for canonical k-mer cn, or nil;
// owner goroutine only.
func (dht *KmerDHT[K]) LocalCounts(cn K) *KmerCounts { return dht.kmers[cn] }

// ForEachLocal visits every entry of this shard; owner goroutine only.
func (dht *KmerDHT[K]) ForEachLocal(fn func(cn K, kc *KmerCounts)) {
	for km, kc := range dht.kmers {
		fn(km, kc)
	}
}

// LocalNumKmers returns the size of this shard.
func (dht *KmerDHT[K]) LocalNumKmers() int { return len(dht.kmers) }

// NumKmers returns the global table size; collective.
func (dht *KmerDHT[K]) NumKmers() int64 {
	return comm.ReduceSum(dht.r, int64(len(dht.kmers)))
}

// Lookup fetches the entry for km from its owner, canonicalizing first.
func (dht *KmerDHT[K]) Lookup(km K) (KmerCounts, bool) {
	cn, _ := kmer.Canonical(km)
	target := dht.TargetRank(cn)
	type resp struct {
		kc KmerCounts
		ok bool
	}
	res := comm.Call(dht.r, target, func() resp {
		if kc := dht.OnRank(target).LocalCounts(cn); kc != nil {
			return resp{kc: *kc, ok: true}
		}
		return resp{}
	})
	return res.kc, res.ok
}

// KmerExists reports whether km survives in the table.
func (dht *KmerDHT[K]) KmerExists(km K) bool {
	_, ok := dht.Lookup(km)
	return ok
}

// DumpKmers writes every rank's k-mers to one gzipped file as
// concatenated members; collective.
func (dht *KmerDHT[K]) DumpKmers(fname string) error {
	var raw bytes.Buffer
	gz := gzip.NewWriter(&raw)
	for km, kc := range dht.kmers {
		if _, err := fmt.Fprintf(gz, "%s %d %c%c\n", km.String(), kc.Count, kc.Left, kc.Right); err != nil {
			return errors.Wrap(err, "compressing k-mers")
		}
	}
	if err := gz.Close(); err != nil {
		return errors.Wrap(err, "compressing k-mers")
	}
	size := int64(raw.Len())
	offset := comm.PrefixSum(dht.r, size) - size
	// rank 0 creates the file, but everyone must reach the barrier
	var createErr error
	if dht.r.Me() == 0 {
		f, err := os.Create(fname)
		if err != nil {
			createErr = errors.Wrapf(err, "creating %s", fname)
		} else {
			f.Close()
		}
	}
	dht.r.Barrier()
	if createErr != nil {
		return createErr
	}
	f, err := os.OpenFile(fname, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", fname)
	}
	defer f.Close()
	if _, err := f.WriteAt(raw.Bytes(), offset); err != nil {
		return errors.Wrapf(err, "writing %s", fname)
	}
	util.RLogV(dht.r.Me(), "dumped %d k-mers to %s", dht.LocalNumKmers(), fname)
	return nil
}

// ClearStores drops any buffered updates.
func (dht *KmerDHT[K]) ClearStores() {
	dht.readStore.Clear()
	dht.ctgStore.Clear()
}
