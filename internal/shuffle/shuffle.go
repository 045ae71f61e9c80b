// Package shuffle moves read pairs onto the ranks that own the contigs
// they sample, so that later alignment-style passes find most of their
// reads already local. Mapping is approximate: a pair follows any contig
// sharing one of its sampled k-mers, and reads matching nothing are
// scattered pseudo-randomly to keep the banks balanced.
package shuffle

import (
	"encoding/binary"
	"unsafe"

	"github.com/spaolacci/murmur3"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/reads"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// shuffleKmerLen is the fixed sampling k, independent of the assembly k
// and small enough that every sample fits the one-word bucket.
const shuffleKmerLen = 21

// readKmerStride spaces the k-mers sampled from each read.
const readKmerStride = 32

// maxReqBuf is the number of lookups batched per target before a
// request round-trips.
const maxReqBuf = 1000

// shuffler is one rank's shard of the maps built up by the four phases.
type shuffler struct {
	r    *comm.Rank
	dist comm.Dist[*shuffler]

	kmerToCid  map[kmer.Kmer32]int64 // sampled contig k-mer -> contig id
	cidToReads map[int64][]int64     // contig id -> pair ids, at the cid's home
	readTarget map[int64]int32       // pair id -> destination rank, at the pair's home
	newBank    *reads.PackedReads

	maxStoreBytes int64
	maxInFlight   int
}

// targetRankFor is the home rank of an id-keyed record.
func targetRankFor(id int64, n int) int {
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(id))
	return int(murmur3.Sum64(buf[:]) % uint64(n))
}

// kmerTargetRank routes a sampled k-mer by its plain hash; the shuffle
// maps have no locality to preserve, so the DHT's minimizer scheme buys
// nothing here.
func kmerTargetRank(km kmer.Kmer32, n int) int {
	return int(km.Hash() % uint64(n))
}

// sampleForm returns the larger of km and its reverse complement, the
// strand-independent form the shuffle maps are keyed by.
func sampleForm(km kmer.Kmer32) kmer.Kmer32 {
	if rc := km.Revcomp(); km.Less(rc) {
		return rc
	}
	return km
}

type kmerCid struct {
	Kmer kmer.Kmer32
	Cid  int64
}

type cidRead struct {
	Cid    int64
	ReadID int64
}

type readLoc struct {
	ReadID int64
	Target int32
}

type pairRec struct {
	R1, R2 reads.PackedRead
}

// buildKmerToCidMap indexes every k-mer of every contig to the contig's
// id at the k-mer's home rank. A k-mer shared by several contigs keeps
// whichever arrived first.
func (s *shuffler) buildKmerToCidMap(ctgs *contigs.Contigs) {
	st := comm.NewAggrStore[kmerCid](s.r, "shuffle_kmer_cids")
	st.SetUpdateFunc(func(rec kmerCid) {
		if _, ok := s.kmerToCid[rec.Kmer]; !ok {
			s.kmerToCid[rec.Kmer] = rec.Cid
		}
	})
	st.SetSize(s.maxStoreBytes, int(unsafe.Sizeof(kmerCid{})), s.maxInFlight)
	var z kmer.Kmer32
	for _, ctg := range ctgs.Local() {
		s.r.Progress()
		if len(ctg.Seq) < shuffleKmerLen {
			continue
		}
		kms, oks := kmer.Slide(z, shuffleKmerLen, ctg.Seq)
		for i, km := range kms {
			if !oks[i] {
				continue
			}
			km = sampleForm(km)
			st.Update(kmerTargetRank(km, s.r.N()), kmerCid{Kmer: km, Cid: ctg.Id})
		}
	}
	st.FlushUpdates()
	indexed := comm.ReduceSum(s.r, int64(len(s.kmerToCid)))
	util.SLogV(s.r.Me(), "indexed %d contig k-mers for read shuffling", indexed)
}

// reqBuf batches k-mer lookups headed for one rank, pairing each k-mer
// with the read pair that sampled it.
type reqBuf struct {
	kmers   []kmer.Kmer32
	readIDs []int64
}

func (b *reqBuf) add(km kmer.Kmer32, readID int64) {
	b.kmers = append(b.kmers, km)
	b.readIDs = append(b.readIDs, readID)
}

func (b *reqBuf) clear() {
	b.kmers = b.kmers[:0]
	b.readIDs = b.readIDs[:0]
}

// resolveCids looks the buffered k-mers up on their home rank and
// attributes each hit's read pair to the contig at the contig id's home.
func (s *shuffler) resolveCids(target int, buf *reqBuf, st *comm.AggrStore[cidRead]) {
	peer := s.dist.On(target)
	kms := buf.kmers
	cids := comm.Call(s.r, target, func() []int64 {
		out := make([]int64, len(kms))
		for i, km := range kms {
			cid, ok := peer.kmerToCid[km]
			if !ok {
				cid = -1
			}
			out[i] = cid
		}
		return out
	})
	for i, cid := range cids {
		if cid != -1 {
			st.Update(targetRankFor(cid, s.r.N()), cidRead{Cid: cid, ReadID: buf.readIDs[i]})
		}
	}
	buf.clear()
}

// buildCidToReadsMap samples k-mers from every read of every local pair
// and collects, at each contig id's home, the ids of the pairs touching
// that contig. A pair matching several contigs lands in every list.
func (s *shuffler) buildCidToReadsMap(bank *reads.PackedReads) {
	st := comm.NewAggrStore[cidRead](s.r, "shuffle_cid_reads")
	st.SetUpdateFunc(func(rec cidRead) {
		s.cidToReads[rec.Cid] = append(s.cidToReads[rec.Cid], rec.ReadID)
	})
	st.SetSize(s.maxStoreBytes, int(unsafe.Sizeof(cidRead{})), s.maxInFlight)
	bufs := make([]reqBuf, s.r.N())
	var z kmer.Kmer32
	for i := 0; i < bank.LocalNumReads(); i += 2 {
		s.r.Progress()
		pairID := bank.GetRead(i).PairID()
		for off := 0; off < 2; off++ {
			rd := bank.GetRead(i + off)
			if rd.Len() < shuffleKmerLen {
				continue
			}
			kms, oks := kmer.Slide(z, shuffleKmerLen, rd.Seq())
			for j := 0; j < len(kms); j += readKmerStride {
				if !oks[j] {
					continue
				}
				km := sampleForm(kms[j])
				target := kmerTargetRank(km, s.r.N())
				bufs[target].add(km, pairID)
				if len(bufs[target].kmers) == maxReqBuf {
					s.resolveCids(target, &bufs[target], st)
				}
			}
		}
	}
	for target := range bufs {
		if len(bufs[target].kmers) > 0 {
			s.resolveCids(target, &bufs[target], st)
		}
	}
	st.FlushUpdates()
}

// assignReadLocations blocks the global slot space evenly over the team
// and records, at each pair id's home, the rank whose block the pair's
// slot fell in. A pair attributed to several contigs consumes one slot
// per attribution but keeps only the first recorded target.
func (s *shuffler) assignReadLocations(totalReads int64) {
	var numMapped int64
	for _, readIDs := range s.cidToReads {
		numMapped += int64(len(readIDs))
	}
	numMapped *= 2 // every entry stands for a pair
	allMapped := comm.ReduceSum(s.r, numMapped)
	maxMapped := comm.ReduceMax(s.r, numMapped)
	if maxMapped > 0 {
		util.SLogV(s.r.Me(), "mapped reads per rank: avg %d max %d balance %.3f",
			allMapped/int64(s.r.N()), maxMapped,
			float64(allMapped)/float64(s.r.N())/float64(maxMapped))
	}
	st := comm.NewAggrStore[readLoc](s.r, "shuffle_read_locations")
	st.SetUpdateFunc(func(rec readLoc) {
		if _, ok := s.readTarget[rec.ReadID]; !ok {
			s.readTarget[rec.ReadID] = rec.Target
		}
	})
	st.SetSize(s.maxStoreBytes, int(unsafe.Sizeof(readLoc{})), s.maxInFlight)
	s.r.ResetCounter()
	slot := s.r.FetchAdd(numMapped)
	block := (allMapped + int64(s.r.N()) - 1) / int64(s.r.N())
	if block < 1 {
		block = 1
	}
	for _, readIDs := range s.cidToReads {
		s.r.Progress()
		for _, readID := range readIDs {
			st.Update(targetRankFor(readID, s.r.N()),
				readLoc{ReadID: readID, Target: int32(slot / block)})
			slot += 2
		}
	}
	st.FlushUpdates()
	found := comm.ReduceSum(s.r, int64(len(s.readTarget)))
	util.SLogV(s.r.Me(), "%s of read pairs map to contigs", util.PercStr(found, totalReads/2))
}

// moveReads ships every local pair to its recorded target, both reads
// together. Pairs that matched no contig go to a rank chosen by hashing
// the negated pair id, deterministic but spread like the mapped ones.
func (s *shuffler) moveReads(bank *reads.PackedReads, totalReads int64) {
	st := comm.NewAggrStore[pairRec](s.r, "shuffle_read_pairs")
	st.SetUpdateFunc(func(rec pairRec) {
		s.newBank.AddPacked(rec.R1)
		s.newBank.AddPacked(rec.R2)
	})
	st.SetSize(s.maxStoreBytes, 600, s.maxInFlight)
	var numNotFound int64
	for i := 0; i < bank.LocalNumReads(); i += 2 {
		s.r.Progress()
		r1, r2 := bank.GetRead(i), bank.GetRead(i+1)
		pairID := r1.PairID()
		home := targetRankFor(pairID, s.r.N())
		peer := s.dist.On(home)
		target := int(comm.Call(s.r, home, func() int32 {
			if t, ok := peer.readTarget[pairID]; ok {
				return t
			}
			return -1
		}))
		if target == -1 {
			numNotFound++
			target = targetRankFor(-pairID, s.r.N())
		}
		if target < 0 || target >= s.r.N() {
			util.Die("shuffle target rank %d out of range 0..%d", target, s.r.N()-1)
		}
		st.Update(target, pairRec{R1: r1, R2: r2})
	}
	st.FlushUpdates()
	allNotFound := comm.ReduceSum(s.r, numNotFound)
	util.SLogV(s.r.Me(), "no contig target found for %s of pairs", util.PercStr(allNotFound, totalReads/2))
}

// ShuffleReads rebuilds the read banks so each pair lives on the rank
// owning a contig it samples; collective. The four phases are each
// fenced by a flush-and-barrier, so every map is complete before the
// next phase reads it. Returns the new bank; the old one is untouched.
func ShuffleReads(r *comm.Rank, bank *reads.PackedReads, ctgs *contigs.Contigs,
	maxStoreBytes int64, maxInFlight int) *reads.PackedReads {
	s := &shuffler{
		r:             r,
		kmerToCid:     make(map[kmer.Kmer32]int64),
		cidToReads:    make(map[int64][]int64),
		readTarget:    make(map[int64]int32),
		newBank:       reads.NewPackedReads(bank.QualOffset()),
		maxStoreBytes: maxStoreBytes,
		maxInFlight:   maxInFlight,
	}
	s.dist = comm.NewDist(r, s)

	totalReads := comm.ReduceSum(r, int64(bank.LocalNumReads()))

	s.buildKmerToCidMap(ctgs)
	s.buildCidToReadsMap(bank)
	s.assignReadLocations(totalReads)
	s.moveReads(bank, totalReads)

	received := int64(s.newBank.LocalNumReads())
	allReceived := comm.ReduceSum(r, received)
	maxReceived := comm.ReduceMax(r, received)
	if maxReceived > 0 {
		util.SLogV(r.Me(), "read balance after shuffle %.3f",
			float64(allReceived)/float64(r.N())/float64(maxReceived))
	}
	if allReceived != totalReads {
		util.WarnOne(r.Me(), "not all reads shuffled: expected %d, moved %d", totalReads, allReceived)
	}
	r.Barrier()
	return s.newBank
}
