package shuffle

import (
	"strings"
	"testing"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/reads"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

func mk(t *testing.T, seq string) kmer.Kmer32 {
	t.Helper()
	km, err := kmer.Kmer32{}.Parse(seq)
	if err != nil {
		t.Fatal(err)
	}
	return km
}

func addPair(t *testing.T, bank *reads.PackedReads, pairID int64, seq1, seq2 string) {
	t.Helper()
	q1 := strings.Repeat("I", len(seq1))
	q2 := strings.Repeat("I", len(seq2))
	if err := bank.AddPair(pairID, seq1, q1, seq2, q2); err != nil {
		t.Fatal(err)
	}
}

// pairsOf returns the pair ids in bank order, checking that the bank is
// still pair-even with read 1 ahead of its mate.
func pairsOf(t *testing.T, bank *reads.PackedReads) []int64 {
	t.Helper()
	if bank.LocalNumReads()%2 != 0 {
		t.Fatalf("got %d reads, expected a pair-even bank", bank.LocalNumReads())
	}
	var ids []int64
	for i := 0; i < bank.LocalNumReads(); i += 2 {
		r1, r2 := bank.GetRead(i), bank.GetRead(i+1)
		if r1.PairID() != r2.PairID() {
			t.Errorf("pair split: read %d next to read %d", r1.ID(), r2.ID())
		}
		if r1.PairNum() != 1 || r2.PairNum() != 2 {
			t.Errorf("pair %d out of order: %d then %d", r1.PairID(), r1.PairNum(), r2.PairNum())
		}
		ids = append(ids, r1.PairID())
	}
	return ids
}

func Test_sampleForm(t *testing.T) {
	for _, seq := range []string{
		"AAAAAAAAAAAAAAAAAAAAC",
		"GTTTTTTTTTTTTTTTTTTTT",
		"ACGGTACGGTACGGTACGGTA",
	} {
		km := mk(t, seq)
		sf := sampleForm(km)
		if sf.Less(km) || sf.Less(km.Revcomp()) {
			t.Errorf("sampleForm(%s) = %s, expected the larger strand", seq, sf.String())
		}
		if sf != sampleForm(km.Revcomp()) {
			t.Errorf("sampleForm(%s) differs between strands", seq)
		}
	}
}

func Test_shuffleUnmappedScatter(t *testing.T) {
	const n = 3
	comm.New(n).Run(func(r *comm.Rank) {
		bank := reads.NewPackedReads(33)
		if r.Me() == 0 {
			for pid := int64(1); pid <= 9; pid++ {
				addPair(t, bank, pid, "ACGTACGTAC", "TTTTTTTTTT")
			}
		}
		nb := ShuffleReads(r, bank, contigs.New(), 1<<20, 10)
		// nothing maps, so every pair lands at the rank hashed from its
		// negated id
		for _, pid := range pairsOf(t, nb) {
			if want := targetRankFor(-pid, n); want != r.Me() {
				t.Errorf("pair %d landed on rank %d, expected %d", pid, r.Me(), want)
			}
		}
		total := comm.ReduceSum(r, int64(nb.LocalNumReads()))
		if total != 18 {
			t.Errorf("got %d reads after shuffle, expected 18", total)
		}
	})
}

func Test_shuffleCountPreserved(t *testing.T) {
	const n = 4
	ctg := strings.Repeat("ACGGT", 9)
	comm.New(n).Run(func(r *comm.Rank) {
		ctgs := contigs.New()
		if r.Me() == 0 {
			ctgs.Add(contigs.Contig{Id: 0, Seq: ctg, Depth: 2})
		}
		// two pairs per rank: one samples the contig, one is too short
		// to map anywhere
		bank := reads.NewPackedReads(33)
		mapped := int64(r.Me()*2 + 1)
		addPair(t, bank, mapped, ctg, "ACGTACGTAC")
		addPair(t, bank, mapped+1, "ACGTACGTAC", "TTTTTTTTTT")
		nb := ShuffleReads(r, bank, ctgs, 1<<20, 10)
		total := comm.ReduceSum(r, int64(nb.LocalNumReads()))
		if total != n*4 {
			t.Errorf("got %d reads after shuffle, expected %d", total, n*4)
		}
		// the four mapped pairs block out one slot range per rank, and
		// each unmapped pair hashes to a fixed rank
		want := 1
		for _, pid := range []int64{2, 4, 6, 8} {
			if targetRankFor(-pid, n) == r.Me() {
				want++
			}
		}
		if got := pairsOf(t, nb); len(got) != want {
			t.Errorf("got %d pairs on rank %d, expected %d", len(got), r.Me(), want)
		}
	})
}

func Test_shuffleGroupsPairsByContig(t *testing.T) {
	const n = 2
	ctgA := strings.Repeat("ACGGT", 9)
	ctgB := strings.Repeat("TTAGC", 9)
	comm.New(n).Run(func(r *comm.Rank) {
		ctgs := contigs.New()
		if r.Me() == 0 {
			ctgs.Add(contigs.Contig{Id: 0, Seq: ctgA, Depth: 1})
			ctgs.Add(contigs.Contig{Id: 1, Seq: ctgB, Depth: 1})
		}
		// pairs 1-4 sample contig A, pairs 5-8 contig B, split over the
		// two ranks
		bank := reads.NewPackedReads(33)
		if r.Me() == 0 {
			addPair(t, bank, 1, ctgA, "ACGTACGTAC")
			addPair(t, bank, 2, ctgA, "ACGTACGTAC")
			addPair(t, bank, 5, ctgB, "ACGTACGTAC")
			addPair(t, bank, 6, ctgB, "ACGTACGTAC")
		} else {
			addPair(t, bank, 3, ctgA, "ACGTACGTAC")
			addPair(t, bank, 4, ctgA, "ACGTACGTAC")
			addPair(t, bank, 7, ctgB, "ACGTACGTAC")
			addPair(t, bank, 8, ctgB, "ACGTACGTAC")
		}
		nb := ShuffleReads(r, bank, ctgs, 1<<20, 10)
		got := pairsOf(t, nb)
		if len(got) != 4 {
			t.Errorf("got %d pairs on rank %d, expected 4", len(got), r.Me())
		}
		// each contig's pairs take consecutive slots, so they stay
		// together on one rank
		var a, b int
		for _, pid := range got {
			if pid <= 4 {
				a++
			} else {
				b++
			}
		}
		if a != 0 && b != 0 {
			t.Errorf("rank %d got pairs of both contigs: %v", r.Me(), got)
		}
	})
}

func Test_shuffleRcReadMaps(t *testing.T) {
	const n = 2
	ctg := strings.Repeat("ACGGT", 9)
	// a pair id whose unmapped fallback is rank 1, so landing on rank 0
	// proves the reverse-complement read matched the contig
	pid := int64(-1)
	for cand := int64(1); cand <= 64; cand++ {
		if targetRankFor(-cand, n) == 1 {
			pid = cand
			break
		}
	}
	if pid == -1 {
		t.Fatal("no candidate pair id hashes to rank 1")
	}
	comm.New(n).Run(func(r *comm.Rank) {
		ctgs := contigs.New()
		bank := reads.NewPackedReads(33)
		if r.Me() == 0 {
			ctgs.Add(contigs.Contig{Id: 0, Seq: ctg, Depth: 1})
			addPair(t, bank, pid, util.Revcomp(ctg), "ACGTACGTAC")
		}
		nb := ShuffleReads(r, bank, ctgs, 1<<20, 10)
		got := pairsOf(t, nb)
		if r.Me() == 0 && len(got) != 1 {
			t.Errorf("got %d pairs on rank 0, expected the mapped pair there", len(got))
		}
		if r.Me() == 1 && len(got) != 0 {
			t.Errorf("got pairs %v on rank 1, expected none", got)
		}
	})
}
