package reads

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
)

func Test_packUnpack(t *testing.T) {
	r, err := NewPackedRead(7, "ACGTN", "IIII#", 33)
	if err != nil {
		t.Fatal(err)
	}
	if r.Seq() != "ACGTN" {
		t.Errorf("got %q, expected ACGTN", r.Seq())
	}
	// 'I' scores 40, clamped to the 31 cap and rebuilt as '@'
	if r.Quals(33) != "@@@@#" {
		t.Errorf("got quals %q, expected @@@@#", r.Quals(33))
	}
	if r.ID() != 7 || r.PairID() != 7 || r.PairNum() != 1 {
		t.Errorf("got id=%d pair=%d num=%d", r.ID(), r.PairID(), r.PairNum())
	}
	name, seq, quals := r.Unpack(33)
	if name != "@r7/1" || seq != "ACGTN" || quals != "@@@@#" {
		t.Errorf("unpack got %q %q %q", name, seq, quals)
	}
	mate := FromRaw(-7, r.RawBytes())
	if mate.PairNum() != 2 || mate.Name() != "@r7/2" {
		t.Errorf("mate got num=%d name=%q", mate.PairNum(), mate.Name())
	}
}

func Test_packNormalization(t *testing.T) {
	r, err := NewPackedRead(1, "acgtRYWu", "IIIIIIII", 33)
	if err != nil {
		t.Fatal(err)
	}
	if r.Seq() != "ACGTNNNN" {
		t.Errorf("got %q, expected ACGTNNNN", r.Seq())
	}
}

func Test_packErrors(t *testing.T) {
	if _, err := NewPackedRead(0, "A", "I", 33); err == nil {
		t.Error("expected error for zero id")
	}
	if _, err := NewPackedRead(1, "AXA", "III", 33); err == nil {
		t.Error("expected error for unknown base")
	}
	if _, err := NewPackedRead(1, "AA", "I", 33); err == nil {
		t.Error("expected error for length mismatch")
	}
	// space scores -1 against the sanger offset
	if _, err := NewPackedRead(1, "A", " ", 33); err == nil {
		t.Error("expected error for quality below offset")
	}
}

func Test_seqMasked(t *testing.T) {
	// scores 19 19 20 20: the first two fall below a threshold of 20
	r, err := NewPackedRead(1, "ANGT", "4455", 33)
	if err != nil {
		t.Fatal(err)
	}
	if got := r.SeqMasked(20); got != "anGT" {
		t.Errorf("got %q, expected anGT", got)
	}
	if got := r.SeqMasked(0); got != "ANGT" {
		t.Errorf("got %q, expected ANGT", got)
	}
}

func Test_bankIteration(t *testing.T) {
	bank := NewPackedReads(33)
	if err := bank.AddPair(1, "ACGT", "IIII", "GGCC", "IIII"); err != nil {
		t.Fatal(err)
	}
	// single-end pair gets a placeholder mate
	if err := bank.AddPair(2, "AAAAA", "IIIII", "", ""); err != nil {
		t.Fatal(err)
	}
	if bank.LocalNumReads() != 4 || bank.LocalNumPairs() != 2 {
		t.Fatalf("got %d reads %d pairs", bank.LocalNumReads(), bank.LocalNumPairs())
	}
	if bank.MaxReadLen() != 5 {
		t.Errorf("got max len %d, expected 5", bank.MaxReadLen())
	}
	var ids []int64
	for {
		r, ok := bank.GetNextRead()
		if !ok {
			break
		}
		ids = append(ids, r.ID())
	}
	expected := []int64{1, -1, 2, -2}
	for i, id := range expected {
		if ids[i] != id {
			t.Errorf("read %d got id %d, expected %d", i, ids[i], id)
		}
	}
	bank.Reset()
	if r, ok := bank.GetNextRead(); !ok || r.ID() != 1 {
		t.Error("reset should rewind the iterator")
	}
	if bank.GetRead(3).Len() != 0 {
		t.Error("placeholder mate should be empty")
	}
	if err := bank.AddPair(0, "A", "I", "", ""); err == nil {
		t.Error("expected error for non-positive pair id")
	}
}

const fqSingle = "@r1\nACGTACGT\n+\nIIIIIIII\n@r2\nGGGGCCCC\n+\nIIIIIIII\n@r3\nTTTTAAAA\n+\nIIIIIIII\n"

func Test_loadFastqSingle(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reads.fq")
	if err := os.WriteFile(path, []byte(fqSingle), 0644); err != nil {
		t.Fatal(err)
	}
	counts := make([]int, 2)
	first := make([]string, 2)
	comm.New(2).Run(func(r *comm.Rank) {
		bank, err := LoadFastq(r, path, 33)
		if err != nil {
			t.Error(err)
			return
		}
		counts[r.Me()] = bank.LocalNumReads()
		first[r.Me()] = bank.GetRead(0).Seq()
	})
	// rank 0 keeps pairs 1 and 3, rank 1 keeps pair 2
	if counts[0] != 4 || counts[1] != 2 {
		t.Fatalf("got counts %v, expected [4 2]", counts)
	}
	if first[0] != "ACGTACGT" || first[1] != "GGGGCCCC" {
		t.Errorf("got first reads %v", first)
	}
}

func Test_loadFastqPairedGz(t *testing.T) {
	dir := t.TempDir()
	r1 := filepath.Join(dir, "r1.fq.gz")
	r2 := filepath.Join(dir, "r2.fq")
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write([]byte("@p1/1\nACGT\n+\nIIII\n@p2/1\nCCCC\n+\nIIII\n")); err != nil {
		t.Fatal(err)
	}
	if err := gz.Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r1, buf.Bytes(), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(r2, []byte("@p1/2\nTTTT\n+\nIIII\n@p2/2\nGGGG\n+\nIIII\n"), 0644); err != nil {
		t.Fatal(err)
	}
	comm.New(1).Run(func(r *comm.Rank) {
		bank, err := LoadFastq(r, r1+":"+r2, 33)
		if err != nil {
			t.Error(err)
			return
		}
		if bank.LocalNumReads() != 4 {
			t.Errorf("got %d reads, expected 4", bank.LocalNumReads())
		}
		if bank.GetRead(1).Seq() != "TTTT" || bank.GetRead(1).ID() != -1 {
			t.Errorf("got mate %q id %d", bank.GetRead(1).Seq(), bank.GetRead(1).ID())
		}
		if bank.GetRead(2).Seq() != "CCCC" || bank.GetRead(2).ID() != 2 {
			t.Errorf("got read %q id %d", bank.GetRead(2).Seq(), bank.GetRead(2).ID())
		}
	})
}

func Test_loadAllOffsetsPairIDs(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.fq")
	b := filepath.Join(dir, "b.fq")
	if err := os.WriteFile(a, []byte("@a1\nACGT\n+\nIIII\n@a2\nCCCC\n+\nIIII\n"), 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(b, []byte("@b1\nTTTT\n+\nIIII\n@b2\nGGGG\n+\nIIII\n"), 0644); err != nil {
		t.Fatal(err)
	}
	got := make([][]int64, 2)
	comm.New(2).Run(func(r *comm.Rank) {
		bank, err := LoadAll(r, []string{a, b}, 33)
		if err != nil {
			t.Error(err)
			return
		}
		var ids []int64
		for {
			rd, ok := bank.GetNextRead()
			if !ok {
				break
			}
			if rd.PairNum() == 1 {
				ids = append(ids, rd.PairID())
			}
		}
		got[r.Me()] = ids
	})
	// the second file's pairs continue numbering where the first left off
	want := [][]int64{{1, 3}, {2, 4}}
	for rank := range want {
		if len(got[rank]) != len(want[rank]) {
			t.Fatalf("rank %d got pair ids %v, expected %v", rank, got[rank], want[rank])
		}
		for i := range want[rank] {
			if got[rank][i] != want[rank][i] {
				t.Errorf("rank %d got pair ids %v, expected %v", rank, got[rank], want[rank])
				break
			}
		}
	}
}

func Test_loadFastqBadInput(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.fq")
	if err := os.WriteFile(path, []byte("not a header\nACGT\n+\nIIII\n"), 0644); err != nil {
		t.Fatal(err)
	}
	comm.New(1).Run(func(r *comm.Rank) {
		if _, err := LoadFastq(r, path, 33); err == nil {
			t.Error("expected error for malformed fastq")
		}
	})
}
