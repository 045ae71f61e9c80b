// Package contigging drives the per-k assembly rounds: size and build
// the k-mer table from the reads, walk the de Bruijn graph, and carry
// each round's contigs into the next round as seeds.
package contigging

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/ajpowelsnl/mhm2-proxy/config"
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kcount"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/kmerdht"
	"github.com/ajpowelsnl/mhm2-proxy/internal/reads"
	"github.com/ajpowelsnl/mhm2-proxy/internal/shuffle"
	"github.com/ajpowelsnl/mhm2-proxy/internal/traverse"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

const oneMB = 1 << 20

// round runs one contigging round; K is the bucket wide enough for k.
// On entry ctgs holds the previous round's contigs, on return this
// round's.
func round[K kmer.Mer[K]](r *comm.Rank, cfg config.Config, k int,
	bank *reads.PackedReads, ctgs *contigs.Contigs) {
	start := time.Now()
	util.SLog(r.Me(), "_________________________")
	util.SLog(r.Me(), "contig generation k = %d", k)

	uutigsFname := fmt.Sprintf("uutigs-%d.fasta", k)
	// a resume from this round's own uutigs means the graph walk is
	// already done; only the round's bookkeeping below remains
	if cfg.CtgsFname != uutigsFname {
		est := kcount.EstimateNumKmers(r, k, bank)
		dht := kmerdht.New[K](r, k, est, int64(cfg.MaxKmerStoreMB)*oneMB,
			cfg.MaxRPCsInFlight, cfg.UseQF, cfg.DminThres)
		kcount.AnalyzeKmers(r, dht, bank, ctgs, cfg.UseHeavyHitters)
		if cfg.DumpKmers {
			fname := filepath.Join(cfg.OutDir, fmt.Sprintf("kmers-%d.txt.gz", k))
			if err := dht.DumpKmers(fname); err != nil {
				util.Die("dumping k-mers: %v", err)
			}
		}
		traverse.TraverseDeBruijnGraph(r, dht, ctgs)
		dht.ClearStores()
		if cfg.Verbose {
			if err := ctgs.Dump(r, filepath.Join(cfg.OutDir, uutigsFname), 0); err != nil {
				util.Die("dumping uutigs: %v", err)
			}
		}
	}
	if cfg.Verbose || cfg.Checkpoint {
		fname := filepath.Join(cfg.OutDir, fmt.Sprintf("contigs-%d.fasta", k))
		if err := ctgs.Dump(r, fname, 0); err != nil {
			util.Die("dumping contigs: %v", err)
		}
	}
	ctgs.PrintStats(r, 500)
	util.SLog(r.Me(), "completed contig round k = %d in %.2f s", k, time.Since(start).Seconds())
	r.Barrier()
}

// Run executes one round per configured k, then writes the final
// assembly; collective. Returns the bank, rebuilt when shuffling is on.
func Run(r *comm.Rank, cfg config.Config, bank *reads.PackedReads,
	ctgs *contigs.Contigs) *reads.PackedReads {
	last := cfg.KmerLens[len(cfg.KmerLens)-1]
	for _, k := range cfg.KmerLens {
		if k <= cfg.PrevKmerLen {
			util.SLogV(r.Me(), "skipping k = %d, resumed from k = %d", k, cfg.PrevKmerLen)
			continue
		}
		switch kmer.BucketFor(k) {
		case 32:
			round[kmer.Kmer32](r, cfg, k, bank, ctgs)
		case 64:
			round[kmer.Kmer64](r, cfg, k, bank, ctgs)
		case 96:
			round[kmer.Kmer96](r, cfg, k, bank, ctgs)
		case 128:
			round[kmer.Kmer128](r, cfg, k, bank, ctgs)
		case 160:
			round[kmer.Kmer160](r, cfg, k, bank, ctgs)
		default:
			util.Die("no k-mer bucket for k = %d", k)
		}
		if k == cfg.KmerLens[0] && k < last {
			numReads := int64(bank.LocalNumReads())
			avg := comm.ReduceSum(r, numReads) / int64(r.N())
			max := comm.ReduceMax(r, numReads)
			if max > 0 {
				util.SLogV(r.Me(), "reads per rank: avg %d max %d balance %.3f",
					avg, max, float64(avg)/float64(max))
			}
		}
	}
	if cfg.ShuffleReads {
		bank = shuffle.ShuffleReads(r, bank, ctgs,
			int64(cfg.MaxKmerStoreMB)*oneMB, cfg.MaxRPCsInFlight)
	}
	util.SLog(r.Me(), "_________________________")
	if err := ctgs.Dump(r, filepath.Join(cfg.OutDir, "final_assembly.fasta"), cfg.MinCtgPrintLen); err != nil {
		util.Die("dumping final assembly: %v", err)
	}
	ctgs.PrintStats(r, cfg.MinCtgPrintLen)
	return bank
}
