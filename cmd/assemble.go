package cmd

import (
	"os"
	"path/filepath"
	"runtime"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ajpowelsnl/mhm2-proxy/config"
	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigging"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/reads"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

var cfgFile string

// assembleCmd runs iterative contigging over the input read sets
var assembleCmd = &cobra.Command{
	Use:                        "assemble",
	Short:                      "Assemble contigs from short reads",
	Run:                        runAssemble,
	SuggestionsMinimumDistance: 3,
	Long: `Assemble short reads into contigs. For each k in kmer-lens the reads
(and the previous round's contigs) are scanned into a distributed k-mer
index, the de Bruijn graph is walked in parallel, and the walked fragments
are linked into contigs. The last round's contigs of at least
min-ctg-print-len bases land in final_assembly.fasta under out-dir.`,
}

func runAssemble(cmd *cobra.Command, args []string) {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
		if err := viper.ReadInConfig(); err != nil {
			util.Die("reading config %s: %v", cfgFile, err)
		}
	}
	cfg := config.New()
	if err := cfg.Validate(); err != nil {
		util.Die("%v", err)
	}
	util.SetupLog(cfg.Verbose)
	if cfg.Progress {
		util.EnableProgress()
	}
	if cfg.OutDir != "" {
		if err := os.MkdirAll(cfg.OutDir, 0755); err != nil {
			util.Die("creating out-dir %s: %v", cfg.OutDir, err)
		}
	}

	start := time.Now()
	comm.New(cfg.Procs).Run(func(r *comm.Rank) {
		util.SLog(r.Me(), "mhm2p assembling %d read set(s) on %d ranks", len(cfg.Reads), r.N())
		bank, err := reads.LoadAll(r, cfg.Reads, cfg.QualOffset)
		if err != nil {
			util.Die("loading reads: %v", err)
		}
		ctgs := contigs.New()
		if cfg.CtgsFname != "" {
			ctgs, err = contigs.Load(r, filepath.Join(cfg.OutDir, cfg.CtgsFname))
			if err != nil {
				util.Die("loading contigs for restart: %v", err)
			}
		}
		contigging.Run(r, cfg, bank, ctgs)
		util.SLog(r.Me(), "finished in %.2f s", time.Since(start).Seconds())
	})
	util.ShutdownProgress()
}

// set flags
func init() {
	assembleCmd.Flags().StringSliceP("reads", "r", nil, "FASTQ input, single file or r1.fq:r2.fq pair, repeatable")
	assembleCmd.Flags().IntSliceP("kmer-lens", "k", []int{21, 33, 55, 77, 99}, "k-mer lengths for the contigging rounds")
	assembleCmd.Flags().Int("qual-offset", 33, "FASTQ quality offset (33 or 64)")
	assembleCmd.Flags().Float64("min-depth-thres", 2.0, "minimum depth for a k-mer to survive counting")
	assembleCmd.Flags().Int("max-kmer-store", 50, "per-rank MB budget for aggregating k-mer updates")
	assembleCmd.Flags().Int("max-rpcs-in-flight", 100, "max outstanding update batches per rank, 0 for unlimited")
	assembleCmd.Flags().Bool("use-heavy-hitters", false, "combine hot k-mers locally before routing")
	assembleCmd.Flags().Bool("use-qf", false, "drop singleton k-mers with a first-sighting filter")
	assembleCmd.Flags().Bool("checkpoint", false, "write contigs-<k>.fasta after every round")
	assembleCmd.Flags().String("contigs", "", "contig file to restart from (requires prev-kmer-len)")
	assembleCmd.Flags().Int("prev-kmer-len", 0, "last k already contigged when restarting")
	assembleCmd.Flags().Int("min-ctg-print-len", 500, "minimum contig length for final_assembly.fasta")
	assembleCmd.Flags().IntP("procs", "p", runtime.NumCPU(), "number of ranks")
	assembleCmd.Flags().StringP("out-dir", "o", "", "output directory")
	assembleCmd.Flags().Bool("shuffle-reads", false, "move reads between rounds to follow contig locality")
	assembleCmd.Flags().Bool("dump-kmers", false, "dump each round's k-mer table to kmers-<k>.txt.gz")
	assembleCmd.Flags().Bool("progress", false, "show progress bars for the long stages")
	assembleCmd.Flags().BoolP("verbose", "v", false, "verbose logging plus uutigs-<k>.fasta dumps")
	assembleCmd.Flags().StringVar(&cfgFile, "config", "", "YAML config file; flags given on the command line win")

	viper.BindPFlag("reads", assembleCmd.Flags().Lookup("reads"))
	viper.BindPFlag("kmer-lens", assembleCmd.Flags().Lookup("kmer-lens"))
	viper.BindPFlag("qual-offset", assembleCmd.Flags().Lookup("qual-offset"))
	viper.BindPFlag("min-depth-thres", assembleCmd.Flags().Lookup("min-depth-thres"))
	viper.BindPFlag("max-kmer-store", assembleCmd.Flags().Lookup("max-kmer-store"))
	viper.BindPFlag("max-rpcs-in-flight", assembleCmd.Flags().Lookup("max-rpcs-in-flight"))
	viper.BindPFlag("use-heavy-hitters", assembleCmd.Flags().Lookup("use-heavy-hitters"))
	viper.BindPFlag("use-qf", assembleCmd.Flags().Lookup("use-qf"))
	viper.BindPFlag("checkpoint", assembleCmd.Flags().Lookup("checkpoint"))
	viper.BindPFlag("contigs", assembleCmd.Flags().Lookup("contigs"))
	viper.BindPFlag("prev-kmer-len", assembleCmd.Flags().Lookup("prev-kmer-len"))
	viper.BindPFlag("min-ctg-print-len", assembleCmd.Flags().Lookup("min-ctg-print-len"))
	viper.BindPFlag("procs", assembleCmd.Flags().Lookup("procs"))
	viper.BindPFlag("out-dir", assembleCmd.Flags().Lookup("out-dir"))
	viper.BindPFlag("shuffle-reads", assembleCmd.Flags().Lookup("shuffle-reads"))
	viper.BindPFlag("dump-kmers", assembleCmd.Flags().Lookup("dump-kmers"))
	viper.BindPFlag("progress", assembleCmd.Flags().Lookup("progress"))
	viper.BindPFlag("verbose", assembleCmd.Flags().Lookup("verbose"))

	RootCmd.AddCommand(assembleCmd)
}
