package cmd

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/contigs"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

var (
	statsMinLen int
	statsProcs  int
)

// statsCmd reports assembly statistics for an existing contig file
var statsCmd = &cobra.Command{
	Use:                        "stats <contigs.fasta>",
	Short:                      "Print assembly statistics for a contig file",
	Run:                        runStats,
	SuggestionsMinimumDistance: 2,
	Long: `Scan a contig FASTA written by assemble (ranks each parse a byte range)
and print the length-tier summary: contig count, total length, average
depth, Ns per 100kbp and the share of bases in contigs over 1, 5, 10, 25
and 50 kbp.`,
}

func runStats(cmd *cobra.Command, args []string) {
	if len(args) < 1 {
		cmd.Help()
		util.Die("\nno contig file passed")
	}
	util.SetupLog(false)
	comm.New(statsProcs).Run(func(r *comm.Rank) {
		ctgs, err := contigs.Load(r, args[0])
		if err != nil {
			util.Die("loading %s: %v", args[0], err)
		}
		ctgs.PrintStats(r, statsMinLen)
	})
}

// set flags
func init() {
	statsCmd.Flags().IntVar(&statsMinLen, "min-ctg-print-len", 0, "ignore contigs shorter than this")
	statsCmd.Flags().IntVarP(&statsProcs, "procs", "p", runtime.NumCPU(), "number of ranks to scan with")

	RootCmd.AddCommand(statsCmd)
}
