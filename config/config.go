// Package config is for app wide settings that are unmarshalled
// from Viper (see: /cmd)
package config

import (
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/viper"

	"github.com/ajpowelsnl/mhm2-proxy/internal/kmer"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// Config is the root-level settings struct and is a mix of settings
// available in a config file and those available from the command line
type Config struct {
	// k-mer length of each contigging round, ascending
	KmerLens []int `mapstructure:"kmer-lens"`

	// quality score offset of the input FASTQ files, 33 or 64
	QualOffset int `mapstructure:"qual-offset"`

	// minimum k-mer depth to take part in extension consensus
	DminThres float64 `mapstructure:"min-depth-thres"`

	// per-rank cap on aggregating store buffers, in MB
	MaxKmerStoreMB int `mapstructure:"max-kmer-store"`

	// cap on outstanding update batches per rank
	MaxRPCsInFlight int `mapstructure:"max-rpcs-in-flight"`

	// count high-frequency k-mers through a separate own-rank pass
	UseHeavyHitters bool `mapstructure:"use-heavy-hitters"`

	// screen out singleton k-mers with a bloom filter
	UseQF bool `mapstructure:"use-qf"`

	// dump contigs-<k>.fasta after every round
	Checkpoint bool `mapstructure:"checkpoint"`

	// contigs file to resume from, paired with prev-kmer-len
	CtgsFname string `mapstructure:"contigs"`

	// k of the round the resumed contigs came from; rounds at or
	// below it are skipped
	PrevKmerLen int `mapstructure:"prev-kmer-len"`

	// minimum contig length for the final assembly and its stats
	MinCtgPrintLen int `mapstructure:"min-ctg-print-len"`

	// number of ranks to run
	Procs int `mapstructure:"procs"`

	// read files, a paired pair of files joined with a colon
	Reads []string `mapstructure:"reads"`

	// directory all outputs land in
	OutDir string `mapstructure:"out-dir"`

	// move read pairs onto contig-owner ranks after the last round
	ShuffleReads bool `mapstructure:"shuffle-reads"`

	// dump kmers-<k>.txt.gz after every counting pass
	DumpKmers bool `mapstructure:"dump-kmers"`

	// show progress bars
	Progress bool `mapstructure:"progress"`

	// verbose logging
	Verbose bool `mapstructure:"verbose"`
}

// New returns a new Config struct populated by Viper settings (either
// from a config file and/or command line arguments)
func New() Config {
	var c Config
	if err := viper.Unmarshal(&c); err != nil {
		util.Die("unable to decode settings: %v", err)
	}
	return c
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	if c.QualOffset != 33 && c.QualOffset != 64 {
		return errors.Errorf("qual-offset must be 33 or 64, not %d", c.QualOffset)
	}
	if c.Procs < 1 {
		return errors.Errorf("procs must be at least 1, not %d", c.Procs)
	}
	if len(c.Reads) == 0 {
		return errors.New("at least one reads file is required")
	}
	if len(c.KmerLens) == 0 {
		return errors.New("at least one k-mer length is required")
	}
	prev := 0
	for _, k := range c.KmerLens {
		if k < 3 || k > kmer.MaxK {
			return errors.Errorf("k-mer length %d outside 3..%d", k, kmer.MaxK)
		}
		if k <= prev {
			return errors.Errorf("k-mer lengths must ascend: %d after %d", k, prev)
		}
		prev = k
	}
	if c.MaxKmerStoreMB < 1 {
		return errors.Errorf("max-kmer-store must be at least 1 MB, not %d", c.MaxKmerStoreMB)
	}
	if c.MaxRPCsInFlight < 0 {
		return errors.Errorf("max-rpcs-in-flight cannot be negative: %d", c.MaxRPCsInFlight)
	}
	if c.DminThres < 1 {
		return errors.Errorf("min-depth-thres must be at least 1, not %g", c.DminThres)
	}
	if c.CtgsFname != "" && c.PrevKmerLen < 1 {
		return errors.New("resuming from contigs requires prev-kmer-len")
	}
	for _, entry := range c.Reads {
		if parts := strings.Split(entry, ":"); len(parts) > 2 {
			return errors.Errorf("read entry %q: want file.fq or file1.fq:file2.fq", entry)
		}
	}
	return nil
}
