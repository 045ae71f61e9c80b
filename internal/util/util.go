// Package util holds the small shared pieces of the assembler: sequence
// helpers, rank-aware logging, and human-readable formatting.
package util

import (
	"fmt"

	"github.com/sirupsen/logrus"
)

// SetupLog configures the process-wide logger. Verbose enables the
// per-stage diagnostics that are normally suppressed.
func SetupLog(verbose bool) {
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if verbose {
		logrus.SetLevel(logrus.DebugLevel)
	} else {
		logrus.SetLevel(logrus.InfoLevel)
	}
}

// SLog logs once per team: only rank 0 prints.
func SLog(rank int, format string, args ...interface{}) {
	if rank != 0 {
		return
	}
	logrus.Infof(format, args...)
}

// SLogV is the verbose variant of SLog.
func SLogV(rank int, format string, args ...interface{}) {
	if rank != 0 {
		return
	}
	logrus.Debugf(format, args...)
}

// WarnOne warns once per team.
func WarnOne(rank int, format string, args ...interface{}) {
	if rank != 0 {
		return
	}
	logrus.Warnf(format, args...)
}

// RLogV logs on every rank, tagged with the rank id.
func RLogV(rank int, format string, args ...interface{}) {
	logrus.WithField("rank", rank).Debugf(format, args...)
}

// Die aborts the whole job. Input-data problems and broken invariants
// both land here; neither is recoverable mid-assembly.
func Die(format string, args ...interface{}) {
	logrus.Fatalf(format, args...)
}

var compBases = [256]byte{}

func init() {
	for i := range compBases {
		compBases[i] = 0
	}
	pairs := []struct{ a, b byte }{
		{'A', 'T'}, {'C', 'G'}, {'G', 'C'}, {'T', 'A'}, {'N', 'N'},
		{'a', 't'}, {'c', 'g'}, {'g', 'c'}, {'t', 'a'}, {'n', 'n'},
		{'0', '0'},
	}
	for _, p := range pairs {
		compBases[p.a] = p.b
	}
	// ambiguity codes all complement to N
	for _, b := range []byte("UMRWSYKVHDBumrwsykvhdb") {
		compBases[b] = 'N'
	}
}

// CompBase returns the complement of a single base, preserving case.
// Ambiguity codes map to N. Anything else is a fatal input error.
func CompBase(b byte) byte {
	c := compBases[b]
	if c == 0 {
		Die("unknown base %q cannot be complemented", string(b))
	}
	return c
}

// Revcomp returns the reverse complement of seq.
func Revcomp(seq string) string {
	rc := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		rc[len(seq)-1-i] = CompBase(seq[i])
	}
	return string(rc)
}

// SizeStr formats a byte count for logs.
func SizeStr(bytes int64) string {
	switch {
	case bytes >= 1024*1024*1024:
		return fmt.Sprintf("%.2fGB", float64(bytes)/(1024*1024*1024))
	case bytes >= 1024*1024:
		return fmt.Sprintf("%.2fMB", float64(bytes)/(1024*1024))
	case bytes >= 1024:
		return fmt.Sprintf("%.2fKB", float64(bytes)/1024)
	}
	return fmt.Sprintf("%dB", bytes)
}

// PercStr formats a count with its share of a total.
func PercStr(n, tot int64) string {
	if tot == 0 {
		return fmt.Sprintf("%d (0.00%%)", n)
	}
	return fmt.Sprintf("%d (%.2f%%)", n, 100*float64(n)/float64(tot))
}
