// Package contigs collects each rank's assembled contigs and moves them
// between rounds through FASTA checkpoint files.
package contigs

import (
	"bytes"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/ajpowelsnl/mhm2-proxy/internal/comm"
	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

// Contig is one assembled sequence with its average k-mer depth.
type Contig struct {
	Id    int64
	Seq   string
	Depth float64
}

// Contigs is one rank's share of the assembly.
type Contigs struct {
	ctgs []Contig
}

// New returns an empty collection.
func New() *Contigs { return &Contigs{} }

// Add appends one contig.
func (c *Contigs) Add(ctg Contig) { c.ctgs = append(c.ctgs, ctg) }

// Clear drops every contig.
func (c *Contigs) Clear() { c.ctgs = nil }

// Local returns this rank's contigs; callers must not mutate.
func (c *Contigs) Local() []Contig { return c.ctgs }

// LocalNum returns the number of contigs on this rank.
func (c *Contigs) LocalNum() int { return len(c.ctgs) }

// GlobalNum returns the team-wide contig count; collective.
func (c *Contigs) GlobalNum(r *comm.Rank) int64 {
	return comm.ReduceSum(r, int64(len(c.ctgs)))
}

// RenumberGlobal assigns globally unique sequential ids, rank order
// first; collective.
func (c *Contigs) RenumberGlobal(r *comm.Rank) {
	n := int64(len(c.ctgs))
	base := comm.PrefixSum(r, n) - n
	for i := range c.ctgs {
		c.ctgs[i].Id = base + int64(i)
	}
	r.Barrier()
}

// PrintStats logs assembly statistics over contigs of at least minLen
// bases; collective.
func (c *Contigs) PrintStats(r *comm.Rank, minLen int) {
	var num, totLen, maxLen, numNs int64
	var sumDepth float64
	var tiers [6]int64
	for _, ctg := range c.ctgs {
		l := int64(len(ctg.Seq))
		if l < int64(minLen) {
			continue
		}
		num++
		totLen += l
		sumDepth += ctg.Depth
		if l > maxLen {
			maxLen = l
		}
		numNs += int64(strings.Count(ctg.Seq, "N") + strings.Count(ctg.Seq, "n"))
		switch {
		case l < 1000:
			tiers[0]++
		case l < 5000:
			tiers[1]++
		case l < 10000:
			tiers[2]++
		case l < 25000:
			tiers[3]++
		case l < 50000:
			tiers[4]++
		default:
			tiers[5]++
		}
	}
	num = comm.ReduceSum(r, num)
	totLen = comm.ReduceSum(r, totLen)
	sumDepth = comm.ReduceSum(r, sumDepth)
	maxLen = comm.ReduceMax(r, maxLen)
	numNs = comm.ReduceSum(r, numNs)
	for i := range tiers {
		tiers[i] = comm.ReduceSum(r, tiers[i])
	}
	me := r.Me()
	util.SLog(me, "Assembly statistics (contig lengths >= %d)", minLen)
	util.SLog(me, "    Number of contigs: %d", num)
	util.SLog(me, "    Total assembled length: %d", totLen)
	if num > 0 {
		util.SLog(me, "    Average contig depth: %.2f", sumDepth/float64(num))
	}
	if totLen > 0 {
		util.SLog(me, "    Number of Ns/100kbp: %.2f", float64(numNs)*100000/float64(totLen))
	}
	util.SLog(me, "    Max. contig length: %d", maxLen)
	util.SLog(me, "    Contig lengths:")
	util.SLog(me, "        < 1kbp: %s", util.PercStr(tiers[0], num))
	util.SLog(me, "        1kbp - 5kbp: %s", util.PercStr(tiers[1], num))
	util.SLog(me, "        5kbp - 10kbp: %s", util.PercStr(tiers[2], num))
	util.SLog(me, "        10kbp - 25kbp: %s", util.PercStr(tiers[3], num))
	util.SLog(me, "        25kbp - 50kbp: %s", util.PercStr(tiers[4], num))
	util.SLog(me, "        > 50kbp: %s", util.PercStr(tiers[5], num))
}

// Dump writes contigs of at least minLen bases from every rank into one
// FASTA file, each rank at its prefix-sum byte offset; collective.
func (c *Contigs) Dump(r *comm.Rank, fname string, minLen int) error {
	var buf bytes.Buffer
	written := 0
	for _, ctg := range c.ctgs {
		if len(ctg.Seq) < minLen {
			continue
		}
		fmt.Fprintf(&buf, ">Contig%d %s\n%s\n", ctg.Id, strconv.FormatFloat(ctg.Depth, 'g', -1, 64), ctg.Seq)
		written++
	}
	size := int64(buf.Len())
	offset := comm.PrefixSum(r, size) - size
	var createErr error
	if r.Me() == 0 {
		f, err := os.Create(fname)
		if err != nil {
			createErr = errors.Wrapf(err, "creating %s", fname)
		} else {
			f.Close()
		}
	}
	r.Barrier()
	if createErr != nil {
		return createErr
	}
	f, err := os.OpenFile(fname, os.O_WRONLY, 0)
	if err != nil {
		return errors.Wrapf(err, "opening %s", fname)
	}
	defer f.Close()
	if _, err := f.WriteAt(buf.Bytes(), offset); err != nil {
		return errors.Wrapf(err, "writing %s", fname)
	}
	util.RLogV(r.Me(), "dumped %d contigs to %s", written, fname)
	return nil
}

// recordStart returns the position of the first record head at or after
// pos, or the file size when there is none.
func recordStart(data []byte, pos int64) int64 {
	if pos == 0 {
		return 0
	}
	j := bytes.Index(data[pos-1:], []byte("\n>Contig"))
	if j < 0 {
		return int64(len(data))
	}
	return pos - 1 + int64(j) + 1
}

// Load reads a FASTA contig file written by Dump, partitioning records
// across the team by byte range: each rank starts at the first record
// head at or past size·me/n and stops where the next rank starts.
func Load(r *comm.Rank, fname string) (*Contigs, error) {
	data, err := os.ReadFile(fname)
	if err != nil {
		return nil, errors.Wrapf(err, "loading contigs")
	}
	size := int64(len(data))
	n := int64(r.N())
	start := recordStart(data, size*int64(r.Me())/n)
	stop := recordStart(data, size*int64(r.Me()+1)/n)
	c := New()
	lines := bytes.Split(data[start:stop], []byte{'\n'})
	for i := 0; i+1 < len(lines); i += 2 {
		header := string(lines[i])
		fields := strings.Fields(strings.TrimPrefix(header, ">"))
		if !strings.HasPrefix(header, ">Contig") || len(fields) != 2 {
			return nil, errors.Errorf("%s: malformed record header %q", fname, header)
		}
		id, err := strconv.ParseInt(strings.TrimPrefix(fields[0], "Contig"), 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: bad contig id in %q", fname, header)
		}
		depth, err := strconv.ParseFloat(fields[1], 64)
		if err != nil {
			return nil, errors.Wrapf(err, "%s: bad contig depth in %q", fname, header)
		}
		c.Add(Contig{Id: id, Seq: string(lines[i+1]), Depth: depth})
	}
	util.RLogV(r.Me(), "loaded %d contigs from %s", c.LocalNum(), fname)
	return c, nil
}
