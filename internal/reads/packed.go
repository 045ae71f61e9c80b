// Package reads holds sequencing reads packed to one byte per base and
// loads them from FASTQ files.
package reads

import (
	"fmt"

	"github.com/pkg/errors"

	"github.com/ajpowelsnl/mhm2-proxy/internal/util"
)

const (
	qualShift = 3
	qualCap   = 31
)

var packCodes [256]uint8

var unpackBases = [5]byte{'A', 'C', 'G', 'T', 'N'}

func init() {
	for i := range packCodes {
		packCodes[i] = 0xff
	}
	set := func(s string, c uint8) {
		for i := 0; i < len(s); i++ {
			packCodes[s[i]] = c
		}
	}
	set("Aa", 0)
	set("Cc", 1)
	set("Gg", 2)
	set("Tt", 3)
	// ambiguity codes all collapse to N
	set("NnUuMmRrWwSsYyKkVvHhDdBb", 4)
}

// PackedRead is one read at a byte per base: the low three bits code the
// base (ACGTN) and the high five carry the quality score capped at 31.
// A positive id marks the first read of a pair, a negative id the second;
// both share the pair id's magnitude.
type PackedRead struct {
	id    int64
	bytes []byte
}

// NewPackedRead packs seq and its quality string, which must be the same
// length. Scores are taken relative to qualOffset.
func NewPackedRead(id int64, seq, quals string, qualOffset int) (PackedRead, error) {
	if id == 0 {
		return PackedRead{}, errors.New("read id cannot be zero")
	}
	if len(quals) != len(seq) {
		return PackedRead{}, errors.Errorf("%d quals for %d bases", len(quals), len(seq))
	}
	buf := make([]byte, len(seq))
	for i := 0; i < len(seq); i++ {
		c := packCodes[seq[i]]
		if c == 0xff {
			return PackedRead{}, errors.Errorf("unknown base %q at position %d", seq[i], i)
		}
		q := int(quals[i]) - qualOffset
		if q < 0 {
			return PackedRead{}, errors.Errorf("quality %q below offset %d at position %d", quals[i], qualOffset, i)
		}
		if q > qualCap {
			q = qualCap
		}
		buf[i] = c | uint8(q)<<qualShift
	}
	return PackedRead{id: id, bytes: buf}, nil
}

// FromRaw rebuilds a read from bytes produced by RawBytes.
func FromRaw(id int64, raw []byte) PackedRead {
	return PackedRead{id: id, bytes: raw}
}

// ID returns the signed read id.
func (r PackedRead) ID() int64 { return r.id }

// PairID returns the id shared by both reads of the pair.
func (r PackedRead) PairID() int64 {
	if r.id < 0 {
		return -r.id
	}
	return r.id
}

// PairNum returns 1 or 2.
func (r PackedRead) PairNum() int {
	if r.id < 0 {
		return 2
	}
	return 1
}

// Len returns the read length in bases.
func (r PackedRead) Len() int { return len(r.bytes) }

// RawBytes exposes the packed bytes for shipping; callers must not
// mutate them.
func (r PackedRead) RawBytes() []byte { return r.bytes }

// Seq returns the bases, uppercase.
func (r PackedRead) Seq() string { return r.SeqMasked(0) }

// SeqMasked returns the bases with any base scoring below minQual
// lowercased.
func (r PackedRead) SeqMasked(minQual int) string {
	buf := make([]byte, len(r.bytes))
	for i, b := range r.bytes {
		base := unpackBases[b&7]
		if int(b>>qualShift) < minQual {
			base += 'a' - 'A'
		}
		buf[i] = base
	}
	return string(buf)
}

// Quals returns the quality string rebuilt against qualOffset; scores
// above the packed cap come back clamped.
func (r PackedRead) Quals(qualOffset int) string {
	buf := make([]byte, len(r.bytes))
	for i, b := range r.bytes {
		buf[i] = byte(qualOffset) + b>>qualShift
	}
	return string(buf)
}

// Name returns the FASTQ-style read name.
func (r PackedRead) Name() string {
	return fmt.Sprintf("@r%d/%d", r.PairID(), r.PairNum())
}

// Unpack returns the read as FASTQ fields.
func (r PackedRead) Unpack(qualOffset int) (name, seq, quals string) {
	return r.Name(), r.Seq(), r.Quals(qualOffset)
}

// PackedReads is one rank's bank of reads, stored pair-even: the two
// reads of a pair always sit next to each other (a single-end read gets
// a zero-length placeholder mate).
type PackedReads struct {
	reads      []PackedRead
	qualOffset int
	maxReadLen int
	it         int
}

// NewPackedReads returns an empty bank.
func NewPackedReads(qualOffset int) *PackedReads {
	return &PackedReads{qualOffset: qualOffset}
}

// AddPair packs and appends both reads of pair pairID.
func (p *PackedReads) AddPair(pairID int64, seq1, quals1, seq2, quals2 string) error {
	if pairID < 1 {
		return errors.Errorf("pair id %d must be positive", pairID)
	}
	r1, err := NewPackedRead(pairID, seq1, quals1, p.qualOffset)
	if err != nil {
		return errors.Wrapf(err, "read 1 of pair %d", pairID)
	}
	r2, err := NewPackedRead(-pairID, seq2, quals2, p.qualOffset)
	if err != nil {
		return errors.Wrapf(err, "read 2 of pair %d", pairID)
	}
	p.AddPacked(r1)
	p.AddPacked(r2)
	return nil
}

// AddPacked appends an already packed read.
func (p *PackedReads) AddPacked(r PackedRead) {
	p.reads = append(p.reads, r)
	if r.Len() > p.maxReadLen {
		p.maxReadLen = r.Len()
	}
}

// Reset rewinds the read iterator.
func (p *PackedReads) Reset() { p.it = 0 }

// GetNextRead returns the next read, or false once the bank is
// exhausted.
func (p *PackedReads) GetNextRead() (PackedRead, bool) {
	if p.it >= len(p.reads) {
		return PackedRead{}, false
	}
	r := p.reads[p.it]
	p.it++
	return r, true
}

// GetRead returns the read at index i.
func (p *PackedReads) GetRead(i int) PackedRead {
	if i < 0 || i >= len(p.reads) {
		util.Die("read index %d out of range 0..%d", i, len(p.reads)-1)
	}
	return p.reads[i]
}

// LocalNumReads returns the number of reads in this bank, placeholder
// mates included.
func (p *PackedReads) LocalNumReads() int { return len(p.reads) }

// LocalNumPairs returns the number of pairs in this bank.
func (p *PackedReads) LocalNumPairs() int { return len(p.reads) / 2 }

// MaxReadLen returns the longest read seen so far.
func (p *PackedReads) MaxReadLen() int { return p.maxReadLen }

// QualOffset returns the bank's quality offset.
func (p *PackedReads) QualOffset() int { return p.qualOffset }
