// Package kmer provides fixed-size bit-packed k-mer types for the bucket
// lengths {32, 64, 96, 128, 160}. Bases pack two bits each, most
// significant first within each word, so comparing words in order is the
// same as comparing the base strings. Identity is case-insensitive;
// lowercase only marks quality elsewhere in the pipeline.
package kmer

import (
	"encoding/binary"
	"math/bits"

	"github.com/pkg/errors"
	"github.com/spaolacci/murmur3"
)

// MaxK is the longest representable k-mer.
const MaxK = 160

const maxWords = MaxK / 32

const invalidCode = 0xff

var baseCodes [256]uint8

var baseLetters = [4]byte{'A', 'C', 'G', 'T'}

func init() {
	for i := range baseCodes {
		baseCodes[i] = invalidCode
	}
	baseCodes['A'], baseCodes['a'] = 0, 0
	baseCodes['C'], baseCodes['c'] = 1, 1
	baseCodes['G'], baseCodes['g'] = 2, 2
	baseCodes['T'], baseCodes['t'] = 3, 3
}

// ValidBase reports whether b packs into two bits (any case of ACGT).
func ValidBase(b byte) bool { return baseCodes[b] != invalidCode }

// BucketFor returns the bucket length that holds a k-mer of length k.
func BucketFor(k int) int { return (k + 31) / 32 * 32 }

// Mer is the method set every bucket satisfies; the parameter K is the
// bucket type itself, keeping every pipeline monomorphic per bucket.
type Mer[K comparable] interface {
	comparable
	Len() int
	Parse(seq string) (K, error)
	ForwardBase(b byte) K
	BackwardBase(b byte) K
	Revcomp() K
	Less(o K) bool
	Front() byte
	Back() byte
	String() string
	Hash() uint64
	MinimizerHash(m int) uint64
}

// Canonical returns the lexicographically smaller of km and its reverse
// complement, and whether the reverse complement was chosen.
func Canonical[K Mer[K]](km K) (K, bool) {
	rc := km.Revcomp()
	if rc.Less(km) {
		return rc, true
	}
	return km, false
}

// Slide returns the k-mer at every position of seq plus a validity flag;
// windows containing a base outside ACGT are invalid.
func Slide[K Mer[K]](z K, k int, seq string) ([]K, []bool) {
	n := len(seq) - k + 1
	if n <= 0 {
		return nil, nil
	}
	kms := make([]K, n)
	oks := make([]bool, n)
	var cur K
	valid := false
	for i := 0; i < n; i++ {
		if !valid {
			km, err := z.Parse(seq[i : i+k])
			if err == nil {
				cur, valid = km, true
			}
		} else {
			b := seq[i+k-1]
			if !ValidBase(b) {
				valid = false
			} else {
				cur = cur.ForwardBase(b)
			}
		}
		kms[i], oks[i] = cur, valid
	}
	return kms, oks
}

// core operations over word slices; every bucket method delegates here

func packInto(w []uint64, seq string) bool {
	for i := range w {
		w[i] = 0
	}
	for i := 0; i < len(seq); i++ {
		c := baseCodes[seq[i]]
		if c == invalidCode {
			return false
		}
		w[i>>5] |= uint64(c) << (62 - 2*(uint(i)&31))
	}
	return true
}

func baseAt(w []uint64, i int) uint8 {
	return uint8(w[i>>5] >> (62 - 2*(uint(i)&31)) & 3)
}

func setBase(w []uint64, i int, c uint8) {
	sh := 62 - 2*(uint(i)&31)
	w[i>>5] = w[i>>5]&^(3<<sh) | uint64(c)<<sh
}

func stringOf(w []uint64, k int) string {
	buf := make([]byte, k)
	for i := 0; i < k; i++ {
		buf[i] = baseLetters[baseAt(w, i)]
	}
	return string(buf)
}

func lessWords(a, b []uint64) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func shiftLeft2(w []uint64) {
	for i := 0; i < len(w)-1; i++ {
		w[i] = w[i]<<2 | w[i+1]>>62
	}
	w[len(w)-1] <<= 2
}

func shiftRight2(w []uint64) {
	for i := len(w) - 1; i > 0; i-- {
		w[i] = w[i]>>2 | w[i-1]<<62
	}
	w[0] >>= 2
}

// clearTail zeroes every position at or past k, the invariant all the
// shifting relies on.
func clearTail(w []uint64, k int) {
	word := k >> 5
	off := uint(k & 31)
	if word >= len(w) {
		return
	}
	if off == 0 {
		w[word] = 0
	} else {
		w[word] &= ^uint64(0) << (64 - 2*off)
	}
	for i := word + 1; i < len(w); i++ {
		w[i] = 0
	}
}

func forwardInto(w []uint64, k int, b byte) {
	c := baseCodes[b]
	if c == invalidCode {
		panic("kmer: cannot extend with base " + string(b))
	}
	shiftLeft2(w)
	setBase(w, k-1, c)
}

func backwardInto(w []uint64, k int, b byte) {
	c := baseCodes[b]
	if c == invalidCode {
		panic("kmer: cannot extend with base " + string(b))
	}
	shiftRight2(w)
	clearTail(w, k)
	setBase(w, 0, c)
}

// revcompWord reverses the 32 bases of one word and complements them.
func revcompWord(x uint64) uint64 {
	x = bits.ReverseBytes64(x)
	x = (x&0x0F0F0F0F0F0F0F0F)<<4 | (x&0xF0F0F0F0F0F0F0F0)>>4
	x = (x&0x3333333333333333)<<2 | (x&0xCCCCCCCCCCCCCCCC)>>2
	return ^x
}

func revcompInto(dst, src []uint64, k int) {
	n := len(src)
	for i := 0; i < n; i++ {
		dst[i] = revcompWord(src[n-1-i])
	}
	// reversal leaves the sequence right-aligned; slide it home
	shiftLeftBits(dst, 2*(32*n-k))
	clearTail(dst, k)
}

func shiftLeftBits(w []uint64, n int) {
	ws, bs := n/64, uint(n%64)
	for i := 0; i < len(w); i++ {
		var v uint64
		if i+ws < len(w) {
			v = w[i+ws] << bs
			if bs > 0 && i+ws+1 < len(w) {
				v |= w[i+ws+1] >> (64 - bs)
			}
		}
		w[i] = v
	}
}

func hashWords(w []uint64) uint64 {
	var buf [8 * maxWords]byte
	for i, x := range w {
		binary.BigEndian.PutUint64(buf[i*8:], x)
	}
	return murmur3.Sum64(buf[:8*len(w)])
}

// mmerAt extracts the m bases starting at position i as a right-aligned
// word; m must be at most 32.
func mmerAt(w []uint64, i, m int) uint64 {
	word, off := i>>5, uint(i&31)
	x := w[word] << (2 * off)
	if off > 0 && word+1 < len(w) {
		x |= w[word+1] >> (64 - 2*off)
	}
	return x >> (64 - 2*uint(m))
}

// minimizerHash hashes the smallest m-mer drawn from both strands of the
// k-mer, so it is a pure function of the canonical form.
func minimizerHash(w []uint64, k, m int) uint64 {
	if m > k {
		m = k
	}
	var rcArr [maxWords]uint64
	rc := rcArr[:len(w)]
	revcompInto(rc, w, k)
	min := ^uint64(0)
	for i := 0; i+m <= k; i++ {
		if v := mmerAt(w, i, m); v < min {
			min = v
		}
		if v := mmerAt(rc, i, m); v < min {
			min = v
		}
	}
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], min)
	return murmur3.Sum64(buf[:])
}

func parseErr(seq string, max int) error {
	if len(seq) == 0 || len(seq) > max {
		return errors.Errorf("k-mer length %d out of range 1..%d", len(seq), max)
	}
	return errors.Errorf("invalid base in %q", seq)
}
