package kmer

// The five buckets below differ only in word count; Kmer64 through
// Kmer160 mirror Kmer32 over wider arrays. All methods take and return
// values so buckets stay usable as map keys.

// Kmer32 holds k-mers of up to 32 bases in one word.
type Kmer32 struct {
	w [1]uint64
	k uint8
}

func (m Kmer32) Len() int { return int(m.k) }

func (m Kmer32) Parse(seq string) (Kmer32, error) {
	if len(seq) == 0 || len(seq) > 32 || !packInto(m.w[:], seq) {
		return Kmer32{}, parseErr(seq, 32)
	}
	m.k = uint8(len(seq))
	return m, nil
}

func (m Kmer32) ForwardBase(b byte) Kmer32 {
	forwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer32) BackwardBase(b byte) Kmer32 {
	backwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer32) Revcomp() Kmer32 {
	o := Kmer32{k: m.k}
	revcompInto(o.w[:], m.w[:], int(m.k))
	return o
}

func (m Kmer32) Less(o Kmer32) bool { return lessWords(m.w[:], o.w[:]) }

func (m Kmer32) Front() byte { return baseLetters[baseAt(m.w[:], 0)] }

func (m Kmer32) Back() byte { return baseLetters[baseAt(m.w[:], int(m.k)-1)] }

func (m Kmer32) String() string { return stringOf(m.w[:], int(m.k)) }

func (m Kmer32) Hash() uint64 { return hashWords(m.w[:]) }

func (m Kmer32) MinimizerHash(ml int) uint64 { return minimizerHash(m.w[:], int(m.k), ml) }

// Kmer64 holds k-mers of up to 64 bases.
type Kmer64 struct {
	w [2]uint64
	k uint8
}

func (m Kmer64) Len() int { return int(m.k) }

func (m Kmer64) Parse(seq string) (Kmer64, error) {
	if len(seq) == 0 || len(seq) > 64 || !packInto(m.w[:], seq) {
		return Kmer64{}, parseErr(seq, 64)
	}
	m.k = uint8(len(seq))
	return m, nil
}

func (m Kmer64) ForwardBase(b byte) Kmer64 {
	forwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer64) BackwardBase(b byte) Kmer64 {
	backwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer64) Revcomp() Kmer64 {
	o := Kmer64{k: m.k}
	revcompInto(o.w[:], m.w[:], int(m.k))
	return o
}

func (m Kmer64) Less(o Kmer64) bool { return lessWords(m.w[:], o.w[:]) }

func (m Kmer64) Front() byte { return baseLetters[baseAt(m.w[:], 0)] }

func (m Kmer64) Back() byte { return baseLetters[baseAt(m.w[:], int(m.k)-1)] }

func (m Kmer64) String() string { return stringOf(m.w[:], int(m.k)) }

func (m Kmer64) Hash() uint64 { return hashWords(m.w[:]) }

func (m Kmer64) MinimizerHash(ml int) uint64 { return minimizerHash(m.w[:], int(m.k), ml) }

// Kmer96 holds k-mers of up to 96 bases.
type Kmer96 struct {
	w [3]uint64
	k uint8
}

func (m Kmer96) Len() int { return int(m.k) }

func (m Kmer96) Parse(seq string) (Kmer96, error) {
	if len(seq) == 0 || len(seq) > 96 || !packInto(m.w[:], seq) {
		return Kmer96{}, parseErr(seq, 96)
	}
	m.k = uint8(len(seq))
	return m, nil
}

func (m Kmer96) ForwardBase(b byte) Kmer96 {
	forwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer96) BackwardBase(b byte) Kmer96 {
	backwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer96) Revcomp() Kmer96 {
	o := Kmer96{k: m.k}
	revcompInto(o.w[:], m.w[:], int(m.k))
	return o
}

func (m Kmer96) Less(o Kmer96) bool { return lessWords(m.w[:], o.w[:]) }

func (m Kmer96) Front() byte { return baseLetters[baseAt(m.w[:], 0)] }

func (m Kmer96) Back() byte { return baseLetters[baseAt(m.w[:], int(m.k)-1)] }

func (m Kmer96) String() string { return stringOf(m.w[:], int(m.k)) }

func (m Kmer96) Hash() uint64 { return hashWords(m.w[:]) }

func (m Kmer96) MinimizerHash(ml int) uint64 { return minimizerHash(m.w[:], int(m.k), ml) }

// Kmer128 holds k-mers of up to 128 bases.
type Kmer128 struct {
	w [4]uint64
	k uint8
}

func (m Kmer128) Len() int { return int(m.k) }

func (m Kmer128) Parse(seq string) (Kmer128, error) {
	if len(seq) == 0 || len(seq) > 128 || !packInto(m.w[:], seq) {
		return Kmer128{}, parseErr(seq, 128)
	}
	m.k = uint8(len(seq))
	return m, nil
}

func (m Kmer128) ForwardBase(b byte) Kmer128 {
	forwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer128) BackwardBase(b byte) Kmer128 {
	backwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer128) Revcomp() Kmer128 {
	o := Kmer128{k: m.k}
	revcompInto(o.w[:], m.w[:], int(m.k))
	return o
}

func (m Kmer128) Less(o Kmer128) bool { return lessWords(m.w[:], o.w[:]) }

func (m Kmer128) Front() byte { return baseLetters[baseAt(m.w[:], 0)] }

func (m Kmer128) Back() byte { return baseLetters[baseAt(m.w[:], int(m.k)-1)] }

func (m Kmer128) String() string { return stringOf(m.w[:], int(m.k)) }

func (m Kmer128) Hash() uint64 { return hashWords(m.w[:]) }

func (m Kmer128) MinimizerHash(ml int) uint64 { return minimizerHash(m.w[:], int(m.k), ml) }

// Kmer160 holds k-mers of up to 160 bases.
type Kmer160 struct {
	w [5]uint64
	k uint8
}

func (m Kmer160) Len() int { return int(m.k) }

func (m Kmer160) Parse(seq string) (Kmer160, error) {
	if len(seq) == 0 || len(seq) > 160 || !packInto(m.w[:], seq) {
		return Kmer160{}, parseErr(seq, 160)
	}
	m.k = uint8(len(seq))
	return m, nil
}

func (m Kmer160) ForwardBase(b byte) Kmer160 {
	forwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer160) BackwardBase(b byte) Kmer160 {
	backwardInto(m.w[:], int(m.k), b)
	return m
}

func (m Kmer160) Revcomp() Kmer160 {
	o := Kmer160{k: m.k}
	revcompInto(o.w[:], m.w[:], int(m.k))
	return o
}

func (m Kmer160) Less(o Kmer160) bool { return lessWords(m.w[:], o.w[:]) }

func (m Kmer160) Front() byte { return baseLetters[baseAt(m.w[:], 0)] }

func (m Kmer160) Back() byte { return baseLetters[baseAt(m.w[:], int(m.k)-1)] }

func (m Kmer160) String() string { return stringOf(m.w[:], int(m.k)) }

func (m Kmer160) Hash() uint64 { return hashWords(m.w[:]) }

func (m Kmer160) MinimizerHash(ml int) uint64 { return minimizerHash(m.w[:], int(m.k), ml) }
