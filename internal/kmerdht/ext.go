package kmerdht

import "sort"

// Extension consensus. Each side of a k-mer gets one of ACGT, 'F' when
// the evidence forks between two bases, or 'X' when there is none.

const (
	minViableFrac   = 0.2
	minExpectedFrac = 0.5
	ratingThres     = 0
)

func scaledMin(frac float64, depth int) int {
	v := frac * float64(depth)
	if v < 2 {
		v = 2
	}
	return int(v)
}

// rateExt scores a candidate's credibility from 0 (no votes) to 7
// (plenty of votes, mostly high quality) against the k-mer's depth.
func rateExt(n, hi, minViable, minExpected int) int {
	switch {
	case n == 0:
		return 0
	case n == 1:
		return 1
	case n < minViable:
		return 2
	case n < minExpected:
		if hi < minViable {
			return 3
		}
		return 4
	case hi < minViable:
		return 5
	case hi < minExpected:
		return 6
	default:
		return 7
	}
}

type extCand struct {
	base   byte
	n      int
	hi     int
	rating int
}

// chooseExt picks one side's consensus extension from its vote tallies.
func chooseExt(hiC, loC ExtCounts, depth int) byte {
	minViable := scaledMin(minViableFrac, depth)
	minExpected := scaledMin(minExpectedFrac, depth)
	cands := make([]extCand, 0, 4)
	for _, base := range []byte{'A', 'C', 'G', 'T'} {
		n, hi := int(loC.Get(base)), int(hiC.Get(base))
		cands = append(cands, extCand{base: base, n: n, hi: hi, rating: rateExt(n, hi, minViable, minExpected)})
	}
	sort.Slice(cands, func(i, j int) bool {
		if cands[i].rating != cands[j].rating {
			return cands[i].rating > cands[j].rating
		}
		if cands[i].hi != cands[j].hi {
			return cands[i].hi > cands[j].hi
		}
		if cands[i].n != cands[j].n {
			return cands[i].n > cands[j].n
		}
		return cands[i].base < cands[j].base
	})
	if cands[0].rating <= ratingThres {
		return 'X'
	}
	if cands[1].rating == cands[0].rating {
		return 'F'
	}
	return cands[0].base
}
