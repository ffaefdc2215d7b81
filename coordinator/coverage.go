package coordinator

import "github.com/domino14/primesearch/primecache"

// coverage tracks how far the completed batches form an unbroken prefix
// starting at 2. Every prime below the frontier has been reported to the
// cache, so trial-divisor snapshots can trust the cache up to there.
type coverage struct {
	frontier uint64
	// completed batches above the frontier, start -> inclusive end
	pending map[uint64]uint64
}

func newCoverage() *coverage {
	return &coverage{frontier: 2, pending: make(map[uint64]uint64)}
}

func (cv *coverage) complete(start, end uint64) {
	if end < cv.frontier {
		return
	}
	cv.pending[start] = end
	for {
		e, ok := cv.pending[cv.frontier]
		if !ok {
			return
		}
		delete(cv.pending, cv.frontier)
		cv.frontier = e + 1
	}
}

// verifiedThrough is the highest number such that every prime up to it is
// stored, given the cache ceiling.
func (cv *coverage) verifiedThrough(ceiling uint64) uint64 {
	return min(max(primecache.SeedMax, cv.frontier-1), ceiling)
}
