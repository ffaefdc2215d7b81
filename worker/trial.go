package worker

import (
	"context"
	"errors"
	"math"
	"time"
)

// ProgressMinInterval is the fewest numbers processed between two
// progress notifications.
const ProgressMinInterval = 1000

var ErrRangeOverflow = errors.New("batch range overflows uint64")

// Isqrt returns floor(sqrt(n)).
func Isqrt(n uint64) uint64 {
	if n < 2 {
		return n
	}
	r := uint64(math.Sqrt(float64(n)))
	// The float estimate can be off by one in either direction near 2^64.
	for r > 0 && (r > math.MaxUint32 || r*r > n) {
		r--
	}
	for r < math.MaxUint32 && (r+1)*(r+1) <= n {
		r++
	}
	return r
}

// CeilSqrt returns ceil(sqrt(n)).
func CeilSqrt(n uint64) uint64 {
	r := Isqrt(n)
	if r*r < n {
		r++
	}
	return r
}

// IsPrime tests n by trial division. knownPrimes must be ascending and
// contain every prime up to its last element. Once the known primes run
// out below sqrt(n), odd divisors above the last one are tried.
func IsPrime(n uint64, knownPrimes []uint64) bool {
	if n < 2 {
		return false
	}
	if n%2 == 0 {
		return n == 2
	}
	limit := Isqrt(n)
	var last uint64
	for _, p := range knownPrimes {
		if p > limit {
			return true
		}
		if n%p == 0 {
			return false
		}
		last = p
	}
	d := last + 1
	if d < 3 {
		d = 3
	}
	if d%2 == 0 {
		d++
	}
	for ; d <= limit; d += 2 {
		if n%d == 0 {
			return false
		}
	}
	return true
}

// SearchRange tests every number in the batch. progress, when non-nil, is
// called every max(1000, size/10) numbers. The context is checked at the
// same cadence; a cancelled search returns ctx.Err() and no result.
func SearchRange(ctx context.Context, workerID int, batch WorkBatch,
	progress func(Progress)) (BatchResult, error) {

	if batch.BatchSize == 0 {
		return BatchResult{}, errors.New("empty batch")
	}
	if batch.BatchStart > math.MaxUint64-batch.BatchSize+1 {
		return BatchResult{}, ErrRangeOverflow
	}
	interval := max(uint64(ProgressMinInterval), batch.BatchSize/10)
	end := batch.End()

	var found []uint64
	tstart := time.Now()
	var processed uint64
	for n := batch.BatchStart; ; n++ {
		if IsPrime(n, batch.KnownPrimes) {
			found = append(found, n)
		}
		processed++
		if processed%interval == 0 && n != end {
			if err := ctx.Err(); err != nil {
				return BatchResult{}, err
			}
			if progress != nil {
				progress(Progress{
					WorkerID:           workerID,
					CurrentNumber:      n,
					PrimesFoundInBatch: len(found),
				})
			}
		}
		if n == end {
			break
		}
	}
	elapsed := time.Since(tstart)

	return BatchResult{
		WorkerID:       workerID,
		FoundPrimes:    found,
		NumbersChecked: batch.BatchSize,
		BatchStart:     batch.BatchStart,
		BatchEnd:       end,
		ComputeTimeMs:  float64(elapsed.Nanoseconds()) / 1e6,
	}, nil
}
