// Package stats has the running statistics the coordinator keeps: a
// Welford mean/variance accumulator for per-worker batch timings and a
// rolling rate window for primes per second.
package stats

import "math"

// DefaultRecent is how many of the latest values a Statistic keeps when
// it was not told otherwise.
const DefaultRecent = 256

// Statistic is a running mean and variance over every value pushed. It
// also remembers the latest few values so they can be plotted.
type Statistic struct {
	n    int
	mean float64
	// sum of squared distances from the mean, for Welford's algorithm
	m2 float64

	keep   int
	recent []float64
}

// NewStatistic returns a Statistic that remembers the last keep values.
// The zero value remembers DefaultRecent.
func NewStatistic(keep int) *Statistic {
	return &Statistic{keep: keep}
}

func (s *Statistic) Push(val float64) {
	s.n++
	delta := val - s.mean
	s.mean += delta / float64(s.n)
	s.m2 += delta * (val - s.mean)

	keep := s.keep
	if keep <= 0 {
		keep = DefaultRecent
	}
	if len(s.recent) == keep {
		copy(s.recent, s.recent[1:])
		s.recent = s.recent[:keep-1]
	}
	s.recent = append(s.recent, val)
}

func (s *Statistic) Mean() float64 {
	return s.mean
}

// Variance is the sample variance; 0 until two values were pushed.
func (s *Statistic) Variance() float64 {
	if s.n <= 1 {
		return 0.0
	}
	return s.m2 / float64(s.n-1)
}

func (s *Statistic) Stdev() float64 {
	return math.Sqrt(s.Variance())
}

func (s *Statistic) Iterations() int {
	return s.n
}

// Recent returns a copy of the remembered values, oldest first.
func (s *Statistic) Recent() []float64 {
	return append([]float64(nil), s.recent...)
}
