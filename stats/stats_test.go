package stats

import (
	"math"
	"testing"
	"time"

	"github.com/matryer/is"
)

func fuzzyEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}

func TestRunningStat(t *testing.T) {
	is := is.New(t)
	type tc struct {
		scores []int
		mean   float64
		stdev  float64
	}
	cases := []tc{
		{[]int{10, 12, 23, 23, 16, 23, 21, 16}, 18, 5.2372293656638},
		{[]int{14, 35, 71, 124, 10, 24, 55, 33, 87, 19}, 47.2, 36.937785531891},
		{[]int{1}, 1, 0},
		{[]int{}, 0, 0},
		{[]int{1, 1}, 1, 0},
	}
	for _, c := range cases {
		s := &Statistic{}
		for _, score := range c.scores {
			s.Push(float64(score))
		}
		is.True(fuzzyEqual(s.Mean(), c.mean))
		is.True(fuzzyEqual(s.Stdev(), c.stdev))
		is.Equal(s.Iterations(), len(c.scores))
	}
}

func TestStatisticRecent(t *testing.T) {
	is := is.New(t)
	s := NewStatistic(3)
	is.Equal(len(s.Recent()), 0)
	for _, v := range []float64{4, 8, 15, 16, 23} {
		s.Push(v)
	}
	is.Equal(s.Recent(), []float64{15, 16, 23})
	is.Equal(s.Iterations(), 5)
	// The mean covers everything, not just what is remembered.
	is.True(fuzzyEqual(s.Mean(), 13.2))

	r := s.Recent()
	r[0] = 99
	is.Equal(s.Recent()[0], 15.0)

	var z Statistic
	for i := 0; i < DefaultRecent+10; i++ {
		z.Push(float64(i))
	}
	rec := z.Recent()
	is.Equal(len(rec), DefaultRecent)
	is.Equal(rec[0], 10.0)
}

func TestRollingRateWaitsForInterval(t *testing.T) {
	is := is.New(t)
	start := time.Unix(1000, 0)
	r := NewRollingRate(time.Second, 5)
	r.Reset(start, 0)

	is.Equal(r.Observe(start.Add(300*time.Millisecond), 500), 0.0)
	is.Equal(len(r.Samples()), 0)

	// 1000 primes over 2 seconds.
	is.True(fuzzyEqual(r.Observe(start.Add(2*time.Second), 1000), 500))
	is.Equal(len(r.Samples()), 1)

	// Not enough time has passed, the previous rate is reported again.
	is.True(fuzzyEqual(r.Observe(start.Add(2500*time.Millisecond), 99999), 500))
}

func TestRollingRateWindow(t *testing.T) {
	is := is.New(t)
	start := time.Unix(0, 0)
	r := NewRollingRate(time.Second, 5)
	r.Reset(start, 0)

	// Per-second rates 100, 200, ..., 700. Only the last five count.
	var count uint64
	for i := 1; i <= 7; i++ {
		count += uint64(i * 100)
		r.Observe(start.Add(time.Duration(i)*time.Second), count)
	}
	is.Equal(len(r.Samples()), 5)
	is.True(fuzzyEqual(r.Rate(), 500)) // mean of 300..700
}

func TestRollingRateReset(t *testing.T) {
	is := is.New(t)
	start := time.Unix(0, 0)
	r := NewRollingRate(time.Second, 3)
	r.Reset(start, 0)
	r.Observe(start.Add(time.Second), 10)
	r.Reset(start.Add(5*time.Second), 10)
	is.Equal(r.Rate(), 0.0)
	is.Equal(len(r.Samples()), 0)
	is.True(fuzzyEqual(r.Observe(start.Add(7*time.Second), 30), 10))
}
