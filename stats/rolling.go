package stats

import (
	"time"

	"gonum.org/v1/gonum/stat"
)

// RollingRate turns a monotonically growing counter into a smoothed rate.
// At most one sample is taken per interval; the reported rate is the mean
// of the last window samples.
type RollingRate struct {
	interval time.Duration
	window   int

	samples    []float64
	lastTime   time.Time
	lastCount  uint64
	lastReport float64
}

func NewRollingRate(interval time.Duration, window int) *RollingRate {
	if window < 1 {
		window = 1
	}
	return &RollingRate{interval: interval, window: window}
}

// Reset starts sampling over from the given time and count.
func (r *RollingRate) Reset(now time.Time, count uint64) {
	r.samples = r.samples[:0]
	r.lastTime = now
	r.lastCount = count
	r.lastReport = 0
}

// Observe feeds the current counter value. It returns the smoothed rate,
// which only changes when a new sample was taken.
func (r *RollingRate) Observe(now time.Time, count uint64) float64 {
	elapsed := now.Sub(r.lastTime)
	if elapsed < r.interval || elapsed <= 0 {
		return r.lastReport
	}
	var delta float64
	if count >= r.lastCount {
		delta = float64(count - r.lastCount)
	}
	r.samples = append(r.samples, delta/elapsed.Seconds())
	if len(r.samples) > r.window {
		r.samples = r.samples[len(r.samples)-r.window:]
	}
	r.lastTime = now
	r.lastCount = count
	r.lastReport = stat.Mean(r.samples, nil)
	return r.lastReport
}

// Rate is the last reported rate.
func (r *RollingRate) Rate() float64 {
	return r.lastReport
}

// Samples returns a copy of the samples in the window, oldest first.
func (r *RollingRate) Samples() []float64 {
	return append([]float64(nil), r.samples...)
}
