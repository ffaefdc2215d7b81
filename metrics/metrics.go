// Package metrics exports a running search as Prometheus metrics.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/domino14/primesearch/coordinator"
)

// Exporter is a coordinator.Observer that keeps a set of gauges on its
// own registry up to date.
type Exporter struct {
	registry *prometheus.Registry

	PrimesFound          prometheus.Gauge
	LargestPrime         prometheus.Gauge
	HighestNumberChecked prometheus.Gauge
	PrimesPerSecond      prometheus.Gauge
	NumbersChecked       prometheus.Gauge
	BatchesWithPrimes    prometheus.Counter

	WorkerNumbersPerSecond *prometheus.GaugeVec
	WorkerProgress         *prometheus.GaugeVec
	WorkerMeanBatchMs      *prometheus.GaugeVec
	WorkerBatchMsStdev     *prometheus.GaugeVec
}

func NewExporter() *Exporter {
	reg := prometheus.NewRegistry()
	f := promauto.With(reg)
	return &Exporter{
		registry: reg,
		PrimesFound: f.NewGauge(prometheus.GaugeOpts{
			Name: "primesearch_primes_found_total",
			Help: "Primes found since the search began",
		}),
		LargestPrime: f.NewGauge(prometheus.GaugeOpts{
			Name: "primesearch_largest_prime",
			Help: "Largest prime found so far",
		}),
		HighestNumberChecked: f.NewGauge(prometheus.GaugeOpts{
			Name: "primesearch_highest_number_checked",
			Help: "Highest number handed out to a worker",
		}),
		PrimesPerSecond: f.NewGauge(prometheus.GaugeOpts{
			Name: "primesearch_primes_per_second",
			Help: "Smoothed rate of prime discovery",
		}),
		NumbersChecked: f.NewGauge(prometheus.GaugeOpts{
			Name: "primesearch_numbers_checked_total",
			Help: "Numbers tested across all completed batches",
		}),
		BatchesWithPrimes: f.NewCounter(prometheus.CounterOpts{
			Name: "primesearch_batches_with_primes_total",
			Help: "Completed batches that contained at least one prime",
		}),
		WorkerNumbersPerSecond: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "primesearch_worker_numbers_per_second",
			Help: "Throughput of each worker's last batch",
		}, []string{"worker"}),
		WorkerProgress: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "primesearch_worker_progress",
			Help: "Fraction of the current batch each worker has done",
		}, []string{"worker"}),
		WorkerMeanBatchMs: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "primesearch_worker_mean_batch_ms",
			Help: "Mean compute time of each worker's batches",
		}, []string{"worker"}),
		WorkerBatchMsStdev: f.NewGaugeVec(prometheus.GaugeOpts{
			Name: "primesearch_worker_batch_ms_stdev",
			Help: "Standard deviation of each worker's batch compute times",
		}, []string{"worker"}),
	}
}

// Registry is where the exporter's metrics live.
func (e *Exporter) Registry() *prometheus.Registry {
	return e.registry
}

// Handler serves the exporter's registry.
func (e *Exporter) Handler() http.Handler {
	return promhttp.HandlerFor(e.registry, promhttp.HandlerOpts{Registry: e.registry})
}

func (e *Exporter) PrimesDiscovered(primes []uint64) {
	if len(primes) > 0 {
		e.BatchesWithPrimes.Inc()
	}
}

func (e *Exporter) StatisticsUpdated(s coordinator.Statistics) {
	e.PrimesFound.Set(float64(s.TotalPrimesFound))
	e.LargestPrime.Set(float64(s.LargestPrime))
	e.HighestNumberChecked.Set(float64(s.HighestNumberChecked))
	e.PrimesPerSecond.Set(s.PrimesPerSecond)
	e.NumbersChecked.Set(float64(s.TotalNumbersChecked))
}

func (e *Exporter) WorkerStatesUpdated(states []coordinator.WorkerState) {
	for _, ws := range states {
		id := strconv.Itoa(ws.ID)
		e.WorkerNumbersPerSecond.WithLabelValues(id).Set(ws.NumbersPerSecond)
		e.WorkerProgress.WithLabelValues(id).Set(ws.Progress)
		e.WorkerMeanBatchMs.WithLabelValues(id).Set(ws.MeanBatchMs)
		e.WorkerBatchMsStdev.WithLabelValues(id).Set(ws.BatchMsStdev)
	}
}
