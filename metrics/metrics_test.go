package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/domino14/primesearch/coordinator"
)

func TestExporter(t *testing.T) {
	is := is.New(t)
	e := NewExporter()

	e.PrimesDiscovered([]uint64{2, 3, 5})
	e.PrimesDiscovered(nil)
	e.StatisticsUpdated(coordinator.Statistics{
		TotalPrimesFound:     168,
		LargestPrime:         997,
		HighestNumberChecked: 1001,
		PrimesPerSecond:      12.5,
		TotalNumbersChecked:  1000,
	})
	e.WorkerStatesUpdated([]coordinator.WorkerState{
		{ID: 0, NumbersPerSecond: 2000, Progress: 0.25},
		{ID: 1, NumbersPerSecond: 500, Progress: 1, MeanBatchMs: 480, BatchMsStdev: 35.5},
	})

	is.Equal(testutil.ToFloat64(e.BatchesWithPrimes), 1.0)
	is.Equal(testutil.ToFloat64(e.PrimesFound), 168.0)
	is.Equal(testutil.ToFloat64(e.LargestPrime), 997.0)
	is.Equal(testutil.ToFloat64(e.HighestNumberChecked), 1001.0)
	is.Equal(testutil.ToFloat64(e.PrimesPerSecond), 12.5)
	is.Equal(testutil.ToFloat64(e.NumbersChecked), 1000.0)
	is.Equal(testutil.ToFloat64(e.WorkerNumbersPerSecond.WithLabelValues("0")), 2000.0)
	is.Equal(testutil.ToFloat64(e.WorkerProgress.WithLabelValues("1")), 1.0)
	is.Equal(testutil.ToFloat64(e.WorkerMeanBatchMs.WithLabelValues("1")), 480.0)
	is.Equal(testutil.ToFloat64(e.WorkerBatchMsStdev.WithLabelValues("1")), 35.5)
	is.Equal(testutil.ToFloat64(e.WorkerBatchMsStdev.WithLabelValues("0")), 0.0)

	// Later statistics replace earlier ones.
	e.StatisticsUpdated(coordinator.Statistics{TotalPrimesFound: 200})
	is.Equal(testutil.ToFloat64(e.PrimesFound), 200.0)
	is.Equal(testutil.ToFloat64(e.LargestPrime), 0.0)
}

func TestHandler(t *testing.T) {
	is := is.New(t)
	e := NewExporter()
	e.StatisticsUpdated(coordinator.Statistics{TotalPrimesFound: 42})

	srv := httptest.NewServer(e.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	is.NoErr(err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	is.NoErr(err)
	is.True(strings.Contains(string(body), "primesearch_primes_found_total 42"))

	n, err := testutil.GatherAndCount(e.Registry(), "primesearch_primes_found_total")
	is.NoErr(err)
	is.Equal(n, 1)
}
