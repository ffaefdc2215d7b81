package coordinator

import "fmt"

// NumericRange is the half-open range [Start, Start+Size).
type NumericRange struct {
	Start uint64
	Size  uint64
}

// End is the last number in the range (inclusive).
func (r NumericRange) End() uint64 {
	return r.Start + r.Size - 1
}

func (r NumericRange) String() string {
	return fmt.Sprintf("[%d, %d]", r.Start, r.End())
}

type WorkerStatus string

const (
	StatusIdle    WorkerStatus = "idle"
	StatusWorking WorkerStatus = "working"
	// StatusFailed marks a worker whose goroutine died. It is never
	// restarted.
	StatusFailed WorkerStatus = "failed"
)

// WorkerState is the public per-worker record.
type WorkerState struct {
	ID                  int          `json:"id" yaml:"id"`
	Status              WorkerStatus `json:"status" yaml:"status"`
	CurrentRangeStart   uint64       `json:"currentRangeStart" yaml:"current_range_start"`
	CurrentRangeEnd     uint64       `json:"currentRangeEnd" yaml:"current_range_end"`
	PrimesFoundTotal    uint64       `json:"primesFoundTotal" yaml:"primes_found_total"`
	NumbersCheckedTotal uint64       `json:"numbersCheckedTotal" yaml:"numbers_checked_total"`
	NumbersPerSecond    float64      `json:"numbersPerSecond" yaml:"numbers_per_second"`
	Progress            float64      `json:"progress" yaml:"progress"`
	BatchSize           uint64       `json:"batchSize" yaml:"batch_size"`
	BatchesCompleted    int          `json:"batchesCompleted" yaml:"batches_completed"`
	MeanBatchMs         float64      `json:"meanBatchMs" yaml:"mean_batch_ms"`
	BatchMsStdev        float64      `json:"batchMsStdev" yaml:"batch_ms_stdev"`
}

// Statistics are the aggregate figures for a run.
type Statistics struct {
	RunID                string  `json:"runId" yaml:"run_id"`
	TotalPrimesFound     uint64  `json:"totalPrimesFound" yaml:"total_primes_found"`
	LargestPrime         uint64  `json:"largestPrime" yaml:"largest_prime"`
	HighestNumberChecked uint64  `json:"highestNumberChecked" yaml:"highest_number_checked"`
	PrimesPerSecond      float64 `json:"primesPerSecond" yaml:"primes_per_second"`
	ElapsedTimeMs        int64   `json:"elapsedTimeMs" yaml:"elapsed_time_ms"`
	TotalNumbersChecked  uint64  `json:"totalNumbersChecked" yaml:"total_numbers_checked"`
}

// Observer receives everything the coordinator publishes. Calls are made
// from the coordinator's event loop, one at a time, with copies of the
// data. An observer must not call Stop.
type Observer interface {
	PrimesDiscovered(primes []uint64)
	StatisticsUpdated(stats Statistics)
	WorkerStatesUpdated(states []WorkerState)
}

// ObserverFuncs adapts plain functions to Observer. Nil fields are skipped.
type ObserverFuncs struct {
	OnPrimesDiscovered   func([]uint64)
	OnStatisticsUpdate   func(Statistics)
	OnWorkerStatesUpdate func([]WorkerState)
}

func (o ObserverFuncs) PrimesDiscovered(primes []uint64) {
	if o.OnPrimesDiscovered != nil {
		o.OnPrimesDiscovered(primes)
	}
}

func (o ObserverFuncs) StatisticsUpdated(stats Statistics) {
	if o.OnStatisticsUpdate != nil {
		o.OnStatisticsUpdate(stats)
	}
}

func (o ObserverFuncs) WorkerStatesUpdated(states []WorkerState) {
	if o.OnWorkerStatesUpdate != nil {
		o.OnWorkerStatesUpdate(states)
	}
}
