package worker

import "fmt"

// Command is a message from the coordinator to a worker.
type Command interface {
	isCommand()
}

// Init assigns an identity to a freshly spawned worker.
type Init struct {
	WorkerID int
}

// WorkBatch assigns the range [BatchStart, BatchStart+BatchSize) along with
// a snapshot of known primes to use as trial divisors. KnownPrimes must be
// ascending and must not be modified once sent.
type WorkBatch struct {
	BatchStart  uint64
	BatchSize   uint64
	KnownPrimes []uint64
}

// Stop terminates the worker. No further events follow.
type Stop struct{}

func (Init) isCommand()      {}
func (WorkBatch) isCommand() {}
func (Stop) isCommand()      {}

// End is the last number in the batch (inclusive).
func (b WorkBatch) End() uint64 {
	return b.BatchStart + b.BatchSize - 1
}

// Event is a message from a worker to the coordinator.
type Event interface {
	Worker() int
}

// Ready means the worker is idle and wants a batch.
type Ready struct {
	WorkerID int
}

// BatchResult reports a finished batch. ComputeTimeMs covers only the
// trial-division loop.
type BatchResult struct {
	WorkerID       int
	FoundPrimes    []uint64
	NumbersChecked uint64
	BatchStart     uint64
	BatchEnd       uint64
	ComputeTimeMs  float64
}

// Progress is a mid-batch heartbeat.
type Progress struct {
	WorkerID           int
	CurrentNumber      uint64
	PrimesFoundInBatch int
}

// Failure is raised by the pool, not the worker itself, when a worker
// goroutine dies.
type Failure struct {
	WorkerID int
	Err      error
}

func (e Ready) Worker() int       { return e.WorkerID }
func (e BatchResult) Worker() int { return e.WorkerID }
func (e Progress) Worker() int    { return e.WorkerID }
func (e Failure) Worker() int     { return e.WorkerID }

func (e BatchResult) String() string {
	return fmt.Sprintf("<BatchResult worker=%d [%d, %d] primes=%d %.2fms>",
		e.WorkerID, e.BatchStart, e.BatchEnd, len(e.FoundPrimes), e.ComputeTimeMs)
}
