// Package coordinator runs the prime search. It owns the worker pool, the
// prime cache and all scheduling state, hands each idle worker the next
// unassigned range sized from that worker's own throughput, and folds the
// results into the cache and the running statistics.
//
// All worker events are handled on a single event-loop goroutine, which is
// the only writer of scheduling state. A mutex guards that state as well,
// so the getters can be called from anywhere.
package coordinator

import (
	"context"
	"errors"
	"math"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/domino14/primesearch/primecache"
	"github.com/domino14/primesearch/stats"
	"github.com/domino14/primesearch/worker"
)

// ErrRunning is returned by operations that need the search stopped.
var ErrRunning = errors.New("search is running")

// startNumber is where every search begins.
const startNumber = 2

// workerSlot is the coordinator's whole record of one worker: the public
// state plus the scheduling bookkeeping that goes with it.
type workerSlot struct {
	state      WorkerState
	batchSize  uint64
	batchTimes stats.Statistic
	inbox      chan worker.Command
	inFlight   *NumericRange
}

type Coordinator struct {
	mu        sync.Mutex
	opts      Options
	cache     *primecache.Cache
	observers []Observer

	running            bool
	runID              string
	startTime          time.Time
	elapsedAtStop      time.Duration
	nextNumberToAssign uint64
	numbersChecked     uint64
	rate               *stats.RollingRate
	covered            *coverage
	slots              []*workerSlot
	// lost holds ranges waiting to be issued again, oldest first.
	lost []NumericRange

	cancel   context.CancelFunc
	pool     *errgroup.Group
	loopDone chan struct{}

	now   func() time.Time
	spawn spawnFunc
}

// notification is what a handler publishes once the lock is released.
type notification struct {
	primes []uint64
	stats  *Statistics
	states []WorkerState
}

func New(opts Options, observers ...Observer) *Coordinator {
	c := &Coordinator{
		opts:               opts,
		cache:              primecache.New(opts.MaxStoredPrime),
		observers:          observers,
		nextNumberToAssign: startNumber,
		rate:               stats.NewRollingRate(opts.RateSampleInterval, opts.RateWindow),
		covered:            newCoverage(),
		now:                time.Now,
	}
	c.spawn = func(ctx context.Context, inbox <-chan worker.Command, events chan<- worker.Event) error {
		return worker.New().Run(ctx, inbox, events)
	}
	return c
}

// AddObserver registers another observer. It only takes effect for events
// handled after it returns.
func (c *Coordinator) AddObserver(o Observer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers, o)
}

func (c *Coordinator) Options() Options {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.opts
}

// SetWorkers changes how many workers the next Start spawns. Everything
// found so far is kept.
func (c *Coordinator) SetWorkers(n int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	o := c.opts
	o.Workers = n
	if err := o.Validate(); err != nil {
		return err
	}
	c.opts = o
	return nil
}

// Start spawns the workers and begins the search. Starting a running
// coordinator does nothing.
func (c *Coordinator) Start() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return nil
	}
	if err := c.opts.Validate(); err != nil {
		return err
	}
	c.running = true
	c.runID = uuid.NewString()
	c.startTime = c.now()
	c.elapsedAtStop = 0
	c.rate.Reset(c.startTime, c.cache.Count())

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	events := make(chan worker.Event, 4*c.opts.Workers)

	c.slots = make([]*workerSlot, c.opts.Workers)
	for i := range c.slots {
		c.slots[i] = &workerSlot{
			state: WorkerState{
				ID:        i,
				Status:    StatusIdle,
				BatchSize: c.opts.InitialBatchSize,
			},
			batchSize: c.opts.InitialBatchSize,
			inbox:     make(chan worker.Command, 2),
		}
	}
	c.pool = &errgroup.Group{}
	for i, slot := range c.slots {
		c.startWorker(ctx, i, slot.inbox, events)
	}
	c.loopDone = make(chan struct{})
	go c.loop(ctx, events, c.loopDone)

	for i, slot := range c.slots {
		slot.inbox <- worker.Init{WorkerID: i}
	}
	log.Info().Str("run-id", c.runID).Int("workers", c.opts.Workers).
		Uint64("next-number", c.nextNumberToAssign).Msg("search-started")
	return nil
}

// Stop tears down the worker pool. Batches in flight are discarded.
// Stopping a stopped coordinator does nothing. Stop must not be called from
// an observer callback, since it waits for the event loop to exit.
func (c *Coordinator) Stop() {
	c.mu.Lock()
	if !c.running {
		c.mu.Unlock()
		return
	}
	c.running = false
	c.elapsedAtStop = c.now().Sub(c.startTime)
	for _, slot := range c.slots {
		select {
		case slot.inbox <- worker.Stop{}:
		default:
		}
	}
	cancel, pool, loopDone := c.cancel, c.pool, c.loopDone
	c.mu.Unlock()

	cancel()
	if err := pool.Wait(); err != nil {
		log.Debug().Err(err).Msg("worker-pool-exited-with-error")
	}
	<-loopDone

	c.mu.Lock()
	for _, slot := range c.slots {
		if slot.inFlight != nil {
			c.loseRange(*slot.inFlight, slot.state.ID, "search stopped")
			slot.inFlight = nil
		}
		if slot.state.Status != StatusFailed {
			slot.state.Status = StatusIdle
		}
		slot.state.Progress = 0
	}
	n := notification{states: c.workerStatesLocked()}
	st := c.statisticsLocked()
	log.Info().Str("run-id", c.runID).Uint64("primes", st.TotalPrimesFound).
		Uint64("highest-checked", st.HighestNumberChecked).Int64("elapsed-ms", st.ElapsedTimeMs).
		Msg("search-stopped")
	c.mu.Unlock()

	c.notify(n)
}

// Run starts the search and blocks until ctx is done, then stops it.
func (c *Coordinator) Run(ctx context.Context) error {
	if err := c.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	c.Stop()
	return nil
}

// Reset forgets everything found so far so the next Start begins at 2.
func (c *Coordinator) Reset() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return ErrRunning
	}
	c.cache.Reset()
	c.nextNumberToAssign = startNumber
	c.numbersChecked = 0
	c.covered = newCoverage()
	c.lost = nil
	c.slots = nil
	c.elapsedAtStop = 0
	c.rate.Reset(c.now(), 0)
	log.Info().Msg("search-reset")
	return nil
}

func (c *Coordinator) IsRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

func (c *Coordinator) Statistics() Statistics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statisticsLocked()
}

func (c *Coordinator) WorkerStates() []WorkerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.workerStatesLocked()
}

// PrimeCache gives read access to the known primes.
func (c *Coordinator) PrimeCache() primecache.Reader {
	return c.cache
}

// RecentBatchTimes returns the latest batch compute times of one worker in
// milliseconds, oldest first. It returns nil for an unknown worker.
func (c *Coordinator) RecentBatchTimes(workerID int) []float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if workerID < 0 || workerID >= len(c.slots) {
		return nil
	}
	return c.slots[workerID].batchTimes.Recent()
}

// LostRanges returns the ranges waiting to be issued again.
func (c *Coordinator) LostRanges() []NumericRange {
	c.mu.Lock()
	defer c.mu.Unlock()
	return slices.Clone(c.lost)
}

func (c *Coordinator) loop(ctx context.Context, events <-chan worker.Event, done chan struct{}) {
	defer close(done)
	for {
		select {
		case <-ctx.Done():
			return
		case e := <-events:
			c.handle(e)
		}
	}
}

func (c *Coordinator) handle(e worker.Event) {
	c.mu.Lock()
	if e.Worker() < 0 || e.Worker() >= len(c.slots) {
		c.mu.Unlock()
		log.Error().Int("worker-id", e.Worker()).Msg("event-from-unknown-worker")
		return
	}
	slot := c.slots[e.Worker()]

	var n notification
	switch ev := e.(type) {
	case worker.Ready:
		if c.running {
			c.assign(slot)
		}
	case worker.BatchResult:
		n = c.handleBatchResult(slot, ev)
	case worker.Progress:
		c.handleProgress(slot, ev)
		n.states = c.workerStatesLocked()
	case worker.Failure:
		c.handleFailure(slot, ev)
		n.states = c.workerStatesLocked()
	default:
		log.Error().Type("event", e).Msg("unknown-worker-event")
	}
	c.mu.Unlock()

	c.notify(n)
}

func (c *Coordinator) handleBatchResult(slot *workerSlot, res worker.BatchResult) notification {
	st := &slot.state
	if slot.inFlight == nil || slot.inFlight.Start != res.BatchStart {
		log.Warn().Int("worker-id", st.ID).Uint64("batch-start", res.BatchStart).
			Msg("result-for-unexpected-batch")
	}
	slot.inFlight = nil

	st.Status = StatusIdle
	st.PrimesFoundTotal += uint64(len(res.FoundPrimes))
	st.NumbersCheckedTotal += res.NumbersChecked
	if res.ComputeTimeMs > 0 {
		st.NumbersPerSecond = float64(res.NumbersChecked) / res.ComputeTimeMs * 1000
	} else {
		st.NumbersPerSecond = 0
	}
	st.Progress = 1
	slot.batchTimes.Push(res.ComputeTimeMs)
	st.BatchesCompleted = slot.batchTimes.Iterations()
	st.MeanBatchMs = slot.batchTimes.Mean()
	st.BatchMsStdev = slot.batchTimes.Stdev()

	c.numbersChecked += res.NumbersChecked
	c.covered.complete(res.BatchStart, res.BatchEnd)

	var n notification
	if len(res.FoundPrimes) > 0 {
		c.cache.AddPrimes(res.FoundPrimes)
		n.primes = slices.Clone(res.FoundPrimes)
	}
	c.rate.Observe(c.now(), c.cache.Count())
	snapshot := c.statisticsLocked()
	n.stats = &snapshot
	n.states = c.workerStatesLocked()

	slot.batchSize = NextBatchSize(res.NumbersChecked, res.ComputeTimeMs, c.opts)
	log.Debug().Int("worker-id", st.ID).Uint64("batch-start", res.BatchStart).
		Int("primes", len(res.FoundPrimes)).Float64("compute-ms", res.ComputeTimeMs).
		Uint64("next-batch-size", slot.batchSize).Msg("batch-complete")

	if c.running {
		c.assign(slot)
	}
	return n
}

func (c *Coordinator) handleProgress(slot *workerSlot, p worker.Progress) {
	if slot.inFlight == nil {
		return
	}
	r := *slot.inFlight
	if p.CurrentNumber < r.Start {
		return
	}
	slot.state.Progress = math.Min(1, float64(p.CurrentNumber-r.Start)/float64(r.Size))
}

func (c *Coordinator) handleFailure(slot *workerSlot, f worker.Failure) {
	log.Error().Err(f.Err).Int("worker-id", slot.state.ID).Msg("worker-failed")
	slot.state.Status = StatusFailed
	slot.state.Progress = 0
	if slot.inFlight != nil {
		c.loseRange(*slot.inFlight, slot.state.ID, "worker failed")
		slot.inFlight = nil
	}
}

// loseRange records a range that was assigned but will never report.
// Ranges starting at or below the cache ceiling are always queued again:
// until they are searched the coverage frontier cannot pass them, and
// divisor snapshots would stay stuck below it.
func (c *Coordinator) loseRange(r NumericRange, workerID int, why string) {
	if c.opts.RequeueLostRanges || r.Start <= c.cache.Ceiling() {
		c.lost = append(c.lost, r)
		log.Warn().Int("worker-id", workerID).Stringer("range", r).Str("reason", why).
			Msg("range-requeued")
		return
	}
	log.Warn().Int("worker-id", workerID).Stringer("range", r).Str("reason", why).
		Msg("range-abandoned")
}

// nextRange hands out requeued ranges first, then advances the cursor.
func (c *Coordinator) nextRange(size uint64) NumericRange {
	if len(c.lost) > 0 {
		r := c.lost[0]
		c.lost = c.lost[1:]
		return r
	}
	r := NumericRange{Start: c.nextNumberToAssign, Size: size}
	c.nextNumberToAssign += size
	return r
}

// assign gives the slot its next batch along with the trial divisors it
// needs: every stored prime up to ceil(sqrt(end+1)), limited to the part
// of the cache known to have no gaps.
func (c *Coordinator) assign(slot *workerSlot) {
	r := c.nextRange(slot.batchSize)
	sqrtEnd := worker.CeilSqrt(r.Start + r.Size)
	limit := min(sqrtEnd, c.covered.verifiedThrough(c.cache.Ceiling()))
	batch := worker.WorkBatch{
		BatchStart:  r.Start,
		BatchSize:   r.Size,
		KnownPrimes: c.cache.PrimesUpTo(limit),
	}
	select {
	case slot.inbox <- batch:
	default:
		// The worker asked for work, so its inbox has room; this means the
		// worker is misbehaving.
		c.loseRange(r, slot.state.ID, "worker inbox full")
		return
	}
	slot.inFlight = &r
	slot.state.Status = StatusWorking
	slot.state.CurrentRangeStart = r.Start
	slot.state.CurrentRangeEnd = r.End()
	slot.state.BatchSize = r.Size
	slot.state.Progress = 0
	log.Debug().Int("worker-id", slot.state.ID).Stringer("range", r).
		Int("divisors", len(batch.KnownPrimes)).Msg("assigned-batch")
}

func (c *Coordinator) statisticsLocked() Statistics {
	elapsed := c.elapsedAtStop
	if c.running {
		elapsed = c.now().Sub(c.startTime)
	}
	return Statistics{
		RunID:                c.runID,
		TotalPrimesFound:     c.cache.Count(),
		LargestPrime:         c.cache.Largest(),
		HighestNumberChecked: c.nextNumberToAssign - 1,
		PrimesPerSecond:      c.rate.Rate(),
		ElapsedTimeMs:        elapsed.Milliseconds(),
		TotalNumbersChecked:  c.numbersChecked,
	}
}

func (c *Coordinator) workerStatesLocked() []WorkerState {
	return lo.Map(c.slots, func(s *workerSlot, _ int) WorkerState {
		return s.state
	})
}

func (c *Coordinator) notify(n notification) {
	if n.primes == nil && n.stats == nil && n.states == nil {
		return
	}
	c.mu.Lock()
	observers := slices.Clone(c.observers)
	c.mu.Unlock()
	for _, o := range observers {
		if n.primes != nil {
			o.PrimesDiscovered(n.primes)
		}
		if n.stats != nil {
			o.StatisticsUpdated(*n.stats)
		}
		if n.states != nil {
			o.WorkerStatesUpdated(n.states)
		}
	}
}
