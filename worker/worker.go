// Package worker implements the compute side of the search: a worker
// receives a numeric range plus a snapshot of known small primes, tests
// every number in it by trial division, and reports what it found.
package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"
)

// PrimeWorker runs batches handed to it over its inbox, one at a time.
// It owns nothing besides the batch it is currently working on.
type PrimeWorker struct {
	id int
}

func New() *PrimeWorker {
	return &PrimeWorker{id: -1}
}

func (w *PrimeWorker) ID() int {
	return w.id
}

// Run is the worker main loop. It returns nil when told to stop, when the
// inbox is closed or when ctx is cancelled; a cancelled batch is dropped
// without reporting anything.
func (w *PrimeWorker) Run(ctx context.Context, inbox <-chan Command, events chan<- Event) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case cmd, ok := <-inbox:
			if !ok {
				return nil
			}
			switch c := cmd.(type) {
			case Init:
				w.id = c.WorkerID
				log.Debug().Int("worker-id", w.id).Msg("worker-ready")
				if !send(ctx, events, Ready{WorkerID: w.id}) {
					return nil
				}

			case WorkBatch:
				res, err := SearchRange(ctx, w.id, c, func(p Progress) {
					// Heartbeats never hold up the computation; if the
					// coordinator is behind, this one is skipped.
					select {
					case events <- p:
					default:
					}
				})
				if err != nil {
					if ctx.Err() != nil {
						log.Debug().Int("worker-id", w.id).Uint64("batch-start", c.BatchStart).
							Msg("batch-abandoned")
						return nil
					}
					return fmt.Errorf("worker %d: batch at %d: %w", w.id, c.BatchStart, err)
				}
				if !send(ctx, events, res) {
					return nil
				}

			case Stop:
				log.Debug().Int("worker-id", w.id).Msg("worker-stopping")
				return nil

			default:
				return fmt.Errorf("worker %d: unknown command %T", w.id, cmd)
			}
		}
	}
}

func send(ctx context.Context, events chan<- Event, e Event) bool {
	select {
	case events <- e:
		return true
	case <-ctx.Done():
		return false
	}
}
