package coordinator

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/domino14/primesearch/worker"
)

type spawnFunc func(ctx context.Context, inbox <-chan worker.Command, events chan<- worker.Event) error

// startWorker runs one worker on the pool. A worker that panics or returns
// an error is reported back to the event loop as a Failure; it is not
// restarted.
func (c *Coordinator) startWorker(ctx context.Context, id int, inbox <-chan worker.Command,
	events chan<- worker.Event) {

	spawn := c.spawn
	c.pool.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("worker %d panicked: %v", id, r)
			}
			if err == nil {
				return
			}
			select {
			case events <- worker.Failure{WorkerID: id, Err: err}:
			case <-ctx.Done():
				log.Error().Err(err).Int("worker-id", id).Msg("worker-failed-during-shutdown")
			}
		}()
		log.Debug().Int("worker-id", id).Msg("worker-spawned")
		return spawn(ctx, inbox, events)
	})
}
