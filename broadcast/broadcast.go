// Package broadcast publishes what the coordinator reports onto NATS, so
// dashboards and other processes can follow a search without being in the
// same binary. It only ever publishes; no work is taken from NATS.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/domino14/primesearch/coordinator"
)

const (
	SubjectPrimes  = "primes"
	SubjectStats   = "stats"
	SubjectWorkers = "workers"

	// RunIDHeader is set on every message.
	RunIDHeader = "Run-Id"
)

type ConnectOptions struct {
	Attempts uint
	Delay    time.Duration
	Name     string
}

// Connect dials the NATS server, retrying on failure.
func Connect(ctx context.Context, url string, opts ConnectOptions) (*nats.Conn, error) {
	if opts.Attempts == 0 {
		opts.Attempts = 1
	}
	name := opts.Name
	if name == "" {
		name = "primesearch"
	}
	var nc *nats.Conn
	err := retry.Do(
		func() error {
			var err error
			nc, err = nats.Connect(url, nats.Name(name))
			return err
		},
		retry.Context(ctx),
		retry.Attempts(opts.Attempts),
		retry.Delay(opts.Delay),
		retry.DelayType(retry.FixedDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Warn().Err(err).Uint("n", n).Str("url", url).Msg("nats-connect-failed-retrying")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to nats at %s: %w", url, err)
	}
	log.Info().Str("url", nc.ConnectedUrl()).Msg("connected-to-nats")
	return nc, nil
}

// Publisher is a coordinator.Observer that sends everything it sees to
// <prefix>.primes, <prefix>.stats and <prefix>.workers as JSON.
type Publisher struct {
	nc     *nats.Conn
	prefix string
	runID  func() string
}

// NewPublisher builds a publisher. runID is asked for the current run on
// every message; it may be nil.
func NewPublisher(nc *nats.Conn, prefix string, runID func() string) *Publisher {
	return &Publisher{nc: nc, prefix: prefix, runID: runID}
}

func (p *Publisher) Subject(kind string) string {
	return p.prefix + "." + kind
}

func (p *Publisher) PrimesDiscovered(primes []uint64) {
	p.publish(SubjectPrimes, primes)
}

func (p *Publisher) StatisticsUpdated(stats coordinator.Statistics) {
	p.publish(SubjectStats, stats)
}

func (p *Publisher) WorkerStatesUpdated(states []coordinator.WorkerState) {
	p.publish(SubjectWorkers, states)
}

// publish never fails the caller; a broken broadcast must not stop a search.
func (p *Publisher) publish(kind string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		log.Err(err).Str("kind", kind).Msg("broadcast-marshal-failed")
		return
	}
	msg := nats.NewMsg(p.Subject(kind))
	msg.Data = data
	if p.runID != nil {
		msg.Header.Set(RunIDHeader, p.runID())
	}
	if err := p.nc.PublishMsg(msg); err != nil {
		log.Err(err).Str("subject", msg.Subject).Msg("broadcast-publish-failed")
	}
}

// Close flushes anything pending and closes the connection.
func (p *Publisher) Close() error {
	if err := p.nc.Drain(); err != nil {
		return fmt.Errorf("draining nats: %w", err)
	}
	return nil
}
