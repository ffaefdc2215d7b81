package coordinator

import (
	"errors"
	"testing"

	"github.com/matryer/is"

	"github.com/domino14/primesearch/config"
)

func TestNextBatchSize(t *testing.T) {
	is := is.New(t)
	opts := DefaultOptions()
	type tc struct {
		prev      uint64
		computeMs float64
		expected  uint64
	}
	cases := []tc{
		{10_000, 500, 10_000},
		{10_000, 250, 20_000},
		{10_000, 1000, 5_000},
		{1_000, 333, 1_502},
		// clamped
		{10_000, 10, 100_000},
		{10_000, 100_000, 1_000},
		// degenerate timing leaves the size alone, even outside the bounds
		{10_000, 0, 10_000},
		{10_000, -3, 10_000},
		{3, 0, 3},
	}
	for _, c := range cases {
		is.Equal(NextBatchSize(c.prev, c.computeMs, opts), c.expected)
	}
}

func TestValidate(t *testing.T) {
	is := is.New(t)
	is.NoErr(DefaultOptions().Validate())

	mutations := []func(*Options){
		func(o *Options) { o.Workers = 0 },
		func(o *Options) { o.MinBatchSize = 0 },
		func(o *Options) { o.MinBatchSize = 200_000 },
		func(o *Options) { o.InitialBatchSize = 10 },
		func(o *Options) { o.InitialBatchSize = 1_000_000 },
		func(o *Options) { o.TargetBatchMs = 0 },
		func(o *Options) { o.MaxStoredPrime = 10 },
		func(o *Options) { o.RateWindow = 0 },
	}
	for _, mutate := range mutations {
		o := DefaultOptions()
		mutate(&o)
		is.True(errors.Is(o.Validate(), config.ErrInvalid))
	}
}

func TestOptionsFromConfig(t *testing.T) {
	is := is.New(t)
	cfg := &config.Config{}
	is.NoErr(cfg.Load([]string{"--workers=3", "--initial-batch-size=2000", "--requeue-lost-ranges"}))
	opts := OptionsFromConfig(cfg)
	is.Equal(opts.Workers, 3)
	is.Equal(opts.InitialBatchSize, uint64(2000))
	is.Equal(opts.MaxBatchSize, uint64(DefaultMaxBatchSize))
	is.True(opts.RequeueLostRanges)
	is.NoErr(opts.Validate())

	// workers=0 means one per CPU
	opts = OptionsFromConfig(config.DefaultConfig())
	is.True(opts.Workers >= 1)
}
