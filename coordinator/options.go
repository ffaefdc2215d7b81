package coordinator

import (
	"math"
	"runtime"
	"time"

	"github.com/domino14/primesearch/config"
	"github.com/domino14/primesearch/primecache"
)

const (
	DefaultInitialBatchSize = 10_000
	DefaultMinBatchSize     = 1_000
	DefaultMaxBatchSize     = 100_000
	DefaultTargetBatchMs    = 500
	DefaultRateWindow       = 5
	DefaultRateInterval     = time.Second

	fallbackWorkers = 4
)

type Options struct {
	Workers            int
	MaxStoredPrime     uint64
	InitialBatchSize   uint64
	MinBatchSize       uint64
	MaxBatchSize       uint64
	TargetBatchMs      float64
	RateSampleInterval time.Duration
	RateWindow         int
	// RequeueLostRanges re-issues every range whose worker crashed, or that
	// was in flight at Stop. Ranges starting at or below MaxStoredPrime are
	// re-issued either way; when false, only the ones above it are dropped.
	RequeueLostRanges bool
}

func defaultWorkers() int {
	if n := runtime.NumCPU(); n > 0 {
		return n
	}
	return fallbackWorkers
}

func DefaultOptions() Options {
	return Options{
		Workers:            defaultWorkers(),
		MaxStoredPrime:     primecache.DefaultCeiling,
		InitialBatchSize:   DefaultInitialBatchSize,
		MinBatchSize:       DefaultMinBatchSize,
		MaxBatchSize:       DefaultMaxBatchSize,
		TargetBatchMs:      DefaultTargetBatchMs,
		RateSampleInterval: DefaultRateInterval,
		RateWindow:         DefaultRateWindow,
	}
}

// OptionsFromConfig reads the scheduling options out of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	opts := Options{
		Workers:            cfg.GetInt(config.ConfigWorkers),
		MaxStoredPrime:     cfg.GetUint64(config.ConfigMaxStoredPrime),
		InitialBatchSize:   cfg.GetUint64(config.ConfigInitialBatchSize),
		MinBatchSize:       cfg.GetUint64(config.ConfigMinBatchSize),
		MaxBatchSize:       cfg.GetUint64(config.ConfigMaxBatchSize),
		TargetBatchMs:      cfg.GetFloat64(config.ConfigTargetBatchMs),
		RateSampleInterval: cfg.GetDuration(config.ConfigRateSampleInterval),
		RateWindow:         cfg.GetInt(config.ConfigRateWindow),
		RequeueLostRanges:  cfg.GetBool(config.ConfigRequeueLostRanges),
	}
	if opts.Workers <= 0 {
		opts.Workers = defaultWorkers()
	}
	return opts
}

func (o Options) Validate() error {
	switch {
	case o.Workers < 1:
		return config.Invalid(config.ConfigWorkers, "must be at least 1, got %d", o.Workers)
	case o.MinBatchSize < 1:
		return config.Invalid(config.ConfigMinBatchSize, "must be at least 1")
	case o.MinBatchSize > o.MaxBatchSize:
		return config.Invalid(config.ConfigMinBatchSize, "%d is above max-batch-size %d",
			o.MinBatchSize, o.MaxBatchSize)
	case o.InitialBatchSize < o.MinBatchSize || o.InitialBatchSize > o.MaxBatchSize:
		return config.Invalid(config.ConfigInitialBatchSize, "%d is outside [%d, %d]",
			o.InitialBatchSize, o.MinBatchSize, o.MaxBatchSize)
	case o.TargetBatchMs <= 0 || math.IsNaN(o.TargetBatchMs):
		return config.Invalid(config.ConfigTargetBatchMs, "must be positive")
	case o.MaxStoredPrime < primecache.SeedMax:
		return config.Invalid(config.ConfigMaxStoredPrime, "must be at least %d", primecache.SeedMax)
	case o.RateWindow < 1:
		return config.Invalid(config.ConfigRateWindow, "must be at least 1")
	}
	return nil
}

// NextBatchSize scales the previous batch size so the next batch takes
// about TargetBatchMs. A non-positive measurement leaves it unchanged.
func NextBatchSize(prev uint64, computeMs float64, o Options) uint64 {
	if computeMs <= 0 {
		return prev
	}
	next := math.Round(float64(prev) * o.TargetBatchMs / computeMs)
	next = math.Max(next, float64(o.MinBatchSize))
	next = math.Min(next, float64(o.MaxBatchSize))
	return uint64(next)
}
