package config

import (
	"errors"
	"testing"
	"time"

	"github.com/matryer/is"
)

func TestDefaultConfig(t *testing.T) {
	is := is.New(t)
	cfg := DefaultConfig()
	is.Equal(cfg.GetUint64(ConfigMaxStoredPrime), uint64(2_000_000))
	is.Equal(cfg.GetUint64(ConfigInitialBatchSize), uint64(10_000))
	is.Equal(cfg.GetUint64(ConfigMinBatchSize), uint64(1_000))
	is.Equal(cfg.GetUint64(ConfigMaxBatchSize), uint64(100_000))
	is.Equal(cfg.GetFloat64(ConfigTargetBatchMs), 500.0)
	is.Equal(cfg.GetDuration(ConfigRateSampleInterval), time.Second)
	is.Equal(cfg.GetInt(ConfigRateWindow), 5)
	is.Equal(cfg.GetBool(ConfigRequeueLostRanges), false)
}

func TestLoadFlags(t *testing.T) {
	is := is.New(t)
	cfg := &Config{}
	err := cfg.Load([]string{"--workers", "3", "--max-batch-size=5000", "--run-for", "2s", "--debug"})
	is.NoErr(err)
	is.Equal(cfg.GetInt(ConfigWorkers), 3)
	is.Equal(cfg.GetUint64(ConfigMaxBatchSize), uint64(5000))
	is.Equal(cfg.GetDuration(ConfigRunFor), 2*time.Second)
	is.True(cfg.GetBool(ConfigDebug))
	// untouched keys keep their defaults
	is.Equal(cfg.GetUint64(ConfigMinBatchSize), uint64(1_000))
}

func TestLoadEnv(t *testing.T) {
	is := is.New(t)
	t.Setenv("PRIMESEARCH_RATE_WINDOW", "9")
	cfg := &Config{}
	is.NoErr(cfg.Load(nil))
	is.Equal(cfg.GetInt(ConfigRateWindow), 9)
}

func TestLoadBadFlag(t *testing.T) {
	is := is.New(t)
	cfg := &Config{}
	err := cfg.Load([]string{"--no-such-flag"})
	is.True(err != nil)
}

func TestInvalid(t *testing.T) {
	is := is.New(t)
	err := Invalid(ConfigWorkers, "must be at least %d", 1)
	is.True(errors.Is(err, ErrInvalid))
	is.Equal(err.Error(), "invalid configuration: workers: must be at least 1")
}
