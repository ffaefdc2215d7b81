package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	ConfigDebug               = "debug"
	ConfigWorkers             = "workers"
	ConfigMaxStoredPrime      = "max-stored-prime"
	ConfigInitialBatchSize    = "initial-batch-size"
	ConfigMinBatchSize        = "min-batch-size"
	ConfigMaxBatchSize        = "max-batch-size"
	ConfigTargetBatchMs       = "target-batch-ms"
	ConfigRateSampleInterval  = "rate-sample-interval"
	ConfigRateWindow          = "rate-window"
	ConfigRequeueLostRanges   = "requeue-lost-ranges"
	ConfigNatsURL             = "nats-url"
	ConfigNatsSubjectPrefix   = "nats-subject-prefix"
	ConfigNatsConnectAttempts = "nats-connect-attempts"
	ConfigNatsConnectDelay    = "nats-connect-delay"
	ConfigMetricsAddr         = "metrics-addr"
	ConfigRunFor              = "run-for"
	ConfigStatusInterval      = "status-interval"
	ConfigHistoryFile         = "history-file"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

type Config struct {
	viper.Viper
	sync.Mutex
}

func setDefaults(v *viper.Viper) {
	v.SetDefault(ConfigDebug, false)
	// 0 means runtime.NumCPU().
	v.SetDefault(ConfigWorkers, 0)
	v.SetDefault(ConfigMaxStoredPrime, 2_000_000)
	v.SetDefault(ConfigInitialBatchSize, 10_000)
	v.SetDefault(ConfigMinBatchSize, 1_000)
	v.SetDefault(ConfigMaxBatchSize, 100_000)
	v.SetDefault(ConfigTargetBatchMs, 500.0)
	v.SetDefault(ConfigRateSampleInterval, time.Second)
	v.SetDefault(ConfigRateWindow, 5)
	v.SetDefault(ConfigRequeueLostRanges, false)
	v.SetDefault(ConfigNatsURL, "")
	v.SetDefault(ConfigNatsSubjectPrefix, "primesearch")
	v.SetDefault(ConfigNatsConnectAttempts, 5)
	v.SetDefault(ConfigNatsConnectDelay, 500*time.Millisecond)
	v.SetDefault(ConfigMetricsAddr, "")
	v.SetDefault(ConfigRunFor, time.Duration(0))
	v.SetDefault(ConfigStatusInterval, 5*time.Second)
	v.SetDefault(ConfigHistoryFile, filepath.Join(os.TempDir(), "primesearch-history.tmp"))
}

// DefaultConfig returns a config holding only the defaults. It is what
// tests and library users get when they don't care about flags.
func DefaultConfig() *Config {
	c := &Config{}
	c.Viper = *viper.New()
	setDefaults(&c.Viper)
	return c
}

// Load parses the given command-line arguments, then layers environment
// variables (PRIMESEARCH_*) and an optional primesearch.yaml on top of the
// defaults. Flags win over everything else.
func (c *Config) Load(args []string) error {
	c.Viper = *viper.New()
	setDefaults(&c.Viper)

	fs := pflag.NewFlagSet("primesearch", pflag.ContinueOnError)
	fs.Bool(ConfigDebug, false, "turn on debug logging")
	fs.Int(ConfigWorkers, 0, "number of compute workers; 0 uses every CPU")
	fs.Uint64(ConfigMaxStoredPrime, 2_000_000, "largest prime kept in the trial-divisor cache")
	fs.Uint64(ConfigInitialBatchSize, 10_000, "size of each worker's first batch")
	fs.Uint64(ConfigMinBatchSize, 1_000, "smallest batch the scheduler will assign")
	fs.Uint64(ConfigMaxBatchSize, 100_000, "largest batch the scheduler will assign")
	fs.Float64(ConfigTargetBatchMs, 500, "wall-clock time each batch should take, in milliseconds")
	fs.Duration(ConfigRateSampleInterval, time.Second, "minimum time between primes-per-second samples")
	fs.Int(ConfigRateWindow, 5, "number of primes-per-second samples averaged")
	fs.Bool(ConfigRequeueLostRanges, false, "also re-issue lost ranges above max-stored-prime")
	fs.String(ConfigNatsURL, "", "broadcast results to this NATS server; empty disables")
	fs.String(ConfigNatsSubjectPrefix, "primesearch", "subject prefix for NATS broadcasts")
	fs.Int(ConfigNatsConnectAttempts, 5, "attempts when dialing NATS")
	fs.Duration(ConfigNatsConnectDelay, 500*time.Millisecond, "delay between NATS dial attempts")
	fs.String(ConfigMetricsAddr, "", "serve Prometheus metrics on this address; empty disables")
	fs.Duration(ConfigRunFor, 0, "stop the search after this long; 0 runs until interrupted")
	fs.Duration(ConfigStatusInterval, 5*time.Second, "how often the headless runner logs status")
	fs.String(ConfigHistoryFile, c.GetString(ConfigHistoryFile), "readline history file for the shell")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if err := c.BindPFlags(fs); err != nil {
		return err
	}

	c.SetEnvPrefix("primesearch")
	c.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.AutomaticEnv()

	c.SetConfigName("primesearch")
	c.SetConfigType("yaml")
	c.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		c.AddConfigPath(filepath.Join(home, ".primesearch"))
	}
	if err := c.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return fmt.Errorf("reading config file: %w", err)
		}
	}
	return nil
}

// SanitizedSettings returns every setting, suitable for logging.
func (c *Config) SanitizedSettings() map[string]any {
	c.Lock()
	defer c.Unlock()
	return c.AllSettings()
}

// Invalid builds an ErrInvalid for the given key.
func Invalid(key string, format string, args ...any) error {
	return fmt.Errorf("%w: %s: %s", ErrInvalid, key, fmt.Sprintf(format, args...))
}
