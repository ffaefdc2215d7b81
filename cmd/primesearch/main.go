package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/pbnjay/memory"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"github.com/domino14/primesearch/broadcast"
	"github.com/domino14/primesearch/config"
	"github.com/domino14/primesearch/coordinator"
	"github.com/domino14/primesearch/metrics"
	"github.com/domino14/primesearch/primecache"
)

var (
	GitVersion string
)

const (
	GracefulShutdownTimeout = 5 * time.Second
)

func setupLogging(debug bool) {
	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}
	zerolog.SetGlobalLevel(level)
	logger := zerolog.New(output).Level(level).With().Timestamp().Logger()
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
}

// checkMemory warns when the prime cache could take a large share of RAM.
func checkMemory(ceiling uint64) {
	need := primecache.EstimatedBytes(ceiling)
	total := memory.TotalMemory()
	if total == 0 {
		return
	}
	evt := log.Debug()
	if need > total/4 {
		evt = log.Warn()
	}
	evt.Uint64("cache-bytes", need).Uint64("total-memory", total).
		Uint64("max-stored-prime", ceiling).Msg("prime-cache-memory-estimate")
}

func main() {
	cfg := &config.Config{}
	if err := cfg.Load(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	setupLogging(cfg.GetBool(config.ConfigDebug))
	log.Info().Str("version", GitVersion).Interface("config", cfg.SanitizedSettings()).Msg("loaded-config")
	os.Exit(run(cfg))
}

// run does the search and returns the exit code, so that every deferred
// cleanup has finished before main exits.
func run(cfg *config.Config) int {
	opts := coordinator.OptionsFromConfig(cfg)
	if err := opts.Validate(); err != nil {
		log.Error().Err(err).Msg("bad-options")
		return 1
	}
	checkMemory(opts.MaxStoredPrime)
	coord := coordinator.New(opts)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if url := cfg.GetString(config.ConfigNatsURL); url != "" {
		nc, err := broadcast.Connect(ctx, url, broadcast.ConnectOptions{
			Attempts: uint(cfg.GetInt(config.ConfigNatsConnectAttempts)),
			Delay:    cfg.GetDuration(config.ConfigNatsConnectDelay),
		})
		if err != nil {
			log.Error().Err(err).Msg("nats-unavailable")
			return 1
		}
		pub := broadcast.NewPublisher(nc, cfg.GetString(config.ConfigNatsSubjectPrefix),
			func() string { return coord.Statistics().RunID })
		coord.AddObserver(pub)
		defer func() {
			if err := pub.Close(); err != nil {
				log.Err(err).Msg("nats-close")
			}
		}()
	}

	if addr := cfg.GetString(config.ConfigMetricsAddr); addr != "" {
		exporter := metrics.NewExporter()
		coord.AddObserver(exporter)
		mux := http.NewServeMux()
		mux.Handle("/metrics", exporter.Handler())
		srv := &http.Server{Addr: addr, Handler: mux}
		go func() {
			log.Info().Str("addr", addr).Msg("serving-metrics")
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("metrics-server")
			}
		}()
		defer func() {
			sctx, scancel := context.WithTimeout(context.Background(), GracefulShutdownTimeout)
			defer scancel()
			if err := srv.Shutdown(sctx); err != nil {
				log.Err(err).Msg("metrics-server-shutdown")
			}
		}()
	}

	if d := cfg.GetDuration(config.ConfigRunFor); d > 0 {
		var runCancel context.CancelFunc
		ctx, runCancel = context.WithTimeout(ctx, d)
		defer runCancel()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("received-shutdown-signal")
			cancel()
		case <-ctx.Done():
		}
	}()

	if iv := cfg.GetDuration(config.ConfigStatusInterval); iv > 0 {
		go func() {
			t := time.NewTicker(iv)
			defer t.Stop()
			for {
				select {
				case <-ctx.Done():
					return
				case <-t.C:
					st := coord.Statistics()
					log.Info().Uint64("primes", st.TotalPrimesFound).Uint64("largest", st.LargestPrime).
						Uint64("highest-checked", st.HighestNumberChecked).
						Float64("primes-per-second", st.PrimesPerSecond).Msg("status")
				}
			}
		}()
	}

	if err := coord.Run(ctx); err != nil {
		log.Error().Err(err).Msg("search-failed")
		return 1
	}

	summary, err := yaml.Marshal(coord.Statistics())
	if err != nil {
		log.Error().Err(err).Msg("summary")
		return 1
	}
	fmt.Print(string(summary))
	return 0
}
