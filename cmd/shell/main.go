package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/domino14/primesearch/broadcast"
	"github.com/domino14/primesearch/config"
	"github.com/domino14/primesearch/metrics"
	"github.com/domino14/primesearch/shell"
)

var (
	GitVersion string
)

//go:embed banner.txt
var banner string

func main() {
	fmt.Println(banner)
	fmt.Println(GitVersion)

	cfg := &config.Config{}
	args := os.Args[1:]
	if err := cfg.Load(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	output := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	output.FormatLevel = func(i interface{}) string {
		return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
	}
	output.FormatMessage = func(i interface{}) string {
		return fmt.Sprintf("%s", i)
	}
	output.FormatFieldName = func(i interface{}) string {
		return fmt.Sprintf("%s:", i)
	}

	var logger zerolog.Logger
	if cfg.GetBool(config.ConfigDebug) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		logger = zerolog.New(output).Level(zerolog.DebugLevel).With().Timestamp().Logger()
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		logger = zerolog.New(output).Level(zerolog.InfoLevel).With().Timestamp().Logger()
	}
	zerolog.DefaultContextLogger = &logger
	log.Logger = logger
	logger.Debug().Msg("Debug logging is on")
	log.Info().Msgf("Loaded config: %v", cfg.SanitizedSettings())

	sc, err := shell.NewShellController(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("could not start shell")
	}
	coord := sc.Coordinator()

	if addr := cfg.GetString(config.ConfigMetricsAddr); addr != "" {
		exporter := metrics.NewExporter()
		coord.AddObserver(exporter)
		go func() {
			if err := http.ListenAndServe(addr, exporter.Handler()); err != nil &&
				!errors.Is(err, http.ErrServerClosed) {
				log.Err(err).Msg("metrics-server")
			}
		}()
	}
	if url := cfg.GetString(config.ConfigNatsURL); url != "" {
		nc, err := broadcast.Connect(context.Background(), url, broadcast.ConnectOptions{
			Attempts: uint(cfg.GetInt(config.ConfigNatsConnectAttempts)),
			Delay:    cfg.GetDuration(config.ConfigNatsConnectDelay),
			Name:     "primesearch-shell",
		})
		if err != nil {
			log.Err(err).Msg("broadcast disabled")
		} else {
			pub := broadcast.NewPublisher(nc, cfg.GetString(config.ConfigNatsSubjectPrefix),
				func() string { return coord.Statistics().RunID })
			coord.AddObserver(pub)
			defer func() {
				if err := pub.Close(); err != nil {
					log.Err(err).Msg("nats-close")
				}
			}()
		}
	}

	idleConnsClosed := make(chan struct{})
	sig := make(chan os.Signal, 1)
	go func() {
		signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
		<-sig
		// We received an interrupt signal, shut down.
		log.Info().Msg("got quit signal...")
		close(idleConnsClosed)
	}()

	go sc.Loop(sig)

	<-idleConnsClosed

	sc.Cleanup()
	log.Info().Msg("shell exiting")
}
