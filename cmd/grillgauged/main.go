package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/teosibileau/grillgauge/internal/config"
	"github.com/teosibileau/grillgauge/internal/errors"
	"github.com/teosibileau/grillgauge/internal/logger"
	"github.com/teosibileau/grillgauge/internal/pid"
	"github.com/teosibileau/grillgauge/internal/registry"
	"github.com/teosibileau/grillgauge/internal/server"
	"github.com/teosibileau/grillgauge/internal/session"
	"github.com/teosibileau/grillgauge/internal/supervisor"
	"github.com/teosibileau/grillgauge/internal/telemetry"
	"github.com/teosibileau/grillgauge/internal/transport"
)

const shutdownTimeout = 10 * time.Second

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.EffectiveLogLevel(), logger.IsService())
	logger.Debug().Msg("Config loaded")

	store, err := registry.Open(registry.Config{DBPath: cfg.Database})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to open probe registry")
	}
	defer store.Close()

	radio, err := transport.NewBluez()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to enable bluetooth adapter")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	if cfg.Scan {
		if err := runScan(ctx, cfg, store, radio); err != nil {
			logger.Fatal().Err(err).Msg("scan failed")
		}
		return
	}

	if err := pid.Write(); err != nil {
		logger.Fatal().Err(err).Msg("failed to write PID file")
	}
	defer func() {
		if err := pid.Remove(); err != nil {
			logger.Warn().Err(err).Msg("failed to remove PID file")
		}
	}()

	sink := telemetry.NewPrometheusSink()
	cache := telemetry.NewCache(sink)

	sup := supervisor.New(store, radio, radio, cache, supervisor.Config{
		HealthInterval:   cfg.HealthIntervalDuration(),
		DiscoveryTimeout: cfg.DiscoveryTimeoutDuration(),
		ServiceFilter:    supervisor.DefaultConfig().ServiceFilter,
		Session: session.Config{
			ConnectTimeout:   cfg.ConnectTimeoutDuration(),
			SubscribeTimeout: cfg.SubscribeTimeoutDuration(),
			BackoffBase:      cfg.BackoffBaseDuration(),
			MaxAttempts:      cfg.MaxAttempts,
		},
	})

	if err := sup.Bootstrap(ctx); err != nil {
		logger.Fatal().Err(err).Msg("bootstrap failed")
	}

	srv := server.New(cfg.Listen, sink.Gatherer(), sup)
	go func() {
		if err := srv.Start(); err != nil {
			logError(err, "metrics server failed")
			cancel()
		}
	}()

	if err := sup.Run(ctx); err != nil {
		logError(err, "health loop failed")
	}

	shutdown(srv, sup)
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func shutdown(srv *server.Server, sup *supervisor.Supervisor) {
	shCtx, shCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shCancel()

	if err := srv.Shutdown(shCtx); err != nil {
		logError(err, "server shutdown failed")
	}
	if err := sup.Shutdown(shutdownTimeout); err != nil {
		logError(err, "supervisor shutdown failed")
	}
	logger.Info().Msg("Exiting...")
}

// logError routes coded errors through the structured error_code field.
func logError(err error, msg string) {
	var coded errors.Error
	if errors.As(err, &coded) {
		logger.ErrorWithCode(coded).Msg(msg)
		return
	}
	logger.Error().Err(err).Msg(msg)
}
