package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/backend"
	"envelopes/internal/config"
	"envelopes/internal/core"
	"envelopes/internal/events"
	apphttp "envelopes/internal/http"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}

	logger := newLogger(cfg)
	log.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Server stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Server stopped gracefully")
}

func newLogger(cfg *config.Config) *log.Logger {
	logCfg := log.DefaultConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = level
	}
	logCfg.Format = cfg.LogFormat
	return log.New(logCfg)
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backendCfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return err
	}
	result, err := backend.NewFactory(logger.WithComponent(log.ComponentBackend).Logger).CreateBackend(ctx, backendCfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := result.Cleanup(); err != nil {
			logger.Error("Backend cleanup failed", log.FieldError, err)
		}
	}()

	sink := events.NewFanout(logger.WithComponent(log.ComponentEvents).Logger, result.Sinks...)
	svc := services.NewEnvelopeService(core.NewLedger(), sink, result.Journal, logger)

	opts := apphttp.Options{
		Logger:             logger,
		Currency:           cfg.Currency,
		RateLimitPerMinute: cfg.RateLimitPerMinute,
		IdempotencyTTL:     cfg.IdempotencyTTL,
	}
	if result.Journal != nil {
		opts.ReadinessChecks = map[string]apphttp.ReadinessCheck{
			"journal": result.Journal.Ping,
		}
	}
	srv := apphttp.NewServer(":"+cfg.Port, svc, opts)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("Starting envelopes server",
			"port", cfg.Port,
			"events_backend", backendCfg.EventsBackend,
			"journal_backend", backendCfg.JournalBackend,
			"event_sinks", sink.Len())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down server", log.FieldOperation, log.OpShutdown)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	})

	return g.Wait()
}

