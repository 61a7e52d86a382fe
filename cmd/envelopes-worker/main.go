package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"envelopes/internal/amqp"
	"envelopes/internal/cache"
	"envelopes/internal/config"
	"envelopes/internal/log"
	gsheet "envelopes/internal/sheets/google"
	"envelopes/internal/worker"
)

const (
	statsInterval   = 5 * time.Minute
	cleanupInterval = 10 * time.Minute
	startupTimeout  = 30 * time.Second
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	config.LoadEnvFile()

	cfg, err := config.Load()
	if err != nil {
		log.New(log.DefaultConfig()).Error("Failed to load configuration", log.FieldError, err)
		os.Exit(1)
	}

	logCfg := log.DefaultConfig()
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		logCfg.Level = level
	}
	logCfg.Format = cfg.LogFormat
	logCfg.Component = log.ComponentWorker
	logger := log.New(logCfg)
	log.SetDefault(logger)

	logger.Info("Starting envelopes-worker")

	if err := cfg.ValidateWorker(); err != nil {
		logger.Error("Configuration validation failed",
			log.FieldError, err,
			log.FieldErrorType, log.ErrorTypeConfiguration)
		os.Exit(1)
	}

	if err := run(cfg, logger); err != nil {
		logger.Error("Worker stopped with error", log.FieldError, err)
		os.Exit(1)
	}
	logger.Info("Worker shutdown complete")
}

func run(cfg *config.Config, logger *log.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	startCtx, cancel := context.WithTimeout(ctx, startupTimeout)
	defer cancel()

	sheetsClient, err := gsheet.New(startCtx, gsheet.Config{
		SpreadsheetID:      cfg.GoogleSpreadsheetID,
		SheetName:          cfg.GoogleSheetName,
		ServiceAccountFile: cfg.GoogleServiceAccountFile,
		ServiceAccountJSON: cfg.GoogleServiceAccountJSON,
	})
	if err != nil {
		return err
	}
	if err := sheetsClient.Ping(startCtx); err != nil {
		return err
	}
	logger.Info("Google Sheets client initialized",
		"spreadsheet_id", cfg.GoogleSpreadsheetID,
		"sheet", cfg.GoogleSheetName)

	amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		return err
	}
	defer amqpClient.Close()
	logger.Info("Connected to AMQP broker",
		"exchange", cfg.AMQPExchange,
		"queue", cfg.AMQPQueue)

	exportWorker := worker.NewExportWorker(sheetsClient, logger)

	caches := cache.NewManager(logger.Logger)
	caches.Register(exportWorker)
	caches.StartCleanup(cleanupInterval)
	defer caches.Stop()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		err := amqpClient.ConsumeWithReconnect(gctx, exportWorker.HandleEvent)
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		exportWorker.ReportStats(gctx, statsInterval)
		return nil
	})

	err = g.Wait()
	stats := exportWorker.Stats()
	logger.Info("Export totals",
		"exported", stats.Exported,
		"duplicates", stats.Duplicates,
		"failed", stats.Failed)
	return err
}
