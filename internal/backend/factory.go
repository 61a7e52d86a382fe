package backend

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"envelopes/internal/amqp"
	"envelopes/internal/events"
	"envelopes/internal/kafka"
	"envelopes/internal/storage"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger: logger,
	}
}

// CreateBackend implements Factory.CreateBackend. A broker that cannot be
// reached at startup is logged and skipped; a journal that cannot be opened
// is an error.
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var closers []func() error
	result := &BackendResult{}

	switch config.EventsBackend {
	case AMQPEvents:
		client, err := amqp.NewClient(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
		if err != nil {
			f.logger.Warn("Failed to initialize AMQP client, continuing without event publishing", "error", err)
		} else {
			f.logger.Info("Initialized AMQP publisher",
				"exchange", config.AMQPExchange,
				"queue", config.AMQPQueue)
			result.Sinks = append(result.Sinks, client)
			closers = append(closers, client.Close)
		}
	case KafkaEvents:
		publisher := kafka.NewPublisher(config.KafkaBrokers, config.KafkaTopic)
		f.logger.Info("Initialized Kafka publisher",
			"brokers", config.KafkaBrokers,
			"topic", config.KafkaTopic)
		result.Sinks = append(result.Sinks, publisher)
		closers = append(closers, publisher.Close)
	}

	journal, err := f.createJournal(ctx, config)
	if err != nil {
		runClosers(closers)
		return nil, err
	}
	if journal != nil {
		result.Journal = journal
		result.Sinks = append(result.Sinks, journal)
		closers = append(closers, journal.Close)
	}

	result.Cleanup = func() error {
		return runClosers(closers)
	}
	return result, nil
}

func (f *DefaultFactory) createJournal(_ context.Context, config Config) (*storage.Journal, error) {
	switch config.JournalBackend {
	case SQLiteJournal:
		j, err := storage.OpenSQLite(config.SQLiteDBPath)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize SQLite journal: %w", err)
		}
		f.logger.Info("Initialized SQLite activity journal", "db_path", config.SQLiteDBPath)
		return j, nil
	case PostgresJournal:
		j, err := storage.OpenPostgres(config.PostgresDSN)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize Postgres journal: %w", err)
		}
		f.logger.Info("Initialized Postgres activity journal")
		return j, nil
	default:
		return nil, nil
	}
}

// runClosers closes in reverse order of creation.
func runClosers(closers []func() error) error {
	var errs []error
	for i := len(closers) - 1; i >= 0; i-- {
		if err := closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var _ events.Sink = (*storage.Journal)(nil)
