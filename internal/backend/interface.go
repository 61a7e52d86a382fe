package backend

import (
	"context"

	"envelopes/internal/events"
)

// Journal is an activity journal that can also be listed.
type Journal interface {
	events.Sink
	Recent(ctx context.Context, limit int) ([]events.Event, error)
	Ping(ctx context.Context) error
}

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// BackendResult contains the configured event sinks, the optional journal and
// a cleanup function releasing all of them.
type BackendResult struct {
	Sinks   []events.Sink
	Journal Journal
	Cleanup CleanupFunc
}

// Factory creates backends based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	EventsBackend EventsBackendType
	AMQPURL       string
	AMQPExchange  string
	AMQPQueue     string
	KafkaBrokers  []string
	KafkaTopic    string

	JournalBackend JournalBackendType
	SQLiteDBPath   string
	PostgresDSN    string
}

// EventsBackendType selects where ledger events are published
type EventsBackendType string

const (
	NoEvents    EventsBackendType = "none"
	AMQPEvents  EventsBackendType = "amqp"
	KafkaEvents EventsBackendType = "kafka"
)

func (bt EventsBackendType) String() string {
	return string(bt)
}

func (bt EventsBackendType) IsValid() bool {
	switch bt {
	case NoEvents, AMQPEvents, KafkaEvents:
		return true
	default:
		return false
	}
}

// JournalBackendType selects the activity journal storage
type JournalBackendType string

const (
	NoJournal       JournalBackendType = "none"
	SQLiteJournal   JournalBackendType = "sqlite"
	PostgresJournal JournalBackendType = "postgres"
)

func (bt JournalBackendType) String() string {
	return string(bt)
}

func (bt JournalBackendType) IsValid() bool {
	switch bt {
	case NoJournal, SQLiteJournal, PostgresJournal:
		return true
	default:
		return false
	}
}
