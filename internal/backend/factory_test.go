package backend

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"envelopes/internal/config"
	"envelopes/internal/events"
)

func TestFromAppConfig(t *testing.T) {
	if _, err := FromAppConfig(nil); err == nil {
		t.Fatal("expected error for nil config")
	}

	cfg, err := FromAppConfig(&config.Config{
		EventsBackend:  "kafka",
		KafkaBrokers:   []string{"localhost:9092"},
		KafkaTopic:     "ledger_events",
		JournalBackend: "sqlite",
		SQLiteDBPath:   "./data/envelopes.db",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.EventsBackend != KafkaEvents || cfg.JournalBackend != SQLiteJournal {
		t.Errorf("unexpected backend config %+v", cfg)
	}

	cfg, err = FromAppConfig(&config.Config{})
	if err != nil {
		t.Fatalf("empty config should default to none: %v", err)
	}
	if cfg.EventsBackend != NoEvents || cfg.JournalBackend != NoJournal {
		t.Errorf("expected none backends, got %+v", cfg)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{"none", Config{EventsBackend: NoEvents, JournalBackend: NoJournal}, ""},
		{"bad events", Config{EventsBackend: "smoke", JournalBackend: NoJournal}, "invalid events backend"},
		{"bad journal", Config{EventsBackend: NoEvents, JournalBackend: "paper"}, "invalid journal backend"},
		{"amqp without url", Config{EventsBackend: AMQPEvents, JournalBackend: NoJournal}, "AMQP URL is required"},
		{"kafka without brokers", Config{EventsBackend: KafkaEvents, KafkaTopic: "t", JournalBackend: NoJournal}, "Kafka broker"},
		{"kafka without topic", Config{EventsBackend: KafkaEvents, KafkaBrokers: []string{"k:1"}, JournalBackend: NoJournal}, "Kafka topic"},
		{"sqlite without path", Config{EventsBackend: NoEvents, JournalBackend: SQLiteJournal}, "SQLite database path"},
		{"postgres without dsn", Config{EventsBackend: NoEvents, JournalBackend: PostgresJournal}, "Postgres DSN"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestFactory_NoBackends(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		EventsBackend:  NoEvents,
		JournalBackend: NoJournal,
	})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if len(result.Sinks) != 0 || result.Journal != nil {
		t.Errorf("expected no sinks and no journal, got %+v", result)
	}
	if err := result.Cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}

func TestFactory_SQLiteJournal(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		EventsBackend:  NoEvents,
		JournalBackend: SQLiteJournal,
		SQLiteDBPath:   filepath.Join(t.TempDir(), "journal.db"),
	})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	defer result.Cleanup()

	if result.Journal == nil || len(result.Sinks) != 1 {
		t.Fatalf("expected the journal as the only sink, got %+v", result)
	}

	evt, _ := events.New(events.EnvelopeCreated, 10, 10, nil, 1)
	if err := events.NewFanout(nil, result.Sinks...).Publish(context.Background(), evt); err != nil {
		t.Fatalf("publish: %v", err)
	}
	got, err := result.Journal.Recent(context.Background(), 10)
	if err != nil || len(got) != 1 || got[0].ID != evt.ID {
		t.Fatalf("expected journaled event, got %v (err %v)", got, err)
	}
}

func TestFactory_KafkaPublisherIsLazy(t *testing.T) {
	result, err := NewFactory(nil).CreateBackend(context.Background(), Config{
		EventsBackend:  KafkaEvents,
		KafkaBrokers:   []string{"127.0.0.1:1"},
		KafkaTopic:     "ledger_events",
		JournalBackend: NoJournal,
	})
	if err != nil {
		t.Fatalf("create backend: %v", err)
	}
	if len(result.Sinks) != 1 {
		t.Fatalf("expected kafka sink, got %d sinks", len(result.Sinks))
	}
	if err := result.Cleanup(); err != nil {
		t.Errorf("cleanup: %v", err)
	}
}
