package backend

import (
	"fmt"

	"envelopes/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	cfg := Config{
		EventsBackend: EventsBackendType(appConfig.EventsBackend),
		AMQPURL:       appConfig.AMQPURL,
		AMQPExchange:  appConfig.AMQPExchange,
		AMQPQueue:     appConfig.AMQPQueue,
		KafkaBrokers:  appConfig.KafkaBrokers,
		KafkaTopic:    appConfig.KafkaTopic,

		JournalBackend: JournalBackendType(appConfig.JournalBackend),
		SQLiteDBPath:   appConfig.SQLiteDBPath,
		PostgresDSN:    appConfig.PostgresDSN,
	}
	if cfg.EventsBackend == "" {
		cfg.EventsBackend = NoEvents
	}
	if cfg.JournalBackend == "" {
		cfg.JournalBackend = NoJournal
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.EventsBackend.IsValid() {
		return fmt.Errorf("invalid events backend: %s", c.EventsBackend)
	}
	if !c.JournalBackend.IsValid() {
		return fmt.Errorf("invalid journal backend: %s", c.JournalBackend)
	}

	switch c.EventsBackend {
	case AMQPEvents:
		if c.AMQPURL == "" {
			return fmt.Errorf("AMQP URL is required for amqp events backend")
		}
	case KafkaEvents:
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("at least one Kafka broker is required for kafka events backend")
		}
		if c.KafkaTopic == "" {
			return fmt.Errorf("Kafka topic is required for kafka events backend")
		}
	}

	switch c.JournalBackend {
	case SQLiteJournal:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite journal")
		}
	case PostgresJournal:
		if c.PostgresDSN == "" {
			return fmt.Errorf("Postgres DSN is required for postgres journal")
		}
	}

	return nil
}
