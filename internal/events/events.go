// Package events describes committed ledger mutations and the sinks that
// receive them (message brokers, the activity journal).
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

type Type string

const (
	EnvelopeCreated     Type = "envelope.created"
	EnvelopeUpdated     Type = "envelope.updated"
	EnvelopeSpent       Type = "envelope.spent"
	EnvelopeDeleted     Type = "envelope.deleted"
	EnvelopeTransferred Type = "envelope.transferred"
	EnvelopeDistributed Type = "envelope.distributed"
)

// Event is the record of one committed ledger operation.
type Event struct {
	ID          string          `json:"id"`
	Type        Type            `json:"type"`
	EnvelopeIDs []int64         `json:"envelopeIds"`
	Amount      float64         `json:"amount"`
	TotalBudget float64         `json:"totalBudget"`
	OccurredAt  time.Time       `json:"occurredAt"`
	Payload     json.RawMessage `json:"payload,omitempty"`
}

// New builds an event with a fresh id. payload is marshalled to JSON; a nil
// payload is omitted.
func New(t Type, amount, totalBudget float64, payload any, envelopeIDs ...int64) (Event, error) {
	evt := Event{
		ID:          uuid.NewString(),
		Type:        t,
		EnvelopeIDs: envelopeIDs,
		Amount:      amount,
		TotalBudget: totalBudget,
		OccurredAt:  time.Now().UTC(),
	}
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return Event{}, fmt.Errorf("marshal %s payload: %w", t, err)
		}
		evt.Payload = raw
	}
	return evt, nil
}

// ToJSON converts the event to JSON bytes
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

func FromJSON(data []byte) (Event, error) {
	var evt Event
	if err := json.Unmarshal(data, &evt); err != nil {
		return Event{}, err
	}
	if evt.ID == "" || evt.Type == "" {
		return Event{}, errors.New("event missing id or type")
	}
	return evt, nil
}

// Sink receives committed events.
type Sink interface {
	Publish(ctx context.Context, evt Event) error
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, evt Event) error

func (f SinkFunc) Publish(ctx context.Context, evt Event) error { return f(ctx, evt) }

// Fanout delivers each event to every sink. Delivery is best effort: a failing
// sink is logged and the remaining sinks still run.
type Fanout struct {
	sinks  []Sink
	logger *slog.Logger
}

func NewFanout(logger *slog.Logger, sinks ...Sink) *Fanout {
	if logger == nil {
		logger = slog.Default()
	}
	return &Fanout{sinks: sinks, logger: logger}
}

// Len returns the number of configured sinks.
func (f *Fanout) Len() int { return len(f.sinks) }

// Publish returns the joined errors of all failing sinks after logging them.
func (f *Fanout) Publish(ctx context.Context, evt Event) error {
	var errs []error
	for _, s := range f.sinks {
		if err := s.Publish(ctx, evt); err != nil {
			f.logger.ErrorContext(ctx, "Failed to deliver ledger event",
				"event_id", evt.ID,
				"event_type", evt.Type,
				"error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
