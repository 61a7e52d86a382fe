package services

import (
	"context"
	"errors"
	"sync"

	"envelopes/internal/core"
	"envelopes/internal/events"
	"envelopes/internal/log"
)

// ActivityReader lists journaled ledger events, newest first.
type ActivityReader interface {
	Recent(ctx context.Context, limit int) ([]events.Event, error)
}

// ErrNoJournal is returned by Activity when no journal is configured.
var ErrNoJournal = errors.New("activity journal is not configured")

// EnvelopeService runs ledger operations and publishes an event for every
// committed mutation. Publishing is best effort and never fails an operation.
type EnvelopeService struct {
	// mu pairs each mutation with the total it produced.
	mu      sync.Mutex
	ledger  *core.Ledger
	sink    events.Sink
	journal ActivityReader
	logger  *log.StructuredLogger
}

// NewEnvelopeService wires a ledger to its event sink. sink and journal may be
// nil.
func NewEnvelopeService(ledger *core.Ledger, sink events.Sink, journal ActivityReader, logger *log.Logger) *EnvelopeService {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &EnvelopeService{
		ledger:  ledger,
		sink:    sink,
		journal: journal,
		logger:  log.NewStructuredLogger(logger),
	}
}

func (s *EnvelopeService) List(_ context.Context) core.Snapshot {
	return s.ledger.List()
}

func (s *EnvelopeService) Get(_ context.Context, id int64) (core.Envelope, error) {
	return s.ledger.Get(id)
}

func (s *EnvelopeService) Create(ctx context.Context, title string, budget *float64) (core.Envelope, error) {
	s.mu.Lock()
	env, err := s.ledger.Create(title, budget)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpCreate, err)
		return core.Envelope{}, err
	}
	s.committed(ctx, log.OpCreate, events.EnvelopeCreated, env.Budget, total, env, env.ID)
	return env, nil
}

func (s *EnvelopeService) Update(ctx context.Context, id int64, title *string, budget *float64) (core.Envelope, error) {
	s.mu.Lock()
	env, err := s.ledger.Update(id, title, budget)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpUpdate, err)
		return core.Envelope{}, err
	}
	s.committed(ctx, log.OpUpdate, events.EnvelopeUpdated, env.Budget, total, env, env.ID)
	return env, nil
}

func (s *EnvelopeService) Subtract(ctx context.Context, id int64, amount *float64) (core.Envelope, error) {
	s.mu.Lock()
	env, err := s.ledger.Subtract(id, amount)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpSubtract, err)
		return core.Envelope{}, err
	}
	s.committed(ctx, log.OpSubtract, events.EnvelopeSpent, *amount, total, env, env.ID)
	return env, nil
}

func (s *EnvelopeService) Delete(ctx context.Context, id int64) (core.Envelope, error) {
	s.mu.Lock()
	env, err := s.ledger.Delete(id)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpDelete, err)
		return core.Envelope{}, err
	}
	s.committed(ctx, log.OpDelete, events.EnvelopeDeleted, env.Budget, total, env, env.ID)
	return env, nil
}

func (s *EnvelopeService) Transfer(ctx context.Context, from, to int64, amount *float64) (core.Transfer, error) {
	s.mu.Lock()
	tr, err := s.ledger.Transfer(from, to, amount)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpTransfer, err)
		return core.Transfer{}, err
	}
	s.committed(ctx, log.OpTransfer, events.EnvelopeTransferred, tr.Amount, total, tr, from, to)
	return tr, nil
}

func (s *EnvelopeService) Distribute(ctx context.Context, amount *float64, ds []core.Distribution) (core.DistributionResult, error) {
	s.mu.Lock()
	res, err := s.ledger.Distribute(amount, ds)
	total := s.ledger.TotalBudget()
	s.mu.Unlock()
	if err != nil {
		s.rejected(ctx, log.OpDistribute, err)
		return core.DistributionResult{}, err
	}
	ids := make([]int64, len(res.Shares))
	for i, share := range res.Shares {
		ids[i] = share.ID
	}
	s.committed(ctx, log.OpDistribute, events.EnvelopeDistributed, res.TotalDistributed, total, res, ids...)
	return res, nil
}

// Activity returns the most recent journaled events.
func (s *EnvelopeService) Activity(ctx context.Context, limit int) ([]events.Event, error) {
	if s.journal == nil {
		return nil, ErrNoJournal
	}
	return s.journal.Recent(ctx, limit)
}

func (s *EnvelopeService) committed(ctx context.Context, op string, t events.Type, amount, total float64, payload any, ids ...int64) {
	s.logger.LogLedgerMutation(ctx, op, ids, amount, total)

	if s.sink == nil {
		return
	}
	evt, err := events.New(t, amount, total, payload, ids...)
	if err != nil {
		s.logger.LogError(ctx, "Failed to build ledger event", err, log.ComponentEvents, op, nil)
		return
	}
	// The mutation is already committed; delivery failures are only logged.
	if err := s.sink.Publish(ctx, evt); err != nil {
		s.logger.LogError(ctx, "Failed to publish ledger event", err, log.ComponentEvents, log.OpPublish,
			log.NewFields().WithEvent(evt.ID, string(evt.Type)))
	}
}

func (s *EnvelopeService) rejected(ctx context.Context, op string, err error) {
	s.logger.LogRejected(ctx, op, ErrorType(err), err)
}

// ErrorType classifies a ledger error for logging.
func ErrorType(err error) string {
	switch {
	case errors.Is(err, core.ErrValidation):
		return log.ErrorTypeValidation
	case errors.Is(err, core.ErrNotFound):
		return log.ErrorTypeNotFound
	case errors.Is(err, core.ErrInsufficientFunds):
		return log.ErrorTypeInsufficientFunds
	default:
		return log.ErrorTypeInternal
	}
}
