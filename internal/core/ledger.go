// Package core holds the envelope ledger: the in-memory set of budget
// envelopes and the running total across them.
//
// Every exported Ledger method runs under a single mutex, so each operation
// is one atomic step and the total never disagrees with the envelopes it
// summarises. Values handed back to callers are copies.
package core

import (
	"strings"
	"sync"

	"github.com/shopspring/decimal"
)

// percentageTolerance is the absolute slack allowed around 100% when
// validating a distribution.
var percentageTolerance = decimal.RequireFromString("0.01")

var hundred = decimal.NewFromInt(100)

type Ledger struct {
	mu          sync.Mutex
	envelopes   map[int64]*Envelope
	order       []int64
	totalBudget float64
	nextID      int64
}

// NewLedger returns an empty ledger whose first envelope gets id 1.
func NewLedger() *Ledger {
	return &Ledger{
		envelopes: make(map[int64]*Envelope),
		nextID:    1,
	}
}

// Create appends a new envelope and adds its budget to the total.
func (l *Ledger) Create(title string, budget *float64) (Envelope, error) {
	if strings.TrimSpace(title) == "" || budget == nil {
		return Envelope{}, invalid("title", "title and budget are required")
	}
	if err := validateTitle(title); err != nil {
		return Envelope{}, err
	}
	if err := validateBudget(budget); err != nil {
		return Envelope{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := checkFinite("budget", l.totalBudget+*budget); err != nil {
		return Envelope{}, err
	}

	env := &Envelope{ID: l.nextID, Title: title, Budget: *budget}
	l.nextID++
	l.envelopes[env.ID] = env
	l.order = append(l.order, env.ID)
	l.totalBudget += env.Budget
	return *env, nil
}

func (l *Ledger) Get(id int64) (Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	env, ok := l.envelopes[id]
	if !ok {
		return Envelope{}, &NotFoundError{ID: id, Role: "envelope"}
	}
	return *env, nil
}

// List returns the total and every envelope in creation order.
func (l *Ledger) List() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := Snapshot{
		TotalBudget: l.totalBudget,
		Envelopes:   make([]Envelope, 0, len(l.order)),
	}
	for _, id := range l.order {
		out.Envelopes = append(out.Envelopes, *l.envelopes[id])
	}
	return out
}

// TotalBudget returns the sum of all envelope budgets.
func (l *Ledger) TotalBudget() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.totalBudget
}

// Update replaces the title and/or the budget of an envelope. A nil argument
// leaves the corresponding field untouched; at least one must be given.
func (l *Ledger) Update(id int64, title *string, budget *float64) (Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	env, ok := l.envelopes[id]
	if !ok {
		return Envelope{}, &NotFoundError{ID: id, Role: "envelope"}
	}
	if title == nil && budget == nil {
		return Envelope{}, invalid("", "title or budget must be provided")
	}
	if budget != nil {
		if err := validateBudget(budget); err != nil {
			return Envelope{}, err
		}
		if err := checkFinite("budget", l.totalBudget+(*budget-env.Budget)); err != nil {
			return Envelope{}, err
		}
	}
	if title != nil {
		if err := validateTitle(*title); err != nil {
			return Envelope{}, err
		}
	}

	if budget != nil {
		l.totalBudget += *budget - env.Budget
		env.Budget = *budget
	}
	if title != nil {
		env.Title = *title
	}
	return *env, nil
}

// Subtract records a spend against an envelope.
func (l *Ledger) Subtract(id int64, amount *float64) (Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	env, ok := l.envelopes[id]
	if !ok {
		return Envelope{}, &NotFoundError{ID: id, Role: "envelope"}
	}
	if err := validateAmount(amount); err != nil {
		return Envelope{}, err
	}
	if env.Budget < *amount {
		return Envelope{}, &InsufficientFundsError{ID: id, Available: env.Budget, Requested: *amount}
	}

	env.Budget -= *amount
	l.totalBudget -= *amount
	return *env, nil
}

// Delete removes an envelope and returns it. Its id is never handed out again.
func (l *Ledger) Delete(id int64) (Envelope, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	env, ok := l.envelopes[id]
	if !ok {
		return Envelope{}, &NotFoundError{ID: id, Role: "envelope"}
	}

	delete(l.envelopes, id)
	for i, v := range l.order {
		if v == id {
			l.order = append(l.order[:i], l.order[i+1:]...)
			break
		}
	}
	l.totalBudget -= env.Budget
	return *env, nil
}

// Transfer moves amount from one envelope to another. The total is unchanged.
func (l *Ledger) Transfer(fromID, toID int64, amount *float64) (Transfer, error) {
	if fromID == toID {
		return Transfer{}, invalid("to", "cannot transfer to the same envelope")
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from, ok := l.envelopes[fromID]
	if !ok {
		return Transfer{}, &NotFoundError{ID: fromID, Role: "source"}
	}
	to, ok := l.envelopes[toID]
	if !ok {
		return Transfer{}, &NotFoundError{ID: toID, Role: "destination"}
	}
	if err := validateAmount(amount); err != nil {
		return Transfer{}, err
	}
	if from.Budget < *amount {
		return Transfer{}, &InsufficientFundsError{ID: fromID, Available: from.Budget, Requested: *amount, Source: true}
	}
	if err := checkFinite("amount", to.Budget+*amount); err != nil {
		return Transfer{}, err
	}

	from.Budget -= *amount
	to.Budget += *amount
	return Transfer{From: *from, To: *to, Amount: *amount}, nil
}

// Distribute splits amount across envelopes by percentage, in list order.
// Every id is checked before any envelope changes, so a failure leaves the
// ledger untouched. The total grows by the nominal amount.
func (l *Ledger) Distribute(amount *float64, distributions []Distribution) (DistributionResult, error) {
	if err := validateAmount(amount); err != nil {
		return DistributionResult{}, err
	}
	if len(distributions) == 0 {
		return DistributionResult{}, invalid("distributions", "distributions array is required")
	}
	if err := validatePercentages(distributions); err != nil {
		return DistributionResult{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	for _, d := range distributions {
		if _, ok := l.envelopes[d.ID]; !ok {
			return DistributionResult{}, &NotFoundError{ID: d.ID, Role: "distribution"}
		}
	}

	// An id may appear more than once, so new balances accumulate per id.
	balances := make(map[int64]float64, len(distributions))
	shares := make([]DistributedShare, 0, len(distributions))
	for _, d := range distributions {
		env := l.envelopes[d.ID]
		current, seen := balances[d.ID]
		if !seen {
			current = env.Budget
		}
		added := *amount * (d.Percentage / 100)
		balances[d.ID] = current + added
		shares = append(shares, DistributedShare{
			ID:          env.ID,
			Title:       env.Title,
			AddedAmount: added,
			NewBudget:   current + added,
		})
	}
	for _, share := range shares {
		if err := checkFinite("amount", share.AddedAmount, share.NewBudget); err != nil {
			return DistributionResult{}, err
		}
	}
	if err := checkFinite("amount", l.totalBudget+*amount); err != nil {
		return DistributionResult{}, err
	}

	for id, budget := range balances {
		l.envelopes[id].Budget = budget
	}
	l.totalBudget += *amount
	return DistributionResult{TotalDistributed: *amount, Shares: shares}, nil
}

func validatePercentages(distributions []Distribution) error {
	sum := decimal.Zero
	for _, d := range distributions {
		if !isNumber(d.Percentage) || d.Percentage < 0 {
			return invalid("percentage", "percentage must not be negative")
		}
		sum = sum.Add(decimal.NewFromFloat(d.Percentage))
	}
	if sum.Sub(hundred).Abs().GreaterThan(percentageTolerance) {
		return &ValidationError{Field: "percentage", Reason: "percentages must sum to 100", Rule: true}
	}
	return nil
}
