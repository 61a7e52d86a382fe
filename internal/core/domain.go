package core

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type (
	Envelope struct {
		ID     int64   `json:"id"`
		Title  string  `json:"title"`
		Budget float64 `json:"budget"`
	}

	// Snapshot is a point-in-time view of the whole ledger.
	Snapshot struct {
		TotalBudget float64    `json:"totalBudget"`
		Envelopes   []Envelope `json:"envelopes"`
	}

	// Transfer holds both sides of a completed move of funds.
	Transfer struct {
		From   Envelope `json:"from"`
		To     Envelope `json:"to"`
		Amount float64  `json:"-"`
	}

	// Distribution assigns a percentage share of a lump sum to one envelope.
	Distribution struct {
		ID         int64   `json:"id"`
		Percentage float64 `json:"percentage"`
	}

	DistributedShare struct {
		ID          int64   `json:"id"`
		Title       string  `json:"title"`
		AddedAmount float64 `json:"addedAmount"`
		NewBudget   float64 `json:"newBudget"`
	}

	DistributionResult struct {
		TotalDistributed float64            `json:"totalDistributed"`
		Shares           []DistributedShare `json:"distributions"`
	}
)

var (
	ErrValidation        = errors.New("validation error")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
)

// ValidationError reports malformed or missing input. Rule marks violations
// of a business rule (as opposed to badly shaped input).
type ValidationError struct {
	Field  string
	Reason string
	Rule   bool
}

func (e *ValidationError) Error() string { return e.Reason }

func (e *ValidationError) Unwrap() error { return ErrValidation }

// NotFoundError reports an unknown envelope id. Role names which side of an
// operation referenced it: "envelope", "source" or "destination".
type NotFoundError struct {
	ID   int64
	Role string
}

func (e *NotFoundError) Error() string {
	switch e.Role {
	case "source":
		return "source envelope not found"
	case "destination":
		return "destination envelope not found"
	case "distribution":
		return fmt.Sprintf("envelope with ID %d not found", e.ID)
	default:
		return "envelope not found"
	}
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

type InsufficientFundsError struct {
	ID        int64
	Available float64
	Requested float64
	Source    bool
}

func (e *InsufficientFundsError) Error() string {
	if e.Source {
		return "insufficient funds in source envelope"
	}
	return "insufficient funds in envelope"
}

func (e *InsufficientFundsError) Unwrap() error { return ErrInsufficientFunds }

func invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// isNumber rejects the values a JSON number can never carry.
func isNumber(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func validateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return invalid("title", "title must not be empty")
	}
	return nil
}

// checkFinite rejects a mutation whose resulting balances overflow float64.
func checkFinite(field string, values ...float64) error {
	for _, v := range values {
		if !isNumber(v) {
			return invalid(field, field+" too large")
		}
	}
	return nil
}

func validateBudget(budget *float64) error {
	if budget == nil {
		return invalid("budget", "budget is required")
	}
	if !isNumber(*budget) || *budget < 0 {
		return invalid("budget", "budget must be a positive number")
	}
	return nil
}

func validateAmount(amount *float64) error {
	if amount == nil {
		return invalid("amount", "amount is required")
	}
	if !isNumber(*amount) || *amount <= 0 {
		return invalid("amount", "amount must be a positive number")
	}
	return nil
}
