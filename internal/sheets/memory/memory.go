// Package memory is an in-process EventExporter for tests and local runs
// without Google credentials.
package memory

import (
	"context"
	"fmt"
	"sync"

	"envelopes/internal/events"
	ports "envelopes/internal/sheets"
)

type Store struct {
	mu     sync.Mutex
	rows   [][]any
	events []events.Event
}

var _ ports.EventExporter = (*Store)(nil)

func New() *Store {
	return &Store{rows: [][]any{ports.Header}}
}

// AppendEvent stores the event and returns a synthetic row reference.
func (s *Store) AppendEvent(_ context.Context, evt events.Event) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = append(s.rows, ports.Row(evt))
	s.events = append(s.events, evt)
	return fmt.Sprintf("mem:%d", len(s.rows)), nil
}

// Rows returns a copy of every row written, header included.
func (s *Store) Rows() [][]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]any(nil), s.rows...)
}

// Events returns a copy of the exported events in arrival order.
func (s *Store) Events() []events.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]events.Event(nil), s.events...)
}
