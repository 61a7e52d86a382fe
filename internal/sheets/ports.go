package sheets

import (
	"context"
	"strconv"
	"strings"
	"time"

	"envelopes/internal/events"
)

// EventExporter is the outbound port for copying ledger events into a
// spreadsheet.
type EventExporter interface {
	// AppendEvent writes one row for evt and returns a reference to it.
	AppendEvent(ctx context.Context, evt events.Event) (rowRef string, err error)
}

// Header is the first row of every export sheet.
var Header = []any{"Occurred At", "Event", "Envelopes", "Amount", "Total Budget", "Event ID"}

// Row renders evt in Header column order.
func Row(evt events.Event) []any {
	ids := make([]string, len(evt.EnvelopeIDs))
	for i, id := range evt.EnvelopeIDs {
		ids[i] = strconv.FormatInt(id, 10)
	}
	return []any{
		evt.OccurredAt.UTC().Format(time.DateTime),
		string(evt.Type),
		strings.Join(ids, ", "),
		evt.Amount,
		evt.TotalBudget,
		evt.ID,
	}
}
