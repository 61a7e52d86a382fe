// Package worker copies ledger events consumed from the broker into the
// spreadsheet export.
package worker

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"envelopes/internal/cache"
	"envelopes/internal/events"
	"envelopes/internal/log"
	"envelopes/internal/sheets"
)

const (
	// seenCacheSize bounds how many recent event ids are remembered for
	// dropping broker redeliveries.
	seenCacheSize = 10000
	seenCacheTTL  = 24 * time.Hour
)

// Stats counts what the worker has done since it started.
type Stats struct {
	Exported   int64
	Duplicates int64
	Failed     int64
}

// ExportWorker appends each consumed event to the spreadsheet once.
type ExportWorker struct {
	exporter sheets.EventExporter
	seen     *cache.LRUCache[string]
	logger   *log.Logger

	exported   int64
	duplicates int64
	failed     int64
}

func NewExportWorker(exporter sheets.EventExporter, logger *log.Logger) *ExportWorker {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	return &ExportWorker{
		exporter: exporter,
		seen:     cache.NewLRUCache[string](seenCacheSize, seenCacheTTL),
		logger:   logger.WithComponent(log.ComponentWorker),
	}
}

// HandleEvent processes a single event delivered by the broker. A returned
// error asks the consumer to redeliver.
func (w *ExportWorker) HandleEvent(ctx context.Context, evt events.Event) error {
	fields := log.NewFields().WithEvent(evt.ID, string(evt.Type))

	if _, ok := w.seen.Get(evt.ID); ok {
		atomic.AddInt64(&w.duplicates, 1)
		w.logger.DebugContext(ctx, "Skipping already exported event", fields.ToSlice()...)
		return nil
	}

	ref, err := w.exporter.AppendEvent(ctx, evt)
	if err != nil {
		atomic.AddInt64(&w.failed, 1)
		w.logger.ErrorContext(ctx, "Failed to export event",
			fields.WithError(err).WithOperation(log.OpExport).ToSlice()...)
		return fmt.Errorf("export event %s: %w", evt.ID, err)
	}

	w.seen.Set(evt.ID, ref)
	atomic.AddInt64(&w.exported, 1)
	w.logger.InfoContext(ctx, "Exported event",
		append(fields.WithMutation(evt.EnvelopeIDs, evt.Amount, evt.TotalBudget).ToSlice(), "sheets_ref", ref)...)
	return nil
}

// CleanExpired drops remembered event ids past their TTL.
func (w *ExportWorker) CleanExpired() int {
	return w.seen.CleanExpired()
}

func (w *ExportWorker) Stats() Stats {
	return Stats{
		Exported:   atomic.LoadInt64(&w.exported),
		Duplicates: atomic.LoadInt64(&w.duplicates),
		Failed:     atomic.LoadInt64(&w.failed),
	}
}

// ReportStats logs the counters every interval until ctx is done.
func (w *ExportWorker) ReportStats(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s := w.Stats()
			w.logger.InfoContext(ctx, "Export worker stats",
				"exported", s.Exported,
				"duplicates", s.Duplicates,
				"failed", s.Failed)
		}
	}
}
