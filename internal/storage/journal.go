// Package storage keeps the activity journal: an append-only SQL record of
// committed ledger events. The journal is never replayed into the ledger.
package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"envelopes/internal/events"
)

type Dialect string

const (
	DialectSQLite   Dialect = "sqlite"
	DialectPostgres Dialect = "postgres"
)

func (d Dialect) driverName() string {
	return string(d)
}

const (
	DefaultRecentLimit = 50
	MaxRecentLimit     = 500
)

type Journal struct {
	db      *sql.DB
	dialect Dialect
}

// OpenSQLite opens (creating if needed) the journal database at dbPath.
func OpenSQLite(dbPath string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}
	return open(DialectSQLite, dbPath)
}

// OpenPostgres opens the journal in the postgres database at dsn.
func OpenPostgres(dsn string) (*Journal, error) {
	return open(DialectPostgres, dsn)
}

func open(dialect Dialect, dsn string) (*Journal, error) {
	db, err := sql.Open(dialect.driverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("open %s database: %w", dialect, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if err := RunMigrations(dialect, dsn); err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}

	if dialect == DialectSQLite {
		db.SetMaxOpenConns(1)
	}

	return &Journal{db: db, dialect: dialect}, nil
}

func (j *Journal) Dialect() Dialect { return j.dialect }

func (j *Journal) Close() error {
	if j.db != nil {
		return j.db.Close()
	}
	return nil
}

// Ping reports whether the journal database is reachable.
func (j *Journal) Ping(ctx context.Context) error {
	return j.db.PingContext(ctx)
}

// Publish implements events.Sink. Recording the same event twice is a no-op.
func (j *Journal) Publish(ctx context.Context, evt events.Event) error {
	ids, err := json.Marshal(evt.EnvelopeIDs)
	if err != nil {
		return fmt.Errorf("marshal envelope ids: %w", err)
	}
	if evt.EnvelopeIDs == nil {
		ids = []byte("[]")
	}
	var payload sql.NullString
	if len(evt.Payload) > 0 {
		payload = sql.NullString{String: string(evt.Payload), Valid: true}
	}

	const query = `INSERT INTO activity (event_id, event_type, envelope_ids, amount, total_budget, payload, occurred_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT (event_id) DO NOTHING`

	_, err = j.db.ExecContext(ctx, j.rebind(query),
		evt.ID,
		string(evt.Type),
		string(ids),
		evt.Amount,
		evt.TotalBudget,
		payload,
		evt.OccurredAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}

	slog.DebugContext(ctx, "Journaled ledger event",
		"event_id", evt.ID,
		"event_type", evt.Type)
	return nil
}

// Recent returns up to limit events, newest first. limit is clamped to
// [1, MaxRecentLimit]; zero or negative means DefaultRecentLimit.
func (j *Journal) Recent(ctx context.Context, limit int) ([]events.Event, error) {
	limit = ClampLimit(limit)

	const query = `SELECT event_id, event_type, envelope_ids, amount, total_budget, payload, occurred_at
	FROM activity ORDER BY id DESC LIMIT ?`

	rows, err := j.db.QueryContext(ctx, j.rebind(query), limit)
	if err != nil {
		return nil, fmt.Errorf("query activity: %w", err)
	}
	defer rows.Close()

	var out []events.Event
	for rows.Next() {
		var (
			evt        events.Event
			eventType  string
			ids        string
			payload    sql.NullString
			occurredAt string
		)
		if err := rows.Scan(&evt.ID, &eventType, &ids, &evt.Amount, &evt.TotalBudget, &payload, &occurredAt); err != nil {
			return nil, fmt.Errorf("scan activity: %w", err)
		}
		evt.Type = events.Type(eventType)
		if err := json.Unmarshal([]byte(ids), &evt.EnvelopeIDs); err != nil {
			return nil, fmt.Errorf("decode envelope ids for %s: %w", evt.ID, err)
		}
		if payload.Valid {
			evt.Payload = json.RawMessage(payload.String)
		}
		if evt.OccurredAt, err = time.Parse(time.RFC3339Nano, occurredAt); err != nil {
			return nil, fmt.Errorf("parse occurred_at for %s: %w", evt.ID, err)
		}
		out = append(out, evt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate activity: %w", err)
	}
	return out, nil
}

func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultRecentLimit
	case limit > MaxRecentLimit:
		return MaxRecentLimit
	default:
		return limit
	}
}

// rebind rewrites ? placeholders to $n for postgres.
func (j *Journal) rebind(query string) string {
	if j.dialect != DialectPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
