package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"envelopes/internal/core"
	"envelopes/internal/events"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

func quietLogger() *log.Logger {
	return log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
}

type fakeJournal struct {
	events    []events.Event
	err       error
	lastLimit int
}

func (f *fakeJournal) Recent(_ context.Context, limit int) ([]events.Event, error) {
	f.lastLimit = limit
	return f.events, f.err
}

func newTestServer(t *testing.T, journal services.ActivityReader, opts Options) *Server {
	t.Helper()
	opts.Logger = quietLogger()
	svc := services.NewEnvelopeService(core.NewLedger(), nil, journal, opts.Logger)
	srv := NewServer(":0", svc, opts)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv
}

func do(t *testing.T, srv *Server, method, path, body string, headers ...string) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "envelopes-test")
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rr := httptest.NewRecorder()
	srv.Handler.ServeHTTP(rr, req)
	return rr
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode %q: %v", rr.Body.String(), err)
	}
	return v
}

func errorMessage(t *testing.T, rr *httptest.ResponseRecorder) string {
	t.Helper()
	return decode[map[string]string](t, rr)["error"]
}

func TestIndexAndHealth(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	do(t, srv, http.MethodPost, "/envelopes", `{"title":"Groceries","budget":1234.5}`)

	rr := do(t, srv, http.MethodGet, "/", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("index status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"Envelope Budget", "Groceries", "$1,234.50", "Activity journal is disabled"} {
		if !strings.Contains(body, want) {
			t.Errorf("index body missing %q", want)
		}
	}

	for _, path := range []string{"/healthz", "/readyz", "/static/style.css"} {
		rr := do(t, srv, http.MethodGet, path, "")
		if rr.Code != http.StatusOK {
			t.Errorf("%s status=%d", path, rr.Code)
		}
	}
}

func TestReadinessCheckFailure(t *testing.T) {
	srv := newTestServer(t, nil, Options{
		ReadinessChecks: map[string]ReadinessCheck{
			"journal": func(context.Context) error { return errors.New("database is locked") },
		},
	})

	rr := do(t, srv, http.MethodGet, "/readyz", "")
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("readyz status=%d, want 503", rr.Code)
	}
	body := decode[map[string]any](t, rr)
	if body["status"] != "not_ready" {
		t.Errorf("status = %v, want not_ready", body["status"])
	}
}

func TestEnvelopeLifecycle(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	rr := do(t, srv, http.MethodPost, "/envelopes", `{"title":"Groceries","budget":200}`)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
	}
	if env := decode[core.Envelope](t, rr); env.ID != 1 || env.Budget != 200 {
		t.Fatalf("created = %+v", env)
	}
	do(t, srv, http.MethodPost, "/envelopes", `{"title":"Rent","budget":800}`)

	rr = do(t, srv, http.MethodPost, "/envelopes/1/subtract", `{"amount":50}`)
	if env := decode[core.Envelope](t, rr); rr.Code != http.StatusOK || env.Budget != 150 {
		t.Fatalf("subtract status=%d env=%+v", rr.Code, env)
	}

	rr = do(t, srv, http.MethodPost, "/envelopes/transfer/2/1", `{"amount":100}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("transfer status=%d body=%s", rr.Code, rr.Body.String())
	}
	tr := decode[struct {
		Message string        `json:"message"`
		From    core.Envelope `json:"from"`
		To      core.Envelope `json:"to"`
	}](t, rr)
	if tr.Message != "Transfer successful" || tr.From.Budget != 700 || tr.To.Budget != 250 {
		t.Errorf("transfer = %+v", tr)
	}

	rr = do(t, srv, http.MethodPost, "/envelopes/distribute",
		`{"amount":100,"distributions":[{"id":1,"percentage":60},{"id":2,"percentage":40}]}`)
	if rr.Code != http.StatusOK {
		t.Fatalf("distribute status=%d body=%s", rr.Code, rr.Body.String())
	}
	dist := decode[struct {
		Message          string                  `json:"message"`
		TotalDistributed float64                 `json:"totalDistributed"`
		Distributions    []core.DistributedShare `json:"distributions"`
	}](t, rr)
	if dist.Message != "Amount distributed successfully" || dist.TotalDistributed != 100 || len(dist.Distributions) != 2 {
		t.Errorf("distribute = %+v", dist)
	}
	if dist.Distributions[0].NewBudget != 310 || dist.Distributions[1].NewBudget != 740 {
		t.Errorf("distribute shares = %+v", dist.Distributions)
	}

	rr = do(t, srv, http.MethodPut, "/envelopes/2", `{"title":"Housing"}`)
	if env := decode[core.Envelope](t, rr); rr.Code != http.StatusOK || env.Title != "Housing" || env.Budget != 740 {
		t.Errorf("update status=%d env=%+v", rr.Code, env)
	}

	rr = do(t, srv, http.MethodDelete, "/envelopes/1", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("delete status=%d", rr.Code)
	}
	del := decode[struct {
		Message  string        `json:"message"`
		Envelope core.Envelope `json:"envelope"`
	}](t, rr)
	if del.Message != "Envelope deleted successfully" || del.Envelope.ID != 1 {
		t.Errorf("delete = %+v", del)
	}

	rr = do(t, srv, http.MethodGet, "/envelopes", "")
	snap := decode[core.Snapshot](t, rr)
	if snap.TotalBudget != 740 || len(snap.Envelopes) != 1 {
		t.Errorf("list = %+v", snap)
	}

	rr = do(t, srv, http.MethodGet, "/envelopes/1", "")
	if rr.Code != http.StatusNotFound || errorMessage(t, rr) != "envelope not found" {
		t.Errorf("get deleted status=%d body=%s", rr.Code, rr.Body.String())
	}
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	do(t, srv, http.MethodPost, "/envelopes", `{"title":"Groceries","budget":200}`)
	do(t, srv, http.MethodPost, "/envelopes", `{"title":"Rent","budget":800}`)

	tests := []struct {
		name    string
		method  string
		path    string
		body    string
		status  int
		message string
	}{
		{"missing title", http.MethodPost, "/envelopes", `{"budget":10}`, http.StatusBadRequest, "title and budget are required"},
		{"blank title", http.MethodPost, "/envelopes", `{"title":"  ","budget":10}`, http.StatusBadRequest, "title and budget are required"},
		{"string budget", http.MethodPost, "/envelopes", `{"title":"X","budget":"12"}`, http.StatusBadRequest, "budget must be a positive number"},
		{"negative budget", http.MethodPost, "/envelopes", `{"title":"X","budget":-1}`, http.StatusBadRequest, "budget must be a positive number"},
		{"numeric title", http.MethodPost, "/envelopes", `{"title":5,"budget":1}`, http.StatusBadRequest, "title must be a string"},
		{"broken json", http.MethodPost, "/envelopes", `{"title":`, http.StatusBadRequest, "invalid JSON body"},
		{"bad path id", http.MethodGet, "/envelopes/abc", "", http.StatusBadRequest, `invalid envelope id "abc"`},
		{"unknown envelope", http.MethodGet, "/envelopes/99", "", http.StatusNotFound, "envelope not found"},
		{"empty update", http.MethodPut, "/envelopes/1", `{}`, http.StatusBadRequest, ""},
		{"overspend", http.MethodPost, "/envelopes/1/subtract", `{"amount":500}`, http.StatusUnprocessableEntity, "insufficient funds in envelope"},
		{"zero amount", http.MethodPost, "/envelopes/1/subtract", `{"amount":0}`, http.StatusBadRequest, "amount must be a positive number"},
		{"unknown source", http.MethodPost, "/envelopes/transfer/9/1", `{"amount":1}`, http.StatusNotFound, "source envelope not found"},
		{"unknown destination", http.MethodPost, "/envelopes/transfer/1/9", `{"amount":1}`, http.StatusNotFound, "destination envelope not found"},
		{"transfer overdraw", http.MethodPost, "/envelopes/transfer/1/2", `{"amount":1000}`, http.StatusUnprocessableEntity, "insufficient funds in source envelope"},
		{"bad percentages", http.MethodPost, "/envelopes/distribute", `{"amount":10,"distributions":[{"id":1,"percentage":50}]}`, http.StatusUnprocessableEntity, "percentages must sum to 100"},
		{"distribute unknown id", http.MethodPost, "/envelopes/distribute", `{"amount":10,"distributions":[{"id":7,"percentage":100}]}`, http.StatusNotFound, "envelope with ID 7 not found"},
		{"negative percentage", http.MethodPost, "/envelopes/distribute", `{"amount":10,"distributions":[{"id":1,"percentage":150},{"id":2,"percentage":-50}]}`, http.StatusBadRequest, "percentage must not be negative"},
		{"fractional distribution id", http.MethodPost, "/envelopes/distribute", `{"amount":10,"distributions":[{"id":1.5,"percentage":100}]}`, http.StatusBadRequest, "distribution id must be an integer"},
		{"distribute without array", http.MethodPost, "/envelopes/distribute", `{"amount":10}`, http.StatusBadRequest, "distributions array is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, tt.method, tt.path, tt.body)
			if rr.Code != tt.status {
				t.Fatalf("status=%d, want %d (body %s)", rr.Code, tt.status, rr.Body.String())
			}
			msg := errorMessage(t, rr)
			if tt.message != "" && msg != tt.message {
				t.Errorf("error = %q, want %q", msg, tt.message)
			}
			if msg == "" {
				t.Error("error message is empty")
			}
		})
	}

	// Failed operations leave the ledger untouched.
	snap := decode[core.Snapshot](t, do(t, srv, http.MethodGet, "/envelopes", ""))
	if snap.TotalBudget != 1000 || len(snap.Envelopes) != 2 {
		t.Errorf("ledger changed after failures: %+v", snap)
	}
}

func TestOverflowingMutationsAreRejected(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	for _, body := range []string{`{"title":"A","budget":8e307}`, `{"title":"B","budget":8e307}`} {
		if rr := do(t, srv, http.MethodPost, "/envelopes", body); rr.Code != http.StatusCreated {
			t.Fatalf("create status=%d body=%s", rr.Code, rr.Body.String())
		}
	}

	tests := []struct {
		name    string
		path    string
		body    string
		message string
	}{
		{"create", "/envelopes", `{"title":"C","budget":5e307}`, "budget too large"},
		{"distribute", "/envelopes/distribute", `{"amount":1e308,"distributions":[{"id":1,"percentage":100}]}`, "amount too large"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, srv, http.MethodPost, tt.path, tt.body)
			if rr.Code != http.StatusBadRequest || errorMessage(t, rr) != tt.message {
				t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
			}
		})
	}

	rr := do(t, srv, http.MethodGet, "/envelopes", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("list status=%d body=%s", rr.Code, rr.Body.String())
	}
	snap := decode[core.Snapshot](t, rr)
	if len(snap.Envelopes) != 2 || snap.TotalBudget != 1.6e308 || snap.Envelopes[0].Budget != 8e307 {
		t.Fatalf("ledger changed after rejected mutations: %+v", snap)
	}
	if rr := do(t, srv, http.MethodGet, "/", ""); rr.Code != http.StatusOK {
		t.Fatalf("dashboard status=%d", rr.Code)
	}
}

func TestActivityEndpoint(t *testing.T) {
	t.Run("no journal", func(t *testing.T) {
		srv := newTestServer(t, nil, Options{})
		rr := do(t, srv, http.MethodGet, "/activity", "")
		if rr.Code != http.StatusServiceUnavailable {
			t.Fatalf("status=%d, want 503", rr.Code)
		}
	})

	t.Run("with journal", func(t *testing.T) {
		evt, err := events.New(events.EnvelopeCreated, 200, 200, nil, 1)
		if err != nil {
			t.Fatalf("events.New: %v", err)
		}
		journal := &fakeJournal{events: []events.Event{evt}}
		srv := newTestServer(t, journal, Options{})

		rr := do(t, srv, http.MethodGet, "/activity?limit=9999", "")
		if rr.Code != http.StatusOK {
			t.Fatalf("status=%d body=%s", rr.Code, rr.Body.String())
		}
		if journal.lastLimit != 500 {
			t.Errorf("limit passed to journal = %d, want clamp to 500", journal.lastLimit)
		}
		body := decode[struct {
			Events []events.Event `json:"events"`
		}](t, rr)
		if len(body.Events) != 1 || body.Events[0].ID != evt.ID {
			t.Errorf("events = %+v", body.Events)
		}

		do(t, srv, http.MethodGet, "/activity", "")
		if journal.lastLimit != 50 {
			t.Errorf("default limit = %d, want 50", journal.lastLimit)
		}

		rr = do(t, srv, http.MethodGet, "/", "")
		if !strings.Contains(rr.Body.String(), "envelope.created") {
			t.Error("dashboard does not show recent activity")
		}
	})

	t.Run("journal failure", func(t *testing.T) {
		srv := newTestServer(t, &fakeJournal{err: errors.New("disk I/O error")}, Options{})
		rr := do(t, srv, http.MethodGet, "/activity", "")
		if rr.Code != http.StatusInternalServerError {
			t.Fatalf("status=%d, want 500", rr.Code)
		}
		if msg := errorMessage(t, rr); msg != "internal server error" {
			t.Errorf("error = %q", msg)
		}
	})
}

func TestIdempotentReplay(t *testing.T) {
	srv := newTestServer(t, nil, Options{IdempotencyTTL: time.Minute})
	body := `{"title":"Groceries","budget":200}`

	first := do(t, srv, http.MethodPost, "/envelopes", body, HeaderIdempotencyKey, "abc-1")
	if first.Code != http.StatusCreated {
		t.Fatalf("first status=%d", first.Code)
	}
	second := do(t, srv, http.MethodPost, "/envelopes", body, HeaderIdempotencyKey, "abc-1")
	if second.Code != http.StatusCreated {
		t.Fatalf("replay status=%d", second.Code)
	}
	if second.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Error("replay header missing")
	}
	if first.Body.String() != second.Body.String() {
		t.Errorf("replay body = %s, want %s", second.Body.String(), first.Body.String())
	}

	snap := decode[core.Snapshot](t, do(t, srv, http.MethodGet, "/envelopes", ""))
	if len(snap.Envelopes) != 1 {
		t.Errorf("envelopes = %d, want 1 after replay", len(snap.Envelopes))
	}

	rr := do(t, srv, http.MethodPost, "/envelopes", `{"title":"Other","budget":1}`, HeaderIdempotencyKey, "abc-1")
	if rr.Code != http.StatusUnprocessableEntity {
		t.Errorf("reused key with different body status=%d, want 422", rr.Code)
	}

	// Rejected requests are replayed too.
	bad := do(t, srv, http.MethodPost, "/envelopes/1/subtract", `{"amount":999}`, HeaderIdempotencyKey, "abc-2")
	again := do(t, srv, http.MethodPost, "/envelopes/1/subtract", `{"amount":999}`, HeaderIdempotencyKey, "abc-2")
	if bad.Code != http.StatusUnprocessableEntity || again.Code != http.StatusUnprocessableEntity {
		t.Errorf("statuses = %d, %d; want 422 twice", bad.Code, again.Code)
	}
	if again.Header().Get(HeaderIdempotentReplay) != "true" {
		t.Error("rejected response was not replayed")
	}
}

func TestRateLimitAppliesToMutations(t *testing.T) {
	srv := newTestServer(t, nil, Options{RateLimitPerMinute: 2})

	for i := 0; i < 2; i++ {
		if rr := do(t, srv, http.MethodPost, "/envelopes", `{"title":"E","budget":1}`); rr.Code != http.StatusCreated {
			t.Fatalf("request %d status=%d", i, rr.Code)
		}
	}
	rr := do(t, srv, http.MethodPost, "/envelopes", `{"title":"E","budget":1}`)
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("status=%d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Retry-After header missing")
	}

	if rr := do(t, srv, http.MethodGet, "/envelopes", ""); rr.Code != http.StatusOK {
		t.Errorf("GET status=%d, reads must not be limited", rr.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	srv := newTestServer(t, nil, Options{})

	rr := do(t, srv, http.MethodOptions, "/envelopes", "", "Origin", "http://example.com")
	if rr.Code != http.StatusNoContent {
		t.Fatalf("preflight status=%d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin = %q", got)
	}

	rr = do(t, srv, http.MethodGet, "/envelopes", "")
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("Allow-Origin on GET = %q", got)
	}
	if rr.Header().Get("X-Request-ID") == "" {
		t.Error("X-Request-ID header missing")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	srv := newTestServer(t, nil, Options{})
	do(t, srv, http.MethodPost, "/envelopes", `{"title":"Rent","budget":800}`)

	rr := do(t, srv, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("status=%d", rr.Code)
	}
	body := rr.Body.String()
	for _, want := range []string{"envelopes 1\n", "ledger_total_budget 800.00\n", "http_requests_total "} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics missing %q", want)
		}
	}
}

func TestBarWidth(t *testing.T) {
	tests := []struct {
		part, total float64
		want        int
	}{
		{50, 100, 50},
		{0.1, 100, 2},
		{0, 100, 0},
		{10, 0, 0},
		{100, 100, 100},
	}
	for _, tt := range tests {
		if got := barWidth(tt.part, tt.total); got != tt.want {
			t.Errorf("barWidth(%v, %v) = %d, want %d", tt.part, tt.total, got, tt.want)
		}
	}
}
