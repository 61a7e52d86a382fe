package client

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"envelopes/internal/core"
	apphttp "envelopes/internal/http"
	"envelopes/internal/log"
	"envelopes/internal/services"
)

func newAPI(t *testing.T) *Client {
	t.Helper()
	logger := log.New(log.Config{Level: slog.LevelError, Output: io.Discard})
	svc := services.NewEnvelopeService(core.NewLedger(), nil, nil, logger)
	srv := apphttp.NewServer(":0", svc, apphttp.Options{Logger: logger})
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(func() {
		ts.Close()
		_ = srv.Shutdown(context.Background())
	})
	return New(ts.URL+"/", WithHTTPClient(ts.Client()))
}

func TestClient_Scenario(t *testing.T) {
	c := newAPI(t)
	ctx := context.Background()

	groceries, err := c.Create(ctx, "Groceries", 200)
	if err != nil || groceries.ID != 1 {
		t.Fatalf("Create = %+v, %v", groceries, err)
	}
	if _, err := c.Create(ctx, "Rent", 800); err != nil {
		t.Fatalf("Create: %v", err)
	}

	if env, err := c.Spend(ctx, 1, 50); err != nil || env.Budget != 150 {
		t.Fatalf("Spend = %+v, %v", env, err)
	}

	_, err = c.Spend(ctx, 1, 500)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusUnprocessableEntity || apiErr.Message != "insufficient funds in envelope" {
		t.Fatalf("overspend error = %v", err)
	}

	tr, err := c.Transfer(ctx, 2, 1, 100)
	if err != nil || tr.From.Budget != 700 || tr.To.Budget != 250 || tr.Message != "Transfer successful" {
		t.Fatalf("Transfer = %+v, %v", tr, err)
	}

	dist, err := c.Distribute(ctx, 100, []core.Distribution{{ID: 1, Percentage: 60}, {ID: 2, Percentage: 40}})
	if err != nil || dist.TotalDistributed != 100 || len(dist.Distributions) != 2 {
		t.Fatalf("Distribute = %+v, %v", dist, err)
	}

	title := "Housing"
	if env, err := c.Update(ctx, 2, &title, nil); err != nil || env.Title != "Housing" || env.Budget != 740 {
		t.Fatalf("Update = %+v, %v", env, err)
	}

	if env, err := c.Delete(ctx, 1); err != nil || env.ID != 1 {
		t.Fatalf("Delete = %+v, %v", env, err)
	}
	if _, err := c.Get(ctx, 1); !IsNotFound(err) {
		t.Fatalf("Get deleted error = %v, want not found", err)
	}

	snap, err := c.List(ctx)
	if err != nil || snap.TotalBudget != 740 || len(snap.Envelopes) != 1 {
		t.Fatalf("List = %+v, %v", snap, err)
	}

	_, err = c.Activity(ctx, 10)
	if !errors.As(err, &apiErr) || apiErr.Status != http.StatusServiceUnavailable {
		t.Fatalf("Activity without journal error = %v, want 503", err)
	}
}

func TestClient_RetriesReuseIdempotencyKey(t *testing.T) {
	var (
		mu   sync.Mutex
		keys []string
	)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		keys = append(keys, r.Header.Get("Idempotency-Key"))
		n := len(keys)
		mu.Unlock()

		if n == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"id":1,"title":"Rent","budget":800}`)
	}))
	defer ts.Close()

	c := New(ts.URL, WithHTTPClient(ts.Client()), WithRetries(2))
	env, err := c.Create(context.Background(), "Rent", 800)
	if err != nil || env.ID != 1 {
		t.Fatalf("Create = %+v, %v", env, err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(keys) != 2 {
		t.Fatalf("attempts = %d, want 2", len(keys))
	}
	if keys[0] == "" || keys[0] != keys[1] {
		t.Errorf("idempotency keys = %v, want one key reused", keys)
	}
}

func TestClient_NoRetryOnClientError(t *testing.T) {
	calls := 0
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"title must not be empty"}`)
	}))
	defer ts.Close()

	c := New(ts.URL, WithHTTPClient(ts.Client()), WithRetries(3))
	_, err := c.Create(context.Background(), "", 1)

	var apiErr *APIError
	if !errors.As(err, &apiErr) || apiErr.Message != "title must not be empty" {
		t.Fatalf("error = %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDecodeAPIError(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   string
	}{
		{"json body", 404, `{"error":"envelope not found"}`, "envelope not found"},
		{"plain body", 405, "Method not allowed\n", "Method not allowed"},
		{"empty body", 503, "", "Service Unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := decodeAPIError(tt.status, []byte(tt.body))
			if err.Status != tt.status || err.Message != tt.want {
				t.Errorf("decodeAPIError = %+v, want message %q", err, tt.want)
			}
		})
	}
}
