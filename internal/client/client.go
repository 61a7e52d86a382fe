// Package client is a Go client for the envelopes HTTP API.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"envelopes/internal/core"
	"envelopes/internal/events"
)

const defaultTimeout = 10 * time.Second

// APIError is a non-2xx reply from the server.
type APIError struct {
	Status  int
	Message string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s (HTTP %d)", e.Message, e.Status)
}

// IsNotFound reports whether err is a 404 from the API.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound
}

type Client struct {
	baseURL    string
	httpClient *http.Client
	retries    int
}

type Option func(*Client)

func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRetries retries mutating calls that fail in transport or with a 5xx
// status. Every attempt carries the same Idempotency-Key, so a retried
// mutation is applied at most once.
func WithRetries(n int) Option {
	return func(c *Client) {
		if n >= 0 {
			c.retries = n
		}
	}
}

func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type TransferResult struct {
	Message string        `json:"message"`
	From    core.Envelope `json:"from"`
	To      core.Envelope `json:"to"`
}

type DistributeResult struct {
	Message          string                  `json:"message"`
	TotalDistributed float64                 `json:"totalDistributed"`
	Distributions    []core.DistributedShare `json:"distributions"`
}

type deleteResult struct {
	Message  string        `json:"message"`
	Envelope core.Envelope `json:"envelope"`
}

func (c *Client) List(ctx context.Context) (core.Snapshot, error) {
	var out core.Snapshot
	err := c.do(ctx, http.MethodGet, "/envelopes", nil, &out)
	return out, err
}

func (c *Client) Get(ctx context.Context, id int64) (core.Envelope, error) {
	var out core.Envelope
	err := c.do(ctx, http.MethodGet, envelopePath(id), nil, &out)
	return out, err
}

func (c *Client) Create(ctx context.Context, title string, budget float64) (core.Envelope, error) {
	var out core.Envelope
	err := c.do(ctx, http.MethodPost, "/envelopes", map[string]any{"title": title, "budget": budget}, &out)
	return out, err
}

// Update changes the fields that are non-nil.
func (c *Client) Update(ctx context.Context, id int64, title *string, budget *float64) (core.Envelope, error) {
	body := map[string]any{}
	if title != nil {
		body["title"] = *title
	}
	if budget != nil {
		body["budget"] = *budget
	}
	var out core.Envelope
	err := c.do(ctx, http.MethodPut, envelopePath(id), body, &out)
	return out, err
}

// Spend subtracts amount from an envelope.
func (c *Client) Spend(ctx context.Context, id int64, amount float64) (core.Envelope, error) {
	var out core.Envelope
	err := c.do(ctx, http.MethodPost, envelopePath(id)+"/subtract", map[string]any{"amount": amount}, &out)
	return out, err
}

func (c *Client) Delete(ctx context.Context, id int64) (core.Envelope, error) {
	var out deleteResult
	err := c.do(ctx, http.MethodDelete, envelopePath(id), nil, &out)
	return out.Envelope, err
}

func (c *Client) Transfer(ctx context.Context, from, to int64, amount float64) (TransferResult, error) {
	var out TransferResult
	path := fmt.Sprintf("/envelopes/transfer/%d/%d", from, to)
	err := c.do(ctx, http.MethodPost, path, map[string]any{"amount": amount}, &out)
	return out, err
}

func (c *Client) Distribute(ctx context.Context, amount float64, ds []core.Distribution) (DistributeResult, error) {
	var out DistributeResult
	body := map[string]any{"amount": amount, "distributions": ds}
	err := c.do(ctx, http.MethodPost, "/envelopes/distribute", body, &out)
	return out, err
}

// Activity returns up to limit journaled events, newest first. A limit of 0
// uses the server default.
func (c *Client) Activity(ctx context.Context, limit int) ([]events.Event, error) {
	path := "/activity"
	if limit > 0 {
		path += "?" + url.Values{"limit": {strconv.Itoa(limit)}}.Encode()
	}
	var out struct {
		Events []events.Event `json:"events"`
	}
	err := c.do(ctx, http.MethodGet, path, nil, &out)
	return out.Events, err
}

func envelopePath(id int64) string {
	return "/envelopes/" + strconv.FormatInt(id, 10)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var payload []byte
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		payload = b
	}

	mutating := method != http.MethodGet
	key := ""
	attempts := 1
	if mutating {
		key = uuid.NewString()
		attempts += c.retries
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff(attempt)):
			}
		}

		retry, err := c.send(ctx, method, path, payload, key, out)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retry {
			return err
		}
	}
	return lastErr
}

// send performs one request. retry reports whether the failure is worth
// another attempt.
func (c *Client) send(ctx context.Context, method, path string, payload []byte, key string, out any) (retry bool, err error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if key != "" {
		req.Header.Set("Idempotency-Key", key)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ctx.Err() == nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 300 {
		return resp.StatusCode >= 500, decodeAPIError(resp.StatusCode, data)
	}
	if out != nil && len(data) > 0 {
		if err := json.Unmarshal(data, out); err != nil {
			return false, fmt.Errorf("decode response: %w", err)
		}
	}
	return false, nil
}

func decodeAPIError(status int, data []byte) *APIError {
	var body struct {
		Error string `json:"error"`
	}
	if err := json.Unmarshal(data, &body); err == nil && body.Error != "" {
		return &APIError{Status: status, Message: body.Error}
	}
	msg := strings.TrimSpace(string(data))
	if msg == "" {
		msg = http.StatusText(status)
	}
	return &APIError{Status: status, Message: msg}
}

// backoff is 200ms doubled per attempt, capped at 2s.
func backoff(attempt int) time.Duration {
	d := 200 * time.Millisecond << (attempt - 1)
	if d > 2*time.Second {
		d = 2 * time.Second
	}
	return d
}
