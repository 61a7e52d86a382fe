package http

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"

	"envelopes/internal/core"
)

// maxBodyBytes bounds every request body.
const maxBodyBytes = 1 << 20

// ErrMalformedBody is returned for bodies that are not a JSON object.
var ErrMalformedBody = errors.New("request body must be a JSON object")

// RequestBodyParser reads a JSON object body once and exposes typed field
// accessors. A field that is absent or null reads as nil.
type RequestBodyParser struct {
	body        []byte
	contentType string
	fields      map[string]json.RawMessage
	parsed      bool
	err         error
}

// NewRequestBodyParser creates a parser for the given request.
func NewRequestBodyParser(w http.ResponseWriter, r *http.Request) *RequestBodyParser {
	p := &RequestBodyParser{
		contentType: r.Header.Get("Content-Type"),
	}
	p.body, p.err = io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	return p
}

// newBodyParser parses an already-read body.
func newBodyParser(body []byte) *RequestBodyParser {
	return &RequestBodyParser{body: body, contentType: "application/json"}
}

// Parse decodes the body. An empty body is an empty object.
func (p *RequestBodyParser) Parse() error {
	if p.parsed {
		return p.err
	}
	p.parsed = true

	if p.err != nil {
		return p.err
	}

	p.fields = make(map[string]json.RawMessage)
	trimmed := bytes.TrimSpace(p.body)
	if len(trimmed) == 0 {
		return nil
	}
	if trimmed[0] != '{' {
		p.err = ErrMalformedBody
		return p.err
	}
	if err := json.Unmarshal(trimmed, &p.fields); err != nil {
		p.err = fmt.Errorf("%w: %v", ErrMalformedBody, err)
		return p.err
	}
	return nil
}

func (p *RequestBodyParser) raw(key string) (json.RawMessage, bool) {
	v, ok := p.fields[key]
	if !ok || string(v) == "null" {
		return nil, false
	}
	return v, true
}

// Has reports whether key is present and not null.
func (p *RequestBodyParser) Has(key string) bool {
	_, ok := p.raw(key)
	return ok
}

// String returns the string value of key. Non-string values are a
// validation error.
func (p *RequestBodyParser) String(key string) (*string, error) {
	v, ok := p.raw(key)
	if !ok {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, &core.ValidationError{Field: key, Reason: key + " must be a string"}
	}
	s = sanitizeInput(s)
	return &s, nil
}

// Number returns the numeric value of key. Only JSON numbers count; any other
// JSON type yields NaN so the ledger rejects it as non-numeric.
func (p *RequestBodyParser) Number(key string) *float64 {
	v, ok := p.raw(key)
	if !ok {
		return nil
	}
	return jsonNumber(v)
}

func jsonNumber(v json.RawMessage) *float64 {
	var n float64
	if err := json.Unmarshal(v, &n); err != nil {
		nan := math.NaN()
		return &nan
	}
	return &n
}

// Distributions decodes the distributions array. A missing or non-array value
// reads as nil. A missing percentage counts as 0.
func (p *RequestBodyParser) Distributions(key string) ([]core.Distribution, error) {
	v, ok := p.raw(key)
	if !ok {
		return nil, nil
	}
	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(v, &entries); err != nil {
		var items []json.RawMessage
		if json.Unmarshal(v, &items) == nil {
			return nil, &core.ValidationError{Field: key, Reason: "each distribution must be an object"}
		}
		return nil, nil
	}

	out := make([]core.Distribution, 0, len(entries))
	for _, entry := range entries {
		rawID, ok := entry["id"]
		if !ok || string(rawID) == "null" {
			return nil, &core.ValidationError{Field: "id", Reason: "distribution id is required"}
		}
		var id int64
		if err := json.Unmarshal(rawID, &id); err != nil {
			return nil, &core.ValidationError{Field: "id", Reason: "distribution id must be an integer"}
		}

		d := core.Distribution{ID: id}
		if rawPct, ok := entry["percentage"]; ok && string(rawPct) != "null" {
			d.Percentage = *jsonNumber(rawPct)
		}
		out = append(out, d)
	}
	return out, nil
}

// GetRaw returns the raw body bytes.
func (p *RequestBodyParser) GetRaw() []byte {
	return p.body
}

// ContentType returns the Content-Type header value.
func (p *RequestBodyParser) ContentType() string {
	return p.contentType
}

// ParseID reads an integer path parameter. A malformed id is a validation
// error, never a lookup miss.
func ParseID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, &core.ValidationError{Field: name, Reason: fmt.Sprintf("invalid envelope id %q", raw)}
	}
	return id, nil
}

// ParseLimit reads the limit query parameter, falling back to def when it is
// missing or not a positive integer.
func ParseLimit(r *http.Request, def int) int {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

// sanitizeInput removes control characters except tab, newline and carriage
// return, and trims whitespace.
func sanitizeInput(s string) string {
	s = strings.TrimSpace(s)
	return strings.Map(func(r rune) rune {
		if r < 32 && r != 9 && r != 10 && r != 13 {
			return -1
		}
		return r
	}, s)
}
