package http

import (
	"bytes"
	"io"
	"net/http"
	"sync/atomic"

	"envelopes/internal/cache"
	"envelopes/internal/log"
)

const (
	HeaderIdempotencyKey    = "Idempotency-Key"
	HeaderIdempotentReplay  = "Idempotent-Replay"
	maxIdempotencyKeyLength = 255
)

// idempotencyMiddleware replays the stored response for a mutating request
// whose Idempotency-Key was already served. Requests without the header pass
// through untouched.
func (s *Server) idempotencyMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(HeaderIdempotencyKey)
		if key == "" || !isMutating(r.Method) {
			next.ServeHTTP(w, r)
			return
		}
		if len(key) > maxIdempotencyKeyLength {
			BadRequestError("Idempotency-Key too long").Write(w)
			return
		}

		body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxBodyBytes))
		if err != nil {
			s.writeLedgerError(w, r, err)
			return
		}
		r.Body = io.NopCloser(bytes.NewReader(body))
		fingerprint := cache.Fingerprint(r.Method, r.URL.Path, body)

		stored, state := s.idempotency.Begin(key)
		switch state {
		case cache.Replay:
			if stored.Fingerprint != fingerprint {
				UnprocessableEntityError("Idempotency-Key was already used for a different request").Write(w)
				return
			}
			atomic.AddInt64(&s.replays, 1)
			log.FromContext(r.Context()).DebugContext(r.Context(), "Replaying idempotent response",
				log.FieldMethod, r.Method,
				log.FieldPath, r.URL.Path,
				log.FieldStatusCode, stored.Status)
			if stored.ContentType != "" {
				w.Header().Set("Content-Type", stored.ContentType)
			}
			w.Header().Set(HeaderIdempotentReplay, "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		case cache.InFlight:
			ErrorResponse(http.StatusConflict, "a request with this Idempotency-Key is already in progress").Write(w)
			return
		}

		rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			if p := recover(); p != nil {
				s.idempotency.Abort(key)
				panic(p)
			}
		}()
		next.ServeHTTP(rec, r)

		// Server errors are not remembered so the client can retry.
		if rec.status >= http.StatusInternalServerError {
			s.idempotency.Abort(key)
			return
		}
		s.idempotency.Complete(key, cache.StoredResponse{
			Status:      rec.status,
			ContentType: rec.Header().Get("Content-Type"),
			Body:        rec.body.Bytes(),
			Fingerprint: fingerprint,
		})
	})
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// recordingWriter passes a response through while keeping a copy of it.
type recordingWriter struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func (rw *recordingWriter) WriteHeader(code int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.status = code
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *recordingWriter) Write(b []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	rw.body.Write(b)
	return rw.ResponseWriter.Write(b)
}
