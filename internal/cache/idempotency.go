package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"sync"
	"time"
)

// StoredResponse is the recorded outcome of a mutating request.
type StoredResponse struct {
	Status      int
	ContentType string
	Body        []byte
	Fingerprint string
}

// State is the outcome of IdempotencyStore.Begin.
type State int

const (
	// Fresh means the caller owns the key and must call Complete or Abort.
	Fresh State = iota
	// Replay means a stored response exists for the key.
	Replay
	// InFlight means another request with the same key is still running.
	InFlight
)

// IdempotencyStore remembers responses by Idempotency-Key for a TTL.
type IdempotencyStore struct {
	responses *LRUCache[StoredResponse]

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewIdempotencyStore(maxSize int, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		responses: NewLRUCache[StoredResponse](maxSize, ttl),
		inflight:  make(map[string]struct{}),
	}
}

// Fingerprint identifies a request so a reused key with a different request
// can be told apart.
func Fingerprint(method, path string, body []byte) string {
	h := sha256.New()
	h.Write([]byte(method))
	h.Write([]byte{0})
	h.Write([]byte(path))
	h.Write([]byte{0})
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func (s *IdempotencyStore) Begin(key string) (StoredResponse, State) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if resp, ok := s.responses.Get(key); ok {
		return resp, Replay
	}
	if _, busy := s.inflight[key]; busy {
		return StoredResponse{}, InFlight
	}
	s.inflight[key] = struct{}{}
	return StoredResponse{}, Fresh
}

func (s *IdempotencyStore) Complete(key string, resp StoredResponse) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.responses.Set(key, resp)
	delete(s.inflight, key)
}

// Abort releases key without storing a response.
func (s *IdempotencyStore) Abort(key string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.inflight, key)
}

// CleanExpired implements Cleaner.
func (s *IdempotencyStore) CleanExpired() int {
	return s.responses.CleanExpired()
}

func (s *IdempotencyStore) Stats() Stats {
	return s.responses.Stats()
}
