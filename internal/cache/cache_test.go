package cache

import (
	"fmt"
	"testing"
	"time"
)

func TestLRUCache_GetSet(t *testing.T) {
	c := NewLRUCache[int](2, time.Minute)

	c.Set("a", 1)
	c.Set("b", 2)
	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Fatalf("Get(a) = %v, %v", v, ok)
	}

	// "b" is now least recently used
	c.Set("c", 3)
	if _, ok := c.Get("b"); ok {
		t.Error("expected b to be evicted")
	}
	if c.Size() != 2 {
		t.Errorf("Size() = %d, want 2", c.Size())
	}

	stats := c.Stats()
	if stats.Hits != 1 || stats.Misses != 1 || stats.Evictions != 1 {
		t.Errorf("unexpected stats %+v", stats)
	}
}

func TestLRUCache_Expiry(t *testing.T) {
	c := NewLRUCache[string](10, time.Minute)
	now := time.Now()
	c.now = func() time.Time { return now }

	c.Set("k", "v")
	c.Set("other", "v")
	now = now.Add(2 * time.Minute)

	if _, ok := c.Get("k"); ok {
		t.Error("expected expired entry to be missed")
	}
	if n := c.CleanExpired(); n != 1 {
		t.Errorf("CleanExpired() = %d, want 1", n)
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0", c.Size())
	}
}

func TestLRUCache_Delete(t *testing.T) {
	c := NewLRUCache[int](10, time.Minute)
	c.Set("a", 1)
	c.Delete("a")
	c.Delete("missing")
	if _, ok := c.Get("a"); ok {
		t.Error("expected deleted key to be gone")
	}
}

func TestIdempotencyStore(t *testing.T) {
	s := NewIdempotencyStore(10, time.Minute)

	if _, state := s.Begin("key-1"); state != Fresh {
		t.Fatalf("first Begin state = %v, want Fresh", state)
	}
	if _, state := s.Begin("key-1"); state != InFlight {
		t.Fatalf("concurrent Begin state = %v, want InFlight", state)
	}

	s.Complete("key-1", StoredResponse{Status: 201, Body: []byte(`{"id":1}`), Fingerprint: "fp"})
	resp, state := s.Begin("key-1")
	if state != Replay || resp.Status != 201 || string(resp.Body) != `{"id":1}` {
		t.Fatalf("replay = %+v, %v", resp, state)
	}

	if _, state := s.Begin("key-2"); state != Fresh {
		t.Fatalf("Begin(key-2) = %v", state)
	}
	s.Abort("key-2")
	if _, state := s.Begin("key-2"); state != Fresh {
		t.Fatalf("Begin after Abort = %v, want Fresh", state)
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("POST", "/envelopes", []byte(`{"title":"a"}`))
	b := Fingerprint("POST", "/envelopes", []byte(`{"title":"b"}`))
	if a == b {
		t.Error("different bodies should have different fingerprints")
	}
	if a != Fingerprint("POST", "/envelopes", []byte(`{"title":"a"}`)) {
		t.Error("fingerprint should be deterministic")
	}
}

func TestManager_CleanNow(t *testing.T) {
	m := NewManager(nil)
	caches := make([]*LRUCache[int], 3)
	now := time.Now()
	for i := range caches {
		caches[i] = NewLRUCache[int](10, time.Second)
		caches[i].now = func() time.Time { return now }
		caches[i].Set(fmt.Sprintf("k%d", i), i)
		m.Register(caches[i])
	}
	now = now.Add(time.Hour)

	if n := m.CleanNow(); n != 3 {
		t.Errorf("CleanNow() = %d, want 3", n)
	}

	m.StartCleanup(time.Hour)
	m.Stop()
	m.Stop()
}
