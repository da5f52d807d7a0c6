package cache

import (
	"context"
	"sync"
	"time"
)

// State is the cache's answer for a token identifier. StateUnknown is a
// miss: the caller must fall back to the durable store, never treat it as
// either active or revoked.
type State int

const (
	StateUnknown State = iota
	StateActive
	StateRevoked
)

// RevocationStore is the fast read path for "is this token still active".
// It is a derived, rebuildable index; the durable store stays the source of
// truth. Entries carry a TTL equal to the remaining token lifetime so a
// marker never outlives what it guards.
type RevocationStore interface {
	MarkActive(ctx context.Context, key string, ttl time.Duration) error
	MarkRevoked(ctx context.Context, key string, ttl time.Duration) error
	Lookup(ctx context.Context, key string) (State, error)
}

// AccessKey namespaces an access token jti.
func AccessKey(jti string) string { return "access:" + jti }

// RefreshKey namespaces a refresh token id.
func RefreshKey(id string) string { return "refresh:" + id }

// NoopRevocationStore is used when no cache endpoint is configured; every
// lookup is a miss, so callers always consult the durable store.
type NoopRevocationStore struct{}

func NewNoopRevocationStore() *NoopRevocationStore { return &NoopRevocationStore{} }

func (s *NoopRevocationStore) MarkActive(context.Context, string, time.Duration) error { return nil }

func (s *NoopRevocationStore) MarkRevoked(context.Context, string, time.Duration) error { return nil }

func (s *NoopRevocationStore) Lookup(context.Context, string) (State, error) {
	return StateUnknown, nil
}

type memoryEntry struct {
	state     State
	expiresAt time.Time
}

// InMemoryRevocationStore is a single-process store for tests and
// development.
type InMemoryRevocationStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
}

func NewInMemoryRevocationStore() *InMemoryRevocationStore {
	return &InMemoryRevocationStore{entries: make(map[string]memoryEntry)}
}

func (s *InMemoryRevocationStore) MarkActive(_ context.Context, key string, ttl time.Duration) error {
	return s.set(key, StateActive, ttl)
}

func (s *InMemoryRevocationStore) MarkRevoked(_ context.Context, key string, ttl time.Duration) error {
	return s.set(key, StateRevoked, ttl)
}

func (s *InMemoryRevocationStore) set(key string, state State, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memoryEntry{state: state, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *InMemoryRevocationStore) Lookup(_ context.Context, key string) (State, error) {
	now := time.Now()
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()
	if !ok {
		return StateUnknown, nil
	}
	if now.After(entry.expiresAt) {
		s.mu.Lock()
		if cur, ok := s.entries[key]; ok && now.After(cur.expiresAt) {
			delete(s.entries, key)
		}
		s.mu.Unlock()
		return StateUnknown, nil
	}
	return entry.state, nil
}
