package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps submission keys in process. Expired keys are swept on claim.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string]Entry
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry)}
}

func (s *MemoryStore) Claim(_ context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (State, Entry, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now = now.UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, entry := range s.entries {
		if entry.expired(now) {
			delete(s.entries, id)
		}
	}

	id := documentID(key)
	if entry, ok := s.entries[id]; ok {
		if entry.Fingerprint != fingerprint {
			return 0, Entry{}, ErrFingerprintMismatch
		}
		if entry.Completed {
			return StateCompleted, entry, nil
		}
		return StateInFlight, entry, nil
	}

	entry := Entry{Key: key, Fingerprint: fingerprint, CreatedAt: now, ExpiresAt: now.Add(ttl)}
	s.entries[id] = entry
	return StateNew, entry, nil
}

func (s *MemoryStore) Complete(_ context.Context, key string, entry Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := documentID(key)
	if existing, ok := s.entries[id]; ok {
		if existing.Fingerprint != entry.Fingerprint {
			return ErrFingerprintMismatch
		}
		entry.CreatedAt = existing.CreatedAt
	}
	entry.Key = key
	entry.Completed = true
	entry.Body = append([]byte(nil), entry.Body...)
	s.entries[id] = entry
	return nil
}

func (s *MemoryStore) Forget(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, documentID(key))
	return nil
}
