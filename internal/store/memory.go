package store

import (
	"context"
	"sync"
	"time"
)

// MemoryJtiStore is a mutex-guarded jti set with lazy expiry.
type MemoryJtiStore struct {
	mu   sync.Mutex
	used map[string]time.Time
	now  func() time.Time
}

func NewMemoryJtiStore() *MemoryJtiStore {
	return &MemoryJtiStore{
		used: make(map[string]time.Time),
		now:  time.Now,
	}
}

func (s *MemoryJtiStore) Has(ctx context.Context, jti string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.used[jti]
	if !ok {
		return false, nil
	}
	if s.now().After(exp) {
		delete(s.used, jti)
		return false, nil
	}
	return true, nil
}

// Add is the atomic check-and-insert: the check and the insert happen
// under one lock, so two racing admissions of the same jti cannot both
// succeed. Expired entries are overwritten.
func (s *MemoryJtiStore) Add(ctx context.Context, jti string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.used[jti]; ok && !s.now().After(exp) {
		return ErrJTIUsed
	}
	s.used[jti] = expiresAt
	return nil
}

// MemoryIdempotencyStore keys entries by (key, org, tool).
type MemoryIdempotencyStore struct {
	mu      sync.Mutex
	entries map[memKey]IdempotencyEntry
	now     func() time.Time
}

type memKey struct {
	key    string
	orgID  string
	toolID string
}

func NewMemoryIdempotencyStore() *MemoryIdempotencyStore {
	return &MemoryIdempotencyStore{
		entries: make(map[memKey]IdempotencyEntry),
		now:     time.Now,
	}
}

func (s *MemoryIdempotencyStore) Get(ctx context.Context, key, orgID, toolID string) (*IdempotencyEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := memKey{key, orgID, toolID}
	entry, ok := s.entries[k]
	if !ok {
		return nil, nil
	}
	if s.now().After(entry.ExpiresAt) {
		delete(s.entries, k)
		return nil, nil
	}
	cp := entry
	return &cp, nil
}

func (s *MemoryIdempotencyStore) Set(ctx context.Context, key, orgID, toolID string, entry IdempotencyEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[memKey{key, orgID, toolID}] = entry
	return nil
}
