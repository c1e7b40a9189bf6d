package auth

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
)

var ErrKeyNotFound = errors.New("key not found")

// TokenStore keeps short-lived server-side state: live refresh-token IDs and
// pending OAuth state nonces. Expired entries must not be returned.
type TokenStore interface {
	Save(ctx context.Context, key, value string, ttl time.Duration) error
	// Get fails with ErrKeyNotFound on a missing or expired key.
	Get(ctx context.Context, key string) (string, error)
	// Consume atomically gets and deletes; fails with ErrKeyNotFound.
	Consume(ctx context.Context, key string) (string, error)
	Delete(ctx context.Context, key string) error
}

type memEntry struct {
	value     string
	expiresAt time.Time
}

type memoryStore struct {
	mu      sync.Mutex
	entries map[string]memEntry
}

var _ TokenStore = (*memoryStore)(nil)

// NewMemoryStore returns an in-process TokenStore. Suitable for DEV and tests;
// a single API instance only.
func NewMemoryStore() TokenStore {
	return &memoryStore{entries: make(map[string]memEntry)}
}

func (s *memoryStore) Save(_ context.Context, key, value string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[key] = memEntry{value: value, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (s *memoryStore) Get(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(key)
}

func (s *memoryStore) Consume(_ context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	val, err := s.get(key)
	if err != nil {
		return "", err
	}
	delete(s.entries, key)
	return val, nil
}

func (s *memoryStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
	return nil
}

func (s *memoryStore) get(key string) (string, error) {
	entry, ok := s.entries[key]
	if !ok {
		return "", ErrKeyNotFound
	}
	if time.Now().After(entry.expiresAt) {
		delete(s.entries, key)
		return "", ErrKeyNotFound
	}
	return entry.value, nil
}
