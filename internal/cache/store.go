// Package cache provides the content-addressed stores used by the answering
// pipeline: a string key/value Store for answers and query expansions, and a
// filesystem blob store for persisted vector indices.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sync"
	"time"
)

// ErrCacheMiss indicates cache miss.
var ErrCacheMiss = errors.New("cache miss")

// Store is a content-addressed key/value store with per-entry TTL.
type Store interface {
	// Get returns the value for key, or ErrCacheMiss.
	Get(ctx context.Context, key string) (string, error)

	// Put stores value under key. A zero ttl means no expiry.
	Put(ctx context.Context, key, value string, ttl time.Duration) error
}

// Key builds a collision-resistant cache key from the given parts.
// Parts are length-prefix separated so ("ab","c") and ("a","bc") differ.
func Key(parts ...string) string {
	h := sha256.New()
	for _, p := range parts {
		var lenBuf [8]byte
		n := len(p)
		for i := 0; i < 8; i++ {
			lenBuf[i] = byte(n >> (8 * i))
		}
		h.Write(lenBuf[:])
		h.Write([]byte(p))
	}
	return hex.EncodeToString(h.Sum(nil))
}

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryStore is an in-process Store for tests and single-node deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		entries: make(map[string]memoryEntry),
		now:     time.Now,
	}
}

// Get returns the value for key, or ErrCacheMiss.
func (s *MemoryStore) Get(ctx context.Context, key string) (string, error) {
	s.mu.RLock()
	entry, ok := s.entries[key]
	s.mu.RUnlock()

	if !ok {
		return "", ErrCacheMiss
	}
	if !entry.expiresAt.IsZero() && s.now().After(entry.expiresAt) {
		s.mu.Lock()
		delete(s.entries, key)
		s.mu.Unlock()
		return "", ErrCacheMiss
	}
	return entry.value, nil
}

// Put stores value under key.
func (s *MemoryStore) Put(ctx context.Context, key, value string, ttl time.Duration) error {
	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	s.entries[key] = entry
	s.mu.Unlock()
	return nil
}

// Len returns the number of live entries.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
