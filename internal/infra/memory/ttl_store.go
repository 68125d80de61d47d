package memory

import (
	"sync"
	"time"
)

// TTLStore is the in-process fallback behind the cache service: a map of key
// to value bytes plus an absolute expiry instant. Expired entries are evicted
// on read.
type TTLStore struct {
	clock func() time.Time

	mu    sync.Mutex
	items map[string]entry
}

type entry struct {
	data      []byte
	expiresAt time.Time
}

func NewTTLStore() *TTLStore {
	return NewTTLStoreWithClock(time.Now)
}

// NewTTLStoreWithClock allows deterministic expiry in tests.
func NewTTLStoreWithClock(clock func() time.Time) *TTLStore {
	return &TTLStore{
		clock: clock,
		items: make(map[string]entry),
	}
}

func (s *TTLStore) Set(key string, data []byte, ttl time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[key] = entry{
		data:      data,
		expiresAt: s.clock().Add(ttl),
	}
}

func (s *TTLStore) Get(key string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[key]
	if !ok {
		return nil, false
	}
	if s.clock().After(item.expiresAt) {
		delete(s.items, key)
		return nil, false
	}
	return item.data, true
}
