package kv

import (
	"context"
	"sync"
	"time"
)

type memEntry struct {
	value     []byte
	expiresAt time.Time // zero never expires
}

func (e memEntry) live(now time.Time) bool {
	return e.expiresAt.IsZero() || now.Before(e.expiresAt)
}

// Memory is an in-process Store. Expired entries are dropped lazily on read
// and swept every gcEvery writes.
type Memory struct {
	mu      sync.Mutex
	data    map[string]memEntry
	now     func() time.Time
	writes  int
	gcEvery int
}

// NewMemory returns an empty in-process store.
func NewMemory() *Memory {
	return &Memory{data: make(map[string]memEntry), now: time.Now, gcEvery: 5000}
}

func (m *Memory) expiry(ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return m.now().Add(ttl)
}

// Get implements Store.
func (m *Memory) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	if !e.live(m.now()) {
		delete(m.data, key)
		return nil, ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Set implements Store.
func (m *Memory) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = memEntry{value: append([]byte(nil), value...), expiresAt: m.expiry(ttl)}
	m.afterWrite()
	return nil
}

// SetNX implements Store.
func (m *Memory) SetNX(_ context.Context, key string, value []byte, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.data[key]; ok && e.live(m.now()) {
		return false, nil
	}
	m.data[key] = memEntry{value: append([]byte(nil), value...), expiresAt: m.expiry(ttl)}
	m.afterWrite()
	return true, nil
}

// Del implements Store.
func (m *Memory) Del(_ context.Context, key string) error {
	m.mu.Lock()
	delete(m.data, key)
	m.mu.Unlock()
	return nil
}

// Len reports the number of stored entries, live or not yet swept.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.data)
}

// afterWrite must be called with mu held.
func (m *Memory) afterWrite() {
	m.writes++
	if m.writes < m.gcEvery {
		return
	}
	m.writes = 0
	now := m.now()
	for k, e := range m.data {
		if !e.live(now) {
			delete(m.data, k)
		}
	}
}
