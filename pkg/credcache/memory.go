package credcache

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	creds   Credentials
	expires time.Time
}

// Memory is an in-process Cache with TTL eviction. Expired entries are
// dropped lazily on read and swept opportunistically on write.
type Memory struct {
	mu      sync.RWMutex
	entries map[string]memoryEntry
	now     func() time.Time
}

func NewMemory() *Memory {
	return &Memory{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *Memory) Get(_ context.Context, token string) (Credentials, bool) {
	m.mu.RLock()
	e, ok := m.entries[token]
	m.mu.RUnlock()
	if !ok {
		return Credentials{}, false
	}
	if m.now().After(e.expires) {
		m.mu.Lock()
		delete(m.entries, token)
		m.mu.Unlock()
		return Credentials{}, false
	}
	return e.creds, true
}

func (m *Memory) Put(_ context.Context, token string, creds Credentials, ttl time.Duration) {
	if ttl <= 0 {
		return
	}
	now := m.now()
	m.mu.Lock()
	for k, e := range m.entries {
		if now.After(e.expires) {
			delete(m.entries, k)
		}
	}
	m.entries[token] = memoryEntry{creds: creds, expires: now.Add(ttl)}
	m.mu.Unlock()
}
