package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryStore implements Store in process memory with the same hash
// semantics as HashStore: one expiry per service, fixed by the first write.
// It backs local development when no cache Redis is configured; nothing is
// shared between instances.
type MemoryStore struct {
	mu     sync.Mutex
	policy *Policy
	hashes map[Service]*memHash
	now    func() time.Time
	stop   chan struct{}
	closed bool
}

type memHash struct {
	fields    map[string][]byte
	expiresAt time.Time
}

func (h *memHash) expired(now time.Time) bool {
	return !h.expiresAt.IsZero() && !now.Before(h.expiresAt)
}

// NewMemoryStore creates an in-memory store with periodic eviction.
func NewMemoryStore(policy *Policy) *MemoryStore {
	m := newMemoryStore(policy, time.Now)
	go m.evictLoop(30 * time.Second)
	return m
}

func newMemoryStore(policy *Policy, now func() time.Time) *MemoryStore {
	if policy == nil {
		policy = DefaultPolicy()
	}
	return &MemoryStore{
		policy: policy,
		hashes: make(map[Service]*memHash),
		now:    now,
		stop:   make(chan struct{}),
	}
}

// live returns the hash for s, dropping it first if it has expired.
// Callers hold m.mu.
func (m *MemoryStore) live(s Service) *memHash {
	h, ok := m.hashes[s]
	if !ok {
		return nil
	}
	if h.expired(m.now()) {
		delete(m.hashes, s)
		return nil
	}
	return h
}

func (m *MemoryStore) Load(_ context.Context, s Service, endpoint string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.live(s)
	if h == nil {
		return nil, ErrNotFound
	}
	v, ok := h.fields[endpoint]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(v))
	copy(cp, v)
	return cp, nil
}

func (m *MemoryStore) Save(_ context.Context, s Service, endpoint string, value []byte, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	if ttl <= 0 {
		ttl = m.policy.TTL(s)
	}
	h := m.live(s)
	if h == nil {
		h = &memHash{fields: make(map[string][]byte)}
		m.hashes[s] = h
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	h.fields[endpoint] = cp
	if h.expiresAt.IsZero() {
		h.expiresAt = m.now().Add(ttl)
	}
	return nil
}

func (m *MemoryStore) Remove(_ context.Context, s Service, endpoint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if h := m.live(s); h != nil {
		delete(h.fields, endpoint)
		if len(h.fields) == 0 {
			delete(m.hashes, s)
		}
	}
	return nil
}

func (m *MemoryStore) Purge(_ context.Context, s Service) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.hashes, s)
	return nil
}

// TTL reports the remaining lifetime of a service hash, like HashStore.TTL.
func (m *MemoryStore) TTL(_ context.Context, s Service) (time.Duration, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h := m.live(s)
	if h == nil {
		return 0, false, nil
	}
	return h.expiresAt.Sub(m.now()), true, nil
}

func (m *MemoryStore) Ping(context.Context) error { return nil }

func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	m.hashes = make(map[Service]*memHash)
	close(m.stop)
	return nil
}

func (m *MemoryStore) evictLoop(every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-m.stop:
			return
		case <-ticker.C:
			m.mu.Lock()
			now := m.now()
			for s, h := range m.hashes {
				if h.expired(now) {
					delete(m.hashes, s)
				}
			}
			m.mu.Unlock()
		}
	}
}
