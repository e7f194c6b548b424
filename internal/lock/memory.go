package lock

import (
	"context"
	"sync"
	"time"
)

// entry is one held lock with its expiry deadline.
type entry struct {
	value     string
	expiresAt time.Time
}

// MemoryLock is a process-local lock backend for single-instance
// deployments and tests. Expired keys are treated as absent on every
// operation, so TTL release needs no background sweeper.
type MemoryLock struct {
	mu      sync.Mutex
	entries map[string]entry
	now     func() time.Time
}

func NewMemoryLock() *MemoryLock {
	return &MemoryLock{
		entries: make(map[string]entry),
		now:     time.Now,
	}
}

// live returns the entry for key if present and unexpired. Caller holds mu.
func (m *MemoryLock) live(key string) (entry, bool) {
	e, ok := m.entries[key]
	if !ok {
		return entry{}, false
	}
	if !e.expiresAt.After(m.now()) {
		delete(m.entries, key)
		return entry{}, false
	}
	return e, true
}

func (m *MemoryLock) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, held := m.live(key); held {
		return false, nil
	}
	m.entries[key] = entry{value: value, expiresAt: m.now().Add(ttl)}
	return true, nil
}

func (m *MemoryLock) CompareAndDelete(ctx context.Context, key, expectedValue string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, held := m.live(key)
	if !held || e.value != expectedValue {
		return false, nil
	}
	delete(m.entries, key)
	return true, nil
}

func (m *MemoryLock) Extend(ctx context.Context, key, expectedValue string, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	e, held := m.live(key)
	if !held || e.value != expectedValue {
		return false, nil
	}
	e.expiresAt = m.now().Add(ttl)
	m.entries[key] = e
	return true, nil
}

func (m *MemoryLock) Exists(ctx context.Context, key string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	_, held := m.live(key)
	return held, nil
}
