package lock

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryLockSetIfAbsent(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLock()

	acquired, err := m.SetIfAbsent(ctx, "lock:schedule:a", "token-1", time.Minute)
	require.NoError(t, err)
	require.True(t, acquired, "first acquire")

	acquired, err = m.SetIfAbsent(ctx, "lock:schedule:a", "token-2", time.Minute)
	require.NoError(t, err)
	assert.False(t, acquired, "second acquire while held")

	held, err := m.Exists(ctx, "lock:schedule:a")
	require.NoError(t, err)
	assert.True(t, held)
}

func TestMemoryLockCompareAndDelete(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLock()

	_, err := m.SetIfAbsent(ctx, "k", "owner", time.Minute)
	require.NoError(t, err)

	released, err := m.CompareAndDelete(ctx, "k", "intruder")
	require.NoError(t, err)
	assert.False(t, released, "release with wrong token succeeded")

	released, err = m.CompareAndDelete(ctx, "k", "owner")
	require.NoError(t, err)
	assert.True(t, released, "release with owner token failed")

	held, _ := m.Exists(ctx, "k")
	assert.False(t, held, "key still held after release")
}

func TestMemoryLockTTLAutoRelease(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLock()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	_, err := m.SetIfAbsent(ctx, "k", "token-1", 30*time.Second)
	require.NoError(t, err)

	current = current.Add(31 * time.Second)

	held, err := m.Exists(ctx, "k")
	require.NoError(t, err)
	assert.False(t, held, "lock still held past TTL")

	acquired, err := m.SetIfAbsent(ctx, "k", "token-2", 30*time.Second)
	require.NoError(t, err)
	assert.True(t, acquired, "acquire after expiry failed")
}

func TestMemoryLockExtend(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLock()

	current := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return current }

	_, err := m.SetIfAbsent(ctx, "k", "token-1", 30*time.Second)
	require.NoError(t, err)

	current = current.Add(20 * time.Second)

	extended, err := m.Extend(ctx, "k", "token-1", 30*time.Second)
	require.NoError(t, err)
	require.True(t, extended, "extend with owner token failed")

	// Past the original deadline but inside the extension.
	current = current.Add(20 * time.Second)
	held, _ := m.Exists(ctx, "k")
	assert.True(t, held, "lock expired despite extension")

	ok, _ := m.Extend(ctx, "k", "wrong-token", time.Minute)
	assert.False(t, ok, "extend with wrong token succeeded")
}

func TestMemoryLockContention(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryLock()

	const goroutines = 32
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			acquired, err := m.SetIfAbsent(ctx, "lock:schedule:contested", "token", time.Minute)
			if err != nil {
				t.Errorf("acquire error: %v", err)
				return
			}
			if acquired {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, winners, "exactly one goroutine wins the lock")
}

func TestMemoryLockCancelledContext(t *testing.T) {
	m := NewMemoryLock()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := m.SetIfAbsent(ctx, "k", "v", time.Minute)
	assert.Error(t, err, "cancelled context accepted")
}
