package interfaces

import (
	"context"
	"time"
)

// DistributedLock is the named mutual-exclusion primitive required of any
// lock backend. All four operations are atomic. Keys follow
// "lock:schedule:<id>"; values are opaque instance tokens so a process can
// never release a lock it does not hold.
type DistributedLock interface {
	// SetIfAbsent acquires key for value with a TTL. Returns false without
	// blocking when the key is already held.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)

	// CompareAndDelete releases key only if it still holds expectedValue.
	CompareAndDelete(ctx context.Context, key, expectedValue string) (bool, error)

	// Extend refreshes the TTL of key only if it still holds expectedValue.
	Extend(ctx context.Context, key, expectedValue string, ttl time.Duration) (bool, error)

	// Exists reports whether key is currently held.
	Exists(ctx context.Context, key string) (bool, error)
}
