package kvstore

import (
	"context"
	"time"
)

// Store is the shared key-value cache used for popularity counters,
// rate-limit markers, and the upstream token. Implementations must be
// safe for concurrent use from multiple goroutines and processes.
type Store interface {
	// Get returns the string value for key. ok is false on a miss
	// (absent or expired); err is reserved for transport failures.
	Get(ctx context.Context, key string) (value string, ok bool, err error)

	// Set stores value under key with the given TTL. A non-positive TTL
	// stores the value without expiry.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error

	// IncrBy atomically adds delta to the integer counter at key and
	// resets its TTL in the same round trip, returning the new value.
	// A missing counter starts from zero.
	IncrBy(ctx context.Context, key string, delta int64, ttl time.Duration) (int64, error)

	// Ping checks store reachability. Used for health checks.
	Ping(ctx context.Context) error

	// Close releases client connections. Call during shutdown.
	Close() error
}
