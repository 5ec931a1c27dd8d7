package cache

import (
	"context"
	"errors"
	"time"
)

// ErrUnavailable wraps every backend failure (network, timeout, protocol).
var ErrUnavailable = errors.New("cache backend unavailable")

// Store is the cache port. A zero ttl means the key does not expire.
type Store interface {
	Get(ctx context.Context, key string) (string, bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete reports whether the key existed before the call.
	Delete(ctx context.Context, key string) (bool, error)
	Exists(ctx context.Context, key string) (bool, error)

	// SetIfAbsent stores value only when key is missing and reports whether it
	// did. Exactly one of several concurrent callers observes true.
	SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// Incr increments an integer counter. ttl is applied only when the
	// increment creates the key (fixed window).
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL returns the remaining lifetime of key; zero when the key is missing
	// or has no expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)

	// AddToSet adds member to the set at key. A positive ttl pushes the set's
	// expiry out to at least ttl from now and never pulls it in; a set
	// created without ttl does not expire.
	AddToSet(ctx context.Context, key, member string, ttl time.Duration) error
	RemoveFromSet(ctx context.Context, key, member string) error
	Members(ctx context.Context, key string) ([]string, error)

	Ping(ctx context.Context) error
	// Shared reports whether writes are visible to other service instances.
	Shared() bool
}
