package cache

import (
	"context"
	"time"

	apperrors "github.com/tickerdeck/tickerdeck/pkg/errors"
)

// ErrRateLimited is the provider-side rate limit signal. Fetch functions
// passed to the Loader return it (possibly wrapped) when the upstream answers
// with its throttling status, which makes the loader prefer a stale cached
// value over an error.
var ErrRateLimited error = apperrors.ErrProviderRateLimited

// Store represents the shared key-value cache table used across the application.
type Store interface {
	// Get returns the value for key when a fresh (unexpired) entry exists.
	Get(ctx context.Context, key string) ([]byte, bool, error)
	// GetStale returns the value for key regardless of expiry, reporting
	// whether the entry has already expired.
	GetStale(ctx context.Context, key string) (value []byte, found bool, expired bool, err error)
	// Set upserts the value for key with the supplied TTL.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	// Delete removes keys from the store.
	Delete(ctx context.Context, keys ...string) error
	// IncrementWithTTL atomically increments a counter for key within a window.
	IncrementWithTTL(ctx context.Context, key string, window time.Duration) (int64, time.Duration, error)
}
