package cache

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/tickerdeck/tickerdeck/pkg/logger"
	"github.com/tickerdeck/tickerdeck/pkg/metrics"
)

// Outcome describes how a cache-aside read was resolved.
type Outcome string

const (
	OutcomeHit           Outcome = "cache_hit"
	OutcomeMissFetched   Outcome = "cache_miss_fetched"
	OutcomeStaleFallback Outcome = "cache_miss_stale_fallback"
	OutcomeError         Outcome = "error"
)

// FetchFunc produces the serialized payload for a cache key by calling the
// external provider. It returns ErrRateLimited (possibly wrapped) when the
// provider signalled throttling.
type FetchFunc func(ctx context.Context) ([]byte, error)

// Loader implements the cache-aside read path: fresh hit short-circuits,
// misses fetch from the provider and repopulate the store, and rate-limited
// fetches fall back to an expired entry when one exists.
type Loader struct {
	store Store
	log   *zap.Logger
}

// NewLoader constructs a Loader over the supplied store.
func NewLoader(store Store) (*Loader, error) {
	if store == nil {
		return nil, errors.New("cache: loader requires a store")
	}
	return &Loader{
		store: store,
		log:   logger.WithModule("cache"),
	}, nil
}

// GetOrFetch returns the freshest available value for key with the minimum
// number of provider calls, recording exactly one outcome per invocation.
func (l *Loader) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch FetchFunc) ([]byte, Outcome, error) {
	if fetch == nil {
		return nil, OutcomeError, errors.New("cache: fetch func is required")
	}

	value, found, err := l.store.Get(ctx, key)
	if err != nil {
		l.observe(key, OutcomeError)
		return nil, OutcomeError, err
	}
	if found {
		l.observe(key, OutcomeHit)
		return value, OutcomeHit, nil
	}

	// Hold the expired copy before contacting the provider so a rate-limit
	// answer can still be served.
	stale, staleFound, _, staleErr := l.store.GetStale(ctx, key)
	if staleErr != nil {
		staleFound = false
	}

	fetched, err := fetch(ctx)
	if err != nil {
		if errors.Is(err, ErrRateLimited) && staleFound {
			l.observe(key, OutcomeStaleFallback)
			l.log.Warn("serving stale cache value, provider rate limited",
				zap.String("key", key),
				zap.Error(err),
			)
			return stale, OutcomeStaleFallback, nil
		}
		l.observe(key, OutcomeError)
		return nil, OutcomeError, err
	}

	if err := l.store.Set(ctx, key, fetched, ttl); err != nil {
		// The fetched value is valid even when the write-back fails.
		l.log.Warn("cache write-back failed", zap.String("key", key), zap.Error(err))
	}

	l.observe(key, OutcomeMissFetched)
	return fetched, OutcomeMissFetched, nil
}

// Invalidate drops the entry for key so the next read goes to the provider.
// Used by force-refresh requests.
func (l *Loader) Invalidate(ctx context.Context, key string) error {
	return l.store.Delete(ctx, key)
}

func (l *Loader) observe(key string, outcome Outcome) {
	metrics.CacheOutcomes.WithLabelValues(keyPrefix(key), string(outcome)).Inc()
	l.log.Debug("cache read", zap.String("key", key), zap.String("outcome", string(outcome)))
}

// keyPrefix trims a cache key to its "<provider>:<resource>" portion to keep
// metric cardinality bounded.
func keyPrefix(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[0] + ":" + parts[1]
}
