package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/tickerdeck/tickerdeck/internal/database/testutil"
)

func TestDatabaseStoreSetAndGet(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	value, found, err := store.Get(ctx, "prices:markets:v1")
	require.NoError(t, err)
	require.False(t, found)
	require.Nil(t, value)

	require.NoError(t, store.Set(ctx, "prices:markets:v1", []byte(`{"BTC":65000}`), time.Minute))

	value, found, err = store.Get(ctx, "prices:markets:v1")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"BTC":65000}`, string(value))

	// Overwriting the same key keeps a single row.
	require.NoError(t, store.Set(ctx, "prices:markets:v1", []byte(`{"BTC":66000}`), time.Minute))
	value, found, err = store.Get(ctx, "prices:markets:v1")
	require.NoError(t, err)
	require.True(t, found)
	require.JSONEq(t, `{"BTC":66000}`, string(value))
}

func TestDatabaseStoreExpiryAndStaleRead(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "social:stats:v1", []byte(`{"score":71}`), 300*time.Second))

	// Fresh within the TTL.
	_, found, err := store.Get(ctx, "social:stats:v1")
	require.NoError(t, err)
	require.True(t, found)

	// Past the TTL the plain read misses but the stale read still serves.
	store.now = func() time.Time { return now.Add(301 * time.Second) }

	_, found, err = store.Get(ctx, "social:stats:v1")
	require.NoError(t, err)
	require.False(t, found)

	value, found, expired, err := store.GetStale(ctx, "social:stats:v1")
	require.NoError(t, err)
	require.True(t, found)
	require.True(t, expired)
	require.JSONEq(t, `{"score":71}`, string(value))
}

func TestDatabaseStorePruneExpired(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	now := time.Now()
	store.now = func() time.Time { return now.Add(-10 * 24 * time.Hour) }
	require.NoError(t, store.Set(ctx, "old:entry:v1", []byte(`1`), time.Minute))

	store.now = func() time.Time { return now }
	require.NoError(t, store.Set(ctx, "new:entry:v1", []byte(`2`), time.Minute))

	pruned, err := store.PruneExpired(ctx, 7*24*time.Hour)
	require.NoError(t, err)
	require.EqualValues(t, 1, pruned)

	_, found, _, err := store.GetStale(ctx, "old:entry:v1")
	require.NoError(t, err)
	require.False(t, found)

	_, found, _, err = store.GetStale(ctx, "new:entry:v1")
	require.NoError(t, err)
	require.True(t, found)
}

func TestDatabaseStoreIncrementWithTTL(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	count, _, err := store.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)

	count, _, err = store.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
}

func TestDatabaseStoreIncrementKeepsWindowEnd(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	base := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return base }
	_, ttl, err := store.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.Equal(t, time.Minute, ttl)

	// Later hits inside the window shrink the remaining TTL instead of
	// pushing the window end out.
	store.now = func() time.Time { return base.Add(40 * time.Second) }
	count, ttl, err := store.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 2, count)
	require.Equal(t, 20*time.Second, ttl)

	// Once the window lapses, the counter and the window both reset.
	store.now = func() time.Time { return base.Add(61 * time.Second) }
	count, ttl, err = store.IncrementWithTTL(ctx, "ratelimit:ip", time.Minute)
	require.NoError(t, err)
	require.EqualValues(t, 1, count)
	require.Equal(t, time.Minute, ttl)
}

func TestDatabaseStoreDelete(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := NewDatabaseStore(db)
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, "a", []byte(`1`), time.Minute))
	require.NoError(t, store.Set(ctx, "b", []byte(`2`), time.Minute))
	require.NoError(t, store.Delete(ctx, "a", "b"))

	_, found, err := store.Get(ctx, "a")
	require.NoError(t, err)
	require.False(t, found)
}
