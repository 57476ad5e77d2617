package scheduler

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/stretchr/testify/require"

	"github.com/tickerdeck/tickerdeck/internal/cache"
	"github.com/tickerdeck/tickerdeck/internal/database/testutil"
	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/providers/prices"
	"github.com/tickerdeck/tickerdeck/internal/services"
)

type pagedMarketsProvider struct {
	total   int
	calls   int
	failAll bool
}

func (p *pagedMarketsProvider) Markets(_ context.Context, page, perPage int) ([]prices.Market, error) {
	p.calls++
	if p.failAll {
		return nil, errors.New("provider down")
	}
	start := (page - 1) * perPage
	out := make([]prices.Market, 0, perPage)
	for i := start; i < start+perPage && i < p.total; i++ {
		n := i + 1
		price := float64(n)
		rank := n
		out = append(out, prices.Market{
			ID:            fmt.Sprintf("coin-%d", n),
			Symbol:        fmt.Sprintf("C%d", n),
			Name:          fmt.Sprintf("Coin %d", n),
			CurrentPrice:  &price,
			MarketCapRank: &rank,
		})
	}
	return out, nil
}

func (p *pagedMarketsProvider) SimplePrice(context.Context, []string) (map[string]prices.Quote, error) {
	return map[string]prices.Quote{}, nil
}

func newPricesScheduler(t *testing.T, prov *pagedMarketsProvider, cfg services.SyncConfig, opts ...Option) (*Scheduler, *services.PriceService) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	loader, err := cache.NewLoader(cache.NewDatabaseStore(db))
	require.NoError(t, err)
	svc, err := services.NewPriceService(db, prov, loader, cfg)
	require.NoError(t, err)

	return New(svc, nil, nil, nil, opts...), svc
}

func TestRunOnceFollowsContinuations(t *testing.T) {
	// Three full pages plus a short one; PageCap 1 forces a continuation
	// per scheduler follow-up until the provider runs dry.
	prov := &pagedMarketsProvider{total: 7}
	sched, svc := newPricesScheduler(t, prov, services.SyncConfig{PerPage: 2, PageCap: 1})

	require.NoError(t, sched.RunOnce(context.Background()))
	require.Equal(t, 4, prov.calls)

	_, total, err := svc.ListMarkets(context.Background(), 10, 0)
	require.NoError(t, err)
	require.Equal(t, int64(7), total)
}

func TestRunOnceReportsJobError(t *testing.T) {
	prov := &pagedMarketsProvider{failAll: true}
	sched, _ := newPricesScheduler(t, prov, services.SyncConfig{})

	err := sched.RunOnce(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "provider down")
}

func TestRunOncePrunesExpiredEntries(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	store := cache.NewDatabaseStore(db)

	stale := models.CacheEntry{
		Key:       "markets:all",
		Value:     []byte(`{}`),
		ExpiresAt: time.Now().Add(-10 * 24 * time.Hour),
	}
	fresh := models.CacheEntry{
		Key:       "quote:BTC",
		Value:     []byte(`{}`),
		ExpiresAt: time.Now().Add(time.Hour),
	}
	require.NoError(t, db.Create(&stale).Error)
	require.NoError(t, db.Create(&fresh).Error)

	sched := New(nil, nil, nil, store, WithCacheRetention(7*24*time.Hour))
	require.NoError(t, sched.RunOnce(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.CacheEntry{}).Count(&count).Error)
	require.Equal(t, int64(1), count)
}

func TestStartRegistersJobs(t *testing.T) {
	prov := &pagedMarketsProvider{total: 1}
	c := cron.New(cron.WithLogger(cron.DiscardLogger))
	sched, _ := newPricesScheduler(t, prov, services.SyncConfig{},
		WithCron(c),
		WithMarketsSchedule("@every 1h"),
	)

	require.NoError(t, sched.Start())
	require.Len(t, c.Entries(), 1)

	stopped := sched.Stop()
	select {
	case <-stopped.Done():
	case <-time.After(time.Second):
		t.Fatal("scheduler did not stop in time")
	}
}

func TestStartRejectsBadSpec(t *testing.T) {
	prov := &pagedMarketsProvider{total: 1}
	sched, _ := newPricesScheduler(t, prov, services.SyncConfig{},
		WithMarketsSchedule("not-a-spec"),
	)
	require.Error(t, sched.Start())
}
