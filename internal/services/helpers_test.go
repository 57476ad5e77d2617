package services

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormaliseSymbols(t *testing.T) {
	got := normaliseSymbols([]string{" btc", "BTC", "", "eth ", "btc"})
	require.Equal(t, []string{"BTC", "ETH"}, got)
	require.Nil(t, normaliseSymbols(nil))
}

func TestClampLimit(t *testing.T) {
	require.Equal(t, 50, clampLimit(0, 50, 250))
	require.Equal(t, 50, clampLimit(-1, 50, 250))
	require.Equal(t, 10, clampLimit(10, 50, 250))
	require.Equal(t, 250, clampLimit(9999, 50, 250))
}

func TestSyncConfigDefaults(t *testing.T) {
	cfg := SyncConfig{}.withDefaults()
	require.Equal(t, defaultBatchSize, cfg.BatchSize)
	require.Equal(t, defaultPerPage, cfg.PerPage)
	require.Equal(t, defaultPageCap, cfg.PageCap)
	require.Equal(t, defaultCacheTTL, cfg.CacheTTL)

	cfg = SyncConfig{BatchSize: 10, InterBatchDelay: 0}.withDefaults()
	require.Equal(t, 10, cfg.BatchSize)
	require.Zero(t, cfg.InterBatchDelay)
}
