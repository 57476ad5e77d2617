package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/tickerdeck/tickerdeck/internal/database/testutil"
	"github.com/tickerdeck/tickerdeck/internal/models"
)

// feedServer fakes the exchange websocket: it acks the subscribe frame, sends
// the configured tick frames, then closes the connection.
func feedServer(t *testing.T, frames []string, dials *atomic.Int32) string {
	t.Helper()

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		dials.Add(1)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		// Consume the subscribe frame.
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
		_ = conn.WriteMessage(websocket.TextMessage, []byte(`{"result":null,"id":1}`))

		for _, frame := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(frame)); err != nil {
				return
			}
		}
	}))
	t.Cleanup(server.Close)

	return "ws" + strings.TrimPrefix(server.URL, "http")
}

func TestListenerPersistsAndParsesTicks(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	require.NoError(t, db.Create(&models.TickerSnapshot{
		Symbol: "BTC", Name: "Bitcoin", Rank: 1, Source: "prices",
		PriceUSD: 60000, FetchedAt: time.Now().UTC(),
	}).Error)

	var dials atomic.Int32
	url := feedServer(t, []string{
		`{"result":null,"id":2}`,
		`{"s":"BTCUSDT","c":"not-a-number"}`,
		`{"s":"BTCUSDT","c":"65000.5"}`,
	}, &dials)

	listener, err := NewListener(Config{
		URL:            url,
		Symbols:        []string{"BTC"},
		ReconnectDelay: 10 * time.Millisecond,
		MaxReconnects:  1,
	}, db, nil)
	require.NoError(t, err)

	err = listener.Run(context.Background())
	require.Error(t, err) // reconnect budget exhausted after server stops

	var snapshot models.TickerSnapshot
	require.NoError(t, db.Where("symbol = ?", "BTC").Take(&snapshot).Error)
	require.Equal(t, 65000.5, snapshot.PriceUSD)
}

func TestListenerReconnectsWithBackoff(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	var dials atomic.Int32
	url := feedServer(t, nil, &dials)

	listener, err := NewListener(Config{
		URL:               url,
		Symbols:           []string{"BTC"},
		ReconnectDelay:    5 * time.Millisecond,
		MaxReconnectDelay: 10 * time.Millisecond,
		MaxReconnects:     3,
	}, db, nil)
	require.NoError(t, err)

	err = listener.Run(context.Background())
	require.Error(t, err)
	require.Contains(t, err.Error(), "giving up after 3 reconnect attempts")
	require.EqualValues(t, 4, dials.Load()) // initial session plus three retries
}

func TestListenerStopsOnContextCancel(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer server.Close()

	listener, err := NewListener(Config{
		URL:     "ws" + strings.TrimPrefix(server.URL, "http"),
		Symbols: []string{"BTC"},
	}, db, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- listener.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop after cancel")
	}
}

func TestListenerParseTickStripsQuote(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	listener, err := NewListener(Config{URL: "ws://example", Symbols: []string{"BTC"}}, db, nil)
	require.NoError(t, err)

	tick, ok := listener.parseTick([]byte(`{"s":"ETHUSDT","c":"3200.25"}`))
	require.True(t, ok)
	require.Equal(t, "ETH", tick.Symbol)
	require.Equal(t, 3200.25, tick.PriceUSD)

	tick, ok = listener.parseTick([]byte(`{"s":"SOLUSD","c":"150"}`))
	require.True(t, ok)
	require.Equal(t, "SOL", tick.Symbol)

	_, ok = listener.parseTick([]byte(`{"result":null,"id":1}`))
	require.False(t, ok)

	_, ok = listener.parseTick([]byte(`{"s":"BTCUSDT","c":"-1"}`))
	require.False(t, ok)
}
