// Package stream maintains the live trade feed connection that keeps spot
// prices moving between snapshot syncs.
package stream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/tickerdeck/tickerdeck/internal/models"
	"github.com/tickerdeck/tickerdeck/internal/realtime"
	"github.com/tickerdeck/tickerdeck/pkg/logger"
	"github.com/tickerdeck/tickerdeck/pkg/metrics"
)

// Config tunes the listener's connection behaviour.
type Config struct {
	// URL is the exchange websocket endpoint.
	URL string
	// Symbols are the base symbols to subscribe to.
	Symbols []string
	// ReconnectDelay is the initial delay before a reconnect attempt; it
	// doubles per consecutive failure up to MaxReconnectDelay.
	ReconnectDelay time.Duration
	// MaxReconnectDelay caps the backoff.
	MaxReconnectDelay time.Duration
	// MaxReconnects bounds consecutive failed attempts before the listener
	// gives up. Zero means retry forever.
	MaxReconnects int
	// ReadTimeout is the per-message read deadline.
	ReadTimeout time.Duration
	// WriteTimeout is the deadline for subscribe frames.
	WriteTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = time.Second
	}
	if c.MaxReconnectDelay <= 0 {
		c.MaxReconnectDelay = 30 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 60 * time.Second
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = 10 * time.Second
	}
	return c
}

// tickEvent is the exchange's mini-ticker payload.
type tickEvent struct {
	Symbol string `json:"s"`
	Close  string `json:"c"`
}

// Tick is a normalized price update pushed to the hub.
type Tick struct {
	Symbol   string    `json:"symbol"`
	PriceUSD float64   `json:"price_usd"`
	At       time.Time `json:"at"`
}

// Listener holds a websocket subscription to the exchange trade feed,
// persisting each tick and fanning it out to dashboard clients.
type Listener struct {
	cfg  Config
	db   *gorm.DB
	hub  *realtime.Hub
	log  *zap.Logger
	now  func() time.Time
	dial func(ctx context.Context, url string) (*websocket.Conn, error)
}

// NewListener constructs a Listener. The hub may be nil when no dashboard
// fan-out is wanted.
func NewListener(cfg Config, db *gorm.DB, hub *realtime.Hub) (*Listener, error) {
	if cfg.URL == "" {
		return nil, errors.New("stream: url is required")
	}
	if db == nil {
		return nil, errors.New("stream: db is required")
	}
	return &Listener{
		cfg: cfg.withDefaults(),
		db:  db,
		hub: hub,
		log: logger.WithModule("stream"),
		now: time.Now,
		dial: func(ctx context.Context, url string) (*websocket.Conn, error) {
			dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
			conn, _, err := dialer.DialContext(ctx, url, nil)
			return conn, err
		},
	}, nil
}

// Run connects and consumes the feed until ctx is cancelled or the reconnect
// budget is exhausted. Each consecutive failure doubles the backoff up to the
// cap; a successful session resets it.
func (l *Listener) Run(ctx context.Context) error {
	delay := l.cfg.ReconnectDelay
	failures := 0

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := l.consume(ctx)
		if err == nil || errors.Is(err, context.Canceled) {
			return ctx.Err()
		}

		failures++
		metrics.StreamReconnects.Inc()
		if l.cfg.MaxReconnects > 0 && failures > l.cfg.MaxReconnects {
			l.log.Error("reconnect budget exhausted, stopping feed",
				zap.Int("attempts", failures-1), zap.Error(err))
			return fmt.Errorf("stream: giving up after %d reconnect attempts: %w", failures-1, err)
		}

		l.log.Warn("feed disconnected, reconnecting",
			zap.Duration("delay", delay),
			zap.Int("attempt", failures),
			zap.Error(err),
		)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}

		delay *= 2
		if delay > l.cfg.MaxReconnectDelay {
			delay = l.cfg.MaxReconnectDelay
		}
	}
}

// consume runs one connect/subscribe/read session. A nil error means ctx was
// cancelled; any other return is a connection failure the caller may retry.
func (l *Listener) consume(ctx context.Context) error {
	conn, err := l.dial(ctx, l.cfg.URL)
	if err != nil {
		return fmt.Errorf("stream: dial: %w", err)
	}
	defer conn.Close()

	if err := l.subscribe(conn); err != nil {
		return err
	}
	l.log.Info("feed connected", zap.Int("symbols", len(l.cfg.Symbols)))

	// Unblock reads when the caller shuts down.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
				time.Now().Add(l.cfg.WriteTimeout))
			_ = conn.Close()
		case <-done:
		}
	}()

	for {
		_ = conn.SetReadDeadline(time.Now().Add(l.cfg.ReadTimeout))
		_, payload, err := conn.ReadMessage()
		if err != nil {
			if ctx.Err() != nil {
				return context.Canceled
			}
			return fmt.Errorf("stream: read: %w", err)
		}

		if tick, ok := l.parseTick(payload); ok {
			l.handleTick(ctx, tick)
		}
	}
}

// subscribe sends the exchange subscription frame for all configured symbols.
func (l *Listener) subscribe(conn *websocket.Conn) error {
	if len(l.cfg.Symbols) == 0 {
		return nil
	}

	params := make([]string, 0, len(l.cfg.Symbols))
	for _, symbol := range l.cfg.Symbols {
		symbol = strings.ToLower(strings.TrimSpace(symbol))
		if symbol == "" {
			continue
		}
		params = append(params, symbol+"usdt@miniTicker")
	}

	_ = conn.SetWriteDeadline(time.Now().Add(l.cfg.WriteTimeout))
	return conn.WriteJSON(map[string]any{
		"method": "SUBSCRIBE",
		"params": params,
		"id":     1,
	})
}

// parseTick extracts a price update from a feed frame, ignoring subscription
// acks and malformed payloads.
func (l *Listener) parseTick(payload []byte) (Tick, bool) {
	var event tickEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return Tick{}, false
	}
	if event.Symbol == "" || event.Close == "" {
		return Tick{}, false
	}

	price, err := strconv.ParseFloat(event.Close, 64)
	if err != nil || price <= 0 {
		return Tick{}, false
	}

	symbol := strings.ToUpper(event.Symbol)
	for _, quote := range []string{"USDT", "USD"} {
		if base, found := strings.CutSuffix(symbol, quote); found && base != "" {
			symbol = base
			break
		}
	}

	return Tick{Symbol: symbol, PriceUSD: price, At: l.now().UTC()}, true
}

// handleTick updates the stored snapshot price and pushes the tick to
// subscribed dashboard clients.
func (l *Listener) handleTick(ctx context.Context, tick Tick) {
	err := l.db.WithContext(ctx).
		Model(&models.TickerSnapshot{}).
		Where("symbol = ?", tick.Symbol).
		Updates(map[string]interface{}{
			"price_usd":  tick.PriceUSD,
			"fetched_at": tick.At,
		}).Error
	if err != nil {
		l.log.Warn("tick persist failed", zap.String("symbol", tick.Symbol), zap.Error(err))
	}

	if l.hub != nil {
		l.hub.BroadcastStream(realtime.StreamPrices, realtime.Message{
			Event: "tick",
			Data:  tick,
		})
	}
}
