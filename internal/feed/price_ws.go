// Package feed streams pushed price updates from a websocket source into the
// pair actors. Every frame carries the source's observation timestamp, so
// frames arriving out of order are resolved by the actors' monotonic price
// acceptance, not by arrival order.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/trailbot/internal/decimal"
)

const (
	readTimeout  = 60 * time.Second
	pingInterval = 25 * time.Second
	reconnectGap = 2 * time.Second
)

// Pair identifies one subscribed trading pair.
type Pair struct {
	TokenAddress   string `json:"tokenAddress"`
	VsTokenAddress string `json:"vsTokenAddress"`
}

// PriceUpdate is one pushed price frame.
type PriceUpdate struct {
	Pair
	Price        decimal.Amount `json:"price"`
	ObservedAtMS int64          `json:"observedAtMS"`
}

// UpdateHandler is called for each price frame.
type UpdateHandler func(ctx context.Context, update PriceUpdate)

// subscribeMessage is the frame sent after connecting.
type subscribeMessage struct {
	Op    string `json:"op"`
	Pairs []Pair `json:"pairs"`
}

// PriceWSFeed connects to the price stream, subscribes to the given pairs,
// and invokes the handler on each frame. It reconnects with backoff on
// disconnect.
type PriceWSFeed struct {
	wsURL     string
	pairs     []Pair
	onUpdate  UpdateHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewPriceWSFeed creates a feed for the given pairs.
func NewPriceWSFeed(wsURL string, pairs []Pair, onUpdate UpdateHandler, logger *slog.Logger) *PriceWSFeed {
	return &PriceWSFeed{
		wsURL:    wsURL,
		pairs:    pairs,
		onUpdate: onUpdate,
		logger:   logger.With(slog.String("component", "price_ws_feed")),
		done:     make(chan struct{}),
	}
}

// Run connects, subscribes, and runs until ctx is cancelled, reconnecting on
// disconnect.
func (f *PriceWSFeed) Run(ctx context.Context) error {
	if len(f.pairs) == 0 {
		f.logger.Info("feed: no pairs to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}

		err := f.runConnection(ctx)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			f.logger.Warn("feed: disconnected, reconnecting", slog.String("error", err.Error()))
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case <-time.After(reconnectGap):
		}
	}
}

func (f *PriceWSFeed) runConnection(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, f.wsURL, nil)
	cancel()
	if err != nil {
		return fmt.Errorf("feed: dial %s: %w", f.wsURL, err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMessage{Op: "subscribe", Pairs: f.pairs}); err != nil {
		return fmt.Errorf("feed: subscribe: %w", err)
	}
	f.logger.Info("feed: subscribed", slog.Int("pairs", len(f.pairs)))

	conn.SetReadDeadline(time.Now().Add(readTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(readTimeout))
	})

	// Close the connection when ctx ends so the read loop unblocks; send
	// pings to keep the read deadline fed.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				conn.Close()
				return
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("feed: read: %w", err)
		}
		var update PriceUpdate
		if err := json.Unmarshal(msg, &update); err != nil {
			f.logger.Warn("feed: malformed frame", slog.String("error", err.Error()))
			continue
		}
		if update.TokenAddress == "" || update.VsTokenAddress == "" {
			continue
		}
		if f.onUpdate != nil {
			f.onUpdate(ctx, update)
		}
	}
}

// Close stops the feed.
func (f *PriceWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
