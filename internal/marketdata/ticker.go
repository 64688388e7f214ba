// Package marketdata streams venue ticker prices as the last-resort source
// in the mark-price resolution order (spec §4.7): a contributing signal's
// price, then a position's entry price, then this package's live ticker.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

const (
	pingInterval     = 15 * time.Second
	readDeadline     = 30 * time.Second
	handshakeTimeout = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// SymbolMapper resolves a canonical symbol to the venue-specific wire
// symbol this feed should subscribe to (e.g. "BTCUSDT" stays "BTCUSDT" on
// Binance; other venues may differ).
type SymbolMapper func(sig.CanonicalSymbol) string

// Feed maintains the latest traded price per canonical symbol from a
// Binance-style aggregate trade stream, for use as a mark-price fallback
// when no signal or position price is available.
type Feed struct {
	log     zerolog.Logger
	symbols []sig.CanonicalSymbol
	toWire  SymbolMapper

	mu     sync.RWMutex
	latest map[sig.CanonicalSymbol]float64
}

// New constructs a Feed tracking the given canonical symbols. toWire may be
// nil, in which case the canonical symbol is used verbatim as the wire
// symbol.
func New(symbols []sig.CanonicalSymbol, toWire SymbolMapper, log zerolog.Logger) *Feed {
	if toWire == nil {
		toWire = func(s sig.CanonicalSymbol) string { return string(s) }
	}
	return &Feed{
		log:     log,
		symbols: symbols,
		toWire:  toWire,
		latest:  make(map[sig.CanonicalSymbol]float64),
	}
}

// MarkPrice implements account.PriceSource: the latest observed trade price
// for symbol, or an error if nothing has been observed yet.
func (f *Feed) MarkPrice(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	px, ok := f.latest[symbol]
	if !ok {
		return 0, fmt.Errorf("no ticker price observed yet for %s", symbol)
	}
	return px, nil
}

// Run connects to the Binance combined trade stream for every tracked
// symbol and updates latest prices until ctx is cancelled, reconnecting
// with exponential backoff on disconnect.
func (f *Feed) Run(ctx context.Context) error {
	if len(f.symbols) == 0 {
		return fmt.Errorf("ticker feed requires at least one symbol")
	}

	streams := make([]string, len(f.symbols))
	for i, sym := range f.symbols {
		streams[i] = strings.ToLower(f.toWire(sym)) + "@aggTrade"
	}
	url := fmt.Sprintf("wss://stream.binance.com:9443/stream?streams=%s", strings.Join(streams, "/"))

	backoff := time.Second
	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err := f.consume(ctx, url); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			f.log.Warn().Err(err).Msg("market data ticker disconnected, retrying")
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff = time.Duration(math.Min(float64(maxBackoff), float64(backoff)*1.8))
			continue
		}
		return nil
	}
}

type tradeEnvelope struct {
	Stream string    `json:"stream"`
	Data   tradeData `json:"data"`
}

type tradeData struct {
	Price string `json:"p"`
}

func (f *Feed) consume(ctx context.Context, url string) error {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	f.log.Info().Int("symbols", len(f.symbols)).Msg("connected market data ticker feed")

	conn.SetReadLimit(1 << 20)
	conn.SetReadDeadline(time.Now().Add(readDeadline))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(readDeadline))
		return nil
	})

	pingCtx, pingCancel := context.WithCancel(ctx)
	defer pingCancel()
	go f.pingLoop(pingCtx, conn)

	wireToCanonical := make(map[string]sig.CanonicalSymbol, len(f.symbols))
	for _, sym := range f.symbols {
		wireToCanonical[strings.ToUpper(f.toWire(sym))] = sym
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var env tradeEnvelope
		if err := json.Unmarshal(message, &env); err != nil {
			f.log.Warn().Err(err).Msg("failed to decode market data message")
			continue
		}
		wireSymbol := parseStreamSymbol(env.Stream)
		canonical, ok := wireToCanonical[wireSymbol]
		if !ok {
			continue
		}
		px, err := strconv.ParseFloat(env.Data.Price, 64)
		if err != nil {
			f.log.Warn().Err(err).Msg("invalid price in market data message")
			continue
		}
		f.mu.Lock()
		f.latest[canonical] = px
		f.mu.Unlock()
	}
}

func (f *Feed) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				f.log.Warn().Err(err).Msg("market data ping failed")
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

func parseStreamSymbol(stream string) string {
	parts := strings.Split(stream, "@")
	if len(parts) == 0 || parts[0] == "" {
		return strings.ToUpper(stream)
	}
	return strings.ToUpper(parts[0])
}
