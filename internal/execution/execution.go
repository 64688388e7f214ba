// Package execution holds the order/fill vocabulary shared by every account
// processor implementation, plus a thin metrics-emitting submit helper.
package execution

import (
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/sirouk/trade-engine/internal/metrics"
)

// Side enumerates order directions.
type Side string

const (
	// Buy indicates a long-direction order (opening long or closing short).
	Buy Side = "BUY"
	// Sell indicates a short-direction order (opening short or closing long).
	Sell Side = "SELL"
)

// Order represents one market order a Processor is asked to place. Qty is
// always positive; Side carries the direction. ReduceOnly marks a close or
// flip-leg order that must not increase position size.
type Order struct {
	Account    string
	Symbol     string
	Side       Side
	Qty        float64
	Price      float64 // 0 for a true market order; set when simulating a fill
	ReduceOnly bool
}

// Fill is the venue's response to a placed Order: the side, the unsigned
// quantity that actually executed (Side gives the direction) and the price
// it executed at. ID is unique per fill so a
// FillRecorder can dedupe or correlate a chunked order's legs.
type Fill struct {
	ID        string
	Account   string
	Symbol    string
	Side      Side
	Qty       float64
	Price     float64
	Timestamp int64 // unix nanoseconds
}

// NewFillID returns a fresh unique identifier for one simulated or live
// fill.
func NewFillID() string {
	return uuid.NewString()
}

// Submit emits the OrdersTotal metric and an info log line for an order
// about to be placed. It does not place the order itself — callers invoke
// it alongside their own Processor.PlaceMarket call.
func Submit(log zerolog.Logger, order Order) {
	metrics.OrdersTotal.WithLabelValues(order.Account, order.Symbol, string(order.Side)).Inc()
	log.Info().
		Str("account", order.Account).
		Str("symbol", order.Symbol).
		Str("side", string(order.Side)).
		Float64("qty", order.Qty).
		Bool("reduce_only", order.ReduceOnly).
		Msg("submitting order")
}
