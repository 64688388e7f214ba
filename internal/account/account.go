// Package account defines the uniform contract every exchange venue must
// implement (spec §4.6) plus two implementations: a simulated paper venue
// for dry runs, and a deterministic stub for reconciliation engine tests.
package account

import (
	"context"

	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

// MarginMode mirrors a venue's per-symbol margin setting.
type MarginMode string

const (
	MarginIsolated MarginMode = "isolated"
	MarginCross    MarginMode = "cross"
)

// Position is one symbol's current state on a venue.
type Position struct {
	Size       float64 // signed: positive long, negative short, 0 flat
	EntryPrice float64
	Leverage   int
	MarginMode MarginMode
}

// Processor is the uniform contract every venue account must implement
// (spec §4.6). Order sizing is the reconciliation engine's job; the
// Processor only quantizes to the symbol's size_step and enforces
// min_size/max_single_order_size.
type Processor interface {
	AccountID() sig.AccountID

	// GetTotalEquity returns total account equity including unrealized PnL.
	GetTotalEquity(ctx context.Context) (float64, error)

	// GetPositions returns every open position keyed by canonical symbol.
	GetPositions(ctx context.Context) (map[sig.CanonicalSymbol]Position, error)

	// GetSymbolSpec returns the venue's contract spec for a symbol.
	GetSymbolSpec(ctx context.Context, symbol sig.CanonicalSymbol) (speccache.Spec, error)

	// SetLeverage is idempotent; some venues require a flat position first.
	SetLeverage(ctx context.Context, symbol sig.CanonicalSymbol, leverage int) error

	// SetMarginMode is idempotent; some venues require a flat position first.
	SetMarginMode(ctx context.Context, symbol sig.CanonicalSymbol, mode MarginMode) error

	// RequiresFlatForLeverageChange reports whether this venue needs a flat
	// position before SetLeverage will succeed.
	RequiresFlatForLeverageChange() bool

	// RequiresFlatForMarginModeChange reports whether this venue needs a
	// flat position before SetMarginMode will succeed.
	RequiresFlatForMarginModeChange() bool

	// PlaceMarket places a market order of signedQty (positive buys,
	// negative sells); it may chunk internally to respect
	// max_single_order_size. Returns the signed fill size actually executed.
	PlaceMarket(ctx context.Context, symbol sig.CanonicalSymbol, signedQty float64, reduceOnly bool) (float64, error)

	// ClosePosition issues a reduce-only market close for a symbol, returning
	// the signed fill size.
	ClosePosition(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error)
}
