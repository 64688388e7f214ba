package account

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/rs/zerolog"

	"github.com/sirouk/trade-engine/internal/execution"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

const paperEpsilon = 1e-9

// PriceSource is the mark-price lookup a PaperProcessor needs in order to
// simulate fills and mark positions to market. A real deployment would
// satisfy this from internal/marketdata's ticker fallback or the
// aggregator's contributing signal price.
type PriceSource interface {
	MarkPrice(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error)
}

// FillRecorder captures paper fills for later inspection, grounded on the
// teacher's paper.FillRecorder.
type FillRecorder interface {
	Record(execution.Fill)
}

// PaperProcessor is a simulated venue: it tracks cash, realized PnL, and
// per-symbol positions/leverage/margin-mode entirely in memory, satisfying
// the full Processor contract so it can stand in for a real venue during
// dry runs.
type PaperProcessor struct {
	account  sig.AccountID
	prices   PriceSource
	recorder FillRecorder
	log      zerolog.Logger

	defaultSpec speccache.Spec
	specs       map[sig.CanonicalSymbol]speccache.Spec

	mu          sync.Mutex
	balance     float64
	realizedPnL float64
	positions   map[sig.CanonicalSymbol]Position
}

// NewPaperProcessor constructs a PaperProcessor with a starting account
// balance and a price source used for fills and mark-to-market. Balance
// only moves on realized PnL; opening or adding to a position locks margin
// without spending balance, matching how leveraged futures collateral
// works on a real venue.
func NewPaperProcessor(accountID sig.AccountID, startingCash float64, prices PriceSource, recorder FillRecorder, defaultSpec speccache.Spec, log zerolog.Logger) *PaperProcessor {
	return &PaperProcessor{
		account:     accountID,
		balance:     startingCash,
		prices:      prices,
		recorder:    recorder,
		defaultSpec: defaultSpec,
		specs:       map[sig.CanonicalSymbol]speccache.Spec{},
		positions:   map[sig.CanonicalSymbol]Position{},
		log:         log.With().Str("account", string(accountID)).Logger(),
	}
}

// SetSymbolSpec registers a per-symbol spec override, otherwise the default
// spec applies.
func (p *PaperProcessor) SetSymbolSpec(symbol sig.CanonicalSymbol, spec speccache.Spec) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.specs[symbol] = spec
}

// AccountID implements Processor.
func (p *PaperProcessor) AccountID() sig.AccountID { return p.account }

// GetTotalEquity implements Processor: balance plus unrealized PnL of every
// open position, marked at the current price source. Balance only moves on
// realized PnL, so opening or adding to a position never changes equity by
// itself; only the mark-to-market term does.
func (p *PaperProcessor) GetTotalEquity(ctx context.Context) (float64, error) {
	p.mu.Lock()
	balance := p.balance
	positions := make(map[sig.CanonicalSymbol]Position, len(p.positions))
	for sym, pos := range p.positions {
		positions[sym] = pos
	}
	p.mu.Unlock()

	equity := balance
	for symbol, pos := range positions {
		if pos.Size == 0 {
			continue
		}
		mark, err := p.prices.MarkPrice(ctx, symbol)
		if err != nil {
			continue // no ticker fallback available, skip unrealized PnL for this symbol
		}
		equity += (mark - pos.EntryPrice) * pos.Size
	}
	return equity, nil
}

// GetPositions implements Processor.
func (p *PaperProcessor) GetPositions(ctx context.Context) (map[sig.CanonicalSymbol]Position, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make(map[sig.CanonicalSymbol]Position, len(p.positions))
	for sym, pos := range p.positions {
		out[sym] = pos
	}
	return out, nil
}

// GetSymbolSpec implements Processor.
func (p *PaperProcessor) GetSymbolSpec(ctx context.Context, symbol sig.CanonicalSymbol) (speccache.Spec, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if spec, ok := p.specs[symbol]; ok {
		return spec, nil
	}
	return p.defaultSpec, nil
}

// SetLeverage implements Processor. The paper venue never requires a flat
// position to change leverage.
func (p *PaperProcessor) SetLeverage(ctx context.Context, symbol sig.CanonicalSymbol, leverage int) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positions[symbol]
	pos.Leverage = leverage
	p.positions[symbol] = pos
	return nil
}

// SetMarginMode implements Processor.
func (p *PaperProcessor) SetMarginMode(ctx context.Context, symbol sig.CanonicalSymbol, mode MarginMode) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	pos := p.positions[symbol]
	pos.MarginMode = mode
	p.positions[symbol] = pos
	return nil
}

// RequiresFlatForLeverageChange implements Processor.
func (p *PaperProcessor) RequiresFlatForLeverageChange() bool { return false }

// RequiresFlatForMarginModeChange implements Processor.
func (p *PaperProcessor) RequiresFlatForMarginModeChange() bool { return false }

// PlaceMarket implements Processor, quantizing to the symbol's spec and
// chunking into sequential sub-orders when the request exceeds
// MaxSingleOrderSize.
func (p *PaperProcessor) PlaceMarket(ctx context.Context, symbol sig.CanonicalSymbol, signedQty float64, reduceOnly bool) (float64, error) {
	spec, err := p.GetSymbolSpec(ctx, symbol)
	if err != nil {
		return 0, err
	}
	quantized := Quantize(signedQty, spec.MinSize, spec.SizeStep)
	if quantized == 0 {
		return 0, nil
	}

	chunkCap := spec.MaxSingleOrderSize
	if chunkCap <= 0 {
		chunkCap = math.Abs(quantized)
	}

	var filled float64
	remaining := math.Abs(quantized)
	sign := 1.0
	if quantized < 0 {
		sign = -1.0
	}
	for remaining > paperEpsilon {
		chunk := math.Min(remaining, chunkCap)
		f, err := p.fillOne(ctx, symbol, sign*chunk, reduceOnly)
		if err != nil {
			return filled, fmt.Errorf("place market chunk for %s: %w", symbol, err)
		}
		filled += f
		remaining -= chunk
	}
	return filled, nil
}

// ClosePosition implements Processor: a reduce-only market order that
// brings the symbol flat.
func (p *PaperProcessor) ClosePosition(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error) {
	p.mu.Lock()
	current := p.positions[symbol].Size
	p.mu.Unlock()
	if current == 0 {
		return 0, nil
	}
	return p.PlaceMarket(ctx, symbol, -current, true)
}

// lockedMargin sums the margin every open position currently ties up, based
// on each position's own entry price and leverage. Must be called with mu
// held.
func (p *PaperProcessor) lockedMargin() float64 {
	var total float64
	for _, pos := range p.positions {
		if pos.Size == 0 {
			continue
		}
		leverage := pos.Leverage
		if leverage < 1 {
			leverage = 1
		}
		total += math.Abs(pos.Size) * pos.EntryPrice / float64(leverage)
	}
	return total
}

func (p *PaperProcessor) fillOne(ctx context.Context, symbol sig.CanonicalSymbol, signedQty float64, reduceOnly bool) (float64, error) {
	mark, err := p.prices.MarkPrice(ctx, symbol)
	if err != nil {
		return 0, fmt.Errorf("resolve mark price: %w", err)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	pos := p.positions[symbol]
	notional := math.Abs(signedQty) * mark

	side := execution.Buy
	if signedQty < 0 {
		side = execution.Sell
	}

	leverage := pos.Leverage
	if leverage < 1 {
		leverage = 1
	}

	// Balance only changes on realized PnL; opening or adding to a position
	// locks margin as collateral without spending balance. The locked
	// margin still has to fit inside the account's balance, so any increase
	// in exposure is gated against balance minus whatever margin is already
	// locked across every symbol.
	increasing := pos.Size == 0 || sameSign(pos.Size, signedQty)
	if increasing && !reduceOnly {
		addedMargin := notional / float64(leverage)
		freeMargin := p.balance - p.lockedMargin()
		if addedMargin > freeMargin+paperEpsilon {
			return 0, fmt.Errorf("insufficient margin: need %.8f at %dx, have %.8f free", addedMargin, leverage, freeMargin)
		}
	}

	newSize := pos.Size + signedQty
	switch {
	case increasing:
		newAvg := mark
		if newSize != 0 {
			newAvg = ((pos.EntryPrice * pos.Size) + (mark * signedQty)) / newSize
		}
		pos.EntryPrice = newAvg
	default:
		// Reducing, closing, or flipping through flat: only the realized
		// PnL on the closed portion touches balance.
		closingQty := math.Min(math.Abs(signedQty), math.Abs(pos.Size))
		realized := (mark - pos.EntryPrice) * closingQty * sign(pos.Size)
		p.realizedPnL += realized
		p.balance += realized
		if math.Abs(signedQty) > math.Abs(pos.Size) {
			// Flip: remainder opens a new position in the opposite direction,
			// gated against free margin once the old side's margin is released.
			remainderQty := math.Abs(signedQty) - closingQty
			if !reduceOnly {
				oldMargin := math.Abs(pos.Size) * pos.EntryPrice / float64(leverage)
				freeMargin := p.balance - (p.lockedMargin() - oldMargin)
				remainderMargin := remainderQty * mark / float64(leverage)
				if remainderMargin > freeMargin+paperEpsilon {
					return 0, fmt.Errorf("insufficient margin for flip remainder: need %.8f at %dx, have %.8f free", remainderMargin, leverage, freeMargin)
				}
			}
			pos.EntryPrice = mark
		}
	}
	pos.Size = newSize
	if math.Abs(pos.Size) < paperEpsilon {
		pos.Size = 0
		pos.EntryPrice = 0
	}
	p.positions[symbol] = pos

	fill := execution.Fill{
		ID:        execution.NewFillID(),
		Account:   string(p.account),
		Symbol:    string(symbol),
		Side:      side,
		Qty:       math.Abs(signedQty),
		Price:     mark,
		Timestamp: 0,
	}
	if p.recorder != nil {
		p.recorder.Record(fill)
	}
	p.log.Info().Str("symbol", string(symbol)).Float64("signed_qty", signedQty).Float64("price", mark).Msg("paper fill")

	return signedQty, nil
}

func sameSign(a, b float64) bool {
	return (a > 0 && b > 0) || (a < 0 && b < 0)
}

func sign(v float64) float64 {
	if v < 0 {
		return -1
	}
	return 1
}
