package account

import (
	"context"
	"sync"

	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

// StubProcessor is a deterministic, scripted Processor for exercising the
// reconciliation engine without a simulated market. Callers pre-load the
// equity, positions, and spec it should report, then inspect Calls after a
// reconciliation pass to assert on what the engine actually issued.
type StubProcessor struct {
	account sig.AccountID

	mu        sync.Mutex
	equity    float64
	positions map[sig.CanonicalSymbol]Position
	spec      speccache.Spec

	requiresFlatForLeverage   bool
	requiresFlatForMarginMode bool

	// FailPlaceMarket and FailSetLeverage let a test script a specific
	// symbol to error on a given call, for exercising retry/failure paths.
	FailPlaceMarket map[sig.CanonicalSymbol]error
	FailSetLeverage map[sig.CanonicalSymbol]error

	Calls []string
}

// NewStubProcessor constructs a StubProcessor reporting the given starting
// equity and spec for every symbol.
func NewStubProcessor(accountID sig.AccountID, equity float64, spec speccache.Spec) *StubProcessor {
	return &StubProcessor{
		account:   accountID,
		equity:    equity,
		positions: map[sig.CanonicalSymbol]Position{},
		spec:      spec,
	}
}

// SeedPosition installs a starting position for a symbol.
func (s *StubProcessor) SeedPosition(symbol sig.CanonicalSymbol, pos Position) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.positions[symbol] = pos
}

// RequireFlatForChanges makes the stub behave like a venue that must be
// flat before leverage or margin mode can change.
func (s *StubProcessor) RequireFlatForChanges(leverage, marginMode bool) {
	s.requiresFlatForLeverage = leverage
	s.requiresFlatForMarginMode = marginMode
}

func (s *StubProcessor) AccountID() sig.AccountID { return s.account }

func (s *StubProcessor) GetTotalEquity(ctx context.Context) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.equity, nil
}

func (s *StubProcessor) GetPositions(ctx context.Context) (map[sig.CanonicalSymbol]Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[sig.CanonicalSymbol]Position, len(s.positions))
	for sym, pos := range s.positions {
		out[sym] = pos
	}
	return out, nil
}

func (s *StubProcessor) GetSymbolSpec(ctx context.Context, symbol sig.CanonicalSymbol) (speccache.Spec, error) {
	return s.spec, nil
}

func (s *StubProcessor) SetLeverage(ctx context.Context, symbol sig.CanonicalSymbol, leverage int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "SetLeverage:"+string(symbol))
	if err := s.FailSetLeverage[symbol]; err != nil {
		return err
	}
	pos := s.positions[symbol]
	pos.Leverage = leverage
	s.positions[symbol] = pos
	return nil
}

func (s *StubProcessor) SetMarginMode(ctx context.Context, symbol sig.CanonicalSymbol, mode MarginMode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "SetMarginMode:"+string(symbol))
	pos := s.positions[symbol]
	pos.MarginMode = mode
	s.positions[symbol] = pos
	return nil
}

func (s *StubProcessor) RequiresFlatForLeverageChange() bool { return s.requiresFlatForLeverage }

func (s *StubProcessor) RequiresFlatForMarginModeChange() bool { return s.requiresFlatForMarginMode }

func (s *StubProcessor) PlaceMarket(ctx context.Context, symbol sig.CanonicalSymbol, signedQty float64, reduceOnly bool) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Calls = append(s.Calls, "PlaceMarket:"+string(symbol))
	if err := s.FailPlaceMarket[symbol]; err != nil {
		return 0, err
	}
	pos := s.positions[symbol]
	pos.Size += signedQty
	s.positions[symbol] = pos
	return signedQty, nil
}

func (s *StubProcessor) ClosePosition(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error) {
	s.mu.Lock()
	current := s.positions[symbol].Size
	s.mu.Unlock()
	if current == 0 {
		return 0, nil
	}
	return s.PlaceMarket(ctx, symbol, -current, true)
}
