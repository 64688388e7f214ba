package account

import (
	"context"
	"testing"

	"github.com/rs/zerolog"

	"github.com/sirouk/trade-engine/internal/execution"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

type fixedPrices map[sig.CanonicalSymbol]float64

func (f fixedPrices) MarkPrice(ctx context.Context, symbol sig.CanonicalSymbol) (float64, error) {
	return f[symbol], nil
}

type recordingRecorder struct {
	fills []execution.Fill
}

func (r *recordingRecorder) Record(f execution.Fill) {
	r.fills = append(r.fills, f)
}

func defaultSpec() speccache.Spec {
	return speccache.Spec{
		MinSize:            0.001,
		SizeStep:           0.001,
		PriceStep:          0.01,
		MaxSingleOrderSize: 1000,
		ContractMultiplier: 1,
		MaxLeverage:        20,
	}
}

func TestPaperProcessorOpensLongPosition(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 100}
	rec := &recordingRecorder{}
	p := NewPaperProcessor("acct-1", 10_000, prices, rec, defaultSpec(), zerolog.Nop())

	filled, err := p.PlaceMarket(context.Background(), "BTCUSDT", 2, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filled != 2 {
		t.Fatalf("expected fill of 2, got %v", filled)
	}

	positions, _ := p.GetPositions(context.Background())
	pos := positions["BTCUSDT"]
	if pos.Size != 2 || pos.EntryPrice != 100 {
		t.Fatalf("unexpected position: %+v", pos)
	}
	if len(rec.fills) != 1 {
		t.Fatalf("expected one recorded fill, got %d", len(rec.fills))
	}

	equity, _ := p.GetTotalEquity(context.Background())
	if equity != 10_000 {
		t.Fatalf("expected unchanged equity at cost basis, got %v", equity)
	}
}

func TestPaperProcessorClosePositionRealizesPnL(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 100}
	p := NewPaperProcessor("acct-1", 10_000, prices, nil, defaultSpec(), zerolog.Nop())

	if _, err := p.PlaceMarket(context.Background(), "BTCUSDT", 1, false); err != nil {
		t.Fatalf("open: %v", err)
	}

	prices["BTCUSDT"] = 110
	filled, err := p.ClosePosition(context.Background(), "BTCUSDT")
	if err != nil {
		t.Fatalf("close: %v", err)
	}
	if filled != -1 {
		t.Fatalf("expected close fill of -1, got %v", filled)
	}

	positions, _ := p.GetPositions(context.Background())
	if positions["BTCUSDT"].Size != 0 {
		t.Fatalf("expected flat position, got %+v", positions["BTCUSDT"])
	}

	equity, _ := p.GetTotalEquity(context.Background())
	if equity != 10_010 {
		t.Fatalf("expected equity to include 10 realized profit, got %v", equity)
	}
}

func TestPaperProcessorFlipsThroughFlat(t *testing.T) {
	prices := fixedPrices{"ETHUSDT": 50}
	p := NewPaperProcessor("acct-1", 10_000, prices, nil, defaultSpec(), zerolog.Nop())

	if _, err := p.PlaceMarket(context.Background(), "ETHUSDT", 1, false); err != nil {
		t.Fatalf("open long: %v", err)
	}
	if _, err := p.PlaceMarket(context.Background(), "ETHUSDT", -2, false); err != nil {
		t.Fatalf("flip to short: %v", err)
	}

	positions, _ := p.GetPositions(context.Background())
	pos := positions["ETHUSDT"]
	if pos.Size != -1 {
		t.Fatalf("expected short position of -1 after flip, got %v", pos.Size)
	}
	if pos.EntryPrice != 50 {
		t.Fatalf("expected new entry price at flip mark, got %v", pos.EntryPrice)
	}
}

func TestPaperProcessorChunksLargeOrders(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 100}
	rec := &recordingRecorder{}
	spec := defaultSpec()
	spec.MaxSingleOrderSize = 1
	p := NewPaperProcessor("acct-1", 1_000_000, prices, rec, spec, zerolog.Nop())

	filled, err := p.PlaceMarket(context.Background(), "BTCUSDT", 2.5, false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if filled != 2.5 {
		t.Fatalf("expected total filled of 2.5, got %v", filled)
	}
	if len(rec.fills) != 3 {
		t.Fatalf("expected 3 chunked fills (1, 1, 0.5), got %d", len(rec.fills))
	}
}

func TestPaperProcessorInsufficientCashRejectsBuy(t *testing.T) {
	prices := fixedPrices{"BTCUSDT": 100}
	p := NewPaperProcessor("acct-1", 10, prices, nil, defaultSpec(), zerolog.Nop())

	if _, err := p.PlaceMarket(context.Background(), "BTCUSDT", 1, false); err == nil {
		t.Fatalf("expected insufficient cash error")
	}
}

func TestPaperProcessorLeverageAndMarginModeAreIdempotentAndNeverRequireFlat(t *testing.T) {
	p := NewPaperProcessor("acct-1", 1000, fixedPrices{}, nil, defaultSpec(), zerolog.Nop())
	if p.RequiresFlatForLeverageChange() || p.RequiresFlatForMarginModeChange() {
		t.Fatalf("paper venue should never require flat for leverage/margin changes")
	}
	if err := p.SetLeverage(context.Background(), "BTCUSDT", 10); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := p.SetMarginMode(context.Background(), "BTCUSDT", MarginCross); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	positions, _ := p.GetPositions(context.Background())
	if positions["BTCUSDT"].Leverage != 10 || positions["BTCUSDT"].MarginMode != MarginCross {
		t.Fatalf("unexpected position state: %+v", positions["BTCUSDT"])
	}
}
