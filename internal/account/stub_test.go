package account

import (
	"context"
	"errors"
	"testing"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

func TestStubProcessorTracksCallsAndPositions(t *testing.T) {
	s := NewStubProcessor("acct-1", 5000, defaultSpec())
	s.SeedPosition("BTCUSDT", Position{Size: 1, EntryPrice: 90})

	if _, err := s.PlaceMarket(context.Background(), "BTCUSDT", 0.5, false); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	positions, _ := s.GetPositions(context.Background())
	if positions["BTCUSDT"].Size != 1.5 {
		t.Fatalf("expected position size 1.5, got %v", positions["BTCUSDT"].Size)
	}
	if len(s.Calls) != 1 || s.Calls[0] != "PlaceMarket:BTCUSDT" {
		t.Fatalf("expected one recorded PlaceMarket call, got %v", s.Calls)
	}
}

func TestStubProcessorScriptedPlaceMarketFailure(t *testing.T) {
	boom := errors.New("boom")
	s := NewStubProcessor("acct-1", 5000, defaultSpec())
	s.FailPlaceMarket = map[sig.CanonicalSymbol]error{"BTCUSDT": boom}

	if _, err := s.PlaceMarket(context.Background(), "BTCUSDT", 1, false); err != boom {
		t.Fatalf("expected scripted failure, got %v", err)
	}
}

func TestStubProcessorRequiresFlatFlags(t *testing.T) {
	s := NewStubProcessor("acct-1", 5000, defaultSpec())
	s.RequireFlatForChanges(true, true)
	if !s.RequiresFlatForLeverageChange() || !s.RequiresFlatForMarginModeChange() {
		t.Fatalf("expected scripted flat-required flags to take effect")
	}
}

func TestStubProcessorClosePositionOnFlatIsNoop(t *testing.T) {
	s := NewStubProcessor("acct-1", 5000, defaultSpec())
	filled, err := s.ClosePosition(context.Background(), "BTCUSDT")
	if err != nil || filled != 0 {
		t.Fatalf("expected no-op close on flat position, got filled=%v err=%v", filled, err)
	}
}
