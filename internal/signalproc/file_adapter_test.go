package signalproc

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirouk/trade-engine/internal/assetmap"
	"github.com/sirouk/trade-engine/internal/rawsignal"
	sig "github.com/sirouk/trade-engine/internal/signal"
)

func setup(t *testing.T, rawJSON string) (*FileAdapter, string) {
	t.Helper()
	base := t.TempDir()
	dir := filepath.Join(base, "tradingview")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "signals_001.json"), []byte(rawJSON), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}

	mappingPath := filepath.Join(base, "asset_mapping_config.json")
	os.WriteFile(mappingPath, []byte(`{"BTC": {"tradingview": "BTCUSDT"}}`), 0o644)
	mapper := assetmap.New(mappingPath)
	if err := mapper.Reload(); err != nil {
		t.Fatalf("mapper reload: %v", err)
	}

	store := rawsignal.New(base)
	adapter := NewFileAdapter(sig.SourceID("tradingview"), store, mapper, zerolog.Nop())
	return adapter, base
}

func TestFileAdapterRaceReorderPositionThenFlat(t *testing.T) {
	adapter, _ := setup(t, `[
		{"symbol":"BTCUSDT","depth":-1.0,"timestamp":"2026-08-03T17:32:00.883979Z"},
		{"symbol":"BTCUSDT","depth":0.0,"timestamp":"2026-08-03T17:32:00.890186Z"}
	]`)

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	got := signals[0]
	if got.Depth != 0.0 {
		t.Fatalf("expected winning depth 0 (flat), got %f", got.Depth)
	}
	if got.Audit == nil || !got.Audit.Adjusted || got.Audit.Reason != "position_transition_reorder" {
		t.Fatalf("expected adjusted audit with position_transition_reorder reason, got %+v", got.Audit)
	}

	expectedTS := time.Date(2026, 8, 3, 17, 32, 0, 883979000, time.UTC).Add(time.Millisecond)
	if got.Timestamp != expectedTS.UnixNano() {
		t.Fatalf("expected timestamp %s, got %s", expectedTS, time.Unix(0, got.Timestamp).UTC())
	}
}

func TestFileAdapterRaceReorderFlatThenPosition(t *testing.T) {
	adapter, _ := setup(t, `[
		{"symbol":"BTCUSDT","depth":0.0,"timestamp":"2026-08-03T17:32:00.883979Z"},
		{"symbol":"BTCUSDT","depth":0.5,"timestamp":"2026-08-03T17:32:00.887000Z"}
	]`)

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	got := signals[0]
	if got.Depth != 0.5 {
		t.Fatalf("expected winning depth 0.5 (position), got %f", got.Depth)
	}
	if got.Audit == nil || !got.Audit.Adjusted {
		t.Fatalf("expected adjusted audit, got %+v", got.Audit)
	}
}

func TestFileAdapterNoReorderBeyondThreshold(t *testing.T) {
	adapter, _ := setup(t, `[
		{"symbol":"BTCUSDT","depth":-1.0,"timestamp":"2026-08-03T17:32:00.000000Z"},
		{"symbol":"BTCUSDT","depth":0.0,"timestamp":"2026-08-03T17:32:10.000000Z"}
	]`)

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 1 {
		t.Fatalf("expected 1 signal, got %d", len(signals))
	}
	if signals[0].Audit != nil {
		t.Fatalf("expected no audit adjustment beyond the close threshold, got %+v", signals[0].Audit)
	}
}

func TestFileAdapterDropsUnmappedSymbol(t *testing.T) {
	adapter, _ := setup(t, `[{"symbol":"UNKNOWNUSDT","depth":0.5,"timestamp":"2026-08-03T17:32:00.000000Z"}]`)

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected unmapped symbol to be dropped, got %d signals", len(signals))
	}
}
