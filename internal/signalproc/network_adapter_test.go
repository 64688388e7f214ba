package signalproc

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

type stubRanker struct {
	signals []Signal
	err     error
	calls   int
}

func (r *stubRanker) Rank(ctx context.Context) ([]Signal, error) {
	r.calls++
	if r.err != nil {
		return nil, r.err
	}
	return r.signals, nil
}

func TestNetworkAdapterRefreshPublishesLatestView(t *testing.T) {
	ranker := &stubRanker{signals: []Signal{{Symbol: "BTC", Depth: 0.3}}}
	adapter := NewNetworkAdapter(zerolog.Nop(), sig.SourceID("bittensor"), ranker, time.Minute)

	if err := adapter.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh returned error: %v", err)
	}

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 1 || signals[0].Symbol != "BTC" {
		t.Fatalf("unexpected signals: %+v", signals)
	}
}

func TestNetworkAdapterFetchBeforeFirstRefreshIsEmpty(t *testing.T) {
	ranker := &stubRanker{signals: []Signal{{Symbol: "BTC"}}}
	adapter := NewNetworkAdapter(zerolog.Nop(), sig.SourceID("bittensor"), ranker, time.Minute)

	signals, err := adapter.FetchCurrent(context.Background())
	if err != nil {
		t.Fatalf("FetchCurrent returned error: %v", err)
	}
	if len(signals) != 0 {
		t.Fatalf("expected no signals before first refresh, got %d", len(signals))
	}
}

func TestNetworkAdapterClampsIntervalToMinimum(t *testing.T) {
	ranker := &stubRanker{}
	adapter := NewNetworkAdapter(zerolog.Nop(), sig.SourceID("bittensor"), ranker, time.Second)
	if adapter.interval != MinPollInterval {
		t.Fatalf("expected interval to be clamped to %s, got %s", MinPollInterval, adapter.interval)
	}
}

func TestNetworkAdapterRefreshErrorSurfacesWithNoPriorData(t *testing.T) {
	ranker := &stubRanker{err: errors.New("ranking service unavailable")}
	adapter := NewNetworkAdapter(zerolog.Nop(), sig.SourceID("bittensor"), ranker, time.Minute)

	if err := adapter.Refresh(context.Background()); err == nil {
		t.Fatalf("expected Refresh to return an error")
	}

	if _, err := adapter.FetchCurrent(context.Background()); err == nil {
		t.Fatalf("expected FetchCurrent to surface the error when no data has ever been published")
	}
}
