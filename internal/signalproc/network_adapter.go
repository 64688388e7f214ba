package signalproc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

// MinPollInterval is the floor on a NetworkAdapter's background refresh
// cadence (spec §4.2: "fetches and ranks remote producers on a separate
// cadence (≥ 60 s)").
const MinPollInterval = 60 * time.Second

// Ranker performs the actual ranking/filtering of a network signal source's
// candidates. It is an injected, out-of-scope collaborator — the adapter
// only owns the polling cadence and the latest-view cache.
type Ranker interface {
	Rank(ctx context.Context) ([]Signal, error)
}

// NetworkAdapter polls a Ranker on a background cadence and serves the most
// recent ranked result to FetchCurrent from an in-memory cache, so the
// aggregator's own per-cycle fetch never blocks on the network directly.
type NetworkAdapter struct {
	log      zerolog.Logger
	source   sig.SourceID
	ranker   Ranker
	interval time.Duration

	mu      sync.Mutex
	latest  []Signal
	lastErr error
}

// NewNetworkAdapter constructs a NetworkAdapter for one network-polled
// source. interval is clamped up to MinPollInterval.
func NewNetworkAdapter(log zerolog.Logger, source sig.SourceID, ranker Ranker, interval time.Duration) *NetworkAdapter {
	if interval < MinPollInterval {
		interval = MinPollInterval
	}
	return &NetworkAdapter{
		log:      log.With().Str("source", string(source)).Logger(),
		source:   source,
		ranker:   ranker,
		interval: interval,
	}
}

// SourceID identifies this adapter's source.
func (a *NetworkAdapter) SourceID() string { return string(a.source) }

// Start launches the background polling loop and returns immediately; the
// loop stops once ctx is done.
func (a *NetworkAdapter) Start(ctx context.Context) {
	go a.loop(ctx)
}

func (a *NetworkAdapter) loop(ctx context.Context) {
	if err := a.Refresh(ctx); err != nil {
		a.log.Warn().Err(err).Msg("network signal source refresh failed")
	}
	ticker := time.NewTicker(a.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.Refresh(ctx); err != nil {
				a.log.Warn().Err(err).Msg("network signal source refresh failed")
			}
		}
	}
}

// Refresh performs one ranking pass and replaces the latest-view cache.
func (a *NetworkAdapter) Refresh(ctx context.Context) error {
	signals, err := a.ranker.Rank(ctx)
	a.mu.Lock()
	defer a.mu.Unlock()
	if err != nil {
		a.lastErr = err
		return err
	}
	a.latest = signals
	a.lastErr = nil
	return nil
}

// FetchCurrent returns the most recently ranked snapshot. It never itself
// blocks on the network — the caller sees whatever the background loop last
// published, even if that is empty because no refresh has completed yet.
func (a *NetworkAdapter) FetchCurrent(ctx context.Context) ([]Signal, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.latest == nil && a.lastErr != nil {
		return nil, fmt.Errorf("network adapter %s has no successful refresh yet: %w", a.source, a.lastErr)
	}
	out := make([]Signal, len(a.latest))
	copy(out, a.latest)
	return out, nil
}
