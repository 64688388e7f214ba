package signalproc

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/sirouk/trade-engine/internal/assetmap"
	"github.com/sirouk/trade-engine/internal/metrics"
	"github.com/sirouk/trade-engine/internal/rawsignal"
	sig "github.com/sirouk/trade-engine/internal/signal"
)

// CloseThreshold is the race-order window (spec §4.2: "adjacent signals
// within 5s").
const CloseThreshold = 5 * time.Second

// FileAdapter polls the raw signal store for one source and reduces its
// time-ordered entries to the latest canonical signal per symbol, applying
// the TradingView race-order rule along the way.
type FileAdapter struct {
	source  sig.SourceID
	store   *rawsignal.Store
	mapper  *assetmap.Mapper
	logger  zerolog.Logger
}

// NewFileAdapter constructs a FileAdapter for one source, backed by a shared
// raw signal store and asset mapper.
func NewFileAdapter(source sig.SourceID, store *rawsignal.Store, mapper *assetmap.Mapper, logger zerolog.Logger) *FileAdapter {
	return &FileAdapter{source: source, store: store, mapper: mapper, logger: logger.With().Str("source", string(source)).Logger()}
}

// SourceID identifies this adapter's source.
func (a *FileAdapter) SourceID() string { return string(a.source) }

// FetchCurrent reads every raw entry for this source, maps source symbols to
// canonical symbols (dropping unmapped ones), applies the race-order rule
// per canonical symbol, and returns the latest signal for each.
func (a *FileAdapter) FetchCurrent(ctx context.Context) ([]Signal, error) {
	entries, err := a.store.ReadSource(a.source)
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[sig.CanonicalSymbol][]rawsignal.Entry)
	dropped := 0
	for _, e := range entries {
		canonical, ok := a.mapper.ToCanonical(a.source, e.SourceSymbol)
		if !ok {
			dropped++
			continue
		}
		bySymbol[canonical] = append(bySymbol[canonical], e)
	}
	if dropped > 0 {
		metrics.SignalsDroppedTotal.WithLabelValues(string(a.source), "unmapped_symbol").Add(float64(dropped))
		a.logger.Warn().Int("dropped", dropped).Msg("raw signals with unmapped source symbol")
	}

	var out []Signal
	for symbol, group := range bySymbol {
		sort.Slice(group, func(i, j int) bool { return group[i].Timestamp.Before(group[j].Timestamp) })
		adjusted := applyRaceOrderRule(group)
		latest := adjusted[len(adjusted)-1]
		signal := Signal{
			Symbol:    string(symbol),
			Source:    string(a.source),
			Depth:     latest.entry.Depth,
			Price:     latest.entry.Price,
			HasPrice:  latest.entry.HasPrice,
			Timestamp: latest.entry.Timestamp.UnixNano(),
			Leverage:  latest.entry.Leverage,
		}
		if latest.audit != nil {
			signal.Audit = latest.audit
		}
		metrics.SignalsIngestedTotal.WithLabelValues(string(a.source), signal.Symbol).Inc()
		out = append(out, signal)
	}
	return out, nil
}

type auditedEntry struct {
	entry rawsignal.Entry
	audit *Audit
}

// applyRaceOrderRule mirrors the TradingView processor's pairwise scan:
// adjacent entries within CloseThreshold forming position->flat, or
// flat->position, are a single transition. Chronological order is kept
// either way — the pair already arrived in that order — but the second
// entry's timestamp is compressed to the first entry's original timestamp
// plus 1ms and audited, so it reliably wins as "latest" over any other
// signal that might otherwise be judged fresher by a naive timestamp
// comparison.
func applyRaceOrderRule(entries []rawsignal.Entry) []auditedEntry {
	processed := make([]auditedEntry, 0, len(entries))
	i := 0
	for i < len(entries) {
		current := entries[i]
		if i+1 < len(entries) {
			next := entries[i+1]
			diff := next.Timestamp.Sub(current.Timestamp)
			if diff >= 0 && diff <= CloseThreshold {
				curDir := directionOf(current.Depth)
				nextDir := directionOf(next.Depth)

				isTransition := (curDir == DirectionLong || curDir == DirectionShort) && nextDir == DirectionFlat ||
					curDir == DirectionFlat && (nextDir == DirectionLong || nextDir == DirectionShort)

				if isTransition {
					originalTS := next.Timestamp.UnixNano()
					adjusted := next
					adjusted.Timestamp = current.Timestamp.Add(time.Millisecond)
					processed = append(processed,
						auditedEntry{entry: current},
						auditedEntry{
							entry: adjusted,
							audit: &Audit{
								OriginalTimestamp: originalTS,
								Adjusted:          true,
								Reason:            "position_transition_reorder",
							},
						},
					)
					i += 2
					continue
				}
			}
		}
		processed = append(processed, auditedEntry{entry: current})
		i++
	}
	return processed
}
