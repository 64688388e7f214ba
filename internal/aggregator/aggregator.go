// Package aggregator blends per-source signals into one target allocation
// per canonical symbol and flags which (account, symbol) pairs actually
// changed since the last committed cache, so the reconciliation engine can
// skip untouched work (spec §4.4).
package aggregator

import (
	"context"
	"fmt"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/sirouk/trade-engine/internal/quant"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/signalproc"
	"github.com/sirouk/trade-engine/internal/weightconfig"
)

// ContributingTimestamps maps each source that contributed to a blend to the
// unix-nanosecond timestamp of the signal it contributed.
type ContributingTimestamps map[sig.SourceID]int64

// Result is one symbol's blended outcome for one account.
type Result struct {
	Symbol                  sig.CanonicalSymbol
	TargetDepth             float64
	Leverage                int
	MarkPrice               float64
	HasMarkPrice            bool
	ContributingTimestamps  ContributingTimestamps
	Dirty                   bool
}

// PreviousState is whatever the execution cache can tell the aggregator
// about one account's last committed state for a symbol.
type PreviousState struct {
	TargetDepth            float64
	ContributingTimestamps ContributingTimestamps
}

// Cache is the subset of the execution cache contract the aggregator needs.
// internal/execcache.Store satisfies this.
type Cache interface {
	Lookup(account sig.AccountID, symbol sig.CanonicalSymbol) (PreviousState, bool)
}

// Aggregator blends adapter output under the weight table and diffs it
// against the execution cache.
type Aggregator struct {
	adapters []signalproc.Adapter
	weights  *weightconfig.Store
	cache    Cache
}

// New constructs an Aggregator over a fixed set of adapters, a weight store,
// and whatever cache implementation backs "clean" detection.
func New(adapters []signalproc.Adapter, weights *weightconfig.Store, cache Cache) *Aggregator {
	return &Aggregator{adapters: adapters, weights: weights, cache: cache}
}

// Run fetches every adapter concurrently (bounded by ctx's deadline),
// blends per-symbol targets, and evaluates clean/dirty for each enabled
// account. The returned map is keyed by account, then by canonical symbol.
func (a *Aggregator) Run(ctx context.Context, accounts []sig.AccountID) (map[sig.AccountID]map[sig.CanonicalSymbol]Result, error) {
	bySourceSymbol, err := a.fetchAll(ctx)
	if err != nil {
		return nil, err
	}

	blended := a.blend(bySourceSymbol)

	out := make(map[sig.AccountID]map[sig.CanonicalSymbol]Result, len(accounts))
	for _, account := range accounts {
		perSymbol := make(map[sig.CanonicalSymbol]Result, len(blended))
		for symbol, result := range blended {
			result.Dirty = a.isDirty(account, result)
			perSymbol[symbol] = result
		}
		out[account] = perSymbol
	}
	return out, nil
}

// fetchAll runs FetchCurrent on every adapter concurrently; a per-adapter
// error or timeout yields an empty contribution for that source and does not
// fail the cycle (spec §4.2).
func (a *Aggregator) fetchAll(ctx context.Context) (map[sig.SourceID]map[sig.CanonicalSymbol]signalproc.Signal, error) {
	results := make([]map[sig.CanonicalSymbol]signalproc.Signal, len(a.adapters))

	g, gctx := errgroup.WithContext(ctx)
	for i, adapter := range a.adapters {
		i, adapter := i, adapter
		g.Go(func() error {
			signals, err := adapter.FetchCurrent(gctx)
			if err != nil {
				// Timeouts/errors degrade to "no opinion" for this source;
				// the cycle continues with whatever other sources provided.
				results[i] = map[sig.CanonicalSymbol]signalproc.Signal{}
				return nil
			}
			bySymbol := make(map[sig.CanonicalSymbol]signalproc.Signal, len(signals))
			for _, s := range signals {
				bySymbol[sig.CanonicalSymbol(s.Symbol)] = s
			}
			results[i] = bySymbol
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("fetch adapters: %w", err)
	}

	bySourceSymbol := make(map[sig.SourceID]map[sig.CanonicalSymbol]signalproc.Signal, len(a.adapters))
	for i, adapter := range a.adapters {
		bySourceSymbol[sig.SourceID(adapter.SourceID())] = results[i]
	}
	return bySourceSymbol, nil
}

func (a *Aggregator) blend(bySourceSymbol map[sig.SourceID]map[sig.CanonicalSymbol]signalproc.Signal) map[sig.CanonicalSymbol]Result {
	out := make(map[sig.CanonicalSymbol]Result)
	for _, symbol := range a.weights.Symbols() {
		entry, ok := a.weights.EntryFor(symbol)
		if !ok {
			continue
		}

		// Accumulated as a fixed-point decimal rather than float64: a
		// symbol's blend is a sum of up to several weight*depth terms, and
		// drift here would silently move an execution-cache dirty check.
		depthSum := quant.Zero()
		timestamps := ContributingTimestamps{}
		var markPrice float64
		var hasMarkPrice bool

		for _, sw := range entry.Sources {
			if sw.Weight == 0 {
				continue
			}
			bySymbol, ok := bySourceSymbol[sw.Source]
			if !ok {
				continue
			}
			signal, ok := bySymbol[symbol]
			if !ok {
				continue
			}
			term := quant.Mul(quant.FromFloat(sw.Weight), quant.FromFloat(signal.Depth))
			depthSum = quant.Add(depthSum, term)
			timestamps[sw.Source] = signal.Timestamp
			if !hasMarkPrice && signal.HasPrice {
				markPrice = signal.Price
				hasMarkPrice = true
			}
		}

		clamped := quant.Clamp(depthSum, quant.FromFloat(-1), quant.FromFloat(1))

		out[symbol] = Result{
			Symbol:                 symbol,
			TargetDepth:            quant.Float64(clamped),
			Leverage:               entry.Leverage,
			MarkPrice:              markPrice,
			HasMarkPrice:           hasMarkPrice,
			ContributingTimestamps: timestamps,
		}
	}
	return out
}

func (a *Aggregator) isDirty(account sig.AccountID, result Result) bool {
	if a.cache == nil {
		return true
	}
	prev, ok := a.cache.Lookup(account, result.Symbol)
	if !ok {
		return true
	}
	if prev.TargetDepth != result.TargetDepth {
		return true
	}
	return !timestampsEqual(prev.ContributingTimestamps, result.ContributingTimestamps)
}

func timestampsEqual(a, b ContributingTimestamps) bool {
	if len(a) != len(b) {
		return false
	}
	keys := make([]sig.SourceID, 0, len(a))
	for k := range a {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })
	for _, k := range keys {
		if a[k] != b[k] {
			return false
		}
	}
	return true
}
