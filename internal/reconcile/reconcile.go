// Package reconcile implements the three-level parallel reconciliation
// engine (spec §4.7, §5): accounts run unbounded and concurrently, symbols
// within an account run bounded by a semaphore, and a single symbol's
// INSPECT→VERIFY state machine runs strictly sequentially.
package reconcile

import (
	"context"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/semaphore"

	"github.com/sirouk/trade-engine/internal/account"
	"github.com/sirouk/trade-engine/internal/aggregator"
	"github.com/sirouk/trade-engine/internal/execcache"
	"github.com/sirouk/trade-engine/internal/metrics"
	"github.com/sirouk/trade-engine/internal/retry"
	"github.com/sirouk/trade-engine/internal/risk"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

// Snapshot is the frozen (total_equity, positions) pair captured exactly
// once per (cycle, account), shared read-only by every symbol task for
// that account.
type Snapshot struct {
	TotalEquity float64
	Positions   map[sig.CanonicalSymbol]account.Position
}

// Engine holds the knobs and shared caches every reconciliation cycle uses.
type Engine struct {
	Concurrency       int
	RetryPolicy       retry.Policy
	Guard             risk.Guard
	SpecCache         *speccache.Cache
	Ticker            account.PriceSource
	DesiredMarginMode account.MarginMode
	Log               zerolog.Logger
}

// NewEngine constructs an Engine with the spec's default desired margin
// mode (isolated).
func NewEngine(concurrency int, retryPolicy retry.Policy, guard risk.Guard, specCache *speccache.Cache, ticker account.PriceSource, log zerolog.Logger) *Engine {
	return &Engine{
		Concurrency:       concurrency,
		RetryPolicy:       retryPolicy,
		Guard:             guard,
		SpecCache:         specCache,
		Ticker:            ticker,
		DesiredMarginMode: account.MarginIsolated,
		Log:               log,
	}
}

// SymbolOutcome records what happened to one (account, symbol) this cycle.
type SymbolOutcome struct {
	Account sig.AccountID
	Symbol  sig.CanonicalSymbol
	State   string // "noop", "done", "failed", "skipped_clean"
	Err     error
}

// RunCycle reconciles every account concurrently (L1, unbounded), each
// account's dirty symbols concurrently bounded by Engine.Concurrency (L2),
// and each symbol sequentially through its state machine (L3). Clean
// symbols never issue any adapter call. Execution cache commits happen
// exactly once per account at the end of that account's fan-out,
// regardless of individual symbol failures.
func (e *Engine) RunCycle(ctx context.Context, accounts []account.Processor, targets map[sig.AccountID]map[sig.CanonicalSymbol]aggregator.Result, cache *execcache.Store) []SymbolOutcome {
	var (
		mu       sync.Mutex
		outcomes []SymbolOutcome
		wg       sync.WaitGroup
	)

	for _, proc := range accounts {
		proc := proc
		accountTargets := targets[proc.AccountID()]
		wg.Add(1)
		go func() {
			defer wg.Done()
			results := e.reconcileAccount(ctx, proc, accountTargets, cache)
			mu.Lock()
			outcomes = append(outcomes, results...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}

func (e *Engine) reconcileAccount(ctx context.Context, proc account.Processor, targets map[sig.CanonicalSymbol]aggregator.Result, cache *execcache.Store) []SymbolOutcome {
	log := e.Log.With().Str("account", string(proc.AccountID())).Logger()

	snapshot, err := captureSnapshot(ctx, proc)
	if err != nil {
		log.Error().Err(err).Msg("failed to capture account snapshot, skipping account this cycle")
		return []SymbolOutcome{{Account: proc.AccountID(), State: "failed", Err: err}}
	}

	sem := semaphore.NewWeighted(int64(maxInt(1, e.Concurrency)))
	var (
		mu       sync.Mutex
		outcomes []SymbolOutcome
		wg       sync.WaitGroup
	)

	for symbol, result := range targets {
		symbol, result := symbol, result
		if !result.Dirty {
			metrics.SymbolsCleanTotal.WithLabelValues(string(proc.AccountID())).Inc()
			mu.Lock()
			outcomes = append(outcomes, SymbolOutcome{Account: proc.AccountID(), Symbol: symbol, State: "skipped_clean"})
			mu.Unlock()
			continue
		}
		metrics.SymbolsDirtyTotal.WithLabelValues(string(proc.AccountID())).Inc()
		if err := sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			outcomes = append(outcomes, SymbolOutcome{Account: proc.AccountID(), Symbol: symbol, State: "failed", Err: err})
			mu.Unlock()
			continue
		}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer sem.Release(1)
			state, err := e.reconcileSymbol(ctx, proc, snapshot, symbol, result)
			outcome := SymbolOutcome{Account: proc.AccountID(), Symbol: symbol, State: state, Err: err}
			if err == nil && (state == "done" || state == "noop") {
				cache.CommitSymbol(proc.AccountID(), symbol, result.TargetDepth, result.ContributingTimestamps)
			} else if err != nil {
				log.Warn().Str("symbol", string(symbol)).Err(err).Msg("symbol reconciliation failed, isolated from other symbols")
			}
			mu.Lock()
			outcomes = append(outcomes, outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()

	if err := cache.Flush(proc.AccountID()); err != nil {
		log.Error().Err(err).Msg("failed to flush execution cache for account")
	}
	return outcomes
}

func captureSnapshot(ctx context.Context, proc account.Processor) (Snapshot, error) {
	equity, err := proc.GetTotalEquity(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get total equity: %w", err)
	}
	positions, err := proc.GetPositions(ctx)
	if err != nil {
		return Snapshot{}, fmt.Errorf("get positions: %w", err)
	}
	return Snapshot{TotalEquity: equity, Positions: positions}, nil
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func sign(v float64) float64 {
	switch {
	case v > 0:
		return 1
	case v < 0:
		return -1
	default:
		return 0
	}
}
