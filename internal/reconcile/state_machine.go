package reconcile

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirouk/trade-engine/internal/account"
	"github.com/sirouk/trade-engine/internal/aggregator"
	"github.com/sirouk/trade-engine/internal/execution"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/speccache"
)

// reconcileSymbol drives one symbol through INSPECT → … → VERIFY → DONE|FAIL
// (spec §4.7), retrying the whole sequence from INSPECT up to
// RetryPolicy.MaxRetries times when a transition or verification fails.
// The first INSPECT reads the frozen account snapshot; every retry re-reads
// live position state, since earlier attempts within the same symbol may
// already have moved the position.
func (e *Engine) reconcileSymbol(ctx context.Context, proc account.Processor, snapshot Snapshot, symbol sig.CanonicalSymbol, result aggregator.Result) (string, error) {
	spec, err := e.resolveSpec(ctx, proc, symbol)
	if err != nil {
		return "failed", fmt.Errorf("resolve symbol spec: %w", err)
	}

	initial := snapshot.Positions[symbol]
	markPrice, err := e.resolveMarkPrice(ctx, result, initial, symbol)
	if err != nil {
		return "failed", fmt.Errorf("resolve mark price: %w", err)
	}

	qTargetRaw := result.TargetDepth * snapshot.TotalEquity * float64(result.Leverage) / markPrice
	qTarget := resolveQTarget(qTargetRaw, initial.Size, spec)

	var lastErr error
	for attempt := 0; attempt <= e.RetryPolicy.MaxRetries; attempt++ {
		pos := initial
		if attempt > 0 {
			live, err := proc.GetPositions(ctx)
			if err != nil {
				lastErr = fmt.Errorf("re-inspect position: %w", err)
				if !e.wait(ctx, attempt) {
					return "failed", lastErr
				}
				continue
			}
			pos = live[symbol]
		}

		state, err := e.applyTransition(ctx, proc, symbol, pos, qTarget, result.Leverage, e.DesiredMarginMode, spec, markPrice)
		if err != nil {
			lastErr = err
			if attempt == e.RetryPolicy.MaxRetries {
				return "failed", lastErr
			}
			if !e.wait(ctx, attempt) {
				return "failed", lastErr
			}
			continue
		}
		if state == "noop" {
			return "noop", nil
		}

		verified, err := proc.GetPositions(ctx)
		if err != nil {
			lastErr = fmt.Errorf("verify position: %w", err)
			if attempt == e.RetryPolicy.MaxRetries {
				return "failed", lastErr
			}
			if !e.wait(ctx, attempt) {
				return "failed", lastErr
			}
			continue
		}
		vpos := verified[symbol]
		if withinTolerance(vpos, qTarget, result.Leverage, e.DesiredMarginMode, spec) {
			return "done", nil
		}
		lastErr = fmt.Errorf("symbol %s did not converge to target %.8f (observed %.8f) after attempt %d", symbol, qTarget, vpos.Size, attempt)
		if attempt == e.RetryPolicy.MaxRetries {
			return "failed", lastErr
		}
		if !e.wait(ctx, attempt) {
			return "failed", lastErr
		}
	}
	return "failed", lastErr
}

// resolveQTarget quantizes a raw target size to the symbol's lot step, with
// one exception to account.Quantize's min_size bump: when the position is
// currently flat and the raw target itself rounds to fewer than min_size's
// worth of steps, the target is zero rather than manufactured dust (spec
// §8: "desired quantity below min_size and current position zero -> no
// order placed"). min_size still rescues a real adjustment to an existing
// position that happens to round small.
func resolveQTarget(raw, currentSize float64, spec speccache.Spec) float64 {
	if currentSize == 0 && spec.SizeStep > 0 {
		steps := math.Floor(math.Abs(raw)/spec.SizeStep + 0.5)
		if steps*spec.SizeStep < spec.MinSize {
			return 0
		}
	}
	return account.Quantize(raw, spec.MinSize, spec.SizeStep)
}

func (e *Engine) wait(ctx context.Context, attempt int) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(e.RetryPolicy.Backoff(attempt + 1)):
		return true
	}
}

func withinTolerance(pos account.Position, qTarget float64, leverage int, desiredMargin account.MarginMode, spec speccache.Spec) bool {
	return math.Abs(pos.Size-qTarget) < spec.SizeStep && pos.Leverage == leverage && pos.MarginMode == desiredMargin
}

// applyTransition implements the ADJUST_MARGIN?/ADJUST_LEVERAGE?/RESIZE|
// FLIP|CLOSE|NOOP branch of the state machine for one INSPECT pass.
func (e *Engine) applyTransition(ctx context.Context, proc account.Processor, symbol sig.CanonicalSymbol, pos account.Position, qTarget float64, leverage int, desiredMargin account.MarginMode, spec speccache.Spec, markPrice float64) (string, error) {
	withinSize := math.Abs(pos.Size-qTarget) < spec.SizeStep
	leverageMatches := pos.Leverage == leverage
	marginMatches := pos.MarginMode == desiredMargin

	if withinSize && leverageMatches && marginMatches {
		return "noop", nil
	}

	if sign(pos.Size) != 0 && sign(qTarget) != 0 && sign(pos.Size) != sign(qTarget) {
		if err := e.placeClose(ctx, proc, symbol, pos.Size, markPrice); err != nil {
			return "", fmt.Errorf("flip close leg: %w", err)
		}
		if err := e.placeResize(ctx, proc, symbol, 0, qTarget, markPrice); err != nil {
			return "", fmt.Errorf("flip resize leg: %w", err)
		}
		return "flip", nil
	}

	if !leverageMatches || !marginMatches {
		current := pos.Size
		if !leverageMatches && proc.RequiresFlatForLeverageChange() && current != 0 {
			if err := e.placeClose(ctx, proc, symbol, current, markPrice); err != nil {
				return "", fmt.Errorf("adjust leverage close leg: %w", err)
			}
			current = 0
		}
		if !marginMatches && proc.RequiresFlatForMarginModeChange() && current != 0 {
			if err := e.placeClose(ctx, proc, symbol, current, markPrice); err != nil {
				return "", fmt.Errorf("adjust margin close leg: %w", err)
			}
			current = 0
		}
		if !marginMatches {
			if err := proc.SetMarginMode(ctx, symbol, desiredMargin); err != nil {
				return "", fmt.Errorf("set margin mode: %w", err)
			}
			e.invalidateSpec(proc, symbol)
		}
		if !leverageMatches {
			if err := proc.SetLeverage(ctx, symbol, leverage); err != nil {
				return "", fmt.Errorf("set leverage: %w", err)
			}
			e.invalidateSpec(proc, symbol)
		}
		if err := e.placeResize(ctx, proc, symbol, current, qTarget, markPrice); err != nil {
			return "", fmt.Errorf("post-adjust resize: %w", err)
		}
		return "resize", nil
	}

	if qTarget == 0 && pos.Size != 0 {
		if err := e.placeClose(ctx, proc, symbol, pos.Size, markPrice); err != nil {
			return "", fmt.Errorf("close leg: %w", err)
		}
		return "close", nil
	}

	if err := e.placeResize(ctx, proc, symbol, pos.Size, qTarget, markPrice); err != nil {
		return "", fmt.Errorf("resize: %w", err)
	}
	return "resize", nil
}

func (e *Engine) invalidateSpec(proc account.Processor, symbol sig.CanonicalSymbol) {
	if e.SpecCache != nil {
		e.SpecCache.Invalidate(proc.AccountID(), symbol)
	}
}

func (e *Engine) resolveSpec(ctx context.Context, proc account.Processor, symbol sig.CanonicalSymbol) (speccache.Spec, error) {
	if e.SpecCache != nil {
		if spec, ok := e.SpecCache.Get(proc.AccountID(), symbol); ok {
			return spec, nil
		}
	}
	spec, err := proc.GetSymbolSpec(ctx, symbol)
	if err != nil {
		return speccache.Spec{}, err
	}
	if e.SpecCache != nil {
		e.SpecCache.Set(proc.AccountID(), symbol, spec)
	}
	return spec, nil
}

// resolveMarkPrice follows spec §4.7's fallback order: the contributing
// signal's price, then the position's entry price, then a venue ticker.
func (e *Engine) resolveMarkPrice(ctx context.Context, result aggregator.Result, pos account.Position, symbol sig.CanonicalSymbol) (float64, error) {
	if result.HasMarkPrice && result.MarkPrice > 0 {
		return result.MarkPrice, nil
	}
	if pos.Size != 0 && pos.EntryPrice > 0 {
		return pos.EntryPrice, nil
	}
	if e.Ticker != nil {
		return e.Ticker.MarkPrice(ctx, symbol)
	}
	return 0, fmt.Errorf("no mark price available for %s", symbol)
}

func (e *Engine) placeClose(ctx context.Context, proc account.Processor, symbol sig.CanonicalSymbol, currentSize float64, markPrice float64) error {
	if currentSize == 0 {
		return nil
	}
	side := execution.Sell
	if currentSize < 0 {
		side = execution.Buy
	}
	execution.Submit(e.Log, execution.Order{
		Account:    string(proc.AccountID()),
		Symbol:     string(symbol),
		Side:       side,
		Qty:        math.Abs(currentSize),
		Price:      markPrice,
		ReduceOnly: true,
	})
	_, err := proc.ClosePosition(ctx, symbol)
	return err
}

func (e *Engine) placeResize(ctx context.Context, proc account.Processor, symbol sig.CanonicalSymbol, currentSize, target float64, markPrice float64) error {
	delta := target - currentSize
	if delta == 0 {
		return nil
	}
	notional := math.Abs(delta) * markPrice
	if !e.Guard.Allow(notional) {
		return fmt.Errorf("order notional %.2f for %s exceeds configured guard", notional, symbol)
	}
	side := execution.Buy
	if delta < 0 {
		side = execution.Sell
	}
	execution.Submit(e.Log, execution.Order{
		Account: string(proc.AccountID()),
		Symbol:  string(symbol),
		Side:    side,
		Qty:     math.Abs(delta),
		Price:   markPrice,
	})
	_, err := proc.PlaceMarket(ctx, symbol, delta, false)
	return err
}
