package cycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestRunStopsImmediatelyOnCancelledContext(t *testing.T) {
	d := &Driver{Period: time.Hour, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var calls int32
	err := d.Run(ctx, func(ctx context.Context) error {
		atomic.AddInt32(&calls, 1)
		return nil
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 0 {
		t.Fatalf("expected zero cycles once context is already cancelled, got %d", calls)
	}
}

func TestRunDoesNotOverlapCycles(t *testing.T) {
	d := &Driver{Period: time.Millisecond, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())

	var running atomic.Bool
	var overlapped atomic.Bool
	var calls int32

	go func() {
		_ = d.Run(ctx, func(ctx context.Context) error {
			if !running.CompareAndSwap(false, true) {
				overlapped.Store(true)
			}
			time.Sleep(5 * time.Millisecond)
			running.Store(false)
			if atomic.AddInt32(&calls, 1) >= 3 {
				cancel()
			}
			return nil
		})
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	if overlapped.Load() {
		t.Fatalf("expected no overlapping cycles")
	}
}

func TestRunContinuesAfterCycleError(t *testing.T) {
	d := &Driver{Period: time.Millisecond, Log: zerolog.Nop()}
	ctx, cancel := context.WithCancel(context.Background())

	boom := errors.New("boom")
	var calls int32
	go func() {
		_ = d.Run(ctx, func(ctx context.Context) error {
			if atomic.AddInt32(&calls, 1) >= 2 {
				cancel()
				return nil
			}
			return boom
		})
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()
	time.Sleep(10 * time.Millisecond)

	if atomic.LoadInt32(&calls) < 2 {
		t.Fatalf("expected the driver to keep calling run after a cycle error, got %d calls", calls)
	}
}
