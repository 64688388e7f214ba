package speccache

import (
	"testing"
	"time"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

func TestSetAndGet(t *testing.T) {
	c, err := New(time.Hour)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	spec := Spec{MinSize: 0.001, SizeStep: 0.001, MaxLeverage: 20}
	c.Set(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"), spec)
	c.c.Wait()

	got, ok := c.Get(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"))
	if !ok {
		t.Fatalf("expected cache hit")
	}
	if got.MinSize != 0.001 {
		t.Fatalf("unexpected spec: %+v", got)
	}
}

func TestGetMissForUnknownKey(t *testing.T) {
	c, err := New(time.Hour)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	if _, ok := c.Get(sig.AccountID("acct-1"), sig.CanonicalSymbol("ETHUSDT")); ok {
		t.Fatalf("expected cache miss for unknown key")
	}
}

func TestInvalidateRemovesEntry(t *testing.T) {
	c, err := New(time.Hour)
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}
	c.Set(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"), Spec{MinSize: 0.001})
	c.c.Wait()

	c.Invalidate(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"))
	c.c.Wait()

	if _, ok := c.Get(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT")); ok {
		t.Fatalf("expected entry to be gone after Invalidate")
	}
}

func TestInstrumentationHooksFire(t *testing.T) {
	var hits, misses int
	c, err := New(time.Hour, WithInstrumentation(func() { hits++ }, func() { misses++ }))
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	c.Get(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"))
	if misses != 1 {
		t.Fatalf("expected 1 miss, got %d", misses)
	}

	c.Set(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"), Spec{})
	c.c.Wait()
	c.Get(sig.AccountID("acct-1"), sig.CanonicalSymbol("BTCUSDT"))
	if hits != 1 {
		t.Fatalf("expected 1 hit, got %d", hits)
	}
}
