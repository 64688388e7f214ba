// Package speccache memoizes exchange-reported contract specs for a short
// TTL so the reconciliation engine doesn't re-fetch them every cycle (spec
// §4.8).
package speccache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

// Spec mirrors the venue-reported contract specification (spec §3).
type Spec struct {
	MinSize             float64
	SizeStep            float64
	PriceStep           float64
	MaxSingleOrderSize  float64
	ContractMultiplier  float64
	MaxLeverage         int
}

// DefaultTTL is the spec's SPEC_CACHE_TTL constant.
const DefaultTTL = time.Hour

// Cache wraps a ristretto cache keyed by (account, symbol), with explicit
// invalidation on leverage/margin-mode change in addition to TTL expiry.
type Cache struct {
	c   *ristretto.Cache
	ttl time.Duration

	hits, misses func()
}

// Option configures optional hit/miss instrumentation hooks.
type Option func(*Cache)

// WithInstrumentation wires hit/miss counters (e.g. the metrics package's
// SpecCacheHitTotal/SpecCacheMissTotal) into the cache.
func WithInstrumentation(onHit, onMiss func()) Option {
	return func(c *Cache) {
		c.hits = onHit
		c.misses = onMiss
	}
}

// New constructs a Cache with the given TTL. ttl <= 0 uses DefaultTTL.
func New(ttl time.Duration, opts ...Option) (*Cache, error) {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	c, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e5,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, fmt.Errorf("construct spec cache: %w", err)
	}
	cache := &Cache{c: c, ttl: ttl}
	for _, opt := range opts {
		opt(cache)
	}
	return cache, nil
}

func key(account sig.AccountID, symbol sig.CanonicalSymbol) string {
	return string(account) + "|" + string(symbol)
}

// Get returns the cached spec for (account, symbol), if present and unexpired.
func (c *Cache) Get(account sig.AccountID, symbol sig.CanonicalSymbol) (Spec, bool) {
	v, ok := c.c.Get(key(account, symbol))
	if !ok {
		if c.misses != nil {
			c.misses()
		}
		return Spec{}, false
	}
	if c.hits != nil {
		c.hits()
	}
	return v.(Spec), true
}

// Set stores a spec with the cache's configured TTL.
func (c *Cache) Set(account sig.AccountID, symbol sig.CanonicalSymbol, spec Spec) {
	c.c.SetWithTTL(key(account, symbol), spec, 1, c.ttl)
}

// Invalidate drops the cached spec for (account, symbol). Called on
// leverage or margin-mode change for that symbol (spec §9: "yes").
func (c *Cache) Invalidate(account sig.AccountID, symbol sig.CanonicalSymbol) {
	c.c.Del(key(account, symbol))
}
