// Package risk guards the size of any single computed order regardless of
// what the aggregator asked for, independent of the per-symbol reconcile
// logic itself.
package risk

// Guard rejects an order whose notional exceeds a configured ceiling.
// MaxNotionalPerOrder <= 0 means unguarded — every order is allowed.
type Guard struct {
	MaxNotionalPerOrder float64
}

// Allow reports whether an order of the given notional value may proceed.
func (g Guard) Allow(notional float64) bool {
	if g.MaxNotionalPerOrder <= 0 {
		return true
	}
	return notional <= g.MaxNotionalPerOrder
}
