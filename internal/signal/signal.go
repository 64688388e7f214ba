// Package signal defines the payloads shared between signal ingestion,
// aggregation, and reconciliation.
package signal

import "time"

// CanonicalSymbol identifies a symbol in the system-wide symbol namespace,
// e.g. "BTCUSDT". All cross-component references use canonical symbols.
type CanonicalSymbol string

// SourceID identifies a signal producer, e.g. "tradingview" or "bittensor".
type SourceID string

// AccountID identifies an exchange account.
type AccountID string

// Raw is a single normalized position-depth signal from one source, prior to
// canonical-symbol mapping.
type Raw struct {
	SourceSymbol string    `json:"symbol"`
	Depth        float64   `json:"depth"` // signed fraction of equity, [-1, 1]
	Price        float64   `json:"price"`
	Timestamp    time.Time `json:"timestamp"`
	Leverage     *int      `json:"leverage,omitempty"`
}

// Audit records how a raw signal's timestamp was adjusted by the race-order
// rule (spec §4.2), so downstream consumers can explain a reordering.
type Audit struct {
	OriginalTimestamp time.Time `json:"original_timestamp"`
	Adjusted          bool      `json:"adjusted"`
	Reason            string    `json:"reason,omitempty"`
}

// Canonical is a Raw signal whose source symbol has been mapped into the
// canonical symbol space, tagged with its originating source.
type Canonical struct {
	Symbol    CanonicalSymbol
	Source    SourceID
	Depth     float64
	Price     float64
	Timestamp time.Time
	Leverage  *int
	Audit     Audit
}

// Key uniquely identifies a (source, symbol) pair within a cycle.
type Key struct {
	Source SourceID
	Symbol CanonicalSymbol
}
