// Package weightconfig loads the per-symbol blending weights the aggregator
// uses to combine signals from multiple sources into one TargetDepth (spec
// §4.3, §6). A malformed or out-of-bounds document is rejected wholesale;
// the engine keeps running on the last accepted configuration.
package weightconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/go-playground/validator/v10"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

// SourceWeight is one source's contribution to a symbol's blend.
type SourceWeight struct {
	Source sig.SourceID `json:"source" validate:"required"`
	Weight float64      `json:"weight" validate:"gte=0,lte=1"`
}

// Entry is the weight-and-leverage configuration for one canonical symbol.
// Invariant enforced at load time, not at write time: Σ Sources[].Weight ≤ 1.
type Entry struct {
	Symbol   sig.CanonicalSymbol `json:"symbol" validate:"required"`
	Leverage int                 `json:"leverage" validate:"gte=1,lte=20"`
	Sources  []SourceWeight      `json:"sources" validate:"dive"`
}

// Document is the on-disk shape of signal_weight_config.json: a flat list of
// per-symbol entries.
type Document []Entry

// Store holds the most recently accepted weight configuration, indexed by
// symbol for fast lookup by the aggregator.
type Store struct {
	path     string
	validate *validator.Validate

	mu      sync.RWMutex
	bySymbol map[sig.CanonicalSymbol]Entry
}

// New constructs a Store backed by the weight config document at path.
func New(path string) *Store {
	return &Store{path: path, validate: validator.New(), bySymbol: map[sig.CanonicalSymbol]Entry{}}
}

// Reload re-reads and validates the document. On any parse or validation
// failure the previously accepted configuration is kept and the error is
// returned — the document is rejected as a whole, never partially applied
// (spec §4.3, §8: "any entry violating this is rejected, not clamped").
func (s *Store) Reload() error {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return fmt.Errorf("read weight config: %w", err)
	}

	var doc Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse weight config: %w", err)
	}

	bySymbol := make(map[sig.CanonicalSymbol]Entry, len(doc))
	for _, e := range doc {
		if err := s.validate.Struct(e); err != nil {
			return fmt.Errorf("validate weight config entry %s: %w", e.Symbol, err)
		}
		var sum float64
		for _, sw := range e.Sources {
			sum += sw.Weight
		}
		if sum > 1.0+1e-9 {
			return fmt.Errorf("weight config rejected: %s weights sum to %.6f, exceeds 1.0", e.Symbol, sum)
		}
		if _, dup := bySymbol[e.Symbol]; dup {
			return fmt.Errorf("weight config rejected: duplicate entry for symbol %s", e.Symbol)
		}
		bySymbol[e.Symbol] = e
	}

	s.mu.Lock()
	s.bySymbol = bySymbol
	s.mu.Unlock()
	return nil
}

// EntryFor returns the weight entry for one canonical symbol, or false if the
// symbol has no configuration — callers treat that as "no signal contributes".
func (s *Store) EntryFor(symbol sig.CanonicalSymbol) (Entry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.bySymbol[symbol]
	return e, ok
}

// Symbols returns every canonical symbol with a configured weight entry.
func (s *Store) Symbols() []sig.CanonicalSymbol {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]sig.CanonicalSymbol, 0, len(s.bySymbol))
	for sym := range s.bySymbol {
		out = append(out, sym)
	}
	return out
}
