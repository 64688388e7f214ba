// Package assetmap translates each signal source's own symbol spelling into
// the canonical symbol the rest of the engine speaks (spec §4.1, §6).
package assetmap

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

// Table is keyed by canonical symbol, then by source, giving that source's
// own spelling for the asset. A canonical symbol need not be listed for
// every source.
type Table map[sig.CanonicalSymbol]map[sig.SourceID]string

// Mapper holds the current mapping plus the last-known-good copy, reloaded
// once per cycle (spec §6: "reloaded at the start of each cycle; if the file
// is missing or fails to parse, the previous in-memory mapping is kept").
type Mapper struct {
	path string

	mu      sync.RWMutex
	table   Table
	reverse map[sig.SourceID]map[string]sig.CanonicalSymbol
}

// New constructs a Mapper backed by the asset mapping document at path. The
// file is not read until the first Reload.
func New(path string) *Mapper {
	return &Mapper{path: path, table: Table{}, reverse: map[sig.SourceID]map[string]sig.CanonicalSymbol{}}
}

// Reload re-reads the mapping file. On failure the previously loaded table
// is left untouched and the error is returned so the caller can log it.
func (m *Mapper) Reload() error {
	data, err := os.ReadFile(m.path)
	if err != nil {
		return fmt.Errorf("read asset mapping: %w", err)
	}
	var table Table
	if err := json.Unmarshal(data, &table); err != nil {
		return fmt.Errorf("parse asset mapping: %w", err)
	}

	reverse := make(map[sig.SourceID]map[string]sig.CanonicalSymbol)
	for canonical, sources := range table {
		for source, symbol := range sources {
			if reverse[source] == nil {
				reverse[source] = make(map[string]sig.CanonicalSymbol)
			}
			reverse[source][symbol] = canonical
		}
	}

	m.mu.Lock()
	m.table = table
	m.reverse = reverse
	m.mu.Unlock()
	return nil
}

// ToCanonical maps a source's own symbol spelling to the canonical symbol.
// The second return value is false when the source has no mapping entry for
// that symbol.
func (m *Mapper) ToCanonical(source sig.SourceID, sourceSymbol string) (sig.CanonicalSymbol, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	bySymbol, ok := m.reverse[source]
	if !ok {
		return "", false
	}
	canonical, ok := bySymbol[sourceSymbol]
	return canonical, ok
}

// ToSource maps a canonical symbol to a source's own spelling.
func (m *Mapper) ToSource(canonical sig.CanonicalSymbol, source sig.SourceID) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sources, ok := m.table[canonical]
	if !ok {
		return "", false
	}
	symbol, ok := sources[source]
	return symbol, ok
}

// CanonicalSymbols returns every canonical symbol currently known to the
// mapping, in no particular order.
func (m *Mapper) CanonicalSymbols() []sig.CanonicalSymbol {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]sig.CanonicalSymbol, 0, len(m.table))
	for canonical := range m.table {
		out = append(out, canonical)
	}
	return out
}
