// Package execcache is the per-account execution memory the aggregator
// diffs against to decide which symbols are clean (spec §4.5). It is
// advisory: a missing or unparseable file degrades to "every symbol is
// dirty" rather than failing the cycle.
package execcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirouk/trade-engine/internal/aggregator"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/util"
)

// Entry is the on-disk shape of one symbol's last confirmed state.
type Entry struct {
	TargetDepth            float64                   `json:"target_depth"`
	ContributingTimestamps map[sig.SourceID]int64    `json:"contributing_timestamps"`
}

// document is one account's full cache file.
type document map[sig.CanonicalSymbol]Entry

// Store holds one document per account, read once at cycle start and
// written once at cycle end via temp-file-then-rename.
type Store struct {
	dir string

	mu   sync.RWMutex
	docs map[sig.AccountID]document
}

// New constructs a Store rooted at dir, where each account gets its own
// "<account>_asset_depths.json" file.
func New(dir string) *Store {
	return &Store{dir: dir, docs: map[sig.AccountID]document{}}
}

func (s *Store) path(account sig.AccountID) string {
	return filepath.Join(s.dir, fmt.Sprintf("%s_asset_depths.json", account))
}

// LoadAccount reads one account's cache file into memory ahead of a cycle.
// A missing or corrupt file is not an error to the caller: the account's
// in-memory document is simply emptied, so every symbol reads as dirty.
func (s *Store) LoadAccount(account sig.AccountID) {
	data, err := os.ReadFile(s.path(account))
	doc := document{}
	if err == nil {
		_ = json.Unmarshal(data, &doc) // unparseable -> treated as empty, advisory per spec §4.5
	}
	s.mu.Lock()
	s.docs[account] = doc
	s.mu.Unlock()
}

// Lookup implements aggregator.Cache.
func (s *Store) Lookup(account sig.AccountID, symbol sig.CanonicalSymbol) (aggregator.PreviousState, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	doc, ok := s.docs[account]
	if !ok {
		return aggregator.PreviousState{}, false
	}
	entry, ok := doc[symbol]
	if !ok {
		return aggregator.PreviousState{}, false
	}
	return aggregator.PreviousState{
		TargetDepth:            entry.TargetDepth,
		ContributingTimestamps: aggregator.ContributingTimestamps(entry.ContributingTimestamps),
	}, true
}

// CommitSymbol records one symbol's confirmed state into the in-memory
// document for an account. It does not write to disk — call Flush once per
// account at cycle end (spec §4.5, §5: "ExecutionCache commit happens
// exactly once per account at cycle end").
func (s *Store) CommitSymbol(account sig.AccountID, symbol sig.CanonicalSymbol, targetDepth float64, timestamps aggregator.ContributingTimestamps) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.docs[account]
	if !ok {
		doc = document{}
	}
	doc[symbol] = Entry{TargetDepth: targetDepth, ContributingTimestamps: map[sig.SourceID]int64(timestamps)}
	s.docs[account] = doc
}

// Flush writes one account's document to disk atomically. Calling it when
// no symbol has changed since LoadAccount is harmless but unnecessary.
func (s *Store) Flush(account sig.AccountID) error {
	s.mu.RLock()
	doc := s.docs[account]
	s.mu.RUnlock()
	if err := util.WriteJSONAtomic(s.path(account), doc, 0o644); err != nil {
		return fmt.Errorf("flush execution cache for %s: %w", account, err)
	}
	return nil
}
