// Package rawsignal reads the per-source raw signal files the core never
// writes to (spec §1, §6). Producers append-overwrite these files; the store
// only reads the freshest state.
package rawsignal

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"time"

	sig "github.com/sirouk/trade-engine/internal/signal"
)

// ArchiveDirName is skipped when scanning a source directory; producers move
// stale files there (spec §6: "files older than 3 days are archived by the
// producer, not the core").
const ArchiveDirName = "archive"

// Entry is one raw signal as it appears on disk, keyed by its source symbol
// (not yet mapped to a CanonicalSymbol).
type Entry struct {
	SourceSymbol string
	Depth        float64
	Price        float64
	HasPrice     bool
	Timestamp    time.Time
	Leverage     *int
}

type wireEntry struct {
	Symbol    string   `json:"symbol"`
	Depth     float64  `json:"depth"`
	Price     *float64 `json:"price,omitempty"`
	Timestamp string   `json:"timestamp"`
	Leverage  *int     `json:"leverage,omitempty"`
}

// Store reads raw signal files rooted at a base directory such as
// "raw_signals".
type Store struct {
	baseDir string
}

// New returns a Store rooted at baseDir.
func New(baseDir string) *Store {
	return &Store{baseDir: baseDir}
}

// ReadSource returns every entry found across all (non-archived) files under
// <baseDir>/<sourceID>, in file-then-within-file order. It is not an error
// for the directory to be missing — callers see an empty slice, matching the
// "freshest signal per source" contract where no files means no signals yet.
func (s *Store) ReadSource(sourceID sig.SourceID) ([]Entry, error) {
	dir := filepath.Join(s.baseDir, string(sourceID))
	infos, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read raw signal dir %s: %w", dir, err)
	}

	names := make([]string, 0, len(infos))
	for _, info := range infos {
		if info.IsDir() {
			continue
		}
		names = append(names, info.Name())
	}
	sort.Strings(names)

	var entries []Entry
	for _, name := range names {
		path := filepath.Join(dir, name)
		fileEntries, err := readFile(path)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
		entries = append(entries, fileEntries...)
	}
	return entries, nil
}

func readFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, nil
	}

	var wire []wireEntry
	if err := json.Unmarshal(data, &wire); err != nil {
		// Tolerate a single-object document as a one-entry file.
		var single wireEntry
		if singleErr := json.Unmarshal(data, &single); singleErr != nil {
			return nil, err
		}
		wire = []wireEntry{single}
	}

	entries := make([]Entry, 0, len(wire))
	for _, w := range wire {
		ts, err := time.Parse(time.RFC3339Nano, w.Timestamp)
		if err != nil {
			ts, err = time.Parse("2006-01-02 15:04:05.000000", w.Timestamp)
			if err != nil {
				continue // malformed timestamp, skip
			}
		}
		if math.IsNaN(w.Depth) || math.Abs(w.Depth) > 1 {
			continue // invalid signal (spec §7): |depth| > 1 or NaN, dropped
		}
		entry := Entry{
			SourceSymbol: w.Symbol,
			Depth:        w.Depth,
			Timestamp:    ts,
			Leverage:     w.Leverage,
		}
		if w.Price != nil {
			entry.Price = *w.Price
			entry.HasPrice = true
		}
		entries = append(entries, entry)
	}
	return entries, nil
}
