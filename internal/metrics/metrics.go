package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// SignalsIngestedTotal counts canonical signals accepted per source/symbol.
	SignalsIngestedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_ingested_total", Help: "Canonical signals accepted per source and symbol"},
		[]string{"source", "symbol"},
	)
	// SignalsDroppedTotal counts raw signals dropped by a source adapter; the
	// file adapter reports reason "unmapped_symbol".
	SignalsDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "signals_dropped_total", Help: "Raw signals dropped before aggregation"},
		[]string{"source", "reason"},
	)
	// SymbolsDirtyTotal / SymbolsCleanTotal count aggregator outcomes per account.
	SymbolsDirtyTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "symbols_dirty_total", Help: "Symbols marked dirty by the aggregator"},
		[]string{"account"},
	)
	SymbolsCleanTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "symbols_clean_total", Help: "Symbols skipped as clean by the aggregator"},
		[]string{"account"},
	)
	// OrdersTotal counts market orders placed by the reconciliation engine.
	OrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "orders_total", Help: "Market orders submitted"},
		[]string{"account", "symbol", "side"},
	)
	// ReconcileResultTotal counts terminal states of reconcile_symbol.
	ReconcileResultTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "reconcile_result_total", Help: "Terminal outcomes of per-symbol reconciliation"},
		[]string{"account", "symbol", "result"}, // result: noop|done|failed|skipped_clean
	)
	// CycleDurationSeconds observes the wall-clock length of each cycle.
	CycleDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{Name: "cycle_duration_seconds", Help: "Wall-clock duration of one reconciliation cycle", Buckets: prometheus.DefBuckets},
	)
	// SpecCacheHitTotal / SpecCacheMissTotal instrument the symbol-spec cache.
	SpecCacheHitTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "spec_cache_hit_total", Help: "Symbol-spec cache hits"},
	)
	SpecCacheMissTotal = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "spec_cache_miss_total", Help: "Symbol-spec cache misses"},
	)
)

func init() {
	prometheus.MustRegister(
		SignalsIngestedTotal,
		SignalsDroppedTotal,
		SymbolsDirtyTotal,
		SymbolsCleanTotal,
		OrdersTotal,
		ReconcileResultTotal,
		CycleDurationSeconds,
		SpecCacheHitTotal,
		SpecCacheMissTotal,
	)
}

// Serve starts a background HTTP server exposing /metrics and returns it so
// the caller can Shutdown/Close it.
func Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() { _ = srv.ListenAndServe() }()
	return srv
}
