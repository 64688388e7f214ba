package main

import (
	"context"
	"fmt"
	"os"
	ossignal "os/signal"
	"syscall"
	"time"

	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/joho/godotenv"

	"github.com/sirouk/trade-engine/internal/account"
	"github.com/sirouk/trade-engine/internal/aggregator"
	"github.com/sirouk/trade-engine/internal/appconfig"
	"github.com/sirouk/trade-engine/internal/assetmap"
	"github.com/sirouk/trade-engine/internal/cycle"
	"github.com/sirouk/trade-engine/internal/execcache"
	"github.com/sirouk/trade-engine/internal/marketdata"
	"github.com/sirouk/trade-engine/internal/metrics"
	"github.com/sirouk/trade-engine/internal/rawsignal"
	"github.com/sirouk/trade-engine/internal/reconcile"
	"github.com/sirouk/trade-engine/internal/retry"
	"github.com/sirouk/trade-engine/internal/risk"
	"github.com/sirouk/trade-engine/internal/security"
	sig "github.com/sirouk/trade-engine/internal/signal"
	"github.com/sirouk/trade-engine/internal/signalproc"
	"github.com/sirouk/trade-engine/internal/speccache"
	"github.com/sirouk/trade-engine/internal/util"
	"github.com/sirouk/trade-engine/internal/weightconfig"
)

const startingPaperBalance = 100_000.0

func main() {
	_ = godotenv.Load() // best-effort; ambient env vars still win via appconfig's env overlay

	configPath := "engine.yaml"
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}
	cfg, err := appconfig.Load(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(1)
	}

	log := util.NewLogger(cfg.App.LogLevel)

	if cfg.Profiling.Enabled {
		profiler, err := pyroscope.Start(pyroscope.Config{
			ApplicationName: cfg.App.Name,
			ServerAddress:   cfg.Profiling.ServerAddr,
			Logger:          nil,
			ProfileTypes: []pyroscope.ProfileType{
				pyroscope.ProfileCPU,
				pyroscope.ProfileAllocObjects,
				pyroscope.ProfileInuseObjects,
			},
		})
		if err != nil {
			log.Warn().Err(err).Msg("continuous profiler failed to start, continuing without it")
		} else {
			defer func() { _ = profiler.Stop() }()
		}
	}

	srv := metrics.Serve(cfg.App.MetricsAddr)
	defer srv.Close()
	log.Info().Str("addr", cfg.App.MetricsAddr).Msg("metrics server up")

	ctx, cancel := ossignal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	weights := weightconfig.New(cfg.Paths.WeightConfig)
	if err := weights.Reload(); err != nil {
		log.Fatal().Err(err).Msg("load weight config")
	}

	mapper := assetmap.New(cfg.Paths.AssetMapping)
	if err := mapper.Reload(); err != nil {
		log.Fatal().Err(err).Msg("load asset mapping")
	}

	var cipher *security.Cipher
	if passphrase := os.Getenv(security.CredentialsKeyEnv); passphrase != "" {
		cipher, err = security.NewCipher(passphrase, cfg.App.Name)
		if err != nil {
			log.Fatal().Err(err).Msg("construct credentials cipher")
		}
	} else {
		log.Warn().Str("env", security.CredentialsKeyEnv).Msg("credentials encryption key not set, reading credentials.json as plaintext")
	}

	creds, err := security.LoadCredentials(cfg.Paths.Credentials, cipher)
	if err != nil {
		log.Fatal().Err(err).Msg("load credentials")
	}

	rawStore := rawsignal.New(cfg.Paths.RawSignalsDir)
	adapters := make([]signalproc.Adapter, 0, len(weights.Symbols()))
	for _, source := range sourcesFromWeights(weights) {
		adapters = append(adapters, signalproc.NewFileAdapter(source, rawStore, mapper, log))
	}

	cache := execcache.New(cfg.Paths.ExecutionCacheDir)
	agg := aggregator.New(adapters, weights, cache)

	specCache, err := speccache.New(cfg.Cycle.SpecCacheTTL,
		speccache.WithInstrumentation(metrics.SpecCacheHitTotal.Inc, metrics.SpecCacheMissTotal.Inc))
	if err != nil {
		log.Fatal().Err(err).Msg("construct symbol-spec cache")
	}

	canonicalSymbols := weights.Symbols()
	feed := marketdata.New(canonicalSymbols, nil, log)
	go func() {
		if err := feed.Run(ctx); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("market data feed stopped")
		}
	}()

	var accounts []account.Processor
	var accountIDs []sig.AccountID
	for _, entry := range creds {
		if !entry.Enabled {
			continue
		}
		accountID := accountIDFor(entry)
		proc := account.NewPaperProcessor(accountID, startingPaperBalance, feed, nil, speccache.Spec{}, log)
		accounts = append(accounts, proc)
		accountIDs = append(accountIDs, accountID)
		cache.LoadAccount(accountID)
		log.Info().Str("account", string(accountID)).Str("exchange", entry.ExchangeName).Msg("account wired as paper processor")
	}
	if len(accounts) == 0 {
		log.Fatal().Msg("no enabled accounts in credentials.json")
	}

	guard := risk.Guard{MaxNotionalPerOrder: cfg.Risk.MaxNotionalPerOrder}
	retryPolicy := retry.DefaultPolicy()
	retryPolicy.MaxRetries = cfg.Cycle.MaxReconcileRetries

	engine := reconcile.NewEngine(cfg.Cycle.PerAccountSymbolConcurrency, retryPolicy, guard, specCache, feed, log)

	driver := &cycle.Driver{Period: cfg.Cycle.Period, Log: log}

	log.Info().Int("accounts", len(accounts)).Dur("period", cfg.Cycle.Period).Msg("reconciler started")

	err = driver.Run(ctx, func(ctx context.Context) error {
		cycleStart := time.Now()
		defer func() { metrics.CycleDurationSeconds.Observe(time.Since(cycleStart).Seconds()) }()

		if err := mapper.Reload(); err != nil {
			log.Warn().Err(err).Msg("asset mapping reload failed, keeping previous mapping")
		}
		if err := weights.Reload(); err != nil {
			log.Warn().Err(err).Msg("weight config reload failed, keeping previous weights")
		}

		fetchCtx, cancelFetch := context.WithTimeout(ctx, cfg.Cycle.AdapterFetchTimeout)
		targets, err := agg.Run(fetchCtx, accountIDs)
		cancelFetch()
		if err != nil {
			return fmt.Errorf("aggregator run: %w", err)
		}

		outcomes := engine.RunCycle(ctx, accounts, targets, cache)
		for _, o := range outcomes {
			metrics.ReconcileResultTotal.WithLabelValues(string(o.Account), string(o.Symbol), o.State).Inc()
			if o.Err != nil {
				log.Warn().Str("account", string(o.Account)).Str("symbol", string(o.Symbol)).Err(o.Err).Msg("symbol reconciliation outcome")
			}
		}
		return nil
	})
	if err != nil && err != context.Canceled {
		log.Error().Err(err).Msg("cycle driver exited with error")
	}
	log.Info().Msg("reconciler shut down")
}

func accountIDFor(entry security.AdapterEntry) sig.AccountID {
	if raw, ok := entry.Extra["account_id"]; ok {
		if s, ok := raw.(string); ok && s != "" {
			return sig.AccountID(s)
		}
	}
	return sig.AccountID(entry.ExchangeName)
}

func sourcesFromWeights(weights *weightconfig.Store) []sig.SourceID {
	seen := map[sig.SourceID]bool{}
	var sources []sig.SourceID
	for _, symbol := range weights.Symbols() {
		entry, ok := weights.EntryFor(symbol)
		if !ok {
			continue
		}
		for _, sw := range entry.Sources {
			if !seen[sw.Source] {
				seen[sw.Source] = true
				sources = append(sources, sw.Source)
			}
		}
	}
	return sources
}
