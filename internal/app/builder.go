package app

import (
	"context"
	"fmt"

	"signalrelay/internal/config"
	"signalrelay/internal/config/loader"
	"signalrelay/internal/events"
	"signalrelay/internal/gateway/notifier"
	"signalrelay/internal/logger"
	"signalrelay/internal/metrics"
	"signalrelay/internal/relay"
	"signalrelay/internal/routing"
	"signalrelay/internal/store"
	"signalrelay/internal/store/gormstore"
	"signalrelay/internal/trading"
	"signalrelay/internal/worker"
)

// AppBuilder assembles the App. The function fields are seams for tests.
type AppBuilder struct {
	cfg *config.Config

	storeFn      func(config.StoreConfig) (store.Store, error)
	rosterFn     func(context.Context, config.RosterConfig, store.Store, *metrics.Metrics) (*loader.RosterLoader, error)
	classifierFn func(config.ClassifierConfig, *metrics.Metrics) routing.Classifier
	executorFn   func(config.ExecutorConfig) trading.BuyExecutor
	alerterFn    func(config.NotifyConfig) *notifier.Alerter
}

type AppBuilderOption func(*AppBuilder)

// WithStore replaces the SQLite store, typically with one on a temp file.
func WithStore(fn func(config.StoreConfig) (store.Store, error)) AppBuilderOption {
	return func(b *AppBuilder) { b.storeFn = fn }
}

func NewAppBuilder(cfg *config.Config, opts ...AppBuilderOption) *AppBuilder {
	b := &AppBuilder{
		cfg:          cfg,
		storeFn:      openStore,
		rosterFn:     loadRoster,
		classifierFn: buildClassifier,
		executorFn:   buildExecutor,
		alerterFn:    buildAlerter,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}
	return b
}

func openStore(cfg config.StoreConfig) (store.Store, error) {
	return gormstore.NewGormStore(cfg.Path)
}

func loadRoster(ctx context.Context, cfg config.RosterConfig, st store.Store, m *metrics.Metrics) (*loader.RosterLoader, error) {
	return loader.NewRosterLoader(ctx, cfg.Path, st.Roster(), m)
}

func (b *AppBuilder) Build(ctx context.Context) (*App, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if b.cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	cfg := b.cfg

	st, err := b.storeFn(cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	logger.Infof("✓ store ready at %s", cfg.Store.Path)

	m := metrics.New()
	roster, err := b.rosterFn(ctx, cfg.Roster, st, m)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("load roster: %w", err)
	}
	snap := roster.Snapshot()
	logger.Infof("✓ roster v%d loaded: %d channels, %d trading configs", snap.Version, snap.Channels, snap.TradingConfigs)

	journal := events.NewJournal(st.Events(), m)
	alerter := b.alerterFn(cfg.Notify)
	executor := b.executorFn(cfg.Executor)

	ledger := trading.NewLedger(trading.LedgerDeps{
		Store:    st,
		Journal:  journal,
		Counters: m,
		Alerter:  alerter,
		Executor: executor,
	}, trading.Options{
		DuplicateWindow:    cfg.Trading.DuplicateWindow(),
		BuyRetryCap:        cfg.Trading.BuyRetryCap,
		SellRetryCap:       cfg.Trading.SellRetryCap,
		TakeProfit1SellPct: cfg.Trading.TakeProfit1SellPct,
		DefaultSlippageBps: cfg.Trading.DefaultSlippageBps,
		AutoExit:           cfg.Trading.AutoExit,
		Lease:              cfg.Queue.Lease(),
	})

	relaySvc := relay.NewService(relay.Deps{
		Store:    st,
		Router:   routing.NewPolicy(st.Roster(), b.classifierFn(cfg.Classifier, m)),
		Trades:   ledger,
		Journal:  journal,
		Counters: m,
		Alerter:  alerter,
	}, relay.Options{
		RetryCap:       cfg.Queue.RetryCap,
		BatchSize:      cfg.Queue.BatchSize,
		MaxBatchSize:   cfg.Queue.MaxBatchSize,
		Lease:          cfg.Queue.Lease(),
		IngestLease:    cfg.Queue.IngestLease(),
		MaxAttachments: cfg.Queue.MaxAttachmentsPerPush,
	})

	handler := worker.NewService(worker.Deps{
		Relay:   relaySvc,
		Trades:  ledger,
		Exits:   ledger.Sells(),
		Roster:  roster,
		Journal: journal,
		Status:  st.Status(),
	})

	server, err := buildWorkerHTTPServer(cfg, handler, m)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	return &App{
		cfg:     cfg,
		store:   st,
		roster:  roster,
		relay:   relaySvc,
		server:  server,
		Summary: buildSummary(cfg, snap),
	}, nil
}

func buildSummary(cfg *config.Config, snap loader.RosterSnapshot) *StartupSummary {
	s := &StartupSummary{
		HTTPAddr:          cfg.App.HTTPAddr,
		StorePath:         cfg.Store.Path,
		RosterPath:        cfg.Roster.Path,
		RosterVersion:     snap.Version,
		Channels:          snap.Channels,
		TradingConfigs:    snap.TradingConfigs,
		ClassifierEnabled: snap.ClassifierEnabled && cfg.Classifier.Configured(),
		ClassifierURL:     cfg.Classifier.URL,
		TelegramAlerts:    cfg.Notify.Telegram.Enabled,
		AutoExit:          cfg.Trading.AutoExit,
	}
	if cfg.Executor.Enabled {
		s.ExecutorURL = cfg.Executor.URL
	}
	if cfg.Metrics.Enabled {
		s.MetricsPath = cfg.Metrics.Path
	}
	return s
}
