package config

import "strings"

const (
	defaultAppEnv             = "dev"
	defaultAppLogLevel        = "info"
	defaultAppLogFormat       = "text"
	defaultAppHTTPAddr        = ":8787"
	defaultStorePath          = "data/signalrelay.db"
	defaultQueueRetryCap      = 3
	defaultQueueBatchSize     = 20
	defaultQueueMaxBatchSize  = 100
	defaultQueueLease         = 120
	defaultQueueIngestLease   = 30
	defaultQueueMaxAttach     = 5
	defaultClassifierTimeout  = 10
	defaultClassifierBreaker  = 5
	defaultClassifierCooldown = 30
	defaultClassifierRPS      = 5
	defaultClassifierBurst    = 5
	defaultTradingDupWindow   = 300
	defaultTradingBuyRetry    = 3
	defaultTradingSellRetry   = 3
	defaultTradingTP1SellPct  = 50
	defaultTradingSlippageBps = 100
	defaultExecutorTimeout    = 15
	defaultTelegramAPIBase    = "https://api.telegram.org"
	defaultRosterPath         = "configs/roster.yaml"
	defaultRosterRefresh      = 60
	defaultMetricsPath        = "/metrics"
)

func (c *Config) applyDefaults(keys keySet) {
	c.App.applyDefaults(keys)
	c.Store.applyDefaults(keys)
	c.Queue.applyDefaults(keys)
	c.Classifier.applyDefaults(keys)
	c.Trading.applyDefaults(keys)
	c.Executor.applyDefaults(keys)
	c.Notify.Telegram.applyDefaults(keys)
	c.Roster.applyDefaults(keys)
	c.Metrics.applyDefaults(keys)
}

func (a *AppConfig) applyDefaults(keys keySet) {
	if a == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("app.env", &a.Env, defaultAppEnv),
		stringFieldDefault("app.log_level", &a.LogLevel, defaultAppLogLevel),
		stringFieldDefault("app.log_format", &a.LogFormat, defaultAppLogFormat),
		stringFieldDefault("app.http_addr", &a.HTTPAddr, defaultAppHTTPAddr),
	)
}

func (s *StoreConfig) applyDefaults(keys keySet) {
	if s == nil {
		return
	}
	applyFieldDefaults(keys, stringFieldDefault("store.path", &s.Path, defaultStorePath))
}

func (q *QueueConfig) applyDefaults(keys keySet) {
	if q == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("queue.retry_cap", &q.RetryCap, defaultQueueRetryCap),
		intFieldDefault("queue.batch_size", &q.BatchSize, defaultQueueBatchSize),
		intFieldDefault("queue.max_batch_size", &q.MaxBatchSize, defaultQueueMaxBatchSize),
		intFieldDefault("queue.lease_seconds", &q.LeaseSeconds, defaultQueueLease),
		intFieldDefault("queue.ingest_lease_seconds", &q.IngestLeaseSeconds, defaultQueueIngestLease),
		intFieldDefault("queue.max_attachments_per_push", &q.MaxAttachmentsPerPush, defaultQueueMaxAttach),
	)
	if q.BatchSize > q.MaxBatchSize {
		q.BatchSize = q.MaxBatchSize
	}
}

func (c *ClassifierConfig) applyDefaults(keys keySet) {
	if c == nil {
		return
	}
	c.URL = strings.TrimSpace(c.URL)
	applyFieldDefaults(keys,
		intFieldDefault("classifier.timeout_seconds", &c.TimeoutSeconds, defaultClassifierTimeout),
		intFieldDefault("classifier.breaker_threshold", &c.BreakerThreshold, defaultClassifierBreaker),
		intFieldDefault("classifier.breaker_cooldown_seconds", &c.BreakerCooldown, defaultClassifierCooldown),
		intFieldDefault("classifier.burst", &c.Burst, defaultClassifierBurst),
		fieldDefault{
			key:   "classifier.requests_per_second",
			need:  func() bool { return c.RequestsPerSec <= 0 },
			apply: func() { c.RequestsPerSec = defaultClassifierRPS },
		},
	)
}

func (t *TradingConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		intFieldDefault("trading.duplicate_window_seconds", &t.DuplicateWindowSeconds, defaultTradingDupWindow),
		intFieldDefault("trading.buy_retry_cap", &t.BuyRetryCap, defaultTradingBuyRetry),
		intFieldDefault("trading.sell_retry_cap", &t.SellRetryCap, defaultTradingSellRetry),
		intFieldDefault("trading.default_slippage_bps", &t.DefaultSlippageBps, defaultTradingSlippageBps),
		fieldDefault{
			key:   "trading.take_profit_1_sell_pct",
			need:  func() bool { return t.TakeProfit1SellPct <= 0 || t.TakeProfit1SellPct > 100 },
			apply: func() { t.TakeProfit1SellPct = defaultTradingTP1SellPct },
		},
		boolFieldDefault("trading.auto_exit", &t.AutoExit, true),
	)
}

func (e *ExecutorConfig) applyDefaults(keys keySet) {
	if e == nil {
		return
	}
	e.URL = strings.TrimSpace(e.URL)
	applyFieldDefaults(keys,
		intFieldDefault("executor.timeout_seconds", &e.TimeoutSeconds, defaultExecutorTimeout),
	)
}

func (t *TelegramConfig) applyDefaults(keys keySet) {
	if t == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("notify.telegram.api_base", &t.APIBase, defaultTelegramAPIBase),
	)
	t.APIBase = strings.TrimRight(t.APIBase, "/")
}

func (r *RosterConfig) applyDefaults(keys keySet) {
	if r == nil {
		return
	}
	applyFieldDefaults(keys,
		stringFieldDefault("roster.path", &r.Path, defaultRosterPath),
		intFieldDefault("roster.refresh_seconds", &r.RefreshSeconds, defaultRosterRefresh),
	)
}

func (m *MetricsConfig) applyDefaults(keys keySet) {
	if m == nil {
		return
	}
	applyFieldDefaults(keys,
		boolFieldDefault("metrics.enabled", &m.Enabled, true),
		stringFieldDefault("metrics.path", &m.Path, defaultMetricsPath),
	)
}

// Helper functions

func applyFieldDefaults(keys keySet, defs ...fieldDefault) {
	for _, def := range defs {
		if def.apply == nil {
			continue
		}
		if def.key != "" && keys.isSet(def.key) {
			continue
		}
		if def.need != nil && !def.need() {
			continue
		}
		def.apply()
	}
}

func stringFieldDefault(key string, target *string, def string) fieldDefault {
	return fieldDefault{
		key: key,
		need: func() bool {
			return target != nil && strings.TrimSpace(*target) == ""
		},
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func intFieldDefault(key string, target *int, def int) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil && *target <= 0 },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}

func boolFieldDefault(key string, target *bool, def bool) fieldDefault {
	return fieldDefault{
		key:  key,
		need: func() bool { return target != nil },
		apply: func() {
			if target != nil {
				*target = def
			}
		},
	}
}
