package config

import (
	"fmt"
	"strings"
)

// validate 对配置进行基础校验。
func validate(c *Config) error {
	if err := c.App.validate(); err != nil {
		return err
	}
	if err := c.Auth.validate(); err != nil {
		return err
	}
	if err := c.Queue.validate(); err != nil {
		return err
	}
	if err := c.Classifier.validate(); err != nil {
		return err
	}
	if err := c.Trading.validate(); err != nil {
		return err
	}
	if err := c.Executor.validate(); err != nil {
		return err
	}
	if err := c.Notify.validate(); err != nil {
		return err
	}
	if err := c.Metrics.validate(); err != nil {
		return err
	}
	return validateIngestBudget(c)
}

// validateIngestBudget keeps the outbound calls made while a pushed message is
// being routed inside its ingest lease.
func validateIngestBudget(c *Config) error {
	budget := 0
	if c.Classifier.Configured() {
		budget += c.Classifier.TimeoutSeconds
	}
	if c.Executor.Enabled {
		budget += c.Executor.TimeoutSeconds
	}
	if budget >= c.Queue.IngestLeaseSeconds {
		return fmt.Errorf("classifier and executor timeouts (%ds) must be shorter than queue.ingest_lease_seconds (%d)",
			budget, c.Queue.IngestLeaseSeconds)
	}
	return nil
}

func (a *AppConfig) validate() error {
	switch strings.ToLower(strings.TrimSpace(a.LogFormat)) {
	case "text", "json":
	default:
		return fmt.Errorf("app.log_format must be text or json, got %s", a.LogFormat)
	}
	if strings.TrimSpace(a.HTTPAddr) == "" {
		return fmt.Errorf("app.http_addr cannot be empty")
	}
	return nil
}

func (a *AuthConfig) validate() error {
	if strings.TrimSpace(a.WorkerAPIKey) == "" {
		return fmt.Errorf("auth.worker_api_key cannot be empty (or set %s)", EnvWorkerAPIKey)
	}
	return nil
}

func (q *QueueConfig) validate() error {
	if q.RetryCap <= 0 {
		return fmt.Errorf("queue.retry_cap must be > 0")
	}
	if q.BatchSize <= 0 || q.MaxBatchSize <= 0 {
		return fmt.Errorf("queue.batch_size and queue.max_batch_size must be > 0")
	}
	if q.LeaseSeconds <= 0 || q.IngestLeaseSeconds <= 0 {
		return fmt.Errorf("queue lease durations must be > 0")
	}
	return nil
}

func (c *ClassifierConfig) validate() error {
	if !c.Configured() {
		return nil
	}
	if !strings.HasPrefix(c.URL, "http://") && !strings.HasPrefix(c.URL, "https://") {
		return fmt.Errorf("classifier.url must be an http(s) url")
	}
	if c.BreakerThreshold <= 0 {
		return fmt.Errorf("classifier.breaker_threshold must be > 0")
	}
	return nil
}

func (t *TradingConfig) validate() error {
	if t.DuplicateWindowSeconds < 0 {
		return fmt.Errorf("trading.duplicate_window_seconds must be >= 0")
	}
	if t.BuyRetryCap <= 0 || t.SellRetryCap <= 0 {
		return fmt.Errorf("trading retry caps must be > 0")
	}
	if t.TakeProfit1SellPct <= 0 || t.TakeProfit1SellPct > 100 {
		return fmt.Errorf("trading.take_profit_1_sell_pct must be in (0, 100]")
	}
	if t.DefaultSlippageBps < 0 || t.DefaultSlippageBps > 10000 {
		return fmt.Errorf("trading.default_slippage_bps must be in [0, 10000]")
	}
	return nil
}

func (e *ExecutorConfig) validate() error {
	if !e.Enabled {
		return nil
	}
	if e.URL == "" {
		return fmt.Errorf("executor.url cannot be empty when executor is enabled")
	}
	return nil
}

func (n *NotifyConfig) validate() error {
	if n.Telegram.Enabled {
		if n.Telegram.BotToken == "" || n.Telegram.ChatID == "" {
			return fmt.Errorf("telegram notification enabled but missing bot_token or chat_id")
		}
	}
	return nil
}

func (m *MetricsConfig) validate() error {
	if m.Enabled && !strings.HasPrefix(m.Path, "/") {
		return fmt.Errorf("metrics.path must start with /")
	}
	return nil
}
