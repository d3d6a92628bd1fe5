package config

import (
	"strings"
	"time"
)

// Config is the root configuration of the relay service.
type Config struct {
	App        AppConfig        `toml:"app"`
	Auth       AuthConfig       `toml:"auth"`
	Store      StoreConfig      `toml:"store"`
	Queue      QueueConfig      `toml:"queue"`
	Classifier ClassifierConfig `toml:"classifier"`
	Trading    TradingConfig    `toml:"trading"`
	Executor   ExecutorConfig   `toml:"executor"`
	Notify     NotifyConfig     `toml:"notify"`
	Roster     RosterConfig     `toml:"roster"`
	Metrics    MetricsConfig    `toml:"metrics"`
}

type AppConfig struct {
	Env               string `toml:"env"`
	LogLevel          string `toml:"log_level"`
	LogFormat         string `toml:"log_format"`
	HTTPAddr          string `toml:"http_addr"`
	LogPath           string `toml:"log_path"`
	ClassifierLogPath string `toml:"classifier_log_path"`
}

// AuthConfig holds the shared secret the workers present on every request.
type AuthConfig struct {
	WorkerAPIKey string `toml:"worker_api_key"`
}

type StoreConfig struct {
	Path string `toml:"path"`
}

// QueueConfig tunes the delivery queue and the leases handed to polling workers.
type QueueConfig struct {
	RetryCap              int `toml:"retry_cap"`
	BatchSize             int `toml:"batch_size"`
	MaxBatchSize          int `toml:"max_batch_size"`
	LeaseSeconds          int `toml:"lease_seconds"`
	IngestLeaseSeconds    int `toml:"ingest_lease_seconds"`
	MaxAttachmentsPerPush int `toml:"max_attachments_per_push"`
}

func (q QueueConfig) Lease() time.Duration {
	return time.Duration(q.LeaseSeconds) * time.Second
}

func (q QueueConfig) IngestLease() time.Duration {
	return time.Duration(q.IngestLeaseSeconds) * time.Second
}

// ClassifierConfig describes the external signal classifier endpoint.
type ClassifierConfig struct {
	URL              string            `toml:"url"`
	APIKey           string            `toml:"api_key"`
	Headers          map[string]string `toml:"headers"`
	TimeoutSeconds   int               `toml:"timeout_seconds"`
	BreakerThreshold int               `toml:"breaker_threshold"`
	BreakerCooldown  int               `toml:"breaker_cooldown_seconds"`
	RequestsPerSec   float64           `toml:"requests_per_second"`
	Burst            int               `toml:"burst"`
}

func (c ClassifierConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSeconds) * time.Second
}

func (c ClassifierConfig) Configured() bool {
	return strings.TrimSpace(c.URL) != ""
}

// TradingConfig holds the ledger-wide trading knobs. Per-channel sizing and
// exit rules live in the roster.
type TradingConfig struct {
	DuplicateWindowSeconds int     `toml:"duplicate_window_seconds"`
	BuyRetryCap            int     `toml:"buy_retry_cap"`
	SellRetryCap           int     `toml:"sell_retry_cap"`
	TakeProfit1SellPct     float64 `toml:"take_profit_1_sell_pct"`
	DefaultSlippageBps     int     `toml:"default_slippage_bps"`
	AutoExit               bool    `toml:"auto_exit"`
}

func (t TradingConfig) DuplicateWindow() time.Duration {
	return time.Duration(t.DuplicateWindowSeconds) * time.Second
}

// ExecutorConfig describes the optional swap executor webhook.
type ExecutorConfig struct {
	Enabled        bool   `toml:"enabled"`
	URL            string `toml:"url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

func (e ExecutorConfig) Timeout() time.Duration {
	return time.Duration(e.TimeoutSeconds) * time.Second
}

type NotifyConfig struct {
	Telegram TelegramConfig `toml:"telegram"`
}

type TelegramConfig struct {
	Enabled  bool   `toml:"enabled"`
	BotToken string `toml:"bot_token"`
	ChatID   string `toml:"chat_id"`
	APIBase  string `toml:"api_base"`
}

type RosterConfig struct {
	Path           string `toml:"path"`
	RefreshSeconds int    `toml:"refresh_seconds"`
}

func (r RosterConfig) RefreshInterval() time.Duration {
	return time.Duration(r.RefreshSeconds) * time.Second
}

type MetricsConfig struct {
	Enabled bool   `toml:"enabled"`
	Path    string `toml:"path"`
}

// keySet tracks which dotted keys were explicitly present in the config files.
type keySet map[string]struct{}

func (k keySet) mark(path string) {
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return
	}
	k[path] = struct{}{}
}

func (k keySet) isSet(path string) bool {
	if len(k) == 0 {
		return false
	}
	path = strings.ToLower(strings.TrimSpace(path))
	if path == "" {
		return false
	}
	_, ok := k[path]
	return ok
}

// fieldDefault describes how a single field receives its default value.
type fieldDefault struct {
	key   string
	need  func() bool
	apply func()
}
