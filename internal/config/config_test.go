package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
auth:
  worker_api_key: secret
`)
	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "secret", cfg.Auth.WorkerAPIKey)
	assert.Equal(t, defaultAppHTTPAddr, cfg.App.HTTPAddr)
	assert.Equal(t, 3, cfg.Queue.RetryCap)
	assert.Equal(t, 300, cfg.Trading.DuplicateWindowSeconds)
	assert.Equal(t, 100, cfg.Trading.DefaultSlippageBps)
	assert.Equal(t, 50.0, cfg.Trading.TakeProfit1SellPct)
	assert.True(t, cfg.Trading.AutoExit)
	assert.True(t, cfg.Metrics.Enabled)
	assert.False(t, cfg.Classifier.Configured())
}

func TestLoadKeepsExplicitFalse(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
auth:
  worker_api_key: secret
trading:
  auto_exit: false
metrics:
  enabled: false
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.False(t, cfg.Trading.AutoExit)
	assert.False(t, cfg.Metrics.Enabled)
}

func TestLoadMergesIncludes(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "base.yaml", `
queue:
  retry_cap: 5
  batch_size: 10
classifier:
  url: http://classifier.local/classify
`)
	path := writeFile(t, dir, "config.yaml", `
include:
  - base.yaml
auth:
  worker_api_key: secret
queue:
  batch_size: 7
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 5, cfg.Queue.RetryCap)
	assert.Equal(t, 7, cfg.Queue.BatchSize)
	assert.True(t, cfg.Classifier.Configured())
}

func TestLoadDetectsIncludeCycle(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.yaml", "include: [b.yaml]\n")
	path := writeFile(t, dir, "b.yaml", "include: [a.yaml]\n")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "include cycle")
}

func TestLoadRequiresWorkerKey(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "app:\n  env: test\n")
	t.Setenv(EnvWorkerAPIKey, "")
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "worker_api_key")
}

func TestLoadEnvOverridesSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
auth:
  worker_api_key: from-file
notify:
  telegram:
    enabled: true
    chat_id: "42"
`)
	t.Setenv(EnvWorkerAPIKey, "from-env")
	t.Setenv(EnvTelegramToken, "bot-token")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Auth.WorkerAPIKey)
	assert.Equal(t, "bot-token", cfg.Notify.Telegram.BotToken)
}

func TestValidateRejectsBadValues(t *testing.T) {
	dir := t.TempDir()
	cases := map[string]string{
		"log format": "auth:\n  worker_api_key: k\napp:\n  log_format: xml\n",
		"tp1 pct":    "auth:\n  worker_api_key: k\ntrading:\n  take_profit_1_sell_pct: 150\n",
		"executor":   "auth:\n  worker_api_key: k\nexecutor:\n  enabled: true\n",
		"classifier": "auth:\n  worker_api_key: k\nclassifier:\n  url: ftp://nope\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeFile(t, dir, "bad.yaml", body)
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestIngestBudgetRejectsSlowDependencies(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
auth:
  worker_api_key: k
queue:
  ingest_lease_seconds: 20
classifier:
  url: http://cls
  timeout_seconds: 10
executor:
  enabled: true
  url: http://exec
  timeout_seconds: 10
`)
	_, err := Load(path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ingest_lease_seconds")
}

func TestIngestBudgetAllowsDefaults(t *testing.T) {
	path := writeFile(t, t.TempDir(), "config.yaml", `
auth:
  worker_api_key: k
classifier:
  url: http://cls
executor:
  enabled: true
  url: http://exec
`)
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Less(t, cfg.Classifier.TimeoutSeconds+cfg.Executor.TimeoutSeconds, cfg.Queue.IngestLeaseSeconds)
}
