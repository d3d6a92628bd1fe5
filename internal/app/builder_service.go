package app

import (
	"fmt"

	"signalrelay/internal/config"
	"signalrelay/internal/gateway/classifier"
	"signalrelay/internal/gateway/executor"
	"signalrelay/internal/gateway/notifier"
	"signalrelay/internal/logger"
	"signalrelay/internal/metrics"
	"signalrelay/internal/routing"
	"signalrelay/internal/trading"
	workerhttp "signalrelay/internal/transport/http/worker"
	"signalrelay/internal/worker"
)

func buildWorkerHTTPServer(cfg *config.Config, handler *worker.Service, m *metrics.Metrics) (*workerhttp.Server, error) {
	scfg := workerhttp.ServerConfig{
		Addr:     cfg.App.HTTPAddr,
		APIKey:   cfg.Auth.WorkerAPIKey,
		Handler:  handler,
		Observer: m,
	}
	if cfg.Metrics.Enabled {
		scfg.Metrics = m.Handler()
		scfg.MetricsPath = cfg.Metrics.Path
	}
	server, err := workerhttp.NewServer(scfg)
	if err != nil {
		return nil, fmt.Errorf("init worker http server: %w", err)
	}
	return server, nil
}

// buildClassifier returns nil when no endpoint is configured, which turns
// classification off regardless of the roster flag.
func buildClassifier(cfg config.ClassifierConfig, m *metrics.Metrics) routing.Classifier {
	if !cfg.Configured() {
		logger.Infof("classifier not configured, messages relay unclassified")
		return nil
	}
	return classifier.New(cfg, m)
}

func buildExecutor(cfg config.ExecutorConfig) trading.BuyExecutor {
	if !cfg.Enabled {
		return nil
	}
	logger.Infof("executor hook enabled: %s", cfg.URL)
	return executor.NewWebhook(cfg)
}

func buildAlerter(cfg config.NotifyConfig) *notifier.Alerter {
	if !cfg.Telegram.Enabled {
		return notifier.NewAlerter(notifier.Noop{})
	}
	return notifier.NewAlerter(notifier.NewTelegram(cfg.Telegram.APIBase, cfg.Telegram.BotToken, cfg.Telegram.ChatID))
}
