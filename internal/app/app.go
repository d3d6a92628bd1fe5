package app

import (
	"context"
	"fmt"

	"signalrelay/internal/config"
	"signalrelay/internal/config/loader"
	"signalrelay/internal/logger"
	"signalrelay/internal/relay"
	"signalrelay/internal/store"
	workerhttp "signalrelay/internal/transport/http/worker"

	"golang.org/x/sync/errgroup"
)

// App owns the long-running parts of the relay: the worker API and the
// roster refresher.
type App struct {
	cfg     *config.Config
	store   store.Store
	roster  *loader.RosterLoader
	relay   *relay.Service
	server  *workerhttp.Server
	Summary *StartupSummary
}

// NewApp wires every dependency from cfg without starting anything.
func NewApp(ctx context.Context, cfg *config.Config) (*App, error) {
	if cfg == nil {
		return nil, fmt.Errorf("nil config")
	}
	logger.SetLevel(cfg.App.LogLevel)
	logger.SetFormat(cfg.App.LogFormat)
	return buildAppWithWire(ctx, cfg)
}

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.cfg == nil {
		return fmt.Errorf("app not initialized")
	}
	if a.Summary != nil {
		a.Summary.Print()
	}
	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		if err := a.server.Start(ctx); err != nil {
			return fmt.Errorf("worker http server error: %w", err)
		}
		return nil
	})
	group.Go(func() error {
		return a.roster.Run(ctx, a.cfg.Roster.RefreshInterval())
	})
	return group.Wait()
}

// Relay exposes the delivery queue for operator tooling.
func (a *App) Relay() *relay.Service {
	if a == nil {
		return nil
	}
	return a.relay
}

func (a *App) Close() error {
	if a == nil || a.store == nil {
		return nil
	}
	return a.store.Close()
}
