package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"signalrelay/internal/app"
	"signalrelay/internal/config"
	"signalrelay/internal/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile string
	cfg     *config.Config
	closers []io.Closer
)

var rootCmd = &cobra.Command{
	Use:           "signalrelay",
	Short:         "Signal relay between chat scrapers and the forwarding workers",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load(cfgFile)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		logFile, err := setupLogOutput(cfg.App.LogPath)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		if logFile != nil {
			closers = append(closers, logFile)
		}
		dump, err := setupClassifierLogOutput(cfg.App.ClassifierLogPath)
		if err != nil {
			return fmt.Errorf("open classifier log: %w", err)
		}
		if dump != nil {
			closers = append(closers, dump)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		for _, c := range closers {
			_ = c.Close()
		}
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the worker API and the roster refresher",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		logger.Infof("config loaded (env=%s, roster=%s)", cfg.App.Env, cfg.Roster.Path)
		a, err := app.NewApp(ctx, cfg)
		if err != nil {
			return fmt.Errorf("init app: %w", err)
		}
		defer a.Close()
		if err := a.Run(ctx); err != nil && ctx.Err() == nil {
			return fmt.Errorf("run: %w", err)
		}
		logger.Infof("signalrelay stopped")
		return nil
	},
}

// Execute runs the root command.
func Execute() {
	defaultCfg := os.Getenv("SIGNALRELAY_CONFIG")
	if defaultCfg == "" {
		defaultCfg = "configs/config.yaml"
	}
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", defaultCfg, "config file (env SIGNALRELAY_CONFIG)")
	rootCmd.AddCommand(serveCmd, newReviewCmd())
	rootCmd.RunE = serveCmd.RunE
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func setupLogOutput(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	mw := io.MultiWriter(os.Stdout, file)
	log.SetOutput(mw)
	logger.SetOutput(mw)
	return file, nil
}

func setupClassifierLogOutput(path string) (*os.File, error) {
	file, err := openAppend(path)
	if err != nil || file == nil {
		return nil, err
	}
	logger.SetClassifierWriter(file)
	return file, nil
}

func openAppend(path string) (*os.File, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, nil
	}
	dir := filepath.Dir(trimmed)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	return os.OpenFile(trimmed, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
}
