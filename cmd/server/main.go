package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/urfave/cli/v3"

	"go-autoagent/internal/api"
	"go-autoagent/internal/app"
	"go-autoagent/internal/config"
	"go-autoagent/internal/logging"
)

const shutdownTimeout = 15 * time.Second

func main() {
	var configPath string
	cmd := &cli.Command{
		Name:  "autoagent-server",
		Usage: "Memory-aware automation assistant HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to the JSON config file",
				Value:       config.DefaultPath,
				Sources:     cli.EnvVars("AUTOAGENT_CONFIG"),
				Destination: &configPath,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			return serve(ctx, configPath)
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := cmd.Run(ctx, os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
		os.Exit(1)
	}
}

func serve(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return goerr.Wrap(err, "failed to load config", goerr.V("path", configPath))
	}
	logger := logging.New(cfg.Logging.Level, os.Stderr)
	logging.SetDefault(logger)

	a, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	if cfg.Scheduler.Enabled {
		if err := a.Scheduler.Start(ctx); err != nil {
			return goerr.Wrap(err, "failed to start scheduler")
		}
	}

	deps := api.Deps{
		Store:     a.Store,
		Agent:     a.Agent,
		Notifier:  a.Notifier,
		Scheduler: a.Scheduler,
		Hub:       a.Hub,
		Auth:      a.Auth,
		LLM:       a.LLM,
		Logger:    logger,
	}
	// Interface fields stay nil rather than holding a nil pointer.
	if a.Gmail != nil {
		deps.Gmail = a.Gmail
	}
	if a.Watcher != nil {
		deps.Watcher = a.Watcher
	}

	srv := &http.Server{
		Addr:              api.Addr(cfg),
		Handler:           api.SetupRouter(cfg, deps),
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting server", "addr", srv.Addr, "subpath", cfg.Server.Subpath)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return goerr.Wrap(err, "server failed")
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return goerr.Wrap(err, "graceful shutdown failed")
	}
	return nil
}
