package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/vango-dev/chartsync/internal/config"
	"github.com/vango-dev/chartsync/internal/errors"
	"github.com/vango-dev/chartsync/pkg/chartsync"
	"github.com/vango-dev/chartsync/pkg/middleware"
	"github.com/vango-dev/chartsync/pkg/pref"
	"github.com/vango-dev/chartsync/pkg/server"
)

func serveCmd(opts *rootOptions) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the sync server",
		Long: `Start the HTTP and WebSocket sync server.

Hover preferences are hydrated from the configured storage backend
before the server accepts connections and written back in the
background.

Examples:
  chartsync serve
  chartsync serve --addr=127.0.0.1:9000
  chartsync serve --config=/etc/chartsync/chartsync.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.loadConfig()
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg, addr)
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", "", "Address to listen on (default from "+config.ConfigFileName+")")

	return cmd
}

func runServe(ctx context.Context, cfg *config.Config, addr string) error {
	logger := newLogger(cfg, os.Stderr)

	storage, err := openStorage(cfg)
	if err != nil {
		return err
	}

	var metrics *middleware.Metrics
	if cfg.Metrics.Enabled {
		metrics = middleware.NewMetrics(middleware.WithNamespace(cfg.Metrics.Namespace))
	}

	asyncOpts := []pref.AsyncOption{pref.AsyncLogger(logger)}
	svcOpts := []chartsync.Option{chartsync.WithLogger(logger)}
	if metrics != nil {
		asyncOpts = append(asyncOpts, pref.AsyncOnError(metrics.PersistFailed))
		svcOpts = append(svcOpts, chartsync.WithObserver(metrics))
	}
	async := pref.Async(storage, asyncOpts...)
	defer func() {
		if err := async.Close(); err != nil {
			logger.Warn("preference flush failed", "error", err)
		}
	}()
	svcOpts = append(svcOpts, chartsync.WithStorage(async))

	svc := chartsync.New(svcOpts...)

	serverOpts := []server.Option{
		server.WithLogger(logger),
		server.WithConfig(&server.Config{
			Address:         cfg.Address(),
			ShutdownTimeout: cfg.ShutdownTimeout(),
		}),
	}
	if metrics != nil {
		serverOpts = append(serverOpts, server.WithMetrics(metrics))
	}
	if cfg.Tracing.Enabled {
		serverOpts = append(serverOpts, server.WithTracing(middleware.WithTracerName(cfg.Tracing.TracerName)))
	}
	srv := server.New(svc, serverOpts...)

	// Handle signals
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	go func() {
		select {
		case <-sigCh:
			fmt.Fprintln(os.Stderr, "\n  Shutting down...")
			cancel()
		case <-ctx.Done():
		}
	}()

	logger.Info("chartsync starting",
		"version", version,
		"storage", cfg.Storage.Backend,
		"metrics", cfg.Metrics.Enabled,
		"tracing", cfg.Tracing.Enabled,
	)
	if err := srv.ListenAndServe(ctx, addr); err != nil {
		return errors.New("E302").Wrap(err)
	}
	return nil
}
