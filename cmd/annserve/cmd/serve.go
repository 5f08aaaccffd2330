package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/Aman-CERP/annserve/internal/refresh"
	"github.com/Aman-CERP/annserve/internal/server"
)

func newServeCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve indexes over HTTP",
		Long: `Load every index archive under sources.root, start the refresh
scheduler and answer HTTP queries until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cmd, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "Listen address (overrides server.addr)")

	return cmd
}

func runServe(ctx context.Context, cmd *cobra.Command, addr string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}

	logger, cleanup, err := setupLogger(cfg, false)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	svc, err := openServices(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer func() { _ = svc.Close() }()

	sched, err := newScheduler(svc)
	if err != nil {
		return err
	}

	srv := server.New(svc.registry, svc.cross, server.Options{
		Addr:         cfg.Server.Addr,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		Logger:       logger,
		Stores:       svc.stores,
	})

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error { return srv.ListenAndServe(gctx) })
	if err := g.Wait(); err != nil {
		return err
	}
	logger.Info("Shutdown complete")
	return nil
}

// newScheduler builds the refresh scheduler, with a source watcher when
// refresh.watch is set.
func newScheduler(svc *services) (*refresh.Scheduler, error) {
	opts := refresh.Options{
		Interval: svc.cfg.Refresh.Interval,
		Debounce: svc.cfg.Refresh.Debounce,
		Logger:   svc.logger,
	}
	var watcher *refresh.Watcher
	if svc.cfg.Refresh.Watch {
		w, err := refresh.NewWatcher(svc.store.Root(), svc.cfg.Sources.Pattern, opts)
		if err != nil {
			return nil, fmt.Errorf("failed to start source watcher: %w", err)
		}
		watcher = w
		svc.logger.Info("Watching index archives", slog.String("root", svc.store.Root()))
	}
	return refresh.NewScheduler(svc.registry, watcher, opts), nil
}
