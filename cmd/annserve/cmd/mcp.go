package cmd

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/mcp"
)

func newMCPCmd() *cobra.Command {
	var transport string

	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve indexes as MCP tools over stdio",
		Long: `Start an MCP server exposing neighbor queries, cross queries,
vector lookup, index status and refresh as tools.

stdout carries JSON-RPC only; logs go to the log file.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return runMCP(ctx, cmd, transport)
		},
	}

	cmd.Flags().StringVar(&transport, "transport", "stdio", "MCP transport (stdio)")

	return cmd
}

func runMCP(ctx context.Context, cmd *cobra.Command, transport string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, cleanup, err := setupLogger(cfg, true)
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
	go func() { _ = sched.Run(ctx) }()

	srv, err := mcp.NewServer(svc.registry, svc.cross, logger)
	if err != nil {
		return err
	}
	if err := srv.Serve(ctx, transport); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
