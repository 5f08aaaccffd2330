// Package cmd provides the CLI commands for annserve.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/logging"
	"github.com/Aman-CERP/annserve/pkg/version"
)

// Debug logging flag
var (
	debugMode      bool
	loggingCleanup func()
)

// NewRootCmd creates the root command for annserve CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "annserve",
		Short: "Serve approximate nearest-neighbor indexes over HTTP and MCP",
		Long: `annserve loads ANN index archives from a storage root, keeps them
fresh when the archives change, and answers neighbor queries by id or by
vector, across indexes, and through fallback chains.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("annserve version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&debugMode, "debug", false, "Enable debug logging to ~/.annserve/logs/")
	cmd.PersistentFlags().String("config", "", "Path to annserve.yaml (default: ./annserve.yaml if present)")

	cmd.PersistentPreRunE = startLogging
	cmd.PersistentPostRunE = stopLogging

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMCPCmd())
	cmd.AddCommand(newQueryCmd())
	cmd.AddCommand(newInspectCmd())
	cmd.AddCommand(newBuildCmd())
	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// startLogging enables debug file logging when --debug is set.
func startLogging(_ *cobra.Command, _ []string) error {
	if !debugMode {
		return nil
	}
	logger, cleanup, err := logging.Setup(logging.DebugConfig())
	if err != nil {
		return fmt.Errorf("failed to setup debug logging: %w", err)
	}
	loggingCleanup = cleanup
	slog.SetDefault(logger)
	slog.Info("Debug logging enabled",
		slog.String("log_file", logging.DefaultLogPath()),
		slog.String("version", version.Version))
	return nil
}

// stopLogging flushes the debug log file.
func stopLogging(_ *cobra.Command, _ []string) error {
	if loggingCleanup != nil {
		slog.Info("Debug logging stopped")
		loggingCleanup()
		loggingCleanup = nil
	}
	return nil
}

// Execute runs the root command and prints failures the way the CLI
// formats them.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		_, _ = fmt.Fprint(os.Stderr, serrors.FormatForCLI(err))
	}
	return err
}
