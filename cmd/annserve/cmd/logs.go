package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"regexp"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/logging"
	"github.com/Aman-CERP/annserve/internal/ui"
)

type logsFlags struct {
	follow   bool
	lines    int
	level    string
	resource string
	filter   string
	noColor  bool
	file     string
}

func newLogsCmd() *cobra.Command {
	var f logsFlags

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "View annserve server logs",
		Long: `View and tail the JSON log file written by serve and mcp.

By default shows the last 50 lines of ~/.annserve/logs/server.log. The
mcp command logs only to this file, so this is where its output goes.`,
		Example: `  annserve logs -n 100
  annserve logs -f --level warn
  annserve logs --resource test_ann1 --filter "load"`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runLogs(cmd, f)
		},
	}

	cmd.Flags().BoolVarP(&f.follow, "follow", "f", false, "Follow log output (like tail -f)")
	cmd.Flags().IntVarP(&f.lines, "lines", "n", 50, "Number of lines to show")
	cmd.Flags().StringVar(&f.level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&f.resource, "resource", "", "Only entries for this index")
	cmd.Flags().StringVar(&f.filter, "filter", "", "Only lines matching this regex")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&f.file, "file", "", "Log file (default: ~/.annserve/logs/server.log)")

	return cmd
}

func runLogs(cmd *cobra.Command, f logsFlags) error {
	if f.level != "" && !logging.ValidLevel(f.level) {
		return fmt.Errorf("invalid --level %q: use debug, info, warn or error", f.level)
	}
	var pattern *regexp.Regexp
	if f.filter != "" {
		var err error
		if pattern, err = regexp.Compile(f.filter); err != nil {
			return fmt.Errorf("invalid filter pattern: %w", err)
		}
	}

	path := f.file
	if path == "" {
		path = logging.DefaultLogPath()
	}

	out := cmd.OutOrStdout()
	stderr := cmd.ErrOrStderr()
	viewer := logging.NewViewer(logging.ViewerConfig{
		Level:    f.level,
		Resource: f.resource,
		Pattern:  pattern,
		NoColor:  f.noColor || ui.DetectNoColor() || !ui.IsTTY(out),
	}, out)

	_, _ = fmt.Fprintf(stderr, "Log file: %s\n---\n", path)

	entries, err := viewer.Tail(path, f.lines)
	if err != nil {
		return err
	}
	viewer.Print(entries)

	if !f.follow {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	ch := make(chan logging.LogEntry, 100)
	errCh := make(chan error, 1)
	go func() { errCh <- viewer.Follow(ctx, path, ch) }()

	for {
		select {
		case entry := <-ch:
			_, _ = fmt.Fprintln(out, viewer.FormatEntry(entry))
		case err := <-errCh:
			return err
		case <-ctx.Done():
			_, _ = fmt.Fprintln(stderr, "\n---\nStopped.")
			return nil
		}
	}
}
