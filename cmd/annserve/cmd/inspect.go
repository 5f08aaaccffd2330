package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/ann"
	"github.com/Aman-CERP/annserve/internal/blob"
	"github.com/Aman-CERP/annserve/internal/config"
	"github.com/Aman-CERP/annserve/internal/ui"
)

func newInspectCmd() *cobra.Command {
	var jsonOutput bool
	var noColor bool

	cmd := &cobra.Command{
		Use:   "inspect [archive]",
		Short: "Show the health of an index archive or of every configured index",
		Long: `With an archive path, extract it into a temporary directory and print
its health document. Without one, load every configured index and print
theirs.

Output is a styled panel on a terminal and JSON otherwise.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				healths []ann.Health
				err     error
			)
			if len(args) == 1 {
				healths, err = inspectArchive(cmd.Context(), args[0])
			} else {
				healths, err = inspectConfigured(cmd)
			}
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			r := ui.NewStatusRenderer(out, noColor || ui.DetectNoColor())
			if jsonOutput || !ui.IsTTY(out) {
				return r.RenderJSON(healths)
			}
			return r.Render(healths)
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colors")

	return cmd
}

// inspectArchive loads one archive through the normal resource path into
// a throwaway extraction directory.
func inspectArchive(ctx context.Context, path string) ([]ann.Health, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	store, err := blob.NewLocalStore(filepath.Dir(abs))
	if err != nil {
		return nil, err
	}
	key := filepath.Base(abs)
	name, err := ann.DeriveName(key, config.NamingBase)
	if err != nil {
		return nil, err
	}

	tmp, err := os.MkdirTemp("", "annserve-inspect-")
	if err != nil {
		return nil, err
	}
	defer func() { _ = os.RemoveAll(tmp) }()

	opts := ann.DefaultResourceOptions()
	opts.Fetch.MaxRetries = 0
	opts.Logger = slog.New(slog.DiscardHandler)
	if debugMode {
		opts.Logger = slog.Default()
	}
	res := ann.NewResource(name, key, filepath.Join(tmp, name), store, opts)
	if err := res.Load(ctx, true); err != nil {
		return nil, err
	}

	h := res.Health()
	h.Path = abs
	return []ann.Health{h}, nil
}

func inspectConfigured(cmd *cobra.Command) ([]ann.Health, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, cleanup, err := setupLogger(cfg, true)
	if err != nil {
		return nil, fmt.Errorf("failed to setup logging: %w", err)
	}
	defer cleanup()

	svc, err := openServices(cmd.Context(), cfg, logger)
	if err != nil {
		return nil, err
	}
	defer func() { _ = svc.Close() }()

	var out []ann.Health
	for _, r := range svc.registry.Resources() {
		out = append(out, r.Health())
	}
	return out, nil
}
