package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/builder"
	"github.com/Aman-CERP/annserve/internal/config"
	"github.com/Aman-CERP/annserve/internal/ooi"
	"github.com/Aman-CERP/annserve/internal/provider"
	"github.com/Aman-CERP/annserve/internal/ui"
)

type buildFlags struct {
	input    string
	out      string
	metric   string
	index    string
	vecSrc   string
	ooiDB    string
	ooiTable string
	ooiID    string
	ooiRepr  string
	plain    bool
	noColor  bool
}

func newBuildCmd() *cobra.Command {
	var f buildFlags

	cmd := &cobra.Command{
		Use:   "build",
		Short: "Build an index archive from JSONL vectors",
		Long: `Read {"id": "...", "factors": [...]} records, one per line, build an
index over them and write a servable .tar.gz archive.

With --ooi-db the vectors are also upserted into a SQLite store, so other
indexes can resolve these ids as out-of-index items.`,
		Example: `  annserve build --input vectors.jsonl --out /data/ann/items.tar.gz
  cat vectors.jsonl | annserve build --input - --out items.tar.gz --index flat`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBuild(cmd.Context(), cmd, f)
		},
	}

	cmd.Flags().StringVarP(&f.input, "input", "i", "", "JSONL input file, - for stdin (required)")
	cmd.Flags().StringVarP(&f.out, "out", "o", "", "Archive to write (default: <input>.tar.gz next to the input)")
	cmd.Flags().StringVar(&f.metric, "metric", string(provider.Angular), "Distance metric: angular or euclidean")
	cmd.Flags().StringVar(&f.index, "index", string(provider.KindHNSW), "Index type: hnsw or flat")
	cmd.Flags().StringVar(&f.vecSrc, "vec-src", "", "vec_src recorded in metadata.json (default: input name)")
	cmd.Flags().StringVar(&f.ooiDB, "ooi-db", "", "SQLite database to upsert the vectors into")
	cmd.Flags().StringVar(&f.ooiTable, "ooi-table", "embeddings", "Table for --ooi-db")
	cmd.Flags().StringVar(&f.ooiID, "ooi-id-column", "variant_id", "Id column for --ooi-db")
	cmd.Flags().StringVar(&f.ooiRepr, "ooi-repr-column", "repr", "Vector column for --ooi-db")
	cmd.Flags().BoolVar(&f.plain, "plain", false, "Plain progress output, no TUI")
	cmd.Flags().BoolVar(&f.noColor, "no-color", false, "Disable colors")
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runBuild(ctx context.Context, cmd *cobra.Command, f buildFlags) error {
	start := time.Now()

	opts := builder.DefaultOptions()
	metric, err := provider.ParseMetric(f.metric)
	if err != nil {
		return err
	}
	kind, err := provider.ParseKind(f.index)
	if err != nil {
		return err
	}
	opts.Metric, opts.Kind = metric, kind

	in, name, err := openInput(cmd, f.input)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out := f.out
	if out == "" {
		if name == "" {
			return fmt.Errorf("--out is required when reading stdin")
		}
		out = strings.TrimSuffix(f.input, filepath.Ext(f.input)) + ".tar.gz"
	}
	opts.VecSource = f.vecSrc
	if opts.VecSource == "" {
		opts.VecSource = name
	}

	renderer := ui.NewRenderer(ui.NewConfig(cmd.ErrOrStderr(),
		ui.WithForcePlain(f.plain),
		ui.WithNoColor(f.noColor),
		ui.WithTitle(filepath.Base(out))))
	if err := renderer.Start(ctx); err != nil {
		return err
	}
	defer func() { _ = renderer.Stop() }()

	warnings := 0
	opts.OnSkip = func(line int, err error) {
		warnings++
		renderer.AddError(ui.ErrorEvent{Line: line, Err: err, IsWarn: true})
	}
	opts.OnProgress = func(p builder.Progress) {
		renderer.UpdateProgress(progressEvent(p))
	}

	records, _, err := builder.ReadRecords(ctx, in, opts)
	if err != nil {
		return err
	}

	// Write next to the target and rename, so a watching server never
	// sees a partial archive.
	tmp, err := os.CreateTemp(filepath.Dir(out), ".annserve-build-*")
	if err != nil {
		return fmt.Errorf("create output: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	sum, err := builder.Build(ctx, records, tmp, opts)
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), out); err != nil {
		return fmt.Errorf("write %s: %w", out, err)
	}

	if f.ooiDB != "" {
		if err := upsertOOI(ctx, f, records); err != nil {
			return err
		}
	}

	renderer.Complete(ui.CompletionStats{
		Output:   out,
		Items:    sum.Items,
		Dims:     sum.Dims,
		Metric:   string(opts.Metric),
		Kind:     string(opts.Kind),
		Size:     sum.Bytes,
		Duration: time.Since(start),
		Warnings: warnings,
	})
	return nil
}

// openInput opens path, or stdin for "-". name is the input file name
// without extension, empty for stdin.
func openInput(cmd *cobra.Command, path string) (io.ReadCloser, string, error) {
	if path == "-" {
		return io.NopCloser(cmd.InOrStdin()), "", nil
	}
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("open input: %w", err)
	}
	base := filepath.Base(path)
	return file, strings.TrimSuffix(base, filepath.Ext(base)), nil
}

func progressEvent(p builder.Progress) ui.ProgressEvent {
	ev := ui.ProgressEvent{Current: p.Current, Total: p.Total}
	switch p.Stage {
	case builder.StageReading:
		ev.Stage = ui.StageReading
		ev.Message = fmt.Sprintf("%d records", p.Current)
	case builder.StageIndexing:
		ev.Stage = ui.StageIndexing
		ev.Message = "building index"
	case builder.StagePackaging:
		ev.Stage = ui.StagePackaging
		ev.Message = "writing archive"
	}
	return ev
}

func upsertOOI(ctx context.Context, f buildFlags, records []builder.Record) error {
	store, err := ooi.OpenSQLite(config.OOIStoreConfig{
		Name:       "build",
		Path:       f.ooiDB,
		Table:      f.ooiTable,
		IDColumn:   f.ooiID,
		ReprColumn: f.ooiRepr,
	}, true)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	ids := make([]string, len(records))
	vectors := make([][]float32, len(records))
	for i, rec := range records {
		ids[i], vectors[i] = rec.ID, rec.Factors
	}
	return store.Put(ctx, ids, vectors)
}
