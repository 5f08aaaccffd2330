package cmd

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/annserve/internal/ann"
	"github.com/Aman-CERP/annserve/internal/blob"
	"github.com/Aman-CERP/annserve/internal/config"
	"github.com/Aman-CERP/annserve/internal/logging"
	"github.com/Aman-CERP/annserve/internal/ooi"
)

// services is everything a serving command needs, built once from config.
type services struct {
	cfg      *config.Config
	store    *blob.LocalStore
	registry *ann.Registry
	cross    *ann.CrossResolver
	stores   *ooi.Stores
	logger   *slog.Logger
}

// loadConfig reads the --config flag and builds the effective config.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	return config.Load(path)
}

// setupLogger builds the process logger from the server section. The
// MCP transport must keep stdout clean, so it logs to the file only.
func setupLogger(cfg *config.Config, mcpMode bool) (*slog.Logger, func(), error) {
	var lc logging.Config
	if mcpMode {
		lc = logging.MCPConfig(cfg.Server.LogLevel)
	} else {
		lc = logging.DefaultConfig()
		lc.Level = cfg.Server.LogLevel
	}
	if cfg.Server.LogFile != "" {
		lc.FilePath = cfg.Server.LogFile
	}
	if debugMode {
		lc.Level = "debug"
	}
	return logging.Setup(lc)
}

// resourceOptions maps the config onto per-resource options.
func resourceOptions(cfg *config.Config, logger *slog.Logger) ann.ResourceOptions {
	opts := ann.DefaultResourceOptions()
	opts.FetchTimeout = cfg.Storage.FetchTimeout
	opts.Fetch.MaxRetries = cfg.Storage.FetchRetries
	opts.MaxChainDepth = cfg.Links.MaxChainDepth
	opts.MaxK = cfg.Query.MaxK
	opts.CheckOnQuery = cfg.Refresh.CheckOnQuery
	opts.Logger = logger
	return opts
}

// openServices discovers archives, loads every index and wires the OOI
// and fallback links. Any failure here aborts startup.
func openServices(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*services, error) {
	start := time.Now()

	store, err := blob.NewLocalStore(cfg.Sources.Root)
	if err != nil {
		return nil, err
	}
	sources, err := ann.Discover(ctx, store, cfg.Sources.Pattern, cfg.Sources.Naming)
	if err != nil {
		return nil, err
	}
	logger.Info("Discovered index archives",
		slog.String("root", store.Root()),
		slog.String("pattern", cfg.Sources.Pattern),
		slog.Int("count", len(sources)))

	registry, err := ann.NewRegistry(ctx, store, sources, ann.Options{
		ExtractDir:  cfg.Storage.ExtractDir,
		LoadWorkers: cfg.Storage.LoadWorkers,
		Resource:    resourceOptions(cfg, logger),
	})
	if err != nil {
		return nil, err
	}

	stores, err := ooi.OpenStores(cfg.OOIStores, cfg.OOI, logger)
	if err != nil {
		return nil, err
	}
	s := &services{cfg: cfg, store: store, registry: registry, stores: stores, logger: logger}

	if err := registry.LinkOOI(cfg.Links.OOI, stores); err != nil {
		return nil, errors.Join(err, s.Close())
	}
	pairs, err := cfg.FallbackPairs()
	if err != nil {
		return nil, errors.Join(err, s.Close())
	}
	if err := registry.LinkFallbacks(pairs); err != nil {
		return nil, errors.Join(err, s.Close())
	}

	var fallback ooi.Store
	if cfg.Cross.FallbackStore != "" {
		fallback, _ = stores.Get(cfg.Cross.FallbackStore)
	}
	s.cross = ann.NewCrossResolver(registry, fallback, logger)

	logger.Info("Services ready",
		slog.Int("indexes", len(registry.Names())),
		slog.Duration("duration", time.Since(start)))
	return s, nil
}

// Close releases the external stores.
func (s *services) Close() error {
	return s.stores.Close()
}
