// Package config loads annserve configuration from YAML files and the
// environment.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
	"github.com/Aman-CERP/annserve/internal/logging"
)

// Naming modes for deriving resource names from blob keys.
const (
	NamingBase     = "base"
	NamingRelative = "relative"
)

// ProjectFileNames are looked up in the working directory when no
// explicit config path is given. The first one found wins.
var ProjectFileNames = []string{"annserve.yaml", "annserve.yml"}

// Config represents the complete annserve configuration.
type Config struct {
	Version   int              `yaml:"version" json:"version"`
	Sources   SourcesConfig    `yaml:"sources" json:"sources"`
	Storage   StorageConfig    `yaml:"storage" json:"storage"`
	Links     LinksConfig      `yaml:"links" json:"links"`
	OOIStores []OOIStoreConfig `yaml:"ooi_stores" json:"ooi_stores"`
	OOI       OOIConfig        `yaml:"ooi" json:"ooi"`
	Cross     CrossConfig      `yaml:"cross" json:"cross"`
	Refresh   RefreshConfig    `yaml:"refresh" json:"refresh"`
	Query     QueryConfig      `yaml:"query" json:"query"`
	Server    ServerConfig     `yaml:"server" json:"server"`

	// File is the project config file that was applied, if any.
	File string `yaml:"-" json:"-"`
}

// SourcesConfig says where index archives live and how they are named.
type SourcesConfig struct {
	// Root is the blob store root. Keys are slash paths relative to it.
	Root string `yaml:"root" json:"root"`
	// Pattern is a glob over keys; "**" crosses directories.
	Pattern string `yaml:"pattern" json:"pattern"`
	// Naming is "base" (file name up to the first dot) or "relative"
	// (key without archive extensions).
	Naming string `yaml:"naming" json:"naming"`
}

// StorageConfig controls local extraction of archives.
type StorageConfig struct {
	ExtractDir   string        `yaml:"extract_dir" json:"extract_dir"`
	FetchTimeout time.Duration `yaml:"fetch_timeout" json:"fetch_timeout"`
	FetchRetries int           `yaml:"fetch_retries" json:"fetch_retries"`
	LoadWorkers  int           `yaml:"load_workers" json:"load_workers"`
}

// LinksConfig wires resources together.
type LinksConfig struct {
	// OOI names an external store or a resource used to resolve ids
	// that are not in an index.
	OOI string `yaml:"ooi" json:"ooi"`
	// FallbackMap is a path to a JSON object {child: parent}.
	FallbackMap string `yaml:"fallback_map" json:"fallback_map"`
	// Fallbacks are inline {child: parent} pairs, merged over FallbackMap.
	Fallbacks map[string]string `yaml:"fallbacks" json:"fallbacks,omitempty"`
	// MaxChainDepth bounds recursion through siblings and parents.
	MaxChainDepth int `yaml:"max_chain_depth" json:"max_chain_depth"`
}

// OOIStoreConfig describes one SQLite-backed external vector store.
type OOIStoreConfig struct {
	Name       string `yaml:"name" json:"name"`
	Path       string `yaml:"path" json:"path"`
	Table      string `yaml:"table" json:"table"`
	IDColumn   string `yaml:"id_column" json:"id_column"`
	ReprColumn string `yaml:"repr_column" json:"repr_column"`
}

// OOIConfig tunes lookups against external stores.
type OOIConfig struct {
	Timeout      time.Duration `yaml:"timeout" json:"timeout"`
	CacheSize    int           `yaml:"cache_size" json:"cache_size"`
	MaxFailures  int           `yaml:"max_failures" json:"max_failures"`
	ResetTimeout time.Duration `yaml:"reset_timeout" json:"reset_timeout"`
}

// CrossConfig configures cross-index queries.
type CrossConfig struct {
	// FallbackStore is an ooi_stores name consulted when the query
	// index is unknown.
	FallbackStore string `yaml:"fallback_store" json:"fallback_store"`
}

// RefreshConfig controls when resources check for newer archives.
type RefreshConfig struct {
	// Interval between periodic checks; 0 disables them.
	Interval     time.Duration `yaml:"interval" json:"interval"`
	CheckOnQuery bool          `yaml:"check_on_query" json:"check_on_query"`
	Watch        bool          `yaml:"watch" json:"watch"`
	Debounce     time.Duration `yaml:"debounce" json:"debounce"`
}

// QueryConfig bounds neighbor queries on every transport.
type QueryConfig struct {
	// MaxK is the largest k a query may ask for.
	MaxK int `yaml:"max_k" json:"max_k"`
}

// ServerConfig configures the HTTP transport and logging.
type ServerConfig struct {
	Addr         string        `yaml:"addr" json:"addr"`
	ReadTimeout  time.Duration `yaml:"read_timeout" json:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout" json:"write_timeout"`
	LogLevel     string        `yaml:"log_level" json:"log_level"`
	LogFile      string        `yaml:"log_file" json:"log_file"`
}

// NewConfig returns a configuration populated with defaults.
func NewConfig() *Config {
	return &Config{
		Version: 1,
		Sources: SourcesConfig{
			Pattern: "*.tar*",
			Naming:  NamingBase,
		},
		Storage: StorageConfig{
			ExtractDir:   filepath.Join(os.TempDir(), "ann"),
			FetchTimeout: 5 * time.Minute,
			FetchRetries: 3,
			LoadWorkers:  4,
		},
		Links: LinksConfig{
			MaxChainDepth: 8,
		},
		OOI: OOIConfig{
			Timeout:      2 * time.Second,
			CacheSize:    10000,
			MaxFailures:  5,
			ResetTimeout: 30 * time.Second,
		},
		Refresh: RefreshConfig{
			Interval: time.Hour,
			Debounce: 2 * time.Second,
		},
		Query: QueryConfig{
			MaxK: 10000,
		},
		Server: ServerConfig{
			Addr:         ":8000",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 60 * time.Second,
			LogLevel:     "info",
		},
	}
}

// GetUserConfigPath returns the path to the user configuration file.
// Uses $XDG_CONFIG_HOME/annserve/config.yaml, else ~/.config/annserve/config.yaml.
func GetUserConfigPath() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "annserve", "config.yaml")
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".config", "annserve", "config.yaml")
	}
	return filepath.Join(home, ".config", "annserve", "config.yaml")
}

// Load builds the effective configuration. Layers apply in order of
// increasing precedence:
//  1. Hardcoded defaults
//  2. User config (GetUserConfigPath)
//  3. explicit, or annserve.yaml / annserve.yml in the working directory
//  4. Environment variables (ANNSERVE_*)
//
// A missing explicit file is an error; missing implicit files are not.
func Load(explicit string) (*Config, error) {
	cfg := NewConfig()

	if userPath := GetUserConfigPath(); fileExists(userPath) {
		if err := cfg.loadYAML(userPath); err != nil {
			return nil, err
		}
	}

	projectPath := explicit
	if projectPath == "" {
		for _, name := range ProjectFileNames {
			if fileExists(name) {
				projectPath = name
				break
			}
		}
	}
	if projectPath != "" {
		if err := cfg.loadYAML(projectPath); err != nil {
			return nil, err
		}
		cfg.File = projectPath
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadYAML decodes path on top of the current values, so keys absent
// from the file keep their previous value and explicit zeroes stick.
func (c *Config) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return serrors.New(serrors.ErrCodeConfigNotFound, fmt.Sprintf("failed to read config file %s", path), err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return serrors.ConfigError(fmt.Sprintf("failed to parse config file %s", path), err)
	}
	return nil
}

// applyEnvOverrides applies ANNSERVE_* environment variable overrides.
func (c *Config) applyEnvOverrides() error {
	if v := os.Getenv("ANNSERVE_SOURCE_ROOT"); v != "" {
		c.Sources.Root = v
	}
	if v := os.Getenv("ANNSERVE_SOURCE_PATTERN"); v != "" {
		c.Sources.Pattern = v
	}
	if v := os.Getenv("ANNSERVE_EXTRACT_DIR"); v != "" {
		c.Storage.ExtractDir = v
	}
	if v := os.Getenv("ANNSERVE_OOI"); v != "" {
		c.Links.OOI = v
	}
	if v := os.Getenv("ANNSERVE_FALLBACK_MAP"); v != "" {
		c.Links.FallbackMap = v
	}
	if v := os.Getenv("ANNSERVE_REFRESH_INTERVAL"); v != "" {
		d, err := parseDuration(v)
		if err != nil {
			return serrors.ConfigError("ANNSERVE_REFRESH_INTERVAL: "+err.Error(), err)
		}
		c.Refresh.Interval = d
	}
	if v := os.Getenv("ANNSERVE_ADDR"); v != "" {
		c.Server.Addr = v
	}
	if v := os.Getenv("ANNSERVE_LOG_LEVEL"); v != "" {
		c.Server.LogLevel = v
	}
	return nil
}

// parseDuration accepts Go durations and bare seconds.
func parseDuration(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if secs, err := strconv.Atoi(s); err == nil {
		return time.Duration(secs) * time.Second, nil
	}
	return time.ParseDuration(s)
}

var sqlIdent = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Validate validates the configuration and fills per-store defaults.
func (c *Config) Validate() error {
	invalid := func(format string, args ...any) error {
		return serrors.ConfigError(fmt.Sprintf(format, args...), nil)
	}

	if c.Sources.Root == "" {
		return serrors.ConfigError("sources.root is required", nil).
			WithSuggestion("Set sources.root in annserve.yaml or ANNSERVE_SOURCE_ROOT")
	}
	if c.Sources.Pattern == "" {
		return invalid("sources.pattern must not be empty")
	}
	if c.Sources.Naming != NamingBase && c.Sources.Naming != NamingRelative {
		return invalid("sources.naming must be 'base' or 'relative', got %q", c.Sources.Naming)
	}

	if c.Storage.ExtractDir == "" {
		return invalid("storage.extract_dir must not be empty")
	}
	if c.Storage.FetchTimeout <= 0 {
		return invalid("storage.fetch_timeout must be positive, got %s", c.Storage.FetchTimeout)
	}
	if c.Storage.FetchRetries < 0 {
		return invalid("storage.fetch_retries must be non-negative, got %d", c.Storage.FetchRetries)
	}
	if c.Storage.LoadWorkers < 1 {
		return invalid("storage.load_workers must be at least 1, got %d", c.Storage.LoadWorkers)
	}

	if c.Links.MaxChainDepth < 1 {
		return invalid("links.max_chain_depth must be at least 1, got %d", c.Links.MaxChainDepth)
	}

	seen := make(map[string]bool, len(c.OOIStores))
	for i := range c.OOIStores {
		s := &c.OOIStores[i]
		if s.Name == "" || s.Path == "" {
			return invalid("ooi_stores[%d]: name and path are required", i)
		}
		if seen[s.Name] {
			return invalid("ooi_stores: duplicate name %q", s.Name)
		}
		seen[s.Name] = true
		if s.Table == "" {
			s.Table = "embeddings"
		}
		if s.IDColumn == "" {
			s.IDColumn = "variant_id"
		}
		if s.ReprColumn == "" {
			s.ReprColumn = "repr"
		}
		for _, ident := range []string{s.Table, s.IDColumn, s.ReprColumn} {
			if !sqlIdent.MatchString(ident) {
				return invalid("ooi_stores[%s]: %q is not a valid SQL identifier", s.Name, ident)
			}
		}
	}

	if c.OOI.Timeout <= 0 {
		return invalid("ooi.timeout must be positive, got %s", c.OOI.Timeout)
	}
	if c.OOI.CacheSize < 0 {
		return invalid("ooi.cache_size must be non-negative, got %d", c.OOI.CacheSize)
	}
	if c.Cross.FallbackStore != "" && !seen[c.Cross.FallbackStore] {
		return invalid("cross.fallback_store %q is not a configured ooi store", c.Cross.FallbackStore)
	}

	if c.Refresh.Interval < 0 {
		return invalid("refresh.interval must be non-negative, got %s", c.Refresh.Interval)
	}
	if c.Refresh.Debounce < 0 {
		return invalid("refresh.debounce must be non-negative, got %s", c.Refresh.Debounce)
	}

	if c.Query.MaxK < 1 {
		return invalid("query.max_k must be at least 1, got %d", c.Query.MaxK)
	}

	if c.Server.Addr == "" {
		return invalid("server.addr must not be empty")
	}
	if !logging.ValidLevel(c.Server.LogLevel) {
		return invalid("server.log_level must be 'debug', 'info', 'warn', or 'error', got %s", c.Server.LogLevel)
	}

	return nil
}

// StoreNames returns the configured external store names.
func (c *Config) StoreNames() []string {
	names := make([]string, 0, len(c.OOIStores))
	for _, s := range c.OOIStores {
		names = append(names, s.Name)
	}
	return names
}

// FallbackPairs returns the {child: parent} map from links.fallback_map
// with links.fallbacks applied on top.
func (c *Config) FallbackPairs() (map[string]string, error) {
	pairs := make(map[string]string)
	if c.Links.FallbackMap != "" {
		m, err := LoadFallbackMap(c.Links.FallbackMap)
		if err != nil {
			return nil, err
		}
		for k, v := range m {
			pairs[k] = v
		}
	}
	for k, v := range c.Links.Fallbacks {
		pairs[k] = v
	}
	return pairs, nil
}

// LoadFallbackMap reads a JSON object of child -> parent resource names.
func LoadFallbackMap(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, serrors.ConfigError(fmt.Sprintf("failed to read fallback map %s", path), err)
	}
	var m map[string]string
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, serrors.ConfigError(fmt.Sprintf("fallback map %s must be a JSON object of strings", path), err)
	}
	return m, nil
}

// WriteYAML writes the configuration to a YAML file.
func (c *Config) WriteYAML(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
