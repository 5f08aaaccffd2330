package configs

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annserve/internal/config"
)

func TestProjectConfigTemplate_IsValidConfig(t *testing.T) {
	// Given: the template written to disk
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	path := filepath.Join(dir, "annserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ProjectConfigTemplate), 0o644))

	// When: loading it
	cfg, err := config.Load(path)

	// Then: it validates and carries the documented values
	require.NoError(t, err)
	assert.Equal(t, "/data/ann", cfg.Sources.Root)
	assert.Equal(t, config.NamingBase, cfg.Sources.Naming)
	assert.Equal(t, 5*time.Minute, cfg.Storage.FetchTimeout)
	assert.Equal(t, time.Hour, cfg.Refresh.Interval)
	assert.Equal(t, ":8000", cfg.Server.Addr)
}

func TestProjectConfigTemplate_MatchesDefaults(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	path := filepath.Join(dir, "annserve.yaml")
	require.NoError(t, os.WriteFile(path, []byte(ProjectConfigTemplate), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)

	defaults := config.NewConfig()
	assert.Equal(t, defaults.OOI, cfg.OOI)
	assert.Equal(t, defaults.Links.MaxChainDepth, cfg.Links.MaxChainDepth)
	assert.Equal(t, defaults.Storage.LoadWorkers, cfg.Storage.LoadWorkers)
	assert.Equal(t, defaults.Query, cfg.Query)
}
