package version

import (
	"encoding/json"
	"runtime"
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func withVars(t *testing.T, v, c, d string) {
	t.Helper()
	oldV, oldC, oldD := Version, Commit, Date
	Version, Commit, Date = v, c, d
	t.Cleanup(func() { Version, Commit, Date = oldV, oldC, oldD })
}

func TestGetInfo_LdflagsWin(t *testing.T) {
	// Given: values injected at link time
	withVars(t, "1.4.0", "abc1234", "2026-01-01T00:00:00Z")

	// When: reading the build info
	info := GetInfo()

	// Then: the injected values are reported unchanged
	assert.Equal(t, "1.4.0", info.Version)
	assert.Equal(t, "abc1234", info.Commit)
	assert.Equal(t, "2026-01-01T00:00:00Z", info.Date)
	assert.Equal(t, runtime.Version(), info.GoVersion)
	assert.Equal(t, runtime.GOOS, info.OS)
	assert.Equal(t, runtime.GOARCH, info.Arch)
}

func TestFillFromBuildInfo(t *testing.T) {
	tests := []struct {
		name   string
		start  BuildInfo
		bi     debug.BuildInfo
		expect BuildInfo
	}{
		{
			name:  "go install of a tagged module",
			start: BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "v0.3.1"},
			},
			expect: BuildInfo{Version: "v0.3.1", Commit: "unknown", Date: "unknown"},
		},
		{
			name:  "local checkout with vcs stamping",
			start: BuildInfo{Version: "dev", Commit: "unknown", Date: "unknown"},
			bi: debug.BuildInfo{
				Main: debug.Module{Version: "(devel)"},
				Settings: []debug.BuildSetting{
					{Key: "vcs.revision", Value: "0123456789abcdef0123"},
					{Key: "vcs.time", Value: "2026-02-03T04:05:06Z"},
					{Key: "vcs.modified", Value: "true"},
				},
			},
			expect: BuildInfo{Version: "dev", Commit: "0123456789ab", Date: "2026-02-03T04:05:06Z", Modified: true},
		},
		{
			name:  "ldflags are not overridden",
			start: BuildInfo{Version: "1.0.0", Commit: "feed", Date: "today"},
			bi: debug.BuildInfo{
				Main:     debug.Module{Version: "v9.9.9"},
				Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "beef"}},
			},
			expect: BuildInfo{Version: "1.0.0", Commit: "feed", Date: "today"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			info := tt.start
			fillFromBuildInfo(&info, &tt.bi)
			assert.Equal(t, tt.expect, info)
		})
	}
}

func TestString_NamesProgram(t *testing.T) {
	withVars(t, "1.4.0", "abc1234", "2026-01-01T00:00:00Z")

	str := String()

	assert.Contains(t, str, "annserve 1.4.0")
	assert.Contains(t, str, "commit: abc1234")
	assert.Contains(t, str, "go: "+runtime.Version())
}

func TestShortAndBuilder(t *testing.T) {
	withVars(t, "1.4.0", "x", "y")

	assert.Equal(t, "1.4.0", Short())
	assert.Equal(t, "annserve/1.4.0", Builder())
}

func TestGetInfo_JSONFields(t *testing.T) {
	data, err := json.Marshal(GetInfo())
	require.NoError(t, err)

	var parsed map[string]any
	require.NoError(t, json.Unmarshal(data, &parsed))
	for _, key := range []string{"version", "commit", "date", "go_version", "os", "arch"} {
		assert.Contains(t, parsed, key)
	}
}
