package ui

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annserve/internal/ann"
	"github.com/Aman-CERP/annserve/internal/provider"
)

func sampleHealth(now time.Time) ann.Health {
	return ann.Health{
		Name:   "test_ann1",
		Key:    "test_ann1.tar.gz",
		Path:   "/tmp/ann/test_ann1",
		Status: ann.StatusReady,
		Metadata: &ann.Metadata{
			Dimensions: 40,
			Metric:     provider.Angular,
			VecSource:  "fixtures",
			IndexType:  provider.KindFlat,
		},
		TsRead: now.Add(-3 * time.Hour).Format(time.RFC3339Nano),
		NIDs:   100,
		Head5:  []string{"0", "1", "2", "3", "4"},
		Parent: "test_ann2",
	}
}

func TestStatusRenderer_Render(t *testing.T) {
	// Given: a ready index
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)
	r.now = func() time.Time { return now }

	// When: rendering it
	require.NoError(t, r.Render([]ann.Health{sampleHealth(now)}))

	// Then: the panel shows its health
	out := buf.String()
	assert.Contains(t, out, "test_ann1")
	assert.Contains(t, out, "ready")
	assert.Contains(t, out, "flat, angular, 40 dims")
	assert.Contains(t, out, "0, 1, 2, 3, 4")
	assert.Contains(t, out, "3 hours ago")
	assert.Contains(t, out, "test_ann2")
	assert.NotContains(t, out, "\x1b[")
}

func TestStatusRenderer_RenderFailedIndex(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.Render([]ann.Health{{
		Name:      "broken",
		Status:    ann.StatusUninitialized,
		LastError: "[ERR_201_LOAD_FAILED] missing ids.txt",
	}}))

	assert.Contains(t, buf.String(), "uninitialized")
	assert.Contains(t, buf.String(), "missing ids.txt")
}

func TestStatusRenderer_RenderEmpty(t *testing.T) {
	buf := &bytes.Buffer{}

	require.NoError(t, NewStatusRenderer(buf, true).Render(nil))

	assert.Equal(t, "No indexes.\n", buf.String())
}

func TestStatusRenderer_RenderJSON(t *testing.T) {
	buf := &bytes.Buffer{}
	r := NewStatusRenderer(buf, true)

	require.NoError(t, r.RenderJSON([]ann.Health{sampleHealth(time.Now())}))

	var parsed []map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &parsed))
	require.Len(t, parsed, 1)
	assert.Equal(t, "test_ann1", parsed[0]["name"])
	assert.Equal(t, "ready", parsed[0]["status"])
	assert.EqualValues(t, 100, parsed[0]["n_ids"])
}

func TestStatusRenderer_FormatTime(t *testing.T) {
	now := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	r := NewStatusRenderer(&bytes.Buffer{}, true)
	r.now = func() time.Time { return now }

	tests := []struct {
		ago  time.Duration
		want string
	}{
		{10 * time.Second, "just now"},
		{time.Minute, "1 minute ago"},
		{5 * time.Minute, "5 minutes ago"},
		{time.Hour, "1 hour ago"},
		{24 * time.Hour, "1 day ago"},
		{3 * 24 * time.Hour, "3 days ago"},
		{10 * 24 * time.Hour, "2024-05-22 12:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, r.formatTime(now.Add(-tt.ago)))
	}
}

func TestFormatBytes(t *testing.T) {
	assert.Equal(t, "512 B", FormatBytes(512))
	assert.Equal(t, "1.5 KB", FormatBytes(1536))
	assert.Equal(t, "2.0 MB", FormatBytes(2*1024*1024))
	assert.Equal(t, "1.0 GB", FormatBytes(1024*1024*1024))
}
