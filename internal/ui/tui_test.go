package ui

import (
	"bytes"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
)

func TestNewTUIRenderer_ReturnsErrorForNonTTY(t *testing.T) {
	// Given: a non-TTY buffer
	buf := &bytes.Buffer{}

	// When: creating TUI renderer
	r, err := NewTUIRenderer(NewConfig(buf))

	// Then: it refuses
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestBuildModel_StageIndicators(t *testing.T) {
	// Given: a model in the indexing stage
	tracker := NewProgressTracker()
	tracker.SetStage(StageIndexing, 100)
	tracker.Update(40)
	model := newBuildModel(tracker, "test_ann1.tar.gz")
	model.styles = NoColorStyles()

	// When: rendering
	view := model.View()

	// Then: every stage, the title and the count are shown
	assert.Contains(t, view, "Reading")
	assert.Contains(t, view, "Indexing")
	assert.Contains(t, view, "Packaging")
	assert.Contains(t, view, "test_ann1.tar.gz")
	assert.Contains(t, view, "40 / 100 items")
	assert.Contains(t, view, "40%")
}

func TestBuildModel_UnknownTotal(t *testing.T) {
	tracker := NewProgressTracker()
	tracker.SetStage(StageReading, 0)
	tracker.Update(12)
	model := newBuildModel(tracker, "")

	view := model.View()

	assert.Contains(t, view, "Reading...")
	assert.Contains(t, view, "12 items")
}

func TestBuildModel_Complete(t *testing.T) {
	// Given: a running model
	model := newBuildModel(NewProgressTracker(), "")
	model.styles = NoColorStyles()

	// When: the build completes
	_, cmd := model.Update(completeMsg(CompletionStats{
		Output: "out.tar.gz", Items: 100, Dims: 40, Metric: "angular", Kind: "flat", Duration: 2 * time.Second,
	}))

	// Then: the model quits and shows the summary
	assert.NotNil(t, cmd)
	view := model.View()
	assert.Contains(t, view, "Archive built")
	assert.Contains(t, view, "out.tar.gz")
	assert.Contains(t, view, "flat, angular, 40 dims")
}

func TestBuildModel_CtrlCQuits(t *testing.T) {
	model := newBuildModel(NewProgressTracker(), "")

	_, cmd := model.Update(tea.KeyMsg{Type: tea.KeyCtrlC})

	assert.NotNil(t, cmd)
	assert.Equal(t, "Cancelled.\n", model.View())
}

func TestBuildModel_WindowResize(t *testing.T) {
	model := newBuildModel(NewProgressTracker(), "")

	model.Update(tea.WindowSizeMsg{Width: 30, Height: 10})
	assert.Equal(t, 20, model.progressBar.Width)

	model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	assert.Equal(t, 100, model.progressBar.Width)
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{250 * time.Millisecond, "250ms"},
		{42 * time.Second, "42s"},
		{2 * time.Minute, "2m"},
		{2*time.Minute + 5*time.Second, "2m 5s"},
		{90 * time.Minute, "1h 30m"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}
