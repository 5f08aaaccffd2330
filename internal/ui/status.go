package ui

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Aman-CERP/annserve/internal/ann"
)

// StatusRenderer displays index health documents.
type StatusRenderer struct {
	out    io.Writer
	styles Styles
	now    func() time.Time
}

// NewStatusRenderer creates a status renderer.
func NewStatusRenderer(out io.Writer, noColor bool) *StatusRenderer {
	return &StatusRenderer{
		out:    out,
		styles: GetStyles(noColor),
		now:    time.Now,
	}
}

// Render writes one panel per index.
func (r *StatusRenderer) Render(indexes []ann.Health) error {
	if len(indexes) == 0 {
		_, err := fmt.Fprintln(r.out, r.styles.Dim.Render("No indexes."))
		return err
	}
	for _, h := range indexes {
		if _, err := fmt.Fprintln(r.out, r.panel(h)); err != nil {
			return err
		}
	}
	return nil
}

func (r *StatusRenderer) panel(h ann.Health) string {
	var lines []string
	row := func(label, value string) {
		lines = append(lines, r.styles.Label.Render(fmt.Sprintf("%-10s", label))+" "+value)
	}

	row("Status:", r.renderStatus(h.Status))
	row("Source:", h.Key)
	row("Path:", h.Path)
	if h.Metadata != nil {
		row("Index:", fmt.Sprintf("%s, %s, %d dims", h.Metadata.IndexType, h.Metadata.Metric, h.Metadata.Dimensions))
		if h.Metadata.VecSource != "" {
			row("Vectors:", h.Metadata.VecSource)
		}
	}
	row("Items:", fmt.Sprintf("%d", h.NIDs))
	if len(h.Head5) > 0 {
		row("First ids:", strings.Join(h.Head5, ", "))
	}
	if ts, err := time.Parse(time.RFC3339Nano, h.TsRead); err == nil {
		row("Extracted:", r.formatTime(ts))
	}
	if h.Parent != "" {
		row("Fallback:", h.Parent)
	}
	if h.OOI != "" {
		row("OOI:", h.OOI)
	}
	if h.LastError != "" {
		row("Error:", r.styles.Error.Render(h.LastError))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		r.styles.Header.Render(h.Name),
		r.styles.Panel.Render(strings.Join(lines, "\n")),
	)
}

// RenderJSON outputs the health documents as JSON.
func (r *StatusRenderer) RenderJSON(indexes []ann.Health) error {
	encoder := json.NewEncoder(r.out)
	encoder.SetIndent("", "  ")
	return encoder.Encode(indexes)
}

func (r *StatusRenderer) renderStatus(status ann.Status) string {
	switch status {
	case ann.StatusReady:
		return r.styles.Success.Render(status.String())
	case ann.StatusLoading:
		return r.styles.Warning.Render(status.String())
	default:
		return r.styles.Error.Render(status.String())
	}
}

// formatTime formats a time relative to now.
func (r *StatusRenderer) formatTime(t time.Time) string {
	diff := r.now().Sub(t)

	switch {
	case diff < time.Minute:
		return "just now"
	case diff < time.Hour:
		mins := int(diff.Minutes())
		if mins == 1 {
			return "1 minute ago"
		}
		return fmt.Sprintf("%d minutes ago", mins)
	case diff < 24*time.Hour:
		hours := int(diff.Hours())
		if hours == 1 {
			return "1 hour ago"
		}
		return fmt.Sprintf("%d hours ago", hours)
	case diff < 7*24*time.Hour:
		days := int(diff.Hours() / 24)
		if days == 1 {
			return "1 day ago"
		}
		return fmt.Sprintf("%d days ago", days)
	default:
		return t.Format("2006-01-02 15:04")
	}
}

// FormatBytes formats bytes to human-readable format.
func FormatBytes(bytes int64) string {
	const (
		KB = 1024
		MB = 1024 * KB
		GB = 1024 * MB
	)

	switch {
	case bytes >= GB:
		return fmt.Sprintf("%.1f GB", float64(bytes)/float64(GB))
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
