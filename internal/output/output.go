// Package output prints short CLI status lines.
package output

import (
	"fmt"
	"io"
	"strings"
)

// Writer prints status lines with an icon prefix. Write errors are
// ignored; this is console output.
type Writer struct {
	out   io.Writer
	quiet bool
}

// New creates a Writer on out.
func New(out io.Writer) *Writer {
	return &Writer{out: out}
}

// SetQuiet suppresses everything except warnings and errors.
func (w *Writer) SetQuiet(quiet bool) {
	w.quiet = quiet
}

// Status prints "icon msg", or an indented msg without an icon.
func (w *Writer) Status(icon, msg string) {
	if w.quiet {
		return
	}
	w.line(icon, msg)
}

// Statusf is Status with formatting.
func (w *Writer) Statusf(icon, format string, args ...any) {
	w.Status(icon, fmt.Sprintf(format, args...))
}

// Success prints a checkmarked line.
func (w *Writer) Success(msg string) {
	w.Status("✅", msg)
}

// Successf is Success with formatting.
func (w *Writer) Successf(format string, args ...any) {
	w.Success(fmt.Sprintf(format, args...))
}

// Warning prints a warning line, even when quiet.
func (w *Writer) Warning(msg string) {
	w.line("⚠️ ", msg)
}

// Warningf is Warning with formatting.
func (w *Writer) Warningf(format string, args ...any) {
	w.Warning(fmt.Sprintf(format, args...))
}

// Code prints content indented between blank lines.
func (w *Writer) Code(content string) {
	if w.quiet {
		return
	}
	_, _ = fmt.Fprintln(w.out)
	for _, line := range strings.Split(strings.TrimRight(content, "\n"), "\n") {
		_, _ = fmt.Fprintf(w.out, "  %s\n", line)
	}
	_, _ = fmt.Fprintln(w.out)
}

func (w *Writer) line(icon, msg string) {
	if icon != "" {
		_, _ = fmt.Fprintf(w.out, "%s %s\n", icon, msg)
		return
	}
	_, _ = fmt.Fprintf(w.out, "   %s\n", msg)
}
