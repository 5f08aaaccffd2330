// Package logging configures the process-wide slog logger for annserve.
//
// Logs are written as JSON to a size-rotated file under ~/.annserve/logs/
// and, unless the process speaks MCP over stdio, mirrored to stderr. The
// stderr copy is human-readable text when stderr is a terminal.
package logging
