package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// asServeError returns the first ServeError in the chain, wrapping
// foreign errors as internal ones.
func asServeError(err error) *ServeError {
	var se *ServeError
	if errors.As(err, &se) {
		return se
	}
	return Wrap(ErrCodeInternal, err)
}

// FormatForCLI formats an error for terminal output.
func FormatForCLI(err error) string {
	if err == nil {
		return ""
	}

	se := asServeError(err)

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Error: %s\n", se.Message))
	if se.Suggestion != "" {
		sb.WriteString(fmt.Sprintf("  Hint: %s\n", se.Suggestion))
	}
	sb.WriteString(fmt.Sprintf("  Code: %s\n", se.Code))

	return sb.String()
}

// Body is the wire form of an error returned by the HTTP and MCP surfaces.
type Body struct {
	Code       string            `json:"code"`
	Message    string            `json:"message"`
	Category   string            `json:"category"`
	Details    map[string]string `json:"details,omitempty"`
	Suggestion string            `json:"suggestion,omitempty"`
	Retryable  bool              `json:"retryable"`
}

// ToBody converts any error into its wire form.
func ToBody(err error) Body {
	se := asServeError(err)
	return Body{
		Code:       se.Code,
		Message:    se.Message,
		Category:   string(se.Category),
		Details:    se.Details,
		Suggestion: se.Suggestion,
		Retryable:  se.Retryable,
	}
}

// FormatJSON returns a JSON representation of the error.
func FormatJSON(err error) ([]byte, error) {
	if err == nil {
		return json.Marshal(nil)
	}
	return json.Marshal(ToBody(err))
}

// FormatForLog returns slog attributes for an error.
func FormatForLog(err error) []any {
	if err == nil {
		return nil
	}

	var se *ServeError
	if !errors.As(err, &se) {
		return []any{"error", err.Error()}
	}

	attrs := []any{
		"error_code", se.Code,
		"error", se.Message,
		"category", string(se.Category),
	}
	if se.Cause != nil {
		attrs = append(attrs, "cause", se.Cause.Error())
	}
	for k, v := range se.Details {
		attrs = append(attrs, "detail_"+k, v)
	}
	return attrs
}
