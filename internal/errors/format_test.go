package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFormatForCLI_IncludesHintAndCode(t *testing.T) {
	// Given: an error with a suggestion
	err := ConfigError("sources.root is required", nil).
		WithSuggestion("Set sources.root in annserve.yaml or ANNSERVE_SOURCE_ROOT")

	// When: formatting for the terminal
	out := FormatForCLI(err)

	// Then: message, hint and code are present
	assert.Contains(t, out, "Error: sources.root is required")
	assert.Contains(t, out, "Hint: Set sources.root")
	assert.Contains(t, out, "Code: ERR_102_CONFIG_INVALID")
}

func TestFormatForCLI_WrapsPlainErrors(t *testing.T) {
	out := FormatForCLI(errors.New("boom"))

	assert.Contains(t, out, "Error: boom")
	assert.Contains(t, out, ErrCodeInternal)
	assert.Equal(t, "", FormatForCLI(nil))
}

func TestFormatForCLI_FindsServeErrorInChain(t *testing.T) {
	out := FormatForCLI(fmt.Errorf("serve: %w", New(ErrCodeLinkInvalid, "unknown sibling", nil)))

	assert.Contains(t, out, "Error: unknown sibling")
	assert.Contains(t, out, ErrCodeLinkInvalid)
}

func TestFormatJSON_RoundTrip(t *testing.T) {
	err := New(ErrCodeUnknownResource, "no index named x", nil).WithDetail("name", "x")

	data, jerr := FormatJSON(err)
	require.NoError(t, jerr)

	var body Body
	require.NoError(t, json.Unmarshal(data, &body))
	assert.Equal(t, ErrCodeUnknownResource, body.Code)
	assert.Equal(t, "VALIDATION", body.Category)
	assert.Equal(t, "x", body.Details["name"])
}

func TestFormatForLog_Attributes(t *testing.T) {
	err := New(ErrCodeLoadFailed, "bad tar", errors.New("unexpected EOF")).WithDetail("resource", "a")

	attrs := FormatForLog(err)

	assert.Contains(t, attrs, "error_code")
	assert.Contains(t, attrs, ErrCodeLoadFailed)
	assert.Contains(t, attrs, "unexpected EOF")
	assert.Contains(t, attrs, "detail_resource")

	assert.Equal(t, []any{"error", "plain"}, FormatForLog(errors.New("plain")))
	assert.Nil(t, FormatForLog(nil))
}
