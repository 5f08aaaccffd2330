package mcp

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Aman-CERP/annserve/internal/ann"
	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

func TestMapError_NilError(t *testing.T) {
	// Given: nil error
	var err error

	// When: mapping the error
	result := MapError(err)

	// Then: returns nil
	assert.Nil(t, result)
}

func TestMapError_UnknownIndex(t *testing.T) {
	// Given: an unknown index error
	err := ann.UnknownResource("missing")

	// When: mapping the error
	result := MapError(err)

	// Then: it maps to not found
	require.NotNil(t, result)
	assert.Equal(t, ErrCodeNotFound, result.Code)
	assert.Contains(t, result.Message, "missing")
}

func TestMapError_Codes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"out of index", serrors.Newf(serrors.ErrCodeOutOfIndex, "id x"), ErrCodeNotFound},
		{"vector not found", serrors.Newf(serrors.ErrCodeVectorNotFound, "id x"), ErrCodeNotFound},
		{"load failed", serrors.LoadError("bad archive", nil), ErrCodeLoadFailed},
		{"malformed", serrors.QueryError("k must be positive"), ErrCodeInvalidParams},
		{"dimensions", serrors.Newf(serrors.ErrCodeDimensionMismatch, "want 40"), ErrCodeInvalidParams},
		{"staleness", serrors.Newf(serrors.ErrCodeStalenessCheck, "stat"), ErrCodeUnavailable},
		{"store down", serrors.Newf(serrors.ErrCodeStoreUnavailable, "sqlite"), ErrCodeUnavailable},
		{"chain depth", serrors.Newf(serrors.ErrCodeChainDepth, "too deep"), ErrCodeInternalError},
		{"deadline", context.DeadlineExceeded, ErrCodeTimeout},
		{"canceled", context.Canceled, ErrCodeTimeout},
		{"plain", errors.New("boom"), ErrCodeInternalError},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// When: mapping a wrapped error
			result := MapError(fmt.Errorf("wrapped: %w", tt.err))

			// Then: the code follows the error kind
			require.NotNil(t, result)
			assert.Equal(t, tt.want, result.Code)
		})
	}
}

func TestMapError_IncludesSuggestion(t *testing.T) {
	// Given: a load error, which carries a suggestion
	err := serrors.LoadError("archive is truncated", nil)

	// When: mapping the error
	result := MapError(err)

	// Then: both message and suggestion reach the client
	assert.Contains(t, result.Message, "archive is truncated")
	assert.Contains(t, result.Message, "previous snapshot")
}

func TestMapError_PassesMCPErrorThrough(t *testing.T) {
	// Given: an existing MCP error
	orig := NewInvalidParamsError("index parameter is required")

	// When: mapping it
	result := MapError(orig)

	// Then: it is returned unchanged
	assert.Same(t, orig, result)
}

func TestMCPError_Error(t *testing.T) {
	// Given: a method not found error
	err := NewMethodNotFoundError("nope")

	// Then: the message names code and tool
	assert.Equal(t, "MCP error -32601: Tool 'nope' not found.", err.Error())
}
