package errors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestServeError_Unwrap_PreservesOriginalError(t *testing.T) {
	// Given: an original error
	originalErr := errors.New("unexpected EOF")

	// When: wrapping it as a load failure
	se := New(ErrCodeLoadFailed, "reading ids.txt", originalErr)

	// Then: unwrapping returns the original error
	require.NotNil(t, se)
	assert.Equal(t, originalErr, errors.Unwrap(se))
	assert.True(t, errors.Is(se, originalErr))
}

func TestServeError_Error_ReturnsFormattedMessage(t *testing.T) {
	tests := []struct {
		name     string
		code     string
		message  string
		expected string
	}{
		{
			name:     "config error",
			code:     ErrCodeConfigInvalid,
			message:  "sources.root is required",
			expected: "[ERR_102_CONFIG_INVALID] sources.root is required",
		},
		{
			name:     "load error",
			code:     ErrCodeLoadFailed,
			message:  "archive is corrupt",
			expected: "[ERR_201_LOAD_FAILED] archive is corrupt",
		},
		{
			name:     "query error",
			code:     ErrCodeMalformedQuery,
			message:  "k must be positive",
			expected: "[ERR_401_MALFORMED_QUERY] k must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := New(tt.code, tt.message, nil)
			assert.Equal(t, tt.expected, err.Error())
		})
	}
}

func TestServeError_Is_MatchesSentinelByCode(t *testing.T) {
	// Given: a wrapped dimension mismatch
	err := fmt.Errorf("query failed: %w", Newf(ErrCodeDimensionMismatch, "got %d, want %d", 3, 40))

	// Then: it matches its sentinel and nothing else
	assert.True(t, errors.Is(err, ErrDimensionMismatch))
	assert.False(t, errors.Is(err, ErrMalformedQuery))
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestServeError_WithDetail_AddsContext(t *testing.T) {
	// Given: a base error
	err := New(ErrCodeUnknownResource, "no such index", nil)

	// When: adding details
	err = err.WithDetail("name", "test_ann3").WithDetail("known", "test_ann1")

	// Then: details are recorded
	assert.Equal(t, "test_ann3", err.Details["name"])
	assert.Equal(t, "test_ann1", err.Details["known"])
}

func TestServeError_WithSuggestion(t *testing.T) {
	err := ConfigError("links.ooi forms a cycle", nil).WithSuggestion("Remove one of the links")

	assert.Equal(t, "Remove one of the links", err.Suggestion)
	assert.Equal(t, ErrCodeConfigInvalid, err.Code)
}

func TestNew_DerivesCategoryFromCode(t *testing.T) {
	tests := []struct {
		code     string
		category Category
	}{
		{ErrCodeConfigInvalid, CategoryConfig},
		{ErrCodeLinkInvalid, CategoryConfig},
		{ErrCodeLoadFailed, CategoryIO},
		{ErrCodeStalenessCheck, CategoryNetwork},
		{ErrCodeStoreUnavailable, CategoryNetwork},
		{ErrCodeMalformedQuery, CategoryValidation},
		{ErrCodeOutOfIndex, CategoryValidation},
		{ErrCodeInternal, CategoryInternal},
		{ErrCodeChainDepth, CategoryInternal},
		{"bad", CategoryInternal},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			assert.Equal(t, tt.category, New(tt.code, "x", nil).Category)
		})
	}
}

func TestNew_DerivesSeverityAndRetryable(t *testing.T) {
	assert.Equal(t, SeverityFatal, New(ErrCodeLinkInvalid, "x", nil).Severity)
	assert.True(t, IsFatal(New(ErrCodeConfigInvalid, "x", nil)))

	stale := New(ErrCodeStalenessCheck, "stat failed", nil)
	assert.Equal(t, SeverityWarning, stale.Severity)
	assert.True(t, stale.Retryable)

	query := New(ErrCodeMalformedQuery, "x", nil)
	assert.Equal(t, SeverityError, query.Severity)
	assert.False(t, query.Retryable)
}

func TestWrap_NilReturnsNil(t *testing.T) {
	assert.Nil(t, Wrap(ErrCodeInternal, nil))
}

func TestIsRetryable_WalksChain(t *testing.T) {
	err := fmt.Errorf("outer: %w", New(ErrCodeStoreUnavailable, "store down", nil))

	assert.True(t, IsRetryable(err))
	assert.False(t, IsRetryable(errors.New("plain")))
	assert.False(t, IsRetryable(nil))
}

func TestGetCodeAndCategory(t *testing.T) {
	err := fmt.Errorf("outer: %w", LoadError("bad tar", nil))

	assert.Equal(t, ErrCodeLoadFailed, GetCode(err))
	assert.Equal(t, CategoryIO, GetCategory(err))
	assert.Equal(t, "", GetCode(errors.New("plain")))
	assert.Equal(t, Category(""), GetCategory(nil))
}

func TestLoadError_CarriesSuggestion(t *testing.T) {
	err := LoadError("checksum mismatch", nil)

	assert.NotEmpty(t, err.Suggestion)
	assert.True(t, errors.Is(err, ErrLoadFailure))
}
