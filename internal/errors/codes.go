// Package errors provides structured error handling for annserve.
//
// Error codes follow the pattern ERR_XXX_DESCRIPTION where:
//   - 1XX: Configuration and wiring errors
//   - 2XX: IO errors (archive fetch, extraction, parsing)
//   - 3XX: Network errors (remote stat, external stores)
//   - 4XX: Query errors
//   - 5XX: Internal errors
package errors

// Category defines error categories for classification.
type Category string

const (
	// CategoryConfig indicates configuration-related errors.
	CategoryConfig Category = "CONFIG"
	// CategoryIO indicates fetch, extraction and parse errors.
	CategoryIO Category = "IO"
	// CategoryNetwork indicates remote lookups that failed.
	CategoryNetwork Category = "NETWORK"
	// CategoryValidation indicates query errors.
	CategoryValidation Category = "VALIDATION"
	// CategoryInternal indicates unexpected internal errors.
	CategoryInternal Category = "INTERNAL"
)

// Severity defines error severity levels.
type Severity string

const (
	// SeverityFatal indicates unrecoverable error, must abort.
	SeverityFatal Severity = "FATAL"
	// SeverityError indicates operation failed but can continue.
	SeverityError Severity = "ERROR"
	// SeverityWarning indicates degraded operation, continuing.
	SeverityWarning Severity = "WARNING"
	// SeverityInfo indicates informational only.
	SeverityInfo Severity = "INFO"
)

// Error codes organized by category.
const (
	// Config errors (100-199)
	ErrCodeConfigNotFound = "ERR_101_CONFIG_NOT_FOUND"
	ErrCodeConfigInvalid  = "ERR_102_CONFIG_INVALID"
	ErrCodeLinkInvalid    = "ERR_104_LINK_INVALID"

	// IO errors (200-299)
	ErrCodeLoadFailed = "ERR_201_LOAD_FAILED"

	// Network errors (300-399)
	ErrCodeStalenessCheck   = "ERR_301_STALENESS_CHECK"
	ErrCodeStoreUnavailable = "ERR_302_STORE_UNAVAILABLE"

	// Query errors (400-499)
	ErrCodeMalformedQuery    = "ERR_401_MALFORMED_QUERY"
	ErrCodeDimensionMismatch = "ERR_402_DIMENSION_MISMATCH"
	ErrCodeUnknownResource   = "ERR_403_UNKNOWN_RESOURCE"
	ErrCodeOutOfIndex        = "ERR_404_OUT_OF_INDEX"
	ErrCodeVectorNotFound    = "ERR_405_VECTOR_NOT_FOUND"
	ErrCodeMetricUnsupported = "ERR_406_METRIC_UNSUPPORTED"

	// Internal errors (500-599)
	ErrCodeInternal   = "ERR_501_INTERNAL"
	ErrCodeChainDepth = "ERR_502_CHAIN_DEPTH"
)

// categoryFromCode extracts category from error code.
func categoryFromCode(code string) Category {
	if len(code) < 7 {
		return CategoryInternal
	}

	// Extract numeric portion (e.g., "201" from "ERR_201_LOAD_FAILED")
	numStr := code[4:7]

	switch numStr[0] {
	case '1':
		return CategoryConfig
	case '2':
		return CategoryIO
	case '3':
		return CategoryNetwork
	case '4':
		return CategoryValidation
	default:
		return CategoryInternal
	}
}

// severityFromCode determines severity based on error code.
func severityFromCode(code string) Severity {
	switch code {
	case ErrCodeConfigInvalid, ErrCodeLinkInvalid:
		return SeverityFatal
	}

	// Retryable network errors get warning severity
	if isRetryableCode(code) {
		return SeverityWarning
	}

	return SeverityError
}

// isRetryableCode checks if an error code represents a retryable error.
func isRetryableCode(code string) bool {
	switch code {
	case ErrCodeStalenessCheck, ErrCodeStoreUnavailable, ErrCodeLoadFailed:
		return true
	default:
		return false
	}
}
