// Package mcp implements the Model Context Protocol (MCP) server for annserve.
package mcp

import (
	"context"
	"errors"
	"fmt"

	serrors "github.com/Aman-CERP/annserve/internal/errors"
)

// Custom MCP error codes for annserve.
const (
	// ErrCodeNotFound covers unknown indexes and ids that cannot be resolved.
	ErrCodeNotFound = -32001

	// ErrCodeLoadFailed indicates an index could not be loaded.
	ErrCodeLoadFailed = -32002

	// ErrCodeTimeout indicates the request timed out.
	ErrCodeTimeout = -32003

	// ErrCodeUnavailable indicates remote storage or an external store is down.
	ErrCodeUnavailable = -32004

	// Standard JSON-RPC error codes.
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603
)

// MCPError represents an MCP protocol error with code and message.
type MCPError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// MapError converts internal errors to MCP errors.
func MapError(err error) *MCPError {
	if err == nil {
		return nil
	}

	var mcpErr *MCPError
	if errors.As(err, &mcpErr) {
		return mcpErr
	}

	var se *serrors.ServeError
	if errors.As(err, &se) {
		return mapServeError(se)
	}

	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request timed out."}
	case errors.Is(err, context.Canceled):
		return &MCPError{Code: ErrCodeTimeout, Message: "Request was canceled."}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: "Internal server error."}
	}
}

// NewInvalidParamsError creates an error for invalid parameters with a custom message.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{
		Code:    ErrCodeInvalidParams,
		Message: msg,
	}
}

// NewMethodNotFoundError creates an error for unknown tools.
func NewMethodNotFoundError(name string) *MCPError {
	return &MCPError{
		Code:    ErrCodeMethodNotFound,
		Message: fmt.Sprintf("Tool '%s' not found.", name),
	}
}

// mapServeError converts a ServeError to an MCPError.
func mapServeError(se *serrors.ServeError) *MCPError {
	message := se.Message
	if se.Suggestion != "" {
		message = fmt.Sprintf("%s %s", se.Message, se.Suggestion)
	}

	switch se.Code {
	case serrors.ErrCodeUnknownResource, serrors.ErrCodeOutOfIndex, serrors.ErrCodeVectorNotFound:
		return &MCPError{Code: ErrCodeNotFound, Message: message}
	case serrors.ErrCodeLoadFailed:
		return &MCPError{Code: ErrCodeLoadFailed, Message: message}
	}

	switch se.Category {
	case serrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case serrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeUnavailable, Message: message}
	default:
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
