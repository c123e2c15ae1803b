// Package mcp exposes the lockerindex search index over the Model Context
// Protocol.
package mcp

import (
	"context"
	"errors"
	"fmt"

	ixerrors "github.com/Aman-CERP/lockerindex/internal/errors"
)

// Custom MCP error codes.
const (
	// ErrCodeIndexUnavailable indicates the index could not serve the request.
	ErrCodeIndexUnavailable = -32001

	// ErrCodeRecordNotFound indicates no journaled record matches the id.
	ErrCodeRecordNotFound = -32002

	// ErrCodeTimeout indicates the request timed out or was canceled.
	ErrCodeTimeout = -32003

	// Standard JSON-RPC error codes.
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

	var ie *ixerrors.IndexError
	if errors.As(err, &ie) {
		return mapIndexError(ie)
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

// NewInvalidParamsError creates an error for invalid parameters.
func NewInvalidParamsError(msg string) *MCPError {
	return &MCPError{Code: ErrCodeInvalidParams, Message: msg}
}

// NewRecordNotFoundError creates an error for an unknown record id.
func NewRecordNotFoundError(id string) *MCPError {
	return &MCPError{Code: ErrCodeRecordNotFound, Message: fmt.Sprintf("Record '%s' not found.", id)}
}

func mapIndexError(ie *ixerrors.IndexError) *MCPError {
	message := ie.Message
	switch ie.Category {
	case ixerrors.CategoryValidation:
		return &MCPError{Code: ErrCodeInvalidParams, Message: message}
	case ixerrors.CategoryIO, ixerrors.CategoryNetwork:
		return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
	default:
		if ie.Code == ixerrors.ErrCodeNullEngine {
			return &MCPError{Code: ErrCodeIndexUnavailable, Message: message}
		}
		return &MCPError{Code: ErrCodeInternalError, Message: message}
	}
}
