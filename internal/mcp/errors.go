package mcp

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/dshills/docrag-mcp/internal/config"
	"github.com/dshills/docrag-mcp/internal/embedder"
	"github.com/dshills/docrag-mcp/internal/indexer"
	"github.com/dshills/docrag-mcp/internal/searcher"
)

// MCP error codes
const (
	ErrorCodeInvalidParams        = -32602 // Invalid method parameters
	ErrorCodeInternalError        = -32603 // Internal JSON-RPC error
	ErrorCodeConfiguration        = -32001 // Provider credentials or store settings are missing
	ErrorCodeIndexingInProgress   = -32002 // Another indexing operation is already running
	ErrorCodeEmptyQuery           = -32004 // Query parameter is empty
	ErrorCodeDimensionMismatch    = -32009 // No resolvable model matches the table dimension
	ErrorCodeNoIndexableContent   = -32010 // The request produced zero persistable chunks
	ErrorCodeEmptyEmbeddingResult = -32011 // The query embedding came back empty
)

// MCPError represents an MCP protocol error
type MCPError struct {
	Code    int
	Message string
	Data    interface{}
}

func (e *MCPError) Error() string {
	return fmt.Sprintf("MCP error %d: %s", e.Code, e.Message)
}

// newMCPError creates a properly formatted MCP error
func newMCPError(code int, message string, data interface{}) error {
	// MCP errors are returned as regular errors, the framework handles encoding
	return &MCPError{
		Code:    code,
		Message: message,
		Data:    data,
	}
}

func invalidParam(param, reason string) error {
	return newMCPError(ErrorCodeInvalidParams, fmt.Sprintf("invalid %s", param), map[string]interface{}{
		"param":  param,
		"reason": reason,
	})
}

// toMCPError maps domain errors onto MCP error codes. The http_status field
// mirrors the status an HTTP front end would return.
func toMCPError(message string, err error) error {
	var mismatch *embedder.EmbeddingDimensionMismatchError
	switch {
	case errors.As(err, &mismatch):
		tried := make([]map[string]interface{}, 0, len(mismatch.Tried))
		for _, p := range mismatch.Tried {
			tried = append(tried, map[string]interface{}{"model": p.Model, "dimension": p.Dimension})
		}
		return newMCPError(ErrorCodeDimensionMismatch, err.Error(), map[string]interface{}{
			"http_status":        http.StatusConflict,
			"expected_dimension": mismatch.Expected,
			"tried":              tried,
		})
	case errors.Is(err, embedder.ErrEmbeddingDimensionMismatch):
		return newMCPError(ErrorCodeDimensionMismatch, err.Error(), map[string]interface{}{
			"http_status": http.StatusConflict,
		})
	case errors.Is(err, indexer.ErrNoIndexableContent):
		return newMCPError(ErrorCodeNoIndexableContent, err.Error(), map[string]interface{}{
			"http_status": http.StatusUnprocessableEntity,
		})
	case errors.Is(err, indexer.ErrIndexingInProgress):
		return newMCPError(ErrorCodeIndexingInProgress, err.Error(), map[string]interface{}{
			"http_status": http.StatusConflict,
		})
	case errors.Is(err, embedder.ErrEmptyEmbeddingResult):
		return newMCPError(ErrorCodeEmptyEmbeddingResult, err.Error(), map[string]interface{}{
			"http_status": http.StatusBadGateway,
		})
	case errors.Is(err, searcher.ErrEmptyQuery):
		return newMCPError(ErrorCodeEmptyQuery, "query parameter is required and cannot be empty", map[string]interface{}{
			"param":  "query",
			"reason": "missing or empty",
		})
	case errors.Is(err, config.ErrConfiguration):
		return newMCPError(ErrorCodeConfiguration, err.Error(), map[string]interface{}{
			"http_status": http.StatusInternalServerError,
		})
	default:
		return newMCPError(ErrorCodeInternalError, message, map[string]interface{}{
			"http_status": http.StatusInternalServerError,
			"error":       err.Error(),
		})
	}
}
