// Package handlers provides HTTP request handlers for the API.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gridforge/gpumesh/internal/engine"
)

// APIError represents a standard API error response.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// Common error codes.
const (
	ErrCodeInvalidRequest    = "invalid_request"
	ErrCodeInsufficientSpecs = "insufficient_specs"
	ErrCodeNoSuitableNode    = "no_suitable_node"
	ErrCodeNotFound          = "not_found"
	ErrCodeConflict          = "conflict"
	ErrCodeUnauthorized      = "unauthorized"
	ErrCodeInternalError     = "internal_error"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an error response.
func WriteError(w http.ResponseWriter, status int, code, message string) {
	WriteJSON(w, status, &APIError{
		Code:    code,
		Message: message,
	})
}

// WriteBadRequest writes a 400 Bad Request response.
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, message)
}

// WriteNotFound writes a 404 Not Found response.
func WriteNotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, ErrCodeNotFound, message)
}

// WriteInternalError writes a 500 Internal Server Error response.
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternalError, message)
}

// WriteEngineError maps a coordination-engine error onto the API taxonomy.
func WriteEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrInsufficientSpecs):
		WriteError(w, http.StatusBadRequest, ErrCodeInsufficientSpecs, err.Error())
	case errors.Is(err, engine.ErrInvalidTaskRequirements):
		WriteError(w, http.StatusBadRequest, ErrCodeInvalidRequest, err.Error())
	case errors.Is(err, engine.ErrNoSuitableNode):
		WriteError(w, http.StatusConflict, ErrCodeNoSuitableNode, err.Error())
	case errors.Is(err, engine.ErrTaskNotFound), errors.Is(err, engine.ErrNodeNotFound):
		WriteError(w, http.StatusNotFound, ErrCodeNotFound, err.Error())
	case errors.Is(err, engine.ErrNotAssigned):
		WriteError(w, http.StatusConflict, ErrCodeConflict, err.Error())
	default:
		WriteInternalError(w, "An unexpected error occurred")
	}
}
