// Package errors provides the API error envelope and response helpers.
package errors

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Error kinds carried in the envelope's "error" field.
const (
	KindValidation   = "Validation Error"
	KindNotFound     = "Not Found"
	KindUnauthorized = "Unauthorized"
	KindConflict     = "Conflict"
	KindBadGateway   = "Bad Gateway"
	KindInternal     = "Internal Server Error"
)

// APIError is the wire envelope for every error response: a kind string and
// a single-sentence cause. Secrets never appear in Message.
type APIError struct {
	Kind    string `json:"error"`
	Message string `json:"message"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// New creates a new APIError with the given kind and message.
func New(kind, message string) *APIError {
	return &APIError{Kind: kind, Message: message}
}

// NewValidationError creates a validation error.
func NewValidationError(message string) *APIError {
	return New(KindValidation, message)
}

// NewNotFoundError creates a not found error.
func NewNotFoundError(message string) *APIError {
	return New(KindNotFound, message)
}

// NewUnauthorizedError creates an unauthorized error.
func NewUnauthorizedError(message string) *APIError {
	return New(KindUnauthorized, message)
}

// NewConflictError creates a conflict error.
func NewConflictError(message string) *APIError {
	return New(KindConflict, message)
}

// NewBadGatewayError creates an upstream failure error.
func NewBadGatewayError(message string) *APIError {
	return New(KindBadGateway, message)
}

// NewInternalError creates an internal server error.
func NewInternalError(message string) *APIError {
	return New(KindInternal, message)
}

// HTTPStatusCode returns the HTTP status for the error's kind.
func (e *APIError) HTTPStatusCode() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindUnauthorized:
		return http.StatusUnauthorized
	case KindConflict:
		return http.StatusConflict
	case KindBadGateway:
		return http.StatusBadGateway
	case KindInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// WriteError writes an APIError as a JSON response.
func WriteError(w http.ResponseWriter, err *APIError) {
	WriteJSON(w, err.HTTPStatusCode(), err)
}
