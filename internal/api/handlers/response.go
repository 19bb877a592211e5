// Package handlers provides HTTP request handlers for the control plane.
package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/thakurlabs/thakur/internal/api/errors"
	"github.com/thakurlabs/thakur/internal/store"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	apierrors.WriteJSON(w, status, data)
}

// WriteValidationError writes a 400 validation error.
func WriteValidationError(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewValidationError(message))
}

// WriteNotFound writes a 404 not found error.
func WriteNotFound(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewNotFoundError(message))
}

// WriteUnauthorized writes a 401 unauthorized error.
func WriteUnauthorized(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewUnauthorizedError(message))
}

// WriteConflict writes a 409 conflict error.
func WriteConflict(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewConflictError(message))
}

// WriteBadGateway writes a 502 upstream failure error.
func WriteBadGateway(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewBadGatewayError(message))
}

// WriteInternalError writes a 500 internal error.
func WriteInternalError(w http.ResponseWriter, message string) {
	apierrors.WriteError(w, apierrors.NewInternalError(message))
}

// WriteStoreError maps store sentinel errors onto the envelope; anything
// else becomes a 500 with the fallback message.
func WriteStoreError(w http.ResponseWriter, err error, notFoundMsg, fallbackMsg string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		WriteNotFound(w, notFoundMsg)
	case errors.Is(err, store.ErrDuplicate):
		WriteConflict(w, "Resource already exists")
	default:
		WriteInternalError(w, fallbackMsg)
	}
}

// DecodeJSON decodes a request body into dst, returning false after writing
// a validation error when the body is malformed.
func DecodeJSON(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		WriteValidationError(w, "Invalid request body")
		return false
	}
	return true
}
