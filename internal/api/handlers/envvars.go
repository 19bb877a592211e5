package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
	"github.com/thakurlabs/thakur/internal/validation"
)

// EnvVarHandler handles environment variable HTTP requests. Values are
// encrypted before storage and decrypted when listed.
type EnvVarHandler struct {
	store  store.Store
	cipher *crypto.Cipher
	logger *slog.Logger
}

// NewEnvVarHandler creates a new env var handler.
func NewEnvVarHandler(st store.Store, cipher *crypto.Cipher, logger *slog.Logger) *EnvVarHandler {
	return &EnvVarHandler{
		store:  st,
		cipher: cipher,
		logger: logger,
	}
}

// envVarResponse is a decrypted variable as served to clients.
type envVarResponse struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// List handles GET /projects/{projectID}/env.
func (h *EnvVarHandler) List(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := h.store.Projects().Get(r.Context(), projectID); err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	vars, err := h.store.EnvVars().ListByProject(r.Context(), projectID)
	if err != nil {
		h.logger.Error("failed to list env vars", "project_id", projectID, "error", err)
		WriteInternalError(w, "Failed to list environment variables")
		return
	}

	out := make([]envVarResponse, 0, len(vars))
	for _, v := range vars {
		out = append(out, envVarResponse{
			Key:   v.Key,
			Value: h.cipher.Decrypt(v.ValueCiphertext),
		})
	}
	WriteJSON(w, http.StatusOK, out)
}

// UpsertEnvVarRequest represents the request body for setting a variable.
type UpsertEnvVarRequest struct {
	Key   string `json:"key"`
	Value string `json:"value"`
}

// Upsert handles POST /projects/{projectID}/env.
func (h *EnvVarHandler) Upsert(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req UpsertEnvVarRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if err := validation.ValidateEnvKey(req.Key); err != nil {
		WriteValidationError(w, err.Error())
		return
	}
	if err := validation.ValidateEnvValue(req.Value); err != nil {
		WriteValidationError(w, err.Error())
		return
	}

	if _, err := h.store.Projects().Get(r.Context(), projectID); err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	ciphertext, err := h.cipher.Encrypt(req.Value)
	if err != nil {
		h.logger.Error("failed to encrypt env var", "project_id", projectID, "key", req.Key, "error", err)
		WriteInternalError(w, "Failed to store environment variable")
		return
	}

	envVar := &models.EnvVar{
		ID:              uuid.New().String(),
		ProjectID:       projectID,
		Key:             req.Key,
		ValueCiphertext: ciphertext,
	}
	if err := h.store.EnvVars().Upsert(r.Context(), envVar); err != nil {
		h.logger.Error("failed to store env var", "project_id", projectID, "key", req.Key, "error", err)
		WriteInternalError(w, "Failed to store environment variable")
		return
	}

	WriteJSON(w, http.StatusOK, envVarResponse{Key: req.Key, Value: req.Value})
}

// Delete handles DELETE /projects/{projectID}/env/{key}.
func (h *EnvVarHandler) Delete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")
	key := chi.URLParam(r, "key")

	if err := h.store.EnvVars().Delete(r.Context(), projectID, key); err != nil {
		WriteStoreError(w, err, "Environment variable not found", "Failed to delete environment variable")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Environment variable deleted"})
}
