package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/store"
)

// DeploymentHandler handles deployment-related HTTP requests.
type DeploymentHandler struct {
	store     store.Store
	deploySvc *deploy.Service
	logger    *slog.Logger
}

// NewDeploymentHandler creates a new deployment handler.
func NewDeploymentHandler(st store.Store, deploySvc *deploy.Service, logger *slog.Logger) *DeploymentHandler {
	return &DeploymentHandler{
		store:     st,
		deploySvc: deploySvc,
		logger:    logger,
	}
}

// Activate handles POST /deploy/build/{buildID}/activate.
func (h *DeploymentHandler) Activate(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	deployment, err := h.deploySvc.ActivateBuild(r.Context(), buildID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrNotFound):
			WriteNotFound(w, "Build not found")
		case errors.Is(err, deploy.ErrBuildNotReady):
			WriteValidationError(w, "Only successful builds can be deployed")
		default:
			h.logger.Error("activation failed", "build_id", buildID, "error", err)
			WriteBadGateway(w, "Deployment activation failed")
		}
		return
	}

	WriteJSON(w, http.StatusOK, deployment)
}

// GetActive handles GET /projects/{projectID}/deployment.
func (h *DeploymentHandler) GetActive(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := h.store.Projects().Get(r.Context(), projectID); err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	deployment, err := h.store.Deployments().GetActive(r.Context(), projectID)
	if err != nil {
		WriteStoreError(w, err, "No active deployment", "Failed to get deployment")
		return
	}

	WriteJSON(w, http.StatusOK, deployment)
}
