package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/queue"
	"github.com/thakurlabs/thakur/internal/store"
)

// BuildHandler handles build-related HTTP requests. Jobs go to the Redis
// queue when one is configured, otherwise directly to the build worker.
type BuildHandler struct {
	store     store.Store
	queue     queue.Queue
	worker    *deploy.WorkerClient
	deploySvc *deploy.Service
	logger    *slog.Logger
}

// NewBuildHandler creates a new build handler. queue may be nil when Redis
// is not configured; worker is the HTTP fallback.
func NewBuildHandler(st store.Store, q queue.Queue, worker *deploy.WorkerClient, deploySvc *deploy.Service, logger *slog.Logger) *BuildHandler {
	return &BuildHandler{
		store:     st,
		queue:     q,
		worker:    worker,
		deploySvc: deploySvc,
		logger:    logger,
	}
}

// CreateBuildRequest represents the request body for triggering a build.
type CreateBuildRequest struct {
	CommitSHA     string `json:"commit_sha,omitempty"`
	CommitMessage string `json:"commit_message,omitempty"`
}

// CreateForProject handles POST /projects/{projectID}/builds.
func (h *BuildHandler) CreateForProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req CreateBuildRequest
	if r.ContentLength > 0 && !DecodeJSON(w, r, &req) {
		return
	}

	project, err := h.store.Projects().Get(r.Context(), projectID)
	if err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	build, err := h.StartBuild(r, project, req.CommitSHA, req.CommitMessage)
	if err != nil {
		h.logger.Error("failed to start build", "project_id", projectID, "error", err)
		WriteInternalError(w, "Failed to start build")
		return
	}

	WriteJSON(w, http.StatusCreated, build)
}

// maxCommitMessage matches the width of the commit_message column. Merge
// commits routinely exceed it; anything longer is cut at ingest so the
// insert never fails on a valid push.
const maxCommitMessage = 255

func truncateRunes(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

// StartBuild creates a pending build row and submits its job. A submission
// failure marks the build failed with an explanatory log entry and is
// returned to the caller.
func (h *BuildHandler) StartBuild(r *http.Request, project *models.Project, commitSHA, commitMessage string) (*models.Build, error) {
	ctx := r.Context()

	build := &models.Build{
		ID:        uuid.New().String(),
		ProjectID: project.ID,
		Status:    models.BuildStatusPending,
	}
	if commitSHA != "" {
		build.CommitSHA = &commitSHA
	}
	if commitMessage != "" {
		msg := truncateRunes(commitMessage, maxCommitMessage)
		build.CommitMessage = &msg
	}

	if err := h.store.Builds().Create(ctx, build); err != nil {
		return nil, fmt.Errorf("creating build: %w", err)
	}

	envVars, err := h.deploySvc.EnvSnapshot(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	job := &models.BuildJobData{
		BuildID:        build.ID,
		ProjectID:      project.ID,
		RepoURL:        project.RepoURL,
		BuildCommand:   project.BuildCommand,
		RootDirectory:  project.RootDirectory,
		Framework:      project.Framework,
		EnvVars:        envVars,
		InstallationID: project.InstallationID,
	}

	if h.queue != nil {
		err = h.queue.Enqueue(ctx, job)
	} else if h.worker != nil {
		err = h.worker.Trigger(ctx, job)
	} else {
		err = fmt.Errorf("no build submission path configured")
	}
	if err != nil {
		h.logger.Error("build submission failed", "build_id", build.ID, "error", err)
		if _, stErr := h.store.Builds().UpdateStatus(ctx, build.ID, models.BuildStatusFailed); stErr != nil {
			h.logger.Error("failed to mark build failed", "build_id", build.ID, "error", stErr)
		}
		h.deploySvc.LogToBuild(ctx, build.ID, fmt.Sprintf("Failed to submit build: %v", err), models.LogLevelError)
		return nil, fmt.Errorf("submitting build job: %w", err)
	}

	h.logger.Info("build submitted", "build_id", build.ID, "project_id", project.ID)
	return build, nil
}

// ListByProject handles GET /projects/{projectID}/builds.
func (h *BuildHandler) ListByProject(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	if _, err := h.store.Projects().Get(r.Context(), projectID); err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	builds, err := h.store.Builds().ListByProject(r.Context(), projectID)
	if err != nil {
		h.logger.Error("failed to list builds", "project_id", projectID, "error", err)
		WriteInternalError(w, "Failed to list builds")
		return
	}

	if builds == nil {
		builds = []*models.BuildWithDeployment{}
	}
	WriteJSON(w, http.StatusOK, builds)
}

// Get handles GET /builds/{buildID}.
func (h *BuildHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")

	build, err := h.store.Builds().Get(r.Context(), id)
	if err != nil {
		WriteStoreError(w, err, "Build not found", "Failed to get build")
		return
	}
	WriteJSON(w, http.StatusOK, build)
}

// UpdateStatusRequest is the internal build status update body.
type UpdateStatusRequest struct {
	Status models.BuildStatus `json:"status"`
}

// UpdateStatus handles PUT /builds/{buildID}. A transition to success kicks
// off background activation of the build.
func (h *BuildHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "buildID")

	var req UpdateStatusRequest
	if !DecodeJSON(w, r, &req) {
		return
	}
	if !req.Status.Valid() {
		WriteValidationError(w, fmt.Sprintf("Unknown build status %q", req.Status))
		return
	}

	build, err := h.store.Builds().UpdateStatus(r.Context(), id, req.Status)
	if err != nil {
		WriteStoreError(w, err, "Build not found", "Failed to update build status")
		return
	}

	if req.Status == models.BuildStatusSuccess && build.Status == models.BuildStatusSuccess {
		h.deploySvc.AutoActivate(build.ID)
	}

	WriteJSON(w, http.StatusOK, build)
}

// DrainQueue handles DELETE /builds/queue.
func (h *BuildHandler) DrainQueue(w http.ResponseWriter, r *http.Request) {
	if h.queue == nil {
		WriteJSON(w, http.StatusOK, map[string]int{"drained": 0})
		return
	}

	drained, err := h.queue.Drain(r.Context())
	if err != nil {
		h.logger.Error("failed to drain queue", "error", err)
		WriteInternalError(w, "Failed to drain build queue")
		return
	}

	h.logger.Info("build queue drained", "drained", drained)
	WriteJSON(w, http.StatusOK, map[string]int{"drained": drained})
}
