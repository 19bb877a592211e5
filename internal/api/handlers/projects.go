package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
	"github.com/thakurlabs/thakur/internal/validation"
)

// ProjectHandler handles project-related HTTP requests.
type ProjectHandler struct {
	store      store.Store
	deploySvc  *deploy.Service
	cipher     *crypto.Cipher
	baseDomain string
	production bool
	logger     *slog.Logger
}

// NewProjectHandler creates a new project handler.
func NewProjectHandler(st store.Store, deploySvc *deploy.Service, cipher *crypto.Cipher, baseDomain string, production bool, logger *slog.Logger) *ProjectHandler {
	return &ProjectHandler{
		store:      st,
		deploySvc:  deploySvc,
		cipher:     cipher,
		baseDomain: baseDomain,
		production: production,
		logger:     logger,
	}
}

// CreateProjectRequest represents the request body for creating a project.
type CreateProjectRequest struct {
	Name                 string            `json:"name"`
	GitHubURL            string            `json:"github_url"`
	BuildCommand         string            `json:"build_command"`
	AppType              models.Framework  `json:"app_type"`
	RootDirectory        string            `json:"root_directory,omitempty"`
	Domain               string            `json:"domain,omitempty"`
	EnvVars              map[string]string `json:"env_vars,omitempty"`
	GitHubRepoID         int64             `json:"github_repo_id,omitempty"`
	GitHubRepoFullName   string            `json:"github_repo_full_name,omitempty"`
	GitHubBranch         string            `json:"github_branch,omitempty"`
	GitHubInstallationID *int64            `json:"github_installation_id,omitempty"`
	AutoDeploy           *bool             `json:"auto_deploy,omitempty"`
}

// Validate validates the create project request.
func (r *CreateProjectRequest) Validate() error {
	if err := validation.ValidateProjectName(r.Name); err != nil {
		return err
	}
	if r.GitHubURL == "" {
		return &models.ValidationError{Field: "github_url", Message: "github_url is required"}
	}
	if err := validation.ValidateFramework(r.AppType); err != nil {
		return err
	}
	if r.BuildCommand != "" {
		if err := validation.ValidateBuildCommand(r.BuildCommand); err != nil {
			return err
		}
	}
	if r.RootDirectory != "" {
		if err := validation.ValidateRootDirectory(r.RootDirectory); err != nil {
			return err
		}
	}
	for key, value := range r.EnvVars {
		if err := validation.ValidateEnvKey(key); err != nil {
			return err
		}
		if err := validation.ValidateEnvValue(value); err != nil {
			return err
		}
	}
	return nil
}

// projectSummary is a project as returned by the listing, without the
// deploy-host port.
type projectSummary struct {
	ID             string           `json:"id"`
	Name           string           `json:"name"`
	RepoURL        string           `json:"repo_url"`
	RepoFullName   string           `json:"repo_full_name,omitempty"`
	DefaultBranch  string           `json:"default_branch"`
	RootDirectory  string           `json:"root_directory"`
	BuildCommand   string           `json:"build_command"`
	Framework      models.Framework `json:"framework"`
	Domain         *string          `json:"domain,omitempty"`
	AutoDeploy     bool             `json:"auto_deploy"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

func summarize(p *models.Project) projectSummary {
	return projectSummary{
		ID:            p.ID,
		Name:          p.Name,
		RepoURL:       p.RepoURL,
		RepoFullName:  p.RepoFullName,
		DefaultBranch: p.DefaultBranch,
		RootDirectory: p.RootDirectory,
		BuildCommand:  p.BuildCommand,
		Framework:     p.Framework,
		Domain:        p.Domain,
		AutoDeploy:    p.AutoDeploy,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// fullDomain composes a subdomain label with the configured base domain.
func (h *ProjectHandler) fullDomain(label string) string {
	if h.baseDomain == "" {
		return label
	}
	return label + "." + h.baseDomain
}

// maxAutoDomainAttempts bounds the collision-suffix search for generated
// domains.
const maxAutoDomainAttempts = 100

// autoDomain derives a domain from the slugified project name for
// production deployments. A slug that fails the subdomain rules (reserved
// word, empty after slugging) leaves the project without a domain rather
// than failing the create; a taken slug gets a numeric suffix.
func (h *ProjectHandler) autoDomain(ctx context.Context, name string) (*string, error) {
	slug := validation.Slugify(name)
	if validation.ValidateSubdomain(slug) != nil {
		return nil, nil
	}

	for n := 1; n <= maxAutoDomainAttempts; n++ {
		label := slug
		if n > 1 {
			label = suffixedLabel(slug, n)
		}
		d := h.fullDomain(label)
		taken, err := h.store.Projects().DomainExists(ctx, d)
		if err != nil {
			return nil, err
		}
		if !taken {
			return &d, nil
		}
	}
	return nil, nil
}

// suffixedLabel appends -n to the slug, trimming it first when the result
// would exceed the label length limit.
func suffixedLabel(slug string, n int) string {
	suffix := "-" + strconv.Itoa(n)
	if len(slug)+len(suffix) > validation.MaxSubdomainLength {
		slug = strings.TrimRight(slug[:validation.MaxSubdomainLength-len(suffix)], "-")
	}
	return slug + suffix
}

// Create handles POST /projects.
func (h *ProjectHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req CreateProjectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	if err := req.Validate(); err != nil {
		WriteValidationError(w, err.Error())
		return
	}

	var domain *string
	switch {
	case req.Domain != "":
		label := strings.ToLower(strings.TrimSpace(req.Domain))
		if err := validation.ValidateSubdomain(label); err != nil {
			WriteValidationError(w, err.Error())
			return
		}
		d := h.fullDomain(label)
		taken, err := h.store.Projects().DomainExists(r.Context(), d)
		if err != nil {
			h.logger.Error("failed to check domain", "error", err)
			WriteInternalError(w, "Failed to check domain availability")
			return
		}
		if taken {
			WriteConflict(w, "Domain is already in use")
			return
		}
		domain = &d
	case h.production && h.baseDomain != "":
		d, err := h.autoDomain(r.Context(), req.Name)
		if err != nil {
			h.logger.Error("failed to check domain", "error", err)
			WriteInternalError(w, "Failed to check domain availability")
			return
		}
		domain = d
	}

	port, err := h.deploySvc.AllocatePort(r.Context())
	if err != nil {
		h.logger.Error("port allocation failed", "error", err)
		WriteBadGateway(w, "Deploy engine is unavailable, cannot allocate a port")
		return
	}

	branch := req.GitHubBranch
	if branch == "" {
		branch = "main"
	}

	now := time.Now().UTC()
	project := &models.Project{
		ID:             uuid.New().String(),
		Name:           strings.TrimSpace(req.Name),
		RepoURL:        strings.TrimSpace(req.GitHubURL),
		RepoID:         req.GitHubRepoID,
		RepoFullName:   req.GitHubRepoFullName,
		DefaultBranch:  branch,
		RootDirectory:  req.RootDirectory,
		BuildCommand:   req.BuildCommand,
		Framework:      req.AppType,
		Domain:         domain,
		Port:           port,
		InstallationID: req.GitHubInstallationID,
		AutoDeploy:     true,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.AutoDeploy != nil {
		project.AutoDeploy = *req.AutoDeploy
	}

	if err := h.store.Projects().Create(r.Context(), project); err != nil {
		h.logger.Error("failed to create project", "error", err)
		WriteStoreError(w, err, "Project not found", "Failed to create project")
		return
	}

	for key, value := range req.EnvVars {
		ciphertext, err := h.cipher.Encrypt(value)
		if err != nil {
			h.logger.Error("failed to encrypt env var", "project_id", project.ID, "key", key, "error", err)
			WriteInternalError(w, "Failed to store environment variables")
			return
		}
		envVar := &models.EnvVar{
			ID:              uuid.New().String(),
			ProjectID:       project.ID,
			Key:             key,
			ValueCiphertext: ciphertext,
		}
		if err := h.store.EnvVars().Upsert(r.Context(), envVar); err != nil {
			h.logger.Error("failed to store env var", "project_id", project.ID, "key", key, "error", err)
			WriteInternalError(w, "Failed to store environment variables")
			return
		}
	}

	h.logger.Info("project created",
		"project_id", project.ID,
		"name", project.Name,
		"framework", project.Framework,
		"port", project.Port,
	)
	WriteJSON(w, http.StatusCreated, project)
}

// List handles GET /projects.
func (h *ProjectHandler) List(w http.ResponseWriter, r *http.Request) {
	projects, err := h.store.Projects().List(r.Context())
	if err != nil {
		h.logger.Error("failed to list projects", "error", err)
		WriteInternalError(w, "Failed to list projects")
		return
	}

	summaries := make([]projectSummary, 0, len(projects))
	for _, p := range projects {
		summaries = append(summaries, summarize(p))
	}
	WriteJSON(w, http.StatusOK, summaries)
}

// Get handles GET /projects/{projectID}.
func (h *ProjectHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	project, err := h.store.Projects().Get(r.Context(), id)
	if err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}
	WriteJSON(w, http.StatusOK, project)
}

// UpdateProjectRequest represents the request body for updating a project.
// Absent fields are left unchanged.
type UpdateProjectRequest struct {
	Name          *string `json:"name,omitempty"`
	BuildCommand  *string `json:"build_command,omitempty"`
	RootDirectory *string `json:"root_directory,omitempty"`
	DefaultBranch *string `json:"default_branch,omitempty"`
	AutoDeploy    *bool   `json:"auto_deploy,omitempty"`
}

// Update handles PUT /projects/{projectID}.
func (h *ProjectHandler) Update(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	var req UpdateProjectRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	project, err := h.store.Projects().Get(r.Context(), id)
	if err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	if req.Name != nil {
		if err := validation.ValidateProjectName(*req.Name); err != nil {
			WriteValidationError(w, err.Error())
			return
		}
		project.Name = strings.TrimSpace(*req.Name)
	}
	if req.BuildCommand != nil {
		if *req.BuildCommand != "" {
			if err := validation.ValidateBuildCommand(*req.BuildCommand); err != nil {
				WriteValidationError(w, err.Error())
				return
			}
		}
		project.BuildCommand = *req.BuildCommand
	}
	if req.RootDirectory != nil {
		if *req.RootDirectory != "" {
			if err := validation.ValidateRootDirectory(*req.RootDirectory); err != nil {
				WriteValidationError(w, err.Error())
				return
			}
		}
		project.RootDirectory = *req.RootDirectory
	}
	if req.DefaultBranch != nil && *req.DefaultBranch != "" {
		project.DefaultBranch = *req.DefaultBranch
	}
	if req.AutoDeploy != nil {
		project.AutoDeploy = *req.AutoDeploy
	}
	project.UpdatedAt = time.Now().UTC()

	if err := h.store.Projects().Update(r.Context(), project); err != nil {
		h.logger.Error("failed to update project", "project_id", id, "error", err)
		WriteStoreError(w, err, "Project not found", "Failed to update project")
		return
	}

	WriteJSON(w, http.StatusOK, project)
}

// Delete handles DELETE /projects/{projectID}.
func (h *ProjectHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	project, err := h.store.Projects().Get(r.Context(), id)
	if err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	if err := h.deploySvc.DeleteProject(r.Context(), project); err != nil {
		h.logger.Error("failed to delete project", "project_id", id, "error", err)
		WriteInternalError(w, "Failed to delete project")
		return
	}

	h.logger.Info("project deleted", "project_id", id, "name", project.Name)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

// Stop handles POST /projects/{projectID}/stop.
func (h *ProjectHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "projectID")

	project, err := h.store.Projects().Get(r.Context(), id)
	if err != nil {
		WriteStoreError(w, err, "Project not found", "Failed to get project")
		return
	}

	if err := h.deploySvc.StopProject(r.Context(), project); err != nil {
		h.logger.Error("failed to stop project", "project_id", id, "error", err)
		WriteBadGateway(w, "Failed to stop the running deployment")
		return
	}

	h.logger.Info("project stopped", "project_id", id)
	WriteJSON(w, http.StatusOK, map[string]string{"message": "Project stopped"})
}
