package handlers

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/integrations/github"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// maxWebhookBody caps webhook payload reads at 5 MiB.
const maxWebhookBody = 5 << 20

// GitHubHandler handles GitHub App installations and webhook deliveries.
type GitHubHandler struct {
	store         store.Store
	client        *github.Client
	builds        *BuildHandler
	webhookSecret string
	logger        *slog.Logger
}

// NewGitHubHandler creates a new GitHub handler.
func NewGitHubHandler(st store.Store, client *github.Client, builds *BuildHandler, webhookSecret string, logger *slog.Logger) *GitHubHandler {
	return &GitHubHandler{
		store:         st,
		client:        client,
		builds:        builds,
		webhookSecret: webhookSecret,
		logger:        logger,
	}
}

// ListInstallations handles GET /github/installations.
func (h *GitHubHandler) ListInstallations(w http.ResponseWriter, r *http.Request) {
	installations, err := h.store.Installations().List(r.Context())
	if err != nil {
		h.logger.Error("failed to list installations", "error", err)
		WriteInternalError(w, "Failed to list installations")
		return
	}

	if installations == nil {
		installations = []*models.SourceInstallation{}
	}
	WriteJSON(w, http.StatusOK, installations)
}

// ListInstallationRepositories handles
// GET /github/installations/{installationID}/repositories.
func (h *GitHubHandler) ListInstallationRepositories(w http.ResponseWriter, r *http.Request) {
	installationID, err := strconv.ParseInt(chi.URLParam(r, "installationID"), 10, 64)
	if err != nil {
		WriteValidationError(w, "Invalid installation ID")
		return
	}

	if _, err := h.store.Installations().GetByInstallationID(r.Context(), installationID); err != nil {
		WriteStoreError(w, err, "Installation not found", "Failed to get installation")
		return
	}

	if !h.client.Configured() {
		WriteBadGateway(w, "GitHub App credentials are not configured")
		return
	}

	repos, err := h.client.ListInstallationRepositories(r.Context(), installationID)
	if err != nil {
		h.logger.Error("failed to list repositories", "installation_id", installationID, "error", err)
		WriteBadGateway(w, "Failed to list repositories from GitHub")
		return
	}

	WriteJSON(w, http.StatusOK, repos)
}

// webhookSummary is the response for a processed delivery. The endpoint
// answers 200 even when individual projects fail; failures only affect the
// counts.
type webhookSummary struct {
	Processed       bool `json:"processed"`
	BuildsTriggered int  `json:"builds_triggered"`
	BuildsSkipped   int  `json:"builds_skipped"`
}

// Webhook handles POST /github/webhook. The raw body is read before any
// parsing so the signature covers exactly what was delivered.
func (h *GitHubHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		WriteValidationError(w, "Failed to read request body")
		return
	}

	signature := r.Header.Get("X-Hub-Signature-256")
	if !github.VerifySignature(h.webhookSecret, body, signature) {
		h.logger.Warn("webhook signature verification failed",
			"event", r.Header.Get("X-GitHub-Event"),
			"delivery", r.Header.Get("X-GitHub-Delivery"),
		)
		WriteUnauthorized(w, "Invalid webhook signature")
		return
	}

	event := r.Header.Get("X-GitHub-Event")
	switch event {
	case github.EventInstallation:
		h.handleInstallation(w, r, body)
	case github.EventPush:
		h.handlePush(w, r, body)
	default:
		WriteJSON(w, http.StatusOK, webhookSummary{Processed: false})
	}
}

func (h *GitHubHandler) handleInstallation(w http.ResponseWriter, r *http.Request, body []byte) {
	var event github.InstallationEvent
	if err := json.Unmarshal(body, &event); err != nil {
		WriteValidationError(w, "Invalid installation payload")
		return
	}

	switch event.Action {
	case github.ActionCreated:
		now := time.Now().UTC()
		inst := &models.SourceInstallation{
			ID:             uuid.New().String(),
			InstallationID: event.Installation.ID,
			AccountLogin:   event.Installation.Account.Login,
			AccountID:      event.Installation.Account.ID,
			AccountType:    event.Installation.Account.Type,
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		if err := h.store.Installations().Upsert(r.Context(), inst); err != nil {
			h.logger.Error("failed to store installation", "installation_id", event.Installation.ID, "error", err)
			WriteInternalError(w, "Failed to store installation")
			return
		}
		h.logger.Info("installation created",
			"installation_id", event.Installation.ID,
			"account", event.Installation.Account.Login,
		)

	case github.ActionDeleted:
		if err := h.store.Installations().Delete(r.Context(), event.Installation.ID); err != nil {
			h.logger.Error("failed to delete installation", "installation_id", event.Installation.ID, "error", err)
		}
		if err := h.store.Projects().ClearInstallation(r.Context(), event.Installation.ID); err != nil {
			h.logger.Error("failed to clear installation references", "installation_id", event.Installation.ID, "error", err)
		}
		h.logger.Info("installation deleted", "installation_id", event.Installation.ID)
	}

	WriteJSON(w, http.StatusOK, webhookSummary{Processed: true})
}

func (h *GitHubHandler) handlePush(w http.ResponseWriter, r *http.Request, body []byte) {
	var event github.PushEvent
	if err := json.Unmarshal(body, &event); err != nil {
		WriteValidationError(w, "Invalid push payload")
		return
	}

	branch := event.Branch()
	if branch == "" || event.After == "" {
		WriteJSON(w, http.StatusOK, webhookSummary{Processed: false})
		return
	}

	projects, err := h.store.Projects().ListByRepo(r.Context(), event.Repository.ID, branch)
	if err != nil {
		h.logger.Error("failed to match projects for push",
			"repo_id", event.Repository.ID,
			"branch", branch,
			"error", err,
		)
		WriteInternalError(w, "Failed to match projects")
		return
	}

	summary := webhookSummary{Processed: true}
	for _, project := range projects {
		if !project.AutoDeploy {
			summary.BuildsSkipped++
			continue
		}

		exists, err := h.store.Builds().ExistsByCommit(r.Context(), project.ID, event.After)
		if err != nil {
			h.logger.Error("failed to check for existing build",
				"project_id", project.ID,
				"commit", event.After,
				"error", err,
			)
			summary.BuildsSkipped++
			continue
		}
		if exists {
			summary.BuildsSkipped++
			continue
		}

		if _, err := h.builds.StartBuild(r, project, event.After, event.HeadCommit.Message); err != nil {
			h.logger.Error("failed to trigger build from push",
				"project_id", project.ID,
				"commit", event.After,
				"error", err,
			)
			summary.BuildsSkipped++
			continue
		}
		summary.BuildsTriggered++
	}

	h.logger.Info("push processed",
		"repo", event.Repository.FullName,
		"branch", branch,
		"triggered", summary.BuildsTriggered,
		"skipped", summary.BuildsSkipped,
	)
	WriteJSON(w, http.StatusOK, summary)
}
