package handlers

import (
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/thakurlabs/thakur/internal/logs"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// LogHandler handles build log HTTP requests.
type LogHandler struct {
	store  store.Store
	broker *logs.Broker
	logger *slog.Logger
}

// NewLogHandler creates a new log handler.
func NewLogHandler(st store.Store, broker *logs.Broker, logger *slog.Logger) *LogHandler {
	return &LogHandler{
		store:  st,
		broker: broker,
		logger: logger,
	}
}

// List handles GET /builds/{buildID}/logs.
func (h *LogHandler) List(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	if _, err := h.store.Builds().Get(r.Context(), buildID); err != nil {
		WriteStoreError(w, err, "Build not found", "Failed to get build")
		return
	}

	entries, err := h.store.Logs().ListByBuild(r.Context(), buildID)
	if err != nil {
		h.logger.Error("failed to list logs", "build_id", buildID, "error", err)
		WriteInternalError(w, "Failed to list logs")
		return
	}

	if entries == nil {
		entries = []*models.LogEntry{}
	}
	WriteJSON(w, http.StatusOK, entries)
}

// Delete handles DELETE /builds/{buildID}/logs.
func (h *LogHandler) Delete(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	if _, err := h.store.Builds().Get(r.Context(), buildID); err != nil {
		WriteStoreError(w, err, "Build not found", "Failed to get build")
		return
	}

	if err := h.store.Logs().DeleteByBuild(r.Context(), buildID); err != nil {
		h.logger.Error("failed to delete logs", "build_id", buildID, "error", err)
		WriteInternalError(w, "Failed to delete logs")
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{"message": "Logs deleted"})
}

// AppendLogsRequest is the internal log ingestion body: one or more
// newline-separated lines at a single level.
type AppendLogsRequest struct {
	Logs  string          `json:"logs"`
	Level models.LogLevel `json:"level"`
}

// Append handles POST /builds/{buildID}/logs. Each line is persisted and
// broadcast to live subscribers.
func (h *LogHandler) Append(w http.ResponseWriter, r *http.Request) {
	buildID := chi.URLParam(r, "buildID")

	var req AppendLogsRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	level := req.Level
	if level == "" {
		level = models.LogLevelInfo
	}
	if !level.Valid() {
		WriteValidationError(w, "Unknown log level")
		return
	}

	now := time.Now().UTC()
	var stored int
	for _, line := range strings.Split(req.Logs, "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}

		entry := &models.LogEntry{
			BuildID:   buildID,
			Level:     level,
			Message:   line,
			Timestamp: now,
		}
		if err := h.store.Logs().Create(r.Context(), entry); err != nil {
			h.logger.Error("failed to store log entry", "build_id", buildID, "error", err)
			WriteInternalError(w, "Failed to store logs")
			return
		}
		h.broker.Publish(entry)
		stored++
	}

	WriteJSON(w, http.StatusOK, map[string]int{"stored": stored})
}
