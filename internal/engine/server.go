package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/thakurlabs/thakur/internal/api/middleware"
	"github.com/thakurlabs/thakur/internal/deploy"
)

// Server is the deploy engine's HTTP surface, consumed by the control
// plane and the build worker.
type Server struct {
	engine     *Engine
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer wires the engine's routes.
func NewServer(engine *Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: engine, logger: logger}

	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.Recovery(logger))

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)

	r.Post("/ports/check", s.handleCheckPort)
	r.Post("/artifacts/upload", s.handleUpload)
	r.Post("/activate", s.handleActivate)
	r.Post("/stop", s.handleStop)
	r.Post("/projects/{projectID}/delete", s.handleDelete)

	s.httpServer = &http.Server{
		Handler:     r,
		ReadTimeout: 10 * time.Minute,
		IdleTimeout: 120 * time.Second,
	}
	return s
}

// Start runs the server until ctx is cancelled.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	s.httpServer.Addr = net.JoinHostPort(host, strconv.Itoa(port))

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("deploy engine listening", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		return s.Shutdown()
	}
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}

// Router exposes the handler tree for tests.
func (s *Server) Router() http.Handler {
	return s.httpServer.Handler
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	mode := "process"
	if s.engine.Docker() {
		mode = "docker"
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"service": "deploy-engine",
		"status":  "running",
		"mode":    mode,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	if s.engine.docker != nil {
		if err := s.engine.docker.Ping(r.Context()); err != nil {
			writeError(w, http.StatusServiceUnavailable, fmt.Sprintf("docker daemon unreachable: %v", err))
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleCheckPort(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Port int `json:"port"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Port <= 0 || req.Port > 65535 {
		writeError(w, http.StatusBadRequest, "A valid port is required")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"available": PortAvailable(req.Port)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	buildID := r.URL.Query().Get("buildId")
	if buildID == "" {
		writeError(w, http.StatusBadRequest, "buildId query parameter is required")
		return
	}

	n, err := s.engine.ReceiveArtifact(buildID, r.Body)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"buildId": buildID, "bytes": n})
}

func (s *Server) handleActivate(w http.ResponseWriter, r *http.Request) {
	var req deploy.ActivateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.ProjectID == "" || req.BuildID == "" || req.Port <= 0 {
		writeError(w, http.StatusBadRequest, "projectId, buildId, and port are required")
		return
	}

	if err := s.engine.Activate(r.Context(), &req); err != nil {
		s.logger.Error("activation failed", "project_id", req.ProjectID, "build_id", req.BuildID, "error", err)
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Deployment activated"})
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	var req deploy.StopRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	if req.Port <= 0 {
		writeError(w, http.StatusBadRequest, "port is required")
		return
	}

	if err := s.engine.Stop(r.Context(), &req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Deployment stopped"})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	projectID := chi.URLParam(r, "projectID")

	var req deploy.DeleteRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body")
			return
		}
	}

	if err := s.engine.DeleteProject(r.Context(), projectID, &req); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"message": "Project deleted"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"message": message})
}
