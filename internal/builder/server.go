package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	apierrors "github.com/thakurlabs/thakur/internal/api/errors"
	"github.com/thakurlabs/thakur/internal/api/middleware"
	"github.com/thakurlabs/thakur/internal/models"
)

// Server is the worker's HTTP intake: jobs POSTed here run through the
// same concurrency slot as queued jobs.
type Server struct {
	worker     *Worker
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates the worker HTTP server.
func NewServer(worker *Worker, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		worker: worker,
		logger: logger,
	}
}

func (s *Server) router() chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		apierrors.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Post("/build", s.handleBuild)

	return r
}

// handleBuild accepts a job with 202 and runs it in the background.
func (s *Server) handleBuild(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		apierrors.WriteError(w, apierrors.NewValidationError("Failed to read request body"))
		return
	}

	job, err := models.DecodeBuildJobData(body)
	if err != nil {
		apierrors.WriteError(w, apierrors.NewValidationError(err.Error()))
		return
	}

	go func() {
		s.worker.acquire()
		defer s.worker.release()

		if err := s.worker.runner.Run(context.Background(), job); err != nil {
			s.logger.Error("build failed", "build_id", job.BuildID, "error", err)
		}
	}()

	apierrors.WriteJSON(w, http.StatusAccepted, map[string]string{"build_id": job.BuildID})
}

// Start starts the worker HTTP server.
func (s *Server) Start(ctx context.Context, host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	s.httpServer = &http.Server{
		Addr:        addr,
		Handler:     s.router(),
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 120 * time.Second,
	}

	s.logger.Info("starting build worker server", "addr", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	}
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down build worker server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}
