// Package api provides the HTTP API server for the control plane.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/thakurlabs/thakur/internal/api/handlers"
	"github.com/thakurlabs/thakur/internal/api/health"
	"github.com/thakurlabs/thakur/internal/api/middleware"
	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/integrations/github"
	"github.com/thakurlabs/thakur/internal/logs"
	"github.com/thakurlabs/thakur/internal/queue"
	"github.com/thakurlabs/thakur/internal/store"
	"github.com/thakurlabs/thakur/pkg/config"
)

// Version is the current version of the API server.
// This should be set at build time using ldflags.
var Version = "dev"

// Server represents the HTTP API server.
type Server struct {
	router        chi.Router
	httpServer    *http.Server
	store         store.Store
	queue         queue.Queue
	broker        *logs.Broker
	cipher        *crypto.Cipher
	deploySvc     *deploy.Service
	github        *github.Client
	config        *config.Config
	logger        *slog.Logger
	healthChecker *health.Checker
}

// NewServer creates a new API server with the given dependencies. q may be
// nil when Redis is not configured; builds then go straight to the worker.
func NewServer(cfg *config.Config, st store.Store, q queue.Queue, broker *logs.Broker, cipher *crypto.Cipher, deploySvc *deploy.Service, gh *github.Client, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		store:     st,
		queue:     q,
		broker:    broker,
		cipher:    cipher,
		deploySvc: deploySvc,
		github:    gh,
		config:    cfg,
		logger:    logger,
	}

	s.healthChecker = health.NewChecker(Version)
	if pinger, ok := st.(health.Pinger); ok {
		s.healthChecker.Add("database", pinger)
	}

	s.setupRouter()
	return s
}

// setupRouter configures the router with middleware and routes.
func (s *Server) setupRouter() {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestLogger(s.logger))
	r.Use(middleware.Recovery(s.logger))
	r.Use(chimiddleware.Timeout(60 * time.Second))

	r.Get("/health", health.LivenessHandler(Version))
	r.Get("/ready", s.healthChecker.Handler())

	var worker *deploy.WorkerClient
	if s.queue == nil {
		worker = deploy.NewWorkerClient(s.config.BuildWorkerURL, s.logger)
	}

	projectHandler := handlers.NewProjectHandler(s.store, s.deploySvc, s.cipher, s.config.BaseDomain, s.config.IsProduction(), s.logger)
	buildHandler := handlers.NewBuildHandler(s.store, s.queue, worker, s.deploySvc, s.logger)
	logHandler := handlers.NewLogHandler(s.store, s.broker, s.logger)
	deploymentHandler := handlers.NewDeploymentHandler(s.store, s.deploySvc, s.logger)
	envVarHandler := handlers.NewEnvVarHandler(s.store, s.cipher, s.logger)
	domainHandler := handlers.NewDomainHandler(s.store, s.config.BaseDomain, s.logger)
	githubHandler := handlers.NewGitHubHandler(s.store, s.github, buildHandler, s.config.GitHub.WebhookSecret, s.logger)

	r.Route("/projects", func(r chi.Router) {
		r.Get("/", projectHandler.List)
		r.Post("/", projectHandler.Create)
		r.Route("/{projectID}", func(r chi.Router) {
			r.Get("/", projectHandler.Get)
			r.Put("/", projectHandler.Update)
			r.Delete("/", projectHandler.Delete)
			r.Post("/stop", projectHandler.Stop)
			r.Get("/deployment", deploymentHandler.GetActive)
			r.Get("/builds", buildHandler.ListByProject)
			r.Post("/builds", buildHandler.CreateForProject)
			r.Get("/env", envVarHandler.List)
			r.Post("/env", envVarHandler.Upsert)
			r.Delete("/env/{key}", envVarHandler.Delete)
		})
	})

	r.Route("/builds", func(r chi.Router) {
		r.Delete("/queue", buildHandler.DrainQueue)
		r.Route("/{buildID}", func(r chi.Router) {
			r.Get("/", buildHandler.Get)
			r.Put("/", buildHandler.UpdateStatus)
			r.Get("/logs", logHandler.List)
			r.Post("/logs", logHandler.Append)
			r.Delete("/logs", logHandler.Delete)
			r.Get("/logs/stream", logHandler.Stream)
		})
	})

	r.Post("/deploy/build/{buildID}/activate", deploymentHandler.Activate)
	r.Get("/domains/check", domainHandler.Check)

	r.Route("/github", func(r chi.Router) {
		r.Get("/installations", githubHandler.ListInstallations)
		r.Get("/installations/{installationID}/repositories", githubHandler.ListInstallationRepositories)
		r.Post("/webhook", githubHandler.Webhook)
	})

	s.router = r
}

// Start starts the HTTP server.
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

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
	s.logger.Info("shutting down API server")
	shutdownCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(shutdownCtx)
}

// Router returns the chi router for testing purposes.
func (s *Server) Router() chi.Router {
	return s.router
}
