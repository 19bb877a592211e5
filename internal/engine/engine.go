// Package engine is the deploy host runtime: it stores build artifacts,
// rotates deployments with atomic symlinks, runs apps as processes or
// containers, serves static builds, and maintains the reverse proxy.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thakurlabs/thakur/internal/engine/docker"
	"github.com/thakurlabs/thakur/internal/engine/nginx"
)

// Config holds the engine's runtime settings.
type Config struct {
	ArtifactsDir  string
	AppsDir       string
	UseDocker     bool
	Production    bool
	BaseDomain    string
	NginxSitesDir string
	NginxLinkDir  string
	ControlAPIURL string
}

// Engine coordinates deployments on the host. All mutating operations on a
// project are serialized by a per-project lock.
type Engine struct {
	artifactsDir string
	appsDir      string
	production   bool

	locks  *lockRegistry
	nginx  *nginx.Manager
	docker *docker.Client
	static *staticRegistry
	sink   *LogSink
	logger *slog.Logger
}

// New creates the engine, resolving and creating its directories. The
// Docker client is only dialed in container mode.
func New(cfg Config, logger *slog.Logger) (*Engine, error) {
	if logger == nil {
		logger = slog.Default()
	}

	artifactsDir, err := ensureDir(cfg.ArtifactsDir)
	if err != nil {
		return nil, fmt.Errorf("preparing artifacts dir: %w", err)
	}
	appsDir, err := ensureDir(cfg.AppsDir)
	if err != nil {
		return nil, fmt.Errorf("preparing apps dir: %w", err)
	}

	e := &Engine{
		artifactsDir: artifactsDir,
		appsDir:      appsDir,
		production:   cfg.Production,
		locks:        newLockRegistry(),
		static:       newStaticRegistry(logger),
		sink:         NewLogSink(cfg.ControlAPIURL, logger),
		logger:       logger,
	}

	if cfg.Production && cfg.BaseDomain != "" {
		e.nginx = nginx.NewManager(cfg.NginxSitesDir, cfg.NginxLinkDir, cfg.BaseDomain, logger)
		if err := e.nginx.EnsureCatchAll(); err != nil {
			logger.Warn("failed to install catch-all nginx config", "error", err)
		}
	}

	if cfg.UseDocker {
		dc, err := docker.NewClient(logger)
		if err != nil {
			return nil, err
		}
		e.docker = dc
		logger.Info("docker deployment mode enabled")
	}

	return e, nil
}

// Docker reports whether the engine runs deployments in containers.
func (e *Engine) Docker() bool {
	return e.docker != nil
}

// Recover re-attaches container log followers after a restart. No-op in
// process mode.
func (e *Engine) Recover() {
	if e.docker == nil {
		return
	}
	e.docker.RecoverFollowers(context.Background(), func(projectID, buildID, line string) {
		e.sink.Send(buildID, line, "info")
	})
}

func (e *Engine) projectDir(projectID string) string {
	return filepath.Join(e.appsDir, projectID)
}

func (e *Engine) buildDir(projectID, buildID string) string {
	return filepath.Join(e.appsDir, projectID, "builds", buildID)
}

func (e *Engine) artifactPath(buildID string) string {
	return filepath.Join(e.artifactsDir, buildID+".tar.gz")
}

func ensureDir(dir string) (string, error) {
	if !filepath.IsAbs(dir) {
		abs, err := filepath.Abs(dir)
		if err != nil {
			return "", err
		}
		dir = abs
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", err
	}
	return dir, nil
}
