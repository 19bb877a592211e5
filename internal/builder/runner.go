package builder

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/thakurlabs/thakur/internal/builder/clone"
	"github.com/thakurlabs/thakur/internal/integrations/github"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/nodeapp"
)

// Runner executes one build job end to end: clone, install, build, package,
// upload. Logs stream to the control plane; the artifact streams to the
// deploy engine.
type Runner struct {
	cp           *ControlPlaneClient
	engine       *EngineClient
	github       *github.Client
	workspaceDir string
	logger       *slog.Logger
}

// NewRunner creates a build runner.
func NewRunner(cp *ControlPlaneClient, engine *EngineClient, gh *github.Client, workspaceDir string, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		cp:           cp,
		engine:       engine,
		github:       gh,
		workspaceDir: workspaceDir,
		logger:       logger,
	}
}

// Run processes a build job. The workspace is removed on every exit path.
func (r *Runner) Run(ctx context.Context, job *models.BuildJobData) error {
	workspace := filepath.Join(r.workspaceDir, job.BuildID)
	stream := NewLogStreamer(r.cp, job.BuildID, r.logger)

	err := r.build(ctx, job, workspace, stream)
	if err != nil {
		stream.Send(fmt.Sprintf("Build failed: %v", err), models.LogLevelError)
		if stErr := r.cp.SetStatus(ctx, job.BuildID, models.BuildStatusFailed); stErr != nil {
			r.logger.Error("failed to report build failure", "build_id", job.BuildID, "error", stErr)
		}
	}

	stream.Flush(ctx)
	if rmErr := os.RemoveAll(workspace); rmErr != nil {
		r.logger.Error("failed to remove workspace", "build_id", job.BuildID, "error", rmErr)
	}

	return err
}

// backendNeedsBuild reports whether a backend gets an install + compile
// pass. The project's build command must name a compiler and the package
// must declare a build script; otherwise source ships as-is, with no
// install either, since bun resolves dependencies at activation time.
func backendNeedsBuild(buildCommand string, pkg *nodeapp.PackageJSON) bool {
	return pkg.HasScript("build") && nodeapp.HasCompileStep(buildCommand)
}

func (r *Runner) build(ctx context.Context, job *models.BuildJobData, workspace string, stream *LogStreamer) error {
	if err := r.cp.SetStatus(ctx, job.BuildID, models.BuildStatusBuilding); err != nil {
		return fmt.Errorf("reporting build start: %w", err)
	}
	stream.Send("Starting build", models.LogLevelInfo)

	var token string
	if job.InstallationID != nil && r.github.Configured() {
		var err error
		token, err = r.github.InstallationToken(ctx, *job.InstallationID)
		if err != nil {
			return fmt.Errorf("minting installation token: %w", err)
		}
	}

	stream.Send("Cloning repository", models.LogLevelInfo)
	if err := clone.Repository(ctx, job.RepoURL, token, workspace); err != nil {
		return err
	}

	projectDir := workspace
	if job.RootDirectory != "" {
		projectDir = filepath.Join(workspace, job.RootDirectory)
		if _, err := os.Stat(projectDir); err != nil {
			return fmt.Errorf("root directory %q not found in repository", job.RootDirectory)
		}
	}

	pkg, err := nodeapp.LoadPackageJSON(projectDir)
	if err != nil {
		return err
	}

	env := job.EnvVars
	var entryFile string

	if job.Framework.IsFrontend() {
		stream.Send("Installing dependencies", models.LogLevelInfo)
		if err := r.RunCommand(ctx, projectDir, "bun install", env, stream); err != nil {
			return err
		}

		buildCmd := job.BuildCommand
		if buildCmd == "" {
			buildCmd = "bun run build"
		}
		buildCmd = nodeapp.RewriteForBun(buildCmd)

		stream.Send(fmt.Sprintf("Running build: %s", buildCmd), models.LogLevelInfo)
		if err := r.RunCommand(ctx, projectDir, buildCmd, env, stream); err != nil {
			return err
		}
	} else {
		if backendNeedsBuild(job.BuildCommand, pkg) {
			stream.Send("Installing dependencies", models.LogLevelInfo)
			if err := r.RunCommand(ctx, projectDir, "bun install", env, stream); err != nil {
				return err
			}

			buildCmd := nodeapp.RewriteForBun(job.BuildCommand)
			stream.Send(fmt.Sprintf("Running build: %s", buildCmd), models.LogLevelInfo)
			if err := r.RunCommand(ctx, projectDir, buildCmd, env, stream); err != nil {
				return err
			}
		} else {
			stream.Send("No compile step detected, shipping source", models.LogLevelInfo)
		}

		entryFile = nodeapp.DetectEntryFile(projectDir, pkg)
		if entryFile == "" {
			return fmt.Errorf("could not determine the server entry file")
		}
		stream.Send(fmt.Sprintf("Entry file: %s", entryFile), models.LogLevelInfo)
	}

	stream.Send("Packaging artifact", models.LogLevelInfo)
	artifact, err := PackageArtifact(projectDir, job.Framework, entryFile)
	if err != nil {
		return err
	}
	defer artifact.Close()

	stream.Send("Uploading artifact", models.LogLevelInfo)
	if err := r.engine.UploadArtifact(ctx, job.BuildID, artifact); err != nil {
		return err
	}

	if err := r.cp.SetStatus(ctx, job.BuildID, models.BuildStatusSuccess); err != nil {
		return fmt.Errorf("reporting build success: %w", err)
	}
	stream.Send("Build completed successfully", models.LogLevelSuccess)

	r.logger.Info("build completed", "build_id", job.BuildID, "project_id", job.ProjectID)
	return nil
}
