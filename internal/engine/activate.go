package engine

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"

	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/engine/docker"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/nodeapp"
)

const keepImages = 3

// Activate makes the build the project's live deployment: extract the
// artifact, rotate the current symlink, then serve it as static files, a
// process, or a container depending on framework and mode.
func (e *Engine) Activate(ctx context.Context, req *deploy.ActivateRequest) error {
	lock := e.locks.Get(req.ProjectID)
	lock.Lock()
	defer lock.Unlock()

	e.sink.Send(req.BuildID, "Activating deployment", "deploy")

	buildDir, err := e.extractArtifact(req.ProjectID, req.BuildID)
	if err != nil {
		return err
	}

	if err := e.rotateCurrent(req.ProjectID, req.BuildID, buildDir); err != nil {
		return err
	}
	current := filepath.Join(e.projectDir(req.ProjectID), "current")

	if e.docker != nil {
		if err := e.activateContainer(ctx, req, buildDir); err != nil {
			return err
		}
	} else if root := staticRoot(req.AppType, current); root != "" {
		e.stopProcess(req.ProjectID)
		if err := e.static.Serve(req.Port, root); err != nil {
			return err
		}
		e.sink.Send(req.BuildID, fmt.Sprintf("Serving static build on port %d", req.Port), "deploy")
	} else {
		if err := e.activateProcess(ctx, req, current); err != nil {
			return err
		}
	}

	if e.nginx != nil && req.Subdomain != "" {
		if err := e.nginx.Apply(req.Subdomain, req.Port); err != nil {
			e.logger.Warn("nginx update failed", "subdomain", req.Subdomain, "error", err)
			e.sink.Send(req.BuildID, fmt.Sprintf("Warning: reverse proxy update failed: %v", err), "warning")
		}
	}

	return nil
}

// rotateCurrent records the live build id and points the project's current
// symlink at buildDir with a temp link and rename, so there is no window
// without a target.
func (e *Engine) rotateCurrent(projectID, buildID, buildDir string) error {
	projectDir := e.projectDir(projectID)
	current := filepath.Join(projectDir, "current")
	tmp := current + ".tmp"

	if err := os.WriteFile(filepath.Join(projectDir, "current_build_id"), []byte(buildID), 0o644); err != nil {
		return fmt.Errorf("recording build id: %w", err)
	}

	os.Remove(tmp)
	if err := os.Symlink(buildDir, tmp); err != nil {
		return fmt.Errorf("creating symlink: %w", err)
	}
	if err := os.Rename(tmp, current); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rotating symlink: %w", err)
	}
	return nil
}

// staticRoot returns the directory to serve statically, or "" if the
// build must run as a server. Vite builds are always static; Next.js only
// when exported to out/.
func staticRoot(framework models.Framework, current string) string {
	switch framework {
	case models.FrameworkVite:
		if dir := filepath.Join(current, "dist"); dirExists(dir) {
			return dir
		}
		return current
	case models.FrameworkNextJS:
		if dir := filepath.Join(current, "out"); dirExists(dir) {
			return dir
		}
	}
	return ""
}

func (e *Engine) activateProcess(ctx context.Context, req *deploy.ActivateRequest, current string) error {
	e.static.Stop(req.Port)
	e.stopProcess(req.ProjectID)
	if err := waitPortFree(req.Port); err != nil {
		return err
	}

	if err := e.ensureDependencies(ctx, req.BuildID, current); err != nil {
		return err
	}

	argv, err := startCommand(req.AppType, current, req.Port)
	if err != nil {
		return err
	}

	if err := e.startProcess(req.ProjectID, req.BuildID, current, argv, req.Port, req.EnvVars); err != nil {
		return err
	}

	if err := waitHealthy(ctx, req.Port, processHealthTimeout); err != nil {
		e.stopProcess(req.ProjectID)
		return err
	}

	e.sink.Send(req.BuildID, fmt.Sprintf("Application healthy on port %d", req.Port), "deploy")
	return nil
}

// ensureDependencies installs packages when the artifact shipped without
// node_modules, which is the normal case for source-shipped backends.
func (e *Engine) ensureDependencies(ctx context.Context, buildID, dir string) error {
	if _, err := os.Stat(filepath.Join(dir, "package.json")); err != nil {
		return nil
	}
	if dirExists(filepath.Join(dir, "node_modules")) {
		return nil
	}

	e.sink.Send(buildID, "Installing dependencies", "deploy")
	cmd := exec.CommandContext(ctx, "bun", "install")
	cmd.Dir = dir
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("installing dependencies: %s", string(out))
	}
	return nil
}

// startCommand decides how to launch the app for its framework.
func startCommand(framework models.Framework, dir string, port int) ([]string, error) {
	switch {
	case framework == models.FrameworkNextJS:
		return []string{"bun", "run", "start", "--", "--port", strconv.Itoa(port)}, nil
	case framework.IsBackend():
		pkg, _ := nodeapp.LoadPackageJSON(dir)
		if entry := nodeapp.DetectEntryFile(dir, pkg); entry != "" {
			return []string{"bun", "run", entry}, nil
		}
		if pkg.HasScript("start") {
			return []string{"bun", "run", "--bun", "start"}, nil
		}
		return nil, fmt.Errorf("no entry file or start script found")
	}
	return nil, fmt.Errorf("framework %s cannot run as a server", framework)
}

func (e *Engine) activateContainer(ctx context.Context, req *deploy.ActivateRequest, buildDir string) error {
	onLog := func(line string) { e.sink.Send(req.BuildID, line, "info") }

	if err := e.docker.EnsureStopped(ctx, req.ProjectID); err != nil {
		return err
	}

	internalPort := docker.InternalPort(req.AppType)
	if _, err := docker.PrepareDockerfile(buildDir, req.AppType, internalPort, onLog); err != nil {
		return err
	}

	tag := docker.ImageName(req.ProjectID, req.BuildID)
	e.sink.Send(req.BuildID, "Building container image", "deploy")
	if err := e.docker.BuildImage(ctx, buildDir, tag, onLog); err != nil {
		return err
	}

	if _, err := e.docker.Run(ctx, docker.RunConfig{
		ProjectID:    req.ProjectID,
		BuildID:      req.BuildID,
		Image:        tag,
		HostPort:     req.Port,
		InternalPort: internalPort,
		EnvVars:      req.EnvVars,
	}); err != nil {
		return err
	}

	if err := waitHealthy(ctx, req.Port, containerHealthTimeout); err != nil {
		e.docker.EnsureStopped(ctx, req.ProjectID)
		return err
	}

	e.docker.PruneImages(ctx, req.ProjectID, keepImages)
	e.docker.FollowLogs(req.ProjectID, onLog)

	e.sink.Send(req.BuildID, fmt.Sprintf("Container healthy on port %d", req.Port), "deploy")
	return nil
}

// Stop halts whatever serves the project's port without touching its
// files, so the deployment can be re-activated later.
func (e *Engine) Stop(ctx context.Context, req *deploy.StopRequest) error {
	if req.ProjectID != "" {
		lock := e.locks.Get(req.ProjectID)
		lock.Lock()
		defer lock.Unlock()
	}

	if e.docker != nil && req.ProjectID != "" {
		e.docker.StopFollowing(req.ProjectID)
		if err := e.docker.EnsureStopped(ctx, req.ProjectID); err != nil {
			return err
		}
	}

	e.static.Stop(req.Port)
	if req.ProjectID != "" {
		e.stopProcess(req.ProjectID)
	}
	return nil
}

// DeleteProject removes every trace of a project from the host: running
// workload, proxy rule, artifacts, images, and the project directory.
func (e *Engine) DeleteProject(ctx context.Context, projectID string, req *deploy.DeleteRequest) error {
	lock := e.locks.Get(projectID)
	lock.Lock()
	defer lock.Unlock()

	if e.docker != nil {
		e.docker.StopFollowing(projectID)
		if err := e.docker.EnsureStopped(ctx, projectID); err != nil {
			e.logger.Warn("failed to stop container during delete", "project_id", projectID, "error", err)
		}
		for _, buildID := range req.BuildIDs {
			if err := e.docker.RemoveImage(ctx, docker.ImageName(projectID, buildID)); err != nil {
				e.logger.Debug("image removal skipped", "build_id", buildID, "error", err)
			}
		}
	}

	if req.Port > 0 {
		e.static.Stop(req.Port)
	}
	e.stopProcess(projectID)

	if e.nginx != nil && req.Subdomain != "" {
		if err := e.nginx.Remove(req.Subdomain); err != nil {
			e.logger.Warn("nginx removal failed", "subdomain", req.Subdomain, "error", err)
		}
	}

	e.removeArtifacts(req.BuildIDs)

	if err := os.RemoveAll(e.projectDir(projectID)); err != nil {
		return fmt.Errorf("removing project directory: %w", err)
	}

	e.logger.Info("project deleted", "project_id", projectID)
	return nil
}

func dirExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
