package engine

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/docker/docker/pkg/archive"
)

const (
	extractAttempts = 3
	extractBackoff  = 300 * time.Millisecond
)

// ReceiveArtifact stores an uploaded build artifact on disk, replacing any
// previous upload for the same build.
func (e *Engine) ReceiveArtifact(buildID string, r io.Reader) (int64, error) {
	path := e.artifactPath(buildID)

	f, err := os.Create(path)
	if err != nil {
		return 0, fmt.Errorf("creating artifact file: %w", err)
	}

	n, err := io.Copy(f, r)
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
		return 0, fmt.Errorf("writing artifact: %w", err)
	}

	e.logger.Info("artifact received", "build_id", buildID, "bytes", n)
	return n, nil
}

// extractArtifact unpacks the build's artifact into its build directory.
// Extraction is retried because uploads and activations can race by a
// moment when auto-deploy fires.
func (e *Engine) extractArtifact(projectID, buildID string) (string, error) {
	artifact := e.artifactPath(buildID)
	if _, err := os.Stat(artifact); err != nil {
		return "", fmt.Errorf("artifact for build %s not found", buildID)
	}

	dest := e.buildDir(projectID, buildID)

	var err error
	for attempt := 0; attempt < extractAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(extractBackoff)
		}

		if err = os.RemoveAll(dest); err != nil {
			continue
		}
		if err = os.MkdirAll(dest, 0o755); err != nil {
			continue
		}
		if err = archive.NewDefaultArchiver().UntarPath(artifact, dest); err == nil {
			return dest, nil
		}
		e.logger.Warn("artifact extraction failed", "build_id", buildID, "attempt", attempt+1, "error", err)
	}

	return "", fmt.Errorf("extracting artifact: %w", err)
}

// removeArtifacts deletes stored artifacts for the given builds. Missing
// files are not an error.
func (e *Engine) removeArtifacts(buildIDs []string) {
	for _, id := range buildIDs {
		if err := os.Remove(e.artifactPath(id)); err != nil && !os.IsNotExist(err) {
			e.logger.Warn("failed to remove artifact", "build_id", id, "error", err)
		}
	}
}
