package docker

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/docker/docker/api/types"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/pkg/archive"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/nodeapp"
)

// PrepareDockerfile ensures sourceDir carries a Dockerfile fit for
// deployment: an existing one is sanitized in place, otherwise one is
// generated. Reports whether the file was generated so callers can remove
// it after the build.
func PrepareDockerfile(sourceDir string, framework models.Framework, internalPort int, onLog func(string)) (bool, error) {
	dockerfilePath := filepath.Join(sourceDir, "Dockerfile")

	if content, err := os.ReadFile(dockerfilePath); err == nil {
		sanitized := SanitizeDockerfile(string(content), internalPort)
		if err := os.WriteFile(dockerfilePath, []byte(sanitized), 0o644); err != nil {
			return false, fmt.Errorf("writing sanitized Dockerfile: %w", err)
		}
		onLog("Using existing Dockerfile (sanitized)")
		return false, nil
	}

	var entryFile string
	pkg, _ := nodeapp.LoadPackageJSON(sourceDir)
	if !pkg.HasScript("start") {
		entryFile = nodeapp.DetectEntryFile(sourceDir, pkg)
		if entryFile != "" {
			onLog(fmt.Sprintf("Detected entry file: %s", entryFile))
		}
	}

	content := GenerateDockerfile(framework, internalPort, entryFile)
	if err := os.WriteFile(dockerfilePath, []byte(content), 0o644); err != nil {
		return false, fmt.Errorf("writing generated Dockerfile: %w", err)
	}
	onLog(fmt.Sprintf("Generated Dockerfile for %s", framework))
	return true, nil
}

// BuildImage builds an image from sourceDir, streaming daemon output
// through onLog. The build context is a tar of the whole directory.
func (c *Client) BuildImage(ctx context.Context, sourceDir, tag string, onLog func(string)) error {
	buildCtx, err := archive.TarWithOptions(sourceDir, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("creating build context: %w", err)
	}
	defer buildCtx.Close()

	resp, err := c.inner.ImageBuild(ctx, buildCtx, types.ImageBuildOptions{
		Tags:        []string{tag},
		Remove:      true,
		ForceRemove: true,
	})
	if err != nil {
		return fmt.Errorf("building image: %w", err)
	}
	defer resp.Body.Close()

	decoder := json.NewDecoder(resp.Body)
	for {
		var msg buildMessage
		if err := decoder.Decode(&msg); err != nil {
			if err == io.EOF {
				break
			}
			return fmt.Errorf("decoding build output: %w", err)
		}
		if msg.Error != "" {
			return fmt.Errorf("image build: %s", msg.Error)
		}
		if line := strings.TrimSpace(msg.Stream); line != "" && onLog != nil {
			onLog(line)
		}
	}

	return nil
}

type buildMessage struct {
	Stream string `json:"stream"`
	Error  string `json:"error"`
}

// RemoveImage force-removes an image by reference.
func (c *Client) RemoveImage(ctx context.Context, ref string) error {
	_, err := c.inner.ImageRemove(ctx, ref, image.RemoveOptions{Force: true})
	return err
}

// PruneImages removes all but the keep newest images of a project's
// repository.
func (c *Client) PruneImages(ctx context.Context, projectID string, keep int) {
	repo := imageRepository(projectID)

	images, err := c.inner.ImageList(ctx, image.ListOptions{
		Filters: filters.NewArgs(filters.Arg("reference", repo+":*")),
	})
	if err != nil {
		c.logger.Warn("failed to list project images", "project_id", projectID, "error", err)
		return
	}

	sort.Slice(images, func(i, j int) bool {
		return images[i].Created > images[j].Created
	})

	for i := keep; i < len(images); i++ {
		if err := c.RemoveImage(ctx, images[i].ID); err != nil {
			c.logger.Warn("failed to prune image", "image", images[i].ID, "error", err)
		}
	}
}
