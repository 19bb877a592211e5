// Package docker runs deployments as containers through the Docker Engine
// API: image build from the extracted artifact, resource-limited container
// start, log following, and per-project image pruning.
package docker

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/docker/docker/client"
)

// Resource limits and internal ports for deployed containers.
const (
	memoryLimitBytes = 512 * 1024 * 1024
	cpuLimitNanos    = 500_000_000 // 0.5 CPU

	defaultInternalPort = 3000
	viteInternalPort    = 80
)

// Labels identifying containers managed by the platform.
const (
	labelProjectID = "thakur.projectId"
	labelBuildID   = "thakur.buildId"
)

// Client wraps the Docker Engine API client.
type Client struct {
	inner       *client.Client
	logger      *slog.Logger
	followerReg *followerRegistry
}

// NewClient connects to the Docker daemon from the environment.
func NewClient(logger *slog.Logger) (*Client, error) {
	if logger == nil {
		logger = slog.Default()
	}

	inner, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, fmt.Errorf("creating docker client: %w", err)
	}

	return &Client{inner: inner, logger: logger, followerReg: newFollowerRegistry()}, nil
}

// Ping verifies the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.inner.Ping(ctx)
	return err
}

// Close releases the client's transport.
func (c *Client) Close() error {
	return c.inner.Close()
}

// ContainerName derives the managed container name for a project.
func ContainerName(projectID string) string {
	return "thakur-" + shortID(projectID)
}

// ImageName derives the image reference for a project build.
func ImageName(projectID, buildID string) string {
	return imageRepository(projectID) + ":" + shortID(buildID)
}

func imageRepository(projectID string) string {
	return "thakur-deploy/" + shortID(projectID)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
