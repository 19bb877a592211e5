package docker

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

// RunConfig describes the container to start for a deployment.
type RunConfig struct {
	ProjectID    string
	BuildID      string
	Image        string
	HostPort     int
	InternalPort int
	EnvVars      map[string]string
}

// EnsureStopped force-removes the project's container if one exists.
func (c *Client) EnsureStopped(ctx context.Context, projectID string) error {
	name := ContainerName(projectID)
	if err := c.inner.ContainerRemove(ctx, name, container.RemoveOptions{Force: true, RemoveVolumes: true}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("removing container %s: %w", name, err)
	}
	return nil
}

// Run creates and starts the deployment container with resource limits,
// labels, and the host port binding.
func (c *Client) Run(ctx context.Context, cfg RunConfig) (string, error) {
	internalPort, err := nat.NewPort("tcp", strconv.Itoa(cfg.InternalPort))
	if err != nil {
		return "", fmt.Errorf("invalid internal port: %w", err)
	}

	env := []string{"NODE_ENV=production"}
	if _, hasPort := cfg.EnvVars["PORT"]; !hasPort {
		env = append(env, fmt.Sprintf("PORT=%d", cfg.InternalPort))
	}
	for k, v := range cfg.EnvVars {
		env = append(env, k+"="+v)
	}

	config := &container.Config{
		Image: cfg.Image,
		Env:   env,
		Labels: map[string]string{
			labelProjectID: cfg.ProjectID,
			labelBuildID:   cfg.BuildID,
		},
		ExposedPorts: nat.PortSet{internalPort: struct{}{}},
	}

	hostCfg := &container.HostConfig{
		PortBindings: nat.PortMap{
			internalPort: []nat.PortBinding{{
				HostIP:   "0.0.0.0",
				HostPort: strconv.Itoa(cfg.HostPort),
			}},
		},
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
		Resources: container.Resources{
			Memory:   memoryLimitBytes,
			NanoCPUs: cpuLimitNanos,
		},
	}

	name := ContainerName(cfg.ProjectID)
	created, err := c.inner.ContainerCreate(ctx, config, hostCfg, nil, nil, name)
	if err != nil {
		return "", fmt.Errorf("creating container %s: %w", name, err)
	}

	if err := c.inner.ContainerStart(ctx, created.ID, container.StartOptions{}); err != nil {
		return "", fmt.Errorf("starting container %s: %w", name, err)
	}

	return created.ID, nil
}

// ManagedContainer is a running container the platform owns.
type ManagedContainer struct {
	ProjectID string
	BuildID   string
	Name      string
}

// ListManaged returns running containers carrying the platform's labels.
func (c *Client) ListManaged(ctx context.Context) ([]ManagedContainer, error) {
	containers, err := c.inner.ContainerList(ctx, container.ListOptions{
		Filters: filters.NewArgs(filters.Arg("label", labelProjectID)),
	})
	if err != nil {
		return nil, fmt.Errorf("listing containers: %w", err)
	}

	out := make([]ManagedContainer, 0, len(containers))
	for _, ct := range containers {
		name := ""
		if len(ct.Names) > 0 {
			name = strings.TrimPrefix(ct.Names[0], "/")
		}
		out = append(out, ManagedContainer{
			ProjectID: ct.Labels[labelProjectID],
			BuildID:   ct.Labels[labelBuildID],
			Name:      name,
		})
	}
	return out, nil
}

// followerRegistry tracks one log follower per project.
type followerRegistry struct {
	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

func newFollowerRegistry() *followerRegistry {
	return &followerRegistry{cancels: make(map[string]context.CancelFunc)}
}

// FollowLogs attaches to the project's container log stream and feeds each
// line to onLine. A prior follower for the project is cancelled first.
func (c *Client) FollowLogs(projectID string, onLine func(string)) {
	c.StopFollowing(projectID)

	ctx, cancel := context.WithCancel(context.Background())
	reg := c.followerReg
	reg.mu.Lock()
	reg.cancels[projectID] = cancel
	reg.mu.Unlock()

	name := ContainerName(projectID)
	go func() {
		reader, err := c.inner.ContainerLogs(ctx, name, container.LogsOptions{
			ShowStdout: true,
			ShowStderr: true,
			Follow:     true,
			Tail:       "0",
		})
		if err != nil {
			c.logger.Warn("failed to attach container logs", "container", name, "error", err)
			return
		}
		defer reader.Close()

		// The daemon multiplexes stdout/stderr into one stream.
		pr, pw := io.Pipe()
		go func() {
			_, err := stdcopy.StdCopy(pw, pw, reader)
			pw.CloseWithError(err)
		}()

		scanner := bufio.NewScanner(pr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); strings.TrimSpace(line) != "" {
				onLine(line)
			}
		}
	}()
}

// StopFollowing cancels the project's log follower, if any.
func (c *Client) StopFollowing(projectID string) {
	reg := c.followerReg
	reg.mu.Lock()
	defer reg.mu.Unlock()

	if cancel, ok := reg.cancels[projectID]; ok {
		cancel()
		delete(reg.cancels, projectID)
	}
}

// RecoverFollowers re-attaches log followers for every managed container,
// called once at startup so restarts do not lose runtime logs.
func (c *Client) RecoverFollowers(ctx context.Context, onLine func(projectID, buildID, line string)) {
	managed, err := c.ListManaged(ctx)
	if err != nil {
		c.logger.Warn("failed to recover log followers", "error", err)
		return
	}

	for _, ct := range managed {
		ct := ct
		c.FollowLogs(ct.ProjectID, func(line string) {
			onLine(ct.ProjectID, ct.BuildID, line)
		})
	}

	c.logger.Info("recovered container log followers", "count", len(managed))
}
