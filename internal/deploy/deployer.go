// Package deploy orchestrates deployment activation from the control
// plane: port allocation, env-var snapshots, engine calls, and the
// transactional promotion that keeps at most one deployment active per
// project.
package deploy

import (
	"context"

	"github.com/thakurlabs/thakur/internal/models"
)

// ActivateRequest asks the deploy engine to activate a build on the
// project's port.
type ActivateRequest struct {
	ProjectID string            `json:"projectId"`
	BuildID   string            `json:"buildId"`
	Port      int               `json:"port"`
	AppType   models.Framework  `json:"appType"`
	Subdomain string            `json:"subdomain,omitempty"`
	EnvVars   map[string]string `json:"envVars,omitempty"`
}

// StopRequest asks the deploy engine to stop whatever serves the port.
type StopRequest struct {
	Port      int    `json:"port"`
	ProjectID string `json:"projectId,omitempty"`
	BuildID   string `json:"buildId,omitempty"`
}

// DeleteRequest asks the deploy engine to remove every trace of a project.
type DeleteRequest struct {
	Port      int      `json:"port,omitempty"`
	Subdomain string   `json:"subdomain,omitempty"`
	BuildIDs  []string `json:"buildIds,omitempty"`
}

// Deployer is the control plane's view of the deploy engine. The HTTP
// client implements it; tests substitute stubs.
type Deployer interface {
	// CheckPort reports whether the port is free on the deploy host.
	CheckPort(ctx context.Context, port int) (bool, error)
	// Activate extracts the build's artifact and starts it on the port.
	Activate(ctx context.Context, req *ActivateRequest) error
	// Stop stops the process or container serving the port.
	Stop(ctx context.Context, req *StopRequest) error
	// DeleteProject removes the project tree, artifacts, and proxy rule.
	DeleteProject(ctx context.Context, projectID string, req *DeleteRequest) error
}
