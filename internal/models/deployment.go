package models

import "time"

// DeploymentStatus represents whether a deployment is the one serving
// traffic for its project.
type DeploymentStatus string

const (
	DeploymentStatusActive   DeploymentStatus = "active"
	DeploymentStatusInactive DeploymentStatus = "inactive"
)

// Deployment binds a build to a project's port. At most one deployment per
// project is active at any committed state.
type Deployment struct {
	ID          string           `json:"id"`
	ProjectID   string           `json:"project_id"`
	BuildID     string           `json:"build_id"`
	Status      DeploymentStatus `json:"status"`
	ActivatedAt time.Time        `json:"activated_at"`
}
