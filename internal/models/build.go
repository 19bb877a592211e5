package models

import "time"

// BuildStatus represents the current state of a build.
type BuildStatus string

const (
	BuildStatusPending  BuildStatus = "pending"
	BuildStatusBuilding BuildStatus = "building"
	BuildStatusSuccess  BuildStatus = "success"
	BuildStatusFailed   BuildStatus = "failed"
)

// Valid reports whether s is a known build status.
func (s BuildStatus) Valid() bool {
	switch s {
	case BuildStatusPending, BuildStatusBuilding, BuildStatusSuccess, BuildStatusFailed:
		return true
	}
	return false
}

// Terminal reports whether s is a terminal state. Builds never leave a
// terminal state.
func (s BuildStatus) Terminal() bool {
	return s == BuildStatusSuccess || s == BuildStatusFailed
}

// Build represents one attempt to turn a commit into an artifact.
type Build struct {
	ID            string      `json:"id"`
	ProjectID     string      `json:"project_id"`
	Status        BuildStatus `json:"status"`
	CommitSHA     *string     `json:"commit_sha,omitempty"`
	CommitMessage *string     `json:"commit_message,omitempty"`
	ArtifactID    *string     `json:"artifact_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	CompletedAt   *time.Time  `json:"completed_at,omitempty"`
}

// BuildWithDeployment is a build joined with its deployment state, used by
// the per-project build listing.
type BuildWithDeployment struct {
	Build
	DeploymentStatus *DeploymentStatus `json:"deployment_status,omitempty"`
	ActivatedAt      *time.Time        `json:"activated_at,omitempty"`
}
