// Package store provides database access interfaces and implementations.
package store

import (
	"context"
	"errors"

	"github.com/thakurlabs/thakur/internal/models"
)

// Common store errors.
var (
	// ErrNotFound is returned when a requested resource does not exist.
	ErrNotFound = errors.New("resource not found")

	// ErrDuplicate is returned when an insert collides with a unique
	// constraint, such as a taken domain or port.
	ErrDuplicate = errors.New("duplicate resource")
)

// Store is the main interface for database operations.
type Store interface {
	// Projects returns the ProjectStore for project operations.
	Projects() ProjectStore
	// Builds returns the BuildStore for build operations.
	Builds() BuildStore
	// Deployments returns the DeploymentStore for deployment operations.
	Deployments() DeploymentStore
	// Logs returns the LogStore for build log operations.
	Logs() LogStore
	// EnvVars returns the EnvVarStore for environment variable operations.
	EnvVars() EnvVarStore
	// Installations returns the InstallationStore for source installation operations.
	Installations() InstallationStore

	// WithTx executes the given function within a database transaction.
	// If the function returns an error, the transaction is rolled back.
	// Otherwise, the transaction is committed.
	WithTx(ctx context.Context, fn func(Store) error) error

	// Close closes the database connection.
	Close() error
}

// ProjectStore defines operations for project management.
type ProjectStore interface {
	// Create creates a new project.
	Create(ctx context.Context, project *models.Project) error
	// Get retrieves a project by ID.
	Get(ctx context.Context, id string) (*models.Project, error)
	// List retrieves all projects ordered by creation time, newest first.
	List(ctx context.Context) ([]*models.Project, error)
	// ListByRepo retrieves projects matching a repository ID and branch.
	ListByRepo(ctx context.Context, repoID int64, branch string) ([]*models.Project, error)
	// Update updates an existing project.
	Update(ctx context.Context, project *models.Project) error
	// Delete removes a project row.
	Delete(ctx context.Context, id string) error
	// MaxPort returns the highest port assigned to any project, or 0.
	MaxPort(ctx context.Context) (int, error)
	// DomainExists reports whether any project owns the given domain.
	DomainExists(ctx context.Context, domain string) (bool, error)
	// ClearInstallation nulls installation_id on every project that
	// references the given installation.
	ClearInstallation(ctx context.Context, installationID int64) error
}

// BuildStore defines operations for build management.
type BuildStore interface {
	// Create creates a new build.
	Create(ctx context.Context, build *models.Build) error
	// Get retrieves a build by ID.
	Get(ctx context.Context, id string) (*models.Build, error)
	// ListByProject retrieves all builds for a project joined with their
	// deployment state, newest first.
	ListByProject(ctx context.Context, projectID string) ([]*models.BuildWithDeployment, error)
	// ListIDsByProject retrieves all build IDs for a project.
	ListIDsByProject(ctx context.Context, projectID string) ([]string, error)
	// UpdateStatus transitions a build's status. Terminal states set
	// completed_at; transitions out of a terminal state are rejected and
	// return the unchanged row.
	UpdateStatus(ctx context.Context, id string, status models.BuildStatus) (*models.Build, error)
	// SetArtifact records the artifact identifier for a build.
	SetArtifact(ctx context.Context, id, artifactID string) error
	// ExistsByCommit reports whether a build exists for (projectID, commitSHA).
	ExistsByCommit(ctx context.Context, projectID, commitSHA string) (bool, error)
	// DeleteByIDs removes the given builds.
	DeleteByIDs(ctx context.Context, ids []string) error
}

// DeploymentStore defines operations for deployment management.
type DeploymentStore interface {
	// Get retrieves a deployment by ID.
	Get(ctx context.Context, id string) (*models.Deployment, error)
	// GetActive retrieves the active deployment for a project.
	GetActive(ctx context.Context, projectID string) (*models.Deployment, error)
	// Promote makes buildID the active deployment for the project:
	// any prior active deployment is set inactive and the row for
	// (projectID, buildID) is created or reactivated. Callers run this
	// inside WithTx to keep the at-most-one-active invariant.
	Promote(ctx context.Context, projectID, buildID string) (*models.Deployment, error)
	// Deactivate sets the project's active deployment, if any, inactive.
	Deactivate(ctx context.Context, projectID string) error
	// DeleteByProject removes all deployments for a project.
	DeleteByProject(ctx context.Context, projectID string) error
}

// LogStore defines operations for build log management.
type LogStore interface {
	// Create persists a log entry.
	Create(ctx context.Context, entry *models.LogEntry) error
	// ListByBuild retrieves a build's log entries ordered by timestamp.
	ListByBuild(ctx context.Context, buildID string) ([]*models.LogEntry, error)
	// DeleteByBuild removes all log entries for a build.
	DeleteByBuild(ctx context.Context, buildID string) error
	// DeleteByBuildIDs removes log entries for the given builds.
	DeleteByBuildIDs(ctx context.Context, buildIDs []string) error
}

// EnvVarStore defines operations for environment variable management.
type EnvVarStore interface {
	// Upsert creates or replaces the variable for (project_id, key).
	Upsert(ctx context.Context, envVar *models.EnvVar) error
	// ListByProject retrieves all variables for a project ordered by key.
	ListByProject(ctx context.Context, projectID string) ([]*models.EnvVar, error)
	// Delete removes a variable by project and key.
	Delete(ctx context.Context, projectID, key string) error
	// DeleteByProject removes all variables for a project.
	DeleteByProject(ctx context.Context, projectID string) error
}

// InstallationStore defines operations for source installation management.
type InstallationStore interface {
	// Upsert creates or updates an installation keyed by its external ID.
	Upsert(ctx context.Context, inst *models.SourceInstallation) error
	// GetByInstallationID retrieves an installation by its external ID.
	GetByInstallationID(ctx context.Context, installationID int64) (*models.SourceInstallation, error)
	// List retrieves all installations.
	List(ctx context.Context) ([]*models.SourceInstallation, error)
	// Delete removes an installation by its external ID.
	Delete(ctx context.Context, installationID int64) error
}
