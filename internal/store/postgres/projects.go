package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// ProjectStore implements store.ProjectStore using PostgreSQL.
type ProjectStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *ProjectStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new project.
func (s *ProjectStore) Create(ctx context.Context, project *models.Project) error {
	query := `
		INSERT INTO projects (id, name, repo_url, repo_id, repo_full_name, default_branch,
		                      root_directory, build_command, framework, domain, port,
		                      installation_id, auto_deploy, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		RETURNING created_at, updated_at`

	if project.ID == "" {
		project.ID = uuid.New().String()
	}

	now := time.Now().UTC()
	if project.CreatedAt.IsZero() {
		project.CreatedAt = now
	}
	if project.UpdatedAt.IsZero() {
		project.UpdatedAt = now
	}

	// Handle nullable repository metadata
	var repoID interface{}
	if project.RepoID != 0 {
		repoID = project.RepoID
	}
	var repoFullName interface{}
	if project.RepoFullName != "" {
		repoFullName = project.RepoFullName
	}

	err := s.conn().QueryRowContext(ctx, query,
		project.ID,
		project.Name,
		project.RepoURL,
		repoID,
		repoFullName,
		project.DefaultBranch,
		project.RootDirectory,
		project.BuildCommand,
		string(project.Framework),
		project.Domain,
		project.Port,
		project.InstallationID,
		project.AutoDeploy,
		project.CreatedAt,
		project.UpdatedAt,
	).Scan(&project.CreatedAt, &project.UpdatedAt)

	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("inserting project: %w", err)
	}

	return nil
}

// Get retrieves a project by ID.
func (s *ProjectStore) Get(ctx context.Context, id string) (*models.Project, error) {
	query := `
		SELECT id, name, repo_url, COALESCE(repo_id, 0), COALESCE(repo_full_name, ''),
		       default_branch, root_directory, build_command, framework, domain, port,
		       installation_id, auto_deploy, created_at, updated_at
		FROM projects
		WHERE id = $1`

	project, err := scanProject(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying project: %w", err)
	}

	return project, nil
}

// List retrieves all projects ordered by creation time, newest first.
func (s *ProjectStore) List(ctx context.Context) ([]*models.Project, error) {
	query := `
		SELECT id, name, repo_url, COALESCE(repo_id, 0), COALESCE(repo_full_name, ''),
		       default_branch, root_directory, build_command, framework, domain, port,
		       installation_id, auto_deploy, created_at, updated_at
		FROM projects
		ORDER BY created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying projects: %w", err)
	}
	defer rows.Close()

	return collectProjects(rows)
}

// ListByRepo retrieves projects matching a repository ID and branch.
func (s *ProjectStore) ListByRepo(ctx context.Context, repoID int64, branch string) ([]*models.Project, error) {
	query := `
		SELECT id, name, repo_url, COALESCE(repo_id, 0), COALESCE(repo_full_name, ''),
		       default_branch, root_directory, build_command, framework, domain, port,
		       installation_id, auto_deploy, created_at, updated_at
		FROM projects
		WHERE repo_id = $1 AND default_branch = $2`

	rows, err := s.conn().QueryContext(ctx, query, repoID, branch)
	if err != nil {
		return nil, fmt.Errorf("querying projects by repo: %w", err)
	}
	defer rows.Close()

	return collectProjects(rows)
}

// Update updates an existing project. The assigned port is immutable and
// never written here.
func (s *ProjectStore) Update(ctx context.Context, project *models.Project) error {
	query := `
		UPDATE projects
		SET name = $2, repo_url = $3, repo_id = $4, repo_full_name = $5, default_branch = $6,
		    root_directory = $7, build_command = $8, framework = $9, domain = $10,
		    installation_id = $11, auto_deploy = $12, updated_at = $13
		WHERE id = $1`

	project.UpdatedAt = time.Now().UTC()

	var repoID interface{}
	if project.RepoID != 0 {
		repoID = project.RepoID
	}
	var repoFullName interface{}
	if project.RepoFullName != "" {
		repoFullName = project.RepoFullName
	}

	result, err := s.conn().ExecContext(ctx, query,
		project.ID,
		project.Name,
		project.RepoURL,
		repoID,
		repoFullName,
		project.DefaultBranch,
		project.RootDirectory,
		project.BuildCommand,
		string(project.Framework),
		project.Domain,
		project.InstallationID,
		project.AutoDeploy,
		project.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicate
		}
		return fmt.Errorf("updating project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// Delete removes a project row.
func (s *ProjectStore) Delete(ctx context.Context, id string) error {
	query := `DELETE FROM projects WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query, id)
	if err != nil {
		return fmt.Errorf("deleting project: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("getting rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return store.ErrNotFound
	}

	return nil
}

// MaxPort returns the highest port assigned to any project, or 0 when no
// projects exist.
func (s *ProjectStore) MaxPort(ctx context.Context) (int, error) {
	query := `SELECT COALESCE(MAX(port), 0) FROM projects`

	var max int
	if err := s.conn().QueryRowContext(ctx, query).Scan(&max); err != nil {
		return 0, fmt.Errorf("querying max port: %w", err)
	}

	return max, nil
}

// DomainExists reports whether any project owns the given domain.
func (s *ProjectStore) DomainExists(ctx context.Context, domain string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM projects WHERE domain = $1)`

	var exists bool
	if err := s.conn().QueryRowContext(ctx, query, domain).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking domain: %w", err)
	}

	return exists, nil
}

// ClearInstallation nulls installation_id on every project referencing the
// given installation.
func (s *ProjectStore) ClearInstallation(ctx context.Context, installationID int64) error {
	query := `
		UPDATE projects
		SET installation_id = NULL, updated_at = $2
		WHERE installation_id = $1`

	if _, err := s.conn().ExecContext(ctx, query, installationID, time.Now().UTC()); err != nil {
		return fmt.Errorf("clearing installation: %w", err)
	}

	return nil
}

// rowScanner abstracts *sql.Row and *sql.Rows for shared scan logic.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (*models.Project, error) {
	project := &models.Project{}
	var domain sql.NullString
	var installationID sql.NullInt64

	err := row.Scan(
		&project.ID,
		&project.Name,
		&project.RepoURL,
		&project.RepoID,
		&project.RepoFullName,
		&project.DefaultBranch,
		&project.RootDirectory,
		&project.BuildCommand,
		&project.Framework,
		&domain,
		&project.Port,
		&installationID,
		&project.AutoDeploy,
		&project.CreatedAt,
		&project.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if domain.Valid {
		project.Domain = &domain.String
	}
	if installationID.Valid {
		project.InstallationID = &installationID.Int64
	}

	return project, nil
}

func collectProjects(rows *sql.Rows) ([]*models.Project, error) {
	var projects []*models.Project
	for rows.Next() {
		project, err := scanProject(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning project row: %w", err)
		}
		projects = append(projects, project)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating project rows: %w", err)
	}

	return projects, nil
}
