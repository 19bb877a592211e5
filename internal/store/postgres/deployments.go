package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// DeploymentStore implements store.DeploymentStore using PostgreSQL.
type DeploymentStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *DeploymentStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Get retrieves a deployment by ID.
func (s *DeploymentStore) Get(ctx context.Context, id string) (*models.Deployment, error) {
	query := `
		SELECT id, project_id, build_id, status, activated_at
		FROM deployments
		WHERE id = $1`

	deployment, err := scanDeployment(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying deployment: %w", err)
	}

	return deployment, nil
}

// GetActive retrieves the active deployment for a project.
func (s *DeploymentStore) GetActive(ctx context.Context, projectID string) (*models.Deployment, error) {
	query := `
		SELECT id, project_id, build_id, status, activated_at
		FROM deployments
		WHERE project_id = $1 AND status = 'active'`

	deployment, err := scanDeployment(s.conn().QueryRowContext(ctx, query, projectID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying active deployment: %w", err)
	}

	return deployment, nil
}

// Promote makes buildID the active deployment for the project. Any prior
// active deployment is set inactive first, then the (project, build) row is
// inserted or reactivated. Callers run this inside WithTx so both writes
// commit together.
func (s *DeploymentStore) Promote(ctx context.Context, projectID, buildID string) (*models.Deployment, error) {
	deactivate := `
		UPDATE deployments
		SET status = 'inactive'
		WHERE project_id = $1 AND status = 'active'`

	if _, err := s.conn().ExecContext(ctx, deactivate, projectID); err != nil {
		return nil, fmt.Errorf("deactivating prior deployment: %w", err)
	}

	upsert := `
		INSERT INTO deployments (id, project_id, build_id, status, activated_at)
		VALUES ($1, $2, $3, 'active', NOW())
		ON CONFLICT (project_id, build_id)
		DO UPDATE SET status = 'active', activated_at = NOW()
		RETURNING id, project_id, build_id, status, activated_at`

	deployment, err := scanDeployment(s.conn().QueryRowContext(ctx, upsert, uuid.New().String(), projectID, buildID))
	if err != nil {
		return nil, fmt.Errorf("promoting deployment: %w", err)
	}

	return deployment, nil
}

// Deactivate sets the project's active deployment, if any, inactive.
func (s *DeploymentStore) Deactivate(ctx context.Context, projectID string) error {
	query := `
		UPDATE deployments
		SET status = 'inactive'
		WHERE project_id = $1 AND status = 'active'`

	if _, err := s.conn().ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("deactivating deployment: %w", err)
	}

	return nil
}

// DeleteByProject removes all deployments for a project.
func (s *DeploymentStore) DeleteByProject(ctx context.Context, projectID string) error {
	query := `DELETE FROM deployments WHERE project_id = $1`

	if _, err := s.conn().ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("deleting deployments: %w", err)
	}

	return nil
}

func scanDeployment(row rowScanner) (*models.Deployment, error) {
	deployment := &models.Deployment{}

	err := row.Scan(
		&deployment.ID,
		&deployment.ProjectID,
		&deployment.BuildID,
		&deployment.Status,
		&deployment.ActivatedAt,
	)
	if err != nil {
		return nil, err
	}

	return deployment, nil
}
