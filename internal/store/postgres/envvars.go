package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// EnvVarStore implements store.EnvVarStore using PostgreSQL.
type EnvVarStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *EnvVarStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Upsert creates or replaces the variable for (project_id, key).
func (s *EnvVarStore) Upsert(ctx context.Context, envVar *models.EnvVar) error {
	query := `
		INSERT INTO environment_variables (id, project_id, key, value_ciphertext, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		ON CONFLICT (project_id, key)
		DO UPDATE SET value_ciphertext = EXCLUDED.value_ciphertext, updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if envVar.ID == "" {
		envVar.ID = uuid.New().String()
	}

	err := s.conn().QueryRowContext(ctx, query,
		envVar.ID,
		envVar.ProjectID,
		envVar.Key,
		envVar.ValueCiphertext,
	).Scan(&envVar.ID, &envVar.CreatedAt, &envVar.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upserting environment variable: %w", err)
	}

	return nil
}

// ListByProject retrieves all variables for a project ordered by key.
func (s *EnvVarStore) ListByProject(ctx context.Context, projectID string) ([]*models.EnvVar, error) {
	query := `
		SELECT id, project_id, key, value_ciphertext, created_at, updated_at
		FROM environment_variables
		WHERE project_id = $1
		ORDER BY key ASC`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying environment variables: %w", err)
	}
	defer rows.Close()

	var envVars []*models.EnvVar
	for rows.Next() {
		envVar := &models.EnvVar{}

		err := rows.Scan(
			&envVar.ID,
			&envVar.ProjectID,
			&envVar.Key,
			&envVar.ValueCiphertext,
			&envVar.CreatedAt,
			&envVar.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning environment variable row: %w", err)
		}

		envVars = append(envVars, envVar)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating environment variable rows: %w", err)
	}

	return envVars, nil
}

// Delete removes a variable by project and key.
func (s *EnvVarStore) Delete(ctx context.Context, projectID, key string) error {
	query := `DELETE FROM environment_variables WHERE project_id = $1 AND key = $2`

	result, err := s.conn().ExecContext(ctx, query, projectID, key)
	if err != nil {
		return fmt.Errorf("deleting environment variable: %w", err)
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

// DeleteByProject removes all variables for a project.
func (s *EnvVarStore) DeleteByProject(ctx context.Context, projectID string) error {
	query := `DELETE FROM environment_variables WHERE project_id = $1`

	if _, err := s.conn().ExecContext(ctx, query, projectID); err != nil {
		return fmt.Errorf("deleting environment variables: %w", err)
	}

	return nil
}
