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

// InstallationStore implements store.InstallationStore using PostgreSQL.
type InstallationStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *InstallationStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Upsert creates or updates an installation keyed by its external ID.
func (s *InstallationStore) Upsert(ctx context.Context, inst *models.SourceInstallation) error {
	query := `
		INSERT INTO source_installations (id, installation_id, account_login, account_id, account_type, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
		ON CONFLICT (installation_id)
		DO UPDATE SET account_login = EXCLUDED.account_login,
		              account_id = EXCLUDED.account_id,
		              account_type = EXCLUDED.account_type,
		              updated_at = NOW()
		RETURNING id, created_at, updated_at`

	if inst.ID == "" {
		inst.ID = uuid.New().String()
	}

	err := s.conn().QueryRowContext(ctx, query,
		inst.ID,
		inst.InstallationID,
		inst.AccountLogin,
		inst.AccountID,
		inst.AccountType,
	).Scan(&inst.ID, &inst.CreatedAt, &inst.UpdatedAt)

	if err != nil {
		return fmt.Errorf("upserting installation: %w", err)
	}

	return nil
}

// GetByInstallationID retrieves an installation by its external ID.
func (s *InstallationStore) GetByInstallationID(ctx context.Context, installationID int64) (*models.SourceInstallation, error) {
	query := `
		SELECT id, installation_id, account_login, account_id, account_type, created_at, updated_at
		FROM source_installations
		WHERE installation_id = $1`

	inst := &models.SourceInstallation{}
	err := s.conn().QueryRowContext(ctx, query, installationID).Scan(
		&inst.ID,
		&inst.InstallationID,
		&inst.AccountLogin,
		&inst.AccountID,
		&inst.AccountType,
		&inst.CreatedAt,
		&inst.UpdatedAt,
	)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying installation: %w", err)
	}

	return inst, nil
}

// List retrieves all installations, newest first.
func (s *InstallationStore) List(ctx context.Context) ([]*models.SourceInstallation, error) {
	query := `
		SELECT id, installation_id, account_login, account_id, account_type, created_at, updated_at
		FROM source_installations
		ORDER BY created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying installations: %w", err)
	}
	defer rows.Close()

	var installations []*models.SourceInstallation
	for rows.Next() {
		inst := &models.SourceInstallation{}

		err := rows.Scan(
			&inst.ID,
			&inst.InstallationID,
			&inst.AccountLogin,
			&inst.AccountID,
			&inst.AccountType,
			&inst.CreatedAt,
			&inst.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning installation row: %w", err)
		}

		installations = append(installations, inst)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating installation rows: %w", err)
	}

	return installations, nil
}

// Delete removes an installation by its external ID.
func (s *InstallationStore) Delete(ctx context.Context, installationID int64) error {
	query := `DELETE FROM source_installations WHERE installation_id = $1`

	result, err := s.conn().ExecContext(ctx, query, installationID)
	if err != nil {
		return fmt.Errorf("deleting installation: %w", err)
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
