package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// BuildStore implements store.BuildStore using PostgreSQL.
type BuildStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *BuildStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create creates a new build.
func (s *BuildStore) Create(ctx context.Context, build *models.Build) error {
	query := `
		INSERT INTO builds (id, project_id, status, commit_sha, commit_message, artifact_id, created_at, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id, created_at`

	if build.ID == "" {
		build.ID = uuid.New().String()
	}
	if build.Status == "" {
		build.Status = models.BuildStatusPending
	}
	if build.CreatedAt.IsZero() {
		build.CreatedAt = time.Now().UTC()
	}

	err := s.conn().QueryRowContext(ctx, query,
		build.ID,
		build.ProjectID,
		string(build.Status),
		build.CommitSHA,
		build.CommitMessage,
		build.ArtifactID,
		build.CreatedAt,
		build.CompletedAt,
	).Scan(&build.ID, &build.CreatedAt)

	if err != nil {
		return fmt.Errorf("inserting build: %w", err)
	}

	return nil
}

// Get retrieves a build by ID.
func (s *BuildStore) Get(ctx context.Context, id string) (*models.Build, error) {
	query := `
		SELECT id, project_id, status, commit_sha, commit_message, artifact_id, created_at, completed_at
		FROM builds
		WHERE id = $1`

	build, err := scanBuild(s.conn().QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, fmt.Errorf("querying build: %w", err)
	}

	return build, nil
}

// ListByProject retrieves all builds for a project joined with their
// deployment state, newest first.
func (s *BuildStore) ListByProject(ctx context.Context, projectID string) ([]*models.BuildWithDeployment, error) {
	query := `
		SELECT b.id, b.project_id, b.status, b.commit_sha, b.commit_message, b.artifact_id,
		       b.created_at, b.completed_at, d.status, d.activated_at
		FROM builds b
		LEFT JOIN deployments d ON d.build_id = b.id AND d.project_id = b.project_id
		WHERE b.project_id = $1
		ORDER BY b.created_at DESC`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying builds: %w", err)
	}
	defer rows.Close()

	var builds []*models.BuildWithDeployment
	for rows.Next() {
		build := &models.BuildWithDeployment{}
		var commitSHA, commitMessage, artifactID, deployStatus sql.NullString
		var completedAt, activatedAt sql.NullTime

		err := rows.Scan(
			&build.ID,
			&build.ProjectID,
			&build.Status,
			&commitSHA,
			&commitMessage,
			&artifactID,
			&build.CreatedAt,
			&completedAt,
			&deployStatus,
			&activatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning build row: %w", err)
		}

		if commitSHA.Valid {
			build.CommitSHA = &commitSHA.String
		}
		if commitMessage.Valid {
			build.CommitMessage = &commitMessage.String
		}
		if artifactID.Valid {
			build.ArtifactID = &artifactID.String
		}
		if completedAt.Valid {
			build.CompletedAt = &completedAt.Time
		}
		if deployStatus.Valid {
			status := models.DeploymentStatus(deployStatus.String)
			build.DeploymentStatus = &status
		}
		if activatedAt.Valid {
			build.ActivatedAt = &activatedAt.Time
		}

		builds = append(builds, build)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating build rows: %w", err)
	}

	return builds, nil
}

// ListIDsByProject retrieves all build IDs for a project.
func (s *BuildStore) ListIDsByProject(ctx context.Context, projectID string) ([]string, error) {
	query := `SELECT id FROM builds WHERE project_id = $1`

	rows, err := s.conn().QueryContext(ctx, query, projectID)
	if err != nil {
		return nil, fmt.Errorf("querying build ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning build id: %w", err)
		}
		ids = append(ids, id)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating build id rows: %w", err)
	}

	return ids, nil
}

// UpdateStatus transitions a build's status. Terminal states set
// completed_at. The WHERE clause refuses to move a build out of a terminal
// state; in that case the current row is returned unchanged so callers can
// detect the rejected transition.
func (s *BuildStore) UpdateStatus(ctx context.Context, id string, status models.BuildStatus) (*models.Build, error) {
	query := `
		UPDATE builds
		SET status = $2,
		    completed_at = CASE WHEN $2 IN ('success', 'failed') THEN NOW() ELSE completed_at END
		WHERE id = $1 AND status NOT IN ('success', 'failed')
		RETURNING id, project_id, status, commit_sha, commit_message, artifact_id, created_at, completed_at`

	build, err := scanBuild(s.conn().QueryRowContext(ctx, query, id, string(status)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			// Missing or already terminal; Get distinguishes the two.
			return s.Get(ctx, id)
		}
		return nil, fmt.Errorf("updating build status: %w", err)
	}

	return build, nil
}

// SetArtifact records the artifact identifier for a build.
func (s *BuildStore) SetArtifact(ctx context.Context, id, artifactID string) error {
	query := `UPDATE builds SET artifact_id = $2 WHERE id = $1`

	result, err := s.conn().ExecContext(ctx, query, id, artifactID)
	if err != nil {
		return fmt.Errorf("setting build artifact: %w", err)
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

// ExistsByCommit reports whether a build exists for the project and commit.
func (s *BuildStore) ExistsByCommit(ctx context.Context, projectID, commitSHA string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM builds WHERE project_id = $1 AND commit_sha = $2)`

	var exists bool
	if err := s.conn().QueryRowContext(ctx, query, projectID, commitSHA).Scan(&exists); err != nil {
		return false, fmt.Errorf("checking build by commit: %w", err)
	}

	return exists, nil
}

// DeleteByIDs removes the given builds.
func (s *BuildStore) DeleteByIDs(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	query := `DELETE FROM builds WHERE id = ANY($1::text[])`

	if _, err := s.conn().ExecContext(ctx, query, pq.Array(ids)); err != nil {
		return fmt.Errorf("deleting builds: %w", err)
	}

	return nil
}

func scanBuild(row rowScanner) (*models.Build, error) {
	build := &models.Build{}
	var commitSHA, commitMessage, artifactID sql.NullString
	var completedAt sql.NullTime

	err := row.Scan(
		&build.ID,
		&build.ProjectID,
		&build.Status,
		&commitSHA,
		&commitMessage,
		&artifactID,
		&build.CreatedAt,
		&completedAt,
	)
	if err != nil {
		return nil, err
	}

	if commitSHA.Valid {
		build.CommitSHA = &commitSHA.String
	}
	if commitMessage.Valid {
		build.CommitMessage = &commitMessage.String
	}
	if artifactID.Valid {
		build.ArtifactID = &artifactID.String
	}
	if completedAt.Valid {
		build.CompletedAt = &completedAt.Time
	}

	return build, nil
}
