package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/thakurlabs/thakur/internal/models"
)

// LogStore implements store.LogStore using PostgreSQL.
type LogStore struct {
	db     *sql.DB
	tx     *sql.Tx
	logger *slog.Logger
}

// conn returns the queryable connection (transaction or database).
func (s *LogStore) conn() queryable {
	if s.tx != nil {
		return s.tx
	}
	return s.db
}

// Create persists a log entry.
func (s *LogStore) Create(ctx context.Context, entry *models.LogEntry) error {
	query := `
		INSERT INTO logs (id, build_id, level, message, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`

	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.Level == "" {
		entry.Level = models.LogLevelInfo
	}
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	err := s.conn().QueryRowContext(ctx, query,
		entry.ID,
		entry.BuildID,
		string(entry.Level),
		entry.Message,
		entry.Timestamp,
	).Scan(&entry.ID)

	if err != nil {
		return fmt.Errorf("inserting log entry: %w", err)
	}

	return nil
}

// ListByBuild retrieves a build's log entries in chronological order.
func (s *LogStore) ListByBuild(ctx context.Context, buildID string) ([]*models.LogEntry, error) {
	query := `
		SELECT id, build_id, level, message, timestamp
		FROM logs
		WHERE build_id = $1
		ORDER BY timestamp ASC`

	rows, err := s.conn().QueryContext(ctx, query, buildID)
	if err != nil {
		return nil, fmt.Errorf("querying logs: %w", err)
	}
	defer rows.Close()

	return s.scanLogs(rows)
}

// DeleteByBuild removes all log entries for a build.
func (s *LogStore) DeleteByBuild(ctx context.Context, buildID string) error {
	query := `DELETE FROM logs WHERE build_id = $1`

	if _, err := s.conn().ExecContext(ctx, query, buildID); err != nil {
		return fmt.Errorf("deleting logs: %w", err)
	}

	return nil
}

// DeleteByBuildIDs removes log entries for the given builds.
func (s *LogStore) DeleteByBuildIDs(ctx context.Context, buildIDs []string) error {
	if len(buildIDs) == 0 {
		return nil
	}

	query := `DELETE FROM logs WHERE build_id = ANY($1::text[])`

	if _, err := s.conn().ExecContext(ctx, query, pq.Array(buildIDs)); err != nil {
		return fmt.Errorf("deleting logs by build ids: %w", err)
	}

	return nil
}

// scanLogs scans multiple log entry rows.
func (s *LogStore) scanLogs(rows *sql.Rows) ([]*models.LogEntry, error) {
	var entries []*models.LogEntry

	for rows.Next() {
		entry := &models.LogEntry{}

		err := rows.Scan(
			&entry.ID,
			&entry.BuildID,
			&entry.Level,
			&entry.Message,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("scanning log row: %w", err)
		}

		entries = append(entries, entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating log rows: %w", err)
	}

	return entries, nil
}
