// Package postgres provides PostgreSQL implementation of the store interfaces.
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/thakurlabs/thakur/internal/store"
)

// PostgresStore implements the Store interface using PostgreSQL.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger

	projects      *ProjectStore
	builds        *BuildStore
	deployments   *DeploymentStore
	logs          *LogStore
	envVars       *EnvVarStore
	installations *InstallationStore
}

// Config holds PostgreSQL connection configuration.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig(dsn string) *Config {
	return &Config{
		DSN:             dsn,
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnMaxIdleTime: 1 * time.Minute,
	}
}

// NewPostgresStore creates a new PostgreSQL store with the given configuration.
func NewPostgresStore(cfg *Config, logger *slog.Logger) (*PostgresStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	db, err := sql.Open("pgx", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// Configure connection pool
	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	// Verify connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("pinging database: %w", err)
	}

	s := &PostgresStore{
		db:     db,
		logger: logger,
	}

	// Initialize sub-stores
	s.projects = &ProjectStore{db: db, logger: logger}
	s.builds = &BuildStore{db: db, logger: logger}
	s.deployments = &DeploymentStore{db: db, logger: logger}
	s.logs = &LogStore{db: db, logger: logger}
	s.envVars = &EnvVarStore{db: db, logger: logger}
	s.installations = &InstallationStore{db: db, logger: logger}

	logger.Info("connected to PostgreSQL database")
	return s, nil
}

// Projects returns the ProjectStore.
func (s *PostgresStore) Projects() store.ProjectStore {
	return s.projects
}

// Builds returns the BuildStore.
func (s *PostgresStore) Builds() store.BuildStore {
	return s.builds
}

// Deployments returns the DeploymentStore.
func (s *PostgresStore) Deployments() store.DeploymentStore {
	return s.deployments
}

// Logs returns the LogStore.
func (s *PostgresStore) Logs() store.LogStore {
	return s.logs
}

// EnvVars returns the EnvVarStore.
func (s *PostgresStore) EnvVars() store.EnvVarStore {
	return s.envVars
}

// Installations returns the InstallationStore.
func (s *PostgresStore) Installations() store.InstallationStore {
	return s.installations
}

// WithTx executes the given function within a database transaction.
func (s *PostgresStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}

	// Create a transaction-scoped store
	txs := &txStore{
		tx:     tx,
		logger: s.logger,
	}

	// Execute the function
	if err := fn(txs); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Error("failed to rollback transaction", "error", rbErr)
		}
		return err
	}

	// Commit the transaction
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}

	return nil
}

// Ping verifies the database connection is alive.
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing PostgreSQL connection")
	return s.db.Close()
}

// DB returns the underlying database connection.
// This is useful for components that need direct database access.
func (s *PostgresStore) DB() *sql.DB {
	return s.db
}

// txStore wraps a transaction and implements the Store interface.
type txStore struct {
	tx     *sql.Tx
	logger *slog.Logger

	projects      *ProjectStore
	builds        *BuildStore
	deployments   *DeploymentStore
	logs          *LogStore
	envVars       *EnvVarStore
	installations *InstallationStore
}

func (s *txStore) Projects() store.ProjectStore {
	if s.projects == nil {
		s.projects = &ProjectStore{tx: s.tx, logger: s.logger}
	}
	return s.projects
}

func (s *txStore) Builds() store.BuildStore {
	if s.builds == nil {
		s.builds = &BuildStore{tx: s.tx, logger: s.logger}
	}
	return s.builds
}

func (s *txStore) Deployments() store.DeploymentStore {
	if s.deployments == nil {
		s.deployments = &DeploymentStore{tx: s.tx, logger: s.logger}
	}
	return s.deployments
}

func (s *txStore) Logs() store.LogStore {
	if s.logs == nil {
		s.logs = &LogStore{tx: s.tx, logger: s.logger}
	}
	return s.logs
}

func (s *txStore) EnvVars() store.EnvVarStore {
	if s.envVars == nil {
		s.envVars = &EnvVarStore{tx: s.tx, logger: s.logger}
	}
	return s.envVars
}

func (s *txStore) Installations() store.InstallationStore {
	if s.installations == nil {
		s.installations = &InstallationStore{tx: s.tx, logger: s.logger}
	}
	return s.installations
}

func (s *txStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	// Already in a transaction, just execute the function
	return fn(s)
}

func (s *txStore) Close() error {
	// No-op for transaction store
	return nil
}

// queryable is an interface that both *sql.DB and *sql.Tx implement.
type queryable interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}
