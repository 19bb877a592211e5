package postgres

import (
	"context"
	"errors"
	"testing"

	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// newTestStore wraps an already-migrated connection in a PostgresStore.
func newTestStore(t *testing.T) *PostgresStore {
	t.Helper()

	db := setupTestDB(t)
	logger := testLogger()

	s := &PostgresStore{db: db, logger: logger}
	s.projects = &ProjectStore{db: db, logger: logger}
	s.builds = &BuildStore{db: db, logger: logger}
	s.deployments = &DeploymentStore{db: db, logger: logger}
	s.logs = &LogStore{db: db, logger: logger}
	s.envVars = &EnvVarStore{db: db, logger: logger}
	s.installations = &InstallationStore{db: db, logger: logger}
	return s
}

func TestWithTxCommit(t *testing.T) {
	s := newTestStore(t)
	defer cleanupTestDB(t, s.db)

	ctx := context.Background()
	project := createTestProject(t, ctx, s.projects, 8001)

	build := &models.Build{ProjectID: project.ID, Status: models.BuildStatusSuccess}
	if err := s.Builds().Create(ctx, build); err != nil {
		t.Fatalf("Create build: %v", err)
	}

	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.Deployments().Promote(ctx, project.ID, build.ID); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithTx: %v", err)
	}

	active, err := s.Deployments().GetActive(ctx, project.ID)
	if err != nil {
		t.Fatalf("GetActive after commit: %v", err)
	}
	if active.BuildID != build.ID {
		t.Errorf("expected active build %s, got %s", build.ID, active.BuildID)
	}
}

func TestWithTxRollback(t *testing.T) {
	s := newTestStore(t)
	defer cleanupTestDB(t, s.db)

	ctx := context.Background()
	project := createTestProject(t, ctx, s.projects, 8001)

	build := &models.Build{ProjectID: project.ID, Status: models.BuildStatusSuccess}
	if err := s.Builds().Create(ctx, build); err != nil {
		t.Fatalf("Create build: %v", err)
	}

	boom := errors.New("boom")
	err := s.WithTx(ctx, func(tx store.Store) error {
		if _, err := tx.Deployments().Promote(ctx, project.ID, build.ID); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}

	_, err = s.Deployments().GetActive(ctx, project.ID)
	if !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected no active deployment after rollback, got %v", err)
	}
}

// The deletion sequence the API runs when removing a project: logs, then
// deployments, then builds, then env vars, then the project row, all in one
// transaction.
func TestWithTxProjectDeletionSequence(t *testing.T) {
	s := newTestStore(t)
	defer cleanupTestDB(t, s.db)

	ctx := context.Background()
	project := createTestProject(t, ctx, s.projects, 8001)

	build := &models.Build{ProjectID: project.ID, Status: models.BuildStatusSuccess}
	if err := s.Builds().Create(ctx, build); err != nil {
		t.Fatalf("Create build: %v", err)
	}
	if err := s.Logs().Create(ctx, &models.LogEntry{BuildID: build.ID, Message: "hello"}); err != nil {
		t.Fatalf("Create log: %v", err)
	}
	if _, err := s.Deployments().Promote(ctx, project.ID, build.ID); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	envVar := &models.EnvVar{ProjectID: project.ID, Key: "K", ValueCiphertext: "v"}
	if err := s.EnvVars().Upsert(ctx, envVar); err != nil {
		t.Fatalf("Upsert env var: %v", err)
	}

	err := s.WithTx(ctx, func(tx store.Store) error {
		buildIDs, err := tx.Builds().ListIDsByProject(ctx, project.ID)
		if err != nil {
			return err
		}
		if err := tx.Logs().DeleteByBuildIDs(ctx, buildIDs); err != nil {
			return err
		}
		if err := tx.Deployments().DeleteByProject(ctx, project.ID); err != nil {
			return err
		}
		if err := tx.Builds().DeleteByIDs(ctx, buildIDs); err != nil {
			return err
		}
		if err := tx.EnvVars().DeleteByProject(ctx, project.ID); err != nil {
			return err
		}
		return tx.Projects().Delete(ctx, project.ID)
	})
	if err != nil {
		t.Fatalf("deletion transaction: %v", err)
	}

	if _, err := s.Projects().Get(ctx, project.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected project gone, got %v", err)
	}
	if _, err := s.Builds().Get(ctx, build.ID); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("expected build gone, got %v", err)
	}

	logs, err := s.Logs().ListByBuild(ctx, build.ID)
	if err != nil {
		t.Fatalf("ListByBuild: %v", err)
	}
	if len(logs) != 0 {
		t.Errorf("expected no logs left, got %d", len(logs))
	}
}
