package deploy

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/logs"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// basePort is the floor for port allocation; the first project gets 8001.
const basePort = 8000

// portSearchLimit bounds the allocation scan so an engine that reports
// every port busy cannot spin forever.
const portSearchLimit = 100

// autoActivateTimeout bounds the background activation that follows a
// successful build.
const autoActivateTimeout = 5 * time.Minute

// ErrBuildNotReady is returned when activation is requested for a build
// that has not succeeded.
var ErrBuildNotReady = errors.New("build has not succeeded")

// Service owns deployment activation on the control-plane side.
type Service struct {
	store    store.Store
	deployer Deployer
	cipher   *crypto.Cipher
	broker   *logs.Broker
	logger   *slog.Logger
}

// NewService creates a deployment service.
func NewService(st store.Store, deployer Deployer, cipher *crypto.Cipher, broker *logs.Broker, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		store:    st,
		deployer: deployer,
		cipher:   cipher,
		broker:   broker,
		logger:   logger,
	}
}

// EnvSnapshot returns the project's environment variables decrypted.
func (s *Service) EnvSnapshot(ctx context.Context, projectID string) (map[string]string, error) {
	vars, err := s.store.EnvVars().ListByProject(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("listing env vars: %w", err)
	}

	snapshot := make(map[string]string, len(vars))
	for _, v := range vars {
		snapshot[v.Key] = s.cipher.Decrypt(v.ValueCiphertext)
	}
	return snapshot, nil
}

// AllocatePort finds the next project port: one above the highest assigned
// port (floor 8000), skipping ports the deploy engine reports busy. An
// unreachable engine fails the allocation; the caller must not guess.
func (s *Service) AllocatePort(ctx context.Context) (int, error) {
	maxPort, err := s.store.Projects().MaxPort(ctx)
	if err != nil {
		return 0, fmt.Errorf("querying max port: %w", err)
	}

	next := maxPort
	if next < basePort {
		next = basePort
	}
	next++

	for i := 0; i < portSearchLimit; i++ {
		available, err := s.deployer.CheckPort(ctx, next)
		if err != nil {
			return 0, fmt.Errorf("checking port %d: %w", next, err)
		}
		if available {
			return next, nil
		}
		next++
	}

	return 0, fmt.Errorf("no free port found above %d", maxPort)
}

// ActivateBuild promotes a successful build: the engine activates its
// artifact on the project's port, then the deployment rows flip inside one
// transaction so at most one stays active.
func (s *Service) ActivateBuild(ctx context.Context, buildID string) (*models.Deployment, error) {
	build, err := s.store.Builds().Get(ctx, buildID)
	if err != nil {
		return nil, err
	}
	if build.Status != models.BuildStatusSuccess {
		return nil, fmt.Errorf("%w: build %s is %s", ErrBuildNotReady, buildID, build.Status)
	}

	project, err := s.store.Projects().Get(ctx, build.ProjectID)
	if err != nil {
		return nil, err
	}

	envVars, err := s.EnvSnapshot(ctx, project.ID)
	if err != nil {
		return nil, err
	}

	err = s.deployer.Activate(ctx, &ActivateRequest{
		ProjectID: project.ID,
		BuildID:   build.ID,
		Port:      project.Port,
		AppType:   project.Framework,
		Subdomain: project.Subdomain(),
		EnvVars:   envVars,
	})
	if err != nil {
		return nil, fmt.Errorf("activating build %s: %w", buildID, err)
	}

	var deployment *models.Deployment
	err = s.store.WithTx(ctx, func(tx store.Store) error {
		deployment, err = tx.Deployments().Promote(ctx, project.ID, build.ID)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("promoting deployment: %w", err)
	}

	s.LogToBuild(ctx, build.ID, fmt.Sprintf("Deployment active on port %d", project.Port), models.LogLevelDeploy)
	s.logger.Info("deployment activated",
		"project_id", project.ID,
		"build_id", build.ID,
		"port", project.Port,
	)

	return deployment, nil
}

// AutoActivate runs ActivateBuild in the background after a build reports
// success. Failures are appended to the build's log stream and never
// revert the build's status.
func (s *Service) AutoActivate(buildID string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), autoActivateTimeout)
		defer cancel()

		if _, err := s.ActivateBuild(ctx, buildID); err != nil {
			s.logger.Error("auto-activation failed", "build_id", buildID, "error", err)
			s.LogToBuild(ctx, buildID, fmt.Sprintf("Deployment failed: %v", err), models.LogLevelError)
		}
	}()
}

// StopProject stops whatever serves the project's port and flips the
// active deployment row, if any, to inactive.
func (s *Service) StopProject(ctx context.Context, project *models.Project) error {
	req := &StopRequest{Port: project.Port, ProjectID: project.ID}
	if active, err := s.store.Deployments().GetActive(ctx, project.ID); err == nil {
		req.BuildID = active.BuildID
	}

	if err := s.deployer.Stop(ctx, req); err != nil {
		return fmt.Errorf("stopping project %s: %w", project.ID, err)
	}

	if err := s.store.Deployments().Deactivate(ctx, project.ID); err != nil {
		return err
	}

	return nil
}

// DeleteProject runs the deletion sequence: collect build ids, ask the
// engine to clean up (best-effort), then cascade env vars, deployments,
// logs, builds, and the project row in one transaction.
func (s *Service) DeleteProject(ctx context.Context, project *models.Project) error {
	buildIDs, err := s.store.Builds().ListIDsByProject(ctx, project.ID)
	if err != nil {
		return fmt.Errorf("collecting build ids: %w", err)
	}

	engineReq := &DeleteRequest{
		Port:      project.Port,
		Subdomain: project.Subdomain(),
		BuildIDs:  buildIDs,
	}
	if err := s.deployer.DeleteProject(ctx, project.ID, engineReq); err != nil {
		// The rows must go even when the engine is down; files are
		// reclaimed by the next delete or by hand.
		s.logger.Warn("deploy engine cleanup failed, continuing with deletion",
			"project_id", project.ID,
			"error", err,
		)
	}

	err = s.store.WithTx(ctx, func(tx store.Store) error {
		if err := tx.EnvVars().DeleteByProject(ctx, project.ID); err != nil {
			return err
		}
		if err := tx.Deployments().DeleteByProject(ctx, project.ID); err != nil {
			return err
		}
		if err := tx.Logs().DeleteByBuildIDs(ctx, buildIDs); err != nil {
			return err
		}
		if err := tx.Builds().DeleteByIDs(ctx, buildIDs); err != nil {
			return err
		}
		return tx.Projects().Delete(ctx, project.ID)
	})
	if err != nil {
		return fmt.Errorf("deleting project rows: %w", err)
	}

	if _, err := s.store.Projects().Get(ctx, project.ID); !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("project %s still present after deletion", project.ID)
	}

	return nil
}

// LogToBuild persists a log entry and broadcasts it to live subscribers.
func (s *Service) LogToBuild(ctx context.Context, buildID, message string, level models.LogLevel) {
	entry := &models.LogEntry{
		BuildID:   buildID,
		Level:     level,
		Message:   message,
		Timestamp: time.Now().UTC(),
	}
	if err := s.store.Logs().Create(ctx, entry); err != nil {
		s.logger.Error("failed to persist build log", "build_id", buildID, "error", err)
		return
	}
	if s.broker != nil {
		s.broker.Publish(entry)
	}
}
