package handlers

import (
	"context"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/thakurlabs/thakur/internal/crypto"
	"github.com/thakurlabs/thakur/internal/deploy"
	"github.com/thakurlabs/thakur/internal/logs"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests.
type fakeStore struct {
	mu            sync.Mutex
	projects      map[string]*models.Project
	builds        map[string]*models.Build
	deployments   map[string]*models.Deployment
	logEntries    map[string][]*models.LogEntry
	envVars       map[string]map[string]*models.EnvVar
	installations map[int64]*models.SourceInstallation
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		projects:      make(map[string]*models.Project),
		builds:        make(map[string]*models.Build),
		deployments:   make(map[string]*models.Deployment),
		logEntries:    make(map[string][]*models.LogEntry),
		envVars:       make(map[string]map[string]*models.EnvVar),
		installations: make(map[int64]*models.SourceInstallation),
	}
}

func (s *fakeStore) Projects() store.ProjectStore           { return &fakeProjects{s} }
func (s *fakeStore) Builds() store.BuildStore               { return &fakeBuilds{s} }
func (s *fakeStore) Deployments() store.DeploymentStore     { return &fakeDeployments{s} }
func (s *fakeStore) Logs() store.LogStore                   { return &fakeLogs{s} }
func (s *fakeStore) EnvVars() store.EnvVarStore             { return &fakeEnvVars{s} }
func (s *fakeStore) Installations() store.InstallationStore { return &fakeInstallations{s} }

func (s *fakeStore) WithTx(ctx context.Context, fn func(store.Store) error) error {
	return fn(s)
}

func (s *fakeStore) Close() error { return nil }

type fakeProjects struct{ s *fakeStore }

func (f *fakeProjects) Create(ctx context.Context, p *models.Project) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, existing := range f.s.projects {
		if p.Domain != nil && existing.Domain != nil && *p.Domain == *existing.Domain {
			return store.ErrDuplicate
		}
		if existing.Port == p.Port {
			return store.ErrDuplicate
		}
	}
	cp := *p
	f.s.projects[p.ID] = &cp
	return nil
}

func (f *fakeProjects) Get(ctx context.Context, id string) (*models.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	p, ok := f.s.projects[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (f *fakeProjects) List(ctx context.Context) ([]*models.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.Project, 0, len(f.s.projects))
	for _, p := range f.s.projects {
		cp := *p
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeProjects) ListByRepo(ctx context.Context, repoID int64, branch string) ([]*models.Project, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.Project
	for _, p := range f.s.projects {
		if p.RepoID == repoID && p.DefaultBranch == branch {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (f *fakeProjects) Update(ctx context.Context, p *models.Project) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.projects[p.ID]; !ok {
		return store.ErrNotFound
	}
	cp := *p
	f.s.projects[p.ID] = &cp
	return nil
}

func (f *fakeProjects) Delete(ctx context.Context, id string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if _, ok := f.s.projects[id]; !ok {
		return store.ErrNotFound
	}
	delete(f.s.projects, id)
	return nil
}

func (f *fakeProjects) MaxPort(ctx context.Context) (int, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	maxPort := 0
	for _, p := range f.s.projects {
		if p.Port > maxPort {
			maxPort = p.Port
		}
	}
	return maxPort, nil
}

func (f *fakeProjects) DomainExists(ctx context.Context, domain string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.projects {
		if p.Domain != nil && *p.Domain == domain {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeProjects) ClearInstallation(ctx context.Context, installationID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, p := range f.s.projects {
		if p.InstallationID != nil && *p.InstallationID == installationID {
			p.InstallationID = nil
		}
	}
	return nil
}

type fakeBuilds struct{ s *fakeStore }

func (f *fakeBuilds) Create(ctx context.Context, b *models.Build) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *b
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now().UTC()
	}
	f.s.builds[b.ID] = &cp
	return nil
}

func (f *fakeBuilds) Get(ctx context.Context, id string) (*models.Build, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.builds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBuilds) ListByProject(ctx context.Context, projectID string) ([]*models.BuildWithDeployment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []*models.BuildWithDeployment
	for _, b := range f.s.builds {
		if b.ProjectID == projectID {
			out = append(out, &models.BuildWithDeployment{Build: *b})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeBuilds) ListIDsByProject(ctx context.Context, projectID string) ([]string, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	var out []string
	for _, b := range f.s.builds {
		if b.ProjectID == projectID {
			out = append(out, b.ID)
		}
	}
	return out, nil
}

func (f *fakeBuilds) UpdateStatus(ctx context.Context, id string, status models.BuildStatus) (*models.Build, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.builds[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !b.Status.Terminal() {
		b.Status = status
		if status.Terminal() {
			now := time.Now().UTC()
			b.CompletedAt = &now
		}
	}
	cp := *b
	return &cp, nil
}

func (f *fakeBuilds) SetArtifact(ctx context.Context, id, artifactID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	b, ok := f.s.builds[id]
	if !ok {
		return store.ErrNotFound
	}
	b.ArtifactID = &artifactID
	return nil
}

func (f *fakeBuilds) ExistsByCommit(ctx context.Context, projectID, commitSHA string) (bool, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, b := range f.s.builds {
		if b.ProjectID == projectID && b.CommitSHA != nil && *b.CommitSHA == commitSHA {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBuilds) DeleteByIDs(ctx context.Context, ids []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range ids {
		delete(f.s.builds, id)
	}
	return nil
}

type fakeDeployments struct{ s *fakeStore }

func (f *fakeDeployments) Get(ctx context.Context, id string) (*models.Deployment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	d, ok := f.s.deployments[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *d
	return &cp, nil
}

func (f *fakeDeployments) GetActive(ctx context.Context, projectID string) (*models.Deployment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.deployments {
		if d.ProjectID == projectID && d.Status == models.DeploymentStatusActive {
			cp := *d
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeDeployments) Promote(ctx context.Context, projectID, buildID string) (*models.Deployment, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.deployments {
		if d.ProjectID == projectID {
			d.Status = models.DeploymentStatusInactive
		}
	}
	for _, d := range f.s.deployments {
		if d.ProjectID == projectID && d.BuildID == buildID {
			d.Status = models.DeploymentStatusActive
			d.ActivatedAt = time.Now().UTC()
			cp := *d
			return &cp, nil
		}
	}
	d := &models.Deployment{
		ID:          uuid.New().String(),
		ProjectID:   projectID,
		BuildID:     buildID,
		Status:      models.DeploymentStatusActive,
		ActivatedAt: time.Now().UTC(),
	}
	f.s.deployments[d.ID] = d
	cp := *d
	return &cp, nil
}

func (f *fakeDeployments) Deactivate(ctx context.Context, projectID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, d := range f.s.deployments {
		if d.ProjectID == projectID {
			d.Status = models.DeploymentStatusInactive
		}
	}
	return nil
}

func (f *fakeDeployments) DeleteByProject(ctx context.Context, projectID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for id, d := range f.s.deployments {
		if d.ProjectID == projectID {
			delete(f.s.deployments, id)
		}
	}
	return nil
}

type fakeLogs struct{ s *fakeStore }

func (f *fakeLogs) Create(ctx context.Context, entry *models.LogEntry) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *entry
	if cp.ID == "" {
		cp.ID = uuid.New().String()
	}
	f.s.logEntries[entry.BuildID] = append(f.s.logEntries[entry.BuildID], &cp)
	return nil
}

func (f *fakeLogs) ListByBuild(ctx context.Context, buildID string) ([]*models.LogEntry, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	entries := f.s.logEntries[buildID]
	out := make([]*models.LogEntry, len(entries))
	for i, e := range entries {
		cp := *e
		out[i] = &cp
	}
	return out, nil
}

func (f *fakeLogs) DeleteByBuild(ctx context.Context, buildID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.logEntries, buildID)
	return nil
}

func (f *fakeLogs) DeleteByBuildIDs(ctx context.Context, buildIDs []string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	for _, id := range buildIDs {
		delete(f.s.logEntries, id)
	}
	return nil
}

type fakeEnvVars struct{ s *fakeStore }

func (f *fakeEnvVars) Upsert(ctx context.Context, v *models.EnvVar) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	if f.s.envVars[v.ProjectID] == nil {
		f.s.envVars[v.ProjectID] = make(map[string]*models.EnvVar)
	}
	cp := *v
	f.s.envVars[v.ProjectID][v.Key] = &cp
	return nil
}

func (f *fakeEnvVars) ListByProject(ctx context.Context, projectID string) ([]*models.EnvVar, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	vars := f.s.envVars[projectID]
	out := make([]*models.EnvVar, 0, len(vars))
	for _, v := range vars {
		cp := *v
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (f *fakeEnvVars) Delete(ctx context.Context, projectID, key string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	vars := f.s.envVars[projectID]
	if _, ok := vars[key]; !ok {
		return store.ErrNotFound
	}
	delete(vars, key)
	return nil
}

func (f *fakeEnvVars) DeleteByProject(ctx context.Context, projectID string) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.envVars, projectID)
	return nil
}

type fakeInstallations struct{ s *fakeStore }

func (f *fakeInstallations) Upsert(ctx context.Context, inst *models.SourceInstallation) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	cp := *inst
	f.s.installations[inst.InstallationID] = &cp
	return nil
}

func (f *fakeInstallations) GetByInstallationID(ctx context.Context, installationID int64) (*models.SourceInstallation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	inst, ok := f.s.installations[installationID]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *inst
	return &cp, nil
}

func (f *fakeInstallations) List(ctx context.Context) ([]*models.SourceInstallation, error) {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	out := make([]*models.SourceInstallation, 0, len(f.s.installations))
	for _, inst := range f.s.installations {
		cp := *inst
		out = append(out, &cp)
	}
	return out, nil
}

func (f *fakeInstallations) Delete(ctx context.Context, installationID int64) error {
	f.s.mu.Lock()
	defer f.s.mu.Unlock()
	delete(f.s.installations, installationID)
	return nil
}

// stubDeployer is a configurable deploy.Deployer.
type stubDeployer struct {
	mu          sync.Mutex
	checkPort   func(port int) (bool, error)
	activateErr error
	stopErr     error
	deleteErr   error
	activated   []*deploy.ActivateRequest
	stopped     []*deploy.StopRequest
	deleted     []string
}

func (d *stubDeployer) CheckPort(ctx context.Context, port int) (bool, error) {
	if d.checkPort != nil {
		return d.checkPort(port)
	}
	return true, nil
}

func (d *stubDeployer) Activate(ctx context.Context, req *deploy.ActivateRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.activated = append(d.activated, req)
	return d.activateErr
}

func (d *stubDeployer) Stop(ctx context.Context, req *deploy.StopRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = append(d.stopped, req)
	return d.stopErr
}

func (d *stubDeployer) DeleteProject(ctx context.Context, projectID string, req *deploy.DeleteRequest) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.deleted = append(d.deleted, projectID)
	return d.deleteErr
}

// testEnv bundles the wiring every handler test needs.
type testEnv struct {
	store    *fakeStore
	deployer *stubDeployer
	cipher   *crypto.Cipher
	broker   *logs.Broker
	service  *deploy.Service
	logger   *slog.Logger
}

func newTestEnv(t interface{ Fatalf(string, ...any) }) *testEnv {
	cipher, err := crypto.New("0123456789abcdef0123456789abcdef")
	if err != nil {
		t.Fatalf("creating cipher: %v", err)
	}

	st := newFakeStore()
	deployer := &stubDeployer{}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
	broker := logs.NewBroker(logger)

	return &testEnv{
		store:    st,
		deployer: deployer,
		cipher:   cipher,
		broker:   broker,
		service:  deploy.NewService(st, deployer, cipher, broker, logger),
		logger:   logger,
	}
}

func (e *testEnv) addProject(p *models.Project) *models.Project {
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
	}
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.projects[p.ID] = p
	return p
}

func (e *testEnv) addBuild(b *models.Build) *models.Build {
	if b.ID == "" {
		b.ID = uuid.New().String()
	}
	if b.CreatedAt.IsZero() {
		b.CreatedAt = time.Now().UTC()
	}
	e.store.mu.Lock()
	defer e.store.mu.Unlock()
	e.store.builds[b.ID] = b
	return b
}
