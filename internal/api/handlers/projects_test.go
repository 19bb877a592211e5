package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/thakurlabs/thakur/internal/models"
)

func newProjectHandler(env *testEnv, baseDomain string, production bool) *ProjectHandler {
	return NewProjectHandler(env.store, env.service, env.cipher, baseDomain, production, env.logger)
}

func projectRequest(t *testing.T, method, target string, body any) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encoding body: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func withURLParam(req *http.Request, key, value string) *http.Request {
	rctx, ok := req.Context().Value(chi.RouteCtxKey).(*chi.Context)
	if !ok {
		rctx = chi.NewRouteContext()
		req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, rctx))
	}
	rctx.URLParams.Add(key, value)
	return req
}

func TestCreateProjectAllocatesNextPort(t *testing.T) {
	env := newTestEnv(t)
	env.addProject(&models.Project{Name: "existing", Port: 8004})
	h := newProjectHandler(env, "", false)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "my-app",
		GitHubURL: "https://github.com/acme/my-app",
		AppType:   models.FrameworkVite,
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created models.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if created.Port != 8005 {
		t.Errorf("port = %d, want 8005", created.Port)
	}
	if !created.AutoDeploy {
		t.Errorf("auto_deploy should default to true")
	}
	if created.DefaultBranch != "main" {
		t.Errorf("default_branch = %q, want main", created.DefaultBranch)
	}
}

func TestCreateProjectEngineUnreachable(t *testing.T) {
	env := newTestEnv(t)
	env.deployer.checkPort = func(port int) (bool, error) {
		return false, fmt.Errorf("connection refused")
	}
	h := newProjectHandler(env, "", false)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "my-app",
		GitHubURL: "https://github.com/acme/my-app",
		AppType:   models.FrameworkVite,
	}))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502", rec.Code)
	}
	if len(env.store.projects) != 0 {
		t.Errorf("no project should be persisted when allocation fails")
	}
}

func TestCreateProjectRejectsInvalidFramework(t *testing.T) {
	env := newTestEnv(t)
	h := newProjectHandler(env, "", false)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "my-app",
		GitHubURL: "https://github.com/acme/my-app",
		AppType:   "rails",
	}))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCreateProjectDomainConflict(t *testing.T) {
	env := newTestEnv(t)
	taken := "app.example.com"
	env.addProject(&models.Project{Name: "first", Domain: &taken, Port: 8001})
	h := newProjectHandler(env, "example.com", true)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "second",
		GitHubURL: "https://github.com/acme/second",
		AppType:   models.FrameworkVite,
		Domain:    "app",
	}))

	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409", rec.Code)
	}
}

func TestCreateProjectAutoDomainInProduction(t *testing.T) {
	env := newTestEnv(t)
	h := newProjectHandler(env, "example.com", true)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "Hello World",
		GitHubURL: "https://github.com/acme/hello",
		AppType:   models.FrameworkVite,
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created models.Project
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Domain == nil || *created.Domain != "hello-world.example.com" {
		t.Errorf("domain = %v, want hello-world.example.com", created.Domain)
	}
}

func TestCreateProjectAutoDomainSkipsReservedSlug(t *testing.T) {
	env := newTestEnv(t)
	h := newProjectHandler(env, "example.com", true)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "API",
		GitHubURL: "https://github.com/acme/api",
		AppType:   models.FrameworkExpress,
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created models.Project
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Domain != nil {
		t.Errorf("a reserved slug must not claim a domain, got %q", *created.Domain)
	}
}

func TestCreateProjectAutoDomainSuffixesOnCollision(t *testing.T) {
	env := newTestEnv(t)
	taken := "hello.example.com"
	env.addProject(&models.Project{Name: "hello", Domain: &taken, Port: 8001})
	h := newProjectHandler(env, "example.com", true)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "hello",
		GitHubURL: "https://github.com/acme/hello-again",
		AppType:   models.FrameworkVite,
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var created models.Project
	json.Unmarshal(rec.Body.Bytes(), &created)
	if created.Domain == nil || *created.Domain != "hello-2.example.com" {
		t.Errorf("domain = %v, want hello-2.example.com", created.Domain)
	}
}

func TestSuffixedLabelStaysWithinLimit(t *testing.T) {
	long := strings.Repeat("a", 63)
	got := suffixedLabel(long, 12)
	if len(got) > 63 {
		t.Fatalf("label %q is %d characters", got, len(got))
	}
	if !strings.HasSuffix(got, "-12") {
		t.Errorf("label %q should end with the suffix", got)
	}
}

func TestCreateProjectEncryptsEnvVars(t *testing.T) {
	env := newTestEnv(t)
	h := newProjectHandler(env, "", false)

	rec := httptest.NewRecorder()
	h.Create(rec, projectRequest(t, http.MethodPost, "/projects", CreateProjectRequest{
		Name:      "my-app",
		GitHubURL: "https://github.com/acme/my-app",
		AppType:   models.FrameworkExpress,
		EnvVars:   map[string]string{"DATABASE_URL": "postgres://secret"},
	}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var created models.Project
	if err := json.Unmarshal(rec.Body.Bytes(), &created); err != nil {
		t.Fatalf("decoding response: %v", err)
	}

	vars, _ := env.store.EnvVars().ListByProject(context.Background(), created.ID)
	if len(vars) != 1 {
		t.Fatalf("stored vars = %d, want 1", len(vars))
	}
	if vars[0].ValueCiphertext == "postgres://secret" {
		t.Errorf("value stored in plaintext")
	}
	if env.cipher.Decrypt(vars[0].ValueCiphertext) != "postgres://secret" {
		t.Errorf("ciphertext does not decrypt to the original value")
	}
}

func TestListProjectsOmitsPort(t *testing.T) {
	env := newTestEnv(t)
	env.addProject(&models.Project{Name: "app", Port: 8001, Framework: models.FrameworkVite})
	h := newProjectHandler(env, "", false)

	rec := httptest.NewRecorder()
	h.List(rec, httptest.NewRequest(http.MethodGet, "/projects", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if strings.Contains(rec.Body.String(), `"port"`) {
		t.Errorf("listing must not expose the deploy-host port: %s", rec.Body.String())
	}
}

func TestGetProjectNotFound(t *testing.T) {
	env := newTestEnv(t)
	h := newProjectHandler(env, "", false)

	req := withURLParam(httptest.NewRequest(http.MethodGet, "/projects/missing", nil), "projectID", "missing")
	rec := httptest.NewRecorder()
	h.Get(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding error body: %v", err)
	}
	if body["error"] != "Not Found" {
		t.Errorf("error = %q, want Not Found", body["error"])
	}
}

func TestUpdateProjectPartial(t *testing.T) {
	env := newTestEnv(t)
	p := env.addProject(&models.Project{Name: "app", BuildCommand: "npm run build", Port: 8001})
	h := newProjectHandler(env, "", false)

	newName := "renamed"
	req := withURLParam(projectRequest(t, http.MethodPut, "/projects/"+p.ID, UpdateProjectRequest{
		Name: &newName,
	}), "projectID", p.ID)
	rec := httptest.NewRecorder()
	h.Update(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	updated, _ := env.store.Projects().Get(context.Background(), p.ID)
	if updated.Name != "renamed" {
		t.Errorf("name = %q, want renamed", updated.Name)
	}
	if updated.BuildCommand != "npm run build" {
		t.Errorf("absent fields must stay unchanged, build_command = %q", updated.BuildCommand)
	}
}

func TestDeleteProjectCascades(t *testing.T) {
	env := newTestEnv(t)
	p := env.addProject(&models.Project{Name: "app", Port: 8001})
	b := env.addBuild(&models.Build{ProjectID: p.ID, Status: models.BuildStatusSuccess})
	env.store.Logs().Create(context.Background(), &models.LogEntry{BuildID: b.ID, Level: models.LogLevelInfo, Message: "x"})
	h := newProjectHandler(env, "", false)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/projects/"+p.ID, nil), "projectID", p.ID)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(env.store.projects) != 0 || len(env.store.builds) != 0 {
		t.Errorf("rows not cascaded: projects=%d builds=%d", len(env.store.projects), len(env.store.builds))
	}
	if len(env.deployer.deleted) != 1 || env.deployer.deleted[0] != p.ID {
		t.Errorf("engine cleanup not requested: %v", env.deployer.deleted)
	}
}

func TestDeleteProjectSurvivesEngineFailure(t *testing.T) {
	env := newTestEnv(t)
	env.deployer.deleteErr = fmt.Errorf("engine down")
	p := env.addProject(&models.Project{Name: "app", Port: 8001})
	h := newProjectHandler(env, "", false)

	req := withURLParam(httptest.NewRequest(http.MethodDelete, "/projects/"+p.ID, nil), "projectID", p.ID)
	rec := httptest.NewRecorder()
	h.Delete(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("deletion must proceed when the engine is down, status = %d", rec.Code)
	}
	if len(env.store.projects) != 0 {
		t.Errorf("project row should be gone")
	}
}

func TestStopProject(t *testing.T) {
	env := newTestEnv(t)
	p := env.addProject(&models.Project{Name: "app", Port: 8001})
	b := env.addBuild(&models.Build{ProjectID: p.ID, Status: models.BuildStatusSuccess})
	env.store.Deployments().Promote(context.Background(), p.ID, b.ID)
	h := newProjectHandler(env, "", false)

	req := withURLParam(httptest.NewRequest(http.MethodPost, "/projects/"+p.ID+"/stop", nil), "projectID", p.ID)
	rec := httptest.NewRecorder()
	h.Stop(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if len(env.deployer.stopped) != 1 {
		t.Fatalf("engine stop not requested")
	}
	if env.deployer.stopped[0].BuildID != b.ID {
		t.Errorf("stop request should carry the active build id")
	}
	if _, err := env.store.Deployments().GetActive(context.Background(), p.ID); err == nil {
		t.Errorf("active deployment should be deactivated")
	}
}
