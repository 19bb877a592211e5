package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/thakurlabs/thakur/internal/models"
)

func checkSubdomain(t *testing.T, env *testEnv, sub string) (int, checkResponse) {
	t.Helper()
	h := NewDomainHandler(env.store, "example.com", env.logger)
	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/domains/check?subdomain="+sub, nil))

	var body checkResponse
	if rec.Code == http.StatusOK {
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decoding response: %v", err)
		}
	}
	return rec.Code, body
}

func TestCheckDomainMissingParam(t *testing.T) {
	env := newTestEnv(t)
	h := NewDomainHandler(env.store, "example.com", env.logger)

	rec := httptest.NewRecorder()
	h.Check(rec, httptest.NewRequest(http.MethodGet, "/domains/check", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestCheckDomainInvalidLabel(t *testing.T) {
	env := newTestEnv(t)

	for _, sub := range []string{"-app", "app-", "my_app", "www"} {
		code, body := checkSubdomain(t, env, sub)
		if code != http.StatusOK {
			t.Fatalf("%q: status = %d, want 200", sub, code)
		}
		if body.Available || body.Reason == "" {
			t.Errorf("%q: got %+v, want unavailable with a reason", sub, body)
		}
	}
}

func TestCheckDomainTaken(t *testing.T) {
	env := newTestEnv(t)
	taken := "app.example.com"
	env.addProject(&models.Project{Name: "first", Domain: &taken, Port: 8001})

	code, body := checkSubdomain(t, env, "app")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Available {
		t.Errorf("taken subdomain reported available")
	}
	if body.Reason != "This subdomain is already in use" {
		t.Errorf("reason = %q", body.Reason)
	}
}

func TestCheckDomainAvailable(t *testing.T) {
	env := newTestEnv(t)

	code, body := checkSubdomain(t, env, "fresh")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if !body.Available || body.Reason != "" {
		t.Errorf("got %+v, want available", body)
	}
}

func TestCheckDomainCaseInsensitive(t *testing.T) {
	env := newTestEnv(t)
	taken := "app.example.com"
	env.addProject(&models.Project{Name: "first", Domain: &taken, Port: 8001})

	code, body := checkSubdomain(t, env, "APP")
	if code != http.StatusOK {
		t.Fatalf("status = %d", code)
	}
	if body.Available {
		t.Errorf("lookup must be case-insensitive")
	}
}
