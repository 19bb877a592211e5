package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func loggedOutput(t *testing.T, path string, status int) string {
	t.Helper()
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	h := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(status)
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	return buf.String()
}

func TestRequestLoggerRecordsRequest(t *testing.T) {
	out := loggedOutput(t, "/projects", http.StatusOK)

	for _, want := range []string{"method=GET", "path=/projects", "status=200"} {
		if !strings.Contains(out, want) {
			t.Errorf("log line missing %q: %s", want, out)
		}
	}
}

func TestRequestLoggerSkipsProbes(t *testing.T) {
	for _, path := range []string{"/health", "/ready"} {
		if out := loggedOutput(t, path, http.StatusOK); out != "" {
			t.Errorf("%s should not be logged, got %s", path, out)
		}
	}
}

func TestRequestLoggerErrorLevelOnServerFailure(t *testing.T) {
	out := loggedOutput(t, "/projects", http.StatusBadGateway)

	if !strings.Contains(out, "level=ERROR") {
		t.Errorf("5xx responses should log at error level: %s", out)
	}
}
