package engine

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func writeStaticSite(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	return dir
}

func TestStaticHandlerServesFiles(t *testing.T) {
	dir := writeStaticSite(t, map[string]string{
		"index.html":     "<html>home</html>",
		"assets/app.js":  "console.log(1)",
		"assets/app.css": "body{}",
	})
	h := NewStaticHandler(dir)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/assets/app.js", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "console.log") {
		t.Errorf("body = %q", rec.Body.String())
	}
}

func TestStaticHandlerCacheHeaders(t *testing.T) {
	dir := writeStaticSite(t, map[string]string{
		"index.html":    "<html>home</html>",
		"assets/app.js": "console.log(1)",
		"logo.svg":      "<svg/>",
	})
	h := NewStaticHandler(dir)

	tests := []struct {
		path string
		want string
	}{
		{path: "/assets/app.js", want: "public, max-age=31536000, immutable"},
		{path: "/logo.svg", want: "public, max-age=31536000, immutable"},
		{path: "/index.html", want: "no-cache"},
		{path: "/", want: "no-cache"},
	}

	for _, tt := range tests {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if got := rec.Header().Get("Cache-Control"); got != tt.want {
			t.Errorf("%s: Cache-Control = %q, want %q", tt.path, got, tt.want)
		}
	}
}

func TestStaticHandlerSPAFallback(t *testing.T) {
	dir := writeStaticSite(t, map[string]string{
		"index.html": "<html>app shell</html>",
	})
	h := NewStaticHandler(dir)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/settings/profile", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want the app shell", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "app shell") {
		t.Errorf("body = %q", rec.Body.String())
	}
	if got := rec.Header().Get("Cache-Control"); got != "no-cache" {
		t.Errorf("fallback Cache-Control = %q, want no-cache", got)
	}
}

func TestStaticHandlerNoIndex(t *testing.T) {
	dir := writeStaticSite(t, map[string]string{"readme.txt": "hi"})
	h := NewStaticHandler(dir)

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404 without an index.html", rec.Code)
	}
}

func TestStaticHandlerBlocksTraversal(t *testing.T) {
	parent := t.TempDir()
	if err := os.WriteFile(filepath.Join(parent, "secret.txt"), []byte("secret"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	root := filepath.Join(parent, "site")
	if err := os.MkdirAll(root, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(root, "index.html"), []byte("shell"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	h := NewStaticHandler(root)

	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.URL.Path = "/../secret.txt"
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if strings.Contains(rec.Body.String(), "secret") {
		t.Fatal("path traversal escaped the root")
	}
}
