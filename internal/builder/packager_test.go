package builder

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/thakurlabs/thakur/internal/models"
)

func writeTree(t *testing.T, dir string, paths ...string) {
	t.Helper()
	for _, rel := range paths {
		path := filepath.Join(dir, rel)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir: %v", err)
		}
		if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
}

func TestResolveIncludesSkipsMissing(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "dist/index.html", "package.json")

	got := resolveIncludes(dir, []string{"dist", "build", "package.json", "bun.lockb"})
	want := []string{"dist", "package.json"}
	if len(got) != len(want) {
		t.Fatalf("includes = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("includes = %v, want %v", got, want)
		}
	}
}

func TestResolveIncludesExpandsGlobs(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "next.config.mjs", "next.config.backup.js")

	got := resolveIncludes(dir, []string{"next.config.*"})
	if len(got) != 2 {
		t.Fatalf("includes = %v, want both config files", got)
	}
	for _, rel := range got {
		if !strings.HasPrefix(rel, "next.config.") {
			t.Errorf("unexpected include %q", rel)
		}
	}
}

func TestResolveIncludesDropsDuplicates(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "src/index.ts")

	got := resolveIncludes(dir, []string{"src", "src"})
	if len(got) != 1 {
		t.Errorf("includes = %v, want src once", got)
	}
}

func TestPackageArtifactVite(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "dist/index.html", "dist/assets/app.js", "src/main.ts")

	reader, err := PackageArtifact(dir, models.FrameworkVite, "")
	if err != nil {
		t.Fatalf("PackageArtifact: %v", err)
	}
	defer reader.Close()

	// The stream must be a readable gzip tarball.
	buf := make([]byte, 2)
	if _, err := reader.Read(buf); err != nil {
		t.Fatalf("reading artifact: %v", err)
	}
	if buf[0] != 0x1f || buf[1] != 0x8b {
		t.Errorf("artifact is not gzip, leading bytes %x", buf)
	}
}

func TestPackageArtifactBackendAddsEntryFile(t *testing.T) {
	dir := t.TempDir()
	writeTree(t, dir, "package.json", "server/boot.ts")

	reader, err := PackageArtifact(dir, models.FrameworkElysia, "server/boot.ts")
	if err != nil {
		t.Fatalf("PackageArtifact: %v", err)
	}
	reader.Close()
}

func TestPackageArtifactEmptyTree(t *testing.T) {
	dir := t.TempDir()

	if _, err := PackageArtifact(dir, models.FrameworkVite, ""); err == nil {
		t.Fatal("an empty tree has nothing to package")
	}
}
