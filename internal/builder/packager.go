package builder

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/docker/docker/pkg/archive"
	"github.com/thakurlabs/thakur/internal/models"
)

// artifactIncludes lists what each framework ships. Entries that do not
// exist in the project tree are skipped; glob entries are expanded.
var artifactIncludes = map[models.Framework][]string{
	models.FrameworkNextJS: {
		".next",
		"public",
		"package.json",
		"bun.lockb",
		"next.config.*",
		"out",
	},
	models.FrameworkVite: {
		"dist",
	},
}

// backendIncludes is shared by every server framework: compiled output,
// source, and the manifests needed for a production install.
var backendIncludes = []string{
	"dist",
	"build",
	"src",
	"lib",
	"api",
	"package.json",
	"package-lock.json",
	"bun.lockb",
	"tsconfig.json",
}

// PackageArtifact produces the gzipped tarball for a finished build. For
// backends, entryFile (and its parent directory) is added to the include
// set so the deploy engine can always start the app.
func PackageArtifact(projectDir string, framework models.Framework, entryFile string) (io.ReadCloser, error) {
	patterns, ok := artifactIncludes[framework]
	if !ok {
		patterns = append([]string(nil), backendIncludes...)
		if entryFile != "" {
			patterns = append(patterns, entryFile)
			if parent := filepath.Dir(entryFile); parent != "." {
				patterns = append(patterns, parent)
			}
		}
	}

	includes := resolveIncludes(projectDir, patterns)
	if len(includes) == 0 {
		return nil, fmt.Errorf("nothing to package in %s for framework %s", projectDir, framework)
	}

	reader, err := archive.TarWithOptions(projectDir, &archive.TarOptions{
		Compression:  archive.Gzip,
		IncludeFiles: includes,
	})
	if err != nil {
		return nil, fmt.Errorf("creating artifact archive: %w", err)
	}
	return reader, nil
}

// resolveIncludes keeps only patterns that match something on disk,
// expanding globs and dropping duplicates while preserving order.
func resolveIncludes(projectDir string, patterns []string) []string {
	seen := make(map[string]struct{})
	var out []string

	add := func(rel string) {
		if _, dup := seen[rel]; dup {
			return
		}
		seen[rel] = struct{}{}
		out = append(out, rel)
	}

	for _, pattern := range patterns {
		if hasGlobMeta(pattern) {
			matches, err := filepath.Glob(filepath.Join(projectDir, pattern))
			if err != nil {
				continue
			}
			for _, m := range matches {
				if rel, err := filepath.Rel(projectDir, m); err == nil {
					add(rel)
				}
			}
			continue
		}

		if _, err := os.Stat(filepath.Join(projectDir, pattern)); err == nil {
			add(pattern)
		}
	}

	return out
}

func hasGlobMeta(pattern string) bool {
	for _, c := range pattern {
		if c == '*' || c == '?' || c == '[' {
			return true
		}
	}
	return false
}
