package validation

import (
	"path"
	"strings"

	"github.com/thakurlabs/thakur/internal/models"
)

// MaxProjectNameLength is the maximum allowed length for a project name.
const MaxProjectNameLength = 100

// ValidateProjectName validates that a project name is present and sane.
func ValidateProjectName(name string) error {
	if strings.TrimSpace(name) == "" {
		return &models.ValidationError{
			Field:   "name",
			Message: "project name is required",
		}
	}

	if len(name) > MaxProjectNameLength {
		return &models.ValidationError{
			Field:   "name",
			Message: "project name must be 100 characters or less",
		}
	}

	return nil
}

// ValidateFramework validates that the framework is supported.
func ValidateFramework(f models.Framework) error {
	if !f.Valid() {
		return &models.ValidationError{
			Field:   "app_type",
			Message: "framework must be one of nextjs, vite, express, hono, elysia",
		}
	}
	return nil
}

// ValidateRootDirectory ensures the root directory stays inside the
// checkout. Absolute paths and parent traversal are rejected.
func ValidateRootDirectory(dir string) error {
	if dir == "" || dir == "./" || dir == "." {
		return nil
	}

	if strings.HasPrefix(dir, "/") {
		return &models.ValidationError{
			Field:   "root_directory",
			Message: "root directory must be relative",
		}
	}

	cleaned := path.Clean(dir)
	if cleaned == ".." || strings.HasPrefix(cleaned, "../") {
		return &models.ValidationError{
			Field:   "root_directory",
			Message: "root directory cannot escape the repository",
		}
	}

	return nil
}
