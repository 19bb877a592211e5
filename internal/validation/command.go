package validation

import (
	"strings"

	"github.com/thakurlabs/thakur/internal/models"
)

// allowedCommandPrefixes are the only executables a build command segment
// may start with.
var allowedCommandPrefixes = map[string]struct{}{
	"npm":  {},
	"yarn": {},
	"pnpm": {},
	"bun":  {},
	"echo": {},
	"ls":   {},
}

// bannedCommandPatterns reject a build command outright wherever they
// appear in the full string.
var bannedCommandPatterns = []string{
	"rm -rf",
	"sudo",
	"wget",
	"curl",
	"eval",
	"|",
	";",
	">",
	"<",
	"/etc/passwd",
	"/etc/shadow",
	"/bin/sh",
	"/bin/bash",
}

// ValidateBuildCommand checks a project's build command against the
// allow-list. The command is split on "&&"; every non-empty segment must
// start with an allowed executable, and the whole string must be free of
// banned patterns.
func ValidateBuildCommand(command string) error {
	if strings.TrimSpace(command) == "" {
		return &models.ValidationError{
			Field:   "build_command",
			Message: "build command is required",
		}
	}

	for _, pattern := range bannedCommandPatterns {
		if strings.Contains(command, pattern) {
			return &models.ValidationError{
				Field:   "build_command",
				Message: "build command contains a disallowed pattern: " + pattern,
			}
		}
	}

	for _, segment := range strings.Split(command, "&&") {
		fields := strings.Fields(segment)
		if len(fields) == 0 {
			continue
		}
		if _, ok := allowedCommandPrefixes[fields[0]]; !ok {
			return &models.ValidationError{
				Field:   "build_command",
				Message: "build command segment must start with one of npm, yarn, pnpm, bun, echo, ls",
			}
		}
	}

	return nil
}
