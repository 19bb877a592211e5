// Package clone provides git repository cloning for the build worker.
package clone

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// Error represents a detailed error from a git clone operation. Stderr is
// scrubbed of any access token before the error is constructed.
type Error struct {
	// GitURL is the URL that was being cloned, without credentials
	GitURL string

	// Stderr contains the git stderr output
	Stderr string

	// ExitCode is the exit code from git
	ExitCode int

	// Err is the underlying error
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Stderr != "" {
		return fmt.Sprintf("git clone failed (exit %d): %s", e.ExitCode, strings.TrimSpace(e.Stderr))
	}
	if e.Err != nil {
		return fmt.Sprintf("git clone failed: %v", e.Err)
	}
	return fmt.Sprintf("git clone failed with exit code %d", e.ExitCode)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Repository shallow-clones a repository into destPath, which is removed
// first if present. A non-empty token is injected into the clone URL as an
// x-access-token credential; it never appears in errors or logs.
func Repository(ctx context.Context, gitURL, token, destPath string) error {
	if err := os.RemoveAll(destPath); err != nil {
		return &Error{GitURL: gitURL, Err: fmt.Errorf("removing destination: %w", err)}
	}
	if err := os.MkdirAll(filepath.Dir(destPath), 0o755); err != nil {
		return &Error{GitURL: gitURL, Err: fmt.Errorf("creating destination directory: %w", err)}
	}

	cloneURL := gitURL
	if token != "" {
		cloneURL = injectToken(gitURL, token)
	}

	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, "git", "clone", "--depth", "1", cloneURL, destPath)
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := 1
		if exitErr, ok := err.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
		return &Error{
			GitURL:   gitURL,
			Stderr:   scrub(stderr.String(), token),
			ExitCode: exitCode,
			Err:      err,
		}
	}

	return nil
}

// injectToken rewrites an https clone URL to carry an installation token.
func injectToken(gitURL, token string) string {
	rest, ok := strings.CutPrefix(gitURL, "https://")
	if !ok {
		return gitURL
	}
	return "https://x-access-token:" + token + "@" + rest
}

// scrub removes the token from git output before it reaches errors or logs.
func scrub(s, token string) string {
	if token == "" {
		return s
	}
	return strings.ReplaceAll(s, token, "[REDACTED]")
}
