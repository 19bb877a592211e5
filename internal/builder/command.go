package builder

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/thakurlabs/thakur/internal/models"
)

// commandTimeout bounds every build step. Exceeding it fails the build with
// an explicit timeout message rather than a generic kill.
const commandTimeout = 5 * time.Minute

// ErrCommandTimeout is returned when a build step exceeds its deadline.
var ErrCommandTimeout = errors.New("Command timed out after 5 minutes")

// RunCommand executes a shell command in dir with the given extra
// environment, streaming stdout lines at info level and stderr lines at
// warning level. Blank lines are dropped.
func (r *Runner) RunCommand(ctx context.Context, dir, command string, env map[string]string, stream *LogStreamer) error {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "sh", "-c", command)
	// SIGTERM first so the build tool can clean up; SIGKILL only after the
	// wait delay if it ignores the signal.
	cmd.Cancel = func() error {
		return cmd.Process.Signal(syscall.SIGTERM)
	}
	cmd.WaitDelay = 10 * time.Second
	cmd.Dir = dir
	cmd.Env = os.Environ()
	for k, v := range env {
		cmd.Env = append(cmd.Env, k+"="+v)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("attaching stdout: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("attaching stderr: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting command: %w", err)
	}

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stdout)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); strings.TrimSpace(line) != "" {
				stream.Send(line, models.LogLevelInfo)
			}
		}
	}()
	go func() {
		defer wg.Done()
		scanner := bufio.NewScanner(stderr)
		scanner.Buffer(make([]byte, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := scanner.Text(); strings.TrimSpace(line) != "" {
				stream.Send(line, models.LogLevelWarning)
			}
		}
	}()
	wg.Wait()

	err = cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		return ErrCommandTimeout
	}
	if err != nil {
		return fmt.Errorf("command %q: %w", command, err)
	}
	return nil
}
