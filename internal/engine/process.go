package engine

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

const (
	processHealthTimeout   = 15 * time.Second
	containerHealthTimeout = 30 * time.Second
	healthPollInterval     = 500 * time.Millisecond

	termGrace    = 300 * time.Millisecond
	portFreeWait = 5 * time.Second
)

func (e *Engine) pidFile(projectID string) string {
	return filepath.Join(e.projectDir(projectID), "server.pid")
}

// stopProcess terminates the project's running process if its pid file
// exists: SIGTERM, a short grace, then SIGKILL. The pid file is removed
// either way.
func (e *Engine) stopProcess(projectID string) {
	pidPath := e.pidFile(projectID)

	data, err := os.ReadFile(pidPath)
	if err != nil {
		return
	}
	defer os.Remove(pidPath)

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return
	}

	// Negative pid signals the whole process group started with Setsid.
	if err := syscall.Kill(-pid, syscall.SIGTERM); err != nil {
		return
	}
	time.Sleep(termGrace)
	syscall.Kill(-pid, syscall.SIGKILL)

	e.logger.Info("stopped process", "project_id", projectID, "pid", pid)
}

// waitPortFree blocks until nothing accepts connections on the port, or
// the wait window runs out.
func waitPortFree(port int) error {
	deadline := time.Now().Add(portFreeWait)
	addr := net.JoinHostPort("127.0.0.1", strconv.Itoa(port))

	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
		if err != nil {
			return nil
		}
		conn.Close()
		time.Sleep(300 * time.Millisecond)
	}
	return fmt.Errorf("port %d still in use", port)
}

// startProcess launches the app detached in its own session, records the
// pid, and streams its output to the build's logs.
func (e *Engine) startProcess(projectID, buildID, dir string, argv []string, port int, envVars map[string]string) error {
	if len(argv) == 0 {
		return fmt.Errorf("no start command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Dir = dir
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}

	env := os.Environ()
	env = append(env, "NODE_ENV=production", fmt.Sprintf("PORT=%d", port))
	for k, v := range envVars {
		env = append(env, k+"="+v)
	}
	cmd.Env = env

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("starting app: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("starting app: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("starting app: %w", err)
	}

	go e.streamOutput(buildID, stdout, "info")
	go e.streamOutput(buildID, stderr, "warning")

	// Reap the child when it exits so it never lingers as a zombie.
	go cmd.Wait()

	pidPath := e.pidFile(projectID)
	if err := os.WriteFile(pidPath, []byte(strconv.Itoa(cmd.Process.Pid)), 0o644); err != nil {
		e.logger.Warn("failed to write pid file", "project_id", projectID, "error", err)
	}

	e.logger.Info("started process", "project_id", projectID, "pid", cmd.Process.Pid, "port", port)
	return nil
}

func (e *Engine) streamOutput(buildID string, r io.Reader, level string) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		if line := strings.TrimSpace(scanner.Text()); line != "" {
			e.sink.Send(buildID, line, level)
		}
	}
}

// waitHealthy polls the app over HTTP until any response below 500 comes
// back, or the window closes.
func waitHealthy(ctx context.Context, port int, timeout time.Duration) error {
	hc := &http.Client{Timeout: 2 * time.Second}
	url := fmt.Sprintf("http://localhost:%d/", port)

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := hc.Do(req)
		if err == nil {
			status := resp.StatusCode
			resp.Body.Close()
			if status < http.StatusInternalServerError {
				return nil
			}
		}
		time.Sleep(healthPollInterval)
	}

	return fmt.Errorf("application did not become healthy on port %d within %s", port, timeout)
}
