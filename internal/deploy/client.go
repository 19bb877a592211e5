package deploy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"
)

// Per-call deadlines. Activation covers extraction, process start, and the
// health-check window, so it gets the long one.
const (
	checkPortTimeout = 10 * time.Second
	activateTimeout  = 2 * time.Minute
	stopTimeout      = 30 * time.Second
	deleteTimeout    = 30 * time.Second
)

// HTTPDeployer implements Deployer over the deploy engine's REST surface.
type HTTPDeployer struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewHTTPDeployer creates a client for the deploy engine at baseURL.
func NewHTTPDeployer(baseURL string, logger *slog.Logger) *HTTPDeployer {
	if logger == nil {
		logger = slog.Default()
	}
	return &HTTPDeployer{
		baseURL: baseURL,
		hc:      &http.Client{},
		logger:  logger,
	}
}

// CheckPort reports whether the port is free on the deploy host.
func (d *HTTPDeployer) CheckPort(ctx context.Context, port int) (bool, error) {
	var result struct {
		Available bool `json:"available"`
	}
	err := d.post(ctx, checkPortTimeout, "/ports/check", map[string]int{"port": port}, &result)
	if err != nil {
		return false, err
	}
	return result.Available, nil
}

// Activate extracts the build's artifact and starts it on the port.
func (d *HTTPDeployer) Activate(ctx context.Context, req *ActivateRequest) error {
	return d.post(ctx, activateTimeout, "/activate", req, nil)
}

// Stop stops the process or container serving the port.
func (d *HTTPDeployer) Stop(ctx context.Context, req *StopRequest) error {
	return d.post(ctx, stopTimeout, "/stop", req, nil)
}

// DeleteProject removes the project tree, artifacts, and proxy rule.
func (d *HTTPDeployer) DeleteProject(ctx context.Context, projectID string, req *DeleteRequest) error {
	return d.post(ctx, deleteTimeout, "/projects/"+projectID+"/delete", req, nil)
}

func (d *HTTPDeployer) post(ctx context.Context, timeout time.Duration, path string, body, result any) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.hc.Do(req)
	if err != nil {
		return fmt.Errorf("calling deploy engine %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var engineErr struct {
			Message string `json:"message"`
		}
		data, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(data, &engineErr) == nil && engineErr.Message != "" {
			return fmt.Errorf("deploy engine %s: %s", path, engineErr.Message)
		}
		return fmt.Errorf("deploy engine %s: status %d", path, resp.StatusCode)
	}

	if result != nil {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
			return fmt.Errorf("decoding deploy engine response: %w", err)
		}
	}

	return nil
}
