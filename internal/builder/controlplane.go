// Package builder runs build jobs: clone, install, build, package, upload,
// with logs and status reported back to the control plane.
package builder

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/thakurlabs/thakur/internal/models"
)

// ControlPlaneClient reports build logs and status transitions to the
// control plane's internal endpoints.
type ControlPlaneClient struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewControlPlaneClient creates a client for the control plane at baseURL.
func NewControlPlaneClient(baseURL string, logger *slog.Logger) *ControlPlaneClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &ControlPlaneClient{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// PostLogs sends one or more newline-separated log lines at a single level.
func (c *ControlPlaneClient) PostLogs(ctx context.Context, buildID, logLines string, level models.LogLevel) error {
	body := map[string]string{
		"logs":  logLines,
		"level": string(level),
	}
	return c.post(ctx, http.MethodPost, "/builds/"+buildID+"/logs", body)
}

// SetStatus transitions the build's status on the control plane. A success
// transition triggers auto-activation there.
func (c *ControlPlaneClient) SetStatus(ctx context.Context, buildID string, status models.BuildStatus) error {
	body := map[string]string{"status": string(status)}
	return c.post(ctx, http.MethodPut, "/builds/"+buildID, body)
}

func (c *ControlPlaneClient) post(ctx context.Context, method, path string, body any) error {
	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("marshaling request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("calling control plane %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("control plane %s: status %d", path, resp.StatusCode)
	}
	return nil
}
