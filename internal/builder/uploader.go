package builder

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// EngineClient uploads finished artifacts to the deploy engine. Uploads
// stream without a client-side deadline; large artifacts take what they
// take, and cancellation comes from the job context.
type EngineClient struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewEngineClient creates a client for the deploy engine at baseURL.
func NewEngineClient(baseURL string, logger *slog.Logger) *EngineClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &EngineClient{
		baseURL: baseURL,
		hc:      &http.Client{},
		logger:  logger,
	}
}

// UploadArtifact streams a gzipped tarball to the engine's artifact store.
func (c *EngineClient) UploadArtifact(ctx context.Context, buildID string, artifact io.Reader) error {
	uploadURL := c.baseURL + "/artifacts/upload?buildId=" + url.QueryEscape(buildID)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, uploadURL, artifact)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/gzip")

	resp, err := c.hc.Do(req)
	if err != nil {
		return fmt.Errorf("uploading artifact: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("artifact upload failed: status %d", resp.StatusCode)
	}

	c.logger.Info("artifact uploaded", "build_id", buildID)
	return nil
}
