package deploy

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

const (
	workerTriggerAttempts = 3
	workerAttemptTimeout  = 10 * time.Second
)

// WorkerClient submits build jobs to the build worker over HTTP. It is the
// fallback path when no Redis queue is configured.
type WorkerClient struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewWorkerClient creates a client for the build worker at baseURL.
func NewWorkerClient(baseURL string, logger *slog.Logger) *WorkerClient {
	if logger == nil {
		logger = slog.Default()
	}
	return &WorkerClient{
		baseURL: baseURL,
		hc:      &http.Client{},
		logger:  logger,
	}
}

// Trigger hands a build job to the worker. The worker accepts with 202 and
// runs the build asynchronously. Retries up to 3 times with doubling
// backoff before giving up.
func (w *WorkerClient) Trigger(ctx context.Context, job *models.BuildJobData) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling build job: %w", err)
	}

	backoff := time.Second
	var lastErr error
	for attempt := 1; attempt <= workerTriggerAttempts; attempt++ {
		lastErr = w.submit(ctx, payload)
		if lastErr == nil {
			return nil
		}

		w.logger.Warn("build worker submission failed",
			"build_id", job.BuildID,
			"attempt", attempt,
			"error", lastErr,
		)

		if attempt < workerTriggerAttempts {
			select {
			case <-time.After(backoff):
			case <-ctx.Done():
				return ctx.Err()
			}
			backoff *= 2
		}
	}

	return fmt.Errorf("triggering build after %d attempts: %w", workerTriggerAttempts, lastErr)
}

func (w *WorkerClient) submit(ctx context.Context, payload []byte) error {
	ctx, cancel := context.WithTimeout(ctx, workerAttemptTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL+"/build", bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.hc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusAccepted {
		return fmt.Errorf("worker returned status %d", resp.StatusCode)
	}

	return nil
}
