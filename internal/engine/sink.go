package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// LogSink forwards runtime and deployment lines to the control plane's log
// endpoint. Delivery is best effort: a deploy never fails because a log
// line was dropped.
type LogSink struct {
	baseURL string
	hc      *http.Client
	logger  *slog.Logger
}

// NewLogSink creates a sink posting to the control plane at baseURL. An
// empty baseURL produces a sink that discards everything.
func NewLogSink(baseURL string, logger *slog.Logger) *LogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogSink{
		baseURL: baseURL,
		hc:      &http.Client{Timeout: 10 * time.Second},
		logger:  logger,
	}
}

// Send posts a single line against the build's log stream.
func (s *LogSink) Send(buildID, message, level string) {
	if s == nil || s.baseURL == "" || message == "" {
		return
	}

	body, err := json.Marshal(map[string]string{
		"logs":  message,
		"level": level,
	})
	if err != nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	url := fmt.Sprintf("%s/builds/%s/logs", s.baseURL, buildID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.hc.Do(req)
	if err != nil {
		s.logger.Debug("log delivery failed", "build_id", buildID, "error", err)
		return
	}
	resp.Body.Close()
}
