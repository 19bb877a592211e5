package builder

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/thakurlabs/thakur/internal/models"
)

// flushInterval is how long buffered log lines wait before shipping. The
// timer starts at the first buffered line, so a burst of output becomes one
// POST per level instead of one per line.
const flushInterval = 300 * time.Millisecond

type bufferedLine struct {
	message string
	level   models.LogLevel
}

// LogStreamer batches a build's log lines and ships them to the control
// plane grouped by level. Delivery failures are logged and dropped; a build
// never fails because its logs could not be shipped.
type LogStreamer struct {
	client  *ControlPlaneClient
	buildID string
	logger  *slog.Logger

	mu     sync.Mutex
	buffer []bufferedLine
	timer  *time.Timer
}

// NewLogStreamer creates a streamer for one build's output.
func NewLogStreamer(client *ControlPlaneClient, buildID string, logger *slog.Logger) *LogStreamer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogStreamer{
		client:  client,
		buildID: buildID,
		logger:  logger,
	}
}

// Send buffers one log line. The first line buffered arms the flush timer.
func (s *LogStreamer) Send(message string, level models.LogLevel) {
	if strings.TrimSpace(message) == "" {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.buffer = append(s.buffer, bufferedLine{message: message, level: level})
	if s.timer == nil {
		s.timer = time.AfterFunc(flushInterval, func() {
			s.Flush(context.Background())
		})
	}
}

// Flush ships everything buffered, one POST per level, preserving the order
// lines arrived within each level.
func (s *LogStreamer) Flush(ctx context.Context) {
	s.mu.Lock()
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
	buffered := s.buffer
	s.buffer = nil
	s.mu.Unlock()

	if len(buffered) == 0 {
		return
	}

	grouped := make(map[models.LogLevel][]string)
	var order []models.LogLevel
	for _, line := range buffered {
		if _, seen := grouped[line.level]; !seen {
			order = append(order, line.level)
		}
		grouped[line.level] = append(grouped[line.level], line.message)
	}

	for _, level := range order {
		joined := strings.Join(grouped[level], "\n")
		if err := s.client.PostLogs(ctx, s.buildID, joined, level); err != nil {
			s.logger.Error("failed to ship build logs",
				"build_id", s.buildID,
				"level", level,
				"error", err,
			)
		}
	}
}
