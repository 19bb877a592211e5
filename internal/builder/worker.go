package builder

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/queue"
)

// Dequeue pacing: a short sleep when the queue is simply empty, a longer
// one when it errored.
const (
	idleSleep  = 1 * time.Second
	errorSleep = 5 * time.Second
)

// Worker consumes build jobs from the queue, one at a time. The same slot
// gates jobs arriving over HTTP, so the process never runs two builds
// concurrently.
type Worker struct {
	queue  queue.Queue
	runner *Runner
	slot   chan struct{}
	logger *slog.Logger
}

// NewWorker creates a worker. q may be nil when Redis is not configured;
// the HTTP server is then the only intake.
func NewWorker(q queue.Queue, runner *Runner, logger *slog.Logger) *Worker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Worker{
		queue:  q,
		runner: runner,
		slot:   make(chan struct{}, 1),
		logger: logger,
	}
}

// Start runs the dequeue loop until ctx is cancelled.
func (w *Worker) Start(ctx context.Context) {
	if w.queue == nil {
		w.logger.Info("no queue configured, accepting builds over HTTP only")
		<-ctx.Done()
		return
	}

	w.logger.Info("build worker started")
	for {
		select {
		case <-ctx.Done():
			w.logger.Info("build worker stopping")
			return
		default:
		}

		job, err := w.queue.Dequeue(ctx)
		if err != nil {
			if errors.Is(err, queue.ErrNoJobs) {
				sleep(ctx, idleSleep)
			} else if ctx.Err() == nil {
				w.logger.Error("dequeue failed", "error", err)
				sleep(ctx, errorSleep)
			}
			continue
		}

		w.process(ctx, job)
	}
}

// process runs one job inside the concurrency slot and settles it with the
// queue afterwards.
func (w *Worker) process(ctx context.Context, job *models.BuildJobData) {
	w.acquire()
	defer w.release()

	if err := w.runner.Run(ctx, job); err != nil {
		w.logger.Error("build failed", "build_id", job.BuildID, "error", err)
		if nackErr := w.queue.Nack(ctx, job.BuildID); nackErr != nil {
			w.logger.Error("failed to nack job", "build_id", job.BuildID, "error", nackErr)
		}
		return
	}

	if err := w.queue.Ack(ctx, job.BuildID); err != nil {
		w.logger.Error("failed to ack job", "build_id", job.BuildID, "error", err)
	}
}

func (w *Worker) acquire() { w.slot <- struct{}{} }
func (w *Worker) release() { <-w.slot }

func sleep(ctx context.Context, d time.Duration) {
	select {
	case <-time.After(d):
	case <-ctx.Done():
	}
}
