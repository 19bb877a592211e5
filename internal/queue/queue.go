// Package queue provides build job queue interfaces and implementations.
package queue

import (
	"context"
	"errors"

	"github.com/thakurlabs/thakur/internal/models"
)

// Common errors returned by queue operations.
var (
	// ErrNoJobs is returned when no jobs are waiting in the queue.
	ErrNoJobs = errors.New("no jobs available")
	// ErrJobNotFound is returned when a job cannot be found.
	ErrJobNotFound = errors.New("job not found")
)

// Stats reports queue depths for the internal status endpoint.
type Stats struct {
	Waiting int64 `json:"waiting"`
	Active  int64 `json:"active"`
}

// Queue defines the interface for build job queue operations. Jobs are
// keyed by build ID; enqueueing the same build twice is a no-op.
type Queue interface {
	// Enqueue adds a build job to the waiting queue.
	// The job is serialized to JSON for storage.
	Enqueue(ctx context.Context, job *models.BuildJobData) error

	// Dequeue retrieves the next waiting job and marks it active.
	// Returns ErrNoJobs if no jobs are waiting.
	Dequeue(ctx context.Context) (*models.BuildJobData, error)

	// Ack acknowledges successful processing of an active job.
	Ack(ctx context.Context, jobID string) error

	// Nack records that processing of an active job failed. The job is
	// retired to the failure retention list, not retried: the worker has
	// already reported the build failed.
	Nack(ctx context.Context, jobID string) error

	// Drain removes every waiting job and returns how many were dropped.
	// Active jobs are left untouched.
	Drain(ctx context.Context) (int, error)

	// Stats returns current queue depths.
	Stats(ctx context.Context) (*Stats, error)

	// Close releases the queue's connection.
	Close() error
}
