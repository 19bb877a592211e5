// Package redis provides a Redis-backed implementation of the build queue.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/thakurlabs/thakur/internal/models"
	"github.com/thakurlabs/thakur/internal/queue"
)

// Queue key layout. Waiting and active are lists of build IDs; the JSON
// payload for each job lives under its own key so enqueueing stays
// idempotent via SET NX.
const (
	waitingKey   = "buildq:waiting"
	activeKey    = "buildq:active"
	completedKey = "buildq:completed"
	failedKey    = "buildq:failed"
	jobKeyPrefix = "buildq:job:"

	completedRetention = 100
	failedRetention    = 50
)

// RedisQueue implements queue.Queue using Redis lists. A dequeue moves the
// job ID from waiting to active atomically, so a crashed worker leaves the
// job visible on the active list instead of losing it.
type RedisQueue struct {
	client *redis.Client
	logger *slog.Logger
}

// NewRedisQueue connects to Redis using a redis:// URL and verifies the
// connection before returning.
func NewRedisQueue(url string, logger *slog.Logger) (*RedisQueue, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parsing redis url: %w", err)
	}

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("pinging redis: %w", err)
	}

	return New(client, logger), nil
}

// New wraps an existing Redis client.
func New(client *redis.Client, logger *slog.Logger) *RedisQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisQueue{client: client, logger: logger}
}

func jobKey(id string) string {
	return jobKeyPrefix + id
}

// Enqueue adds a build job to the waiting queue. Enqueueing is idempotent
// on the build ID: a job the queue already knows is left untouched.
func (q *RedisQueue) Enqueue(ctx context.Context, job *models.BuildJobData) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("marshaling job: %w", err)
	}

	set, err := q.client.SetNX(ctx, jobKey(job.BuildID), data, 0).Result()
	if err != nil {
		return fmt.Errorf("storing job payload: %w", err)
	}
	if !set {
		q.logger.Debug("build already queued", "build_id", job.BuildID)
		return nil
	}

	if err := q.client.LPush(ctx, waitingKey, job.BuildID).Err(); err != nil {
		return fmt.Errorf("pushing job onto waiting list: %w", err)
	}

	q.logger.Debug("enqueued build job", "build_id", job.BuildID)
	return nil
}

// Dequeue moves the oldest waiting job to the active list and returns its
// payload. Returns ErrNoJobs when nothing is waiting.
func (q *RedisQueue) Dequeue(ctx context.Context) (*models.BuildJobData, error) {
	id, err := q.client.LMove(ctx, waitingKey, activeKey, "RIGHT", "LEFT").Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, queue.ErrNoJobs
		}
		return nil, fmt.Errorf("moving job to active list: %w", err)
	}

	data, err := q.client.Get(ctx, jobKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			// Orphaned id without a payload; drop it.
			q.client.LRem(ctx, activeKey, 1, id)
			return nil, queue.ErrJobNotFound
		}
		return nil, fmt.Errorf("loading job payload: %w", err)
	}

	job, err := models.DecodeBuildJobData(data)
	if err != nil {
		q.client.LRem(ctx, activeKey, 1, id)
		q.client.Del(ctx, jobKey(id))
		return nil, fmt.Errorf("decoding job %s: %w", id, err)
	}

	q.logger.Debug("dequeued build job", "build_id", id)
	return job, nil
}

// Ack removes an active job and records it on the completed retention list.
func (q *RedisQueue) Ack(ctx context.Context, jobID string) error {
	removed, err := q.client.LRem(ctx, activeKey, 1, jobID).Result()
	if err != nil {
		return fmt.Errorf("removing job from active list: %w", err)
	}
	if removed == 0 {
		return queue.ErrJobNotFound
	}

	if err := q.client.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("deleting job payload: %w", err)
	}
	if err := q.client.LPush(ctx, completedKey, jobID).Err(); err != nil {
		return fmt.Errorf("recording completed job: %w", err)
	}
	if err := q.client.LTrim(ctx, completedKey, 0, completedRetention-1).Err(); err != nil {
		return fmt.Errorf("trimming completed list: %w", err)
	}

	q.logger.Debug("acknowledged build job", "build_id", jobID)
	return nil
}

// Nack retires a failed active job to the failure retention list. Failed
// builds are not requeued; the worker has already marked the build failed
// and a retry needs a fresh build.
func (q *RedisQueue) Nack(ctx context.Context, jobID string) error {
	removed, err := q.client.LRem(ctx, activeKey, 1, jobID).Result()
	if err != nil {
		return fmt.Errorf("removing job from active list: %w", err)
	}
	if removed == 0 {
		return queue.ErrJobNotFound
	}

	if err := q.client.Del(ctx, jobKey(jobID)).Err(); err != nil {
		return fmt.Errorf("deleting job payload: %w", err)
	}
	if err := q.client.LPush(ctx, failedKey, jobID).Err(); err != nil {
		return fmt.Errorf("recording failed job: %w", err)
	}
	if err := q.client.LTrim(ctx, failedKey, 0, failedRetention-1).Err(); err != nil {
		return fmt.Errorf("trimming failed list: %w", err)
	}

	q.logger.Debug("nacked build job", "build_id", jobID)
	return nil
}

// Drain removes every waiting job and its payload, returning the count.
// Active jobs stay in flight.
func (q *RedisQueue) Drain(ctx context.Context) (int, error) {
	count := 0
	for {
		id, err := q.client.RPop(ctx, waitingKey).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				break
			}
			return count, fmt.Errorf("popping waiting job: %w", err)
		}

		if err := q.client.Del(ctx, jobKey(id)).Err(); err != nil {
			return count, fmt.Errorf("deleting job payload: %w", err)
		}
		count++
	}

	if count > 0 {
		q.logger.Info("drained build queue", "dropped", count)
	}
	return count, nil
}

// Stats returns the waiting and active list depths.
func (q *RedisQueue) Stats(ctx context.Context) (*queue.Stats, error) {
	waiting, err := q.client.LLen(ctx, waitingKey).Result()
	if err != nil {
		return nil, fmt.Errorf("measuring waiting list: %w", err)
	}
	active, err := q.client.LLen(ctx, activeKey).Result()
	if err != nil {
		return nil, fmt.Errorf("measuring active list: %w", err)
	}
	return &queue.Stats{Waiting: waiting, Active: active}, nil
}

// Close releases the underlying Redis connection.
func (q *RedisQueue) Close() error {
	return q.client.Close()
}
