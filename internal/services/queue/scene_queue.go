package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/queue"
)

// RequestsKey is the Redis list holding pending scene runs.
const RequestsKey = "scene-requests"

// SceneQueue is the FIFO of scene run requests shared by all workers
type SceneQueue struct {
	client *Client
	logger *slog.Logger
}

func NewSceneQueue(client *Client, logger *slog.Logger) *SceneQueue {
	return &SceneQueue{
		client: client,
		logger: logger,
	}
}

// Enqueue validates req and appends it to the queue
func (q *SceneQueue) Enqueue(ctx context.Context, req *queue.Request) error {
	if err := req.Validate(); err != nil {
		return fmt.Errorf("invalid request: %w", err)
	}
	data, err := req.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize request: %w", err)
	}

	if err := q.client.rdb.RPush(ctx, RequestsKey, data).Err(); err != nil {
		q.logger.Error("Failed to enqueue request",
			"error", err,
			"request_id", req.RequestID,
			"run_id", req.RunID)
		return fmt.Errorf("failed to enqueue request: %w", err)
	}

	q.logger.Debug("Enqueued scene request",
		"request_id", req.RequestID,
		"run_id", req.RunID,
		"scenario", req.Scenario)
	return nil
}

// Dequeue removes and returns the next request. It returns nil when the
// queue is empty.
func (q *SceneQueue) Dequeue(ctx context.Context) (*queue.Request, error) {
	result, err := q.client.rdb.LPop(ctx, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}
	return q.parse(result)
}

// BlockingDequeue waits up to timeout for a request. It returns nil when the
// wait times out or ctx ends.
func (q *SceneQueue) BlockingDequeue(ctx context.Context, timeout time.Duration) (*queue.Request, error) {
	result, err := q.client.rdb.BLPop(ctx, timeout, RequestsKey).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) || ctx.Err() != nil {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to dequeue request: %w", err)
	}

	// BLPop returns [key, value]
	if len(result) != 2 {
		return nil, fmt.Errorf("unexpected BLPop result: %v", result)
	}
	return q.parse(result[1])
}

// Requeue puts req back at the tail, e.g. when its run is locked elsewhere.
func (q *SceneQueue) Requeue(ctx context.Context, req *queue.Request) error {
	return q.Enqueue(ctx, req)
}

// Depth returns the number of pending requests
func (q *SceneQueue) Depth(ctx context.Context) (int, error) {
	count, err := q.client.rdb.LLen(ctx, RequestsKey).Result()
	if err != nil {
		return 0, fmt.Errorf("failed to get queue depth: %w", err)
	}
	return int(count), nil
}

func (q *SceneQueue) parse(raw string) (*queue.Request, error) {
	req, err := queue.FromJSON([]byte(raw))
	if err != nil {
		q.logger.Error("Dropping malformed request", "error", err)
		return nil, fmt.Errorf("failed to parse request: %w", err)
	}
	return req, nil
}
