// Package events publishes run progress to Redis Pub/Sub so watchers can
// follow a scene as it plays.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
)

// EventType represents the type of event being broadcast
type EventType string

const (
	EventTypeRequestQueued     EventType = "request.queued"
	EventTypeRequestProcessing EventType = "request.processing"
	EventTypeRequestCompleted  EventType = "request.completed"
	EventTypeRequestFailed     EventType = "request.failed"
	// EventTypeSceneNotice carries an orchestrator.Notice in Data["notice"].
	EventTypeSceneNotice EventType = "scene.notice"
)

// Event is one message on a run channel
type Event struct {
	Type      EventType      `json:"type"`
	RequestID string         `json:"request_id,omitempty"`
	RunID     string         `json:"run_id,omitempty"`
	Data      map[string]any `json:"data,omitempty"`
}

// Channel returns the Pub/Sub channel for a run.
func Channel(runID uuid.UUID) string {
	return fmt.Sprintf("scene-events:%s", runID.String())
}

// Broadcaster publishes events to Redis Pub/Sub
type Broadcaster struct {
	redisClient *redis.Client
	logger      *slog.Logger
}

// NewBroadcaster creates a new event broadcaster
func NewBroadcaster(redisClient *redis.Client, logger *slog.Logger) *Broadcaster {
	return &Broadcaster{
		redisClient: redisClient,
		logger:      logger,
	}
}

// PublishRequestQueued publishes a request.queued event
func (b *Broadcaster) PublishRequestQueued(ctx context.Context, runID uuid.UUID, requestID, scenario string) error {
	return b.publishToRun(ctx, runID, Event{
		Type:      EventTypeRequestQueued,
		RequestID: requestID,
		Data: map[string]any{
			"status":   "queued",
			"scenario": scenario,
		},
	})
}

// PublishRequestProcessing publishes a request.processing event
func (b *Broadcaster) PublishRequestProcessing(ctx context.Context, runID uuid.UUID, requestID, workerID string) error {
	return b.publishToRun(ctx, runID, Event{
		Type:      EventTypeRequestProcessing,
		RequestID: requestID,
		Data: map[string]any{
			"status": "processing",
			"worker": workerID,
		},
	})
}

// PublishRequestCompleted publishes a request.completed event
func (b *Broadcaster) PublishRequestCompleted(ctx context.Context, runID uuid.UUID, requestID string, result map[string]any) error {
	return b.publishToRun(ctx, runID, Event{
		Type:      EventTypeRequestCompleted,
		RequestID: requestID,
		Data: map[string]any{
			"status": "completed",
			"result": result,
		},
	})
}

// PublishRequestFailed publishes a request.failed event
func (b *Broadcaster) PublishRequestFailed(ctx context.Context, runID uuid.UUID, requestID, errorMsg string) error {
	return b.publishToRun(ctx, runID, Event{
		Type:      EventTypeRequestFailed,
		RequestID: requestID,
		Data: map[string]any{
			"status": "failed",
			"error":  errorMsg,
		},
	})
}

// Observe forwards an orchestrator notice. Publish errors are logged only.
func (b *Broadcaster) Observe(ctx context.Context, n orchestrator.Notice) {
	_ = b.publishToRun(ctx, n.RunID, Event{
		Type: EventTypeSceneNotice,
		Data: map[string]any{
			"kind":   n.Kind,
			"notice": n,
		},
	})
}

func (b *Broadcaster) publishToRun(ctx context.Context, runID uuid.UUID, event Event) error {
	channel := Channel(runID)
	event.RunID = runID.String()

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("Failed to marshal event", "error", err, "event_type", event.Type)
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	if err := b.redisClient.Publish(ctx, channel, data).Err(); err != nil {
		b.logger.Error("Failed to publish event", "error", err, "channel", channel)
		return fmt.Errorf("failed to publish event: %w", err)
	}

	b.logger.Debug("Event published",
		"channel", channel,
		"event_type", event.Type,
		"request_id", event.RequestID,
	)
	return nil
}
