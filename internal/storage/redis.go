package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/jwebster45206/scene-engine/pkg/storage"
)

// DefaultRunTTL is how long a run survives in Redis after its last snapshot.
const DefaultRunTTL = 24 * time.Hour

const runIndexKey = "sceneruns"

// RedisStorage implements the Storage interface using Redis for runs
// and the filesystem for static resources (scenarios, narrators)
type RedisStorage struct {
	client  *redis.Client
	logger  *slog.Logger
	dataDir string
	ttl     time.Duration
}

// Ensure RedisStorage implements Storage interface
var _ storage.Storage = (*RedisStorage)(nil)

// NewRedisStorage creates a new Redis storage instance. redisURL may be a
// redis:// URL or a bare host:port.
func NewRedisStorage(redisURL string, dataDir string, logger *slog.Logger) *RedisStorage {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		opts = &redis.Options{Addr: redisURL}
	}
	return NewRedisStorageWithClient(redis.NewClient(opts), dataDir, logger)
}

// NewRedisStorageWithClient wraps an existing client.
func NewRedisStorageWithClient(client *redis.Client, dataDir string, logger *slog.Logger) *RedisStorage {
	if dataDir == "" {
		dataDir = "./data"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisStorage{
		client:  client,
		logger:  logger,
		dataDir: dataDir,
		ttl:     DefaultRunTTL,
	}
}

// SetTTL changes the run expiry. Zero or less keeps the default.
func (r *RedisStorage) SetTTL(ttl time.Duration) {
	if ttl > 0 {
		r.ttl = ttl
	}
}

// Client exposes the underlying client so the queue, broadcaster and run
// locks can share one connection pool.
func (r *RedisStorage) Client() *redis.Client {
	return r.client
}

// Health and lifecycle methods

func (r *RedisStorage) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}

func (r *RedisStorage) Close() error {
	if err := r.client.Close(); err != nil {
		r.logger.Error("Failed to close Redis connection", "error", err)
		return err
	}
	r.logger.Info("Redis connection closed")
	return nil
}

// WaitForConnection waits for Redis to become available (used during startup)
func (r *RedisStorage) WaitForConnection(ctx context.Context) error {
	maxRetries := 30
	retryDelay := 2 * time.Second

	for i := 0; i < maxRetries; i++ {
		if err := r.Ping(ctx); err != nil {
			r.logger.Debug("Redis not ready yet", "error", err, "attempt", i+1)

			select {
			case <-ctx.Done():
				return fmt.Errorf("context cancelled while waiting for redis: %w", ctx.Err())
			case <-time.After(retryDelay):
				continue
			}
		}

		r.logger.Info("Redis connection established")
		return nil
	}

	return fmt.Errorf("redis did not become available after %d attempts", maxRetries)
}

func runKey(id uuid.UUID) string {
	return "scenerun:" + id.String()
}

func eventsKey(id uuid.UUID) string {
	return runKey(id) + ":events"
}

// Run operations (Redis-backed)

// SaveSnapshot overwrites the run document and appends the snapshot's event
// to the run timeline in one transaction.
func (r *RedisStorage) SaveSnapshot(ctx context.Context, snap orchestrator.Snapshot) error {
	if snap.Scene == nil {
		return errors.New("snapshot scene cannot be nil")
	}
	data, err := json.Marshal(snap.Scene)
	if err != nil {
		r.logger.Error("Failed to marshal scene", "run_id", snap.RunID, "error", err)
		return fmt.Errorf("failed to marshal scene: %w", err)
	}
	var event []byte
	if snap.Event != nil {
		if event, err = json.Marshal(snap.Event); err != nil {
			return fmt.Errorf("failed to marshal event: %w", err)
		}
	}

	_, err = r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, runKey(snap.RunID), data, r.ttl)
		if event != nil {
			pipe.RPush(ctx, eventsKey(snap.RunID), event)
			pipe.Expire(ctx, eventsKey(snap.RunID), r.ttl)
		}
		pipe.ZAdd(ctx, runIndexKey, redis.Z{
			Score:  float64(snap.At.UnixMilli()),
			Member: snap.RunID.String(),
		})
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to save snapshot", "run_id", snap.RunID, "turn", snap.Turn, "error", err)
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

func (r *RedisStorage) LoadRun(ctx context.Context, id uuid.UUID) (*state.SceneState, error) {
	data, err := r.client.Get(ctx, runKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
		}
		r.logger.Error("Failed to load run", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to load run: %w", err)
	}

	var s state.SceneState
	if err := json.Unmarshal(data, &s); err != nil {
		r.logger.Error("Failed to unmarshal run", "run_id", id, "error", err)
		return nil, fmt.Errorf("failed to unmarshal run: %w", err)
	}
	return &s, nil
}

func (r *RedisStorage) LoadEvents(ctx context.Context, id uuid.UUID) ([]state.Event, error) {
	n, err := r.client.Exists(ctx, runKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to check run: %w", err)
	}
	if n == 0 {
		return nil, fmt.Errorf("run %s: %w", id, storage.ErrNotFound)
	}

	raw, err := r.client.LRange(ctx, eventsKey(id), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load events: %w", err)
	}
	events := make([]state.Event, 0, len(raw))
	for _, item := range raw {
		var ev state.Event
		if err := json.Unmarshal([]byte(item), &ev); err != nil {
			r.logger.Warn("Skipping malformed event", "run_id", id, "error", err)
			continue
		}
		events = append(events, ev)
	}
	return events, nil
}

// ListRuns returns the stored runs, newest snapshot first. Index entries whose
// run has expired are pruned.
func (r *RedisStorage) ListRuns(ctx context.Context) ([]storage.RunSummary, error) {
	ids, err := r.client.ZRevRange(ctx, runIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	if len(ids) == 0 {
		return []storage.RunSummary{}, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = "scenerun:" + id
	}
	values, err := r.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load runs: %w", err)
	}

	summaries := make([]storage.RunSummary, 0, len(values))
	var expired []any
	for i, v := range values {
		data, ok := v.(string)
		if !ok {
			expired = append(expired, ids[i])
			continue
		}
		var s state.SceneState
		if err := json.Unmarshal([]byte(data), &s); err != nil {
			r.logger.Warn("Skipping malformed run", "run_id", ids[i], "error", err)
			continue
		}
		summaries = append(summaries, storage.Summarize(&s))
	}
	if len(expired) > 0 {
		if err := r.client.ZRem(ctx, runIndexKey, expired...).Err(); err != nil {
			r.logger.Warn("Failed to prune run index", "error", err)
		}
	}
	return summaries, nil
}

func (r *RedisStorage) DeleteRun(ctx context.Context, id uuid.UUID) error {
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, runKey(id), eventsKey(id))
		pipe.ZRem(ctx, runIndexKey, id.String())
		return nil
	})
	if err != nil {
		r.logger.Error("Failed to delete run", "run_id", id, "error", err)
		return fmt.Errorf("failed to delete run: %w", err)
	}
	return nil
}
