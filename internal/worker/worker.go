// Package worker pulls scene run requests off the Redis queue and plays them.
package worker

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const (
	workerTimeout = 5 * time.Second
	// LockTTL bounds how long a crashed worker can hold a run. A live run
	// refreshes it every third of the TTL, independent of turn length.
	LockTTL = 30 * time.Second
	// RunWait is how long a dequeued request waits for a free run before it
	// goes back on the queue for another worker.
	RunWait = 20 * time.Second
)

var releaseLock = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("del", KEYS[1])
	else
		return 0
	end
`)

// Worker processes scene requests from the queue. Slots loops run side by
// side and share no scene state. At most maxRuns scenes play at once; a
// slot that dequeues while every run is busy waits up to RunWait.
type Worker struct {
	id          string
	slots       int
	maxRuns     int
	lockTTL     time.Duration
	queue       *queue.SceneQueue
	runner      *SceneRunner
	broadcaster *events.Broadcaster
	redisClient *redis.Client
	bulkhead    bulkhead.Bulkhead[*state.SceneState]
	log         *slog.Logger
	ctx         context.Context
	cancel      context.CancelFunc
}

// New creates a new worker instance. slots below 1 are treated as 1;
// maxRuns outside 1..slots is treated as slots.
func New(sceneQueue *queue.SceneQueue, runner *SceneRunner, broadcaster *events.Broadcaster, redisClient *redis.Client, log *slog.Logger, workerID string, slots, maxRuns int) *Worker {
	ctx, cancel := context.WithCancel(context.Background())

	if workerID == "" {
		workerID = fmt.Sprintf("worker-%s", uuid.New().String()[:8])
	}
	if slots < 1 {
		slots = 1
	}
	if maxRuns < 1 || maxRuns > slots {
		maxRuns = slots
	}

	w := &Worker{
		id:          workerID,
		slots:       slots,
		maxRuns:     maxRuns,
		lockTTL:     LockTTL,
		queue:       sceneQueue,
		runner:      runner,
		broadcaster: broadcaster,
		redisClient: redisClient,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
	w.bulkhead = newRunLimit(maxRuns, slots, RunWait, log)
	return w
}

func newRunLimit(maxRuns, slots int, wait time.Duration, log *slog.Logger) bulkhead.Bulkhead[*state.SceneState] {
	return bulkhead.New[*state.SceneState](bulkhead.Config{
		MaxConcurrent: maxRuns,
		// Every slot beyond the run limit may wait for a turn.
		MaxQueue:     max(slots-maxRuns, 1),
		QueueTimeout: wait,
		Logger:       log,
	})
}

// ID returns the worker's lock owner ID.
func (w *Worker) ID() string {
	return w.id
}

// Start runs the slot loops until Stop is called.
func (w *Worker) Start() error {
	w.log.Info("Worker starting", "worker_id", w.id, "slots", w.slots, "max_runs", w.maxRuns)

	var wg sync.WaitGroup
	for slot := 0; slot < w.slots; slot++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.loop(slot)
		}()
	}
	wg.Wait()
	_ = w.bulkhead.Close()

	w.log.Info("Worker shut down", "worker_id", w.id)
	return nil
}

func (w *Worker) loop(slot int) {
	for {
		select {
		case <-w.ctx.Done():
			return
		default:
			if err := w.processNextRequest(); err != nil {
				w.log.Error("Error processing request", "error", err, "worker_id", w.id, "slot", slot)
				// Continue processing even on error
				select {
				case <-w.ctx.Done():
				case <-time.After(time.Second):
				}
			}
		}
	}
}

// Stop cancels in-flight runs and stops pulling requests.
func (w *Worker) Stop() {
	w.log.Info("Worker stop requested", "worker_id", w.id)
	w.cancel()
}

// processNextRequest pulls the next request from the queue and processes it
func (w *Worker) processNextRequest() error {
	req, err := w.queue.BlockingDequeue(w.ctx, workerTimeout)
	if err != nil {
		return fmt.Errorf("failed to dequeue request: %w", err)
	}
	if req == nil {
		// Queue is empty or timeout occurred
		return nil
	}

	w.log.Info("Received request from queue",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"run_id", req.RunID.String(),
		"scenario", req.Scenario,
	)

	locked, err := w.acquireRunLock(req.RunID)
	if err != nil {
		return fmt.Errorf("failed to acquire run lock: %w", err)
	}
	if !locked {
		// Another worker owns this run. Re-queue at the end.
		w.log.Info("Run already locked, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"run_id", req.RunID.String(),
		)
		if err := w.queue.Requeue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}
	defer w.releaseRunLock(req.RunID)

	return w.processRequest(req)
}

func lockKey(runID uuid.UUID) string {
	return fmt.Sprintf("scene-lock:%s", runID.String())
}

// acquireRunLock reports whether this worker now owns the run.
func (w *Worker) acquireRunLock(runID uuid.UUID) (bool, error) {
	return w.redisClient.SetNX(w.ctx, lockKey(runID), w.id, w.lockTTL).Result()
}

// releaseRunLock deletes the lock only if this worker still owns it.
func (w *Worker) releaseRunLock(runID uuid.UUID) {
	// The worker context may already be cancelled on shutdown.
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := releaseLock.Run(ctx, w.redisClient, []string{lockKey(runID)}, w.id).Err(); err != nil {
		w.log.Error("Failed to release run lock", "error", err, "run_id", runID.String())
	}
}

// holdLock extends the run lock on a ticker until the returned stop func
// is called. A single slow generation call can outlast the TTL, so the
// refresh does not wait for turns to complete.
func (w *Worker) holdLock(runID uuid.UUID) (stop func()) {
	ctx, cancel := context.WithCancel(w.ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(w.lockTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := w.redisClient.Expire(ctx, lockKey(runID), w.lockTTL).Err(); err != nil && ctx.Err() == nil {
					w.log.Warn("Failed to extend run lock", "error", err, "run_id", runID.String())
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// processRequest plays one scene and publishes its outcome.
func (w *Worker) processRequest(req *queuePkg.Request) error {
	start := time.Now()

	stop := w.holdLock(req.RunID)
	// A waiting call that times out is cancelled so the bulkhead never
	// starts it after the request has gone back on the queue.
	callCtx, cancel := context.WithCancel(w.ctx)
	var started atomic.Bool
	scene, err := w.bulkhead.Execute(callCtx, func(ctx context.Context) (*state.SceneState, error) {
		// Mark first, then check: the caller cancels before reading the mark.
		started.Store(true)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := w.broadcaster.PublishRequestProcessing(ctx, req.RunID, req.RequestID, w.id); err != nil {
			w.log.Error("Failed to publish processing event", "error", err)
			// Don't fail the request just because event publishing failed
		}
		return w.runner.Run(ctx, req)
	})
	cancel()
	stop()
	if err != nil && !started.Load() && w.ctx.Err() == nil {
		w.log.Info("Every run is busy, re-queueing request",
			"worker_id", w.id,
			"request_id", req.RequestID,
			"run_id", req.RunID.String(),
			"max_runs", w.maxRuns,
			"reason", err,
		)
		if err := w.queue.Requeue(w.ctx, req); err != nil {
			return fmt.Errorf("failed to re-queue request: %w", err)
		}
		return nil
	}
	if err != nil {
		w.log.Error("Scene run failed",
			"error", err,
			"worker_id", w.id,
			"request_id", req.RequestID,
			"run_id", req.RunID.String(),
		)
		if pubErr := w.broadcaster.PublishRequestFailed(w.ctx, req.RunID, req.RequestID, err.Error()); pubErr != nil {
			w.log.Error("Failed to publish failure event", "error", pubErr)
		}
		return fmt.Errorf("failed to process scene request: %w", err)
	}

	result := map[string]any{
		"turns":       scene.CurrentTurn,
		"total_turns": scene.TotalTurns,
		"conclusion":  scene.ConclusionReason,
		"duration_ms": time.Since(start).Milliseconds(),
	}
	if err := w.broadcaster.PublishRequestCompleted(w.ctx, req.RunID, req.RequestID, result); err != nil {
		w.log.Error("Failed to publish completion event", "error", err)
	}

	w.log.Info("Scene request processed successfully",
		"worker_id", w.id,
		"request_id", req.RequestID,
		"run_id", req.RunID.String(),
		"turns", scene.CurrentTurn,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}
