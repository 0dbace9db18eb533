package events

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
)

func setupBroadcaster(t *testing.T) (*Broadcaster, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewBroadcaster(client, slog.New(slog.NewTextHandler(io.Discard, nil))), client
}

func receive(t *testing.T, sub *redis.PubSub) Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	msg, err := sub.ReceiveMessage(ctx)
	if err != nil {
		t.Fatalf("ReceiveMessage failed: %v", err)
	}
	var ev Event
	if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
		t.Fatalf("bad payload %q: %v", msg.Payload, err)
	}
	return ev
}

func subscribe(t *testing.T, client *redis.Client, runID uuid.UUID) *redis.PubSub {
	t.Helper()
	ctx := context.Background()
	sub := client.Subscribe(ctx, Channel(runID))
	if _, err := sub.Receive(ctx); err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	t.Cleanup(func() { _ = sub.Close() })
	return sub
}

func TestChannel(t *testing.T) {
	id := uuid.MustParse("9a1f6a3e-52a5-4e59-8d0f-1f1c2b3d4e5f")
	if got := Channel(id); got != "scene-events:9a1f6a3e-52a5-4e59-8d0f-1f1c2b3d4e5f" {
		t.Errorf("Channel() = %q", got)
	}
}

func TestBroadcaster_RequestLifecycle(t *testing.T) {
	b, client := setupBroadcaster(t)
	runID := uuid.New()
	sub := subscribe(t, client, runID)
	ctx := context.Background()

	if err := b.PublishRequestProcessing(ctx, runID, "req-1", "worker-1"); err != nil {
		t.Fatalf("PublishRequestProcessing: %v", err)
	}
	ev := receive(t, sub)
	if ev.Type != EventTypeRequestProcessing || ev.RequestID != "req-1" || ev.RunID != runID.String() {
		t.Errorf("unexpected event %+v", ev)
	}
	if ev.Data["worker"] != "worker-1" {
		t.Errorf("Expected worker-1, got %v", ev.Data["worker"])
	}

	if err := b.PublishRequestFailed(ctx, runID, "req-1", "boom"); err != nil {
		t.Fatalf("PublishRequestFailed: %v", err)
	}
	ev = receive(t, sub)
	if ev.Type != EventTypeRequestFailed || ev.Data["error"] != "boom" {
		t.Errorf("unexpected event %+v", ev)
	}
}

func TestBroadcaster_Observe(t *testing.T) {
	b, client := setupBroadcaster(t)
	runID := uuid.New()
	sub := subscribe(t, client, runID)

	b.Observe(context.Background(), orchestrator.Notice{
		RunID:   runID,
		Kind:    orchestrator.NoticeTurn,
		Turn:    3,
		Speaker: "Amir Khan",
		Text:    "It was not my fault!",
	})

	ev := receive(t, sub)
	if ev.Type != EventTypeSceneNotice {
		t.Fatalf("Expected scene.notice, got %s", ev.Type)
	}
	if ev.Data["kind"] != orchestrator.NoticeTurn {
		t.Errorf("Expected kind turn, got %v", ev.Data["kind"])
	}
	notice, ok := ev.Data["notice"].(map[string]any)
	if !ok {
		t.Fatalf("notice payload missing: %+v", ev.Data)
	}
	if notice["speaker"] != "Amir Khan" || notice["turn"] != float64(3) {
		t.Errorf("unexpected notice %+v", notice)
	}
}
