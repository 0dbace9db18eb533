package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/config"
	"github.com/jwebster45206/scene-engine/internal/logger"
	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/internal/services/queue"
	queuePkg "github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
)

func main() {
	scenarioFile := flag.String("scenario", "roadside_dispute.json", "scenario file name under SCENARIO_DIR")
	seedPath := flag.String("seed", "", "path to a scenario JSON sent inline instead of -scenario")
	maxTurns := flag.Int("turns", 0, "turn budget; 0 uses the scenario's")
	runID := flag.String("run", "", "run ID to use; random when empty")
	watch := flag.Bool("watch", false, "print run events until the run finishes")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	logger := logger.Setup(cfg)

	req := queuePkg.NewRunScene(*scenarioFile, *maxTurns)
	if *runID != "" {
		id, err := uuid.Parse(*runID)
		if err != nil {
			log.Fatalf("Invalid run ID %q: %v", *runID, err)
		}
		req.RunID = id
	}
	if *seedPath != "" {
		seed, err := scenario.LoadFile(*seedPath, true)
		if err != nil {
			log.Fatalf("Failed to load seed: %v", err)
		}
		req.Scenario = ""
		req.Seed = seed
	}

	client, err := queue.NewClient(cfg.RedisURL, logger)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer func() {
		_ = client.Close()
	}()

	ctx := context.Background()

	// Subscribe before enqueueing so no event is missed.
	pubsub := client.GetRedisClient().Subscribe(ctx, events.Channel(req.RunID))
	defer func() {
		_ = pubsub.Close()
	}()

	q := queue.NewSceneQueue(client, logger)
	if err := q.Enqueue(ctx, req); err != nil {
		log.Fatalf("Failed to enqueue request: %v", err)
	}
	broadcaster := events.NewBroadcaster(client.GetRedisClient(), logger)
	_ = broadcaster.PublishRequestQueued(ctx, req.RunID, req.RequestID, req.Scenario)

	depth, err := q.Depth(ctx)
	if err != nil {
		log.Fatalf("Failed to get queue depth: %v", err)
	}
	fmt.Printf("Enqueued run %s (request %s)\n", req.RunID, req.RequestID)
	fmt.Printf("Queue depth: %d requests\n", depth)

	if !*watch {
		return
	}

	fmt.Printf("Watching %s ...\n", events.Channel(req.RunID))
	timeout := time.After(30 * time.Minute)
	ch := pubsub.Channel()
	for {
		select {
		case msg := <-ch:
			var ev events.Event
			if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
				fmt.Fprintf(os.Stderr, "bad event: %v\n", err)
				continue
			}
			printEvent(ev)
			if ev.Type == events.EventTypeRequestCompleted || ev.Type == events.EventTypeRequestFailed {
				return
			}
		case <-timeout:
			fmt.Fprintln(os.Stderr, "Timed out waiting for the run to finish")
			os.Exit(1)
		}
	}
}

func printEvent(ev events.Event) {
	if ev.Type != events.EventTypeSceneNotice {
		fmt.Printf("[%s] %v\n", ev.Type, ev.Data)
		return
	}
	n, _ := ev.Data["notice"].(map[string]any)
	turn, _ := n["turn"].(float64)
	switch ev.Data["kind"] {
	case "turn":
		fmt.Printf("%3d  %v: %v\n", int(turn), n["speaker"], n["text"])
	case "speaker":
	default:
		fmt.Printf("%3d  (%v) %v\n", int(turn), ev.Data["kind"], n["text"])
	}
}
