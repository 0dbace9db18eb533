package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/agents"
	"github.com/jwebster45206/scene-engine/internal/config"
	"github.com/jwebster45206/scene-engine/internal/logger"
	"github.com/jwebster45206/scene-engine/internal/services"
	"github.com/jwebster45206/scene-engine/internal/storage"
	"github.com/jwebster45206/scene-engine/internal/worker"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
)

func main() {
	scenarioName := flag.String("scenario", "roadside_dispute.json", "scenario file name under DATA_DIR/scenarios, or a path")
	turns := flag.Int("turns", 0, "turn budget; 0 uses the scenario's")
	mock := flag.Bool("mock", false, "use the deterministic offline generator")
	save := flag.Bool("save", false, "save snapshots to Redis")
	list := flag.Bool("list", false, "list stored runs and scenarios, then exit")
	show := flag.String("show", "", "print the stored transcript of a run ID, then exit")
	width := flag.Int("width", 80, "wrap width")
	verbose := flag.Bool("v", false, "show speaker selection")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}
	if !*verbose {
		cfg.LogLevel = max(cfg.LogLevel, slog.LevelError)
	}
	logger := logger.Setup(cfg)

	store := storage.NewRedisStorage(cfg.RedisURL, cfg.DataDir, logger)
	defer func() {
		_ = store.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := NewTranscript(os.Stdout, *width, *verbose)

	switch {
	case *list:
		if err := listAll(ctx, store); err != nil {
			log.Fatal(err)
		}
		return
	case *show != "":
		if err := showRun(ctx, store, out, *show); err != nil {
			log.Fatal(err)
		}
		return
	}

	var llm chat.Generator
	if *mock {
		llm = services.NewScriptedGenerator()
	} else {
		chain, err := services.NewChain(ctx, cfg, logger)
		if err != nil {
			log.Fatalf("No LLM provider available (try -mock): %v", err)
		}
		llm = chain
	}

	req := queue.NewRunScene(*scenarioName, *turns)
	if _, err := os.Stat(*scenarioName); err == nil {
		seed, err := scenario.LoadFile(*scenarioName, false)
		if err != nil {
			log.Fatalf("Failed to load scenario: %v", err)
		}
		seed.FileName = filepath.Base(*scenarioName)
		req.Scenario = ""
		req.Seed = seed
	}

	deps := worker.RunnerDeps{
		Scenarios: store,
		Director:  agents.NewDirector(llm, cfg.MinActions, logger),
		Character: agents.NewCharacterAgent(llm, logger),
		Logger:    logger,
	}
	if *save {
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := store.Ping(pingCtx)
		cancel()
		if err != nil {
			log.Fatalf("Cannot save runs: %v", err)
		}
		deps.Recorder = store
	}
	runner := worker.NewSceneRunner(worker.RunnerConfig{
		MinTurns:         cfg.MinTurns,
		MinActions:       cfg.MinActions,
		MemoryBufferSize: cfg.MemoryBufferSize,
		MaxConsecutive:   cfg.MaxConsecutive,
		ConclusionMode:   cfg.ConclusionMode,
		CatalogDir:       cfg.CatalogDir,
	}, deps)

	scene, catalog, err := runner.Prepare(ctx, req)
	if err != nil {
		log.Fatal(err)
	}
	orch, err := runner.Orchestrator(catalog, out)
	if err != nil {
		log.Fatal(err)
	}

	out.Header(scene)
	out.Events(scene.Events)
	if err := orch.Run(ctx, scene); err != nil {
		if errors.Is(err, context.Canceled) {
			fmt.Fprintln(os.Stderr, "Interrupted.")
			os.Exit(130)
		}
		log.Fatalf("Scene failed: %v", err)
	}

	fmt.Println(metaStyle.Render(fmt.Sprintf("%d turns, %d distinct actions. Run %s", scene.CurrentTurn, scene.DistinctActions(), scene.ID)))
}

func listAll(ctx context.Context, store *storage.RedisStorage) error {
	scenarios, err := store.ListScenarios(ctx)
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("SCENARIOS"))
	for name, file := range scenarios {
		fmt.Printf("  %-24s %s\n", name, file)
	}
	fmt.Println()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	fmt.Println(titleStyle.Render("RUNS"))
	tw := tabwriter.NewWriter(os.Stdout, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "  RUN\tTITLE\tTURN\tDONE\tUPDATED")
	for _, r := range runs {
		fmt.Fprintf(tw, "  %s\t%s\t%d/%d\t%v\t%s\n", r.RunID, r.Title, r.Turn, r.TotalTurns, r.Concluded, r.UpdatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}

func showRun(ctx context.Context, store *storage.RedisStorage, out *Transcript, id string) error {
	runID, err := uuid.Parse(id)
	if err != nil {
		return fmt.Errorf("invalid run ID %q: %w", id, err)
	}
	scene, err := store.LoadRun(ctx, runID)
	if err != nil {
		return err
	}
	events, err := store.LoadEvents(ctx, runID)
	if err != nil {
		return err
	}
	out.Header(scene)
	out.Events(events)
	return nil
}
