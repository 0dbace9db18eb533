package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/queue"
	"github.com/jwebster45206/scene-engine/pkg/scenario"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Conclusion modes accepted by RunnerConfig.
const (
	ConclusionStrict  = "strict"
	ConclusionLenient = "lenient"
)

// ScenarioSource looks up scenarios and narrators by file name or ID.
// storage.Storage satisfies it.
type ScenarioSource interface {
	GetScenario(ctx context.Context, filename string) (*scenario.Scenario, error)
	GetNarrator(ctx context.Context, narratorID string) (*scenario.Narrator, error)
}

// RunnerConfig holds the scene settings shared by every run. Zero values
// fall back to the scenario's own settings, then the package defaults.
type RunnerConfig struct {
	MaxTurns         int
	MinTurns         int
	MinActions       int
	MemoryBufferSize int
	MaxConsecutive   int
	ConclusionMode   string
	CatalogDir       string
	Strict           bool
}

// RunnerDeps are the collaborators of a SceneRunner. Recorder, Observer and
// Metrics are optional.
type RunnerDeps struct {
	Scenarios ScenarioSource
	Director  orchestrator.Director
	Character orchestrator.Character
	Recorder  orchestrator.Recorder
	Observer  orchestrator.Observer
	Metrics   *Metrics
	Logger    *slog.Logger
	Clock     func() time.Time
}

// SceneRunner turns a run request into a scene and plays it to the end.
type SceneRunner struct {
	cfg      RunnerConfig
	deps     RunnerDeps
	catalogs scenario.CatalogSource
	logger   *slog.Logger
}

func NewSceneRunner(cfg RunnerConfig, deps RunnerDeps) *SceneRunner {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &SceneRunner{
		cfg:      cfg,
		deps:     deps,
		catalogs: scenario.CatalogSource{Dir: cfg.CatalogDir},
		logger:   logger,
	}
}

// Prepare loads the request's scenario and builds a fresh scene whose ID is
// the request's run ID.
func (r *SceneRunner) Prepare(ctx context.Context, req *queue.Request) (*state.SceneState, *action.Catalog, error) {
	sc, err := r.scenario(ctx, req)
	if err != nil {
		return nil, nil, err
	}
	catalog, err := r.catalogs.Resolve(sc)
	if err != nil {
		return nil, nil, err
	}

	// Request, then scenario, then runner default.
	maxTurns := req.MaxTurns
	if maxTurns <= 0 {
		maxTurns = sc.MaxTurns
	}
	if maxTurns <= 0 {
		maxTurns = r.cfg.MaxTurns
	}
	opts := scenario.Options{
		MaxTurns:         maxTurns,
		MemoryBufferSize: r.cfg.MemoryBufferSize,
		Clock:            r.deps.Clock,
	}
	scene, err := sc.ToState(catalog, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build scene: %w", err)
	}
	scene.ID = req.RunID
	return scene, catalog, nil
}

func (r *SceneRunner) scenario(ctx context.Context, req *queue.Request) (*scenario.Scenario, error) {
	sc := req.Seed
	if sc == nil {
		if r.deps.Scenarios == nil {
			return nil, errors.New("no scenario source configured")
		}
		loaded, err := r.deps.Scenarios.GetScenario(ctx, req.Scenario)
		if err != nil {
			return nil, fmt.Errorf("failed to load scenario %s: %w", req.Scenario, err)
		}
		return loaded, nil
	}

	if sc.Narrator == nil && sc.NarratorID != "" && r.deps.Scenarios != nil {
		n, err := r.deps.Scenarios.GetNarrator(ctx, sc.NarratorID)
		if err != nil {
			return nil, fmt.Errorf("failed to load narrator %s: %w", sc.NarratorID, err)
		}
		sc.Narrator = n
	}
	return sc, nil
}

// Orchestrator builds the loop for one catalog. Extra observers receive
// notices after the runner's own.
func (r *SceneRunner) Orchestrator(catalog *action.Catalog, extra ...orchestrator.Observer) (*orchestrator.Orchestrator, error) {
	var observers orchestrator.Observers
	if r.deps.Observer != nil {
		observers = append(observers, r.deps.Observer)
	}
	if r.deps.Metrics != nil {
		observers = append(observers, r.deps.Metrics)
	}
	observers = append(observers, extra...)

	cfg := orchestrator.Config{
		Strict:         r.cfg.Strict,
		MaxConsecutive: r.cfg.MaxConsecutive,
		MinActions:     r.cfg.MinActions,
	}
	if rules := r.conclusionRules(catalog); rules != nil {
		cfg.Conclusion = rules
	}

	return orchestrator.New(cfg, orchestrator.Deps{
		Catalog:   catalog,
		Director:  r.deps.Director,
		Character: r.deps.Character,
		Recorder:  r.deps.Recorder,
		Observer:  observers,
		Logger:    r.logger,
		Clock:     r.deps.Clock,
	})
}

func (r *SceneRunner) conclusionRules(catalog *action.Catalog) *policy.ConclusionRules {
	var rules policy.ConclusionRules
	switch r.cfg.ConclusionMode {
	case ConclusionLenient:
		rules = policy.LenientConclusion()
	case "", ConclusionStrict:
		if r.cfg.MinTurns <= 0 && r.cfg.MinActions <= 0 {
			return nil
		}
		rules = policy.StrictConclusion(catalog.ResolutionSignals)
	default:
		r.logger.Warn("Unknown conclusion mode, using strict", "mode", r.cfg.ConclusionMode)
		rules = policy.StrictConclusion(catalog.ResolutionSignals)
	}
	rules.MinTurns = r.cfg.MinTurns
	rules.MinActions = r.cfg.MinActions
	return &rules
}

// Run prepares and plays the scene for req. The returned scene is non-nil
// whenever preparation succeeded, even if the run itself failed.
func (r *SceneRunner) Run(ctx context.Context, req *queue.Request, extra ...orchestrator.Observer) (*state.SceneState, error) {
	scene, catalog, err := r.Prepare(ctx, req)
	if err != nil {
		return nil, err
	}
	orch, err := r.Orchestrator(catalog, extra...)
	if err != nil {
		return nil, err
	}

	if r.deps.Metrics != nil {
		r.deps.Metrics.SceneStarted()
	}
	start := time.Now()
	r.logger.Info("Scene run starting",
		"run_id", scene.ID.String(),
		"scenario", scene.Seed.Scenario,
		"catalog", catalog.Name,
		"total_turns", scene.TotalTurns)

	err = orch.Run(ctx, scene)

	outcome := OutcomeConcluded
	switch {
	case err == nil:
	case ctx.Err() != nil:
		outcome = OutcomeCancelled
	default:
		outcome = OutcomeFailed
	}
	if r.deps.Metrics != nil {
		r.deps.Metrics.SceneFinished(outcome, time.Since(start))
	}
	r.logger.Info("Scene run finished",
		"run_id", scene.ID.String(),
		"outcome", outcome,
		"turns", scene.CurrentTurn,
		"duration_ms", time.Since(start).Milliseconds())
	if err != nil {
		return scene, fmt.Errorf("scene run %s: %w", scene.ID, err)
	}
	return scene, nil
}
