// Package orchestrator runs the deterministic turn loop of a scene: pick a
// speaker, get a decision, apply it, update memories and decide whether the
// scene is over. Everything non-deterministic sits behind the Director and
// Character collaborators.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/statekit"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Config holds the loop policies. Zero values take the defaults.
type Config struct {
	// Strict makes invariant violations fatal. Tests run strict.
	Strict         bool
	MaxConsecutive int
	// MinActions overrides the pacing distinct-action target when > 0.
	MinActions int
	Pacing     *policy.Thresholds
	Conclusion *policy.ConclusionRules
}

// Deps are the collaborators of one orchestrator.
type Deps struct {
	Catalog   *action.Catalog
	Director  Director
	Character Character
	Recorder  Recorder
	Observer  Observer
	Logger    *slog.Logger
	// Clock stamps turns and events. Defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator drives scenes. It holds no per-scene state, so one instance
// may run many scenes sequentially or concurrently.
type Orchestrator struct {
	cfg        Config
	catalog    *action.Catalog
	director   Director
	resolver   *decision.Resolver
	recorder   Recorder
	observer   Observer
	logger     *slog.Logger
	clock      func() time.Time
	pacing     *policy.Pacing
	conclusion policy.ConclusionRules
	guard      policy.SpeakerGuard
}

// New wires an orchestrator. Catalog, Director and Character are required.
func New(cfg Config, deps Deps) (*Orchestrator, error) {
	if deps.Catalog == nil {
		return nil, errors.New("orchestrator: catalog is required")
	}
	if deps.Director == nil {
		return nil, errors.New("orchestrator: director is required")
	}
	if deps.Character == nil {
		return nil, errors.New("orchestrator: character is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}

	pacing := policy.NewPacing(deps.Catalog.ResolutionSignals, deps.Catalog.ResolutionPriority)
	if cfg.Pacing != nil {
		pacing.Thresholds = *cfg.Pacing
	}
	pacing.MinActions = cfg.MinActions

	rules := policy.StrictConclusion(deps.Catalog.ResolutionSignals)
	if cfg.Conclusion != nil {
		rules = *cfg.Conclusion
		if len(rules.ResolutionSignals) == 0 {
			rules.ResolutionSignals = deps.Catalog.ResolutionSignals
		}
	}

	return &Orchestrator{
		cfg:        cfg,
		catalog:    deps.Catalog,
		director:   deps.Director,
		resolver:   decision.NewResolver(deps.Character, decision.NewMapper(deps.Catalog), logger),
		recorder:   deps.Recorder,
		observer:   deps.Observer,
		logger:     logger,
		clock:      clock,
		pacing:     pacing,
		conclusion: rules,
		guard:      policy.SpeakerGuard{MaxConsecutive: cfg.MaxConsecutive},
	}, nil
}

// run is one interpreter bound to one scene.
type run struct {
	o      *Orchestrator
	tc     *turnContext
	interp *statekit.Interpreter[*turnContext]
	logger *slog.Logger
}

func (o *Orchestrator) start(s *state.SceneState) (*run, error) {
	machine, err := newMachine()
	if err != nil {
		return nil, fmt.Errorf("failed to build turn machine: %w", err)
	}
	tc := &turnContext{scene: s}
	interp := statekit.NewInterpreter(machine)
	interp.UpdateContext(func(c **turnContext) {
		*c = tc
	})
	interp.Start()
	return &run{
		o:      o,
		tc:     tc,
		interp: interp,
		logger: o.logger.With("run_id", s.ID.String()),
	}, nil
}

// Run plays the scene until it concludes. It returns nil on conclusion,
// ctx.Err() when cancelled between steps, and an error wrapping
// chat.ErrUnavailable when text generation is exhausted.
func (o *Orchestrator) Run(ctx context.Context, s *state.SceneState) error {
	if s.IsConcluded {
		return nil
	}
	r, err := o.start(s)
	if err != nil {
		return err
	}
	defer r.interp.Stop()

	r.logger.Info("Scene started",
		"title", s.Seed.Title,
		"characters", len(s.Characters),
		"total_turns", s.TotalTurns)

	if err := r.opening(ctx); err != nil {
		return err
	}
	for !s.IsConcluded {
		if err := ctx.Err(); err != nil {
			r.logger.Info("Scene cancelled", "turn", s.CurrentTurn)
			return err
		}
		if err := r.step(ctx); err != nil {
			return err
		}
	}
	r.logger.Info("Scene concluded",
		"turns", s.CurrentTurn,
		"distinct_actions", s.DistinctActions(),
		"reason", s.ConclusionReason)
	return nil
}

// Step runs exactly one loop iteration: one completed turn, or the
// conclusion of a scene whose budget is already spent.
func (o *Orchestrator) Step(ctx context.Context, s *state.SceneState) error {
	if s.IsConcluded {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	r, err := o.start(s)
	if err != nil {
		return err
	}
	defer r.interp.Stop()
	return r.step(ctx)
}

func (r *run) send(ev statekit.EventType, want statekit.StateID) error {
	r.interp.Send(statekit.Event{Type: ev})
	if !r.interp.Matches(want) {
		return fmt.Errorf("turn machine in %s after %s, expected %s", r.interp.State().Value, ev, want)
	}
	return nil
}

func (r *run) step(ctx context.Context) error {
	s := r.tc.scene
	if !r.interp.Matches(PhaseSelectSpeaker) {
		return fmt.Errorf("turn machine in %s, expected %s", r.interp.State().Value, PhaseSelectSpeaker)
	}

	if s.BudgetExhausted() {
		return r.hardStop(ctx)
	}

	if err := r.selectSpeaker(ctx); err != nil {
		return err
	}
	if err := r.send(evDecide, PhaseDecide); err != nil {
		return err
	}

	if err := r.decide(ctx); err != nil {
		return err
	}
	if err := r.send(evApply, PhaseApply); err != nil {
		return err
	}

	r.apply(ctx)
	if err := r.send(evRemember, PhaseUpdateMemory); err != nil {
		return err
	}

	if err := r.updateMemory(ctx); err != nil {
		return err
	}
	if err := r.send(evCheck, PhaseCheck); err != nil {
		return err
	}

	concluded, err := r.checkConclusion(ctx)
	if err != nil {
		return err
	}
	if concluded {
		return r.send(evConclude, PhaseConcluded)
	}
	return r.send(evContinue, PhaseSelectSpeaker)
}

func (r *run) hardStop(ctx context.Context) error {
	text := r.finalNarration(ctx)
	r.conclude(ctx, text)
	return r.send(evConclude, PhaseConcluded)
}

func (r *run) notify(ctx context.Context, n Notice) {
	if r.o.observer == nil {
		return
	}
	n.RunID = r.tc.scene.ID
	if n.At.IsZero() {
		n.At = r.o.clock()
	}
	r.o.observer.Observe(ctx, n)
}

func (r *run) record(ctx context.Context, phase string, ev *state.Event) {
	if r.o.recorder == nil {
		return
	}
	s := r.tc.scene
	snap := Snapshot{RunID: s.ID, Turn: s.CurrentTurn, Phase: phase, Scene: s, Event: ev, At: r.o.clock()}
	if err := r.o.recorder.SaveSnapshot(ctx, snap); err != nil {
		r.logger.Warn("Failed to save snapshot", "turn", s.CurrentTurn, "phase", phase, "error", err)
	}
}
