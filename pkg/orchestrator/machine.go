package orchestrator

import (
	"github.com/felixgeelhaar/statekit"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Loop phases.
const (
	PhaseSelectSpeaker statekit.StateID = "select_speaker"
	PhaseDecide        statekit.StateID = "decide"
	PhaseApply         statekit.StateID = "apply"
	PhaseUpdateMemory  statekit.StateID = "update_memory"
	PhaseCheck         statekit.StateID = "check_conclusion"
	PhaseConcluded     statekit.StateID = "concluded"
)

// Loop events.
const (
	evDecide   = "DECIDE"
	evApply    = "APPLY"
	evRemember = "REMEMBER"
	evCheck    = "CHECK"
	evContinue = "CONTINUE"
	evConclude = "CONCLUDE"
)

// turnContext carries one scene through the machine. Per-turn fields are
// reset whenever select_speaker is entered.
type turnContext struct {
	scene *state.SceneState

	allowed   []action.Kind
	verdict   policy.Verdict
	speaker   string
	witnesses []string
	decision  state.Decision
	event     state.Event

	transitions int
}

func (t *turnContext) reset() {
	t.scene.ClearScratch()
	t.allowed = nil
	t.verdict = policy.Verdict{}
	t.speaker = ""
	t.witnesses = nil
	t.decision = state.Decision{}
	t.event = state.Event{}
}

// newMachine builds the turn loop statechart. Blocking collaborator work
// happens between events; actions only touch in-memory state.
func newMachine() (*statekit.MachineConfig[*turnContext], error) {
	return statekit.NewMachine[*turnContext]("scene").
		WithInitial(PhaseSelectSpeaker).
		WithContext(&turnContext{}).
		WithAction("beginTurn", beginTurn).
		WithAction("countTransition", countTransition).
		WithAction("finish", finish).
		WithGuard("sceneConcluded", sceneConcluded).
		WithGuard("sceneOpen", sceneOpen).
		State(PhaseSelectSpeaker).
		OnEntry("beginTurn").
		On(evDecide).Target(PhaseDecide).Guard("sceneOpen").Do("countTransition").
		On(evConclude).Target(PhaseConcluded).Guard("sceneConcluded").Do("countTransition").
		Done().
		State(PhaseDecide).
		On(evApply).Target(PhaseApply).Do("countTransition").
		Done().
		State(PhaseApply).
		On(evRemember).Target(PhaseUpdateMemory).Do("countTransition").
		Done().
		State(PhaseUpdateMemory).
		On(evCheck).Target(PhaseCheck).Do("countTransition").
		Done().
		State(PhaseCheck).
		On(evContinue).Target(PhaseSelectSpeaker).Guard("sceneOpen").Do("countTransition").
		On(evConclude).Target(PhaseConcluded).Guard("sceneConcluded").Do("countTransition").
		Done().
		State(PhaseConcluded).
		Final().
		OnEntry("finish").
		Done().
		Build()
}

func beginTurn(ctx **turnContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).scene == nil {
		return
	}
	(*ctx).reset()
}

func countTransition(ctx **turnContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil {
		return
	}
	(*ctx).transitions++
}

func finish(ctx **turnContext, _ statekit.Event) {
	if ctx == nil || *ctx == nil || (*ctx).scene == nil {
		return
	}
	(*ctx).scene.ClearScratch()
}

func sceneConcluded(ctx *turnContext, _ statekit.Event) bool {
	return ctx != nil && ctx.scene != nil && ctx.scene.IsConcluded
}

func sceneOpen(ctx *turnContext, ev statekit.Event) bool {
	return !sceneConcluded(ctx, ev)
}
