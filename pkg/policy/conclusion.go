package policy

import (
	"fmt"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// FallbackConclusion is the closing narration used when no judgement or
// final narration is available at budget exhaustion.
const FallbackConclusion = "The scene draws to its inevitable close."

// GateOutcome is what the conclusion gate allows.
type GateOutcome int

const (
	// Continue means the scene may not end yet.
	Continue GateOutcome = iota
	// Consult means the external conclusion judgement may be asked.
	Consult
	// HardStop means the turn budget is spent and the scene ends now.
	HardStop
)

func (o GateOutcome) String() string {
	switch o {
	case Continue:
		return "continue"
	case Consult:
		return "consult"
	case HardStop:
		return "hard_stop"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// GateVerdict explains the gate outcome.
type GateVerdict struct {
	Outcome    GateOutcome
	Reason     string
	MinTurns   int
	MinActions int
}

// ConclusionRules configures the gate in front of the external "should this
// end" judgement. Deployments disagree on the thresholds, so every one of
// them is a field.
type ConclusionRules struct {
	MinTurnsRatio     float64 // fraction of the budget that must elapse
	MinTurnsFloor     int
	MinActionsFloor   int
	MinActionsDivisor int
	// MinTurns and MinActions override the derived values when > 0.
	MinTurns   int
	MinActions int
	// RequireResolution demands a resolution signal before consulting.
	RequireResolution bool
	ResolutionSignals []string
}

// StrictConclusion waits for 60% of the budget, the full action target and
// a resolution signal.
func StrictConclusion(signals []string) ConclusionRules {
	return ConclusionRules{
		MinTurnsRatio:     0.6,
		MinTurnsFloor:     3,
		MinActionsFloor:   5,
		MinActionsDivisor: 5,
		RequireResolution: true,
		ResolutionSignals: signals,
	}
}

// LenientConclusion waits for half the budget and a smaller action target,
// without requiring a resolution signal.
func LenientConclusion() ConclusionRules {
	return ConclusionRules{
		MinTurnsRatio:     0.5,
		MinTurnsFloor:     3,
		MinActionsFloor:   2,
		MinActionsDivisor: 5,
	}
}

// Thresholds returns the effective minimum turns and actions for a budget.
// An explicit MinTurns is clamped below the budget so the judgement can be
// consulted at least once before the hard stop.
func (r ConclusionRules) Thresholds(total int) (minTurns, minActions int) {
	minTurns = r.MinTurns
	if minTurns <= 0 {
		minTurns = max(r.MinTurnsFloor, int(float64(total)*r.MinTurnsRatio))
	} else if total > 1 {
		minTurns = min(minTurns, total-1)
	}
	minActions = r.MinActions
	if minActions <= 0 {
		div := r.MinActionsDivisor
		if div <= 0 {
			div = 5
		}
		minActions = max(r.MinActionsFloor, total/div)
	}
	return minTurns, minActions
}

// Gate decides whether the scene may end. Budget exhaustion always stops.
func (r ConclusionRules) Gate(s *state.SceneState) GateVerdict {
	minTurns, minActions := r.Thresholds(s.TotalTurns)
	v := GateVerdict{MinTurns: minTurns, MinActions: minActions}

	switch {
	case s.BudgetExhausted():
		v.Outcome = HardStop
		v.Reason = fmt.Sprintf("turn budget of %d exhausted", s.TotalTurns)
	case s.CurrentTurn < minTurns:
		v.Reason = fmt.Sprintf("turn %d is before minimum %d", s.CurrentTurn, minTurns)
	case s.DistinctActions() < minActions:
		v.Reason = fmt.Sprintf("%d distinct actions, need %d", s.DistinctActions(), minActions)
	case r.RequireResolution && !s.World.AnySignal(r.ResolutionSignals):
		v.Reason = "no resolution signal raised"
	default:
		v.Outcome = Consult
		v.Reason = "all gates passed"
	}
	return v
}

// Judgement is the external answer to "should this scene end".
type Judgement struct {
	ShouldEnd bool
	Narration string
	Reason    string
}

// Decide combines a gate verdict with the external judgement. A nil
// judgement means the judge gave no usable answer. It returns whether the
// scene concludes and the conclusion text.
func Decide(v GateVerdict, j *Judgement) (bool, string) {
	switch v.Outcome {
	case HardStop:
		if j != nil && j.Narration != "" {
			return true, j.Narration
		}
		return true, FallbackConclusion
	case Consult:
		if j == nil || !j.ShouldEnd {
			return false, ""
		}
		if j.Narration != "" {
			return true, j.Narration
		}
		if j.Reason != "" {
			return true, j.Reason
		}
		return true, "The director calls the scene."
	}
	return false, ""
}
