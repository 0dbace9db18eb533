// Package policy holds the deterministic rules around the turn loop: when a
// character must act, when the scene may end, and who may speak next.
package policy

import (
	"slices"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Thresholds names every constant the pacing rules use.
type Thresholds struct {
	MinActionsFloor   int // minimum distinct actions regardless of budget
	MinActionsDivisor int // one more required action per this many turns
	StagnationTurns   int // talk turns without world change before forcing
	DialogueStreak    int // consecutive talk turns before forcing
	MidFraction       float64
	MidFloor          int
	LateFraction      float64
	LateFloor         int
	EndgameFraction   float64
	EndgameFloor      int
}

// DefaultThresholds returns the stock pacing constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinActionsFloor:   5,
		MinActionsDivisor: 5,
		StagnationTurns:   2,
		DialogueStreak:    2,
		MidFraction:       0.5,
		MidFloor:          3,
		LateFraction:      0.7,
		LateFloor:         4,
		EndgameFraction:   0.2,
		EndgameFloor:      2,
	}
}

// MinActions is the distinct-action target for a budget of total turns.
func (t Thresholds) MinActions(total int) int {
	if t.MinActionsDivisor <= 0 {
		return t.MinActionsFloor
	}
	return max(t.MinActionsFloor, total/t.MinActionsDivisor)
}

// Pacing reasons reported in a Verdict.
const (
	ReasonBudget     = "budget"
	ReasonStagnation = "stagnation"
	ReasonStreak     = "dialogue_streak"
	ReasonMidpoint   = "midpoint"
	ReasonLate       = "late"
	ReasonEndgame    = "endgame"
)

// Verdict is the pacing decision for the upcoming turn.
type Verdict struct {
	ForceAct   bool
	Reasons    []string
	Suggested  state.ActionKind
	Endgame    bool
	MinActions int
}

// Pacing decides whether the next turn must be a physical action.
type Pacing struct {
	Thresholds Thresholds
	// MinActions overrides the derived target when > 0.
	MinActions int
	// ResolutionSignals are world signals meaning the plot can resolve.
	ResolutionSignals []string
	// ResolutionPriority lists actions preferred in the endgame.
	ResolutionPriority []state.ActionKind
}

// NewPacing returns a pacing policy with default thresholds.
func NewPacing(signals []string, priority []state.ActionKind) *Pacing {
	return &Pacing{
		Thresholds:         DefaultThresholds(),
		ResolutionSignals:  signals,
		ResolutionPriority: priority,
	}
}

func (p *Pacing) minActions(total int) int {
	if p.MinActions > 0 {
		return p.MinActions
	}
	return p.Thresholds.MinActions(total)
}

// Evaluate computes force-act and the suggested action for the next turn.
// allowed is the current allowed-action list in catalog order.
func (p *Pacing) Evaluate(s *state.SceneState, allowed []state.ActionKind) Verdict {
	th := p.Thresholds
	total := s.TotalTurns
	distinct := s.DistinctActions()
	remaining := s.Remaining()
	minActions := p.minActions(total)

	v := Verdict{MinActions: minActions}
	force := func(reason string) {
		v.ForceAct = true
		v.Reasons = append(v.Reasons, reason)
	}

	if needed := minActions - distinct; needed > 0 && remaining <= needed+1 {
		force(ReasonBudget)
	}
	if s.TurnsSinceStateChange >= th.StagnationTurns {
		force(ReasonStagnation)
	}
	if s.DialogueStreak() >= th.DialogueStreak && distinct < minActions {
		force(ReasonStreak)
	}
	midPoint := max(th.MidFloor, int(float64(total)*th.MidFraction))
	if s.CurrentTurn >= midPoint && distinct < max(2, minActions/2) {
		force(ReasonMidpoint)
	}
	latePoint := max(th.LateFloor, int(float64(total)*th.LateFraction))
	if s.CurrentTurn >= latePoint && distinct < minActions {
		force(ReasonLate)
	}

	v.Endgame = remaining <= max(th.EndgameFloor, int(float64(total)*th.EndgameFraction))
	if v.Endgame && !s.World.AnySignal(p.ResolutionSignals) {
		force(ReasonEndgame)
		v.Suggested = p.Suggest(s, allowed, true)
	}
	if v.ForceAct && distinct < minActions {
		v.Suggested = p.Suggest(s, allowed, v.Endgame)
	}
	return v
}

// Suggest picks an action to steer towards. With preferResolution the
// resolution priority list wins; otherwise the first unused allowed action
// by sort order, falling back to the first allowed action by sort order.
func (p *Pacing) Suggest(s *state.SceneState, allowed []state.ActionKind, preferResolution bool) state.ActionKind {
	if len(allowed) == 0 {
		return ""
	}
	var unused []state.ActionKind
	for _, k := range allowed {
		if !s.Used(k) {
			unused = append(unused, k)
		}
	}
	candidates := unused
	if len(candidates) == 0 {
		candidates = allowed
	}
	if preferResolution {
		for _, k := range p.ResolutionPriority {
			if slices.Contains(candidates, k) {
				return k
			}
		}
	}
	return slices.Min(candidates)
}
