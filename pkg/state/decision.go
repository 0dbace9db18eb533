package state

// Mode is the kind of contribution a character makes on its turn.
type Mode string

const (
	ModeTalk Mode = "TALK"
	ModeAct  Mode = "ACT"
)

// ActionChoice is the action half of an ACT decision.
type ActionChoice struct {
	Kind   ActionKind     `json:"type"`
	Target string         `json:"target,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Param returns a parameter by name.
func (a *ActionChoice) Param(name string) (any, bool) {
	if a == nil || a.Params == nil {
		return nil, false
	}
	v, ok := a.Params[name]
	return v, ok && v != nil
}

// Decision is a validated character decision. A TALK decision never carries
// an action; an ACT decision always does.
type Decision struct {
	Mode        Mode          `json:"mode"`
	Speech      string        `json:"speech,omitempty"`
	Action      *ActionChoice `json:"action,omitempty"`
	Emotion     string        `json:"emotion,omitempty"`
	Observation string        `json:"observation,omitempty"`
	Reasoning   string        `json:"reasoning,omitempty"`
	// Source records how the decision was produced: "model", "repair",
	// "remap", "override" or "fallback".
	Source string `json:"source,omitempty"`
}

// Talk builds a TALK decision.
func Talk(speech string) Decision {
	return Decision{Mode: ModeTalk, Speech: speech}
}

// Act builds an ACT decision.
func Act(kind ActionKind, params map[string]any) Decision {
	return Decision{Mode: ModeAct, Action: &ActionChoice{Kind: kind, Params: params}}
}

// IsAct reports whether the decision is a well-formed ACT.
func (d Decision) IsAct() bool {
	return d.Mode == ModeAct && d.Action != nil && d.Action.Kind != ""
}
