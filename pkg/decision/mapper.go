package decision

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Stock lines used when a decision has to be degraded or synthesized.
const (
	EmptySpeech      = "…"
	NoActionLine     = "I need to think about this."
	UnmappedLine     = "I'll reconsider my approach."
	DefaultFallback  = "Let me see what's really happening here."
	ForcedEmotion    = "determined"
	FallbackEmotion  = "alert"
	hesitateTemplate = "*%s hesitates, unsure what to do*"
)

// MapResult says what Map did to a decision.
type MapResult int

const (
	Kept MapResult = iota
	Remapped
	Degraded
)

func (r MapResult) String() string {
	switch r {
	case Kept:
		return "kept"
	case Remapped:
		return "remapped"
	case Degraded:
		return "degraded"
	}
	return fmt.Sprintf("result(%d)", int(r))
}

// ProfileLine is a fallback speech chosen when a character's description
// mentions any of the keywords.
type ProfileLine struct {
	Keywords []string
	Line     string
}

// DefaultProfileLines returns the stock role-based fallback speech.
func DefaultProfileLines() []ProfileLine {
	return []ProfileLine{
		{Keywords: []string{"police", "constable", "officer"}, Line: "Everyone stay calm. I need to understand what happened here."},
		{Keywords: []string{"driver", "rickshaw"}, Line: "This wasn't my fault. Look at the damage yourself."},
		{Keywords: []string{"aunty", "mother"}, Line: "What is going on here? Someone needs to explain this to me."},
	}
}

// Mapper validates parsed decisions against the allowed action set.
type Mapper struct {
	Catalog      *action.Catalog
	ProfileLines []ProfileLine
}

// NewMapper returns a mapper over catalog with the stock fallback lines.
func NewMapper(catalog *action.Catalog) *Mapper {
	return &Mapper{Catalog: catalog, ProfileLines: DefaultProfileLines()}
}

// Map checks an ACT against allowed, remapping unknown kinds through the
// catalog and degrading to TALK when nothing fits. TALK speech is never empty.
func (m *Mapper) Map(d state.Decision, allowed []action.Kind) (state.Decision, MapResult) {
	result := Kept
	if d.Mode == state.ModeAct {
		switch {
		case d.Action == nil || d.Action.Kind == "":
			d = degrade(d, NoActionLine)
			result = Degraded
		default:
			kind, ok := m.Catalog.Remap(string(d.Action.Kind), allowed)
			switch {
			case !ok:
				d = degrade(d, UnmappedLine)
				result = Degraded
			case kind != d.Action.Kind:
				choice := *d.Action
				choice.Kind = kind
				d.Action = &choice
				d.Source = SourceRemap
				result = Remapped
			}
		}
	} else {
		d.Mode = state.ModeTalk
		d.Action = nil
	}
	if d.Mode == state.ModeTalk && strings.TrimSpace(d.Speech) == "" {
		d.Speech = EmptySpeech
	}
	return d, result
}

func degrade(d state.Decision, line string) state.Decision {
	d.Mode = state.ModeTalk
	d.Action = nil
	if strings.TrimSpace(d.Speech) == "" {
		d.Speech = line
	}
	return d
}

// Pick chooses the action to force: the first allowed kind not yet used, in
// catalog order, else the first allowed kind.
func Pick(s *state.SceneState, allowed []action.Kind) (action.Kind, bool) {
	if len(allowed) == 0 {
		return "", false
	}
	for _, k := range allowed {
		if !s.Used(k) {
			return k, true
		}
	}
	return allowed[0], true
}

// ForceOverride turns a TALK into an ACT when the turn must be physical.
// Decisions that are already ACT, or turns with nothing allowed, pass
// through unchanged.
func (m *Mapper) ForceOverride(d state.Decision, speaker string, s *state.SceneState, allowed []action.Kind) state.Decision {
	if d.IsAct() {
		return d
	}
	kind, ok := Pick(s, allowed)
	if !ok {
		return d
	}
	if d.Observation == "" {
		d.Observation = "The situation demands action."
	}
	if d.Reasoning == "" {
		d.Reasoning = "I must act now."
	}
	if d.Emotion == "" || d.Emotion == "neutral" {
		d.Emotion = ForcedEmotion
	}
	if d.Speech == EmptySpeech {
		d.Speech = ""
	}
	d.Mode = state.ModeAct
	d.Action = &state.ActionChoice{
		Kind:   kind,
		Params: map[string]any{"narration": fmt.Sprintf("%s %s.", speaker, m.Catalog.Hint(kind))},
	}
	d.Source = SourceOverride
	return d
}

// Fallback synthesizes a decision when the character produced nothing
// usable. Forced turns get an ACT; otherwise a TALK line drawn from the
// scene context or the speaker's profile.
func (m *Mapper) Fallback(speaker string, s *state.SceneState, allowed []action.Kind, forceAct bool) state.Decision {
	if forceAct {
		if kind, ok := Pick(s, allowed); ok {
			return state.Decision{
				Mode:        state.ModeAct,
				Observation: fmt.Sprintf("The situation at %s demands action.", preview(sceneDescription(s), 50)),
				Reasoning:   fmt.Sprintf("As %s, I must act now.", speaker),
				Emotion:     ForcedEmotion,
				Action: &state.ActionChoice{
					Kind:   kind,
					Params: map[string]any{"narration": fmt.Sprintf("%s %s.", speaker, m.Catalog.Hint(kind))},
				},
				Source: SourceFallback,
			}
		}
	}

	return state.Decision{
		Mode:        state.ModeTalk,
		Speech:      m.fallbackLine(speaker, s),
		Observation: "The scene demands attention.",
		Reasoning:   "I need to assess the situation.",
		Emotion:     FallbackEmotion,
		Source:      SourceFallback,
	}
}

func (m *Mapper) fallbackLine(speaker string, s *state.SceneState) string {
	if last, ok := s.LastTurn(); ok {
		if last.Speaker != speaker {
			return fmt.Sprintf("Wait, %s. I need to say something about this.", last.Speaker)
		}
		return "Wait. I need to say something about this."
	}
	if c, ok := s.Character(speaker); ok {
		desc := strings.ToLower(c.Description + " " + c.Role)
		for _, pl := range m.ProfileLines {
			for _, kw := range pl.Keywords {
				if strings.Contains(desc, kw) {
					return pl.Line
				}
			}
		}
	}
	return DefaultFallback
}

// Rejected converts an ACT that failed validation into the TALK that fills
// the same turn slot.
func Rejected(d state.Decision, speaker string) state.Decision {
	d.Mode = state.ModeTalk
	d.Action = nil
	if strings.TrimSpace(d.Speech) == "" {
		d.Speech = fmt.Sprintf(hesitateTemplate, speaker)
	}
	return d
}

func sceneDescription(s *state.SceneState) string {
	if s.Seed.Description != "" {
		return s.Seed.Description
	}
	return "the scene"
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
