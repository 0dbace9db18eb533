// Package memory updates per-character memory after each turn. Only
// characters present for a turn learn about it.
package memory

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

const previewLen = 80

// Partitioner applies one turn's event to the memory buffers of the
// characters who witnessed it.
type Partitioner struct {
	BufferSize int
}

// New returns a partitioner with the given recent-events bound.
func New(bufferSize int) *Partitioner {
	if bufferSize <= 0 {
		bufferSize = state.DefaultMemoryBufferSize
	}
	return &Partitioner{BufferSize: bufferSize}
}

// Witnesses returns the characters present for a turn: everyone not marked
// departed, plus the speaker, in scenario order.
func Witnesses(s *state.SceneState, speaker string) []string {
	var out []string
	for _, name := range s.CharacterNames() {
		if name == speaker || !s.Departed(name) {
			out = append(out, name)
		}
	}
	return out
}

// Update records event in the memories of every witness. Witnesses should be
// captured before the turn's effects are applied so a departure takes effect
// from the next turn; nil computes them from the current world. The acting
// character always learns about their own action, and the speaker's emotion
// and observation are applied regardless of presence.
func (p *Partitioner) Update(s *state.SceneState, speaker string, witnesses []string, event state.Event, decision *state.Decision) {
	if witnesses == nil {
		witnesses = Witnesses(s, speaker)
	}
	line := Line(event, speaker)

	for _, name := range witnesses {
		if mem := s.Memories[name]; mem != nil {
			mem.Remember(line, p.BufferSize)
		}
	}

	if event.Action != nil {
		actor := event.Action.Actor
		if actor == "" {
			actor = speaker
		}
		if mem := s.Memories[actor]; mem != nil {
			mem.Learn(fmt.Sprintf("I performed %s at turn %d", event.Action.Kind, event.Turn))
		}

		fact := Fact(event.Action.Kind, actor, s.World)
		for _, name := range witnesses {
			if mem := s.Memories[name]; mem != nil {
				mem.Learn(fact)
				mem.Remember(fact, p.BufferSize)
			}
		}
	}

	if decision == nil {
		return
	}
	mem := s.Memories[speaker]
	if decision.Emotion != "" {
		if mem != nil {
			mem.EmotionalState = decision.Emotion
		}
		s.EmotionHistory = append(s.EmotionHistory, state.EmotionEntry{
			Turn:      event.Turn,
			Character: speaker,
			Emotion:   decision.Emotion,
		})
	}
	if decision.Observation != "" && mem != nil {
		if prev := previousSpeaker(s, speaker); prev != "" {
			mem.Perceive(prev, decision.Observation)
		}
	}
}

// Line renders the recent-events entry for an event.
func Line(event state.Event, speaker string) string {
	switch {
	case event.Type == state.EventDialogue:
		return fmt.Sprintf("T%d: %s said: \"%s\"", event.Turn, speaker, preview(event.Content))
	case event.Action != nil:
		return fmt.Sprintf("T%d: %s performed %s", event.Turn, event.Action.Actor, event.Action.Kind)
	default:
		return fmt.Sprintf("T%d: %s", event.Turn, preview(event.Content))
	}
}

// Fact renders the observable fact line for an action, including every flag
// that is currently true.
func Fact(kind state.ActionKind, actor string, w state.World) string {
	parts := []string{fmt.Sprintf("%s by %s", kind, actor)}
	for _, f := range w.TrueFlags() {
		parts = append(parts, strings.ReplaceAll(f, "_", " "))
	}
	return "[FACT] " + strings.Join(parts, " | ")
}

func preview(s string) string {
	r := []rune(s)
	if len(r) <= previewLen {
		return s
	}
	return string(r[:previewLen])
}

// previousSpeaker returns who spoke immediately before speaker's latest turn.
func previousSpeaker(s *state.SceneState, speaker string) string {
	h := s.DialogueHistory
	for i := len(h) - 2; i >= 0; i-- {
		if h[i].Speaker != speaker {
			return h[i].Speaker
		}
	}
	return ""
}
