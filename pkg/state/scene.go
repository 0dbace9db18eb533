package state

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Seed describes the premise a scene starts from.
type Seed struct {
	Scenario    string `json:"scenario,omitempty"` // file name of the scenario, if loaded from one
	Title       string `json:"title"`
	Description string `json:"description"`
	Rating      string `json:"rating,omitempty"` // content rating for text filtering
	Catalog     string `json:"catalog,omitempty"`
	// DirectorStyle holds narrator voice instructions for director prompts.
	DirectorStyle []string `json:"director_style,omitempty"`
}

// SceneState is the single-owner record of one scene run. Only the
// orchestrator that created it may mutate it.
type SceneState struct {
	ID                    uuid.UUID                `json:"id"`
	Seed                  Seed                     `json:"seed"`
	Characters            []Character              `json:"characters"`
	CurrentTurn           int                      `json:"current_turn"`
	TotalTurns            int                      `json:"total_turns"`
	IsConcluded           bool                     `json:"is_concluded"`
	ConclusionReason      string                   `json:"conclusion_reason,omitempty"`
	DialogueHistory       []Turn                   `json:"dialogue_history"`
	Events                []Event                  `json:"events"`
	ActionsTaken          []ActionKind             `json:"actions_taken"`
	World                 World                    `json:"world"`
	TurnsSinceStateChange int                      `json:"turns_since_state_change"`
	Memories              map[string]*MemoryBuffer `json:"character_memories"`
	MemoryBufferSize      int                      `json:"memory_buffer_size"`
	DirectorNotes         []string                 `json:"director_notes,omitempty"`
	EmotionHistory        []EmotionEntry           `json:"emotion_history,omitempty"`
	CreatedAt             time.Time                `json:"created_at"`
	UpdatedAt             time.Time                `json:"updated_at"`

	// Per-turn scratch. Cleared at the start of every loop iteration.
	NextSpeaker     string     `json:"-"`
	ForceAct        bool       `json:"-"`
	SuggestedAction ActionKind `json:"-"`
	PendingDecision *Decision  `json:"-"`
}

// New creates a scene at turn 0 with one memory buffer per character.
func New(seed Seed, chars []Character, totalTurns int, world World, bufferSize int) *SceneState {
	if bufferSize <= 0 {
		bufferSize = DefaultMemoryBufferSize
	}
	now := time.Now()
	s := &SceneState{
		ID:               uuid.New(),
		Seed:             seed,
		Characters:       append([]Character(nil), chars...),
		TotalTurns:       totalTurns,
		DialogueHistory:  make([]Turn, 0),
		Events:           make([]Event, 0),
		ActionsTaken:     make([]ActionKind, 0),
		World:            world.Clone(),
		Memories:         make(map[string]*MemoryBuffer, len(chars)),
		MemoryBufferSize: bufferSize,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	for _, c := range chars {
		s.Memories[c.Name] = NewMemoryBuffer(c)
	}
	return s
}

// CharacterNames returns participant names in scenario order.
func (s *SceneState) CharacterNames() []string {
	names := make([]string, len(s.Characters))
	for i, c := range s.Characters {
		names[i] = c.Name
	}
	return names
}

// Character looks up a participant by exact name.
func (s *SceneState) Character(name string) (Character, bool) {
	for _, c := range s.Characters {
		if c.Name == name {
			return c, true
		}
	}
	return Character{}, false
}

// Departed reports whether the character has left the scene.
func (s *SceneState) Departed(name string) bool {
	return s.World.Flags[DepartedFlag(name)]
}

// PresentCharacters returns participants that have not departed.
func (s *SceneState) PresentCharacters() []string {
	var out []string
	for _, c := range s.Characters {
		if !s.Departed(c.Name) {
			out = append(out, c.Name)
		}
	}
	return out
}

// DistinctActions counts unique action kinds executed so far.
func (s *SceneState) DistinctActions() int {
	seen := make(map[ActionKind]struct{}, len(s.ActionsTaken))
	for _, k := range s.ActionsTaken {
		seen[k] = struct{}{}
	}
	return len(seen)
}

// ActionCount returns how many times kind has been executed.
func (s *SceneState) ActionCount(kind ActionKind) int {
	n := 0
	for _, k := range s.ActionsTaken {
		if k == kind {
			n++
		}
	}
	return n
}

// Used reports whether kind has been executed at least once.
func (s *SceneState) Used(kind ActionKind) bool {
	return s.ActionCount(kind) > 0
}

// Remaining returns how many turns are left in the budget.
func (s *SceneState) Remaining() int {
	return max(0, s.TotalTurns-s.CurrentTurn)
}

// BudgetExhausted reports whether the turn budget is spent.
func (s *SceneState) BudgetExhausted() bool {
	return s.CurrentTurn >= s.TotalTurns
}

// TrailingSpeakerRun returns the last speaker and how many consecutive turns
// they have taken at the end of the dialogue history.
func (s *SceneState) TrailingSpeakerRun() (string, int) {
	if len(s.DialogueHistory) == 0 {
		return "", 0
	}
	last := s.DialogueHistory[len(s.DialogueHistory)-1].Speaker
	run := 0
	for i := len(s.DialogueHistory) - 1; i >= 0; i-- {
		if s.DialogueHistory[i].Speaker != last {
			break
		}
		run++
	}
	return last, run
}

// DialogueStreak counts trailing turns that were speech rather than action.
func (s *SceneState) DialogueStreak() int {
	n := 0
	for i := len(s.DialogueHistory) - 1; i >= 0; i-- {
		if _, ok := s.DialogueHistory[i].ActionType(); ok {
			break
		}
		n++
	}
	return n
}

// LastTurn returns the most recent dialogue turn.
func (s *SceneState) LastTurn() (Turn, bool) {
	if len(s.DialogueHistory) == 0 {
		return Turn{}, false
	}
	return s.DialogueHistory[len(s.DialogueHistory)-1], true
}

// RecordTalk completes the current turn as speech. The stagnation counter
// grows because nothing in the world changed.
func (s *SceneState) RecordTalk(speaker, speech string, now time.Time) (Turn, Event) {
	s.CurrentTurn++
	s.TurnsSinceStateChange++
	turn := Turn{Number: s.CurrentTurn, Speaker: speaker, Text: speech, Timestamp: now}
	ev := Event{Type: EventDialogue, Speaker: speaker, Content: speech, Turn: s.CurrentTurn, Timestamp: now}
	s.DialogueHistory = append(s.DialogueHistory, turn)
	s.Events = append(s.Events, ev)
	s.UpdatedAt = now
	return turn, ev
}

// RecordAction completes the current turn as a successful action, applying
// its patch to the world and resetting the stagnation counter.
func (s *SceneState) RecordAction(speaker string, choice ActionChoice, narration string, patch Patch, now time.Time) (Turn, Event) {
	s.World.Apply(patch)
	s.CurrentTurn++
	s.TurnsSinceStateChange = 0
	s.ActionsTaken = append(s.ActionsTaken, choice.Kind)
	turn := Turn{
		Number:    s.CurrentTurn,
		Speaker:   speaker,
		Text:      fmt.Sprintf("[ACTION: %s] %s", choice.Kind, narration),
		Timestamp: now,
		Metadata:  map[string]any{"action_type": string(choice.Kind)},
	}
	ev := Event{
		Type:    EventAction,
		Speaker: speaker,
		Content: narration,
		Turn:    s.CurrentTurn,
		Action: &ActionRecord{
			Kind:   choice.Kind,
			Actor:  speaker,
			Target: choice.Target,
			Params: choice.Params,
		},
		Timestamp: now,
	}
	s.DialogueHistory = append(s.DialogueHistory, turn)
	s.Events = append(s.Events, ev)
	s.UpdatedAt = now
	return turn, ev
}

// AddNarration appends a director narration event at the current turn.
func (s *SceneState) AddNarration(text string, conclusion bool, now time.Time) Event {
	ev := Event{Type: EventNarration, Content: text, Turn: s.CurrentTurn, Conclusion: conclusion, Timestamp: now}
	s.Events = append(s.Events, ev)
	s.UpdatedAt = now
	return ev
}

// Conclude marks the scene finished.
func (s *SceneState) Conclude(reason string) {
	s.IsConcluded = true
	s.ConclusionReason = reason
}

// ClearScratch resets per-turn transient fields.
func (s *SceneState) ClearScratch() {
	s.NextSpeaker = ""
	s.ForceAct = false
	s.SuggestedAction = ""
	s.PendingDecision = nil
}

// ScratchClear reports whether every per-turn field is empty.
func (s *SceneState) ScratchClear() bool {
	return s.NextSpeaker == "" && !s.ForceAct && s.SuggestedAction == "" && s.PendingDecision == nil
}

// Invariant violations reported by Validate.
var (
	ErrTooManyActions   = errors.New("more actions recorded than turns taken")
	ErrTurnOrder        = errors.New("dialogue turn numbers out of order")
	ErrMemoryOverflow   = errors.New("memory buffer exceeds configured size")
	ErrTurnBudgetBroken = errors.New("current turn past budget")
)

// Validate checks the structural invariants of the scene.
func (s *SceneState) Validate() error {
	if len(s.ActionsTaken) > s.CurrentTurn {
		return fmt.Errorf("%w: %d actions at turn %d", ErrTooManyActions, len(s.ActionsTaken), s.CurrentTurn)
	}
	if s.TotalTurns > 0 && s.CurrentTurn > s.TotalTurns {
		return fmt.Errorf("%w: turn %d of %d", ErrTurnBudgetBroken, s.CurrentTurn, s.TotalTurns)
	}
	prev := 0
	for _, t := range s.DialogueHistory {
		if t.Number != prev+1 {
			return fmt.Errorf("%w: turn %d follows %d", ErrTurnOrder, t.Number, prev)
		}
		prev = t.Number
	}
	if prev != s.CurrentTurn {
		return fmt.Errorf("%w: history ends at %d but current turn is %d", ErrTurnOrder, prev, s.CurrentTurn)
	}
	for name, m := range s.Memories {
		if len(m.RecentEvents) > s.MemoryBufferSize {
			return fmt.Errorf("%w: %s holds %d of %d", ErrMemoryOverflow, name, len(m.RecentEvents), s.MemoryBufferSize)
		}
	}
	return nil
}
