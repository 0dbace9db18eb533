package state

import "time"

// EventType classifies timeline entries.
type EventType string

const (
	EventNarration EventType = "narration"
	EventDialogue  EventType = "dialogue"
	EventAction    EventType = "action"
)

// ActionKind names an action in the catalog.
type ActionKind string

// Turn is one completed contribution by one character. Turns are never
// modified once appended to the dialogue history.
type Turn struct {
	Number    int            `json:"turn_number"`
	Speaker   string         `json:"speaker"`
	Text      string         `json:"text"`
	Timestamp time.Time      `json:"timestamp"`
	Metadata  map[string]any `json:"metadata,omitempty"`
}

// ActionType returns the action kind recorded on the turn, if any.
func (t Turn) ActionType() (ActionKind, bool) {
	k, ok := t.Metadata["action_type"].(string)
	if !ok || k == "" {
		return "", false
	}
	return ActionKind(k), true
}

// ActionRecord is the action metadata carried by an action event.
type ActionRecord struct {
	Kind   ActionKind     `json:"type"`
	Actor  string         `json:"actor"`
	Target string         `json:"target,omitempty"`
	Params map[string]any `json:"params,omitempty"`
}

// Event is a timeline entry. The event list is a superset of the dialogue
// history and also carries director narration.
type Event struct {
	Type       EventType     `json:"type"`
	Speaker    string        `json:"speaker,omitempty"`
	Content    string        `json:"content"`
	Turn       int           `json:"turn"`
	Action     *ActionRecord `json:"action,omitempty"`
	Conclusion bool          `json:"conclusion,omitempty"`
	Timestamp  time.Time     `json:"timestamp"`
}

// EmotionEntry records a speaker's reported emotion at a turn.
type EmotionEntry struct {
	Turn      int    `json:"turn"`
	Character string `json:"character"`
	Emotion   string `json:"emotion"`
}
