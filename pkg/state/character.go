package state

// Character is a scene participant's starting profile.
type Character struct {
	Name           string            `json:"name"`
	Role           string            `json:"role,omitempty"`  // e.g. "driver", "constable"
	Description    string            `json:"description"`     // short backstory used in prompts
	Goals          []string          `json:"goals,omitempty"` // what the character wants from the scene
	EmotionalState string            `json:"emotional_state,omitempty"`
	Knowledge      []string          `json:"knowledge,omitempty"`   // facts known before the scene starts
	Perceptions    map[string]string `json:"perceptions,omitempty"` // opinions of other characters
	Inventory      []string          `json:"inventory,omitempty"`
}
