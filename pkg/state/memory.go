package state

import "maps"

// DefaultMemoryBufferSize bounds RecentEvents when no size is configured.
const DefaultMemoryBufferSize = 6

// MemoryBuffer is one character's private view of the scene.
type MemoryBuffer struct {
	Knowledge      []string          `json:"knowledge"`
	RecentEvents   []string          `json:"recent_events"`
	EmotionalState string            `json:"emotional_state"`
	Perceptions    map[string]string `json:"perceptions,omitempty"`
	Inventory      []string          `json:"inventory,omitempty"`
}

// NewMemoryBuffer seeds a buffer from the character's starting profile.
func NewMemoryBuffer(c Character) *MemoryBuffer {
	emotion := c.EmotionalState
	if emotion == "" {
		emotion = "neutral"
	}
	mb := &MemoryBuffer{
		Knowledge:      append([]string(nil), c.Knowledge...),
		RecentEvents:   []string{},
		EmotionalState: emotion,
		Perceptions:    maps.Clone(c.Perceptions),
		Inventory:      append([]string(nil), c.Inventory...),
	}
	if mb.Knowledge == nil {
		mb.Knowledge = []string{}
	}
	return mb
}

// Remember appends a line to RecentEvents, evicting the oldest entries beyond size.
func (m *MemoryBuffer) Remember(line string, size int) {
	m.RecentEvents = PushBounded(m.RecentEvents, line, size)
}

// Learn appends an unbounded knowledge fact.
func (m *MemoryBuffer) Learn(fact string) {
	m.Knowledge = append(m.Knowledge, fact)
}

// Perceive records what this character thinks of another.
func (m *MemoryBuffer) Perceive(name, view string) {
	if m.Perceptions == nil {
		m.Perceptions = make(map[string]string)
	}
	m.Perceptions[name] = view
}

// PushBounded appends line and keeps only the last size entries.
func PushBounded(buf []string, line string, size int) []string {
	if size <= 0 {
		size = DefaultMemoryBufferSize
	}
	buf = append(buf, line)
	if over := len(buf) - size; over > 0 {
		buf = append(buf[:0:0], buf[over:]...)
	}
	return buf
}
