package prompts

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// PromptState is a reduced scene view for prompts. Director prompts see the
// whole scene; character prompts carry only what that character witnessed.
type PromptState struct {
	Title       string
	Description string
	Rating      string
	Turn        int
	TotalTurns  int
	Remaining   int
	Phase       string
	Cast        []CastMember
	World       state.World
	UsedActions []state.ActionKind
	Distinct    int
	Recent      []string
}

// CastMember is one character line in a prompt.
type CastMember struct {
	Name        string
	Description string
	Departed    bool
	Self        bool
}

// ToPromptState builds the director's view with the last historyLimit timeline lines.
func ToPromptState(s *state.SceneState, historyLimit int) *PromptState {
	ps := basePromptState(s, "")
	ps.Recent = recentLines(s, historyLimit)
	return ps
}

// ToCharacterPromptState builds the view of one character. Recent lines come
// from the character's own memory, not the shared timeline.
func ToCharacterPromptState(s *state.SceneState, speaker string) *PromptState {
	ps := basePromptState(s, speaker)
	if mem := s.Memories[speaker]; mem != nil {
		ps.Recent = append([]string(nil), mem.RecentEvents...)
	}
	return ps
}

func basePromptState(s *state.SceneState, self string) *PromptState {
	ps := &PromptState{
		Title:       s.Seed.Title,
		Description: s.Seed.Description,
		Rating:      s.Seed.Rating,
		Turn:        s.CurrentTurn,
		TotalTurns:  s.TotalTurns,
		Remaining:   s.Remaining(),
		Phase:       Phase(s.CurrentTurn, s.TotalTurns),
		World:       s.World,
		Distinct:    s.DistinctActions(),
	}
	if ps.Title == "" {
		ps.Title = "Untitled"
	}
	for _, c := range s.Characters {
		ps.Cast = append(ps.Cast, CastMember{
			Name:        c.Name,
			Description: c.Description,
			Departed:    s.Departed(c.Name),
			Self:        c.Name == self,
		})
	}
	seen := make(map[state.ActionKind]bool)
	for _, k := range s.ActionsTaken {
		if !seen[k] {
			seen[k] = true
			ps.UsedActions = append(ps.UsedActions, k)
		}
	}
	slices.Sort(ps.UsedActions)
	return ps
}

// recentLines renders the tail of the event timeline. Dialogue lines are
// clipped to keep prompts short.
func recentLines(s *state.SceneState, limit int) []string {
	events := s.Events
	if limit > 0 && len(events) > limit {
		events = events[len(events)-limit:]
	}
	lines := make([]string, 0, len(events))
	for _, ev := range events {
		switch ev.Type {
		case state.EventNarration:
			lines = append(lines, fmt.Sprintf("[%d] (narration) %s", ev.Turn, clip(ev.Content, 160)))
		default:
			lines = append(lines, fmt.Sprintf("[%d] %s: %s", ev.Turn, ev.Speaker, clip(ev.Content, 130)))
		}
	}
	return lines
}

func clip(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}

// UsedList renders the used action kinds, or "none yet".
func (ps *PromptState) UsedList() string {
	if len(ps.UsedActions) == 0 {
		return "none yet"
	}
	parts := make([]string, len(ps.UsedActions))
	for i, k := range ps.UsedActions {
		parts[i] = string(k)
	}
	return strings.Join(parts, ", ")
}

// ToString renders the view as plain text sections.
//
// Example output:
// SCENE: "Roadside Dispute"
// A rickshaw has clipped a car at a busy junction.
//
// Turn 4/12 | Phase: CONFLICT | Remaining: 8
// Actions so far: 2 distinct (CALL_POLICE, EXAMINE_DAMAGE)
//
// CAST:
// - Amir Khan: A rickshaw driver.
// - Constable Raza (departed): A traffic constable.
//
// WORLD STATE:
// - crowd: 4
// - lane blocked
//
// RECENT:
// [3] Amir Khan: It was not my fault!
func (ps *PromptState) ToString() string {
	var sb strings.Builder

	sb.WriteString(fmt.Sprintf("SCENE: %q\n", ps.Title))
	if ps.Description != "" {
		sb.WriteString(ps.Description)
		sb.WriteString("\n")
	}

	sb.WriteString(fmt.Sprintf("\nTurn %d/%d | Phase: %s | Remaining: %d\n", ps.Turn, ps.TotalTurns, ps.Phase, ps.Remaining))
	sb.WriteString(fmt.Sprintf("Actions so far: %d distinct (%s)\n", ps.Distinct, ps.UsedList()))

	if len(ps.Cast) > 0 {
		sb.WriteString("\nCAST:\n")
		for _, c := range ps.Cast {
			sb.WriteString("- " + c.Name)
			if c.Self {
				sb.WriteString(" (YOU)")
			}
			if c.Departed {
				sb.WriteString(" (departed)")
			}
			if c.Description != "" {
				sb.WriteString(": " + c.Description)
			}
			sb.WriteString("\n")
		}
	}

	sb.WriteString("\nWORLD STATE:\n")
	world := worldLines(ps.World)
	if len(world) == 0 {
		sb.WriteString("- No changes yet.\n")
	}
	for _, line := range world {
		sb.WriteString("- " + line + "\n")
	}

	sb.WriteString("\nRECENT:\n")
	if len(ps.Recent) == 0 {
		sb.WriteString("No dialogue yet. The scene is just starting.\n")
	}
	for _, line := range ps.Recent {
		sb.WriteString(line + "\n")
	}

	return sb.String()
}

// worldLines lists levels, true flags and set values in a stable order.
func worldLines(w state.World) []string {
	var lines []string
	for _, k := range slices.Sorted(maps.Keys(w.Levels)) {
		lines = append(lines, fmt.Sprintf("%s: %d", humanize(k), w.Levels[k]))
	}
	for _, f := range w.TrueFlags() {
		lines = append(lines, humanize(f))
	}
	for _, k := range slices.Sorted(maps.Keys(w.Records)) {
		rec := w.Records[k]
		parts := make([]string, 0, len(rec))
		for _, rk := range slices.Sorted(maps.Keys(rec)) {
			parts = append(parts, fmt.Sprintf("%s=%v", rk, rec[rk]))
		}
		lines = append(lines, fmt.Sprintf("%s: %s", humanize(k), strings.Join(parts, ", ")))
	}
	for _, k := range slices.Sorted(maps.Keys(w.Values)) {
		if v := w.Values[k]; v != nil {
			lines = append(lines, fmt.Sprintf("%s: %v", humanize(k), v))
		}
	}
	return lines
}

func humanize(field string) string {
	return strings.ReplaceAll(field, "_", " ")
}
