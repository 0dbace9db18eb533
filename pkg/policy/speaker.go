package policy

import (
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

// DefaultMaxConsecutive is how many turns in a row one character may take.
const DefaultMaxConsecutive = 2

// SpeakerGuard applies the no-repeat rule around speaker selection.
type SpeakerGuard struct {
	MaxConsecutive int
}

// Candidates returns who may speak next. Departed characters are left out
// unless everyone has departed, and a character who has already spoken
// MaxConsecutive times in a row is excluded unless that would leave nobody.
func (g SpeakerGuard) Candidates(s *state.SceneState) []string {
	pool := s.PresentCharacters()
	if len(pool) == 0 {
		pool = s.CharacterNames()
	}

	maxRun := g.MaxConsecutive
	if maxRun <= 0 {
		maxRun = DefaultMaxConsecutive
	}
	last, run := s.TrailingSpeakerRun()
	if run < maxRun {
		return pool
	}

	filtered := make([]string, 0, len(pool))
	for _, name := range pool {
		if name != last {
			filtered = append(filtered, name)
		}
	}
	if len(filtered) == 0 {
		return pool
	}
	return filtered
}

// Resolve clamps an externally chosen speaker to the candidate list: an
// exact match wins, then a case-insensitive substring match in either
// direction, then the first candidate.
func (g SpeakerGuard) Resolve(choice string, candidates []string) string {
	if len(candidates) == 0 {
		return ""
	}
	choice = strings.TrimSpace(choice)
	for _, c := range candidates {
		if c == choice {
			return c
		}
	}
	if choice != "" {
		lc := strings.ToLower(choice)
		for _, c := range candidates {
			cc := strings.ToLower(c)
			if strings.Contains(cc, lc) || strings.Contains(lc, cc) {
				return c
			}
		}
	}
	return candidates[0]
}
