package runner

import (
	"time"

	"github.com/google/uuid"
)

// TestCase is one integration scenario: a run request plus what must hold
// once the scene ends.
type TestCase struct {
	Name     string       `json:"name"`
	Scenario string       `json:"scenario"`
	MaxTurns int          `json:"max_turns,omitempty"`
	Expect   Expectations `json:"expect"`
}

// Expectations are checked against the final snapshot and timeline.
// Nil fields are not checked.
type Expectations struct {
	Concluded           *bool           `json:"concluded,omitempty"`
	MaxTurns            *int            `json:"max_turns,omitempty"`            // CurrentTurn upper bound
	MinEvents           *int            `json:"min_events,omitempty"`           // timeline length lower bound
	MinDistinctActions  *int            `json:"min_distinct_actions,omitempty"` // distinct applied action kinds
	MaxConsecutive      *int            `json:"max_consecutive,omitempty"`      // longest same-speaker streak
	EndsWithConclusion  *bool           `json:"ends_with_conclusion,omitempty"` // last event is the closing narration
	Flags               map[string]bool `json:"flags,omitempty"`
	LevelsAtMost        map[string]int  `json:"levels_at_most,omitempty"`
	SpeakersAmong       []string        `json:"speakers_among,omitempty"` // every speaker is one of these
	ActionsWithinBudget map[string]int  `json:"actions_within_budget,omitempty"`
}

// CheckResult is the outcome of one expectation.
type CheckResult struct {
	Name    string
	Success bool
	Detail  string
}

// RunResult contains the results of running one test case.
type RunResult struct {
	Case     TestCase
	RunID    uuid.UUID
	Checks   []CheckResult
	Error    error
	Duration time.Duration
}

// Failed reports whether the run errored or any check failed.
func (r RunResult) Failed() bool {
	if r.Error != nil {
		return true
	}
	for _, c := range r.Checks {
		if !c.Success {
			return true
		}
	}
	return false
}
