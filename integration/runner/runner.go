// Package runner drives scene runs through the HTTP API and checks the
// results against case expectations.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/internal/handlers"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// PollInterval is how often a running scene is checked for completion.
var PollInterval = 1 * time.Second

// Runner executes test cases against a running API and worker.
type Runner struct {
	BaseURL string
	Client  *http.Client
	Timeout time.Duration
	Logger  func(format string, args ...any)
}

func NewRunner(baseURL string) *Runner {
	return &Runner{
		BaseURL: baseURL,
		Client:  &http.Client{Timeout: 30 * time.Second},
		Timeout: 5 * time.Minute,
		Logger:  func(string, ...any) {},
	}
}

// LoadCase reads one case file.
func LoadCase(path string) (TestCase, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return TestCase{}, fmt.Errorf("read case: %w", err)
	}
	var tc TestCase
	if err := json.Unmarshal(data, &tc); err != nil {
		return TestCase{}, fmt.Errorf("parse case %s: %w", path, err)
	}
	if tc.Name == "" {
		tc.Name = filepath.Base(path)
	}
	if tc.Scenario == "" {
		return TestCase{}, fmt.Errorf("case %s has no scenario", path)
	}
	return tc, nil
}

// Run queues the case, waits for the scene to end and checks it.
func (r *Runner) Run(ctx context.Context, tc TestCase) RunResult {
	start := time.Now()
	result := RunResult{Case: tc}

	runID, err := r.createRun(ctx, tc)
	if err != nil {
		result.Error = err
		return result
	}
	result.RunID = runID
	r.Logger("queued %s as run %s", tc.Name, runID)

	s, evs, err := r.waitForConclusion(ctx, runID)
	result.Duration = time.Since(start)
	if err != nil {
		result.Error = err
		return result
	}
	result.Checks = Check(tc.Expect, s, evs)
	return result
}

func (r *Runner) createRun(ctx context.Context, tc TestCase) (uuid.UUID, error) {
	body, err := json.Marshal(handlers.CreateRunRequest{Scenario: tc.Scenario, MaxTurns: tc.MaxTurns})
	if err != nil {
		return uuid.Nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/v1/runs", bytes.NewReader(body))
	if err != nil {
		return uuid.Nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.Client.Do(req)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to create run: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusAccepted {
		data, _ := io.ReadAll(resp.Body)
		return uuid.Nil, fmt.Errorf("runs endpoint returned %d (expected 202): %s", resp.StatusCode, data)
	}
	var created handlers.CreateRunResponse
	if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
		return uuid.Nil, fmt.Errorf("failed to parse run response: %w", err)
	}
	return created.RunID, nil
}

// waitForConclusion polls the run until it concludes or the timeout passes.
func (r *Runner) waitForConclusion(ctx context.Context, runID uuid.UUID) (*state.SceneState, []state.Event, error) {
	ctx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()

	ticker := time.NewTicker(PollInterval)
	defer ticker.Stop()

	for {
		var s state.SceneState
		err := r.get(ctx, fmt.Sprintf("/v1/runs/%s", runID), &s)
		switch {
		case err == nil && s.IsConcluded:
			var evs []state.Event
			if err := r.get(ctx, fmt.Sprintf("/v1/runs/%s/events", runID), &evs); err != nil {
				return nil, nil, err
			}
			return &s, evs, nil
		case err != nil && !errors.Is(err, errNotFound):
			return nil, nil, err
		}

		select {
		case <-ctx.Done():
			return nil, nil, fmt.Errorf("run %s did not conclude: %w", runID, ctx.Err())
		case <-ticker.C:
		}
	}
}

var errNotFound = errors.New("not found")

func (r *Runner) get(ctx context.Context, path string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.BaseURL+path, nil)
	if err != nil {
		return err
	}
	resp, err := r.Client.Do(req)
	if err != nil {
		return fmt.Errorf("GET %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	switch resp.StatusCode {
	case http.StatusOK:
		return json.NewDecoder(resp.Body).Decode(v)
	case http.StatusNotFound:
		return errNotFound
	default:
		data, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, data)
	}
}

// Check evaluates every set expectation against the final scene.
func Check(e Expectations, s *state.SceneState, evs []state.Event) []CheckResult {
	var out []CheckResult
	add := func(name string, ok bool, format string, args ...any) {
		out = append(out, CheckResult{Name: name, Success: ok, Detail: fmt.Sprintf(format, args...)})
	}

	if e.Concluded != nil {
		add("concluded", s.IsConcluded == *e.Concluded, "concluded=%v", s.IsConcluded)
	}
	if e.MaxTurns != nil {
		add("max_turns", s.CurrentTurn <= *e.MaxTurns, "turn %d, limit %d", s.CurrentTurn, *e.MaxTurns)
	}
	if e.MinEvents != nil {
		add("min_events", len(evs) >= *e.MinEvents, "%d events, want >= %d", len(evs), *e.MinEvents)
	}
	if e.MinDistinctActions != nil {
		n := s.DistinctActions()
		add("min_distinct_actions", n >= *e.MinDistinctActions, "%d distinct, want >= %d", n, *e.MinDistinctActions)
	}
	if e.MaxConsecutive != nil {
		n := longestStreak(s.DialogueHistory)
		add("max_consecutive", n <= *e.MaxConsecutive, "streak %d, limit %d", n, *e.MaxConsecutive)
	}
	if e.EndsWithConclusion != nil {
		ends := len(evs) > 0 && evs[len(evs)-1].Conclusion
		add("ends_with_conclusion", ends == *e.EndsWithConclusion, "last event conclusion=%v", ends)
	}
	for flag, want := range e.Flags {
		got := s.World.Flags[flag]
		add("flag "+flag, got == want, "%s=%v, want %v", flag, got, want)
	}
	for field, limit := range e.LevelsAtMost {
		got := s.World.Levels[field]
		add("level "+field, got <= limit, "%s=%d, limit %d", field, got, limit)
	}
	if len(e.SpeakersAmong) > 0 {
		var strangers []string
		for _, t := range s.DialogueHistory {
			if !slices.Contains(e.SpeakersAmong, t.Speaker) && !slices.Contains(strangers, t.Speaker) {
				strangers = append(strangers, t.Speaker)
			}
		}
		add("speakers_among", len(strangers) == 0, "unexpected speakers %v", strangers)
	}
	for kind, limit := range e.ActionsWithinBudget {
		n := 0
		for _, k := range s.ActionsTaken {
			if string(k) == kind {
				n++
			}
		}
		add("budget "+kind, n <= limit, "%s used %d times, limit %d", kind, n, limit)
	}
	return out
}

func longestStreak(turns []state.Turn) int {
	best, cur := 0, 0
	for i, t := range turns {
		if i > 0 && turns[i-1].Speaker == t.Speaker {
			cur++
		} else {
			cur = 1
		}
		best = max(best, cur)
	}
	return best
}
