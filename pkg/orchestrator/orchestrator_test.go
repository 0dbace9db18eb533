package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

const talkJSON = `{"mode":"TALK","speech":"We should sort this out.","emotion":"tense"}`

type fakeDirector struct {
	mu          sync.Mutex
	pick        func(s *state.SceneState, candidates []string) (SpeakerChoice, error)
	judge       func(s *state.SceneState) (policy.Judgement, error)
	final       string
	finalErr    error
	selectCalls int
	judgeCalls  int
	finalCalls  int
}

func (d *fakeDirector) SelectSpeaker(ctx context.Context, s *state.SceneState, candidates []string, forceAct, endgame bool) (SpeakerChoice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.selectCalls++
	if d.pick != nil {
		return d.pick(s, candidates)
	}
	return SpeakerChoice{Speaker: candidates[0]}, nil
}

func (d *fakeDirector) JudgeConclusion(ctx context.Context, s *state.SceneState) (policy.Judgement, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.judgeCalls++
	if d.judge != nil {
		return d.judge(s)
	}
	return policy.Judgement{}, nil
}

func (d *fakeDirector) NarrateConclusion(ctx context.Context, s *state.SceneState) (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.finalCalls++
	return d.final, d.finalErr
}

type openingDirector struct {
	*fakeDirector
	text string
}

func (d openingDirector) Opening(ctx context.Context, s *state.SceneState) (string, error) {
	return d.text, nil
}

type fakeCharacter struct {
	mu          sync.Mutex
	decide      func(req DecisionRequest) (string, error)
	repair      func(req DecisionRequest, raw string) (string, error)
	decideCalls int
	repairCalls int
	requests    []DecisionRequest
}

func (c *fakeCharacter) Decide(ctx context.Context, req DecisionRequest) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.decideCalls++
	c.requests = append(c.requests, req)
	if c.decide != nil {
		return c.decide(req)
	}
	return talkJSON, nil
}

func (c *fakeCharacter) Repair(ctx context.Context, req DecisionRequest, raw string) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.repairCalls++
	if c.repair != nil {
		return c.repair(req, raw)
	}
	return "", errors.New("no repair")
}

type noticeLog struct {
	mu      sync.Mutex
	notices []Notice
	onTurn  func(n Notice)
}

func (l *noticeLog) Observe(ctx context.Context, n Notice) {
	l.mu.Lock()
	l.notices = append(l.notices, n)
	l.mu.Unlock()
	if n.Kind == NoticeTurn && l.onTurn != nil {
		l.onTurn(n)
	}
}

func (l *noticeLog) kinds() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	for _, n := range l.notices {
		out = append(out, n.Kind)
	}
	return out
}

type failingRecorder struct{ calls int }

func (r *failingRecorder) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	r.calls++
	return errors.New("disk full")
}

func roadside(t *testing.T, total int) (*action.Catalog, *state.SceneState) {
	t.Helper()
	catalog, err := action.Builtin("roadside_dispute")
	require.NoError(t, err)
	chars := []state.Character{
		{Name: "Amir Khan", Role: "car owner", Description: "A startup founder late for a pitch"},
		{Name: "Constable Raza", Role: "constable", Description: "A traffic constable near the end of his shift"},
		{Name: "Mrs. Sharma", Role: "bystander", Description: "A neighbourhood aunty who saw everything"},
	}
	world := state.World{
		Levels: map[string]int{"traffic_level": 6, "tension_level": 5, "crowd_size": 3, "bribe_pressure": 0},
		Flags:  map[string]bool{"lane_blocked": true},
	}
	seed := state.Seed{Title: "Roadside Dispute", Description: "A rickshaw has scraped a sedan on a narrow Delhi lane", Catalog: catalog.Name}
	return catalog, state.New(seed, chars, total, world, 4)
}

func newOrchestrator(t *testing.T, catalog *action.Catalog, cfg Config, dir Director, char Character, obs Observer, rec Recorder) *Orchestrator {
	t.Helper()
	cfg.Strict = true
	fixed := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	o, err := New(cfg, Deps{
		Catalog:   catalog,
		Director:  dir,
		Character: char,
		Observer:  obs,
		Recorder:  rec,
		Logger:    slog.New(slog.NewTextHandler(io.Discard, nil)),
		Clock:     func() time.Time { return fixed },
	})
	require.NoError(t, err)
	return o
}

func TestNew_RequiresCollaborators(t *testing.T) {
	catalog, _ := roadside(t, 5)
	_, err := New(Config{}, Deps{Director: &fakeDirector{}, Character: &fakeCharacter{}})
	assert.ErrorContains(t, err, "catalog is required")
	_, err = New(Config{}, Deps{Catalog: catalog, Character: &fakeCharacter{}})
	assert.ErrorContains(t, err, "director is required")
	_, err = New(Config{}, Deps{Catalog: catalog, Director: &fakeDirector{}})
	assert.ErrorContains(t, err, "character is required")
}

func TestStep_MalformedDecisionFallsBack(t *testing.T) {
	catalog, s := roadside(t, 10)
	char := &fakeCharacter{
		decide: func(DecisionRequest) (string, error) { return "not json", nil },
		repair: func(DecisionRequest, string) (string, error) { return "still not json", nil },
	}
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, char, nil, nil)

	require.NoError(t, o.Step(context.Background(), s))

	assert.Equal(t, 1, s.CurrentTurn)
	require.Len(t, s.DialogueHistory, 1)
	assert.NotEmpty(t, strings.TrimSpace(s.DialogueHistory[0].Text))
	assert.Empty(t, s.ActionsTaken)
	assert.Equal(t, 1, char.repairCalls)
	assert.True(t, s.ScratchClear(), "scratch should be cleared after the step")
}

func TestStep_StagnationForcesAction(t *testing.T) {
	catalog, s := roadside(t, 10)
	char := &fakeCharacter{}
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, char, nil, nil)
	ctx := context.Background()

	require.NoError(t, o.Step(ctx, s))
	require.NoError(t, o.Step(ctx, s))
	assert.Equal(t, 2, s.TurnsSinceStateChange)
	assert.Empty(t, s.ActionsTaken)

	require.NoError(t, o.Step(ctx, s))
	require.Equal(t, []state.ActionKind{"CALL_POLICE"}, s.ActionsTaken)
	assert.Equal(t, 0, s.TurnsSinceStateChange)
	assert.True(t, s.World.Flags["police_present"])
	assert.Equal(t, "Turn 3: Constable Raza [FORCE ACT]", s.DirectorNotes[2])

	last, _ := s.LastTurn()
	assert.Equal(t, "Constable Raza", last.Speaker)
	assert.True(t, strings.HasPrefix(last.Text, "[ACTION: CALL_POLICE] Constable Raza pulls out their phone"), last.Text)

	// The forced turn showed the character only the suggested action.
	req := char.requests[2]
	assert.True(t, req.ForceAct)
	assert.Equal(t, action.Kind("CALL_POLICE"), req.Suggested)
	require.Len(t, req.Menu, 1)
	assert.Equal(t, action.Kind("CALL_POLICE"), req.Menu[0].Kind)
}

func TestStep_RejectedActionBecomesTalk(t *testing.T) {
	catalog, s := roadside(t, 10)
	s.World.Apply(state.Patch{"police_present": true})
	char := &fakeCharacter{decide: func(DecisionRequest) (string, error) {
		return `{"mode":"ACT","action":{"type":"ISSUE_CHALLAN"}}`, nil
	}}
	obs := &noticeLog{}
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, char, obs, nil)

	require.NoError(t, o.Step(context.Background(), s))

	assert.Equal(t, 1, s.CurrentTurn)
	require.Len(t, s.DialogueHistory, 1)
	assert.Equal(t, "*Amir Khan hesitates, unsure what to do*", s.DialogueHistory[0].Text)
	assert.Empty(t, s.ActionsTaken)
	assert.Equal(t, 1, s.TurnsSinceStateChange)
	assert.False(t, s.World.Signal("challan_issued"))
	assert.Contains(t, obs.kinds(), NoticeRejected)
}

func TestStep_HardStopSkipsSpeaker(t *testing.T) {
	catalog, s := roadside(t, 2)
	now := time.Now()
	s.RecordTalk("Amir Khan", "Look at my door!", now)
	s.RecordTalk("Constable Raza", "Everyone calm down.", now)

	dir := &fakeDirector{final: "The constable waves the traffic on and the crowd melts away."}
	char := &fakeCharacter{}
	o := newOrchestrator(t, catalog, Config{}, dir, char, nil, nil)

	require.NoError(t, o.Step(context.Background(), s))

	assert.True(t, s.IsConcluded)
	assert.Equal(t, 2, s.CurrentTurn)
	assert.Equal(t, 0, dir.selectCalls)
	assert.Equal(t, 0, char.decideCalls)
	assert.Equal(t, dir.final, s.ConclusionReason)
	lastEvent := s.Events[len(s.Events)-1]
	assert.True(t, lastEvent.Conclusion)
	assert.Equal(t, state.EventNarration, lastEvent.Type)
}

func TestRun_BudgetExhaustionConcludes(t *testing.T) {
	catalog, s := roadside(t, 4)
	dir := &fakeDirector{finalErr: errors.New("model timeout")}
	o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))

	assert.True(t, s.IsConcluded)
	assert.Equal(t, 4, s.CurrentTurn)
	assert.Equal(t, policy.FallbackConclusion, s.ConclusionReason)
	assert.Equal(t, 0, dir.judgeCalls, "strict gate should never consult with too few actions")
	require.NoError(t, s.Validate())
	for i, turn := range s.DialogueHistory {
		assert.Equal(t, i+1, turn.Number)
	}
	assert.True(t, s.ScratchClear())
}

func TestRun_JudgeEndsScene(t *testing.T) {
	catalog, s := roadside(t, 10)
	dir := &fakeDirector{judge: func(*state.SceneState) (policy.Judgement, error) {
		return policy.Judgement{ShouldEnd: true, Narration: "They swap numbers and go their separate ways."}, nil
	}}
	char := &fakeCharacter{decide: func(DecisionRequest) (string, error) {
		return `{"mode":"ACT","action":{"type":"EXCHANGE_CONTACTS"}}`, nil
	}}
	cfg := Config{Conclusion: &policy.ConclusionRules{MinTurns: 2, MinActions: 1}}
	o := newOrchestrator(t, catalog, cfg, dir, char, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, 2, s.CurrentTurn)
	assert.Equal(t, 1, dir.judgeCalls)
	assert.Equal(t, "They swap numbers and go their separate ways.", s.ConclusionReason)
	assert.True(t, s.World.Signal("contacts_exchanged"))
}

func TestRun_JudgeDeclinesContinues(t *testing.T) {
	catalog, s := roadside(t, 5)
	dir := &fakeDirector{judge: func(*state.SceneState) (policy.Judgement, error) {
		return policy.Judgement{}, errors.New("unparseable")
	}}
	char := &fakeCharacter{decide: func(DecisionRequest) (string, error) {
		return `{"mode":"ACT","action":{"type":"EXCHANGE_CONTACTS"}}`, nil
	}}
	cfg := Config{Conclusion: &policy.ConclusionRules{MinTurns: 1, MinActions: 1}}
	o := newOrchestrator(t, catalog, cfg, dir, char, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, 5, s.CurrentTurn)
	assert.Equal(t, 4, dir.judgeCalls)
	assert.Equal(t, policy.FallbackConclusion, s.ConclusionReason)
}

func TestRun_NoThreeInARow(t *testing.T) {
	catalog, s := roadside(t, 9)
	dir := &fakeDirector{pick: func(*state.SceneState, []string) (SpeakerChoice, error) {
		return SpeakerChoice{Speaker: "Amir Khan"}, nil
	}}
	o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))

	run := 0
	prev := ""
	for _, turn := range s.DialogueHistory {
		if turn.Speaker == prev {
			run++
		} else {
			run = 1
			prev = turn.Speaker
		}
		assert.LessOrEqual(t, run, 2, "turn %d", turn.Number)
	}
	assert.Equal(t, "Constable Raza", s.DialogueHistory[2].Speaker)
}

func TestRun_OpeningAndNotes(t *testing.T) {
	catalog, s := roadside(t, 2)
	dir := openingDirector{fakeDirector: &fakeDirector{}, text: "Horns blare as a crowd gathers around two scraped vehicles."}
	obs := &noticeLog{}
	o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, obs, nil)

	require.NoError(t, o.Run(context.Background(), s))

	require.NotEmpty(t, s.Events)
	assert.Equal(t, state.EventNarration, s.Events[0].Type)
	assert.Equal(t, 0, s.Events[0].Turn)
	assert.Equal(t, dir.text, s.Events[0].Content)
	assert.Equal(t, "Turn 1: Amir Khan", s.DirectorNotes[0])
	kinds := obs.kinds()
	assert.Equal(t, NoticeOpening, kinds[0])
	assert.Equal(t, NoticeConcluded, kinds[len(kinds)-1])
}

func TestRun_UnavailableIsFatal(t *testing.T) {
	catalog, s := roadside(t, 10)

	t.Run("director", func(t *testing.T) {
		dir := &fakeDirector{pick: func(*state.SceneState, []string) (SpeakerChoice, error) {
			return SpeakerChoice{}, fmt.Errorf("gemini: %w", chat.ErrUnavailable)
		}}
		o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, nil, nil)
		err := o.Run(context.Background(), s)
		require.ErrorIs(t, err, chat.ErrUnavailable)
		assert.Equal(t, 0, s.CurrentTurn)
		assert.False(t, s.IsConcluded)
	})

	t.Run("character", func(t *testing.T) {
		char := &fakeCharacter{decide: func(DecisionRequest) (string, error) {
			return "", chat.ErrUnavailable
		}}
		o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, char, nil, nil)
		err := o.Run(context.Background(), s)
		require.ErrorIs(t, err, chat.ErrUnavailable)
		assert.Equal(t, 0, s.CurrentTurn)
	})
}

func TestRun_SpeakerErrorFallsBackToFirstCandidate(t *testing.T) {
	catalog, s := roadside(t, 10)
	dir := &fakeDirector{pick: func(*state.SceneState, []string) (SpeakerChoice, error) {
		return SpeakerChoice{}, errors.New("bad json")
	}}
	o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, nil, nil)

	require.NoError(t, o.Step(context.Background(), s))
	assert.Equal(t, "Amir Khan", s.DialogueHistory[0].Speaker)
}

func TestRun_Cancelled(t *testing.T) {
	catalog, s := roadside(t, 10)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	obs := &noticeLog{onTurn: func(Notice) { cancel() }}
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, &fakeCharacter{}, obs, nil)

	err := o.Run(ctx, s)
	require.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, s.CurrentTurn)
	assert.False(t, s.IsConcluded)
}

func TestRun_RecorderErrorsAreNotFatal(t *testing.T) {
	catalog, s := roadside(t, 3)
	rec := &failingRecorder{}
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, &fakeCharacter{}, nil, rec)

	require.NoError(t, o.Run(context.Background(), s))
	assert.True(t, s.IsConcluded)
	assert.Equal(t, 4, rec.calls, "one snapshot per turn plus the conclusion")
}

func TestRun_MemoryAndEmotion(t *testing.T) {
	catalog, s := roadside(t, 2)
	o := newOrchestrator(t, catalog, Config{}, &fakeDirector{}, &fakeCharacter{}, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))

	assert.Equal(t, "tense", s.Memories["Amir Khan"].EmotionalState)
	assert.Len(t, s.Memories["Mrs. Sharma"].RecentEvents, 2)
	assert.Len(t, s.EmotionHistory, 2)
}

func TestRun_AlreadyConcluded(t *testing.T) {
	catalog, s := roadside(t, 5)
	s.Conclude("done")
	dir := &fakeDirector{}
	o := newOrchestrator(t, catalog, Config{}, dir, &fakeCharacter{}, nil, nil)

	require.NoError(t, o.Run(context.Background(), s))
	require.NoError(t, o.Step(context.Background(), s))
	assert.Equal(t, 0, dir.selectCalls)
}

func TestMenuFor(t *testing.T) {
	catalog, _ := roadside(t, 5)
	allowed := []action.Kind{"CALL_POLICE", "CHECK_DAMAGE"}

	assert.Len(t, MenuFor(catalog, allowed, false, "CHECK_DAMAGE"), 2)
	menu := MenuFor(catalog, allowed, true, "CHECK_DAMAGE")
	require.Len(t, menu, 1)
	assert.Equal(t, action.Kind("CHECK_DAMAGE"), menu[0].Kind)
	assert.Len(t, MenuFor(catalog, allowed, true, "ISSUE_CHALLAN"), 2)
}

var _ Character = (*fakeCharacter)(nil)
var _ decision.Responder = (*fakeCharacter)(nil)
