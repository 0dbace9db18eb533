package state

import (
	"errors"
	"testing"
	"time"
)

func testScene(t *testing.T) *SceneState {
	t.Helper()
	chars := []Character{
		{Name: "Amir", Description: "A rickshaw driver", EmotionalState: "angry"},
		{Name: "Constable Raza", Description: "A traffic constable"},
	}
	world := World{
		Levels: map[string]int{"tension_level": 7},
		Flags:  map[string]bool{"lane_blocked": true},
	}
	return New(Seed{Title: "Fender bender"}, chars, 10, world, 3)
}

func TestNew(t *testing.T) {
	s := testScene(t)
	if len(s.Memories) != 2 {
		t.Fatalf("expected 2 memory buffers, got %d", len(s.Memories))
	}
	if got := s.Memories["Amir"].EmotionalState; got != "angry" {
		t.Errorf("expected seeded emotion angry, got %q", got)
	}
	if got := s.Memories["Constable Raza"].EmotionalState; got != "neutral" {
		t.Errorf("expected default emotion neutral, got %q", got)
	}
	if s.CurrentTurn != 0 || s.IsConcluded {
		t.Error("new scene should start at turn 0, not concluded")
	}
}

func TestRecordTalkAndAction(t *testing.T) {
	s := testScene(t)
	now := time.Now()

	s.RecordTalk("Amir", "Look at my rickshaw!", now)
	s.RecordTalk("Constable Raza", "Calm down.", now)
	if s.CurrentTurn != 2 {
		t.Fatalf("expected turn 2, got %d", s.CurrentTurn)
	}
	if s.TurnsSinceStateChange != 2 {
		t.Errorf("expected stagnation 2, got %d", s.TurnsSinceStateChange)
	}
	if s.DialogueStreak() != 2 {
		t.Errorf("expected dialogue streak 2, got %d", s.DialogueStreak())
	}

	choice := ActionChoice{Kind: "MOVE_VEHICLE_ASIDE"}
	turn, ev := s.RecordAction("Amir", choice, "Amir pushes the rickshaw aside.", Patch{"lane_blocked": false, "tension_level": 5}, now)
	if s.CurrentTurn != 3 || turn.Number != 3 || ev.Turn != 3 {
		t.Errorf("expected turn 3, got state=%d turn=%d event=%d", s.CurrentTurn, turn.Number, ev.Turn)
	}
	if s.TurnsSinceStateChange != 0 {
		t.Errorf("expected stagnation reset, got %d", s.TurnsSinceStateChange)
	}
	if s.World.Flags["lane_blocked"] {
		t.Error("expected lane_blocked cleared")
	}
	if k, ok := turn.ActionType(); !ok || k != "MOVE_VEHICLE_ASIDE" {
		t.Errorf("expected action metadata, got %v", turn.Metadata)
	}
	if s.DialogueStreak() != 0 {
		t.Errorf("expected dialogue streak 0 after action, got %d", s.DialogueStreak())
	}
	if err := s.Validate(); err != nil {
		t.Errorf("unexpected invariant violation: %v", err)
	}
}

func TestTrailingSpeakerRun(t *testing.T) {
	s := testScene(t)
	now := time.Now()
	if _, run := s.TrailingSpeakerRun(); run != 0 {
		t.Errorf("expected empty run, got %d", run)
	}
	s.RecordTalk("Constable Raza", "a", now)
	s.RecordTalk("Amir", "b", now)
	s.RecordTalk("Amir", "c", now)
	name, run := s.TrailingSpeakerRun()
	if name != "Amir" || run != 2 {
		t.Errorf("expected Amir x2, got %s x%d", name, run)
	}
}

func TestDistinctActions(t *testing.T) {
	s := testScene(t)
	s.ActionsTaken = []ActionKind{"A", "B", "A"}
	if s.DistinctActions() != 2 {
		t.Errorf("expected 2 distinct, got %d", s.DistinctActions())
	}
	if s.ActionCount("A") != 2 {
		t.Errorf("expected A twice, got %d", s.ActionCount("A"))
	}
}

func TestPresentCharacters(t *testing.T) {
	s := testScene(t)
	s.World.Apply(Patch{DepartedFlag("Amir"): true})
	present := s.PresentCharacters()
	if len(present) != 1 || present[0] != "Constable Raza" {
		t.Errorf("expected only Constable Raza present, got %v", present)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *SceneState)
		wantErr error
	}{
		{
			name:    "too many actions",
			mutate:  func(s *SceneState) { s.ActionsTaken = []ActionKind{"X"} },
			wantErr: ErrTooManyActions,
		},
		{
			name: "memory overflow",
			mutate: func(s *SceneState) {
				s.Memories["Amir"].RecentEvents = []string{"a", "b", "c", "d"}
			},
			wantErr: ErrMemoryOverflow,
		},
		{
			name:    "turn without history",
			mutate:  func(s *SceneState) { s.CurrentTurn = 1 },
			wantErr: ErrTurnOrder,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := testScene(t)
			tt.mutate(s)
			if err := s.Validate(); !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestClearScratch(t *testing.T) {
	s := testScene(t)
	d := Talk("hi")
	s.NextSpeaker = "Amir"
	s.ForceAct = true
	s.SuggestedAction = "CALL_POLICE"
	s.PendingDecision = &d
	s.ClearScratch()
	if !s.ScratchClear() {
		t.Error("expected scratch fields to be cleared")
	}
}

func TestPushBounded(t *testing.T) {
	var buf []string
	for _, line := range []string{"1", "2", "3", "4", "5"} {
		buf = PushBounded(buf, line, 3)
		if len(buf) > 3 {
			t.Fatalf("buffer grew past bound: %v", buf)
		}
	}
	if buf[0] != "3" || buf[2] != "5" {
		t.Errorf("expected oldest entries evicted, got %v", buf)
	}
}
