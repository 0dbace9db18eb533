package memory

import (
	"fmt"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

func newScene(bufferSize int) *state.SceneState {
	chars := []state.Character{{Name: "Amir"}, {Name: "Raza"}, {Name: "Kapoor"}}
	world := state.World{Flags: map[string]bool{"lane_blocked": true}}
	return state.New(state.Seed{Title: "t"}, chars, 20, world, bufferSize)
}

func TestUpdate_Dialogue(t *testing.T) {
	s := newScene(6)
	p := New(6)
	_, ev := s.RecordTalk("Amir", strings.Repeat("x", 100), time.Now())
	d := state.Talk("...")
	d.Emotion = "furious"

	p.Update(s, "Amir", nil, ev, &d)

	want := fmt.Sprintf("T1: Amir said: \"%s\"", strings.Repeat("x", 80))
	for _, name := range []string{"Amir", "Raza", "Kapoor"} {
		got := s.Memories[name].RecentEvents
		if len(got) != 1 || got[0] != want {
			t.Errorf("%s: expected %q, got %v", name, want, got)
		}
		if len(s.Memories[name].Knowledge) != 0 {
			t.Errorf("%s: dialogue should not add knowledge", name)
		}
	}
	if s.Memories["Amir"].EmotionalState != "furious" {
		t.Errorf("expected speaker emotion updated, got %q", s.Memories["Amir"].EmotionalState)
	}
	if s.Memories["Raza"].EmotionalState != "neutral" {
		t.Error("listener emotion should not change")
	}
	if len(s.EmotionHistory) != 1 || s.EmotionHistory[0].Emotion != "furious" {
		t.Errorf("expected emotion history entry, got %v", s.EmotionHistory)
	}
}

func TestUpdate_DepartedDoesNotWitness(t *testing.T) {
	s := newScene(6)
	p := New(6)
	s.World.Apply(state.Patch{state.DepartedFlag("Kapoor"): true, state.DepartedFlag("Amir"): true})

	_, ev := s.RecordTalk("Amir", "I'm back to say one thing.", time.Now())
	p.Update(s, "Amir", nil, ev, nil)

	if len(s.Memories["Kapoor"].RecentEvents) != 0 {
		t.Errorf("departed Kapoor should not witness, got %v", s.Memories["Kapoor"].RecentEvents)
	}
	if len(s.Memories["Amir"].RecentEvents) != 1 {
		t.Error("departed speaker should still witness their own turn")
	}
	if len(s.Memories["Raza"].RecentEvents) != 1 {
		t.Error("present Raza should witness")
	}
}

func TestUpdate_ActionFacts(t *testing.T) {
	s := newScene(6)
	p := New(6)
	witnesses := Witnesses(s, "Raza")
	choice := state.ActionChoice{Kind: "CALL_POLICE"}
	_, ev := s.RecordAction("Raza", choice, "Raza calls the police.", state.Patch{"police_present": true}, time.Now())

	p.Update(s, "Raza", witnesses, ev, nil)

	fact := "[FACT] CALL_POLICE by Raza | lane blocked | police present"
	for _, name := range []string{"Amir", "Raza", "Kapoor"} {
		mem := s.Memories[name]
		if !slices.Contains(mem.Knowledge, fact) {
			t.Errorf("%s: expected fact in knowledge, got %v", name, mem.Knowledge)
		}
		if len(mem.RecentEvents) != 2 || mem.RecentEvents[0] != "T1: Raza performed CALL_POLICE" || mem.RecentEvents[1] != fact {
			t.Errorf("%s: unexpected recent events %v", name, mem.RecentEvents)
		}
	}
	if !slices.Contains(s.Memories["Raza"].Knowledge, "I performed CALL_POLICE at turn 1") {
		t.Errorf("actor should know their own action, got %v", s.Memories["Raza"].Knowledge)
	}
	if slices.Contains(s.Memories["Amir"].Knowledge, "I performed CALL_POLICE at turn 1") {
		t.Error("non-actor should not get first-person knowledge")
	}
}

func TestUpdate_DepartureAppliesFromNextTurn(t *testing.T) {
	s := newScene(6)
	p := New(6)

	// Kapoor is present when Amir's action sends her away; she still sees it.
	witnesses := Witnesses(s, "Amir")
	_, ev := s.RecordAction("Amir", state.ActionChoice{Kind: "SHOO"}, "Amir waves Kapoor off.",
		state.Patch{state.DepartedFlag("Kapoor"): true}, time.Now())
	p.Update(s, "Amir", witnesses, ev, nil)
	if len(s.Memories["Kapoor"].RecentEvents) == 0 {
		t.Fatal("Kapoor should witness the turn that made her leave")
	}

	before := len(s.Memories["Kapoor"].RecentEvents)
	_, ev = s.RecordTalk("Raza", "Good riddance.", time.Now())
	p.Update(s, "Raza", Witnesses(s, "Raza"), ev, nil)
	if len(s.Memories["Kapoor"].RecentEvents) != before {
		t.Error("departed Kapoor should not witness later turns")
	}
}

func TestUpdate_BufferBound(t *testing.T) {
	s := newScene(3)
	p := New(3)
	for i := 0; i < 10; i++ {
		var ev state.Event
		if i%2 == 0 {
			_, ev = s.RecordTalk("Amir", fmt.Sprintf("line %d", i), time.Now())
		} else {
			_, ev = s.RecordAction("Raza", state.ActionChoice{Kind: "WAIT"}, "Raza waits.", nil, time.Now())
		}
		p.Update(s, s.DialogueHistory[len(s.DialogueHistory)-1].Speaker, nil, ev, nil)
		for name, mem := range s.Memories {
			if len(mem.RecentEvents) > 3 {
				t.Fatalf("%s exceeded buffer: %v", name, mem.RecentEvents)
			}
		}
	}
	if len(s.Memories["Amir"].Knowledge) != 5 {
		t.Errorf("knowledge is unbounded; expected 5 facts, got %d", len(s.Memories["Amir"].Knowledge))
	}
}

func TestUpdate_ObservationBecomesPerception(t *testing.T) {
	s := newScene(6)
	p := New(6)
	_, ev := s.RecordTalk("Amir", "You hit me!", time.Now())
	p.Update(s, "Amir", nil, ev, nil)

	_, ev = s.RecordTalk("Raza", "Calm down.", time.Now())
	d := state.Talk("Calm down.")
	d.Observation = "Amir is shaking with anger"
	p.Update(s, "Raza", nil, ev, &d)

	if got := s.Memories["Raza"].Perceptions["Amir"]; got != "Amir is shaking with anger" {
		t.Errorf("expected perception of Amir, got %q", got)
	}
}
