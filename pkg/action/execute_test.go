package action

import (
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/jwebster45206/scene-engine/pkg/state"
)

func roadside(t *testing.T) (*Catalog, *state.SceneState) {
	t.Helper()
	cat, err := Builtin("roadside_dispute")
	if err != nil {
		t.Fatalf("failed to load catalog: %v", err)
	}
	world := state.World{
		Levels: map[string]int{"traffic_level": 8, "tension_level": 7, "crowd_size": 5, "bribe_pressure": 3},
		Flags:  map[string]bool{"lane_blocked": true, "police_present": false},
	}
	chars := []state.Character{{Name: "Amir"}, {Name: "Constable Raza"}, {Name: "Mrs. Kapoor"}}
	return cat, state.New(state.Seed{Title: "Roadside"}, chars, 20, world, 6)
}

// apply runs Execute and, on success, commits the result the way the
// orchestrator does.
func apply(t *testing.T, cat *Catalog, s *state.SceneState, actor string, choice Choice) Result {
	t.Helper()
	res := cat.Execute(choice, s, actor)
	if res.Success {
		choice.Kind = res.Kind
		s.RecordAction(actor, choice, res.Narration, res.Patch, time.Now())
	}
	return res
}

func TestExecute_UnknownAction(t *testing.T) {
	cat, s := roadside(t)
	res := cat.Execute(Choice{Kind: "DANCE"}, s, "Amir")
	if res.Success {
		t.Fatal("expected unknown action to fail")
	}
	if res.Narration != "Amir attempted an unknown action 'DANCE'." {
		t.Errorf("unexpected reason %q", res.Narration)
	}
	if len(res.Patch) != 0 {
		t.Errorf("expected no patch on failure, got %v", res.Patch)
	}
}

func TestExecute_CapEnforced(t *testing.T) {
	cat, s := roadside(t)
	for i := 0; i < 2; i++ {
		if res := apply(t, cat, s, "Amir", Choice{Kind: "CHECK_DAMAGE"}); !res.Success {
			t.Fatalf("attempt %d should succeed: %s", i+1, res.Narration)
		}
	}
	if slices.Contains(cat.Allowed(s), "CHECK_DAMAGE") {
		t.Error("CHECK_DAMAGE should not be allowed after reaching its cap")
	}
	res := cat.Execute(Choice{Kind: "CHECK_DAMAGE"}, s, "Amir")
	if res.Success {
		t.Fatal("third attempt should fail")
	}
	if !strings.Contains(res.Narration, "already been done 2 time(s) (limit 2)") {
		t.Errorf("expected count and cap in reason, got %q", res.Narration)
	}

	// A restored scene may carry more uses than the cap allows.
	s.ActionsTaken = append(s.ActionsTaken, "CHECK_DAMAGE")
	res = cat.Execute(Choice{Kind: "CHECK_DAMAGE"}, s, "Amir")
	if !strings.Contains(res.Narration, "already been done 3 time(s) (limit 2)") {
		t.Errorf("expected count 3 and cap 2 in reason, got %q", res.Narration)
	}
}

func TestExecute_ValidationOrder(t *testing.T) {
	cat, s := roadside(t)

	// Actor restriction is checked before preconditions: police are not
	// present, yet the reason names the restriction.
	res := cat.Execute(Choice{Kind: "ISSUE_CHALLAN"}, s, "Amir")
	if res.Success || !strings.Contains(res.Narration, "only Constable Raza can do that") {
		t.Errorf("expected actor restriction failure, got %+v", res)
	}

	res = cat.Execute(Choice{Kind: "ISSUE_CHALLAN"}, s, "Constable Raza")
	if res.Success || !strings.Contains(res.Narration, "police_present is not true") {
		t.Errorf("expected precondition failure naming police_present, got %+v", res)
	}

	res = cat.Execute(Choice{Kind: "ACCEPT_SETTLEMENT"}, s, "Amir")
	if res.Success || !strings.Contains(res.Narration, "no settlement has been proposed yet") {
		t.Errorf("expected settlement precondition failure, got %+v", res)
	}
}

func TestExecute_KindIsNormalized(t *testing.T) {
	cat, s := roadside(t)
	res := cat.Execute(Choice{Kind: "call police"}, s, "Amir")
	if !res.Success || res.Kind != "CALL_POLICE" {
		t.Errorf("expected normalized CALL_POLICE to succeed, got %+v", res)
	}
}

func TestExecute_Effects(t *testing.T) {
	cat, s := roadside(t)

	res := apply(t, cat, s, "Amir", Choice{Kind: "CALL_POLICE"})
	if !res.Success {
		t.Fatalf("CALL_POLICE failed: %s", res.Narration)
	}
	if !s.World.Flags["police_present"] {
		t.Error("expected police_present")
	}
	if s.World.Levels["tension_level"] != 6 || s.World.Levels["crowd_size"] != 7 {
		t.Errorf("unexpected levels %v", s.World.Levels)
	}
	if !strings.HasPrefix(res.Narration, "Amir pulls out their phone") {
		t.Errorf("unexpected narration %q", res.Narration)
	}

	apply(t, cat, s, "Amir", Choice{Kind: "RECORD_VIDEO"})
	apply(t, cat, s, "Mrs. Kapoor", Choice{Kind: "CHECK_DAMAGE"})
	want := map[string]any{"video": true, "damage_assessed": true}
	if diff := cmp.Diff(want, s.World.Records["evidence"]); diff != "" {
		t.Errorf("evidence record mismatch (-want +got):\n%s", diff)
	}
}

func TestExecute_DeltaClamping(t *testing.T) {
	cat, s := roadside(t)
	s.World.Levels["traffic_level"] = 2
	res := apply(t, cat, s, "Amir", Choice{Kind: "MOVE_VEHICLE_ASIDE"})
	if !res.Success {
		t.Fatalf("MOVE_VEHICLE_ASIDE failed: %s", res.Narration)
	}
	if got := s.World.Levels["traffic_level"]; got != 0 {
		t.Errorf("expected traffic clamped to 0, got %d", got)
	}

	s.World.Levels["tension_level"] = 10
	apply(t, cat, s, "Amir", Choice{Kind: "RECORD_VIDEO"})
	if got := s.World.Levels["tension_level"]; got != 10 {
		t.Errorf("expected tension clamped to 10, got %d", got)
	}

	for i := 0; i < 20; i++ {
		for _, v := range s.World.Levels {
			if v < state.LevelMin || v > state.LevelMax {
				t.Fatalf("level out of range: %v", s.World.Levels)
			}
		}
		apply(t, cat, s, "Amir", Choice{Kind: "EXCHANGE_CONTACTS"})
	}
}

func TestExecute_CopyParams(t *testing.T) {
	cat, s := roadside(t)

	res := apply(t, cat, s, "Amir", Choice{Kind: "PROPOSE_SETTLEMENT"})
	if !res.Success {
		t.Fatalf("PROPOSE_SETTLEMENT failed: %s", res.Narration)
	}
	if v, _ := s.World.Lookup("settlement_offer"); !state.Equal(v, 5000) {
		t.Errorf("expected default offer 5000, got %v", v)
	}
	if !strings.Contains(res.Narration, "5000 rupees") {
		t.Errorf("expected amount in narration, got %q", res.Narration)
	}
	if s.World.Records["evidence"]["settlement_proposed"] != true {
		t.Error("expected evidence.settlement_proposed")
	}

	res = apply(t, cat, s, "Mrs. Kapoor", Choice{Kind: "PROPOSE_SETTLEMENT", Params: map[string]any{"amount": float64(8000)}})
	if !strings.Contains(res.Narration, "8000 rupees") {
		t.Errorf("expected 8000 in narration, got %q", res.Narration)
	}

	if !slices.Contains(cat.Allowed(s), "ACCEPT_SETTLEMENT") {
		t.Error("ACCEPT_SETTLEMENT should be allowed once an offer exists")
	}
	res = apply(t, cat, s, "Amir", Choice{Kind: "ACCEPT_SETTLEMENT"})
	if !res.Success {
		t.Fatalf("ACCEPT_SETTLEMENT failed: %s", res.Narration)
	}
	if !s.World.AnySignal(cat.ResolutionSignals) {
		t.Error("expected a resolution signal after accepting the settlement")
	}
}

func TestExecute_ActorPlaceholderInField(t *testing.T) {
	cat, err := Builtin("generic")
	if err != nil {
		t.Fatal(err)
	}
	s := state.New(state.Seed{}, []state.Character{{Name: "Lena"}, {Name: "Marco"}}, 10, state.World{}, 6)
	res := cat.Execute(Choice{Kind: "EXIT_SCENE"}, s, "Lena")
	if !res.Success {
		t.Fatalf("EXIT_SCENE failed: %s", res.Narration)
	}
	if res.Patch["Lena_departed"] != true {
		t.Errorf("expected Lena_departed in patch, got %v", res.Patch)
	}
}

func TestExecute_DoesNotMutateState(t *testing.T) {
	cat, s := roadside(t)
	before := s.World.Clone()
	cat.Execute(Choice{Kind: "CALL_POLICE"}, s, "Amir")
	if diff := cmp.Diff(before, s.World); diff != "" {
		t.Errorf("Execute mutated the world (-before +after):\n%s", diff)
	}
}

func TestAllowed(t *testing.T) {
	cat, s := roadside(t)
	first := cat.Allowed(s)
	second := cat.Allowed(s)
	if diff := cmp.Diff(first, second); diff != "" {
		t.Errorf("Allowed is not stable:\n%s", diff)
	}

	for _, k := range []Kind{"PAY_FACILITATION_FEE", "ISSUE_CHALLAN", "ACCEPT_SETTLEMENT"} {
		if slices.Contains(first, k) {
			t.Errorf("%s should not be allowed at scene start", k)
		}
	}
	if !slices.Contains(first, "CALL_POLICE") || !slices.Contains(first, "MOVE_VEHICLE_ASIDE") {
		t.Errorf("expected CALL_POLICE and MOVE_VEHICLE_ASIDE allowed, got %v", first)
	}
	if first[0] != "CALL_POLICE" {
		t.Errorf("expected catalog order, got %v", first)
	}
}
