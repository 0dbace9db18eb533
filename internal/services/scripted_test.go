package services

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

func userPrompt(content string) chat.Request {
	return chat.Request{Messages: []chat.ChatMessage{{Role: chat.ChatRoleUser, Content: content}}}
}

func TestScriptedGenerator_SelectSpeakerRotates(t *testing.T) {
	g := NewScriptedGenerator()
	prompt := `Turn 2/10
The speaker MUST be one of: Farida, Tariq

OUTPUT (JSON ONLY):
{"next_speaker": "Character Name", "narration": "..."}`

	var picks []string
	for i := 0; i < 3; i++ {
		out, err := g.Generate(context.Background(), userPrompt(prompt))
		if err != nil {
			t.Fatalf("Generate failed: %v", err)
		}
		var resp struct {
			NextSpeaker string `json:"next_speaker"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		picks = append(picks, resp.NextSpeaker)
	}
	want := []string{"Farida", "Tariq", "Farida"}
	for i := range want {
		if picks[i] != want[i] {
			t.Errorf("pick %d = %q, want %q", i, picks[i], want[i])
		}
	}
}

func TestScriptedGenerator_Decisions(t *testing.T) {
	tests := []struct {
		name     string
		prompt   string
		wantMode string
		wantKind string
	}{
		{
			name:     "talk by default",
			prompt:   "YOU: Tariq (vendor)\n!! action.type MUST be EXACTLY one of: OFFER_DEAL, LEAVE_SCENE !!",
			wantMode: "TALK",
		},
		{
			name:     "mandatory action",
			prompt:   "YOU: Tariq\n!! MANDATORY: Perform \"LEAVE_SCENE\". Set action.type to \"LEAVE_SCENE\". !!\n!! action.type MUST be EXACTLY one of: LEAVE_SCENE !!",
			wantMode: "ACT",
			wantKind: "LEAVE_SCENE",
		},
		{
			name:     "forced without menu falls back to talk",
			prompt:   "YOU: Tariq\n!! YOU MUST CHOOSE mode \"ACT\" THIS TURN. !!\n!! action.type MUST be EXACTLY one of: (none) !!",
			wantMode: "TALK",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := NewScriptedGenerator()
			out, err := g.Generate(context.Background(), userPrompt(tt.prompt))
			if err != nil {
				t.Fatalf("Generate failed: %v", err)
			}
			var resp struct {
				Mode   string `json:"mode"`
				Action *struct {
					Type string `json:"type"`
				} `json:"action"`
			}
			if err := json.Unmarshal([]byte(out), &resp); err != nil {
				t.Fatalf("invalid JSON %q: %v", out, err)
			}
			if resp.Mode != tt.wantMode {
				t.Errorf("mode = %q, want %q", resp.Mode, tt.wantMode)
			}
			if tt.wantKind != "" && (resp.Action == nil || resp.Action.Type != tt.wantKind) {
				t.Errorf("action = %+v, want %s", resp.Action, tt.wantKind)
			}
		})
	}
}

func TestScriptedGenerator_Conclusion(t *testing.T) {
	g := NewScriptedGenerator()
	tests := []struct {
		turn string
		want bool
	}{
		{turn: "Turn 3/10", want: false},
		{turn: "Turn 8/10", want: true},
	}
	for _, tt := range tests {
		out, _ := g.Generate(context.Background(), userPrompt(tt.turn+"\n"+`{"should_end": true or false}`))
		var resp struct {
			ShouldEnd bool    `json:"should_end"`
			Narration *string `json:"narration"`
		}
		if err := json.Unmarshal([]byte(out), &resp); err != nil {
			t.Fatalf("invalid JSON %q: %v", out, err)
		}
		if resp.ShouldEnd != tt.want {
			t.Errorf("%s: should_end = %v, want %v", tt.turn, resp.ShouldEnd, tt.want)
		}
		if tt.want && resp.Narration == nil {
			t.Errorf("%s: expected narration when ending", tt.turn)
		}
	}
}
