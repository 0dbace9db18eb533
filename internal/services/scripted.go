package services

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/jwebster45206/scene-engine/pkg/chat"
)

var (
	candidatesLine = regexp.MustCompile(`The speaker MUST be one of: (.+)`)
	allowedLine    = regexp.MustCompile(`action\.type MUST be EXACTLY one of: (.+?) !!`)
	mandatoryLine  = regexp.MustCompile(`MANDATORY: Perform "([A-Z_]+)"`)
	speakerLine    = regexp.MustCompile(`(?m)^YOU: ([^(,\n]+)`)
	turnLine       = regexp.MustCompile(`Turn (\d+)/(\d+)`)
)

// ScriptedGenerator answers scene prompts without a model. It reads the
// task from the prompt and replies with well-formed JSON, so a whole scene
// can be played offline. The same prompts always get the same answers.
type ScriptedGenerator struct {
	mu      sync.Mutex
	selects int
	decides int
}

var _ Provider = (*ScriptedGenerator)(nil)

func NewScriptedGenerator() *ScriptedGenerator {
	return &ScriptedGenerator{}
}

func (g *ScriptedGenerator) Name() string {
	return ProviderMock
}

func (g *ScriptedGenerator) Generate(ctx context.Context, r chat.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if len(r.Messages) == 0 {
		return "", fmt.Errorf("%s: %w", g.Name(), chat.ErrEmptyResponse)
	}
	prompt := r.Messages[len(r.Messages)-1].Content

	g.mu.Lock()
	defer g.mu.Unlock()

	switch {
	case strings.Contains(prompt, `"next_speaker"`):
		return g.selectSpeaker(prompt), nil
	case strings.Contains(prompt, `"should_end"`):
		return conclusion(prompt), nil
	case strings.Contains(prompt, "OPENING narration"):
		return "The street holds its breath. Horns fade as every eye turns toward the trouble.", nil
	case strings.Contains(prompt, "run out of time"):
		return "The moment passes. One by one they turn away, and the street swallows what is left of the argument.", nil
	case strings.Contains(prompt, "not valid JSON"):
		return mustJSON(map[string]any{
			"observation": "Everyone is watching.",
			"reasoning":   "I should say something plain.",
			"emotion":     "tense",
			"mode":        "TALK",
			"speech":      "Let us settle this properly.",
			"action":      nil,
		}), nil
	case allowedLine.MatchString(prompt):
		return g.decide(prompt), nil
	}
	return "The scene goes on.", nil
}

func (g *ScriptedGenerator) selectSpeaker(prompt string) string {
	var candidates []string
	if m := candidatesLine.FindStringSubmatch(prompt); m != nil {
		for _, c := range strings.Split(m[1], ",") {
			if c = strings.TrimSpace(c); c != "" {
				candidates = append(candidates, c)
			}
		}
	}
	speaker := ""
	if len(candidates) > 0 {
		speaker = candidates[g.selects%len(candidates)]
	}
	g.selects++
	return mustJSON(map[string]any{
		"next_speaker": speaker,
		"narration":    fmt.Sprintf("All eyes settle on %s.", speaker),
	})
}

func conclusion(prompt string) string {
	end := false
	if m := turnLine.FindStringSubmatch(prompt); m != nil {
		turn, _ := strconv.Atoi(m[1])
		total, _ := strconv.Atoi(m[2])
		end = total > 0 && turn*5 >= total*4
	}
	out := map[string]any{"should_end": end, "reason": "The conflict is still open.", "narration": nil}
	if end {
		out["reason"] = "A settlement has been reached."
		out["narration"] = "The crowd thins. Hands are shaken, grudgingly, and the traffic begins to crawl forward again."
	}
	return mustJSON(out)
}

var scriptedLines = []string{
	"I saw exactly what happened, and I will not be blamed for it.",
	"Everyone calm down. Shouting will not fix a single scratch.",
	"You want to talk about fault? Look at where you stopped!",
	"Fine. Tell me what it will take to end this.",
}

func (g *ScriptedGenerator) decide(prompt string) string {
	speaker := "I"
	if m := speakerLine.FindStringSubmatch(prompt); m != nil {
		speaker = strings.TrimSpace(m[1])
	}
	n := g.decides
	g.decides++

	kind := ""
	if m := mandatoryLine.FindStringSubmatch(prompt); m != nil {
		kind = m[1]
	} else if m := allowedLine.FindStringSubmatch(prompt); m != nil && (n%3 == 2 || strings.Contains(prompt, `MUST CHOOSE mode "ACT"`)) {
		kinds := strings.Split(m[1], ", ")
		if k := strings.TrimSpace(kinds[n%len(kinds)]); k != "(none)" {
			kind = k
		}
	}

	out := map[string]any{
		"observation": "The argument is getting louder.",
		"reasoning":   fmt.Sprintf("%s needs this to end on their terms.", speaker),
		"emotion":     []string{"angry", "anxious", "defiant", "weary"}[n%4],
	}
	if kind != "" {
		out["mode"] = "ACT"
		out["speech"] = nil
		out["action"] = map[string]any{
			"type":   kind,
			"target": nil,
			"params": map[string]any{"narration": fmt.Sprintf("%s moves decisively.", speaker)},
		}
	} else {
		out["mode"] = "TALK"
		out["speech"] = scriptedLines[n%len(scriptedLines)]
		out["action"] = nil
	}
	return mustJSON(out)
}

func mustJSON(v any) string {
	data, err := json.Marshal(v)
	if err != nil {
		panic(err)
	}
	return string(data)
}
