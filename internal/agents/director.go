// Package agents puts model-backed director and character agents behind the
// orchestrator's collaborator interfaces.
package agents

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/state"
	"github.com/jwebster45206/scene-engine/pkg/textfilter"
)

// Director token budgets per call.
const (
	selectMaxTokens     = 300
	conclusionMaxTokens = 400
	openingMaxTokens    = 300
)

// Director picks speakers, narrates and judges conclusions through a Generator.
type Director struct {
	llm          chat.Generator
	minActions   int
	historyLimit int
	logger       *slog.Logger
}

var (
	_ orchestrator.Director = (*Director)(nil)
	_ orchestrator.Opener   = (*Director)(nil)
)

// NewDirector creates a director. minActions is shown in speaker prompts as
// the distinct-action target; zero derives it from the turn budget.
func NewDirector(llm chat.Generator, minActions int, logger *slog.Logger) *Director {
	if logger == nil {
		logger = slog.Default()
	}
	return &Director{
		llm:          llm,
		minActions:   minActions,
		historyLimit: prompts.DefaultHistoryLimit,
		logger:       logger,
	}
}

// actionTarget is the configured distinct-action target, or the pacing
// default for the scene's budget.
func (d *Director) actionTarget(s *state.SceneState) int {
	if d.minActions > 0 {
		return d.minActions
	}
	return policy.DefaultThresholds().MinActions(s.TotalTurns)
}

// SelectSpeaker asks for the next speaker. The orchestrator checks the name
// against candidates, so an unknown name is passed through as-is.
func (d *Director) SelectSpeaker(ctx context.Context, s *state.SceneState, candidates []string, forceAct, endgame bool) (orchestrator.SpeakerChoice, error) {
	msgs, err := prompts.New().
		WithScene(s).
		WithCandidates(candidates).
		WithForceAct(forceAct, s.SuggestedAction).
		WithEndgame(endgame).
		WithMinActions(d.actionTarget(s)).
		WithHistoryLimit(d.historyLimit).
		BuildSelectSpeaker()
	if err != nil {
		return orchestrator.SpeakerChoice{}, fmt.Errorf("failed to build speaker prompt: %w", err)
	}

	raw, err := d.llm.Generate(ctx, chat.Request{Messages: msgs, MaxTokens: selectMaxTokens})
	if err != nil {
		return orchestrator.SpeakerChoice{}, err
	}

	data, err := decision.Extract(raw)
	if err != nil {
		return orchestrator.SpeakerChoice{}, fmt.Errorf("failed to parse speaker choice: %w", err)
	}
	choice := orchestrator.SpeakerChoice{
		Speaker:   strings.TrimSpace(stringValue(data, "next_speaker")),
		Narration: d.filter(s, stringValue(data, "narration")),
	}
	d.logger.Debug("Director chose speaker", "turn", s.CurrentTurn+1, "speaker", choice.Speaker)
	return choice, nil
}

// JudgeConclusion asks whether the scene has reached a resolution.
func (d *Director) JudgeConclusion(ctx context.Context, s *state.SceneState) (policy.Judgement, error) {
	msgs, err := prompts.New().
		WithScene(s).
		WithHistoryLimit(d.historyLimit).
		BuildConclusion()
	if err != nil {
		return policy.Judgement{}, fmt.Errorf("failed to build conclusion prompt: %w", err)
	}

	raw, err := d.llm.Generate(ctx, chat.Request{Messages: msgs, MaxTokens: conclusionMaxTokens})
	if err != nil {
		return policy.Judgement{}, err
	}

	data, err := decision.Extract(raw)
	if err != nil {
		return policy.Judgement{}, fmt.Errorf("failed to parse conclusion judgement: %w", err)
	}
	j := policy.Judgement{
		ShouldEnd: boolValue(data, "should_end"),
		Reason:    stringValue(data, "reason"),
	}
	if j.ShouldEnd {
		j.Narration = d.filter(s, stringValue(data, "narration"))
	}
	d.logger.Debug("Director judged conclusion",
		"turn", s.CurrentTurn,
		"should_end", j.ShouldEnd,
		"reason", j.Reason)
	return j, nil
}

// NarrateConclusion writes the closing narration for a scene out of turns.
func (d *Director) NarrateConclusion(ctx context.Context, s *state.SceneState) (string, error) {
	msgs, err := prompts.New().
		WithScene(s).
		WithHistoryLimit(d.historyLimit).
		BuildFinalConclusion()
	if err != nil {
		return "", fmt.Errorf("failed to build final narration prompt: %w", err)
	}
	return d.narrate(ctx, s, msgs, conclusionMaxTokens)
}

// Opening writes the narration shown before turn one.
func (d *Director) Opening(ctx context.Context, s *state.SceneState) (string, error) {
	msgs, err := prompts.New().WithScene(s).BuildOpening()
	if err != nil {
		return "", fmt.Errorf("failed to build opening prompt: %w", err)
	}
	return d.narrate(ctx, s, msgs, openingMaxTokens)
}

func (d *Director) narrate(ctx context.Context, s *state.SceneState, msgs []chat.ChatMessage, maxTokens int) (string, error) {
	raw, err := d.llm.Generate(ctx, chat.Request{Messages: msgs, MaxTokens: maxTokens})
	if err != nil {
		return "", err
	}
	return d.filter(s, cleanNarration(raw)), nil
}

func (d *Director) filter(s *state.SceneState, text string) string {
	return textfilter.ForRating(s.Seed.Rating).Apply(strings.TrimSpace(text))
}

// cleanNarration strips quotes and a JSON wrapper some models add to plain
// narration answers.
func cleanNarration(raw string) string {
	text := strings.TrimSpace(raw)
	if strings.HasPrefix(text, "{") || strings.HasPrefix(text, "```") {
		if data, err := decision.Extract(text); err == nil {
			if n := stringValue(data, "narration"); n != "" {
				return n
			}
		}
	}
	return strings.Trim(text, "\"")
}

func stringValue(data map[string]any, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}

// boolValue accepts a JSON bool or the strings "true"/"yes".
func boolValue(data map[string]any, key string) bool {
	switch v := data[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "yes":
			return true
		}
	}
	return false
}
