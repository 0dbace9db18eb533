package agents

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/prompts"
	"github.com/jwebster45206/scene-engine/pkg/textfilter"
)

const (
	decisionMaxTokens = 500
	// Repairs run cooler to favour well-formed JSON.
	repairTemperature = 0.3
	repairMaxTokens   = 300
)

// CharacterAgent voices whichever character the director picked. It holds no
// per-character state; everything it knows comes from the request.
type CharacterAgent struct {
	llm    chat.Generator
	logger *slog.Logger
}

var _ orchestrator.Character = (*CharacterAgent)(nil)

func NewCharacterAgent(llm chat.Generator, logger *slog.Logger) *CharacterAgent {
	if logger == nil {
		logger = slog.Default()
	}
	return &CharacterAgent{llm: llm, logger: logger}
}

// Decide returns the raw decision text for req.Speaker.
func (a *CharacterAgent) Decide(ctx context.Context, req decision.Request) (string, error) {
	msgs, err := prompts.New().
		WithScene(req.Scene).
		WithSpeaker(req.Speaker).
		WithMenu(req.Menu).
		WithForceAct(req.ForceAct, req.Suggested).
		BuildDecision()
	if err != nil {
		return "", fmt.Errorf("failed to build decision prompt: %w", err)
	}

	raw, err := a.llm.Generate(ctx, chat.Request{Messages: msgs, MaxTokens: decisionMaxTokens})
	if err != nil {
		a.logger.Warn("Character decision failed", "speaker", req.Speaker, "error", err)
		return "", err
	}
	return textfilter.ForRating(req.Scene.Seed.Rating).Apply(raw), nil
}

// Repair asks once more for valid JSON after an unusable answer.
func (a *CharacterAgent) Repair(ctx context.Context, req decision.Request, raw string) (string, error) {
	msgs, err := prompts.New().
		WithScene(req.Scene).
		WithSpeaker(req.Speaker).
		WithRaw(raw).
		BuildRepair()
	if err != nil {
		return "", fmt.Errorf("failed to build repair prompt: %w", err)
	}

	a.logger.Debug("Repairing character decision", "speaker", req.Speaker)
	fixed, err := a.llm.Generate(ctx, chat.Request{
		Messages:    msgs,
		Temperature: repairTemperature,
		MaxTokens:   repairMaxTokens,
	})
	if err != nil {
		return "", err
	}
	return textfilter.ForRating(req.Scene.Seed.Rating).Apply(fixed), nil
}
