package decision

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Sources recorded on a decision.
const (
	SourceModel    = "model"
	SourceRepair   = "repair"
	SourceRemap    = "remap"
	SourceOverride = "override"
	SourceFallback = "fallback"
)

// Parse reads a character response. The action kind is normalized but not
// checked against any catalog; an ACT without an action object is returned
// as ACT with a nil Action so Map can degrade it. Unknown modes read as TALK.
func Parse(raw string) (state.Decision, error) {
	data, err := Extract(raw)
	if err != nil {
		return state.Decision{}, err
	}

	d := state.Decision{
		Mode:        state.ModeTalk,
		Observation: stringField(data, "observation"),
		Reasoning:   stringField(data, "reasoning"),
		Emotion:     stringField(data, "emotion"),
		Speech:      stringField(data, "speech"),
		Source:      SourceModel,
	}
	if d.Speech == "" {
		d.Speech = stringField(data, "dialogue")
	}
	if d.Emotion == "" {
		d.Emotion = "neutral"
	}

	if strings.EqualFold(strings.TrimSpace(stringField(data, "mode")), string(state.ModeAct)) {
		d.Mode = state.ModeAct
	}
	if d.Mode != state.ModeAct {
		return d, nil
	}

	obj, ok := data["action"].(map[string]any)
	if !ok {
		return d, nil
	}
	kind := action.Normalize(stringField(obj, "type"))
	if kind == "" {
		return d, nil
	}
	params, _ := obj["params"].(map[string]any)
	if params == nil {
		params = map[string]any{}
	}
	d.Action = &state.ActionChoice{
		Kind:   kind,
		Target: stringField(obj, "target"),
		Params: params,
	}
	return d, nil
}

func stringField(data map[string]any, key string) string {
	switch v := data[key].(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}
