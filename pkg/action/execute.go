package action

import (
	"fmt"
	"maps"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/conditionals"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Choice is an action proposed by a character.
type Choice = state.ActionChoice

// Result is the outcome of Execute. On failure Narration holds the reason
// and Patch is empty.
type Result struct {
	Success   bool
	Kind      Kind
	Patch     state.Patch
	Narration string
}

// Allowed returns every action whose use cap is not reached and whose
// preconditions hold, in catalog order.
func (c *Catalog) Allowed(s *state.SceneState) []Kind {
	var out []Kind
	for _, d := range c.Actions {
		if d.MaxUses > 0 && s.ActionCount(d.Kind) >= d.MaxUses {
			continue
		}
		if !conditionals.AllMet(d.Preconditions, s.World) {
			continue
		}
		out = append(out, d.Kind)
	}
	return out
}

// Execute validates choice for actor and, when valid, computes the world
// patch and narration. Rule violations are reported through Result, never
// as an error. The scene is not modified.
func (c *Catalog) Execute(choice Choice, s *state.SceneState, actor string) Result {
	kind := normalizeKind(string(choice.Kind))
	d, ok := c.Lookup(kind)
	if !ok {
		return fail(kind, fmt.Sprintf("%s attempted an unknown action '%s'.", actor, kind))
	}

	attempt := fmt.Sprintf("%s tried to %s", actor, strings.ToLower(d.Description))

	if d.MaxUses > 0 {
		if used := s.ActionCount(kind); used >= d.MaxUses {
			return fail(kind, fmt.Sprintf("%s but it has already been done %d time(s) (limit %d).", attempt, used, d.MaxUses))
		}
	}

	if d.ActorRestriction != "" && actor != d.ActorRestriction {
		return fail(kind, fmt.Sprintf("%s but only %s can do that.", attempt, d.ActorRestriction))
	}

	if cond, failed := conditionals.FirstUnmet(d.Preconditions, s.World); failed {
		return fail(kind, fmt.Sprintf("%s but %s.", attempt, cond.Reason()))
	}

	patch := c.effects(d, s.World, actor)
	params := resolveParams(d, choice.Params)
	for _, cp := range d.CopyParams {
		patch[cp.Field] = params[cp.Param]
	}

	return Result{
		Success:   true,
		Kind:      kind,
		Patch:     patch,
		Narration: narrate(d.Narration, actor, choice.Target, params),
	}
}

func fail(kind Kind, reason string) Result {
	return Result{Kind: kind, Narration: reason}
}

// effects merges the declared effects into the current world values:
// delta fields add and clamp, records merge, everything else is set.
func (c *Catalog) effects(d Definition, w state.World, actor string) state.Patch {
	patch := make(state.Patch, len(d.Effects))
	for rawField, value := range d.Effects {
		field := strings.ReplaceAll(rawField, "{actor}", actor)

		if c.IsDeltaField(field) {
			if delta, ok := state.AsInt(value); ok {
				patch[field] = state.Level(state.Clamp(w.Levels[field] + delta))
				continue
			}
		}

		if sub, ok := value.(map[string]any); ok {
			merged := maps.Clone(w.Records[field])
			if merged == nil {
				merged = make(map[string]any, len(sub))
			}
			maps.Copy(merged, sub)
			patch[field] = merged
			continue
		}

		patch[field] = value
	}
	return patch
}

// resolveParams fills parameter defaults declared by copy_params.
func resolveParams(d Definition, in map[string]any) map[string]any {
	params := maps.Clone(in)
	if params == nil {
		params = make(map[string]any)
	}
	for _, cp := range d.CopyParams {
		if v, ok := params[cp.Param]; !ok || v == nil {
			params[cp.Param] = cp.Default
		}
	}
	return params
}

func narrate(tmpl, actor, target string, params map[string]any) string {
	if target == "" {
		target = "everyone"
	}
	pairs := []string{"{actor}", actor, "{target}", target}
	for k, v := range params {
		if k == "actor" || k == "target" {
			continue
		}
		pairs = append(pairs, "{"+k+"}", formatParam(v))
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

func formatParam(v any) string {
	if f, ok := v.(float64); ok && f == float64(int64(f)) {
		return fmt.Sprintf("%d", int64(f))
	}
	return fmt.Sprint(v)
}
