package decision

import (
	"context"
	"errors"
	"log/slog"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// Request is everything a character needs to decide its turn.
type Request struct {
	Speaker   string
	Scene     *state.SceneState
	Memory    *state.MemoryBuffer
	Allowed   []action.Kind
	Menu      []action.MenuItem
	ForceAct  bool
	Suggested action.Kind
}

// Responder produces raw decision text for a character. Repair is asked once
// after an unusable answer, with that answer attached.
type Responder interface {
	Decide(ctx context.Context, req Request) (string, error)
	Repair(ctx context.Context, req Request, raw string) (string, error)
}

// Resolver turns responder output into a decision that is always usable.
type Resolver struct {
	Responder Responder
	Mapper    *Mapper
	Logger    *slog.Logger
}

// NewResolver wires a resolver.
func NewResolver(r Responder, m *Mapper, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{Responder: r, Mapper: m, Logger: logger}
}

// Resolve asks for a decision, repairs once, then falls back. It only fails
// when text generation is unavailable or ctx is done.
func (r *Resolver) Resolve(ctx context.Context, req Request) (state.Decision, error) {
	raw, err := r.Responder.Decide(ctx, req)
	if err := fatal(ctx, err); err != nil {
		return state.Decision{}, err
	}
	if d, ok := r.accept(raw, err, req, SourceModel); ok {
		return d, nil
	}

	repaired, err := r.Responder.Repair(ctx, req, raw)
	if err := fatal(ctx, err); err != nil {
		return state.Decision{}, err
	}
	if d, ok := r.accept(repaired, err, req, SourceRepair); ok {
		return d, nil
	}

	r.Logger.Warn("Using fallback decision",
		"speaker", req.Speaker,
		"turn", req.Scene.CurrentTurn+1,
		"force_act", req.ForceAct)
	return r.Mapper.Fallback(req.Speaker, req.Scene, req.Allowed, req.ForceAct), nil
}

func fatal(ctx context.Context, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if errors.Is(err, chat.ErrUnavailable) {
		return err
	}
	return nil
}

func (r *Resolver) accept(raw string, callErr error, req Request, source string) (state.Decision, bool) {
	if callErr != nil {
		r.Logger.Warn("Decision call failed", "speaker", req.Speaker, "source", source, "error", callErr)
		return state.Decision{}, false
	}
	d, err := Parse(raw)
	if err != nil {
		r.Logger.Warn("Unusable decision response",
			"speaker", req.Speaker,
			"source", source,
			"error", err)
		return state.Decision{}, false
	}
	d.Source = source

	d, result := r.Mapper.Map(d, req.Allowed)
	if result != Kept {
		r.Logger.Info("Decision adjusted", "speaker", req.Speaker, "result", result.String())
	}
	if req.ForceAct && !d.IsAct() && len(req.Allowed) > 0 {
		d = r.Mapper.ForceOverride(d, req.Speaker, req.Scene, req.Allowed)
		r.Logger.Info("Forced ACT override", "speaker", req.Speaker, "action", d.Action.Kind)
	}
	return d, true
}
