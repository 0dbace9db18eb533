package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/memory"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// opening records the director's scene-setting narration before turn one.
func (r *run) opening(ctx context.Context) error {
	s := r.tc.scene
	opener, ok := r.o.director.(Opener)
	if !ok || s.CurrentTurn > 0 || len(s.Events) > 0 {
		return nil
	}
	text, err := opener.Opening(ctx, s)
	if err != nil {
		if fatal(ctx, err) {
			return err
		}
		r.logger.Warn("Opening narration failed", "error", err)
		return nil
	}
	if text == "" {
		return nil
	}
	ev := s.AddNarration(text, false, r.o.clock())
	r.notify(ctx, Notice{Kind: NoticeOpening, Turn: 0, Text: text})
	r.record(ctx, string(PhaseSelectSpeaker), &ev)
	return nil
}

func (r *run) selectSpeaker(ctx context.Context) error {
	tc := r.tc
	s := tc.scene

	tc.allowed = r.o.catalog.Allowed(s)
	tc.verdict = r.o.pacing.Evaluate(s, tc.allowed)
	s.ForceAct = tc.verdict.ForceAct
	s.SuggestedAction = tc.verdict.Suggested

	candidates := r.o.guard.Candidates(s)
	choice, err := r.o.director.SelectSpeaker(ctx, s, candidates, s.ForceAct, tc.verdict.Endgame)
	if err != nil {
		if fatal(ctx, err) {
			return fmt.Errorf("select speaker: %w", err)
		}
		r.logger.Warn("Speaker selection failed, using first candidate", "turn", s.CurrentTurn+1, "error", err)
		choice = SpeakerChoice{}
	}
	tc.speaker = r.o.guard.Resolve(choice.Speaker, candidates)
	s.NextSpeaker = tc.speaker

	note := fmt.Sprintf("Turn %d: %s", s.CurrentTurn+1, tc.speaker)
	if s.ForceAct {
		note += " [FORCE ACT]"
	}
	s.DirectorNotes = append(s.DirectorNotes, note)

	if choice.Narration != "" {
		s.AddNarration(choice.Narration, false, r.o.clock())
		r.notify(ctx, Notice{Kind: NoticeNarration, Turn: s.CurrentTurn, Text: choice.Narration})
	}
	r.notify(ctx, Notice{
		Kind:     NoticeSpeaker,
		Turn:     s.CurrentTurn + 1,
		Speaker:  tc.speaker,
		ForceAct: s.ForceAct,
	})
	r.logger.Debug("Speaker selected",
		"turn", s.CurrentTurn+1,
		"speaker", tc.speaker,
		"force_act", s.ForceAct,
		"suggested", s.SuggestedAction,
		"reasons", tc.verdict.Reasons)
	return nil
}

func (r *run) decide(ctx context.Context) error {
	tc := r.tc
	s := tc.scene
	req := decision.Request{
		Speaker:   tc.speaker,
		Scene:     s,
		Memory:    s.Memories[tc.speaker],
		Allowed:   tc.allowed,
		Menu:      MenuFor(r.o.catalog, tc.allowed, s.ForceAct, s.SuggestedAction),
		ForceAct:  s.ForceAct,
		Suggested: s.SuggestedAction,
	}
	d, err := r.o.resolver.Resolve(ctx, req)
	if err != nil {
		return fmt.Errorf("decide for %s: %w", tc.speaker, err)
	}
	tc.decision = d
	s.PendingDecision = &tc.decision
	return nil
}

// apply completes the turn slot. An ACT the validator rejects still fills
// the slot, as TALK.
func (r *run) apply(ctx context.Context) {
	tc := r.tc
	s := tc.scene
	now := r.o.clock()

	tc.witnesses = memory.Witnesses(s, tc.speaker)

	if tc.decision.IsAct() {
		result := r.o.catalog.Execute(*tc.decision.Action, s, tc.speaker)
		if result.Success {
			choice := *tc.decision.Action
			choice.Kind = result.Kind
			_, tc.event = s.RecordAction(tc.speaker, choice, result.Narration, result.Patch, now)
			r.notify(ctx, Notice{
				Kind:    NoticeTurn,
				Turn:    s.CurrentTurn,
				Speaker: tc.speaker,
				Text:    result.Narration,
				Action:  tc.event.Action,
				Source:  tc.decision.Source,
			})
			r.logger.Info("Action applied",
				"turn", s.CurrentTurn,
				"speaker", tc.speaker,
				"action", result.Kind)
			return
		}
		r.logger.Info("Action rejected",
			"turn", s.CurrentTurn+1,
			"speaker", tc.speaker,
			"action", tc.decision.Action.Kind,
			"reason", result.Narration)
		r.notify(ctx, Notice{
			Kind:    NoticeRejected,
			Turn:    s.CurrentTurn + 1,
			Speaker: tc.speaker,
			Text:    result.Narration,
			Action: &state.ActionRecord{
				Kind:   tc.decision.Action.Kind,
				Actor:  tc.speaker,
				Target: tc.decision.Action.Target,
			},
		})
		tc.decision = decision.Rejected(tc.decision, tc.speaker)
	}

	speech := tc.decision.Speech
	if speech == "" {
		speech = decision.EmptySpeech
	}
	_, tc.event = s.RecordTalk(tc.speaker, speech, now)
	r.notify(ctx, Notice{
		Kind:    NoticeTurn,
		Turn:    s.CurrentTurn,
		Speaker: tc.speaker,
		Text:    speech,
		Source:  tc.decision.Source,
	})
}

func (r *run) updateMemory(ctx context.Context) error {
	tc := r.tc
	s := tc.scene
	memory.New(s.MemoryBufferSize).Update(s, tc.speaker, tc.witnesses, tc.event, &tc.decision)

	if err := s.Validate(); err != nil {
		r.logger.Error("Scene invariant violated", "turn", s.CurrentTurn, "error", err)
		r.notify(ctx, Notice{Kind: NoticeInvariant, Turn: s.CurrentTurn, Text: err.Error()})
		if r.o.cfg.Strict {
			return err
		}
	}
	r.record(ctx, string(PhaseUpdateMemory), &tc.event)
	return nil
}

func (r *run) checkConclusion(ctx context.Context) (bool, error) {
	s := r.tc.scene
	verdict := r.o.conclusion.Gate(s)

	var judgement *policy.Judgement
	switch verdict.Outcome {
	case policy.HardStop:
		judgement = &policy.Judgement{ShouldEnd: true, Narration: r.finalNarration(ctx)}
	case policy.Consult:
		j, err := r.o.director.JudgeConclusion(ctx, s)
		switch {
		case err == nil:
			judgement = &j
		case fatal(ctx, err):
			return false, fmt.Errorf("judge conclusion: %w", err)
		default:
			r.logger.Warn("Conclusion judgement failed, continuing", "turn", s.CurrentTurn, "error", err)
		}
	}

	end, text := policy.Decide(verdict, judgement)
	r.logger.Debug("Conclusion gate",
		"turn", s.CurrentTurn,
		"outcome", verdict.Outcome.String(),
		"reason", verdict.Reason,
		"end", end)
	if !end {
		return false, nil
	}
	r.conclude(ctx, text)
	return true, nil
}

// finalNarration asks the director to close the scene, falling back to the
// stock line. Budget exhaustion always ends the scene, so failures here are
// never fatal.
func (r *run) finalNarration(ctx context.Context) string {
	text, err := r.o.director.NarrateConclusion(ctx, r.tc.scene)
	if err != nil {
		r.logger.Warn("Final narration failed", "error", err)
		return policy.FallbackConclusion
	}
	if text == "" {
		return policy.FallbackConclusion
	}
	return text
}

func (r *run) conclude(ctx context.Context, text string) {
	s := r.tc.scene
	s.Conclude(text)
	ev := s.AddNarration(text, true, r.o.clock())
	r.notify(ctx, Notice{Kind: NoticeConcluded, Turn: s.CurrentTurn, Text: text})
	r.record(ctx, string(PhaseConcluded), &ev)
}

// fatal reports whether a collaborator error must end the run.
func fatal(ctx context.Context, err error) bool {
	return ctx.Err() != nil || errors.Is(err, chat.ErrUnavailable)
}
