package orchestrator

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/decision"
	"github.com/jwebster45206/scene-engine/pkg/policy"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// SpeakerChoice is the director's pick for the next turn. Narration, when
// present, is recorded as a narration event before the turn.
type SpeakerChoice struct {
	Speaker   string
	Narration string
}

// Director picks speakers and judges when the scene is over.
type Director interface {
	SelectSpeaker(ctx context.Context, s *state.SceneState, candidates []string, forceAct, endgame bool) (SpeakerChoice, error)
	JudgeConclusion(ctx context.Context, s *state.SceneState) (policy.Judgement, error)
	// NarrateConclusion closes a scene whose turn budget ran out.
	NarrateConclusion(ctx context.Context, s *state.SceneState) (string, error)
}

// Opener is implemented by directors that set the scene before turn one.
type Opener interface {
	Opening(ctx context.Context, s *state.SceneState) (string, error)
}

// Character produces raw decision text for whichever character is speaking.
type Character = decision.Responder

// DecisionRequest is what a Character receives each turn.
type DecisionRequest = decision.Request

// Notice kinds sent to an Observer.
const (
	NoticeOpening   = "opening"
	NoticeNarration = "narration"
	NoticeSpeaker   = "speaker"
	NoticeTurn      = "turn"
	NoticeRejected  = "action_rejected"
	NoticeConcluded = "concluded"
	NoticeInvariant = "invariant_violation"
)

// Notice is one step of a run as seen from outside.
type Notice struct {
	RunID    uuid.UUID           `json:"run_id"`
	Kind     string              `json:"kind"`
	Turn     int                 `json:"turn"`
	Speaker  string              `json:"speaker,omitempty"`
	Text     string              `json:"text,omitempty"`
	ForceAct bool                `json:"force_act,omitempty"`
	Action   *state.ActionRecord `json:"action,omitempty"`
	Source   string              `json:"source,omitempty"`
	At       time.Time           `json:"at"`
}

// Observer receives notices as the run progresses. It must not block for
// long; the loop waits for it.
type Observer interface {
	Observe(ctx context.Context, n Notice)
}

// Snapshot is an append-only view of the scene after a step.
type Snapshot struct {
	RunID uuid.UUID
	Turn  int
	Phase string
	Scene *state.SceneState
	Event *state.Event
	At    time.Time
}

// Recorder persists snapshots. Its errors are logged and never end a run.
type Recorder interface {
	SaveSnapshot(ctx context.Context, snap Snapshot) error
}

// Observers sends each notice to every observer in order.
type Observers []Observer

func (obs Observers) Observe(ctx context.Context, n Notice) {
	for _, o := range obs {
		o.Observe(ctx, n)
	}
}

// Recorders saves each snapshot to every recorder and joins their errors.
type Recorders []Recorder

func (rs Recorders) SaveSnapshot(ctx context.Context, snap Snapshot) error {
	var errs []error
	for _, r := range rs {
		if err := r.SaveSnapshot(ctx, snap); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// MenuFor narrows the menu shown to a character to the suggested action on a
// forced turn.
func MenuFor(c *action.Catalog, allowed []action.Kind, forceAct bool, suggested action.Kind) []action.MenuItem {
	if forceAct && suggested != "" {
		for _, k := range allowed {
			if k == suggested {
				return c.Menu([]action.Kind{k})
			}
		}
	}
	return c.Menu(allowed)
}
