package prompts

import (
	"fmt"
	"strings"

	"github.com/jwebster45206/scene-engine/pkg/action"
	"github.com/jwebster45206/scene-engine/pkg/chat"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// DefaultHistoryLimit is how many timeline lines director prompts include.
const DefaultHistoryLimit = 5

// Builder constructs chat messages for director and character calls using a
// fluent interface. It only reads the scene.
type Builder struct {
	scene        *state.SceneState
	speaker      string
	candidates   []string
	menu         []action.MenuItem
	forceAct     bool
	suggested    state.ActionKind
	endgame      bool
	minActions   int
	historyLimit int
	raw          string
	messages     []chat.ChatMessage
}

// New creates a new prompt builder with default settings.
func New() *Builder {
	return &Builder{
		historyLimit: DefaultHistoryLimit,
		messages:     make([]chat.ChatMessage, 0),
	}
}

// WithScene sets the scene being played.
func (b *Builder) WithScene(s *state.SceneState) *Builder {
	b.scene = s
	return b
}

// WithSpeaker sets the character a decision prompt is for.
func (b *Builder) WithSpeaker(name string) *Builder {
	b.speaker = name
	return b
}

// WithCandidates sets who the director may pick.
func (b *Builder) WithCandidates(names []string) *Builder {
	b.candidates = names
	return b
}

// WithMenu sets the actions offered to the speaker.
func (b *Builder) WithMenu(menu []action.MenuItem) *Builder {
	b.menu = menu
	return b
}

// WithForceAct marks the turn as forced, optionally naming the expected action.
func (b *Builder) WithForceAct(forced bool, suggested state.ActionKind) *Builder {
	b.forceAct = forced
	b.suggested = suggested
	return b
}

// WithEndgame marks the last turns of the budget.
func (b *Builder) WithEndgame(endgame bool) *Builder {
	b.endgame = endgame
	return b
}

// WithMinActions sets the distinct action target shown in status lines.
func (b *Builder) WithMinActions(n int) *Builder {
	b.minActions = n
	return b
}

// WithHistoryLimit sets the timeline window for director prompts.
func (b *Builder) WithHistoryLimit(limit int) *Builder {
	b.historyLimit = limit
	return b
}

// WithRaw sets the unusable response a repair prompt follows.
func (b *Builder) WithRaw(raw string) *Builder {
	b.raw = raw
	return b
}

// BuildSelectSpeaker builds the director's speaker selection prompt.
func (b *Builder) BuildSelectSpeaker() ([]chat.ChatMessage, error) {
	if err := b.requireScene(); err != nil {
		return nil, err
	}
	if len(b.candidates) == 0 {
		return nil, fmt.Errorf("at least one candidate is required")
	}
	b.reset()
	b.addDirectorSystem()

	ps := ToPromptState(b.scene, b.historyLimit)
	var sb strings.Builder
	sb.WriteString(ps.ToString())
	sb.WriteString("\nPHASE DIRECTION: " + phaseDirection(ps.Phase) + "\n")
	if b.minActions > 0 {
		sb.WriteString(fmt.Sprintf("Distinct actions needed: %d\n", b.minActions))
	}
	sb.WriteString("\nAVAILABLE CHARACTERS: " + strings.Join(b.candidates, ", ") + "\n")

	var extra []string
	if b.forceAct {
		extra = append(extra, ForceActDirection)
		if b.minActions > 0 && ps.Distinct < b.minActions {
			extra = append(extra, fmt.Sprintf(VarietyDirection, ps.UsedList()))
		}
	}
	if b.endgame {
		extra = append(extra, fmt.Sprintf(EndgameDirection, ps.Remaining))
	}
	if len(extra) > 0 {
		sb.WriteString("\n" + strings.Join(extra, "\n") + "\n")
	}
	sb.WriteString("\n" + fmt.Sprintf(SelectSpeakerTask, strings.Join(b.candidates, ", ")))

	b.addUser(sb.String())
	return b.messages, nil
}

// BuildConclusion builds the director's conclusion judgement prompt.
func (b *Builder) BuildConclusion() ([]chat.ChatMessage, error) {
	if err := b.requireScene(); err != nil {
		return nil, err
	}
	b.reset()
	b.addDirectorSystem()
	ps := ToPromptState(b.scene, b.historyLimit)
	b.addUser(ps.ToString() + "\n" + ConclusionTask)
	return b.messages, nil
}

// BuildOpening builds the director's opening narration prompt.
func (b *Builder) BuildOpening() ([]chat.ChatMessage, error) {
	if err := b.requireScene(); err != nil {
		return nil, err
	}
	b.reset()
	b.addDirectorSystem()
	ps := ToPromptState(b.scene, 0)
	b.addUser(ps.ToString() + "\n" + OpeningTask)
	return b.messages, nil
}

// BuildFinalConclusion builds the closing narration prompt used when the
// turn budget is spent.
func (b *Builder) BuildFinalConclusion() ([]chat.ChatMessage, error) {
	if err := b.requireScene(); err != nil {
		return nil, err
	}
	b.reset()
	b.addDirectorSystem()
	ps := ToPromptState(b.scene, b.historyLimit)
	b.addUser(ps.ToString() + "\n" + FinalConclusionTask)
	return b.messages, nil
}

// BuildDecision builds the speaking character's decision prompt. The
// character only sees its own memory.
func (b *Builder) BuildDecision() ([]chat.ChatMessage, error) {
	if err := b.requireSpeaker(); err != nil {
		return nil, err
	}
	b.reset()
	b.addCharacterSystem()

	ps := ToCharacterPromptState(b.scene, b.speaker)
	var sb strings.Builder
	sb.WriteString(ps.ToString())
	sb.WriteString(b.profile())
	sb.WriteString(b.actionMenu())

	var extra []string
	if b.forceAct {
		extra = append(extra, ForceActInstruction)
		if b.suggested != "" && b.offered(b.suggested) {
			extra = append(extra, fmt.Sprintf(MandatoryActionInstruction, b.suggested, b.suggested))
		}
	}
	switch {
	case ps.Remaining <= 1:
		extra = append(extra, "!! FINAL TURN. Deliver your concluding line. !!")
	case ps.Remaining <= 3:
		extra = append(extra, fmt.Sprintf("!! %d turns left. Push toward resolution. !!", ps.Remaining))
	}
	if repetitive(b.scene, b.speaker) {
		extra = append(extra, RepetitionWarning)
	}
	if len(extra) > 0 {
		sb.WriteString("\n" + strings.Join(extra, "\n") + "\n")
	}

	sb.WriteString("\nDIRECTION: " + characterDirection(ps.Phase, b.speaker) + "\n\n")
	sb.WriteString(fmt.Sprintf(DecisionTask, strings.Join(b.menuKinds(), ", ")))

	b.addUser(sb.String())
	return b.messages, nil
}

// BuildRepair builds the single follow-up sent after an unusable decision.
func (b *Builder) BuildRepair() ([]chat.ChatMessage, error) {
	if err := b.requireSpeaker(); err != nil {
		return nil, err
	}
	b.reset()
	desc := "a character"
	if c, ok := b.scene.Character(b.speaker); ok && c.Description != "" {
		desc = strings.TrimSuffix(c.Description, ".")
	}
	prompt := fmt.Sprintf(RepairPrompt, b.speaker, desc)
	if b.raw != "" {
		prompt = "Your previous response:\n" + clip(b.raw, 500) + "\n\n" + prompt
	}
	b.addUser(prompt)
	return b.messages, nil
}

func (b *Builder) reset() {
	b.messages = make([]chat.ChatMessage, 0, 3)
}

func (b *Builder) requireScene() error {
	if b.scene == nil {
		return fmt.Errorf("scene is required")
	}
	return nil
}

func (b *Builder) requireSpeaker() error {
	if err := b.requireScene(); err != nil {
		return err
	}
	if b.speaker == "" {
		return fmt.Errorf("speaker is required")
	}
	if _, ok := b.scene.Character(b.speaker); !ok {
		return fmt.Errorf("speaker %q is not in the scene", b.speaker)
	}
	return nil
}

func (b *Builder) addDirectorSystem() {
	content := DirectorSystemPrompt
	if style := b.scene.Seed.DirectorStyle; len(style) > 0 {
		content += "\n\nNarration style:\n- " + strings.Join(style, "\n- ")
	}
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: content + b.ratingLine(),
	})
}

func (b *Builder) addCharacterSystem() {
	title := b.scene.Seed.Title
	if title == "" {
		title = "Untitled"
	}
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleSystem,
		Content: fmt.Sprintf(CharacterSystemPrompt, b.speaker, title) + b.ratingLine(),
	})
}

func (b *Builder) ratingLine() string {
	rating := b.scene.Seed.Rating
	if rating == "" {
		rating = RatingPG13
	}
	return "\n\nContent Rating: " + rating + " (" + strings.TrimSpace(RatingPrompt(rating)) + ")"
}

func (b *Builder) addUser(content string) {
	b.messages = append(b.messages, chat.ChatMessage{
		Role:    chat.ChatRoleUser,
		Content: content,
	})
}

// profile renders the speaker's private memory.
func (b *Builder) profile() string {
	c, _ := b.scene.Character(b.speaker)
	mem := b.scene.Memories[b.speaker]

	var sb strings.Builder
	sb.WriteString("\nYOU: " + b.speaker)
	if c.Role != "" {
		sb.WriteString(" (" + c.Role + ")")
	}
	if c.Description != "" {
		sb.WriteString(", " + c.Description)
	}
	sb.WriteString("\n")
	if len(c.Goals) > 0 {
		sb.WriteString("YOUR GOALS: " + strings.Join(c.Goals, "; ") + "\n")
	}
	if mem == nil {
		return sb.String()
	}
	if mem.EmotionalState != "" {
		sb.WriteString("YOU FEEL: " + mem.EmotionalState + "\n")
	}
	if len(mem.Inventory) > 0 {
		sb.WriteString("YOU CARRY: " + strings.Join(mem.Inventory, ", ") + "\n")
	}
	if len(mem.Knowledge) > 0 {
		sb.WriteString("\nWHAT YOU KNOW:\n")
		for _, k := range mem.Knowledge {
			sb.WriteString("- " + k + "\n")
		}
	}
	if len(mem.Perceptions) > 0 {
		sb.WriteString("\nWHAT YOU THINK OF THE OTHERS:\n")
		for _, c := range b.scene.Characters {
			if view, ok := mem.Perceptions[c.Name]; ok {
				sb.WriteString("- " + c.Name + ": " + view + "\n")
			}
		}
	}
	return sb.String()
}

func (b *Builder) actionMenu() string {
	var sb strings.Builder
	sb.WriteString("\nALLOWED PHYSICAL ACTIONS (ONLY these are valid):\n")
	if len(b.menu) == 0 {
		sb.WriteString("- No actions available. TALK this turn.\n")
		return sb.String()
	}
	for _, item := range b.menu {
		sb.WriteString(fmt.Sprintf("- %s: %s", item.Kind, item.Description))
		if b.scene.Used(item.Kind) {
			sb.WriteString(" [ALREADY USED]")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (b *Builder) menuKinds() []string {
	out := make([]string, len(b.menu))
	for i, item := range b.menu {
		out[i] = string(item.Kind)
	}
	if len(out) == 0 {
		return []string{"(none)"}
	}
	return out
}

func (b *Builder) offered(kind state.ActionKind) bool {
	for _, item := range b.menu {
		if item.Kind == kind {
			return true
		}
	}
	return false
}

// repetitive reports whether the speaker's last two spoken lines share more
// than half their words.
func repetitive(s *state.SceneState, speaker string) bool {
	history := s.DialogueHistory
	if len(history) > 6 {
		history = history[len(history)-6:]
	}
	var own []string
	for _, t := range history {
		if t.Speaker != speaker {
			continue
		}
		if _, act := t.ActionType(); act {
			continue
		}
		own = append(own, t.Text)
	}
	if len(own) < 2 {
		return false
	}
	last := wordSet(own[len(own)-1])
	prev := wordSet(own[len(own)-2])
	shared, union := 0, len(prev)
	for w := range last {
		if prev[w] {
			shared++
		} else {
			union++
		}
	}
	if union == 0 {
		return false
	}
	return float64(shared)/float64(union) > 0.5
}

func wordSet(s string) map[string]bool {
	set := make(map[string]bool)
	for _, w := range strings.Fields(strings.ToLower(s)) {
		set[w] = true
	}
	return set
}
