package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/indent"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/scene-engine/pkg/orchestrator"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("205")) // pink

	speakerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212")) // purple

	narratorStyle = lipgloss.NewStyle().
			Italic(true).
			Foreground(lipgloss.Color("86")) // green

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	rejectedStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	metaStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	endStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)
)

// Transcript prints a run as it plays. It implements orchestrator.Observer.
type Transcript struct {
	w       io.Writer
	width   int
	verbose bool
}

var _ orchestrator.Observer = (*Transcript)(nil)

func NewTranscript(w io.Writer, width int, verbose bool) *Transcript {
	if width < 40 {
		width = 40
	}
	return &Transcript{w: w, width: width, verbose: verbose}
}

// Header prints the scene title and cast.
func (t *Transcript) Header(s *state.SceneState) {
	fmt.Fprintln(t.w, titleStyle.Render(strings.ToUpper(s.Seed.Title)))
	if s.Seed.Description != "" {
		fmt.Fprintln(t.w, wordwrap.String(s.Seed.Description, t.width))
	}
	names := make([]string, len(s.Characters))
	for i, c := range s.Characters {
		names[i] = c.Name
	}
	fmt.Fprintln(t.w, metaStyle.Render(fmt.Sprintf("Cast: %s | %d turns", strings.Join(names, ", "), s.TotalTurns)))
	fmt.Fprintln(t.w)
}

func (t *Transcript) Observe(_ context.Context, n orchestrator.Notice) {
	switch n.Kind {
	case orchestrator.NoticeOpening, orchestrator.NoticeNarration:
		t.narration(n.Text)
	case orchestrator.NoticeSpeaker:
		if t.verbose {
			line := fmt.Sprintf("turn %d: %s", n.Turn, n.Speaker)
			if n.ForceAct {
				line += " [force act]"
			}
			fmt.Fprintln(t.w, metaStyle.Render(line))
		}
	case orchestrator.NoticeTurn:
		t.turn(n.Turn, n.Speaker, n.Text, n.Action)
	case orchestrator.NoticeRejected:
		fmt.Fprintln(t.w, rejectedStyle.Render(indent.String(wordwrap.String("rejected: "+n.Text, t.width-4), 4)))
	case orchestrator.NoticeInvariant:
		fmt.Fprintln(t.w, rejectedStyle.Render("invariant violated: "+n.Text))
	case orchestrator.NoticeConcluded:
		fmt.Fprintln(t.w)
		fmt.Fprintln(t.w, endStyle.Render(wordwrap.String(n.Text, t.width-4)))
	}
}

// Events prints a stored timeline.
func (t *Transcript) Events(events []state.Event) {
	for _, ev := range events {
		switch {
		case ev.Conclusion:
			fmt.Fprintln(t.w)
			fmt.Fprintln(t.w, endStyle.Render(wordwrap.String(ev.Content, t.width-4)))
		case ev.Type == state.EventNarration:
			t.narration(ev.Content)
		default:
			t.turn(ev.Turn, ev.Speaker, ev.Content, ev.Action)
		}
	}
}

func (t *Transcript) narration(text string) {
	if text == "" {
		return
	}
	fmt.Fprintln(t.w, narratorStyle.Render(wordwrap.String(text, t.width)))
	fmt.Fprintln(t.w)
}

func (t *Transcript) turn(turn int, speaker, text string, action *state.ActionRecord) {
	head := speakerStyle.Render(speaker) + metaStyle.Render(fmt.Sprintf(" (%d)", turn))
	if action != nil {
		head += " " + actionStyle.Render("["+string(action.Kind)+"]")
	}
	fmt.Fprintln(t.w, head)
	fmt.Fprintln(t.w, indent.String(wordwrap.String(text, t.width-2), 2))
	fmt.Fprintln(t.w)
}
