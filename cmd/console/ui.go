package main

import (
	"context"
	"fmt"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/google/uuid"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/scene-engine/internal/services/events"
	"github.com/jwebster45206/scene-engine/pkg/state"
)

// ConsoleUI is the BubbleTea model that watches scene runs.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	streamClient *http.Client
	sceneView    viewport.Model
	metaView     viewport.Model
	ready        bool
	width        int
	height       int
	err          error

	// Scenario selection state
	showScenarioModal bool
	scenarios         []string
	scenarioMap       map[string]string
	selectedScenario  int
	loadingScenarios  bool
	creating          bool

	// Quit confirmation state
	showQuitModal bool

	// Current run
	runID   uuid.UUID
	scene   *state.SceneState
	events  []state.Event
	running bool
	status  string
	stream  chan SSEEvent
	cancel  context.CancelFunc

	// Progress bar state
	progressTick int
}

type scenariosLoadedMsg struct {
	scenarios   []string
	scenarioMap map[string]string
	err         error
}

type runCreatedMsg struct {
	runID  uuid.UUID
	stream chan SSEEvent
	cancel context.CancelFunc
	err    error
}

type sseMsg struct {
	event SSEEvent
}

type streamClosedMsg struct{}

type runRefreshedMsg struct {
	scene  *state.SceneState
	events []state.Event
	err    error
}

type progressTickMsg struct{}

type refreshTickMsg struct{}

var (
	scenePanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingLeft(3)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(1).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	actionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	loadingStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	modalItemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("255"))

	modalSelectedItemStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("0")).
				Background(lipgloss.Color("205")).
				Bold(true)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client) ConsoleUI {
	sceneVp := viewport.New(50, 20)
	sceneVp.MouseWheelEnabled = true

	return ConsoleUI{
		config:            cfg,
		client:            client,
		streamClient:      &http.Client{},
		sceneView:         sceneVp,
		metaView:          viewport.New(20, 20),
		showScenarioModal: true,
		loadingScenarios:  true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return m.loadScenarios()
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}
	if m.showScenarioModal {
		return m.updateScenarioModal(msg)
	}

	var (
		svCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		}
		switch msg.String() {
		case "q":
			m.showQuitModal = true
			return m, nil
		case "n":
			if !m.running {
				m.stopStream()
				m.showScenarioModal = true
				m.err = nil
				return m, nil
			}
		case "r":
			return m, m.refreshRun()
		}

	case sseMsg:
		cmds := []tea.Cmd{waitForEvent(m.stream), m.refreshRun()}
		switch msg.event.Event.Type {
		case events.EventTypeRequestProcessing:
			m.status = "Playing"
		case events.EventTypeRequestCompleted:
			m.running = false
			m.status = "Concluded"
		case events.EventTypeRequestFailed:
			m.running = false
			m.status = "Failed"
			if errMsg, ok := msg.event.Event.Data["error"].(string); ok {
				m.err = fmt.Errorf("run failed: %s", errMsg)
			}
		}
		return m, tea.Batch(cmds...)

	case streamClosedMsg:
		m.stream = nil
		return m, nil

	case runRefreshedMsg:
		if msg.err == nil {
			m.scene = msg.scene
			m.events = msg.events
			if m.scene != nil && m.scene.IsConcluded {
				m.running = false
				m.status = "Concluded"
			}
			m.writeContent()
		}

	case refreshTickMsg:
		if m.running {
			return m, tea.Batch(m.refreshRun(), refreshTick())
		}

	case progressTickMsg:
		if m.running {
			m.progressTick++
			return m, progressTick()
		}
	}

	m.sceneView, svCmd = m.sceneView.Update(msg)
	m.metaView, mvCmd = m.metaView.Update(msg)
	return m, tea.Batch(svCmd, mvCmd)
}

func (m *ConsoleUI) resize(width, height int) {
	m.width = width
	m.height = height
	sceneWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - sceneWidth - 6
	m.sceneView.Width = sceneWidth - 2
	m.sceneView.Height = m.height - 5
	m.metaView.Width = metaWidth - 2
	m.metaView.Height = m.height - 3
	m.ready = true
	m.writeContent()
}

func (m *ConsoleUI) writeContent() {
	m.sceneView.SetContent(renderEvents(m.scene, m.events, m.sceneView.Width-4))
	m.sceneView.GotoBottom()
	m.metaView.SetContent(renderMetadata(m.scene, m.metaView.Width))
}

func (m *ConsoleUI) stopStream() {
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
}

// renderEvents formats the run timeline for the scene panel.
func renderEvents(s *state.SceneState, evs []state.Event, width int) string {
	if width < 20 {
		width = 20
	}
	var sb strings.Builder
	if s != nil {
		sb.WriteString(titleStyle.Render(strings.ToUpper(s.Seed.Title)))
		sb.WriteString("\n")
		if s.Seed.Description != "" {
			sb.WriteString(wordwrap.String(s.Seed.Description, width))
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	if len(evs) == 0 {
		sb.WriteString(loadingStyle.Render("Waiting for a worker to pick up the scene..."))
		return sb.String()
	}
	for _, ev := range evs {
		switch ev.Type {
		case state.EventNarration:
			sb.WriteString(narratorStyle.Render(wordwrap.String(ev.Content, width)))
		case state.EventAction:
			label := "ACT"
			if ev.Action != nil {
				label = string(ev.Action.Kind)
				if ev.Action.Target != "" {
					label += " -> " + ev.Action.Target
				}
			}
			sb.WriteString(speakerStyle.Render(ev.Speaker) + " " + actionStyle.Render("["+label+"]") + "\n")
			sb.WriteString(wordwrap.String(ev.Content, width))
		default:
			sb.WriteString(speakerStyle.Render(ev.Speaker+":") + "\n")
			sb.WriteString(wordwrap.String(ev.Content, width))
		}
		sb.WriteString("\n\n")
	}
	return sb.String()
}

// renderMetadata shows turn progress, world levels, flags and actions.
func renderMetadata(s *state.SceneState, width int) string {
	if s == nil {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(titleStyle.Render("Scene") + "\n")
	sb.WriteString(fmt.Sprintf("Turn %d/%d\n", s.CurrentTurn, s.TotalTurns))
	sb.WriteString(fmt.Sprintf("Actions: %d distinct\n\n", s.DistinctActions()))

	if len(s.World.Levels) > 0 {
		sb.WriteString(titleStyle.Render("Levels") + "\n")
		for _, k := range slices.Sorted(maps.Keys(s.World.Levels)) {
			sb.WriteString(fmt.Sprintf("%-*s %2d\n", min(width-4, 16), k, s.World.Levels[k]))
		}
		sb.WriteString("\n")
	}
	if flags := s.World.TrueFlags(); len(flags) > 0 {
		sb.WriteString(titleStyle.Render("Flags") + "\n")
		for _, f := range flags {
			sb.WriteString("- " + f + "\n")
		}
		sb.WriteString("\n")
	}
	if len(s.ActionsTaken) > 0 {
		sb.WriteString(titleStyle.Render("Actions") + "\n")
		for _, k := range s.ActionsTaken {
			sb.WriteString("- " + string(k) + "\n")
		}
	}
	return sb.String()
}

func (m ConsoleUI) loadScenarios() tea.Cmd {
	return func() tea.Msg {
		orderedNames, scenarioMap, err := listScenarios(m.client, m.config.APIBaseURL)
		return scenariosLoadedMsg{orderedNames, scenarioMap, err}
	}
}

// startRun queues the scenario and subscribes to its events.
func (m ConsoleUI) startRun(scenarioFile string) tea.Cmd {
	return func() tea.Msg {
		created, err := createRun(m.client, m.config.APIBaseURL, scenarioFile)
		if err != nil {
			return runCreatedMsg{err: err}
		}
		ctx, cancel := context.WithCancel(context.Background())
		stream := make(chan SSEEvent, 16)
		go func() {
			_ = listenToSSE(ctx, m.streamClient, m.config.APIBaseURL, created.RunID, stream)
		}()
		return runCreatedMsg{runID: created.RunID, stream: stream, cancel: cancel}
	}
}

func (m ConsoleUI) refreshRun() tea.Cmd {
	if m.runID == uuid.Nil {
		return nil
	}
	runID := m.runID
	return func() tea.Msg {
		s, err := getRun(m.client, m.config.APIBaseURL, runID)
		if err != nil {
			return runRefreshedMsg{err: err}
		}
		evs, err := getEvents(m.client, m.config.APIBaseURL, runID)
		return runRefreshedMsg{scene: s, events: evs, err: err}
	}
}

func waitForEvent(stream chan SSEEvent) tea.Cmd {
	if stream == nil {
		return nil
	}
	return func() tea.Msg {
		ev, ok := <-stream
		if !ok {
			return streamClosedMsg{}
		}
		return sseMsg{ev}
	}
}

func (m ConsoleUI) updateScenarioModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case scenariosLoadedMsg:
		m.loadingScenarios = false
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.scenarios = msg.scenarios
			m.scenarioMap = msg.scenarioMap
		}

	case runCreatedMsg:
		m.creating = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.runID = msg.runID
		m.stream = msg.stream
		m.cancel = msg.cancel
		m.scene = nil
		m.events = nil
		m.running = true
		m.status = "Queued"
		m.progressTick = 0
		m.showScenarioModal = false
		m.writeContent()
		return m, tea.Batch(waitForEvent(m.stream), progressTick(), refreshTick())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			if m.loadingScenarios {
				return m, tea.Quit
			}
			m.showQuitModal = true
			return m, nil
		}
		if m.loadingScenarios || m.creating || m.err != nil {
			return m, nil
		}
		switch msg.Type {
		case tea.KeyUp:
			if m.selectedScenario > 0 {
				m.selectedScenario--
			}
		case tea.KeyDown:
			if m.selectedScenario < len(m.scenarios)-1 {
				m.selectedScenario++
			}
		case tea.KeyEnter:
			if len(m.scenarios) > 0 {
				scenarioFile := m.scenarioMap[m.scenarios[m.selectedScenario]]
				m.creating = true
				return m, m.startRun(scenarioFile)
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			m.stopStream()
			return m, tea.Quit
		}
		switch msg.String() {
		case "y", "Y":
			m.stopStream()
			return m, tea.Quit
		case "n", "N":
			m.showQuitModal = false
			return m, nil
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit?"))
	content.WriteString("\n\n")
	content.WriteString("The scene keeps playing on the worker if you leave.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) renderScenarioModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder

	switch {
	case m.loadingScenarios:
		content.WriteString(modalTitleStyle.Render("Loading Scenarios..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Please wait while we fetch available scenarios..."))
	case m.err != nil:
		content.WriteString(modalTitleStyle.Render("Error"))
		content.WriteString("\n\n")
		content.WriteString(errorStyle.Render(m.err.Error()))
		content.WriteString("\n\n")
		content.WriteString("Press Ctrl+C to exit")
	case m.creating:
		content.WriteString(modalTitleStyle.Render("Queueing Scene..."))
		content.WriteString("\n\n")
		content.WriteString(loadingStyle.Render("Handing the scenario to a worker..."))
	default:
		content.WriteString(modalTitleStyle.Render("Select a Scenario"))
		content.WriteString("\n\n")
		for i, name := range m.scenarios {
			if i == m.selectedScenario {
				content.WriteString(modalSelectedItemStyle.Render(fmt.Sprintf("▶ %s", name)))
			} else {
				content.WriteString(modalItemStyle.Render(fmt.Sprintf("  %s", name)))
			}
			content.WriteString("\n")
		}
		content.WriteString("\n")
		content.WriteString(promptStyle.Render("Use ↑/↓ to navigate, Enter to select, Ctrl+C to exit"))
	}

	modal := modalStyle.Width(60).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}
	if m.showScenarioModal {
		return m.renderScenarioModal()
	}
	if !m.ready {
		return "\n  Initializing..."
	}

	sceneWidth := int(float64(m.width)*0.7) - 4
	metaWidth := m.width - sceneWidth - 6

	footer := promptStyle.Render(m.status + " | n: new scene  r: refresh  q: quit")
	if m.running {
		footer = m.renderProgressBar(sceneWidth - 4)
	}
	if m.err != nil {
		footer = errorStyle.Render(m.err.Error())
	}

	scenePanel := scenePanelStyle.Width(sceneWidth).Height(m.height - 1).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.sceneView.View(),
			separatorStyle.Render(strings.Repeat("─", max(sceneWidth-4, 1))),
			footer,
		),
	)
	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 1).Render(m.metaView.View())

	return lipgloss.JoinHorizontal(lipgloss.Top, scenePanel, metaPanel)
}

// renderProgressBar draws an animated bar while the scene plays.
func (m ConsoleUI) renderProgressBar(usable int) string {
	usable = min(max(usable, 10), 80)

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := range usable {
		switch {
		case i < filled:
			bar.WriteString("█")
		case i == filled && frame%4 < 2:
			bar.WriteString("▓")
		default:
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

func progressTick() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}

func refreshTick() tea.Cmd {
	return tea.Tick(2*time.Second, func(time.Time) tea.Msg {
		return refreshTickMsg{}
	})
}
