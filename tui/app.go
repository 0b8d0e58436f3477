// ABOUTME: Top-level Bubble Tea AppModel for the interactive query console.
// ABOUTME: Implements tea.Model (Init, Update, View) composing a text input, answer viewport, and activity line.
package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/2389-research/sqlscout/pipeline"
)

// historyEntry is one asked-and-answered exchange shown in the viewport.
type historyEntry struct {
	Question string
	Response *pipeline.Response
}

// AppModel is the top-level Bubble Tea model for the query console.
type AppModel struct {
	input    textinput.Model
	viewport viewport.Model
	spin     spinner.Model

	orch *pipeline.Orchestrator
	ctx  context.Context

	history  []historyEntry
	pending  string // question currently running
	activity string // last pipeline event, shown while running
	running  bool
	ready    bool // viewport sized
	width    int
	height   int
}

// NewAppModel creates an AppModel wired to the given orchestrator.
func NewAppModel(ctx context.Context, orch *pipeline.Orchestrator) AppModel {
	ti := textinput.New()
	ti.Placeholder = "Ask a question about the database..."
	ti.Focus()

	sp := spinner.New()
	sp.Spinner = spinner.Dot

	return AppModel{
		input: ti,
		spin:  sp,
		orch:  orch,
		ctx:   ctx,
	}
}

// Init implements tea.Model.
func (m AppModel) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (m AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		vpHeight := msg.Height - 6
		if vpHeight < 3 {
			vpHeight = 3
		}
		if !m.ready {
			m.viewport = viewport.New(msg.Width-2, vpHeight)
			m.ready = true
		} else {
			m.viewport.Width = msg.Width - 2
			m.viewport.Height = vpHeight
		}
		m.viewport.SetContent(m.renderHistory())
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "enter":
			return m.submit()
		}

	case QueryResultMsg:
		m.running = false
		m.activity = ""
		m.history = append(m.history, historyEntry{Question: m.pending, Response: msg.Response})
		m.pending = ""
		if m.ready {
			m.viewport.SetContent(m.renderHistory())
			m.viewport.GotoBottom()
		}
		return m, nil

	case PipelineEventMsg:
		m.activity = formatEvent(msg.Event)
		return m, nil

	case spinner.TickMsg:
		if !m.running {
			return m, nil
		}
		var cmd tea.Cmd
		m.spin, cmd = m.spin.Update(msg)
		return m, cmd
	}

	var cmds []tea.Cmd
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	if m.ready {
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// submit starts a query from the current input value. Empty input and
// already-running queries are ignored.
func (m AppModel) submit() (tea.Model, tea.Cmd) {
	question := strings.TrimSpace(m.input.Value())
	if question == "" || m.running {
		return m, nil
	}
	m.pending = question
	m.running = true
	m.activity = "classifying..."
	m.input.SetValue("")
	return m, tea.Batch(RunQueryCmd(m.ctx, m.orch, question), m.spin.Tick)
}

// View implements tea.Model.
func (m AppModel) View() string {
	if !m.ready {
		return "starting..."
	}

	var b strings.Builder
	b.WriteString(TitleStyle.Render("sqlscout") + "\n")
	b.WriteString(BorderStyle.Render(m.viewport.View()) + "\n")

	if m.running {
		b.WriteString(m.spin.View() + " " + ActivityStyle.Render(m.activity) + "\n")
	} else {
		b.WriteString("\n")
	}

	b.WriteString(m.input.View() + "\n")
	b.WriteString(m.statusBar())
	return b.String()
}

// statusBar renders the bottom bar with table count and key hints.
func (m AppModel) statusBar() string {
	left := fmt.Sprintf("%d tables", len(m.orch.Graph().Tables()))
	right := "enter: ask  esc: quit"
	gap := m.width - lipgloss.Width(left) - lipgloss.Width(right) - 2
	if gap < 1 {
		gap = 1
	}
	return StatusBarStyle.Render(left + strings.Repeat(" ", gap) + right)
}

// renderHistory formats every exchange for the viewport.
func (m AppModel) renderHistory() string {
	if len(m.history) == 0 {
		return ActivityStyle.Render("No queries yet. Type a question and press enter.")
	}
	var b strings.Builder
	for i, entry := range m.history {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(renderEntry(entry))
	}
	return b.String()
}

// renderEntry formats one exchange: question, status, answer, SQL, warnings.
func renderEntry(entry historyEntry) string {
	resp := entry.Response
	var b strings.Builder
	b.WriteString(QuestionStyle.Render("> "+entry.Question) + "\n")
	status := StyleForStatus(resp.Trace.FinalStatus).Render(string(resp.Trace.FinalStatus))
	b.WriteString(status + "  " + resp.Answer + "\n")
	if resp.SQLUsed != "" && resp.Success {
		b.WriteString(SQLStyle.Render(resp.SQLUsed) + "\n")
		b.WriteString(ActivityStyle.Render(fmt.Sprintf("%d rows", resp.RowCount)) + "\n")
	}
	for _, w := range resp.Warnings {
		b.WriteString(WarningStyle.Render("! "+w) + "\n")
	}
	return b.String()
}

// formatEvent renders a pipeline event as a one-line activity note.
func formatEvent(evt pipeline.Event) string {
	switch evt.Type {
	case pipeline.EventBatchCalled:
		return "reasoning: " + evt.Stage
	case pipeline.EventStageCompleted:
		return evt.Stage
	case pipeline.EventCorrection:
		if n, ok := evt.Data["attempt"].(int); ok {
			return fmt.Sprintf("correcting SQL (attempt %d)", n)
		}
		return "correcting SQL"
	default:
		return string(evt.Type)
	}
}

// Run starts the TUI program and blocks until the user quits. When a
// Forwarder is given, it is retargeted at the running program so pipeline
// events animate the activity line.
func Run(ctx context.Context, orch *pipeline.Orchestrator, fw *Forwarder) error {
	model := NewAppModel(ctx, orch)
	p := tea.NewProgram(model, tea.WithAltScreen())
	if fw != nil {
		fw.SetTarget(NewEventBridge(p.Send).HandleEvent)
	}
	_, err := p.Run()
	return err
}
