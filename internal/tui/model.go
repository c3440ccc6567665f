package tui

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/MythicApp/Mythic-sub001/internal/coordinator"
	"github.com/MythicApp/Mythic-sub001/internal/logging"
	"github.com/MythicApp/Mythic-sub001/internal/parser"
)

// =============================================================================
// Messages
// =============================================================================

// TickMsg is sent periodically to update the display.
type TickMsg time.Time

// OutcomeMsg carries a finished operation.
type OutcomeMsg struct {
	Outcome coordinator.Outcome
}

// QuitMsg signals the TUI should exit.
type QuitMsg struct{}

// =============================================================================
// Model
// =============================================================================

// Source is the coordinator view the dashboard polls.
type Source interface {
	State() coordinator.State
	Current() (coordinator.Request, bool)
	Queue() []coordinator.Request
	Progress() (parser.Snapshot, bool)
}

// LineSource provides recent tool output.
type LineSource interface {
	RecentLines(n int) []logging.OutputLine
}

// Config holds TUI configuration.
type Config struct {
	Source      Source
	Lines       LineSource // optional
	MetricsAddr string

	// Cancel stops the running operation. Optional.
	Cancel func() error

	// MaxFinished bounds the finished list. Default 8.
	MaxFinished int
}

// Model represents the TUI state.
type Model struct {
	source      Source
	lines       LineSource
	cancel      func() error
	metricsAddr string
	maxFinished int

	// Polled state
	state    coordinator.State
	current  *coordinator.Request
	queue    []coordinator.Request
	progress parser.Snapshot
	recent   []logging.OutputLine

	finished  []coordinator.Outcome
	lastError string

	startTime  time.Time
	lastUpdate time.Time
	showLog    bool

	// Display options
	width  int
	height int

	quitting bool
}

// New creates a new TUI model.
func New(cfg Config) Model {
	maxFinished := cfg.MaxFinished
	if maxFinished <= 0 {
		maxFinished = 8
	}
	return Model{
		source:      cfg.Source,
		lines:       cfg.Lines,
		cancel:      cfg.Cancel,
		metricsAddr: cfg.MetricsAddr,
		maxFinished: maxFinished,
		startTime:   time.Now(),
		lastUpdate:  time.Now(),
		showLog:     true,
		width:       80,
		height:      24,
	}
}

// =============================================================================
// Bubble Tea Interface
// =============================================================================

// Init initializes the model.
func (m Model) Init() tea.Cmd {
	return tickCmd()
}

// Update handles messages.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			m.quitting = true
			return m, tea.Quit
		case "l":
			m.showLog = !m.showLog
			return m, nil
		case "c":
			if m.cancel != nil {
				if err := m.cancel(); err != nil {
					m.lastError = err.Error()
				} else {
					m.lastError = ""
				}
			}
			return m, nil
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case TickMsg:
		m = m.poll()
		return m, tickCmd()

	case OutcomeMsg:
		m.finished = append(m.finished, msg.Outcome)
		if len(m.finished) > m.maxFinished {
			m.finished = m.finished[len(m.finished)-m.maxFinished:]
		}
		return m.poll(), nil

	case QuitMsg:
		m.quitting = true
		return m, tea.Quit
	}

	return m, nil
}

// poll refreshes the model from its sources.
func (m Model) poll() Model {
	if m.source != nil {
		m.state = m.source.State()
		if req, ok := m.source.Current(); ok {
			m.current = &req
		} else {
			m.current = nil
		}
		m.queue = m.source.Queue()
		m.progress, _ = m.source.Progress()
	}
	if m.lines != nil {
		m.recent = m.lines.RecentLines(logLines(m.height))
	}
	m.lastUpdate = time.Now()
	return m
}

// View renders the TUI.
func (m Model) View() string {
	if m.quitting {
		return ""
	}
	return m.renderView()
}

// =============================================================================
// Commands
// =============================================================================

// tickCmd returns a command that sends a tick after 500ms.
func tickCmd() tea.Cmd {
	return tea.Tick(500*time.Millisecond, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// =============================================================================
// Accessors
// =============================================================================

// Elapsed returns the time since the dashboard started.
func (m Model) Elapsed() time.Duration {
	return time.Since(m.startTime)
}

// Finished returns the finished operations shown, oldest first.
func (m Model) Finished() []coordinator.Outcome {
	return m.finished
}

// =============================================================================
// Helper for external use
// =============================================================================

// SendOutcome sends a finished operation to the TUI.
func SendOutcome(p *tea.Program, o coordinator.Outcome) {
	if p != nil {
		p.Send(OutcomeMsg{Outcome: o})
	}
}

// SendQuit sends a quit message to the TUI.
func SendQuit(p *tea.Program) {
	if p != nil {
		p.Send(QuitMsg{})
	}
}

// =============================================================================
// Formatting Helpers (used by view.go)
// =============================================================================

// formatDuration formats a duration as HH:MM:SS.
func formatDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	h := int(d.Hours())
	m := int(d.Minutes()) % 60
	s := int(d.Seconds()) % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

// logLines is how many output lines fit under the panels.
func logLines(height int) int {
	n := height - 22
	if n < 3 {
		n = 3
	}
	return n
}
