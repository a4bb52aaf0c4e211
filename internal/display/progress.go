package display

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"

	"github.com/recinq/reduceai/internal/event"
)

// progressState is what the bubbletea model renders. It is a snapshot,
// not the live Event stream, so the model never touches pipeline internals.
type progressState struct {
	runID      string
	phase      string
	state      string
	completed  int
	total      int
	percentage float64
	lastItem   string
	message    string
	errText    string
	startedAt  time.Time
	done       bool
}

type tickMsg time.Time
type updateMsg progressState

type progressModel struct {
	state   progressState
	spinner spinner.Model
}

func newProgressModel(s progressState) progressModel {
	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("6"))
	return progressModel{state: s, spinner: sp}
}

func (m progressModel) Init() tea.Cmd {
	return tea.Batch(tickCmd(), m.spinner.Tick)
}

func (m progressModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if msg.String() == "ctrl+c" {
			return m, tea.Quit
		}
	case tickMsg:
		if m.state.done {
			return m, tea.Quit
		}
		return m, tickCmd()
	case updateMsg:
		m.state = progressState(msg)
		if m.state.done {
			return m, tea.Quit
		}
	case spinner.TickMsg:
		if m.state.done {
			return m, nil
		}
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m progressModel) View() string {
	title := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("6")).Render(m.state.runID)
	phase := lipgloss.NewStyle().Foreground(lipgloss.Color("244")).Render(m.state.phase)
	bar := renderBar(30, m.state.percentage)
	counts := fmt.Sprintf("%d/%d", m.state.completed, m.state.total)
	elapsed := time.Since(m.state.startedAt).Round(100 * time.Millisecond)
	indicator := m.spinner.View()
	if m.state.done {
		indicator = "✓"
	}

	line := fmt.Sprintf("%s %s  %s  %s %s  %s  %s", indicator, title, phase, bar, counts, elapsed, m.state.lastItem)
	if m.state.errText != "" {
		line += "\n" + lipgloss.NewStyle().Foreground(lipgloss.Color("1")).Render(m.state.errText)
	}
	return line + "\n"
}

func tickCmd() tea.Cmd {
	return tea.Tick(100*time.Millisecond, func(t time.Time) tea.Msg { return tickMsg(t) })
}

// ProgressDisplay is an event.EventEmitter backed by a bubbletea program
// that renders a live progress bar for one mapreduce job run. It is
// disabled automatically when stdout is not a TTY.
type ProgressDisplay struct {
	mu      sync.Mutex
	program *tea.Program
	enabled bool
	started time.Time
}

// NewProgressDisplay builds a ProgressDisplay for runID, starting the
// bubbletea program only when stdout looks like an interactive terminal.
func NewProgressDisplay(runID string) *ProgressDisplay {
	enabled := term.IsTerminal(int(os.Stdout.Fd()))
	if !enabled {
		return &ProgressDisplay{enabled: false}
	}

	started := time.Now()
	model := newProgressModel(progressState{runID: runID, startedAt: started})
	p := tea.NewProgram(model, tea.WithOutput(os.Stdout))

	d := &ProgressDisplay{program: p, enabled: true, started: started}
	go func() { _, _ = p.Run() }()
	return d
}

// Emit implements event.EventEmitter.
func (d *ProgressDisplay) Emit(e event.Event) {
	if !d.enabled {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()

	s := progressState{
		runID:      e.RunID,
		phase:      e.Phase,
		state:      e.State,
		completed:  e.Completed,
		total:      e.Total,
		percentage: e.Percentage,
		lastItem:   e.LastItem,
		message:    e.Message,
		errText:    e.Error,
		startedAt:  d.started,
		done:       e.State == event.StateCompleted || e.State == event.StateFailed || e.State == event.StateCancelled,
	}
	d.program.Send(updateMsg(s))
}

// Stop tears the bubbletea program down. Safe to call when disabled.
func (d *ProgressDisplay) Stop() {
	if !d.enabled {
		return
	}
	d.program.Quit()
	d.program.Wait()
}
