package reporter

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/ppiankov/rpmverify/internal/harness"
)

var spinnerChars = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// TUI styles
var (
	headerStyle = lipgloss.NewStyle().Bold(true)
	failedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))  // red
	runStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("14")) // cyan
	doneStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("10")) // green
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("11")) // yellow
	dimStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))  // gray
	helpStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
)

type tickMsg time.Time

// Snapshot is the state the TUI polls each tick.
type Snapshot struct {
	Stages     []harness.StageResult // concluded stages, in plan order
	Done       bool
	ExitStatus int
}

// TUIModel is the Bubbletea model for the live stage display.
type TUIModel struct {
	plan        []harness.Stage
	getSnapshot func() Snapshot
	cancelRun   func() // called on 'q' to cancel the run context

	snap  Snapshot
	frame int
}

// NewTUIModel creates a new TUI model.
func NewTUIModel(plan []harness.Stage, getSnapshot func() Snapshot, cancelRun func()) TUIModel {
	return TUIModel{
		plan:        plan,
		getSnapshot: getSnapshot,
		cancelRun:   cancelRun,
	}
}

// Init implements tea.Model.
func (m TUIModel) Init() tea.Cmd {
	return tickCmd()
}

func tickCmd() tea.Cmd {
	return tea.Tick(200*time.Millisecond, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Update implements tea.Model.
func (m TUIModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			if m.cancelRun != nil {
				m.cancelRun()
			}
			return m, tea.Quit
		}

	case tickMsg:
		m.snap = m.getSnapshot()
		m.frame++
		if m.snap.Done {
			return m, tea.Quit
		}
		return m, tickCmd()
	}

	return m, nil
}

// View implements tea.Model.
func (m TUIModel) View() string {
	var b strings.Builder

	b.WriteString(headerStyle.Render(fmt.Sprintf("rpmverify — %d stages", len(m.plan))))
	b.WriteString("\n\n")

	for i, st := range m.plan {
		switch {
		case i < len(m.snap.Stages):
			b.WriteString(renderStage(m.snap.Stages[i]))
		case i == len(m.snap.Stages) && !m.snap.Done:
			spin := spinnerChars[m.frame%len(spinnerChars)]
			b.WriteString(runStyle.Render(fmt.Sprintf("  %s %-15s running", spin, st.Name)))
		default:
			b.WriteString(dimStyle.Render(fmt.Sprintf("  · %-15s pending", st.Name)))
		}
		b.WriteString("\n")
	}

	b.WriteString("\n")
	if m.snap.Done {
		if m.snap.ExitStatus == 0 {
			b.WriteString(doneStyle.Render("PASS (status 0)"))
		} else {
			b.WriteString(failedStyle.Render(fmt.Sprintf("FAIL (status %d)", m.snap.ExitStatus)))
		}
	} else {
		b.WriteString(helpStyle.Render("q: abort"))
	}
	b.WriteString("\n")

	return b.String()
}

func renderStage(res harness.StageResult) string {
	switch {
	case res.Skipped:
		return dimStyle.Render(fmt.Sprintf("  ─ %-15s skipped", res.Name))
	case res.Error == "":
		return doneStyle.Render(fmt.Sprintf("  ✓ %-15s %s", res.Name, res.Duration.Truncate(time.Millisecond)))
	case res.Mode == harness.BestEffort.String():
		return warnStyle.Render(fmt.Sprintf("  ! %-15s status %d (tolerated)", res.Name, res.ExitCode))
	default:
		return failedStyle.Render(fmt.Sprintf("  ✗ %-15s status %d", res.Name, res.ExitCode))
	}
}
