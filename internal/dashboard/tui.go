// Package dashboard renders a live view of running job instances: an
// interactive two-pane TUI on terminals, prefixed line streaming elsewhere.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dkoosis/fanout/internal/runner"
)

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("39"))
	listStyle     = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	detailStyle   = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).Padding(0, 1)
	selectedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("229")).Background(lipgloss.Color("57"))
	headerStyle   = lipgloss.NewStyle().Bold(true).Underline(true)
	statusStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("242"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	runningStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Run launches the interactive dashboard over already-started tasks. It
// returns 1 when any instance failed or was cancelled.
func Run(ctx context.Context, tasks []*runner.Task, updates <-chan runner.Update) (int, error) {
	program := tea.NewProgram(newModel(tasks, updates), tea.WithContext(ctx))
	finalModel, err := program.Run()
	if err != nil {
		return 1, err
	}
	return finalModel.(model).exitCode(), nil
}

type model struct {
	tasks       []*runner.Task
	states      []instState
	updates     <-chan runner.Update
	selected    int
	viewport    viewport.Model
	ready       bool
	done        bool
	width       int
	height      int
	listWidth   int
	detailWidth int
}

// instState is the model's own copy of one instance's display state. Runner
// goroutines keep writing their Task structs while the TUI renders, so the
// view must be fed from received updates only, never from shared Task fields.
type instState struct {
	status     runner.Status
	startedAt  time.Time
	finishedAt time.Time
}

func (s instState) duration() time.Duration {
	if s.startedAt.IsZero() {
		return 0
	}
	if s.finishedAt.IsZero() {
		return time.Since(s.startedAt)
	}
	return s.finishedAt.Sub(s.startedAt)
}

func newModel(tasks []*runner.Task, updates <-chan runner.Update) model {
	vp := viewport.New(0, 0)
	vp.SetContent("Select an instance to view output")
	return model{tasks: tasks, states: make([]instState, len(tasks)), updates: updates, viewport: vp}
}

func (m model) Init() tea.Cmd {
	return tea.Batch(m.listenUpdates(), tea.Tick(time.Second/8, func(time.Time) tea.Msg { return tickMsg{} }))
}

type tickMsg struct{}
type updateMsg runner.Update
type doneMsg struct{}

func (m model) listenUpdates() tea.Cmd {
	return func() tea.Msg {
		update, ok := <-m.updates
		if !ok {
			return doneMsg{}
		}
		return updateMsg(update)
	}
}

func (m model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q":
			if m.done {
				return m, tea.Quit
			}
		case "up", "k":
			if m.selected > 0 {
				m.selected--
				m.refreshViewport()
			}
		case "down", "j":
			if m.selected < len(m.tasks)-1 {
				m.selected++
				m.refreshViewport()
			}
		}
	case tea.WindowSizeMsg:
		m.width = msg.Width - 7
		m.height = msg.Height
		m.listWidth = m.calculateListWidth()
		if m.listWidth < 22 {
			m.listWidth = 22
		}
		if m.listWidth > m.width/2 {
			m.listWidth = m.width / 2
		}
		m.detailWidth = m.width - m.listWidth - 1
		m.viewport.Width = m.detailWidth - 4
		m.viewport.Height = msg.Height - 10
		m.ready = true
		m.refreshViewport()
	case tickMsg:
		return m, tea.Tick(time.Second/8, func(time.Time) tea.Msg { return tickMsg{} })
	case updateMsg:
		m.applyUpdate(runner.Update(msg))
		if msg.Line != "" && msg.Index == m.selected {
			m.refreshViewport()
		}
		if m.allDone() {
			m.done = true
		}
		return m, m.listenUpdates()
	case doneMsg:
		m.done = true
		return m, nil
	}
	return m, nil
}

func (m *model) applyUpdate(u runner.Update) {
	if u.Index < 0 || u.Index >= len(m.states) {
		return
	}
	st := &m.states[u.Index]
	st.status = u.Status
	if !u.StartedAt.IsZero() {
		st.startedAt = u.StartedAt
	}
	if !u.FinishedAt.IsZero() {
		st.finishedAt = u.FinishedAt
	}
}

func (m *model) calculateListWidth() int {
	maxWidth := 0
	for _, task := range m.tasks {
		if n := len(task.Instance.ID) + 14; n > maxWidth {
			maxWidth = n
		}
	}
	return maxWidth + 4
}

func (m *model) refreshViewport() {
	if m.selected < 0 || m.selected >= len(m.tasks) {
		return
	}
	m.viewport.SetContent(strings.Join(m.tasks[m.selected].GetOutput(), "\n"))
	m.viewport.GotoBottom()
}

func (m model) View() string {
	if !m.ready {
		return "Loading dashboard..."
	}

	title := "\n" + titleStyle.Width(m.width+5).Render("fanout run")

	contentHeight := m.height - 8
	if contentHeight < 5 {
		contentHeight = 5
	}

	listPanel := listStyle.Width(m.listWidth).Render(fitHeight(m.renderList(), contentHeight))

	var detailContent string
	if m.selected >= 0 && m.selected < len(m.tasks) {
		task := m.tasks[m.selected]
		header := headerStyle.Render(task.Instance.ID + "  " + task.Instance.Command)
		detailContent = header + "\n\n" + m.viewport.View()
	} else {
		detailContent = "Select an instance to view output"
	}
	detailPanel := detailStyle.Width(m.detailWidth).Render(fitHeight(detailContent, contentHeight))

	panels := lipgloss.JoinHorizontal(lipgloss.Top, listPanel, detailPanel)
	help := statusStyle.Render("↑/↓ navigate • q quit")
	return lipgloss.JoinVertical(lipgloss.Left, title, panels, help)
}

func fitHeight(content string, height int) string {
	lines := strings.Split(content, "\n")
	for len(lines) < height {
		lines = append(lines, "")
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m model) renderList() string {
	var lines []string
	lineWidth := m.listWidth - 6
	if lineWidth < 20 {
		lineWidth = 20
	}
	for i, task := range m.tasks {
		st := m.states[i]
		duration := ""
		if st.status != runner.StatusPending {
			duration = " " + formatDuration(st.duration())
		}
		if i == m.selected {
			content := fmt.Sprintf("▶ %s %s%s", statusIcon(st), task.Instance.ID, duration)
			lines = append(lines, selectedStyle.Width(lineWidth).Render(content))
		} else {
			lines = append(lines, fmt.Sprintf("  %s %s%s", statusIcon(st), task.Instance.ID, statusStyle.Render(duration)))
		}
	}
	return strings.Join(lines, "\n")
}

func statusIcon(st instState) string {
	switch st.status {
	case runner.StatusPending:
		return statusStyle.Render("○")
	case runner.StatusRunning:
		idx := int(time.Since(st.startedAt)/(time.Second/10)) % len(spinnerFrames)
		return runningStyle.Render(spinnerFrames[idx])
	case runner.StatusSuccess:
		return successStyle.Render("✓")
	case runner.StatusCancelled:
		return errorStyle.Render("◌")
	default:
		return errorStyle.Render("✗")
	}
}

func formatDuration(d time.Duration) string {
	if d < time.Second {
		return fmt.Sprintf("%dms", d.Milliseconds())
	}
	return fmt.Sprintf("%.1fs", d.Round(100*time.Millisecond).Seconds())
}

func (m model) allDone() bool {
	for _, st := range m.states {
		if st.status == runner.StatusPending || st.status == runner.StatusRunning {
			return false
		}
	}
	return true
}

func (m model) exitCode() int {
	for _, st := range m.states {
		if st.status == runner.StatusFailed || st.status == runner.StatusCancelled {
			return 1
		}
	}
	return 0
}
