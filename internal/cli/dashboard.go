package cli

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/vaultd/internal/observability"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// Dashboard panel indices.
const (
	panelStatus = iota
	panelTasks
	panelEvents
	panelCount
)

// dashboardRefresh is how often the dashboard re-reads the status file.
const dashboardRefresh = 2 * time.Second

// dashboardEvents is the number of recent events shown.
const dashboardEvents = 10

type dashboardModel struct {
	activePanel int
	width       int
	height      int

	// Data.
	status     *models.DaemonStatus
	running    bool
	taskCounts map[models.Location]int
	events     []eventSnapshot
	refreshed  time.Time

	// State.
	loading bool
	err     error
}

type eventSnapshot struct {
	time    string
	level   string
	kind    string
	message string
}

// dataLoadedMsg carries loaded data back to the model.
type dataLoadedMsg struct {
	status     *models.DaemonStatus
	running    bool
	taskCounts map[models.Location]int
	events     []eventSnapshot
	at         time.Time
	err        error
}

type tickMsg time.Time

func newDashboardModel() dashboardModel {
	return dashboardModel{
		activePanel: panelStatus,
		loading:     true,
		taskCounts:  make(map[models.Location]int),
	}
}

func tick() tea.Cmd {
	return tea.Tick(dashboardRefresh, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func (m dashboardModel) Init() tea.Cmd {
	return tea.Batch(loadData, tick())
}

func (m dashboardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "esc", "ctrl+c":
			return m, tea.Quit
		case "tab":
			m.activePanel = (m.activePanel + 1) % panelCount
			return m, nil
		case "shift+tab":
			m.activePanel = (m.activePanel - 1 + panelCount) % panelCount
			return m, nil
		case "r":
			m.loading = true
			return m, loadData
		}

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case tickMsg:
		return m, tea.Batch(loadData, tick())

	case dataLoadedMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.status = msg.status
		m.running = msg.running
		m.taskCounts = msg.taskCounts
		m.events = msg.events
		m.refreshed = msg.at
		m.err = nil
		return m, nil
	}

	return m, nil
}

func (m dashboardModel) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	title := titleStyle.Render(" vaultd ")
	if Root != "" {
		title += " " + labelStyle.Render(Root)
	}
	help := helpStyle.Render("tab: switch panel | r: refresh | q: quit")

	if m.loading && m.refreshed.IsZero() {
		return fmt.Sprintf("%s\n\n  Loading data...\n\n%s", title, help)
	}

	if m.err != nil {
		return fmt.Sprintf("%s\n\n  Error: %s\n\n%s", title, m.err, help)
	}

	statusPanel := m.renderStatusPanel()
	tasksPanel := m.renderTasksPanel()
	eventsPanel := m.renderEventsPanel()

	// Available width for panels after accounting for margins.
	availableWidth := m.width - 2

	var body string
	if availableWidth > 120 {
		colWidth := availableWidth / 3
		statusPanel = m.applyPanelStyle(panelStatus, statusPanel, colWidth-4)
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, colWidth-4)
		eventsPanel = m.applyPanelStyle(panelEvents, eventsPanel, colWidth-4)
		body = lipgloss.JoinHorizontal(lipgloss.Top, statusPanel, tasksPanel, eventsPanel)
	} else {
		panelWidth := availableWidth - 4
		if panelWidth < 20 {
			panelWidth = 20
		}
		statusPanel = m.applyPanelStyle(panelStatus, statusPanel, panelWidth)
		tasksPanel = m.applyPanelStyle(panelTasks, tasksPanel, panelWidth)
		eventsPanel = m.applyPanelStyle(panelEvents, eventsPanel, panelWidth)
		body = lipgloss.JoinVertical(lipgloss.Left, statusPanel, tasksPanel, eventsPanel)
	}

	footer := help
	if !m.refreshed.IsZero() {
		footer = helpStyle.Render("updated "+m.refreshed.Format(time.TimeOnly)+" | ") + help
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s", title, body, footer)
}

func (m dashboardModel) applyPanelStyle(panel int, content string, width int) string {
	style := panelStyle
	if m.activePanel == panel {
		style = activePanelStyle
	}
	return style.Width(width).Render(content)
}

func (m dashboardModel) renderStatusPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Status"))
	b.WriteString("\n\n")

	daemon := "not running"
	if m.running {
		daemon = "running"
	}

	if m.status == nil {
		b.WriteString("  No status published yet.\n")
		b.WriteString(fmt.Sprintf("  %-16s %s", "Daemon", daemon))
		return b.String()
	}

	st := m.status
	b.WriteString("  " + styleForState(st.Status).Render(strings.ToUpper(string(st.Status))) + "\n\n")
	lines := []struct {
		label string
		value string
	}{
		{"Daemon", daemon},
		{"Active tasks", fmt.Sprintf("%d", st.ActiveTasks)},
		{"Completed today", fmt.Sprintf("%d", st.TasksCompletedToday)},
		{"Agent commands", fmt.Sprintf("%d", st.AgentCommandsToday)},
		{"Last scan", derefOr(st.LastScan, "never")},
	}
	for _, l := range lines {
		b.WriteString(fmt.Sprintf("  %-16s %s\n", l.label, l.value))
	}
	if st.LastError != nil {
		b.WriteString("\n  " + stateError.Render(*st.LastError))
	}
	return b.String()
}

func (m dashboardModel) renderTasksPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Tasks"))
	b.WriteString("\n\n")

	total := 0
	for _, loc := range models.AllLocations {
		count := m.taskCounts[loc]
		total += count
		b.WriteString(fmt.Sprintf("  %-14s %d\n", loc, count))
	}
	b.WriteString(fmt.Sprintf("\n  Total: %d", total))
	return b.String()
}

func (m dashboardModel) renderEventsPanel() string {
	var b strings.Builder
	b.WriteString(headerStyle.Render("Recent events"))
	b.WriteString("\n\n")

	if len(m.events) == 0 {
		b.WriteString("  No events recorded.")
		return b.String()
	}

	// Newest first.
	for i := len(m.events) - 1; i >= 0; i-- {
		e := m.events[i]
		kind := styleForLevel(e.level).Render(e.kind)
		b.WriteString(fmt.Sprintf("  %s %s %s\n", e.time, kind, e.message))
	}
	return b.String()
}

func loadData() tea.Msg {
	result := dataLoadedMsg{
		taskCounts: make(map[models.Location]int),
		at:         time.Now(),
	}

	if StatusStore != nil {
		st, err := StatusStore.Load()
		if err != nil {
			result.err = err
			return result
		}
		result.status = st
	}
	result.running = daemonRunning()

	if Tasks != nil {
		counts, err := taskCounts()
		if err != nil {
			result.err = err
			return result
		}
		result.taskCounts = counts
	}

	if EventLog != nil {
		events, err := EventLog.Read(observability.EventFilter{Limit: dashboardEvents})
		if err != nil {
			result.err = fmt.Errorf("loading events: %w", err)
			return result
		}
		result.events = make([]eventSnapshot, 0, len(events))
		for _, e := range events {
			result.events = append(result.events, eventSnapshot{
				time:    e.Time.Local().Format(time.TimeOnly),
				level:   e.Level,
				kind:    e.Type,
				message: e.Message,
			})
		}
	}

	return result
}

var dashboardCmd = &cobra.Command{
	Use:   "dashboard",
	Short: "Live terminal dashboard of the daemon status",
	Long: `Launch an interactive terminal dashboard showing the daemon status, task
folder counts and recent events. The view refreshes every few seconds by
re-reading the status file, so it works from any terminal.

Navigate between panels with Tab, refresh with r, quit with q.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if StatusStore == nil {
			return fmt.Errorf("status store not initialized")
		}
		p := tea.NewProgram(newDashboardModel(), tea.WithAltScreen())
		_, err := p.Run()
		return err
	},
}

func init() {
	rootCmd.AddCommand(dashboardCmd)
}
