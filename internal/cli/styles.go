package cli

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/valter-silva-au/vaultd/pkg/models"
)

// Style definitions shared by status and dashboard.
var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("230")).
			Background(lipgloss.Color("62")).
			Padding(0, 1)

	panelStyle = lipgloss.NewStyle().
			BorderStyle(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(1, 2)

	activePanelStyle = lipgloss.NewStyle().
				BorderStyle(lipgloss.RoundedBorder()).
				BorderForeground(lipgloss.Color("62")).
				Padding(1, 2)

	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62"))

	labelStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("245"))

	stateWorking = lipgloss.NewStyle().Foreground(lipgloss.Color("226")).Bold(true)
	stateIdle    = lipgloss.NewStyle().Foreground(lipgloss.Color("46")).Bold(true)
	stateBlocked = lipgloss.NewStyle().Foreground(lipgloss.Color("208")).Bold(true)
	stateError   = lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true)
	statePaused  = lipgloss.NewStyle().Foreground(lipgloss.Color("240")).Bold(true)

	levelError = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	levelWarn  = lipgloss.NewStyle().Foreground(lipgloss.Color("226"))

	helpStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
)

func styleForState(state models.DaemonState) lipgloss.Style {
	switch state {
	case models.StateWorking:
		return stateWorking
	case models.StateIdle:
		return stateIdle
	case models.StateBlocked:
		return stateBlocked
	case models.StateError:
		return stateError
	case models.StatePaused:
		return statePaused
	default:
		return lipgloss.NewStyle()
	}
}

func styleForLevel(level string) lipgloss.Style {
	switch level {
	case "ERROR":
		return levelError
	case "WARN":
		return levelWarn
	default:
		return labelStyle
	}
}
