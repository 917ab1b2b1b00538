package models

// DaemonState is the summary health value published in the status file.
// The string values are read by external tools and must not change.
type DaemonState string

const (
	StateIdle    DaemonState = "idle"
	StateWorking DaemonState = "working"
	StateBlocked DaemonState = "blocked"
	StatePaused  DaemonState = "paused"
	StateError   DaemonState = "error"
)

// DaemonStatus is the snapshot written to the status file after every
// mutation. Field names are a compatibility contract with external observers.
type DaemonStatus struct {
	Status              DaemonState `json:"status"`
	ActiveTasks         int         `json:"active_tasks"`
	LastScan            *string     `json:"last_scan"`
	LastError           *string     `json:"last_error"`
	TasksCompletedToday int         `json:"tasks_completed_today"`
	AgentCommandsToday  int         `json:"agent_commands_today"`
}
