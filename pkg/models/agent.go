package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrAgentTimeout is returned when an agent invocation exceeds its
// wall-clock limit and is killed.
var ErrAgentTimeout = errors.New("agent timed out")

// AgentRequest is a single invocation of the external agent.
type AgentRequest struct {
	Dir     string
	Prompt  string
	Timeout time.Duration
}

// AgentResult captures the outcome of an agent process.
type AgentResult struct {
	RunID    string
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// AgentExitError reports an agent process that exited with a non-zero code.
type AgentExitError struct {
	ExitCode int
	Stderr   string
}

func (e *AgentExitError) Error() string {
	return fmt.Sprintf("agent exited with code %d", e.ExitCode)
}
