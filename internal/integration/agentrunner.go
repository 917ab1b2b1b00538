// Package integration contains adapters to the world outside the daemon:
// the external agent process and the task folders on disk.
package integration

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"github.com/google/uuid"
	"github.com/valter-silva-au/vaultd/pkg/models"
)

// killGrace bounds how long Wait blocks on output pipes after the agent
// process has been killed (children may still hold them open).
const killGrace = 5 * time.Second

// AgentRunner invokes the external agent for one unit of work.
type AgentRunner interface {
	// Run spawns the agent with the configured arguments plus the prompt,
	// waits for it to exit and classifies the result. A timeout is reported
	// as models.ErrAgentTimeout and a non-zero exit as *models.AgentExitError.
	Run(ctx context.Context, req models.AgentRequest) (*models.AgentResult, error)
	// BuildArgs returns the full argument list for a prompt.
	BuildArgs(prompt string) []string
	// BuildEnv constructs the subprocess environment.
	BuildEnv(base []string, runID, root string) []string
}

type agentRunner struct {
	command string
	args    []string
	newID   func() string
}

// NewAgentRunner creates an AgentRunner for command with fixed leading args.
func NewAgentRunner(command string, args []string) AgentRunner {
	return &agentRunner{
		command: command,
		args:    append([]string(nil), args...),
		newID:   uuid.NewString,
	}
}

// BuildArgs appends the prompt as the final argument.
func (r *agentRunner) BuildArgs(prompt string) []string {
	full := make([]string, 0, len(r.args)+1)
	full = append(full, r.args...)
	return append(full, prompt)
}

// BuildEnv appends VAULTD_* variables so the agent can tell which run and
// which root it is serving.
func (r *agentRunner) BuildEnv(base []string, runID, root string) []string {
	env := make([]string, len(base), len(base)+2)
	copy(env, base)
	return append(env,
		"VAULTD_RUN_ID="+runID,
		"VAULTD_ROOT="+root,
	)
}

func (r *agentRunner) Run(ctx context.Context, req models.AgentRequest) (*models.AgentResult, error) {
	runCtx := ctx
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	runID := r.newID()
	cmd := exec.CommandContext(runCtx, r.command, r.BuildArgs(req.Prompt)...)
	cmd.Dir = req.Dir
	cmd.Env = r.BuildEnv(os.Environ(), runID, req.Dir)
	cmd.WaitDelay = killGrace
	configureProcess(cmd)

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	start := time.Now()
	err := cmd.Run()

	result := &models.AgentResult{
		RunID:    runID,
		Stdout:   stdoutBuf.String(),
		Stderr:   stderrBuf.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if err == nil {
		return result, nil
	}

	// Parent cancellation (shutdown) takes precedence over the timeout.
	if ctx.Err() != nil {
		return result, fmt.Errorf("agent run %s cancelled: %w", runID, ctx.Err())
	}
	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return result, fmt.Errorf("agent run %s after %s: %w", runID, req.Timeout, models.ErrAgentTimeout)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.ExitCode = exitErr.ExitCode()
		return result, &models.AgentExitError{ExitCode: result.ExitCode, Stderr: result.Stderr}
	}

	// The command could not be started (e.g. not found).
	return result, fmt.Errorf("starting agent %s: %w", r.command, err)
}
