package runner

import (
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"syscall"
	"time"

	"go.uber.org/zap"
)

// CommandSpec describes one phase command.
type CommandSpec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // appended to the inherited environment
}

// ExecResult is the raw result of running a phase command. Classification
// into an Outcome happens at the phase boundary in the worker.
type ExecResult struct {
	TimedOut bool
	Duration time.Duration
	Err      error
}

// OK reports whether the command ran to completion with exit code zero.
func (r ExecResult) OK() bool {
	return !r.TimedOut && r.Err == nil
}

// Executor runs phase commands under an enforced wall-clock deadline.
// Children are spawned into their own process group and the whole group
// is killed on expiry, so a hanging test can never hang the pipeline.
type Executor struct {
	timeout time.Duration
	log     *zap.SugaredLogger
}

// NewExecutor creates an executor with the given per-command budget.
// A zero timeout falls back to DefaultPhaseTimeout.
func NewExecutor(timeout time.Duration, log *zap.SugaredLogger) *Executor {
	if timeout <= 0 {
		timeout = DefaultPhaseTimeout
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Executor{timeout: timeout, log: log}
}

// Timeout returns the per-command budget.
func (e *Executor) Timeout() time.Duration {
	return e.timeout
}

// Run executes the command, streaming combined stdout/stderr to out.
func (e *Executor) Run(ctx context.Context, spec CommandSpec, out io.Writer) ExecResult {
	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	cmd.Env = append(os.Environ(), spec.Env...)
	cmd.Stdout = out
	cmd.Stderr = out
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		// Kill the whole group: test harnesses fork, and an orphaned
		// grandchild holding the output pipe would stall Wait.
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = killGracePeriod

	start := time.Now()
	err := cmd.Run()
	res := ExecResult{
		Duration: time.Since(start),
		Err:      err,
		TimedOut: errors.Is(runCtx.Err(), context.DeadlineExceeded),
	}

	if res.TimedOut {
		e.log.Warnw("command timed out", "cmd", spec.Name, "args", spec.Args, "timeout", e.timeout)
	} else if err != nil {
		e.log.Debugw("command failed", "cmd", spec.Name, "args", spec.Args, "err", err)
	}
	return res
}
