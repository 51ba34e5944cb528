// Package procdriver launches the test script subprocess and observes its
// lifecycle: argument rendering, environment injection, timeout and abort
// handling with process-tree termination, and exit-code mapping.
package procdriver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/tessera-qa/tessera/internal/model"
)

// Spec describes one subprocess launch.
type Spec struct {
	Executable string
	Argv       []string
	Env        []string // exact "K=V" pairs; nothing else is inherited
	WorkingDir string
	Timeout    time.Duration // 0 disables the timeout
	Stdout     io.Writer
	Stderr     io.Writer
}

// Outcome reports how the subprocess ended.
type Outcome struct {
	ExitCode  *int
	TimedOut  bool
	Aborted   bool
	LaunchErr error
	Elapsed   time.Duration
}

// Run launches the subprocess and blocks until it exits, the timeout
// elapses, or ctx is cancelled. On timeout or cancel the whole process
// tree is terminated; cancellation takes precedence over timeout when both
// fire.
func Run(ctx context.Context, spec Spec, logger *slog.Logger) Outcome {
	started := time.Now()
	outcome := Outcome{}

	cmd := exec.Command(spec.Executable, spec.Argv...)
	cmd.Env = spec.Env
	if cmd.Env == nil {
		// nil would inherit the parent environment; the contract is that
		// the subprocess sees exactly the merged environment.
		cmd.Env = []string{}
	}
	cmd.Dir = spec.WorkingDir
	cmd.Stdout = spec.Stdout
	cmd.Stderr = spec.Stderr
	setProcessGroup(cmd)

	if err := cmd.Start(); err != nil {
		outcome.LaunchErr = fmt.Errorf("launch %s: %w", spec.Executable, err)
		outcome.Elapsed = time.Since(started)
		return outcome
	}
	logger.Info("subprocess started", "executable", spec.Executable, "pid", cmd.Process.Pid)

	done := make(chan error, 1)
	go func() { done <- cmd.Wait() }()

	var timeoutC <-chan time.Time
	if spec.Timeout > 0 {
		timer := time.NewTimer(spec.Timeout)
		defer timer.Stop()
		timeoutC = timer.C
	}

	var waitErr error
	select {
	case waitErr = <-done:
	case <-ctx.Done():
		outcome.Aborted = true
		killTree(cmd, logger)
		waitErr = <-done
	case <-timeoutC:
		outcome.TimedOut = true
		killTree(cmd, logger)
		waitErr = <-done
		// A cancel racing the timeout wins.
		if ctx.Err() != nil {
			outcome.Aborted = true
			outcome.TimedOut = false
		}
	}
	outcome.Elapsed = time.Since(started)

	if outcome.TimedOut || outcome.Aborted {
		logger.Info("subprocess terminated",
			"timed_out", outcome.TimedOut,
			"aborted", outcome.Aborted,
			"elapsed", outcome.Elapsed)
		return outcome
	}

	code := 0
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			code = exitErr.ExitCode()
		} else {
			outcome.LaunchErr = fmt.Errorf("wait for %s: %w", spec.Executable, waitErr)
			return outcome
		}
	}
	outcome.ExitCode = &code
	logger.Info("subprocess exited", "exit_code", code, "elapsed", outcome.Elapsed)
	return outcome
}

// MapStatus converts an outcome into the run status and optional error
// block per the exit-code convention: 0 passed, 1 failed, anything else a
// script error; launch failures are runner errors.
func MapStatus(o Outcome) (model.RunStatus, *model.ResultError) {
	switch {
	case o.Aborted:
		return model.StatusAborted, nil
	case o.TimedOut:
		return model.StatusTimeout, nil
	case o.LaunchErr != nil:
		return model.StatusError, &model.ResultError{
			Type:    "Process.LaunchFailed",
			Source:  model.ErrorSourceRunner,
			Message: o.LaunchErr.Error(),
		}
	case o.ExitCode == nil:
		return model.StatusError, &model.ResultError{
			Type:    "Process.NoExitCode",
			Source:  model.ErrorSourceRunner,
			Message: "subprocess ended without an observable exit code",
		}
	case *o.ExitCode == 0:
		return model.StatusPassed, nil
	case *o.ExitCode == 1:
		return model.StatusFailed, nil
	default:
		return model.StatusError, &model.ResultError{
			Type:    "Script.ExitCode",
			Source:  model.ErrorSourceScript,
			Message: fmt.Sprintf("script exited with code %d", *o.ExitCode),
		}
	}
}
