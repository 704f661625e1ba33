package credential

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

// DefaultCLITimeout bounds a single `gh auth token` invocation
const DefaultCLITimeout = 5 * time.Second

// killGrace is how long Wait keeps draining output after the command is killed
const killGrace = 250 * time.Millisecond

// RunResult is the outcome of a finished subprocess
type RunResult struct {
	ExitCode int
	Stdout   string
	Stderr   string
}

// Runner executes an external command. Implementations return an error only
// when the command could not be started or did not finish; a non-zero exit
// is reported through RunResult.ExitCode.
type Runner interface {
	Run(ctx context.Context, argv []string) (RunResult, error)
}

// ExecRunner runs commands with os/exec
type ExecRunner struct {
	Timeout time.Duration
}

// Run implements Runner
func (r ExecRunner) Run(ctx context.Context, argv []string) (RunResult, error) {
	if len(argv) == 0 {
		return RunResult{}, errors.New("empty command")
	}

	timeout := r.Timeout
	if timeout <= 0 {
		timeout = DefaultCLITimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	// Forked helpers can keep the pipes open after the parent dies
	killProcessGroup(cmd)
	cmd.WaitDelay = killGrace

	err := cmd.Run()
	res := RunResult{Stdout: stdout.String(), Stderr: stderr.String()}
	if err == nil {
		return res, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return res, fmt.Errorf("%s did not finish: %w", argv[0], ctxErr)
	}
	// Exited cleanly, but a leftover child kept the pipes open
	if errors.Is(err, exec.ErrWaitDelay) {
		return res, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitCode()
		return res, nil
	}
	return res, fmt.Errorf("failed to start %s: %w", argv[0], err)
}
