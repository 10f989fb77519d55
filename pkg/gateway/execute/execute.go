// Package execute supervises the external provider CLIs: it runs a command
// with the prompt on stdin, captures its output, and enforces a hard
// wall-clock timeout by killing the whole process group.
package execute

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/curaious/llmux/internal/perrors"
)

// DefaultTimeout bounds executions whose target does not configure one.
const DefaultTimeout = 120 * time.Second

// waitDelay is how long stdout/stderr copying may lag after the process
// group has been killed before the pipes are forcibly closed.
const waitDelay = 5 * time.Second

// Result is the captured output of one completed execution.
type Result struct {
	Stdout string
	Stderr string
}

// Runner runs one external command to completion. Providers hold a Runner so
// tests can substitute a fake without spawning processes.
type Runner func(ctx context.Context, program string, args []string, stdin string, timeout time.Duration) (Result, error)

// Run executes program under the given timeout. The child is placed in its
// own process group and the whole group is killed on deadline or caller
// cancellation, so descendants are never left running.
func Run(ctx context.Context, program string, args []string, stdin string, timeout time.Duration) (Result, error) {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, program, args...)
	cmd.Stdin = strings.NewReader(stdin)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}
	cmd.WaitDelay = waitDelay

	err := cmd.Run()
	res := Result{Stdout: stdout.String(), Stderr: stderr.String()}

	if stderr.Len() > 0 {
		slog.Debug("Provider stderr output", slog.String("program", program), slog.String("stderr", res.Stderr))
	}

	switch {
	case err == nil:
		return res, nil

	case errors.Is(runCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil:
		slog.Warn("Process timed out, killed", slog.String("program", program), slog.Duration("timeout", timeout))
		return res, perrors.NewErrTimeout(program, timeout)

	case ctx.Err() != nil:
		// The caller went away; the process group is already dead.
		return res, ctx.Err()

	default:
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			slog.Error("Process exited with failure", slog.String("program", program), slog.Int("code", exitErr.ExitCode()), slog.String("stderr", res.Stderr))
			return res, perrors.NewErrProviderExecution(fmt.Sprintf("%s exited with status %d", program, exitErr.ExitCode()), err, res.Stderr)
		}
		return res, perrors.NewErrProviderExecution(fmt.Sprintf("failed to run %s", program), err, res.Stderr)
	}
}
