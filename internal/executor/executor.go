// Package executor runs external commands with a hard timeout and never fails by panic or error
// return: every outcome is reported as a Result.
package executor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/exec"
	"strings"
	"time"
)

// DefaultTimeout applies when a Request does not set one.
const DefaultTimeout = 60 * time.Second

var (
	ErrCommandNotFound  = errors.New("command not found")
	ErrPermissionDenied = errors.New("permission denied")
	ErrCommandTimeout   = errors.New("command timed out")
	ErrEmptyCommand     = errors.New("empty command")
)

// Request describes one command invocation. Command is split on whitespace into argv.
type Request struct {
	Command string
	Dir     string
	Timeout time.Duration
}

// Result is the outcome of a command. Spawn failures and timeouts have ExitCode -1.
type Result struct {
	Success  bool
	Output   string
	Error    string
	ExitCode int
	Duration time.Duration
	Err      error
}

func failure(err error, d time.Duration) Result {
	return Result{Success: false, ExitCode: -1, Error: err.Error(), Err: err, Duration: d}
}

// Runner executes a Request to completion.
type Runner interface {
	Run(ctx context.Context, req Request) Result
}

// ProcessRunner runs requests as child processes.
type ProcessRunner struct {
	Dir       string
	Env       []string
	WaitDelay time.Duration // grace for output pipes after the process is killed
}

// NewProcessRunner returns a runner whose processes start in dir.
func NewProcessRunner(dir string) *ProcessRunner {
	return &ProcessRunner{Dir: dir, WaitDelay: 2 * time.Second}
}

func (r *ProcessRunner) Run(ctx context.Context, req Request) Result {
	start := time.Now()

	argv := strings.Fields(req.Command)
	if len(argv) == 0 {
		return failure(ErrEmptyCommand, 0)
	}

	timeout := req.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = req.Dir
	if cmd.Dir == "" {
		cmd.Dir = r.Dir
	}
	cmd.Env = append(os.Environ(), r.Env...)
	cmd.WaitDelay = r.WaitDelay

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	elapsed := time.Since(start)

	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		res := failure(fmt.Errorf("%w after %s: %s", ErrCommandTimeout, timeout, req.Command), elapsed)
		res.Output = stdout.String()
		return res
	}
	if err == nil {
		return Result{Success: true, Output: stdout.String(), Error: stderr.String(), ExitCode: 0, Duration: elapsed}
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		msg := strings.TrimSpace(stderr.String())
		if msg == "" {
			msg = exitErr.Error()
		}
		return Result{
			Success:  false,
			Output:   stdout.String(),
			Error:    msg,
			ExitCode: exitErr.ExitCode(),
			Duration: elapsed,
			Err:      err,
		}
	}

	switch {
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, fs.ErrNotExist):
		return failure(fmt.Errorf("%w: %s", ErrCommandNotFound, argv[0]), elapsed)
	case errors.Is(err, fs.ErrPermission):
		return failure(fmt.Errorf("%w: %s", ErrPermissionDenied, argv[0]), elapsed)
	default:
		return failure(fmt.Errorf("spawn %s: %w", argv[0], err), elapsed)
	}
}
