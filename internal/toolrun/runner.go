// Package toolrun executes external binaries (yt-dlp, headless Chrome) with
// a bounded timeout and captured output.
package toolrun

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/hbomb79/Harvest/pkg/logger"
)

var (
	log = logger.Get("ToolRunner")

	ErrNoTimeout = errors.New("tool invocation requires a positive timeout")
	ErrTimedOut  = errors.New("tool invocation timed out")
)

type (
	// Result is the captured outcome of a finished tool invocation. A
	// non-zero ExitCode is NOT reported as an error by Run; callers decide
	// what constitutes failure.
	Result struct {
		ExitCode int
		Stdout   string
		Stderr   string
		Duration time.Duration
	}

	Runner interface {
		Run(ctx context.Context, command string, args []string, timeout time.Duration) (*Result, error)
	}

	execRunner struct{}
)

func New() Runner {
	return &execRunner{}
}

// Run executes the command with the arguments provided, killing it if it
// exceeds the timeout. ErrTimedOut is returned (alongside whatever output
// was captured) if the deadline is hit; other errors indicate the process
// could not be started at all.
func (runner *execRunner) Run(ctx context.Context, command string, args []string, timeout time.Duration) (*Result, error) {
	if timeout <= 0 {
		return nil, ErrNoTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	log.Emit(logger.DEBUG, "Running %s %s (timeout %s)\n", command, strings.Join(args, " "), timeout)
	start := time.Now()
	err := cmd.Run()
	result := &Result{
		ExitCode: -1,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}
	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
	}

	if ctxErr := ctx.Err(); errors.Is(ctxErr, context.DeadlineExceeded) {
		log.Emit(logger.WARNING, "%s timed out after %s\n", command, timeout)
		return result, ErrTimedOut
	} else if ctxErr != nil {
		return result, ctxErr
	}

	var exitErr *exec.ExitError
	if err != nil && !errors.As(err, &exitErr) {
		return result, fmt.Errorf("failed to execute %s: %w", command, err)
	}

	log.Emit(logger.VERBOSE, "%s exited with code %d after %s\n", command, result.ExitCode, result.Duration)
	return result, nil
}
