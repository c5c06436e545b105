package harness

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Execer runs a single stage command and reports its exit code. A non-nil
// error with exit code FailureSentinel means the command could not be
// started at all.
type Execer interface {
	Run(ctx context.Context, stage Stage) (int, error)
}

// StageError carries the stage name and exit status of a failed fatal stage.
type StageError struct {
	Stage  string
	Status int
	Err    error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage %s failed with status %d: %v", e.Stage, e.Status, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// CommandExecer runs stage commands via os/exec, streaming output to
// per-stage log files under LogDir.
type CommandExecer struct {
	LogDir  string
	Timeout time.Duration
}

// Run executes the stage's argv and returns its exit code. Children run in
// their own process group so cancellation kills the whole tree.
func (e *CommandExecer) Run(ctx context.Context, stage Stage) (int, error) {
	if len(stage.Argv) == 0 {
		return FailureSentinel, fmt.Errorf("stage %s has empty argv", stage.Name)
	}

	if e.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.Timeout)
		defer cancel()
	}

	slog.Debug("spawning stage command", "stage", stage.Name, "argv", strings.Join(stage.Argv, " "))

	cmd := exec.CommandContext(ctx, stage.Argv[0], stage.Argv[1:]...)
	cmd.Stdout = e.logWriter(stage.Name + ".log")
	cmd.Stderr = e.logWriter(stage.Name + ".err.log")
	setupProcessGroup(cmd)

	err := cmd.Run()
	closeLogWriter(cmd.Stdout)
	closeLogWriter(cmd.Stderr)

	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		return code, &StageError{Stage: stage.Name, Status: code, Err: err}
	}
	// binary not found or other spawn failure
	return FailureSentinel, fmt.Errorf("exec %s: %w", stage.Argv[0], err)
}

// logWriter opens a per-stage log file, falling back to discard so a logging
// problem never fails a stage.
func (e *CommandExecer) logWriter(name string) io.Writer {
	if e.LogDir == "" {
		return io.Discard
	}
	path := filepath.Join(e.LogDir, name)
	f, err := os.Create(path)
	if err != nil {
		slog.Warn("cannot create stage log file", "path", path, "error", err)
		return io.Discard
	}
	return f
}

// closeLogWriter closes the underlying file if the writer is an *os.File.
func closeLogWriter(w io.Writer) {
	if f, ok := w.(*os.File); ok {
		_ = f.Close()
	}
}
