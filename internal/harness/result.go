package harness

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// FailureSentinel is the status assumed until a run concludes. It matches the
// shell's default failure code so an interrupted run is never read as success.
const FailureSentinel = 1

// StageResult records the outcome of a single stage.
type StageResult struct {
	Name     string        `json:"name"`
	Mode     string        `json:"mode"`
	Argv     []string      `json:"argv"`
	ExitCode int           `json:"exit_code"`
	Duration time.Duration `json:"duration"`
	Skipped  bool          `json:"skipped,omitempty"`
	Error    string        `json:"error,omitempty"`
}

// Report is the full outcome of a verification run.
type Report struct {
	RunID       string        `json:"run_id"`
	StartedAt   time.Time     `json:"started_at"`
	FinishedAt  time.Time     `json:"finished_at"`
	Duration    time.Duration `json:"duration"`
	Stages      []StageResult `json:"stages"`
	ExitStatus  int           `json:"exit_status"`
	FailedStage string        `json:"failed_stage,omitempty"`
}

// Record is the persisted result record: a single integer at a well-known
// path, read by the outer harness after this process exits.
type Record struct {
	Path string
}

// Reset deletes any record left behind by a prior run, so a stale value can
// never be misread as current.
func (r *Record) Reset() error {
	if err := os.Remove(r.Path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("reset result record: %w", err)
	}
	return nil
}

// Write persists the status. Writes go through a temp file and rename so the
// outer harness never observes a partial record.
func (r *Record) Write(status int) error {
	dir := filepath.Dir(r.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create record dir: %w", err)
	}

	tmp := r.Path + ".tmp"
	data := strconv.Itoa(status) + "\n"
	if err := os.WriteFile(tmp, []byte(data), 0o644); err != nil {
		return fmt.Errorf("write result record: %w", err)
	}
	if err := os.Rename(tmp, r.Path); err != nil {
		return fmt.Errorf("commit result record: %w", err)
	}
	return nil
}

// Read returns the persisted status. An absent or malformed record is an
// error: the caller must not guess.
func (r *Record) Read() (int, error) {
	data, err := os.ReadFile(r.Path)
	if err != nil {
		return 0, fmt.Errorf("read result record: %w", err)
	}
	status, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("malformed result record %q: %w", strings.TrimSpace(string(data)), err)
	}
	return status, nil
}
