package harness

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
)

// Harness executes a stage plan sequentially, honoring each stage's failure
// policy, and guarantees the result record is written exactly once on every
// exit path.
type Harness struct {
	Plan   []Stage
	Exec   Execer
	Record *Record

	// OnStage, when set, is called after each stage concludes. Used by the
	// live reporters; must not block.
	OnStage func(StageResult)

	// RunID identifies this run in reports, logs, and history.
	RunID string

	status    atomic.Int64
	writeOnce sync.Once
}

// New creates a harness for the given plan.
func New(plan []Stage, exec Execer, record *Record) *Harness {
	return &Harness{Plan: plan, Exec: exec, Record: record, RunID: uuid.New().String()}
}

// Run executes the plan. The record is deleted before the first stage and
// rewritten exactly once when the run concludes: on normal completion, on
// the first fatal failure, or on SIGINT/SIGTERM. The report's ExitStatus is
// the status the process must exit with.
func (h *Harness) Run(ctx context.Context) *Report {
	report := &Report{
		RunID:     h.RunID,
		StartedAt: time.Now(),
	}

	// Until a stage says otherwise, any interruption reads as failure.
	h.status.Store(FailureSentinel)

	if err := h.Record.Reset(); err != nil {
		slog.Error("cannot reset result record", "path", h.Record.Path, "error", err)
		h.finalize()
		report.ExitStatus = FailureSentinel
		report.FinishedAt = time.Now()
		report.Duration = report.FinishedAt.Sub(report.StartedAt)
		return report
	}

	// Armed before any stage runs: every return below goes through it.
	defer h.finalize()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case sig := <-sigCh:
			slog.Warn("terminated by signal, aborting run", "signal", sig)
			// Persist the last known status now, in case a second signal
			// kills us before the run loop unwinds.
			h.finalize()
			cancel()
		case <-done:
		}
	}()

	aborted := false
	for i, stage := range h.Plan {
		if aborted {
			res := StageResult{Name: stage.Name, Mode: stage.Mode.String(), Argv: stage.Argv, Skipped: true}
			report.Stages = append(report.Stages, res)
			h.notify(res)
			continue
		}

		slog.Info("running stage", "stage", stage.Name, "mode", stage.Mode.String())
		start := time.Now()
		code, err := h.Exec.Run(ctx, stage)

		res := StageResult{
			Name:     stage.Name,
			Mode:     stage.Mode.String(),
			Argv:     stage.Argv,
			ExitCode: code,
			Duration: time.Since(start),
		}
		if err != nil {
			res.Error = err.Error()
		}
		report.Stages = append(report.Stages, res)
		h.notify(res)

		if err == nil {
			// Success of the final stage decides the run; store it before
			// the loop exits so a racing signal cannot record a stale
			// failure for a run that passed.
			if i == len(h.Plan)-1 {
				h.status.Store(0)
			}
			continue
		}

		if stage.Mode == BestEffort {
			slog.Warn("best-effort stage failed, continuing", "stage", stage.Name, "status", code, "error", err)
			continue
		}

		// A child killed by a signal reports a negative code; map it (and a
		// spawn failure's zero) to the shell's default failure code.
		if code <= 0 {
			code = FailureSentinel
		}
		slog.Error("fatal stage failed", "stage", stage.Name, "status", code, "error", err)
		h.status.Store(int64(code))
		report.FailedStage = stage.Name
		aborted = true
	}

	if !aborted {
		h.status.Store(0)
	}

	report.ExitStatus = int(h.status.Load())
	report.FinishedAt = time.Now()
	report.Duration = report.FinishedAt.Sub(report.StartedAt)
	return report
}

// finalize writes the current status to the record. sync.Once keeps the
// write exactly-once across the normal path and the signal path.
func (h *Harness) finalize() {
	h.writeOnce.Do(func() {
		status := int(h.status.Load())
		if err := h.Record.Write(status); err != nil {
			slog.Error("cannot persist result record", "path", h.Record.Path, "error", err)
		}
	})
}

func (h *Harness) notify(res StageResult) {
	if h.OnStage != nil {
		h.OnStage(res)
	}
}
