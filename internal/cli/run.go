package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/ppiankov/rpmverify/internal/config"
	"github.com/ppiankov/rpmverify/internal/dockercmd"
	"github.com/ppiankov/rpmverify/internal/harness"
	"github.com/ppiankov/rpmverify/internal/history"
	"github.com/ppiankov/rpmverify/internal/reporter"
)

func newRunCmd() *cobra.Command {
	var (
		image      string
		useTUI     bool
		resultPath string
		noColor    bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Provision the environment, install the artifact, and run its self-test",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cmd.Flags().Changed("result") {
				cfg.ResultPath = resultPath
			}

			if image != "" {
				return runInImage(cmd.Context(), cfg, image)
			}
			return runVerification(cmd.Context(), cfg, useTUI, !noColor)
		},
	}

	cmd.Flags().StringVar(&image, "image", "", "run inside a container image (rpmverify must be on the image's PATH)")
	cmd.Flags().BoolVar(&useTUI, "tui", false, "live stage display")
	cmd.Flags().StringVar(&resultPath, "result", "", "override the result record path")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")

	return cmd
}

// runVerification executes the stage plan on the current host.
func runVerification(ctx context.Context, cfg *config.Settings, useTUI, color bool) error {
	rec := &harness.Record{Path: cfg.ResultFile()}

	plan, err := harness.BuildPlan(cfg)
	if err != nil {
		// The record must reflect failure even when no stage ever ran: a
		// missing artifact must never be read as success.
		_ = rec.Reset()
		_ = rec.Write(harness.FailureSentinel)
		return fmt.Errorf("build plan: %w", err)
	}

	runDir := filepath.Join(cfg.RunDir, time.Now().Format("20060102-150405"))
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return fmt.Errorf("create run dir: %w", err)
	}

	execer := &harness.CommandExecer{LogDir: runDir, Timeout: cfg.StageTimeout}
	h := harness.New(plan, execer, rec)

	var report *harness.Report
	if useTUI {
		report = runWithTUI(ctx, h, plan)
	} else {
		tr := reporter.NewTextReporter(os.Stdout, color)
		tr.PrintHeader(h.RunID, len(plan))
		h.OnStage = tr.PrintStage
		report = h.Run(ctx)
		tr.PrintSummary(report)
	}

	if err := reporter.WriteJSONReport(report, filepath.Join(runDir, "report.json")); err != nil {
		slog.Warn("cannot write report", "error", err)
	}
	appendHistory(cfg, plan, report)

	if report.ExitStatus != 0 {
		return &ExitError{Status: report.ExitStatus}
	}
	return nil
}

// runWithTUI executes the harness under the live stage display.
func runWithTUI(ctx context.Context, h *harness.Harness, plan []harness.Stage) *harness.Report {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var (
		mu        sync.Mutex
		concluded []harness.StageResult
		final     *harness.Report
	)

	h.OnStage = func(res harness.StageResult) {
		mu.Lock()
		concluded = append(concluded, res)
		mu.Unlock()
	}

	done := make(chan struct{})
	go func() {
		r := h.Run(ctx)
		mu.Lock()
		final = r
		mu.Unlock()
		close(done)
	}()

	snapshot := func() reporter.Snapshot {
		mu.Lock()
		defer mu.Unlock()
		snap := reporter.Snapshot{Stages: append([]harness.StageResult(nil), concluded...)}
		if final != nil {
			snap.Done = true
			snap.ExitStatus = final.ExitStatus
		}
		return snap
	}

	p := tea.NewProgram(reporter.NewTUIModel(plan, snapshot, cancel))
	if _, err := p.Run(); err != nil {
		slog.Warn("stage display failed, run continues", "error", err)
	}

	<-done
	mu.Lock()
	defer mu.Unlock()
	return final
}

// runInImage re-executes the harness inside a container with the shared
// directory bind-mounted at the same path, so the config holds unchanged.
func runInImage(ctx context.Context, cfg *config.Settings, image string) error {
	shared, err := filepath.Abs(cfg.SharedDir)
	if err != nil {
		return fmt.Errorf("resolve shared dir: %w", err)
	}

	args := []string{"rpmverify", "run"}
	if verbose {
		args = append(args, "--verbose")
	}

	c := dockercmd.New("").
		Rm().
		Privileged().
		Init().
		BindMountDir(shared, shared, false)

	if absCfg, err := filepath.Abs(configFile); err == nil {
		if _, statErr := os.Stat(absCfg); statErr == nil {
			c.BindMountFile(absCfg, absCfg, true)
			args = append(args, "--config", absCfg)
		}
	}

	c.Image(image).Args(args...)

	// best-effort: the image may only exist locally
	if err := c.Pull(ctx, true); err != nil {
		return err
	}

	slog.Info("re-executing inside container", "image", image, "shared", shared)
	status, err := c.RunInteractive(ctx)
	if status != 0 {
		slog.Error("container run failed", "status", status, "error", err)
		return &ExitError{Status: status}
	}
	return err
}

// appendHistory records the run outcome; history failures never change the
// run's result.
func appendHistory(cfg *config.Settings, plan []harness.Stage, report *harness.Report) {
	store, err := history.Open(filepath.Join(cfg.RunDir, "history.db"))
	if err != nil {
		slog.Warn("cannot open run history", "error", err)
		return
	}
	defer func() { _ = store.Close() }()

	err = store.Append(history.Run{
		RunID:       report.RunID,
		StartedAt:   report.StartedAt,
		FinishedAt:  report.FinishedAt,
		ExitStatus:  report.ExitStatus,
		FailedStage: report.FailedStage,
		Artifacts:   countArtifacts(cfg, plan),
	})
	if err != nil {
		slog.Warn("cannot record run history", "error", err)
	}
}

// countArtifacts derives the number of artifact files from the install
// stage's argv: everything after "dnf install -y" and the dependency
// packages is an artifact path.
func countArtifacts(cfg *config.Settings, plan []harness.Stage) int {
	for _, st := range plan {
		if st.Name != harness.StageInstall {
			continue
		}
		n := len(st.Argv) - 3 - len(cfg.Packages)
		if n < 0 {
			return 0
		}
		return n
	}
	return 0
}
