package harness

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
)

// fakeExecer returns scripted exit codes per stage name and records the
// stages it was asked to run.
type fakeExecer struct {
	codes map[string]int
	ran   []string
}

func (f *fakeExecer) Run(_ context.Context, stage Stage) (int, error) {
	f.ran = append(f.ran, stage.Name)
	code := f.codes[stage.Name]
	if code == 0 {
		return 0, nil
	}
	return code, fmt.Errorf("exit status %d", code)
}

func testPlan() []Stage {
	return []Stage{
		{Name: StagePlugins, Mode: Fatal, Argv: []string{"dnf", "install", "-y", "dnf-plugins-core"}},
		{Name: StageAddRepo, Mode: Fatal, Argv: []string{"dnf", "config-manager", "--add-repo", "https://example.com/r.repo"}},
		{Name: StageImportKey, Mode: Fatal, Argv: []string{"rpm", "--import", "/k.gpg"}},
		{Name: StageInstall, Mode: Fatal, Argv: []string{"dnf", "install", "-y", "docker-ce", "/a.rpm"}},
		{Name: StageStartService, Mode: BestEffort, Argv: []string{"systemctl", "start", "docker"}},
		{Name: StageSelftest, Mode: Fatal, Argv: []string{"docker-rpm-builder", "selftest", "--full"}},
	}
}

func newTestHarness(t *testing.T, codes map[string]int) (*Harness, *fakeExecer, *Record) {
	t.Helper()
	rec := &Record{Path: filepath.Join(t.TempDir(), "selftest_exitcode")}
	exec := &fakeExecer{codes: codes}
	return New(testPlan(), exec, rec), exec, rec
}

func TestRun_AllPass(t *testing.T) {
	h, exec, rec := newTestHarness(t, nil)

	report := h.Run(context.Background())

	if report.ExitStatus != 0 {
		t.Fatalf("expected exit 0, got %d", report.ExitStatus)
	}
	if report.FailedStage != "" {
		t.Errorf("expected no failed stage, got %q", report.FailedStage)
	}
	if len(exec.ran) != 6 {
		t.Errorf("expected 6 stages run, got %d: %v", len(exec.ran), exec.ran)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 0 {
		t.Errorf("expected record 0, got %d", status)
	}
}

func TestRun_SelftestFailurePropagates(t *testing.T) {
	h, _, rec := newTestHarness(t, map[string]int{StageSelftest: 3})

	report := h.Run(context.Background())

	if report.ExitStatus != 3 {
		t.Fatalf("expected exit 3, got %d", report.ExitStatus)
	}
	if report.FailedStage != StageSelftest {
		t.Errorf("expected failed stage selftest, got %q", report.FailedStage)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 3 {
		t.Errorf("expected record 3, got %d", status)
	}
}

func TestRun_FatalStageAborts(t *testing.T) {
	h, exec, rec := newTestHarness(t, map[string]int{StageAddRepo: 5})

	report := h.Run(context.Background())

	if report.ExitStatus != 5 {
		t.Fatalf("expected exit 5, got %d", report.ExitStatus)
	}
	if report.FailedStage != StageAddRepo {
		t.Errorf("expected failed stage add-repo, got %q", report.FailedStage)
	}
	for _, name := range exec.ran {
		if name == StageSelftest {
			t.Fatal("selftest must not run after a fatal setup failure")
		}
	}
	// stages after the failure appear in the report as skipped
	var skipped int
	for _, res := range report.Stages {
		if res.Skipped {
			skipped++
		}
	}
	if skipped != 4 {
		t.Errorf("expected 4 skipped stages, got %d", skipped)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 5 {
		t.Errorf("expected record 5, got %d", status)
	}
}

func TestRun_ServiceFailureTolerated(t *testing.T) {
	h, exec, rec := newTestHarness(t, map[string]int{StageStartService: 1})

	report := h.Run(context.Background())

	if report.ExitStatus != 0 {
		t.Fatalf("expected exit 0 despite service failure, got %d", report.ExitStatus)
	}
	if got := exec.ran[len(exec.ran)-1]; got != StageSelftest {
		t.Errorf("expected selftest to still run, last stage was %q", got)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 0 {
		t.Errorf("expected record 0, got %d", status)
	}
}

func TestRun_ResetsStaleRecord(t *testing.T) {
	h, _, rec := newTestHarness(t, nil)
	if err := rec.Write(42); err != nil {
		t.Fatal(err)
	}

	report := h.Run(context.Background())

	if report.ExitStatus != 0 {
		t.Fatalf("expected exit 0, got %d", report.ExitStatus)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 0 {
		t.Errorf("stale record not overwritten: got %d", status)
	}
}

func TestRun_Idempotent(t *testing.T) {
	h1, _, rec := newTestHarness(t, nil)
	first := h1.Run(context.Background())

	// second run over the same record path: fresh harness, same plan
	h2 := New(testPlan(), &fakeExecer{}, rec)
	second := h2.Run(context.Background())

	if first.ExitStatus != second.ExitStatus {
		t.Fatalf("repeat run diverged: %d vs %d", first.ExitStatus, second.ExitStatus)
	}
	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 0 {
		t.Errorf("expected record 0 after repeat run, got %d", status)
	}
}

func TestRun_FinalizeOnce(t *testing.T) {
	h, _, rec := newTestHarness(t, nil)
	report := h.Run(context.Background())
	if report.ExitStatus != 0 {
		t.Fatalf("expected exit 0, got %d", report.ExitStatus)
	}

	// a late finalize (signal path racing the normal path) must not clobber
	h.status.Store(FailureSentinel)
	h.finalize()

	status, err := rec.Read()
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if status != 0 {
		t.Errorf("second finalize overwrote record: got %d", status)
	}
}

func TestRun_StageCallback(t *testing.T) {
	h, _, _ := newTestHarness(t, map[string]int{StageInstall: 2})

	var seen []string
	h.OnStage = func(res StageResult) { seen = append(seen, res.Name) }
	h.Run(context.Background())

	// every stage surfaces, executed or skipped
	if len(seen) != 6 {
		t.Fatalf("expected 6 callbacks, got %d: %v", len(seen), seen)
	}
}
