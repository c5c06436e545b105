package reporter

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/rpmverify/internal/harness"
)

func TestPrintStage(t *testing.T) {
	tests := []struct {
		name string
		res  harness.StageResult
		want string
	}{
		{
			name: "success",
			res:  harness.StageResult{Name: "install", Mode: "fatal", Duration: 2 * time.Second},
			want: "✓ install",
		},
		{
			name: "fatal failure",
			res:  harness.StageResult{Name: "add-repo", Mode: "fatal", ExitCode: 5, Error: "exit status 5"},
			want: "✗ add-repo",
		},
		{
			name: "tolerated failure",
			res:  harness.StageResult{Name: "start-service", Mode: "best-effort", ExitCode: 1, Error: "exit status 1"},
			want: "(tolerated)",
		},
		{
			name: "skipped",
			res:  harness.StageResult{Name: "selftest", Mode: "fatal", Skipped: true},
			want: "skipped",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewTextReporter(&buf, false).PrintStage(tt.res)
			if !strings.Contains(buf.String(), tt.want) {
				t.Errorf("expected %q in output %q", tt.want, buf.String())
			}
		})
	}
}

func TestPrintSummary_Pass(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintSummary(&harness.Report{ExitStatus: 0, Duration: 90 * time.Second})
	if !strings.Contains(buf.String(), "PASS (status 0)") {
		t.Errorf("unexpected summary: %q", buf.String())
	}
}

func TestPrintSummary_Fail(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintSummary(&harness.Report{ExitStatus: 3, FailedStage: "selftest"})
	out := buf.String()
	if !strings.Contains(out, "FAIL (status 3)") || !strings.Contains(out, "at stage selftest") {
		t.Errorf("unexpected summary: %q", out)
	}
}

func TestPrintPlan(t *testing.T) {
	plan := []harness.Stage{
		{Name: "plugins", Mode: harness.Fatal, Argv: []string{"dnf", "install", "-y", "dnf-plugins-core"}},
		{Name: "start-service", Mode: harness.BestEffort, Argv: []string{"systemctl", "start", "docker"}},
	}

	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintPlan(plan)
	out := buf.String()

	if !strings.Contains(out, "1. plugins") {
		t.Errorf("expected numbered stage, got %q", out)
	}
	if !strings.Contains(out, "dnf install -y dnf-plugins-core") {
		t.Errorf("expected argv, got %q", out)
	}
	if !strings.Contains(out, "(best-effort)") {
		t.Errorf("expected best-effort marker, got %q", out)
	}
}

func TestColorDisabled(t *testing.T) {
	var buf bytes.Buffer
	NewTextReporter(&buf, false).PrintSummary(&harness.Report{ExitStatus: 0})
	if strings.Contains(buf.String(), "\033[") {
		t.Errorf("expected no ANSI codes, got %q", buf.String())
	}
}
