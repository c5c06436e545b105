package reporter

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/ppiankov/rpmverify/internal/harness"
)

const (
	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorRed    = "\033[31m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorDim    = "\033[2m"
)

// TextReporter writes human-readable run output to a writer.
type TextReporter struct {
	w     io.Writer
	color bool
}

// NewTextReporter creates a text reporter.
// If w is nil, defaults to os.Stdout. color enables ANSI codes.
func NewTextReporter(w io.Writer, color bool) *TextReporter {
	if w == nil {
		w = os.Stdout
	}
	return &TextReporter{w: w, color: color}
}

// PrintHeader writes the initial banner.
func (r *TextReporter) PrintHeader(runID string, stages int) {
	fmt.Fprintf(r.w, "rpmverify — run %s, %d stages\n\n", shortID(runID), stages)
}

// PrintStage writes one line for a concluded stage.
func (r *TextReporter) PrintStage(res harness.StageResult) {
	switch {
	case res.Skipped:
		fmt.Fprintf(r.w, "  %s─ %-15s skipped%s\n", r.c(colorDim), res.Name, r.c(colorReset))
	case res.Error == "":
		fmt.Fprintf(r.w, "  %s✓%s %-15s %s\n", r.c(colorGreen), r.c(colorReset), res.Name, res.Duration.Truncate(time.Millisecond))
	case res.Mode == harness.BestEffort.String():
		fmt.Fprintf(r.w, "  %s!%s %-15s status %d (tolerated)  %s\n",
			r.c(colorYellow), r.c(colorReset), res.Name, res.ExitCode, res.Duration.Truncate(time.Millisecond))
	default:
		fmt.Fprintf(r.w, "  %s✗%s %-15s status %d  %s\n",
			r.c(colorRed), r.c(colorReset), res.Name, res.ExitCode, res.Duration.Truncate(time.Millisecond))
	}
}

// PrintSummary writes the final verdict line.
func (r *TextReporter) PrintSummary(report *harness.Report) {
	fmt.Fprintln(r.w)
	if report.ExitStatus == 0 {
		fmt.Fprintf(r.w, "%sPASS%s (status 0) in %s\n",
			r.c(colorGreen), r.c(colorReset), report.Duration.Truncate(time.Second))
		return
	}
	where := ""
	if report.FailedStage != "" {
		where = fmt.Sprintf(" at stage %s", report.FailedStage)
	}
	fmt.Fprintf(r.w, "%sFAIL%s (status %d)%s in %s\n",
		r.c(colorRed), r.c(colorReset), report.ExitStatus, where, report.Duration.Truncate(time.Second))
}

// PrintPlan writes the resolved stage plan without executing it.
func (r *TextReporter) PrintPlan(plan []harness.Stage) {
	fmt.Fprint(r.w, "Stage plan (dry-run):\n\n")
	for i, st := range plan {
		mode := ""
		if st.Mode == harness.BestEffort {
			mode = fmt.Sprintf("  %s(best-effort)%s", r.c(colorYellow), r.c(colorReset))
		}
		fmt.Fprintf(r.w, "  %d. %-15s %s%s\n", i+1, st.Name, strings.Join(st.Argv, " "), mode)
	}
}

func (r *TextReporter) c(code string) string {
	if !r.color {
		return ""
	}
	return code
}

// shortID truncates a run ID for display.
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
