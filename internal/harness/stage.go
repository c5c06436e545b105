// Package harness provisions a target environment for a locally built RPM
// artifact, exercises the artifact's self-test entry point, and reports the
// resulting exit status both as the process exit code and as a persisted
// result record.
package harness

import (
	"fmt"
	"path/filepath"
	"sort"

	"github.com/ppiankov/rpmverify/internal/config"
)

// Mode controls how a stage failure affects the rest of the plan.
type Mode int

const (
	// Fatal aborts the remaining stages on any non-zero exit.
	Fatal Mode = iota
	// BestEffort logs the failure and continues.
	BestEffort
)

// String returns the mode label used in reports.
func (m Mode) String() string {
	if m == BestEffort {
		return "best-effort"
	}
	return "fatal"
}

// Stage is one provisioning or verification step: a single external command
// tagged with its failure policy.
type Stage struct {
	Name string
	Mode Mode
	Argv []string
}

// Stage names, in plan order.
const (
	StagePlugins      = "plugins"
	StageAddRepo      = "add-repo"
	StageImportKey    = "import-key"
	StageInstall      = "install"
	StageStartService = "start-service"
	StageSelftest     = "selftest"
)

// BuildPlan resolves settings into the ordered stage plan. The artifact glob
// is expanded here so that a missing artifact fails the run before any
// package-manager state is mutated.
func BuildPlan(cfg *config.Settings) ([]Stage, error) {
	artifacts, err := filepath.Glob(cfg.ArtifactPattern())
	if err != nil {
		return nil, fmt.Errorf("artifact glob %q: %w", cfg.ArtifactPattern(), err)
	}
	if len(artifacts) == 0 {
		return nil, fmt.Errorf("no artifacts match %q", cfg.ArtifactPattern())
	}
	sort.Strings(artifacts)

	install := append([]string{"dnf", "install", "-y"}, cfg.Packages...)
	install = append(install, artifacts...)

	plan := []Stage{
		{Name: StagePlugins, Mode: Fatal, Argv: []string{"dnf", "install", "-y", "dnf-plugins-core"}},
		{Name: StageAddRepo, Mode: Fatal, Argv: []string{"dnf", "config-manager", "--add-repo", cfg.RepoURL}},
		{Name: StageImportKey, Mode: Fatal, Argv: []string{"rpm", "--import", cfg.KeyFile()}},
		{Name: StageInstall, Mode: Fatal, Argv: install},
	}

	if cfg.Service != "" {
		// Tolerated on failure: the service may already be running or may
		// have been started by package scriptlets. See DESIGN.md.
		plan = append(plan, Stage{
			Name: StageStartService,
			Mode: BestEffort,
			Argv: []string{"systemctl", "start", cfg.Service},
		})
	}

	plan = append(plan, Stage{Name: StageSelftest, Mode: Fatal, Argv: cfg.Selftest})

	return plan, nil
}
