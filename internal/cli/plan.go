package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rpmverify/internal/config"
	"github.com/ppiankov/rpmverify/internal/harness"
	"github.com/ppiankov/rpmverify/internal/reporter"
)

func newPlanCmd() *cobra.Command {
	var noColor bool

	cmd := &cobra.Command{
		Use:   "plan",
		Short: "Print the resolved stage plan without executing it",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			plan, err := harness.BuildPlan(cfg)
			if err != nil {
				return fmt.Errorf("build plan: %w", err)
			}

			reporter.NewTextReporter(os.Stdout, !noColor).PrintPlan(plan)
			return nil
		},
	}

	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable ANSI colors")

	return cmd
}
