package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rpmverify/internal/config"
	"github.com/ppiankov/rpmverify/internal/harness"
)

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result",
		Short: "Print the persisted result record from the last run",
		Long: "Result reads the record written by the last run and exits with the recorded " +
			"status, so an outer harness can re-read the outcome after the run process is gone.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			rec := &harness.Record{Path: cfg.ResultFile()}
			status, err := rec.Read()
			if err != nil {
				return err
			}

			fmt.Println(status)
			if status != 0 {
				return &ExitError{Status: status}
			}
			return nil
		},
	}
}
