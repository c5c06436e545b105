package cli

import (
	"fmt"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rpmverify/internal/config"
	"github.com/ppiankov/rpmverify/internal/history"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List past verification runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			store, err := history.Open(filepath.Join(cfg.RunDir, "history.db"))
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			runs, err := store.Recent(limit)
			if err != nil {
				return err
			}
			if len(runs) == 0 {
				fmt.Println("no runs recorded")
				return nil
			}

			fmt.Printf("%-10s %-20s %-9s %-7s %-13s %s\n", "RUN", "STARTED", "DURATION", "STATUS", "FAILED STAGE", "ARTIFACTS")
			for _, r := range runs {
				verdict := "pass"
				if r.ExitStatus != 0 {
					verdict = fmt.Sprintf("fail(%d)", r.ExitStatus)
				}
				fmt.Printf("%-10s %-20s %-9s %-7s %-13s %d\n",
					shortRunID(r.RunID),
					r.StartedAt.Local().Format("2006-01-02 15:04:05"),
					r.FinishedAt.Sub(r.StartedAt).Truncate(time.Second),
					verdict,
					r.FailedStage,
					r.Artifacts,
				)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of runs to show")

	return cmd
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
