package cli

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ppiankov/rpmverify/internal/artifactwatch"
	"github.com/ppiankov/rpmverify/internal/config"
)

func newWatchCmd() *cobra.Command {
	var (
		poll     bool
		debounce time.Duration
	)

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Run verification whenever new artifacts land in the shared directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadSettings(configFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			watcher, err := artifactwatch.New(artifactwatch.Config{
				Dir:      filepath.Dir(cfg.ArtifactPattern()),
				Debounce: debounce,
				PollMode: poll,
				Run: func(ctx context.Context) error {
					err := runVerification(ctx, cfg, false, false)
					// a failing self-test is a reported outcome, not a
					// watcher error
					var exitErr *ExitError
					if errors.As(err, &exitErr) {
						return nil
					}
					return err
				},
			})
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			return watcher.Watch(ctx)
		},
	}

	cmd.Flags().BoolVar(&poll, "poll", false, "poll the artifact directory instead of using fsnotify")
	cmd.Flags().DurationVar(&debounce, "debounce", 0, "quiet period before a run starts (default 2s)")

	return cmd
}
