package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hltv-tools/hltv-sync/internal/clock/system"
	"github.com/hltv-tools/hltv-sync/internal/config"
	"github.com/hltv-tools/hltv-sync/internal/logging"
	"github.com/hltv-tools/hltv-sync/internal/snapshot"
	"github.com/hltv-tools/hltv-sync/internal/store/postgres"
	syncengine "github.com/hltv-tools/hltv-sync/internal/sync"
)

// newReplayCmd creates the 'replay' subcommand, which reconciles stored
// snapshot artifacts into the database without touching the source
// site.
func newReplayCmd() *cobra.Command {
	var dir string

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Reapply stored snapshot artifacts to the database.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			cfg, err := config.Load(cfgFile)
			if err != nil {
				return err
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer func() { _ = logger.Sync() }()

			if dir == "" {
				dir = cfg.Snapshot.Dir
			}
			source, err := snapshot.NewFSSink(dir)
			if err != nil {
				return err
			}

			store, err := postgres.NewStore(ctx, cfg.DB)
			if err != nil {
				return err
			}
			defer store.Close()
			if err := store.EnsureSchema(ctx); err != nil {
				return err
			}

			replayer, err := syncengine.NewReplayer(store, system.New(), logger)
			if err != nil {
				return err
			}

			applied, err := replayer.Replay(ctx, source)
			if err != nil {
				return fmt.Errorf("replay from %s: %w", dir, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "replayed %d snapshots\n", applied)
			return nil
		},
	}

	cmd.Flags().StringVar(&dir, "dir", "", "snapshot directory (defaults to snapshot.dir from config)")

	return cmd
}
