package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/hltv-tools/hltv-sync/internal/app"
	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// newSyncCmd creates the 'sync' subcommand, which executes one scope
// directive end to end.
func newSyncCmd() *cobra.Command {
	var (
		kind       string
		externalID int64
		unseen     int
		fullStats  bool
		maxEvents  int
		maxTeams   int
		maxPlayers int
	)

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Run one sync scope against the source site.",
		Example: `  hltv-sync sync --kind event --id 8040 --full
  hltv-sync sync --kind team --unseen 5
  hltv-sync sync --kind player --id 7998`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			scope, err := buildScope(kind, externalID, unseen, fullStats, maxEvents, maxTeams, maxPlayers)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, cfgFile)
			if err != nil {
				return err
			}
			defer a.Close(cmd.Context())

			if a.Cfg.Server.Enabled {
				go func() {
					if srvErr := a.Server.ListenAndServe(ctx, a.Cfg.Server.Port); srvErr != nil {
						a.Logger.Warn("ops server stopped", zap.Error(srvErr))
					}
				}()
			}

			report, err := a.Orch.Run(ctx, scope)
			a.Server.SetReport(report)
			if err != nil {
				return fmt.Errorf("run %s: %w", scope.Key(), err)
			}
			if report.Counters.Failed > 0 {
				return fmt.Errorf("run %s finished with %d failed units", scope.Key(), report.Counters.Failed)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&kind, "kind", "", "entity kind to sync: event, team or player")
	cmd.Flags().Int64Var(&externalID, "id", 0, "external id of a single entity to sync")
	cmd.Flags().IntVar(&unseen, "unseen", 0, "sync up to N entities not yet in the store")
	cmd.Flags().BoolVar(&fullStats, "full", false, "follow the dependency graph down to rosters and per-event stats")
	cmd.Flags().IntVar(&maxEvents, "max-events", 0, "bound on events touched in this run (0 = unbounded)")
	cmd.Flags().IntVar(&maxTeams, "max-teams", 0, "bound on teams touched in this run (0 = unbounded)")
	cmd.Flags().IntVar(&maxPlayers, "max-players", 0, "bound on players touched in this run (0 = unbounded)")
	_ = cmd.MarkFlagRequired("kind")

	return cmd
}

func buildScope(kind string, id int64, unseen int, full bool, maxEvents, maxTeams, maxPlayers int) (hltv.Scope, error) {
	entityKind := hltv.EntityKind(kind)
	switch entityKind {
	case hltv.KindEvent, hltv.KindTeam, hltv.KindPlayer:
	default:
		return hltv.Scope{}, fmt.Errorf("unknown kind %q (want event, team or player)", kind)
	}
	if id == 0 && unseen <= 0 {
		return hltv.Scope{}, fmt.Errorf("either --id or --unseen is required")
	}
	if id != 0 && unseen > 0 {
		return hltv.Scope{}, fmt.Errorf("--id and --unseen are mutually exclusive")
	}
	return hltv.Scope{
		Kind:        entityKind,
		ExternalID:  id,
		UnseenCount: unseen,
		FullStats:   full,
		MaxEvents:   maxEvents,
		MaxTeams:    maxTeams,
		MaxPlayers:  maxPlayers,
	}, nil
}
