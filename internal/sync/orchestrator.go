// Package sync drives crawl-and-reconcile runs: it expands a scope
// directive into dependency-ordered units, executes them with bounded
// concurrency and retry, and checkpoints completed units so an
// interrupted run can resume where it stopped.
package sync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
	"github.com/hltv-tools/hltv-sync/internal/metrics"
	"github.com/hltv-tools/hltv-sync/internal/progress"
)

// Config bounds orchestrator concurrency per dependency level.
type Config struct {
	EventWorkers  int
	TeamWorkers   int
	PlayerWorkers int
}

func (c Config) withDefaults() Config {
	if c.EventWorkers <= 0 {
		c.EventWorkers = 2
	}
	if c.TeamWorkers <= 0 {
		c.TeamWorkers = 2
	}
	if c.PlayerWorkers <= 0 {
		c.PlayerWorkers = 2
	}
	return c
}

// Deps carries the orchestrator's collaborators. Sink and Emitter are
// optional.
type Deps struct {
	Loader      hltv.Loader
	Extractor   hltv.Extractor
	Reconciler  hltv.Reconciler
	Checkpoints hltv.CheckpointStore
	Index       hltv.StoreIndex
	Sink        hltv.BlobSink
	Clock       hltv.Clock
	Retry       hltv.RetryPolicy
	Emitter     progress.Emitter
	Logger      *zap.Logger

	// Pause blocks between retry attempts; tests inject an immediate
	// return. Nil means a context-aware sleep.
	Pause func(ctx context.Context, d time.Duration) error
}

// Orchestrator owns the run lifecycle.
type Orchestrator struct {
	deps Deps
	cfg  Config
}

// NewOrchestrator validates required collaborators and builds an
// Orchestrator.
func NewOrchestrator(deps Deps, cfg Config) (*Orchestrator, error) {
	switch {
	case deps.Loader == nil:
		return nil, fmt.Errorf("loader is required")
	case deps.Extractor == nil:
		return nil, fmt.Errorf("extractor is required")
	case deps.Reconciler == nil:
		return nil, fmt.Errorf("reconciler is required")
	case deps.Checkpoints == nil:
		return nil, fmt.Errorf("checkpoint store is required")
	case deps.Index == nil:
		return nil, fmt.Errorf("store index is required")
	case deps.Clock == nil:
		return nil, fmt.Errorf("clock is required")
	case deps.Retry == nil:
		return nil, fmt.Errorf("retry policy is required")
	}
	if deps.Logger == nil {
		deps.Logger = zap.NewNop()
	}
	if deps.Pause == nil {
		deps.Pause = sleepPause
	}
	metrics.Init()
	return &Orchestrator{deps: deps, cfg: cfg.withDefaults()}, nil
}

func sleepPause(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Run executes one scope directive to completion. The returned report
// is valid even when err is non-nil.
func (o *Orchestrator) Run(ctx context.Context, scope hltv.Scope) (hltv.RunReport, error) {
	run := &runState{
		report: hltv.RunReport{
			RunID:   uuid.NewString(),
			Scope:   scope,
			State:   hltv.RunPlanning,
			Started: o.deps.Clock.Now(),
		},
	}
	o.emit(progress.Event{RunID: run.report.RunID, Stage: progress.StageRunStart})
	o.deps.Logger.Info("run started",
		zap.String("run_id", run.report.RunID),
		zap.String("scope", scope.Key()))

	err := o.execute(ctx, scope, run)

	run.report.Finished = o.deps.Clock.Now()
	for _, res := range run.report.Units {
		switch res.Status {
		case hltv.UnitSucceeded:
			run.report.Counters.Succeeded++
		case hltv.UnitFailed:
			run.report.Counters.Failed++
		case hltv.UnitSkipped:
			run.report.Counters.Skipped++
		}
	}

	switch {
	case err == nil:
		run.report.State = hltv.RunDone
		o.emit(progress.Event{RunID: run.report.RunID, Stage: progress.StageRunDone})
	case errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded):
		// Interrupted, not broken: completed units are checkpointed and
		// the same scope resumes past them.
		run.report.State = hltv.RunCheckpointed
		run.report.Error = err.Error()
		o.emit(progress.Event{RunID: run.report.RunID, Stage: progress.StageRunError, Note: err.Error()})
	default:
		run.report.State = hltv.RunFailed
		run.report.Error = err.Error()
		o.emit(progress.Event{RunID: run.report.RunID, Stage: progress.StageRunError, Note: err.Error()})
	}

	o.deps.Logger.Info("run finished",
		zap.String("run_id", run.report.RunID),
		zap.String("state", string(run.report.State)),
		zap.Int("succeeded", run.report.Counters.Succeeded),
		zap.Int("failed", run.report.Counters.Failed),
		zap.Int("skipped", run.report.Counters.Skipped))

	return run.report, err
}

func (o *Orchestrator) execute(ctx context.Context, scope hltv.Scope, run *runState) error {
	roots, err := o.planRoots(ctx, scope)
	if err != nil {
		return fmt.Errorf("plan scope %s: %w", scope.Key(), err)
	}
	run.report.State = hltv.RunFetching

	switch scope.Kind {
	case hltv.KindEvent:
		return o.runEvents(ctx, scope, roots, run)
	case hltv.KindTeam:
		return o.runTeams(ctx, scope, roots, run)
	case hltv.KindPlayer:
		return o.runPlayers(ctx, scope, roots, run)
	default:
		return fmt.Errorf("unknown scope kind %q", scope.Kind)
	}
}

// runEvents executes the event cascade. A shallow scope touches only
// the event rows; a full-stats scope follows the dependency graph down
// to placements, participating teams, their rosters and per-event
// player stats.
func (o *Orchestrator) runEvents(ctx context.Context, scope hltv.Scope, eventIDs []int64, run *runState) error {
	eventIDs = capIDs(eventIDs, scope.MaxEvents)

	overviews, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PageEventOverview, eventIDs), o.cfg.EventWorkers)
	if err != nil {
		return err
	}
	if !scope.FullStats {
		return nil
	}

	liveEvents := completedIDs(overviews)

	results, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PageEventResults, liveEvents), o.cfg.EventWorkers)
	if err != nil {
		return err
	}

	teamIDs, err := o.collectTeamIDs(ctx, results)
	if err != nil {
		return err
	}
	teamIDs = capIDs(teamIDs, scope.MaxTeams)

	profiles, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PageTeamProfile, teamIDs), o.cfg.TeamWorkers)
	if err != nil {
		return err
	}

	playerIDs, err := o.collectPlayerIDs(ctx, profiles)
	if err != nil {
		return err
	}
	playerIDs = capIDs(playerIDs, scope.MaxPlayers)

	if _, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PagePlayerProfile, playerIDs), o.cfg.PlayerWorkers); err != nil {
		return err
	}

	_, err = o.executeStage(ctx, scope, run, kindUnits(hltv.PageEventStats, liveEvents), o.cfg.EventWorkers)
	return err
}

func (o *Orchestrator) runTeams(ctx context.Context, scope hltv.Scope, teamIDs []int64, run *runState) error {
	teamIDs = capIDs(teamIDs, scope.MaxTeams)

	profiles, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PageTeamProfile, teamIDs), o.cfg.TeamWorkers)
	if err != nil {
		return err
	}
	if !scope.FullStats {
		return nil
	}

	playerIDs, err := o.collectPlayerIDs(ctx, profiles)
	if err != nil {
		return err
	}
	playerIDs = capIDs(playerIDs, scope.MaxPlayers)

	_, err = o.executeStage(ctx, scope, run, kindUnits(hltv.PagePlayerProfile, playerIDs), o.cfg.PlayerWorkers)
	return err
}

func (o *Orchestrator) runPlayers(ctx context.Context, scope hltv.Scope, playerIDs []int64, run *runState) error {
	playerIDs = capIDs(playerIDs, scope.MaxPlayers)
	_, err := o.executeStage(ctx, scope, run, kindUnits(hltv.PagePlayerProfile, playerIDs), o.cfg.PlayerWorkers)
	return err
}

// collectTeamIDs derives the participating teams of the finished
// event-results units. Units that ran contribute their extracted
// placements; units skipped via checkpoint fall back to the store.
func (o *Orchestrator) collectTeamIDs(ctx context.Context, outcomes []unitOutcome) ([]int64, error) {
	var ids []int64
	for _, out := range outcomes {
		switch out.result.Status {
		case hltv.UnitSucceeded:
			for _, p := range out.extraction.Results {
				ids = append(ids, p.TeamID)
			}
		case hltv.UnitSkipped:
			stored, err := o.deps.Index.EventTeamIDs(ctx, out.result.Unit.EntityID)
			if err != nil {
				return nil, err
			}
			ids = append(ids, stored...)
		}
	}
	return dedupIDs(ids), nil
}

// collectPlayerIDs derives roster players from finished team-profile
// units, mirroring collectTeamIDs.
func (o *Orchestrator) collectPlayerIDs(ctx context.Context, outcomes []unitOutcome) ([]int64, error) {
	var ids []int64
	for _, out := range outcomes {
		switch out.result.Status {
		case hltv.UnitSucceeded:
			for _, seat := range out.extraction.Roster {
				ids = append(ids, seat.PlayerID)
			}
		case hltv.UnitSkipped:
			stored, err := o.deps.Index.RosterPlayerIDs(ctx, out.result.Unit.EntityID)
			if err != nil {
				return nil, err
			}
			ids = append(ids, stored...)
		}
	}
	return dedupIDs(ids), nil
}

func (o *Orchestrator) emit(evt progress.Event) {
	if o.deps.Emitter != nil {
		o.deps.Emitter.Emit(evt)
	}
}

type runState struct {
	report hltv.RunReport
}

func kindUnits(kind hltv.PageKind, ids []int64) []hltv.Unit {
	units := make([]hltv.Unit, 0, len(ids))
	for _, id := range ids {
		units = append(units, hltv.Unit{Kind: kind, EntityID: id})
	}
	return units
}

// completedIDs returns the entity ids of units that either succeeded or
// were already checkpointed, preserving order.
func completedIDs(outcomes []unitOutcome) []int64 {
	var ids []int64
	for _, out := range outcomes {
		if out.result.Status == hltv.UnitSucceeded || out.result.Status == hltv.UnitSkipped {
			ids = append(ids, out.result.Unit.EntityID)
		}
	}
	return ids
}

func capIDs(ids []int64, limit int) []int64 {
	if limit > 0 && len(ids) > limit {
		return ids[:limit]
	}
	return ids
}

func dedupIDs(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	var out []int64
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
