package sync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
	"github.com/hltv-tools/hltv-sync/internal/metrics"
	"github.com/hltv-tools/hltv-sync/internal/progress"
	"github.com/hltv-tools/hltv-sync/internal/snapshot"
)

type unitOutcome struct {
	result     hltv.UnitResult
	extraction hltv.Extraction
}

// executeStage runs one dependency level of units over a bounded worker
// pool. Unit-level failures are recorded in the report and do not stop
// the stage; the returned error is reserved for escalation (store
// connectivity loss or cancellation), which stops scheduling and lets
// in-flight units drain.
func (o *Orchestrator) executeStage(ctx context.Context, scope hltv.Scope, run *runState, units []hltv.Unit, workers int) ([]unitOutcome, error) {
	if len(units) == 0 {
		return nil, nil
	}
	if workers > len(units) {
		workers = len(units)
	}

	stageCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// A unit already pulled runs to completion on a context detached
	// from cancellation, so an interrupt costs at most the planning of
	// further units, never a fetched-but-uncommitted one. The external
	// signal is observed between unit pulls.
	unitCtx := context.WithoutCancel(stageCtx)

	type indexed struct {
		i   int
		out unitOutcome
		err error
	}

	jobs := make(chan int)
	results := make(chan indexed, len(units))

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			metrics.WorkerStarted()
			defer metrics.WorkerStopped()
			for i := range jobs {
				out, err := o.runUnit(unitCtx, scope, run.report.RunID, units[i])
				results <- indexed{i: i, out: out, err: err}
				if err != nil {
					cancel()
				}
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i := range units {
			if stageCtx.Err() != nil {
				return
			}
			select {
			case jobs <- i:
			case <-stageCtx.Done():
				return
			}
		}
	}()

	wg.Wait()
	close(results)

	byIndex := make(map[int]indexed, len(units))
	var firstErr error
	for res := range results {
		byIndex[res.i] = res
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
	}

	var outcomes []unitOutcome
	for i := range units {
		res, ok := byIndex[i]
		if !ok {
			continue
		}
		run.report.Units = append(run.report.Units, res.out.result)
		outcomes = append(outcomes, res.out)
	}

	if firstErr != nil {
		return outcomes, firstErr
	}
	return outcomes, ctx.Err()
}

// runUnit executes one fetch/extract/reconcile cycle. The checkpoint is
// written only after the reconcile has committed, so a crash between
// the two re-runs the unit rather than losing its records.
func (o *Orchestrator) runUnit(ctx context.Context, scope hltv.Scope, runID string, unit hltv.Unit) (unitOutcome, error) {
	start := o.deps.Clock.Now()
	res := hltv.UnitResult{Unit: unit, Status: hltv.UnitFailed}

	done, err := o.deps.Checkpoints.IsComplete(ctx, scope.Key(), unit.Key())
	if err != nil {
		res.Error = err.Error()
		return unitOutcome{result: res}, err
	}
	if done {
		res.Status = hltv.UnitSkipped
		o.emit(progress.Event{RunID: runID, Stage: progress.StageUnitSkipped, Unit: unit})
		return unitOutcome{result: res}, nil
	}

	o.emit(progress.Event{RunID: runID, Stage: progress.StageUnitStart, Unit: unit})

	page, extraction, attempts, err := o.fetchUnit(ctx, runID, unit)
	res.Attempts = attempts
	res.URL = page.URL
	res.Duration = o.deps.Clock.Now().Sub(start)
	if err != nil {
		res.Error = err.Error()
		res.LastSignals = hltv.BlockedSignals(err)
		o.failUnit(runID, unit, res)
		return unitOutcome{result: res}, nil
	}

	outcome, err := o.reconcile(ctx, unit, extraction)
	if err != nil {
		res.Error = err.Error()
		res.Duration = o.deps.Clock.Now().Sub(start)
		if hltv.IsConnectivity(err) {
			o.failUnit(runID, unit, res)
			return unitOutcome{result: res}, err
		}
		o.failUnit(runID, unit, res)
		return unitOutcome{result: res}, nil
	}

	o.snapshotUnit(ctx, runID, unit, page.FetchedAt, extraction)

	if err := o.deps.Checkpoints.MarkComplete(ctx, scope.Key(), unit.Key(), o.deps.Clock.Now()); err != nil {
		res.Error = err.Error()
		o.failUnit(runID, unit, res)
		return unitOutcome{result: res}, err
	}

	res.Status = hltv.UnitSucceeded
	res.Outcome = outcome
	res.Duration = o.deps.Clock.Now().Sub(start)
	o.emit(progress.Event{
		RunID:   runID,
		Stage:   progress.StageUnitDone,
		Unit:    unit,
		URL:     page.URL,
		Attempt: attempts,
		Outcome: outcome,
		Dur:     res.Duration,
	})
	return unitOutcome{result: res, extraction: extraction}, nil
}

func (o *Orchestrator) failUnit(runID string, unit hltv.Unit, res hltv.UnitResult) {
	o.deps.Logger.Warn("unit failed",
		zap.String("run_id", runID),
		zap.String("unit", unit.Key()),
		zap.Int("attempts", res.Attempts),
		zap.String("error", res.Error))
	o.emit(progress.Event{
		RunID:   runID,
		Stage:   progress.StageUnitFailed,
		Unit:    unit,
		URL:     res.URL,
		Attempt: res.Attempts,
		Signals: res.LastSignals,
		Note:    res.Error,
	})
}

// fetch loads and extracts a page outside the unit lifecycle; the
// planner uses it for listing pages.
func (o *Orchestrator) fetch(ctx context.Context, unit hltv.Unit) (hltv.Extraction, error) {
	_, extraction, _, err := o.fetchUnit(ctx, "", unit)
	return extraction, err
}

// fetchUnit loads the unit's page with retry and backoff, then runs
// extraction. Blocked and transient failures retry up to the policy
// ceiling; extraction failures never retry because the same markup
// would fail the same way.
func (o *Orchestrator) fetchUnit(ctx context.Context, runID string, unit hltv.Unit) (hltv.Page, hltv.Extraction, int, error) {
	maxAttempts := o.deps.Retry.MaxAttempts()
	kind := string(unit.Kind)

	var (
		lastPage hltv.Page
		lastErr  error
		attempts int
	)
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		attempts = attempt
		page, err := o.deps.Loader.Load(ctx, unit.Kind, unit.EntityID)
		if err == nil {
			metrics.RecordFetchAttempt(kind, "ok", page.Duration)
			extraction, exErr := o.deps.Extractor.Extract(page)
			if exErr != nil {
				return page, hltv.Extraction{}, attempts, exErr
			}
			return page, extraction, attempts, nil
		}

		if page.URL == "" {
			page.URL = hltv.ErrorURL(err)
		}
		lastPage = page
		lastErr = err
		metrics.RecordFetchAttempt(kind, "error", page.Duration)
		if signals := hltv.BlockedSignals(err); signals != nil {
			metrics.RecordBlocked(kind)
			o.emit(progress.Event{RunID: runID, Stage: progress.StageBlocked, Unit: unit, Attempt: attempt, Signals: signals})
		}
		if !hltv.IsRetryable(err) || attempt == maxAttempts {
			break
		}

		delay := o.deps.Retry.Backoff(attempt)
		o.emit(progress.Event{RunID: runID, Stage: progress.StageRetry, Unit: unit, Attempt: attempt, Dur: delay})
		if perr := o.deps.Pause(ctx, delay); perr != nil {
			return lastPage, hltv.Extraction{}, attempts, perr
		}
	}
	return lastPage, hltv.Extraction{}, attempts, lastErr
}

func (o *Orchestrator) reconcile(ctx context.Context, unit hltv.Unit, ex hltv.Extraction) (hltv.UpsertOutcome, error) {
	return applyExtraction(ctx, o.deps.Reconciler, o.deps.Clock.Now(), unit.Kind, ex)
}

// applyExtraction dispatches an extraction to the store operation
// matching its page kind. Shared between live runs and replay.
func applyExtraction(ctx context.Context, rec hltv.Reconciler, observedAt time.Time, kind hltv.PageKind, ex hltv.Extraction) (hltv.UpsertOutcome, error) {
	switch kind {
	case hltv.PageEventOverview:
		if ex.Event == nil {
			return "", fmt.Errorf("event-overview extraction carried no record")
		}
		return rec.ApplyEvent(ctx, *ex.Event)
	case hltv.PageEventResults:
		return "", rec.ApplyEventResults(ctx, ex.EventID, ex.Results)
	case hltv.PageTeamProfile:
		if ex.Team == nil {
			return "", fmt.Errorf("team-profile extraction carried no record")
		}
		return rec.ApplyTeam(ctx, *ex.Team, ex.Roster, observedAt)
	case hltv.PagePlayerProfile:
		if ex.Player == nil {
			return "", fmt.Errorf("player-profile extraction carried no record")
		}
		return rec.ApplyPlayer(ctx, *ex.Player)
	case hltv.PageEventStats:
		return "", rec.ApplyEventStats(ctx, ex.EventID, ex.Stats)
	default:
		return "", fmt.Errorf("page kind %s has no reconcile step", kind)
	}
}

func (o *Orchestrator) snapshotUnit(ctx context.Context, runID string, unit hltv.Unit, fetchedAt time.Time, ex hltv.Extraction) {
	if o.deps.Sink == nil {
		return
	}
	snap, err := snapshot.New(runID, unit, fetchedAt, ex)
	if err != nil {
		o.deps.Logger.Warn("snapshot build failed", zap.String("unit", unit.Key()), zap.Error(err))
		return
	}
	data, err := snap.Encode()
	if err != nil {
		o.deps.Logger.Warn("snapshot encode failed", zap.String("unit", unit.Key()), zap.Error(err))
		return
	}
	uri, err := o.deps.Sink.Put(ctx, snap.Path(), "application/json", data)
	if err != nil {
		o.deps.Logger.Warn("snapshot write failed", zap.String("unit", unit.Key()), zap.Error(err))
		return
	}
	o.deps.Logger.Debug("snapshot written", zap.String("unit", unit.Key()), zap.String("uri", uri))
}
