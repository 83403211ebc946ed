package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func unitKey(kind hltv.PageKind, id int64) string {
	return fmt.Sprintf("%s:%d", kind, id)
}

func pageURL(kind hltv.PageKind, id int64) string {
	return fmt.Sprintf("https://test/%s/%d", kind, id)
}

type fakeLoader struct {
	mu            sync.Mutex
	calls         []string
	errs          map[string][]error
	zeroPageOnErr bool
}

func newFakeLoader() *fakeLoader {
	return &fakeLoader{errs: map[string][]error{}}
}

func (l *fakeLoader) failWith(kind hltv.PageKind, id int64, errs ...error) {
	l.errs[unitKey(kind, id)] = errs
}

func (l *fakeLoader) Load(_ context.Context, kind hltv.PageKind, id int64) (hltv.Page, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := unitKey(kind, id)
	l.calls = append(l.calls, key)
	if queue := l.errs[key]; len(queue) > 0 {
		err := queue[0]
		l.errs[key] = queue[1:]
		if err != nil {
			// the real pool returns a zero page on failure
			if l.zeroPageOnErr {
				return hltv.Page{}, err
			}
			return hltv.Page{Kind: kind, URL: pageURL(kind, id)}, err
		}
	}
	return hltv.Page{
		Kind:      kind,
		URL:       pageURL(kind, id),
		FetchedAt: time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC),
	}, nil
}

func (l *fakeLoader) callsFor(kind hltv.PageKind) []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []string
	prefix := string(kind) + ":"
	for _, c := range l.calls {
		if len(c) > len(prefix) && c[:len(prefix)] == prefix {
			out = append(out, c)
		}
	}
	return out
}

func (l *fakeLoader) callCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.calls)
}

type fakeExtractor struct {
	mu    sync.Mutex
	byURL map[string]hltv.Extraction
	errs  map[string]error
}

func newFakeExtractor() *fakeExtractor {
	return &fakeExtractor{byURL: map[string]hltv.Extraction{}, errs: map[string]error{}}
}

func (e *fakeExtractor) register(kind hltv.PageKind, id int64, ex hltv.Extraction) {
	e.byURL[pageURL(kind, id)] = ex
}

func (e *fakeExtractor) Extract(page hltv.Page) (hltv.Extraction, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.errs[page.URL]; err != nil {
		return hltv.Extraction{}, err
	}
	ex, ok := e.byURL[page.URL]
	if !ok {
		return hltv.Extraction{}, &hltv.ExtractionError{Kind: page.Kind, URL: page.URL, Missing: "fixture"}
	}
	return ex, nil
}

type fakeReconciler struct {
	mu         sync.Mutex
	events     []hltv.EventRecord
	results    map[int64][]hltv.Placement
	teams      []hltv.TeamRecord
	players    []hltv.PlayerRecord
	eventStats map[int64][]hltv.EventStatRecord
	outcome    hltv.UpsertOutcome
	err        error
}

func newFakeReconciler() *fakeReconciler {
	return &fakeReconciler{
		results:    map[int64][]hltv.Placement{},
		eventStats: map[int64][]hltv.EventStatRecord{},
		outcome:    hltv.OutcomeInserted,
	}
}

func (r *fakeReconciler) ApplyEvent(_ context.Context, rec hltv.EventRecord) (hltv.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.events = append(r.events, rec)
	return r.outcome, nil
}

func (r *fakeReconciler) ApplyEventResults(_ context.Context, eventID int64, placements []hltv.Placement) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.results[eventID] = placements
	return nil
}

func (r *fakeReconciler) ApplyTeam(_ context.Context, team hltv.TeamRecord, _ []hltv.RosterSeat, _ time.Time) (hltv.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.teams = append(r.teams, team)
	return r.outcome, nil
}

func (r *fakeReconciler) ApplyPlayer(_ context.Context, rec hltv.PlayerRecord) (hltv.UpsertOutcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return "", r.err
	}
	r.players = append(r.players, rec)
	return r.outcome, nil
}

func (r *fakeReconciler) ApplyEventStats(_ context.Context, eventID int64, stats []hltv.EventStatRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.eventStats[eventID] = stats
	return nil
}

type fakeCheckpoints struct {
	mu    sync.Mutex
	done  map[string]bool
	marks []string
}

func newFakeCheckpoints() *fakeCheckpoints {
	return &fakeCheckpoints{done: map[string]bool{}}
}

func (c *fakeCheckpoints) preMark(scopeKey, unitKey string) {
	c.done[scopeKey+"|"+unitKey] = true
}

func (c *fakeCheckpoints) IsComplete(_ context.Context, scopeKey, unitKey string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.done[scopeKey+"|"+unitKey], nil
}

func (c *fakeCheckpoints) MarkComplete(_ context.Context, scopeKey, unitKey string, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.done[scopeKey+"|"+unitKey] = true
	c.marks = append(c.marks, unitKey)
	return nil
}

type fakeIndex struct {
	seen       map[int64]bool
	eventTeams map[int64][]int64
	rosters    map[int64][]int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{
		seen:       map[int64]bool{},
		eventTeams: map[int64][]int64{},
		rosters:    map[int64][]int64{},
	}
}

func (i *fakeIndex) FilterUnseen(_ context.Context, _ hltv.EntityKind, ids []int64) ([]int64, error) {
	var out []int64
	for _, id := range ids {
		if !i.seen[id] {
			out = append(out, id)
		}
	}
	return out, nil
}

func (i *fakeIndex) EventTeamIDs(_ context.Context, eventID int64) ([]int64, error) {
	return i.eventTeams[eventID], nil
}

func (i *fakeIndex) RosterPlayerIDs(_ context.Context, teamID int64) ([]int64, error) {
	return i.rosters[teamID], nil
}

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.t.IsZero() {
		c.t = time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	}
	c.t = c.t.Add(time.Second)
	return c.t
}

type fakeRetry struct {
	max   int
	delay time.Duration
}

func (r fakeRetry) MaxAttempts() int          { return r.max }
func (r fakeRetry) Backoff(int) time.Duration { return r.delay }

type harness struct {
	loader      *fakeLoader
	extractor   *fakeExtractor
	reconciler  *fakeReconciler
	checkpoints *fakeCheckpoints
	index       *fakeIndex

	mu     sync.Mutex
	pauses []time.Duration
}

func newHarness(t *testing.T) (*harness, *Orchestrator) {
	t.Helper()
	h := &harness{
		loader:      newFakeLoader(),
		extractor:   newFakeExtractor(),
		reconciler:  newFakeReconciler(),
		checkpoints: newFakeCheckpoints(),
		index:       newFakeIndex(),
	}
	orch, err := NewOrchestrator(Deps{
		Loader:      h.loader,
		Extractor:   h.extractor,
		Reconciler:  h.reconciler,
		Checkpoints: h.checkpoints,
		Index:       h.index,
		Clock:       &fakeClock{},
		Retry:       fakeRetry{max: 3, delay: 50 * time.Millisecond},
		Pause: func(ctx context.Context, d time.Duration) error {
			if err := ctx.Err(); err != nil {
				return err
			}
			h.mu.Lock()
			h.pauses = append(h.pauses, d)
			h.mu.Unlock()
			return nil
		},
	}, Config{EventWorkers: 1, TeamWorkers: 1, PlayerWorkers: 1})
	require.NoError(t, err)
	return h, orch
}

// registerCascade wires an event with two teams whose rosters overlap
// on player 2.
func (h *harness) registerCascade() {
	h.extractor.register(hltv.PageEventOverview, 8040, hltv.Extraction{
		Kind:  hltv.PageEventOverview,
		Event: &hltv.EventRecord{ID: 8040, Name: "BLAST Premier World Final"},
	})
	h.extractor.register(hltv.PageEventResults, 8040, hltv.Extraction{
		Kind:    hltv.PageEventResults,
		EventID: 8040,
		Results: []hltv.Placement{
			{TeamID: 4608, TeamName: "Natus Vincere"},
			{TeamID: 6665, TeamName: "Astralis"},
		},
	})
	h.extractor.register(hltv.PageTeamProfile, 4608, hltv.Extraction{
		Kind: hltv.PageTeamProfile,
		Team: &hltv.TeamRecord{ID: 4608, Name: "Natus Vincere"},
		Roster: []hltv.RosterSeat{
			{PlayerID: 1, Nickname: "one"},
			{PlayerID: 2, Nickname: "two"},
		},
	})
	h.extractor.register(hltv.PageTeamProfile, 6665, hltv.Extraction{
		Kind: hltv.PageTeamProfile,
		Team: &hltv.TeamRecord{ID: 6665, Name: "Astralis"},
		Roster: []hltv.RosterSeat{
			{PlayerID: 2, Nickname: "two"},
			{PlayerID: 3, Nickname: "three"},
		},
	})
	for _, id := range []int64{1, 2, 3} {
		h.extractor.register(hltv.PagePlayerProfile, id, hltv.Extraction{
			Kind:   hltv.PagePlayerProfile,
			Player: &hltv.PlayerRecord{ID: id, Nickname: fmt.Sprintf("p%d", id)},
		})
	}
	h.extractor.register(hltv.PageEventStats, 8040, hltv.Extraction{
		Kind:    hltv.PageEventStats,
		EventID: 8040,
		Stats: []hltv.EventStatRecord{
			{EventID: 8040, PlayerID: 1, Nickname: "one"},
		},
	})
}

func TestRunSingleEventShallow(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)
	require.Equal(t, 1, report.Counters.Succeeded)

	// A shallow event scope touches only the event row.
	require.Equal(t, []string{"event-overview:8040"}, h.loader.calls)
	require.Len(t, h.reconciler.events, 1)
	require.Empty(t, h.reconciler.results)
	require.Empty(t, h.reconciler.teams)
}

func TestRunFullEventCascade(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040, FullStats: true})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)

	// overview + results + 2 teams + 3 players + event stats
	require.Equal(t, 8, report.Counters.Succeeded)
	require.Zero(t, report.Counters.Failed)

	require.Equal(t, []string{
		"event-overview:8040",
		"event-results:8040",
		"team-profile:4608",
		"team-profile:6665",
		"player-profile:1",
		"player-profile:2",
		"player-profile:3",
		"event-stats:8040",
	}, h.loader.calls)

	require.Len(t, h.reconciler.events, 1)
	require.Len(t, h.reconciler.results[8040], 2)
	require.Len(t, h.reconciler.teams, 2)
	// player 2 plays on both rosters but is fetched once
	require.Len(t, h.reconciler.players, 3)
	require.Len(t, h.reconciler.eventStats[8040], 1)
}

func TestPlanUnseenEvents(t *testing.T) {
	h, orch := newHarness(t)
	h.extractor.register(hltv.PageEventList, 0, hltv.Extraction{
		Kind: hltv.PageEventList,
		Events: []hltv.EventRecord{
			{ID: 1, Name: "a"}, {ID: 2, Name: "b"}, {ID: 3, Name: "c"}, {ID: 4, Name: "d"},
		},
	})
	h.index.seen[2] = true
	for _, id := range []int64{1, 3} {
		h.extractor.register(hltv.PageEventOverview, id, hltv.Extraction{
			Kind:  hltv.PageEventOverview,
			Event: &hltv.EventRecord{ID: id, Name: "x"},
		})
	}

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, UnseenCount: 2})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)

	// Listing order is preserved and the already-stored id 2 is
	// filtered out before the count is applied.
	require.Equal(t, []string{"event-overview:1", "event-overview:3"}, h.loader.callsFor(hltv.PageEventOverview))
}

func TestResumeSkipsCheckpointedUnits(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	scope := hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040, FullStats: true}
	h.checkpoints.preMark(scope.Key(), "event-overview:8040")
	h.checkpoints.preMark(scope.Key(), "event-results:8040")
	// The skipped results unit contributes follow-up teams from the
	// store instead of a fresh extraction.
	h.index.eventTeams[8040] = []int64{4608, 6665}

	report, err := orch.Run(context.Background(), scope)
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)
	require.Equal(t, 2, report.Counters.Skipped)
	require.Equal(t, 6, report.Counters.Succeeded)

	require.Empty(t, h.loader.callsFor(hltv.PageEventOverview))
	require.Empty(t, h.loader.callsFor(hltv.PageEventResults))
	require.Equal(t, []string{"team-profile:4608", "team-profile:6665"}, h.loader.callsFor(hltv.PageTeamProfile))
}

func TestRetryBlockedThenSuccess(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()
	h.loader.failWith(hltv.PageEventOverview, 8040,
		&hltv.BlockedError{URL: "u", Signals: []string{"challenge-title", "cf-ray"}},
		&hltv.TransientError{Err: errors.New("timeout")},
		nil,
	)

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)
	require.Equal(t, 1, report.Counters.Succeeded)
	require.Equal(t, 3, report.Units[0].Attempts)
	require.Len(t, h.pauses, 2)
}

func TestRetryExhaustionFailsUnit(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()
	blocked := &hltv.BlockedError{URL: "u", Signals: []string{"challenge-title", "cf-ray"}}
	h.loader.failWith(hltv.PageEventOverview, 8040, blocked, blocked, blocked)

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)
	require.Equal(t, 1, report.Counters.Failed)

	res := report.Units[0]
	require.Equal(t, hltv.UnitFailed, res.Status)
	require.Equal(t, 3, res.Attempts)
	require.Equal(t, []string{"challenge-title", "cf-ray"}, res.LastSignals)
	require.Empty(t, h.reconciler.events)
	// failed units are never checkpointed
	require.Empty(t, h.checkpoints.marks)
}

func TestExtractionFailureDoesNotRetry(t *testing.T) {
	h, orch := newHarness(t)
	h.extractor.errs[pageURL(hltv.PageEventOverview, 8040)] = &hltv.ExtractionError{
		Kind: hltv.PageEventOverview, URL: "u", Missing: "event id",
	}

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.NoError(t, err)
	require.Equal(t, 1, report.Counters.Failed)
	require.Equal(t, 1, h.loader.callCount())
	require.Empty(t, h.pauses)
}

func TestConnectivityFailureFailsRun(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()
	h.reconciler.err = &hltv.PersistenceError{Err: errors.New("connection refused"), Connectivity: true}

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.Error(t, err)
	require.Equal(t, hltv.RunFailed, report.State)
	require.NotEmpty(t, report.Error)
}

func TestCancellationLeavesRunResumable(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()
	h.loader.failWith(hltv.PageEventOverview, 8040, &hltv.TransientError{Err: errors.New("timeout")})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := orch.Run(ctx, hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, hltv.RunCheckpointed, report.State)
}

// cancellingLoader cancels the run while serving its first load, the
// way an operator interrupt lands mid-navigation.
type cancellingLoader struct {
	inner  *fakeLoader
	cancel context.CancelFunc
	once   sync.Once
}

func (l *cancellingLoader) Load(ctx context.Context, kind hltv.PageKind, id int64) (hltv.Page, error) {
	l.once.Do(l.cancel)
	if err := ctx.Err(); err != nil {
		return hltv.Page{}, err
	}
	return l.inner.Load(ctx, kind, id)
}

func TestCancellationDrainsInFlightUnit(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	orch.deps.Loader = &cancellingLoader{inner: h.loader, cancel: cancel}

	report, err := orch.Run(ctx, hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, hltv.RunCheckpointed, report.State)

	// the unit already in flight finishes and is checkpointed
	require.Equal(t, 1, report.Counters.Succeeded)
	require.Zero(t, report.Counters.Failed)
	require.Equal(t, []string{"event-overview:8040"}, h.checkpoints.marks)
}

func TestFailedUnitRecordsURL(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()
	h.loader.zeroPageOnErr = true

	target := pageURL(hltv.PageEventOverview, 8040)
	h.loader.failWith(hltv.PageEventOverview, 8040,
		&hltv.TransientError{URL: target, Err: errors.New("timeout")},
		&hltv.TransientError{URL: target, Err: errors.New("timeout")},
		&hltv.TransientError{URL: target, Err: errors.New("timeout")},
	)

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindEvent, ExternalID: 8040})
	require.NoError(t, err)
	require.Equal(t, 1, report.Counters.Failed)
	require.Len(t, report.Units, 1)
	require.Equal(t, hltv.UnitFailed, report.Units[0].Status)
	require.Equal(t, target, report.Units[0].URL)
}

func TestMaxTeamsBoundsCascade(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	report, err := orch.Run(context.Background(), hltv.Scope{
		Kind: hltv.KindEvent, ExternalID: 8040, FullStats: true, MaxTeams: 1,
	})
	require.NoError(t, err)
	require.Equal(t, hltv.RunDone, report.State)

	require.Equal(t, []string{"team-profile:4608"}, h.loader.callsFor(hltv.PageTeamProfile))
	// only the capped team's roster reaches the player stage
	require.Equal(t, []string{"player-profile:1", "player-profile:2"}, h.loader.callsFor(hltv.PagePlayerProfile))
}

func TestTeamScopeFullStatsFollowsRoster(t *testing.T) {
	h, orch := newHarness(t)
	h.registerCascade()

	report, err := orch.Run(context.Background(), hltv.Scope{Kind: hltv.KindTeam, ExternalID: 4608, FullStats: true})
	require.NoError(t, err)
	require.Equal(t, 3, report.Counters.Succeeded)
	require.Equal(t, []string{"team-profile:4608"}, h.loader.callsFor(hltv.PageTeamProfile))
	require.Equal(t, []string{"player-profile:1", "player-profile:2"}, h.loader.callsFor(hltv.PagePlayerProfile))
}

func TestNewOrchestratorValidation(t *testing.T) {
	_, err := NewOrchestrator(Deps{}, Config{})
	require.Error(t, err)
}
