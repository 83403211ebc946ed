// Package hltv defines the core types shared across the sync engine.
package hltv

import (
	"fmt"
	"time"
)

// EntityKind identifies one of the synced entity types.
type EntityKind string

// Entity kinds addressable by a scope directive.
const (
	KindEvent  EntityKind = "event"
	KindTeam   EntityKind = "team"
	KindPlayer EntityKind = "player"
)

// PageKind identifies a logical page class on the source site. Each kind
// has its own URL template, readiness predicate and record shape.
type PageKind string

// Supported page kinds.
const (
	PageEventList     PageKind = "event-list"
	PageEventOverview PageKind = "event-overview"
	PageEventResults  PageKind = "event-results"
	PageEventStats    PageKind = "event-stats"
	PageTeamRanking   PageKind = "team-ranking"
	PageTeamProfile   PageKind = "team-profile"
	PagePlayerList    PageKind = "player-list"
	PagePlayerProfile PageKind = "player-profile"
)

// PageKinds lists every kind the engine knows how to fetch and extract.
var PageKinds = []PageKind{
	PageEventList,
	PageEventOverview,
	PageEventResults,
	PageEventStats,
	PageTeamRanking,
	PageTeamProfile,
	PagePlayerList,
	PagePlayerProfile,
}

// Page is the loaded content of one navigation, as returned by the
// session layer and consumed by the extractor.
type Page struct {
	Kind        PageKind
	URL         string
	FinalURL    string
	StatusCode  int
	Body        []byte
	FetchedAt   time.Time
	Duration    time.Duration
	UsedBrowser bool
}

// EventRecord is a tournament/event extracted from the source site.
// Pointer fields distinguish "not observed in source" (nil) from an
// intentionally empty value.
type EventRecord struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	StartDate *time.Time `json:"start_date,omitempty"`
	EndDate   *time.Time `json:"end_date,omitempty"`
	Location  *string    `json:"location,omitempty"`
	PrizePool *string    `json:"prize_pool,omitempty"`
	EventType *string    `json:"event_type,omitempty"`
	Status    *string    `json:"status,omitempty"`
}

// TeamRecord is a team profile extracted from the source site.
type TeamRecord struct {
	ID        int64   `json:"id"`
	Name      string  `json:"name"`
	Country   *string `json:"country,omitempty"`
	WorldRank *int    `json:"world_rank,omitempty"`
}

// RosterSeat is one player observed on a team's current lineup.
type RosterSeat struct {
	PlayerID int64  `json:"player_id"`
	Nickname string `json:"nickname"`
	Role     string `json:"role,omitempty"`
}

// PlayerStats is the aggregate career stat block shown on a player's
// stats page. The block is a cumulative snapshot: when observed it
// replaces the stored block wholesale, individual fields are never
// merged across fetches.
type PlayerStats struct {
	Maps         *int     `json:"maps,omitempty"`
	Rounds       *int     `json:"rounds,omitempty"`
	Kills        *int     `json:"kills,omitempty"`
	Deaths       *int     `json:"deaths,omitempty"`
	KDRatio      *float64 `json:"kd_ratio,omitempty"`
	HeadshotPct  *float64 `json:"headshot_pct,omitempty"`
	Rating       *float64 `json:"rating,omitempty"`
	KillsPerRnd  *float64 `json:"kpr,omitempty"`
	AssistsPerRd *float64 `json:"apr,omitempty"`
	KAST         *float64 `json:"kast,omitempty"`
	Impact       *float64 `json:"impact,omitempty"`
	ADR          *float64 `json:"adr,omitempty"`
}

// PlayerRecord is a player profile extracted from the source site.
// CurrentTeamID is a weak reference: it records which team the player
// belongs to right now and is looked up, never owned.
type PlayerRecord struct {
	ID            int64        `json:"id"`
	Nickname      string       `json:"nickname"`
	RealName      *string      `json:"real_name,omitempty"`
	Country       *string      `json:"country,omitempty"`
	Age           *int         `json:"age,omitempty"`
	CurrentTeamID *int64       `json:"current_team_id,omitempty"`
	Stats         *PlayerStats `json:"stats,omitempty"`
}

// EventStatRecord holds one player's rating and maps played within one
// specific event.
type EventStatRecord struct {
	EventID    int64    `json:"event_id"`
	PlayerID   int64    `json:"player_id"`
	Nickname   string   `json:"nickname"`
	Rating     *float64 `json:"rating,omitempty"`
	MapsPlayed *int     `json:"maps_played,omitempty"`
}

// Placement is one team's final standing in an event, extracted from
// the event results page.
type Placement struct {
	TeamID    int64   `json:"team_id"`
	TeamName  string  `json:"team_name"`
	Placement *int    `json:"placement,omitempty"`
	Prize     *string `json:"prize,omitempty"`
}

// TeamSummary is one entry of the team ranking listing.
type TeamSummary struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// PlayerSummary is one entry of the top players listing.
type PlayerSummary struct {
	ID       int64  `json:"id"`
	Nickname string `json:"nickname"`
}

// Extraction is the closed set of typed results an extractor can
// produce. Exactly the fields matching Kind are populated.
type Extraction struct {
	Kind    PageKind
	EventID int64 // owning event for results and stats pages

	Events  []EventRecord     // event-list
	Event   *EventRecord      // event-overview
	Results []Placement       // event-results
	Stats   []EventStatRecord // event-stats
	Teams   []TeamSummary     // team-ranking
	Team    *TeamRecord       // team-profile
	Roster  []RosterSeat      // team-profile
	Players []PlayerSummary   // player-list
	Player  *PlayerRecord     // player-profile
}

// UpsertOutcome describes what a reconcile did to the stored row.
type UpsertOutcome string

// Upsert outcomes.
const (
	OutcomeInserted  UpsertOutcome = "inserted"
	OutcomeUpdated   UpsertOutcome = "updated"
	OutcomeUnchanged UpsertOutcome = "unchanged"
)

// Scope is the opaque plan request handed to the orchestrator by the
// CLI layer. ExternalID zero means listing-driven selection of up to
// UnseenCount entities not yet present in the store.
type Scope struct {
	Kind        EntityKind
	ExternalID  int64
	UnseenCount int
	FullStats   bool

	// Caller-supplied bounds on total work per invocation. Zero means
	// no bound at that level.
	MaxEvents  int
	MaxTeams   int
	MaxPlayers int
}

// Key returns the deterministic checkpoint namespace for this scope, so
// resuming the same directive resumes the same completed-unit set.
func (s Scope) Key() string {
	full := "shallow"
	if s.FullStats {
		full = "full"
	}
	if s.ExternalID != 0 {
		return fmt.Sprintf("%s:id=%d:%s", s.Kind, s.ExternalID, full)
	}
	return fmt.Sprintf("%s:unseen=%d:%s", s.Kind, s.UnseenCount, full)
}

// Unit is one orchestrator-scheduled fetch+extract+reconcile cycle for
// one entity or sub-resource.
type Unit struct {
	Kind     PageKind
	EntityID int64
}

// Key returns the stable identity used for checkpoints and reporting.
func (u Unit) Key() string {
	return fmt.Sprintf("%s:%d", u.Kind, u.EntityID)
}

// UnitStatus is the recorded per-unit result.
type UnitStatus string

// Unit statuses.
const (
	UnitSucceeded UnitStatus = "succeeded"
	UnitFailed    UnitStatus = "failed"
	UnitSkipped   UnitStatus = "skipped"
)

// UnitResult records one unit's outcome with enough context to resume
// or diagnose it without re-deriving scope.
type UnitResult struct {
	Unit        Unit          `json:"unit"`
	Status      UnitStatus    `json:"status"`
	URL         string        `json:"url,omitempty"`
	Attempts    int           `json:"attempts"`
	LastSignals []string      `json:"last_signals,omitempty"`
	Outcome     UpsertOutcome `json:"outcome,omitempty"`
	Error       string        `json:"error,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// RunState is the orchestrator state machine position.
type RunState string

// Run states.
const (
	RunPlanning     RunState = "planning"
	RunFetching     RunState = "fetching"
	RunReconciling  RunState = "reconciling"
	RunCheckpointed RunState = "checkpointed"
	RunDone         RunState = "done"
	RunFailed       RunState = "failed"
)

// RunCounters aggregates unit outcomes for a run.
type RunCounters struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`
}

// RunReport is the full account of one orchestrator run.
type RunReport struct {
	RunID    string       `json:"run_id"`
	Scope    Scope        `json:"scope"`
	State    RunState     `json:"state"`
	Started  time.Time    `json:"started_at"`
	Finished time.Time    `json:"finished_at"`
	Error    string       `json:"error,omitempty"`
	Counters RunCounters  `json:"counters"`
	Units    []UnitResult `json:"units"`
}
