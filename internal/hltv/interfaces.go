package hltv

import (
	"context"
	"time"
)

// Loader loads one page of the given kind for the given entity. A
// single call makes a single attempt; retry with backoff is the
// caller's responsibility. Listing kinds take entity id zero.
type Loader interface {
	Load(ctx context.Context, kind PageKind, entityID int64) (Page, error)
}

// Extractor maps loaded page content into typed records. It must be a
// pure function of the page: no network or storage side effects.
type Extractor interface {
	Extract(page Page) (Extraction, error)
}

// Reconciler applies extracted records and their direct associations to
// the persistent store. Each method is one atomic unit of work.
type Reconciler interface {
	// ApplyEvent upserts one event row.
	ApplyEvent(ctx context.Context, rec EventRecord) (UpsertOutcome, error)

	// ApplyEventResults upserts the event<->team associations for one
	// event, creating minimal team parents first so no association
	// dangles. Placements overwrite the latest stored values.
	ApplyEventResults(ctx context.Context, eventID int64, placements []Placement) error

	// ApplyTeam upserts one team together with its observed roster.
	// Roster entries are appended as history keyed by observation time,
	// never overwritten; minimal player parents are created as needed.
	ApplyTeam(ctx context.Context, team TeamRecord, roster []RosterSeat, observedAt time.Time) (UpsertOutcome, error)

	// ApplyPlayer upserts one player. When rec.Stats is non-nil the
	// stored aggregate stat block is replaced wholesale; when nil it is
	// left untouched.
	ApplyPlayer(ctx context.Context, rec PlayerRecord) (UpsertOutcome, error)

	// ApplyEventStats refreshes the per-(event, player) stat rows for
	// one event in place, creating minimal player parents as needed.
	ApplyEventStats(ctx context.Context, eventID int64, stats []EventStatRecord) error
}

// CheckpointStore durably records completed units so an interrupted run
// can resume without re-fetching them.
type CheckpointStore interface {
	IsComplete(ctx context.Context, scopeKey, unitKey string) (bool, error)
	MarkComplete(ctx context.Context, scopeKey, unitKey string, at time.Time) error
}

// StoreIndex answers planning questions against current store state.
type StoreIndex interface {
	// FilterUnseen returns, in input order, the ids with no stored row
	// of the given kind.
	FilterUnseen(ctx context.Context, kind EntityKind, ids []int64) ([]int64, error)

	// EventTeamIDs returns the team ids associated with an event, in
	// placement order.
	EventTeamIDs(ctx context.Context, eventID int64) ([]int64, error)

	// RosterPlayerIDs returns the player ids on a team's stored roster.
	RosterPlayerIDs(ctx context.Context, teamID int64) ([]int64, error)
}

// BlobSink writes a snapshot artifact and returns its URI.
type BlobSink interface {
	Put(ctx context.Context, path, contentType string, data []byte) (string, error)
}

// Clock returns the current time; injectable for tests.
type Clock interface {
	Now() time.Time
}

// RetryPolicy owns the attempt ceiling and backoff schedule for
// retryable load failures.
type RetryPolicy interface {
	MaxAttempts() int
	Backoff(attempt int) time.Duration
}
