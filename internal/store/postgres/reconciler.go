package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// Upserts follow a shared non-regression rule: an absent field in the
// incoming record never clears a stored value. COALESCE keeps the old
// value when the new one is NULL, and NULLIF treats an empty name as
// absent. The WHERE guard suppresses no-op updates so "unchanged" is
// observable as zero returned rows, and xmax = 0 distinguishes a fresh
// insert from an update.

const upsertEventSQL = `
INSERT INTO events (id, name, start_date, end_date, location, prize_pool, event_type, status, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, now())
ON CONFLICT (id) DO UPDATE SET
	name       = COALESCE(NULLIF(EXCLUDED.name, ''), events.name),
	start_date = COALESCE(EXCLUDED.start_date, events.start_date),
	end_date   = COALESCE(EXCLUDED.end_date, events.end_date),
	location   = COALESCE(EXCLUDED.location, events.location),
	prize_pool = COALESCE(EXCLUDED.prize_pool, events.prize_pool),
	event_type = COALESCE(EXCLUDED.event_type, events.event_type),
	status     = COALESCE(EXCLUDED.status, events.status),
	updated_at = now()
WHERE (events.name, events.start_date, events.end_date, events.location, events.prize_pool, events.event_type, events.status)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.name, ''), events.name),
	 COALESCE(EXCLUDED.start_date, events.start_date),
	 COALESCE(EXCLUDED.end_date, events.end_date),
	 COALESCE(EXCLUDED.location, events.location),
	 COALESCE(EXCLUDED.prize_pool, events.prize_pool),
	 COALESCE(EXCLUDED.event_type, events.event_type),
	 COALESCE(EXCLUDED.status, events.status))
RETURNING (xmax = 0)`

// ApplyEvent upserts one event row keyed by external id.
func (s *Store) ApplyEvent(ctx context.Context, rec hltv.EventRecord) (hltv.UpsertOutcome, error) {
	var inserted bool
	err := s.db.QueryRow(ctx, upsertEventSQL,
		rec.ID, rec.Name, rec.StartDate, rec.EndDate,
		rec.Location, rec.PrizePool, rec.EventType, rec.Status,
	).Scan(&inserted)
	return outcome(inserted, err, fmt.Sprintf("upsert event %d", rec.ID))
}

const upsertTeamSQL = `
INSERT INTO teams (id, name, country, world_rank, updated_at)
VALUES ($1, $2, $3, $4, now())
ON CONFLICT (id) DO UPDATE SET
	name       = COALESCE(NULLIF(EXCLUDED.name, ''), teams.name),
	country    = COALESCE(EXCLUDED.country, teams.country),
	world_rank = COALESCE(EXCLUDED.world_rank, teams.world_rank),
	updated_at = now()
WHERE (teams.name, teams.country, teams.world_rank)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.name, ''), teams.name),
	 COALESCE(EXCLUDED.country, teams.country),
	 COALESCE(EXCLUDED.world_rank, teams.world_rank))
RETURNING (xmax = 0)`

const minimalPlayerSQL = `
INSERT INTO players (id, nickname) VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`

const appendRosterSQL = `
INSERT INTO team_players (team_id, player_id, nickname, role, observed_at)
VALUES ($1, $2, $3, $4, $5)
ON CONFLICT (team_id, player_id, observed_at) DO NOTHING`

// ApplyTeam upserts the team row and appends the observed roster as
// history keyed by observation time. Minimal player parents are created
// in the same transaction so no roster row dangles.
func (s *Store) ApplyTeam(ctx context.Context, team hltv.TeamRecord, roster []hltv.RosterSeat, observedAt time.Time) (hltv.UpsertOutcome, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return "", classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var inserted bool
	scanErr := tx.QueryRow(ctx, upsertTeamSQL, team.ID, team.Name, team.Country, team.WorldRank).Scan(&inserted)
	out, err := outcome(inserted, scanErr, fmt.Sprintf("upsert team %d", team.ID))
	if err != nil {
		return "", err
	}

	for _, seat := range roster {
		if _, err := tx.Exec(ctx, minimalPlayerSQL, seat.PlayerID, seat.Nickname); err != nil {
			return "", classify(fmt.Errorf("ensure player %d: %w", seat.PlayerID, err))
		}
		if _, err := tx.Exec(ctx, appendRosterSQL, team.ID, seat.PlayerID, seat.Nickname, seat.Role, observedAt); err != nil {
			return "", classify(fmt.Errorf("append roster seat %d/%d: %w", team.ID, seat.PlayerID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", classify(fmt.Errorf("commit: %w", err))
	}
	return out, nil
}

// The aggregate stat block is a cumulative snapshot, so when $6 reports
// the block as observed every stat column is replaced wholesale; when
// not, every stat column is left untouched.
const upsertPlayerSQL = `
INSERT INTO players (id, nickname, real_name, country, age, current_team_id,
	stat_maps, stat_rounds, stat_kills, stat_deaths, stat_kd_ratio, stat_hs_pct,
	stat_rating, stat_kpr, stat_apr, stat_kast, stat_impact, stat_adr, updated_at)
VALUES ($1, $2, $3, $4, $5, $7,
	$8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, now())
ON CONFLICT (id) DO UPDATE SET
	nickname        = COALESCE(NULLIF(EXCLUDED.nickname, ''), players.nickname),
	real_name       = COALESCE(EXCLUDED.real_name, players.real_name),
	country         = COALESCE(EXCLUDED.country, players.country),
	age             = COALESCE(EXCLUDED.age, players.age),
	current_team_id = COALESCE(EXCLUDED.current_team_id, players.current_team_id),
	stat_maps       = CASE WHEN $6 THEN EXCLUDED.stat_maps ELSE players.stat_maps END,
	stat_rounds     = CASE WHEN $6 THEN EXCLUDED.stat_rounds ELSE players.stat_rounds END,
	stat_kills      = CASE WHEN $6 THEN EXCLUDED.stat_kills ELSE players.stat_kills END,
	stat_deaths     = CASE WHEN $6 THEN EXCLUDED.stat_deaths ELSE players.stat_deaths END,
	stat_kd_ratio   = CASE WHEN $6 THEN EXCLUDED.stat_kd_ratio ELSE players.stat_kd_ratio END,
	stat_hs_pct     = CASE WHEN $6 THEN EXCLUDED.stat_hs_pct ELSE players.stat_hs_pct END,
	stat_rating     = CASE WHEN $6 THEN EXCLUDED.stat_rating ELSE players.stat_rating END,
	stat_kpr        = CASE WHEN $6 THEN EXCLUDED.stat_kpr ELSE players.stat_kpr END,
	stat_apr        = CASE WHEN $6 THEN EXCLUDED.stat_apr ELSE players.stat_apr END,
	stat_kast       = CASE WHEN $6 THEN EXCLUDED.stat_kast ELSE players.stat_kast END,
	stat_impact     = CASE WHEN $6 THEN EXCLUDED.stat_impact ELSE players.stat_impact END,
	stat_adr        = CASE WHEN $6 THEN EXCLUDED.stat_adr ELSE players.stat_adr END,
	updated_at      = now()
WHERE (players.nickname, players.real_name, players.country, players.age, players.current_team_id)
	IS DISTINCT FROM
	(COALESCE(NULLIF(EXCLUDED.nickname, ''), players.nickname),
	 COALESCE(EXCLUDED.real_name, players.real_name),
	 COALESCE(EXCLUDED.country, players.country),
	 COALESCE(EXCLUDED.age, players.age),
	 COALESCE(EXCLUDED.current_team_id, players.current_team_id))
	OR $6
RETURNING (xmax = 0)`

// ApplyPlayer upserts one player row.
func (s *Store) ApplyPlayer(ctx context.Context, rec hltv.PlayerRecord) (hltv.UpsertOutcome, error) {
	stats := rec.Stats
	observed := stats != nil
	if stats == nil {
		stats = &hltv.PlayerStats{}
	}

	var inserted bool
	err := s.db.QueryRow(ctx, upsertPlayerSQL,
		rec.ID, rec.Nickname, rec.RealName, rec.Country, rec.Age, observed, rec.CurrentTeamID,
		stats.Maps, stats.Rounds, stats.Kills, stats.Deaths, stats.KDRatio, stats.HeadshotPct,
		stats.Rating, stats.KillsPerRnd, stats.AssistsPerRd, stats.KAST, stats.Impact, stats.ADR,
	).Scan(&inserted)
	return outcome(inserted, err, fmt.Sprintf("upsert player %d", rec.ID))
}

const minimalEventSQL = `
INSERT INTO events (id) VALUES ($1)
ON CONFLICT (id) DO NOTHING`

const minimalTeamSQL = `
INSERT INTO teams (id, name) VALUES ($1, $2)
ON CONFLICT (id) DO NOTHING`

// event_teams rows carry the latest observation, not history: re-syncing
// an event overwrites placements and prizes in place.
const upsertEventTeamSQL = `
INSERT INTO event_teams (event_id, team_id, team_name, placement, prize, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (event_id, team_id) DO UPDATE SET
	team_name  = COALESCE(NULLIF(EXCLUDED.team_name, ''), event_teams.team_name),
	placement  = COALESCE(EXCLUDED.placement, event_teams.placement),
	prize      = COALESCE(EXCLUDED.prize, event_teams.prize),
	updated_at = now()`

// ApplyEventResults upserts the event<->team associations for one
// event. Minimal parent rows are created in the same transaction.
func (s *Store) ApplyEventResults(ctx context.Context, eventID int64, placements []hltv.Placement) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, minimalEventSQL, eventID); err != nil {
		return classify(fmt.Errorf("ensure event %d: %w", eventID, err))
	}
	for _, p := range placements {
		if _, err := tx.Exec(ctx, minimalTeamSQL, p.TeamID, p.TeamName); err != nil {
			return classify(fmt.Errorf("ensure team %d: %w", p.TeamID, err))
		}
		if _, err := tx.Exec(ctx, upsertEventTeamSQL, eventID, p.TeamID, p.TeamName, p.Placement, p.Prize); err != nil {
			return classify(fmt.Errorf("upsert placement %d/%d: %w", eventID, p.TeamID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

const upsertEventStatSQL = `
INSERT INTO event_stats (event_id, player_id, nickname, rating, maps_played, updated_at)
VALUES ($1, $2, $3, $4, $5, now())
ON CONFLICT (event_id, player_id) DO UPDATE SET
	nickname    = COALESCE(NULLIF(EXCLUDED.nickname, ''), event_stats.nickname),
	rating      = EXCLUDED.rating,
	maps_played = EXCLUDED.maps_played,
	updated_at  = now()`

// ApplyEventStats refreshes the per-(event, player) stat rows for one
// event in place. Event stat values are a snapshot of the source page,
// so they overwrite rather than merge.
func (s *Store) ApplyEventStats(ctx context.Context, eventID int64, stats []hltv.EventStatRecord) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return classify(fmt.Errorf("begin: %w", err))
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, minimalEventSQL, eventID); err != nil {
		return classify(fmt.Errorf("ensure event %d: %w", eventID, err))
	}
	for _, rec := range stats {
		if _, err := tx.Exec(ctx, minimalPlayerSQL, rec.PlayerID, rec.Nickname); err != nil {
			return classify(fmt.Errorf("ensure player %d: %w", rec.PlayerID, err))
		}
		if _, err := tx.Exec(ctx, upsertEventStatSQL, eventID, rec.PlayerID, rec.Nickname, rec.Rating, rec.MapsPlayed); err != nil {
			return classify(fmt.Errorf("upsert event stat %d/%d: %w", eventID, rec.PlayerID, err))
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit: %w", err))
	}
	return nil
}

// outcome maps an xmax-probe scan result to an upsert outcome. A
// suppressed no-op update returns no row at all.
func outcome(inserted bool, err error, op string) (hltv.UpsertOutcome, error) {
	switch {
	case err == nil && inserted:
		return hltv.OutcomeInserted, nil
	case err == nil:
		return hltv.OutcomeUpdated, nil
	case errors.Is(err, pgx.ErrNoRows):
		return hltv.OutcomeUnchanged, nil
	default:
		return "", classify(fmt.Errorf("%s: %w", op, err))
	}
}
