package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// IsComplete reports whether the unit was already checkpointed under
// this scope.
func (s *Store) IsComplete(ctx context.Context, scopeKey, unitKey string) (bool, error) {
	const query = `SELECT EXISTS (SELECT 1 FROM sync_checkpoints WHERE scope_key = $1 AND unit_key = $2)`
	var done bool
	if err := s.db.QueryRow(ctx, query, scopeKey, unitKey).Scan(&done); err != nil {
		return false, classify(fmt.Errorf("checkpoint lookup %s/%s: %w", scopeKey, unitKey, err))
	}
	return done, nil
}

// MarkComplete durably records the unit as done. Idempotent: marking a
// unit twice is a no-op.
func (s *Store) MarkComplete(ctx context.Context, scopeKey, unitKey string, at time.Time) error {
	const query = `
		INSERT INTO sync_checkpoints (scope_key, unit_key, completed_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (scope_key, unit_key) DO NOTHING`
	if _, err := s.db.Exec(ctx, query, scopeKey, unitKey, at); err != nil {
		return classify(fmt.Errorf("checkpoint %s/%s: %w", scopeKey, unitKey, err))
	}
	return nil
}

// FilterUnseen returns, preserving input order, the ids that have no
// stored row of the given kind.
func (s *Store) FilterUnseen(ctx context.Context, kind hltv.EntityKind, ids []int64) ([]int64, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	var table string
	switch kind {
	case hltv.KindEvent:
		table = "events"
	case hltv.KindTeam:
		table = "teams"
	case hltv.KindPlayer:
		table = "players"
	default:
		return nil, fmt.Errorf("unknown entity kind %q", kind)
	}

	rows, err := s.db.Query(ctx, fmt.Sprintf(`SELECT id FROM %s WHERE id = ANY($1)`, table), ids)
	if err != nil {
		return nil, classify(fmt.Errorf("filter unseen %s: %w", kind, err))
	}
	defer rows.Close()

	seen := make(map[int64]struct{}, len(ids))
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify(fmt.Errorf("filter unseen %s: %w", kind, err))
		}
		seen[id] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("filter unseen %s: %w", kind, err))
	}

	var unseen []int64
	for _, id := range ids {
		if _, ok := seen[id]; !ok {
			unseen = append(unseen, id)
		}
	}
	return unseen, nil
}

// EventTeamIDs returns the team ids associated with an event, best
// placement first.
func (s *Store) EventTeamIDs(ctx context.Context, eventID int64) ([]int64, error) {
	const query = `
		SELECT team_id FROM event_teams
		WHERE event_id = $1
		ORDER BY placement NULLS LAST, team_id`
	return s.idList(ctx, query, eventID)
}

// RosterPlayerIDs returns the player ids of the team's most recently
// observed roster.
func (s *Store) RosterPlayerIDs(ctx context.Context, teamID int64) ([]int64, error) {
	const query = `
		SELECT player_id FROM team_players
		WHERE team_id = $1
		  AND observed_at = (SELECT max(observed_at) FROM team_players WHERE team_id = $1)
		ORDER BY player_id`
	return s.idList(ctx, query, teamID)
}

func (s *Store) idList(ctx context.Context, query string, arg any) ([]int64, error) {
	rows, err := s.db.Query(ctx, query, arg)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, classify(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return ids, nil
}
