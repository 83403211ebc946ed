package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func newMockStore(t *testing.T) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	return NewStoreWithPool(mock), mock
}

func strPtr(s string) *string { return &s }

func intPtr(v int) *int { return &v }

func f64Ptr(v float64) *float64 { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func TestApplyEventInserted(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	rec := hltv.EventRecord{
		ID:        8040,
		Name:      "BLAST Premier World Final",
		StartDate: timePtr(start),
		Location:  strPtr("Abu Dhabi, UAE"),
		PrizePool: strPtr("$1,000,000"),
	}

	mock.ExpectQuery("INSERT INTO events").
		WithArgs(rec.ID, rec.Name, rec.StartDate, rec.EndDate, rec.Location, rec.PrizePool, rec.EventType, rec.Status).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	out, err := store.ApplyEvent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeInserted, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventUpdated(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := hltv.EventRecord{ID: 8040, Name: "BLAST"}
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(rec.ID, rec.Name, rec.StartDate, rec.EndDate, rec.Location, rec.PrizePool, rec.EventType, rec.Status).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	out, err := store.ApplyEvent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeUpdated, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventUnchanged(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	// The no-op guard suppressed the update, so no row comes back.
	rec := hltv.EventRecord{ID: 8040, Name: "BLAST"}
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(rec.ID, rec.Name, rec.StartDate, rec.EndDate, rec.Location, rec.PrizePool, rec.EventType, rec.Status).
		WillReturnError(pgx.ErrNoRows)

	out, err := store.ApplyEvent(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeUnchanged, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventConnectivityFailure(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := hltv.EventRecord{ID: 8040}
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(rec.ID, rec.Name, rec.StartDate, rec.EndDate, rec.Location, rec.PrizePool, rec.EventType, rec.Status).
		WillReturnError(errors.New("connection refused"))

	_, err := store.ApplyEvent(context.Background(), rec)
	require.Error(t, err)
	require.True(t, hltv.IsConnectivity(err))
}

func TestApplyEventConstraintStaysUnitLevel(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := hltv.EventRecord{ID: 8040}
	mock.ExpectQuery("INSERT INTO events").
		WithArgs(rec.ID, rec.Name, rec.StartDate, rec.EndDate, rec.Location, rec.PrizePool, rec.EventType, rec.Status).
		WillReturnError(&pgconn.PgError{Code: "23503", Message: "fk violation"})

	_, err := store.ApplyEvent(context.Background(), rec)
	require.Error(t, err)
	require.False(t, hltv.IsConnectivity(err))
}

func TestApplyTeamWithRoster(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	observed := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	team := hltv.TeamRecord{ID: 4608, Name: "Natus Vincere", Country: strPtr("Ukraine"), WorldRank: intPtr(2)}
	roster := []hltv.RosterSeat{
		{PlayerID: 7998, Nickname: "s1mple", Role: "player"},
		{PlayerID: 13776, Nickname: "b1t", Role: "player"},
	}

	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO teams").
		WithArgs(team.ID, team.Name, team.Country, team.WorldRank).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))
	for _, seat := range roster {
		mock.ExpectExec("INSERT INTO players").
			WithArgs(seat.PlayerID, seat.Nickname).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO team_players").
			WithArgs(team.ID, seat.PlayerID, seat.Nickname, seat.Role, observed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	out, err := store.ApplyTeam(context.Background(), team, roster, observed)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeInserted, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyTeamRollsBackOnRosterFailure(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	observed := time.Now().UTC()
	team := hltv.TeamRecord{ID: 4608, Name: "NAVI"}
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO teams").
		WithArgs(team.ID, team.Name, team.Country, team.WorldRank).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))
	mock.ExpectExec("INSERT INTO players").
		WithArgs(int64(7998), "s1mple").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := store.ApplyTeam(context.Background(), team,
		[]hltv.RosterSeat{{PlayerID: 7998, Nickname: "s1mple"}}, observed)
	require.Error(t, err)
	require.True(t, hltv.IsConnectivity(err))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPlayerWithStats(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := hltv.PlayerRecord{
		ID:       7998,
		Nickname: "s1mple",
		RealName: strPtr("Oleksandr"),
		Country:  strPtr("Ukraine"),
		Age:      intPtr(28),
		Stats: &hltv.PlayerStats{
			Maps:   intPtr(1620),
			Kills:  intPtr(18457),
			Rating: f64Ptr(1.21),
		},
	}

	mock.ExpectQuery("INSERT INTO players").
		WithArgs(rec.ID, rec.Nickname, rec.RealName, rec.Country, rec.Age, true, rec.CurrentTeamID,
			rec.Stats.Maps, rec.Stats.Rounds, rec.Stats.Kills, rec.Stats.Deaths,
			rec.Stats.KDRatio, rec.Stats.HeadshotPct, rec.Stats.Rating,
			rec.Stats.KillsPerRnd, rec.Stats.AssistsPerRd, rec.Stats.KAST,
			rec.Stats.Impact, rec.Stats.ADR).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(true))

	out, err := store.ApplyPlayer(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeInserted, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyPlayerWithoutStatsPassesFalseFlag(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	rec := hltv.PlayerRecord{ID: 11893, Nickname: "ZywOo"}
	var nilInt *int
	var nilF64 *float64

	mock.ExpectQuery("INSERT INTO players").
		WithArgs(rec.ID, rec.Nickname, rec.RealName, rec.Country, rec.Age, false, rec.CurrentTeamID,
			nilInt, nilInt, nilInt, nilInt, nilF64, nilF64, nilF64,
			nilF64, nilF64, nilF64, nilF64, nilF64).
		WillReturnRows(pgxmock.NewRows([]string{"inserted"}).AddRow(false))

	out, err := store.ApplyPlayer(context.Background(), rec)
	require.NoError(t, err)
	require.Equal(t, hltv.OutcomeUpdated, out)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventResultsCreatesParents(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	placements := []hltv.Placement{
		{TeamID: 4608, TeamName: "Natus Vincere", Placement: intPtr(1), Prize: strPtr("$500,000")},
		{TeamID: 6665, TeamName: "Astralis", Placement: intPtr(2)},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(8040)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	for _, p := range placements {
		mock.ExpectExec("INSERT INTO teams").
			WithArgs(p.TeamID, p.TeamName).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mock.ExpectExec("INSERT INTO event_teams").
			WithArgs(int64(8040), p.TeamID, p.TeamName, p.Placement, p.Prize).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
	}
	mock.ExpectCommit()

	err := store.ApplyEventResults(context.Background(), 8040, placements)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestApplyEventStatsRefreshesRows(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	stats := []hltv.EventStatRecord{
		{EventID: 8040, PlayerID: 7998, Nickname: "s1mple", Rating: f64Ptr(1.31), MapsPlayed: intPtr(24)},
	}

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO events").
		WithArgs(int64(8040)).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO players").
		WithArgs(int64(7998), "s1mple").
		WillReturnResult(pgxmock.NewResult("INSERT", 0))
	mock.ExpectExec("INSERT INTO event_stats").
		WithArgs(int64(8040), int64(7998), "s1mple", stats[0].Rating, stats[0].MapsPlayed).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := store.ApplyEventStats(context.Background(), 8040, stats)
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
