package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

func TestIsComplete(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT EXISTS").
		WithArgs("event:id=8040:full", "event-overview:8040").
		WillReturnRows(pgxmock.NewRows([]string{"exists"}).AddRow(true))

	done, err := store.IsComplete(context.Background(), "event:id=8040:full", "event-overview:8040")
	require.NoError(t, err)
	require.True(t, done)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkCompleteIdempotent(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	at := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("INSERT INTO sync_checkpoints").
		WithArgs("event:id=8040:full", "event-overview:8040", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO sync_checkpoints").
		WithArgs("event:id=8040:full", "event-overview:8040", at).
		WillReturnResult(pgxmock.NewResult("INSERT", 0))

	require.NoError(t, store.MarkComplete(context.Background(), "event:id=8040:full", "event-overview:8040", at))
	require.NoError(t, store.MarkComplete(context.Background(), "event:id=8040:full", "event-overview:8040", at))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterUnseenPreservesOrder(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	ids := []int64{10, 20, 30, 40}
	// 20 and 40 already have rows; order of the seen result set must
	// not matter.
	mock.ExpectQuery("SELECT id FROM events").
		WithArgs(ids).
		WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow(int64(40)).AddRow(int64(20)))

	unseen, err := store.FilterUnseen(context.Background(), hltv.KindEvent, ids)
	require.NoError(t, err)
	require.Equal(t, []int64{10, 30}, unseen)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestFilterUnseenEmptyInput(t *testing.T) {
	t.Parallel()
	store, _ := newMockStore(t)

	unseen, err := store.FilterUnseen(context.Background(), hltv.KindTeam, nil)
	require.NoError(t, err)
	require.Empty(t, unseen)
}

func TestEventTeamIDs(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT team_id FROM event_teams").
		WithArgs(int64(8040)).
		WillReturnRows(pgxmock.NewRows([]string{"team_id"}).AddRow(int64(4608)).AddRow(int64(6665)))

	ids, err := store.EventTeamIDs(context.Background(), 8040)
	require.NoError(t, err)
	require.Equal(t, []int64{4608, 6665}, ids)
}

func TestRosterPlayerIDs(t *testing.T) {
	t.Parallel()
	store, mock := newMockStore(t)

	mock.ExpectQuery("SELECT player_id FROM team_players").
		WithArgs(int64(4608)).
		WillReturnRows(pgxmock.NewRows([]string{"player_id"}).AddRow(int64(7998)).AddRow(int64(13776)))

	ids, err := store.RosterPlayerIDs(context.Background(), 4608)
	require.NoError(t, err)
	require.Equal(t, []int64{7998, 13776}, ids)
}
