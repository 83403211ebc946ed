// Package postgres implements the relational store behind the
// reconciler, the checkpoint log and the planner index.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hltv-tools/hltv-sync/internal/config"
	"github.com/hltv-tools/hltv-sync/internal/hltv"
)

// DB is the pool surface the store needs; satisfied by *pgxpool.Pool
// and by pgxmock pools in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// Store implements hltv.Reconciler, hltv.CheckpointStore and
// hltv.StoreIndex on Postgres.
type Store struct {
	db DB
}

// NewStore opens a connection pool from config and wraps it.
func NewStore(ctx context.Context, cfg config.DBConfig) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("db.dsn is required")
	}
	pc, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		pc.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		pc.MinConns = cfg.MinConns
	}
	if cfg.ConnLifetime > 0 {
		pc.MaxConnLifetime = time.Duration(cfg.ConnLifetime) * time.Second
	}
	pool, err := pgxpool.NewWithConfig(ctx, pc)
	if err != nil {
		return nil, fmt.Errorf("create connection pool: %w", err)
	}
	return &Store{db: pool}, nil
}

// NewStoreWithPool wraps an existing pool; used by tests.
func NewStoreWithPool(db DB) *Store {
	return &Store{db: db}
}

// Close closes the underlying pool.
func (s *Store) Close() {
	s.db.Close()
}

const schemaDDL = `
CREATE TABLE IF NOT EXISTS events (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	start_date  TIMESTAMPTZ,
	end_date    TIMESTAMPTZ,
	location    TEXT,
	prize_pool  TEXT,
	event_type  TEXT,
	status      TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS teams (
	id          BIGINT PRIMARY KEY,
	name        TEXT NOT NULL DEFAULT '',
	country     TEXT,
	world_rank  INT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS players (
	id               BIGINT PRIMARY KEY,
	nickname         TEXT NOT NULL DEFAULT '',
	real_name        TEXT,
	country          TEXT,
	age              INT,
	current_team_id  BIGINT,
	stat_maps        INT,
	stat_rounds      INT,
	stat_kills       INT,
	stat_deaths      INT,
	stat_kd_ratio    DOUBLE PRECISION,
	stat_hs_pct      DOUBLE PRECISION,
	stat_rating      DOUBLE PRECISION,
	stat_kpr         DOUBLE PRECISION,
	stat_apr         DOUBLE PRECISION,
	stat_kast        DOUBLE PRECISION,
	stat_impact      DOUBLE PRECISION,
	stat_adr         DOUBLE PRECISION,
	updated_at       TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS event_teams (
	event_id    BIGINT NOT NULL REFERENCES events(id),
	team_id     BIGINT NOT NULL REFERENCES teams(id),
	team_name   TEXT NOT NULL DEFAULT '',
	placement   INT,
	prize       TEXT,
	updated_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, team_id)
);

CREATE TABLE IF NOT EXISTS team_players (
	team_id      BIGINT NOT NULL REFERENCES teams(id),
	player_id    BIGINT NOT NULL REFERENCES players(id),
	nickname     TEXT NOT NULL DEFAULT '',
	role         TEXT NOT NULL DEFAULT 'player',
	observed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (team_id, player_id, observed_at)
);

CREATE TABLE IF NOT EXISTS event_stats (
	event_id     BIGINT NOT NULL REFERENCES events(id),
	player_id    BIGINT NOT NULL REFERENCES players(id),
	nickname     TEXT NOT NULL DEFAULT '',
	rating       DOUBLE PRECISION,
	maps_played  INT,
	updated_at   TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (event_id, player_id)
);

CREATE TABLE IF NOT EXISTS sync_checkpoints (
	scope_key     TEXT NOT NULL,
	unit_key      TEXT NOT NULL,
	completed_at  TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (scope_key, unit_key)
);
`

// EnsureSchema creates all tables if absent. Safe to call on every
// startup.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range strings.Split(schemaDDL, ";") {
		stmt = strings.TrimSpace(stmt)
		if stmt == "" {
			continue
		}
		if _, err := s.db.Exec(ctx, stmt); err != nil {
			return classify(fmt.Errorf("ensure schema: %w", err))
		}
	}
	return nil
}

// classify wraps a database error as a PersistenceError, deciding
// whether it escalates the run. Integrity violations (SQLSTATE class
// 23) stay scoped to the unit that produced them; everything else is
// treated as store connectivity loss.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && strings.HasPrefix(pgErr.Code, "23") {
		return &hltv.PersistenceError{Err: err}
	}
	return &hltv.PersistenceError{Err: err, Connectivity: true}
}
