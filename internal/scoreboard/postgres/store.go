// Package postgres provides a scoreboard.Store backed by PostgreSQL.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/bemo-assistant/bemo/internal/scoreboard"
)

// Schema is the SQL DDL for the game_scores table. Execute it via
// [Store.Migrate] or apply it manually.
const Schema = `
CREATE TABLE IF NOT EXISTS game_scores (
    game       TEXT PRIMARY KEY,
    wins       INTEGER NOT NULL DEFAULT 0,
    losses     INTEGER NOT NULL DEFAULT 0,
    ties       INTEGER NOT NULL DEFAULT 0,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// DB is the database interface used by [Store]. Both *pgxpool.Pool and
// *pgx.Conn satisfy it.
type DB interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// increments holds one upsert per result so the column name is never
// interpolated from input.
var increments = map[string]string{
	"win": `INSERT INTO game_scores (game, wins) VALUES ($1, 1)
ON CONFLICT (game) DO UPDATE SET wins = game_scores.wins + 1, updated_at = now()`,
	"loss": `INSERT INTO game_scores (game, losses) VALUES ($1, 1)
ON CONFLICT (game) DO UPDATE SET losses = game_scores.losses + 1, updated_at = now()`,
	"tie": `INSERT INTO game_scores (game, ties) VALUES ($1, 1)
ON CONFLICT (game) DO UPDATE SET ties = game_scores.ties + 1, updated_at = now()`,
}

// Store is a [scoreboard.Store] backed by the game_scores table.
type Store struct {
	db DB
}

var _ scoreboard.Store = (*Store)(nil)

// NewStore creates a Store over db. The caller is responsible for calling
// [Store.Migrate] before issuing queries.
func NewStore(db DB) *Store {
	return &Store{db: db}
}

// Migrate executes the [Schema] DDL, creating the table if it does not exist.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("scoreboard/postgres: migrate: %w", err)
	}
	return nil
}

// Increment atomically adds one to the counter for result of game.
func (s *Store) Increment(ctx context.Context, game, result string) error {
	q, ok := increments[result]
	if !ok {
		return fmt.Errorf("scoreboard/postgres: increment: %w", scoreboard.ErrInvalidResult)
	}
	if _, err := s.db.Exec(ctx, q, game); err != nil {
		return fmt.Errorf("scoreboard/postgres: increment %s: %w", game, err)
	}
	return nil
}

// Get returns the counters for game, or zero counts when it has none.
func (s *Store) Get(ctx context.Context, game string) (scoreboard.Counts, error) {
	var c scoreboard.Counts
	err := s.db.QueryRow(ctx,
		`SELECT wins, losses, ties FROM game_scores WHERE game = $1`, game,
	).Scan(&c.Win, &c.Loss, &c.Tie)
	if errors.Is(err, pgx.ErrNoRows) {
		return scoreboard.Counts{}, nil
	}
	if err != nil {
		return scoreboard.Counts{}, fmt.Errorf("scoreboard/postgres: get %s: %w", game, err)
	}
	return c, nil
}

// All returns the counters of every game.
func (s *Store) All(ctx context.Context) (map[string]scoreboard.Counts, error) {
	rows, err := s.db.Query(ctx, `SELECT game, wins, losses, ties FROM game_scores ORDER BY game`)
	if err != nil {
		return nil, fmt.Errorf("scoreboard/postgres: list: %w", err)
	}
	defer rows.Close()

	out := make(map[string]scoreboard.Counts)
	for rows.Next() {
		var (
			game string
			c    scoreboard.Counts
		)
		if err := rows.Scan(&game, &c.Win, &c.Loss, &c.Tie); err != nil {
			return nil, fmt.Errorf("scoreboard/postgres: list: scan: %w", err)
		}
		out[game] = c
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("scoreboard/postgres: list: %w", err)
	}
	return out, nil
}
