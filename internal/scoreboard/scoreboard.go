// Package scoreboard persists per-game win, loss and tie counters.
//
// A [Board] validates results and renders the summary line shown after a
// game. Counters live in a [Store]: [FileStore] keeps them in a JSON file in
// the data directory and the postgres sub-package keeps them in a table.
package scoreboard

import (
	"context"
	"errors"
	"fmt"
)

// DefaultFileName is the scoreboard file inside the data directory.
const DefaultFileName = "scoreboard.json"

// Counts holds the counters of one game.
type Counts struct {
	Win  int `json:"win"`
	Loss int `json:"loss"`
	Tie  int `json:"tie"`
}

// Summary renders c as "Wins: W  Losses: L  Ties: T".
func (c Counts) Summary() string {
	return fmt.Sprintf("Wins: %d  Losses: %d  Ties: %d", c.Win, c.Loss, c.Tie)
}

// add returns c with the counter for result incremented.
func (c Counts) add(result string) Counts {
	switch result {
	case "win":
		c.Win++
	case "loss":
		c.Loss++
	case "tie":
		c.Tie++
	}
	return c
}

// ErrInvalidResult is returned for a result other than win, loss or tie.
var ErrInvalidResult = errors.New("scoreboard: result must be win, loss or tie")

// Store persists counters. Implementations must be safe for concurrent use.
type Store interface {
	// Increment adds one to the counter for result of game. result is one
	// of "win", "loss" or "tie".
	Increment(ctx context.Context, game, result string) error

	// Get returns the counters for game. An unknown game has zero counts.
	Get(ctx context.Context, game string) (Counts, error)
}

// Board records terminal game outcomes on a [Store].
type Board struct {
	store Store
}

// New creates a Board over store.
func New(store Store) (*Board, error) {
	if store == nil {
		return nil, errors.New("scoreboard: store must not be nil")
	}
	return &Board{store: store}, nil
}

// Record increments exactly one counter of game.
func (b *Board) Record(ctx context.Context, game, result string) error {
	if game == "" {
		return errors.New("scoreboard: game must not be empty")
	}
	switch result {
	case "win", "loss", "tie":
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidResult, result)
	}
	if err := b.store.Increment(ctx, game, result); err != nil {
		return fmt.Errorf("scoreboard: record %s %s: %w", game, result, err)
	}
	return nil
}

// Counts returns the counters of game.
func (b *Board) Counts(ctx context.Context, game string) (Counts, error) {
	c, err := b.store.Get(ctx, game)
	if err != nil {
		return Counts{}, fmt.Errorf("scoreboard: get %s: %w", game, err)
	}
	return c, nil
}

// Summary returns the summary line of game.
func (b *Board) Summary(ctx context.Context, game string) (string, error) {
	c, err := b.Counts(ctx, game)
	if err != nil {
		return "", err
	}
	return c.Summary(), nil
}
