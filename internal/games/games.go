// Package games implements the voice mini-games and the manager that routes
// user input to the active one.
//
// A [Game] is a small state machine driven by text: [Game.Start] opens a
// round and [Game.HandleInput] consumes one user reply. Both return an
// [Update] carrying what the assistant says, a status line and quick-reply
// buttons for the UI, whether the game ended, and an optional score event.
// Every game ends when the user says "quit".
package games

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"

	"github.com/bemo-assistant/bemo/internal/observe"
)

// Result is a scored outcome from the user's point of view.
type Result string

const (
	Win  Result = "win"
	Loss Result = "loss"
	Tie  Result = "tie"
)

// Button is a quick reply offered by the UI. Value is sent back as input.
type Button struct {
	Label string `json:"label"`
	Value string `json:"value"`
}

// Update is what a game says after starting or handling input.
type Update struct {
	// Game is the scoreboard name of the game, e.g. "guess_number".
	Game string `json:"game"`

	// Text is spoken and shown in the transcript.
	Text string `json:"text"`

	// Status is a short hint line for the UI.
	Status string `json:"status"`

	Buttons []Button `json:"buttons"`

	// Done reports that the game has ended.
	Done bool `json:"done"`

	// Score is set when the input completed a scored round.
	Score Result `json:"score,omitempty"`
}

// Game is one mini-game. Implementations are not safe for concurrent use;
// the [Manager] serialises access.
type Game interface {
	// Name returns the scoreboard name.
	Name() string

	// Start resets the game and opens a new round.
	Start() Update

	// HandleInput consumes one user reply.
	HandleInput(text string) Update
}

// Factory creates a game using rng for its random choices.
type Factory func(rng *rand.Rand) Game

// Entry describes a registered game.
type Entry struct {
	// Key selects the game, e.g. "guess".
	Key string

	// Label is the human-readable title.
	Label string

	// Name is the scoreboard name.
	Name string

	New Factory
}

// Registry maps game keys to factories, keeping registration order.
type Registry struct {
	entries []Entry
}

// NewRegistry returns a Registry holding the built-in games.
func NewRegistry(opts ...TriviaOption) *Registry {
	r := &Registry{}
	r.Register(Entry{Key: "guess", Label: "Guess Number", Name: GuessName, New: func(rng *rand.Rand) Game { return NewGuess(rng) }})
	r.Register(Entry{Key: "rps", Label: "Rock Paper Scissors", Name: RPSName, New: func(rng *rand.Rand) Game { return NewRPS(rng) }})
	r.Register(Entry{Key: "trivia", Label: "Trivia", Name: TriviaName, New: func(rng *rand.Rand) Game { return NewTrivia(rng, opts...) }})
	r.Register(Entry{Key: "tictactoe", Label: "Tic Tac Toe", Name: TicTacToeName, New: func(rng *rand.Rand) Game { return NewTicTacToe(rng) }})
	return r
}

// Register adds or replaces the entry for e.Key.
func (r *Registry) Register(e Entry) {
	for i := range r.entries {
		if r.entries[i].Key == e.Key {
			r.entries[i] = e
			return
		}
	}
	r.entries = append(r.entries, e)
}

// Lookup returns the entry for key.
func (r *Registry) Lookup(key string) (Entry, bool) {
	for _, e := range r.entries {
		if e.Key == key {
			return e, true
		}
	}
	return Entry{}, false
}

// Entries returns every entry in registration order.
func (r *Registry) Entries() []Entry {
	out := make([]Entry, len(r.entries))
	copy(out, r.entries)
	return out
}

// Scoreboard persists game results. *scoreboard.Board satisfies it.
type Scoreboard interface {
	Record(ctx context.Context, game, result string) error
	Summary(ctx context.Context, game string) (string, error)
}

// ErrUnknownGame is returned when a key is not registered.
var ErrUnknownGame = errors.New("games: unknown game")

// ManagerOption is a functional option for [Manager].
type ManagerOption func(*Manager)

// WithRand sets the random source shared by every game. Default: a
// randomly seeded PCG.
func WithRand(rng *rand.Rand) ManagerOption {
	return func(m *Manager) { m.rng = rng }
}

// WithMetrics sets the metrics sink. Default: observe.DefaultMetrics().
func WithMetrics(met *observe.Metrics) ManagerOption {
	return func(m *Manager) { m.metrics = met }
}

// Manager holds one instance of every registered game and tracks which one,
// if any, is active. It is safe for concurrent use.
type Manager struct {
	registry *Registry
	board    Scoreboard
	rng      *rand.Rand
	metrics  *observe.Metrics

	mu     sync.Mutex
	games  map[string]Game
	active string
}

// NewManager creates a Manager over registry that records scores on board.
func NewManager(registry *Registry, board Scoreboard, opts ...ManagerOption) (*Manager, error) {
	if registry == nil {
		return nil, errors.New("games: registry must not be nil")
	}
	if board == nil {
		return nil, errors.New("games: scoreboard must not be nil")
	}
	m := &Manager{
		registry: registry,
		board:    board,
		games:    make(map[string]Game),
	}
	for _, o := range opts {
		o(m)
	}
	if m.rng == nil {
		m.rng = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if m.metrics == nil {
		m.metrics = observe.DefaultMetrics()
	}
	return m, nil
}

// Active reports whether a game is in progress.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active != ""
}

// ActiveKey returns the key of the game in progress, or "".
func (m *Manager) ActiveKey() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active
}

// Start makes key the active game and opens a round. Starting a game while
// another is active replaces it.
func (m *Manager) Start(key string) (Update, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.registry.Lookup(key)
	if !ok {
		return Update{}, fmt.Errorf("%w: %q", ErrUnknownGame, key)
	}
	g, ok := m.games[key]
	if !ok {
		g = entry.New(m.rng)
		m.games[key] = g
	}
	m.active = key
	u := g.Start()
	if u.Done {
		m.active = ""
	}
	slog.Info("games: started", "game", key)
	return u, nil
}

// HandleInput forwards text to the active game, records any score event and
// ends the game when it reports done. It returns false when no game is
// active.
func (m *Manager) HandleInput(ctx context.Context, text string) (Update, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active == "" {
		return Update{}, false
	}
	g := m.games[m.active]
	u := g.HandleInput(text)
	if u.Score != "" {
		if err := m.board.Record(ctx, g.Name(), string(u.Score)); err != nil {
			slog.Warn("games: record score", "game", g.Name(), "result", u.Score, "err", err)
		}
		m.metrics.RecordGameResult(ctx, g.Name(), string(u.Score))
	}
	if u.Done {
		slog.Info("games: ended", "game", m.active)
		m.active = ""
	}
	return u, true
}

// Stop abandons the active game without scoring.
func (m *Manager) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.active = ""
}

// Summary returns the scoreboard line for the game with the given key or
// scoreboard name.
func (m *Manager) Summary(ctx context.Context, game string) (string, error) {
	if e, ok := m.registry.Lookup(game); ok {
		game = e.Name
	}
	return m.board.Summary(ctx, game)
}
