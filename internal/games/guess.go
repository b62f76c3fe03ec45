package games

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// GuessName is the scoreboard name of Guess the Number.
const GuessName = "guess_number"

const (
	guessMax      = 20
	guessAttempts = 5
)

// Guess is Guess the Number: find a number between 1 and 20 in five tries.
type Guess struct {
	rng      *rand.Rand
	target   int
	attempts int
}

var _ Game = (*Guess)(nil)

// NewGuess creates a Guess game.
func NewGuess(rng *rand.Rand) *Guess {
	return &Guess{rng: rng}
}

func (g *Guess) Name() string { return GuessName }

func (g *Guess) Start() Update {
	g.target = g.rng.IntN(guessMax) + 1
	g.attempts = 0
	return Update{
		Game:    GuessName,
		Text:    "I picked a number between 1 and 20. Try to guess!",
		Status:  "Guess a number between 1 and 20.",
		Buttons: numberButtons(10),
	}
}

func (g *Guess) HandleInput(text string) Update {
	if quits(text) {
		return Update{Game: GuessName, Text: "Exiting Guess the Number.", Done: true}
	}
	n, err := strconv.Atoi(strings.TrimSpace(text))
	if err != nil {
		return g.update("Please say a number between 1 and 20.")
	}

	g.attempts++
	switch {
	case n == g.target:
		u := g.update(fmt.Sprintf("You got it! The number was %d.", g.target))
		u.Done, u.Score = true, Win
		return u
	case g.attempts >= guessAttempts:
		u := g.update(fmt.Sprintf("Out of tries. The number was %d.", g.target))
		u.Done, u.Score = true, Loss
		return u
	case n < g.target:
		return g.update("Higher.")
	default:
		return g.update("Lower.")
	}
}

func (g *Guess) update(text string) Update {
	return Update{
		Game:    GuessName,
		Text:    text,
		Status:  fmt.Sprintf("Attempts: %d/%d", g.attempts, guessAttempts),
		Buttons: numberButtons(10),
	}
}

// numberButtons returns buttons "1" to "n".
func numberButtons(n int) []Button {
	out := make([]Button, n)
	for i := range out {
		s := strconv.Itoa(i + 1)
		out[i] = Button{Label: s, Value: s}
	}
	return out
}

func quits(text string) bool {
	return strings.Contains(strings.ToLower(text), "quit")
}
