package games

import (
	"fmt"
	"math/rand/v2"
	"strings"
)

// RPSName is the scoreboard name of Rock Paper Scissors.
const RPSName = "rock_paper_scissors"

var rpsChoices = []string{"rock", "paper", "scissors"}

// beats maps each choice to the one it defeats.
var beats = map[string]string{"rock": "scissors", "paper": "rock", "scissors": "paper"}

// RPS is Rock Paper Scissors. Every round is scored; the game runs until the
// user quits.
type RPS struct {
	rng *rand.Rand
}

var _ Game = (*RPS)(nil)

// NewRPS creates an RPS game.
func NewRPS(rng *rand.Rand) *RPS {
	return &RPS{rng: rng}
}

func (g *RPS) Name() string { return RPSName }

func (g *RPS) Start() Update {
	return Update{
		Game:    RPSName,
		Text:    "Rock, paper, or scissors?",
		Status:  "Choose rock, paper, or scissors.",
		Buttons: rpsButtons(),
	}
}

func (g *RPS) HandleInput(text string) Update {
	if quits(text) {
		return Update{Game: RPSName, Text: "Exiting Rock Paper Scissors.", Done: true}
	}
	choice := parseRPS(text)
	if choice == "" {
		return Update{Game: RPSName, Text: "Say rock, paper, or scissors.", Buttons: rpsButtons()}
	}
	ai := rpsChoices[g.rng.IntN(len(rpsChoices))]

	var (
		result Result
		msg    string
	)
	switch {
	case choice == ai:
		result, msg = Tie, fmt.Sprintf("I picked %s. It's a tie.", ai)
	case beats[choice] == ai:
		result, msg = Win, fmt.Sprintf("I picked %s. You win!", ai)
	default:
		result, msg = Loss, fmt.Sprintf("I picked %s. I win!", ai)
	}
	return Update{Game: RPSName, Text: msg, Status: "Play again?", Buttons: rpsButtons(), Score: result}
}

// parseRPS returns the first choice mentioned in text, in rock, paper,
// scissors order.
func parseRPS(text string) string {
	t := strings.ToLower(text)
	for _, c := range rpsChoices {
		if strings.Contains(t, c) {
			return c
		}
	}
	return ""
}

func rpsButtons() []Button {
	return []Button{{Label: "Rock", Value: "rock"}, {Label: "Paper", Value: "paper"}, {Label: "Scissors", Value: "scissors"}}
}
