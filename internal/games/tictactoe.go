package games

import (
	"fmt"
	"math/rand/v2"
	"strconv"
	"strings"
)

// TicTacToeName is the scoreboard name of Tic Tac Toe.
const TicTacToeName = "tictactoe"

const (
	empty  = ' '
	player = 'X'
	ai     = 'O'
)

var winLines = [8][3]int{
	{0, 1, 2}, {3, 4, 5}, {6, 7, 8},
	{0, 3, 6}, {1, 4, 7}, {2, 5, 8},
	{0, 4, 8}, {2, 4, 6},
}

// squareNames maps spoken positions to board indexes. Longer names come
// first so "bottom center" is not read as "center".
var squareNames = []struct {
	name string
	idx  int
}{
	{"top left", 0}, {"top center", 1}, {"top right", 2},
	{"middle left", 3}, {"middle right", 5},
	{"bottom left", 6}, {"bottom center", 7}, {"bottom right", 8},
	{"center", 4},
}

// TicTacToe is X (the user) against O (the assistant). The assistant wins
// when it can, blocks when it must, prefers the centre and otherwise picks a
// random free square.
type TicTacToe struct {
	rng   *rand.Rand
	board [9]rune
}

var _ Game = (*TicTacToe)(nil)

// NewTicTacToe creates a TicTacToe game.
func NewTicTacToe(rng *rand.Rand) *TicTacToe {
	g := &TicTacToe{rng: rng}
	g.reset()
	return g
}

func (g *TicTacToe) Name() string { return TicTacToeName }

func (g *TicTacToe) reset() {
	for i := range g.board {
		g.board[i] = empty
	}
}

func (g *TicTacToe) Start() Update {
	g.reset()
	return g.update("Tic Tac Toe! You are X. Pick a spot 1-9.")
}

func (g *TicTacToe) HandleInput(text string) Update {
	if quits(text) {
		return Update{Game: TicTacToeName, Text: "Exiting Tic Tac Toe.", Done: true}
	}
	move, ok := parseSquare(text)
	if !ok {
		return g.update("Pick a square 1-9 or say top left, center, etc.")
	}
	if g.board[move] != empty {
		return g.update("That spot is taken. Try another.")
	}

	g.board[move] = player
	if g.wins(player) {
		return g.final(fmt.Sprintf("You win!\n%s", g.boardText()), Win)
	}
	if g.full() {
		return g.final(fmt.Sprintf("It's a draw.\n%s", g.boardText()), Tie)
	}
	g.aiMove()
	if g.wins(ai) {
		return g.final(fmt.Sprintf("I win!\n%s", g.boardText()), Loss)
	}
	if g.full() {
		return g.final(fmt.Sprintf("It's a draw.\n%s", g.boardText()), Tie)
	}
	return g.update(g.boardText())
}

func (g *TicTacToe) aiMove() {
	free := g.free()
	for _, idx := range free {
		g.board[idx] = ai
		if g.wins(ai) {
			return
		}
		g.board[idx] = empty
	}
	for _, idx := range free {
		g.board[idx] = player
		if g.wins(player) {
			g.board[idx] = ai
			return
		}
		g.board[idx] = empty
	}
	if g.board[4] == empty {
		g.board[4] = ai
		return
	}
	g.board[free[g.rng.IntN(len(free))]] = ai
}

func (g *TicTacToe) free() []int {
	var out []int
	for i, v := range g.board {
		if v == empty {
			out = append(out, i)
		}
	}
	return out
}

func (g *TicTacToe) wins(symbol rune) bool {
	for _, l := range winLines {
		if g.board[l[0]] == symbol && g.board[l[1]] == symbol && g.board[l[2]] == symbol {
			return true
		}
	}
	return false
}

func (g *TicTacToe) full() bool {
	for _, v := range g.board {
		if v == empty {
			return false
		}
	}
	return true
}

// boardText renders the board with free squares shown by number.
func (g *TicTacToe) boardText() string {
	cell := func(i int) string {
		if g.board[i] == empty {
			return strconv.Itoa(i + 1)
		}
		return string(g.board[i])
	}
	rows := make([]string, 3)
	for r := range rows {
		rows[r] = fmt.Sprintf("%s | %s | %s", cell(r*3), cell(r*3+1), cell(r*3+2))
	}
	return strings.Join(rows, "\n")
}

func (g *TicTacToe) update(text string) Update {
	return Update{
		Game:    TicTacToeName,
		Text:    text,
		Status:  "Say a number 1-9 or 'quit' to stop.",
		Buttons: numberButtons(9),
	}
}

func (g *TicTacToe) final(text string, r Result) Update {
	u := g.update(text)
	u.Done, u.Score = true, r
	return u
}

func parseSquare(text string) (int, bool) {
	t := strings.ToLower(strings.TrimSpace(text))
	if n, err := strconv.Atoi(t); err == nil && !strings.ContainsAny(t, "+-") {
		if n >= 1 && n <= 9 {
			return n - 1, true
		}
	}
	for _, s := range squareNames {
		if strings.Contains(t, s.name) {
			return s.idx, true
		}
	}
	return 0, false
}
