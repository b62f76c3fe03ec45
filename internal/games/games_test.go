package games

import (
	"context"
	"errors"
	"math/rand/v2"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/bemo-assistant/bemo/internal/observe"
	"github.com/bemo-assistant/bemo/internal/scoreboard"
	"github.com/bemo-assistant/bemo/internal/scoreboard/mock"
)

func testRand() *rand.Rand { return rand.New(rand.NewPCG(1, 2)) }

func newFileManager(t *testing.T) (*Manager, *scoreboard.Board) {
	t.Helper()
	store, err := scoreboard.NewFileStore(filepath.Join(t.TempDir(), scoreboard.DefaultFileName))
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	board, err := scoreboard.New(store)
	if err != nil {
		t.Fatalf("scoreboard.New: %v", err)
	}
	m, err := NewManager(NewRegistry(), board, WithRand(testRand()))
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	return m, board
}

// ─── Manager ────────────────────────────────────────────────────────────────

func TestManager_GuessWinIncrementsWinOnly(t *testing.T) {
	t.Parallel()
	ctx := context.Background()
	m, board := newFileManager(t)

	_ = board.Record(ctx, GuessName, "loss")
	before, _ := board.Counts(ctx, GuessName)

	if _, err := m.Start("guess"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	target := m.games["guess"].(*Guess).target

	u, ok := m.HandleInput(ctx, strconv.Itoa(target))
	if !ok {
		t.Fatal("HandleInput reported no active game")
	}
	if u.Score != Win || !u.Done {
		t.Fatalf("update = %+v, want a finished win", u)
	}
	if m.Active() {
		t.Error("game still active after win")
	}

	after, _ := board.Counts(ctx, GuessName)
	want := before
	want.Win++
	if after != want {
		t.Errorf("counts = %+v, want %+v", after, want)
	}
	summary, err := m.Summary(ctx, "guess")
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if summary != "Wins: 1  Losses: 1  Ties: 0" {
		t.Errorf("Summary = %q", summary)
	}
}

func TestManager_NoActiveGame(t *testing.T) {
	t.Parallel()
	m, _ := newFileManager(t)
	if _, ok := m.HandleInput(context.Background(), "5"); ok {
		t.Error("HandleInput handled text with no active game")
	}
	if m.ActiveKey() != "" {
		t.Errorf("ActiveKey = %q", m.ActiveKey())
	}
}

func TestManager_StartUnknown(t *testing.T) {
	t.Parallel()
	m, _ := newFileManager(t)
	if _, err := m.Start("chess"); !errors.Is(err, ErrUnknownGame) {
		t.Errorf("Start error = %v, want ErrUnknownGame", err)
	}
}

func TestManager_StopAbandonsWithoutScoring(t *testing.T) {
	t.Parallel()
	store := &mock.Store{}
	board, _ := scoreboard.New(store)
	m, _ := NewManager(NewRegistry(), board, WithRand(testRand()))

	if _, err := m.Start("rps"); err != nil {
		t.Fatalf("Start: %v", err)
	}
	if m.ActiveKey() != "rps" {
		t.Fatalf("ActiveKey = %q", m.ActiveKey())
	}
	m.Stop()
	if m.Active() {
		t.Error("game still active after Stop")
	}
	if len(store.Calls()) != 0 {
		t.Errorf("Stop recorded %d scores", len(store.Calls()))
	}
}

func TestManager_QuitEndsWithoutScoring(t *testing.T) {
	t.Parallel()
	store := &mock.Store{}
	board, _ := scoreboard.New(store)
	m, _ := NewManager(NewRegistry(), board, WithRand(testRand()))

	for _, key := range []string{"guess", "rps", "trivia", "tictactoe"} {
		if _, err := m.Start(key); err != nil {
			t.Fatalf("Start(%s): %v", key, err)
		}
		u, ok := m.HandleInput(context.Background(), "I quit")
		if !ok || !u.Done || !strings.HasPrefix(u.Text, "Exiting") {
			t.Errorf("%s: quit update = %+v", key, u)
		}
		if m.Active() {
			t.Errorf("%s still active after quit", key)
		}
	}
	if len(store.Calls()) != 0 {
		t.Errorf("quitting recorded %d scores", len(store.Calls()))
	}
}

func TestManager_StartDoneGameStaysInactive(t *testing.T) {
	t.Parallel()
	board, _ := scoreboard.New(&mock.Store{})
	m, _ := NewManager(NewRegistry(WithQuestions(nil)), board)

	u, err := m.Start("trivia")
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if !u.Done || u.Text != "No trivia questions available." {
		t.Errorf("update = %+v", u)
	}
	if m.Active() {
		t.Error("trivia active without questions")
	}
}

func TestManager_ScoreErrorIsNotFatal(t *testing.T) {
	t.Parallel()
	board, _ := scoreboard.New(&mock.Store{IncrementErr: errors.New("read-only")})
	m, _ := NewManager(NewRegistry(), board, WithRand(testRand()))

	_, _ = m.Start("rps")
	u, ok := m.HandleInput(context.Background(), "paper")
	if !ok || u.Score == "" {
		t.Fatalf("update = %+v", u)
	}
	if !m.Active() {
		t.Error("rps ended after a failed score write")
	}
}

func TestManager_RecordsMetrics(t *testing.T) {
	t.Parallel()
	reader := sdkmetric.NewManualReader()
	met, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}
	board, _ := scoreboard.New(&mock.Store{})
	m, _ := NewManager(NewRegistry(), board, WithRand(testRand()), WithMetrics(met))

	_, _ = m.Start("rps")
	_, _ = m.HandleInput(context.Background(), "rock")

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	for _, sm := range rm.ScopeMetrics {
		for _, md := range sm.Metrics {
			if md.Name == "bemo.game.results" {
				return
			}
		}
	}
	t.Error("bemo.game.results not recorded")
}

func TestNewManager_Validation(t *testing.T) {
	t.Parallel()
	board, _ := scoreboard.New(&mock.Store{})
	if _, err := NewManager(nil, board); err == nil {
		t.Error("expected error for nil registry")
	}
	if _, err := NewManager(NewRegistry(), nil); err == nil {
		t.Error("expected error for nil scoreboard")
	}
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r := NewRegistry()

	var labels []string
	for _, e := range r.Entries() {
		labels = append(labels, e.Label)
	}
	if got := strings.Join(labels, ","); got != "Guess Number,Rock Paper Scissors,Trivia,Tic Tac Toe" {
		t.Errorf("labels = %s", got)
	}

	r.Register(Entry{Key: "rps", Label: "RPS", Name: RPSName, New: func(rng *rand.Rand) Game { return NewRPS(rng) }})
	if len(r.Entries()) != 4 {
		t.Errorf("re-registering added an entry")
	}
	if e, ok := r.Lookup("rps"); !ok || e.Label != "RPS" {
		t.Errorf("Lookup(rps) = %+v, %v", e, ok)
	}
	if _, ok := r.Lookup("chess"); ok {
		t.Error("Lookup(chess) found an entry")
	}
}

// ─── Guess ──────────────────────────────────────────────────────────────────

func TestGuess_HigherLowerAndLoss(t *testing.T) {
	t.Parallel()
	g := NewGuess(testRand())
	start := g.Start()
	if start.Text != "I picked a number between 1 and 20. Try to guess!" || len(start.Buttons) != 10 {
		t.Fatalf("Start = %+v", start)
	}
	g.target = 10

	if u := g.HandleInput("3"); u.Text != "Higher." || u.Status != "Attempts: 1/5" {
		t.Errorf("guess 3 = %+v", u)
	}
	if u := g.HandleInput("15"); u.Text != "Lower." {
		t.Errorf("guess 15 = %+v", u)
	}
	if u := g.HandleInput("ten"); u.Text != "Please say a number between 1 and 20." || u.Status != "Attempts: 2/5" {
		t.Errorf("non-number = %+v", u)
	}
	_ = g.HandleInput("4")
	_ = g.HandleInput("5")
	u := g.HandleInput("6")
	if !u.Done || u.Score != Loss || u.Text != "Out of tries. The number was 10." {
		t.Errorf("fifth miss = %+v", u)
	}
}

func TestGuess_StartResetsAttempts(t *testing.T) {
	t.Parallel()
	g := NewGuess(testRand())
	g.Start()
	g.target = 20
	_ = g.HandleInput("1")
	g.Start()
	if g.attempts != 0 || g.target < 1 || g.target > 20 {
		t.Errorf("after restart attempts=%d target=%d", g.attempts, g.target)
	}
}

// ─── Rock Paper Scissors ────────────────────────────────────────────────────

func TestRPS_Outcomes(t *testing.T) {
	t.Parallel()
	g := NewRPS(testRand())
	if u := g.Start(); u.Text != "Rock, paper, or scissors?" || len(u.Buttons) != 3 {
		t.Fatalf("Start = %+v", u)
	}

	seen := map[Result]bool{}
	for range 60 {
		u := g.HandleInput("rock")
		var want Result
		switch {
		case strings.HasPrefix(u.Text, "I picked rock."):
			want = Tie
		case strings.HasPrefix(u.Text, "I picked scissors."):
			want = Win
		case strings.HasPrefix(u.Text, "I picked paper."):
			want = Loss
		default:
			t.Fatalf("unexpected reply %q", u.Text)
		}
		if u.Score != want || u.Done {
			t.Errorf("%q scored %q done=%v, want %q", u.Text, u.Score, u.Done, want)
		}
		seen[u.Score] = true
	}
	if len(seen) != 3 {
		t.Errorf("saw outcomes %v in 60 rounds", seen)
	}
}

func TestRPS_ParseChoice(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in   string
		want string
	}{
		{"Rock!", "rock"},
		{"I choose scissors", "scissors"},
		{"paper or rock", "rock"},
		{"lizard", ""},
	}
	for _, tt := range tests {
		if got := parseRPS(tt.in); got != tt.want {
			t.Errorf("parseRPS(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}

	g := NewRPS(testRand())
	if u := g.HandleInput("lizard"); u.Text != "Say rock, paper, or scissors." || u.Score != "" {
		t.Errorf("invalid choice = %+v", u)
	}
}

// ─── Trivia ─────────────────────────────────────────────────────────────────

var mars = Question{
	Question:    "Which planet is known as the Red Planet?",
	Choices:     []string{"Venus", "Mars", "Jupiter", "Mercury"},
	Answer:      1,
	Explanation: "Iron oxide dust gives Mars its red colour.",
}

func TestTrivia_CorrectAndWrong(t *testing.T) {
	t.Parallel()
	g := NewTrivia(testRand(), WithQuestions([]Question{mars}))

	start := g.Start()
	want := "Let's do trivia! Which planet is known as the Red Planet?\nA) Venus  B) Mars  C) Jupiter  D) Mercury"
	if start.Text != want || len(start.Buttons) != 4 {
		t.Fatalf("Start = %q", start.Text)
	}

	u := g.HandleInput("B")
	if u.Score != Win || !strings.HasPrefix(u.Text, "Correct! Iron oxide dust") || u.Done {
		t.Errorf("correct answer = %+v", u)
	}
	u = g.HandleInput("a")
	if u.Score != Loss || !strings.HasPrefix(u.Text, "Oops, the correct answer was B. Iron oxide") {
		t.Errorf("wrong answer = %+v", u)
	}
	u = g.HandleInput("purple")
	if u.Text != "Please answer A, B, C, or D." || u.Score != "" {
		t.Errorf("unparseable answer = %+v", u)
	}
}

func TestTrivia_ParseAnswer(t *testing.T) {
	t.Parallel()
	g := NewTrivia(testRand(), WithQuestions([]Question{mars}))
	g.Start()

	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"c", 2, true},
		{" D ", 3, true},
		{"2", 1, true},
		{"I think it's mars", 1, true},
		{"5", 0, false},
		{"e", 0, false},
		{"", 0, false},
	}
	for _, tt := range tests {
		got, ok := g.parseAnswer(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseAnswer(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestLoadQuestions(t *testing.T) {
	t.Parallel()
	data := []byte(`[
		{"question": "ok", "choices": ["a","b","c","d"], "answer": 3},
		{"question": "three choices", "choices": ["a","b","c"], "answer": 0},
		{"question": "bad answer", "choices": ["a","b","c","d"], "answer": 4}
	]`)
	qs, err := LoadQuestions(data)
	if err != nil {
		t.Fatalf("LoadQuestions: %v", err)
	}
	if len(qs) != 1 || qs[0].Question != "ok" {
		t.Errorf("questions = %+v", qs)
	}
	if _, err := LoadQuestions([]byte("nope")); err == nil {
		t.Error("expected decode error")
	}

	builtin, err := LoadQuestions(builtinQuestions)
	if err != nil || len(builtin) == 0 {
		t.Errorf("built-in bank: %d questions, err %v", len(builtin), err)
	}
}

func TestWithQuestionFile_MissingKeepsBuiltin(t *testing.T) {
	t.Parallel()
	builtin, _ := LoadQuestions(builtinQuestions)
	g := NewTrivia(testRand(), WithQuestionFile(filepath.Join(t.TempDir(), "missing.json")))
	if len(g.questions) != len(builtin) {
		t.Errorf("questions = %d, want built-in %d", len(g.questions), len(builtin))
	}
}

// ─── Tic Tac Toe ────────────────────────────────────────────────────────────

func board(cells string) [9]rune {
	var b [9]rune
	for i, c := range cells {
		if c == '.' {
			c = empty
		}
		b[i] = c
	}
	return b
}

func TestTicTacToe_Moves(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		board     string
		input     string
		wantText  string
		wantScore Result
		wantDone  bool
		wantCell  int
		wantRune  rune
	}{
		{name: "player wins", board: "XX.OO....", input: "3", wantText: "You win!\nX | X | X", wantScore: Win, wantDone: true, wantCell: 2, wantRune: player},
		{name: "ai wins", board: "X..OO...X", input: "2", wantText: "I win!\n", wantScore: Loss, wantDone: true, wantCell: 5, wantRune: ai},
		{name: "ai blocks", board: "X...O....", input: "2", wantCell: 2, wantRune: ai},
		{name: "ai takes centre", board: ".........", input: "1", wantCell: 4, wantRune: ai},
		{name: "draw", board: "XOXXOOOX.", input: "9", wantText: "It's a draw.\n", wantScore: Tie, wantDone: true, wantCell: 8, wantRune: player},
		{name: "taken", board: "X........", input: "top left", wantText: "That spot is taken. Try another.", wantCell: 0, wantRune: player},
		{name: "invalid", board: ".........", input: "banana", wantText: "Pick a square 1-9 or say top left, center, etc.", wantCell: 4, wantRune: empty},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			g := NewTicTacToe(testRand())
			g.board = board(tt.board)

			u := g.HandleInput(tt.input)
			if tt.wantText != "" && !strings.HasPrefix(u.Text, tt.wantText) {
				t.Errorf("Text = %q, want prefix %q", u.Text, tt.wantText)
			}
			if u.Score != tt.wantScore || u.Done != tt.wantDone {
				t.Errorf("Score=%q Done=%v, want %q %v", u.Score, u.Done, tt.wantScore, tt.wantDone)
			}
			if g.board[tt.wantCell] != tt.wantRune {
				t.Errorf("cell %d = %q, want %q", tt.wantCell+1, g.board[tt.wantCell], tt.wantRune)
			}
		})
	}
}

func TestTicTacToe_FullGameAgainstRandomAI(t *testing.T) {
	t.Parallel()
	g := NewTicTacToe(testRand())
	if u := g.Start(); u.Text != "Tic Tac Toe! You are X. Pick a spot 1-9." || len(u.Buttons) != 9 {
		t.Fatalf("Start = %+v", u)
	}
	for turn := 0; turn < 9; turn++ {
		free := g.free()
		if len(free) == 0 {
			t.Fatal("board full without a result")
		}
		u := g.HandleInput(strconv.Itoa(free[0] + 1))
		if u.Done {
			if u.Score == "" {
				t.Error("game ended without a score")
			}
			return
		}
	}
	t.Fatal("game never ended")
}

func TestTicTacToe_BoardText(t *testing.T) {
	t.Parallel()
	g := NewTicTacToe(testRand())
	g.board = board("X...O....")
	want := "X | 2 | 3\n4 | O | 6\n7 | 8 | 9"
	if got := g.boardText(); got != want {
		t.Errorf("boardText =\n%s\nwant\n%s", got, want)
	}
}

func TestParseSquare(t *testing.T) {
	t.Parallel()
	tests := []struct {
		in     string
		want   int
		wantOK bool
	}{
		{"5", 4, true},
		{" 9 ", 8, true},
		{"top right", 2, true},
		{"Bottom Center please", 7, true},
		{"the center", 4, true},
		{"middle left", 3, true},
		{"0", 0, false},
		{"10", 0, false},
		{"+5", 0, false},
		{"nowhere", 0, false},
	}
	for _, tt := range tests {
		got, ok := parseSquare(tt.in)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("parseSquare(%q) = %d, %v; want %d, %v", tt.in, got, ok, tt.want, tt.wantOK)
		}
	}
}
