package games

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strconv"
	"strings"
)

// TriviaName is the scoreboard name of Trivia.
const TriviaName = "trivia"

//go:embed trivia_questions.json
var builtinQuestions []byte

// Question is one multiple-choice trivia question.
type Question struct {
	Question    string   `json:"question"`
	Choices     []string `json:"choices"`
	Answer      int      `json:"answer"`
	Explanation string   `json:"explanation,omitempty"`
}

// LoadQuestions decodes a JSON array of questions and drops entries that do
// not have exactly four choices and a valid answer index.
func LoadQuestions(data []byte) ([]Question, error) {
	var raw []Question
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("games: decode trivia questions: %w", err)
	}
	out := raw[:0]
	for _, q := range raw {
		if len(q.Choices) != 4 || q.Answer < 0 || q.Answer > 3 {
			slog.Warn("games: skipping malformed trivia question", "question", q.Question)
			continue
		}
		out = append(out, q)
	}
	return out, nil
}

// TriviaOption is a functional option for [Trivia].
type TriviaOption func(*Trivia)

// WithQuestions replaces the question bank.
func WithQuestions(qs []Question) TriviaOption {
	return func(t *Trivia) { t.questions = qs }
}

// WithQuestionFile loads the question bank from a JSON file. When the file
// cannot be read the built-in bank is kept.
func WithQuestionFile(path string) TriviaOption {
	return func(t *Trivia) {
		data, err := os.ReadFile(path)
		if err != nil {
			slog.Warn("games: trivia question file unavailable, using built-in questions", "path", path, "err", err)
			return
		}
		qs, err := LoadQuestions(data)
		if err != nil {
			slog.Warn("games: trivia question file invalid, using built-in questions", "path", path, "err", err)
			return
		}
		t.questions = qs
	}
}

// Trivia asks multiple-choice questions one after another until the user
// quits. Every answered question is scored.
type Trivia struct {
	rng       *rand.Rand
	questions []Question
	current   *Question
}

var _ Game = (*Trivia)(nil)

// NewTrivia creates a Trivia game with the built-in question bank unless an
// option replaces it.
func NewTrivia(rng *rand.Rand, opts ...TriviaOption) *Trivia {
	t := &Trivia{rng: rng}
	if qs, err := LoadQuestions(builtinQuestions); err == nil {
		t.questions = qs
	}
	for _, o := range opts {
		o(t)
	}
	return t
}

func (t *Trivia) Name() string { return TriviaName }

func (t *Trivia) pick() {
	t.current = nil
	if len(t.questions) > 0 {
		t.current = &t.questions[t.rng.IntN(len(t.questions))]
	}
}

func (t *Trivia) Start() Update {
	t.pick()
	return t.question("Let's do trivia!")
}

func (t *Trivia) HandleInput(text string) Update {
	if quits(text) {
		return Update{Game: TriviaName, Text: "Exiting Trivia.", Done: true}
	}
	if t.current == nil {
		t.pick()
		return t.question("No questions loaded.")
	}

	answer, ok := t.parseAnswer(text)
	if !ok {
		return Update{Game: TriviaName, Text: "Please answer A, B, C, or D.", Status: triviaStatus, Buttons: triviaButtons()}
	}

	var (
		msg   string
		score Result
	)
	if answer == t.current.Answer {
		msg, score = "Correct!", Win
	} else {
		msg, score = fmt.Sprintf("Oops, the correct answer was %c.", 'A'+t.current.Answer), Loss
	}
	if t.current.Explanation != "" {
		msg += " " + t.current.Explanation
	}

	t.pick()
	u := t.question(msg)
	u.Score = score
	return u
}

func (t *Trivia) parseAnswer(text string) (int, bool) {
	s := strings.ToLower(strings.TrimSpace(text))
	if s == "" {
		return 0, false
	}
	if len(s) == 1 && s[0] >= 'a' && s[0] <= 'd' {
		return int(s[0] - 'a'), true
	}
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= 4 {
		return n - 1, true
	}
	for i, c := range t.current.Choices {
		if strings.Contains(s, strings.ToLower(c)) {
			return i, true
		}
	}
	return 0, false
}

const triviaStatus = "Answer A, B, C, or D. Say 'quit' to stop."

func (t *Trivia) question(prefix string) Update {
	if t.current == nil {
		return Update{Game: TriviaName, Text: "No trivia questions available.", Done: true}
	}
	q := t.current
	text := fmt.Sprintf("%s %s\nA) %s  B) %s  C) %s  D) %s",
		prefix, q.Question, q.Choices[0], q.Choices[1], q.Choices[2], q.Choices[3])
	return Update{Game: TriviaName, Text: text, Status: triviaStatus, Buttons: triviaButtons()}
}

func triviaButtons() []Button {
	return []Button{{Label: "A", Value: "A"}, {Label: "B", Value: "B"}, {Label: "C", Value: "C"}, {Label: "D", Value: "D"}}
}
