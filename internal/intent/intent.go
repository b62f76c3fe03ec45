// Package intent recognises the few user requests the turn controller
// handles itself instead of sending them to the language model: starting a
// game, looking through the camera, stopping the current reply and
// remembering a note.
//
// Matching is case-insensitive and loose: a keyword anywhere in the
// transcript counts, the same way the wake phrase and the barge-in word are
// matched.
package intent

import (
	"regexp"
	"strings"
)

// Kind identifies what the user asked for.
type Kind int

const (
	// StartGame asks for a mini-game. Intent.Arg holds the game key.
	StartGame Kind = iota + 1
	// Camera asks the assistant to look through the camera.
	Camera
	// Stop asks the assistant to stop talking.
	Stop
)

// String returns the kind name used in logs.
func (k Kind) String() string {
	switch k {
	case StartGame:
		return "start_game"
	case Camera:
		return "camera"
	case Stop:
		return "stop"
	default:
		return "unknown"
	}
}

// Intent is one recognised request.
type Intent struct {
	Kind Kind

	// Pattern is the name of the pattern that matched.
	Pattern string

	// Arg is the pattern's argument, e.g. the game key.
	Arg string
}

// Pattern pairs a compiled regex with the intent it produces.
type Pattern struct {
	// Name is a human-readable label for logging.
	Name string

	// Regex is matched against the whole transcript.
	Regex *regexp.Regexp

	Kind Kind

	// Arg is copied into the produced Intent.
	Arg string
}

// Filter checks transcripts against an ordered set of patterns. It is
// read-only after construction and safe for concurrent use.
type Filter struct {
	patterns []Pattern
}

// New returns a Filter with the built-in patterns.
func New() *Filter {
	return &Filter{patterns: defaultPatterns()}
}

// NewWithPatterns returns a Filter that checks patterns in order.
func NewWithPatterns(patterns []Pattern) *Filter {
	return &Filter{patterns: patterns}
}

// Match returns every intent found in text, in pattern order, at most one
// per kind. The caller picks the first one it can act on.
func (f *Filter) Match(text string) []Intent {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil
	}
	var (
		out  []Intent
		seen = map[Kind]bool{}
	)
	for _, p := range f.patterns {
		if seen[p.Kind] || !p.Regex.MatchString(trimmed) {
			continue
		}
		seen[p.Kind] = true
		out = append(out, Intent{Kind: p.Kind, Pattern: p.Name, Arg: p.Arg})
	}
	return out
}

// Game returns the key of the game text asks for, if any.
func (f *Filter) Game(text string) (string, bool) {
	for _, in := range f.Match(text) {
		if in.Kind == StartGame {
			return in.Arg, true
		}
	}
	return "", false
}

var rememberRe = regexp.MustCompile(`(?i)remember (that )?(.*)`)

// Remember extracts the note from "remember (that) ..." requests. It returns
// false when text holds no such request or the note is empty.
func Remember(text string) (string, bool) {
	m := rememberRe.FindStringSubmatch(text)
	if m == nil {
		return "", false
	}
	note := strings.TrimSpace(m[2])
	return note, note != ""
}

// defaultPatterns returns the built-in patterns, in priority order.
func defaultPatterns() []Pattern {
	return []Pattern{
		{Name: "guess-number", Kind: StartGame, Arg: "guess", Regex: regexp.MustCompile(`(?i)guess.*number|number.*guess`)},
		{Name: "rock-paper-scissors", Kind: StartGame, Arg: "rps", Regex: regexp.MustCompile(`(?i)rock.*paper|paper.*rock`)},
		{Name: "trivia", Kind: StartGame, Arg: "trivia", Regex: regexp.MustCompile(`(?i)trivia|quiz`)},
		{Name: "tic-tac-toe", Kind: StartGame, Arg: "tictactoe", Regex: regexp.MustCompile(`(?i)tic tac toe|tictactoe|nought`)},
		{Name: "camera", Kind: Camera, Regex: regexp.MustCompile(`(?i)camera|see`)},
		{Name: "stop", Kind: Stop, Regex: regexp.MustCompile(`(?i)stop`)},
	}
}
