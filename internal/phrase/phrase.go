// Package phrase decides whether a transcript contains a trigger phrase such
// as the wake phrase "hey bemo" or the barge-in word "stop".
//
// Matching is a loose substring test on a normalised transcript: lower case,
// punctuation folded to spaces, whitespace collapsed. "Hey, Bemo!" therefore
// contains "hey bemo", and so does "they bemoan".
//
// Fuzzy matching can be enabled for transcribers that misspell the assistant's
// name. It slides a window of the phrase's length over the transcript words
// and accepts a window when every word either matches exactly, shares a
// Double Metaphone code with the phrase word and clears the phonetic
// Jaro-Winkler threshold, or clears the stricter plain Jaro-Winkler
// threshold. A transcript word that fuses two phrase words ("heybemo") is
// accepted when it is phonetically identical to the fused phrase.
package phrase

import (
	"strings"
	"unicode"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithFuzzy enables phonetic matching in addition to the substring test.
func WithFuzzy(enabled bool) Option {
	return func(m *Matcher) { m.fuzzy = enabled }
}

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a word that
// shares a phonetic code with the phrase word. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) { m.phoneticThreshold = threshold }
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a word with no
// phonetic overlap. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) { m.fuzzyThreshold = threshold }
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	fuzzy             bool
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a Matcher. Fuzzy matching is off by default.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Normalize lower-cases s, replaces every rune that is not a letter or digit
// with a space, and collapses runs of spaces.
func Normalize(s string) string {
	folded := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '\'' {
			return unicode.ToLower(r)
		}
		return ' '
	}, s)
	return strings.Join(strings.Fields(strings.ReplaceAll(folded, "'", "")), " ")
}

// Contains reports whether text contains phrase.
func (m *Matcher) Contains(text, phrase string) bool {
	t, p := Normalize(text), Normalize(phrase)
	if p == "" {
		return false
	}
	if strings.Contains(t, p) {
		return true
	}
	if !m.fuzzy || t == "" {
		return false
	}
	return m.fuzzyContains(strings.Fields(t), strings.Fields(p))
}

// Only reports whether text consists of phrase and nothing else, e.g. a
// transcript that merely repeats the wake phrase.
func (m *Matcher) Only(text, phrase string) bool {
	t, p := Normalize(text), Normalize(phrase)
	if t == "" || p == "" {
		return false
	}
	if t == p {
		return true
	}
	if !m.fuzzy {
		return false
	}
	tw, pw := strings.Fields(t), strings.Fields(p)
	if len(tw) == len(pw) {
		return m.windowMatches(tw, pw)
	}
	return len(pw) > 1 && len(tw) == 1 && m.fusedMatches(tw[0], pw)
}

func (m *Matcher) fuzzyContains(words, phrase []string) bool {
	n := len(phrase)
	for i := 0; i+n <= len(words); i++ {
		if m.windowMatches(words[i:i+n], phrase) {
			return true
		}
	}
	if n > 1 {
		for _, w := range words {
			if m.fusedMatches(w, phrase) {
				return true
			}
		}
	}
	return false
}

func (m *Matcher) windowMatches(window, phrase []string) bool {
	for i := range phrase {
		if !m.wordMatches(window[i], phrase[i]) {
			return false
		}
	}
	return true
}

func (m *Matcher) wordMatches(word, target string) bool {
	if word == target {
		return true
	}
	score := matchr.JaroWinkler(word, target, false)
	if codesOverlap(codes(word), codes(target)) && score >= m.phoneticThreshold {
		return true
	}
	return score >= m.fuzzyThreshold
}

func (m *Matcher) fusedMatches(word string, phrase []string) bool {
	fused := strings.Join(phrase, "")
	if word == fused {
		return true
	}
	return codesOverlap(codes(word), codes(fused)) &&
		matchr.JaroWinkler(word, fused, false) >= m.fuzzyThreshold
}

// codes returns the non-empty Double Metaphone codes of word.
func codes(word string) map[string]struct{} {
	out := make(map[string]struct{}, 2)
	p, s := matchr.DoubleMetaphone(word)
	if p != "" {
		out[p] = struct{}{}
	}
	if s != "" {
		out[s] = struct{}{}
	}
	return out
}

func codesOverlap(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}
