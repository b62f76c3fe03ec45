// Package normalize turns raw model output into a short, speakable reply.
//
// [Reply] is a pure function. It is applied once to every finished model
// reply (never to game replies) and runs these rules in order:
//
//  1. strip role labels ("Assistant:", "Bemo:", "AI:", "User:") at line starts
//  2. collapse blank lines
//  3. drop pictographic symbols a speech synthesizer cannot render
//  4. spell the assistant's name "Bemo"
//  5. limit the prose sentences by [Style]
//  6. keep at most three list lines when the user asked for a list, otherwise
//     fold the first three items into a trailing "For example: a; b; c."
//  7. cap the whole reply, list lines included, at a word boundary
//  8. replace a near-empty answer to a question with a fallback
package normalize

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// Style is the shape of the user's request, which decides how long the reply
// may be.
type Style int

const (
	// Statement is any input that is neither a greeting nor a question.
	Statement Style = iota
	// Greeting is short small talk ("hi", "good morning").
	Greeting
	// Question asks for information.
	Question
)

// String implements fmt.Stringer.
func (s Style) String() string {
	switch s {
	case Greeting:
		return "greeting"
	case Question:
		return "question"
	default:
		return "statement"
	}
}

// Limits for each style.
const (
	greetingSentences  = 1
	questionSentences  = 4
	statementSentences = 2

	defaultMaxChars  = 240
	questionMaxChars = 520

	maxListItems     = 3
	minQuestionWords = 4
	greetingMaxWords = 4
)

// Fallback is spoken when a question got an answer too short to be useful.
const Fallback = "I'm not sure about that one yet, but I can try again if you tell me a bit more."

var (
	roleLabel   = regexp.MustCompile(`(?im)^[ \t]*(?:assistant|bemo|ai|user)[ \t]*:[ \t]*`)
	blankLines  = regexp.MustCompile(`\n[ \t]*(?:\n[ \t]*)+`)
	nameVariant = regexp.MustCompile(`(?i)\b(?:beemo|bmo|bimo|beamo)\b`)
	listLine    = regexp.MustCompile(`^[ \t]*(?:[-*•]|\d+[.)])[ \t]+(.+)$`)
	spaces      = regexp.MustCompile(`\s+`)
)

var greetingWords = map[string]bool{
	"hi": true, "hello": true, "hey": true, "hiya": true, "howdy": true, "yo": true,
	"morning": true, "evening": true, "afternoon": true, "good": true,
	"thanks": true, "thank": true, "bye": true, "goodbye": true, "night": true,
}

var questionWords = map[string]bool{
	"what": true, "whats": true, "why": true, "how": true, "who": true, "whom": true,
	"where": true, "when": true, "which": true, "can": true, "could": true,
	"would": true, "should": true, "is": true, "are": true, "do": true,
	"does": true, "did": true, "will": true, "was": true, "were": true,
	"explain": true, "tell": true, "describe": true,
}

var listWords = []string{"list", "recommend", "suggest", "options", "examples"}

// Classify decides the [Style] of the user's text.
func Classify(userText string) Style {
	words := words(userText)
	if len(words) == 0 {
		return Statement
	}
	if len(words) <= greetingMaxWords && greetingWords[words[0]] && !strings.HasSuffix(strings.TrimSpace(userText), "?") {
		return Greeting
	}
	if strings.Contains(userText, "?") || questionWords[words[0]] {
		return Question
	}
	return Statement
}

// WantsList reports whether the user asked for a list.
func WantsList(userText string) bool {
	lower := strings.ToLower(userText)
	for _, w := range listWords {
		if strings.Contains(lower, w) {
			return true
		}
	}
	return false
}

// Reply normalises raw model output for the request userText.
func Reply(raw, userText string) string {
	style := Classify(userText)

	text := strings.ReplaceAll(raw, "\r\n", "\n")
	text = roleLabel.ReplaceAllString(text, "")
	text = blankLines.ReplaceAllString(text, "\n")
	text = stripPictographs(text)
	text = nameVariant.ReplaceAllString(text, "Bemo")

	limit := maxChars(style)
	prose, items, kept := splitList(text)
	prose = limitSentences(prose, maxSentences(style))

	var out string
	if WantsList(userText) {
		if len(kept) > maxListItems {
			kept = kept[:maxListItems]
		}
		lines := kept
		if prose != "" {
			lines = append([]string{prose}, kept...)
		}
		out = strings.Join(lines, "\n")
	} else {
		out = prose
		if len(items) > maxListItems {
			items = items[:maxListItems]
		}
		if len(items) > 0 {
			// The clause is never trimmed; the prose yields room to it.
			clause := "For example: " + strings.Join(items, "; ") + "."
			out = appendClause(capChars(prose, limit-utf8.RuneCountInString(clause)-2), clause)
		}
	}
	out = capChars(out, limit)

	if style == Question && len(words(out)) < minQuestionWords {
		return Fallback
	}
	return out
}

func maxSentences(s Style) int {
	switch s {
	case Greeting:
		return greetingSentences
	case Question:
		return questionSentences
	default:
		return statementSentences
	}
}

func maxChars(s Style) int {
	if s == Question {
		return questionMaxChars
	}
	return defaultMaxChars
}

// splitList separates list lines from prose. prose is the remaining text on
// one line; items are the list entries without markers or trailing
// punctuation; kept are the original list lines, trimmed.
func splitList(text string) (prose string, items, kept []string) {
	var rest []string
	for _, line := range strings.Split(text, "\n") {
		if m := listLine.FindStringSubmatch(line); m != nil {
			item := strings.TrimRight(strings.TrimSpace(m[1]), ".;,!")
			if item != "" {
				items = append(items, item)
				kept = append(kept, strings.TrimSpace(line))
			}
			continue
		}
		if line = strings.TrimSpace(line); line != "" {
			rest = append(rest, line)
		}
	}
	return strings.TrimSpace(spaces.ReplaceAllString(strings.Join(rest, " "), " ")), items, kept
}

// appendClause adds a sentence after prose, closing an introduction that ends
// in a colon.
func appendClause(prose, clause string) string {
	prose = strings.TrimSpace(prose)
	if prose == "" {
		return clause
	}
	prose = strings.TrimRight(prose, ":;, ")
	if !endsSentence(prose) {
		prose += "."
	}
	return prose + " " + clause
}

// limitSentences keeps the first n sentences of text.
func limitSentences(text string, n int) string {
	if text == "" {
		return ""
	}
	runes := []rune(text)
	count := 0
	for i := 0; i < len(runes); i++ {
		if !isTerminal(runes[i]) {
			continue
		}
		for i+1 < len(runes) && isTerminal(runes[i+1]) {
			i++
		}
		if i+1 == len(runes) || unicode.IsSpace(runes[i+1]) {
			count++
			if count == n {
				return strings.TrimSpace(string(runes[:i+1]))
			}
		}
	}
	return strings.TrimSpace(text)
}

// capChars cuts text to at most limit runes, ellipsis included, at the last
// whole word. A limit with no room for a word leaves nothing.
func capChars(text string, limit int) string {
	const ellipsis = "..."
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	keep := limit - len(ellipsis)
	if keep <= 0 {
		return ""
	}
	cut := string(runes[:keep])
	if i := strings.LastIndexFunc(cut, unicode.IsSpace); i > 0 && !unicode.IsSpace(runes[keep]) {
		cut = cut[:i]
	}
	return strings.TrimRight(cut, " \t\n,;:.!?-") + ellipsis
}

func stripPictographs(s string) string {
	return strings.Map(func(r rune) rune {
		if isPictograph(r) {
			return -1
		}
		return r
	}, s)
}

func isPictograph(r rune) bool {
	switch {
	case r >= 0x1F000 && r <= 0x1FAFF: // emoji, symbols and pictographs, flags
	case r >= 0x2600 && r <= 0x27BF: // miscellaneous symbols, dingbats
	case r >= 0x2B00 && r <= 0x2BFF: // arrows, stars
	case r >= 0xFE00 && r <= 0xFE0F: // variation selectors
	case r >= 0xE0020 && r <= 0xE007F: // tag characters
	case r == 0x200D || r == 0x20E3: // joiner, keycap
	default:
		return false
	}
	return true
}

func isTerminal(r rune) bool { return r == '.' || r == '!' || r == '?' }

func endsSentence(s string) bool {
	if s == "" {
		return false
	}
	r := []rune(s)
	return isTerminal(r[len(r)-1])
}

// words returns the lower-cased words of s with punctuation removed.
func words(s string) []string {
	return strings.FieldsFunc(strings.ToLower(strings.ReplaceAll(s, "'", "")), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
