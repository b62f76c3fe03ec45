package turn

import (
	"github.com/bemo-assistant/bemo/internal/segmenter"
	"github.com/bemo-assistant/bemo/internal/session"
	"github.com/bemo-assistant/bemo/internal/wake"
)

// DefaultSystemPrompt is the Bemo persona used when no prompt is configured.
const DefaultSystemPrompt = `You are Bemo, a friendly, playful robot buddy inspired by retro game consoles.
Do not claim to be any copyrighted character. You are Bemo-inspired only.
Keep replies short, natural, and human-like.
For greetings or small talk: 1 sentence.
For real questions: 2-4 sentences with a complete, helpful answer.
Only use lists if the user explicitly asks for a list (max 3 items).
Never invent multi-turn transcripts, role labels, or fake dialogues.
Do not ramble or ask multiple questions at once.
Always answer the user's question with a complete thought; avoid replies that are only acknowledgements.
Offer small game suggestions occasionally.
If the user asks for a game, start it. If a game is active, respond with game state.
If you do not know, say so and offer a next step.`

// Settings is the per-turn configuration snapshot. A turn reads it once when
// it leaves Idle; updates apply from the next turn on.
type Settings struct {
	// SystemPrompt is prepended to every chat request. Default:
	// [DefaultSystemPrompt].
	SystemPrompt string

	// Model and Temperature are forwarded to the inference worker.
	Model       string
	Temperature float64

	// HistoryWindow is how many past messages accompany a request.
	// Default: 12.
	HistoryWindow int

	// STTModel overrides the transcriber's model for dictation. Empty uses
	// the transcriber default.
	STTModel string

	// Language is the recognition language for dictation and barge-in,
	// e.g. "en" or "de". Empty uses the transcriber default.
	Language string

	// WakePhrase is ignored when it is all the user said. Default: "hey bemo".
	WakePhrase string

	// CameraEnabled allows camera questions.
	CameraEnabled bool

	// Dictation bounds a foreground capture. Default: [segmenter.Dictation].
	Dictation segmenter.Constraints
}

func (s Settings) withDefaults() Settings {
	if s.SystemPrompt == "" {
		s.SystemPrompt = DefaultSystemPrompt
	}
	if s.HistoryWindow <= 0 {
		s.HistoryWindow = session.DefaultHistoryWindow
	}
	if s.WakePhrase == "" {
		s.WakePhrase = wake.DefaultPhrase
	}
	if s.Dictation == (segmenter.Constraints{}) {
		s.Dictation = segmenter.Dictation
	}
	return s
}
