package turn

import "github.com/bemo-assistant/bemo/internal/games"

// NotificationKind tags a [Notification].
type NotificationKind string

const (
	// KindState reports a state change in State.
	KindState NotificationKind = "state"

	// KindTranscript is a finished transcript line; Speaker is "You" or
	// "Bemo".
	KindTranscript NotificationKind = "transcript"

	// KindPartial carries the reply streamed so far. An empty Text clears
	// the streaming line.
	KindPartial NotificationKind = "partial"

	// KindReply carries the final normalized assistant reply.
	KindReply NotificationKind = "reply"

	// KindWarning is a human-readable problem report.
	KindWarning NotificationKind = "warning"

	// KindLevel is the playback amplitude in [0,1].
	KindLevel NotificationKind = "level"

	// KindGame carries a game update and, when Score is set, the
	// scoreboard summary for that game.
	KindGame NotificationKind = "game"

	// KindGameEnded reports that no game is active any more.
	KindGameEnded NotificationKind = "game_ended"
)

// Speakers used in transcript notifications.
const (
	SpeakerUser      = "You"
	SpeakerAssistant = "Bemo"
)

// Notification is one UI-facing event.
type Notification struct {
	Kind    NotificationKind `json:"kind"`
	TurnID  string           `json:"turn_id,omitempty"`
	State   string           `json:"state,omitempty"`
	Speaker string           `json:"speaker,omitempty"`
	Text    string           `json:"text,omitempty"`
	Level   float64          `json:"level,omitempty"`
	Game    *games.Update    `json:"game,omitempty"`
	Score   string           `json:"score,omitempty"`
}

// Notifier receives notifications. Notify is only called from the control
// goroutine and must not block.
type Notifier interface {
	Notify(n Notification)
}

// NotifierFunc adapts a function to [Notifier].
type NotifierFunc func(Notification)

// Notify calls f(n).
func (f NotifierFunc) Notify(n Notification) { f(n) }

type discard struct{}

func (discard) Notify(Notification) {}
