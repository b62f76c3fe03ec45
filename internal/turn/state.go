package turn

import "fmt"

// State is the conversation turn state. Exactly one holds at any instant.
type State int32

const (
	Idle State = iota
	Listening
	Thinking
	Speaking
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Listening:
		return "listening"
	case Thinking:
		return "thinking"
	case Speaking:
		return "speaking"
	default:
		return fmt.Sprintf("State(%d)", int32(s))
	}
}
