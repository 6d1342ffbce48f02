package player

import "github.com/ashspire/songbot/internal/broadcast"

// EventKind names one of the observable transitions the chat frontend and
// HTTP dashboard render live.
type EventKind int

const (
	EventPlaying EventKind = iota
	EventPaused
	EventModified
	EventNotConfigured
)

func (k EventKind) String() string {
	switch k {
	case EventPlaying:
		return "playing"
	case EventPaused:
		return "paused"
	case EventModified:
		return "modified"
	case EventNotConfigured:
		return "not_configured"
	default:
		return "unknown"
	}
}

// Event is one notification pushed to subscribers of Player.Events.
type Event struct {
	Kind    EventKind
	Current *Song // snapshot; nil for Modified events that don't change current
}

func newEventFeed() *broadcast.Feed[Event] {
	return broadcast.NewFeed[Event](16)
}
