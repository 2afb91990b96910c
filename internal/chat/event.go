package chat

import "github.com/ashureev/codeoracle/internal/domain"

// EventKind names a panel change.
type EventKind string

const (
	// EventMessage is emitted after a message is appended.
	EventMessage EventKind = "message"
	// EventState is emitted when the panel enters or leaves sending.
	EventState EventKind = "state"
)

// Event describes a single panel change. Views scroll to the newest
// message on every event.
type Event struct {
	Kind    EventKind       `json:"kind"`
	Index   int             `json:"index"`
	Message *domain.Message `json:"message,omitempty"`
	Sending bool            `json:"sending"`
}

// Observer receives panel events synchronously, in order.
type Observer func(Event)
