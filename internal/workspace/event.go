package workspace

import (
	"github.com/ashureev/codeoracle/internal/chat"
	"github.com/ashureev/codeoracle/internal/domain"
)

// EventKind names a workspace change pushed to live views.
type EventKind string

const (
	EventSnapshot  EventKind = "snapshot"
	EventIngesting EventKind = "ingesting"
	EventMounted   EventKind = "mounted"
	EventCleared   EventKind = "cleared"
	EventMessage             = EventKind(chat.EventMessage)
	EventState               = EventKind(chat.EventState)
)

// Event is the payload of a live update.
type Event struct {
	Kind     EventKind       `json:"type"`
	Index    int             `json:"index"`
	Message  *domain.Message `json:"message,omitempty"`
	Sending  bool            `json:"sending"`
	Snapshot *Snapshot       `json:"snapshot,omitempty"`
}
