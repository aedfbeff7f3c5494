package collab

import (
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// Decision is the response to a pending collaboration.
type Decision int

const (
	Accept Decision = iota + 1
	Decline
)

// Status returns the terminal status a decision moves the record to.
func (d Decision) Status() models.CollaborationStatus {
	if d == Accept {
		return models.StatusAccepted
	}
	return models.StatusDeclined
}

func (d Decision) String() string {
	switch d {
	case Accept:
		return "accept"
	case Decline:
		return "decline"
	default:
		return "unknown"
	}
}

// Outbox event types recorded by the registry.
const (
	EventCreated  = "collaboration.created"
	EventAccepted = "collaboration.accepted"
	EventDeclined = "collaboration.declined"
)

// EventTypes lists every outbox event type the registry enqueues.
func EventTypes() []string {
	return []string{EventCreated, EventAccepted, EventDeclined}
}

// Event is published on the in-process bus after a change commits.
type Event struct {
	Type          string
	Collaboration models.Collaboration
	ActorID       string
	At            time.Time
}
