package collab

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/good-yellow-bee/collabhub/internal/events"
	"github.com/good-yellow-bee/collabhub/internal/models"
	"github.com/good-yellow-bee/collabhub/internal/outbox"
)

// notificationPayload is the outbox body of every registry event.
type notificationPayload struct {
	UserID          string                  `json:"user_id"`
	Message         string                  `json:"message"`
	Type            models.NotificationType `json:"type"`
	CollaborationID string                  `json:"collaboration_id"`
}

func createdMessage(c *models.Collaboration, senderName, projectName string) string {
	if c.Type == models.CollaborationApplication {
		return fmt.Sprintf("%s applied to join %s", senderName, projectName)
	}
	return fmt.Sprintf("%s invited you to collaborate on %s", senderName, projectName)
}

func resolvedMessage(c *models.Collaboration, status models.CollaborationStatus, responder, projectName string) string {
	verb := "accepted"
	if status == models.StatusDeclined {
		verb = "declined"
	}
	if c.Type == models.CollaborationApplication {
		return fmt.Sprintf("Your application to join %s was %s", projectName, verb)
	}
	return fmt.Sprintf("%s %s your invitation to %s", responder, verb, projectName)
}

// Dispatcher delivers a notification to its recipient.
type Dispatcher interface {
	Dispatch(ctx context.Context, n *models.Notification) error
}

// NotificationHandler turns registry outbox events into notifications.
// The notification id is derived from the event id so redelivery of the
// same event never produces a second notification.
func NotificationHandler(d Dispatcher) outbox.HandlerFunc {
	return func(ctx context.Context, event *models.OutboxEvent) error {
		var p notificationPayload
		if err := json.Unmarshal(event.Payload, &p); err != nil {
			return fmt.Errorf("decode %s payload: %w", event.EventType, err)
		}
		if p.UserID == "" {
			return fmt.Errorf("%s event %s has no recipient", event.EventType, event.ID)
		}

		return d.Dispatch(ctx, &models.Notification{
			ID:        uuid.NewSHA1(uuid.NameSpaceOID, []byte(event.ID)).String(),
			UserID:    p.UserID,
			Message:   p.Message,
			Type:      p.Type,
			CreatedAt: event.CreatedAt,
		})
	}
}

// RegisterHandlers wires the registry's outbox events to d and nudges the
// relay whenever the registry commits a change.
func RegisterHandlers(relay *outbox.Relay, bus *events.Bus[Event], d Dispatcher) {
	h := NotificationHandler(d)
	for _, eventType := range EventTypes() {
		relay.Handle(eventType, h)
	}
	bus.Subscribe("outbox_nudge", func(Event) bool {
		relay.Nudge()
		return true
	})
}
