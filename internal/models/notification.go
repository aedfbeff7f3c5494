package models

import (
	"time"
)

// NotificationType categorises a notification for the UI.
type NotificationType string

const (
	NotificationInvite         NotificationType = "Invite"
	NotificationSuccess        NotificationType = "success"
	NotificationInviteDeclined NotificationType = "InviteDeclined"
)

// Notification is a message stored for later retrieval by its recipient.
type Notification struct {
	ID        string           `json:"id"`
	UserID    string           `json:"user_id"`
	Message   string           `json:"message"`
	Type      NotificationType `json:"type"`
	Read      bool             `json:"read"`
	CreatedAt time.Time        `json:"created_at"`
}
