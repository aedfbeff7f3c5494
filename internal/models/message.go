package models

import (
	"time"
)

// Attachment is a binary payload stored inline with a message.
type Attachment struct {
	Data        []byte `json:"-"`
	ContentType string `json:"content_type"`
	Name        string `json:"name"`
}

// Size returns the payload length in bytes.
func (a *Attachment) Size() int64 {
	if a == nil {
		return 0
	}
	return int64(len(a.Data))
}

// Message is a direct or project-thread message.
// At least one of ReceiverID and ProjectID is set.
type Message struct {
	ID          string      `json:"id"`
	SenderID    string      `json:"sender_id"`
	ReceiverID  string      `json:"receiver_id,omitempty"`
	ProjectID   string      `json:"project_id,omitempty"`
	Content     string      `json:"content"`
	File        *Attachment `json:"file,omitempty"`
	Delivered   bool        `json:"delivered"`
	Read        bool        `json:"read"`
	DeliveredAt *time.Time  `json:"delivered_at,omitempty"`
	ReadAt      *time.Time  `json:"read_at,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// HasFile reports whether the message carries an attachment.
func (m *Message) HasFile() bool {
	return m.File != nil && len(m.File.Data) > 0
}

// UnreadCount is the number of unread messages from one sender.
type UnreadCount struct {
	SenderID string `json:"sender_id"`
	Count    int64  `json:"count"`
}
