package models

import (
	"time"
)

// CollaborationType distinguishes the direction of a collaboration request.
type CollaborationType string

const (
	// CollaborationInvite is sent by the project owner to a prospective collaborator.
	CollaborationInvite CollaborationType = "invite"
	// CollaborationApplication is sent by an applicant to the project owner.
	CollaborationApplication CollaborationType = "application"
)

// Valid reports whether t is a known collaboration type.
func (t CollaborationType) Valid() bool {
	return t == CollaborationInvite || t == CollaborationApplication
}

// Party names one side of a collaboration record.
type Party int

const (
	PartySender Party = iota + 1
	PartyReceiver
)

// Other returns the opposite side.
func (p Party) Other() Party {
	if p == PartySender {
		return PartyReceiver
	}
	return PartySender
}

// OwnerParty returns the side that holds the project for this type.
// Invites are sent by the owner; applications are addressed to the owner.
func (t CollaborationType) OwnerParty() Party {
	if t == CollaborationApplication {
		return PartyReceiver
	}
	return PartySender
}

// CollaborationStatus is the lifecycle state of a collaboration.
type CollaborationStatus string

const (
	StatusPending  CollaborationStatus = "Pending"
	StatusAccepted CollaborationStatus = "Accepted"
	StatusDeclined CollaborationStatus = "Declined"
)

// Valid reports whether s is a known status.
func (s CollaborationStatus) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Terminal reports whether no further accept/decline is allowed.
func (s CollaborationStatus) Terminal() bool {
	return s == StatusAccepted || s == StatusDeclined
}

// Collaboration is an invite or application linking two users and a project.
type Collaboration struct {
	ID          string              `json:"id"`
	SenderID    string              `json:"sender_id"`
	ReceiverID  string              `json:"receiver_id"`
	ProjectID   string              `json:"project_id"`
	Type        CollaborationType   `json:"type"`
	Status      CollaborationStatus `json:"status"`
	Message     string              `json:"message,omitempty"`
	RespondedAt *time.Time          `json:"responded_at,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// PartyID returns the user id on the given side.
func (c *Collaboration) PartyID(p Party) string {
	if p == PartyReceiver {
		return c.ReceiverID
	}
	return c.SenderID
}

// OwnerID returns the project owner's side of the record.
func (c *Collaboration) OwnerID() string {
	return c.PartyID(c.Type.OwnerParty())
}

// MemberID returns the non-owner side, the user who joins the project on acceptance.
func (c *Collaboration) MemberID() string {
	return c.PartyID(c.Type.OwnerParty().Other())
}

// Involves reports whether userID is the sender or the receiver.
func (c *Collaboration) Involves(userID string) bool {
	return userID != "" && (c.SenderID == userID || c.ReceiverID == userID)
}

// CollaborationDetail is a collaboration expanded with project and sender summaries.
type CollaborationDetail struct {
	Collaboration
	ProjectName    string `json:"project_name"`
	SenderUsername string `json:"sender_username"`
	SenderEmail    string `json:"sender_email"`
}
