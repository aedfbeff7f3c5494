package models

import (
	"time"
)

// Project is a research project owned by a single user.
type Project struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description,omitempty"`
	OwnerID     string    `json:"owner_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// NewProject creates a new Project with initialized timestamps.
func NewProject(name, description, ownerID string) *Project {
	now := time.Now()
	return &Project{
		Name:        name,
		Description: description,
		OwnerID:     ownerID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// ProjectRole is a user's role within one project.
type ProjectRole string

const (
	ProjectRoleOwner        ProjectRole = "owner"
	ProjectRoleCollaborator ProjectRole = "collaborator"
)

// ProjectMember is a member of a project's collaborator set with user details.
type ProjectMember struct {
	UserID   string      `json:"user_id"`
	Username string      `json:"username"`
	Email    string      `json:"email"`
	Role     ProjectRole `json:"role"`
	JoinedAt time.Time   `json:"joined_at"`
}
