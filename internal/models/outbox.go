package models

import (
	"time"
)

// OutboxStatus is the delivery state of an outbox event.
type OutboxStatus string

const (
	OutboxPending   OutboxStatus = "pending"
	OutboxLeased    OutboxStatus = "leased"
	OutboxProcessed OutboxStatus = "processed"
	OutboxFailed    OutboxStatus = "failed"
)

// OutboxEvent is a follow-up action recorded in the same transaction as
// the state change that caused it.
type OutboxEvent struct {
	ID             string       `json:"id"`
	EventType      string       `json:"event_type"`
	AggregateID    string       `json:"aggregate_id"`
	Payload        []byte       `json:"payload"`
	Status         OutboxStatus `json:"status"`
	AttemptCount   int          `json:"attempt_count"`
	NextAttemptAt  time.Time    `json:"next_attempt_at"`
	LeaseExpiresAt *time.Time   `json:"lease_expires_at,omitempty"`
	LastError      string       `json:"last_error,omitempty"`
	ProcessedAt    *time.Time   `json:"processed_at,omitempty"`
	CreatedAt      time.Time    `json:"created_at"`
}
