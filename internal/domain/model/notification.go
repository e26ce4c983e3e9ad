package model

import "time"

// Notification templates.
const (
	TemplateCredentialChanged         = "credential_changed"
	TemplateCredentialChangedOnDelete = "credential_changed_on_delete"
)

// OutboxMessage is a pending side effect written in the same transaction as the
// state change that requires it. Payload never carries secret values.
type OutboxMessage struct {
	ID            string
	ListingID     string
	RecipientID   string
	Template      string
	Payload       map[string]string
	Status        OutboxStatus
	Attempts      int
	NextAttemptAt time.Time // Zero when not scheduled.
	LastError     string
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Notification is a resolved message handed to the delivery channel.
type Notification struct {
	MessageID   string
	RecipientID string
	Email       string
	TemplateID  string
	ListingID   string
	Data        map[string]string
}

// UserEvent is a user lifecycle event emitted by the identity provider.
type UserEvent struct {
	Type string // "user.created", "user.updated" or "user.deleted".
	User User
}
