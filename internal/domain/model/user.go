package model

import "time"

// User is a marketplace participant mirrored from the identity provider.
type User struct {
	ID             string
	Email          string
	Name           string
	ImageURL       string
	Plan           Plan
	EarnedCents    int64
	WithdrawnCents int64
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// AvailableCents is the balance a seller may still withdraw.
func (u User) AvailableCents() int64 {
	return u.EarnedCents - u.WithdrawnCents
}

// Actor is the authorization context of one request. It is resolved once from the
// identity provider and the user record, then passed explicitly to every operation.
type Actor struct {
	ID   string
	Role Role
	Plan Plan
}

// IsAdmin reports whether the actor holds the platform admin role.
func (a Actor) IsAdmin() bool {
	return a.Role == RoleAdmin
}

// Identity is what the identity provider asserts about a bearer token.
type Identity struct {
	UserID string
	Role   Role
	Email  string
}
