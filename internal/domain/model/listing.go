package model

import "time"

// Listing represents one social-media account offered for sale.
type Listing struct {
	ID              string
	OwnerID         string // Immutable after creation.
	Title           string
	Platform        string
	Username        string
	Niche           string
	FollowersCount  int64
	EngagementRate  float64
	MonthlyViews    int64
	PriceCents      int64
	Description     string // Markdown.
	Images          []string
	Status          ListingStatus
	Featured        bool
	CredentialState CredentialState
	Version         int64 // Incremented by every write; used for compare-and-set updates.
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// CredentialSubmitted reports the legacy isCredentialSubmitted flag.
func (l Listing) CredentialSubmitted() bool {
	return l.CredentialState.AtLeast(CredentialSubmitted)
}

// CredentialVerified reports the legacy isCredentialVerified flag.
func (l Listing) CredentialVerified() bool {
	return l.CredentialState.AtLeast(CredentialVerified)
}

// CredentialChanged reports the legacy isCredentialChanged flag.
func (l Listing) CredentialChanged() bool {
	return l.CredentialState == CredentialChanged
}

// ClosedToSeller reports whether the seller may no longer mutate credentials or details.
func (l Listing) ClosedToSeller() bool {
	return l.Status == ListingStatusSold || l.Status == ListingStatusDeleted
}
