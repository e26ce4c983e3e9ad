package model

// ListingStatus represents the sale status of a listing.
type ListingStatus string

const (
	ListingStatusActive   ListingStatus = "active"
	ListingStatusInactive ListingStatus = "inactive"
	ListingStatusSold     ListingStatus = "sold"
	ListingStatusBanned   ListingStatus = "banned"
	ListingStatusDeleted  ListingStatus = "deleted"
)

// Valid reports whether s is one of the known listing statuses.
func (s ListingStatus) Valid() bool {
	switch s {
	case ListingStatusActive, ListingStatusInactive, ListingStatusSold, ListingStatusBanned, ListingStatusDeleted:
		return true
	}
	return false
}

// CredentialState is the position of a listing in the credential handoff sequence.
// The order of the constants is significant: each state implies every earlier one.
type CredentialState string

const (
	CredentialUnsubmitted CredentialState = "unsubmitted"
	CredentialSubmitted   CredentialState = "submitted"
	CredentialVerified    CredentialState = "verified"
	CredentialChanged     CredentialState = "changed"
)

// rank orders the states so that flag derivation is a comparison.
func (s CredentialState) rank() int {
	switch s {
	case CredentialSubmitted:
		return 1
	case CredentialVerified:
		return 2
	case CredentialChanged:
		return 3
	default:
		return 0
	}
}

// Valid reports whether s is one of the four known states.
func (s CredentialState) Valid() bool {
	switch s {
	case CredentialUnsubmitted, CredentialSubmitted, CredentialVerified, CredentialChanged:
		return true
	}
	return false
}

// AtLeast reports whether s has progressed to other or beyond.
func (s CredentialState) AtLeast(other CredentialState) bool {
	return s.rank() >= other.rank()
}

// CredentialKind distinguishes the seller-submitted secrets from a post-verification rotation.
type CredentialKind string

const (
	CredentialKindOriginal CredentialKind = "original"
	CredentialKindChanged  CredentialKind = "changed"
)

// Plan is a seller subscription tier.
type Plan string

const (
	PlanFree    Plan = "free"
	PlanPremium Plan = "premium"
)

// Role is the platform-level role of an authenticated caller.
type Role string

const (
	RoleUser  Role = "user"
	RoleAdmin Role = "admin"
)

// OutboxStatus represents the delivery state of a queued notification.
type OutboxStatus string

const (
	OutboxPending    OutboxStatus = "pending"
	OutboxProcessing OutboxStatus = "processing"
	OutboxDelivered  OutboxStatus = "delivered"
	OutboxFailed     OutboxStatus = "failed" // Retries exhausted; waits for an operator.
)
