package model

import "time"

// Order links a buyer to a listing. Payment happens elsewhere; IsPaid records the outcome.
type Order struct {
	ID          string
	ListingID   string
	BuyerID     string
	AmountCents int64
	IsPaid      bool
	CreatedAt   time.Time
}

// Withdrawal is a seller payout request against their earned balance.
type Withdrawal struct {
	ID          string
	UserID      string
	AmountCents int64
	Account     string
	CreatedAt   time.Time
}
