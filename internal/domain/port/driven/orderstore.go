package driven

import (
	"context"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// OrderStore defines the driven port for order persistence.
type OrderStore interface {
	Create(ctx context.Context, order model.Order) error
	// PaidForListing returns the paid order for a listing, or nil, nil if none exists.
	PaidForListing(ctx context.Context, listingID string) (*model.Order, error)
	ListPaidByBuyer(ctx context.Context, buyerID string) ([]model.Order, error)
	CountByBuyer(ctx context.Context, buyerID string) (int, error)
}
