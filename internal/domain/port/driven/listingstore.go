package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// Sentinel errors returned by ListingStore implementations.
var (
	// ErrListingNotFound indicates the requested listing does not exist.
	ErrListingNotFound = errors.New("listing not found")

	// ErrStaleListing indicates a compare-and-set update lost to a concurrent write.
	ErrStaleListing = errors.New("listing modified concurrently")
)

// ListingFilter narrows List results. Zero values disable a filter.
type ListingFilter struct {
	OwnerID        string
	Statuses       []model.ListingStatus
	Platform       string
	Niche          string
	MinPriceCents  int64
	MaxPriceCents  int64
	MinFollowers   int64
	VerifiedOnly   bool
	Query          string
	ExcludeDeleted bool
}

// ListingStore defines the driven port for listing persistence.
// Every mutation is a compare-and-set on Listing.Version and returns ErrStaleListing
// when the stored version differs, or ErrListingNotFound when the row is missing.
type ListingStore interface {
	Create(ctx context.Context, listing model.Listing) error
	// GetByID returns nil, nil if the listing does not exist.
	GetByID(ctx context.Context, id string) (*model.Listing, error)
	List(ctx context.Context, filter ListingFilter) ([]model.Listing, error)
	CountByOwner(ctx context.Context, ownerID string) (int, error)

	UpdateDetails(ctx context.Context, listing model.Listing) error
	UpdateCredentialState(ctx context.Context, id string, expectVersion int64, state model.CredentialState) error
	// UpdateStatus also clears the featured flag when status is not active.
	UpdateStatus(ctx context.Context, id string, expectVersion int64, status model.ListingStatus) error

	// ClearFeatured unsets the featured flag on every listing of the owner except keepID.
	ClearFeatured(ctx context.Context, ownerID, keepID string) error
	SetFeatured(ctx context.Context, id string, expectVersion int64) error

	// DeactivateByOwner moves all of the owner's active listings to inactive and
	// returns the number of rows changed.
	DeactivateByOwner(ctx context.Context, ownerID string) (int64, error)
}
