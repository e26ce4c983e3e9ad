package application

import (
	"context"
	"log/slog"
	"math"
	"strings"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

const (
	// DefaultFreeListingLimit caps the non-deleted listings of a free-plan seller.
	DefaultFreeListingLimit = 5
	maxListingImages        = 5
)

// ListingInput carries the seller-editable catalogue fields of a listing.
type ListingInput struct {
	Title          string
	Platform       string
	Username       string
	Niche          string
	FollowersCount int64
	EngagementRate float64
	MonthlyViews   int64
	PriceCents     int64
	Description    string
	Images         []string
}

// PublicFilter narrows the public catalogue.
type PublicFilter struct {
	Platform      string
	Niche         string
	MinPriceCents int64
	MaxPriceCents int64
	MinFollowers  int64
	VerifiedOnly  bool
	Query         string
}

// OwnerListings is a seller's dashboard view.
type OwnerListings struct {
	Listings []model.Listing
	Balance  Balance
}

// Balance summarizes a seller's earnings.
type Balance struct {
	EarnedCents    int64
	WithdrawnCents int64
	AvailableCents int64
}

// ListingService manages the listing catalogue.
type ListingService struct {
	tx        driven.Transactor
	listings  driven.ListingStore
	users     driven.UserStore
	metrics   Metrics
	freeLimit int
	now       func() time.Time
}

// NewListingService creates a ListingService. listings and users are read-only
// handles used outside transactions. A freeLimit of zero applies the default.
func NewListingService(tx driven.Transactor, listings driven.ListingStore, users driven.UserStore, metrics Metrics, freeLimit int) *ListingService {
	if freeLimit <= 0 {
		freeLimit = DefaultFreeListingLimit
	}
	return &ListingService{
		tx:        tx,
		listings:  listings,
		users:     users,
		metrics:   metricsOrNoop(metrics),
		freeLimit: freeLimit,
		now:       time.Now,
	}
}

// Create adds an active listing for the actor. Free-plan sellers are capped.
func (s *ListingService) Create(ctx context.Context, actor model.Actor, in ListingInput) (*model.Listing, error) {
	listing, err := s.create(ctx, actor, in)
	s.metrics.ObserveTransition("create_listing", outcomeKind(err))
	return listing, err
}

func (s *ListingService) create(ctx context.Context, actor model.Actor, in ListingInput) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in, err := normalizeListingInput(in)
	if err != nil {
		return nil, err
	}

	now := s.now()
	listing := model.Listing{
		ID:              uuid.NewString(),
		OwnerID:         actor.ID,
		Title:           in.Title,
		Platform:        in.Platform,
		Username:        in.Username,
		Niche:           in.Niche,
		FollowersCount:  in.FollowersCount,
		EngagementRate:  in.EngagementRate,
		MonthlyViews:    in.MonthlyViews,
		PriceCents:      in.PriceCents,
		Description:     in.Description,
		Images:          in.Images,
		Status:          model.ListingStatusActive,
		CredentialState: model.CredentialUnsubmitted,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	err = s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		if actor.Plan != model.PlanPremium {
			n, err := st.Listings.CountByOwner(ctx, actor.ID)
			if err != nil {
				return translate(err, "count listings")
			}
			if n >= s.freeLimit {
				return conflictError(CodeListingLimitReached, "free plan listing limit reached",
					map[string]any{"owner_id": actor.ID, "limit": s.freeLimit})
			}
		}
		return translate(st.Listings.Create(ctx, listing), "create listing")
	})
	if err != nil {
		return nil, translate(err, "create listing")
	}

	slog.Info("listing created", "listing_id", listing.ID, "owner_id", actor.ID)
	return &listing, nil
}

// Update replaces the catalogue fields of a listing the actor owns.
func (s *ListingService) Update(ctx context.Context, actor model.Actor, id string, in ListingInput) (*model.Listing, error) {
	listing, err := s.update(ctx, actor, id, in)
	s.metrics.ObserveTransition("update_listing", outcomeKind(err))
	return listing, err
}

func (s *ListingService) update(ctx context.Context, actor model.Actor, id string, in ListingInput) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	in, err := normalizeListingInput(in)
	if err != nil {
		return nil, err
	}

	var result model.Listing
	err = s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwner); err != nil {
			return err
		}
		if err := rejectClosed(l); err != nil {
			return err
		}

		l.Title = in.Title
		l.Platform = in.Platform
		l.Username = in.Username
		l.Niche = in.Niche
		l.FollowersCount = in.FollowersCount
		l.EngagementRate = in.EngagementRate
		l.MonthlyViews = in.MonthlyViews
		l.PriceCents = in.PriceCents
		l.Description = in.Description
		l.Images = in.Images

		if err := st.Listings.UpdateDetails(ctx, *l); err != nil {
			return translate(err, "update listing")
		}

		l.Version++
		l.UpdatedAt = s.now()
		result = *l
		return nil
	})
	if err != nil {
		return nil, translate(err, "update listing")
	}
	return &result, nil
}

// ToggleStatus flips a listing between active and inactive.
func (s *ListingService) ToggleStatus(ctx context.Context, actor model.Actor, id string) (*model.Listing, error) {
	listing, err := s.toggleStatus(ctx, actor, id)
	s.metrics.ObserveTransition("toggle_status", outcomeKind(err))
	return listing, err
}

func (s *ListingService) toggleStatus(ctx context.Context, actor model.Actor, id string) (*model.Listing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	var result model.Listing
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, id)
		if err != nil {
			return err
		}
		if err := authorize(actor, l, roleOwner); err != nil {
			return err
		}

		var next model.ListingStatus
		switch l.Status {
		case model.ListingStatusActive:
			next = model.ListingStatusInactive
		case model.ListingStatusInactive:
			next = model.ListingStatusActive
		case model.ListingStatusSold, model.ListingStatusDeleted:
			return closedConflict(l)
		default:
			return stateConflict(CodeListingNotActive, "listing status cannot be changed by the seller", l)
		}

		if err := st.Listings.UpdateStatus(ctx, l.ID, l.Version, next); err != nil {
			return translate(err, "update listing status")
		}

		l.Status = next
		if next != model.ListingStatusActive {
			l.Featured = false
		}
		l.Version++
		l.UpdatedAt = s.now()
		result = *l
		return nil
	})
	if err != nil {
		return nil, translate(err, "toggle listing status")
	}
	return &result, nil
}

// ListPublic returns active listings matching the filter, featured first.
func (s *ListingService) ListPublic(ctx context.Context, f PublicFilter) ([]model.Listing, error) {
	if f.MinPriceCents < 0 || f.MaxPriceCents < 0 || f.MinFollowers < 0 {
		return nil, validationError("filters must not be negative")
	}
	if f.MaxPriceCents > 0 && f.MinPriceCents > f.MaxPriceCents {
		return nil, validationError("min price exceeds max price", fieldError("min_price", "greater than max_price"))
	}

	listings, err := s.listings.List(ctx, driven.ListingFilter{
		Statuses:      []model.ListingStatus{model.ListingStatusActive},
		Platform:      f.Platform,
		Niche:         f.Niche,
		MinPriceCents: f.MinPriceCents,
		MaxPriceCents: f.MaxPriceCents,
		MinFollowers:  f.MinFollowers,
		VerifiedOnly:  f.VerifiedOnly,
		Query:         f.Query,
	})
	if err != nil {
		return nil, translate(err, "list listings")
	}
	return listings, nil
}

// ListForOwner returns the actor's non-deleted listings and balance.
func (s *ListingService) ListForOwner(ctx context.Context, actor model.Actor) (*OwnerListings, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	listings, err := s.listings.List(ctx, driven.ListingFilter{OwnerID: actor.ID, ExcludeDeleted: true})
	if err != nil {
		return nil, translate(err, "list own listings")
	}

	var balance Balance
	u, err := s.users.GetByID(ctx, actor.ID)
	if err != nil {
		return nil, translate(err, "load balance")
	}
	if u != nil {
		balance = Balance{
			EarnedCents:    u.EarnedCents,
			WithdrawnCents: u.WithdrawnCents,
			AvailableCents: u.AvailableCents(),
		}
	}

	return &OwnerListings{Listings: listings, Balance: balance}, nil
}

// Get returns a listing. Deleted listings are only visible to their owner and admins.
func (s *ListingService) Get(ctx context.Context, actor model.Actor, id string) (*model.Listing, error) {
	if strings.TrimSpace(id) == "" {
		return nil, validationError("listing id is required", fieldError("id", "required"))
	}

	l, err := s.listings.GetByID(ctx, id)
	if err != nil {
		return nil, translate(err, "get listing")
	}
	if l == nil {
		return nil, notFoundError("listing", id)
	}
	if l.Status == model.ListingStatusDeleted && !canAct(actor, l, roleOwnerOrAdmin) {
		return nil, notFoundError("listing", id)
	}
	return l, nil
}

// normalizeListingInput trims and canonicalizes input and rejects invalid values.
func normalizeListingInput(in ListingInput) (ListingInput, error) {
	in.Title = strings.TrimSpace(in.Title)
	in.Platform = strings.ToLower(strings.TrimSpace(in.Platform))
	in.Username = strings.TrimPrefix(strings.TrimSpace(in.Username), "@")
	in.Niche = strings.ToLower(strings.TrimSpace(in.Niche))
	in.Description = strings.TrimSpace(in.Description)

	images := make([]string, 0, len(in.Images))
	for _, img := range in.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	in.Images = images

	var problems []goerrors.FieldError
	reject := func(field, msg string) {
		problems = append(problems, fieldError(field, msg))
	}

	if in.Title == "" {
		reject("title", "required")
	}
	if in.Platform == "" {
		reject("platform", "required")
	}
	if in.Username == "" {
		reject("username", "required")
	}
	if in.PriceCents <= 0 {
		reject("price", "must be greater than zero")
	}
	if in.FollowersCount < 0 {
		reject("followers_count", "must not be negative")
	}
	if in.MonthlyViews < 0 {
		reject("monthly_views", "must not be negative")
	}
	if math.IsNaN(in.EngagementRate) || in.EngagementRate < 0 || in.EngagementRate > 100 {
		reject("engagement_rate", "must be between 0 and 100")
	}
	if len(in.Images) > maxListingImages {
		reject("images", "at most 5 images")
	}

	if len(problems) > 0 {
		return in, validationError("invalid listing", problems...)
	}
	return in, nil
}
