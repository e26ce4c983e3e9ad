package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// PurchasedListing is a buyer's paid order with the listing and the credentials
// most recently stored for it.
type PurchasedListing struct {
	Order      model.Order
	Listing    *model.Listing
	Credential *model.CredentialVersion
}

// OrderService records sales and manages seller balances.
type OrderService struct {
	tx      driven.Transactor
	reads   driven.Stores
	metrics Metrics
	now     func() time.Time
}

// NewOrderService creates an OrderService. reads holds store handles used outside
// transactions.
func NewOrderService(tx driven.Transactor, reads driven.Stores, metrics Metrics) *OrderService {
	return &OrderService{
		tx:      tx,
		reads:   reads,
		metrics: metricsOrNoop(metrics),
		now:     time.Now,
	}
}

// RecordSale stores the paid order produced by an external payment, marks the listing
// sold and credits the seller, all in one transaction.
func (s *OrderService) RecordSale(ctx context.Context, actor model.Actor, listingID, buyerID string, amountCents int64) (*model.Order, error) {
	order, err := s.recordSale(ctx, actor, listingID, buyerID, amountCents)
	s.metrics.ObserveTransition("record_sale", outcomeKind(err))
	return order, err
}

func (s *OrderService) recordSale(ctx context.Context, actor model.Actor, listingID, buyerID string, amountCents int64) (*model.Order, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	if !actor.IsAdmin() {
		return nil, authorizationError("only admins record sales", CodeForbidden, map[string]any{"actor_id": actor.ID})
	}

	buyerID = strings.TrimSpace(buyerID)
	switch {
	case strings.TrimSpace(listingID) == "":
		return nil, validationError("listing id is required", fieldError("listing_id", "required"))
	case buyerID == "":
		return nil, validationError("buyer id is required", fieldError("buyer_id", "required"))
	case amountCents <= 0:
		return nil, validationError("amount must be positive", fieldError("amount", "must be greater than zero"))
	}

	order := model.Order{
		ID:          uuid.NewString(),
		ListingID:   listingID,
		BuyerID:     buyerID,
		AmountCents: amountCents,
		IsPaid:      true,
		CreatedAt:   s.now(),
	}

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		l, err := loadListing(ctx, st, listingID)
		if err != nil {
			return err
		}
		if l.OwnerID == buyerID {
			return validationError("seller cannot buy their own listing", fieldError("buyer_id", "is the listing owner"))
		}
		if l.Status != model.ListingStatusActive {
			if l.ClosedToSeller() {
				return closedConflict(l)
			}
			return stateConflict(CodeListingNotActive, "only active listings can be sold", l)
		}

		existing, err := st.Orders.PaidForListing(ctx, l.ID)
		if err != nil {
			return translate(err, "load paid order")
		}
		if existing != nil {
			return stateConflict(CodeListingSold, "listing already has a paid order", l)
		}

		if err := st.Orders.Create(ctx, order); err != nil {
			return translate(err, "create order")
		}
		if err := st.Listings.UpdateStatus(ctx, l.ID, l.Version, model.ListingStatusSold); err != nil {
			return translate(err, "mark listing sold")
		}
		return translate(st.Users.Credit(ctx, l.OwnerID, amountCents), "credit seller")
	})
	if err != nil {
		return nil, translate(err, "record sale")
	}

	slog.Info("sale recorded", "listing_id", listingID, "buyer_id", buyerID, "amount_cents", amountCents)
	return &order, nil
}

// ListOrders returns the actor's paid orders, newest first, each with the latest
// credential version of its listing.
func (s *OrderService) ListOrders(ctx context.Context, actor model.Actor) ([]PurchasedListing, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}

	orders, err := s.reads.Orders.ListPaidByBuyer(ctx, actor.ID)
	if err != nil {
		return nil, translate(err, "list orders")
	}

	result := make([]PurchasedListing, 0, len(orders))
	for _, o := range orders {
		listing, err := s.reads.Listings.GetByID(ctx, o.ListingID)
		if err != nil {
			return nil, translate(err, "load listing")
		}
		credential, err := s.reads.Credentials.Latest(ctx, o.ListingID)
		if err != nil {
			return nil, translate(err, "load credentials")
		}
		result = append(result, PurchasedListing{Order: o, Listing: listing, Credential: credential})
	}
	return result, nil
}

// Withdraw moves amountCents from the actor's available balance to a payout account.
func (s *OrderService) Withdraw(ctx context.Context, actor model.Actor, amountCents int64, account string) (*Balance, error) {
	balance, err := s.withdraw(ctx, actor, amountCents, account)
	s.metrics.ObserveTransition("withdraw", outcomeKind(err))
	return balance, err
}

func (s *OrderService) withdraw(ctx context.Context, actor model.Actor, amountCents int64, account string) (*Balance, error) {
	if err := requireActor(actor); err != nil {
		return nil, err
	}
	account = strings.TrimSpace(account)
	if amountCents <= 0 {
		return nil, validationError("amount must be positive", fieldError("amount", "must be greater than zero"))
	}
	if account == "" {
		return nil, validationError("payout account is required", fieldError("account", "required"))
	}

	var balance Balance
	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		err := st.Users.Withdraw(ctx, model.Withdrawal{
			ID:          uuid.NewString(),
			UserID:      actor.ID,
			AmountCents: amountCents,
			Account:     account,
			CreatedAt:   s.now(),
		})
		if errors.Is(err, driven.ErrUserNotFound) {
			return conflictError(CodeInsufficientBalance, "insufficient balance", map[string]any{"user_id": actor.ID})
		}
		if err != nil {
			return translate(err, "withdraw")
		}

		u, err := st.Users.GetByID(ctx, actor.ID)
		if err != nil {
			return translate(err, "load balance")
		}
		if u == nil {
			return notFoundError("user", actor.ID)
		}
		balance = Balance{
			EarnedCents:    u.EarnedCents,
			WithdrawnCents: u.WithdrawnCents,
			AvailableCents: u.AvailableCents(),
		}
		return nil
	})
	if err != nil {
		return nil, translate(err, "withdraw")
	}

	slog.Info("withdrawal recorded", "user_id", actor.ID, "amount_cents", amountCents)
	return &balance, nil
}
