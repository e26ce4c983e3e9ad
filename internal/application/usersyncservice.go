package application

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// User event types emitted by the identity provider.
const (
	EventUserCreated = "user.created"
	EventUserUpdated = "user.updated"
	EventUserDeleted = "user.deleted"
)

// UserSyncService mirrors identity-provider user events into the user store.
type UserSyncService struct {
	tx driven.Transactor
}

// NewUserSyncService creates a UserSyncService.
func NewUserSyncService(tx driven.Transactor) *UserSyncService {
	return &UserSyncService{tx: tx}
}

// HandleEvent applies one user event. Deleting a user who has listings or orders
// deactivates their active listings instead of removing the record.
func (s *UserSyncService) HandleEvent(ctx context.Context, ev model.UserEvent) error {
	ev.User.ID = strings.TrimSpace(ev.User.ID)
	if ev.User.ID == "" {
		return validationError("user id is required", fieldError("data.id", "required"))
	}

	switch ev.Type {
	case EventUserCreated, EventUserUpdated:
		if ev.User.Plan != "" && ev.User.Plan != model.PlanFree && ev.User.Plan != model.PlanPremium {
			return validationError("unknown plan", fieldError("data.plan", "unknown plan: "+string(ev.User.Plan)))
		}
		err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
			return translate(st.Users.Upsert(ctx, ev.User), "upsert user")
		})
		if err != nil {
			return translate(err, "sync user")
		}
		slog.Info("user synced", "event", ev.Type, "user_id", ev.User.ID)
		return nil

	case EventUserDeleted:
		return s.deleteUser(ctx, ev.User.ID)

	default:
		return validationError("unsupported event type", fieldError("type", "unsupported: "+ev.Type))
	}
}

func (s *UserSyncService) deleteUser(ctx context.Context, userID string) error {
	var deactivated int64
	var removed bool

	err := s.tx.WithinTx(ctx, func(ctx context.Context, st driven.Stores) error {
		listings, err := st.Listings.CountByOwner(ctx, userID)
		if err != nil {
			return translate(err, "count listings")
		}
		orders, err := st.Orders.CountByBuyer(ctx, userID)
		if err != nil {
			return translate(err, "count orders")
		}

		if listings == 0 && orders == 0 {
			u, err := st.Users.GetByID(ctx, userID)
			if err != nil {
				return translate(err, "load user")
			}
			if u == nil {
				return nil
			}
			removed = true
			return translate(st.Users.Delete(ctx, userID), "delete user")
		}

		deactivated, err = st.Listings.DeactivateByOwner(ctx, userID)
		return translate(err, "deactivate listings")
	})
	if err != nil {
		return translate(err, "delete user")
	}

	slog.Info("user deleted", "user_id", userID, "record_removed", removed, "listings_deactivated", deactivated)
	return nil
}
