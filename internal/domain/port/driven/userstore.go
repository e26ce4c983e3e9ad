package driven

import (
	"context"
	"errors"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// Sentinel errors returned by UserStore implementations.
var (
	ErrUserNotFound        = errors.New("user not found")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// UserStore defines the driven port for user and balance persistence.
type UserStore interface {
	// Upsert creates the user or updates profile fields. Plan and balances are preserved
	// on update.
	Upsert(ctx context.Context, user model.User) error
	// GetByID returns nil, nil if the user does not exist.
	GetByID(ctx context.Context, id string) (*model.User, error)
	Delete(ctx context.Context, id string) error

	// Credit adds to the user's earned balance, creating a placeholder row if needed.
	Credit(ctx context.Context, id string, cents int64) error

	// Withdraw atomically increases the withdrawn amount if the available balance
	// covers it and records the withdrawal. Returns ErrInsufficientBalance otherwise.
	Withdraw(ctx context.Context, w model.Withdrawal) error
}
