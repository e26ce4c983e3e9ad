package sqlite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

func TestUserRepo_UpsertPreservesPlanAndBalance(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Upsert(ctx, model.User{ID: "u1", Email: "a@x.com", Name: "A"}))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, model.PlanFree, got.Plan)

	require.NoError(t, repo.Upsert(ctx, model.User{ID: "u1", Plan: model.PlanPremium, Email: "a@x.com"}))
	require.NoError(t, repo.Credit(ctx, "u1", 500))
	require.NoError(t, repo.Upsert(ctx, model.User{ID: "u1", Email: "new@x.com", Name: "B"}))

	got, err = repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", got.Email)
	assert.Equal(t, "B", got.Name)
	assert.Equal(t, model.PlanPremium, got.Plan)
	assert.Equal(t, int64(500), got.EarnedCents)
}

func TestUserRepo_CreditCreatesPlaceholder(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()

	require.NoError(t, repo.Credit(ctx, "seller", 1000))
	require.NoError(t, repo.Credit(ctx, "seller", 250))

	got, err := repo.GetByID(ctx, "seller")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, int64(1250), got.EarnedCents)
	assert.Equal(t, model.PlanFree, got.Plan)
}

func TestUserRepo_Withdraw(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, repo.Credit(ctx, "seller", 1000))

	require.NoError(t, repo.Withdraw(ctx, model.Withdrawal{ID: "w1", UserID: "seller", AmountCents: 600, Account: "iban"}))

	err := repo.Withdraw(ctx, model.Withdrawal{ID: "w2", UserID: "seller", AmountCents: 600, Account: "iban"})
	require.ErrorIs(t, err, driven.ErrInsufficientBalance)

	err = repo.Withdraw(ctx, model.Withdrawal{ID: "w3", UserID: "ghost", AmountCents: 1, Account: "iban"})
	require.ErrorIs(t, err, driven.ErrUserNotFound)

	got, err := repo.GetByID(ctx, "seller")
	require.NoError(t, err)
	assert.Equal(t, int64(600), got.WithdrawnCents)
	assert.Equal(t, int64(400), got.AvailableCents())
}

func TestUserRepo_Delete(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepo(db)
	ctx := context.Background()
	require.NoError(t, repo.Credit(ctx, "u1", 100))
	require.NoError(t, repo.Withdraw(ctx, model.Withdrawal{ID: "w1", UserID: "u1", AmountCents: 50, Account: "iban"}))

	require.NoError(t, repo.Delete(ctx, "u1"))

	got, err := repo.GetByID(ctx, "u1")
	require.NoError(t, err)
	assert.Nil(t, got)

	err = repo.Delete(ctx, "u1")
	require.ErrorIs(t, err, driven.ErrUserNotFound)
}
