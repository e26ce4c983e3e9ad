package application

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

func TestOrderService_RecordSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	premium := model.Actor{ID: sellerActor.ID, Plan: model.PlanPremium}
	l := f.createListing(t, premium, "fitjane")
	_, err := f.lifecycle.MarkFeatured(ctx, premium, l.ID)
	require.NoError(t, err)

	_, err = f.orders.RecordSale(ctx, sellerActor, l.ID, buyerActor.ID, 25000)
	requireKind(t, err, KindAuthorization, CodeForbidden)

	_, err = f.orders.RecordSale(ctx, adminActor, l.ID, sellerActor.ID, 25000)
	requireKind(t, err, KindValidation, CodeValidationFailed)

	order, err := f.orders.RecordSale(ctx, adminActor, l.ID, buyerActor.ID, 25000)
	require.NoError(t, err)
	assert.True(t, order.IsPaid)

	stored := f.reload(t, l.ID)
	assert.Equal(t, model.ListingStatusSold, stored.Status)
	assert.False(t, stored.Featured)

	_, err = f.orders.RecordSale(ctx, adminActor, l.ID, "another-buyer", 25000)
	requireKind(t, err, KindConflict, CodeListingSold)

	own, err := f.listings.ListForOwner(ctx, sellerActor)
	require.NoError(t, err)
	assert.Equal(t, int64(25000), own.Balance.EarnedCents)
	assert.Equal(t, int64(25000), own.Balance.AvailableCents)
}

func TestOrderService_ListOrdersIncludesCredentials(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.orders.RecordSale(ctx, adminActor, l.ID, buyerActor.ID, 100)
	require.NoError(t, err)

	purchases, err := f.orders.ListOrders(ctx, buyerActor)
	require.NoError(t, err)
	require.Len(t, purchases, 1)
	require.NotNil(t, purchases[0].Listing)
	require.NotNil(t, purchases[0].Credential)
	assert.Equal(t, l.ID, purchases[0].Listing.ID)
	assert.Equal(t, testFields, purchases[0].Credential.Fields)

	none, err := f.orders.ListOrders(ctx, sellerActor)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestOrderService_Withdraw(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")
	_, err := f.orders.RecordSale(ctx, adminActor, l.ID, buyerActor.ID, 1000)
	require.NoError(t, err)

	balance, err := f.orders.Withdraw(ctx, sellerActor, 600, "DE89 3704 0044 0532 0130 00")
	require.NoError(t, err)
	assert.Equal(t, int64(400), balance.AvailableCents)

	_, err = f.orders.Withdraw(ctx, sellerActor, 600, "DE89")
	requireKind(t, err, KindConflict, CodeInsufficientBalance)

	_, err = f.orders.Withdraw(ctx, buyerActor, 1, "DE89")
	requireKind(t, err, KindConflict, CodeInsufficientBalance)

	_, err = f.orders.Withdraw(ctx, sellerActor, 0, "DE89")
	requireKind(t, err, KindValidation, CodeValidationFailed)

	_, err = f.orders.Withdraw(ctx, sellerActor, 1, " ")
	requireKind(t, err, KindValidation, CodeValidationFailed)
}
