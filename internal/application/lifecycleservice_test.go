package application

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

func TestLifecycle_SubmitMovesToSubmitted(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	got, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialSubmitted, got.CredentialState)
	assert.True(t, got.CredentialSubmitted())
	assert.False(t, got.CredentialVerified())

	stored := f.reload(t, l.ID)
	assert.Equal(t, model.CredentialSubmitted, stored.CredentialState)
	assert.Equal(t, got.Version, stored.Version)

	history := f.history(t, l.ID)
	require.Len(t, history, 1)
	assert.Equal(t, model.CredentialKindOriginal, history[0].Kind)
	assert.Equal(t, int64(1), history[0].Submission)
	assert.Equal(t, testFields, history[0].Fields)
}

func TestLifecycle_SubmitValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	tests := []struct {
		name      string
		listingID string
		fields    []model.CredentialField
	}{
		{name: "empty list", listingID: l.ID, fields: nil},
		{name: "blank name", listingID: l.ID, fields: []model.CredentialField{{Name: " ", Value: "x"}}},
		{name: "blank value", listingID: l.ID, fields: []model.CredentialField{{Name: "Password", Value: ""}}},
		{name: "duplicate names", listingID: l.ID, fields: []model.CredentialField{{Name: "Email", Value: "a"}, {Name: "email", Value: "b"}}},
		{name: "missing listing id", listingID: "", fields: testFields},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.lifecycle.Submit(ctx, sellerActor, tt.listingID, tt.fields)
			requireKind(t, err, KindValidation, CodeValidationFailed)
		})
	}

	assert.Equal(t, model.CredentialUnsubmitted, f.reload(t, l.ID).CredentialState)
	assert.Empty(t, f.history(t, l.ID))
}

func TestLifecycle_SubmitRequiresOwner(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, buyerActor, l.ID, testFields)
	requireKind(t, err, KindAuthorization, CodeForbidden)

	// Admins are not owners.
	_, err = f.lifecycle.Submit(ctx, adminActor, l.ID, testFields)
	requireKind(t, err, KindAuthorization, CodeForbidden)

	_, err = f.lifecycle.Submit(ctx, model.Actor{}, l.ID, testFields)
	requireKind(t, err, KindUnauthenticated, CodeUnauthenticated)

	_, err = f.lifecycle.Submit(ctx, sellerActor, "missing", testFields)
	requireKind(t, err, KindNotFound, CodeNotFound)

	assert.Empty(t, f.history(t, l.ID))
}

func TestLifecycle_SubmitRejectedOnClosedListing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sold := f.createListing(t, sellerActor, "sold")
	_, err := f.orders.RecordSale(ctx, adminActor, sold.ID, buyerActor.ID, 25000)
	require.NoError(t, err)

	deleted := f.createListing(t, sellerActor, "deleted")
	require.NoError(t, f.lifecycle.Delete(ctx, sellerActor, deleted.ID))

	_, err = f.lifecycle.Submit(ctx, sellerActor, sold.ID, testFields)
	requireKind(t, err, KindConflict, CodeListingSold)

	_, err = f.lifecycle.Submit(ctx, sellerActor, deleted.ID, testFields)
	requireKind(t, err, KindConflict, CodeListingDeleted)

	soldAfter := f.reload(t, sold.ID)
	assert.Equal(t, model.CredentialUnsubmitted, soldAfter.CredentialState)
	assert.Empty(t, f.history(t, sold.ID))
	assert.Empty(t, f.history(t, deleted.ID))
}

func TestLifecycle_VerifyTwiceConflicts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Verify(ctx, adminActor, l.ID)
	requireKind(t, err, KindConflict, CodeCredentialNotSubmitted)

	_, err = f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)

	_, err = f.lifecycle.Verify(ctx, sellerActor, l.ID)
	requireKind(t, err, KindAuthorization, CodeForbidden)

	got, err := f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialVerified, got.CredentialState)

	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	requireKind(t, err, KindConflict, CodeCredentialVerified)

	assert.Equal(t, model.CredentialVerified, f.reload(t, l.ID).CredentialState)
}

func TestLifecycle_ResubmitAfterVerifyResets(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)

	updated := []model.CredentialField{{Name: "Email", Value: "new@example.com"}, {Name: "Password", Value: "changed"}}
	got, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, updated)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialSubmitted, got.CredentialState)
	assert.False(t, got.CredentialVerified())

	history := f.history(t, l.ID)
	require.Len(t, history, 2)
	assert.Equal(t, int64(2), history[1].Submission)
	assert.Equal(t, updated, history[1].Fields)
}

func TestLifecycle_ChangePreconditions(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)

	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Password"}})
	requireKind(t, err, KindConflict, CodeCredentialNotVerified)

	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)

	_, err = f.lifecycle.Change(ctx, sellerActor, l.ID, []model.CredentialField{{Name: "Password"}})
	requireKind(t, err, KindAuthorization, CodeForbidden)

	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Recovery phone"}})
	requireKind(t, err, KindValidation, CodeValidationFailed)

	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, nil)
	requireKind(t, err, KindValidation, CodeValidationFailed)

	assert.Equal(t, model.CredentialVerified, f.reload(t, l.ID).CredentialState)
	assert.Empty(t, f.messages(t, ""))
}

func TestLifecycle_ChangeGeneratesAndCarriesFields(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)

	res, err := f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "password", Value: ""}})
	require.NoError(t, err)

	assert.Equal(t, model.CredentialChanged, res.Listing.CredentialState)
	assert.Equal(t, model.CredentialKindChanged, res.Version.Kind)
	assert.Equal(t, int64(1), res.Version.Submission)

	email, ok := res.Version.Field("Email")
	require.True(t, ok)
	assert.Equal(t, "owner@example.com", email)

	password, ok := res.Version.Field("Password")
	require.True(t, ok)
	assert.Len(t, password, generatedSecretLength)
	assert.NotEqual(t, "hunter2", password)

	// No paid order: the owner is notified.
	msgs := f.messages(t, model.OutboxPending)
	require.Len(t, msgs, 1)
	assert.Equal(t, sellerActor.ID, msgs[0].RecipientID)
	assert.Equal(t, model.TemplateCredentialChanged, msgs[0].Template)
	assert.Equal(t, res.Version.ID, msgs[0].Payload["credential_version_id"])
	for _, v := range msgs[0].Payload {
		assert.NotEqual(t, password, v, "payload must not carry secrets")
	}

	// Re-rotation from changed is allowed.
	res2, err := f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Email", Value: "rotated@example.com"}})
	require.NoError(t, err)
	carried, _ := res2.Version.Field("Password")
	assert.Equal(t, password, carried)
}

func TestLifecycle_Scenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")
	f.addPaidOrder(t, l.ID, buyerActor.ID)

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	assertFlagChain(t, f.reload(t, l.ID))

	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)
	assertFlagChain(t, f.reload(t, l.ID))

	res, err := f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Password", Value: "s3cret-new"}})
	require.NoError(t, err)
	changed := f.reload(t, l.ID)
	assert.True(t, changed.CredentialChanged())
	assertFlagChain(t, changed)

	msgs := f.messages(t, model.OutboxPending)
	require.Len(t, msgs, 1)
	assert.Equal(t, buyerActor.ID, msgs[0].RecipientID)

	got, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialSubmitted, got.CredentialState)
	assert.False(t, got.CredentialChanged())
	assertFlagChain(t, f.reload(t, l.ID))

	history := f.history(t, l.ID)
	require.Len(t, history, 3)
	assert.Equal(t, res.Version.ID, history[1].ID)
	assert.Equal(t, model.CredentialKindChanged, history[1].Kind)
	assert.Equal(t, model.CredentialKindOriginal, history[2].Kind)
	assert.Equal(t, int64(2), history[2].Submission)
}

func TestLifecycle_HistoryHidesRotationFromSellerAfterSale(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)
	_, err = f.orders.RecordSale(ctx, adminActor, l.ID, buyerActor.ID, 25000)
	require.NoError(t, err)
	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Password", Value: "buyer-only-secret"}})
	require.NoError(t, err)

	seen, err := f.lifecycle.CredentialHistory(ctx, sellerActor, l.ID)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.Equal(t, testFields, seen[0].Fields)
	assert.False(t, seen[0].Redacted)
	assert.Equal(t, model.CredentialKindChanged, seen[1].Kind)
	assert.True(t, seen[1].Redacted)
	for _, v := range seen {
		for _, field := range v.Fields {
			assert.NotEqual(t, "buyer-only-secret", field.Value)
		}
	}
	assert.Equal(t, []model.CredentialField{{Name: "Email"}, {Name: "Password"}}, seen[1].Fields)

	full, err := f.lifecycle.CredentialHistory(ctx, adminActor, l.ID)
	require.NoError(t, err)
	require.Len(t, full, 2)
	assert.False(t, full[1].Redacted)
	password, _ := full[1].Field("Password")
	assert.Equal(t, "buyer-only-secret", password)
}

func TestLifecycle_HistoryWithPaidOrderBeforeSaleStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")
	f.addPaidOrder(t, l.ID, buyerActor.ID)

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Password", Value: "buyer-only-secret"}})
	require.NoError(t, err)

	seen, err := f.lifecycle.CredentialHistory(ctx, sellerActor, l.ID)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.True(t, seen[1].Redacted)
	_, ok := seen[1].Field("Password")
	assert.True(t, ok)
	value, _ := seen[1].Field("Password")
	assert.Empty(t, value)
}

func TestLifecycle_HistoryWithoutBuyerShowsRotation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	l := f.createListing(t, sellerActor, "fitjane")

	_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, l.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Change(ctx, adminActor, l.ID, []model.CredentialField{{Name: "Password", Value: "rotated"}})
	require.NoError(t, err)

	seen, err := f.lifecycle.CredentialHistory(ctx, sellerActor, l.ID)
	require.NoError(t, err)
	require.Len(t, seen, 2)
	assert.False(t, seen[1].Redacted)
	password, _ := seen[1].Field("Password")
	assert.Equal(t, "rotated", password)
}

func TestLifecycle_Delete(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	plain := f.createListing(t, sellerActor, "plain")
	require.NoError(t, f.lifecycle.Delete(ctx, sellerActor, plain.ID))
	assert.Equal(t, model.ListingStatusDeleted, f.reload(t, plain.ID).Status)
	assert.Empty(t, f.messages(t, ""))

	err := f.lifecycle.Delete(ctx, sellerActor, plain.ID)
	requireKind(t, err, KindConflict, CodeListingDeleted)

	rotated := f.createListing(t, sellerActor, "rotated")
	_, err = f.lifecycle.Submit(ctx, sellerActor, rotated.ID, testFields)
	require.NoError(t, err)
	_, err = f.lifecycle.Verify(ctx, adminActor, rotated.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.Change(ctx, adminActor, rotated.ID, []model.CredentialField{{Name: "Password"}})
	require.NoError(t, err)

	err = f.lifecycle.Delete(ctx, buyerActor, rotated.ID)
	requireKind(t, err, KindAuthorization, CodeForbidden)

	require.NoError(t, f.lifecycle.Delete(ctx, sellerActor, rotated.ID))

	var onDelete []model.OutboxMessage
	for _, m := range f.messages(t, "") {
		if m.Template == model.TemplateCredentialChangedOnDelete {
			onDelete = append(onDelete, m)
		}
	}
	require.Len(t, onDelete, 1)
	assert.Equal(t, sellerActor.ID, onDelete[0].RecipientID)
	assert.Equal(t, rotated.ID, onDelete[0].ListingID)

	// Versions are retained after deletion.
	assert.Len(t, f.history(t, rotated.ID), 2)
}

func TestLifecycle_MarkFeatured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	premium := model.Actor{ID: "seller", Role: model.RoleUser, Plan: model.PlanPremium}

	a := f.createListing(t, premium, "alpha")
	b := f.createListing(t, premium, "beta")

	_, err := f.lifecycle.MarkFeatured(ctx, sellerActor, a.ID)
	requireKind(t, err, KindAuthorization, CodePremiumRequired)

	_, err = f.lifecycle.MarkFeatured(ctx, premium, a.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.MarkFeatured(ctx, premium, b.ID)
	require.NoError(t, err)

	assert.False(t, f.reload(t, a.ID).Featured)
	assert.True(t, f.reload(t, b.ID).Featured)

	_, err = f.listings.ToggleStatus(ctx, premium, a.ID)
	require.NoError(t, err)
	_, err = f.lifecycle.MarkFeatured(ctx, premium, a.ID)
	requireKind(t, err, KindConflict, CodeListingNotActive)
}

func TestLifecycle_ConcurrentSubmitAndVerify(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	for i := 0; i < 10; i++ {
		l := f.createListing(t, model.Actor{ID: "seller", Plan: model.PlanPremium}, "race")
		_, err := f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
		require.NoError(t, err)
		before := f.reload(t, l.ID)

		var wg sync.WaitGroup
		var submitErr, verifyErr error
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, submitErr = f.lifecycle.Submit(ctx, sellerActor, l.ID, testFields)
		}()
		go func() {
			defer wg.Done()
			_, verifyErr = f.lifecycle.Verify(ctx, adminActor, l.ID)
		}()
		wg.Wait()

		// Either order is serializable and both operations succeed from state submitted.
		require.NoError(t, submitErr)
		require.NoError(t, verifyErr)

		after := f.reload(t, l.ID)
		assert.Equal(t, before.Version+2, after.Version, "both writes must land")
		assert.Contains(t, []model.CredentialState{model.CredentialSubmitted, model.CredentialVerified}, after.CredentialState)
		assertFlagChain(t, after)
		assert.Len(t, f.history(t, l.ID), 2)
	}
}

func TestLifecycle_ConcurrentMarkFeatured(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	premium := model.Actor{ID: "seller", Role: model.RoleUser, Plan: model.PlanPremium}

	ids := make([]string, 4)
	for i := range ids {
		ids[i] = f.createListing(t, premium, "listing").ID
	}

	var wg sync.WaitGroup
	errs := make([]error, len(ids))
	for i, id := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.lifecycle.MarkFeatured(ctx, premium, id)
		}()
	}
	wg.Wait()

	for _, err := range errs {
		require.NoError(t, err)
	}

	var featured int
	for _, id := range ids {
		if f.reload(t, id).Featured {
			featured++
		}
	}
	assert.Equal(t, 1, featured)
}

func TestCredentialStateFlags(t *testing.T) {
	tests := []struct {
		state     model.CredentialState
		submitted bool
		verified  bool
		changed   bool
	}{
		{model.CredentialUnsubmitted, false, false, false},
		{model.CredentialSubmitted, true, false, false},
		{model.CredentialVerified, true, true, false},
		{model.CredentialChanged, true, true, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			l := model.Listing{CredentialState: tt.state}
			assert.Equal(t, tt.submitted, l.CredentialSubmitted())
			assert.Equal(t, tt.verified, l.CredentialVerified())
			assert.Equal(t, tt.changed, l.CredentialChanged())
			assertFlagChain(t, l)
		})
	}
}

func TestGenerateSecret(t *testing.T) {
	a, err := generateSecret(32)
	require.NoError(t, err)
	b, err := generateSecret(32)
	require.NoError(t, err)

	assert.Len(t, a, 32)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.Contains(t, secretAlphabet, string(r))
	}
}
