package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

func TestTransactor_CommitsAllStores(t *testing.T) {
	db := setupTestDB(t)
	tx := NewTransactor(db, testKey)
	ctx := context.Background()
	l := seedListing(t, db, "l1", "seller")

	err := tx.WithinTx(ctx, func(ctx context.Context, s driven.Stores) error {
		if _, err := s.Credentials.Append(ctx, model.CredentialVersion{
			ID: "v1", ListingID: l.ID, Submission: 1, Kind: model.CredentialKindOriginal, CreatedBy: "seller",
			Fields: []model.CredentialField{{Name: "Password", Value: "p"}},
		}); err != nil {
			return err
		}
		if err := s.Listings.UpdateCredentialState(ctx, l.ID, l.Version, model.CredentialSubmitted); err != nil {
			return err
		}
		return s.Outbox.Enqueue(ctx, model.OutboxMessage{ID: "m1", ListingID: l.ID, RecipientID: "seller", Template: "t"})
	})
	require.NoError(t, err)

	got, err := NewListingRepo(db).GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialSubmitted, got.CredentialState)

	latest, err := NewCredentialRepo(db, testKey).Latest(ctx, l.ID)
	require.NoError(t, err)
	require.NotNil(t, latest)

	msgs, err := NewOutboxRepo(db).List(ctx, model.OutboxPending, 10)
	require.NoError(t, err)
	assert.Len(t, msgs, 1)
}

func TestTransactor_RollsBackOnError(t *testing.T) {
	db := setupTestDB(t)
	tx := NewTransactor(db, testKey)
	ctx := context.Background()
	l := seedListing(t, db, "l1", "seller")
	boom := errors.New("boom")

	err := tx.WithinTx(ctx, func(ctx context.Context, s driven.Stores) error {
		if err := s.Listings.UpdateCredentialState(ctx, l.ID, l.Version, model.CredentialSubmitted); err != nil {
			return err
		}
		if err := s.Outbox.Enqueue(ctx, model.OutboxMessage{ID: "m1", ListingID: l.ID, RecipientID: "seller", Template: "t"}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := NewListingRepo(db).GetByID(ctx, l.ID)
	require.NoError(t, err)
	assert.Equal(t, model.CredentialUnsubmitted, got.CredentialState)
	assert.Equal(t, l.Version, got.Version)

	msgs, err := NewOutboxRepo(db).List(ctx, "", 10)
	require.NoError(t, err)
	assert.Empty(t, msgs)
}

func TestTransactor_HoldsWriteLockFromBegin(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "handoff.db")
	db, err := NewDB(ctx, path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, RunMigrations(db.Writer))

	// A second process on the same file that does not wait for locks.
	other, err := sql.Open("sqlite", "file:"+path+"?_pragma=busy_timeout(0)")
	require.NoError(t, err)
	t.Cleanup(func() { _ = other.Close() })

	err = NewTransactor(db, testKey).WithinTx(ctx, func(ctx context.Context, _ driven.Stores) error {
		_, err := other.ExecContext(ctx, "CREATE TABLE side_writer (id INTEGER)")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "locked")
		return nil
	})
	require.NoError(t, err)

	_, err = other.ExecContext(ctx, "CREATE TABLE side_writer (id INTEGER)")
	require.NoError(t, err)
}
