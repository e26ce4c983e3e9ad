package application

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/handoff/internal/adapter/driven/sqlite"
	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

var testKey = []byte("0123456789abcdef0123456789abcdef")

var (
	adminActor  = model.Actor{ID: "admin", Role: model.RoleAdmin}
	sellerActor = model.Actor{ID: "seller", Role: model.RoleUser, Plan: model.PlanFree}
	buyerActor  = model.Actor{ID: "buyer", Role: model.RoleUser, Plan: model.PlanFree}
)

// fixture wires the services to a file-backed SQLite database so that concurrent
// tests exercise real WAL locking.
type fixture struct {
	db        *sqlite.DB
	reads     driven.Stores
	channel   *recordingChannel
	lifecycle *LifecycleService
	listings  *ListingService
	orders    *OrderService
	outbox    *OutboxService
	users     *UserSyncService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	ctx := context.Background()
	db, err := sqlite.NewDB(ctx, filepath.Join(t.TempDir(), "handoff.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, sqlite.RunMigrations(db.Writer))

	reads := driven.Stores{
		Listings:    sqlite.NewListingRepo(db),
		Credentials: sqlite.NewCredentialRepo(db, testKey),
		Outbox:      sqlite.NewOutboxRepo(db),
		Orders:      sqlite.NewOrderRepo(db),
		Users:       sqlite.NewUserRepo(db),
	}
	tx := sqlite.NewTransactor(db, testKey)
	channel := &recordingChannel{}
	outbox := NewOutboxService(reads, channel, OutboxConfig{MaxAttempts: 3}, nil)

	return &fixture{
		db:        db,
		reads:     reads,
		channel:   channel,
		lifecycle: NewLifecycleService(tx, nil, outbox),
		listings:  NewListingService(tx, reads.Listings, reads.Users, nil, 0),
		orders:    NewOrderService(tx, reads, nil),
		outbox:    outbox,
		users:     NewUserSyncService(tx),
	}
}

// createListing adds an active listing owned by owner.
func (f *fixture) createListing(t *testing.T, owner model.Actor, title string) model.Listing {
	t.Helper()

	l, err := f.listings.Create(context.Background(), owner, ListingInput{
		Title:          title,
		Platform:       "Instagram",
		Username:       "@" + title,
		Niche:          "Fitness",
		FollowersCount: 10000,
		PriceCents:     25000,
	})
	require.NoError(t, err)
	return *l
}

// reload fetches the stored listing.
func (f *fixture) reload(t *testing.T, id string) model.Listing {
	t.Helper()

	l, err := f.reads.Listings.GetByID(context.Background(), id)
	require.NoError(t, err)
	require.NotNil(t, l)
	return *l
}

func (f *fixture) history(t *testing.T, id string) []model.CredentialVersion {
	t.Helper()

	h, err := f.reads.Credentials.History(context.Background(), id)
	require.NoError(t, err)
	return h
}

func (f *fixture) messages(t *testing.T, status model.OutboxStatus) []model.OutboxMessage {
	t.Helper()

	msgs, err := f.reads.Outbox.List(context.Background(), status, 100)
	require.NoError(t, err)
	return msgs
}

// addPaidOrder records a paid order directly, without the sale transition.
func (f *fixture) addPaidOrder(t *testing.T, listingID, buyerID string) {
	t.Helper()

	err := f.reads.Orders.Create(context.Background(), model.Order{
		ID: "order-" + listingID, ListingID: listingID, BuyerID: buyerID, AmountCents: 100, IsPaid: true,
	})
	require.NoError(t, err)
}

var testFields = []model.CredentialField{
	{Name: "Email", Value: "owner@example.com"},
	{Name: "Password", Value: "hunter2"},
}

// recordingChannel is a NotificationChannel that records sends and can be told to fail.
type recordingChannel struct {
	mu   sync.Mutex
	sent []model.Notification
	fail error
}

func (c *recordingChannel) Send(_ context.Context, n model.Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.fail != nil {
		return c.fail
	}
	c.sent = append(c.sent, n)
	return nil
}

func (c *recordingChannel) setFail(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = err
}

func (c *recordingChannel) notifications() []model.Notification {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]model.Notification(nil), c.sent...)
}

var errChannelDown = errors.New("channel down")

// requireKind asserts err carries the given kind and text code.
func requireKind(t *testing.T, err error, kind Kind, code string) {
	t.Helper()

	require.Error(t, err)
	require.Equal(t, kind, KindOf(err), "error: %v", err)
	if code != "" {
		require.Equal(t, code, TextCodeOf(err), "error: %v", err)
	}
}

// assertFlagChain checks changed implies verified implies submitted.
func assertFlagChain(t *testing.T, l model.Listing) {
	t.Helper()

	if l.CredentialChanged() {
		require.True(t, l.CredentialVerified(), "changed without verified")
	}
	if l.CredentialVerified() {
		require.True(t, l.CredentialSubmitted(), "verified without submitted")
	}
}
