package driven

import "context"

// Stores groups the store ports bound to a single transaction.
type Stores struct {
	Listings    ListingStore
	Credentials CredentialStore
	Outbox      OutboxStore
	Orders      OrderStore
	Users       UserStore
}

// Transactor runs fn inside one database transaction. The transaction commits when
// fn returns nil and rolls back otherwise. Writes from concurrent calls are serialized.
type Transactor interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context, s Stores) error) error
}
