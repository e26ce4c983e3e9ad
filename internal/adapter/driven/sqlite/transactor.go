package sqlite

import (
	"context"
	"fmt"

	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Transactor = (*Transactor)(nil)

// Transactor opens write transactions on the single writer connection. Because the
// writer pool holds one connection, transactions from concurrent callers run one at a
// time. Repositories created outside fn must not be used inside it.
type Transactor struct {
	db  *DB
	key []byte
}

// NewTransactor creates a Transactor. key is the credential encryption key passed to
// the transaction-bound CredentialRepo.
func NewTransactor(db *DB, key []byte) *Transactor {
	return &Transactor{db: db, key: key}
}

// WithinTx runs fn with stores bound to a single transaction.
func (t *Transactor) WithinTx(ctx context.Context, fn func(ctx context.Context, s driven.Stores) error) error {
	tx, err := t.db.Writer.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	c := txConn(tx)
	stores := driven.Stores{
		Listings:    &ListingRepo{conn: c},
		Credentials: &CredentialRepo{conn: c, sealer: sealer{key: t.key}},
		Outbox:      &OutboxRepo{conn: c},
		Orders:      &OrderRepo{conn: c},
		Users:       &UserRepo{conn: c},
	}

	if err := fn(ctx, stores); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}
