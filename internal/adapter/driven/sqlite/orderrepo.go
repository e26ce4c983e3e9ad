package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OrderStore = (*OrderRepo)(nil)

// OrderRepo is the SQLite implementation of the OrderStore port interface.
type OrderRepo struct {
	conn conn
}

// NewOrderRepo creates a new OrderRepo backed by the given DB.
func NewOrderRepo(db *DB) *OrderRepo {
	return &OrderRepo{conn: dbConn(db)}
}

// Create inserts an order. A second paid order for the same listing violates a
// unique index and fails.
func (r *OrderRepo) Create(ctx context.Context, o model.Order) error {
	const query = `
		INSERT INTO orders (id, listing_id, buyer_id, amount_cents, is_paid, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.conn.writer.ExecContext(ctx, query,
		o.ID, o.ListingID, o.BuyerID, o.AmountCents, boolToInt(o.IsPaid), formatTime(o.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("create order for listing %s: %w", o.ListingID, err)
	}
	return nil
}

// PaidForListing returns the paid order for a listing, or nil, nil.
func (r *OrderRepo) PaidForListing(ctx context.Context, listingID string) (*model.Order, error) {
	const query = `
		SELECT id, listing_id, buyer_id, amount_cents, is_paid, created_at
		FROM orders
		WHERE listing_id = ? AND is_paid = 1
	`

	o, err := scanOrder(r.conn.reader.QueryRowContext(ctx, query, listingID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("paid order for listing %s: %w", listingID, err)
	}
	return o, nil
}

// ListPaidByBuyer returns the buyer's paid orders, newest first.
func (r *OrderRepo) ListPaidByBuyer(ctx context.Context, buyerID string) ([]model.Order, error) {
	const query = `
		SELECT id, listing_id, buyer_id, amount_cents, is_paid, created_at
		FROM orders
		WHERE buyer_id = ? AND is_paid = 1
		ORDER BY created_at DESC
	`

	rows, err := r.conn.reader.QueryContext(ctx, query, buyerID)
	if err != nil {
		return nil, fmt.Errorf("list orders for buyer %s: %w", buyerID, err)
	}
	defer rows.Close()

	var orders []model.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan order: %w", err)
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate orders: %w", err)
	}
	return orders, nil
}

// CountByBuyer counts every order placed by the buyer, paid or not.
func (r *OrderRepo) CountByBuyer(ctx context.Context, buyerID string) (int, error) {
	var n int
	err := r.conn.reader.QueryRowContext(ctx, `SELECT COUNT(*) FROM orders WHERE buyer_id = ?`, buyerID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count orders for buyer %s: %w", buyerID, err)
	}
	return n, nil
}

func scanOrder(s scanner) (*model.Order, error) {
	var o model.Order
	var createdAt string

	if err := s.Scan(&o.ID, &o.ListingID, &o.BuyerID, &o.AmountCents, &o.IsPaid, &createdAt); err != nil {
		return nil, err
	}

	var err error
	if o.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	return &o, nil
}
