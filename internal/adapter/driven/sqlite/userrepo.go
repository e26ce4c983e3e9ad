package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.UserStore = (*UserRepo)(nil)

// UserRepo is the SQLite implementation of the UserStore port interface.
type UserRepo struct {
	conn conn
}

// NewUserRepo creates a new UserRepo backed by the given DB.
func NewUserRepo(db *DB) *UserRepo {
	return &UserRepo{conn: dbConn(db)}
}

// Upsert inserts the user or refreshes profile fields on conflict. An empty plan
// defaults to free on insert and leaves the stored plan alone on update.
func (r *UserRepo) Upsert(ctx context.Context, u model.User) error {
	const query = `
		INSERT INTO users (id, email, name, image_url, plan, created_at, updated_at)
		VALUES (?, ?, ?, ?, COALESCE(NULLIF(?, ''), 'free'), ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			email = excluded.email,
			name = excluded.name,
			image_url = excluded.image_url,
			plan = CASE WHEN ? = '' THEN users.plan ELSE excluded.plan END,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	_, err := r.conn.writer.ExecContext(ctx, query,
		u.ID, u.Email, u.Name, u.ImageURL, string(u.Plan), now, now, string(u.Plan),
	)
	if err != nil {
		return fmt.Errorf("upsert user %s: %w", u.ID, err)
	}
	return nil
}

// GetByID returns the user, or nil, nil if not found.
func (r *UserRepo) GetByID(ctx context.Context, id string) (*model.User, error) {
	const query = `
		SELECT id, email, name, image_url, plan, earned_cents, withdrawn_cents, created_at, updated_at
		FROM users
		WHERE id = ?
	`

	var (
		u                    model.User
		plan                 string
		createdAt, updatedAt string
	)
	err := r.conn.reader.QueryRowContext(ctx, query, id).Scan(
		&u.ID, &u.Email, &u.Name, &u.ImageURL, &plan, &u.EarnedCents, &u.WithdrawnCents, &createdAt, &updatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", id, err)
	}
	u.Plan = model.Plan(plan)

	if u.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if u.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &u, nil
}

// Delete removes the user together with their withdrawal records.
func (r *UserRepo) Delete(ctx context.Context, id string) error {
	if _, err := r.conn.writer.ExecContext(ctx, `DELETE FROM withdrawals WHERE user_id = ?`, id); err != nil {
		return fmt.Errorf("delete withdrawals for user %s: %w", id, err)
	}

	res, err := r.conn.writer.ExecContext(ctx, `DELETE FROM users WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete user %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("user %s: %w", id, driven.ErrUserNotFound)
	}
	return nil
}

// Credit adds cents to the earned balance. A user the identity webhook has not
// announced yet gets a placeholder row.
func (r *UserRepo) Credit(ctx context.Context, id string, cents int64) error {
	const query = `
		INSERT INTO users (id, earned_cents, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			earned_cents = users.earned_cents + excluded.earned_cents,
			updated_at = excluded.updated_at
	`

	now := formatTime(time.Now())
	if _, err := r.conn.writer.ExecContext(ctx, query, id, cents, now, now); err != nil {
		return fmt.Errorf("credit user %s: %w", id, err)
	}
	return nil
}

// Withdraw debits the available balance with a conditional update and records the
// withdrawal. Callers run it inside a transaction so both writes land together.
func (r *UserRepo) Withdraw(ctx context.Context, w model.Withdrawal) error {
	const debit = `
		UPDATE users
		SET withdrawn_cents = withdrawn_cents + ?, updated_at = ?
		WHERE id = ? AND earned_cents - withdrawn_cents >= ?
	`

	res, err := r.conn.writer.ExecContext(ctx, debit, w.AmountCents, formatTime(time.Now()), w.UserID, w.AmountCents)
	if err != nil {
		return fmt.Errorf("debit user %s: %w", w.UserID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		var exists int
		err := r.conn.writer.QueryRowContext(ctx, `SELECT COUNT(*) FROM users WHERE id = ?`, w.UserID).Scan(&exists)
		if err != nil {
			return fmt.Errorf("check user %s: %w", w.UserID, err)
		}
		if exists == 0 {
			return fmt.Errorf("user %s: %w", w.UserID, driven.ErrUserNotFound)
		}
		return fmt.Errorf("withdraw %d for user %s: %w", w.AmountCents, w.UserID, driven.ErrInsufficientBalance)
	}

	const record = `
		INSERT INTO withdrawals (id, user_id, amount_cents, account, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	if _, err := r.conn.writer.ExecContext(ctx, record,
		w.ID, w.UserID, w.AmountCents, w.Account, formatTime(w.CreatedAt),
	); err != nil {
		return fmt.Errorf("record withdrawal for user %s: %w", w.UserID, err)
	}
	return nil
}
