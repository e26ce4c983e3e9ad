package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.OutboxStore = (*OutboxRepo)(nil)

// OutboxRepo is the SQLite implementation of the OutboxStore port interface.
type OutboxRepo struct {
	conn conn
}

// NewOutboxRepo creates a new OutboxRepo backed by the given DB.
func NewOutboxRepo(db *DB) *OutboxRepo {
	return &OutboxRepo{conn: dbConn(db)}
}

const outboxColumns = `id, listing_id, recipient_id, template, payload, status, attempts,
	next_attempt_at, last_error, created_at, updated_at`

// Enqueue inserts a pending message.
func (r *OutboxRepo) Enqueue(ctx context.Context, msg model.OutboxMessage) error {
	const query = `
		INSERT INTO outbox (` + outboxColumns + `)
		VALUES (?, ?, ?, ?, ?, 'pending', 0, ?, '', ?, ?)
	`

	payload := msg.Payload
	if payload == nil {
		payload = map[string]string{}
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode outbox payload: %w", err)
	}

	createdAt := formatTime(msg.CreatedAt)
	_, err = r.conn.writer.ExecContext(ctx, query,
		msg.ID, msg.ListingID, msg.RecipientID, msg.Template, string(data),
		nullTime(msg.NextAttemptAt), createdAt, createdAt,
	)
	if err != nil {
		return fmt.Errorf("enqueue outbox message %s: %w", msg.ID, err)
	}
	return nil
}

// ClaimBatch moves due messages to processing in a single statement and returns them
// oldest first. Processing rows whose lease has expired are claimed again, which
// recovers messages held by a worker that stopped mid-delivery.
func (r *OutboxRepo) ClaimBatch(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 1
	}

	const query = `
		UPDATE outbox
		SET status = 'processing', updated_at = ?
		WHERE id IN (
			SELECT id FROM outbox
			WHERE (status = 'pending' AND (next_attempt_at IS NULL OR next_attempt_at <= ?))
			   OR (status = 'processing' AND updated_at <= ?)
			ORDER BY created_at
			LIMIT ?
		)
		RETURNING ` + outboxColumns

	nowStr := formatTime(now)
	leaseCutoff := formatTime(now.Add(-lease))

	rows, err := r.conn.writer.QueryContext(ctx, query, nowStr, nowStr, leaseCutoff, limit)
	if err != nil {
		return nil, fmt.Errorf("claim outbox batch: %w", err)
	}
	defer rows.Close()

	msgs, err := scanOutboxRows(rows)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt.Before(msgs[j].CreatedAt)
	})
	return msgs, nil
}

// Ack marks a message delivered and clears its retry schedule.
func (r *OutboxRepo) Ack(ctx context.Context, id string) error {
	const query = `
		UPDATE outbox
		SET status = 'delivered', last_error = '', next_attempt_at = NULL, updated_at = ?
		WHERE id = ?
	`

	res, err := r.conn.writer.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("ack outbox message %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Retry records a failed attempt and schedules the next one, or marks the message
// failed when nextAttemptAt is zero.
func (r *OutboxRepo) Retry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error {
	const query = `
		UPDATE outbox
		SET status = ?, attempts = attempts + 1, next_attempt_at = ?, last_error = ?, updated_at = ?
		WHERE id = ?
	`

	status := model.OutboxPending
	if nextAttemptAt.IsZero() {
		status = model.OutboxFailed
	}
	lastError := ""
	if cause != nil {
		lastError = strings.TrimSpace(cause.Error())
	}

	res, err := r.conn.writer.ExecContext(ctx, query,
		string(status), nullTime(nextAttemptAt), lastError, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("retry outbox message %s: %w", id, err)
	}
	return requireRow(res, id)
}

// Requeue moves a failed message back to pending for immediate delivery.
func (r *OutboxRepo) Requeue(ctx context.Context, id string) error {
	const query = `
		UPDATE outbox
		SET status = 'pending', next_attempt_at = NULL, updated_at = ?
		WHERE id = ? AND status = 'failed'
	`

	res, err := r.conn.writer.ExecContext(ctx, query, formatTime(time.Now()), id)
	if err != nil {
		return fmt.Errorf("requeue outbox message %s: %w", id, err)
	}
	return requireRow(res, id)
}

// List returns messages in the given status, oldest first. An empty status lists all.
func (r *OutboxRepo) List(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxMessage, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT ` + outboxColumns + ` FROM outbox`
	var args []any
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, string(status))
	}
	query += ` ORDER BY created_at LIMIT ?`
	args = append(args, limit)

	rows, err := r.conn.reader.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list outbox messages: %w", err)
	}
	defer rows.Close()

	return scanOutboxRows(rows)
}

// CountByStatus returns the number of messages per status.
func (r *OutboxRepo) CountByStatus(ctx context.Context) (map[model.OutboxStatus]int, error) {
	const query = `SELECT status, COUNT(*) FROM outbox GROUP BY status`

	rows, err := r.conn.reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count outbox messages: %w", err)
	}
	defer rows.Close()

	counts := make(map[model.OutboxStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan outbox count: %w", err)
		}
		counts[model.OutboxStatus(status)] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox counts: %w", err)
	}
	return counts, nil
}

func scanOutboxRows(rows *sql.Rows) ([]model.OutboxMessage, error) {
	var msgs []model.OutboxMessage
	for rows.Next() {
		msg, err := scanOutbox(rows)
		if err != nil {
			return nil, fmt.Errorf("scan outbox message: %w", err)
		}
		msgs = append(msgs, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate outbox messages: %w", err)
	}
	return msgs, nil
}

func scanOutbox(s scanner) (*model.OutboxMessage, error) {
	var (
		msg                  model.OutboxMessage
		payload, status      string
		nextAttemptAt        sql.NullString
		createdAt, updatedAt string
	)

	err := s.Scan(&msg.ID, &msg.ListingID, &msg.RecipientID, &msg.Template, &payload, &status,
		&msg.Attempts, &nextAttemptAt, &msg.LastError, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	msg.Status = model.OutboxStatus(status)

	if err := json.Unmarshal([]byte(payload), &msg.Payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if msg.NextAttemptAt, err = parseNullTime(nextAttemptAt); err != nil {
		return nil, fmt.Errorf("parse next_attempt_at: %w", err)
	}
	if msg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if msg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	return &msg, nil
}

// requireRow returns ErrOutboxMessageNotFound when an update matched nothing.
func requireRow(res sql.Result, id string) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("outbox message %s: %w", id, driven.ErrOutboxMessageNotFound)
	}
	return nil
}
