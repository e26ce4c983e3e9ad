package driven

import (
	"context"
	"errors"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// ErrOutboxMessageNotFound indicates the requested outbox message does not exist
// or is not in a state that permits the operation.
var ErrOutboxMessageNotFound = errors.New("outbox message not found")

// OutboxStore defines the driven port for the durable notification queue.
type OutboxStore interface {
	Enqueue(ctx context.Context, msg model.OutboxMessage) error

	// ClaimBatch atomically moves up to limit due messages to processing and returns
	// them. A message is due when it is pending and its next attempt time has passed,
	// or when it has been processing for longer than lease.
	ClaimBatch(ctx context.Context, limit int, now time.Time, lease time.Duration) ([]model.OutboxMessage, error)

	// Ack marks a message delivered.
	Ack(ctx context.Context, id string) error

	// Retry records a failed attempt. A zero nextAttemptAt marks the message failed.
	Retry(ctx context.Context, id string, cause error, nextAttemptAt time.Time) error

	// Requeue moves a failed message back to pending.
	Requeue(ctx context.Context, id string) error

	List(ctx context.Context, status model.OutboxStatus, limit int) ([]model.OutboxMessage, error)
	CountByStatus(ctx context.Context) (map[model.OutboxStatus]int, error)
}
