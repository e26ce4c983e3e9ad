package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

// Outbox delivery defaults.
const (
	DefaultOutboxInterval    = 5 * time.Second
	DefaultOutboxBatchSize   = 50
	DefaultOutboxMaxAttempts = 5
	DefaultOutboxLease       = time.Minute

	initialRetryDelay = 2 * time.Second
	maxRetryDelay     = 5 * time.Minute
)

// OutboxConfig tunes the delivery worker. Zero values select the defaults.
type OutboxConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	Lease       time.Duration
}

func (c OutboxConfig) withDefaults() OutboxConfig {
	if c.Interval <= 0 {
		c.Interval = DefaultOutboxInterval
	}
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultOutboxBatchSize
	}
	if c.MaxAttempts < 2 {
		c.MaxAttempts = DefaultOutboxMaxAttempts
	}
	if c.Lease <= 0 {
		c.Lease = DefaultOutboxLease
	}
	return c
}

// OutboxService delivers queued notifications. Messages are written by the lifecycle
// engine in the same transaction as the transition that caused them; delivery happens
// here, after commit, with retries. Messages that exhaust their attempts are marked
// failed and wait for an operator to requeue them.
type OutboxService struct {
	reads   driven.Stores
	channel driven.NotificationChannel
	cfg     OutboxConfig
	metrics Metrics
	wakeCh  chan struct{}
	now     func() time.Time
}

// NewOutboxService creates an OutboxService. reads holds store handles used outside
// transactions.
func NewOutboxService(reads driven.Stores, channel driven.NotificationChannel, cfg OutboxConfig, metrics Metrics) *OutboxService {
	return &OutboxService{
		reads:   reads,
		channel: channel,
		cfg:     cfg.withDefaults(),
		metrics: metricsOrNoop(metrics),
		wakeCh:  make(chan struct{}, 1),
		now:     time.Now,
	}
}

// Start runs the delivery loop. It drains immediately, then on every tick and
// whenever Wake is called. Start blocks until the context is canceled.
func (s *OutboxService) Start(ctx context.Context) {
	s.cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("outbox service stopped")
			return
		case <-ticker.C:
			s.cycle(ctx)
		case <-s.wakeCh:
			s.cycle(ctx)
		}
	}
}

// Wake asks the loop to drain without waiting for the next tick. It never blocks.
func (s *OutboxService) Wake() {
	select {
	case s.wakeCh <- struct{}{}:
	default:
	}
}

func (s *OutboxService) cycle(ctx context.Context) {
	if _, err := s.DispatchPending(ctx); err != nil && ctx.Err() == nil {
		slog.Error("outbox dispatch failed", "error", err)
	}
	if _, err := s.Counts(ctx); err != nil && ctx.Err() == nil {
		slog.Error("outbox count failed", "error", err)
	}
}

// DispatchPending claims due messages until none remain and attempts each once.
// It returns the number delivered.
func (s *OutboxService) DispatchPending(ctx context.Context) (int, error) {
	var delivered int
	for {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}

		batch, err := s.reads.Outbox.ClaimBatch(ctx, s.cfg.BatchSize, s.now(), s.cfg.Lease)
		if err != nil {
			return delivered, fmt.Errorf("claim outbox batch: %w", err)
		}
		if len(batch) == 0 {
			return delivered, nil
		}

		for _, msg := range batch {
			ok, err := s.attempt(ctx, msg)
			if err != nil {
				return delivered, err
			}
			if ok {
				delivered++
			}
		}

		if len(batch) < s.cfg.BatchSize {
			return delivered, nil
		}
	}
}

// attempt delivers one message and records the outcome. The returned error is set
// only when the outcome itself could not be stored.
func (s *OutboxService) attempt(ctx context.Context, msg model.OutboxMessage) (bool, error) {
	sendErr := s.deliver(ctx, msg)

	// The outcome is stored even when shutdown cancels ctx mid-send.
	ctx = context.WithoutCancel(ctx)
	if sendErr == nil {
		if err := s.reads.Outbox.Ack(ctx, msg.ID); err != nil {
			return false, fmt.Errorf("ack outbox message %s: %w", msg.ID, err)
		}
		s.metrics.ObserveDelivery(msg.Template, "delivered")
		slog.Info("notification delivered", "message_id", msg.ID, "template", msg.Template, "recipient_id", msg.RecipientID)
		return true, nil
	}

	attempts := msg.Attempts + 1
	if attempts >= s.cfg.MaxAttempts {
		if err := s.reads.Outbox.Retry(ctx, msg.ID, sendErr, time.Time{}); err != nil {
			return false, fmt.Errorf("fail outbox message %s: %w", msg.ID, err)
		}
		s.metrics.ObserveDelivery(msg.Template, "failed")
		slog.Error("notification moved to operator queue",
			"message_id", msg.ID, "template", msg.Template, "attempts", attempts, "error", sendErr)
		return false, nil
	}

	delay := retryDelay(attempts)
	if err := s.reads.Outbox.Retry(ctx, msg.ID, sendErr, s.now().Add(delay)); err != nil {
		return false, fmt.Errorf("retry outbox message %s: %w", msg.ID, err)
	}
	s.metrics.ObserveDelivery(msg.Template, "retry")
	slog.Warn("notification delivery failed, will retry",
		"message_id", msg.ID, "attempts", attempts, "retry_in", delay, "error", sendErr)
	return false, nil
}

// deliver resolves the recipient and credential values at send time so that the
// stored payload never holds secrets.
func (s *OutboxService) deliver(ctx context.Context, msg model.OutboxMessage) error {
	recipient, err := s.reads.Users.GetByID(ctx, msg.RecipientID)
	if err != nil {
		return fmt.Errorf("load recipient: %w", err)
	}
	if recipient == nil {
		return fmt.Errorf("recipient %s: %w", msg.RecipientID, driven.ErrUserNotFound)
	}

	data := make(map[string]string, len(msg.Payload))
	maps.Copy(data, msg.Payload)

	if versionID := msg.Payload["credential_version_id"]; versionID != "" {
		version, err := s.reads.Credentials.GetByID(ctx, versionID)
		if err != nil {
			return fmt.Errorf("load credential version: %w", err)
		}
		if version == nil {
			return fmt.Errorf("credential version %s missing", versionID)
		}
		for _, f := range version.Fields {
			data["credential."+f.Name] = f.Value
		}
	}

	return s.channel.Send(ctx, model.Notification{
		MessageID:   msg.ID,
		RecipientID: recipient.ID,
		Email:       recipient.Email,
		TemplateID:  msg.Template,
		ListingID:   msg.ListingID,
		Data:        data,
	})
}

// List returns outbox messages in status for an admin. An empty status lists all.
func (s *OutboxService) List(ctx context.Context, actor model.Actor, status model.OutboxStatus, limit int) ([]model.OutboxMessage, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	switch status {
	case "", model.OutboxPending, model.OutboxProcessing, model.OutboxDelivered, model.OutboxFailed:
	default:
		return nil, validationError("unknown outbox status", fieldError("status", "unknown: "+string(status)))
	}

	msgs, err := s.reads.Outbox.List(ctx, status, limit)
	if err != nil {
		return nil, translate(err, "list outbox messages")
	}
	return msgs, nil
}

// Requeue moves a failed message back to pending and wakes the loop.
func (s *OutboxService) Requeue(ctx context.Context, actor model.Actor, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if id == "" {
		return validationError("message id is required", fieldError("id", "required"))
	}

	err := s.reads.Outbox.Requeue(ctx, id)
	if errors.Is(err, driven.ErrOutboxMessageNotFound) {
		return conflictError(CodeMessageNotFailed, "only failed messages can be requeued", map[string]any{"message_id": id})
	}
	if err != nil {
		return translate(err, "requeue outbox message")
	}

	s.Wake()
	slog.Info("outbox message requeued", "message_id", id, "actor_id", actor.ID)
	return nil
}

// Counts returns the number of messages per status and publishes them as gauges.
func (s *OutboxService) Counts(ctx context.Context) (map[model.OutboxStatus]int, error) {
	counts, err := s.reads.Outbox.CountByStatus(ctx)
	if err != nil {
		return nil, translate(err, "count outbox messages")
	}
	for _, st := range []model.OutboxStatus{model.OutboxPending, model.OutboxProcessing, model.OutboxDelivered, model.OutboxFailed} {
		s.metrics.SetOutboxDepth(string(st), counts[st])
	}
	return counts, nil
}

// retryDelay doubles from initialRetryDelay per attempt, capped at maxRetryDelay.
func retryDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := initialRetryDelay
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= maxRetryDelay {
			return maxRetryDelay
		}
	}
	return delay
}

func requireAdmin(actor model.Actor) error {
	if err := requireActor(actor); err != nil {
		return err
	}
	if !actor.IsAdmin() {
		return authorizationError("admin role required", CodeForbidden, map[string]any{"actor_id": actor.ID})
	}
	return nil
}
