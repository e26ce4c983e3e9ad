package driven

import (
	"context"

	"github.com/ericfisherdev/handoff/internal/domain/model"
)

// NotificationChannel defines the driven port for outbound notification delivery.
// Send must be safe to call more than once for the same message.
type NotificationChannel interface {
	Send(ctx context.Context, n model.Notification) error
}
