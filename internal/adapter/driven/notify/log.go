package notify

import (
	"context"
	"log/slog"
	"sort"
	"strings"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

var _ driven.NotificationChannel = (*LogChannel)(nil)

// LogChannel writes notifications to the log instead of delivering them. It is used
// when no relay URL is configured. Secret values are never logged, only the names
// of the data keys.
type LogChannel struct {
	logger *slog.Logger
}

// NewLogChannel creates a LogChannel. A nil logger uses slog.Default.
func NewLogChannel(logger *slog.Logger) *LogChannel {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogChannel{logger: logger}
}

// Send logs n and always succeeds.
func (c *LogChannel) Send(ctx context.Context, n model.Notification) error {
	keys := make([]string, 0, len(n.Data))
	for k := range n.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	c.logger.InfoContext(ctx, "notification",
		"message_id", n.MessageID,
		"recipient_id", n.RecipientID,
		"template", n.TemplateID,
		"listing_id", n.ListingID,
		"data_keys", strings.Join(keys, ","),
	)
	return nil
}
