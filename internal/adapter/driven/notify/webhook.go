// Package notify implements the driven.NotificationChannel port.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ericfisherdev/handoff/internal/domain/model"
	"github.com/ericfisherdev/handoff/internal/domain/port/driven"
)

const defaultWebhookTimeout = 10 * time.Second

// Compile-time interface satisfaction check.
var _ driven.NotificationChannel = (*WebhookChannel)(nil)

// webhookBody is the JSON document POSTed for each notification.
type webhookBody struct {
	MessageID   string            `json:"message_id"`
	RecipientID string            `json:"recipient_id"`
	Email       string            `json:"email"`
	TemplateID  string            `json:"template_id"`
	ListingID   string            `json:"listing_id"`
	Data        map[string]string `json:"data"`
}

// WebhookChannel delivers notifications by POSTing them as JSON to a mail relay.
// The relay deduplicates on the Idempotency-Key header, which carries the outbox
// message id.
type WebhookChannel struct {
	url    string
	client *http.Client
}

// NewWebhookChannel creates a WebhookChannel. A nil client gets a default with a
// 10 second timeout.
func NewWebhookChannel(url string, client *http.Client) *WebhookChannel {
	if client == nil {
		client = &http.Client{Timeout: defaultWebhookTimeout}
	}
	return &WebhookChannel{url: url, client: client}
}

// Send POSTs n to the relay. Any non-2xx response is an error.
func (c *WebhookChannel) Send(ctx context.Context, n model.Notification) error {
	data := n.Data
	if data == nil {
		data = map[string]string{}
	}

	payload, err := json.Marshal(webhookBody{
		MessageID:   n.MessageID,
		RecipientID: n.RecipientID,
		Email:       n.Email,
		TemplateID:  n.TemplateID,
		ListingID:   n.ListingID,
		Data:        data,
	})
	if err != nil {
		return fmt.Errorf("marshal notification %s: %w", n.MessageID, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("build notification request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Idempotency-Key", n.MessageID)

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("post notification %s: %w", n.MessageID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("post notification %s: unexpected status %d", n.MessageID, resp.StatusCode)
	}
	return nil
}
