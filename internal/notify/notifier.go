// Package notify delivers fire-and-forget owner notifications. Delivery is
// best effort: the check pipeline logs a failed notification and moves on.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// Notifier delivers one message to a case owner.
type Notifier interface {
	Notify(ctx context.Context, userID, category, title, body string) error
}

// LogNotifier writes notifications to the structured log. It is the default
// sink when no webhook is configured and the sink used in development.
type LogNotifier struct {
	Log zerolog.Logger
}

func (n *LogNotifier) Notify(ctx context.Context, userID, category, title, body string) error {
	n.Log.Info().
		Str("user_id", userID).
		Str("category", category).
		Str("title", title).
		Str("body", body).
		Msg("notification")
	return nil
}

// WebhookNotifier POSTs notifications as JSON to a configured endpoint.
type WebhookNotifier struct {
	URL    string
	Client *http.Client
}

// NewWebhookNotifier builds a notifier with a bounded HTTP client.
func NewWebhookNotifier(url string, timeout time.Duration) *WebhookNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &WebhookNotifier{
		URL:    url,
		Client: &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	UserID   string `json:"user_id"`
	Category string `json:"category"`
	Title    string `json:"title"`
	Body     string `json:"body"`
}

func (n *WebhookNotifier) Notify(ctx context.Context, userID, category, title, body string) error {
	payload, err := json.Marshal(webhookPayload{
		UserID:   userID,
		Category: category,
		Title:    title,
		Body:     body,
	})
	if err != nil {
		return fmt.Errorf("notify: encode payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.URL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("notify: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.Client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("notify: webhook returned %d", resp.StatusCode)
	}
	return nil
}
