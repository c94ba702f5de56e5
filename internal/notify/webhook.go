package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// WebhookNotifier posts alerts to a URL. Format "slack" sends a
// {"text": ...} body; any other format posts the alert document itself.
type WebhookNotifier struct {
	URL    string
	Format string
	client *http.Client
}

// NewWebhookNotifier creates a webhook notifier for url.
func NewWebhookNotifier(url, format string) *WebhookNotifier {
	return &WebhookNotifier{
		URL:    url,
		Format: format,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

// Notify posts a to the webhook.
func (w *WebhookNotifier) Notify(ctx context.Context, a Alert) error {
	var payload any = a
	if w.Format == "slack" {
		payload = map[string]string{"text": fmt.Sprintf("%s: %s", a.Title(), a.Message)}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: webhook marshal: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.URL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: webhook post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

func (w *WebhookNotifier) Name() string { return "webhook" }
