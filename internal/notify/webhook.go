package notify

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WebhookChannel pushes notifications to a Bark-compatible HTTP endpoint.
type WebhookChannel struct {
	baseURL string
	client  *http.Client
}

func NewWebhookChannel(baseURL string) (*WebhookChannel, error) {
	if baseURL == "" {
		return nil, fmt.Errorf("webhook url is empty")
	}
	return &WebhookChannel{
		baseURL: strings.TrimRight(baseURL, "/"),
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}, nil
}

func (w *WebhookChannel) Name() string { return "webhook" }

func (w *WebhookChannel) Send(ctx context.Context, msg Message) error {
	// POST with query parameters handles long bodies more reliably than the
	// path-segment form.
	form := url.Values{}
	form.Set("title", msg.Title)
	form.Set("body", msg.Body)
	form.Set("group", "routinely")
	if msg.Critical {
		form.Set("level", "timeSensitive")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.baseURL, nil)
	if err != nil {
		return fmt.Errorf("create webhook request: %w", err)
	}
	req.URL.RawQuery = form.Encode()

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("webhook returned status: %d", resp.StatusCode)
	}
	return nil
}
