package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// WebhookChannel posts messages to an external delivery gateway (push
// provider, SMS aggregator). The gateway owns device routing; this side only
// hands over the composed message.
type WebhookChannel struct {
	name   string
	url    string
	client *http.Client
}

func NewWebhookChannel(name, url string) *WebhookChannel {
	return &WebhookChannel{
		name: name,
		url:  url,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *WebhookChannel) Name() string { return c.name }

type webhookPayload struct {
	Event
	Message string `json:"message"`
}

func (c *WebhookChannel) Send(ctx context.Context, ev Event, message string) error {
	body, err := json.Marshal(webhookPayload{Event: ev, Message: message})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", c.name, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build %s request: %w", c.name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("send via %s: %w", c.name, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("%s gateway returned status %d", c.name, resp.StatusCode)
	}
	return nil
}
