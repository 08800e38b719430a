package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Only Slack-hosted webhooks are accepted so layout details cannot be posted elsewhere.
const slackWebhookPrefix = "https://hooks.slack.com/"

// Slack posts publish events to a channel through an incoming webhook.
type Slack struct {
	channel    string
	webhookURL string
	client     *http.Client
}

type slackPayload struct {
	Channel string `json:"channel,omitempty"`
	Text    string `json:"text"`
}

// NewSlack creates a Slack notifier.
func NewSlack(channel, webhookURL string) (*Slack, error) {
	if channel == "" {
		return nil, fmt.Errorf("slack channel is required")
	}
	if webhookURL == "" {
		return nil, fmt.Errorf("slack webhook URL not set (webhook_url or SLACK_WEBHOOK_URL)")
	}
	if !strings.HasPrefix(webhookURL, slackWebhookPrefix) {
		return nil, fmt.Errorf("invalid Slack webhook URL: must start with %s", slackWebhookPrefix)
	}
	return &Slack{
		channel:    channel,
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
	}, nil
}

func (s *Slack) Name() string { return "slack" }

// Send posts the event message to the channel.
func (s *Slack) Send(ctx context.Context, ev Event) error {
	body, err := json.Marshal(slackPayload{Channel: s.channel, Text: "🛍️ " + ev.Message()})
	if err != nil {
		return fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.webhookURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("slack API error: status %d", resp.StatusCode)
	}
	return nil
}
