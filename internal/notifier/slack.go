package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// SlackConfig holds Slack webhook configuration.
type SlackConfig struct {
	WebhookURL string // Slack incoming webhook URL
}

// Validate validates the Slack configuration.
func (c *SlackConfig) Validate() error {
	return validateWebhookURL(c.WebhookURL)
}

// SlackNotifier mirrors notifications into a Slack channel via webhook.
type SlackNotifier struct {
	config     SlackConfig
	httpClient *http.Client
	users      UserLookup
}

// NewSlackNotifier creates a new Slack notifier. users resolves recipient
// names for the message and may be nil.
func NewSlackNotifier(config SlackConfig, users UserLookup) (*SlackNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid slack config: %w", err)
	}

	return &SlackNotifier{
		config: config,
		users:  users,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "slack".
func (s *SlackNotifier) Name() string {
	return "slack"
}

// Send posts the notification to Slack.
func (s *SlackNotifier) Send(ctx context.Context, n *models.Notification) error {
	payload := s.buildPayload(n, recipientName(ctx, s.users, n.UserID))
	return postJSON(ctx, s.httpClient, "slack", s.config.WebhookURL, payload)
}

// Close is a no-op for Slack notifier.
func (s *SlackNotifier) Close() error {
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Text   string       `json:"text"`
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

func (s *SlackNotifier) buildPayload(n *models.Notification, recipient string) slackMessage {
	emoji := typeEmoji(n.Type)
	return slackMessage{
		Text: n.Message,
		Blocks: []slackBlock{
			{
				Type: "section",
				Text: &slackText{
					Type: "mrkdwn",
					Text: fmt.Sprintf("%s %s", emoji, truncate(n.Message, 2900)),
				},
			},
			{
				Type: "context",
				Elements: []slackText{
					{
						Type: "mrkdwn",
						Text: fmt.Sprintf("*For:* %s  |  *Type:* %s  |  %s",
							recipient, n.Type, n.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST")),
					},
				},
			},
		},
	}
}

// typeEmoji returns an emoji for the notification type.
func typeEmoji(t models.NotificationType) string {
	switch t {
	case models.NotificationInvite:
		return "\U0001F4E8" // incoming envelope
	case models.NotificationSuccess:
		return "✅" // check mark
	case models.NotificationInviteDeclined:
		return "❌" // cross mark
	default:
		return "\U0001F514" // bell
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
