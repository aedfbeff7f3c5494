package notifier

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/good-yellow-bee/collabhub/internal/models"
)

// TeamsConfig holds Microsoft Teams webhook configuration.
type TeamsConfig struct {
	WebhookURL string // Teams incoming webhook URL
}

// Validate validates the Teams configuration.
func (c *TeamsConfig) Validate() error {
	return validateWebhookURL(c.WebhookURL)
}

// TeamsNotifier mirrors notifications into a Microsoft Teams channel.
type TeamsNotifier struct {
	config     TeamsConfig
	httpClient *http.Client
	users      UserLookup
}

// NewTeamsNotifier creates a new Teams notifier. users may be nil.
func NewTeamsNotifier(config TeamsConfig, users UserLookup) (*TeamsNotifier, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid teams config: %w", err)
	}

	return &TeamsNotifier{
		config: config,
		users:  users,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}, nil
}

// Name returns "teams".
func (t *TeamsNotifier) Name() string {
	return "teams"
}

// Send posts the notification as an Adaptive Card.
func (t *TeamsNotifier) Send(ctx context.Context, n *models.Notification) error {
	payload := t.buildPayload(n, recipientName(ctx, t.users, n.UserID))
	return postJSON(ctx, t.httpClient, "teams", t.config.WebhookURL, payload)
}

// Close is a no-op for Teams notifier.
func (t *TeamsNotifier) Close() error {
	return nil
}

// teamsMessage represents the Teams webhook payload with Adaptive Card.
type teamsMessage struct {
	Type        string            `json:"type"`
	Attachments []teamsAttachment `json:"attachments"`
}

type teamsAttachment struct {
	ContentType string       `json:"contentType"`
	ContentURL  *string      `json:"contentUrl"`
	Content     adaptiveCard `json:"content"`
}

type adaptiveCard struct {
	Schema  string `json:"$schema"`
	Type    string `json:"type"`
	Version string `json:"version"`
	Body    []any  `json:"body"`
}

type textBlock struct {
	Type   string `json:"type"`
	Text   string `json:"text"`
	Size   string `json:"size,omitempty"`
	Weight string `json:"weight,omitempty"`
	Color  string `json:"color,omitempty"`
	Wrap   bool   `json:"wrap,omitempty"`
}

type factSet struct {
	Type  string `json:"type"`
	Facts []fact `json:"facts"`
}

type fact struct {
	Title string `json:"title"`
	Value string `json:"value"`
}

type container struct {
	Type  string `json:"type"`
	Style string `json:"style,omitempty"`
	Items []any  `json:"items"`
}

func (t *TeamsNotifier) buildPayload(n *models.Notification, recipient string) teamsMessage {
	body := []any{
		container{
			Type:  "Container",
			Style: teamsTypeStyle(n.Type),
			Items: []any{
				textBlock{
					Type:   "TextBlock",
					Text:   fmt.Sprintf("%s %s", typeEmoji(n.Type), truncate(n.Message, 2000)),
					Weight: "Bolder",
					Wrap:   true,
				},
			},
		},
		factSet{
			Type: "FactSet",
			Facts: []fact{
				{Title: "For", Value: recipient},
				{Title: "Type", Value: string(n.Type)},
				{Title: "Time", Value: n.CreatedAt.UTC().Format("2006-01-02 15:04:05 MST")},
			},
		},
	}

	return teamsMessage{
		Type: "message",
		Attachments: []teamsAttachment{
			{
				ContentType: "application/vnd.microsoft.card.adaptive",
				Content: adaptiveCard{
					Schema:  "http://adaptivecards.io/schemas/adaptive-card.json",
					Type:    "AdaptiveCard",
					Version: "1.4",
					Body:    body,
				},
			},
		},
	}
}

// teamsTypeStyle returns an Adaptive Card container style for the notification type.
func teamsTypeStyle(t models.NotificationType) string {
	switch t {
	case models.NotificationSuccess:
		return "good"
	case models.NotificationInviteDeclined:
		return "attention"
	case models.NotificationInvite:
		return "accent"
	default:
		return "default"
	}
}
