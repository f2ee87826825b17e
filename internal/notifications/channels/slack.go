// Package channels implements the delivery backends for alert
// notifications: Slack and generic webhooks, SMTP email, and GitHub
// issues for the most severe alerts.
package channels

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
)

// SlackChannel posts alerts to a Slack incoming webhook.
type SlackChannel struct {
	logger     *zap.Logger
	webhookURL string
	httpClient *http.Client
}

// SlackMessage represents a Slack webhook payload
type SlackMessage struct {
	Text        string            `json:"text,omitempty"`
	IconEmoji   string            `json:"icon_emoji,omitempty"`
	Attachments []SlackAttachment `json:"attachments,omitempty"`
}

// SlackAttachment represents a Slack message attachment
type SlackAttachment struct {
	Color     string       `json:"color,omitempty"`
	Title     string       `json:"title,omitempty"`
	Text      string       `json:"text,omitempty"`
	Fields    []SlackField `json:"fields,omitempty"`
	Footer    string       `json:"footer,omitempty"`
	Timestamp int64        `json:"ts,omitempty"`
}

// SlackField represents a field in a Slack attachment
type SlackField struct {
	Title string `json:"title"`
	Value string `json:"value"`
	Short bool   `json:"short"`
}

// NewSlackChannel creates a Slack delivery channel for the given
// incoming webhook URL.
func NewSlackChannel(logger *zap.Logger, webhookURL string) *SlackChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SlackChannel{
		logger:     logger,
		webhookURL: webhookURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the channel in logs, metrics, and breaker names.
func (c *SlackChannel) Name() string {
	return "slack"
}

// Send posts the alert to the webhook.
func (c *SlackChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if c.webhookURL == "" {
		return fmt.Errorf("slack webhook URL not configured")
	}

	payload, err := json.Marshal(c.buildSlackMessage(alert))
	if err != nil {
		return fmt.Errorf("failed to marshal slack message: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.webhookURL, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send slack message: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("slack API returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Posted alert to Slack",
		zap.String("alert_id", alert.ID),
		zap.String("webhook_url", maskWebhookURL(c.webhookURL)))

	return nil
}

// buildSlackMessage converts an alert to Slack webhook format
func (c *SlackChannel) buildSlackMessage(alert *alerting.Alert) SlackMessage {
	message := SlackMessage{
		Text:      alert.Title,
		IconEmoji: severityEmoji(alert.Severity),
	}

	attachment := SlackAttachment{
		Color:     severityColor(alert.Severity),
		Text:      alert.Message,
		Footer:    "AudioCove Monitoring",
		Timestamp: alert.Timestamp.Unix(),
		Fields: []SlackField{
			{Title: "Source", Value: alert.Source, Short: true},
			{Title: "Severity", Value: string(alert.Severity), Short: true},
		},
	}

	if alert.RuleID != "" {
		attachment.Fields = append(attachment.Fields, SlackField{
			Title: "Rule",
			Value: alert.RuleID,
			Short: true,
		})
	}

	message.Attachments = []SlackAttachment{attachment}

	return message
}

func severityEmoji(severity alerting.Severity) string {
	switch severity {
	case alerting.SeverityFatal:
		return ":rotating_light:"
	case alerting.SeverityCritical:
		return ":red_circle:"
	case alerting.SeverityWarning:
		return ":warning:"
	case alerting.SeverityInfo:
		return ":information_source:"
	default:
		return ":bell:"
	}
}

func severityColor(severity alerting.Severity) string {
	switch severity {
	case alerting.SeverityFatal, alerting.SeverityCritical:
		return "danger"
	case alerting.SeverityWarning:
		return "warning"
	case alerting.SeverityInfo:
		return "good"
	default:
		return "#36a64f"
	}
}

// maskWebhookURL masks the webhook URL for logging
func maskWebhookURL(url string) string {
	if len(url) < 20 {
		return "***"
	}
	return url[:20] + "***"
}
