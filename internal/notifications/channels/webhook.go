package channels

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
)

// SignatureHeader carries the hex HMAC-SHA256 of the request body,
// prefixed with "sha256=", when a webhook secret is configured.
const SignatureHeader = "X-Monitoring-Signature-256"

// WebhookChannel POSTs alerts as JSON to an arbitrary HTTP endpoint.
type WebhookChannel struct {
	logger     *zap.Logger
	url        string
	secret     string
	httpClient *http.Client
}

// WebhookPayload is the JSON body delivered to the endpoint.
type WebhookPayload struct {
	Event  string          `json:"event"`
	Alert  *alerting.Alert `json:"alert"`
	SentAt time.Time       `json:"sent_at"`
}

// NewWebhookChannel creates a webhook delivery channel. An empty secret
// disables request signing.
func NewWebhookChannel(logger *zap.Logger, url, secret string) *WebhookChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &WebhookChannel{
		logger: logger,
		url:    url,
		secret: secret,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Name identifies the channel in logs, metrics, and breaker names.
func (c *WebhookChannel) Name() string {
	return "webhook"
}

// Send posts the alert to the endpoint.
func (c *WebhookChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if c.url == "" {
		return fmt.Errorf("webhook URL not configured")
	}

	payload, err := json.Marshal(WebhookPayload{
		Event:  "alert.fired",
		Alert:  alert,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.url, bytes.NewBuffer(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if c.secret != "" {
		req.Header.Set(SignatureHeader, signPayload(payload, c.secret))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook endpoint returned status %d", resp.StatusCode)
	}

	c.logger.Debug("Posted alert to webhook",
		zap.String("alert_id", alert.ID),
		zap.String("url", maskWebhookURL(c.url)))

	return nil
}

// signPayload computes the signature receivers verify against
func signPayload(payload []byte, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
