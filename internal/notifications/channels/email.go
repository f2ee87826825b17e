package channels

import (
	"context"
	"crypto/tls"
	"fmt"
	"html"
	"net/smtp"
	"strings"

	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
)

// EmailConfig holds SMTP settings for the email channel.
type EmailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	To       []string
}

// EmailChannel delivers alerts over SMTP.
type EmailChannel struct {
	logger *zap.Logger
	config EmailConfig
}

// emailMessage is a rendered email ready for the wire.
type emailMessage struct {
	From        string
	To          []string
	Subject     string
	Body        string
	ContentType string
	Headers     map[string]string
}

// NewEmailChannel creates an email delivery channel.
func NewEmailChannel(logger *zap.Logger, config EmailConfig) *EmailChannel {
	if logger == nil {
		logger = zap.NewNop()
	}
	if config.Port == 0 {
		config.Port = 587
	}
	return &EmailChannel{
		logger: logger,
		config: config,
	}
}

// Name identifies the channel in logs, metrics, and breaker names.
func (c *EmailChannel) Name() string {
	return "email"
}

// Send delivers the alert to the configured recipients.
func (c *EmailChannel) Send(ctx context.Context, alert *alerting.Alert) error {
	if c.config.Host == "" {
		return fmt.Errorf("SMTP host not configured")
	}
	if len(c.config.To) == 0 {
		return fmt.Errorf("no email recipients configured")
	}

	msg := c.buildEmailMessage(alert)

	if err := c.sendEmail(ctx, msg); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	c.logger.Debug("Sent alert email",
		zap.String("alert_id", alert.ID),
		zap.Strings("to", c.config.To),
		zap.String("smtp_host", c.config.Host))

	return nil
}

// buildEmailMessage renders the alert as an HTML email
func (c *EmailChannel) buildEmailMessage(alert *alerting.Alert) emailMessage {
	msg := emailMessage{
		From:        c.config.From,
		To:          c.config.To,
		Subject:     fmt.Sprintf("[%s] %s", strings.ToUpper(string(alert.Severity)), alert.Title),
		Body:        renderAlertHTML(alert),
		ContentType: "text/html; charset=UTF-8",
		Headers: map[string]string{
			"X-Mailer":   "AudioCove Monitoring",
			"X-Priority": "3",
		},
	}

	switch alert.Severity {
	case alerting.SeverityFatal, alerting.SeverityCritical:
		msg.Headers["X-Priority"] = "1"
		msg.Headers["Importance"] = "high"
	case alerting.SeverityWarning:
		msg.Headers["X-Priority"] = "2"
	}

	return msg
}

// sendEmail sends an email using SMTP
func (c *EmailChannel) sendEmail(ctx context.Context, msg emailMessage) error {
	message := buildMIMEMessage(msg)

	var auth smtp.Auth
	if c.config.Username != "" && c.config.Password != "" {
		auth = smtp.PlainAuth("", c.config.Username, c.config.Password, c.config.Host)
	}

	serverAddr := fmt.Sprintf("%s:%d", c.config.Host, c.config.Port)

	done := make(chan error, 1)
	go func() {
		// Port 465 speaks TLS from the first byte; everything else uses
		// STARTTLS via the stdlib path.
		if c.config.Port == 465 {
			done <- c.sendEmailTLS(serverAddr, auth, msg.From, msg.To, message)
		} else {
			done <- smtp.SendMail(serverAddr, auth, msg.From, msg.To, []byte(message))
		}
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// sendEmailTLS sends email over an implicit TLS connection
func (c *EmailChannel) sendEmailTLS(serverAddr string, auth smtp.Auth, from string, to []string, message string) error {
	tlsConfig := &tls.Config{
		ServerName: strings.Split(serverAddr, ":")[0],
	}

	conn, err := tls.Dial("tcp", serverAddr, tlsConfig)
	if err != nil {
		return fmt.Errorf("failed to connect to SMTP server: %w", err)
	}
	defer conn.Close()

	client, err := smtp.NewClient(conn, tlsConfig.ServerName)
	if err != nil {
		return fmt.Errorf("failed to create SMTP client: %w", err)
	}
	defer client.Quit()

	if auth != nil {
		if err := client.Auth(auth); err != nil {
			return fmt.Errorf("SMTP authentication failed: %w", err)
		}
	}

	if err := client.Mail(from); err != nil {
		return fmt.Errorf("failed to set sender: %w", err)
	}

	for _, recipient := range to {
		if err := client.Rcpt(recipient); err != nil {
			return fmt.Errorf("failed to set recipient %s: %w", recipient, err)
		}
	}

	writer, err := client.Data()
	if err != nil {
		return fmt.Errorf("failed to get data writer: %w", err)
	}

	if _, err := writer.Write([]byte(message)); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return writer.Close()
}

// buildMIMEMessage builds a MIME-formatted email message
func buildMIMEMessage(msg emailMessage) string {
	var message strings.Builder

	message.WriteString(fmt.Sprintf("From: %s\r\n", msg.From))
	message.WriteString(fmt.Sprintf("To: %s\r\n", strings.Join(msg.To, ", ")))
	message.WriteString(fmt.Sprintf("Subject: %s\r\n", msg.Subject))
	message.WriteString(fmt.Sprintf("Content-Type: %s\r\n", msg.ContentType))
	message.WriteString("MIME-Version: 1.0\r\n")

	for key, value := range msg.Headers {
		message.WriteString(fmt.Sprintf("%s: %s\r\n", key, value))
	}

	message.WriteString("\r\n")
	message.WriteString(msg.Body)

	return message.String()
}

// renderAlertHTML renders an alert as a simple HTML document
func renderAlertHTML(alert *alerting.Alert) string {
	var rows strings.Builder

	writeRow := func(label, value string) {
		if value == "" {
			return
		}
		rows.WriteString(fmt.Sprintf(
			"        <tr><td><strong>%s</strong></td><td>%s</td></tr>\n",
			html.EscapeString(label), html.EscapeString(value)))
	}

	writeRow("Source", alert.Source)
	writeRow("Severity", string(alert.Severity))
	writeRow("Time", alert.Timestamp.UTC().Format("2006-01-02 15:04:05 MST"))
	writeRow("Rule", alert.RuleID)

	return fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <title>AudioCove Monitoring Alert</title>
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .header { background-color: #f4f4f4; padding: 20px; border-radius: 5px; }
        .content { padding: 20px; }
        .content table td { padding: 4px 12px 4px 0; }
        .footer { background-color: #f4f4f4; padding: 10px; text-align: center; font-size: 12px; }
    </style>
</head>
<body>
    <div class="header">
        <h2>%s</h2>
    </div>
    <div class="content">
        <p>%s</p>
        <table>
%s        </table>
    </div>
    <div class="footer">
        <p>This alert was sent by AudioCove Monitoring</p>
    </div>
</body>
</html>`, html.EscapeString(alert.Title), html.EscapeString(alert.Message), rows.String())
}
