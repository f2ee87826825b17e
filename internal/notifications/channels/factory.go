package channels

import (
	"fmt"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/internal/notifications"
	"github.com/audiocove/audiocove-monitoring/internal/storage"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
)

// Channel type slugs used by stored channel definitions.
const (
	TypeSlack   = "slack"
	TypeEmail   = "email"
	TypeWebhook = "webhook"
	TypeGitHub  = "github"
)

// Severity floors applied to statically configured channels. Stored
// definitions carry their own floor.
const (
	defaultSlackFloor   = alerting.SeverityWarning
	defaultEmailFloor   = alerting.SeverityWarning
	defaultWebhookFloor = alerting.SeverityInfo
	defaultGitHubFloor  = alerting.SeverityCritical
)

// FromConfig builds the channels enabled by static configuration. A
// channel whose settings are absent is simply not built; a malformed
// setting is an error.
func FromConfig(logger *zap.Logger, cfg *config.NotificationsConfig) ([]notifications.Registration, error) {
	if cfg == nil {
		return nil, nil
	}

	var regs []notifications.Registration

	if cfg.SlackWebhookURL != "" {
		regs = append(regs, notifications.Registration{
			Handler:     NewSlackChannel(logger, cfg.SlackWebhookURL),
			MinSeverity: defaultSlackFloor,
		})
	}

	if cfg.SMTPHost != "" && len(cfg.EmailTo) > 0 {
		regs = append(regs, notifications.Registration{
			Handler: NewEmailChannel(logger, EmailConfig{
				Host:     cfg.SMTPHost,
				Port:     cfg.SMTPPort,
				Username: cfg.SMTPUser,
				Password: cfg.SMTPPassword,
				From:     cfg.EmailFrom,
				To:       cfg.EmailTo,
			}),
			MinSeverity: defaultEmailFloor,
		})
	}

	if cfg.WebhookURL != "" {
		regs = append(regs, notifications.Registration{
			Handler:     NewWebhookChannel(logger, cfg.WebhookURL, cfg.WebhookSecret),
			MinSeverity: defaultWebhookFloor,
		})
	}

	if cfg.GitHubToken != "" && cfg.GitHubRepo != "" {
		handler, err := NewGitHubChannel(logger, cfg.GitHubToken, cfg.GitHubRepo)
		if err != nil {
			return nil, err
		}
		regs = append(regs, notifications.Registration{
			Handler:     handler,
			MinSeverity: defaultGitHubFloor,
		})
	}

	return regs, nil
}

// FromDefinition builds a channel from a stored definition. Disabled
// definitions are the caller's business; this only validates type and
// settings.
func FromDefinition(logger *zap.Logger, def *storage.NotificationChannel) (notifications.Registration, error) {
	if def == nil {
		return notifications.Registration{}, fmt.Errorf("channel definition is nil")
	}

	var handler notifications.ChannelHandler

	switch def.Type {
	case TypeSlack:
		url := def.Settings["webhook_url"]
		if url == "" {
			return notifications.Registration{}, fmt.Errorf("channel %q: missing webhook_url setting", def.Name)
		}
		handler = NewSlackChannel(logger, url)

	case TypeEmail:
		cfg, err := emailConfigFromSettings(def)
		if err != nil {
			return notifications.Registration{}, err
		}
		handler = NewEmailChannel(logger, cfg)

	case TypeWebhook:
		url := def.Settings["url"]
		if url == "" {
			return notifications.Registration{}, fmt.Errorf("channel %q: missing url setting", def.Name)
		}
		handler = NewWebhookChannel(logger, url, def.Settings["secret"])

	case TypeGitHub:
		gh, err := NewGitHubChannel(logger, def.Settings["token"], def.Settings["repo"])
		if err != nil {
			return notifications.Registration{}, fmt.Errorf("channel %q: %w", def.Name, err)
		}
		handler = gh

	default:
		return notifications.Registration{}, fmt.Errorf("channel %q: unsupported type %q", def.Name, def.Type)
	}

	return notifications.Registration{
		Handler:     handler,
		MinSeverity: def.MinSeverity,
	}, nil
}

func emailConfigFromSettings(def *storage.NotificationChannel) (EmailConfig, error) {
	cfg := EmailConfig{
		Host:     def.Settings["host"],
		Username: def.Settings["username"],
		Password: def.Settings["password"],
		From:     def.Settings["from"],
	}
	if cfg.Host == "" {
		return EmailConfig{}, fmt.Errorf("channel %q: missing host setting", def.Name)
	}

	if raw := def.Settings["port"]; raw != "" {
		port, err := strconv.Atoi(raw)
		if err != nil {
			return EmailConfig{}, fmt.Errorf("channel %q: invalid port %q", def.Name, raw)
		}
		cfg.Port = port
	}

	for _, addr := range strings.Split(def.Settings["to"], ",") {
		if trimmed := strings.TrimSpace(addr); trimmed != "" {
			cfg.To = append(cfg.To, trimmed)
		}
	}
	if len(cfg.To) == 0 {
		return EmailConfig{}, fmt.Errorf("channel %q: missing to setting", def.Name)
	}

	return cfg, nil
}
