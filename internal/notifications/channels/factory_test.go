package channels

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/audiocove/audiocove-monitoring/internal/storage"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/config"
)

func TestFromConfigEmpty(t *testing.T) {
	regs, err := FromConfig(zaptest.NewLogger(t), nil)
	require.NoError(t, err)
	assert.Empty(t, regs)

	regs, err = FromConfig(zaptest.NewLogger(t), &config.NotificationsConfig{})
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestFromConfigBuildsConfiguredChannels(t *testing.T) {
	cfg := &config.NotificationsConfig{
		SlackWebhookURL: "https://hooks.slack.com/services/x",
		SMTPHost:        "smtp.example.com",
		SMTPPort:        587,
		EmailFrom:       "monitoring@audiocove.io",
		EmailTo:         []string{"oncall@audiocove.io"},
		WebhookURL:      "https://ops.example.com/hooks",
		WebhookSecret:   "s3cret",
		GitHubToken:     "token",
		GitHubRepo:      "audiocove/platform-ops",
	}

	regs, err := FromConfig(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	require.Len(t, regs, 4)

	names := make([]string, 0, len(regs))
	floors := make(map[string]alerting.Severity)
	for _, reg := range regs {
		names = append(names, reg.Handler.Name())
		floors[reg.Handler.Name()] = reg.MinSeverity
	}

	assert.Equal(t, []string{"slack", "email", "webhook", "github"}, names)
	assert.Equal(t, alerting.SeverityWarning, floors["slack"])
	assert.Equal(t, alerting.SeverityWarning, floors["email"])
	assert.Equal(t, alerting.SeverityInfo, floors["webhook"])
	assert.Equal(t, alerting.SeverityCritical, floors["github"])
}

func TestFromConfigSkipsEmailWithoutRecipients(t *testing.T) {
	cfg := &config.NotificationsConfig{
		SMTPHost: "smtp.example.com",
	}

	regs, err := FromConfig(zaptest.NewLogger(t), cfg)
	require.NoError(t, err)
	assert.Empty(t, regs)
}

func TestFromConfigInvalidGitHubRepo(t *testing.T) {
	cfg := &config.NotificationsConfig{
		GitHubToken: "token",
		GitHubRepo:  "not-a-slug",
	}

	_, err := FromConfig(zaptest.NewLogger(t), cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid github repository")
}

func TestFromDefinition(t *testing.T) {
	tests := []struct {
		name        string
		def         *storage.NotificationChannel
		wantName    string
		wantErr     string
		minSeverity alerting.Severity
	}{
		{
			name: "slack",
			def: &storage.NotificationChannel{
				Name:        "team-slack",
				Type:        TypeSlack,
				MinSeverity: alerting.SeverityInfo,
				Settings:    map[string]string{"webhook_url": "https://hooks.slack.com/services/x"},
			},
			wantName:    "slack",
			minSeverity: alerting.SeverityInfo,
		},
		{
			name: "slack missing url",
			def: &storage.NotificationChannel{
				Name: "team-slack",
				Type: TypeSlack,
			},
			wantErr: "missing webhook_url",
		},
		{
			name: "webhook",
			def: &storage.NotificationChannel{
				Name:        "pager-bridge",
				Type:        TypeWebhook,
				MinSeverity: alerting.SeverityCritical,
				Settings:    map[string]string{"url": "https://ops.example.com/hooks", "secret": "s3cret"},
			},
			wantName:    "webhook",
			minSeverity: alerting.SeverityCritical,
		},
		{
			name: "email",
			def: &storage.NotificationChannel{
				Name:        "oncall-mail",
				Type:        TypeEmail,
				MinSeverity: alerting.SeverityWarning,
				Settings: map[string]string{
					"host": "smtp.example.com",
					"port": "465",
					"from": "monitoring@audiocove.io",
					"to":   "oncall@audiocove.io, ops@audiocove.io",
				},
			},
			wantName:    "email",
			minSeverity: alerting.SeverityWarning,
		},
		{
			name: "email invalid port",
			def: &storage.NotificationChannel{
				Name: "oncall-mail",
				Type: TypeEmail,
				Settings: map[string]string{
					"host": "smtp.example.com",
					"port": "not-a-port",
					"to":   "oncall@audiocove.io",
				},
			},
			wantErr: "invalid port",
		},
		{
			name: "email missing recipients",
			def: &storage.NotificationChannel{
				Name:     "oncall-mail",
				Type:     TypeEmail,
				Settings: map[string]string{"host": "smtp.example.com"},
			},
			wantErr: "missing to setting",
		},
		{
			name: "github",
			def: &storage.NotificationChannel{
				Name:        "issue-tracker",
				Type:        TypeGitHub,
				MinSeverity: alerting.SeverityCritical,
				Settings:    map[string]string{"token": "token", "repo": "audiocove/platform-ops"},
			},
			wantName:    "github",
			minSeverity: alerting.SeverityCritical,
		},
		{
			name: "github missing token",
			def: &storage.NotificationChannel{
				Name:     "issue-tracker",
				Type:     TypeGitHub,
				Settings: map[string]string{"repo": "audiocove/platform-ops"},
			},
			wantErr: "github token not configured",
		},
		{
			name: "unsupported type",
			def: &storage.NotificationChannel{
				Name: "carrier-pigeon",
				Type: "pigeon",
			},
			wantErr: "unsupported type",
		},
		{
			name:    "nil definition",
			wantErr: "channel definition is nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg, err := FromDefinition(zaptest.NewLogger(t), tt.def)

			if tt.wantErr != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.wantName, reg.Handler.Name())
			assert.Equal(t, tt.minSeverity, reg.MinSeverity)
		})
	}
}

func TestFromDefinitionEmailSettings(t *testing.T) {
	reg, err := FromDefinition(zaptest.NewLogger(t), &storage.NotificationChannel{
		Name:        "oncall-mail",
		Type:        TypeEmail,
		MinSeverity: alerting.SeverityWarning,
		Settings: map[string]string{
			"host": "smtp.example.com",
			"port": "465",
			"from": "monitoring@audiocove.io",
			"to":   "oncall@audiocove.io, ops@audiocove.io",
		},
	})
	require.NoError(t, err)

	email, ok := reg.Handler.(*EmailChannel)
	require.True(t, ok)
	assert.Equal(t, "smtp.example.com", email.config.Host)
	assert.Equal(t, 465, email.config.Port)
	assert.Equal(t, "monitoring@audiocove.io", email.config.From)
	assert.Equal(t, []string{"oncall@audiocove.io", "ops@audiocove.io"}, email.config.To)
}
