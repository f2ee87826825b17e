package storage

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
)

// NotificationChannel is a persisted notification channel. Settings
// hold channel-specific values such as webhook URLs and tokens and are
// encrypted at rest when the store has an encryption service.
type NotificationChannel struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Type        string            `json:"type"`
	MinSeverity alerting.Severity `json:"min_severity"`
	Settings    map[string]string `json:"settings,omitempty"`
	Enabled     bool              `json:"enabled"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
}

type channelRow struct {
	ID          string    `db:"id"`
	Name        string    `db:"name"`
	Type        string    `db:"type"`
	MinSeverity string    `db:"min_severity"`
	Settings    string    `db:"settings"`
	Enabled     bool      `db:"enabled"`
	CreatedAt   time.Time `db:"created_at"`
	UpdatedAt   time.Time `db:"updated_at"`
}

// SaveNotificationChannel creates or updates a channel, keyed by name.
func (s *PostgresStore) SaveNotificationChannel(ctx context.Context, channel *NotificationChannel) error {
	if channel == nil {
		return errors.NewValidationError("notification channel is required")
	}
	if channel.Name == "" || channel.Type == "" {
		return errors.NewValidationError("notification channel requires a name and type")
	}
	defer s.observe("upsert", "notification_channels", time.Now())

	if channel.ID == "" {
		channel.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if channel.CreatedAt.IsZero() {
		channel.CreatedAt = now
	}
	channel.UpdatedAt = now

	settings, err := s.encodeSettings(channel.Settings)
	if err != nil {
		return err
	}

	row := &channelRow{
		ID:          channel.ID,
		Name:        channel.Name,
		Type:        channel.Type,
		MinSeverity: string(channel.MinSeverity),
		Settings:    settings,
		Enabled:     channel.Enabled,
		CreatedAt:   channel.CreatedAt,
		UpdatedAt:   channel.UpdatedAt,
	}

	query := `
		INSERT INTO notification_channels (id, name, type, min_severity, settings, enabled, created_at, updated_at)
		VALUES (:id, :name, :type, :min_severity, :settings, :enabled, :created_at, :updated_at)
		ON CONFLICT (name) DO UPDATE SET
			type = EXCLUDED.type,
			min_severity = EXCLUDED.min_severity,
			settings = EXCLUDED.settings,
			enabled = EXCLUDED.enabled,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return errors.NewInternalError("failed to save notification channel").WithCause(err)
	}

	return nil
}

// GetNotificationChannels returns all channels ordered by name, with
// settings decrypted.
func (s *PostgresStore) GetNotificationChannels(ctx context.Context) ([]*NotificationChannel, error) {
	defer s.observe("select", "notification_channels", time.Now())

	query := `
		SELECT id, name, type, min_severity, settings, enabled, created_at, updated_at
		FROM notification_channels
		ORDER BY name`

	var rows []channelRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.NewInternalError("failed to query notification channels").WithCause(err)
	}

	channels := make([]*NotificationChannel, 0, len(rows))
	for i := range rows {
		settings, err := s.decodeSettings(rows[i].Settings)
		if err != nil {
			return nil, err
		}
		channels = append(channels, &NotificationChannel{
			ID:          rows[i].ID,
			Name:        rows[i].Name,
			Type:        rows[i].Type,
			MinSeverity: alerting.Severity(rows[i].MinSeverity),
			Settings:    settings,
			Enabled:     rows[i].Enabled,
			CreatedAt:   rows[i].CreatedAt,
			UpdatedAt:   rows[i].UpdatedAt,
		})
	}

	return channels, nil
}

// DeleteNotificationChannel removes a channel.
func (s *PostgresStore) DeleteNotificationChannel(ctx context.Context, id string) error {
	defer s.observe("delete", "notification_channels", time.Now())

	result, err := s.db.ExecContext(ctx, `DELETE FROM notification_channels WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to delete notification channel").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("notification channel")
	}

	return nil
}

func (s *PostgresStore) encodeSettings(settings map[string]string) (string, error) {
	data, err := json.Marshal(settings)
	if err != nil {
		return "", errors.NewInternalError("failed to serialize channel settings").WithCause(err)
	}

	if s.crypto == nil {
		return string(data), nil
	}

	encrypted, err := s.crypto.Encrypt(string(data))
	if err != nil {
		return "", errors.NewInternalError("failed to encrypt channel settings").WithCause(err)
	}

	return encrypted, nil
}

func (s *PostgresStore) decodeSettings(stored string) (map[string]string, error) {
	if stored == "" {
		return nil, nil
	}

	raw := stored
	if s.crypto != nil {
		decrypted, err := s.crypto.Decrypt(stored)
		if err != nil {
			return nil, errors.NewInternalError("failed to decrypt channel settings").WithCause(err)
		}
		raw = decrypted
	}

	var settings map[string]string
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return nil, errors.NewInternalError("failed to parse channel settings").WithCause(err)
	}

	return settings, nil
}
