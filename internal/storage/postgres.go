package storage

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/audiocove/audiocove-monitoring/internal/monitoring"
	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
	"github.com/audiocove/audiocove-monitoring/pkg/security"
)

// defaultRecordLimit caps record queries that do not set their own limit.
const defaultRecordLimit = 100

// defaultRetentionDays applies when no retention is configured anywhere.
const defaultRetentionDays = 30

// PostgresStore implements monitoring.Store on PostgreSQL.
type PostgresStore struct {
	db            *DB
	crypto        *security.EncryptionService
	metrics       *metrics.Metrics
	retentionDays int
}

// PostgresStoreConfig tunes a PostgresStore.
type PostgresStoreConfig struct {
	// DefaultRetentionDays applies to sources without a stored override.
	DefaultRetentionDays int
	// Crypto encrypts notification channel settings at rest. Optional.
	Crypto *security.EncryptionService
	// Metrics records query timings. Optional.
	Metrics *metrics.Metrics
}

// NewPostgresStore creates a store backed by db.
func NewPostgresStore(db *DB, cfg *PostgresStoreConfig) *PostgresStore {
	if cfg == nil {
		cfg = &PostgresStoreConfig{}
	}

	retention := cfg.DefaultRetentionDays
	if retention <= 0 {
		retention = defaultRetentionDays
	}

	return &PostgresStore{
		db:            db,
		crypto:        cfg.Crypto,
		metrics:       cfg.Metrics,
		retentionDays: retention,
	}
}

var _ monitoring.Store = (*PostgresStore)(nil)

func (s *PostgresStore) observe(operation, table string, start time.Time) {
	if s.metrics != nil {
		s.metrics.RecordDatabaseQuery(operation, table, time.Since(start))
	}
}

// SaveMonitoringRecord persists a check outcome, filling in the id and
// timestamp when missing, and returns the id.
func (s *PostgresStore) SaveMonitoringRecord(ctx context.Context, record *monitoring.MonitoringRecord) (string, error) {
	if record == nil {
		return "", errors.NewValidationError("monitoring record is required")
	}
	if record.Source == "" {
		return "", errors.NewValidationError("monitoring record requires a source")
	}
	defer s.observe("insert", "monitoring_records", time.Now())

	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO monitoring_records (id, source, status, message, response_time_ms, metrics, metadata, timestamp)
		VALUES (:id, :source, :status, :message, :response_time_ms, :metrics, :metadata, :timestamp)`

	if _, err := s.db.NamedExecContext(ctx, query, newRecordRow(record)); err != nil {
		return "", errors.NewInternalError("failed to save monitoring record").WithCause(err)
	}

	return record.ID, nil
}

// GetMonitoringRecords returns matching records, newest first.
func (s *PostgresStore) GetMonitoringRecords(ctx context.Context, filter monitoring.RecordFilter) ([]*monitoring.MonitoringRecord, error) {
	defer s.observe("select", "monitoring_records", time.Now())

	where, args := recordWhere(filter)
	query := `
		SELECT id, source, status, message, response_time_ms, metrics, metadata, timestamp
		FROM monitoring_records
		` + where + `
		ORDER BY timestamp DESC
		LIMIT :limit`

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, errors.NewInternalError("failed to query monitoring records").WithCause(err)
	}
	defer rows.Close()

	var records []*monitoring.MonitoringRecord
	for rows.Next() {
		var row recordRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.NewInternalError("failed to scan monitoring record").WithCause(err)
		}
		records = append(records, row.record())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate monitoring records").WithCause(err)
	}

	return records, nil
}

// SaveAlert persists a fired alert.
func (s *PostgresStore) SaveAlert(ctx context.Context, alert *alerting.Alert) error {
	if alert == nil {
		return errors.NewValidationError("alert is required")
	}
	defer s.observe("insert", "alerts", time.Now())

	if alert.ID == "" {
		alert.ID = uuid.New().String()
	}
	if alert.Timestamp.IsZero() {
		alert.Timestamp = time.Now().UTC()
	}

	query := `
		INSERT INTO alerts (id, rule_id, title, message, severity, source, timestamp, metadata, resolved, resolved_at)
		VALUES (:id, :rule_id, :title, :message, :severity, :source, :timestamp, :metadata, :resolved, :resolved_at)`

	if _, err := s.db.NamedExecContext(ctx, query, newAlertRow(alert)); err != nil {
		return errors.NewInternalError("failed to save alert").WithCause(err)
	}

	return nil
}

// ResolveAlert marks an alert resolved and stamps the resolution time.
func (s *PostgresStore) ResolveAlert(ctx context.Context, id string) error {
	defer s.observe("update", "alerts", time.Now())

	result, err := s.db.ExecContext(ctx,
		`UPDATE alerts SET resolved = TRUE, resolved_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to resolve alert").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("alert")
	}

	return nil
}

// GetAlerts returns matching alerts, newest first.
func (s *PostgresStore) GetAlerts(ctx context.Context, filter monitoring.AlertFilter) ([]*alerting.Alert, error) {
	defer s.observe("select", "alerts", time.Now())

	where, args := alertWhere(filter)
	query := `
		SELECT id, rule_id, title, message, severity, source, timestamp, metadata, resolved, resolved_at
		FROM alerts
		` + where + `
		ORDER BY timestamp DESC
		LIMIT :limit`

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, errors.NewInternalError("failed to query alerts").WithCause(err)
	}
	defer rows.Close()

	var alerts []*alerting.Alert
	for rows.Next() {
		var row alertRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.NewInternalError("failed to scan alert").WithCause(err)
		}
		alerts = append(alerts, row.alert())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate alerts").WithCause(err)
	}

	return alerts, nil
}

// SaveAlertRule creates or updates an alert rule.
func (s *PostgresStore) SaveAlertRule(ctx context.Context, rule *alerting.Rule) error {
	if rule == nil {
		return errors.NewValidationError("alert rule is required")
	}
	if rule.ID == "" {
		return errors.NewValidationError("alert rule requires an id")
	}
	defer s.observe("upsert", "alert_rules", time.Now())

	query := `
		INSERT INTO alert_rules (id, name, source, metric, operator, threshold, duration_ms, severity, enabled, created_at)
		VALUES (:id, :name, :source, :metric, :operator, :threshold, :duration_ms, :severity, :enabled, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			source = EXCLUDED.source,
			metric = EXCLUDED.metric,
			operator = EXCLUDED.operator,
			threshold = EXCLUDED.threshold,
			duration_ms = EXCLUDED.duration_ms,
			severity = EXCLUDED.severity,
			enabled = EXCLUDED.enabled`

	if _, err := s.db.NamedExecContext(ctx, query, newRuleRow(rule)); err != nil {
		return errors.NewInternalError("failed to save alert rule").WithCause(err)
	}

	return nil
}

// DeleteAlertRule removes an alert rule.
func (s *PostgresStore) DeleteAlertRule(ctx context.Context, id string) error {
	defer s.observe("delete", "alert_rules", time.Now())

	result, err := s.db.ExecContext(ctx, `DELETE FROM alert_rules WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to delete alert rule").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("alert rule")
	}

	return nil
}

// GetAlertRules returns rules, optionally filtered by source, ordered
// by name.
func (s *PostgresStore) GetAlertRules(ctx context.Context, source string) ([]*alerting.Rule, error) {
	defer s.observe("select", "alert_rules", time.Now())

	where := ""
	args := map[string]interface{}{}
	if source != "" {
		where = "WHERE source = :source"
		args["source"] = source
	}

	query := `
		SELECT id, name, source, metric, operator, threshold, duration_ms, severity, enabled, created_at
		FROM alert_rules
		` + where + `
		ORDER BY name, id`

	rows, err := s.db.NamedQueryContext(ctx, query, args)
	if err != nil {
		return nil, errors.NewInternalError("failed to query alert rules").WithCause(err)
	}
	defer rows.Close()

	var rules []*alerting.Rule
	for rows.Next() {
		var row ruleRow
		if err := rows.StructScan(&row); err != nil {
			return nil, errors.NewInternalError("failed to scan alert rule").WithCause(err)
		}
		rules = append(rules, row.rule())
	}
	if err := rows.Err(); err != nil {
		return nil, errors.NewInternalError("failed to iterate alert rules").WithCause(err)
	}

	return rules, nil
}

// SaveSilence creates or updates a silence window.
func (s *PostgresStore) SaveSilence(ctx context.Context, silence *alerting.SilenceConfig) error {
	if silence == nil {
		return errors.NewValidationError("silence is required")
	}
	if silence.ID == "" {
		return errors.NewValidationError("silence requires an id")
	}
	defer s.observe("upsert", "silences", time.Now())

	query := `
		INSERT INTO silences (id, enabled, starts_at, ends_at, source, level, pattern, reason, created_at)
		VALUES (:id, :enabled, :starts_at, :ends_at, :source, :level, :pattern, :reason, :created_at)
		ON CONFLICT (id) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			source = EXCLUDED.source,
			level = EXCLUDED.level,
			pattern = EXCLUDED.pattern,
			reason = EXCLUDED.reason`

	if _, err := s.db.NamedExecContext(ctx, query, newSilenceRow(silence)); err != nil {
		return errors.NewInternalError("failed to save silence").WithCause(err)
	}

	return nil
}

// DeleteSilence removes a silence window.
func (s *PostgresStore) DeleteSilence(ctx context.Context, id string) error {
	defer s.observe("delete", "silences", time.Now())

	result, err := s.db.ExecContext(ctx, `DELETE FROM silences WHERE id = $1`, id)
	if err != nil {
		return errors.NewInternalError("failed to delete silence").WithCause(err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return errors.NewInternalError("failed to get rows affected").WithCause(err)
	}
	if rowsAffected == 0 {
		return errors.NewNotFoundError("silence")
	}

	return nil
}

// GetSilences returns all silence windows, oldest first.
func (s *PostgresStore) GetSilences(ctx context.Context) ([]*alerting.SilenceConfig, error) {
	defer s.observe("select", "silences", time.Now())

	query := `
		SELECT id, enabled, starts_at, ends_at, source, level, pattern, reason, created_at
		FROM silences
		ORDER BY created_at, id`

	var rows []silenceRow
	if err := s.db.SelectContext(ctx, &rows, query); err != nil {
		return nil, errors.NewInternalError("failed to query silences").WithCause(err)
	}

	silences := make([]*alerting.SilenceConfig, 0, len(rows))
	for i := range rows {
		silences = append(silences, rows[i].silence())
	}

	return silences, nil
}

// SaveMonitoringConfig creates or updates the per-source configuration.
func (s *PostgresStore) SaveMonitoringConfig(ctx context.Context, config *monitoring.SourceConfig) error {
	if config == nil {
		return errors.NewValidationError("monitoring config is required")
	}
	if config.Source == "" {
		return errors.NewValidationError("monitoring config requires a source")
	}
	defer s.observe("upsert", "monitoring_configs", time.Now())

	if config.UpdatedAt.IsZero() {
		config.UpdatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO monitoring_configs (source, enabled, interval_ms, retention_days, updated_at)
		VALUES (:source, :enabled, :interval_ms, :retention_days, :updated_at)
		ON CONFLICT (source) DO UPDATE SET
			enabled = EXCLUDED.enabled,
			interval_ms = EXCLUDED.interval_ms,
			retention_days = EXCLUDED.retention_days,
			updated_at = EXCLUDED.updated_at`

	if _, err := s.db.NamedExecContext(ctx, query, newSourceConfigRow(config)); err != nil {
		return errors.NewInternalError("failed to save monitoring config").WithCause(err)
	}

	return nil
}

// GetMonitoringConfig returns the stored configuration for a source.
func (s *PostgresStore) GetMonitoringConfig(ctx context.Context, source string) (*monitoring.SourceConfig, error) {
	defer s.observe("select", "monitoring_configs", time.Now())

	query := `
		SELECT source, enabled, interval_ms, retention_days, updated_at
		FROM monitoring_configs
		WHERE source = $1`

	var row sourceConfigRow
	if err := s.db.GetContext(ctx, &row, query, source); err != nil {
		if err == sql.ErrNoRows {
			return nil, errors.NewNotFoundError("monitoring config")
		}
		return nil, errors.NewInternalError("failed to get monitoring config").WithCause(err)
	}

	return row.config(), nil
}

// GetMetricSeries returns up to limit values of one metric for a
// source, oldest first.
func (s *PostgresStore) GetMetricSeries(ctx context.Context, source, metric string, limit int) ([]float64, error) {
	if source == "" || metric == "" {
		return nil, errors.NewValidationError("source and metric are required")
	}
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	defer s.observe("select", "monitoring_records", time.Now())

	query := `
		SELECT value FROM (
			SELECT (metrics ->> $2)::double precision AS value, timestamp
			FROM monitoring_records
			WHERE source = $1 AND metrics ->> $2 IS NOT NULL
			ORDER BY timestamp DESC
			LIMIT $3
		) recent
		ORDER BY timestamp ASC`

	var values []float64
	if err := s.db.SelectContext(ctx, &values, query, source, metric, limit); err != nil {
		return nil, errors.NewInternalError("failed to query metric series").WithCause(err)
	}

	return values, nil
}

// CleanupExpiredData removes records past each source's retention
// window and resolved alerts past the default window, returning the
// total rows removed. Sources without a configured retention fall back
// to the store default.
func (s *PostgresStore) CleanupExpiredData(ctx context.Context) (int64, error) {
	defer s.observe("delete", "monitoring_records", time.Now())

	var total int64
	err := s.db.WithTransaction(ctx, func(tx *sqlx.Tx) error {
		result, err := tx.ExecContext(ctx, `
			DELETE FROM monitoring_records r
			USING monitoring_configs c
			WHERE r.source = c.source
			  AND c.retention_days > 0
			  AND r.timestamp < NOW() - make_interval(days => c.retention_days)`)
		if err != nil {
			return errors.NewInternalError("failed to delete expired records").WithCause(err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return errors.NewInternalError("failed to get rows affected").WithCause(err)
		}
		total += rowsAffected

		result, err = tx.ExecContext(ctx, `
			DELETE FROM monitoring_records
			WHERE timestamp < NOW() - make_interval(days => $1)
			  AND source NOT IN (SELECT source FROM monitoring_configs WHERE retention_days > 0)`,
			s.retentionDays)
		if err != nil {
			return errors.NewInternalError("failed to delete expired records").WithCause(err)
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return errors.NewInternalError("failed to get rows affected").WithCause(err)
		}
		total += rowsAffected

		result, err = tx.ExecContext(ctx, `
			DELETE FROM alerts
			WHERE resolved = TRUE
			  AND timestamp < NOW() - make_interval(days => $1)`,
			s.retentionDays)
		if err != nil {
			return errors.NewInternalError("failed to delete expired alerts").WithCause(err)
		}
		rowsAffected, err = result.RowsAffected()
		if err != nil {
			return errors.NewInternalError("failed to get rows affected").WithCause(err)
		}
		total += rowsAffected

		return nil
	})
	if err != nil {
		return 0, err
	}

	return total, nil
}

// recordWhere builds the WHERE clause and named args for a record query.
func recordWhere(filter monitoring.RecordFilter) (string, map[string]interface{}) {
	where := "WHERE 1=1"
	args := map[string]interface{}{}

	if filter.Source != "" {
		where += " AND source = :source"
		args["source"] = filter.Source
	}
	if filter.Status != "" {
		where += " AND status = :status"
		args["status"] = string(filter.Status)
	}
	if !filter.Start.IsZero() {
		where += " AND timestamp >= :start"
		args["start"] = filter.Start
	}
	if !filter.End.IsZero() {
		where += " AND timestamp <= :end"
		args["end"] = filter.End
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	args["limit"] = limit

	return where, args
}

// alertWhere builds the WHERE clause and named args for an alert query.
func alertWhere(filter monitoring.AlertFilter) (string, map[string]interface{}) {
	where := "WHERE 1=1"
	args := map[string]interface{}{}

	if filter.Source != "" {
		where += " AND source = :source"
		args["source"] = filter.Source
	}
	if filter.Severity != "" {
		where += " AND severity = :severity"
		args["severity"] = string(filter.Severity)
	}
	if filter.Resolved != nil {
		where += " AND resolved = :resolved"
		args["resolved"] = *filter.Resolved
	}
	if !filter.Start.IsZero() {
		where += " AND timestamp >= :start"
		args["start"] = filter.Start
	}
	if !filter.End.IsZero() {
		where += " AND timestamp <= :end"
		args["end"] = filter.End
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = defaultRecordLimit
	}
	args["limit"] = limit

	return where, args
}

// metricsColumn stores a metric map as jsonb.
type metricsColumn map[string]float64

// Value implements driver.Valuer.
func (m metricsColumn) Value() (driver.Value, error) {
	if len(m) == 0 {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner.
func (m *metricsColumn) Scan(src interface{}) error {
	return scanJSON(src, m)
}

// attrsColumn stores an attribute map as jsonb.
type attrsColumn map[string]interface{}

// Value implements driver.Valuer.
func (a attrsColumn) Value() (driver.Value, error) {
	if len(a) == 0 {
		return nil, nil
	}
	return json.Marshal(a)
}

// Scan implements sql.Scanner.
func (a *attrsColumn) Scan(src interface{}) error {
	return scanJSON(src, a)
}

func scanJSON(src, dest interface{}) error {
	switch v := src.(type) {
	case nil:
		return nil
	case []byte:
		return json.Unmarshal(v, dest)
	case string:
		return json.Unmarshal([]byte(v), dest)
	default:
		return fmt.Errorf("unsupported jsonb source type %T", src)
	}
}

type recordRow struct {
	ID             string        `db:"id"`
	Source         string        `db:"source"`
	Status         string        `db:"status"`
	Message        string        `db:"message"`
	ResponseTimeMS int64         `db:"response_time_ms"`
	Metrics        metricsColumn `db:"metrics"`
	Metadata       attrsColumn   `db:"metadata"`
	Timestamp      time.Time     `db:"timestamp"`
}

func newRecordRow(r *monitoring.MonitoringRecord) *recordRow {
	return &recordRow{
		ID:             r.ID,
		Source:         r.Source,
		Status:         string(r.Status),
		Message:        r.Message,
		ResponseTimeMS: r.ResponseTime.Milliseconds(),
		Metrics:        metricsColumn(r.Metrics),
		Metadata:       attrsColumn(r.Metadata),
		Timestamp:      r.Timestamp,
	}
}

func (r *recordRow) record() *monitoring.MonitoringRecord {
	return &monitoring.MonitoringRecord{
		ID:           r.ID,
		Source:       r.Source,
		Status:       health.Status(r.Status),
		Message:      r.Message,
		ResponseTime: time.Duration(r.ResponseTimeMS) * time.Millisecond,
		Metrics:      map[string]float64(r.Metrics),
		Metadata:     map[string]interface{}(r.Metadata),
		Timestamp:    r.Timestamp,
	}
}

type alertRow struct {
	ID         string      `db:"id"`
	RuleID     string      `db:"rule_id"`
	Title      string      `db:"title"`
	Message    string      `db:"message"`
	Severity   string      `db:"severity"`
	Source     string      `db:"source"`
	Timestamp  time.Time   `db:"timestamp"`
	Metadata   attrsColumn `db:"metadata"`
	Resolved   bool        `db:"resolved"`
	ResolvedAt *time.Time  `db:"resolved_at"`
}

func newAlertRow(a *alerting.Alert) *alertRow {
	return &alertRow{
		ID:         a.ID,
		RuleID:     a.RuleID,
		Title:      a.Title,
		Message:    a.Message,
		Severity:   string(a.Severity),
		Source:     a.Source,
		Timestamp:  a.Timestamp,
		Metadata:   attrsColumn(a.Metadata),
		Resolved:   a.Resolved,
		ResolvedAt: a.ResolvedAt,
	}
}

func (r *alertRow) alert() *alerting.Alert {
	return &alerting.Alert{
		ID:         r.ID,
		RuleID:     r.RuleID,
		Title:      r.Title,
		Message:    r.Message,
		Severity:   alerting.Severity(r.Severity),
		Source:     r.Source,
		Timestamp:  r.Timestamp,
		Metadata:   map[string]interface{}(r.Metadata),
		Resolved:   r.Resolved,
		ResolvedAt: r.ResolvedAt,
	}
}

type ruleRow struct {
	ID         string    `db:"id"`
	Name       string    `db:"name"`
	Source     string    `db:"source"`
	Metric     string    `db:"metric"`
	Operator   string    `db:"operator"`
	Threshold  float64   `db:"threshold"`
	DurationMS int64     `db:"duration_ms"`
	Severity   string    `db:"severity"`
	Enabled    bool      `db:"enabled"`
	CreatedAt  time.Time `db:"created_at"`
}

func newRuleRow(r *alerting.Rule) *ruleRow {
	return &ruleRow{
		ID:         r.ID,
		Name:       r.Name,
		Source:     r.Source,
		Metric:     r.Condition.Metric,
		Operator:   string(r.Condition.Operator),
		Threshold:  r.Threshold,
		DurationMS: r.Duration.Milliseconds(),
		Severity:   string(r.Severity),
		Enabled:    r.Enabled,
		CreatedAt:  r.CreatedAt,
	}
}

func (r *ruleRow) rule() *alerting.Rule {
	return &alerting.Rule{
		ID:     r.ID,
		Name:   r.Name,
		Source: r.Source,
		Condition: alerting.Condition{
			Metric:   r.Metric,
			Operator: alerting.Operator(r.Operator),
		},
		Threshold: r.Threshold,
		Duration:  time.Duration(r.DurationMS) * time.Millisecond,
		Severity:  alerting.Severity(r.Severity),
		Enabled:   r.Enabled,
		CreatedAt: r.CreatedAt,
	}
}

type silenceRow struct {
	ID        string     `db:"id"`
	Enabled   bool       `db:"enabled"`
	StartsAt  time.Time  `db:"starts_at"`
	EndsAt    *time.Time `db:"ends_at"`
	Source    string     `db:"source"`
	Level     string     `db:"level"`
	Pattern   string     `db:"pattern"`
	Reason    string     `db:"reason"`
	CreatedAt time.Time  `db:"created_at"`
}

func newSilenceRow(s *alerting.SilenceConfig) *silenceRow {
	row := &silenceRow{
		ID:        s.ID,
		Enabled:   s.Enabled,
		StartsAt:  s.StartsAt,
		Source:    s.Source,
		Level:     string(s.Level),
		Pattern:   s.Pattern,
		Reason:    s.Reason,
		CreatedAt: s.CreatedAt,
	}
	if !s.EndsAt.IsZero() {
		endsAt := s.EndsAt
		row.EndsAt = &endsAt
	}
	return row
}

func (r *silenceRow) silence() *alerting.SilenceConfig {
	silence := &alerting.SilenceConfig{
		ID:        r.ID,
		Enabled:   r.Enabled,
		StartsAt:  r.StartsAt,
		Source:    r.Source,
		Level:     alerting.Severity(r.Level),
		Pattern:   r.Pattern,
		Reason:    r.Reason,
		CreatedAt: r.CreatedAt,
	}
	if r.EndsAt != nil {
		silence.EndsAt = *r.EndsAt
	}
	return silence
}

type sourceConfigRow struct {
	Source        string    `db:"source"`
	Enabled       bool      `db:"enabled"`
	IntervalMS    int64     `db:"interval_ms"`
	RetentionDays int       `db:"retention_days"`
	UpdatedAt     time.Time `db:"updated_at"`
}

func newSourceConfigRow(c *monitoring.SourceConfig) *sourceConfigRow {
	return &sourceConfigRow{
		Source:        c.Source,
		Enabled:       c.Enabled,
		IntervalMS:    c.Interval.Milliseconds(),
		RetentionDays: c.RetentionDays,
		UpdatedAt:     c.UpdatedAt,
	}
}

func (r *sourceConfigRow) config() *monitoring.SourceConfig {
	return &monitoring.SourceConfig{
		Source:        r.Source,
		Enabled:       r.Enabled,
		Interval:      time.Duration(r.IntervalMS) * time.Millisecond,
		RetentionDays: r.RetentionDays,
		UpdatedAt:     r.UpdatedAt,
	}
}
