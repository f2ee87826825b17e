package alerting

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/health"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
)

const (
	defaultAnomalyMinSamples = 30
	defaultAnomalyThreshold  = 3.0
)

// Store persists alerts, rules and silences and serves metric history
// for anomaly detection. All writes from the engine are best-effort.
type Store interface {
	SaveAlert(ctx context.Context, alert *Alert) error
	SaveAlertRule(ctx context.Context, rule *Rule) error
	DeleteAlertRule(ctx context.Context, id string) error
	GetAlertRules(ctx context.Context, source string) ([]*Rule, error)
	SaveSilence(ctx context.Context, silence *SilenceConfig) error
	DeleteSilence(ctx context.Context, id string) error
	GetSilences(ctx context.Context) ([]*SilenceConfig, error)
	GetMetricSeries(ctx context.Context, source, metric string, limit int) ([]float64, error)
}

// Notifier delivers alerts to the configured channels. Delivery happens
// off the evaluation path; implementations must not block.
type Notifier interface {
	Notify(ctx context.Context, alert *Alert)
}

// EngineConfig tunes evaluation, aggregation and anomaly detection.
type EngineConfig struct {
	Aggregation       AggregationConfig
	AnomalyMinSamples int
	AnomalyThreshold  float64
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithStore attaches the persistence layer.
func WithStore(store Store) EngineOption {
	return func(e *Engine) {
		e.store = store
	}
}

// WithNotifier attaches the delivery layer.
func WithNotifier(notifier Notifier) EngineOption {
	return func(e *Engine) {
		e.notifier = notifier
	}
}

// WithEngineMetrics attaches Prometheus instrumentation.
func WithEngineMetrics(m *metrics.Metrics) EngineOption {
	return func(e *Engine) {
		e.metrics = m
	}
}

// Engine evaluates alert rules against health snapshots and trends,
// aggregates storms, applies silences and hands survivors to the store
// and notifier.
type Engine struct {
	mu             sync.RWMutex
	rules          map[string]*Rule
	silences       map[string]*SilenceConfig
	firstViolation map[string]time.Time
	groupHistory   map[string][]time.Time

	aggregation       AggregationConfig
	anomalyMinSamples int
	anomalyThreshold  float64

	store    Store
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *logging.Logger

	now func() time.Time
}

// NewEngine creates an alert engine with the given configuration.
func NewEngine(config EngineConfig, opts ...EngineOption) *Engine {
	if config.AnomalyMinSamples <= 0 {
		config.AnomalyMinSamples = defaultAnomalyMinSamples
	}
	if config.AnomalyThreshold <= 0 {
		config.AnomalyThreshold = defaultAnomalyThreshold
	}

	e := &Engine{
		rules:          make(map[string]*Rule),
		silences:       make(map[string]*SilenceConfig),
		firstViolation: make(map[string]time.Time),
		groupHistory:   make(map[string][]time.Time),

		aggregation:       config.Aggregation,
		anomalyMinSamples: config.AnomalyMinSamples,
		anomalyThreshold:  config.AnomalyThreshold,

		logger: logging.GetLogger(),
		now:    time.Now,
	}

	for _, opt := range opts {
		opt(e)
	}

	if s := e.aggregation.Strategy; s != "" && s != AggregationStrategySeverity {
		e.logger.Warn("Unknown aggregation strategy, using severity collapse", "strategy", s)
	}

	return e
}

// LoadFromStore replaces the in-memory rules and silences with the
// persisted ones. Call once at startup.
func (e *Engine) LoadFromStore(ctx context.Context) error {
	if e.store == nil {
		return errors.NewValidationError("alert engine has no store attached")
	}

	rules, err := e.store.GetAlertRules(ctx, "")
	if err != nil {
		return fmt.Errorf("loading alert rules: %w", err)
	}
	silences, err := e.store.GetSilences(ctx)
	if err != nil {
		return fmt.Errorf("loading silences: %w", err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	e.rules = make(map[string]*Rule, len(rules))
	for _, rule := range rules {
		e.rules[rule.ID] = rule
	}
	e.silences = make(map[string]*SilenceConfig, len(silences))
	for _, silence := range silences {
		e.silences[silence.ID] = silence
	}

	e.logger.Info("Alert definitions loaded", "rules", len(rules), "silences", len(silences))
	return nil
}

// EvaluateAlerts runs every enabled rule against the latest health
// snapshot and trend analyses. The returned alerts have already been
// aggregated and silenced; they are persisted and delivered as a side
// effect.
func (e *Engine) EvaluateAlerts(ctx context.Context, snapshot map[string]*health.CheckResult, trends map[string]*health.TrendAnalysis) []*Alert {
	now := e.now()

	e.mu.Lock()
	var candidates []*Alert
	for _, rule := range e.sortedRulesLocked() {
		if !rule.Enabled {
			continue
		}
		record := snapshot[rule.Source]
		if record == nil {
			continue
		}

		violated, value, ok := evaluateCondition(rule, record, trends[rule.Source])
		if !ok {
			continue
		}
		if !violated {
			delete(e.firstViolation, rule.ID)
			continue
		}

		if rule.Duration > 0 {
			first, seen := e.firstViolation[rule.ID]
			if !seen {
				e.firstViolation[rule.ID] = now
				continue
			}
			if now.Sub(first) < rule.Duration {
				continue
			}
		}

		candidates = append(candidates, e.buildAlert(rule, value, now))
	}
	alerts := e.aggregateLocked(candidates, now)
	silences := e.activeSilencesLocked(now)
	e.mu.Unlock()

	var fired []*Alert
	for _, alert := range alerts {
		if silencedBy(alert, silences) {
			if e.metrics != nil {
				e.metrics.RecordSilencedAlert(alert.Source)
			}
			e.logger.Debug("Alert silenced", "source", alert.Source, "title", alert.Title)
			continue
		}
		fired = append(fired, alert)
	}

	for _, alert := range fired {
		if e.metrics != nil {
			e.metrics.RecordAlert(string(alert.Severity), alert.Source)
		}
		e.logger.Warn("Alert fired",
			"alert_id", alert.ID,
			"source", alert.Source,
			"severity", string(alert.Severity),
			"title", alert.Title,
		)
		if e.store != nil {
			if err := e.store.SaveAlert(ctx, alert); err != nil {
				e.logger.Error("Failed to persist alert", "alert_id", alert.ID, "error", err.Error())
			}
		}
		if e.notifier != nil {
			e.notifier.Notify(ctx, alert)
		}
	}

	return fired
}

// evaluateCondition reports whether the rule is violated right now and
// the metric value that drove the decision. ok is false when the rule
// cannot be evaluated against the inputs.
func evaluateCondition(rule *Rule, record *health.CheckResult, trend *health.TrendAnalysis) (violated bool, value float64, ok bool) {
	switch rule.Condition.Operator {
	case OperatorGT, OperatorLT, OperatorEQ:
		value, ok = record.Metrics[rule.Condition.Metric]
		if !ok {
			return false, 0, false
		}
		switch rule.Condition.Operator {
		case OperatorGT:
			return value > rule.Threshold, value, true
		case OperatorLT:
			return value < rule.Threshold, value, true
		default:
			return value == rule.Threshold, value, true
		}

	case OperatorTrendUp, OperatorTrendDown:
		if trend == nil {
			return false, 0, false
		}
		mt := trend.Metrics[rule.Condition.Metric]
		if mt == nil {
			return false, 0, false
		}
		if rule.Condition.Operator == OperatorTrendUp {
			return mt.Slope > rule.Threshold, mt.Slope, true
		}
		return mt.Slope < rule.Threshold, mt.Slope, true

	default:
		return false, 0, false
	}
}

func (e *Engine) buildAlert(rule *Rule, value float64, now time.Time) *Alert {
	return &Alert{
		ID:        uuid.New().String(),
		RuleID:    rule.ID,
		Title:     rule.Name,
		Message:   fmt.Sprintf("%s %s is %.2f (%s threshold %.2f)", rule.Source, rule.Condition.Metric, value, rule.Condition.Operator, rule.Threshold),
		Severity:  rule.Severity,
		Source:    rule.Source,
		Timestamp: now,
		Metadata: map[string]interface{}{
			"metric":    rule.Condition.Metric,
			"operator":  string(rule.Condition.Operator),
			"value":     value,
			"threshold": rule.Threshold,
		},
	}
}

// aggregateLocked collapses per-source bursts that exceed the configured
// rate into one synthetic alert. The per-source history lets a storm
// spread across several evaluation passes still trip the limit.
func (e *Engine) aggregateLocked(candidates []*Alert, now time.Time) []*Alert {
	if !e.aggregation.Enabled || e.aggregation.MaxAlerts <= 0 {
		return candidates
	}

	groups := make(map[string][]*Alert)
	var order []string
	for _, alert := range candidates {
		if _, seen := groups[alert.Source]; !seen {
			order = append(order, alert.Source)
		}
		groups[alert.Source] = append(groups[alert.Source], alert)
	}

	cutoff := now.Add(-e.aggregation.TimeWindow)
	var out []*Alert
	for _, source := range order {
		group := groups[source]

		history := e.groupHistory[source]
		kept := history[:0]
		for _, ts := range history {
			if ts.After(cutoff) {
				kept = append(kept, ts)
			}
		}
		for range group {
			kept = append(kept, now)
		}
		e.groupHistory[source] = kept

		if len(kept) > e.aggregation.MaxAlerts {
			out = append(out, synthesize(source, group, len(kept), now))
			continue
		}
		out = append(out, group...)
	}
	return out
}

// synthesize folds a burst into a single alert carrying the worst
// severity and the constituent rule ids.
func synthesize(source string, group []*Alert, total int, now time.Time) *Alert {
	severity := SeverityInfo
	ruleIDs := make([]string, 0, len(group))
	titles := make([]string, 0, len(group))
	for _, alert := range group {
		if alert.Severity.Rank() > severity.Rank() {
			severity = alert.Severity
		}
		if alert.RuleID != "" {
			ruleIDs = append(ruleIDs, alert.RuleID)
		}
		titles = append(titles, alert.Title)
	}

	return &Alert{
		ID:        uuid.New().String(),
		Title:     fmt.Sprintf("%d alerts for %s", total, source),
		Message:   fmt.Sprintf("Aggregated %d alerts: %s", len(group), strings.Join(titles, "; ")),
		Severity:  severity,
		Source:    source,
		Timestamp: now,
		Metadata: map[string]interface{}{
			"aggregated": true,
			"count":      total,
			"rule_ids":   ruleIDs,
		},
	}
}

func (e *Engine) activeSilencesLocked(now time.Time) []*SilenceConfig {
	var active []*SilenceConfig
	for _, silence := range e.silences {
		if silence.Active(now) {
			active = append(active, silence)
		}
	}
	return active
}

// silencedBy reports whether any active silence suppresses the alert.
func silencedBy(alert *Alert, silences []*SilenceConfig) bool {
	for _, silence := range silences {
		if silence.Source != "" && silence.Source == alert.Source {
			return true
		}
		if silence.Level != "" && silence.Level == alert.Severity {
			return true
		}
		if silence.Pattern != "" {
			haystack := strings.ToLower(alert.Title + " " + alert.Message)
			if strings.Contains(haystack, strings.ToLower(silence.Pattern)) {
				return true
			}
		}
	}
	return false
}

// AddRule registers a rule and persists it when a store is attached.
// Missing ids and creation times are filled in.
func (e *Engine) AddRule(ctx context.Context, rule *Rule) error {
	if rule == nil || rule.Name == "" {
		return errors.NewValidationError("alert rule requires a name")
	}
	if rule.Source == "" {
		return errors.NewValidationError("alert rule requires a source")
	}
	switch rule.Condition.Operator {
	case OperatorGT, OperatorLT, OperatorEQ, OperatorTrendUp, OperatorTrendDown:
	default:
		return errors.NewValidationError(fmt.Sprintf("unknown alert operator %q", rule.Condition.Operator))
	}
	if rule.ID == "" {
		rule.ID = uuid.New().String()
	}
	if rule.CreatedAt.IsZero() {
		rule.CreatedAt = e.now()
	}

	e.mu.Lock()
	e.rules[rule.ID] = rule
	e.mu.Unlock()

	return e.persistRule(ctx, rule)
}

// SetRuleEnabled flips a rule on or off.
func (e *Engine) SetRuleEnabled(ctx context.Context, id string, enabled bool) error {
	e.mu.Lock()
	rule, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("alert rule %s", id))
	}
	rule.Enabled = enabled
	if !enabled {
		delete(e.firstViolation, id)
	}
	e.mu.Unlock()

	return e.persistRule(ctx, rule)
}

// DeleteRule removes a rule from the engine and the store.
func (e *Engine) DeleteRule(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.rules[id]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("alert rule %s", id))
	}
	delete(e.rules, id)
	delete(e.firstViolation, id)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.DeleteAlertRule(ctx, id); err != nil {
			return fmt.Errorf("deleting alert rule %s: %w", id, err)
		}
	}
	return nil
}

// GetRule returns the rule with the given id.
func (e *Engine) GetRule(id string) (*Rule, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	rule, ok := e.rules[id]
	return rule, ok
}

// Rules returns all rules sorted by name.
func (e *Engine) Rules() []*Rule {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.sortedRulesLocked()
}

func (e *Engine) sortedRulesLocked() []*Rule {
	rules := make([]*Rule, 0, len(e.rules))
	for _, rule := range e.rules {
		rules = append(rules, rule)
	}
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Name != rules[j].Name {
			return rules[i].Name < rules[j].Name
		}
		return rules[i].ID < rules[j].ID
	})
	return rules
}

// AddSilence registers a silence and persists it when a store is attached.
func (e *Engine) AddSilence(ctx context.Context, silence *SilenceConfig) error {
	if silence == nil {
		return errors.NewValidationError("silence is required")
	}
	if silence.Source == "" && silence.Level == "" && silence.Pattern == "" {
		return errors.NewValidationError("silence requires a source, level or pattern")
	}
	if silence.ID == "" {
		silence.ID = uuid.New().String()
	}
	if silence.CreatedAt.IsZero() {
		silence.CreatedAt = e.now()
	}

	e.mu.Lock()
	e.silences[silence.ID] = silence
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.SaveSilence(ctx, silence); err != nil {
			return fmt.Errorf("persisting silence %s: %w", silence.ID, err)
		}
	}
	return nil
}

// DeleteSilence removes a silence from the engine and the store.
func (e *Engine) DeleteSilence(ctx context.Context, id string) error {
	e.mu.Lock()
	_, ok := e.silences[id]
	if !ok {
		e.mu.Unlock()
		return errors.NewNotFoundError(fmt.Sprintf("silence %s", id))
	}
	delete(e.silences, id)
	e.mu.Unlock()

	if e.store != nil {
		if err := e.store.DeleteSilence(ctx, id); err != nil {
			return fmt.Errorf("deleting silence %s: %w", id, err)
		}
	}
	return nil
}

// Silences returns all silences sorted by creation time.
func (e *Engine) Silences() []*SilenceConfig {
	e.mu.RLock()
	defer e.mu.RUnlock()

	silences := make([]*SilenceConfig, 0, len(e.silences))
	for _, silence := range e.silences {
		silences = append(silences, silence)
	}
	sort.Slice(silences, func(i, j int) bool {
		if !silences[i].CreatedAt.Equal(silences[j].CreatedAt) {
			return silences[i].CreatedAt.Before(silences[j].CreatedAt)
		}
		return silences[i].ID < silences[j].ID
	})
	return silences
}

func (e *Engine) persistRule(ctx context.Context, rule *Rule) error {
	if e.store == nil {
		return nil
	}
	if err := e.store.SaveAlertRule(ctx, rule); err != nil {
		return fmt.Errorf("persisting alert rule %s: %w", rule.ID, err)
	}
	return nil
}
