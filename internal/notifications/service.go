// Package notifications fans fired alerts out to delivery channels.
// Dispatch is asynchronous: the alerting engine hands an alert over and
// moves on, and each channel delivery runs on its own goroutine behind
// a per-channel circuit breaker so a dead webhook or SMTP server cannot
// stall evaluation.
package notifications

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/audiocove/audiocove-monitoring/pkg/alerting"
	"github.com/audiocove/audiocove-monitoring/pkg/metrics"
	"github.com/audiocove/audiocove-monitoring/pkg/resilience"
)

const defaultSendTimeout = 10 * time.Second

// deliveryRetryPolicy retries every delivery error. Webhook and SMTP
// failures are usually momentary; a channel that fails whole retry
// sequences still trips its breaker.
var deliveryRetryPolicy = resilience.RetryPolicy{
	MaxRetries: 2,
	BaseDelay:  500 * time.Millisecond,
	MaxDelay:   5 * time.Second,
	Multiplier: 2.0,
	Jitter:     true,
	RetryableErrors: func(err error) bool {
		return err != nil
	},
}

// ChannelHandler delivers a single alert to one destination.
type ChannelHandler interface {
	// Name identifies the channel in logs, metrics, and breaker names.
	Name() string

	// Send delivers the alert. It must honor ctx cancellation.
	Send(ctx context.Context, alert *alerting.Alert) error
}

// Registration pairs a channel with its severity floor. Alerts ranked
// below MinSeverity are not offered to the channel.
type Registration struct {
	Handler     ChannelHandler
	MinSeverity alerting.Severity
}

// ServiceConfig tunes the dispatcher.
type ServiceConfig struct {
	// SendTimeout bounds one delivery cycle per channel, retries included.
	SendTimeout time.Duration
	// RetryPolicy overrides the delivery retry policy when set.
	RetryPolicy *resilience.RetryPolicy
	// Metrics receives per-channel delivery counters when set.
	Metrics *metrics.Metrics
}

// Service implements alerting.Notifier over a set of registered channels.
type Service struct {
	logger   *zap.Logger
	executor *resilience.Executor
	metrics  *metrics.Metrics
	timeout  time.Duration
	policy   resilience.RetryPolicy

	mu       sync.RWMutex
	channels []Registration

	wg sync.WaitGroup
}

var _ alerting.Notifier = (*Service)(nil)

// NewService creates a dispatcher with no channels registered.
func NewService(logger *zap.Logger, executor *resilience.Executor, cfg *ServiceConfig) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg == nil {
		cfg = &ServiceConfig{}
	}

	timeout := cfg.SendTimeout
	if timeout <= 0 {
		timeout = defaultSendTimeout
	}

	policy := deliveryRetryPolicy
	if cfg.RetryPolicy != nil {
		policy = *cfg.RetryPolicy
	}

	return &Service{
		logger:   logger,
		executor: executor,
		metrics:  cfg.Metrics,
		timeout:  timeout,
		policy:   policy,
	}
}

// Register adds a channel. Alerts below minSeverity skip it; an empty
// minSeverity lets everything through.
func (s *Service) Register(handler ChannelHandler, minSeverity alerting.Severity) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.channels = append(s.channels, Registration{Handler: handler, MinSeverity: minSeverity})
}

// Channels lists the names of the registered channels.
func (s *Service) Channels() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	names := make([]string, 0, len(s.channels))
	for _, reg := range s.channels {
		names = append(names, reg.Handler.Name())
	}
	return names
}

// Notify dispatches the alert to every channel whose severity floor it
// meets. It returns immediately; deliveries run on their own goroutines
// with their own deadline, so the caller's ctx is not consulted.
func (s *Service) Notify(ctx context.Context, alert *alerting.Alert) {
	if alert == nil {
		return
	}

	s.mu.RLock()
	targets := make([]Registration, 0, len(s.channels))
	for _, reg := range s.channels {
		if alert.Severity.Rank() < reg.MinSeverity.Rank() {
			s.logger.Debug("Alert below channel severity floor",
				zap.String("channel", reg.Handler.Name()),
				zap.String("severity", string(alert.Severity)),
				zap.String("min_severity", string(reg.MinSeverity)))
			continue
		}
		targets = append(targets, reg)
	}
	s.mu.RUnlock()

	// The engine may reuse the alert once Notify returns, so deliveries
	// work on a copy.
	a := *alert
	for _, reg := range targets {
		s.wg.Add(1)
		go s.deliver(reg.Handler, &a)
	}
}

// Close waits for in-flight deliveries to drain. Each delivery carries
// its own deadline, so the wait is bounded by SendTimeout.
func (s *Service) Close() {
	s.wg.Wait()
}

func (s *Service) deliver(handler ChannelHandler, alert *alerting.Alert) {
	defer s.wg.Done()

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	start := time.Now()
	err := s.send(ctx, handler, alert)
	duration := time.Since(start)

	status := "sent"
	if err != nil {
		status = "failed"
	}
	if s.metrics != nil {
		s.metrics.RecordNotification(handler.Name(), status, duration)
	}

	if err != nil {
		s.logger.Error("Failed to deliver alert",
			zap.String("channel", handler.Name()),
			zap.String("alert_id", alert.ID),
			zap.String("severity", string(alert.Severity)),
			zap.Error(err))
		return
	}

	s.logger.Info("Delivered alert",
		zap.String("channel", handler.Name()),
		zap.String("alert_id", alert.ID),
		zap.String("severity", string(alert.Severity)),
		zap.Duration("duration", duration))
}

func (s *Service) send(ctx context.Context, handler ChannelHandler, alert *alerting.Alert) error {
	if s.executor == nil {
		return handler.Send(ctx, alert)
	}
	return s.executor.ExecuteVoid(ctx, "notify."+handler.Name(), func(ctx context.Context) error {
		return handler.Send(ctx, alert)
	}, resilience.WithPolicy(s.policy))
}
