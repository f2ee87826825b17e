package health

import (
	"context"
	"fmt"
	"time"

	"github.com/audiocove/audiocove-monitoring/pkg/errors"
	"github.com/audiocove/audiocove-monitoring/pkg/logging"
)

const defaultActionTimeout = 30 * time.Second

// ManualRecovery runs the monitor's recovery strategy. Only one recovery
// runs per monitor at a time; a second caller gets a conflict error.
// Actions run in order and an attempt succeeds at the first action that
// does; failed attempts repeat up to MaxAttempts with Delay between them.
func (m *Monitor) ManualRecovery(ctx context.Context) error {
	strategy := m.recovery
	if strategy == nil || len(strategy.Actions) == 0 {
		return errors.NewValidationError(fmt.Sprintf("monitor %s has no recovery actions", m.name))
	}

	if !m.beginRecovery() {
		return errors.NewConflictError(fmt.Sprintf("recovery already in progress for %s", m.name))
	}
	defer m.endRecovery()

	maxAttempts := strategy.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		if err := m.runActions(ctx, strategy, attempt); err != nil {
			lastErr = err
		} else {
			m.logger.Info("Recovery succeeded",
				"monitor", m.name,
				"attempt", attempt,
			)
			return nil
		}

		if attempt < maxAttempts && strategy.Delay > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(strategy.Delay):
			}
		}
	}

	return fmt.Errorf("recovery for %s failed after %d attempts: %w", m.name, maxAttempts, lastErr)
}

// Recovering reports whether a recovery is currently running
func (m *Monitor) Recovering() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.recovering
}

func (m *Monitor) beginRecovery() bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.recovering {
		return false
	}
	m.recovering = true
	return true
}

func (m *Monitor) endRecovery() {
	m.mu.Lock()
	m.recovering = false
	m.mu.Unlock()
}

// runActions runs the strategy's actions in order, stopping at the first
// success. Each action is bounded by its own timeout.
func (m *Monitor) runActions(ctx context.Context, strategy *RecoveryStrategy, attempt int) error {
	var lastErr error
	for _, action := range strategy.Actions {
		err := m.runAction(ctx, action)
		var fields logging.Fields
		if err != nil {
			fields = logging.Fields{"error": err.Error()}
		}
		m.logger.LogRecoveryEvent(ctx, m.name, action.Name, attempt, err == nil, fields)

		if err == nil {
			return nil
		}
		lastErr = err
	}
	return lastErr
}

// runAction runs one action with its timeout, converting panics to errors
func (m *Monitor) runAction(ctx context.Context, action RecoveryAction) (err error) {
	timeout := action.Timeout
	if timeout <= 0 {
		timeout = defaultActionTimeout
	}
	actionCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	defer func() {
		if r := recover(); r != nil {
			m.logger.LogPanic(ctx, r, fmt.Sprintf("recovery action %s panicked", action.Name))
			err = errors.NewInternalError(fmt.Sprintf("recovery action %s panicked: %v", action.Name, r))
		}
	}()

	return action.Run(actionCtx)
}
