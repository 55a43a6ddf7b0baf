// Package autodisable decides, after every terminal job, whether a connection that keeps
// failing should be warned about or disabled.
package autodisable

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/notify"
	"github.com/stacklok/connsync/internal/status"
	"github.com/stacklok/connsync/internal/telemetry"
)

// Decision is the action the policy takes for a connection
type Decision string

const (
	// DecisionNone leaves the connection alone
	DecisionNone Decision = "none"

	// DecisionWarn sends a warning notification
	DecisionWarn Decision = "warn"

	// DecisionDisable disables the connection and sends a notification
	DecisionDisable Decision = "disable"
)

const day = 24 * time.Hour

// Thresholds configure when the policy acts. Half of each threshold is the warning threshold.
type Thresholds struct {
	MaxConsecutiveFailures int
	MaxDaysOnlyFailures    int
}

func (t Thresholds) window() time.Duration {
	return time.Duration(t.MaxDaysOnlyFailures) * day
}

// History is the part of the ledger the policy reads and writes
type History interface {
	GetConnection(ctx context.Context, connectionID string) (*ledger.Connection, error)
	ListRecentOutcomes(ctx context.Context, connectionID string, since time.Time) ([]status.Outcome, error)
	FirstJobCreatedAt(ctx context.Context, connectionID string) (*time.Time, error)
	SetConnectionStatus(ctx context.Context, connectionID string, st status.ConnectionStatus) error
	RecordWarning(ctx context.Context, connectionID string, at time.Time) error
}

// Input is everything Evaluate looks at
type Input struct {
	Status status.ConnectionStatus

	// Outcomes are the jobs inside the lookback window, newest first
	Outcomes []status.Outcome

	// FirstJobAt is when the first job of the connection was created
	FirstJobAt *time.Time

	// LastWarningAt is when the last warning for the connection was sent
	LastWarningAt *time.Time

	Now time.Time
}

// Result is the policy decision and the message sent with it
type Result struct {
	Decision Decision
	Reason   string
}

// Evaluate applies the auto-disable rules to a connection's recent history.
//
// Cancelled and unfinished jobs are skipped when counting the failure streak. A warning counts
// as already sent for the current streak when LastWarningAt is after the last success, or
// inside the lookback window when there was no success in it.
func Evaluate(in Input, t Thresholds) Result {
	none := Result{Decision: DecisionNone}

	if in.Status == status.ConnectionStatusInactive {
		return none
	}

	numFailures := 0
	var lastSuccess *time.Time
	for _, o := range in.Outcomes {
		if o.Status == status.JobStatusFailed {
			numFailures++
		} else if o.Status == status.JobStatusSucceeded {
			at := o.UpdatedAt
			lastSuccess = &at
			break
		}
	}

	if numFailures == 0 {
		return none
	}

	if numFailures >= t.MaxConsecutiveFailures {
		return Result{
			Decision: DecisionDisable,
			Reason:   fmt.Sprintf("Connection was disabled because %d jobs in a row failed", numFailures),
		}
	}

	streakStart := in.Now.Add(-t.window())
	if lastSuccess != nil {
		streakStart = *lastSuccess
	}
	warned := in.LastWarningAt != nil && in.LastWarningAt.After(streakStart)

	if numFailures == t.MaxConsecutiveFailures/2 && !warned {
		return Result{
			Decision: DecisionWarn,
			Reason: fmt.Sprintf("%d jobs in a row failed; the connection is disabled after %d",
				numFailures, t.MaxConsecutiveFailures),
		}
	}

	if in.FirstJobAt == nil {
		return none
	}
	sinceFirstJob := in.Now.Sub(*in.FirstJobAt)

	if sinceFirstJob >= t.window() && lastSuccess == nil {
		return Result{
			Decision: DecisionDisable,
			Reason: fmt.Sprintf("Connection was disabled because it only had failed jobs in the past %d days",
				t.MaxDaysOnlyFailures),
		}
	}

	warnAfter := t.window() / 2
	if !warned && sinceFirstJob >= warnAfter &&
		(lastSuccess == nil || lastSuccess.Before(in.Now.Add(-warnAfter))) {
		return Result{
			Decision: DecisionWarn,
			Reason: fmt.Sprintf("Only failed jobs since %s; the connection is disabled after %d days of failures",
				streakStartLabel(lastSuccess, in.FirstJobAt), t.MaxDaysOnlyFailures),
		}
	}

	return none
}

func streakStartLabel(lastSuccess, firstJob *time.Time) string {
	if lastSuccess != nil {
		return lastSuccess.UTC().Format(time.RFC3339)
	}
	return firstJob.UTC().Format(time.RFC3339)
}

// Policy evaluates and applies auto-disable decisions
type Policy struct {
	history    History
	notifier   notify.Notifier
	clock      clock.Clock
	thresholds Thresholds
	metrics    *telemetry.JobMetrics
}

// Option configures a Policy
type Option func(*Policy)

// WithMetrics records decisions in the given metrics
func WithMetrics(m *telemetry.JobMetrics) Option {
	return func(p *Policy) {
		p.metrics = m
	}
}

// WithClock sets the policy clock
func WithClock(c clock.Clock) Option {
	return func(p *Policy) {
		p.clock = c
	}
}

// New creates a policy
func New(history History, notifier notify.Notifier, thresholds Thresholds, opts ...Option) *Policy {
	p := &Policy{
		history:    history,
		notifier:   notifier,
		clock:      clock.New(),
		thresholds: thresholds,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.notifier == nil {
		p.notifier = notify.LogNotifier{}
	}
	return p
}

// Run evaluates a connection and applies the decision. Ledger errors are returned;
// notification errors are logged and swallowed.
func (p *Policy) Run(ctx context.Context, connectionID string) (Result, error) {
	conn, err := p.history.GetConnection(ctx, connectionID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to get connection: %w", err)
	}
	if conn.Status == status.ConnectionStatusInactive {
		return Result{Decision: DecisionNone}, nil
	}

	now := p.clock.Now().UTC()
	outcomes, err := p.history.ListRecentOutcomes(ctx, connectionID, now.Add(-p.thresholds.window()))
	if err != nil {
		return Result{}, fmt.Errorf("failed to list recent outcomes: %w", err)
	}
	firstJobAt, err := p.history.FirstJobCreatedAt(ctx, connectionID)
	if err != nil {
		return Result{}, fmt.Errorf("failed to find first job: %w", err)
	}

	result := Evaluate(Input{
		Status:        conn.Status,
		Outcomes:      outcomes,
		FirstJobAt:    firstJobAt,
		LastWarningAt: conn.LastWarningAt,
		Now:           now,
	}, p.thresholds)

	switch result.Decision {
	case DecisionDisable:
		if err := p.history.SetConnectionStatus(ctx, connectionID, status.ConnectionStatusInactive); err != nil {
			return Result{}, fmt.Errorf("failed to disable connection: %w", err)
		}
		slog.Warn("Connection disabled by auto-disable policy", "connection_id", connectionID, "reason", result.Reason)
		if err := p.notifier.NotifyDisabled(ctx, connectionID, result.Reason); err != nil {
			slog.Error("Failed to send disable notification", "connection_id", connectionID, "error", err)
		}
	case DecisionWarn:
		if err := p.history.RecordWarning(ctx, connectionID, now); err != nil {
			return Result{}, fmt.Errorf("failed to record warning: %w", err)
		}
		slog.Info("Connection at risk of auto-disable", "connection_id", connectionID, "reason", result.Reason)
		if err := p.notifier.NotifyWarning(ctx, connectionID, result.Reason); err != nil {
			slog.Error("Failed to send warning notification", "connection_id", connectionID, "error", err)
		}
	case DecisionNone:
		return result, nil
	}

	p.metrics.RecordAutoDisableDecision(ctx, connectionID, string(result.Decision))
	return result, nil
}
