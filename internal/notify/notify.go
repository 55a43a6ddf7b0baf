// Package notify delivers auto-disable warnings and disable notices. Delivery is
// fire-and-forget: callers log failures and carry on.
package notify

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/stacklok/connsync/internal/clock"
)

//go:generate mockgen -destination=mocks/mock_notifier.go -package=mocks -source=notify.go Notifier

// Kind is the type of a notification
type Kind string

const (
	// KindWarning is sent when a connection is at risk of being disabled
	KindWarning Kind = "connection_disable_warning"

	// KindDisabled is sent when a connection was disabled
	KindDisabled Kind = "connection_disabled"
)

// Notification is the payload delivered to sinks
type Notification struct {
	ID           string    `json:"id"`
	Kind         Kind      `json:"kind"`
	ConnectionID string    `json:"connectionId"`
	Reason       string    `json:"reason"`
	Timestamp    time.Time `json:"timestamp"`
}

// Notifier sends connection notifications
type Notifier interface {
	// NotifyWarning tells that a connection is close to being disabled
	NotifyWarning(ctx context.Context, connectionID, reason string) error

	// NotifyDisabled tells that a connection was disabled
	NotifyDisabled(ctx context.Context, connectionID, reason string) error
}

func newNotification(c clock.Clock, kind Kind, connectionID, reason string) Notification {
	return Notification{
		ID:           uuid.NewString(),
		Kind:         kind,
		ConnectionID: connectionID,
		Reason:       reason,
		Timestamp:    c.Now().UTC(),
	}
}

// LogNotifier writes notifications to the structured log
type LogNotifier struct{}

// NotifyWarning implements Notifier
func (LogNotifier) NotifyWarning(_ context.Context, connectionID, reason string) error {
	slog.Warn("Connection at risk of being disabled", "connection_id", connectionID, "reason", reason)
	return nil
}

// NotifyDisabled implements Notifier
func (LogNotifier) NotifyDisabled(_ context.Context, connectionID, reason string) error {
	slog.Error("Connection disabled", "connection_id", connectionID, "reason", reason)
	return nil
}

// Multi sends every notification to all sinks. A failing sink does not stop the others.
type Multi []Notifier

// NotifyWarning implements Notifier
func (m Multi) NotifyWarning(ctx context.Context, connectionID, reason string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyWarning(ctx, connectionID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// NotifyDisabled implements Notifier
func (m Multi) NotifyDisabled(ctx context.Context, connectionID, reason string) error {
	var errs []error
	for _, n := range m {
		if err := n.NotifyDisabled(ctx, connectionID, reason); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
