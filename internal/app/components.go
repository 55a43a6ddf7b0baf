package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/gofrs/flock"

	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/telemetry"
)

// AppComponents groups all application components
//
//nolint:revive // This name is fine
type AppComponents struct {
	// Supervisor runs the connection state machines
	Supervisor *connection.Supervisor

	// Ledger stores jobs and attempts
	Ledger ledger.Ledger

	// Telemetry owns the OpenTelemetry providers
	Telemetry *telemetry.Telemetry

	// dataDirLock keeps a second process from driving the same control state
	dataDirLock *flock.Flock

	// closers release optional clients such as the Redis notifier
	closers []io.Closer
}

// close releases every component. The supervisor must be stopped first.
func (c *AppComponents) close(ctx context.Context) error {
	var errs []error
	for _, closer := range c.closers {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Ledger != nil {
		if err := c.Ledger.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close ledger: %w", err))
		}
	}
	if c.Telemetry != nil {
		if err := c.Telemetry.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	if c.dataDirLock != nil {
		if err := c.dataDirLock.Unlock(); err != nil {
			errs = append(errs, fmt.Errorf("failed to release data directory lock: %w", err))
		}
	}
	if err := errors.Join(errs...); err != nil {
		slog.Error("Failed to release application components", "error", err)
		return err
	}
	return nil
}
