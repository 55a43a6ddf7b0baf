package connection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/schedule"
)

// QuarantineError is returned when an activity kept failing after every retry. The instance
// stops scheduling until it is released.
type QuarantineError struct {
	Activity string
	Err      error
}

// Error implements the error interface
func (e *QuarantineError) Error() string {
	return fmt.Sprintf("activity %s failed: %v", e.Activity, e.Err)
}

// Unwrap returns the last activity error
func (e *QuarantineError) Unwrap() error {
	return e.Err
}

// permanentErrors are answers, not outages; retrying them cannot help
var permanentErrors = []error{
	ledger.ErrJobNotFound,
	ledger.ErrConnectionNotFound,
	ledger.ErrAttemptNotFound,
	ledger.ErrJobTerminal,
	ledger.ErrAttemptRunning,
	ledger.ErrInvalidTransition,
}

func isPermanent(err error) bool {
	for _, target := range permanentErrors {
		if errors.Is(err, target) {
			return true
		}
	}
	var cfgErr *schedule.ConfigError
	return errors.As(err, &cfgErr)
}

// activity runs op with exponential backoff. Permanent errors are returned as is; an error that
// survives every retry becomes a QuarantineError.
func activity[T any](ctx context.Context, in *Instance, name string, op func(context.Context) (T, error)) (T, error) {
	b := backoff.NewExponentialBackOff()
	if in.settings.ActivityInitialDelay > 0 {
		b.InitialInterval = in.settings.ActivityInitialDelay
		b.MaxInterval = 60 * in.settings.ActivityInitialDelay
	}
	tries := in.settings.ActivityMaxAttempts
	if tries <= 0 {
		tries = 1
	}

	res, err := backoff.Retry(ctx, func() (T, error) {
		v, err := op(ctx)
		if err != nil && isPermanent(err) {
			return v, backoff.Permanent(err)
		}
		return v, err
	},
		backoff.WithBackOff(b),
		backoff.WithMaxTries(uint(tries)),
		backoff.WithMaxElapsedTime(0),
		backoff.WithNotify(func(err error, next time.Duration) {
			slog.WarnContext(ctx, "Activity failed, retrying", "activity", name, "error", err, "retry_in", next)
		}),
	)
	if err == nil {
		return res, nil
	}
	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if isPermanent(err) {
		return res, err
	}
	return res, &QuarantineError{Activity: name, Err: err}
}

// exec is activity for operations without a result
func exec(ctx context.Context, in *Instance, name string, op func(context.Context) error) error {
	_, err := activity(ctx, in, name, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
	return err
}
