package replication

import (
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/connsync/internal/status"
)

// AdapterError is an error raised by a source or destination adapter
type AdapterError struct {
	Origin    status.FailureOrigin
	Type      status.FailureType
	Retryable bool
	// Message is safe to show to users; Err holds the internal detail
	Message string
	Err     error
}

// Error implements the error interface
func (e *AdapterError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Origin, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Origin, e.Message)
}

// Unwrap returns the underlying error
func (e *AdapterError) Unwrap() error {
	return e.Err
}

// ConfigError builds a non-retryable adapter error caused by bad configuration
func ConfigError(origin status.FailureOrigin, message string, err error) *AdapterError {
	return &AdapterError{
		Origin:  origin,
		Type:    status.FailureTypeConfigError,
		Message: message,
		Err:     err,
	}
}

// TransientError builds a retryable adapter error
func TransientError(origin status.FailureOrigin, message string, err error) *AdapterError {
	return &AdapterError{
		Origin:    origin,
		Type:      status.FailureTypeTransient,
		Retryable: true,
		Message:   message,
		Err:       err,
	}
}

// failureReason classifies err. Untyped errors are retryable system errors of the given origin.
func failureReason(origin status.FailureOrigin, err error, now time.Time) status.FailureReason {
	var adapterErr *AdapterError
	if errors.As(err, &adapterErr) {
		reason := status.FailureReason{
			Origin:          adapterErr.Origin,
			Type:            adapterErr.Type,
			Retryable:       adapterErr.Retryable && adapterErr.Type != status.FailureTypeConfigError,
			ExternalMessage: adapterErr.Message,
			Timestamp:       now,
		}
		if reason.Origin == "" {
			reason.Origin = origin
		}
		if adapterErr.Err != nil {
			reason.InternalMessage = adapterErr.Err.Error()
		}
		return reason
	}
	return status.FailureReason{
		Origin:          origin,
		Type:            status.FailureTypeSystemError,
		Retryable:       true,
		ExternalMessage: fmt.Sprintf("Something went wrong in the %s", origin),
		InternalMessage: err.Error(),
		Timestamp:       now,
	}
}

// FailedOutput is the output of an attempt that failed before the replication loop could start
func FailedOutput(in *Input, origin status.FailureOrigin, err error, now time.Time) *Output {
	return &Output{
		Summary: status.SyncSummary{
			Status:    status.ReplicationStatusFailed,
			StartTime: now,
			EndTime:   now,
		},
		State:    in.State,
		Catalog:  in.Catalog,
		Failures: []status.FailureReason{failureReason(origin, err, now)},
	}
}
