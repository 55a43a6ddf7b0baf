package replication

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/status"
)

func TestFailureReason(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	tests := []struct {
		name          string
		err           error
		wantOrigin    status.FailureOrigin
		wantType      status.FailureType
		wantRetryable bool
	}{
		{
			name:          "untyped error is a retryable system error",
			err:           errors.New("boom"),
			wantOrigin:    status.FailureOriginReplication,
			wantType:      status.FailureTypeSystemError,
			wantRetryable: true,
		},
		{
			name:          "transient adapter error keeps its origin",
			err:           TransientError(status.FailureOriginSource, "connection reset", errors.New("EOF")),
			wantOrigin:    status.FailureOriginSource,
			wantType:      status.FailureTypeTransient,
			wantRetryable: true,
		},
		{
			name:       "config error is never retryable",
			err:        &AdapterError{Type: status.FailureTypeConfigError, Retryable: true, Message: "bad host"},
			wantOrigin: status.FailureOriginReplication,
			wantType:   status.FailureTypeConfigError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got := failureReason(status.FailureOriginReplication, tt.err, now)
			assert.Equal(t, tt.wantOrigin, got.Origin)
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, tt.wantRetryable, got.Retryable)
			assert.Equal(t, now, got.Timestamp)
		})
	}
}

func TestFailedOutput(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	in := &Input{ConnectionID: "c1", JobID: 1, Attempt: 2, State: json.RawMessage(`{"cursor":30}`)}

	out := FailedOutput(in, status.FailureOriginSource, ConfigError(status.FailureOriginSource, "unknown connector", nil), now)
	assert.Equal(t, status.ReplicationStatusFailed, out.Summary.Status)
	assert.JSONEq(t, `{"cursor":30}`, string(out.State))
	assert.False(t, out.Succeeded())
	require.Len(t, out.Failures, 1)
	assert.Equal(t, "unknown connector", out.Failures[0].ExternalMessage)
	assert.False(t, out.Failures[0].Retryable)
}
