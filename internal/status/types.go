// Package status holds the job, attempt and connection lifecycle types shared by the
// ledger, the replication loop and the connection state machine.
package status

import (
	"encoding/json"
	"time"
)

// JobStatus represents the lifecycle status of a job
type JobStatus string

const (
	// JobStatusPending means the job was created but no attempt has started
	JobStatusPending JobStatus = "pending"

	// JobStatusRunning means an attempt of the job is currently executing
	JobStatusRunning JobStatus = "running"

	// JobStatusIncomplete means the last attempt failed and another attempt may follow
	JobStatusIncomplete JobStatus = "incomplete"

	// JobStatusSucceeded means the job completed successfully
	JobStatusSucceeded JobStatus = "succeeded"

	// JobStatusFailed means the job failed and will not be retried
	JobStatusFailed JobStatus = "failed"

	// JobStatusCancelled means the job was cancelled
	JobStatusCancelled JobStatus = "cancelled"
)

// IsTerminal reports whether no further transition is allowed from s.
func (s JobStatus) IsTerminal() bool {
	switch s {
	case JobStatusSucceeded, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// NonTerminalJobStatuses lists every status a live job can be in.
var NonTerminalJobStatuses = []JobStatus{JobStatusPending, JobStatusRunning, JobStatusIncomplete}

// AttemptStatus represents the status of a single attempt
type AttemptStatus string

const (
	// AttemptStatusRunning means the attempt is executing
	AttemptStatusRunning AttemptStatus = "running"

	// AttemptStatusSucceeded means the attempt completed successfully
	AttemptStatusSucceeded AttemptStatus = "succeeded"

	// AttemptStatusFailed means the attempt failed
	AttemptStatusFailed AttemptStatus = "failed"
)

// ConfigType is the kind of work a job performs
type ConfigType string

const (
	// ConfigTypeSync copies data from the source to the destination
	ConfigTypeSync ConfigType = "sync"

	// ConfigTypeReset clears the selected streams in the destination
	ConfigTypeReset ConfigType = "reset"
)

// ConnectionStatus is the administrative status of a connection
type ConnectionStatus string

const (
	// ConnectionStatusActive means the connection is scheduled
	ConnectionStatusActive ConnectionStatus = "active"

	// ConnectionStatusInactive means the connection is disabled
	ConnectionStatusInactive ConnectionStatus = "inactive"
)

// ReplicationStatus is the outcome of one run of the replication loop
type ReplicationStatus string

const (
	// ReplicationStatusCompleted means the source was fully read and the destination closed
	ReplicationStatusCompleted ReplicationStatus = "completed"

	// ReplicationStatusFailed means an adapter error stopped the loop
	ReplicationStatusFailed ReplicationStatus = "failed"

	// ReplicationStatusCancelled means the cancellation flag was observed
	ReplicationStatusCancelled ReplicationStatus = "cancelled"
)

// FailureOrigin identifies the component a failure came from
type FailureOrigin string

const (
	// FailureOriginSource is a failure in the source adapter
	FailureOriginSource FailureOrigin = "source"

	// FailureOriginDestination is a failure in the destination adapter
	FailureOriginDestination FailureOrigin = "destination"

	// FailureOriginReplication is a failure in the replication loop itself
	FailureOriginReplication FailureOrigin = "replication"

	// FailureOriginOrchestrator is a failure in the scheduling layer
	FailureOriginOrchestrator FailureOrigin = "orchestrator"

	// FailureOriginUnknown is used when the origin cannot be determined
	FailureOriginUnknown FailureOrigin = "unknown"
)

// FailureType classifies a failure
type FailureType string

const (
	// FailureTypeConfigError is a user configuration problem; never retried
	FailureTypeConfigError FailureType = "config_error"

	// FailureTypeSystemError is an infrastructure or connector crash
	FailureTypeSystemError FailureType = "system_error"

	// FailureTypeTransient is a failure expected to clear on retry
	FailureTypeTransient FailureType = "transient_error"

	// FailureTypeManualCancellation is recorded when a job is cancelled by a caller
	FailureTypeManualCancellation FailureType = "manual_cancellation"
)

// FailureReason describes a single failure attached to an attempt
type FailureReason struct {
	Origin          FailureOrigin `json:"origin" yaml:"origin"`
	Type            FailureType   `json:"type,omitempty" yaml:"type,omitempty"`
	Retryable       bool          `json:"retryable" yaml:"retryable"`
	ExternalMessage string        `json:"externalMessage,omitempty" yaml:"externalMessage,omitempty"`
	InternalMessage string        `json:"internalMessage,omitempty" yaml:"internalMessage,omitempty"`
	Timestamp       time.Time     `json:"timestamp" yaml:"timestamp"`
}

// FailureSummary is the set of failures recorded for an attempt
type FailureSummary struct {
	Failures []FailureReason `json:"failures" yaml:"failures"`

	// PartialSuccess is set when some records were committed before the failure
	PartialSuccess bool `json:"partialSuccess,omitempty" yaml:"partialSuccess,omitempty"`
}

// Retryable reports whether every failure in the summary may be retried.
// An empty summary is retryable.
func (s *FailureSummary) Retryable() bool {
	if s == nil {
		return true
	}
	for _, f := range s.Failures {
		if !f.Retryable {
			return false
		}
	}
	return true
}

// StreamStats carries per-stream counters
type StreamStats struct {
	Stream           string `json:"stream"`
	Namespace        string `json:"namespace,omitempty"`
	RecordsEmitted   int64  `json:"recordsEmitted"`
	BytesEmitted     int64  `json:"bytesEmitted"`
	RecordsCommitted int64  `json:"recordsCommitted"`

	// InvalidRecords counts records that were not a JSON object or failed the stream schema
	InvalidRecords int64 `json:"invalidRecords,omitempty"`

	// ValidationErrors holds a capped sample of validation messages
	ValidationErrors []string `json:"validationErrors,omitempty"`
}

// SyncSummary describes the result of running the replication loop once
type SyncSummary struct {
	Status           ReplicationStatus `json:"status"`
	RecordsSynced    int64             `json:"recordsSynced"`
	BytesSynced      int64             `json:"bytesSynced"`
	RecordsCommitted int64             `json:"recordsCommitted"`
	StartTime        time.Time         `json:"startTime"`
	EndTime          time.Time         `json:"endTime"`
	StreamStats      []StreamStats     `json:"streamStats,omitempty"`
}

// JobOutput is persisted with an attempt. State is the checkpoint the next job resumes from.
type JobOutput struct {
	Summary SyncSummary     `json:"summary"`
	State   json.RawMessage `json:"state,omitempty"`
	Streams []string        `json:"streams,omitempty"`
}

// Outcome is a terminal job status with its timestamp, used by the auto-disable policy
type Outcome struct {
	JobID     int64
	Status    JobStatus
	CreatedAt time.Time
	UpdatedAt time.Time
}
