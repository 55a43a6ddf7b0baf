// Package ledger provides the persistent record of jobs and attempts per connection.
// It is the single source of truth for whether a job is running, how many attempts a job
// has had and the recent outcome history the auto-disable policy reads.
package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/stacklok/connsync/internal/status"
)

//go:generate mockgen -destination=mocks/mock_ledger.go -package=mocks -source=ledger.go Ledger

var (
	// ErrJobNotFound is returned when a job does not exist
	ErrJobNotFound = errors.New("job not found")

	// ErrConnectionNotFound is returned when a connection does not exist
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrAttemptNotFound is returned when an attempt does not exist
	ErrAttemptNotFound = errors.New("attempt not found")

	// ErrJobTerminal is returned when an operation needs a live job but the job has finished
	ErrJobTerminal = errors.New("job is in a terminal status")

	// ErrAttemptRunning is returned when a job already has a running attempt
	ErrAttemptRunning = errors.New("job already has a running attempt")

	// ErrInvalidTransition is returned for a status change the job state machine does not allow
	ErrInvalidTransition = errors.New("invalid job status transition")
)

const (
	// ReasonOrchestratorRestart is recorded on jobs found live when a new job is created
	ReasonOrchestratorRestart = "orchestrator-restart"
)

// StreamDescriptor identifies a stream of a connection
type StreamDescriptor struct {
	Name      string `json:"name"`
	Namespace string `json:"namespace,omitempty"`
}

// String returns namespace.name, or name without a namespace
func (s StreamDescriptor) String() string {
	if s.Namespace == "" {
		return s.Name
	}
	return s.Namespace + "." + s.Name
}

// JobConfig is the configuration snapshot stored with a job
type JobConfig struct {
	// ResetStreams lists the streams a reset job clears
	ResetStreams []StreamDescriptor `json:"resetStreams,omitempty"`
}

// Job is one scheduling decision materialized into a unit of work
type Job struct {
	ID            int64
	ConnectionID  string
	ConfigType    status.ConfigType
	Status        status.JobStatus
	Config        JobConfig
	FailureReason string
	CreatedAt     time.Time
	StartedAt     *time.Time
	UpdatedAt     time.Time
	Attempts      []Attempt
}

// LastAttempt returns the attempt with the highest number, or nil
func (j *Job) LastAttempt() *Attempt {
	if len(j.Attempts) == 0 {
		return nil
	}
	return &j.Attempts[len(j.Attempts)-1]
}

// RunStart is the timestamp the schedule is computed from: start time, or creation time if
// the job never started.
func (j *Job) RunStart() time.Time {
	if j.StartedAt != nil {
		return *j.StartedAt
	}
	return j.CreatedAt
}

// Attempt is one execution of a job
type Attempt struct {
	JobID          int64
	Number         int
	Status         status.AttemptStatus
	Output         *status.JobOutput
	FailureSummary *status.FailureSummary
	CreatedAt      time.Time
	UpdatedAt      time.Time
	EndedAt        *time.Time
}

// Connection is the ledger's view of a connection
type Connection struct {
	ID            string
	Status        status.ConnectionStatus
	LastWarningAt *time.Time
	// State is the checkpoint persisted by the last successful or partially successful attempt
	State     json.RawMessage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Ledger records jobs and attempts. Implementations must be safe for concurrent use across
// any number of connections.
type Ledger interface {
	// UpsertConnection registers a connection. An existing connection keeps its stored status
	// unless overwrite is set.
	UpsertConnection(ctx context.Context, connectionID string, st status.ConnectionStatus, overwrite bool) (*Connection, error)

	// GetConnection returns a connection
	GetConnection(ctx context.Context, connectionID string) (*Connection, error)

	// SetConnectionStatus changes the administrative status of a connection
	SetConnectionStatus(ctx context.Context, connectionID string, st status.ConnectionStatus) error

	// RecordWarning stores when a failure warning was last sent for a connection
	RecordWarning(ctx context.Context, connectionID string, at time.Time) error

	// CreateJob fails every live job of the connection, then creates a pending job.
	// Pending stream resets turn the new job into a reset job.
	CreateJob(ctx context.Context, connectionID string) (*Job, error)

	// CreateAttempt allocates the next attempt number and moves the job to running
	CreateAttempt(ctx context.Context, jobID int64) (int, error)

	// RecordSuccess marks the attempt and the job succeeded and persists the output
	RecordSuccess(ctx context.Context, jobID int64, attempt int, output *status.JobOutput) error

	// RecordAttemptFailure marks the attempt failed. The job stays live.
	RecordAttemptFailure(ctx context.Context, jobID int64, attempt int,
		summary *status.FailureSummary, output *status.JobOutput) error

	// RecordJobFailure marks the job failed
	RecordJobFailure(ctx context.Context, jobID int64, reason string) error

	// RecordJobCancelled marks the job cancelled and a running attempt failed
	RecordJobCancelled(ctx context.Context, jobID int64, attempt int, summary *status.FailureSummary) error

	// GetJob returns a job with its attempts
	GetJob(ctx context.Context, jobID int64) (*Job, error)

	// LastJob returns the most recent job of a connection that was not cancelled
	LastJob(ctx context.Context, connectionID string) (*Job, error)

	// ListJobs returns the most recent jobs of a connection, newest first
	ListJobs(ctx context.Context, connectionID string, limit int) ([]*Job, error)

	// FirstJobCreatedAt returns the creation time of the first job that was not cancelled,
	// or nil if the connection never had one.
	FirstJobCreatedAt(ctx context.Context, connectionID string) (*time.Time, error)

	// ListRecentOutcomes returns job statuses created at or after since, newest first
	ListRecentOutcomes(ctx context.Context, connectionID string, since time.Time) ([]status.Outcome, error)

	// RequestReset registers streams to be cleared by the next job of the connection
	RequestReset(ctx context.Context, connectionID string, streams []StreamDescriptor) error

	// PendingResets returns the registered stream resets of a connection
	PendingResets(ctx context.Context, connectionID string) ([]StreamDescriptor, error)

	// Close releases the resources held by the ledger
	Close() error
}

// allowedTransitions is the job state machine
var allowedTransitions = map[status.JobStatus][]status.JobStatus{
	status.JobStatusPending:    {status.JobStatusRunning, status.JobStatusFailed, status.JobStatusCancelled},
	status.JobStatusRunning:    {status.JobStatusIncomplete, status.JobStatusSucceeded, status.JobStatusFailed, status.JobStatusCancelled},
	status.JobStatusIncomplete: {status.JobStatusRunning, status.JobStatusSucceeded, status.JobStatusFailed, status.JobStatusCancelled},
}

// checkTransition validates a job status change. A job that is already terminal is left as is:
// the returned bool is false and no error is reported, so late duplicate writes are harmless.
func checkTransition(jobID int64, from, to status.JobStatus) (bool, error) {
	if from.IsTerminal() {
		return false, nil
	}
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true, nil
		}
	}
	return false, fmt.Errorf("%w: job %d from %s to %s", ErrInvalidTransition, jobID, from, to)
}

// restartFailureSummary is attached to attempts found running when a new job is created
func restartFailureSummary(now time.Time) *status.FailureSummary {
	return &status.FailureSummary{
		Failures: []status.FailureReason{{
			Origin:          status.FailureOriginOrchestrator,
			Type:            status.FailureTypeSystemError,
			Retryable:       false,
			ExternalMessage: "Job was failed because a new job was started for the connection",
			InternalMessage: ReasonOrchestratorRestart,
			Timestamp:       now,
		}},
	}
}

// keepsState reports whether an attempt output carries a checkpoint worth saving on the
// connection: every successful attempt, and failed attempts that committed records.
func keepsState(succeeded bool, output *status.JobOutput) bool {
	if output == nil || len(output.State) == 0 {
		return false
	}
	return succeeded || output.Summary.RecordsCommitted > 0
}
