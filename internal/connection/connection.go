// Package connection implements the per-connection state machine: it waits for the schedule
// or a signal, creates the job and its attempts in the ledger, runs the replication loop
// through the retry orchestrator and feeds terminal outcomes to the auto-disable policy.
// The Supervisor owns one instance per connection and restarts quarantined ones.
package connection

import (
	"errors"
	"time"

	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/status"
)

var (
	// ErrNotFound is returned for a connection the supervisor does not run
	ErrNotFound = errors.New("connection not found")

	// ErrDeleted is returned for a connection that was deleted
	ErrDeleted = errors.New("connection was deleted")

	// ErrJobRunning is returned when a manual sync is requested while a job runs
	ErrJobRunning = errors.New("a job is already running for the connection")

	// ErrNoJobRunning is returned when cancelling a connection that has no running job
	ErrNoJobRunning = errors.New("no job is running for the connection")

	// ErrInactive is returned when a manual sync is requested for an inactive connection
	ErrInactive = errors.New("connection is inactive")

	// ErrNotQuarantined is returned by RetryFailedActivity for an instance that is not quarantined
	ErrNotQuarantined = errors.New("connection is not quarantined")

	// ErrNoStreams is returned for a reset that names no streams on a connection that selects none
	ErrNoStreams = errors.New("no streams to reset")
)

// Job failure reasons recorded in the ledger
const (
	ReasonTooManyRetries     = "too-many-retries"
	ReasonNonRetryable       = "non-retryable-failure"
	ReasonAttemptLimitOnBoot = "attempt-limit-reached-on-resume"
	MessageManualCancel      = "Job was cancelled"
	MessageCancelledForReset = "Job was cancelled to reset streams"
	MessageConnectionDeleted = "Job was cancelled because the connection was deleted"
)

// Endpoint selects a connector and its configuration
type Endpoint struct {
	Type   string         `json:"type"`
	Config map[string]any `json:"config,omitempty"`
}

// Definition is everything the state machine needs to know about a connection
type Definition struct {
	ID              string                         `json:"id"`
	Name            string                         `json:"name"`
	Active          bool                           `json:"active"`
	Schedule        schedule.Descriptor            `json:"schedule"`
	Source          Endpoint                       `json:"source"`
	Destination     Endpoint                       `json:"destination"`
	Streams         []replication.ConfiguredStream `json:"streams,omitempty"`
	NamespacePrefix string                         `json:"namespacePrefix,omitempty"`
	Namespace       string                         `json:"namespace,omitempty"`
}

// Status returns the ledger status matching Active
func (d *Definition) Status() status.ConnectionStatus {
	if d.Active {
		return status.ConnectionStatusActive
	}
	return status.ConnectionStatusInactive
}

// DefinitionFromConfig converts a configured connection
func DefinitionFromConfig(c *config.ConnectionConfig) Definition {
	def := Definition{
		ID:              c.GetID(),
		Name:            c.Name,
		Active:          c.IsActive(),
		Schedule:        c.Schedule,
		Source:          Endpoint{Type: c.Source.Type, Config: c.Source.Config},
		Destination:     Endpoint{Type: c.Destination.Type, Config: c.Destination.Config},
		NamespacePrefix: c.NamespacePrefix,
		Namespace:       c.Namespace,
	}
	for _, s := range c.Streams {
		stream := replication.ConfiguredStream{
			Stream:              replication.StreamDescriptor{Name: s.Name, Namespace: s.Namespace},
			SyncMode:            replication.SyncModeIncremental,
			DestinationSyncMode: replication.DestinationSyncModeAppend,
		}
		if s.SyncMode == string(replication.SyncModeFullRefresh) {
			stream.SyncMode = replication.SyncModeFullRefresh
			stream.DestinationSyncMode = replication.DestinationSyncModeOverwrite
		}
		def.Streams = append(def.Streams, stream)
	}
	return def
}

// Settings tunes every state machine instance
type Settings struct {
	// MaxAttempts bounds the attempts of one job
	MaxAttempts int
	// AttemptTimeout bounds one attempt
	AttemptTimeout time.Duration
	// ActivityMaxAttempts bounds retries of ledger calls before the instance is quarantined
	ActivityMaxAttempts int
	// ActivityInitialDelay is the first delay between activity retries
	ActivityInitialDelay time.Duration
	// MaxValidationErrors caps the validation error samples per stream
	MaxValidationErrors int
	// SupervisorInterval is how often the supervisor looks for instances to restart
	SupervisorInterval time.Duration
}

// SettingsFromConfig reads the scheduler and replication settings
func SettingsFromConfig(cfg *config.Config) Settings {
	s := cfg.GetScheduler()
	return Settings{
		MaxAttempts:          s.GetSyncJobMaxAttempts(),
		AttemptTimeout:       s.GetSyncJobMaxTimeout(),
		ActivityMaxAttempts:  s.GetActivityMaxAttempts(),
		ActivityInitialDelay: s.GetActivityInitialDelay(),
		MaxValidationErrors:  cfg.GetReplication().GetMaxValidationErrorsPerStream(),
		SupervisorInterval:   s.GetSupervisorInterval(),
	}
}

// JobInfo describes what an instance is doing. JobID and AttemptNumber are -1 when no job runs.
type JobInfo struct {
	ConnectionID     string       `json:"connectionId"`
	Phase            status.Phase `json:"phase"`
	JobID            int64        `json:"jobId"`
	AttemptNumber    int          `json:"attemptNumber"`
	Active           bool         `json:"active"`
	Quarantined      bool         `json:"quarantined"`
	QuarantineReason string       `json:"quarantineReason,omitempty"`
	NextRun          *time.Time   `json:"nextRun,omitempty"`
	// ResetPending reports stream resets waiting for the next job
	ResetPending bool `json:"resetPending,omitempty"`
	// FailuresSinceSuccess counts failed jobs since the last successful one
	FailuresSinceSuccess int `json:"failuresSinceSuccess"`
}

// Running reports whether a job is being executed
func (j JobInfo) Running() bool {
	return j.JobID >= 0
}
