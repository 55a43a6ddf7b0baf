package status

import "time"

// Phase is the tagged state of a connection state machine instance
type Phase string

const (
	// PhaseIdle means the instance is between cycles
	PhaseIdle Phase = "Idle"

	// PhaseWaiting means the instance is waiting for the schedule or a signal
	PhaseWaiting Phase = "Waiting"

	// PhaseRunning means a job attempt is executing
	PhaseRunning Phase = "Running"

	// PhaseSucceeded means the last job succeeded
	PhaseSucceeded Phase = "Succeeded"

	// PhaseFailed means the last job failed
	PhaseFailed Phase = "Failed"

	// PhaseCancelled means the last job was cancelled
	PhaseCancelled Phase = "Cancelled"

	// PhaseQuarantined means the instance hit an orchestration defect and needs a restart
	PhaseQuarantined Phase = "Quarantined"

	// PhaseDeleted means the connection was deleted; the instance is finished
	PhaseDeleted Phase = "Deleted"
)

// IsTerminalOutcome reports whether p records the end of a job
func (p Phase) IsTerminalOutcome() bool {
	return p == PhaseSucceeded || p == PhaseFailed || p == PhaseCancelled
}

// ControlState is the durable control state of a connection state machine instance.
// It is saved at every transition so a restarted instance resumes the job it was running
// instead of creating a new one.
type ControlState struct {
	// Phase is the current tagged state
	Phase Phase `yaml:"phase"`

	// JobID is the job being executed, if any
	JobID *int64 `yaml:"jobId,omitempty"`

	// AttemptNumber is the attempt being executed or about to be created
	AttemptNumber int `yaml:"attemptNumber,omitempty"`

	// SkipScheduling runs the next cycle without waiting for the schedule
	SkipScheduling bool `yaml:"skipScheduling,omitempty"`

	// FromFailure marks that the next cycle retries a failed attempt
	FromFailure bool `yaml:"fromFailure,omitempty"`

	// ResetRequested is set when stream resets are pending for the next job
	ResetRequested bool `yaml:"resetRequested,omitempty"`

	// ResetWithScheduling makes pending resets wait for the schedule instead of running at once
	ResetWithScheduling bool `yaml:"resetWithScheduling,omitempty"`

	// Deleted is set once a delete signal has been handled
	Deleted bool `yaml:"deleted,omitempty"`

	// Quarantined is set when an orchestration defect was caught
	Quarantined bool `yaml:"quarantined,omitempty"`

	// QuarantineReason holds the defect message
	QuarantineReason string `yaml:"quarantineReason,omitempty"`

	// FailuresSinceSuccess counts failed jobs since the last success
	FailuresSinceSuccess int `yaml:"failuresSinceSuccess,omitempty"`

	// LastTransition is when the phase last changed
	LastTransition *time.Time `yaml:"lastTransition,omitempty"`
}

// Clone returns a deep copy of the control state
func (c *ControlState) Clone() *ControlState {
	if c == nil {
		return nil
	}
	out := *c
	if c.JobID != nil {
		id := *c.JobID
		out.JobID = &id
	}
	if c.LastTransition != nil {
		ts := *c.LastTransition
		out.LastTransition = &ts
	}
	return &out
}
