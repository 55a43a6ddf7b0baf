package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/status"
)

// memoryLedger keeps jobs in process memory. A single mutex makes every operation atomic.
type memoryLedger struct {
	mu          sync.Mutex
	clock       clock.Clock
	nextJobID   int64
	connections map[string]*Connection
	jobs        map[int64]*Job
	resets      map[string][]StreamDescriptor
}

// NewMemoryLedger creates an in-memory ledger. Nothing survives a process restart.
func NewMemoryLedger(c clock.Clock) Ledger {
	if c == nil {
		c = clock.New()
	}
	return &memoryLedger{
		clock:       c,
		nextJobID:   1,
		connections: make(map[string]*Connection),
		jobs:        make(map[int64]*Job),
		resets:      make(map[string][]StreamDescriptor),
	}
}

func (m *memoryLedger) now() time.Time {
	return m.clock.Now().UTC().Truncate(time.Microsecond)
}

func (*memoryLedger) Close() error {
	return nil
}

func (m *memoryLedger) UpsertConnection(
	_ context.Context, connectionID string, st status.ConnectionStatus, overwrite bool,
) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	conn, ok := m.connections[connectionID]
	if !ok {
		conn = &Connection{ID: connectionID, Status: st, CreatedAt: now, UpdatedAt: now}
		m.connections[connectionID] = conn
	} else if overwrite {
		conn.Status = st
		conn.UpdatedAt = now
	}
	return copyConnection(conn), nil
}

func (m *memoryLedger) GetConnection(_ context.Context, connectionID string) (*Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	return copyConnection(conn), nil
}

func (m *memoryLedger) SetConnectionStatus(_ context.Context, connectionID string, st status.ConnectionStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	conn.Status = st
	conn.UpdatedAt = m.now()
	return nil
}

func (m *memoryLedger) RecordWarning(_ context.Context, connectionID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	conn, ok := m.connections[connectionID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	at = at.UTC()
	conn.LastWarningAt = &at
	conn.UpdatedAt = m.now()
	return nil
}

func (m *memoryLedger) CreateJob(_ context.Context, connectionID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[connectionID]; !ok {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}

	now := m.now()
	for _, job := range m.jobs {
		if job.ConnectionID != connectionID || job.Status.IsTerminal() {
			continue
		}
		for i := range job.Attempts {
			if job.Attempts[i].Status == status.AttemptStatusRunning {
				m.endAttempt(&job.Attempts[i], status.AttemptStatusFailed, nil, restartFailureSummary(now), now)
			}
		}
		job.Status = status.JobStatusFailed
		job.FailureReason = ReasonOrchestratorRestart
		job.UpdatedAt = now
	}

	job := &Job{
		ID:           m.nextJobID,
		ConnectionID: connectionID,
		ConfigType:   status.ConfigTypeSync,
		Status:       status.JobStatusPending,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if resets := m.resets[connectionID]; len(resets) > 0 {
		job.ConfigType = status.ConfigTypeReset
		job.Config.ResetStreams = append([]StreamDescriptor(nil), resets...)
	}
	m.nextJobID++
	m.jobs[job.ID] = job

	return copyJob(job), nil
}

func (m *memoryLedger) CreateAttempt(_ context.Context, jobID int64) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return 0, err
	}
	if job.Status.IsTerminal() {
		return 0, fmt.Errorf("%w: job %d is %s", ErrJobTerminal, jobID, job.Status)
	}
	if last := job.LastAttempt(); last != nil && last.Status == status.AttemptStatusRunning {
		return 0, fmt.Errorf("%w: job %d", ErrAttemptRunning, jobID)
	}
	if _, err := checkTransition(jobID, job.Status, status.JobStatusRunning); err != nil {
		return 0, err
	}

	now := m.now()
	number := len(job.Attempts) + 1
	job.Attempts = append(job.Attempts, Attempt{
		JobID:     jobID,
		Number:    number,
		Status:    status.AttemptStatusRunning,
		CreatedAt: now,
		UpdatedAt: now,
	})
	job.Status = status.JobStatusRunning
	if job.StartedAt == nil {
		job.StartedAt = &now
	}
	job.UpdatedAt = now
	return number, nil
}

func (m *memoryLedger) RecordSuccess(_ context.Context, jobID int64, attempt int, output *status.JobOutput) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	ok, err := checkTransition(jobID, job.Status, status.JobStatusSucceeded)
	if err != nil || !ok {
		return err
	}
	a, err := findAttempt(job, attempt)
	if err != nil {
		return err
	}

	now := m.now()
	m.endAttempt(a, status.AttemptStatusSucceeded, output, nil, now)
	job.Status = status.JobStatusSucceeded
	job.UpdatedAt = now

	conn := m.connections[job.ConnectionID]
	if conn == nil {
		return nil
	}
	if job.ConfigType == status.ConfigTypeReset {
		m.consumeResets(job)
		conn.State = nil
		conn.UpdatedAt = now
	} else if keepsState(true, output) {
		conn.State = append(json.RawMessage(nil), output.State...)
		conn.UpdatedAt = now
	}
	return nil
}

func (m *memoryLedger) RecordAttemptFailure(
	_ context.Context, jobID int64, attempt int, summary *status.FailureSummary, output *status.JobOutput,
) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	ok, err := checkTransition(jobID, job.Status, status.JobStatusIncomplete)
	if err != nil || !ok {
		return err
	}
	a, err := findAttempt(job, attempt)
	if err != nil {
		return err
	}

	now := m.now()
	m.endAttempt(a, status.AttemptStatusFailed, output, summary, now)
	job.Status = status.JobStatusIncomplete
	job.UpdatedAt = now

	if conn := m.connections[job.ConnectionID]; conn != nil &&
		job.ConfigType == status.ConfigTypeSync && keepsState(false, output) {
		conn.State = append(json.RawMessage(nil), output.State...)
		conn.UpdatedAt = now
	}
	return nil
}

func (m *memoryLedger) RecordJobFailure(_ context.Context, jobID int64, reason string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	ok, err := checkTransition(jobID, job.Status, status.JobStatusFailed)
	if err != nil || !ok {
		return err
	}

	now := m.now()
	for i := range job.Attempts {
		if job.Attempts[i].Status == status.AttemptStatusRunning {
			m.endAttempt(&job.Attempts[i], status.AttemptStatusFailed, job.Attempts[i].Output, job.Attempts[i].FailureSummary, now)
		}
	}
	job.Status = status.JobStatusFailed
	if reason != "" {
		job.FailureReason = reason
	}
	job.UpdatedAt = now
	return nil
}

func (m *memoryLedger) RecordJobCancelled(_ context.Context, jobID int64, attempt int, summary *status.FailureSummary) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return err
	}
	ok, err := checkTransition(jobID, job.Status, status.JobStatusCancelled)
	if err != nil || !ok {
		return err
	}

	now := m.now()
	if a, err := findAttempt(job, attempt); err == nil && a.Status == status.AttemptStatusRunning {
		m.endAttempt(a, status.AttemptStatusFailed, a.Output, summary, now)
	}
	job.Status = status.JobStatusCancelled
	job.UpdatedAt = now
	return nil
}

func (m *memoryLedger) GetJob(_ context.Context, jobID int64) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	job, err := m.job(jobID)
	if err != nil {
		return nil, err
	}
	return copyJob(job), nil
}

func (m *memoryLedger) LastJob(_ context.Context, connectionID string) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, job := range m.sortedJobs(connectionID) {
		if job.Status != status.JobStatusCancelled {
			return copyJob(job), nil
		}
	}
	return nil, fmt.Errorf("%w: connection %s has no jobs", ErrJobNotFound, connectionID)
}

func (m *memoryLedger) ListJobs(_ context.Context, connectionID string, limit int) ([]*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if limit <= 0 {
		limit = 20
	}
	sorted := m.sortedJobs(connectionID)
	if len(sorted) > limit {
		sorted = sorted[:limit]
	}
	jobs := make([]*Job, 0, len(sorted))
	for _, job := range sorted {
		jobs = append(jobs, copyJob(job))
	}
	return jobs, nil
}

func (m *memoryLedger) FirstJobCreatedAt(_ context.Context, connectionID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sorted := m.sortedJobs(connectionID)
	for i := len(sorted) - 1; i >= 0; i-- {
		if sorted[i].Status != status.JobStatusCancelled {
			createdAt := sorted[i].CreatedAt
			return &createdAt, nil
		}
	}
	return nil, nil
}

func (m *memoryLedger) ListRecentOutcomes(_ context.Context, connectionID string, since time.Time) ([]status.Outcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var outcomes []status.Outcome
	for _, job := range m.sortedJobs(connectionID) {
		if job.CreatedAt.Before(since) {
			break
		}
		outcomes = append(outcomes, status.Outcome{
			JobID:     job.ID,
			Status:    job.Status,
			CreatedAt: job.CreatedAt,
			UpdatedAt: job.UpdatedAt,
		})
	}
	return outcomes, nil
}

func (m *memoryLedger) RequestReset(_ context.Context, connectionID string, streams []StreamDescriptor) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.connections[connectionID]; !ok {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	existing := m.resets[connectionID]
	for _, s := range streams {
		if !containsStream(existing, s) {
			existing = append(existing, s)
		}
	}
	sortStreams(existing)
	m.resets[connectionID] = existing
	return nil
}

func (m *memoryLedger) PendingResets(_ context.Context, connectionID string) ([]StreamDescriptor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return append([]StreamDescriptor(nil), m.resets[connectionID]...), nil
}

func (m *memoryLedger) job(jobID int64) (*Job, error) {
	job, ok := m.jobs[jobID]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
	}
	return job, nil
}

// sortedJobs returns the jobs of a connection newest first
func (m *memoryLedger) sortedJobs(connectionID string) []*Job {
	var jobs []*Job
	for _, job := range m.jobs {
		if job.ConnectionID == connectionID {
			jobs = append(jobs, job)
		}
	}
	sort.Slice(jobs, func(i, j int) bool {
		if jobs[i].CreatedAt.Equal(jobs[j].CreatedAt) {
			return jobs[i].ID > jobs[j].ID
		}
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})
	return jobs
}

func (*memoryLedger) endAttempt(
	a *Attempt, st status.AttemptStatus, output *status.JobOutput, summary *status.FailureSummary, now time.Time,
) {
	a.Status = st
	a.Output = output
	a.FailureSummary = summary
	a.UpdatedAt = now
	a.EndedAt = &now
}

func (m *memoryLedger) consumeResets(job *Job) {
	var remaining []StreamDescriptor
	for _, s := range m.resets[job.ConnectionID] {
		if !containsStream(job.Config.ResetStreams, s) {
			remaining = append(remaining, s)
		}
	}
	if len(remaining) == 0 {
		delete(m.resets, job.ConnectionID)
		return
	}
	m.resets[job.ConnectionID] = remaining
}

func findAttempt(job *Job, number int) (*Attempt, error) {
	for i := range job.Attempts {
		if job.Attempts[i].Number == number {
			return &job.Attempts[i], nil
		}
	}
	return nil, fmt.Errorf("%w: job %d attempt %d", ErrAttemptNotFound, job.ID, number)
}

func containsStream(streams []StreamDescriptor, s StreamDescriptor) bool {
	for _, existing := range streams {
		if existing == s {
			return true
		}
	}
	return false
}

func sortStreams(streams []StreamDescriptor) {
	sort.Slice(streams, func(i, j int) bool {
		if streams[i].Namespace != streams[j].Namespace {
			return streams[i].Namespace < streams[j].Namespace
		}
		return streams[i].Name < streams[j].Name
	})
}

func copyConnection(c *Connection) *Connection {
	out := *c
	out.State = append(json.RawMessage(nil), c.State...)
	if len(out.State) == 0 {
		out.State = nil
	}
	if c.LastWarningAt != nil {
		at := *c.LastWarningAt
		out.LastWarningAt = &at
	}
	return &out
}

func copyJob(j *Job) *Job {
	out := *j
	out.Config.ResetStreams = append([]StreamDescriptor(nil), j.Config.ResetStreams...)
	out.Attempts = append([]Attempt(nil), j.Attempts...)
	if j.StartedAt != nil {
		started := *j.StartedAt
		out.StartedAt = &started
	}
	return &out
}
