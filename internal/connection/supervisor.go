package connection

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/status"
)

const (
	// defaultSupervisorInterval is used when the settings carry no interval
	defaultSupervisorInterval = time.Minute
	// supervisorJitterFraction spreads the checks of many supervisors over time
	supervisorJitterFraction = 10
)

// managed is an instance together with what the supervisor knows about its goroutine
type managed struct {
	instance *Instance
	exited   bool
	deleted  bool
}

// Supervisor runs one state machine instance per connection and exposes the signals the API
// sends to them. It restarts instances that crashed and releases quarantined ones.
type Supervisor struct {
	deps     Dependencies
	settings Settings

	mu        sync.Mutex
	instances map[string]*managed
	runCtx    context.Context

	wg         sync.WaitGroup
	cancelFunc context.CancelFunc
	done       chan struct{}
}

// NewSupervisor creates a supervisor for the given connections
func NewSupervisor(defs []Definition, deps Dependencies, settings Settings) *Supervisor {
	deps.defaults()
	s := &Supervisor{
		deps:      deps,
		settings:  settings,
		instances: make(map[string]*managed, len(defs)),
		done:      make(chan struct{}),
	}
	for _, def := range defs {
		s.instances[def.ID] = &managed{instance: NewInstance(def, deps, settings)}
	}
	return s
}

// checkInterval returns the configured interval with up to ±10% jitter
func (s *Supervisor) checkInterval() time.Duration {
	interval := s.settings.SupervisorInterval
	if interval <= 0 {
		interval = defaultSupervisorInterval
	}
	jitter := interval / supervisorJitterFraction
	if jitter <= 0 {
		return interval
	}
	//nolint:gosec // G404: Non-cryptographic randomness is sufficient for jitter
	return interval - jitter + time.Duration(rand.Int64N(int64(2*jitter)))
}

// Start launches every instance and supervises them. It blocks until ctx is cancelled or Stop
// is called, then waits for the instances to stop.
func (s *Supervisor) Start(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		cancel()
		return fmt.Errorf("supervisor already started")
	}
	s.runCtx = runCtx
	s.cancelFunc = cancel
	for _, m := range s.instances {
		s.launchLocked(m)
	}
	count := len(s.instances)
	s.mu.Unlock()

	slog.Info("Starting connection supervisor", "connection_count", count)
	defer func() {
		s.wg.Wait()
		close(s.done)
		slog.Info("Connection supervisor stopped")
	}()

	for {
		timer := s.deps.Clock.NewTimer(s.checkInterval())
		select {
		case <-runCtx.Done():
			timer.Stop()
			return nil
		case <-timer.C():
			s.check()
		}
	}
}

// Stop cancels every instance and waits for them to finish
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	cancel := s.cancelFunc
	s.mu.Unlock()

	if cancel != nil {
		slog.Info("Stopping connection supervisor")
		cancel()
		<-s.done
	}
	return nil
}

// launchLocked starts the goroutine of an instance. s.mu must be held.
func (s *Supervisor) launchLocked(m *managed) {
	if s.runCtx == nil {
		return
	}
	ctx := s.runCtx
	instance := m.instance
	m.exited = false

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				slog.Error("Connection instance crashed", "connection_id", instance.ID(), "panic", r)
			}
			s.mu.Lock()
			defer s.mu.Unlock()
			if m.instance == instance {
				m.exited = true
				m.deleted = m.deleted || instance.Info().Phase == status.PhaseDeleted
			}
		}()
		_ = instance.Run(ctx)
	}()
}

// check restarts crashed instances with a fresh instance and releases quarantined ones
func (s *Supervisor) check() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.runCtx == nil || s.runCtx.Err() != nil {
		return
	}
	for id, m := range s.instances {
		switch {
		case m.deleted:
			continue
		case m.exited:
			slog.Warn("Restarting connection instance", "connection_id", id)
			m.instance = NewInstance(m.instance.Definition(), s.deps, s.settings)
			s.launchLocked(m)
		case m.instance.Quarantined():
			slog.Info("Retrying quarantined connection instance", "connection_id", id)
			m.instance.Signal(Signal{Type: SignalRetryFailedActivity})
		}
	}
}

// lookup returns the live instance of a connection
func (s *Supervisor) lookup(connectionID string) (*Instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.instances[connectionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, connectionID)
	}
	if m.deleted {
		return nil, fmt.Errorf("%w: %s", ErrDeleted, connectionID)
	}
	return m.instance, nil
}

// TriggerManualSync starts a job now. It returns once the signal is queued; the job is created
// by the instance goroutine and its id is reported by GetJobInformation.
func (s *Supervisor) TriggerManualSync(connectionID string) error {
	instance, err := s.lookup(connectionID)
	if err != nil {
		return err
	}
	info := instance.Info()
	if info.Running() {
		return fmt.Errorf("%w: job %d", ErrJobRunning, info.JobID)
	}
	if !info.Active {
		return fmt.Errorf("%w: %s", ErrInactive, connectionID)
	}
	instance.Signal(Signal{Type: SignalManualSync})
	return nil
}

// Cancel cancels the running job
func (s *Supervisor) Cancel(connectionID string) error {
	instance, err := s.lookup(connectionID)
	if err != nil {
		return err
	}
	if !instance.Info().Running() {
		return fmt.Errorf("%w: %s", ErrNoJobRunning, connectionID)
	}
	instance.Signal(Signal{Type: SignalCancel})
	return nil
}

// ResetConnection requests a reset of streams, or of every configured stream when none are
// given. A running job is cancelled first. withScheduling waits for the schedule before the
// reset job runs. Like TriggerManualSync it only queues the signal; the reset job id is reported
// by GetJobInformation once the job exists.
func (s *Supervisor) ResetConnection(connectionID string, streams []ledger.StreamDescriptor, withScheduling bool) error {
	instance, err := s.lookup(connectionID)
	if err != nil {
		return err
	}
	if len(streams) == 0 && len(instance.Definition().Streams) == 0 {
		return fmt.Errorf("%w: %s", ErrNoStreams, connectionID)
	}
	instance.Signal(Signal{Type: SignalReset, Streams: streams, WithScheduling: withScheduling})
	return nil
}

// Update replaces the definition of a connection, or starts an instance for a new one
func (s *Supervisor) Update(def Definition) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	m, ok := s.instances[def.ID]
	if !ok {
		m = &managed{instance: NewInstance(def, s.deps, s.settings)}
		s.instances[def.ID] = m
		s.launchLocked(m)
		slog.Info("Connection added", "connection_id", def.ID)
		return nil
	}
	if m.deleted {
		return fmt.Errorf("%w: %s", ErrDeleted, def.ID)
	}
	m.instance.Signal(Signal{Type: SignalUpdate, Definition: &def})
	return nil
}

// Delete stops scheduling a connection. A running job is cancelled.
func (s *Supervisor) Delete(connectionID string) error {
	instance, err := s.lookup(connectionID)
	if err != nil {
		return err
	}
	instance.Signal(Signal{Type: SignalDelete})

	s.mu.Lock()
	defer s.mu.Unlock()
	if m, ok := s.instances[connectionID]; ok && s.runCtx == nil {
		// Not started yet; nothing will consume the signal
		m.deleted = true
	}
	return nil
}

// RetryFailedActivity releases a quarantined instance
func (s *Supervisor) RetryFailedActivity(connectionID string) error {
	instance, err := s.lookup(connectionID)
	if err != nil {
		return err
	}
	if !instance.Quarantined() {
		return fmt.Errorf("%w: %s", ErrNotQuarantined, connectionID)
	}
	instance.Signal(Signal{Type: SignalRetryFailedActivity})
	return nil
}

// GetJobInformation reports the running job of a connection. JobID and AttemptNumber are -1
// when no job is running.
func (s *Supervisor) GetJobInformation(connectionID string) (JobInfo, error) {
	s.mu.Lock()
	m, ok := s.instances[connectionID]
	s.mu.Unlock()
	if !ok {
		return JobInfo{}, fmt.Errorf("%w: %s", ErrNotFound, connectionID)
	}
	return m.instance.Info(), nil
}

// List reports every connection, ordered by id
func (s *Supervisor) List() []JobInfo {
	s.mu.Lock()
	instances := make([]*Instance, 0, len(s.instances))
	for _, m := range s.instances {
		instances = append(instances, m.instance)
	}
	s.mu.Unlock()

	infos := make([]JobInfo, 0, len(instances))
	for _, instance := range instances {
		infos = append(infos, instance.Info())
	}
	slices.SortFunc(infos, func(a, b JobInfo) int {
		return strings.Compare(a.ConnectionID, b.ConnectionID)
	})
	return infos
}
