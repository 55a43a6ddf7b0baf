package connection

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connsync/internal/autodisable"
	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/connectors"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/logging"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/status"
	"github.com/stacklok/connsync/internal/telemetry"
)

// TracerName is the instrumentation scope of the state machine spans
const TracerName = "github.com/stacklok/connsync/internal/connection"

// errDeleted ends the instance loop after a delete signal
var errDeleted = errors.New("connection deleted")

// Dependencies are the components shared by every instance
type Dependencies struct {
	Ledger     ledger.Ledger
	States     status.StatePersistence
	Calculator *schedule.Calculator
	Policy     *autodisable.Policy
	Connectors *connectors.Registry
	Clock      clock.Clock
	Metrics    *telemetry.JobMetrics
	Tracer     trace.Tracer
}

func (d *Dependencies) defaults() {
	if d.Clock == nil {
		d.Clock = clock.New()
	}
	if d.Calculator == nil {
		d.Calculator = schedule.NewCalculator(d.Clock)
	}
	if d.States == nil {
		d.States = status.NewMemoryStatePersistence()
	}
}

// Instance is the state machine of one connection. Run drives it; every other method may be
// called from any goroutine.
type Instance struct {
	deps     Dependencies
	settings Settings
	signals  *signalQueue

	mu sync.Mutex
	// control is written by the Run goroutine and, while a job runs, by the attempt goroutine
	control           *status.ControlState
	def               Definition
	phase             status.Phase
	active            bool
	jobID             int64
	attempt           int
	nextRun           *time.Time
	quarantineReason  string
	worker            *replication.Worker
	cancelRequested   bool
	cancelledForReset bool
	deleteRequested   bool
	pendingUpdate     *Definition
}

// NewInstance creates the state machine of a connection
func NewInstance(def Definition, deps Dependencies, settings Settings) *Instance {
	deps.defaults()
	return &Instance{
		deps:     deps,
		settings: settings,
		signals:  newSignalQueue(),
		def:      def,
		phase:    status.PhaseIdle,
		active:   def.Active,
		jobID:    -1,
		attempt:  -1,
	}
}

// Signal queues a signal. It never blocks.
func (in *Instance) Signal(s Signal) {
	in.signals.push(s)
}

// ID returns the connection id
func (in *Instance) ID() string {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.def.ID
}

// Definition returns the current connection definition
func (in *Instance) Definition() Definition {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.def
}

// Info reports what the instance is doing
func (in *Instance) Info() JobInfo {
	in.mu.Lock()
	defer in.mu.Unlock()

	info := JobInfo{
		ConnectionID:     in.def.ID,
		Phase:            in.phase,
		JobID:            in.jobID,
		AttemptNumber:    in.attempt,
		Active:           in.active,
		Quarantined:      in.phase == status.PhaseQuarantined,
		QuarantineReason: in.quarantineReason,
	}
	if in.nextRun != nil {
		next := *in.nextRun
		info.NextRun = &next
	}
	if in.control != nil {
		info.ResetPending = in.control.ResetRequested
		info.FailuresSinceSuccess = in.control.FailuresSinceSuccess
	}
	return info
}

// Run drives the state machine until ctx is done or the connection is deleted. A job that is
// running when ctx is done stays live in the ledger and is resumed by the next Run.
func (in *Instance) Run(ctx context.Context) error {
	ctx = logging.WithConnection(ctx, in.ID())
	in.deps.Metrics.InstanceStarted(ctx)
	defer in.deps.Metrics.InstanceStopped(ctx)

	slog.InfoContext(ctx, "Connection instance started")
	for {
		err := in.start(ctx)
		for err == nil {
			err = in.cycle(ctx)
		}

		if errors.Is(err, errDeleted) {
			slog.InfoContext(ctx, "Connection instance deleted")
			return nil
		}
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Connection instance stopped")
			return nil
		}

		// Anything that is not a quarantine error is an orchestration defect as well
		var qErr *QuarantineError
		if !errors.As(err, &qErr) {
			qErr = &QuarantineError{Activity: "cycle", Err: err}
		}
		if err := in.quarantine(ctx, qErr); err != nil {
			if errors.Is(err, errDeleted) {
				slog.InfoContext(ctx, "Connection instance deleted")
			}
			return nil
		}
	}
}

// start loads the durable control state and registers the connection in the ledger
func (in *Instance) start(ctx context.Context) error {
	def := in.Definition()

	control, err := activity(ctx, in, "load-state", func(ctx context.Context) (*status.ControlState, error) {
		return in.deps.States.LoadState(ctx, def.ID)
	})
	if err != nil {
		return err
	}
	if control.Deleted {
		in.mu.Lock()
		in.phase = status.PhaseDeleted
		in.mu.Unlock()
		return errDeleted
	}
	control.Quarantined = false
	control.QuarantineReason = ""
	in.mu.Lock()
	in.control = control
	in.mu.Unlock()

	conn, err := activity(ctx, in, "upsert-connection", func(ctx context.Context) (*ledger.Connection, error) {
		return in.deps.Ledger.UpsertConnection(ctx, def.ID, def.Status(), false)
	})
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.active = conn.Status == status.ConnectionStatusActive
	in.quarantineReason = ""
	in.mu.Unlock()
	return nil
}

// cycle runs one Idle → Waiting → Running → outcome round, or resumes the job the control state
// points at.
func (in *Instance) cycle(ctx context.Context) error {
	if in.control.JobID != nil {
		return in.resume(ctx, *in.control.JobID)
	}

	if err := in.transition(ctx, status.PhaseIdle); err != nil {
		return err
	}
	run, err := in.wait(ctx)
	if err != nil || !run {
		return err
	}

	id := in.ID()
	job, err := activity(ctx, in, "create-job", func(ctx context.Context) (*ledger.Job, error) {
		return in.deps.Ledger.CreateJob(ctx, id)
	})
	if err != nil {
		return err
	}
	slog.InfoContext(ctx, "Job created", "job_id", job.ID, "config_type", job.ConfigType)
	return in.execute(ctx, job, 1)
}

// transition persists a phase change
func (in *Instance) transition(ctx context.Context, phase status.Phase) error {
	now := in.deps.Clock.Now().UTC()
	in.mu.Lock()
	in.control.Phase = phase
	in.control.LastTransition = &now
	in.phase = phase
	in.mu.Unlock()

	return in.saveControl(ctx)
}

// updateControl changes the control state without persisting it
func (in *Instance) updateControl(f func(c *status.ControlState)) {
	in.mu.Lock()
	defer in.mu.Unlock()
	f(in.control)
}

func (in *Instance) saveControl(ctx context.Context) error {
	in.mu.Lock()
	id := in.def.ID
	state := in.control.Clone()
	in.mu.Unlock()

	return exec(ctx, in, "save-state", func(ctx context.Context) error {
		return in.deps.States.SaveState(ctx, id, state)
	})
}

// wait blocks until the schedule fires or a signal asks for a run. It returns false when the
// cycle must be restarted without running a job.
func (in *Instance) wait(ctx context.Context) (bool, error) {
	if err := in.transition(ctx, status.PhaseWaiting); err != nil {
		return false, err
	}
	if in.control.SkipScheduling {
		in.updateControl(func(c *status.ControlState) { c.SkipScheduling = false })
		return true, in.saveControl(ctx)
	}

	def := in.Definition()
	conn, err := activity(ctx, in, "get-connection", func(ctx context.Context) (*ledger.Connection, error) {
		return in.deps.Ledger.GetConnection(ctx, def.ID)
	})
	if err != nil {
		return false, err
	}
	active := conn.Status == status.ConnectionStatusActive
	in.mu.Lock()
	in.active = active
	in.mu.Unlock()

	// Resets registered before a restart are only known to the ledger
	pending, err := in.syncPendingResets(ctx, def.ID)
	if err != nil {
		return false, err
	}
	if pending && active && !in.control.ResetWithScheduling {
		slog.InfoContext(ctx, "Stream reset pending, running now")
		return true, nil
	}

	var lastRunStart *time.Time
	lastJob, err := activity(ctx, in, "last-job", func(ctx context.Context) (*ledger.Job, error) {
		return in.deps.Ledger.LastJob(ctx, def.ID)
	})
	switch {
	case err == nil:
		start := lastJob.RunStart()
		lastRunStart = &start
	case !errors.Is(err, ledger.ErrJobNotFound):
		return false, err
	}

	d, err := in.deps.Calculator.TimeToWait(def.Schedule, active, lastRunStart)
	if err != nil {
		slog.ErrorContext(ctx, "Cannot compute the next run, waiting for signals", "error", err)
		d = schedule.Forever
	}

	var (
		timerC  <-chan time.Time
		nextRun *time.Time
	)
	if d != schedule.Forever {
		timer := in.deps.Clock.NewTimer(d)
		defer timer.Stop()
		timerC = timer.C()
		next := in.deps.Clock.Now().Add(d)
		nextRun = &next
		slog.DebugContext(ctx, "Waiting for the next run", "wait", d)
	}

	in.mu.Lock()
	in.active = active
	in.nextRun = nextRun
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.nextRun = nil
		in.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-timerC:
			slog.InfoContext(ctx, "Schedule fired")
			return true, nil
		case <-in.signals.ready():
			s, ok := in.signals.pop()
			if !ok {
				continue
			}
			run, restart, err := in.handleWaitingSignal(ctx, s)
			if err != nil || run || restart {
				return run, err
			}
		}
	}
}

// handleWaitingSignal reacts to a signal received while waiting
func (in *Instance) handleWaitingSignal(ctx context.Context, s Signal) (run, restart bool, err error) {
	slog.InfoContext(ctx, "Signal received", "signal", s.Type, "phase", status.PhaseWaiting)

	switch s.Type {
	case SignalManualSync:
		return true, false, nil
	case SignalUpdate:
		return false, true, in.applyUpdate(ctx, s.Definition)
	case SignalDelete:
		return false, false, in.markDeleted(ctx)
	case SignalReset:
		if err := in.requestReset(ctx, s.Streams, s.WithScheduling); err != nil {
			return false, false, err
		}
		if s.WithScheduling {
			return false, true, nil
		}
		return true, false, nil
	case SignalCancel, SignalRetryFailedActivity:
		slog.DebugContext(ctx, "Ignoring signal, no job is running", "signal", s.Type)
	}
	return false, false, nil
}

func (in *Instance) applyUpdate(ctx context.Context, def *Definition) error {
	if def == nil {
		return nil
	}
	in.mu.Lock()
	def.ID = in.def.ID
	in.def = *def
	in.mu.Unlock()

	conn, err := activity(ctx, in, "upsert-connection", func(ctx context.Context) (*ledger.Connection, error) {
		return in.deps.Ledger.UpsertConnection(ctx, def.ID, def.Status(), true)
	})
	if err != nil {
		return err
	}
	in.mu.Lock()
	in.active = conn.Status == status.ConnectionStatusActive
	in.mu.Unlock()
	slog.InfoContext(ctx, "Connection updated", "active", def.Active, "schedule_type", def.Schedule.Type)
	return nil
}

func (in *Instance) requestReset(ctx context.Context, streams []ledger.StreamDescriptor, withScheduling bool) error {
	def := in.Definition()
	if len(streams) == 0 {
		for _, s := range def.Streams {
			streams = append(streams, ledger.StreamDescriptor{Name: s.Stream.Name, Namespace: s.Stream.Namespace})
		}
	}
	if len(streams) == 0 {
		slog.WarnContext(ctx, "Ignoring reset, no streams to reset")
		return nil
	}
	if err := exec(ctx, in, "request-reset", func(ctx context.Context) error {
		return in.deps.Ledger.RequestReset(ctx, def.ID, streams)
	}); err != nil {
		return err
	}
	in.updateControl(func(c *status.ControlState) {
		c.ResetRequested = true
		c.ResetWithScheduling = withScheduling
	})
	return in.saveControl(ctx)
}

// syncPendingResets aligns the control state with the resets registered in the ledger and
// reports whether any are pending
func (in *Instance) syncPendingResets(ctx context.Context, connectionID string) (bool, error) {
	streams, err := activity(ctx, in, "pending-resets", func(ctx context.Context) ([]ledger.StreamDescriptor, error) {
		return in.deps.Ledger.PendingResets(ctx, connectionID)
	})
	if err != nil {
		return false, err
	}
	pending := len(streams) > 0

	in.mu.Lock()
	changed := in.control.ResetRequested != pending
	in.control.ResetRequested = pending
	if !pending {
		changed = changed || in.control.ResetWithScheduling
		in.control.ResetWithScheduling = false
	}
	in.mu.Unlock()
	if !changed {
		return pending, nil
	}
	return pending, in.saveControl(ctx)
}

func (in *Instance) markDeleted(ctx context.Context) error {
	in.updateControl(func(c *status.ControlState) {
		c.Deleted = true
		c.JobID = nil
		c.AttemptNumber = 0
	})
	if err := in.transition(ctx, status.PhaseDeleted); err != nil {
		return err
	}
	return errDeleted
}

// quarantine parks the instance until a RetryFailedActivity signal releases it. It returns
// errDeleted or the context error when the instance must stop instead.
func (in *Instance) quarantine(ctx context.Context, qErr *QuarantineError) error {
	slog.ErrorContext(ctx, "Connection instance quarantined", "activity", qErr.Activity, "error", qErr.Err)
	in.deps.Metrics.RecordQuarantine(ctx, in.ID())

	now := in.deps.Clock.Now().UTC()
	in.mu.Lock()
	in.phase = status.PhaseQuarantined
	in.quarantineReason = qErr.Error()
	in.worker = nil
	var state *status.ControlState
	if in.control != nil {
		in.control.Phase = status.PhaseQuarantined
		in.control.Quarantined = true
		in.control.QuarantineReason = qErr.Error()
		in.control.LastTransition = &now
		state = in.control.Clone()
	}
	in.mu.Unlock()

	// The store may be what failed; a single try is all that makes sense here
	if state != nil {
		if err := in.deps.States.SaveState(ctx, in.ID(), state); err != nil {
			slog.WarnContext(ctx, "Failed to persist quarantine", "error", err)
		}
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-in.signals.ready():
			s, ok := in.signals.pop()
			if !ok {
				continue
			}
			switch s.Type {
			case SignalRetryFailedActivity:
				slog.InfoContext(ctx, "Releasing quarantined connection instance")
				return nil
			case SignalDelete:
				in.mu.Lock()
				in.phase = status.PhaseDeleted
				var state *status.ControlState
				if in.control != nil {
					in.control.Deleted = true
					in.control.Phase = status.PhaseDeleted
					state = in.control.Clone()
				}
				in.mu.Unlock()
				if state != nil {
					if err := in.deps.States.SaveState(ctx, in.ID(), state); err != nil {
						slog.WarnContext(ctx, "Failed to persist deletion", "error", err)
					}
				}
				return errDeleted
			case SignalUpdate:
				if s.Definition != nil {
					in.mu.Lock()
					s.Definition.ID = in.def.ID
					in.def = *s.Definition
					in.mu.Unlock()
				}
			default:
				slog.DebugContext(ctx, "Ignoring signal while quarantined", "signal", s.Type)
			}
		}
	}
}

// clearJob forgets the current job once it reached a terminal status
func (in *Instance) clearJob(ctx context.Context, phase status.Phase) error {
	in.mu.Lock()
	in.control.JobID = nil
	in.control.AttemptNumber = 0
	in.control.FromFailure = false
	in.jobID = -1
	in.attempt = -1
	in.worker = nil
	in.mu.Unlock()

	return in.transition(ctx, phase)
}

// Quarantined reports whether the instance is parked in quarantine
func (in *Instance) Quarantined() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.phase == status.PhaseQuarantined
}
