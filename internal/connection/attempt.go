package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/logging"
	"github.com/stacklok/connsync/internal/otel"
	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/retry"
	"github.com/stacklok/connsync/internal/status"
)

// attemptInput is what changes between the attempts of a job
type attemptInput struct {
	State json.RawMessage
}

type jobResult struct {
	outputs []*replication.Output
	err     error
}

// resume continues a job the control state says was running when the previous instance stopped
func (in *Instance) resume(ctx context.Context, jobID int64) error {
	job, err := activity(ctx, in, "get-job", func(ctx context.Context) (*ledger.Job, error) {
		return in.deps.Ledger.GetJob(ctx, jobID)
	})
	if errors.Is(err, ledger.ErrJobNotFound) {
		slog.WarnContext(ctx, "Job to resume does not exist", "job_id", jobID)
		return in.clearJob(ctx, status.PhaseIdle)
	}
	if err != nil {
		return err
	}
	if job.Status.IsTerminal() {
		slog.InfoContext(ctx, "Job to resume already finished", "job_id", jobID, "status", job.Status)
		return in.clearJob(ctx, status.PhaseIdle)
	}

	next := 1
	if last := job.LastAttempt(); last != nil {
		next = last.Number + 1
		if last.Status == status.AttemptStatusRunning {
			summary := &status.FailureSummary{Failures: []status.FailureReason{{
				Origin:          status.FailureOriginOrchestrator,
				Type:            status.FailureTypeSystemError,
				Retryable:       true,
				ExternalMessage: "Attempt was interrupted by a restart",
				InternalMessage: "attempt found running on resume",
				Timestamp:       in.deps.Clock.Now().UTC(),
			}}}
			if err := exec(ctx, in, "record-attempt-failure", func(ctx context.Context) error {
				return in.deps.Ledger.RecordAttemptFailure(ctx, job.ID, last.Number, summary, last.Output)
			}); err != nil {
				return err
			}
		}
	}

	if next > in.maxAttempts() {
		slog.WarnContext(ctx, "Job to resume has no attempts left", "job_id", job.ID, "attempts", next-1)
		return in.finishFailed(ctx, job, ReasonAttemptLimitOnBoot)
	}

	slog.InfoContext(ctx, "Resuming job", "job_id", job.ID, "attempt", next)
	return in.execute(ctx, job, next)
}

func (in *Instance) maxAttempts() int {
	if in.settings.MaxAttempts <= 0 {
		return 1
	}
	return in.settings.MaxAttempts
}

// execute runs the attempts of a job through the retry orchestrator while the instance keeps
// consuming signals, then records the job outcome.
func (in *Instance) execute(ctx context.Context, job *ledger.Job, first int) error {
	ctx, span := otel.StartSpan(ctx, in.deps.Tracer, "connection.Job",
		trace.WithAttributes(
			otel.AttrConnectionID.String(job.ConnectionID),
			otel.AttrJobID.Int64(job.ID),
			otel.AttrConfigType.String(string(job.ConfigType)),
		))
	defer span.End()

	id := job.ID
	in.mu.Lock()
	in.control.JobID = &id
	in.control.AttemptNumber = first
	in.control.FromFailure = first > 1
	in.jobID = job.ID
	in.attempt = first
	in.cancelRequested = false
	in.cancelledForReset = false
	in.deleteRequested = false
	in.mu.Unlock()
	if err := in.transition(ctx, status.PhaseRunning); err != nil {
		return err
	}

	conn, err := activity(ctx, in, "get-connection", func(ctx context.Context) (*ledger.Connection, error) {
		return in.deps.Ledger.GetConnection(ctx, job.ConnectionID)
	})
	if err != nil {
		return err
	}

	orchestrator := retry.New(in.attemptFunc(ctx, job), retry.Config[attemptInput, *replication.Output]{
		MaxAttempts:    in.maxAttempts(),
		AttemptTimeout: in.settings.AttemptTimeout,
		ShouldRetry:    in.shouldRetry,
		NextInput:      nextInput,
	})

	results := make(chan jobResult, 1)
	go func() {
		outputs, err := orchestrator.Run(ctx, job.ID, first, attemptInput{State: conn.State})
		results <- jobResult{outputs: outputs, err: err}
	}()

	var res jobResult
	for running := true; running; {
		select {
		case res = <-results:
			running = false
		case <-in.signals.ready():
			if s, ok := in.signals.pop(); ok {
				if err := in.handleRunningSignal(ctx, s); err != nil {
					in.cancelWorker()
					<-results
					return err
				}
			}
		}
	}

	if ctx.Err() != nil {
		// Shutting down; the job stays live and is resumed by the next instance
		return ctx.Err()
	}
	if res.err != nil {
		otel.RecordError(span, res.err)
		var qErr *QuarantineError
		if errors.As(res.err, &qErr) {
			return res.err
		}
		if errors.Is(res.err, ledger.ErrJobTerminal) || errors.Is(res.err, ledger.ErrJobNotFound) {
			slog.WarnContext(ctx, "Job was finished elsewhere", "job_id", job.ID, "error", res.err)
			return in.clearJob(ctx, status.PhaseIdle)
		}
		return res.err
	}

	return in.finish(ctx, span, job, res.outputs)
}

// handleRunningSignal reacts to a signal received while a job runs
func (in *Instance) handleRunningSignal(ctx context.Context, s Signal) error {
	slog.InfoContext(ctx, "Signal received", "signal", s.Type, "phase", status.PhaseRunning)

	switch s.Type {
	case SignalCancel:
		in.mu.Lock()
		in.cancelRequested = true
		in.mu.Unlock()
		in.cancelWorker()
	case SignalReset:
		if err := in.requestReset(ctx, s.Streams, s.WithScheduling); err != nil {
			return err
		}
		in.mu.Lock()
		in.cancelRequested = true
		in.cancelledForReset = true
		in.mu.Unlock()
		in.updateControl(func(c *status.ControlState) { c.SkipScheduling = !s.WithScheduling })
		in.cancelWorker()
	case SignalDelete:
		in.mu.Lock()
		in.cancelRequested = true
		in.deleteRequested = true
		in.mu.Unlock()
		in.cancelWorker()
	case SignalUpdate:
		in.mu.Lock()
		in.pendingUpdate = s.Definition
		in.mu.Unlock()
	case SignalManualSync, SignalRetryFailedActivity:
		slog.DebugContext(ctx, "Ignoring signal, a job is running", "signal", s.Type)
	}
	return nil
}

func (in *Instance) cancelWorker() {
	in.mu.Lock()
	w := in.worker
	in.mu.Unlock()
	if w != nil {
		w.Cancel()
	}
}

func (in *Instance) cancelling() bool {
	in.mu.Lock()
	defer in.mu.Unlock()
	return in.cancelRequested
}

// shouldRetry asks for another attempt after a retryable failure that nobody cancelled
func (in *Instance) shouldRetry(out *replication.Output) bool {
	if out == nil || out.Succeeded() || in.cancelling() {
		return false
	}
	if out.Summary.Status != status.ReplicationStatusFailed {
		return false
	}
	return out.FailureSummary().Retryable()
}

// nextInput resumes from the committed state of a partially successful attempt
func nextInput(prev attemptInput, out *replication.Output) attemptInput {
	if out != nil && out.Summary.RecordsCommitted > 0 && len(out.State) > 0 {
		return attemptInput{State: out.State}
	}
	return prev
}

// attemptFunc builds the function the orchestrator calls for every attempt. jobCtx is the
// context of the job; when it is done the attempt is left unrecorded for the next instance.
func (in *Instance) attemptFunc(jobCtx context.Context, job *ledger.Job) retry.AttemptFunc[attemptInput, *replication.Output] {
	return func(ctx context.Context, number int, input attemptInput) (*replication.Output, error) {
		if in.cancelling() {
			return &replication.Output{Summary: status.SyncSummary{Status: status.ReplicationStatusCancelled}}, nil
		}

		// Ledger calls outlive the attempt deadline so a timed out attempt can still be recorded
		recordCtx := logging.WithAttempt(jobCtx, job.ID, number)

		created, err := activity(recordCtx, in, "create-attempt", func(ctx context.Context) (int, error) {
			return in.deps.Ledger.CreateAttempt(ctx, job.ID)
		})
		if err != nil {
			return nil, err
		}
		if created != number {
			slog.WarnContext(ctx, "Ledger allocated a different attempt number", "expected", number, "attempt", created)
			number = created
			recordCtx = logging.WithAttempt(jobCtx, job.ID, number)
		}

		in.mu.Lock()
		in.control.AttemptNumber = number
		in.attempt = number
		in.mu.Unlock()
		if err := in.saveControl(recordCtx); err != nil {
			return nil, err
		}

		def := in.Definition()
		replicationInput := &replication.Input{
			ConnectionID:      job.ConnectionID,
			JobID:             job.ID,
			Attempt:           number,
			ConfigType:        job.ConfigType,
			SourceConfig:      def.Source.Config,
			DestinationConfig: def.Destination.Config,
			State:             input.State,
		}

		start := in.deps.Clock.Now()
		out, err := in.replicate(ctx, def, job, replicationInput)
		if err != nil {
			out = replication.FailedOutput(replicationInput, status.FailureOriginOrchestrator, err, in.deps.Clock.Now())
		}
		in.deps.Metrics.RecordAttempt(ctx, job.ConnectionID, string(out.Summary.Status),
			in.deps.Clock.Now().Sub(start), out.Summary.RecordsSynced, out.Summary.BytesSynced)

		if jobCtx.Err() != nil {
			return out, nil
		}

		switch {
		case out.Succeeded():
			err = exec(recordCtx, in, "record-success", func(ctx context.Context) error {
				return in.deps.Ledger.RecordSuccess(ctx, job.ID, number, out.JobOutput())
			})
		case out.Summary.Status == status.ReplicationStatusFailed:
			err = exec(recordCtx, in, "record-attempt-failure", func(ctx context.Context) error {
				return in.deps.Ledger.RecordAttemptFailure(ctx, job.ID, number, out.FailureSummary(), out.JobOutput())
			})
		}
		if err != nil {
			return out, err
		}
		return out, nil
	}
}

// replicate builds the adapters of one attempt and runs the replication loop
func (in *Instance) replicate(ctx context.Context, def Definition, job *ledger.Job,
	input *replication.Input) (*replication.Output, error) {
	source, err := in.deps.Connectors.Source(def.Source.Type, job.ConfigType)
	if err != nil {
		return nil, replication.ConfigError(status.FailureOriginSource, "unknown source connector", err)
	}
	destination, err := in.deps.Connectors.Destination(def.Destination.Type)
	if err != nil {
		return nil, replication.ConfigError(status.FailureOriginDestination, "unknown destination connector", err)
	}

	catalog, err := in.catalog(ctx, def, job, source)
	if err != nil {
		return nil, err
	}
	input.Catalog = catalog

	// The tracker sees mapped messages, so schemas are keyed by the mapped stream names
	mapper := replication.NewNamespaceMapper(def.NamespacePrefix, def.Namespace)
	schemas, err := replication.CompileSchemas(mapper.MapCatalog(catalog))
	if err != nil {
		return nil, replication.ConfigError(status.FailureOriginSource, "invalid stream schema", err)
	}

	worker := replication.NewWorker(source, destination, mapper,
		replication.NewMessageTracker(in.settings.MaxValidationErrors, schemas),
		replication.WithClock(in.deps.Clock),
		replication.WithTracer(in.deps.Tracer),
	)

	in.mu.Lock()
	in.worker = worker
	cancel := in.cancelRequested
	in.mu.Unlock()
	defer func() {
		in.mu.Lock()
		in.worker = nil
		in.mu.Unlock()
	}()
	if cancel {
		worker.Cancel()
	}

	return worker.Run(ctx, input)
}

// catalog selects the streams of an attempt. Reset jobs overwrite only the streams being
// reset; sync jobs use the configured streams, or every discovered stream when none are
// configured. Discovered schemas are attached to configured streams.
func (in *Instance) catalog(ctx context.Context, def Definition, job *ledger.Job,
	source replication.Source) (replication.Catalog, error) {
	if job.ConfigType == status.ConfigTypeReset {
		var catalog replication.Catalog
		for _, s := range job.Config.ResetStreams {
			catalog.Streams = append(catalog.Streams, replication.ConfiguredStream{
				Stream:              replication.StreamDescriptor{Name: s.Name, Namespace: s.Namespace},
				SyncMode:            replication.SyncModeFullRefresh,
				DestinationSyncMode: replication.DestinationSyncModeOverwrite,
			})
		}
		return catalog, nil
	}

	var discovered replication.Catalog
	if d, ok := source.(replication.Discoverer); ok {
		var err error
		discovered, err = d.Discover(ctx, def.Source.Config)
		if err != nil {
			return replication.Catalog{}, err
		}
	}
	if len(def.Streams) == 0 {
		if len(discovered.Streams) == 0 {
			return replication.Catalog{}, replication.ConfigError(status.FailureOriginSource,
				"no streams selected", fmt.Errorf("source '%s' discovered no streams", def.Source.Type))
		}
		return discovered, nil
	}

	schemas := make(map[replication.StreamDescriptor]json.RawMessage, len(discovered.Streams))
	for _, s := range discovered.Streams {
		schemas[s.Stream] = s.JSONSchema
	}
	catalog := replication.Catalog{Streams: make([]replication.ConfiguredStream, 0, len(def.Streams))}
	for _, s := range def.Streams {
		if len(s.JSONSchema) == 0 {
			s.JSONSchema = schemas[s.Stream]
		}
		catalog.Streams = append(catalog.Streams, s)
	}
	return catalog, nil
}

// finish records the job outcome, runs the auto-disable policy and applies what the signals
// received during the job asked for.
func (in *Instance) finish(ctx context.Context, span trace.Span, job *ledger.Job, outputs []*replication.Output) error {
	var last *replication.Output
	if len(outputs) > 0 {
		last = outputs[len(outputs)-1]
	}

	in.mu.Lock()
	cancelRequested := in.cancelRequested
	forReset := in.cancelledForReset
	deleted := in.deleteRequested
	update := in.pendingUpdate
	attempt := in.attempt
	in.pendingUpdate = nil
	in.mu.Unlock()

	var (
		err       error
		jobStatus status.JobStatus
	)
	switch {
	case last != nil && last.Succeeded():
		jobStatus = status.JobStatusSucceeded
		err = in.finishSucceeded(ctx, job)
	case cancelRequested || (last != nil && last.Summary.Status == status.ReplicationStatusCancelled):
		jobStatus = status.JobStatusCancelled
		err = in.finishCancelled(ctx, job, attempt, last, forReset, deleted)
	default:
		reason := ReasonTooManyRetries
		if last != nil && !last.FailureSummary().Retryable() {
			reason = ReasonNonRetryable
		}
		jobStatus = status.JobStatusFailed
		err = in.finishFailed(ctx, job, reason)
	}
	span.SetAttributes(otel.AttrJobStatus.String(string(jobStatus)))
	if err != nil {
		return err
	}

	if deleted {
		return in.markDeleted(ctx)
	}
	if update != nil {
		return in.applyUpdate(ctx, update)
	}
	return nil
}

func (in *Instance) finishSucceeded(ctx context.Context, job *ledger.Job) error {
	slog.InfoContext(ctx, "Job succeeded", "job_id", job.ID)
	in.deps.Metrics.RecordJobOutcome(ctx, job.ConnectionID, string(status.JobStatusSucceeded))
	in.updateControl(func(c *status.ControlState) {
		c.FailuresSinceSuccess = 0
		if job.ConfigType == status.ConfigTypeReset {
			c.ResetRequested = false
			c.ResetWithScheduling = false
		}
	})
	if err := in.clearJob(ctx, status.PhaseSucceeded); err != nil {
		return err
	}
	return in.autoDisable(ctx, job.ConnectionID)
}

func (in *Instance) finishFailed(ctx context.Context, job *ledger.Job, reason string) error {
	if err := exec(ctx, in, "record-job-failure", func(ctx context.Context) error {
		return in.deps.Ledger.RecordJobFailure(ctx, job.ID, reason)
	}); err != nil {
		return err
	}
	slog.WarnContext(ctx, "Job failed", "job_id", job.ID, "reason", reason)
	in.deps.Metrics.RecordJobOutcome(ctx, job.ConnectionID, string(status.JobStatusFailed))
	in.updateControl(func(c *status.ControlState) { c.FailuresSinceSuccess++ })
	if err := in.clearJob(ctx, status.PhaseFailed); err != nil {
		return err
	}
	return in.autoDisable(ctx, job.ConnectionID)
}

func (in *Instance) finishCancelled(ctx context.Context, job *ledger.Job, attempt int,
	last *replication.Output, forReset, deleted bool) error {
	message := MessageManualCancel
	switch {
	case deleted:
		message = MessageConnectionDeleted
	case forReset:
		message = MessageCancelledForReset
	}

	summary := &status.FailureSummary{}
	if last != nil {
		if s := last.FailureSummary(); s != nil {
			summary = s
		}
	}
	timedOut := false
	for _, f := range summary.Failures {
		if f.ExternalMessage == replication.MessageJobTimedOut {
			timedOut = true
		}
	}
	if !timedOut {
		summary.Failures = append(summary.Failures, status.FailureReason{
			Origin:          status.FailureOriginOrchestrator,
			Type:            status.FailureTypeManualCancellation,
			Retryable:       false,
			ExternalMessage: message,
			Timestamp:       in.deps.Clock.Now().UTC(),
		})
	}

	if err := exec(ctx, in, "record-job-cancelled", func(ctx context.Context) error {
		return in.deps.Ledger.RecordJobCancelled(ctx, job.ID, attempt, summary)
	}); err != nil {
		return err
	}
	if job.ConfigType == status.ConfigTypeReset && !forReset {
		// A cancelled reset stays pending but waits for the schedule instead of rerunning at once
		in.updateControl(func(c *status.ControlState) { c.ResetWithScheduling = true })
	}
	slog.InfoContext(ctx, "Job cancelled", "job_id", job.ID, "attempt", attempt, "timed_out", timedOut)
	in.deps.Metrics.RecordJobOutcome(ctx, job.ConnectionID, string(status.JobStatusCancelled))
	return in.clearJob(ctx, status.PhaseCancelled)
}

// autoDisable runs the policy after a terminal outcome. Cancellations never get here.
func (in *Instance) autoDisable(ctx context.Context, connectionID string) error {
	if in.deps.Policy == nil {
		return nil
	}
	return exec(ctx, in, "auto-disable", func(ctx context.Context) error {
		_, err := in.deps.Policy.Run(ctx, connectionID)
		return err
	})
}
