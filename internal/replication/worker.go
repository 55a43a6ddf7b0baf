package replication

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/otel"
	"github.com/stacklok/connsync/internal/status"
)

const (
	// TracerName is the name of the replication tracer
	TracerName = "github.com/stacklok/connsync/replication"

	// MessageJobTimedOut is the external message of the failure recorded when an attempt
	// exceeds its maximum duration
	MessageJobTimedOut = "job timed out"
)

// ErrAlreadyRun is returned when a Worker is run a second time
var ErrAlreadyRun = errors.New("replication worker already ran")

// Input is everything one attempt needs to run
type Input struct {
	ConnectionID      string
	JobID             int64
	Attempt           int
	ConfigType        status.ConfigType
	SourceConfig      map[string]any
	DestinationConfig map[string]any
	Catalog           Catalog
	// State is the checkpoint the source resumes from
	State json.RawMessage
}

// Output is the result of one attempt
type Output struct {
	Summary  status.SyncSummary
	State    json.RawMessage
	Catalog  Catalog
	Failures []status.FailureReason
}

// Succeeded reports whether the attempt completed without failures
func (o *Output) Succeeded() bool {
	return o.Summary.Status == status.ReplicationStatusCompleted && len(o.Failures) == 0
}

// JobOutput converts the output into what the ledger persists with the attempt
func (o *Output) JobOutput() *status.JobOutput {
	return &status.JobOutput{
		Summary: o.Summary,
		State:   o.State,
		Streams: o.Catalog.Names(),
	}
}

// FailureSummary returns the failures of the attempt, or nil if there were none
func (o *Output) FailureSummary() *status.FailureSummary {
	if len(o.Failures) == 0 {
		return nil
	}
	return &status.FailureSummary{
		Failures:       append([]status.FailureReason(nil), o.Failures...),
		PartialSuccess: o.Summary.RecordsCommitted > 0,
	}
}

// WorkerOption configures a Worker
type WorkerOption func(*Worker)

// WithClock sets the clock used for timestamps
func WithClock(c clock.Clock) WorkerOption {
	return func(w *Worker) {
		w.clock = c
	}
}

// WithTracer sets the tracer used for the attempt span
func WithTracer(tracer trace.Tracer) WorkerOption {
	return func(w *Worker) {
		w.tracer = tracer
	}
}

// Worker runs the replication loop for a single attempt. A Worker is built per attempt with its
// own adapters, mapper and tracker and must not be reused.
type Worker struct {
	source      Source
	destination Destination
	mapper      Mapper
	tracker     MessageTracker
	clock       clock.Clock
	tracer      trace.Tracer

	ran       atomic.Bool
	cancelled atomic.Bool

	mu       sync.Mutex
	cancelFn context.CancelFunc
}

// NewWorker creates a replication worker
func NewWorker(source Source, destination Destination, mapper Mapper, tracker MessageTracker,
	opts ...WorkerOption) *Worker {
	w := &Worker{
		source:      source,
		destination: destination,
		mapper:      mapper,
		tracker:     tracker,
		clock:       clock.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Cancel asks the loop to stop. It is safe to call from any goroutine, before or during Run.
func (w *Worker) Cancel() {
	w.cancelled.Store(true)

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancelFn != nil {
		w.cancelFn()
	}
}

// Run pumps messages from the source to the destination until the source is finished, an
// adapter fails or the attempt is cancelled. Adapter failures are reported in the output;
// the error is only set when the worker cannot run at all. A context deadline is handled as a
// cancellation that also records a timeout failure.
func (w *Worker) Run(ctx context.Context, in *Input) (*Output, error) {
	if in == nil {
		return nil, fmt.Errorf("replication input is required")
	}
	if !w.ran.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRun
	}

	ctx, span := otel.StartSpan(ctx, w.tracer, "replication.Run",
		trace.WithAttributes(
			otel.AttrConnectionID.String(in.ConnectionID),
			otel.AttrJobID.Int64(in.JobID),
			otel.AttrAttemptNumber.Int(in.Attempt),
			otel.AttrConfigType.String(string(in.ConfigType)),
		))
	defer span.End()

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	w.mu.Lock()
	w.cancelFn = cancel
	w.mu.Unlock()
	if w.cancelled.Load() {
		cancel()
	}

	start := w.clock.Now()
	catalog := w.mapper.MapCatalog(in.Catalog)

	var failures []status.FailureReason
	started := false
	if err := w.destination.Start(runCtx, in.DestinationConfig, catalog); err != nil {
		failures = append(failures, w.failure(status.FailureOriginDestination, err))
	} else if err := w.source.Start(runCtx, in.SourceConfig, in.Catalog, in.State); err != nil {
		failures = append(failures, w.failure(status.FailureOriginSource, err))
	} else {
		started = true
		failures = append(failures, w.pump(runCtx)...)
	}

	timedOut := errors.Is(ctx.Err(), context.DeadlineExceeded)
	if ctx.Err() != nil {
		w.cancelled.Store(true)
	}
	cancelled := w.cancelled.Load()

	if cancelled {
		// Either adapter may already be gone; cancel both regardless.
		if err := w.source.Cancel(); err != nil {
			slog.WarnContext(ctx, "Failed to cancel source", "error", err)
		}
		if err := w.destination.Cancel(); err != nil {
			slog.WarnContext(ctx, "Failed to cancel destination", "error", err)
		}
	} else if started && len(failures) == 0 {
		if err := w.destination.NotifyEndOfInput(); err != nil {
			failures = append(failures, w.failure(status.FailureOriginDestination, err))
		}
	}

	if err := w.destination.Close(); err != nil && !cancelled {
		failures = append(failures, w.failure(status.FailureOriginDestination, err))
	}
	if err := w.source.Close(); err != nil && !cancelled {
		failures = append(failures, w.failure(status.FailureOriginSource, err))
	}

	if timedOut {
		failures = append(failures, status.FailureReason{
			Origin:          status.FailureOriginReplication,
			Type:            status.FailureTypeSystemError,
			Retryable:       false,
			ExternalMessage: MessageJobTimedOut,
			InternalMessage: ctx.Err().Error(),
			Timestamp:       w.clock.Now(),
		})
	}

	out := w.output(in, catalog, start, cancelled, failures)

	span.SetAttributes(
		otel.AttrJobStatus.String(string(out.Summary.Status)),
		attribute.Int64("replication.records", out.Summary.RecordsSynced),
	)
	if len(failures) > 0 {
		otel.RecordError(span, fmt.Errorf("attempt %s with %d failures", out.Summary.Status, len(failures)))
	}

	slog.InfoContext(ctx, "Replication finished",
		"status", out.Summary.Status,
		"records", out.Summary.RecordsSynced,
		"bytes", out.Summary.BytesSynced,
		"records_committed", out.Summary.RecordsCommitted,
		"failures", len(failures))

	return out, nil
}

// pump is the read loop. It stops on cancellation, end of input or the first adapter failure.
func (w *Worker) pump(ctx context.Context) []status.FailureReason {
	for !w.cancelled.Load() && !w.source.IsFinished() {
		if ctx.Err() != nil {
			return nil
		}

		msg, err := w.source.AttemptRead(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return []status.FailureReason{w.failure(status.FailureOriginSource, err)}
		}
		if msg == nil {
			continue
		}

		mapped := w.mapper.MapMessage(msg)
		w.tracker.Accept(mapped)
		if err := w.destination.Accept(ctx, mapped); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return []status.FailureReason{w.failure(status.FailureOriginDestination, err)}
		}
	}
	return nil
}

func (w *Worker) failure(origin status.FailureOrigin, err error) status.FailureReason {
	return failureReason(origin, err, w.clock.Now())
}

func (w *Worker) output(in *Input, catalog Catalog, start time.Time, cancelled bool,
	failures []status.FailureReason) *Output {
	replicationStatus := status.ReplicationStatusCompleted
	switch {
	case cancelled:
		replicationStatus = status.ReplicationStatusCancelled
	case len(failures) > 0:
		replicationStatus = status.ReplicationStatusFailed
	}

	var (
		state     json.RawMessage
		committed int64
	)
	if c, ok := w.destination.(Committer); ok {
		state = c.CommittedState()
		committed = c.CommittedRecords()
	} else {
		state = w.tracker.OutputState()
		if replicationStatus == status.ReplicationStatusCompleted {
			committed = w.tracker.RecordCount()
		}
	}
	if len(state) == 0 {
		state = in.State
	}

	snapshots := w.tracker.StreamStats()
	streamStats := make([]status.StreamStats, 0, len(snapshots))
	for _, s := range snapshots {
		stats := status.StreamStats{
			Stream:           s.Stream.Name,
			Namespace:        s.Stream.Namespace,
			RecordsEmitted:   s.Records,
			BytesEmitted:     s.Bytes,
			InvalidRecords:   s.InvalidRecords,
			ValidationErrors: s.ValidationErrors,
		}
		if replicationStatus == status.ReplicationStatusCompleted {
			stats.RecordsCommitted = s.Records
		}
		streamStats = append(streamStats, stats)
	}

	return &Output{
		Summary: status.SyncSummary{
			Status:           replicationStatus,
			RecordsSynced:    w.tracker.RecordCount(),
			BytesSynced:      w.tracker.BytesCount(),
			RecordsCommitted: committed,
			StartTime:        start,
			EndTime:          w.clock.Now(),
			StreamStats:      streamStats,
		},
		State:    state,
		Catalog:  catalog,
		Failures: failures,
	}
}
