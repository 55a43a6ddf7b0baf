// Package telemetry provides OpenTelemetry instrumentation for the sync scheduler.
package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	// JobMetricsMeterName is the name used for the job metrics meter
	JobMetricsMeterName = "github.com/stacklok/connsync/jobs"
)

// JobMetrics holds the OpenTelemetry instruments for jobs, attempts and connection instances
type JobMetrics struct {
	attemptDuration    metric.Float64Histogram
	recordsSynced      metric.Int64Counter
	bytesSynced        metric.Int64Counter
	jobOutcomes        metric.Int64Counter
	autoDisable        metric.Int64Counter
	quarantines        metric.Int64Counter
	runningConnections metric.Int64UpDownCounter
}

// NewJobMetrics creates a new JobMetrics instance with the given meter provider.
// If provider is nil, it returns nil (no-op metrics).
func NewJobMetrics(provider metric.MeterProvider) (*JobMetrics, error) {
	if provider == nil {
		return nil, nil
	}

	meter := provider.Meter(JobMetricsMeterName)

	attemptDuration, err := meter.Float64Histogram(
		"connsync_attempt_duration_seconds",
		metric.WithDescription("Duration of replication attempts in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(1, 5, 15, 60, 300, 900, 1800, 3600, 4*3600, 24*3600),
	)
	if err != nil {
		return nil, err
	}

	recordsSynced, err := meter.Int64Counter(
		"connsync_records_synced_total",
		metric.WithDescription("Records emitted by sources and handed to destinations"),
		metric.WithUnit("{record}"),
	)
	if err != nil {
		return nil, err
	}

	bytesSynced, err := meter.Int64Counter(
		"connsync_bytes_synced_total",
		metric.WithDescription("Bytes emitted by sources and handed to destinations"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	jobOutcomes, err := meter.Int64Counter(
		"connsync_jobs_total",
		metric.WithDescription("Jobs that reached a terminal status"),
		metric.WithUnit("{job}"),
	)
	if err != nil {
		return nil, err
	}

	autoDisable, err := meter.Int64Counter(
		"connsync_auto_disable_decisions_total",
		metric.WithDescription("Auto-disable policy decisions other than no-op"),
		metric.WithUnit("{decision}"),
	)
	if err != nil {
		return nil, err
	}

	quarantines, err := meter.Int64Counter(
		"connsync_quarantines_total",
		metric.WithDescription("Connection instances that entered quarantine"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	runningConnections, err := meter.Int64UpDownCounter(
		"connsync_connection_instances",
		metric.WithDescription("Connection state machine instances currently running"),
		metric.WithUnit("{instance}"),
	)
	if err != nil {
		return nil, err
	}

	return &JobMetrics{
		attemptDuration:    attemptDuration,
		recordsSynced:      recordsSynced,
		bytesSynced:        bytesSynced,
		jobOutcomes:        jobOutcomes,
		autoDisable:        autoDisable,
		quarantines:        quarantines,
		runningConnections: runningConnections,
	}, nil
}

// RecordAttempt records the duration and volume of one replication attempt
func (m *JobMetrics) RecordAttempt(
	ctx context.Context, connectionID, outcome string, duration time.Duration, records, bytes int64,
) {
	if m == nil || m.attemptDuration == nil {
		return
	}

	conn := attribute.String("connection", connectionID)
	m.attemptDuration.Record(ctx, duration.Seconds(),
		metric.WithAttributes(conn, attribute.String("outcome", outcome)))
	m.recordsSynced.Add(ctx, records, metric.WithAttributes(conn))
	m.bytesSynced.Add(ctx, bytes, metric.WithAttributes(conn))
}

// RecordJobOutcome counts a job reaching a terminal status
func (m *JobMetrics) RecordJobOutcome(ctx context.Context, connectionID, jobStatus string) {
	if m == nil || m.jobOutcomes == nil {
		return
	}

	m.jobOutcomes.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connection", connectionID),
		attribute.String("status", jobStatus),
	))
}

// RecordAutoDisableDecision counts a warning or disable decision
func (m *JobMetrics) RecordAutoDisableDecision(ctx context.Context, connectionID, decision string) {
	if m == nil || m.autoDisable == nil {
		return
	}

	m.autoDisable.Add(ctx, 1, metric.WithAttributes(
		attribute.String("connection", connectionID),
		attribute.String("decision", decision),
	))
}

// RecordQuarantine counts an instance entering quarantine
func (m *JobMetrics) RecordQuarantine(ctx context.Context, connectionID string) {
	if m == nil || m.quarantines == nil {
		return
	}

	m.quarantines.Add(ctx, 1, metric.WithAttributes(attribute.String("connection", connectionID)))
}

// InstanceStarted increments the running instance count
func (m *JobMetrics) InstanceStarted(ctx context.Context) {
	if m == nil || m.runningConnections == nil {
		return
	}
	m.runningConnections.Add(ctx, 1)
}

// InstanceStopped decrements the running instance count
func (m *JobMetrics) InstanceStopped(ctx context.Context) {
	if m == nil || m.runningConnections == nil {
		return
	}
	m.runningConnections.Add(ctx, -1)
}
