package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/otel"
	"github.com/stacklok/connsync/internal/status"
)

const (
	// TracerName is the name of the ledger tracer
	TracerName = "github.com/stacklok/connsync/ledger"
)

// errNoRows is what drivers translate their own "no rows" error into
var errNoRows = errors.New("no rows in result set")

type row interface {
	Scan(dest ...any) error
}

type rows interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

// querier is the part of a connection or transaction the ledger queries go through.
// Queries use $N placeholders; drivers rewrite them when their dialect differs.
type querier interface {
	exec(ctx context.Context, query string, args ...any) (int64, error)
	queryRow(ctx context.Context, query string, args ...any) row
	query(ctx context.Context, query string, args ...any) (rows, error)
}

type tx interface {
	querier
	commit(ctx context.Context) error
	rollback(ctx context.Context) error
}

// driver adapts a database client to the shared SQL ledger
type driver interface {
	querier
	begin(ctx context.Context) (tx, error)
	// forUpdate is appended to row-locking selects inside a transaction
	forUpdate() string
	system() attribute.KeyValue
	close() error
}

// sqlLedger implements Ledger on top of a SQL driver
type sqlLedger struct {
	db     driver
	clock  clock.Clock
	tracer trace.Tracer
}

// Option configures a SQL-backed ledger
type Option func(*sqlLedger)

// WithTracer sets the tracer used for ledger spans
func WithTracer(tracer trace.Tracer) Option {
	return func(l *sqlLedger) {
		l.tracer = tracer
	}
}

// WithClock sets the clock used for timestamps
func WithClock(c clock.Clock) Option {
	return func(l *sqlLedger) {
		l.clock = c
	}
}

func newSQLLedger(db driver, opts ...Option) *sqlLedger {
	l := &sqlLedger{
		db:    db,
		clock: clock.New(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func (l *sqlLedger) now() time.Time {
	return l.clock.Now().UTC().Truncate(time.Microsecond)
}

func (l *sqlLedger) startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append([]attribute.KeyValue{l.db.system()}, attrs...)
	return otel.StartSpan(ctx, l.tracer, name, trace.WithAttributes(attrs...))
}

// inTx runs fn in a transaction, committing if it returns nil
func (l *sqlLedger) inTx(ctx context.Context, fn func(tx) error) error {
	t, err := l.db.begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = t.rollback(ctx)
	}()

	if err := fn(t); err != nil {
		return err
	}

	if err := t.commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (l *sqlLedger) Close() error {
	return l.db.close()
}

func (l *sqlLedger) UpsertConnection(
	ctx context.Context, connectionID string, st status.ConnectionStatus, overwrite bool,
) (*Connection, error) {
	ctx, span := l.startSpan(ctx, "ledger.UpsertConnection", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	now := l.now()
	q := `INSERT INTO connections (id, status, created_at, updated_at) VALUES ($1, $2, $3, $3)
		ON CONFLICT (id) DO NOTHING`
	if overwrite {
		q = `INSERT INTO connections (id, status, created_at, updated_at) VALUES ($1, $2, $3, $3)
			ON CONFLICT (id) DO UPDATE SET status = excluded.status, updated_at = excluded.updated_at`
	}
	if _, err := l.db.exec(ctx, q, connectionID, string(st), now); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to upsert connection %s: %w", connectionID, err)
	}

	conn, err := getConnection(ctx, l.db, connectionID)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	return conn, nil
}

func (l *sqlLedger) GetConnection(ctx context.Context, connectionID string) (*Connection, error) {
	return getConnection(ctx, l.db, connectionID)
}

func getConnection(ctx context.Context, q querier, connectionID string) (*Connection, error) {
	var (
		conn  Connection
		st    string
		state []byte
	)
	err := q.queryRow(ctx,
		`SELECT id, status, state, last_warning_at, created_at, updated_at FROM connections WHERE id = $1`,
		connectionID,
	).Scan(&conn.ID, &st, &state, &conn.LastWarningAt, &conn.CreatedAt, &conn.UpdatedAt)
	if errors.Is(err, errNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get connection %s: %w", connectionID, err)
	}
	conn.Status = status.ConnectionStatus(st)
	if len(state) > 0 {
		conn.State = json.RawMessage(state)
	}
	conn.LastWarningAt = utcPtr(conn.LastWarningAt)
	conn.CreatedAt = conn.CreatedAt.UTC()
	conn.UpdatedAt = conn.UpdatedAt.UTC()
	return &conn, nil
}

func (l *sqlLedger) SetConnectionStatus(ctx context.Context, connectionID string, st status.ConnectionStatus) error {
	ctx, span := l.startSpan(ctx, "ledger.SetConnectionStatus", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	n, err := l.db.exec(ctx, `UPDATE connections SET status = $2, updated_at = $3 WHERE id = $1`,
		connectionID, string(st), l.now())
	if err != nil {
		otel.RecordError(span, err)
		return fmt.Errorf("failed to set status of connection %s: %w", connectionID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	return nil
}

func (l *sqlLedger) RecordWarning(ctx context.Context, connectionID string, at time.Time) error {
	n, err := l.db.exec(ctx, `UPDATE connections SET last_warning_at = $2, updated_at = $3 WHERE id = $1`,
		connectionID, at.UTC(), l.now())
	if err != nil {
		return fmt.Errorf("failed to record warning for connection %s: %w", connectionID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
	}
	return nil
}

func (l *sqlLedger) CreateJob(ctx context.Context, connectionID string) (*Job, error) {
	ctx, span := l.startSpan(ctx, "ledger.CreateJob", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	var job *Job
	err := l.inTx(ctx, func(t tx) error {
		// Serializes job creation per connection
		var id string
		err := t.queryRow(ctx, `SELECT id FROM connections WHERE id = $1`+l.db.forUpdate(), connectionID).Scan(&id)
		if errors.Is(err, errNoRows) {
			return fmt.Errorf("%w: %s", ErrConnectionNotFound, connectionID)
		}
		if err != nil {
			return fmt.Errorf("failed to lock connection %s: %w", connectionID, err)
		}

		now := l.now()
		if err := l.failLiveJobs(ctx, t, connectionID, now); err != nil {
			return err
		}

		resets, err := pendingResets(ctx, t, connectionID)
		if err != nil {
			return err
		}

		job = &Job{
			ConnectionID: connectionID,
			ConfigType:   status.ConfigTypeSync,
			Status:       status.JobStatusPending,
			CreatedAt:    now,
			UpdatedAt:    now,
		}
		if len(resets) > 0 {
			job.ConfigType = status.ConfigTypeReset
			job.Config.ResetStreams = resets
		}

		config, err := json.Marshal(job.Config)
		if err != nil {
			return fmt.Errorf("failed to marshal job config: %w", err)
		}

		err = t.queryRow(ctx,
			`INSERT INTO jobs (connection_id, config_type, config, status, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5) RETURNING id`,
			connectionID, string(job.ConfigType), string(config), string(job.Status), now,
		).Scan(&job.ID)
		if err != nil {
			return fmt.Errorf("failed to insert job: %w", err)
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	span.SetAttributes(otel.AttrJobID.Int64(job.ID), otel.AttrConfigType.String(string(job.ConfigType)))
	return job, nil
}

// failLiveJobs fails every non-terminal job of a connection and its running attempts
func (*sqlLedger) failLiveJobs(ctx context.Context, t tx, connectionID string, now time.Time) error {
	rs, err := t.query(ctx,
		`SELECT id FROM jobs WHERE connection_id = $1 AND status IN ('pending', 'running', 'incomplete')`,
		connectionID)
	if err != nil {
		return fmt.Errorf("failed to list live jobs: %w", err)
	}
	ids, err := scanIDs(rs)
	if err != nil {
		return err
	}

	if len(ids) == 0 {
		return nil
	}

	summary, err := json.Marshal(restartFailureSummary(now))
	if err != nil {
		return fmt.Errorf("failed to marshal failure summary: %w", err)
	}
	for _, id := range ids {
		if _, err := t.exec(ctx,
			`UPDATE attempts SET status = 'failed', failure_summary = $2, updated_at = $3, ended_at = $3
			WHERE job_id = $1 AND status = 'running'`,
			id, string(summary), now); err != nil {
			return fmt.Errorf("failed to fail attempts of job %d: %w", id, err)
		}
		if _, err := t.exec(ctx,
			`UPDATE jobs SET status = 'failed', failure_reason = $2, updated_at = $3 WHERE id = $1`,
			id, ReasonOrchestratorRestart, now); err != nil {
			return fmt.Errorf("failed to fail job %d: %w", id, err)
		}
	}
	return nil
}

func (l *sqlLedger) CreateAttempt(ctx context.Context, jobID int64) (int, error) {
	ctx, span := l.startSpan(ctx, "ledger.CreateAttempt", otel.AttrJobID.Int64(jobID))
	defer span.End()

	var number int
	err := l.inTx(ctx, func(t tx) error {
		job, err := l.lockJob(ctx, t, jobID)
		if err != nil {
			return err
		}
		if job.Status.IsTerminal() {
			return fmt.Errorf("%w: job %d is %s", ErrJobTerminal, jobID, job.Status)
		}

		var running int
		if err := t.queryRow(ctx,
			`SELECT COUNT(*) FROM attempts WHERE job_id = $1 AND status = 'running'`, jobID,
		).Scan(&running); err != nil {
			return fmt.Errorf("failed to count running attempts: %w", err)
		}
		if running > 0 {
			return fmt.Errorf("%w: job %d", ErrAttemptRunning, jobID)
		}
		if _, err := checkTransition(jobID, job.Status, status.JobStatusRunning); err != nil {
			return err
		}

		var last int
		if err := t.queryRow(ctx,
			`SELECT COALESCE(MAX(attempt_number), 0) FROM attempts WHERE job_id = $1`, jobID,
		).Scan(&last); err != nil {
			return fmt.Errorf("failed to read last attempt number: %w", err)
		}
		number = last + 1

		now := l.now()
		if _, err := t.exec(ctx,
			`INSERT INTO attempts (job_id, attempt_number, status, created_at, updated_at)
			VALUES ($1, $2, 'running', $3, $3)`,
			jobID, number, now); err != nil {
			return fmt.Errorf("failed to insert attempt: %w", err)
		}
		if _, err := t.exec(ctx,
			`UPDATE jobs SET status = 'running', started_at = COALESCE(started_at, $2), updated_at = $2 WHERE id = $1`,
			jobID, now); err != nil {
			return fmt.Errorf("failed to start job %d: %w", jobID, err)
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
		return 0, err
	}

	span.SetAttributes(otel.AttrAttemptNumber.Int(number))
	return number, nil
}

func (l *sqlLedger) RecordSuccess(ctx context.Context, jobID int64, attempt int, output *status.JobOutput) error {
	ctx, span := l.startSpan(ctx, "ledger.RecordSuccess", otel.AttrJobID.Int64(jobID), otel.AttrAttemptNumber.Int(attempt))
	defer span.End()

	err := l.inTx(ctx, func(t tx) error {
		job, err := l.lockJob(ctx, t, jobID)
		if err != nil {
			return err
		}
		ok, err := checkTransition(jobID, job.Status, status.JobStatusSucceeded)
		if err != nil || !ok {
			return err
		}

		now := l.now()
		if err := endAttempt(ctx, t, jobID, attempt, status.AttemptStatusSucceeded, output, nil, now); err != nil {
			return err
		}
		if err := setJobStatus(ctx, t, jobID, status.JobStatusSucceeded, "", now); err != nil {
			return err
		}

		if job.ConfigType == status.ConfigTypeReset {
			return consumeResets(ctx, t, job, now)
		}
		if keepsState(true, output) {
			return saveState(ctx, t, job.ConnectionID, output.State, now)
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
	}
	return err
}

func (l *sqlLedger) RecordAttemptFailure(
	ctx context.Context, jobID int64, attempt int, summary *status.FailureSummary, output *status.JobOutput,
) error {
	ctx, span := l.startSpan(ctx, "ledger.RecordAttemptFailure",
		otel.AttrJobID.Int64(jobID), otel.AttrAttemptNumber.Int(attempt))
	defer span.End()

	err := l.inTx(ctx, func(t tx) error {
		job, err := l.lockJob(ctx, t, jobID)
		if err != nil {
			return err
		}
		ok, err := checkTransition(jobID, job.Status, status.JobStatusIncomplete)
		if err != nil || !ok {
			return err
		}

		now := l.now()
		if err := endAttempt(ctx, t, jobID, attempt, status.AttemptStatusFailed, output, summary, now); err != nil {
			return err
		}
		if err := setJobStatus(ctx, t, jobID, status.JobStatusIncomplete, "", now); err != nil {
			return err
		}
		if job.ConfigType == status.ConfigTypeSync && keepsState(false, output) {
			return saveState(ctx, t, job.ConnectionID, output.State, now)
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
	}
	return err
}

func (l *sqlLedger) RecordJobFailure(ctx context.Context, jobID int64, reason string) error {
	ctx, span := l.startSpan(ctx, "ledger.RecordJobFailure", otel.AttrJobID.Int64(jobID))
	defer span.End()

	err := l.inTx(ctx, func(t tx) error {
		job, err := l.lockJob(ctx, t, jobID)
		if err != nil {
			return err
		}
		ok, err := checkTransition(jobID, job.Status, status.JobStatusFailed)
		if err != nil || !ok {
			return err
		}

		now := l.now()
		if _, err := t.exec(ctx,
			`UPDATE attempts SET status = 'failed', updated_at = $2, ended_at = $2 WHERE job_id = $1 AND status = 'running'`,
			jobID, now); err != nil {
			return fmt.Errorf("failed to fail running attempts of job %d: %w", jobID, err)
		}
		return setJobStatus(ctx, t, jobID, status.JobStatusFailed, reason, now)
	})
	if err != nil {
		otel.RecordError(span, err)
	}
	return err
}

func (l *sqlLedger) RecordJobCancelled(
	ctx context.Context, jobID int64, attempt int, summary *status.FailureSummary,
) error {
	ctx, span := l.startSpan(ctx, "ledger.RecordJobCancelled", otel.AttrJobID.Int64(jobID))
	defer span.End()

	err := l.inTx(ctx, func(t tx) error {
		job, err := l.lockJob(ctx, t, jobID)
		if err != nil {
			return err
		}
		ok, err := checkTransition(jobID, job.Status, status.JobStatusCancelled)
		if err != nil || !ok {
			return err
		}

		now := l.now()
		encoded, err := marshalNullable(summary)
		if err != nil {
			return err
		}
		if _, err := t.exec(ctx,
			`UPDATE attempts SET status = 'failed', failure_summary = $3, updated_at = $4, ended_at = $4
			WHERE job_id = $1 AND attempt_number = $2 AND status = 'running'`,
			jobID, attempt, encoded, now); err != nil {
			return fmt.Errorf("failed to end attempt %d of job %d: %w", attempt, jobID, err)
		}
		return setJobStatus(ctx, t, jobID, status.JobStatusCancelled, "", now)
	})
	if err != nil {
		otel.RecordError(span, err)
	}
	return err
}

func (l *sqlLedger) GetJob(ctx context.Context, jobID int64) (*Job, error) {
	ctx, span := l.startSpan(ctx, "ledger.GetJob", otel.AttrJobID.Int64(jobID))
	defer span.End()

	job, err := getJob(ctx, l.db, jobID, "")
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}
	return job, nil
}

func (l *sqlLedger) LastJob(ctx context.Context, connectionID string) (*Job, error) {
	var id int64
	err := l.db.queryRow(ctx,
		`SELECT id FROM jobs WHERE connection_id = $1 AND status <> 'cancelled'
		ORDER BY created_at DESC, id DESC LIMIT 1`, connectionID,
	).Scan(&id)
	if errors.Is(err, errNoRows) {
		return nil, fmt.Errorf("%w: connection %s has no jobs", ErrJobNotFound, connectionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find last job of connection %s: %w", connectionID, err)
	}
	return getJob(ctx, l.db, id, "")
}

func (l *sqlLedger) ListJobs(ctx context.Context, connectionID string, limit int) ([]*Job, error) {
	ctx, span := l.startSpan(ctx, "ledger.ListJobs", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	if limit <= 0 {
		limit = 20
	}
	rs, err := l.db.query(ctx,
		`SELECT id FROM jobs WHERE connection_id = $1 ORDER BY created_at DESC, id DESC LIMIT $2`,
		connectionID, limit)
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list jobs of connection %s: %w", connectionID, err)
	}
	ids, err := scanIDs(rs)
	if err != nil {
		otel.RecordError(span, err)
		return nil, err
	}

	jobs := make([]*Job, 0, len(ids))
	for _, id := range ids {
		job, err := getJob(ctx, l.db, id, "")
		if err != nil {
			otel.RecordError(span, err)
			return nil, err
		}
		jobs = append(jobs, job)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(jobs)))
	return jobs, nil
}

func (l *sqlLedger) FirstJobCreatedAt(ctx context.Context, connectionID string) (*time.Time, error) {
	var createdAt time.Time
	err := l.db.queryRow(ctx,
		`SELECT created_at FROM jobs WHERE connection_id = $1 AND status <> 'cancelled'
		ORDER BY created_at ASC, id ASC LIMIT 1`, connectionID,
	).Scan(&createdAt)
	if errors.Is(err, errNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find first job of connection %s: %w", connectionID, err)
	}
	createdAt = createdAt.UTC()
	return &createdAt, nil
}

func (l *sqlLedger) ListRecentOutcomes(ctx context.Context, connectionID string, since time.Time) ([]status.Outcome, error) {
	ctx, span := l.startSpan(ctx, "ledger.ListRecentOutcomes", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	rs, err := l.db.query(ctx,
		`SELECT id, status, created_at, updated_at FROM jobs
		WHERE connection_id = $1 AND created_at >= $2
		ORDER BY created_at DESC, id DESC`,
		connectionID, since.UTC())
	if err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list outcomes of connection %s: %w", connectionID, err)
	}
	defer rs.Close()

	var outcomes []status.Outcome
	for rs.Next() {
		var (
			o  status.Outcome
			st string
		)
		if err := rs.Scan(&o.JobID, &st, &o.CreatedAt, &o.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outcome: %w", err)
		}
		o.Status = status.JobStatus(st)
		o.CreatedAt = o.CreatedAt.UTC()
		o.UpdatedAt = o.UpdatedAt.UTC()
		outcomes = append(outcomes, o)
	}
	if err := rs.Err(); err != nil {
		otel.RecordError(span, err)
		return nil, fmt.Errorf("failed to list outcomes of connection %s: %w", connectionID, err)
	}
	span.SetAttributes(otel.AttrResultCount.Int(len(outcomes)))
	return outcomes, nil
}

func (l *sqlLedger) RequestReset(ctx context.Context, connectionID string, streams []StreamDescriptor) error {
	ctx, span := l.startSpan(ctx, "ledger.RequestReset", otel.AttrConnectionID.String(connectionID))
	defer span.End()

	err := l.inTx(ctx, func(t tx) error {
		if _, err := getConnection(ctx, t, connectionID); err != nil {
			return err
		}
		now := l.now()
		for _, s := range streams {
			if _, err := t.exec(ctx,
				`INSERT INTO stream_resets (connection_id, stream_namespace, stream_name, created_at)
				VALUES ($1, $2, $3, $4) ON CONFLICT DO NOTHING`,
				connectionID, s.Namespace, s.Name, now); err != nil {
				return fmt.Errorf("failed to register reset of stream %s: %w", s, err)
			}
		}
		return nil
	})
	if err != nil {
		otel.RecordError(span, err)
	}
	return err
}

func (l *sqlLedger) PendingResets(ctx context.Context, connectionID string) ([]StreamDescriptor, error) {
	return pendingResets(ctx, l.db, connectionID)
}

func pendingResets(ctx context.Context, q querier, connectionID string) ([]StreamDescriptor, error) {
	rs, err := q.query(ctx,
		`SELECT stream_namespace, stream_name FROM stream_resets WHERE connection_id = $1
		ORDER BY stream_namespace, stream_name`, connectionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list stream resets: %w", err)
	}
	defer rs.Close()

	var streams []StreamDescriptor
	for rs.Next() {
		var s StreamDescriptor
		if err := rs.Scan(&s.Namespace, &s.Name); err != nil {
			return nil, fmt.Errorf("failed to scan stream reset: %w", err)
		}
		streams = append(streams, s)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to list stream resets: %w", err)
	}
	return streams, nil
}

// lockJob reads a job inside a transaction, locking its row where the dialect supports it
func (l *sqlLedger) lockJob(ctx context.Context, t tx, jobID int64) (*Job, error) {
	return getJob(ctx, t, jobID, l.db.forUpdate())
}

func getJob(ctx context.Context, q querier, jobID int64, suffix string) (*Job, error) {
	var (
		job        Job
		configType string
		st         string
		config     []byte
		reason     *string
	)
	err := q.queryRow(ctx,
		`SELECT id, connection_id, config_type, config, status, failure_reason, created_at, started_at, updated_at
		FROM jobs WHERE id = $1`+suffix, jobID,
	).Scan(&job.ID, &job.ConnectionID, &configType, &config, &st, &reason, &job.CreatedAt, &job.StartedAt, &job.UpdatedAt)
	if errors.Is(err, errNoRows) {
		return nil, fmt.Errorf("%w: %d", ErrJobNotFound, jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job %d: %w", jobID, err)
	}

	job.ConfigType = status.ConfigType(configType)
	job.Status = status.JobStatus(st)
	if reason != nil {
		job.FailureReason = *reason
	}
	if len(config) > 0 {
		if err := json.Unmarshal(config, &job.Config); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config of job %d: %w", jobID, err)
		}
	}
	job.CreatedAt = job.CreatedAt.UTC()
	job.UpdatedAt = job.UpdatedAt.UTC()
	job.StartedAt = utcPtr(job.StartedAt)

	attempts, err := listAttempts(ctx, q, jobID)
	if err != nil {
		return nil, err
	}
	job.Attempts = attempts
	return &job, nil
}

func listAttempts(ctx context.Context, q querier, jobID int64) ([]Attempt, error) {
	rs, err := q.query(ctx,
		`SELECT attempt_number, status, output, failure_summary, created_at, updated_at, ended_at
		FROM attempts WHERE job_id = $1 ORDER BY attempt_number`, jobID)
	if err != nil {
		return nil, fmt.Errorf("failed to list attempts of job %d: %w", jobID, err)
	}
	defer rs.Close()

	var attempts []Attempt
	for rs.Next() {
		var (
			a       = Attempt{JobID: jobID}
			st      string
			output  []byte
			summary []byte
		)
		if err := rs.Scan(&a.Number, &st, &output, &summary, &a.CreatedAt, &a.UpdatedAt, &a.EndedAt); err != nil {
			return nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		a.Status = status.AttemptStatus(st)
		if len(output) > 0 {
			a.Output = &status.JobOutput{}
			if err := json.Unmarshal(output, a.Output); err != nil {
				return nil, fmt.Errorf("failed to unmarshal output of attempt %d: %w", a.Number, err)
			}
		}
		if len(summary) > 0 {
			a.FailureSummary = &status.FailureSummary{}
			if err := json.Unmarshal(summary, a.FailureSummary); err != nil {
				return nil, fmt.Errorf("failed to unmarshal failure summary of attempt %d: %w", a.Number, err)
			}
		}
		a.CreatedAt = a.CreatedAt.UTC()
		a.UpdatedAt = a.UpdatedAt.UTC()
		a.EndedAt = utcPtr(a.EndedAt)
		attempts = append(attempts, a)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to list attempts of job %d: %w", jobID, err)
	}
	return attempts, nil
}

func endAttempt(
	ctx context.Context, q querier, jobID int64, attempt int, st status.AttemptStatus,
	output *status.JobOutput, summary *status.FailureSummary, now time.Time,
) error {
	encodedOutput, err := marshalNullable(output)
	if err != nil {
		return err
	}
	encodedSummary, err := marshalNullable(summary)
	if err != nil {
		return err
	}
	n, err := q.exec(ctx,
		`UPDATE attempts SET status = $3, output = $4, failure_summary = $5, updated_at = $6, ended_at = $6
		WHERE job_id = $1 AND attempt_number = $2`,
		jobID, attempt, string(st), encodedOutput, encodedSummary, now)
	if err != nil {
		return fmt.Errorf("failed to end attempt %d of job %d: %w", attempt, jobID, err)
	}
	if n == 0 {
		return fmt.Errorf("%w: job %d attempt %d", ErrAttemptNotFound, jobID, attempt)
	}
	return nil
}

func setJobStatus(ctx context.Context, q querier, jobID int64, st status.JobStatus, reason string, now time.Time) error {
	var failureReason any
	if reason != "" {
		failureReason = reason
	}
	if _, err := q.exec(ctx,
		`UPDATE jobs SET status = $2, failure_reason = COALESCE($3, failure_reason), updated_at = $4 WHERE id = $1`,
		jobID, string(st), failureReason, now); err != nil {
		return fmt.Errorf("failed to set status of job %d: %w", jobID, err)
	}
	return nil
}

func saveState(ctx context.Context, q querier, connectionID string, state json.RawMessage, now time.Time) error {
	if _, err := q.exec(ctx, `UPDATE connections SET state = $2, updated_at = $3 WHERE id = $1`,
		connectionID, string(state), now); err != nil {
		return fmt.Errorf("failed to save state of connection %s: %w", connectionID, err)
	}
	return nil
}

// consumeResets removes the reset requests a successful reset job served and drops the
// connection checkpoint so the next sync starts from scratch.
func consumeResets(ctx context.Context, q querier, job *Job, now time.Time) error {
	for _, s := range job.Config.ResetStreams {
		if _, err := q.exec(ctx,
			`DELETE FROM stream_resets WHERE connection_id = $1 AND stream_namespace = $2 AND stream_name = $3`,
			job.ConnectionID, s.Namespace, s.Name); err != nil {
			return fmt.Errorf("failed to clear reset of stream %s: %w", s, err)
		}
	}
	if _, err := q.exec(ctx, `UPDATE connections SET state = NULL, updated_at = $2 WHERE id = $1`,
		job.ConnectionID, now); err != nil {
		return fmt.Errorf("failed to clear state of connection %s: %w", job.ConnectionID, err)
	}
	return nil
}

func scanIDs(rs rows) ([]int64, error) {
	defer rs.Close()
	var ids []int64
	for rs.Next() {
		var id int64
		if err := rs.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rs.Err(); err != nil {
		return nil, fmt.Errorf("failed to read ids: %w", err)
	}
	return ids, nil
}

// marshalNullable encodes v as JSON text, or returns nil so the column is stored as NULL
func marshalNullable[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}
	return string(data), nil
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}

// db.system attributes per OpenTelemetry semantic conventions
var (
	dbSystemPostgres = semconv.DBSystemPostgreSQL
	dbSystemSQLite   = semconv.DBSystemKey.String("sqlite")
)
