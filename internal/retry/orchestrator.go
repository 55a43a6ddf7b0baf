// Package retry runs the attempts of a job: it runs an attempt, asks whether its output
// warrants another one and derives the next input from the previous output, up to a maximum
// number of attempts.
package retry

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/stacklok/connsync/internal/logging"
)

// AttemptFunc runs one attempt. number is the 1-based attempt number within the job. An error
// is reserved for failures outside the attempt itself; failures of the work belong in the output.
type AttemptFunc[I, O any] func(ctx context.Context, number int, in I) (O, error)

// Config controls when and how an attempt is retried
type Config[I, O any] struct {
	// MaxAttempts bounds the attempt numbers of a job
	MaxAttempts int

	// AttemptTimeout bounds each attempt; zero means no bound. The attempt observes the
	// deadline through its context.
	AttemptTimeout time.Duration

	// ShouldRetry reports whether an output calls for another attempt
	ShouldRetry func(out O) bool

	// NextInput derives the input of the next attempt from the previous input and output
	NextInput func(prev I, out O) I
}

// Orchestrator runs the attempts of jobs
type Orchestrator[I, O any] struct {
	run AttemptFunc[I, O]
	cfg Config[I, O]
}

// New creates an orchestrator. A nil NextInput reuses the previous input.
func New[I, O any](run AttemptFunc[I, O], cfg Config[I, O]) *Orchestrator[I, O] {
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = 1
	}
	if cfg.NextInput == nil {
		cfg.NextInput = func(prev I, _ O) I { return prev }
	}
	if cfg.ShouldRetry == nil {
		cfg.ShouldRetry = func(O) bool { return false }
	}
	return &Orchestrator[I, O]{run: run, cfg: cfg}
}

// Run executes attempts of a job starting at attempt number first, which is greater than one
// when a job is resumed. It returns the outputs of every attempt in order. An error from an
// attempt stops the loop immediately without consulting ShouldRetry; the outputs gathered so
// far are returned with it.
func (o *Orchestrator[I, O]) Run(ctx context.Context, jobID int64, first int, in I) ([]O, error) {
	if first <= 0 {
		first = 1
	}

	var outputs []O
	for number := first; number <= o.cfg.MaxAttempts; number++ {
		out, err := o.attempt(ctx, jobID, number, in)
		if err != nil {
			return outputs, fmt.Errorf("attempt %d of job %d: %w", number, jobID, err)
		}
		outputs = append(outputs, out)

		if !o.cfg.ShouldRetry(out) {
			break
		}
		if ctx.Err() != nil {
			slog.InfoContext(ctx, "Not retrying, job context is done", "job_id", jobID, "attempt", number)
			break
		}
		if number == o.cfg.MaxAttempts {
			slog.InfoContext(ctx, "Attempt limit reached", "job_id", jobID, "max_attempts", o.cfg.MaxAttempts)
			break
		}
		in = o.cfg.NextInput(in, out)
	}
	return outputs, nil
}

func (o *Orchestrator[I, O]) attempt(ctx context.Context, jobID int64, number int, in I) (O, error) {
	ctx = logging.WithAttempt(ctx, jobID, number)
	if o.cfg.AttemptTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.cfg.AttemptTimeout)
		defer cancel()
	}

	start := time.Now()
	slog.InfoContext(ctx, "Starting attempt")
	out, err := o.run(ctx, number, in)
	if err != nil {
		slog.ErrorContext(ctx, "Attempt aborted", "error", err, "duration", time.Since(start))
		return out, err
	}
	slog.InfoContext(ctx, "Attempt finished", "duration", time.Since(start))
	return out, nil
}
