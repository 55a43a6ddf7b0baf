package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/logging"
)

type result struct {
	attempt int
	input   string
	failed  bool
}

func TestOrchestrator_RetriesWithNextInput(t *testing.T) {
	t.Parallel()

	var seen []string
	run := func(ctx context.Context, number int, in string) (result, error) {
		seen = append(seen, in)
		// Every attempt logs with the job and attempt attached
		attrs := logging.FromContext(ctx)
		require.Len(t, attrs, 2)
		assert.Equal(t, int64(9), attrs[0].Value.Int64())
		assert.Equal(t, int64(number), attrs[1].Value.Int64())
		return result{attempt: number, input: in, failed: true}, nil
	}

	o := New(run, Config[string, result]{
		MaxAttempts: 3,
		ShouldRetry: func(out result) bool { return out.failed },
		NextInput: func(prev string, out result) string {
			return prev + "+"
		},
	})

	outputs, err := o.Run(context.Background(), 9, 1, "in")
	require.NoError(t, err)

	assert.Equal(t, []string{"in", "in+", "in++"}, seen)
	require.Len(t, outputs, 3)
	for i, out := range outputs {
		assert.Equal(t, i+1, out.attempt)
	}
}

func TestOrchestrator_StopsWhenNoRetryNeeded(t *testing.T) {
	t.Parallel()

	calls := 0
	run := func(_ context.Context, number int, _ string) (result, error) {
		calls++
		return result{attempt: number, failed: number < 2}, nil
	}

	o := New(run, Config[string, result]{
		MaxAttempts: 5,
		ShouldRetry: func(out result) bool { return out.failed },
	})

	outputs, err := o.Run(context.Background(), 1, 1, "in")
	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.Len(t, outputs, 2)
	assert.False(t, outputs[1].failed)
}

func TestOrchestrator_ErrorAbortsWithoutShouldRetry(t *testing.T) {
	t.Parallel()

	boom := errors.New("ledger unavailable")
	shouldRetryCalls := 0
	run := func(_ context.Context, number int, _ string) (result, error) {
		if number == 2 {
			return result{}, boom
		}
		return result{attempt: number, failed: true}, nil
	}

	o := New(run, Config[string, result]{
		MaxAttempts: 5,
		ShouldRetry: func(out result) bool {
			shouldRetryCalls++
			return out.failed
		},
	})

	outputs, err := o.Run(context.Background(), 1, 1, "in")
	require.ErrorIs(t, err, boom)
	assert.Len(t, outputs, 1)
	assert.Equal(t, 1, shouldRetryCalls)
}

func TestOrchestrator_ResumedJobKeepsAttemptBudget(t *testing.T) {
	t.Parallel()

	var numbers []int
	run := func(_ context.Context, number int, _ string) (result, error) {
		numbers = append(numbers, number)
		return result{attempt: number, failed: true}, nil
	}

	o := New(run, Config[string, result]{
		MaxAttempts: 3,
		ShouldRetry: func(out result) bool { return out.failed },
	})

	outputs, err := o.Run(context.Background(), 1, 2, "in")
	require.NoError(t, err)
	assert.Equal(t, []int{2, 3}, numbers)
	assert.Len(t, outputs, 2)
}

func TestOrchestrator_AttemptTimeout(t *testing.T) {
	t.Parallel()

	run := func(ctx context.Context, number int, _ string) (result, error) {
		deadline, ok := ctx.Deadline()
		require.True(t, ok)
		assert.WithinDuration(t, time.Now().Add(time.Hour), deadline, time.Minute)
		return result{attempt: number}, nil
	}

	o := New(run, Config[string, result]{MaxAttempts: 1, AttemptTimeout: time.Hour})
	outputs, err := o.Run(context.Background(), 1, 0, "in")
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, 1, outputs[0].attempt)
}

func TestOrchestrator_StopsWhenContextDone(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	run := func(_ context.Context, number int, _ string) (result, error) {
		calls++
		cancel()
		return result{attempt: number, failed: true}, nil
	}

	o := New(run, Config[string, result]{
		MaxAttempts: 3,
		ShouldRetry: func(out result) bool { return out.failed },
	})

	outputs, err := o.Run(ctx, 1, 1, "in")
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Len(t, outputs, 1)
}
