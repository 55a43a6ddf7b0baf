package connection

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/autodisable"
	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/connectors"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/notify"
	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/status"
)

var testStart = time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)

const (
	waitFor = 5 * time.Second
	tick    = 5 * time.Millisecond
)

var errLedgerDown = errors.New("ledger unavailable")

type testEnv struct {
	clock  *clock.Fake
	ledger ledger.Ledger
	states status.StatePersistence
	deps   Dependencies
}

func testSettings() Settings {
	return Settings{
		MaxAttempts:          3,
		AttemptTimeout:       time.Minute,
		ActivityMaxAttempts:  2,
		ActivityInitialDelay: time.Millisecond,
		MaxValidationErrors:  5,
		SupervisorInterval:   time.Minute,
	}
}

func newTestEnv(t *testing.T, notifier notify.Notifier, thresholds autodisable.Thresholds) *testEnv {
	t.Helper()

	clk := clock.NewFake(testStart)
	l := ledger.NewMemoryLedger(clk)
	if thresholds.MaxConsecutiveFailures == 0 {
		thresholds = autodisable.Thresholds{MaxConsecutiveFailures: 100, MaxDaysOnlyFailures: 14}
	}
	env := &testEnv{
		clock:  clk,
		ledger: l,
		states: status.NewMemoryStatePersistence(),
	}
	env.deps = Dependencies{
		Ledger:     l,
		States:     env.states,
		Calculator: schedule.NewCalculator(clk),
		Policy:     autodisable.New(l, notifier, thresholds, autodisable.WithClock(clk)),
		Connectors: connectors.NewRegistry(1024, connectors.WithClock(clk)),
		Clock:      clk,
	}
	return env
}

func testDefinition(id string, sched schedule.Descriptor, source map[string]any) Definition {
	return Definition{
		ID:          id,
		Name:        id,
		Active:      true,
		Schedule:    sched,
		Source:      Endpoint{Type: connectors.TypeFaker, Config: source},
		Destination: Endpoint{Type: connectors.TypeDevNull},
	}
}

func manualSchedule() schedule.Descriptor {
	return schedule.Descriptor{Type: schedule.TypeManual}
}

// runInstance runs an instance until the test ends and returns a channel closed when Run returns
func runInstance(t *testing.T, in *Instance) <-chan struct{} {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = in.Run(ctx)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
	return done
}

// latestJob returns the newest job of a connection, cancelled ones included
func latestJob(t *testing.T, l ledger.Ledger, connectionID string) *ledger.Job {
	t.Helper()

	jobs, err := l.ListJobs(context.Background(), connectionID, 1)
	require.NoError(t, err)
	if len(jobs) == 0 {
		return nil
	}
	return jobs[0]
}

func waitForJobStatus(t *testing.T, l ledger.Ledger, connectionID string, want status.JobStatus) *ledger.Job {
	t.Helper()

	var job *ledger.Job
	require.Eventually(t, func() bool {
		job = latestJob(t, l, connectionID)
		return job != nil && job.Status == want
	}, waitFor, tick)
	return job
}

func waitForIdle(t *testing.T, in *Instance) {
	t.Helper()

	require.Eventually(t, func() bool {
		info := in.Info()
		return !info.Running() && info.Phase == status.PhaseWaiting
	}, waitFor, tick)
}

// flakyLedger fails CreateJob while broken is set
type flakyLedger struct {
	ledger.Ledger
	broken atomic.Bool
}

func (f *flakyLedger) CreateJob(ctx context.Context, connectionID string) (*ledger.Job, error) {
	if f.broken.Load() {
		return nil, errLedgerDown
	}
	return f.Ledger.CreateJob(ctx, connectionID)
}
