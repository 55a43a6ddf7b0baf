package connection

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connsync/internal/autodisable"
	"github.com/stacklok/connsync/internal/ledger"
	ledgermocks "github.com/stacklok/connsync/internal/ledger/mocks"
	"github.com/stacklok/connsync/internal/notify/mocks"
	"github.com/stacklok/connsync/internal/status"
)

func startSupervisor(t *testing.T, s *Supervisor) {
	t.Helper()

	done := make(chan struct{})
	go func() {
		defer close(done)
		assert.NoError(t, s.Start(context.Background()))
	}()
	t.Cleanup(func() {
		require.NoError(t, s.Stop())
		<-done
	})
}

func TestSupervisor_ManualSyncEndToEnd(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	env := newTestEnv(t, nil, autodisable.Thresholds{})
	def := testDefinition("manual-100", manualSchedule(), map[string]any{"records": 100})
	s := NewSupervisor([]Definition{def}, env.deps, testSettings())
	startSupervisor(t, s)

	require.NoError(t, s.TriggerManualSync(def.ID))

	job := waitForJobStatus(t, env.ledger, def.ID, status.JobStatusSucceeded)
	assert.Equal(t, status.ConfigTypeSync, job.ConfigType)
	require.Len(t, job.Attempts, 1)
	out := job.Attempts[0].Output
	require.NotNil(t, out)
	assert.Equal(t, int64(100), out.Summary.RecordsSynced)
	assert.Equal(t, int64(100), out.Summary.RecordsCommitted)
	assert.Equal(t, status.ReplicationStatusCompleted, out.Summary.Status)
	require.Len(t, out.Summary.StreamStats, 1)
	assert.Equal(t, "users", out.Summary.StreamStats[0].Stream)
	assert.Zero(t, out.Summary.StreamStats[0].InvalidRecords)

	conn, err := env.ledger.GetConnection(ctx, def.ID)
	require.NoError(t, err)
	assert.JSONEq(t, `{"cursor":100}`, string(conn.State))

	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && info.JobID == -1 && info.AttemptNumber == -1 && info.Phase == status.PhaseWaiting
	}, waitFor, tick)
}

func TestSupervisor_SignalErrors(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, autodisable.Thresholds{})
	def := testDefinition("signals", manualSchedule(), map[string]any{
		"records":   1_000_000_000,
		"readDelay": "1ms",
	})
	s := NewSupervisor([]Definition{def}, env.deps, testSettings())
	startSupervisor(t, s)

	require.ErrorIs(t, s.TriggerManualSync("missing"), ErrNotFound)
	_, err := s.GetJobInformation("missing")
	require.ErrorIs(t, err, ErrNotFound)
	require.ErrorIs(t, s.Cancel(def.ID), ErrNoJobRunning)
	require.ErrorIs(t, s.RetryFailedActivity(def.ID), ErrNotQuarantined)
	require.ErrorIs(t, s.ResetConnection(def.ID, nil, false), ErrNoStreams)

	require.NoError(t, s.TriggerManualSync(def.ID))
	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && info.Running() && info.AttemptNumber == 1
	}, waitFor, tick)
	require.ErrorIs(t, s.TriggerManualSync(def.ID), ErrJobRunning)

	require.NoError(t, s.Cancel(def.ID))
	waitForJobStatus(t, env.ledger, def.ID, status.JobStatusCancelled)
}

func TestSupervisor_UpdateAddsConnection(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, autodisable.Thresholds{})
	s := NewSupervisor(nil, env.deps, testSettings())
	startSupervisor(t, s)

	def := testDefinition("added-later", manualSchedule(), map[string]any{"records": 3})
	require.NoError(t, s.Update(def))
	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && info.Phase == status.PhaseWaiting
	}, waitFor, tick)

	require.NoError(t, s.TriggerManualSync(def.ID))
	waitForJobStatus(t, env.ledger, def.ID, status.JobStatusSucceeded)

	infos := s.List()
	require.Len(t, infos, 1)
	assert.Equal(t, def.ID, infos[0].ConnectionID)
}

func TestSupervisor_Delete(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, autodisable.Thresholds{})
	def := testDefinition("to-delete", manualSchedule(), nil)
	s := NewSupervisor([]Definition{def}, env.deps, testSettings())
	startSupervisor(t, s)

	require.NoError(t, s.Delete(def.ID))
	require.Eventually(t, func() bool {
		return errors.Is(s.Cancel(def.ID), ErrDeleted)
	}, waitFor, tick)
	require.ErrorIs(t, s.TriggerManualSync(def.ID), ErrDeleted)
	require.ErrorIs(t, s.Update(def), ErrDeleted)

	info, err := s.GetJobInformation(def.ID)
	require.NoError(t, err)
	assert.Equal(t, status.PhaseDeleted, info.Phase)
}

func TestSupervisor_AutoDisable(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	notifier := mocks.NewMockNotifier(ctrl)
	notifier.EXPECT().NotifyWarning(gomock.Any(), "failing", gomock.Any()).Return(nil)
	notifier.EXPECT().NotifyDisabled(gomock.Any(), "failing", gomock.Any()).Return(nil)

	env := newTestEnv(t, notifier, autodisable.Thresholds{MaxConsecutiveFailures: 2, MaxDaysOnlyFailures: 14})
	def := testDefinition("failing", manualSchedule(), map[string]any{
		"failAfter":           1,
		"failWithConfigError": true,
	})
	s := NewSupervisor([]Definition{def}, env.deps, testSettings())
	startSupervisor(t, s)

	// One failure warns, the second disables
	for i := 0; i < 2; i++ {
		require.Eventually(t, func() bool {
			info, err := s.GetJobInformation(def.ID)
			return err == nil && info.Phase == status.PhaseWaiting && info.Active
		}, waitFor, tick)
		require.NoError(t, s.TriggerManualSync(def.ID))
		require.Eventually(t, func() bool {
			jobs, err := env.ledger.ListJobs(context.Background(), def.ID, 10)
			return err == nil && len(jobs) == i+1 && jobs[0].Status == status.JobStatusFailed
		}, waitFor, tick)
	}

	require.Eventually(t, func() bool {
		conn, err := env.ledger.GetConnection(context.Background(), def.ID)
		return err == nil && conn.Status == status.ConnectionStatusInactive
	}, waitFor, tick)
	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && !info.Active && info.Phase == status.PhaseWaiting
	}, waitFor, tick)
	require.ErrorIs(t, s.TriggerManualSync(def.ID), ErrInactive)
}

func TestSupervisor_ReleasesQuarantinedInstances(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t, nil, autodisable.Thresholds{})
	flaky := &flakyLedger{Ledger: env.ledger}
	flaky.broken.Store(true)
	env.deps.Ledger = flaky

	def := testDefinition("self-healing", manualSchedule(), map[string]any{"records": 5})
	s := NewSupervisor([]Definition{def}, env.deps, testSettings())
	startSupervisor(t, s)
	require.NoError(t, s.TriggerManualSync(def.ID))

	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && info.Quarantined
	}, waitFor, tick)

	flaky.broken.Store(false)
	// The supervisor check releases the instance; the next manual sync then succeeds
	<-env.clock.BlockUntil(1)
	env.clock.Advance(2 * time.Minute)
	require.Eventually(t, func() bool {
		info, err := s.GetJobInformation(def.ID)
		return err == nil && !info.Quarantined && info.Phase == status.PhaseWaiting
	}, waitFor, tick)
	require.NoError(t, s.TriggerManualSync(def.ID))
	waitForJobStatus(t, env.ledger, def.ID, status.JobStatusSucceeded)
}

func TestInstance_ResumeClearsFinishedJob(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	ctrl := gomock.NewController(t)
	l := ledgermocks.NewMockLedger(ctrl)

	env := newTestEnv(t, nil, autodisable.Thresholds{})
	env.deps.Ledger = l
	def := testDefinition("finished-elsewhere", manualSchedule(), nil)

	jobID := int64(7)
	require.NoError(t, env.states.SaveState(ctx, def.ID, &status.ControlState{
		Phase: status.PhaseRunning,
		JobID: &jobID,
	}))

	active := &ledger.Connection{ID: def.ID, Status: status.ConnectionStatusActive}
	finished := &ledger.Job{ID: jobID, ConnectionID: def.ID, Status: status.JobStatusSucceeded, CreatedAt: testStart}
	gomock.InOrder(
		l.EXPECT().UpsertConnection(gomock.Any(), def.ID, status.ConnectionStatusActive, false).Return(active, nil),
		l.EXPECT().GetJob(gomock.Any(), jobID).Return(finished, nil),
	)
	l.EXPECT().GetConnection(gomock.Any(), def.ID).Return(active, nil).AnyTimes()
	l.EXPECT().LastJob(gomock.Any(), def.ID).Return(finished, nil).AnyTimes()
	l.EXPECT().PendingResets(gomock.Any(), def.ID).Return(nil, nil).AnyTimes()

	in := NewInstance(def, env.deps, testSettings())
	runInstance(t, in)
	waitForIdle(t, in)

	state, err := env.states.LoadState(ctx, def.ID)
	require.NoError(t, err)
	assert.Nil(t, state.JobID)
	assert.Equal(t, int64(-1), in.Info().JobID)
}
