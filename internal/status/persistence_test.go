package status

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testConnectionID = "3c0b1a51-6f0e-4d5c-9a7e-0d8f3a0b2c11"

func TestFileStatePersistence_SaveAndLoad(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatePersistence(tmpDir)

	jobID := int64(42)
	now := time.Now().UTC().Truncate(time.Second)
	state := &ControlState{
		Phase:                PhaseRunning,
		JobID:                &jobID,
		AttemptNumber:        2,
		FromFailure:          true,
		FailuresSinceSuccess: 3,
		LastTransition:       &now,
	}

	ctx := context.Background()
	require.NoError(t, persistence.SaveState(ctx, testConnectionID, state))

	_, err := os.Stat(filepath.Join(tmpDir, testConnectionID, StateFileName))
	require.NoError(t, err)

	loaded, err := persistence.LoadState(ctx, testConnectionID)
	require.NoError(t, err)
	require.NotNil(t, loaded.JobID)
	assert.Equal(t, PhaseRunning, loaded.Phase)
	assert.Equal(t, int64(42), *loaded.JobID)
	assert.Equal(t, 2, loaded.AttemptNumber)
	assert.True(t, loaded.FromFailure)
	assert.Equal(t, 3, loaded.FailuresSinceSuccess)
	assert.True(t, now.Equal(*loaded.LastTransition))
}

func TestFileStatePersistence_LoadNonExistent(t *testing.T) {
	t.Parallel()

	persistence := NewFileStatePersistence(t.TempDir())

	loaded, err := persistence.LoadState(context.Background(), testConnectionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, loaded.Phase)
	assert.Nil(t, loaded.JobID)
}

func TestFileStatePersistence_Delete(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	persistence := NewFileStatePersistence(tmpDir)
	ctx := context.Background()

	require.NoError(t, persistence.SaveState(ctx, testConnectionID, &ControlState{Phase: PhaseDeleted, Deleted: true}))
	require.NoError(t, persistence.DeleteState(ctx, testConnectionID))

	_, err := os.Stat(filepath.Join(tmpDir, testConnectionID))
	assert.True(t, os.IsNotExist(err))
}

func TestFileStatePersistence_CorruptFile(t *testing.T) {
	t.Parallel()

	tmpDir := t.TempDir()
	dir := filepath.Join(tmpDir, testConnectionID)
	require.NoError(t, os.MkdirAll(dir, 0750))
	require.NoError(t, os.WriteFile(filepath.Join(dir, StateFileName), []byte("phase: [unterminated"), 0600))

	_, err := NewFileStatePersistence(tmpDir).LoadState(context.Background(), testConnectionID)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to unmarshal state")
}

func TestMemoryStatePersistence_ReturnsCopies(t *testing.T) {
	t.Parallel()

	persistence := NewMemoryStatePersistence()
	ctx := context.Background()

	jobID := int64(7)
	state := &ControlState{Phase: PhaseRunning, JobID: &jobID}
	require.NoError(t, persistence.SaveState(ctx, testConnectionID, state))

	// Mutating the saved value must not leak into the store
	*state.JobID = 99
	state.Phase = PhaseFailed

	loaded, err := persistence.LoadState(ctx, testConnectionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseRunning, loaded.Phase)
	assert.Equal(t, int64(7), *loaded.JobID)

	require.NoError(t, persistence.DeleteState(ctx, testConnectionID))
	loaded, err = persistence.LoadState(ctx, testConnectionID)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, loaded.Phase)
}

func TestJobStatus_IsTerminal(t *testing.T) {
	t.Parallel()

	tests := []struct {
		status JobStatus
		want   bool
	}{
		{JobStatusPending, false},
		{JobStatusRunning, false},
		{JobStatusIncomplete, false},
		{JobStatusSucceeded, true},
		{JobStatusFailed, true},
		{JobStatusCancelled, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.status), func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, tt.status.IsTerminal())
		})
	}
}

func TestFailureSummary_Retryable(t *testing.T) {
	t.Parallel()

	var nilSummary *FailureSummary
	assert.True(t, nilSummary.Retryable())

	summary := &FailureSummary{Failures: []FailureReason{
		{Origin: FailureOriginSource, Retryable: true},
	}}
	assert.True(t, summary.Retryable())

	summary.Failures = append(summary.Failures, FailureReason{Origin: FailureOriginDestination, Type: FailureTypeConfigError})
	assert.False(t, summary.Retryable())
}
