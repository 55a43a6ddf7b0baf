package replication

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stacklok/connsync/internal/clock"
	"github.com/stacklok/connsync/internal/status"
)

var testStart = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func newTestWorker(src Source, dst Destination, mapper Mapper) *Worker {
	return NewWorker(src, dst, mapper, NewMessageTracker(3, nil), WithClock(clock.NewFake(testStart)))
}

func TestWorker_Completed(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{messages: []*Message{
		recordMsg("users", `{"id":1}`),
		recordMsg("users", `{"id":2}`),
		stateMsg(`{"cursor":2}`),
	}}
	writer := newMemoryWriter()
	dst := NewBufferedDestination(writer, 1024)

	out, err := newTestWorker(src, dst, NewNamespaceMapper("raw_", "")).Run(context.Background(), &Input{
		ConnectionID: "conn-1",
		JobID:        1,
		Attempt:      1,
		ConfigType:   status.ConfigTypeSync,
		Catalog:      testCatalog("users"),
	})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Nil(t, out.FailureSummary())
	assert.Equal(t, 2, writer.records(StreamDescriptor{Name: "raw_users"}))
	assert.True(t, writer.closed)
	assert.True(t, src.closed.Load())
	assert.False(t, src.cancelled.Load())

	data, err := json.MarshalIndent(out.JobOutput(), "", "  ")
	require.NoError(t, err)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, "completed_output", append(data, '\n'))
}

func TestWorker_StateFallsBackToInput(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{messages: []*Message{recordMsg("users", `{"id":1}`)}}
	dst := NewBufferedDestination(newMemoryWriter(), 1024)

	out, err := newTestWorker(src, dst, NewNamespaceMapper("", "")).Run(context.Background(), &Input{
		Catalog: testCatalog("users"),
		State:   json.RawMessage(`{"cursor":0}`),
	})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.JSONEq(t, `{"cursor":0}`, string(out.State))
	assert.JSONEq(t, `{"cursor":0}`, string(src.state))
}

func TestWorker_SourceFailureKeepsCommittedState(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{
		messages: []*Message{
			recordMsg("users", `{"id":1}`),
			stateMsg(`{"cursor":1}`),
			recordMsg("users", `{"id":2}`),
			recordMsg("users", `{"id":3}`),
		},
		failAt:  4,
		failErr: errBoom,
	}
	writer := newMemoryWriter()
	dst := NewBufferedDestination(writer, 1024)

	out, err := newTestWorker(src, dst, NewNamespaceMapper("", "")).Run(context.Background(), &Input{
		Catalog: testCatalog("users"),
	})
	require.NoError(t, err)

	assert.False(t, out.Succeeded())
	assert.Equal(t, status.ReplicationStatusFailed, out.Summary.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, status.FailureOriginSource, out.Failures[0].Origin)
	assert.Equal(t, status.FailureTypeSystemError, out.Failures[0].Type)
	assert.True(t, out.Failures[0].Retryable)

	// Only the record before the state reached the writer
	assert.Equal(t, int64(2), out.Summary.RecordsSynced)
	assert.Equal(t, int64(1), out.Summary.RecordsCommitted)
	assert.JSONEq(t, `{"cursor":1}`, string(out.State))
	assert.Equal(t, 1, writer.records(StreamDescriptor{Name: "users"}))

	summary := out.FailureSummary()
	require.NotNil(t, summary)
	assert.True(t, summary.PartialSuccess)
}

func TestWorker_AdapterErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		src        *scriptedSource
		writer     *memoryWriter
		wantOrigin status.FailureOrigin
		wantType   status.FailureType
		retryable  bool
	}{
		{
			name:       "destination config error",
			src:        &scriptedSource{},
			writer:     &memoryWriter{startErr: ConfigError(status.FailureOriginDestination, "bad path", errBoom)},
			wantOrigin: status.FailureOriginDestination,
			wantType:   status.FailureTypeConfigError,
			retryable:  false,
		},
		{
			name:       "source start transient error",
			src:        &scriptedSource{startErr: TransientError(status.FailureOriginSource, "unavailable", errBoom)},
			writer:     newMemoryWriter(),
			wantOrigin: status.FailureOriginSource,
			wantType:   status.FailureTypeTransient,
			retryable:  true,
		},
		{
			name: "destination write error",
			src: &scriptedSource{messages: []*Message{
				recordMsg("users", `{"id":1}`),
				recordMsg("users", `{"id":2}`),
			}},
			writer:     &memoryWriter{batches: map[StreamDescriptor][][]json.RawMessage{}, writeErr: errBoom},
			wantOrigin: status.FailureOriginDestination,
			wantType:   status.FailureTypeTransient,
			retryable:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			// A one byte threshold flushes every record immediately
			dst := NewBufferedDestination(tt.writer, 1)
			out, err := newTestWorker(tt.src, dst, NewNamespaceMapper("", "")).Run(context.Background(), &Input{
				Catalog: testCatalog("users"),
			})
			require.NoError(t, err)

			assert.Equal(t, status.ReplicationStatusFailed, out.Summary.Status)
			require.NotEmpty(t, out.Failures)
			assert.Equal(t, tt.wantOrigin, out.Failures[0].Origin)
			assert.Equal(t, tt.wantType, out.Failures[0].Type)
			assert.Equal(t, tt.retryable, out.FailureSummary().Retryable())
		})
	}
}

func TestWorker_CancelTerminatesLoop(t *testing.T) {
	t.Parallel()

	readSignal := make(chan struct{})
	src := &scriptedSource{endless: true, readSignal: readSignal, cancelErr: errBoom}
	dst := NewBufferedDestination(newMemoryWriter(), 64)
	w := newTestWorker(src, dst, NewNamespaceMapper("", ""))

	done := make(chan *Output, 1)
	go func() {
		out, err := w.Run(context.Background(), &Input{Catalog: testCatalog("users")})
		assert.NoError(t, err)
		done <- out
	}()

	<-readSignal
	w.Cancel()

	select {
	case out := <-done:
		assert.Equal(t, status.ReplicationStatusCancelled, out.Summary.Status)
		// A failing source cancel does not turn the cancellation into a failure
		assert.Empty(t, out.Failures)
		assert.True(t, src.cancelled.Load())
		assert.True(t, src.closed.Load())
		assert.GreaterOrEqual(t, out.Summary.RecordsSynced, int64(9))
	case <-time.After(5 * time.Second):
		t.Fatal("replication loop did not stop after cancel")
	}
}

func TestWorker_CancelBeforeRun(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{endless: true}
	w := newTestWorker(src, NewBufferedDestination(newMemoryWriter(), 64), NewNamespaceMapper("", ""))
	w.Cancel()

	out, err := w.Run(context.Background(), &Input{Catalog: testCatalog("users")})
	require.NoError(t, err)
	assert.Equal(t, status.ReplicationStatusCancelled, out.Summary.Status)

	_, err = w.Run(context.Background(), &Input{})
	require.ErrorIs(t, err, ErrAlreadyRun)
}

func TestWorker_TimeoutIsCancellation(t *testing.T) {
	t.Parallel()

	src := &scriptedSource{endless: true}
	w := newTestWorker(src, NewBufferedDestination(newMemoryWriter(), 64), NewNamespaceMapper("", ""))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	out, err := w.Run(ctx, &Input{Catalog: testCatalog("users")})
	require.NoError(t, err)

	assert.Equal(t, status.ReplicationStatusCancelled, out.Summary.Status)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, status.FailureOriginReplication, out.Failures[0].Origin)
	assert.Equal(t, MessageJobTimedOut, out.Failures[0].ExternalMessage)
	assert.False(t, out.Failures[0].Retryable)
}
