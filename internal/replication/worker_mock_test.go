package replication_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connsync/internal/replication"
	"github.com/stacklok/connsync/internal/replication/mocks"
	"github.com/stacklok/connsync/internal/status"
)

func TestWorker_CloseOrder(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	dst := mocks.NewMockDestination(ctrl)

	msg := &replication.Message{
		Type:   replication.MessageTypeRecord,
		Record: &replication.Record{Stream: replication.StreamDescriptor{Name: "users"}, Data: []byte(`{"id":1}`)},
	}

	gomock.InOrder(
		dst.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		src.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil),
		src.EXPECT().IsFinished().Return(false),
		src.EXPECT().AttemptRead(gomock.Any()).Return(msg, nil),
		dst.EXPECT().Accept(gomock.Any(), msg).Return(nil),
		src.EXPECT().IsFinished().Return(true),
		dst.EXPECT().NotifyEndOfInput().Return(nil),
		dst.EXPECT().Close().Return(nil),
		src.EXPECT().Close().Return(nil),
	)

	w := replication.NewWorker(src, dst, replication.NewNamespaceMapper("", ""), replication.NewMessageTracker(1, nil))
	out, err := w.Run(context.Background(), &replication.Input{ConnectionID: "conn-1"})
	require.NoError(t, err)

	assert.True(t, out.Succeeded())
	assert.Equal(t, int64(1), out.Summary.RecordsSynced)
	// Without commit information every record of a completed attempt counts as committed
	assert.Equal(t, int64(1), out.Summary.RecordsCommitted)
}

func TestWorker_CancelToleratesAdapterFailures(t *testing.T) {
	t.Parallel()

	ctrl := gomock.NewController(t)
	src := mocks.NewMockSource(ctrl)
	dst := mocks.NewMockDestination(ctrl)

	w := replication.NewWorker(src, dst, replication.NewNamespaceMapper("", ""), replication.NewMessageTracker(1, nil))

	dst.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	src.EXPECT().Start(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).Return(nil)
	src.EXPECT().IsFinished().Return(false).AnyTimes()
	src.EXPECT().AttemptRead(gomock.Any()).DoAndReturn(func(ctx context.Context) (*replication.Message, error) {
		w.Cancel()
		<-ctx.Done()
		return nil, ctx.Err()
	})
	src.EXPECT().Cancel().Return(errors.New("source already gone"))
	dst.EXPECT().Cancel().Return(errors.New("destination already gone"))
	dst.EXPECT().Close().Return(errors.New("closed twice"))
	src.EXPECT().Close().Return(nil)

	out, err := w.Run(context.Background(), &replication.Input{ConnectionID: "conn-1"})
	require.NoError(t, err)

	assert.Equal(t, status.ReplicationStatusCancelled, out.Summary.Status)
	assert.Empty(t, out.Failures)
}
