package v1_test

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	v1 "github.com/stacklok/connsync/internal/api/v1"
	"github.com/stacklok/connsync/internal/api/v1/mocks"
	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/schedule"
	"github.com/stacklok/connsync/internal/status"
)

func serve(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestSignalRoutes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		method     string
		path       string
		setup      func(*mocks.MockConnectionService)
		wantStatus int
		wantSignal string
	}{
		{
			name:   "manual sync accepted",
			method: http.MethodPost,
			path:   "/connections/orders/sync",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().TriggerManualSync("orders").Return(nil)
			},
			wantStatus: http.StatusAccepted,
			wantSignal: "manual_sync",
		},
		{
			name:   "manual sync while running",
			method: http.MethodPost,
			path:   "/connections/orders/sync",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().TriggerManualSync("orders").Return(fmt.Errorf("%w: job 4", connection.ErrJobRunning))
			},
			wantStatus: http.StatusConflict,
		},
		{
			name:   "cancel unknown connection",
			method: http.MethodPost,
			path:   "/connections/missing/cancel",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().Cancel("missing").Return(connection.ErrNotFound)
			},
			wantStatus: http.StatusNotFound,
		},
		{
			name:   "retry activity",
			method: http.MethodPost,
			path:   "/connections/orders/retry-activity",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().RetryFailedActivity("orders").Return(nil)
			},
			wantStatus: http.StatusAccepted,
			wantSignal: "retry_failed_activity",
		},
		{
			name:   "delete deleted connection",
			method: http.MethodDelete,
			path:   "/connections/orders",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().Delete("orders").Return(connection.ErrDeleted)
			},
			wantStatus: http.StatusGone,
		},
		{
			name:   "unexpected error",
			method: http.MethodPost,
			path:   "/connections/orders/cancel",
			setup: func(m *mocks.MockConnectionService) {
				m.EXPECT().Cancel("orders").Return(fmt.Errorf("boom"))
			},
			wantStatus: http.StatusInternalServerError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			ctrl := gomock.NewController(t)

			svc := mocks.NewMockConnectionService(ctrl)
			tt.setup(svc)
			router := v1.Router(svc, mocks.NewMockJobHistory(ctrl))

			rr := serve(t, router, tt.method, tt.path, "")
			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantSignal != "" {
				var resp v1.AcceptedResponse
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
				assert.Equal(t, tt.wantSignal, resp.Signal)
			}
		})
	}
}

func TestResetRoute(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	svc := mocks.NewMockConnectionService(ctrl)
	svc.EXPECT().ResetConnection("orders", []ledger.StreamDescriptor{{Name: "users", Namespace: "public"}}, true).Return(nil)
	svc.EXPECT().ResetConnection("empty", nil, false).Return(connection.ErrNoStreams)
	router := v1.Router(svc, mocks.NewMockJobHistory(ctrl))

	rr := serve(t, router, http.MethodPost, "/connections/orders/reset",
		`{"streams":[{"name":"users","namespace":"public"}],"withScheduling":true}`)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = serve(t, router, http.MethodPost, "/connections/empty/reset", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)

	rr = serve(t, router, http.MethodPost, "/connections/orders/reset", `{"streams": [`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestUpdateRoute(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	svc := mocks.NewMockConnectionService(ctrl)
	svc.EXPECT().Update(gomock.Any()).DoAndReturn(func(def connection.Definition) error {
		assert.Equal(t, "orders", def.ID)
		assert.Equal(t, schedule.TypeManual, def.Schedule.Type)
		assert.Equal(t, "faker", def.Source.Type)
		require.Len(t, def.Streams, 1)
		return nil
	})
	router := v1.Router(svc, mocks.NewMockJobHistory(ctrl))

	body := `
name: Orders
schedule:
  type: manual
source:
  type: faker
  config:
    records: 10
destination:
  type: devnull
streams:
  - name: users
`
	rr := serve(t, router, http.MethodPut, "/connections/orders", body)
	assert.Equal(t, http.StatusAccepted, rr.Code)

	rr = serve(t, router, http.MethodPut, "/connections/orders", `{"name":"Orders","schedule":{"type":"manual"},"source":{"type":"faker"}}`)
	assert.Equal(t, http.StatusBadRequest, rr.Code)
	assert.Contains(t, rr.Body.String(), "destination.type is required")
}

func TestGetAndListRoutes(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	idle := connection.JobInfo{ConnectionID: "orders", Phase: status.PhaseWaiting, JobID: -1, AttemptNumber: -1, Active: true}
	svc := mocks.NewMockConnectionService(ctrl)
	svc.EXPECT().GetJobInformation("orders").Return(idle, nil)
	svc.EXPECT().List().Return([]connection.JobInfo{idle})
	router := v1.Router(svc, mocks.NewMockJobHistory(ctrl))

	rr := serve(t, router, http.MethodGet, "/connections/orders", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var info connection.JobInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &info))
	assert.Equal(t, int64(-1), info.JobID)
	assert.Equal(t, -1, info.AttemptNumber)

	rr = serve(t, router, http.MethodGet, "/connections", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var infos []connection.JobInfo
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &infos))
	assert.Len(t, infos, 1)
}

func TestJobsRoute(t *testing.T) {
	t.Parallel()
	ctrl := gomock.NewController(t)

	created := time.Date(2026, 5, 4, 10, 0, 0, 0, time.UTC)
	svc := mocks.NewMockConnectionService(ctrl)
	svc.EXPECT().GetJobInformation("orders").Return(connection.JobInfo{ConnectionID: "orders"}, nil)
	history := mocks.NewMockJobHistory(ctrl)
	history.EXPECT().ListJobs(gomock.Any(), "orders", 5).Return([]*ledger.Job{{
		ID:         3,
		ConfigType: status.ConfigTypeSync,
		Status:     status.JobStatusSucceeded,
		CreatedAt:  created,
		UpdatedAt:  created,
		Attempts: []ledger.Attempt{{
			Number: 1,
			Status: status.AttemptStatusSucceeded,
			Output: &status.JobOutput{Summary: status.SyncSummary{
				Status:           status.ReplicationStatusCompleted,
				RecordsSynced:    100,
				RecordsCommitted: 100,
			}},
		}},
	}}, nil)
	router := v1.Router(svc, history)

	rr := serve(t, router, http.MethodGet, "/connections/orders/jobs?limit=5", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var jobs []v1.JobResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &jobs))
	require.Len(t, jobs, 1)
	assert.Equal(t, status.JobStatusSucceeded, jobs[0].Status)
	require.Len(t, jobs[0].Attempts, 1)
	assert.Equal(t, int64(100), jobs[0].Attempts[0].Output.Summary.RecordsCommitted)

	rr = serve(t, router, http.MethodGet, "/connections/orders/jobs?limit=0", "")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}
