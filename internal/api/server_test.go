package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/stacklok/connsync/internal/api"
	"github.com/stacklok/connsync/internal/api/v1/mocks"
	"github.com/stacklok/connsync/internal/connection"
)

func newServer(t *testing.T, opts ...api.ServerOption) (http.Handler, *mocks.MockConnectionService) {
	t.Helper()
	ctrl := gomock.NewController(t)
	svc := mocks.NewMockConnectionService(ctrl)
	return api.NewServer(svc, mocks.NewMockJobHistory(ctrl), opts...), svc
}

func TestHealthEndpoints(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		path       string
		opts       []api.ServerOption
		wantStatus int
		wantField  string
		wantValue  string
	}{
		{name: "health", path: "/health", wantStatus: http.StatusOK, wantField: "status", wantValue: "healthy"},
		{name: "ready without check", path: "/readiness", wantStatus: http.StatusOK, wantField: "status", wantValue: "ready"},
		{
			name: "not ready",
			path: "/readiness",
			opts: []api.ServerOption{api.WithReadinessCheck(func(context.Context) error {
				return errors.New("supervisor not started")
			})},
			wantStatus: http.StatusServiceUnavailable,
			wantField:  "error",
			wantValue:  "not ready: supervisor not started",
		},
		{name: "metrics not configured", path: "/metrics", wantStatus: http.StatusNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			server, _ := newServer(t, tt.opts...)
			rr := httptest.NewRecorder()
			server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, tt.path, nil))

			assert.Equal(t, tt.wantStatus, rr.Code)
			if tt.wantField != "" {
				var body map[string]string
				require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
				assert.Equal(t, tt.wantValue, body[tt.wantField])
			}
		})
	}
}

func TestVersionEndpoint(t *testing.T) {
	t.Parallel()

	server, _ := newServer(t)
	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/version", nil))

	require.Equal(t, http.StatusOK, rr.Code)
	var resp api.VersionResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.Version)
	assert.NotEmpty(t, resp.GoVersion)
}

func TestMetricsHandlerIsMounted(t *testing.T) {
	t.Parallel()

	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("connsync_jobs_total 1\n"))
	})
	server, _ := newServer(t, api.WithMetricsHandler(metrics))

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "connsync_jobs_total")
}

func TestConnectionRoutesAreMounted(t *testing.T) {
	t.Parallel()

	var seen []string
	mw := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen = append(seen, r.URL.Path)
			next.ServeHTTP(w, r)
		})
	}
	server, svc := newServer(t, api.WithMiddlewares(mw, api.LoggingMiddleware))
	svc.EXPECT().TriggerManualSync("orders").Return(connection.ErrInactive)

	rr := httptest.NewRecorder()
	server.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, "/v1/connections/orders/sync", nil))

	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, []string{"/v1/connections/orders/sync"}, seen)
}
