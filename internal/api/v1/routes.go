// Package v1 provides the REST handlers that control connection state machines.
package v1

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"gopkg.in/yaml.v3"

	"github.com/stacklok/connsync/internal/api/common"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/ledger"
)

//go:generate mockgen -destination=mocks/mock_service.go -package=mocks -source=routes.go ConnectionService,JobHistory

const (
	defaultJobsLimit = 20
	maxJobsLimit     = 200
	maxBodyBytes     = 1 << 20
)

// ConnectionService sends signals to connection state machines
type ConnectionService interface {
	TriggerManualSync(connectionID string) error
	Cancel(connectionID string) error
	ResetConnection(connectionID string, streams []ledger.StreamDescriptor, withScheduling bool) error
	Update(def connection.Definition) error
	Delete(connectionID string) error
	RetryFailedActivity(connectionID string) error
	GetJobInformation(connectionID string) (connection.JobInfo, error)
	List() []connection.JobInfo
}

// JobHistory reads past jobs from the ledger
type JobHistory interface {
	ListJobs(ctx context.Context, connectionID string, limit int) ([]*ledger.Job, error)
}

// ResetRequest is the body of a reset request. No streams resets every configured stream.
type ResetRequest struct {
	Streams        []ledger.StreamDescriptor `json:"streams,omitempty" yaml:"streams,omitempty"`
	WithScheduling bool                      `json:"withScheduling,omitempty" yaml:"withScheduling,omitempty"`
}

// AcceptedResponse acknowledges a signal. Signals are processed asynchronously.
type AcceptedResponse struct {
	ConnectionID string `json:"connectionId"`
	Signal       string `json:"signal"`
}

// Routes holds the handler dependencies
type Routes struct {
	svc     ConnectionService
	history JobHistory
}

// Router creates the connection control router
func Router(svc ConnectionService, history JobHistory) http.Handler {
	routes := &Routes{svc: svc, history: history}

	r := chi.NewRouter()
	r.Get("/connections", routes.listConnections)
	r.Route("/connections/{id}", func(r chi.Router) {
		r.Get("/", routes.getConnection)
		r.Put("/", routes.updateConnection)
		r.Delete("/", routes.deleteConnection)
		r.Get("/jobs", routes.listJobs)
		r.Post("/sync", routes.signal(connection.SignalManualSync, routes.svc.TriggerManualSync))
		r.Post("/cancel", routes.signal(connection.SignalCancel, routes.svc.Cancel))
		r.Post("/retry-activity", routes.signal(connection.SignalRetryFailedActivity, routes.svc.RetryFailedActivity))
		r.Post("/reset", routes.resetConnection)
	})
	return r
}

func (rr *Routes) listConnections(w http.ResponseWriter, _ *http.Request) {
	common.WriteJSONResponse(w, rr.svc.List(), http.StatusOK)
}

func (rr *Routes) getConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}
	info, err := rr.svc.GetJobInformation(id)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, info, http.StatusOK)
}

// updateConnection accepts a connection definition as YAML or JSON
func (rr *Routes) updateConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.WriteErrorResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	var cfg config.ConnectionConfig
	if err := yaml.Unmarshal(body, &cfg); err != nil {
		common.WriteErrorResponse(w, "invalid connection definition: "+err.Error(), http.StatusBadRequest)
		return
	}
	cfg.ID = id
	if cfg.Name == "" {
		cfg.Name = id
	}
	if err := cfg.Validate(); err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := rr.svc.Update(connection.DefinitionFromConfig(&cfg)); err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, AcceptedResponse{ConnectionID: id, Signal: string(connection.SignalUpdate)}, http.StatusAccepted)
}

func (rr *Routes) deleteConnection(w http.ResponseWriter, r *http.Request) {
	rr.signal(connection.SignalDelete, rr.svc.Delete)(w, r)
}

func (rr *Routes) resetConnection(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	var req ResetRequest
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		common.WriteErrorResponse(w, "failed to read request body", http.StatusBadRequest)
		return
	}
	if len(body) > 0 {
		if err := yaml.Unmarshal(body, &req); err != nil {
			common.WriteErrorResponse(w, "invalid reset request: "+err.Error(), http.StatusBadRequest)
			return
		}
	}

	if err := rr.svc.ResetConnection(id, req.Streams, req.WithScheduling); err != nil {
		writeServiceError(w, err)
		return
	}
	common.WriteJSONResponse(w, AcceptedResponse{ConnectionID: id, Signal: string(connection.SignalReset)}, http.StatusAccepted)
}

func (rr *Routes) listJobs(w http.ResponseWriter, r *http.Request) {
	id, ok := connectionID(w, r)
	if !ok {
		return
	}

	limit := defaultJobsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > maxJobsLimit {
			common.WriteErrorResponse(w, "limit must be between 1 and "+strconv.Itoa(maxJobsLimit), http.StatusBadRequest)
			return
		}
		limit = n
	}

	if _, err := rr.svc.GetJobInformation(id); err != nil {
		writeServiceError(w, err)
		return
	}
	jobs, err := rr.history.ListJobs(r.Context(), id, limit)
	if err != nil {
		slog.ErrorContext(r.Context(), "Failed to list jobs", "connection_id", id, "error", err)
		common.WriteErrorResponse(w, "failed to list jobs", http.StatusInternalServerError)
		return
	}
	common.WriteJSONResponse(w, toJobResponses(jobs), http.StatusOK)
}

// signal adapts a single-argument service call into a handler answering 202
func (*Routes) signal(kind connection.SignalType, send func(string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := connectionID(w, r)
		if !ok {
			return
		}
		if err := send(id); err != nil {
			writeServiceError(w, err)
			return
		}
		slog.InfoContext(r.Context(), "Signal accepted", "connection_id", id, "signal", kind)
		common.WriteJSONResponse(w, AcceptedResponse{ConnectionID: id, Signal: string(kind)}, http.StatusAccepted)
	}
}

func connectionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := common.GetAndValidateURLParam(r, "id")
	if err != nil {
		common.WriteErrorResponse(w, err.Error(), http.StatusBadRequest)
		return "", false
	}
	return id, true
}

// writeServiceError maps connection errors onto HTTP statuses
func writeServiceError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, connection.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, connection.ErrDeleted):
		status = http.StatusGone
	case errors.Is(err, connection.ErrJobRunning),
		errors.Is(err, connection.ErrNoJobRunning),
		errors.Is(err, connection.ErrInactive),
		errors.Is(err, connection.ErrNotQuarantined):
		status = http.StatusConflict
	case errors.Is(err, connection.ErrNoStreams):
		status = http.StatusBadRequest
	}
	if status == http.StatusInternalServerError {
		slog.Error("Connection request failed", "error", err)
	}
	common.WriteErrorResponse(w, err.Error(), status)
}
