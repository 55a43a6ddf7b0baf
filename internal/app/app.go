// Package app provides application lifecycle management for the connsync server.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/stacklok/connsync/internal/config"
)

// ConnSyncApp encapsulates all components needed to run the scheduler and its API server
type ConnSyncApp struct {
	config     *config.Config
	components *AppComponents
	httpServer *http.Server

	// supervising is set while the supervisor loop runs; /readiness reports it
	supervising *atomic.Bool

	// Lifecycle management
	ctx        context.Context
	cancelFunc context.CancelFunc
}

// Start starts the connection supervisor in the background and then the HTTP server.
// It blocks until the HTTP server stops or encounters an error.
func (app *ConnSyncApp) Start() error {
	go func() {
		app.supervising.Store(true)
		defer app.supervising.Store(false)
		if err := app.components.Supervisor.Start(app.ctx); err != nil {
			slog.Error("Connection supervisor failed", "error", err)
		}
	}()

	slog.Info("Server listening", "address", app.httpServer.Addr)
	if err := app.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("HTTP server failed: %w", err)
	}

	return nil
}

// Stop gracefully stops the application with the given timeout. The HTTP server stops
// accepting signals first, then the state machines stop and the components are released.
func (app *ConnSyncApp) Stop(timeout time.Duration) error {
	slog.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	var errs []error
	if err := app.httpServer.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("server forced to shutdown: %w", err))
	}

	if err := app.components.Supervisor.Stop(); err != nil {
		slog.Error("Failed to stop connection supervisor", "error", err)
	}
	if app.cancelFunc != nil {
		app.cancelFunc()
	}

	if err := app.components.close(shutdownCtx); err != nil {
		errs = append(errs, err)
	}

	slog.Info("Server shutdown complete")
	return errors.Join(errs...)
}

// GetConfig returns the application configuration
func (app *ConnSyncApp) GetConfig() *config.Config {
	return app.config
}

// GetHTTPServer returns the HTTP server (useful for testing to get the actual port)
func (app *ConnSyncApp) GetHTTPServer() *http.Server {
	return app.httpServer
}
