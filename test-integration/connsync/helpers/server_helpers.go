package helpers

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/onsi/gomega"

	v1 "github.com/stacklok/connsync/internal/api/v1"
	connsync "github.com/stacklok/connsync/internal/app"
	"github.com/stacklok/connsync/internal/config"
	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/status"
)

// ServerTestHelper manages the connsync server lifecycle for testing
type ServerTestHelper struct {
	ctx        context.Context
	configPath string
	baseURL    string
	httpClient *http.Client
	app        *connsync.ConnSyncApp
	port       int
}

// NewServerTestHelper creates a new server test helper
func NewServerTestHelper(ctx context.Context, configPath string, port int) *ServerTestHelper {
	return &ServerTestHelper{
		ctx:        ctx,
		configPath: configPath,
		baseURL:    fmt.Sprintf("http://127.0.0.1:%d", port),
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		port: port,
	}
}

// StartServer builds the application from the config file and starts it in the background
func (s *ServerTestHelper) StartServer() error {
	cfg, err := config.LoadConfig(config.WithConfigPath(s.configPath))
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	app, err := connsync.NewConnSyncApp(s.ctx,
		connsync.WithConfig(cfg),
		connsync.WithAddress(fmt.Sprintf("127.0.0.1:%d", s.port)),
	)
	if err != nil {
		return fmt.Errorf("failed to build app: %w", err)
	}
	s.app = app

	go func() {
		if err := app.Start(); err != nil {
			// The test fails when it tries to connect
			fmt.Fprintf(os.Stderr, "Server start failed: %v\n", err)
		}
	}()

	return nil
}

// StopServer gracefully stops the server
func (s *ServerTestHelper) StopServer() error {
	if s.app == nil {
		return nil
	}
	app := s.app
	s.app = nil
	return app.Stop(5 * time.Second)
}

// WaitForServerReady waits until the supervisor runs and the API answers
func (s *ServerTestHelper) WaitForServerReady(timeout time.Duration) {
	gomega.Eventually(func() error {
		resp, err := s.httpClient.Get(s.baseURL + "/readiness")
		if err != nil {
			return err
		}
		defer func() {
			_ = resp.Body.Close()
		}()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("server returned status %d", resp.StatusCode)
		}
		return nil
	}, timeout, 100*time.Millisecond).Should(gomega.Succeed(), "Server should be ready")
}

// Post sends a signal to a connection and returns the status code
func (s *ServerTestHelper) Post(connectionID, signal string, body any) int {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		reader = bytes.NewReader(data)
	}
	resp, err := s.httpClient.Post(
		fmt.Sprintf("%s/v1/connections/%s/%s", s.baseURL, connectionID, signal), "application/json", reader)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_ = resp.Body.Close()
	return resp.StatusCode
}

// Put replaces a connection definition with the given YAML document
func (s *ServerTestHelper) Put(connectionID, definition string) int {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodPut,
		fmt.Sprintf("%s/v1/connections/%s", s.baseURL, connectionID), bytes.NewBufferString(definition))
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	req.Header.Set("Content-Type", "application/yaml")
	resp, err := s.httpClient.Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_ = resp.Body.Close()
	return resp.StatusCode
}

// Delete deletes a connection and returns the status code
func (s *ServerTestHelper) Delete(connectionID string) int {
	req, err := http.NewRequestWithContext(s.ctx, http.MethodDelete,
		fmt.Sprintf("%s/v1/connections/%s", s.baseURL, connectionID), nil)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	resp, err := s.httpClient.Do(req)
	gomega.Expect(err).NotTo(gomega.HaveOccurred())
	_ = resp.Body.Close()
	return resp.StatusCode
}

// GetConnection returns the job information of a connection
func (s *ServerTestHelper) GetConnection(connectionID string) (connection.JobInfo, error) {
	var info connection.JobInfo
	err := s.getJSON("/v1/connections/"+connectionID, &info)
	return info, err
}

// ListJobs returns the jobs of a connection, newest first
func (s *ServerTestHelper) ListJobs(connectionID string) ([]v1.JobResponse, error) {
	var jobs []v1.JobResponse
	err := s.getJSON("/v1/connections/"+connectionID+"/jobs", &jobs)
	return jobs, err
}

// WaitForLatestJob waits until the newest job of a connection has the given status
func (s *ServerTestHelper) WaitForLatestJob(connectionID string, want status.JobStatus) v1.JobResponse {
	var latest v1.JobResponse
	gomega.Eventually(func() (status.JobStatus, error) {
		jobs, err := s.ListJobs(connectionID)
		if err != nil || len(jobs) == 0 {
			return "", err
		}
		latest = jobs[0]
		return latest.Status, nil
	}, 10*time.Second, 50*time.Millisecond).Should(gomega.Equal(want))
	return latest
}

// WaitForPhase waits until a connection reaches the given phase
func (s *ServerTestHelper) WaitForPhase(connectionID string, want status.Phase) connection.JobInfo {
	var info connection.JobInfo
	gomega.Eventually(func() (status.Phase, error) {
		var err error
		info, err = s.GetConnection(connectionID)
		return info.Phase, err
	}, 10*time.Second, 50*time.Millisecond).Should(gomega.Equal(want))
	return info
}

func (s *ServerTestHelper) getJSON(path string, out any) error {
	resp, err := s.httpClient.Get(s.baseURL + path)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("GET %s returned status %d", path, resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
