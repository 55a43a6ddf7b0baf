package app

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/stacklok/connsync/internal/connection"
	"github.com/stacklok/connsync/internal/status"
	"github.com/stacklok/connsync/internal/versions"
)

const statusRequestTimeout = 10 * time.Second

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the state of every connection of a running server",
		Long: `Query a running connsync server and print one line per connection: its phase, the
running job and attempt, and when the next scheduled run is due.`,
		RunE: runStatus,
	}
	cmd.Flags().String("server", "http://localhost:8080", "Base URL of the connsync server")
	cmd.Flags().Bool("no-color", false, "Disable colored output")
	return cmd
}

func runStatus(cmd *cobra.Command, _ []string) error {
	v, err := bindFlags(cmd.Flags())
	if err != nil {
		return err
	}
	if v.GetBool("no-color") {
		color.NoColor = true
	}

	client := &statusClient{
		baseURL: strings.TrimSuffix(v.GetString("server"), "/"),
		http:    &http.Client{Timeout: statusRequestTimeout},
	}
	ctx := commandContext(cmd)

	var server versions.VersionInfo
	if err := client.get(ctx, "/version", &server); err != nil {
		return err
	}
	local := versions.GetVersionInfo()
	if versions.IsNewerVersion(server.Version, local.Version) {
		slog.Warn("The server runs a newer connsync version than this CLI",
			"server_version", server.Version, "cli_version", local.Version)
	}

	var infos []connection.JobInfo
	if err := client.get(ctx, "/v1/connections", &infos); err != nil {
		return err
	}
	return renderStatus(cmd.OutOrStdout(), infos)
}

// statusClient reads the API of a running server
type statusClient struct {
	baseURL string
	http    *http.Client
}

func (c *statusClient) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("failed to reach %s: %w", c.baseURL, err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("GET %s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode %s response: %w", path, err)
	}
	return nil
}

func renderStatus(w io.Writer, infos []connection.JobInfo) error {
	table := tablewriter.NewWriter(w)
	table.Header("CONNECTION", "PHASE", "ACTIVE", "JOB", "ATTEMPT", "FAILURES", "NEXT RUN")

	rows := make([][]string, 0, len(infos))
	for _, info := range infos {
		rows = append(rows, []string{
			info.ConnectionID,
			phaseLabel(info),
			strconv.FormatBool(info.Active),
			orDash(info.JobID),
			orDash(int64(info.AttemptNumber)),
			strconv.Itoa(info.FailuresSinceSuccess),
			nextRunLabel(info.NextRun),
		})
	}
	if err := table.Bulk(rows); err != nil {
		return fmt.Errorf("failed to build status table: %w", err)
	}
	return table.Render()
}

func phaseLabel(info connection.JobInfo) string {
	label := string(info.Phase)
	if info.Quarantined && info.QuarantineReason != "" {
		label += " (" + info.QuarantineReason + ")"
	}
	if info.ResetPending {
		label += " [reset pending]"
	}

	switch info.Phase {
	case status.PhaseRunning:
		return color.New(color.FgBlue).Sprint(label)
	case status.PhaseSucceeded:
		return color.New(color.FgGreen).Sprint(label)
	case status.PhaseFailed, status.PhaseQuarantined:
		return color.New(color.FgRed).Sprint(label)
	case status.PhaseCancelled, status.PhaseDeleted:
		return color.New(color.FgYellow).Sprint(label)
	default:
		return label
	}
}

// orDash renders the -1 "no job" marker as a dash
func orDash(n int64) string {
	if n < 0 {
		return "-"
	}
	return strconv.FormatInt(n, 10)
}

func nextRunLabel(next *time.Time) string {
	if next == nil {
		return "-"
	}
	return next.UTC().Format(time.RFC3339)
}
