package v1

import (
	"time"

	"github.com/stacklok/connsync/internal/ledger"
	"github.com/stacklok/connsync/internal/status"
)

// JobResponse is a job with its attempts
type JobResponse struct {
	ID            int64                     `json:"id"`
	ConfigType    status.ConfigType         `json:"configType"`
	Status        status.JobStatus          `json:"status"`
	ResetStreams  []ledger.StreamDescriptor `json:"resetStreams,omitempty"`
	FailureReason string                    `json:"failureReason,omitempty"`
	CreatedAt     time.Time                 `json:"createdAt"`
	StartedAt     *time.Time                `json:"startedAt,omitempty"`
	UpdatedAt     time.Time                 `json:"updatedAt"`
	Attempts      []AttemptResponse         `json:"attempts"`
}

// AttemptResponse is one attempt of a job
type AttemptResponse struct {
	Number         int                    `json:"number"`
	Status         status.AttemptStatus   `json:"status"`
	Output         *status.JobOutput      `json:"output,omitempty"`
	FailureSummary *status.FailureSummary `json:"failureSummary,omitempty"`
	CreatedAt      time.Time              `json:"createdAt"`
	EndedAt        *time.Time             `json:"endedAt,omitempty"`
}

func toJobResponses(jobs []*ledger.Job) []JobResponse {
	out := make([]JobResponse, 0, len(jobs))
	for _, job := range jobs {
		resp := JobResponse{
			ID:            job.ID,
			ConfigType:    job.ConfigType,
			Status:        job.Status,
			ResetStreams:  job.Config.ResetStreams,
			FailureReason: job.FailureReason,
			CreatedAt:     job.CreatedAt,
			StartedAt:     job.StartedAt,
			UpdatedAt:     job.UpdatedAt,
			Attempts:      make([]AttemptResponse, 0, len(job.Attempts)),
		}
		for _, a := range job.Attempts {
			resp.Attempts = append(resp.Attempts, AttemptResponse{
				Number:         a.Number,
				Status:         a.Status,
				Output:         a.Output,
				FailureSummary: a.FailureSummary,
				CreatedAt:      a.CreatedAt,
				EndedAt:        a.EndedAt,
			})
		}
		out = append(out, resp)
	}
	return out
}
