package runwaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

type JobStatus string

const (
	JobStatusPending    JobStatus = "pending"
	JobStatusWaiting    JobStatus = "waiting"
	JobStatusRunning    JobStatus = "running"
	JobStatusSuccessful JobStatus = "successful"
	JobStatusFailed     JobStatus = "failed"
	JobStatusCanceled   JobStatus = "canceled"
	JobStatusError      JobStatus = "error"
)

// Job is a single run of a job template's playbook.
type Job struct {
	ID            uuid.UUID       `json:"id" format:"uuid"`
	JobTemplateID uuid.UUID       `json:"job_template_id" format:"uuid"`
	Name          string          `json:"name"`
	Playbook      string          `json:"playbook"`
	Inventory     string          `json:"inventory"`
	ExtraVars     json.RawMessage `json:"extra_vars,omitempty"`
	Status        JobStatus       `json:"status"`
	Explanation   string          `json:"explanation,omitempty"`
	WorkUnitID    string          `json:"work_unit_id,omitempty"`
	InstanceID    *uuid.UUID      `json:"instance_id,omitempty" format:"uuid"`
	CreatedBy     uuid.UUID       `json:"created_by" format:"uuid"`
	CreatedAt     time.Time       `json:"created_at" format:"date-time"`
	StartedAt     *time.Time      `json:"started_at,omitempty" format:"date-time"`
	CompletedAt   *time.Time      `json:"completed_at,omitempty" format:"date-time"`
}

// JobEvent is a single playbook event emitted while a job runs. The counter
// orders events; the final event of a finished job has type "EOF".
type JobEvent struct {
	ID        int64     `json:"id"`
	JobID     uuid.UUID `json:"job_id" format:"uuid"`
	Counter   int32     `json:"counter"`
	EventType string    `json:"event_type"`
	Stdout    string    `json:"stdout"`
	CreatedAt time.Time `json:"created_at" format:"date-time"`
}

// JobFilter narrows job listing. Zero values are ignored.
type JobFilter struct {
	Status        JobStatus
	JobTemplateID uuid.UUID
}

// Jobs lists jobs matching the filter.
func (c *Client) Jobs(ctx context.Context, filter JobFilter) ([]Job, error) {
	opts := []RequestOption{
		WithQueryParam("status", string(filter.Status)),
	}
	if filter.JobTemplateID != uuid.Nil {
		opts = append(opts, WithQueryParam("job_template_id", filter.JobTemplateID.String()))
	}
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/jobs", nil, opts...)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var jobs []Job
	return jobs, json.NewDecoder(res.Body).Decode(&jobs)
}

// Job returns a job by ID.
func (c *Client) Job(ctx context.Context, id uuid.UUID) (Job, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s", id), nil)
	if err != nil {
		return Job{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Job{}, ReadBodyAsError(res)
	}
	var job Job
	return job, json.NewDecoder(res.Body).Decode(&job)
}

// CancelJob requests cancellation of a pending, waiting, or running job.
func (c *Client) CancelJob(ctx context.Context, id uuid.UUID) (Job, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/jobs/%s/cancel", id), nil)
	if err != nil {
		return Job{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return Job{}, ReadBodyAsError(res)
	}
	var job Job
	return job, json.NewDecoder(res.Body).Decode(&job)
}

// JobEvents returns the ordered playbook events of a job.
func (c *Client) JobEvents(ctx context.Context, id uuid.UUID) ([]JobEvent, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobs/%s/events", id), nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var events []JobEvent
	return events, json.NewDecoder(res.Body).Decode(&events)
}
