package runwaysdk

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// JobTemplate is a reusable definition for launching playbook runs.
type JobTemplate struct {
	ID          uuid.UUID       `json:"id" format:"uuid"`
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Playbook    string          `json:"playbook"`
	Inventory   string          `json:"inventory"`
	ExtraVars   json.RawMessage `json:"extra_vars,omitempty"`
	CreatedBy   uuid.UUID       `json:"created_by" format:"uuid"`
	CreatedAt   time.Time       `json:"created_at" format:"date-time"`
	UpdatedAt   time.Time       `json:"updated_at" format:"date-time"`
}

type CreateJobTemplateRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Playbook    string          `json:"playbook" validate:"required"`
	Inventory   string          `json:"inventory"`
	ExtraVars   json.RawMessage `json:"extra_vars,omitempty"`
}

type UpdateJobTemplateRequest struct {
	Name        string          `json:"name" validate:"required"`
	Description string          `json:"description"`
	Playbook    string          `json:"playbook" validate:"required"`
	Inventory   string          `json:"inventory"`
	ExtraVars   json.RawMessage `json:"extra_vars,omitempty"`
}

// LaunchJobRequest optionally overrides template fields for a single run.
type LaunchJobRequest struct {
	ExtraVars json.RawMessage `json:"extra_vars,omitempty"`
}

// CreateJobTemplate creates a new job template.
func (c *Client) CreateJobTemplate(ctx context.Context, req CreateJobTemplateRequest) (JobTemplate, error) {
	res, err := c.Request(ctx, http.MethodPost, "/api/v1/jobtemplates", req)
	if err != nil {
		return JobTemplate{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return JobTemplate{}, ReadBodyAsError(res)
	}
	var template JobTemplate
	return template, json.NewDecoder(res.Body).Decode(&template)
}

// JobTemplates lists job templates the caller can read.
func (c *Client) JobTemplates(ctx context.Context) ([]JobTemplate, error) {
	res, err := c.Request(ctx, http.MethodGet, "/api/v1/jobtemplates", nil)
	if err != nil {
		return nil, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return nil, ReadBodyAsError(res)
	}
	var templates []JobTemplate
	return templates, json.NewDecoder(res.Body).Decode(&templates)
}

// JobTemplate returns a job template by ID.
func (c *Client) JobTemplate(ctx context.Context, id uuid.UUID) (JobTemplate, error) {
	res, err := c.Request(ctx, http.MethodGet, fmt.Sprintf("/api/v1/jobtemplates/%s", id), nil)
	if err != nil {
		return JobTemplate{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return JobTemplate{}, ReadBodyAsError(res)
	}
	var template JobTemplate
	return template, json.NewDecoder(res.Body).Decode(&template)
}

// UpdateJobTemplate replaces the mutable fields of a job template.
func (c *Client) UpdateJobTemplate(ctx context.Context, id uuid.UUID, req UpdateJobTemplateRequest) (JobTemplate, error) {
	res, err := c.Request(ctx, http.MethodPatch, fmt.Sprintf("/api/v1/jobtemplates/%s", id), req)
	if err != nil {
		return JobTemplate{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return JobTemplate{}, ReadBodyAsError(res)
	}
	var template JobTemplate
	return template, json.NewDecoder(res.Body).Decode(&template)
}

// DeleteJobTemplate deletes a job template.
func (c *Client) DeleteJobTemplate(ctx context.Context, id uuid.UUID) error {
	res, err := c.Request(ctx, http.MethodDelete, fmt.Sprintf("/api/v1/jobtemplates/%s", id), nil)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusNoContent {
		return ReadBodyAsError(res)
	}
	return nil
}

// LaunchJob creates a job from the given template. The caller needs the
// execute action on the template.
func (c *Client) LaunchJob(ctx context.Context, templateID uuid.UUID, req LaunchJobRequest) (Job, error) {
	res, err := c.Request(ctx, http.MethodPost, fmt.Sprintf("/api/v1/jobtemplates/%s/launch", templateID), req)
	if err != nil {
		return Job{}, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusCreated {
		return Job{}, ReadBodyAsError(res)
	}
	var job Job
	return job, json.NewDecoder(res.Body).Decode(&job)
}
