package runwayd

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

func (api *API) jobs(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var params database.GetJobsParams
	query := r.URL.Query()
	if status := query.Get("status"); status != "" {
		switch database.JobStatus(status) {
		case database.JobStatusPending, database.JobStatusWaiting, database.JobStatusRunning,
			database.JobStatusSuccessful, database.JobStatusFailed, database.JobStatusCanceled,
			database.JobStatusError:
			params.Status = database.JobStatus(status)
		default:
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: fmt.Sprintf("Unknown job status %q.", status),
				Validations: []runwaysdk.ValidationError{
					{Field: "status", Detail: "Not a valid job status."},
				},
			})
			return
		}
	}
	if raw := query.Get("job_template_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: "Invalid query parameter.",
				Validations: []runwaysdk.ValidationError{
					{Field: "job_template_id", Detail: "Must be a valid UUID."},
				},
			})
			return
		}
		params.JobTemplateID = id
	}

	jobs, err := api.Database.GetJobs(ctx, params)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	jobs, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, jobs)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJobs(jobs))
}

func (api *API) job(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := httpmw.JobParam(r)
	if !api.Authorize(r, rbac.ActionRead, job) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJob(job))
}

// patchCancelJob cancels a job that has not finished. Pending and waiting
// jobs cancel immediately; running jobs are canceled by the runner when it
// observes the status change.
func (api *API) patchCancelJob(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := httpmw.JobParam(r)
	if !api.Authorize(r, rbac.ActionUpdate, job) {
		httpapi.ResourceNotFound(rw)
		return
	}

	if !job.Status.Active() {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("Job is already %s.", job.Status),
		})
		return
	}

	update := database.UpdateJobStatusParams{
		ID:          job.ID,
		Status:      database.JobStatusCanceled,
		Explanation: "Canceled by user request.",
	}
	if job.Status != database.JobStatusRunning {
		// Never picked up, so it completes right now.
		update.CompletedAt = sql.NullTime{Time: dbtime.Now(), Valid: true}
	}
	canceled, err := api.Database.UpdateJobStatus(ctx, update)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJob(canceled))
}

func (api *API) jobEvents(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	job := httpmw.JobParam(r)
	if !api.Authorize(r, rbac.ActionRead, job) {
		httpapi.ResourceNotFound(rw)
		return
	}

	events, err := api.Database.GetJobEventsByJobID(ctx, job.ID)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	converted := make([]runwaysdk.JobEvent, 0, len(events))
	for _, e := range events {
		converted = append(converted, runwaysdk.JobEvent{
			ID:        e.ID,
			JobID:     e.JobID,
			Counter:   e.Counter,
			EventType: e.EventType,
			Stdout:    e.Stdout,
			CreatedAt: e.CreatedAt,
		})
	}
	httpapi.Write(ctx, rw, http.StatusOK, converted)
}

func convertJob(job database.Job) runwaysdk.Job {
	converted := runwaysdk.Job{
		ID:            job.ID,
		JobTemplateID: job.JobTemplateID,
		Name:          job.Name,
		Playbook:      job.Playbook,
		Inventory:     job.Inventory,
		ExtraVars:     job.ExtraVars,
		Status:        runwaysdk.JobStatus(job.Status),
		Explanation:   job.Explanation,
		CreatedBy:     job.CreatedBy,
		CreatedAt:     job.CreatedAt,
	}
	if job.WorkUnitID.Valid {
		converted.WorkUnitID = job.WorkUnitID.String
	}
	if job.InstanceID.Valid {
		id := job.InstanceID.UUID
		converted.InstanceID = &id
	}
	if job.StartedAt.Valid {
		t := job.StartedAt.Time
		converted.StartedAt = &t
	}
	if job.CompletedAt.Valid {
		t := job.CompletedAt.Time
		converted.CompletedAt = &t
	}
	return converted
}

func convertJobs(jobs []database.Job) []runwaysdk.Job {
	converted := make([]runwaysdk.Job, 0, len(jobs))
	for _, j := range jobs {
		converted = append(converted, convertJob(j))
	}
	return converted
}
