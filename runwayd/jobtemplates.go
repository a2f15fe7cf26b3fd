package runwayd

import (
	"fmt"
	"net/http"

	"github.com/google/uuid"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/database/pubsub"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

func (api *API) postJobTemplate(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	apiKey := httpmw.APIKey(r)
	if !api.Authorize(r, rbac.ActionCreate, rbac.ResourceJobTemplate.WithOwner(apiKey.UserID.String())) {
		httpapi.Forbidden(rw)
		return
	}

	var req runwaysdk.CreateJobTemplateRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	now := dbtime.Now()
	template, err := api.Database.InsertJobTemplate(ctx, database.InsertJobTemplateParams{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		Playbook:    req.Playbook,
		Inventory:   req.Inventory,
		ExtraVars:   req.ExtraVars,
		CreatedBy:   apiKey.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if database.IsUniqueViolation(err, database.UniqueJobTemplatesNameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A job template named %q already exists.", req.Name),
			Validations: []runwaysdk.ValidationError{
				{Field: "name", Detail: "This name is already in use."},
			},
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, convertJobTemplate(template))
}

func (api *API) jobTemplates(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	templates, err := api.Database.GetJobTemplates(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	templates, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, templates)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJobTemplates(templates))
}

func (api *API) jobTemplate(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	template := httpmw.JobTemplateParam(r)
	if !api.Authorize(r, rbac.ActionRead, template) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJobTemplate(template))
}

func (api *API) patchJobTemplate(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	template := httpmw.JobTemplateParam(r)
	if !api.Authorize(r, rbac.ActionUpdate, template) {
		httpapi.ResourceNotFound(rw)
		return
	}

	var req runwaysdk.UpdateJobTemplateRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	updated, err := api.Database.UpdateJobTemplate(ctx, database.UpdateJobTemplateParams{
		ID:          template.ID,
		Name:        req.Name,
		Description: req.Description,
		Playbook:    req.Playbook,
		Inventory:   req.Inventory,
		ExtraVars:   req.ExtraVars,
		UpdatedAt:   dbtime.Now(),
	})
	if database.IsUniqueViolation(err, database.UniqueJobTemplatesNameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A job template named %q already exists.", req.Name),
			Validations: []runwaysdk.ValidationError{
				{Field: "name", Detail: "This name is already in use."},
			},
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertJobTemplate(updated))
}

func (api *API) deleteJobTemplate(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	template := httpmw.JobTemplateParam(r)
	if !api.Authorize(r, rbac.ActionDelete, template) {
		httpapi.ResourceNotFound(rw)
		return
	}

	err := api.Database.DeleteJobTemplate(ctx, template.ID)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// postLaunchJob creates a pending job from the template. The dispatcher
// picks it up via the job posted event.
func (api *API) postLaunchJob(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	template := httpmw.JobTemplateParam(r)
	apiKey := httpmw.APIKey(r)
	if !api.Authorize(r, rbac.ActionExecute, template) {
		httpapi.ResourceNotFound(rw)
		return
	}

	var req runwaysdk.LaunchJobRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	extraVars := template.ExtraVars
	if len(req.ExtraVars) > 0 {
		extraVars = req.ExtraVars
	}

	job, err := api.Database.InsertJob(ctx, database.InsertJobParams{
		ID:            uuid.New(),
		JobTemplateID: template.ID,
		Name:          template.Name,
		Playbook:      template.Playbook,
		Inventory:     template.Inventory,
		ExtraVars:     extraVars,
		Status:        database.JobStatusPending,
		CreatedBy:     apiKey.UserID,
		CreatedAt:     dbtime.Now(),
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}

	err = api.Pubsub.Publish(pubsub.EventJobPosted, []byte(job.ID.String()))
	if err != nil {
		// The dispatcher polls as a fallback, so a failed publish only
		// delays the job.
		api.Logger.Warn(ctx, "publish job posted event", slog.Error(err))
	}

	httpapi.Write(ctx, rw, http.StatusCreated, convertJob(job))
}

func convertJobTemplate(template database.JobTemplate) runwaysdk.JobTemplate {
	return runwaysdk.JobTemplate{
		ID:          template.ID,
		Name:        template.Name,
		Description: template.Description,
		Playbook:    template.Playbook,
		Inventory:   template.Inventory,
		ExtraVars:   template.ExtraVars,
		CreatedBy:   template.CreatedBy,
		CreatedAt:   template.CreatedAt,
		UpdatedAt:   template.UpdatedAt,
	}
}

func convertJobTemplates(templates []database.JobTemplate) []runwaysdk.JobTemplate {
	converted := make([]runwaysdk.JobTemplate, 0, len(templates))
	for _, t := range templates {
		converted = append(converted, convertJobTemplate(t))
	}
	return converted
}
