package runwayd

import (
	"database/sql"
	"net/http"

	"github.com/google/uuid"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

// postInstance enrolls a node into the mesh. Registration is idempotent on
// hostname: re-registering refreshes the record and returns 200 instead of
// 201.
func (api *API) postInstance(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.Authorize(r, rbac.ActionCreate, rbac.ResourceInstance) {
		httpapi.Forbidden(rw)
		return
	}

	var req runwaysdk.RegisterInstanceRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	_, err := api.Database.GetInstanceByHostname(ctx, req.Hostname)
	existed := err == nil
	if err != nil && !httpapi.Is404Error(err) {
		httpapi.InternalServerError(rw, err)
		return
	}

	now := dbtime.Now()
	instance, err := api.Database.UpsertInstance(ctx, database.UpsertInstanceParams{
		ID:         uuid.New(),
		Hostname:   req.Hostname,
		NodeType:   database.NodeType(req.NodeType),
		NodeState:  database.NodeStateInstalled,
		Capacity:   req.Capacity,
		Version:    req.Version,
		LastSeenAt: sql.NullTime{Time: now, Valid: true},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}

	status := http.StatusCreated
	if existed {
		status = http.StatusOK
	} else {
		api.Logger.Info(ctx, "instance registered",
			slog.F("instance_id", instance.ID),
			slog.F("hostname", instance.Hostname),
			slog.F("node_type", instance.NodeType),
		)
	}
	httpapi.Write(ctx, rw, status, convertInstance(instance))
}

func (api *API) instances(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instances, err := api.Database.GetInstances(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	instances, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, instances)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	converted := make([]runwaysdk.Instance, 0, len(instances))
	for _, i := range instances {
		converted = append(converted, convertInstance(i))
	}
	httpapi.Write(ctx, rw, http.StatusOK, converted)
}

func (api *API) instance(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance := httpmw.InstanceParam(r)
	if !api.Authorize(r, rbac.ActionRead, instance) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertInstance(instance))
}

// postInstanceHealth records a health check result and refreshes the
// heartbeat timestamp.
func (api *API) postInstanceHealth(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance := httpmw.InstanceParam(r)
	if !api.Authorize(r, rbac.ActionUpdate, instance) {
		httpapi.ResourceNotFound(rw)
		return
	}

	var req runwaysdk.PostInstanceHealthRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	now := dbtime.Now()
	updated, err := api.Database.UpdateInstanceHealth(ctx, database.UpdateInstanceHealthParams{
		ID:         instance.ID,
		NodeState:  database.NodeState(req.NodeState),
		Capacity:   req.Capacity,
		Version:    req.Version,
		Errors:     req.Errors,
		LastSeenAt: sql.NullTime{Time: now, Valid: true},
		UpdatedAt:  now,
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertInstance(updated))
}

// deleteInstance deprovisions a node. Jobs still assigned to it are failed
// by the reaper.
func (api *API) deleteInstance(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	instance := httpmw.InstanceParam(r)
	if !api.Authorize(r, rbac.ActionDelete, instance) {
		httpapi.ResourceNotFound(rw)
		return
	}

	err := api.Database.DeleteInstance(ctx, instance.ID)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	api.Logger.Info(ctx, "instance deleted",
		slog.F("instance_id", instance.ID),
		slog.F("hostname", instance.Hostname),
	)
	rw.WriteHeader(http.StatusNoContent)
}

func convertInstance(instance database.Instance) runwaysdk.Instance {
	converted := runwaysdk.Instance{
		ID:        instance.ID,
		Hostname:  instance.Hostname,
		NodeType:  runwaysdk.NodeType(instance.NodeType),
		NodeState: runwaysdk.NodeState(instance.NodeState),
		Capacity:  instance.Capacity,
		Version:   instance.Version,
		Errors:    instance.Errors,
		CreatedAt: instance.CreatedAt,
		UpdatedAt: instance.UpdatedAt,
	}
	if instance.LastSeenAt.Valid {
		t := instance.LastSeenAt.Time
		converted.LastSeenAt = &t
	}
	return converted
}
