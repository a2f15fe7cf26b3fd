package runwayd

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwaysdk"
)

// postRoleAssignment grants a role definition to a user on one object.
// Granting a triple that already exists is not an error; the existing
// assignment is returned with a 200 instead of a 201.
func (api *API) postRoleAssignment(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.Authorize(r, rbac.ActionCreate, rbac.ResourceRoleAssignment) {
		httpapi.Forbidden(rw)
		return
	}

	var req runwaysdk.CreateRoleAssignmentRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}

	// Reject grants referencing users or definitions that don't exist so
	// a typo'd UUID doesn't create a dangling assignment.
	if _, err := api.Database.GetUserByID(ctx, req.UserID); err != nil {
		if httpapi.Is404Error(err) {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: "User does not exist.",
				Validations: []runwaysdk.ValidationError{
					{Field: "user_id", Detail: "No user with this ID."},
				},
			})
			return
		}
		httpapi.InternalServerError(rw, err)
		return
	}
	if _, err := api.Database.GetRoleDefinitionByID(ctx, req.RoleDefinitionID); err != nil {
		if httpapi.Is404Error(err) {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: "Role definition does not exist.",
				Validations: []runwaysdk.ValidationError{
					{Field: "role_definition_id", Detail: "No role definition with this ID."},
				},
			})
			return
		}
		httpapi.InternalServerError(rw, err)
		return
	}

	assignment, err := api.Database.InsertRoleAssignment(ctx, database.InsertRoleAssignmentParams{
		ID:               uuid.New(),
		UserID:           req.UserID,
		RoleDefinitionID: req.RoleDefinitionID,
		ObjectID:         req.ObjectID,
		CreatedAt:        dbtime.Now(),
	})
	if database.IsUniqueViolation(err, database.UniqueRoleAssignmentsTripleKey) {
		existing, err := api.Database.GetRoleAssignmentByTriple(ctx, database.GetRoleAssignmentByTripleParams{
			UserID:           req.UserID,
			RoleDefinitionID: req.RoleDefinitionID,
			ObjectID:         req.ObjectID,
		})
		if err != nil {
			httpapi.InternalServerError(rw, err)
			return
		}
		httpapi.Write(ctx, rw, http.StatusOK, convertRoleAssignment(existing))
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusCreated, convertRoleAssignment(assignment))
}

func (api *API) roleAssignments(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var params database.GetRoleAssignmentsParams
	query := r.URL.Query()
	for _, f := range []struct {
		name string
		dst  *uuid.UUID
	}{
		{"user_id", &params.UserID},
		{"role_definition_id", &params.RoleDefinitionID},
		{"object_id", &params.ObjectID},
	} {
		raw := query.Get(f.name)
		if raw == "" {
			continue
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
				Message: "Invalid query parameter.",
				Validations: []runwaysdk.ValidationError{
					{Field: f.name, Detail: "Must be a valid UUID."},
				},
			})
			return
		}
		*f.dst = id
	}

	assignments, err := api.Database.GetRoleAssignments(ctx, params)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	assignments, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, assignments)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}

	converted := make([]runwaysdk.RoleAssignment, 0, len(assignments))
	for _, a := range assignments {
		converted = append(converted, convertRoleAssignment(a))
	}
	httpapi.Write(ctx, rw, http.StatusOK, converted)
}

func (api *API) roleAssignment(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assignment := httpmw.RoleAssignmentParam(r)
	if !api.Authorize(r, rbac.ActionRead, assignment) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertRoleAssignment(assignment))
}

// deleteRoleAssignment revokes a grant. The param middleware already
// 404s when the assignment is gone, so repeating a delete fails cleanly.
func (api *API) deleteRoleAssignment(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	assignment := httpmw.RoleAssignmentParam(r)
	if !api.Authorize(r, rbac.ActionDelete, assignment) {
		httpapi.ResourceNotFound(rw)
		return
	}

	err := api.Database.DeleteRoleAssignment(ctx, assignment.ID)
	if err != nil {
		if httpapi.Is404Error(err) {
			httpapi.ResourceNotFound(rw)
			return
		}
		httpapi.InternalServerError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

func convertRoleAssignment(assignment database.RoleAssignment) runwaysdk.RoleAssignment {
	return runwaysdk.RoleAssignment{
		ID:               assignment.ID,
		UserID:           assignment.UserID,
		RoleDefinitionID: assignment.RoleDefinitionID,
		ObjectID:         assignment.ObjectID,
		CreatedAt:        assignment.CreatedAt,
	}
}
