package runwayd

import (
	"context"
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

func (api *API) postRoleDefinition(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if !api.Authorize(r, rbac.ActionCreate, rbac.ResourceRoleDefinition) {
		httpapi.Forbidden(rw)
		return
	}

	var req runwaysdk.CreateRoleDefinitionRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	if rbac.IsBuiltinRole(req.Name) {
		httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
			Message: fmt.Sprintf("%q is reserved for a built-in role.", req.Name),
			Validations: []runwaysdk.ValidationError{
				{Field: "name", Detail: "This name is reserved."},
			},
		})
		return
	}
	if !validateRoleDefinition(ctx, rw, req.ContentType, req.Permissions) {
		return
	}

	now := dbtime.Now()
	def, err := api.Database.InsertRoleDefinition(ctx, database.InsertRoleDefinitionParams{
		ID:          uuid.New(),
		Name:        req.Name,
		Description: req.Description,
		ContentType: req.ContentType,
		Permissions: req.Permissions,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if database.IsUniqueViolation(err, database.UniqueRoleDefinitionsNameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A role definition named %q already exists.", req.Name),
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
	httpapi.Write(ctx, rw, http.StatusCreated, convertRoleDefinition(def))
}

// roleDefinitions lists stored definitions plus the built-in site roles.
// Built-ins have a nil ID and cannot be edited or deleted.
func (api *API) roleDefinitions(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	defs, err := api.Database.GetRoleDefinitions(ctx)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	defs, err = rbac.Filter(ctx, api.Authorizer, httpmw.UserAuthorization(r), rbac.ActionRead, defs)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}

	converted := make([]runwaysdk.RoleDefinition, 0, len(defs)+3)
	for _, name := range rbac.BuiltinRoleNames() {
		role, err := rbac.RoleByName(name)
		if err != nil {
			httpapi.InternalServerError(rw, err)
			return
		}
		perms := make([]string, 0, len(role.Site))
		for _, p := range role.Site {
			perms = append(perms, p.String())
		}
		converted = append(converted, runwaysdk.RoleDefinition{
			Name:        role.Name,
			Description: role.DisplayName,
			ContentType: rbac.WildcardSymbol,
			Permissions: perms,
			BuiltIn:     true,
		})
	}
	for _, d := range defs {
		converted = append(converted, convertRoleDefinition(d))
	}
	httpapi.Write(ctx, rw, http.StatusOK, converted)
}

func (api *API) roleDefinition(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def := httpmw.RoleDefinitionParam(r)
	if !api.Authorize(r, rbac.ActionRead, def) {
		httpapi.ResourceNotFound(rw)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertRoleDefinition(def))
}

// patchRoleDefinition updates name, description, and permissions. The
// content type is fixed at creation so existing assignments keep their
// meaning.
func (api *API) patchRoleDefinition(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def := httpmw.RoleDefinitionParam(r)
	if !api.Authorize(r, rbac.ActionUpdate, def) {
		httpapi.ResourceNotFound(rw)
		return
	}

	var req runwaysdk.UpdateRoleDefinitionRequest
	if !httpapi.Read(ctx, rw, r, &req) {
		return
	}
	if rbac.IsBuiltinRole(req.Name) {
		httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
			Message: fmt.Sprintf("%q is reserved for a built-in role.", req.Name),
		})
		return
	}
	if !validateRoleDefinition(ctx, rw, def.ContentType, req.Permissions) {
		return
	}

	updated, err := api.Database.UpdateRoleDefinition(ctx, database.UpdateRoleDefinitionParams{
		ID:          def.ID,
		Name:        req.Name,
		Description: req.Description,
		Permissions: req.Permissions,
		UpdatedAt:   dbtime.Now(),
	})
	if database.IsUniqueViolation(err, database.UniqueRoleDefinitionsNameKey) {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("A role definition named %q already exists.", req.Name),
		})
		return
	}
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	httpapi.Write(ctx, rw, http.StatusOK, convertRoleDefinition(updated))
}

// deleteRoleDefinition refuses to delete a definition that still has live
// assignments. Revoke the grants first, then delete.
func (api *API) deleteRoleDefinition(rw http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	def := httpmw.RoleDefinitionParam(r)
	if !api.Authorize(r, rbac.ActionDelete, def) {
		httpapi.ResourceNotFound(rw)
		return
	}

	assignments, err := api.Database.GetRoleAssignments(ctx, database.GetRoleAssignmentsParams{
		RoleDefinitionID: def.ID,
	})
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	if len(assignments) > 0 {
		httpapi.Write(ctx, rw, http.StatusConflict, runwaysdk.Response{
			Message: fmt.Sprintf("Role definition %q still has %d assignments.", def.Name, len(assignments)),
			Detail:  "Delete the role assignments before deleting the definition.",
		})
		return
	}

	err = api.Database.DeleteRoleDefinition(ctx, def.ID)
	if err != nil {
		httpapi.InternalServerError(rw, err)
		return
	}
	rw.WriteHeader(http.StatusNoContent)
}

// validateRoleDefinition checks the content type and each permission
// string, writing a 400 with field validations on failure.
func validateRoleDefinition(ctx context.Context, rw http.ResponseWriter, contentType string, permissions []string) bool {
	_, err := rbac.ValidatePermissions(contentType, permissions)
	if err != nil {
		httpapi.Write(ctx, rw, http.StatusBadRequest, runwaysdk.Response{
			Message: "Invalid role definition.",
			Detail:  err.Error(),
			Validations: []runwaysdk.ValidationError{
				{Field: "permissions", Detail: err.Error()},
			},
		})
		return false
	}
	return true
}

func convertRoleDefinition(def database.RoleDefinition) runwaysdk.RoleDefinition {
	return runwaysdk.RoleDefinition{
		ID:          def.ID,
		Name:        def.Name,
		Description: def.Description,
		ContentType: def.ContentType,
		Permissions: def.Permissions,
		CreatedAt:   def.CreatedAt,
		UpdatedAt:   def.UpdatedAt,
	}
}
