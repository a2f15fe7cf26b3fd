package httpmw

import (
	"context"
	"net/http"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type roleDefinitionParamContextKey struct{}

// RoleDefinitionParam returns the role definition from the
// ExtractRoleDefinitionParam handler.
func RoleDefinitionParam(r *http.Request) database.RoleDefinition {
	def, ok := r.Context().Value(roleDefinitionParamContextKey{}).(database.RoleDefinition)
	if !ok {
		panic("developer error: role definition param middleware not provided")
	}
	return def
}

// ExtractRoleDefinitionParam grabs a role definition from the
// "roledefinition" URL parameter by UUID.
func ExtractRoleDefinitionParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			defID, parsed := ParseUUIDParam(rw, r, "roledefinition")
			if !parsed {
				return
			}
			def, err := db.GetRoleDefinitionByID(ctx, defID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.ResourceNotFound(rw)
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching role definition.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, roleDefinitionParamContextKey{}, def)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
