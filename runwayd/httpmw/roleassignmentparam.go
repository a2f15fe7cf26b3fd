package httpmw

import (
	"context"
	"net/http"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type roleAssignmentParamContextKey struct{}

// RoleAssignmentParam returns the role assignment from the
// ExtractRoleAssignmentParam handler.
func RoleAssignmentParam(r *http.Request) database.RoleAssignment {
	assignment, ok := r.Context().Value(roleAssignmentParamContextKey{}).(database.RoleAssignment)
	if !ok {
		panic("developer error: role assignment param middleware not provided")
	}
	return assignment
}

// ExtractRoleAssignmentParam grabs a role assignment from the
// "roleassignment" URL parameter by UUID.
func ExtractRoleAssignmentParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			assignmentID, parsed := ParseUUIDParam(rw, r, "roleassignment")
			if !parsed {
				return
			}
			assignment, err := db.GetRoleAssignmentByID(ctx, assignmentID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.ResourceNotFound(rw)
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching role assignment.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, roleAssignmentParamContextKey{}, assignment)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
