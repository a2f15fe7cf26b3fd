package httpmw

import (
	"context"
	"net/http"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type instanceParamContextKey struct{}

// InstanceParam returns the instance from the ExtractInstanceParam handler.
func InstanceParam(r *http.Request) database.Instance {
	instance, ok := r.Context().Value(instanceParamContextKey{}).(database.Instance)
	if !ok {
		panic("developer error: instance param middleware not provided")
	}
	return instance
}

// ExtractInstanceParam grabs an instance from the "instance" URL parameter
// by UUID.
func ExtractInstanceParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			instanceID, parsed := ParseUUIDParam(rw, r, "instance")
			if !parsed {
				return
			}
			instance, err := db.GetInstanceByID(ctx, instanceID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.ResourceNotFound(rw)
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching instance.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, instanceParamContextKey{}, instance)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
