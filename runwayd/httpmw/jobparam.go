package httpmw

import (
	"context"
	"net/http"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type jobParamContextKey struct{}

// JobParam returns the job from the ExtractJobParam handler.
func JobParam(r *http.Request) database.Job {
	job, ok := r.Context().Value(jobParamContextKey{}).(database.Job)
	if !ok {
		panic("developer error: job param middleware not provided")
	}
	return job
}

// ExtractJobParam grabs a job from the "job" URL parameter by UUID.
func ExtractJobParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			jobID, parsed := ParseUUIDParam(rw, r, "job")
			if !parsed {
				return
			}
			job, err := db.GetJobByID(ctx, jobID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.ResourceNotFound(rw)
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching job.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, jobParamContextKey{}, job)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
