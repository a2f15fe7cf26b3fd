package httpmw

import (
	"context"
	"net/http"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

type jobTemplateParamContextKey struct{}

// JobTemplateParam returns the job template from the ExtractJobTemplateParam
// handler.
func JobTemplateParam(r *http.Request) database.JobTemplate {
	template, ok := r.Context().Value(jobTemplateParamContextKey{}).(database.JobTemplate)
	if !ok {
		panic("developer error: job template param middleware not provided")
	}
	return template
}

// ExtractJobTemplateParam grabs a job template from the "jobtemplate" URL
// parameter by UUID.
func ExtractJobTemplateParam(db database.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(rw http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			templateID, parsed := ParseUUIDParam(rw, r, "jobtemplate")
			if !parsed {
				return
			}
			template, err := db.GetJobTemplateByID(ctx, templateID)
			if err != nil {
				if httpapi.Is404Error(err) {
					httpapi.ResourceNotFound(rw)
					return
				}
				httpapi.Write(ctx, rw, http.StatusInternalServerError, runwaysdk.Response{
					Message: "Internal error fetching job template.",
					Detail:  err.Error(),
				})
				return
			}

			ctx = context.WithValue(ctx, jobTemplateParamContextKey{}, template)
			next.ServeHTTP(rw, r.WithContext(ctx))
		})
	}
}
