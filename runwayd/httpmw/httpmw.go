// Package httpmw contains middleware for the Runway API.
package httpmw

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

// ParseUUIDParam consumes a url parameter and parses it as a UUID.
func ParseUUIDParam(rw http.ResponseWriter, r *http.Request, param string) (uuid.UUID, bool) {
	rawID := chi.URLParam(r, param)
	if rawID == "" {
		httpapi.Write(r.Context(), rw, http.StatusBadRequest, runwaysdk.Response{
			Message: fmt.Sprintf("%q must be provided.", param),
		})
		return uuid.UUID{}, false
	}

	parsed, err := uuid.Parse(rawID)
	if err != nil {
		httpapi.Write(r.Context(), rw, http.StatusBadRequest, runwaysdk.Response{
			Message: fmt.Sprintf("%q must be a valid uuid.", param),
		})
		return uuid.UUID{}, false
	}

	return parsed, true
}
