package httpmw

import (
	"net/http"
	"time"

	"github.com/go-chi/httprate"

	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwaysdk"
)

// RateLimit returns a handler that limits requests per-minute based on IP,
// endpoint, and user ID (if available).
func RateLimit(count int, window time.Duration) func(http.Handler) http.Handler {
	// -1 is no rate limit
	if count <= 0 {
		return func(handler http.Handler) http.Handler {
			return handler
		}
	}

	return httprate.Limit(
		count,
		window,
		httprate.WithKeyFuncs(func(r *http.Request) (string, error) {
			// Prioritize by user, but fallback to IP.
			apiKey, ok := APIKeyOptional(r)
			if ok {
				return apiKey.UserID.String(), nil
			}
			return httprate.KeyByIP(r)
		}, httprate.KeyByEndpoint),
		httprate.WithLimitHandler(func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusTooManyRequests, runwaysdk.Response{
				Message: "You've been rate limited for sending too many requests!",
			})
		}),
	)
}
