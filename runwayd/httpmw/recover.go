package httpmw

import (
	"context"
	"net/http"
	"runtime/debug"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/tracing"
)

func Recover(log slog.Logger) func(h http.Handler) http.Handler {
	return func(h http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				p := recover()
				if p != nil {
					log.Warn(context.Background(),
						"panic serving http request (recovered)",
						slog.F("panic", p),
						slog.F("stack", string(debug.Stack())),
					)

					var hijacked bool
					if sw, ok := w.(*tracing.StatusWriter); ok {
						hijacked = sw.Hijacked
					}

					// Only try to write errors on non-hijacked responses.
					if !hijacked {
						httpapi.InternalServerError(w, nil)
					}
				}
			}()

			h.ServeHTTP(w, r)
		})
	}
}
