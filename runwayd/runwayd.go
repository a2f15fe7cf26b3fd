// Package runwayd is the control plane of Runway. It serves the HTTP API,
// dispatches jobs to execution nodes, and tracks the health of the mesh.
package runwayd

import (
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/buildinfo"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/pubsub"
	"github.com/runwayhq/runway/runwayd/httpapi"
	"github.com/runwayhq/runway/runwayd/httpmw"
	"github.com/runwayhq/runway/runwayd/rbac"
	"github.com/runwayhq/runway/runwayd/tracing"
	"github.com/runwayhq/runway/runwaysdk"

	"github.com/coder/quartz"
)

// Options are required parameters for the API to start.
type Options struct {
	AccessURL *url.URL
	Logger    slog.Logger
	Database  database.Store
	Pubsub    pubsub.Pubsub

	// APIRateLimit is the minutely throughput rate limit per user or ip.
	// Setting a rate limit <0 will disable the rate limiter across the
	// entire app. Specific routes may have their own limiters.
	APIRateLimit int
	Authorizer   rbac.Authorizer
	// Clock is injectable for testing time-dependent behavior.
	Clock              quartz.Clock
	PrometheusRegistry *prometheus.Registry
	TracerProvider     *sdktrace.TracerProvider
	// SessionDuration is the lifetime of login session tokens.
	SessionDuration time.Duration
}

// API serves the Runway HTTP API.
type API struct {
	*Options

	RootHandler chi.Router
}

// New constructs the Runway API into an HTTP handler.
func New(options *Options) *API {
	if options.APIRateLimit == 0 {
		options.APIRateLimit = 512
	}
	if options.Authorizer == nil {
		options.Authorizer = rbac.NewAuthorizer()
	}
	if options.Clock == nil {
		options.Clock = quartz.NewReal()
	}
	if options.PrometheusRegistry == nil {
		options.PrometheusRegistry = prometheus.NewRegistry()
	}
	if options.SessionDuration == 0 {
		options.SessionDuration = httpmw.DefaultSessionDuration
	}

	api := &API{
		Options: options,
	}

	apiKeyMiddleware := httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{
		DB:              options.Database,
		SessionDuration: options.SessionDuration,
	})
	apiKeyMiddlewareOptional := httpmw.ExtractAPIKey(httpmw.ExtractAPIKeyConfig{
		DB:              options.Database,
		Optional:        true,
		SessionDuration: options.SessionDuration,
	})

	r := chi.NewRouter()
	r.Use(
		tracing.StatusWriterMiddleware,
		httpmw.AttachRequestID,
		httpmw.Recover(api.Logger),
		httpmw.Logger(api.Logger),
		httpmw.Prometheus(options.PrometheusRegistry),
		tracing.Middleware(options.TracerProvider),
	)

	r.Route("/api/v1", func(r chi.Router) {
		r.NotFound(func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusNotFound, runwaysdk.Response{
				Message: "Route not found.",
			})
		})
		r.Use(
			// Specific routes can specify different limits, but the API
			// enforces a global one.
			apiKeyMiddlewareOptional,
			httpmw.RateLimit(options.APIRateLimit, time.Minute),
		)
		r.Get("/", func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusOK, runwaysdk.Response{
				Message: "Welcome to Runway!",
			})
		})
		r.Get("/buildinfo", func(rw http.ResponseWriter, r *http.Request) {
			httpapi.Write(r.Context(), rw, http.StatusOK, runwaysdk.BuildInfoResponse{
				ExternalURL: buildinfo.ExternalURL(),
				Version:     buildinfo.Version(),
			})
		})

		r.Route("/users", func(r chi.Router) {
			r.Get("/first", api.firstUser)
			r.Post("/first", api.postFirstUser)
			r.Post("/login", api.postLogin)
			r.Group(func(r chi.Router) {
				r.Use(apiKeyMiddleware)
				r.Post("/logout", api.postLogout)
				r.Get("/", api.users)
				r.Post("/", api.postUser)
				r.Route("/{user}", func(r chi.Router) {
					r.Use(httpmw.ExtractUserParam(options.Database))
					r.Get("/", api.userByID)
					r.Put("/profile", api.putUserProfile)
					r.Put("/roles", api.putUserRoles)
					r.Put("/suspend", api.putUserSuspend)
					r.Delete("/", api.deleteUser)
				})
			})
		})

		r.Route("/jobtemplates", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Post("/", api.postJobTemplate)
			r.Get("/", api.jobTemplates)
			r.Route("/{jobtemplate}", func(r chi.Router) {
				r.Use(httpmw.ExtractJobTemplateParam(options.Database))
				r.Get("/", api.jobTemplate)
				r.Patch("/", api.patchJobTemplate)
				r.Delete("/", api.deleteJobTemplate)
				r.Post("/launch", api.postLaunchJob)
			})
		})

		r.Route("/roledefinitions", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Post("/", api.postRoleDefinition)
			r.Get("/", api.roleDefinitions)
			r.Route("/{roledefinition}", func(r chi.Router) {
				r.Use(httpmw.ExtractRoleDefinitionParam(options.Database))
				r.Get("/", api.roleDefinition)
				r.Patch("/", api.patchRoleDefinition)
				r.Delete("/", api.deleteRoleDefinition)
			})
		})

		r.Route("/roleassignments", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Post("/", api.postRoleAssignment)
			r.Get("/", api.roleAssignments)
			r.Route("/{roleassignment}", func(r chi.Router) {
				r.Use(httpmw.ExtractRoleAssignmentParam(options.Database))
				r.Get("/", api.roleAssignment)
				r.Delete("/", api.deleteRoleAssignment)
			})
		})

		r.Route("/jobs", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Get("/", api.jobs)
			r.Route("/{job}", func(r chi.Router) {
				r.Use(httpmw.ExtractJobParam(options.Database))
				r.Get("/", api.job)
				r.Patch("/cancel", api.patchCancelJob)
				r.Get("/events", api.jobEvents)
			})
		})

		r.Route("/instances", func(r chi.Router) {
			r.Use(apiKeyMiddleware)
			r.Post("/", api.postInstance)
			r.Get("/", api.instances)
			r.Route("/{instance}", func(r chi.Router) {
				r.Use(httpmw.ExtractInstanceParam(options.Database))
				r.Get("/", api.instance)
				r.Post("/health", api.postInstanceHealth)
				r.Delete("/", api.deleteInstance)
			})
		})
	})

	api.RootHandler = r
	return api
}

// Authorize returns whether the authenticated subject can perform the
// action on the object. Failures are logged at debug, the details matter
// during policy authoring but are noise otherwise.
func (api *API) Authorize(r *http.Request, action rbac.Action, object rbac.Objecter) bool {
	subject := httpmw.UserAuthorization(r)
	err := api.Authorizer.Authorize(r.Context(), subject, action, object.RBACObject())
	if err != nil {
		api.Logger.Debug(r.Context(), "authorize failed",
			slog.F("subject_id", subject.ID),
			slog.F("action", action),
			slog.F("object", object.RBACObject()),
			slog.Error(err),
		)
		return false
	}
	return true
}
