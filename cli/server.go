package cli

import (
	"context"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/sloghuman"

	"github.com/runwayhq/runway/runwayd"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/dbpostgres"
	"github.com/runwayhq/runway/runwayd/database/pubsub"
	"github.com/runwayhq/runway/runwayd/dispatch"
	"github.com/runwayhq/runway/runwayd/logstream"
	"github.com/runwayhq/runway/runwayd/prometheusmetrics"
	"github.com/runwayhq/runway/runwayd/runner"
	"github.com/runwayhq/runway/runwayd/tracing"

	"github.com/coder/serpent"
)

func (r *RootCmd) server() *serpent.Command {
	var (
		httpAddress         string
		accessURL           string
		postgresURL         string
		apiRateLimit        int64
		sessionDuration     time.Duration
		verbose             bool
		traceEnable         bool
		traceEndpoint       string
		prometheusAddress   string
		jobEventFile        string
		lokiURL             string
		lokiLabels          []string
		dispatchInterval    time.Duration
		heartbeatInterval   time.Duration
		instanceLostTimeout time.Duration
	)

	cmd := &serpent.Command{
		Use:   "server",
		Short: "Start the Runway control plane",
		Options: serpent.OptionSet{
			{
				Flag:        "http-address",
				Env:         "RUNWAY_HTTP_ADDRESS",
				Default:     "127.0.0.1:3000",
				Description: "HTTP bind address of the server.",
				Value:       serpent.StringOf(&httpAddress),
			},
			{
				Flag:        "access-url",
				Env:         "RUNWAY_ACCESS_URL",
				Description: "External URL clients use to reach the deployment. Defaults to the HTTP address.",
				Value:       serpent.StringOf(&accessURL),
			},
			{
				Flag:        "postgres-url",
				Env:         "RUNWAY_PG_CONNECTION_URL",
				Description: "URL of a PostgreSQL database. If empty, data is stored in memory and lost on restart.",
				Value:       serpent.StringOf(&postgresURL),
			},
			{
				Flag:        "api-rate-limit",
				Env:         "RUNWAY_API_RATE_LIMIT",
				Default:     "512",
				Description: "Maximum number of requests per minute allowed per user or IP. Negative values disable the limiter.",
				Value:       serpent.Int64Of(&apiRateLimit),
			},
			{
				Flag:        "session-duration",
				Env:         "RUNWAY_SESSION_DURATION",
				Default:     "168h",
				Description: "Lifetime of login session tokens.",
				Value:       serpent.DurationOf(&sessionDuration),
			},
			{
				Flag:        "verbose",
				Env:         "RUNWAY_VERBOSE",
				Description: "Enable debug logging.",
				Value:       serpent.BoolOf(&verbose),
			},
			{
				Flag:        "trace",
				Env:         "RUNWAY_TRACE",
				Description: "Whether application tracing data is collected. It exports to a backend configured by environment variables.",
				Value:       serpent.BoolOf(&traceEnable),
			},
			{
				Flag:        "trace-endpoint",
				Env:         "RUNWAY_TRACE_ENDPOINT",
				Description: "Address of the OTLP gRPC collector traces are exported to.",
				Value:       serpent.StringOf(&traceEndpoint),
			},
			{
				Flag:        "prometheus-address",
				Env:         "RUNWAY_PROMETHEUS_ADDRESS",
				Description: "Bind address to serve prometheus metrics on. Metrics are disabled when empty.",
				Value:       serpent.StringOf(&prometheusAddress),
			},
			{
				Flag:        "job-event-file",
				Env:         "RUNWAY_JOB_EVENT_FILE",
				Description: "Path of a rotated file job events are shipped to as zstd-compressed JSON lines.",
				Value:       serpent.StringOf(&jobEventFile),
			},
			{
				Flag:        "loki-url",
				Env:         "RUNWAY_LOKI_URL",
				Description: "Base URL of a Loki instance job events are pushed to.",
				Value:       serpent.StringOf(&lokiURL),
			},
			{
				Flag:        "loki-label",
				Env:         "RUNWAY_LOKI_LABELS",
				Description: "Static labels attached to pushed event streams, as key=value pairs.",
				Value:       serpent.StringArrayOf(&lokiLabels),
			},
			{
				Flag:        "dispatch-interval",
				Env:         "RUNWAY_DISPATCH_INTERVAL",
				Default:     "10s",
				Description: "Poll cadence of the job dispatcher. Dispatch is event driven; this is only the fallback.",
				Value:       serpent.DurationOf(&dispatchInterval),
			},
			{
				Flag:        "heartbeat-interval",
				Env:         "RUNWAY_HEARTBEAT_INTERVAL",
				Default:     "30s",
				Description: "How often the control plane scans for silent nodes.",
				Value:       serpent.DurationOf(&heartbeatInterval),
			},
			{
				Flag:        "instance-lost-timeout",
				Env:         "RUNWAY_INSTANCE_LOST_TIMEOUT",
				Default:     "2m",
				Description: "How long a node may miss health reports before it is marked offline.",
				Value:       serpent.DurationOf(&instanceLostTimeout),
			},
		},
		Handler: func(inv *serpent.Invocation) error {
			ctx, stop := signal.NotifyContext(inv.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger := slog.Make(sloghuman.Sink(inv.Stderr)).Leveled(slog.LevelInfo)
			if verbose {
				logger = logger.Leveled(slog.LevelDebug)
			}

			if accessURL == "" {
				accessURL = "http://" + httpAddress
			}
			parsedAccessURL, err := url.Parse(accessURL)
			if err != nil {
				return xerrors.Errorf("parse access URL: %w", err)
			}

			var (
				db database.Store
				ps pubsub.Pubsub
			)
			if postgresURL == "" {
				logger.Warn(ctx, "no postgres URL provided, data is stored in memory and lost on restart")
				db = dbmem.New()
				ps = pubsub.NewInMemory()
			} else {
				store, sqlDB, err := dbpostgres.Connect(ctx, postgresURL)
				if err != nil {
					return xerrors.Errorf("connect to postgres: %w", err)
				}
				defer sqlDB.Close()
				db = store
				ps, err = pubsub.NewPostgres(ctx, sqlDB, postgresURL)
				if err != nil {
					return xerrors.Errorf("create pubsub: %w", err)
				}
			}
			defer ps.Close()

			options := &runwayd.Options{
				AccessURL:          parsedAccessURL,
				Logger:             logger,
				Database:           db,
				Pubsub:             ps,
				APIRateLimit:       int(apiRateLimit),
				SessionDuration:    sessionDuration,
				PrometheusRegistry: prometheus.NewRegistry(),
			}

			if traceEnable || traceEndpoint != "" {
				tracerProvider, closeTracing, err := tracing.TracerProvider(ctx, tracing.TracerName, tracing.TracerOpts{
					Default:  true,
					Endpoint: traceEndpoint,
				})
				if err != nil {
					logger.Warn(ctx, "start tracing exporter", slog.Error(err))
				} else {
					options.TracerProvider = tracerProvider
					defer func() {
						shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
						defer cancel()
						_ = closeTracing(shutdownCtx)
					}()
				}
			}

			var sinks []runner.Sink
			if jobEventFile != "" {
				fileSink, err := logstream.NewFileSink(jobEventFile, logstream.FileSinkOptions{})
				if err != nil {
					return xerrors.Errorf("create job event file sink: %w", err)
				}
				defer fileSink.Close()
				sinks = append(sinks, fileSink)
			}
			if lokiURL != "" {
				labels, err := parseLabels(lokiLabels)
				if err != nil {
					return err
				}
				lokiSink := logstream.NewLokiSink(ctx, logger, lokiURL, logstream.LokiSinkOptions{
					Labels: labels,
				})
				defer lokiSink.Close()
				sinks = append(sinks, lokiSink)
			}

			api := runwayd.New(options)

			jobRunner := runner.New(db, logger, runner.Options{Sinks: sinks})

			reaper := dispatch.NewReaper(db, logger)
			if err := reaper.ReapOrphans(ctx); err != nil {
				logger.Error(ctx, "reap orphaned jobs", slog.Error(err))
			}

			group, groupCtx := errgroup.WithContext(ctx)

			dispatcher := dispatch.New(db, ps, jobRunner, logger, dispatch.Options{
				Interval: dispatchInterval,
			})
			group.Go(func() error {
				err := dispatcher.Run(groupCtx)
				if xerrors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})

			heartbeat := dispatch.NewHeartbeat(db, logger, dispatch.HeartbeatOptions{
				Interval:  heartbeatInterval,
				LostAfter: instanceLostTimeout,
			})
			heartbeat.Run(ctx)

			if prometheusAddress != "" {
				closeJobsMetrics, err := prometheusmetrics.Jobs(ctx, options.PrometheusRegistry, db, 0)
				if err != nil {
					return xerrors.Errorf("register jobs metrics: %w", err)
				}
				defer closeJobsMetrics()
				closeInstancesMetrics, err := prometheusmetrics.Instances(ctx, options.PrometheusRegistry, db, 0)
				if err != nil {
					return xerrors.Errorf("register instances metrics: %w", err)
				}
				defer closeInstancesMetrics()

				promServer := &http.Server{
					Addr: prometheusAddress,
					Handler: promhttp.HandlerFor(options.PrometheusRegistry, promhttp.HandlerOpts{
						Registry: options.PrometheusRegistry,
					}),
					ReadHeaderTimeout: time.Minute,
				}
				go func() {
					_ = promServer.ListenAndServe()
				}()
				defer promServer.Close()
			}

			listener, err := net.Listen("tcp", httpAddress)
			if err != nil {
				return xerrors.Errorf("listen on %q: %w", httpAddress, err)
			}
			server := &http.Server{
				Handler:           api.RootHandler,
				ReadHeaderTimeout: time.Minute,
			}

			group.Go(func() error {
				err := server.Serve(listener)
				if xerrors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			})
			group.Go(func() error {
				<-groupCtx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				return server.Shutdown(shutdownCtx)
			})
			logger.Info(ctx, "started runway server",
				slog.F("http_address", listener.Addr().String()),
				slog.F("access_url", parsedAccessURL.String()),
			)

			return group.Wait()
		},
	}
	return cmd
}

func parseLabels(pairs []string) (map[string]string, error) {
	labels := map[string]string{}
	for _, pair := range pairs {
		key, value, ok := strings.Cut(pair, "=")
		if !ok {
			return nil, xerrors.Errorf("invalid label %q, expected key=value", pair)
		}
		labels[key] = value
	}
	return labels, nil
}
