// Package prometheusmetrics exports gauges describing the state of the
// deployment, refreshed from the database on a fixed cadence.
package prometheusmetrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/runwayhq/runway/runwayd/database"
)

// Jobs tracks the total number of jobs with labels on status.
func Jobs(ctx context.Context, registerer prometheus.Registerer, db database.Store, duration time.Duration) (context.CancelFunc, error) {
	if duration == 0 {
		duration = 1 * time.Minute
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runwayd",
		Subsystem: "api",
		Name:      "jobs_total",
		Help:      "Jobs by status.",
	}, []string{"status"})
	err := registerer.Register(gauge)
	if err != nil {
		return nil, err
	}
	// This exists so the prometheus metric exports immediately when set.
	// It helps with tests so they don't have to wait for a tick.
	gauge.WithLabelValues(string(database.JobStatusPending)).Set(0)

	ctx, cancelFunc := context.WithCancel(ctx)
	ticker := time.NewTicker(duration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			jobs, err := db.GetJobs(ctx, database.GetJobsParams{})
			if err != nil {
				continue
			}
			counts := map[database.JobStatus]int{}
			for _, job := range jobs {
				counts[job.Status]++
			}
			gauge.Reset()
			for status, count := range counts {
				gauge.WithLabelValues(string(status)).Set(float64(count))
			}
		}
	}()
	return cancelFunc, nil
}

// Instances tracks mesh nodes with labels on node type and state.
func Instances(ctx context.Context, registerer prometheus.Registerer, db database.Store, duration time.Duration) (context.CancelFunc, error) {
	if duration == 0 {
		duration = 1 * time.Minute
	}

	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Namespace: "runwayd",
		Subsystem: "api",
		Name:      "instances_total",
		Help:      "Mesh nodes by type and state.",
	}, []string{"node_type", "node_state"})
	err := registerer.Register(gauge)
	if err != nil {
		return nil, err
	}
	gauge.WithLabelValues(string(database.NodeTypeExecution), string(database.NodeStateReady)).Set(0)

	ctx, cancelFunc := context.WithCancel(ctx)
	ticker := time.NewTicker(duration)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}

			instances, err := db.GetInstances(ctx)
			if err != nil {
				continue
			}
			type key struct {
				nodeType  database.NodeType
				nodeState database.NodeState
			}
			counts := map[key]int{}
			for _, instance := range instances {
				counts[key{instance.NodeType, instance.NodeState}]++
			}
			gauge.Reset()
			for k, count := range counts {
				gauge.WithLabelValues(string(k.nodeType), string(k.nodeState)).Set(float64(count))
			}
		}
	}()
	return cancelFunc, nil
}
