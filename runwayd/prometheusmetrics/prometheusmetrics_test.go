package prometheusmetrics_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/prometheusmetrics"
	"github.com/runwayhq/runway/testutil"
)

func gaugeValue(t testing.TB, registry *prometheus.Registry, name string, labels map[string]string) (float64, bool) {
	t.Helper()
	families, err := registry.Gather()
	require.NoError(t, err)
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
	metric:
		for _, metric := range family.GetMetric() {
			got := map[string]string{}
			for _, label := range metric.GetLabel() {
				got[label.GetName()] = label.GetValue()
			}
			for k, v := range labels {
				if got[k] != v {
					continue metric
				}
			}
			return metric.GetGauge().GetValue(), true
		}
	}
	return 0, false
}

func TestJobs(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := dbmem.New()
	registry := prometheus.NewRegistry()
	closeFunc, err := prometheusmetrics.Jobs(ctx, registry, db, time.Millisecond)
	require.NoError(t, err)
	defer closeFunc()

	// The pending series exports before the first tick.
	value, ok := gaugeValue(t, registry, "runwayd_api_jobs_total", map[string]string{"status": "pending"})
	require.True(t, ok)
	require.Zero(t, value)

	for i := 0; i < 3; i++ {
		_, err := db.InsertJob(ctx, database.InsertJobParams{
			ID:            uuid.New(),
			JobTemplateID: uuid.New(),
			Name:          "deploy",
			Playbook:      "- hosts: all\n",
			Status:        database.JobStatusPending,
			CreatedBy:     uuid.New(),
			CreatedAt:     dbtime.Now(),
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		value, ok := gaugeValue(t, registry, "runwayd_api_jobs_total", map[string]string{"status": "pending"})
		return ok && value == 3
	}, testutil.WaitShort, testutil.IntervalFast)
}

func TestInstances(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db := dbmem.New()
	registry := prometheus.NewRegistry()
	closeFunc, err := prometheusmetrics.Instances(ctx, registry, db, time.Millisecond)
	require.NoError(t, err)
	defer closeFunc()

	now := dbtime.Now()
	for _, nodeType := range []database.NodeType{database.NodeTypeExecution, database.NodeTypeHop} {
		_, err := db.UpsertInstance(ctx, database.UpsertInstanceParams{
			ID:         uuid.New(),
			Hostname:   uuid.NewString(),
			NodeType:   nodeType,
			NodeState:  database.NodeStateReady,
			Capacity:   2,
			LastSeenAt: sql.NullTime{Time: now, Valid: true},
			CreatedAt:  now,
			UpdatedAt:  now,
		})
		require.NoError(t, err)
	}

	require.Eventually(t, func() bool {
		execution, ok := gaugeValue(t, registry, "runwayd_api_instances_total", map[string]string{
			"node_type":  "execution",
			"node_state": "ready",
		})
		if !ok || execution != 1 {
			return false
		}
		hop, ok := gaugeValue(t, registry, "runwayd_api_instances_total", map[string]string{
			"node_type":  "hop",
			"node_state": "ready",
		})
		return ok && hop == 1
	}, testutil.WaitShort, testutil.IntervalFast)
}
