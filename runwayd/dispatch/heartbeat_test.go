package dispatch_test

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/coder/quartz"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/dispatch"
	"github.com/runwayhq/runway/testutil"
)

func insertAssignedJob(t testing.TB, db database.Store, instanceID uuid.UUID, status database.JobStatus) database.Job {
	t.Helper()
	job := insertPendingJob(t, db)
	job, err := db.UpdateJobStatus(context.Background(), database.UpdateJobStatusParams{
		ID:         job.ID,
		Status:     status,
		InstanceID: uuid.NullUUID{UUID: instanceID, Valid: true},
	})
	require.NoError(t, err)
	return job
}

func TestHeartbeat(t *testing.T) {
	t.Parallel()
	t.Run("MarksLostInstanceOffline", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)

		db := dbmem.New()
		mClock := quartz.NewMock(t)

		stale := mClock.Now().Add(-3 * time.Minute)
		instance, err := db.UpsertInstance(ctx, database.UpsertInstanceParams{
			ID:         uuid.New(),
			Hostname:   "exec-1.runway.dev",
			NodeType:   database.NodeTypeExecution,
			NodeState:  database.NodeStateReady,
			Capacity:   4,
			LastSeenAt: sql.NullTime{Time: stale, Valid: true},
			CreatedAt:  stale,
			UpdatedAt:  stale,
		})
		require.NoError(t, err)
		job := insertAssignedJob(t, db, instance.ID, database.JobStatusRunning)

		hb := dispatch.NewHeartbeat(db, testLogger(t), dispatch.HeartbeatOptions{
			Interval:  30 * time.Second,
			LostAfter: 2 * time.Minute,
			Clock:     mClock,
		})
		hb.Run(ctx)

		mClock.Advance(30 * time.Second).MustWait(ctx)

		got, err := db.GetInstanceByID(ctx, instance.ID)
		require.NoError(t, err)
		require.Equal(t, database.NodeStateOffline, got.NodeState)
		require.Contains(t, got.Errors, "missed heartbeat")

		reaped, err := db.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusFailed, reaped.Status)
		require.Equal(t, "Execution node was lost.", reaped.Explanation)
		require.True(t, reaped.CompletedAt.Valid)
	})

	t.Run("HealthyInstanceUntouched", func(t *testing.T) {
		t.Parallel()
		ctx := testutil.Context(t, testutil.WaitShort)

		db := dbmem.New()
		mClock := quartz.NewMock(t)

		instance, err := db.UpsertInstance(ctx, database.UpsertInstanceParams{
			ID:         uuid.New(),
			Hostname:   "exec-2.runway.dev",
			NodeType:   database.NodeTypeExecution,
			NodeState:  database.NodeStateReady,
			Capacity:   4,
			LastSeenAt: sql.NullTime{Time: mClock.Now(), Valid: true},
			CreatedAt:  mClock.Now(),
			UpdatedAt:  mClock.Now(),
		})
		require.NoError(t, err)

		hb := dispatch.NewHeartbeat(db, testLogger(t), dispatch.HeartbeatOptions{
			Interval:  30 * time.Second,
			LostAfter: 2 * time.Minute,
			Clock:     mClock,
		})
		hb.Run(ctx)

		mClock.Advance(30 * time.Second).MustWait(ctx)

		got, err := db.GetInstanceByID(ctx, instance.ID)
		require.NoError(t, err)
		require.Equal(t, database.NodeStateReady, got.NodeState)
	})
}

func TestReaper(t *testing.T) {
	t.Parallel()
	t.Run("ReapOrphans", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()

		offline := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateOffline, 2)
		healthy := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 2)

		orphaned := insertAssignedJob(t, db, offline.ID, database.JobStatusWaiting)
		// Instance deleted out from under its job.
		gone := insertAssignedJob(t, db, uuid.New(), database.JobStatusRunning)
		kept := insertAssignedJob(t, db, healthy.ID, database.JobStatusRunning)

		reaper := dispatch.NewReaper(db, testLogger(t))
		require.NoError(t, reaper.ReapOrphans(ctx))

		for _, id := range []uuid.UUID{orphaned.ID, gone.ID} {
			job, err := db.GetJobByID(ctx, id)
			require.NoError(t, err)
			require.Equal(t, database.JobStatusFailed, job.Status)
			require.Equal(t, "Execution node is gone.", job.Explanation)
		}

		job, err := db.GetJobByID(ctx, kept.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusRunning, job.Status)
	})

	t.Run("ReapInstanceOnlyTouchesItsJobs", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()

		lost := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 2)
		other := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 2)

		stranded := insertAssignedJob(t, db, lost.ID, database.JobStatusRunning)
		unrelated := insertAssignedJob(t, db, other.ID, database.JobStatusWaiting)

		reaper := dispatch.NewReaper(db, testLogger(t))
		require.NoError(t, reaper.ReapInstance(ctx, lost.ID))

		job, err := db.GetJobByID(ctx, stranded.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusFailed, job.Status)
		require.Equal(t, "Execution node was lost.", job.Explanation)

		job, err = db.GetJobByID(ctx, unrelated.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusWaiting, job.Status)
	})

	// Job left running by a crashed control plane whose node is healthy
	// again: the startup reap must not fail it.
	t.Run("AliveInstanceKeepsJobs", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()

		node := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 2)
		job := insertAssignedJob(t, db, node.ID, database.JobStatusRunning)

		reaper := dispatch.NewReaper(db, testLogger(t))
		require.NoError(t, reaper.ReapOrphans(ctx))

		got, err := db.GetJobByID(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusRunning, got.Status)
	})
}
