package dispatch_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/slogtest"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/database/pubsub"
	"github.com/runwayhq/runway/runwayd/dispatch"
	"github.com/runwayhq/runway/testutil"
)

type fakeRunner struct {
	mu   sync.Mutex
	ran  []uuid.UUID
	err  error
	wait chan struct{}
}

func (f *fakeRunner) Run(ctx context.Context, job database.Job) error {
	f.mu.Lock()
	f.ran = append(f.ran, job.ID)
	f.mu.Unlock()
	if f.wait != nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.wait:
		}
	}
	return f.err
}

func (f *fakeRunner) ranJobs() []uuid.UUID {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]uuid.UUID{}, f.ran...)
}

// cancelOnReadStore cancels the job right after the dispatcher reads it
// as pending, landing the cancel inside the read-then-assign window.
type cancelOnReadStore struct {
	database.Store
	jobID uuid.UUID

	mu   sync.Mutex
	done bool
}

func (s *cancelOnReadStore) GetJobs(ctx context.Context, params database.GetJobsParams) ([]database.Job, error) {
	jobs, err := s.Store.GetJobs(ctx, params)
	if err != nil || params.Status != database.JobStatusPending {
		return jobs, err
	}
	s.mu.Lock()
	fire := !s.done
	s.done = true
	s.mu.Unlock()
	if fire {
		_, err := s.Store.UpdateJobStatus(ctx, database.UpdateJobStatusParams{
			ID:          s.jobID,
			Status:      database.JobStatusCanceled,
			Explanation: "Canceled by user request.",
		})
		if err != nil {
			return nil, err
		}
	}
	return jobs, nil
}

func (s *cancelOnReadStore) fired() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.done
}

func testLogger(t testing.TB) slog.Logger {
	return slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
}

func insertInstance(t testing.TB, db database.Store, nodeType database.NodeType, state database.NodeState, capacity int32) database.Instance {
	t.Helper()
	now := dbtime.Now()
	instance, err := db.UpsertInstance(context.Background(), database.UpsertInstanceParams{
		ID:         uuid.New(),
		Hostname:   uuid.NewString(),
		NodeType:   nodeType,
		NodeState:  state,
		Capacity:   capacity,
		LastSeenAt: sql.NullTime{Time: now, Valid: true},
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	require.NoError(t, err)
	return instance
}

func insertPendingJob(t testing.TB, db database.Store) database.Job {
	t.Helper()
	job, err := db.InsertJob(context.Background(), database.InsertJobParams{
		ID:            uuid.New(),
		JobTemplateID: uuid.New(),
		Name:          "deploy",
		Playbook:      "- hosts: all\n  tasks: []\n",
		Status:        database.JobStatusPending,
		CreatedBy:     uuid.New(),
		CreatedAt:     dbtime.Now(),
	})
	require.NoError(t, err)
	return job
}

func startDispatcher(t testing.TB, db database.Store, ps pubsub.Pubsub, runner dispatch.Runner) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	d := dispatch.New(db, ps, runner, testLogger(t), dispatch.Options{
		// Dispatch is driven by pubsub in these tests; keep the poll out
		// of the way.
		Interval: time.Hour,
	})
	go func() {
		defer close(done)
		err := d.Run(ctx)
		if !xerrors.Is(err, context.Canceled) {
			t.Errorf("dispatcher exited: %v", err)
		}
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestDispatcher(t *testing.T) {
	t.Parallel()
	t.Run("RunsPendingJob", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		runner := &fakeRunner{}
		instance := insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 2)
		job := insertPendingJob(t, db)
		startDispatcher(t, db, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String())))

		require.Eventually(t, func() bool {
			got, err := db.GetJobByID(context.Background(), job.ID)
			return err == nil && got.Status == database.JobStatusSuccessful
		}, testutil.WaitShort, testutil.IntervalFast)

		got, err := db.GetJobByID(context.Background(), job.ID)
		require.NoError(t, err)
		require.Equal(t, instance.ID, got.InstanceID.UUID)
		require.True(t, got.WorkUnitID.Valid)
		require.True(t, got.StartedAt.Valid)
		require.True(t, got.CompletedAt.Valid)
		require.Equal(t, []uuid.UUID{job.ID}, runner.ranJobs())
	})

	t.Run("FailedRun", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		runner := &fakeRunner{err: xerrors.New("playbook exploded")}
		insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 1)
		job := insertPendingJob(t, db)
		startDispatcher(t, db, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String())))

		require.Eventually(t, func() bool {
			got, err := db.GetJobByID(context.Background(), job.ID)
			return err == nil && got.Status == database.JobStatusFailed
		}, testutil.WaitShort, testutil.IntervalFast)

		got, err := db.GetJobByID(context.Background(), job.ID)
		require.NoError(t, err)
		require.Contains(t, got.Explanation, "playbook exploded")
	})

	t.Run("IgnoresHopAndControlNodes", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		runner := &fakeRunner{}
		insertInstance(t, db, database.NodeTypeHop, database.NodeStateReady, 4)
		insertInstance(t, db, database.NodeTypeControl, database.NodeStateReady, 4)
		job := insertPendingJob(t, db)
		startDispatcher(t, db, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String())))

		// Give the dispatcher a chance to misbehave.
		time.Sleep(250 * time.Millisecond)
		got, err := db.GetJobByID(context.Background(), job.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusPending, got.Status)
		require.Empty(t, runner.ranJobs())
	})

	t.Run("RespectsCapacity", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		release := make(chan struct{})
		runner := &fakeRunner{wait: release}
		insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 1)
		first := insertPendingJob(t, db)
		second := insertPendingJob(t, db)
		startDispatcher(t, db, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(first.ID.String())))

		require.Eventually(t, func() bool {
			return len(runner.ranJobs()) == 1
		}, testutil.WaitShort, testutil.IntervalFast)

		// The node is saturated, so the second job must stay pending.
		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(second.ID.String())))
		time.Sleep(250 * time.Millisecond)
		require.Len(t, runner.ranJobs(), 1)

		close(release)
		// The slot frees asynchronously when the first job finishes, so
		// keep nudging the dispatcher until the second job runs.
		require.Eventually(t, func() bool {
			_ = ps.Publish(pubsub.EventJobPosted, []byte(second.ID.String()))
			return len(runner.ranJobs()) == 2
		}, testutil.WaitShort, testutil.IntervalFast)
	})

	t.Run("CancelDuringAssignmentWins", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		runner := &fakeRunner{}
		insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 1)
		job := insertPendingJob(t, db)

		// Cancel the job after the dispatcher has read it as pending but
		// before it assigns it.
		race := &cancelOnReadStore{Store: db, jobID: job.ID}
		startDispatcher(t, race, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String())))

		require.Eventually(t, func() bool {
			return race.fired()
		}, testutil.WaitShort, testutil.IntervalFast)

		// Give the dispatcher time to misbehave, then check the cancel
		// stuck and the job never ran.
		time.Sleep(250 * time.Millisecond)
		got, err := db.GetJobByID(context.Background(), job.ID)
		require.NoError(t, err)
		require.Equal(t, database.JobStatusCanceled, got.Status)
		require.Empty(t, runner.ranJobs())
	})

	t.Run("CancelPropagates", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		ps := pubsub.NewInMemory()
		runner := &fakeRunner{wait: make(chan struct{})}
		insertInstance(t, db, database.NodeTypeExecution, database.NodeStateReady, 1)
		job := insertPendingJob(t, db)
		startDispatcher(t, db, ps, runner)

		require.NoError(t, ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String())))
		require.Eventually(t, func() bool {
			return len(runner.ranJobs()) == 1
		}, testutil.WaitShort, testutil.IntervalFast)

		// Flip the status like the cancel endpoint does, then wake the
		// dispatcher so it notices.
		_, err := db.UpdateJobStatus(context.Background(), database.UpdateJobStatusParams{
			ID:          job.ID,
			Status:      database.JobStatusCanceled,
			Explanation: "Canceled by user request.",
		})
		require.NoError(t, err)

		require.Eventually(t, func() bool {
			_ = ps.Publish(pubsub.EventJobPosted, []byte(job.ID.String()))
			got, err := db.GetJobByID(context.Background(), job.ID)
			return err == nil && got.Status == database.JobStatusCanceled && got.CompletedAt.Valid
		}, testutil.WaitShort, testutil.IntervalFast)
	})
}
