package runner_test

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/slogtest"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbmem"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/runner"
)

type memorySink struct {
	mu     sync.Mutex
	events []database.InsertJobEventParams
	err    error
}

func (s *memorySink) WriteEvent(_ context.Context, event database.InsertJobEventParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.events = append(s.events, event)
	return nil
}

// ctxStore honors context cancellation on inserts the way a real SQL
// store does, which dbmem alone does not.
type ctxStore struct {
	database.Store
}

func (s ctxStore) InsertJobEvent(ctx context.Context, arg database.InsertJobEventParams) (database.JobEvent, error) {
	if err := ctx.Err(); err != nil {
		return database.JobEvent{}, err
	}
	return s.Store.InsertJobEvent(ctx, arg)
}

func insertJob(t testing.TB, db database.Store, playbook string) database.Job {
	t.Helper()
	job, err := db.InsertJob(context.Background(), database.InsertJobParams{
		ID:            uuid.New(),
		JobTemplateID: uuid.New(),
		Name:          "deploy",
		Playbook:      playbook,
		Status:        database.JobStatusRunning,
		CreatedBy:     uuid.New(),
		CreatedAt:     dbtime.Now(),
	})
	require.NoError(t, err)
	return job
}

// These tests exercise the failure paths, which do not need an
// ansible-playbook binary on the host.
func TestRun(t *testing.T) {
	t.Parallel()
	t.Run("EOFIsAlwaysLast", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()
		sink := &memorySink{}
		log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
		r := runner.New(db, log, runner.Options{
			WorkDir: t.TempDir(),
			Sinks:   []runner.Sink{sink},
		})
		// Malformed on purpose so the run fails whether or not
		// ansible-playbook is installed.
		job := insertJob(t, db, "not a playbook: [")

		err := r.Run(ctx, job)
		require.Error(t, err)

		events, err := db.GetJobEventsByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		last := events[len(events)-1]
		require.Equal(t, runner.EventTypeEOF, last.EventType)
		require.Equal(t, int32(len(events)), last.Counter)

		require.Equal(t, runner.EventTypeError, events[len(events)-2].EventType)
		require.NotEmpty(t, events[len(events)-2].Stdout)

		// Sinks get the same stream as the database.
		sink.mu.Lock()
		defer sink.mu.Unlock()
		require.Len(t, sink.events, len(events))
	})

	t.Run("CanceledRunStillRecordsEOF", func(t *testing.T) {
		t.Parallel()
		db := dbmem.New()
		log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
		r := runner.New(ctxStore{db}, log, runner.Options{WorkDir: t.TempDir()})
		job := insertJob(t, db, "- hosts: all\n")

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := r.Run(ctx, job)
		require.Error(t, err)

		events, err := db.GetJobEventsByJobID(context.Background(), job.ID)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		require.Equal(t, runner.EventTypeEOF, events[len(events)-1].EventType)
	})

	t.Run("BadExtraVars", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()
		log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
		r := runner.New(db, log, runner.Options{WorkDir: t.TempDir()})

		job, err := db.InsertJob(ctx, database.InsertJobParams{
			ID:            uuid.New(),
			JobTemplateID: uuid.New(),
			Name:          "deploy",
			Playbook:      "- hosts: all\n",
			ExtraVars:     []byte("{not json"),
			Status:        database.JobStatusRunning,
			CreatedBy:     uuid.New(),
			CreatedAt:     dbtime.Now(),
		})
		require.NoError(t, err)

		err = r.Run(ctx, job)
		require.Error(t, err)
		require.Contains(t, err.Error(), "extra vars")

		events, err := db.GetJobEventsByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.Equal(t, runner.EventTypeEOF, events[len(events)-1].EventType)
	})

	t.Run("FailingSinkDoesNotFailRun", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()
		db := dbmem.New()
		sink := &memorySink{err: xerrors.New("loki is down")}
		log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
		r := runner.New(db, log, runner.Options{
			WorkDir: t.TempDir(),
			Sinks:   []runner.Sink{sink},
		})
		job := insertJob(t, db, "- hosts: all\n")

		_ = r.Run(ctx, job)

		// Events still land in the database even when shipping fails.
		events, err := db.GetJobEventsByJobID(ctx, job.ID)
		require.NoError(t, err)
		require.NotEmpty(t, events)
		require.Equal(t, runner.EventTypeEOF, events[len(events)-1].EventType)
	})
}
