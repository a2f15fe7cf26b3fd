package dispatch

import (
	"context"
	"database/sql"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
)

// Reaper fails jobs stranded on instances that went away. A stranded job
// would otherwise sit in waiting or running forever, holding capacity.
type Reaper struct {
	db  database.Store
	log slog.Logger
}

func NewReaper(db database.Store, log slog.Logger) *Reaper {
	return &Reaper{
		db:  db,
		log: log.Named("reaper"),
	}
}

// ReapInstance fails every active job assigned to the instance.
func (r *Reaper) ReapInstance(ctx context.Context, instanceID uuid.UUID) error {
	for _, status := range []database.JobStatus{database.JobStatusWaiting, database.JobStatusRunning} {
		jobs, err := r.db.GetJobs(ctx, database.GetJobsParams{
			Status:     status,
			InstanceID: instanceID,
		})
		if err != nil {
			return xerrors.Errorf("get %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			if err := r.reap(ctx, job, "Execution node was lost."); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReapOrphans fails active jobs whose instance no longer exists or is
// offline. Run after startup to clean up jobs from a previous control
// plane crash.
func (r *Reaper) ReapOrphans(ctx context.Context) error {
	instances, err := r.db.GetInstances(ctx)
	if err != nil {
		return xerrors.Errorf("get instances: %w", err)
	}
	alive := map[uuid.UUID]bool{}
	for _, instance := range instances {
		alive[instance.ID] = instance.NodeState != database.NodeStateOffline
	}

	for _, status := range []database.JobStatus{database.JobStatusWaiting, database.JobStatusRunning} {
		jobs, err := r.db.GetJobs(ctx, database.GetJobsParams{Status: status})
		if err != nil {
			return xerrors.Errorf("get %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			if !job.InstanceID.Valid {
				continue
			}
			if alive[job.InstanceID.UUID] {
				continue
			}
			if err := r.reap(ctx, job, "Execution node is gone."); err != nil {
				return err
			}
		}
	}
	return nil
}

func (r *Reaper) reap(ctx context.Context, job database.Job, explanation string) error {
	_, err := r.db.UpdateJobStatus(ctx, database.UpdateJobStatusParams{
		ID:          job.ID,
		Status:      database.JobStatusFailed,
		Explanation: explanation,
		CompletedAt: sql.NullTime{Time: dbtime.Now(), Valid: true},
	})
	if err != nil {
		return xerrors.Errorf("fail job %s: %w", job.ID, err)
	}
	r.log.Warn(ctx, "job reaped",
		slog.F("job_id", job.ID),
		slog.F("instance_id", job.InstanceID.UUID),
		slog.F("explanation", explanation),
	)
	return nil
}
