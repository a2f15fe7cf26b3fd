// Package dispatch assigns pending jobs to execution nodes and keeps the
// mesh honest: a heartbeat loop marks silent nodes offline and a reaper
// fails jobs stranded on nodes that disappeared.
package dispatch

import (
	"context"
	"database/sql"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/cryptorand"
	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/database/pubsub"

	"github.com/coder/quartz"
)

// Runner executes a job's playbook and streams its events into the
// database. Run blocks until the playbook finishes or ctx is canceled.
type Runner interface {
	Run(ctx context.Context, job database.Job) error
}

// DefaultInterval is the fallback poll cadence. The pubsub wakeup makes
// dispatch nearly immediate; the ticker only catches missed events.
const DefaultInterval = 10 * time.Second

type Options struct {
	Interval time.Duration
	Clock    quartz.Clock
}

// Dispatcher moves pending jobs onto ready execution nodes and runs them.
type Dispatcher struct {
	db     database.Store
	ps     pubsub.Pubsub
	runner Runner
	log    slog.Logger
	clock  quartz.Clock

	interval time.Duration
	wake     chan struct{}

	mu     sync.Mutex
	active map[uuid.UUID]context.CancelFunc
	wg     sync.WaitGroup
}

func New(db database.Store, ps pubsub.Pubsub, runner Runner, log slog.Logger, opts Options) *Dispatcher {
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Dispatcher{
		db:       db,
		ps:       ps,
		runner:   runner,
		log:      log.Named("dispatch"),
		clock:    opts.Clock,
		interval: opts.Interval,
		wake:     make(chan struct{}, 1),
		active:   map[uuid.UUID]context.CancelFunc{},
	}
}

// Run dispatches until ctx is canceled. It subscribes to job posted events
// for immediate wakeups and polls on the interval as a fallback.
func (d *Dispatcher) Run(ctx context.Context) error {
	cancelSub, err := d.ps.Subscribe(pubsub.EventJobPosted, func(_ context.Context, _ []byte) {
		select {
		case d.wake <- struct{}{}:
		default:
		}
	})
	if err != nil {
		return xerrors.Errorf("subscribe to job posted events: %w", err)
	}
	defer cancelSub()

	d.clock.TickerFunc(ctx, d.interval, func() error {
		select {
		case d.wake <- struct{}{}:
		default:
		}
		return nil
	}, "dispatch")

	for {
		select {
		case <-ctx.Done():
			d.wg.Wait()
			return ctx.Err()
		case <-d.wake:
			if err := d.runOnce(ctx); err != nil {
				d.log.Error(ctx, "dispatch pass failed", slog.Error(err))
			}
		}
	}
}

func (d *Dispatcher) runOnce(ctx context.Context) error {
	d.propagateCancels(ctx)

	pending, err := d.db.GetJobs(ctx, database.GetJobsParams{
		Status: database.JobStatusPending,
	})
	if err != nil {
		return xerrors.Errorf("get pending jobs: %w", err)
	}
	if len(pending) == 0 {
		return nil
	}

	slots, err := d.freeSlots(ctx)
	if err != nil {
		return err
	}

	for _, job := range pending {
		instanceID, ok := pickInstance(slots)
		if !ok {
			d.log.Debug(ctx, "no execution capacity available",
				slog.F("pending", len(pending)),
			)
			return nil
		}
		slots[instanceID]--

		waiting, err := d.db.UpdateJobStatus(ctx, database.UpdateJobStatusParams{
			ID:           job.ID,
			Status:       database.JobStatusWaiting,
			InstanceID:   uuid.NullUUID{UUID: instanceID, Valid: true},
			FromStatuses: []database.JobStatus{database.JobStatusPending},
		})
		if xerrors.Is(err, sql.ErrNoRows) {
			// Canceled between the read and the assignment.
			slots[instanceID]++
			continue
		}
		if err != nil {
			d.log.Error(ctx, "assign job", slog.F("job_id", job.ID), slog.Error(err))
			continue
		}
		d.startJob(ctx, waiting)
	}
	return nil
}

// freeSlots returns remaining capacity per ready execution node. Hop and
// control nodes never receive jobs.
func (d *Dispatcher) freeSlots(ctx context.Context) (map[uuid.UUID]int32, error) {
	instances, err := d.db.GetInstances(ctx)
	if err != nil {
		return nil, xerrors.Errorf("get instances: %w", err)
	}
	slots := map[uuid.UUID]int32{}
	for _, instance := range instances {
		if instance.NodeType != database.NodeTypeExecution {
			continue
		}
		if instance.NodeState != database.NodeStateReady {
			continue
		}
		slots[instance.ID] = instance.Capacity
	}

	for _, status := range []database.JobStatus{database.JobStatusWaiting, database.JobStatusRunning} {
		jobs, err := d.db.GetJobs(ctx, database.GetJobsParams{Status: status})
		if err != nil {
			return nil, xerrors.Errorf("get %s jobs: %w", status, err)
		}
		for _, job := range jobs {
			if !job.InstanceID.Valid {
				continue
			}
			if _, ok := slots[job.InstanceID.UUID]; ok {
				slots[job.InstanceID.UUID]--
			}
		}
	}
	return slots, nil
}

// pickInstance returns the node with the most free capacity.
func pickInstance(slots map[uuid.UUID]int32) (uuid.UUID, bool) {
	var (
		best     uuid.UUID
		bestFree int32
	)
	for id, free := range slots {
		if free > bestFree {
			best, bestFree = id, free
		}
	}
	return best, bestFree > 0
}

// startJob transitions the job to running and executes it in a goroutine.
func (d *Dispatcher) startJob(ctx context.Context, job database.Job) {
	runCtx, cancel := context.WithCancel(ctx)
	d.mu.Lock()
	d.active[job.ID] = cancel
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		defer func() {
			d.mu.Lock()
			delete(d.active, job.ID)
			d.mu.Unlock()
			cancel()
		}()

		workUnitID := newWorkUnitID()
		running, err := d.db.UpdateJobStatus(ctx, database.UpdateJobStatusParams{
			ID:           job.ID,
			Status:       database.JobStatusRunning,
			WorkUnitID:   sql.NullString{String: workUnitID, Valid: true},
			StartedAt:    sql.NullTime{Time: dbtime.Now(), Valid: true},
			FromStatuses: []database.JobStatus{database.JobStatusWaiting},
		})
		if xerrors.Is(err, sql.ErrNoRows) {
			// Canceled while waiting; the cancel endpoint already
			// finalized the job.
			return
		}
		if err != nil {
			d.log.Error(ctx, "mark job running", slog.F("job_id", job.ID), slog.Error(err))
			return
		}
		d.log.Info(ctx, "job started",
			slog.F("job_id", running.ID),
			slog.F("instance_id", running.InstanceID.UUID),
			slog.F("work_unit_id", workUnitID),
		)

		runErr := d.runner.Run(runCtx, running)
		d.finishJob(running, runErr)
	}()
}

// finishJob records the terminal status. It uses a fresh context so a
// shutting down dispatcher still persists the outcome.
func (d *Dispatcher) finishJob(job database.Job, runErr error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	params := database.UpdateJobStatusParams{
		ID:          job.ID,
		Status:      database.JobStatusSuccessful,
		CompletedAt: sql.NullTime{Time: dbtime.Now(), Valid: true},
	}
	switch {
	case xerrors.Is(runErr, context.Canceled):
		params.Status = database.JobStatusCanceled
		params.Explanation = "Canceled while running."
	case runErr != nil:
		params.Status = database.JobStatusFailed
		params.Explanation = runErr.Error()
	}

	// A cancel requested through the API already set the status; don't
	// overwrite it with failed when the runner unwinds.
	current, err := d.db.GetJobByID(ctx, job.ID)
	if err == nil && current.Status == database.JobStatusCanceled {
		params.Status = database.JobStatusCanceled
		params.Explanation = current.Explanation
	}

	if _, err := d.db.UpdateJobStatus(ctx, params); err != nil {
		d.log.Error(ctx, "record job outcome", slog.F("job_id", job.ID), slog.Error(err))
		return
	}
	d.log.Info(ctx, "job finished",
		slog.F("job_id", job.ID),
		slog.F("status", params.Status),
	)
}

// propagateCancels cancels the run context of any active job whose status
// was flipped to canceled through the API.
func (d *Dispatcher) propagateCancels(ctx context.Context) {
	d.mu.Lock()
	ids := make([]uuid.UUID, 0, len(d.active))
	for id := range d.active {
		ids = append(ids, id)
	}
	d.mu.Unlock()

	for _, id := range ids {
		job, err := d.db.GetJobByID(ctx, id)
		if err != nil {
			continue
		}
		if job.Status != database.JobStatusCanceled {
			continue
		}
		d.mu.Lock()
		cancel, ok := d.active[id]
		d.mu.Unlock()
		if ok {
			cancel()
		}
	}
}

func newWorkUnitID() string {
	id, err := cryptorand.HexString(16)
	if err != nil {
		return uuid.NewString()
	}
	return id
}
