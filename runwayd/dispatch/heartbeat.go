package dispatch

import (
	"context"
	"database/sql"
	"time"

	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"

	"github.com/coder/quartz"
)

const (
	// DefaultHeartbeatInterval is how often the control plane scans for
	// silent nodes.
	DefaultHeartbeatInterval = 30 * time.Second
	// DefaultLostAfter is how long a node may go without a health report
	// before it is marked offline and its jobs are reaped.
	DefaultLostAfter = 2 * time.Minute
)

type HeartbeatOptions struct {
	Interval  time.Duration
	LostAfter time.Duration
	Clock     quartz.Clock
}

// Heartbeat marks nodes offline when they stop reporting health and hands
// their stranded jobs to the reaper.
type Heartbeat struct {
	db     database.Store
	log    slog.Logger
	reaper *Reaper
	clock  quartz.Clock

	interval  time.Duration
	lostAfter time.Duration
}

func NewHeartbeat(db database.Store, log slog.Logger, opts HeartbeatOptions) *Heartbeat {
	if opts.Interval == 0 {
		opts.Interval = DefaultHeartbeatInterval
	}
	if opts.LostAfter == 0 {
		opts.LostAfter = DefaultLostAfter
	}
	if opts.Clock == nil {
		opts.Clock = quartz.NewReal()
	}
	return &Heartbeat{
		db:        db,
		log:       log.Named("heartbeat"),
		reaper:    NewReaper(db, log),
		clock:     opts.Clock,
		interval:  opts.Interval,
		lostAfter: opts.LostAfter,
	}
}

// Run scans on every tick until ctx is canceled.
func (h *Heartbeat) Run(ctx context.Context) {
	h.clock.TickerFunc(ctx, h.interval, func() error {
		if err := h.runOnce(ctx); err != nil {
			h.log.Error(ctx, "heartbeat pass failed", slog.Error(err))
		}
		return nil
	}, "heartbeat")
}

func (h *Heartbeat) runOnce(ctx context.Context) error {
	instances, err := h.db.GetInstances(ctx)
	if err != nil {
		return xerrors.Errorf("get instances: %w", err)
	}

	now := h.clock.Now()
	for _, instance := range instances {
		if instance.NodeState == database.NodeStateOffline {
			continue
		}
		if !instance.IsLost(now, h.lostAfter) {
			continue
		}

		h.log.Warn(ctx, "instance lost",
			slog.F("instance_id", instance.ID),
			slog.F("hostname", instance.Hostname),
			slog.F("last_seen_at", instance.LastSeenAt.Time),
		)
		_, err := h.db.UpdateInstanceHealth(ctx, database.UpdateInstanceHealthParams{
			ID:         instance.ID,
			NodeState:  database.NodeStateOffline,
			Capacity:   instance.Capacity,
			Version:    instance.Version,
			Errors:     "missed heartbeat deadline",
			LastSeenAt: sql.NullTime{Time: instance.LastSeenAt.Time, Valid: instance.LastSeenAt.Valid},
			UpdatedAt:  now,
		})
		if err != nil {
			h.log.Error(ctx, "mark instance offline",
				slog.F("instance_id", instance.ID),
				slog.Error(err),
			)
			continue
		}

		if err := h.reaper.ReapInstance(ctx, instance.ID); err != nil {
			h.log.Error(ctx, "reap jobs of lost instance",
				slog.F("instance_id", instance.ID),
				slog.Error(err),
			)
		}
	}
	return nil
}
