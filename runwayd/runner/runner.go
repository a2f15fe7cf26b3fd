// Package runner executes job playbooks with ansible-playbook and turns
// the results into ordered job events.
package runner

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/apenella/go-ansible/pkg/execute"
	"github.com/apenella/go-ansible/pkg/playbook"
	"github.com/apenella/go-ansible/pkg/stdoutcallback/results"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
)

// Event types recorded for a job. EventTypeEOF is always the last event of
// a finished job.
const (
	EventTypeOK      = "runner_on_ok"
	EventTypeFailed  = "runner_on_failed"
	EventTypeSkipped = "runner_on_skipped"
	EventTypeError   = "error"
	EventTypeEOF     = "EOF"
)

// Sink receives job events as they are produced. Implementations must be
// safe for concurrent use across jobs.
type Sink interface {
	WriteEvent(ctx context.Context, event database.InsertJobEventParams) error
}

type Options struct {
	// WorkDir is where per-job scratch directories are created. Defaults
	// to the OS temp dir.
	WorkDir string
	// Sinks receive every event in addition to the database.
	Sinks []Sink
}

// AnsibleRunner runs playbooks with ansible-playbook via go-ansible.
type AnsibleRunner struct {
	db      database.Store
	log     slog.Logger
	workDir string
	sinks   []Sink
}

func New(db database.Store, log slog.Logger, opts Options) *AnsibleRunner {
	if opts.WorkDir == "" {
		opts.WorkDir = os.TempDir()
	}
	return &AnsibleRunner{
		db:      db,
		log:     log.Named("runner"),
		workDir: opts.WorkDir,
		sinks:   opts.Sinks,
	}
}

// Run executes the job's playbook and records its events. The final EOF
// event is written even when the playbook fails, so readers can tell a
// finished stream from a truncated one.
func (r *AnsibleRunner) Run(ctx context.Context, job database.Job) error {
	counter := int32(0)
	emit := func(eventType, stdout string) {
		counter++
		err := r.writeEvent(ctx, database.InsertJobEventParams{
			JobID:     job.ID,
			Counter:   counter,
			EventType: eventType,
			Stdout:    stdout,
			CreatedAt: dbtime.Now(),
		})
		if err != nil {
			r.log.Error(ctx, "write job event",
				slog.F("job_id", job.ID),
				slog.F("counter", counter),
				slog.Error(err),
			)
		}
	}
	defer emit(EventTypeEOF, "")

	runErr := r.runPlaybook(ctx, job, emit)
	if runErr != nil {
		emit(EventTypeError, runErr.Error())
		return runErr
	}
	return nil
}

func (r *AnsibleRunner) runPlaybook(ctx context.Context, job database.Job, emit func(eventType, stdout string)) error {
	dir, err := os.MkdirTemp(r.workDir, "runway-job-")
	if err != nil {
		return xerrors.Errorf("create job directory: %w", err)
	}
	defer os.RemoveAll(dir)

	playbookPath := filepath.Join(dir, "playbook.yml")
	if err := os.WriteFile(playbookPath, []byte(job.Playbook), 0o600); err != nil {
		return xerrors.Errorf("write playbook: %w", err)
	}
	inventory := job.Inventory
	if inventory == "" {
		inventory = "localhost ansible_connection=local\n"
	}
	inventoryPath := filepath.Join(dir, "inventory.ini")
	if err := os.WriteFile(inventoryPath, []byte(inventory), 0o600); err != nil {
		return xerrors.Errorf("write inventory: %w", err)
	}

	extraVars := map[string]interface{}{}
	if len(job.ExtraVars) > 0 {
		if err := json.Unmarshal(job.ExtraVars, &extraVars); err != nil {
			return xerrors.Errorf("parse extra vars: %w", err)
		}
	}

	var buff bytes.Buffer
	pb := &playbook.AnsiblePlaybookCmd{
		Playbooks: []string{playbookPath},
		Exec: execute.NewDefaultExecute(
			execute.WithWrite(io.Writer(&buff)),
		),
		StdoutCallback: "json",
		Options: &playbook.AnsiblePlaybookOptions{
			Inventory: inventoryPath,
			ExtraVars: extraVars,
		},
	}

	runErr := pb.Run(ctx)
	if ctx.Err() != nil {
		return ctx.Err()
	}

	// Parse whatever output exists even on failure; a playbook that ran
	// three tasks and died still produced three events.
	res, parseErr := results.ParseJSONResultsStream(&buff)
	if parseErr == nil {
		emitTaskEvents(res, emit)
	}

	if runErr != nil {
		return xerrors.Errorf("run playbook: %w", runErr)
	}
	if parseErr != nil {
		return xerrors.Errorf("parse playbook results: %w", parseErr)
	}
	return nil
}

func emitTaskEvents(res *results.AnsiblePlaybookJSONResults, emit func(eventType, stdout string)) {
	for _, play := range res.Plays {
		for _, task := range play.Tasks {
			for host, content := range task.Hosts {
				eventType := EventTypeOK
				switch {
				case content.Failed:
					eventType = EventTypeFailed
				case content.Skipped:
					eventType = EventTypeSkipped
				}
				emit(eventType, fmt.Sprintf("%s | %s", task.Task.Name, host))
			}
		}
	}
}

func (r *AnsibleRunner) writeEvent(ctx context.Context, event database.InsertJobEventParams) error {
	// The error and EOF events of a canceled run arrive after ctx is
	// done. Use a fresh context so they still persist, like the
	// dispatcher does for the status row.
	if ctx.Err() != nil {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
	}

	inserted, err := r.db.InsertJobEvent(ctx, event)
	if err != nil {
		return xerrors.Errorf("insert job event: %w", err)
	}
	for _, sink := range r.sinks {
		if err := sink.WriteEvent(ctx, event); err != nil {
			r.log.Warn(ctx, "ship job event",
				slog.F("job_id", event.JobID),
				slog.F("event_id", inserted.ID),
				slog.Error(err),
			)
		}
	}
	return nil
}
