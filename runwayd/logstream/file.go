// Package logstream ships job events to external destinations: a
// compressed rotated file on disk and an optional Loki endpoint.
package logstream

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"golang.org/x/xerrors"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/runwayhq/runway/runwayd/database"
)

// Retention defaults for the on-disk event log.
const (
	DefaultMaxAgeDays = 14
	DefaultMaxSizeMB  = 300
	DefaultMaxBackups = 200
)

// eventLine is the JSON shape written to sinks, one object per line.
type eventLine struct {
	JobID     uuid.UUID `json:"job_id"`
	Counter   int32     `json:"counter"`
	EventType string    `json:"event_type"`
	Stdout    string    `json:"stdout,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func marshalEvent(event database.InsertJobEventParams) ([]byte, error) {
	line, err := json.Marshal(eventLine{
		JobID:     event.JobID,
		Counter:   event.Counter,
		EventType: event.EventType,
		Stdout:    event.Stdout,
		CreatedAt: event.CreatedAt,
	})
	if err != nil {
		return nil, xerrors.Errorf("marshal event: %w", err)
	}
	return append(line, '\n'), nil
}

type FileSinkOptions struct {
	// MaxAgeDays, MaxSizeMB, and MaxBackups bound the rotation. Zero
	// values use the package defaults.
	MaxAgeDays int
	MaxSizeMB  int
	MaxBackups int
}

// FileSink appends zstd-compressed JSON lines to a rotated file. Each
// line is its own zstd frame so a truncated file stays readable up to the
// cut.
type FileSink struct {
	mu      sync.Mutex
	file    *lumberjack.Logger
	encoder *zstd.Encoder
}

func NewFileSink(filename string, opts FileSinkOptions) (*FileSink, error) {
	if opts.MaxAgeDays == 0 {
		opts.MaxAgeDays = DefaultMaxAgeDays
	}
	if opts.MaxSizeMB == 0 {
		opts.MaxSizeMB = DefaultMaxSizeMB
	}
	if opts.MaxBackups == 0 {
		opts.MaxBackups = DefaultMaxBackups
	}
	encoder, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, xerrors.Errorf("create zstd encoder: %w", err)
	}
	return &FileSink{
		file: &lumberjack.Logger{
			Filename:   filename,
			MaxAge:     opts.MaxAgeDays,
			MaxSize:    opts.MaxSizeMB,
			MaxBackups: opts.MaxBackups,
		},
		encoder: encoder,
	}, nil
}

func (s *FileSink) WriteEvent(_ context.Context, event database.InsertJobEventParams) error {
	line, err := marshalEvent(event)
	if err != nil {
		return err
	}
	compressed := s.encoder.EncodeAll(line, nil)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(compressed); err != nil {
		return xerrors.Errorf("write event file: %w", err)
	}
	return nil
}

func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_ = s.encoder.Close()
	return s.file.Close()
}
