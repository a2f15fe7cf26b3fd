package logstream

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/xerrors"

	"cdr.dev/slog/v3"

	"github.com/runwayhq/runway/runwayd/database"
)

const (
	lokiPushPath = "/loki/api/v1/push"

	// defaultBatchSize triggers an early flush when enough events queue
	// up between ticks.
	defaultBatchSize     = 100
	defaultFlushInterval = 2 * time.Second
)

type LokiSinkOptions struct {
	// Labels are static stream labels attached to every pushed line.
	Labels map[string]string

	BatchSize     int
	FlushInterval time.Duration
	HTTPClient    *http.Client
}

// LokiSink batches job events and pushes them to a Loki endpoint. Pushes
// are retried with exponential backoff before a batch is dropped.
type LokiSink struct {
	url    string
	labels map[string]string
	client *http.Client
	log    slog.Logger

	batchSize     int
	flushInterval time.Duration

	mu      sync.Mutex
	pending [][2]string
	flush   chan struct{}
	closed  chan struct{}
	done    chan struct{}
}

func NewLokiSink(ctx context.Context, log slog.Logger, lokiURL string, opts LokiSinkOptions) *LokiSink {
	if opts.BatchSize == 0 {
		opts.BatchSize = defaultBatchSize
	}
	if opts.FlushInterval == 0 {
		opts.FlushInterval = defaultFlushInterval
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 10 * time.Second}
	}
	if opts.Labels == nil {
		opts.Labels = map[string]string{}
	}
	if _, ok := opts.Labels["app"]; !ok {
		opts.Labels["app"] = "runway"
	}

	s := &LokiSink{
		url:           lokiURL + lokiPushPath,
		labels:        opts.Labels,
		client:        opts.HTTPClient,
		log:           log.Named("loki"),
		batchSize:     opts.BatchSize,
		flushInterval: opts.FlushInterval,
		flush:         make(chan struct{}, 1),
		closed:        make(chan struct{}),
		done:          make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *LokiSink) WriteEvent(_ context.Context, event database.InsertJobEventParams) error {
	line, err := marshalEvent(event)
	if err != nil {
		return err
	}
	// Loki values are [timestamp in ns, line] pairs.
	value := [2]string{
		strconv.FormatInt(event.CreatedAt.UnixNano(), 10),
		string(bytes.TrimRight(line, "\n")),
	}

	s.mu.Lock()
	s.pending = append(s.pending, value)
	full := len(s.pending) >= s.batchSize
	s.mu.Unlock()

	if full {
		select {
		case s.flush <- struct{}{}:
		default:
		}
	}
	return nil
}

// Close flushes pending events and stops the background pusher.
func (s *LokiSink) Close() error {
	close(s.closed)
	<-s.done
	return nil
}

func (s *LokiSink) run(ctx context.Context) {
	defer close(s.done)
	ticker := time.NewTicker(s.flushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closed:
			s.push(ctx)
			return
		case <-ticker.C:
			s.push(ctx)
		case <-s.flush:
			s.push(ctx)
		}
	}
}

func (s *LokiSink) push(ctx context.Context) {
	s.mu.Lock()
	batch := s.pending
	s.pending = nil
	s.mu.Unlock()
	if len(batch) == 0 {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"streams": []map[string]interface{}{{
			"stream": s.labels,
			"values": batch,
		}},
	})
	if err != nil {
		s.log.Error(ctx, "marshal loki payload", slog.Error(err))
		return
	}

	bo := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 4), ctx)
	err = backoff.Retry(func() error {
		return s.send(ctx, payload)
	}, bo)
	if err != nil {
		s.log.Warn(ctx, "drop loki batch",
			slog.F("events", len(batch)),
			slog.Error(err),
		)
	}
}

func (s *LokiSink) send(ctx context.Context, payload []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(payload))
	if err != nil {
		return backoff.Permanent(err)
	}
	req.Header.Set("Content-Type", "application/json")

	res, err := s.client.Do(req)
	if err != nil {
		return xerrors.Errorf("push to loki: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode >= http.StatusBadRequest {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 1024))
		err := xerrors.Errorf("loki returned %d: %s", res.StatusCode, body)
		if res.StatusCode < http.StatusInternalServerError && res.StatusCode != http.StatusTooManyRequests {
			return backoff.Permanent(err)
		}
		return err
	}
	return nil
}
