package logstream_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/require"

	"cdr.dev/slog/v3"
	"cdr.dev/slog/v3/sloggers/slogtest"

	"github.com/runwayhq/runway/runwayd/database"
	"github.com/runwayhq/runway/runwayd/database/dbtime"
	"github.com/runwayhq/runway/runwayd/logstream"
)

func testEvent(jobID uuid.UUID, counter int32, eventType, stdout string) database.InsertJobEventParams {
	return database.InsertJobEventParams{
		JobID:     jobID,
		Counter:   counter,
		EventType: eventType,
		Stdout:    stdout,
		CreatedAt: dbtime.Now(),
	}
}

func TestFileSink(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "events.log")
	sink, err := logstream.NewFileSink(path, logstream.FileSinkOptions{})
	require.NoError(t, err)

	jobID := uuid.New()
	require.NoError(t, sink.WriteEvent(ctx, testEvent(jobID, 1, "runner_on_ok", "ping | localhost")))
	require.NoError(t, sink.WriteEvent(ctx, testEvent(jobID, 2, "EOF", "")))
	require.NoError(t, sink.Close())

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	// Frames are concatenated, a single reader decodes them all.
	decoder, err := zstd.NewReader(bytes.NewReader(raw))
	require.NoError(t, err)
	defer decoder.Close()

	var lines []map[string]any
	scanner := bufio.NewScanner(decoder)
	for scanner.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &line))
		lines = append(lines, line)
	}
	require.NoError(t, scanner.Err())
	require.Len(t, lines, 2)

	require.Equal(t, jobID.String(), lines[0]["job_id"])
	require.Equal(t, "runner_on_ok", lines[0]["event_type"])
	require.Equal(t, "ping | localhost", lines[0]["stdout"])
	require.Equal(t, "EOF", lines[1]["event_type"])
	_, hasStdout := lines[1]["stdout"]
	require.False(t, hasStdout, "empty stdout should be omitted")
}

type lokiPush struct {
	Streams []struct {
		Stream map[string]string `json:"stream"`
		Values [][2]string       `json:"values"`
	} `json:"streams"`
}

func TestLokiSink(t *testing.T) {
	t.Parallel()
	t.Run("PushesBatch", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		var (
			mu     sync.Mutex
			pushes []lokiPush
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, "/loki/api/v1/push", r.URL.Path)
			require.Equal(t, "application/json", r.Header.Get("Content-Type"))
			var push lokiPush
			require.NoError(t, json.NewDecoder(r.Body).Decode(&push))
			mu.Lock()
			pushes = append(pushes, push)
			mu.Unlock()
			w.WriteHeader(http.StatusNoContent)
		}))
		defer srv.Close()

		log := slogtest.Make(t, nil).Leveled(slog.LevelDebug)
		sink := logstream.NewLokiSink(ctx, log, srv.URL, logstream.LokiSinkOptions{
			Labels:        map[string]string{"cluster": "test"},
			FlushInterval: 25 * time.Millisecond,
		})

		jobID := uuid.New()
		require.NoError(t, sink.WriteEvent(ctx, testEvent(jobID, 1, "runner_on_ok", "setup | web-1")))
		require.NoError(t, sink.WriteEvent(ctx, testEvent(jobID, 2, "EOF", "")))
		require.NoError(t, sink.Close())

		mu.Lock()
		defer mu.Unlock()
		require.NotEmpty(t, pushes)
		var values [][2]string
		for _, push := range pushes {
			require.Len(t, push.Streams, 1)
			require.Equal(t, "test", push.Streams[0].Stream["cluster"])
			require.Equal(t, "runway", push.Streams[0].Stream["app"])
			values = append(values, push.Streams[0].Values...)
		}
		require.Len(t, values, 2)

		var line map[string]any
		require.NoError(t, json.Unmarshal([]byte(values[0][1]), &line))
		require.Equal(t, jobID.String(), line["job_id"])
		require.Equal(t, "runner_on_ok", line["event_type"])
	})

	t.Run("DropsBatchOnPermanentError", func(t *testing.T) {
		t.Parallel()
		ctx := context.Background()

		var (
			mu       sync.Mutex
			requests int
		)
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			mu.Lock()
			requests++
			mu.Unlock()
			w.WriteHeader(http.StatusBadRequest)
		}))
		defer srv.Close()

		log := slogtest.Make(t, &slogtest.Options{IgnoreErrors: true}).Leveled(slog.LevelDebug)
		sink := logstream.NewLokiSink(ctx, log, srv.URL, logstream.LokiSinkOptions{
			FlushInterval: time.Hour,
		})
		require.NoError(t, sink.WriteEvent(ctx, testEvent(uuid.New(), 1, "runner_on_failed", "boom")))
		require.NoError(t, sink.Close())

		mu.Lock()
		defer mu.Unlock()
		// 400 is not retried.
		require.Equal(t, 1, requests)
	})
}
