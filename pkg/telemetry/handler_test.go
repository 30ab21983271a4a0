package telemetry

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"

	"github.com/soundprediction/likeness/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParquetHandler(t *testing.T) {
	dir := t.TempDir()
	var out bytes.Buffer
	h, err := NewParquetHandler(slog.NewTextHandler(&out, &slog.HandlerOptions{Level: slog.LevelDebug}), dir)
	require.NoError(t, err)

	logger := slog.New(h).With("component", "scoring").WithGroup("task")

	ctx := context.WithValue(context.Background(), types.ContextKeyRunID, "run-1")
	ctx = context.WithValue(ctx, types.ContextKeyStudentID, "S1")
	ctx = context.WithValue(ctx, types.ContextKeyQuestionID, "Q2")

	logger.InfoContext(ctx, "scored", "score", 0.4)
	logger.ErrorContext(ctx, "backend failed", "error", errors.New("connection refused"))

	assert.Contains(t, out.String(), "scored", "every record reaches the wrapped handler")
	assert.Contains(t, out.String(), "backend failed")

	records, err := ReadErrors(dir)
	require.NoError(t, err)
	assert.Empty(t, records, "records stay buffered until flushed")

	require.NoError(t, h.Close())

	records, err = ReadErrors(dir)
	require.NoError(t, err)
	require.Len(t, records, 1, "only error records are persisted")

	r := records[0]
	assert.Equal(t, "backend failed", r.Message)
	assert.Equal(t, "ERROR", r.Level)
	assert.Equal(t, "run-1", r.RunID)
	assert.Equal(t, "S1", r.StudentID)
	assert.Equal(t, "Q2", r.QuestionID)
	assert.NotEmpty(t, r.ID)

	var attrs map[string]any
	require.NoError(t, json.Unmarshal([]byte(r.Attributes), &attrs))
	assert.Equal(t, "scoring", attrs["component"])
	assert.Equal(t, "connection refused", attrs["task.error"])
}

func TestParquetHandler_BatchFlush(t *testing.T) {
	dir := t.TempDir()
	h, err := NewParquetHandler(slog.NewJSONHandler(&bytes.Buffer{}, nil), dir)
	require.NoError(t, err)
	h.sink.batchSize = 2

	logger := slog.New(h)
	child := slog.New(h.WithAttrs([]slog.Attr{slog.String("k", "v")}))
	logger.Error("first")
	child.Error("second")

	records, err := ReadErrors(dir)
	require.NoError(t, err)
	assert.Len(t, records, 2, "derived handlers share one buffer")
}
