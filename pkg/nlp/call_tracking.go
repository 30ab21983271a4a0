package nlp

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"github.com/soundprediction/likeness/pkg/types"
)

// CallTracker receives one record per pool Generate call.
type CallTracker interface {
	Track(ctx context.Context, record CallRecord) error
}

// CallRecord represents a single log entry for an inference call
type CallRecord struct {
	ID               string    `parquet:"id"`
	Timestamp        time.Time `parquet:"timestamp"`
	RunID            string    `parquet:"run_id"`
	StudentID        string    `parquet:"student_id"`
	QuestionID       string    `parquet:"question_id"`
	RequestSource    string    `parquet:"request_source"`
	Backend          string    `parquet:"backend"`
	Kind             string    `parquet:"kind"`
	Model            string    `parquet:"model"`
	Attempts         int       `parquet:"attempts"`
	Status           string    `parquet:"status"`
	ErrorKind        string    `parquet:"error_kind"`
	Error            string    `parquet:"error"`
	LatencyMs        int64     `parquet:"latency_ms"`
	PromptChars      int       `parquet:"prompt_chars"`
	ResponseChars    int       `parquet:"response_chars"`
	PromptTokens     int       `parquet:"prompt_tokens"`
	CompletionTokens int       `parquet:"completion_tokens"`
	TotalTokens      int       `parquet:"total_tokens"`
}

// Call statuses recorded in CallRecord.Status
const (
	CallStatusOK     = "ok"
	CallStatusFailed = "failed"
)

// fillFromContext copies run and task identifiers carried by ctx.
func (r *CallRecord) fillFromContext(ctx context.Context) {
	if v, ok := ctx.Value(types.ContextKeyRunID).(string); ok {
		r.RunID = v
	}
	if v, ok := ctx.Value(types.ContextKeyStudentID).(string); ok {
		r.StudentID = v
	}
	if v, ok := ctx.Value(types.ContextKeyQuestionID).(string); ok {
		r.QuestionID = v
	}
	if v, ok := ctx.Value(types.ContextKeyRequestSource).(string); ok {
		r.RequestSource = v
	}
}

// ParquetCallTracker handles persistence of call records to Parquet files
type ParquetCallTracker struct {
	outputDir string
	logger    *slog.Logger
	mu        sync.Mutex
	buffer    []CallRecord
	batchSize int
}

// NewCallTracker creates a new call tracker writing to a directory
func NewCallTracker(outputDir string, logger *slog.Logger) (*ParquetCallTracker, error) {
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create call log directory: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &ParquetCallTracker{
		outputDir: outputDir,
		logger:    logger,
		buffer:    make([]CallRecord, 0, 100),
		batchSize: 100,
	}, nil
}

// Track buffers a record and flushes when the batch is full.
func (t *ParquetCallTracker) Track(ctx context.Context, record CallRecord) error {
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	if record.Timestamp.IsZero() {
		record.Timestamp = time.Now().UTC()
	}
	record.fillFromContext(ctx)

	t.mu.Lock()
	defer t.mu.Unlock()

	t.buffer = append(t.buffer, record)

	if len(t.buffer) >= t.batchSize {
		return t.flush()
	}

	return nil
}

// Flush writes any buffered records.
func (t *ParquetCallTracker) Flush() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.flush()
}

// Close flushes remaining records.
func (t *ParquetCallTracker) Close() error {
	return t.Flush()
}

// flush writes the current buffer to a new Parquet file
// Caller must hold the lock
func (t *ParquetCallTracker) flush() error {
	if len(t.buffer) == 0 {
		return nil
	}

	now := time.Now()
	filename := fmt.Sprintf("calls_%s_%d.parquet", now.Format("20060102_150405"), now.UnixNano())
	path := filepath.Join(t.outputDir, filename)

	if err := parquet.WriteFile(path, t.buffer); err != nil {
		t.logger.Error("failed to write call log parquet file", "path", path, "error", err)
		return err
	}

	// Clear buffer
	t.buffer = t.buffer[:0]
	return nil
}

// ReadCallRecords loads every call log file in dir.
func ReadCallRecords(dir string) ([]CallRecord, error) {
	matches, err := filepath.Glob(filepath.Join(dir, "calls_*.parquet"))
	if err != nil {
		return nil, err
	}
	var out []CallRecord
	for _, m := range matches {
		rows, err := parquet.ReadFile[CallRecord](m)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", m, err)
		}
		out = append(out, rows...)
	}
	return out, nil
}

// CallSummary aggregates the call records of one backend.
type CallSummary struct {
	Backend       string  `json:"backend"`
	Calls         int     `json:"calls"`
	Failed        int     `json:"failed"`
	Attempts      int     `json:"attempts"`
	TotalTokens   int     `json:"total_tokens"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
}

// SummarizeCalls groups records by backend, ordered by backend name.
func SummarizeCalls(records []CallRecord) []CallSummary {
	byBackend := make(map[string]*CallSummary)
	latency := make(map[string]int64)
	for _, r := range records {
		s, ok := byBackend[r.Backend]
		if !ok {
			s = &CallSummary{Backend: r.Backend}
			byBackend[r.Backend] = s
		}
		s.Calls++
		if r.Status != CallStatusOK {
			s.Failed++
		}
		s.Attempts += r.Attempts
		s.TotalTokens += r.TotalTokens
		latency[r.Backend] += r.LatencyMs
	}

	out := make([]CallSummary, 0, len(byBackend))
	for backend, s := range byBackend {
		s.MeanLatencyMs = float64(latency[backend]) / float64(s.Calls)
		out = append(out, *s)
	}
	slices.SortFunc(out, func(a, b CallSummary) int {
		return strings.Compare(a.Backend, b.Backend)
	})
	return out
}
