package checkpoint

import (
	"context"
	"fmt"
	"runtime/debug"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// New creates a checkpoint at the initial step with a fresh run id
func New(name, answersPath, tablesDir, mode string) *RunCheckpoint {
	now := time.Now()
	return &RunCheckpoint{
		Name:          name,
		RunID:         uuid.NewString(),
		Step:          StepInitial,
		CreatedAt:     now,
		LastUpdatedAt: now,
		AnswersPath:   answersPath,
		TablesDir:     tablesDir,
		Mode:          mode,
	}
}

// Matches reports whether the checkpoint was started with the same inputs
func (c *RunCheckpoint) Matches(answersPath, tablesDir, mode string) bool {
	return c.AnswersPath == answersPath && c.TablesDir == tablesDir && c.Mode == mode
}

// Reached reports whether step has already been completed
func (c *RunCheckpoint) Reached(step Step) bool {
	cur := slices.Index(steps, c.Step)
	want := slices.Index(steps, step)
	return cur >= 0 && want >= 0 && cur >= want
}

// Progress returns a human-readable progress description
func (c *RunCheckpoint) Progress() string {
	idx := slices.Index(steps, c.Step)
	if idx == -1 {
		return "Unknown step"
	}
	percentage := float64(idx) / float64(len(steps)-1) * 100
	return fmt.Sprintf("%.0f%% (%s)", percentage, c.Step)
}

// SaveWithStep updates the step and saves in one operation
func (m *Manager) SaveWithStep(ctx context.Context, cp *RunCheckpoint, step Step) error {
	cp.Step = step
	return m.Save(ctx, cp)
}

// SaveWithError records an error and saves in one operation
func (m *Manager) SaveWithError(ctx context.Context, cp *RunCheckpoint, err error) error {
	cp.AttemptCount++
	cp.LastError = err.Error()
	cp.LastErrorStack = string(debug.Stack())
	return m.Save(ctx, cp)
}

// LoadOrCreate resumes the checkpoint called name when it was started with
// the same inputs and is not completed; otherwise it starts a new one. The
// boolean reports whether an existing checkpoint was resumed.
func (m *Manager) LoadOrCreate(ctx context.Context, name, answersPath, tablesDir, mode string) (*RunCheckpoint, bool, error) {
	existing, err := m.Load(ctx, name)
	if err != nil {
		return nil, false, err
	}
	if existing != nil && existing.Step != StepCompleted && existing.Matches(answersPath, tablesDir, mode) {
		return existing, true, nil
	}

	cp := New(name, answersPath, tablesDir, mode)
	if err := m.Save(ctx, cp); err != nil {
		return nil, false, err
	}
	return cp, false, nil
}

// Summary provides a human-readable summary of the checkpoint
func (c *RunCheckpoint) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Run: %s (%s)\n", c.Name, c.RunID)
	fmt.Fprintf(&b, "Progress: %s\n", c.Progress())
	fmt.Fprintf(&b, "Created: %s\n", c.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Last Updated: %s\n", c.LastUpdatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Attempts: %d\n", c.AttemptCount)
	if c.LastError != "" {
		fmt.Fprintf(&b, "Last Error: %s\n", c.LastError)
	}
	if c.Answers > 0 {
		fmt.Fprintf(&b, "Answers: %d across %d questions\n", c.Answers, len(c.Questions))
	}
	if c.Tasks > 0 {
		fmt.Fprintf(&b, "Scoring: %d completed, %d failed, %d skipped\n", c.Completed, c.Failed, c.Skipped)
	}
	if c.ReportRows > 0 {
		fmt.Fprintf(&b, "Report: %d rows, %d suspect\n", c.ReportRows, c.Suspect)
	}
	return b.String()
}
