package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// ErrInvalidName is returned when a checkpoint name contains invalid characters
var ErrInvalidName = errors.New("invalid checkpoint name: contains path traversal or invalid characters")

// Step is a stage of the likeness run pipeline
type Step string

const (
	StepInitial          Step = "initial"
	StepFeaturesComputed Step = "features_computed"
	StepLikenessScored   Step = "likeness_scored"
	StepClustersAnalyzed Step = "clusters_analyzed"
	StepReportWritten    Step = "report_written"
	StepCompleted        Step = "completed"
)

// steps lists the pipeline stages in execution order.
var steps = []Step{
	StepInitial,
	StepFeaturesComputed,
	StepLikenessScored,
	StepClustersAnalyzed,
	StepReportWritten,
	StepCompleted,
}

// RunCheckpoint records how far a likeness run got
type RunCheckpoint struct {
	Name  string `json:"name"`
	RunID string `json:"run_id"`
	Step  Step   `json:"step"`

	CreatedAt      time.Time `json:"created_at"`
	LastUpdatedAt  time.Time `json:"last_updated_at"`
	AttemptCount   int       `json:"attempt_count"`
	LastError      string    `json:"last_error,omitempty"`
	LastErrorStack string    `json:"last_error_stack,omitempty"`

	// Inputs the run was started with. A checkpoint is only resumed for the
	// same inputs.
	AnswersPath string `json:"answers_path"`
	TablesDir   string `json:"tables_dir"`
	Mode        string `json:"mode"`

	Questions []string `json:"questions,omitempty"`
	Answers   int      `json:"answers"`

	// Scoring outcome
	Tasks     int `json:"tasks"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	ClusterVerdicts int `json:"cluster_verdicts"`
	ReportRows      int `json:"report_rows"`
	Suspect         int `json:"suspect"`
}

// Manager stores run checkpoints as JSON files in one directory
type Manager struct {
	dir string
}

// NewManager creates a new checkpoint manager.
// If dir is empty, uses os.TempDir()/likeness-checkpoints
func NewManager(dir string) (*Manager, error) {
	if dir == "" {
		dir = filepath.Join(os.TempDir(), "likeness-checkpoints")
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create checkpoint directory: %w", err)
	}

	return &Manager{dir: dir}, nil
}

// validateName checks that the name is safe for use in file paths.
// It rejects names containing path separators, traversal sequences, or null bytes.
func validateName(name string) error {
	if name == "" {
		return ErrInvalidName
	}
	if strings.Contains(name, "..") {
		return ErrInvalidName
	}
	if strings.ContainsAny(name, `/\`) {
		return ErrInvalidName
	}
	if strings.ContainsRune(name, '\x00') {
		return ErrInvalidName
	}
	return nil
}

// isPathWithinDirectory checks that the resolved path is within the expected directory.
func isPathWithinDirectory(path, directory string) bool {
	cleanPath := filepath.Clean(path)
	cleanDir := filepath.Clean(directory)

	if !strings.HasSuffix(cleanDir, string(filepath.Separator)) {
		cleanDir += string(filepath.Separator)
	}

	return strings.HasPrefix(cleanPath, cleanDir) || cleanPath == filepath.Clean(directory)
}

// Path returns the file path for the checkpoint called name.
func (m *Manager) Path(name string) (string, error) {
	if err := validateName(name); err != nil {
		return "", err
	}

	fullPath := filepath.Join(m.dir, fmt.Sprintf("checkpoint_%s.json", name))
	if !isPathWithinDirectory(fullPath, m.dir) {
		return "", ErrInvalidName
	}
	return fullPath, nil
}

// Dir returns the checkpoint directory path
func (m *Manager) Dir() string {
	return m.dir
}

// Save persists the checkpoint to disk
func (m *Manager) Save(ctx context.Context, cp *RunCheckpoint) error {
	cp.LastUpdatedAt = time.Now()

	data, err := json.MarshalIndent(cp, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal checkpoint: %w", err)
	}

	path, err := m.Path(cp.Name)
	if err != nil {
		return fmt.Errorf("invalid checkpoint name: %w", err)
	}

	// Write to a temporary file first, then rename for atomic write
	tmpPath := path + ".tmp"
	if err := os.WriteFile(tmpPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write checkpoint file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("failed to rename checkpoint file: %w", err)
	}
	return nil
}

// Load retrieves a checkpoint from disk. It returns nil when none exists.
func (m *Manager) Load(ctx context.Context, name string) (*RunCheckpoint, error) {
	path, err := m.Path(name)
	if err != nil {
		return nil, fmt.Errorf("invalid checkpoint name: %w", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read checkpoint file: %w", err)
	}

	var cp RunCheckpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal checkpoint: %w", err)
	}
	return &cp, nil
}

// Delete removes a checkpoint from disk
func (m *Manager) Delete(ctx context.Context, name string) error {
	path, err := m.Path(name)
	if err != nil {
		return fmt.Errorf("invalid checkpoint name: %w", err)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to delete checkpoint file: %w", err)
	}
	return nil
}

// List returns all checkpoints in the checkpoint directory
func (m *Manager) List(ctx context.Context) ([]*RunCheckpoint, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read checkpoint directory: %w", err)
	}

	var checkpoints []*RunCheckpoint
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}

		data, err := os.ReadFile(filepath.Join(m.dir, entry.Name()))
		if err != nil {
			continue
		}

		var cp RunCheckpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue
		}
		checkpoints = append(checkpoints, &cp)
	}
	return checkpoints, nil
}

// CleanOld removes checkpoints older than maxAge
func (m *Manager) CleanOld(ctx context.Context, maxAge time.Duration) (int, error) {
	checkpoints, err := m.List(ctx)
	if err != nil {
		return 0, err
	}

	cutoff := time.Now().Add(-maxAge)
	removed := 0
	for _, cp := range checkpoints {
		if cp.LastUpdatedAt.Before(cutoff) {
			if err := m.Delete(ctx, cp.Name); err != nil {
				continue
			}
			removed++
		}
	}
	return removed, nil
}
