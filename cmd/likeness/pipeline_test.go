package likeness

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/spf13/cobra"

	"github.com/soundprediction/likeness/pkg/checkpoint"
	"github.com/soundprediction/likeness/pkg/config"
	"github.com/soundprediction/likeness/pkg/nlp"
	"github.com/soundprediction/likeness/pkg/orchestrator"
	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/types"
)

func scoringCommand(t *testing.T, args ...string) *cobra.Command {
	t.Helper()
	cmd := &cobra.Command{Use: "score"}
	cmd.Flags().String("mode", string(orchestrator.ModeAll), "")
	cmd.Flags().String("targets", "", "")
	if err := cmd.Flags().Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return cmd
}

func TestScoringFlags(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		mode    orchestrator.Mode
		wantErr bool
	}{
		{"default", nil, orchestrator.ModeAll, false},
		{"missing", []string{"--mode", "missing"}, orchestrator.ModeMissing, false},
		{"selected with targets", []string{"--mode", "selected", "--targets", "t.yaml"}, orchestrator.ModeSelected, false},
		{"selected without targets", []string{"--mode", "selected"}, "", true},
		{"unknown", []string{"--mode", "sometimes"}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mode, _, err := scoringFlags(scoringCommand(t, tt.args...))
			if (err != nil) != tt.wantErr {
				t.Fatalf("scoringFlags() error = %v, wantErr %v", err, tt.wantErr)
			}
			if mode != tt.mode {
				t.Errorf("expected mode %q, got %q", tt.mode, mode)
			}
		})
	}
}

func TestValidateServerConfig(t *testing.T) {
	cfg := &config.Config{Server: config.ServerConfig{Port: 8080}, Paths: config.PathsConfig{Tables: "out"}}
	if err := validateServerConfig(cfg); err != nil {
		t.Errorf("expected valid config, got %v", err)
	}

	cfg.Server.Port = 70000
	if err := validateServerConfig(cfg); err == nil {
		t.Error("expected error for invalid port")
	}

	cfg.Server.Port = 8080
	cfg.Paths.Tables = ""
	if err := validateServerConfig(cfg); err == nil {
		t.Error("expected error for missing tables directory")
	}
}

func TestPrintRows(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, []report.QuestionSummary{{QuestionID: "Q1", Answers: 2, Evaluated: 1, Suspect: 1, MeanScore: 0.9}})
	printRows(&buf, []report.Row{
		{StudentID: "S1", QuestionID: "Q1", LikenessScore: 0.9, LikenessStatus: types.StatusOK, HasCluster: true, ClusterID: 1, Suspect: true},
		{StudentID: "S2", QuestionID: "Q1", LikenessStatus: types.StatusNotEvaluated},
	})

	out := buf.String()
	for _, want := range []string{"QUESTION", "Q1", "0.900", "S1", "1 (0.00)", "not_evaluated"} {
		if !strings.Contains(out, want) {
			t.Errorf("expected output to contain %q:\n%s", want, out)
		}
	}
}

func TestPrintCalls(t *testing.T) {
	var buf bytes.Buffer
	printCalls(&buf, nil)
	if !strings.Contains(buf.String(), "No inference calls logged") {
		t.Errorf("expected empty call log message, got:\n%s", buf.String())
	}

	buf.Reset()
	printCalls(&buf, []nlp.CallSummary{{Backend: "ollama-0", Calls: 4, Failed: 1, Attempts: 6, TotalTokens: 120, MeanLatencyMs: 250}})
	for _, want := range []string{"BACKEND", "ollama-0", "120", "250ms"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected output to contain %q:\n%s", want, buf.String())
		}
	}
}

func TestListCheckpoints(t *testing.T) {
	ctx := context.Background()
	manager, err := checkpoint.NewManager(t.TempDir())
	if err != nil {
		t.Fatalf("failed to create manager: %v", err)
	}

	var buf bytes.Buffer
	if err := listCheckpoints(ctx, manager, 0, &buf); err != nil {
		t.Fatalf("listCheckpoints() error = %v", err)
	}
	if !strings.Contains(buf.String(), "No checkpoints") {
		t.Errorf("expected empty listing, got:\n%s", buf.String())
	}

	cp := checkpoint.New("nightly", "answers.yaml", "out", "missing")
	cp.Step = checkpoint.StepLikenessScored
	if err := manager.Save(ctx, cp); err != nil {
		t.Fatalf("failed to save checkpoint: %v", err)
	}

	buf.Reset()
	if err := listCheckpoints(ctx, manager, 0, &buf); err != nil {
		t.Fatalf("listCheckpoints() error = %v", err)
	}
	for _, want := range []string{"nightly", cp.RunID, "likeness_scored", "missing"} {
		if !strings.Contains(buf.String(), want) {
			t.Errorf("expected output to contain %q:\n%s", want, buf.String())
		}
	}

	t.Run("clean older than", func(t *testing.T) {
		time.Sleep(10 * time.Millisecond)
		var buf bytes.Buffer
		if err := listCheckpoints(ctx, manager, time.Millisecond, &buf); err != nil {
			t.Fatalf("listCheckpoints() error = %v", err)
		}
		out := buf.String()
		if !strings.Contains(out, "Removed 1 checkpoint(s)") || !strings.Contains(out, "No checkpoints") {
			t.Errorf("expected the checkpoint to be removed, got:\n%s", out)
		}
	})
}
