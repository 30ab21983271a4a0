package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/soundprediction/likeness/pkg/alert"
	"github.com/soundprediction/likeness/pkg/evaluator"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/soundprediction/likeness/pkg/utils"
)

// DefaultConcurrency is the number of scoring workers.
const DefaultConcurrency = 2

// Evaluator scores one task. *evaluator.LikenessEvaluator implements it.
type Evaluator interface {
	Evaluate(ctx context.Context, task types.ScoringTask) types.LikenessVerdict
}

// ClusterAnalyzer scores one cluster. *evaluator.ClusterAnalyzer implements it.
type ClusterAnalyzer interface {
	Analyze(ctx context.Context, in evaluator.ClusterInput) (types.ClusterVerdict, bool)
}

// RunOptions configure a scoring run.
type RunOptions struct {
	Concurrency int
	Logger      *slog.Logger
	// Alerter is notified when the share of failed tasks reaches FailureRatio.
	Alerter      alert.Alerter
	FailureRatio float64
	Now          func() time.Time
}

func (o RunOptions) withDefaults() RunOptions {
	if o.Concurrency < 1 {
		o.Concurrency = DefaultConcurrency
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	return o
}

// RunResult summarizes a finished scoring run.
type RunResult struct {
	Verdicts  []types.LikenessVerdict
	States    map[types.TaskKey]types.TaskState
	Completed int
	Failed    int
	Skipped   int
}

// stateTable tracks task lifecycle transitions across workers.
type stateTable struct {
	mu     sync.Mutex
	states map[types.TaskKey]types.TaskState
}

func newStateTable(tasks []types.ScoringTask) *stateTable {
	st := &stateTable{states: make(map[types.TaskKey]types.TaskState, len(tasks))}
	for _, t := range tasks {
		st.states[t.Key] = types.TaskPending
	}
	return st
}

func (s *stateTable) set(key types.TaskKey, state types.TaskState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[key].Terminal() {
		return
	}
	s.states[key] = state
}

func (s *stateTable) snapshot() map[types.TaskKey]types.TaskState {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[types.TaskKey]types.TaskState, len(s.states))
	for k, v := range s.states {
		out[k] = v
	}
	return out
}

// Run evaluates tasks with a bounded worker pool and returns once every task
// is terminal. A task whose verdict status is ok is completed; any other
// status marks it failed. Panics and tasks that never started because ctx was
// cancelled yield call_failed verdicts.
func Run(ctx context.Context, eval Evaluator, tasks []types.ScoringTask, opts RunOptions) RunResult {
	opts = opts.withDefaults()
	states := newStateTable(tasks)

	pool := utils.NewWorkerPool(opts.Concurrency, func(ctx context.Context, task types.ScoringTask) (types.LikenessVerdict, error) {
		states.set(task.Key, types.TaskRunning)
		return eval.Evaluate(ctx, task), nil
	})

	opts.Logger.Info("scoring started", "tasks", len(tasks), "concurrency", opts.Concurrency)
	start := time.Now()
	verdicts, errs := pool.ProcessItems(ctx, tasks)

	result := RunResult{Verdicts: make([]types.LikenessVerdict, 0, len(tasks))}
	for i, task := range tasks {
		v := verdicts[i]
		if errs[i] != nil {
			v = types.LikenessVerdict{
				StudentID:   task.Key.StudentID,
				QuestionID:  task.Key.QuestionID,
				Status:      types.StatusCallFailed,
				Rationale:   fmt.Sprintf("task did not complete: %v", errs[i]),
				EvaluatedAt: opts.Now(),
			}
		}

		if v.Status == types.StatusOK {
			states.set(task.Key, types.TaskCompleted)
			result.Completed++
		} else {
			states.set(task.Key, types.TaskFailed)
			result.Failed++
			opts.Logger.Warn("scoring task failed",
				"student_id", task.Key.StudentID,
				"question_id", task.Key.QuestionID,
				"status", v.Status,
				"backend", v.Backend,
				"rationale", v.Rationale)
		}
		result.Verdicts = append(result.Verdicts, v)
	}
	result.States = states.snapshot()

	opts.Logger.Info("scoring finished",
		"completed", result.Completed,
		"failed", result.Failed,
		"duration", time.Since(start).Round(time.Millisecond))
	notifyFailures(opts, result)
	return result
}

// Score filters tasks by mode and runs the remainder.
func Score(ctx context.Context, eval Evaluator, tasks []types.ScoringTask, mode Mode, prior []types.LikenessVerdict, targets []types.TaskKey, opts RunOptions) (RunResult, error) {
	selected, err := Filter(tasks, mode, prior, targets)
	if err != nil {
		return RunResult{}, err
	}
	result := Run(ctx, eval, selected, opts)
	result.Skipped = len(tasks) - len(selected)
	return result, nil
}

func notifyFailures(opts RunOptions, result RunResult) {
	total := result.Completed + result.Failed
	if opts.Alerter == nil || opts.FailureRatio <= 0 || total == 0 {
		return
	}
	ratio := float64(result.Failed) / float64(total)
	if ratio < opts.FailureRatio {
		return
	}
	msg := fmt.Sprintf("%d of %d scoring tasks failed (%.0f%%).", result.Failed, total, ratio*100)
	if err := opts.Alerter.Alert("Likeness scoring run degraded", msg); err != nil {
		opts.Logger.Warn("failed to send alert", "error", err)
	}
}

// RunClusters analyzes cluster jobs with the same bounded pool. Skipped
// clusters produce no verdict. Verdicts are ordered by (question, cluster).
func RunClusters(ctx context.Context, analyzer ClusterAnalyzer, jobs []evaluator.ClusterInput, opts RunOptions) []types.ClusterVerdict {
	opts = opts.withDefaults()

	type outcome struct {
		verdict types.ClusterVerdict
		ok      bool
	}
	pool := utils.NewWorkerPool(opts.Concurrency, func(ctx context.Context, job evaluator.ClusterInput) (outcome, error) {
		v, ok := analyzer.Analyze(ctx, job)
		return outcome{verdict: v, ok: ok}, nil
	})
	outcomes, errs := pool.ProcessItems(ctx, jobs)

	var verdicts []types.ClusterVerdict
	for i, job := range jobs {
		if errs[i] != nil {
			verdicts = append(verdicts, types.ClusterVerdict{
				QuestionID:  job.QuestionID,
				ClusterID:   job.ClusterID,
				MemberCount: len(job.Members),
				Status:      types.StatusCallFailed,
				Rationale:   fmt.Sprintf("cluster analysis did not complete: %v", errs[i]),
				EvaluatedAt: opts.Now(),
			})
			continue
		}
		if !outcomes[i].ok {
			continue
		}
		v := outcomes[i].verdict
		if v.Status.Failed() {
			opts.Logger.Warn("cluster analysis failed",
				"question_id", v.QuestionID,
				"cluster_id", v.ClusterID,
				"status", v.Status,
				"backend", v.Backend,
				"rationale", v.Rationale)
		}
		verdicts = append(verdicts, v)
	}

	slices.SortFunc(verdicts, func(a, b types.ClusterVerdict) int {
		if c := types.CompareQuestionIDs(a.QuestionID, b.QuestionID); c != 0 {
			return c
		}
		return a.ClusterID - b.ClusterID
	})
	return verdicts
}
