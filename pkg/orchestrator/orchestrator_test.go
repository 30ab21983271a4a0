package orchestrator

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/soundprediction/likeness/pkg/alert"
	"github.com/soundprediction/likeness/pkg/evaluator"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func key(s, q string) types.TaskKey {
	return types.TaskKey{StudentID: s, QuestionID: q}
}

func featureSet() FeatureSet {
	answers := []types.Answer{
		{StudentID: "S1", QuestionID: "Q10", Text: "ten"},
		{StudentID: "S2", QuestionID: "Q2", Text: "two"},
		{StudentID: "S1", QuestionID: "Q2", Text: "two again"},
		{StudentID: "S3", QuestionID: "Q2", Text: "  "},
	}
	fs := FeatureSet{Answers: answers}
	for _, a := range answers {
		fs.Reference = append(fs.Reference, types.SimilarityResult{SubjectID: a.StudentID, QuestionID: a.QuestionID, SimMax: 0.5})
		fs.Peer = append(fs.Peer, types.SimilarityResult{SubjectID: a.StudentID, QuestionID: a.QuestionID, SimMax: 0.1})
		fs.Symbolic = append(fs.Symbolic, types.SymbolicScore{StudentID: a.StudentID, QuestionID: a.QuestionID, Score: 0.3})
	}
	fs.Clusters = []types.ClusterAssignment{{StudentID: "S1", QuestionID: "Q2", ClusterID: 1}}
	return fs
}

func TestParseMode(t *testing.T) {
	for _, s := range []string{"all", "missing", "failed", "selected", " ALL "} {
		_, err := ParseMode(s)
		assert.NoError(t, err, s)
	}
	m, err := ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeAll, m)

	_, err = ParseMode("some")
	assert.ErrorIs(t, err, ErrUnknownMode)
}

func TestBuildTasks(t *testing.T) {
	t.Run("joins features and orders tasks", func(t *testing.T) {
		tasks, err := BuildTasks(featureSet())
		require.NoError(t, err)
		require.Len(t, tasks, 3, "blank answers produce no task")

		assert.Equal(t, key("S1", "Q2"), tasks[0].Key)
		assert.Equal(t, key("S2", "Q2"), tasks[1].Key)
		assert.Equal(t, key("S1", "Q10"), tasks[2].Key)

		assert.True(t, tasks[0].HasCluster)
		assert.Equal(t, 1, tasks[0].ClusterID)
		assert.False(t, tasks[1].HasCluster)
		assert.InDelta(t, 0.5, tasks[0].Reference.SimMax, 1e-9)
		assert.InDelta(t, 0.3, tasks[0].Symbolic, 1e-9)
		assert.Equal(t, "two again", tasks[0].AnswerText)
	})

	t.Run("missing feature row is an input error", func(t *testing.T) {
		fs := featureSet()
		fs.Peer = fs.Peer[1:]
		_, err := BuildTasks(fs)
		assert.ErrorIs(t, err, &types.InputDataError{})
		assert.Contains(t, err.Error(), "peer_similarity S1/Q10")
	})
}

func TestFilter(t *testing.T) {
	tasks, err := BuildTasks(featureSet())
	require.NoError(t, err)

	prior := []types.LikenessVerdict{
		{StudentID: "S1", QuestionID: "Q2", Status: types.StatusOK},
		{StudentID: "S2", QuestionID: "Q2", Status: types.StatusParseFailed},
	}

	tests := []struct {
		name    string
		mode    Mode
		targets []types.TaskKey
		want    []types.TaskKey
	}{
		{"all", ModeAll, nil, []types.TaskKey{key("S1", "Q2"), key("S2", "Q2"), key("S1", "Q10")}},
		{"missing", ModeMissing, nil, []types.TaskKey{key("S1", "Q10")}},
		{"failed", ModeFailed, nil, []types.TaskKey{key("S2", "Q2")}},
		{"selected", ModeSelected, []types.TaskKey{key("S1", "Q10"), key("S9", "Q1")}, []types.TaskKey{key("S1", "Q10")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Filter(tasks, tt.mode, prior, tt.targets)
			require.NoError(t, err)
			var keys []types.TaskKey
			for _, task := range got {
				keys = append(keys, task.Key)
			}
			assert.Equal(t, tt.want, keys)
		})
	}

	t.Run("selected without targets", func(t *testing.T) {
		_, err := Filter(tasks, ModeSelected, prior, nil)
		assert.ErrorIs(t, err, &types.InputDataError{})
	})

	t.Run("unknown mode", func(t *testing.T) {
		_, err := Filter(tasks, Mode("bogus"), prior, nil)
		assert.ErrorIs(t, err, ErrUnknownMode)
	})
}

func TestMergeVerdicts(t *testing.T) {
	prior := []types.LikenessVerdict{
		{StudentID: "S1", QuestionID: "Q10", Status: types.StatusOK, Score: 0.2},
		{StudentID: "S2", QuestionID: "Q2", Status: types.StatusCallFailed},
	}
	fresh := []types.LikenessVerdict{
		{StudentID: "S2", QuestionID: "Q2", Status: types.StatusOK, Score: 0.9},
		{StudentID: "S1", QuestionID: "Q2", Status: types.StatusOK, Score: 0.4},
	}
	merged := MergeVerdicts(prior, fresh)
	require.Len(t, merged, 3)
	assert.Equal(t, key("S1", "Q2"), merged[0].Key())
	assert.Equal(t, key("S2", "Q2"), merged[1].Key())
	assert.Equal(t, 0.9, merged[1].Score)
	assert.Equal(t, key("S1", "Q10"), merged[2].Key())
}

// fakeEvaluator returns verdicts from a per-key table.
type fakeEvaluator struct {
	mu       sync.Mutex
	statuses map[types.TaskKey]types.VerdictStatus
	panicOn  types.TaskKey
	seen     []types.TaskKey
	inFlight atomic.Int32
	peak     atomic.Int32
	delay    time.Duration
}

func (f *fakeEvaluator) Evaluate(ctx context.Context, task types.ScoringTask) types.LikenessVerdict {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(f.delay)

	f.mu.Lock()
	f.seen = append(f.seen, task.Key)
	f.mu.Unlock()

	if task.Key == f.panicOn {
		panic("evaluator bug")
	}
	status := types.StatusOK
	if s, ok := f.statuses[task.Key]; ok {
		status = s
	}
	return types.LikenessVerdict{StudentID: task.Key.StudentID, QuestionID: task.Key.QuestionID, Status: status, Score: 0.5, Backend: "fake"}
}

func TestRun(t *testing.T) {
	tasks, err := BuildTasks(featureSet())
	require.NoError(t, err)

	t.Run("all tasks reach a terminal state", func(t *testing.T) {
		eval := &fakeEvaluator{
			statuses: map[types.TaskKey]types.VerdictStatus{key("S2", "Q2"): types.StatusParseFailed},
			delay:    5 * time.Millisecond,
		}
		res := Run(context.Background(), eval, tasks, RunOptions{Concurrency: 2})

		require.Len(t, res.Verdicts, 3)
		assert.Equal(t, 2, res.Completed)
		assert.Equal(t, 1, res.Failed)
		assert.Equal(t, types.TaskCompleted, res.States[key("S1", "Q2")])
		assert.Equal(t, types.TaskFailed, res.States[key("S2", "Q2")])
		for _, st := range res.States {
			assert.True(t, st.Terminal())
		}
		assert.LessOrEqual(t, eval.peak.Load(), int32(2))
		for i, v := range res.Verdicts {
			assert.Equal(t, tasks[i].Key, v.Key(), "verdicts follow task order")
		}
	})

	t.Run("panic becomes call_failed", func(t *testing.T) {
		eval := &fakeEvaluator{panicOn: key("S1", "Q10")}
		res := Run(context.Background(), eval, tasks, RunOptions{Concurrency: 1})
		assert.Equal(t, 1, res.Failed)
		v := res.Verdicts[2]
		assert.Equal(t, types.StatusCallFailed, v.Status)
		assert.Equal(t, key("S1", "Q10"), v.Key())
		assert.Contains(t, v.Rationale, "evaluator bug")
	})

	t.Run("cancelled run still terminates every task", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		res := Run(ctx, &fakeEvaluator{}, tasks, RunOptions{})
		assert.Equal(t, 3, res.Failed)
		for _, v := range res.Verdicts {
			assert.Equal(t, types.StatusCallFailed, v.Status)
		}
	})

	t.Run("failure ratio raises an alert", func(t *testing.T) {
		eval := &fakeEvaluator{statuses: map[types.TaskKey]types.VerdictStatus{
			key("S1", "Q2"):  types.StatusCallFailed,
			key("S2", "Q2"):  types.StatusCallFailed,
			key("S1", "Q10"): types.StatusOK,
		}}
		rec := &alert.RecordingAlerter{}
		Run(context.Background(), eval, tasks, RunOptions{Alerter: rec, FailureRatio: 0.5})
		msgs := rec.Messages()
		require.Len(t, msgs, 1)
		assert.Contains(t, msgs[0].Body, "2 of 3")

		rec = &alert.RecordingAlerter{}
		Run(context.Background(), &fakeEvaluator{}, tasks, RunOptions{Alerter: rec, FailureRatio: 0.5})
		assert.Empty(t, rec.Messages())
	})
}

func TestScore(t *testing.T) {
	tasks, err := BuildTasks(featureSet())
	require.NoError(t, err)

	prior := []types.LikenessVerdict{{StudentID: "S1", QuestionID: "Q2", Status: types.StatusOK}}
	res, err := Score(context.Background(), &fakeEvaluator{}, tasks, ModeMissing, prior, nil, RunOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Skipped)
	assert.Equal(t, 2, res.Completed)

	_, err = Score(context.Background(), &fakeEvaluator{}, tasks, ModeSelected, prior, nil, RunOptions{})
	assert.Error(t, err)
}

type fakeAnalyzer struct {
	skip map[int]bool
	fail error
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, in evaluator.ClusterInput) (types.ClusterVerdict, bool) {
	if f.skip[in.ClusterID] {
		return types.ClusterVerdict{}, false
	}
	if f.fail != nil {
		panic(f.fail)
	}
	return types.ClusterVerdict{QuestionID: in.QuestionID, ClusterID: in.ClusterID, Status: types.StatusOK, TemplatenessScore: 0.4}, true
}

func TestRunClusters(t *testing.T) {
	jobs := []evaluator.ClusterInput{
		{QuestionID: "Q10", ClusterID: 0},
		{QuestionID: "Q2", ClusterID: 1},
		{QuestionID: "Q2", ClusterID: 0},
		{QuestionID: "Q2", ClusterID: 2},
	}

	verdicts := RunClusters(context.Background(), &fakeAnalyzer{skip: map[int]bool{2: true}}, jobs, RunOptions{Concurrency: 2})
	require.Len(t, verdicts, 3)
	assert.Equal(t, types.ClusterKey{QuestionID: "Q2", ClusterID: 0}, verdicts[0].Key())
	assert.Equal(t, types.ClusterKey{QuestionID: "Q2", ClusterID: 1}, verdicts[1].Key())
	assert.Equal(t, types.ClusterKey{QuestionID: "Q10", ClusterID: 0}, verdicts[2].Key())

	verdicts = RunClusters(context.Background(), &fakeAnalyzer{fail: errors.New("bad")}, jobs[:1], RunOptions{})
	require.Len(t, verdicts, 1)
	assert.Equal(t, types.StatusCallFailed, verdicts[0].Status)
}
