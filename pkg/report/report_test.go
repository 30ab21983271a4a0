package report

import (
	"testing"

	"github.com/soundprediction/likeness/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func baseInput() Input {
	return Input{
		Answers: []types.Answer{
			{StudentID: "S1", QuestionID: "Q10", Text: "answer"},
			{StudentID: "S1", QuestionID: "Q2", Text: "日本語"},
			{StudentID: "S2", QuestionID: "Q2", Text: "other"},
			{StudentID: "S3", QuestionID: "Q2", Text: "third"},
		},
		Reference: []types.SimilarityResult{
			{SubjectID: "S1", QuestionID: "Q2", SimMax: 0.9, SimMean: 0.6, BestMatchID: "ref-a"},
		},
		Peer: []types.SimilarityResult{
			{SubjectID: "S1", QuestionID: "Q2", SimMax: 0.3, SimMean: 0.2, BestMatchID: "S2"},
		},
		Symbolic: []types.SymbolicScore{{StudentID: "S1", QuestionID: "Q2", Score: 0.45}},
		Clusters: []types.ClusterAssignment{
			{StudentID: "S1", QuestionID: "Q2", ClusterID: 1},
			{StudentID: "S2", QuestionID: "Q2", ClusterID: 0},
		},
		ClusterVerdicts: []types.ClusterVerdict{
			{QuestionID: "Q2", ClusterID: 1, TemplatenessScore: 0.8, Status: types.StatusOK},
		},
		Verdicts: []types.LikenessVerdict{
			{StudentID: "S1", QuestionID: "Q2", Score: 0.7, Status: types.StatusOK, Backend: "b0", Rationale: "tidy"},
			{StudentID: "S2", QuestionID: "Q2", Score: 0.95, Status: types.StatusParseFailed},
			{StudentID: "S1", QuestionID: "Q10", Score: 0.2, Status: types.StatusOK},
		},
	}
}

func TestJoin(t *testing.T) {
	rows, err := Join(baseInput(), DefaultSuspectThreshold)
	require.NoError(t, err)
	require.Len(t, rows, 4)

	assert.Equal(t, types.TaskKey{StudentID: "S1", QuestionID: "Q2"}, rows[0].Key())
	assert.Equal(t, types.TaskKey{StudentID: "S2", QuestionID: "Q2"}, rows[1].Key())
	assert.Equal(t, types.TaskKey{StudentID: "S3", QuestionID: "Q2"}, rows[2].Key())
	assert.Equal(t, types.TaskKey{StudentID: "S1", QuestionID: "Q10"}, rows[3].Key())

	r := rows[0]
	assert.Equal(t, 3, r.AnswerLen)
	assert.Equal(t, 0.9, r.ReferenceSimMax)
	assert.Equal(t, "ref-a", r.ReferenceBestMatch)
	assert.Equal(t, "S2", r.PeerBestMatch)
	assert.Equal(t, 0.45, r.Symbolic)
	assert.True(t, r.HasCluster)
	assert.Equal(t, 1, r.ClusterID)
	assert.Equal(t, 0.8, r.ClusterTemplateness)
	assert.Equal(t, types.StatusOK, r.ClusterStatus)
	assert.Equal(t, "b0", r.Backend)
	assert.True(t, r.Suspect, "score equal to the threshold is suspect")

	assert.False(t, rows[1].Suspect, "failed verdicts are never suspect")
	assert.Equal(t, types.StatusParseFailed, rows[1].LikenessStatus)
	assert.Equal(t, types.StatusNotEvaluated, rows[1].ClusterStatus)

	assert.Equal(t, types.StatusNotEvaluated, rows[2].LikenessStatus)
	assert.False(t, rows[2].HasCluster)
	assert.False(t, rows[3].Suspect)
}

func TestJoin_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(in *Input)
		table  string
	}{
		{"duplicate answer", func(in *Input) { in.Answers = append(in.Answers, in.Answers[0]) }, "answers"},
		{"orphan reference row", func(in *Input) {
			in.Reference = append(in.Reference, types.SimilarityResult{SubjectID: "S9", QuestionID: "Q2"})
		}, "reference_similarity"},
		{"duplicate peer row", func(in *Input) { in.Peer = append(in.Peer, in.Peer[0]) }, "peer_similarity"},
		{"orphan verdict", func(in *Input) {
			in.Verdicts = append(in.Verdicts, types.LikenessVerdict{StudentID: "S1", QuestionID: "Q7"})
		}, "likeness_verdicts"},
		{"duplicate cluster verdict", func(in *Input) {
			in.ClusterVerdicts = append(in.ClusterVerdicts, in.ClusterVerdicts[0])
		}, "cluster_verdicts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := baseInput()
			tt.mutate(&in)
			_, err := Join(in, DefaultSuspectThreshold)
			var aggErr *types.AggregationError
			require.ErrorAs(t, err, &aggErr)
			assert.Equal(t, tt.table, aggErr.Table)
		})
	}
}

func TestSummarize(t *testing.T) {
	rows, err := Join(baseInput(), DefaultSuspectThreshold)
	require.NoError(t, err)

	summary := Summarize(rows)
	require.Len(t, summary, 2)

	q2 := summary[0]
	assert.Equal(t, "Q2", q2.QuestionID)
	assert.Equal(t, 3, q2.Answers)
	assert.Equal(t, 1, q2.Evaluated)
	assert.Equal(t, 1, q2.Failed)
	assert.Equal(t, 1, q2.NotEvaluated)
	assert.Equal(t, 1, q2.Suspect)
	assert.InDelta(t, 0.7, q2.MeanScore, 1e-9)

	assert.Equal(t, "Q10", summary[1].QuestionID)
	assert.InDelta(t, 0.2, summary[1].MeanScore, 1e-9)
}

func TestFilter(t *testing.T) {
	rows, err := Join(baseInput(), DefaultSuspectThreshold)
	require.NoError(t, err)

	assert.Len(t, Filter(rows, "Q2", false), 3)
	assert.Len(t, Filter(rows, "", true), 1)
	assert.Empty(t, Filter(rows, "Q10", true))
}
