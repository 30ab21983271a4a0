package tables

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(filepath.Join(t.TempDir(), "tables"))
	require.NoError(t, err)
	return s
}

func TestNewStore(t *testing.T) {
	_, err := NewStore("")
	assert.Error(t, err)

	s := newStore(t)
	info, err := os.Stat(s.Dir())
	require.NoError(t, err)
	assert.True(t, info.IsDir())
	assert.Equal(t, filepath.Join(s.Dir(), "symbolic.parquet"), s.Path(Symbolic))
}

func TestWriteRead(t *testing.T) {
	s := newStore(t)
	rows := []types.SymbolicScore{
		{StudentID: "S1", QuestionID: "Q1", Score: 0.25},
		{StudentID: "S2", QuestionID: "Q1", Score: 0.5},
	}
	require.NoError(t, Write(s, Symbolic, rows))
	assert.True(t, s.Exists(Symbolic))
	assert.NoFileExists(t, s.Path(Symbolic)+".tmp")

	got, err := Read[types.SymbolicScore](s, Symbolic)
	require.NoError(t, err)
	assert.Equal(t, rows, got)

	require.NoError(t, Write(s, Symbolic, rows[:1]))
	got, err = Read[types.SymbolicScore](s, Symbolic)
	require.NoError(t, err)
	assert.Len(t, got, 1, "write replaces the table")

	_, err = Read[types.SymbolicScore](s, "absent")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestFeatures(t *testing.T) {
	s := newStore(t)

	_, err := s.LoadFeatures()
	assert.ErrorIs(t, err, &types.InputDataError{})
	assert.Contains(t, err.Error(), ReferenceSimilarity)

	f := Features{
		Reference: []types.SimilarityResult{{SubjectID: "S1", QuestionID: "Q1", SimMax: 0.8, SimMean: 0.4, BestMatchID: "r1"}},
		Peer:      []types.SimilarityResult{{SubjectID: "S1", QuestionID: "Q1", SimMax: 0.1, BestMatchID: "S2"}},
		PeerPairs: []types.PairSimilarity{{QuestionID: "Q1", StudentA: "S1", StudentB: "S2", Similarity: 0.1}},
		Symbolic:  []types.SymbolicScore{{StudentID: "S1", QuestionID: "Q1", Score: 0.3}},
		Clusters:  []types.ClusterAssignment{{StudentID: "S1", QuestionID: "Q1", ClusterID: 2}},
	}
	require.NoError(t, s.SaveFeatures(f))

	got, err := s.LoadFeatures()
	require.NoError(t, err)
	assert.Equal(t, f, got)

	require.NoError(t, os.Remove(s.Path(PeerPairs)))
	_, err = s.LoadFeatures()
	var inputErr *types.InputDataError
	require.ErrorAs(t, err, &inputErr)
	assert.Equal(t, PeerPairs, inputErr.Source)
}

func TestVerdicts(t *testing.T) {
	s := newStore(t)

	prior, err := s.LoadVerdicts()
	require.NoError(t, err)
	assert.Empty(t, prior, "first run has no prior verdicts")

	clusters, err := s.LoadClusterVerdicts()
	require.NoError(t, err)
	assert.Empty(t, clusters)

	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	verdicts := []types.LikenessVerdict{
		{StudentID: "S1", QuestionID: "Q1", Score: 0.9, Status: types.StatusOK, Rationale: "uniform", Backend: "b0", EvaluatedAt: at},
		{StudentID: "S2", QuestionID: "Q1", Status: types.StatusCallFailed, EvaluatedAt: at},
	}
	require.NoError(t, s.SaveVerdicts(verdicts))

	got, err := s.LoadVerdicts()
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, verdicts[0].Key(), got[0].Key())
	assert.Equal(t, 0.9, got[0].Score)
	assert.Equal(t, types.StatusOK, got[0].Status)
	assert.Equal(t, types.StatusCallFailed, got[1].Status)
	assert.True(t, at.Equal(got[0].EvaluatedAt))

	require.NoError(t, s.SaveClusterVerdicts([]types.ClusterVerdict{
		{QuestionID: "Q1", ClusterID: 0, TemplatenessScore: 0.6, Status: types.StatusOK, MemberCount: 3, EvaluatedAt: at},
	}))
	clusters, err = s.LoadClusterVerdicts()
	require.NoError(t, err)
	require.Len(t, clusters, 1)
	assert.Equal(t, 3, clusters[0].MemberCount)
}

func TestReport(t *testing.T) {
	s := newStore(t)

	_, err := s.LoadReport()
	assert.ErrorIs(t, err, &types.InputDataError{})

	rows := []report.Row{{StudentID: "S1", QuestionID: "Q1", LikenessScore: 0.8, LikenessStatus: types.StatusOK, Suspect: true}}
	require.NoError(t, s.SaveReport(rows))

	got, err := s.LoadReport()
	require.NoError(t, err)
	assert.Equal(t, rows, got)
}
