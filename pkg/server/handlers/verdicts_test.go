package handlers

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/types"
)

func populatedStore(t *testing.T) *fakeStore {
	return &fakeStore{
		dir: t.TempDir(),
		verdicts: []types.LikenessVerdict{
			{StudentID: "S1", QuestionID: "Q1", Score: 0.9, Status: types.StatusOK},
			{StudentID: "S2", QuestionID: "Q1", Status: types.StatusCallFailed},
			{StudentID: "S1", QuestionID: "Q2", Score: 0.1, Status: types.StatusOK},
		},
		clusters: []types.ClusterVerdict{
			{QuestionID: "Q1", ClusterID: 0, Status: types.StatusOK},
			{QuestionID: "Q2", ClusterID: 0, Status: types.StatusOK},
		},
		report: []report.Row{
			{StudentID: "S1", QuestionID: "Q1", LikenessScore: 0.9, LikenessStatus: types.StatusOK, Suspect: true},
			{StudentID: "S2", QuestionID: "Q1", LikenessStatus: types.StatusCallFailed},
			{StudentID: "S1", QuestionID: "Q2", LikenessScore: 0.1, LikenessStatus: types.StatusOK},
		},
	}
}

func TestListVerdicts(t *testing.T) {
	h := NewVerdictHandler(populatedStore(t), nil)
	route := "/api/v1/verdicts"

	tests := []struct {
		name  string
		query string
		total float64
	}{
		{"all", "", 3},
		{"by question", "?question=Q1", 2},
		{"by status", "?status=call_failed", 1},
		{"by question and status", "?question=Q2&status=ok", 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, body := serve(t, http.MethodGet, route+tt.query, route, h.ListVerdicts)
			require.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.total, body["total"])
		})
	}

	t.Run("invalid status", func(t *testing.T) {
		w, body := serve(t, http.MethodGet, route+"?status=great", route, h.ListVerdicts)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Equal(t, "invalid_request", body["error"])
	})

	t.Run("load failure", func(t *testing.T) {
		h := NewVerdictHandler(&fakeStore{err: errors.New("corrupt file")}, nil)
		w, body := serve(t, http.MethodGet, route, route, h.ListVerdicts)
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Equal(t, "load_failed", body["error"])
	})
}

func TestGetVerdict(t *testing.T) {
	h := NewVerdictHandler(populatedStore(t), nil)
	route := "/api/v1/verdicts/:student_id/:question_id"

	w, body := serve(t, http.MethodGet, "/api/v1/verdicts/S1/Q2", route, h.GetVerdict)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "S1", body["student_id"])
	assert.Equal(t, "Q2", body["question_id"])
	assert.Equal(t, 0.1, body["score"])

	w, body = serve(t, http.MethodGet, "/api/v1/verdicts/S9/Q2", route, h.GetVerdict)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", body["error"])
}

func TestListClusters(t *testing.T) {
	h := NewVerdictHandler(populatedStore(t), nil)
	route := "/api/v1/clusters"

	_, body := serve(t, http.MethodGet, route, route, h.ListClusters)
	assert.Equal(t, float64(2), body["total"])

	_, body = serve(t, http.MethodGet, route+"?question=Q2", route, h.ListClusters)
	assert.Equal(t, float64(1), body["total"])
}

func TestGetReport(t *testing.T) {
	h := NewVerdictHandler(populatedStore(t), nil)
	route := "/api/v1/report"

	w, body := serve(t, http.MethodGet, route, route, h.GetReport)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(3), body["total"])
	assert.Len(t, body["summary"], 2)

	_, body = serve(t, http.MethodGet, route+"?suspect=true", route, h.GetReport)
	assert.Equal(t, float64(1), body["total"])

	_, body = serve(t, http.MethodGet, route+"?suspect=true&question=Q2", route, h.GetReport)
	assert.Equal(t, float64(0), body["total"])
	assert.Equal(t, []any{}, body["rows"])

	w, _ = serve(t, http.MethodGet, route+"?suspect=maybe", route, h.GetReport)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	t.Run("report not written", func(t *testing.T) {
		h := NewVerdictHandler(&fakeStore{dir: t.TempDir()}, nil)
		w, body := serve(t, http.MethodGet, route, route, h.GetReport)
		assert.Equal(t, http.StatusNotFound, w.Code)
		assert.Equal(t, "not_found", body["error"])
	})
}
