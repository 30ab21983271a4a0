package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/tables"
	"github.com/soundprediction/likeness/pkg/types"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// fakeStore serves tables from memory. A nil slice means the table is missing.
type fakeStore struct {
	dir      string
	verdicts []types.LikenessVerdict
	clusters []types.ClusterVerdict
	report   []report.Row
	err      error
}

func (f *fakeStore) Dir() string { return f.dir }

func (f *fakeStore) Exists(name string) bool {
	switch name {
	case tables.LikenessVerdicts:
		return f.verdicts != nil
	case tables.ClusterVerdicts:
		return f.clusters != nil
	case tables.Report:
		return f.report != nil
	}
	return false
}

func (f *fakeStore) LoadVerdicts() ([]types.LikenessVerdict, error) {
	return f.verdicts, f.err
}

func (f *fakeStore) LoadClusterVerdicts() ([]types.ClusterVerdict, error) {
	return f.clusters, f.err
}

func (f *fakeStore) LoadReport() ([]report.Row, error) {
	if f.err != nil {
		return nil, f.err
	}
	if f.report == nil {
		return nil, types.NewInputDataError(tables.Report, tables.ErrTableNotFound)
	}
	return f.report, nil
}

func serve(t *testing.T, method, target string, route string, h gin.HandlerFunc) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	r := gin.New()
	r.Handle(method, route, h)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(method, target, nil))

	var body map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body), w.Body.String())
	return w, body
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(nil)
	w, body := serve(t, http.MethodGet, "/health", "/health", h.HealthCheck)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, "likeness", body["service"])
	assert.Contains(t, body, "timestamp")
	assert.Contains(t, body, "version")
}

func TestLivenessCheck(t *testing.T) {
	h := NewHealthHandler(nil)
	w, body := serve(t, http.MethodGet, "/live", "/live", h.LivenessCheck)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "alive", body["status"])
}

func TestReadinessCheck(t *testing.T) {
	t.Run("nil store", func(t *testing.T) {
		w, body := serve(t, http.MethodGet, "/ready", "/ready", NewHealthHandler(nil).ReadinessCheck)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "not_ready", body["status"])
	})

	t.Run("missing directory", func(t *testing.T) {
		store := &fakeStore{dir: "/nonexistent/likeness/tables"}
		w, _ := serve(t, http.MethodGet, "/ready", "/ready", NewHealthHandler(store).ReadinessCheck)
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("ready with table status", func(t *testing.T) {
		store := &fakeStore{dir: t.TempDir(), verdicts: []types.LikenessVerdict{}}
		w, body := serve(t, http.MethodGet, "/ready", "/ready", NewHealthHandler(store).ReadinessCheck)
		require.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "ready", body["status"])

		checks := body["checks"].(map[string]any)
		assert.Equal(t, "available", checks[tables.LikenessVerdicts].(map[string]any)["status"])
		assert.Equal(t, "missing", checks[tables.Report].(map[string]any)["status"])
	})
}
