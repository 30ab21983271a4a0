package handlers

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/server/dto"
	"github.com/soundprediction/likeness/pkg/tables"
	"github.com/soundprediction/likeness/pkg/types"
)

// Store is the read side of the tables a server exposes. *tables.Store
// implements it.
type Store interface {
	Dir() string
	Exists(name string) bool
	LoadVerdicts() ([]types.LikenessVerdict, error)
	LoadClusterVerdicts() ([]types.ClusterVerdict, error)
	LoadReport() ([]report.Row, error)
}

// VerdictHandler serves verdicts, cluster verdicts and the report
type VerdictHandler struct {
	store  Store
	logger *slog.Logger
}

// NewVerdictHandler creates a new verdict handler
func NewVerdictHandler(store Store, logger *slog.Logger) *VerdictHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &VerdictHandler{store: store, logger: logger}
}

// ListVerdicts handles GET /api/v1/verdicts?question=&status=
func (h *VerdictHandler) ListVerdicts(c *gin.Context) {
	question := c.Query("question")
	var status types.VerdictStatus
	if s := c.Query("status"); s != "" {
		var err error
		if status, err = types.ParseVerdictStatus(s); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_request", err.Error())
			return
		}
	}

	verdicts, err := h.store.LoadVerdicts()
	if err != nil {
		h.loadFailed(c, tables.LikenessVerdicts, err)
		return
	}

	out := make([]types.LikenessVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if question != "" && v.QuestionID != question {
			continue
		}
		if status != "" && v.Status != status {
			continue
		}
		out = append(out, v)
	}
	c.JSON(http.StatusOK, dto.VerdictList{Verdicts: out, Total: len(out)})
}

// GetVerdict handles GET /api/v1/verdicts/:student_id/:question_id
func (h *VerdictHandler) GetVerdict(c *gin.Context) {
	key := types.TaskKey{StudentID: c.Param("student_id"), QuestionID: c.Param("question_id")}

	verdicts, err := h.store.LoadVerdicts()
	if err != nil {
		h.loadFailed(c, tables.LikenessVerdicts, err)
		return
	}
	for _, v := range verdicts {
		if v.Key() == key {
			c.JSON(http.StatusOK, v)
			return
		}
	}
	writeError(c, http.StatusNotFound, "not_found", "no verdict for "+key.String())
}

// ListClusters handles GET /api/v1/clusters?question=
func (h *VerdictHandler) ListClusters(c *gin.Context) {
	question := c.Query("question")

	verdicts, err := h.store.LoadClusterVerdicts()
	if err != nil {
		h.loadFailed(c, tables.ClusterVerdicts, err)
		return
	}

	out := make([]types.ClusterVerdict, 0, len(verdicts))
	for _, v := range verdicts {
		if question == "" || v.QuestionID == question {
			out = append(out, v)
		}
	}
	c.JSON(http.StatusOK, dto.ClusterList{Clusters: out, Total: len(out)})
}

// GetReport handles GET /api/v1/report?question=&suspect=true
func (h *VerdictHandler) GetReport(c *gin.Context) {
	suspectOnly := false
	if s := c.Query("suspect"); s != "" {
		var err error
		if suspectOnly, err = strconv.ParseBool(s); err != nil {
			writeError(c, http.StatusBadRequest, "invalid_request", "suspect must be a boolean")
			return
		}
	}

	rows, err := h.store.LoadReport()
	if err != nil {
		h.loadFailed(c, tables.Report, err)
		return
	}

	question := c.Query("question")
	summary := report.Summarize(report.Filter(rows, question, false))
	out := report.Filter(rows, question, suspectOnly)
	if out == nil {
		out = []report.Row{}
	}
	c.JSON(http.StatusOK, dto.Report{Rows: out, Summary: summary, Total: len(out)})
}

func (h *VerdictHandler) loadFailed(c *gin.Context, table string, err error) {
	if errors.Is(err, tables.ErrTableNotFound) {
		writeError(c, http.StatusNotFound, "not_found", table+" has not been written yet")
		return
	}
	h.logger.ErrorContext(c.Request.Context(), "failed to load table", "table", table, "error", err)
	writeError(c, http.StatusInternalServerError, "load_failed", err.Error())
}

func writeError(c *gin.Context, code int, kind, message string) {
	c.JSON(code, dto.ErrorResponse{Error: kind, Message: message, Code: code})
}
