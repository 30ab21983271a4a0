package dto

import (
	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/types"
)

// ErrorResponse represents an error response
type ErrorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Code    int    `json:"code,omitempty"`
}

// VerdictList is the response of GET /api/v1/verdicts
type VerdictList struct {
	Verdicts []types.LikenessVerdict `json:"verdicts"`
	Total    int                     `json:"total"`
}

// ClusterList is the response of GET /api/v1/clusters
type ClusterList struct {
	Clusters []types.ClusterVerdict `json:"clusters"`
	Total    int                    `json:"total"`
}

// Report is the response of GET /api/v1/report
type Report struct {
	Rows    []report.Row             `json:"rows"`
	Summary []report.QuestionSummary `json:"summary"`
	Total   int                      `json:"total"`
}
