package types

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Validation errors
var (
	ErrEmptyStudentID  = errors.New("student_id cannot be empty")
	ErrEmptyQuestionID = errors.New("question_id cannot be empty")
)

// Answer is one student's normalized answer to one question.
// Answers are read once per run and never mutated afterwards.
type Answer struct {
	StudentID  string `json:"student_id" yaml:"student_id" parquet:"student_id"`
	QuestionID string `json:"question_id" yaml:"question_id" parquet:"question_id"`
	Text       string `json:"text" yaml:"text" parquet:"text"`
}

// Key returns the (student, question) key of the answer.
func (a Answer) Key() TaskKey {
	return TaskKey{StudentID: a.StudentID, QuestionID: a.QuestionID}
}

// Validate checks if the Answer has its identifying fields set.
func (a Answer) Validate() error {
	if a.StudentID == "" {
		return ErrEmptyStudentID
	}
	if a.QuestionID == "" {
		return ErrEmptyQuestionID
	}
	return nil
}

// ReferenceAnswer is one entry of the static per-question reference corpus.
type ReferenceAnswer struct {
	QuestionID string         `json:"question_id" yaml:"question_id"`
	RefID      string         `json:"ref_id" yaml:"ref_id"`
	Text       string         `json:"text" yaml:"text"`
	Meta       map[string]any `json:"meta,omitempty" yaml:"meta,omitempty"`
}

// Rubric holds the question text and grading rubric for one question.
type Rubric struct {
	QuestionID   string `json:"question_id"`
	QuestionText string `json:"question_text"`
	Text         string `json:"text"`
}

// SimilarityResult is the similarity of one subject against a set of texts.
// An empty BestMatchID means no match was available.
type SimilarityResult struct {
	SubjectID   string  `json:"subject_id" parquet:"subject_id"`
	QuestionID  string  `json:"question_id" parquet:"question_id"`
	SimMax      float64 `json:"sim_max" parquet:"sim_max"`
	SimMean     float64 `json:"sim_mean" parquet:"sim_mean"`
	BestMatchID string  `json:"best_match_id" parquet:"best_match_id"`
}

// Key returns the (student, question) key of the result.
func (r SimilarityResult) Key() TaskKey {
	return TaskKey{StudentID: r.SubjectID, QuestionID: r.QuestionID}
}

// PairSimilarity is one upper-triangular cell of the peer similarity matrix.
type PairSimilarity struct {
	QuestionID string  `json:"question_id" parquet:"question_id"`
	StudentA   string  `json:"student_a" parquet:"student_a"`
	StudentB   string  `json:"student_b" parquet:"student_b"`
	Similarity float64 `json:"similarity" parquet:"similarity"`
}

// ClusterAssignment places one answer into a template cluster.
// Cluster ids are only meaningful within the clustering run that produced them.
type ClusterAssignment struct {
	QuestionID string `json:"question_id" parquet:"question_id"`
	StudentID  string `json:"student_id" parquet:"student_id"`
	ClusterID  int    `json:"cluster_id" parquet:"cluster_id"`
}

// Key returns the (student, question) key of the assignment.
func (c ClusterAssignment) Key() TaskKey {
	return TaskKey{StudentID: c.StudentID, QuestionID: c.QuestionID}
}

// SymbolicScore is the formatting/style heuristic score of one answer.
type SymbolicScore struct {
	StudentID  string  `json:"student_id" parquet:"student_id"`
	QuestionID string  `json:"question_id" parquet:"question_id"`
	Score      float64 `json:"score" parquet:"score"`
}

// Key returns the (student, question) key of the score.
func (s SymbolicScore) Key() TaskKey {
	return TaskKey{StudentID: s.StudentID, QuestionID: s.QuestionID}
}

// VerdictStatus tells whether a verdict was actually evaluated.
type VerdictStatus string

const (
	// StatusOK means the model answered and the answer was parsed.
	StatusOK VerdictStatus = "ok"
	// StatusParseFailed means the model answered but no payload could be extracted.
	StatusParseFailed VerdictStatus = "parse_failed"
	// StatusCallFailed means the backend call failed after all retries.
	StatusCallFailed VerdictStatus = "call_failed"
	// StatusNotEvaluated marks report rows that have no verdict at all.
	StatusNotEvaluated VerdictStatus = "not_evaluated"
)

// Failed reports whether the status marks an evaluation failure.
func (s VerdictStatus) Failed() bool {
	return s == StatusParseFailed || s == StatusCallFailed
}

// ParseVerdictStatus converts a string into a VerdictStatus.
func ParseVerdictStatus(s string) (VerdictStatus, error) {
	switch VerdictStatus(s) {
	case StatusOK, StatusParseFailed, StatusCallFailed, StatusNotEvaluated:
		return VerdictStatus(s), nil
	}
	return "", fmt.Errorf("unknown verdict status %q", s)
}

// LikenessVerdict is the LLM judgment for one (student, question).
type LikenessVerdict struct {
	StudentID   string        `json:"student_id" parquet:"student_id"`
	QuestionID  string        `json:"question_id" parquet:"question_id"`
	Score       float64       `json:"score" parquet:"score"`
	Rationale   string        `json:"rationale" parquet:"rationale"`
	Status      VerdictStatus `json:"status" parquet:"status"`
	Backend     string        `json:"backend,omitempty" parquet:"backend"`
	RawResponse string        `json:"raw_response,omitempty" parquet:"raw_response"`
	EvaluatedAt time.Time     `json:"evaluated_at" parquet:"evaluated_at"`
}

// Key returns the (student, question) key of the verdict.
func (v LikenessVerdict) Key() TaskKey {
	return TaskKey{StudentID: v.StudentID, QuestionID: v.QuestionID}
}

// ClusterVerdict is the LLM judgment for one (question, cluster).
type ClusterVerdict struct {
	QuestionID        string        `json:"question_id" parquet:"question_id"`
	ClusterID         int           `json:"cluster_id" parquet:"cluster_id"`
	TemplatenessScore float64       `json:"templateness_score" parquet:"templateness_score"`
	Summary           string        `json:"summary" parquet:"summary"`
	Rationale         string        `json:"rationale" parquet:"rationale"`
	Status            VerdictStatus `json:"status" parquet:"status"`
	MemberCount       int           `json:"member_count" parquet:"member_count"`
	SampleCount       int           `json:"sample_count" parquet:"sample_count"`
	Backend           string        `json:"backend,omitempty" parquet:"backend"`
	RawResponse       string        `json:"raw_response,omitempty" parquet:"raw_response"`
	EvaluatedAt       time.Time     `json:"evaluated_at" parquet:"evaluated_at"`
}

// ClusterKey identifies a cluster within a question.
type ClusterKey struct {
	QuestionID string
	ClusterID  int
}

// Key returns the (question, cluster) key of the verdict.
func (v ClusterVerdict) Key() ClusterKey {
	return ClusterKey{QuestionID: v.QuestionID, ClusterID: v.ClusterID}
}

// TaskKey identifies one scoring unit.
type TaskKey struct {
	StudentID  string `json:"student_id" yaml:"student_id"`
	QuestionID string `json:"question_id" yaml:"question_id"`
}

func (k TaskKey) String() string {
	return k.StudentID + "/" + k.QuestionID
}

// ScoringTask carries everything the likeness evaluator needs for one answer.
type ScoringTask struct {
	Key        TaskKey
	AnswerText string
	Reference  SimilarityResult
	Peer       SimilarityResult
	Symbolic   float64
	ClusterID  int
	HasCluster bool
}

// TaskState is the lifecycle state of one scoring task.
type TaskState string

const (
	TaskPending   TaskState = "pending"
	TaskRunning   TaskState = "running"
	TaskCompleted TaskState = "completed"
	TaskFailed    TaskState = "failed"
)

// Terminal reports whether no further transitions are possible.
func (s TaskState) Terminal() bool {
	return s == TaskCompleted || s == TaskFailed
}

// Response represents a generated completion returned by a backend.
type Response struct {
	Content      string      `json:"content"`
	Model        string      `json:"model,omitempty"`
	FinishReason string      `json:"finish_reason,omitempty"`
	TokensUsed   *TokenUsage `json:"tokens_used,omitempty"`
}

// TokenUsage represents token usage information.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Clamp01 clamps x to [0, 1]. NaN maps to 0.
func Clamp01(x float64) float64 {
	if math.IsNaN(x) || x < 0 {
		return 0
	}
	if x > 1 {
		return 1
	}
	return x
}
