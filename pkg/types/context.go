package types

// ContextKey is the type of context keys set by this module.
type ContextKey string

const (
	ContextKeyRunID         ContextKey = "run_id"
	ContextKeyStudentID     ContextKey = "student_id"
	ContextKeyQuestionID    ContextKey = "question_id"
	ContextKeyRequestSource ContextKey = "request_source"
)
