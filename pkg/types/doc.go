// Package types defines the core data types for likeness screening.
//
// This package contains the records that flow between the pipeline stages:
//   - Answer, ReferenceAnswer, Rubric: read-only inputs of a run
//   - SimilarityResult, PairSimilarity, SymbolicScore, ClusterAssignment: feature tables
//   - LikenessVerdict, ClusterVerdict: LLM judgments with an explicit status
//   - TaskKey, ScoringTask, TaskState: units of work for the orchestrator
//
// # Keys
//
// Tables join on TaskKey (student, question) or ClusterKey (question, cluster),
// never on row order.
//
// # Scores
//
// Every similarity and score is clamped with Clamp01 before it is stored:
//
//	v.Score = types.Clamp01(raw)
//
// # Errors
//
// InputDataError and AggregationError are fatal for a run or a report.
// Backend and parse failures never surface as errors here; they are
// recorded on verdicts through VerdictStatus.
package types
