package evaluator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/soundprediction/likeness/pkg/nlp"
	"github.com/soundprediction/likeness/pkg/parser"
	"github.com/soundprediction/likeness/pkg/prompts"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/soundprediction/likeness/pkg/utils"
)

// Keys accepted for each field of a likeness response, in priority order.
var (
	likenessScoreKeys     = []string{"score", "ai_likeness_score", "likeness"}
	likenessRationaleKeys = []string{"rationale", "comment", "ai_likeness_comment", "reason"}
)

// Generator produces one completion for a prompt. *nlp.Pool implements it.
type Generator interface {
	Generate(ctx context.Context, prompt string) (*nlp.Generation, error)
}

// Options configure the evaluators.
type Options struct {
	// Rubrics supplies question and rubric text by question id.
	Rubrics map[string]types.Rubric
	// Format selects how features are rendered in the likeness prompt.
	Format prompts.Format
	// SampleSize caps the answers shown per cluster (default 10).
	SampleSize int
	// RubricExcerpt caps the rubric runes shown per cluster (default 800).
	RubricExcerpt int
	Logger        *slog.Logger
	// Now is the clock used for EvaluatedAt.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = func() time.Time { return time.Now().UTC() }
	}
	if o.SampleSize <= 0 {
		o.SampleSize = DefaultSampleSize
	}
	if o.RubricExcerpt <= 0 {
		o.RubricExcerpt = prompts.DefaultRubricExcerpt
	}
	return o
}

// LikenessEvaluator judges one answer at a time.
type LikenessEvaluator struct {
	gen  Generator
	opts Options
}

// NewLikenessEvaluator creates a new likeness evaluator.
func NewLikenessEvaluator(gen Generator, opts Options) *LikenessEvaluator {
	return &LikenessEvaluator{gen: gen, opts: opts.withDefaults()}
}

// Evaluate scores one task. It never returns an error: call and parse
// failures produce a zero-score verdict whose Status names the failure.
func (e *LikenessEvaluator) Evaluate(ctx context.Context, task types.ScoringTask) (verdict types.LikenessVerdict) {
	verdict = types.LikenessVerdict{
		StudentID:   task.Key.StudentID,
		QuestionID:  task.Key.QuestionID,
		EvaluatedAt: e.opts.Now(),
	}
	defer utils.RecoverWithCallback(func(err error) {
		verdict.Score = 0
		verdict.Status = types.StatusCallFailed
		verdict.Rationale = fmt.Sprintf("evaluation aborted: %v", err)
	})

	prompt, err := prompts.Likeness(prompts.LikenessInput{
		StudentID:     task.Key.StudentID,
		QuestionID:    task.Key.QuestionID,
		QuestionText:  e.opts.Rubrics[task.Key.QuestionID].QuestionText,
		AnswerText:    task.AnswerText,
		ReferenceMax:  task.Reference.SimMax,
		ReferenceMean: task.Reference.SimMean,
		PeerMax:       task.Peer.SimMax,
		PeerMean:      task.Peer.SimMean,
		Symbolic:      task.Symbolic,
		ClusterID:     task.ClusterID,
		HasCluster:    task.HasCluster,
		Format:        e.opts.Format,
		Logger:        e.opts.Logger,
	})
	if err != nil {
		verdict.Status = types.StatusCallFailed
		verdict.Rationale = fmt.Sprintf("could not build prompt: %v", err)
		return verdict
	}

	ctx = context.WithValue(ctx, types.ContextKeyStudentID, task.Key.StudentID)
	ctx = context.WithValue(ctx, types.ContextKeyQuestionID, task.Key.QuestionID)
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "likeness")

	gen, err := e.gen.Generate(ctx, prompt)
	if err != nil {
		verdict.Status = types.StatusCallFailed
		verdict.Rationale = callFailureRationale(err)
		return verdict
	}
	verdict.Backend = gen.Backend
	verdict.RawResponse = gen.Text

	payload := parser.Parse(gen.Text)
	score, ok := payload.Float(likenessScoreKeys...)
	if payload.Empty() || !ok {
		verdict.Status = types.StatusParseFailed
		verdict.Rationale = "could not parse a score from the model response"
		return verdict
	}

	verdict.Score = types.Clamp01(score)
	verdict.Rationale, _ = payload.String(likenessRationaleKeys...)
	verdict.Status = types.StatusOK
	if payload.Repaired {
		e.opts.Logger.Debug("repaired malformed model response",
			"student_id", task.Key.StudentID, "question_id", task.Key.QuestionID, "backend", gen.Backend)
	}
	return verdict
}

// callFailureRationale describes a failed generation for the verdict row.
func callFailureRationale(err error) string {
	var callErr *nlp.BackendCallError
	if errors.As(err, &callErr) {
		return fmt.Sprintf("inference failed on %s after %d attempt(s) (%s): %v",
			callErr.Backend, callErr.Attempts, callErr.Kind, callErr.Err)
	}
	return fmt.Sprintf("inference failed: %v", err)
}
