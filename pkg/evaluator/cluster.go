package evaluator

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/soundprediction/likeness/pkg/parser"
	"github.com/soundprediction/likeness/pkg/prompts"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/soundprediction/likeness/pkg/utils"
)

// DefaultSampleSize is the number of member answers shown per cluster.
const DefaultSampleSize = 10

var (
	clusterSummaryKeys   = []string{"summary"}
	clusterScoreKeys     = []string{"templateness_score", "ai_template_likeness", "score"}
	clusterRationaleKeys = []string{"rationale", "comment"}
)

// ClusterInput is one (question, cluster) with its members' answers.
type ClusterInput struct {
	QuestionID string
	ClusterID  int
	// Members maps student id to answer text.
	Members map[string]string
}

// ClusterAnalyzer summarizes style clusters and scores their templateness.
type ClusterAnalyzer struct {
	gen  Generator
	opts Options
}

// NewClusterAnalyzer creates a new cluster analyzer.
func NewClusterAnalyzer(gen Generator, opts Options) *ClusterAnalyzer {
	return &ClusterAnalyzer{gen: gen, opts: opts.withDefaults()}
}

// Analyze evaluates one cluster. It returns false when the cluster has no
// non-empty member answer; such clusters are skipped rather than scored.
func (a *ClusterAnalyzer) Analyze(ctx context.Context, in ClusterInput) (verdict types.ClusterVerdict, ok bool) {
	samples := sampleAnswers(in.Members, a.opts.SampleSize)
	if len(samples) == 0 {
		a.opts.Logger.Debug("skipping cluster without answers",
			"question_id", in.QuestionID, "cluster_id", in.ClusterID)
		return types.ClusterVerdict{}, false
	}

	verdict = types.ClusterVerdict{
		QuestionID:  in.QuestionID,
		ClusterID:   in.ClusterID,
		MemberCount: len(in.Members),
		SampleCount: len(samples),
		EvaluatedAt: a.opts.Now(),
	}
	defer utils.RecoverWithCallback(func(err error) {
		verdict.TemplatenessScore = 0
		verdict.Status = types.StatusCallFailed
		verdict.Rationale = fmt.Sprintf("analysis aborted: %v", err)
		ok = true
	})

	rubric := a.opts.Rubrics[in.QuestionID]
	prompt := prompts.Cluster(prompts.ClusterInput{
		QuestionID:    in.QuestionID,
		QuestionText:  rubric.QuestionText,
		RubricText:    rubric.Text,
		RubricExcerpt: a.opts.RubricExcerpt,
		Samples:       samples,
		Logger:        a.opts.Logger,
	})

	ctx = context.WithValue(ctx, types.ContextKeyQuestionID, in.QuestionID)
	ctx = context.WithValue(ctx, types.ContextKeyRequestSource, "cluster")

	gen, err := a.gen.Generate(ctx, prompt)
	if err != nil {
		verdict.Status = types.StatusCallFailed
		verdict.Rationale = callFailureRationale(err)
		return verdict, true
	}
	verdict.Backend = gen.Backend
	verdict.RawResponse = gen.Text

	payload := parser.Parse(gen.Text)
	score, found := payload.Float(clusterScoreKeys...)
	if payload.Empty() || !found {
		verdict.Status = types.StatusParseFailed
		verdict.Rationale = "could not parse a templateness score from the model response"
		return verdict, true
	}

	verdict.TemplatenessScore = types.Clamp01(score)
	verdict.Summary, _ = payload.String(clusterSummaryKeys...)
	verdict.Rationale, _ = payload.String(clusterRationaleKeys...)
	verdict.Status = types.StatusOK
	return verdict, true
}

// AnalyzeQuestion groups the assignments of one question by cluster and
// analyzes each cluster in turn. Verdicts are sorted by cluster id.
func (a *ClusterAnalyzer) AnalyzeQuestion(ctx context.Context, questionID string, assignments []types.ClusterAssignment, answers map[string]string) []types.ClusterVerdict {
	inputs := GroupClusters(questionID, assignments, answers)
	var verdicts []types.ClusterVerdict
	for _, in := range inputs {
		if ctx.Err() != nil {
			break
		}
		if v, ok := a.Analyze(ctx, in); ok {
			verdicts = append(verdicts, v)
		}
	}
	return verdicts
}

// GroupClusters builds one ClusterInput per cluster id of questionID,
// ordered by cluster id. answers maps student id to answer text.
func GroupClusters(questionID string, assignments []types.ClusterAssignment, answers map[string]string) []ClusterInput {
	byCluster := make(map[int]map[string]string)
	for _, as := range assignments {
		if as.QuestionID != questionID {
			continue
		}
		members, ok := byCluster[as.ClusterID]
		if !ok {
			members = make(map[string]string)
			byCluster[as.ClusterID] = members
		}
		members[as.StudentID] = answers[as.StudentID]
	}

	ids := make([]int, 0, len(byCluster))
	for id := range byCluster {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	inputs := make([]ClusterInput, 0, len(ids))
	for _, id := range ids {
		inputs = append(inputs, ClusterInput{QuestionID: questionID, ClusterID: id, Members: byCluster[id]})
	}
	return inputs
}

// sampleAnswers returns up to n non-empty answers in student id order.
func sampleAnswers(members map[string]string, n int) []string {
	ids := make([]string, 0, len(members))
	for id := range members {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var samples []string
	for _, id := range ids {
		text := strings.TrimSpace(members[id])
		if text == "" {
			continue
		}
		samples = append(samples, text)
		if len(samples) == n {
			break
		}
	}
	return samples
}
