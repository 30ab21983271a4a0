package likeness

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/soundprediction/likeness/pkg/checkpoint"
	"github.com/soundprediction/likeness/pkg/corpus"
	"github.com/soundprediction/likeness/pkg/evaluator"
	"github.com/soundprediction/likeness/pkg/orchestrator"
	"github.com/soundprediction/likeness/pkg/report"
	"github.com/soundprediction/likeness/pkg/similarity"
	"github.com/soundprediction/likeness/pkg/tables"
	"github.com/soundprediction/likeness/pkg/types"
	"github.com/soundprediction/likeness/pkg/utils"
)

// DefaultRunName names the checkpoint of a run when none is given.
const DefaultRunName = "default"

// Inputs are the read-only inputs of a run.
type Inputs struct {
	Answers    []types.Answer
	Questions  []string
	References map[string][]types.ReferenceAnswer
	Rubrics    map[string]types.Rubric
}

// RunOptions configure Run.
type RunOptions struct {
	// Name identifies the checkpoint (default "default").
	Name    string
	Mode    orchestrator.Mode
	Targets []types.TaskKey
	// Fresh discards any existing checkpoint before starting.
	Fresh bool
}

// RunSummary describes a finished run.
type RunSummary struct {
	Checkpoint *checkpoint.RunCheckpoint
	Resumed    bool
	Questions  []report.QuestionSummary
}

// LoadInputs reads answers, references and rubrics from the configured paths.
func (c *Client) LoadInputs(ctx context.Context) (*Inputs, error) {
	answers, err := corpus.LoadAnswers(c.config.Paths.Answers)
	if err != nil {
		return nil, err
	}
	questions := corpus.Questions(answers)

	refs, err := corpus.LoadReferences(c.config.Paths.References, questions, c.logger)
	if err != nil {
		return nil, err
	}
	rubrics, err := corpus.LoadRubrics(c.config.Paths.Rubrics, questions, c.logger)
	if err != nil {
		return nil, err
	}

	c.logger.InfoContext(ctx, "Inputs loaded",
		"answers", len(answers),
		"questions", len(questions),
		"questions_with_references", len(refs))
	return &Inputs{Answers: answers, Questions: questions, References: refs, Rubrics: rubrics}, nil
}

// questionFeatures holds the features of one question.
type questionFeatures struct {
	reference []types.SimilarityResult
	peer      []types.SimilarityResult
	pairs     []types.PairSimilarity
	symbolic  []types.SymbolicScore
	clusters  []types.ClusterAssignment
}

// ComputeFeatures computes the similarity, symbolic and cluster features of
// every question and writes them to the tables directory. Questions are
// processed in parallel; the tables are assembled in question order.
func (c *Client) ComputeFeatures(ctx context.Context, in *Inputs) (tables.Features, error) {
	start := time.Now()
	byQuestion := corpus.ByQuestion(in.Answers)
	slots := make([]questionFeatures, len(in.Questions))

	g, gctx := errgroup.WithContext(ctx)
	if n := c.config.Features.ParallelQuestions; n > 0 {
		g.SetLimit(n)
	}
	for i, qid := range in.Questions {
		g.Go(func() (err error) {
			defer utils.RecoverAsError(&err)
			if err := gctx.Err(); err != nil {
				return err
			}
			slots[i] = c.questionFeatures(qid, byQuestion[qid], in.References[qid])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return tables.Features{}, err
	}

	var f tables.Features
	for _, s := range slots {
		f.Reference = append(f.Reference, s.reference...)
		f.Peer = append(f.Peer, s.peer...)
		f.PeerPairs = append(f.PeerPairs, s.pairs...)
		f.Symbolic = append(f.Symbolic, s.symbolic...)
		f.Clusters = append(f.Clusters, s.clusters...)
	}
	if err := c.store.SaveFeatures(f); err != nil {
		return tables.Features{}, fmt.Errorf("failed to write feature tables: %w", err)
	}

	c.logger.InfoContext(ctx, "Feature tables written",
		"questions", len(in.Questions),
		"answers", len(in.Answers),
		"duration", time.Since(start).Round(time.Millisecond))
	return f, nil
}

// questionFeatures scores the non-blank answers of one question. Blank
// answers get no feature rows and are reported as not_evaluated.
func (c *Client) questionFeatures(qid string, answers []types.Answer, refs []types.ReferenceAnswer) questionFeatures {
	answers = similarity.NonBlank(answers)
	var out questionFeatures
	out.reference = c.reference.ScoreQuestion(qid, answers, refs)
	out.peer, out.pairs = c.peer.Score(qid, answers)
	out.symbolic = make([]types.SymbolicScore, 0, len(answers))
	for _, a := range answers {
		out.symbolic = append(out.symbolic, types.SymbolicScore{
			StudentID:  a.StudentID,
			QuestionID: qid,
			Score:      c.symbolic.Score(a.Text),
		})
	}
	out.clusters = c.clusterer.Cluster(qid, answers).Assignments
	return out
}

// ScoreLikeness runs the LLM likeness judgment over the tasks selected by mode
// and merges the fresh verdicts into the stored ones.
func (c *Client) ScoreLikeness(ctx context.Context, in *Inputs, features tables.Features, mode orchestrator.Mode, targets []types.TaskKey) (orchestrator.RunResult, error) {
	if c.gen == nil {
		return orchestrator.RunResult{}, ErrNoGenerator
	}

	tasks, err := orchestrator.BuildTasks(orchestrator.FeatureSet{
		Answers:   in.Answers,
		Reference: features.Reference,
		Peer:      features.Peer,
		Symbolic:  features.Symbolic,
		Clusters:  features.Clusters,
	})
	if err != nil {
		return orchestrator.RunResult{}, err
	}
	prior, err := c.store.LoadVerdicts()
	if err != nil {
		return orchestrator.RunResult{}, err
	}

	eval := evaluator.NewLikenessEvaluator(c.gen, c.evaluatorOptions(in))
	result, err := orchestrator.Score(ctx, eval, tasks, mode, prior, targets, c.runOptions())
	if err != nil {
		return orchestrator.RunResult{}, err
	}

	// An interrupted run only keeps its ok verdicts; every other task keeps
	// its prior verdict.
	fresh := result.Verdicts
	interrupted := ctx.Err()
	if interrupted != nil {
		fresh = okVerdicts(result.Verdicts)
	}

	merged := orchestrator.MergeVerdicts(prior, fresh)
	if err := c.store.SaveVerdicts(merged); err != nil {
		return result, fmt.Errorf("failed to write likeness verdicts: %w", err)
	}
	c.logger.InfoContext(ctx, "Likeness verdicts saved",
		"mode", mode,
		"tasks", len(tasks),
		"scored", len(fresh),
		"skipped", result.Skipped,
		"total", len(merged))

	if interrupted != nil {
		return result, fmt.Errorf("likeness scoring interrupted after %d of %d tasks: %w",
			len(fresh), len(result.Verdicts), interrupted)
	}
	return result, nil
}

func okVerdicts(verdicts []types.LikenessVerdict) []types.LikenessVerdict {
	var out []types.LikenessVerdict
	for _, v := range verdicts {
		if v.Status == types.StatusOK {
			out = append(out, v)
		}
	}
	return out
}

// AnalyzeClusters judges how templated each answer cluster is and replaces
// the stored cluster verdicts.
func (c *Client) AnalyzeClusters(ctx context.Context, in *Inputs, features tables.Features) ([]types.ClusterVerdict, error) {
	if c.gen == nil {
		return nil, ErrNoGenerator
	}

	assignments := make(map[string][]types.ClusterAssignment)
	for _, a := range features.Clusters {
		assignments[a.QuestionID] = append(assignments[a.QuestionID], a)
	}
	byQuestion := corpus.ByQuestion(in.Answers)

	var jobs []evaluator.ClusterInput
	for _, qid := range in.Questions {
		if len(assignments[qid]) == 0 {
			continue
		}
		texts := make(map[string]string, len(byQuestion[qid]))
		for _, a := range byQuestion[qid] {
			texts[a.StudentID] = a.Text
		}
		jobs = append(jobs, evaluator.GroupClusters(qid, assignments[qid], texts)...)
	}

	analyzer := evaluator.NewClusterAnalyzer(c.gen, c.evaluatorOptions(in))
	verdicts := orchestrator.RunClusters(ctx, analyzer, jobs, c.runOptions())
	// Cluster verdicts are replaced wholesale, so a partial table is not saved.
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("cluster analysis interrupted: %w", err)
	}
	if err := c.store.SaveClusterVerdicts(verdicts); err != nil {
		return nil, fmt.Errorf("failed to write cluster verdicts: %w", err)
	}
	c.logger.InfoContext(ctx, "Cluster verdicts saved", "clusters", len(jobs), "verdicts", len(verdicts))
	return verdicts, nil
}

// BuildReport joins answers, features and the stored verdicts into the
// report table. Missing verdict tables leave the corresponding columns
// not_evaluated.
func (c *Client) BuildReport(ctx context.Context, in *Inputs, features tables.Features) ([]report.Row, error) {
	verdicts, err := c.store.LoadVerdicts()
	if err != nil {
		return nil, err
	}
	clusterVerdicts, err := c.store.LoadClusterVerdicts()
	if err != nil {
		return nil, err
	}

	rows, err := report.Join(report.Input{
		Answers:         in.Answers,
		Reference:       features.Reference,
		Peer:            features.Peer,
		Symbolic:        features.Symbolic,
		Clusters:        features.Clusters,
		ClusterVerdicts: clusterVerdicts,
		Verdicts:        verdicts,
	}, c.config.Scoring.SuspectThreshold)
	if err != nil {
		return nil, err
	}
	if err := c.store.SaveReport(rows); err != nil {
		return nil, fmt.Errorf("failed to write report: %w", err)
	}
	c.logger.InfoContext(ctx, "Report table written", "rows", len(rows))
	return rows, nil
}

// Run executes the whole pipeline. Completed steps of an interrupted run with
// the same inputs are not repeated.
func (c *Client) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if c.gen == nil {
		return nil, ErrNoGenerator
	}
	if opts.Name == "" {
		opts.Name = DefaultRunName
	}
	if opts.Mode == "" {
		opts.Mode = orchestrator.ModeAll
	}
	if opts.Fresh {
		if err := c.checkpoints.Delete(ctx, opts.Name); err != nil {
			return nil, err
		}
	}

	cp, resumed, err := c.checkpoints.LoadOrCreate(ctx, opts.Name, c.config.Paths.Answers, c.store.Dir(), string(opts.Mode))
	if err != nil {
		return nil, fmt.Errorf("failed to load checkpoint: %w", err)
	}
	ctx = context.WithValue(ctx, types.ContextKeyRunID, cp.RunID)
	if resumed {
		c.logger.InfoContext(ctx, "Resuming run", "name", cp.Name, "run_id", cp.RunID, "progress", cp.Progress())
	} else {
		c.logger.InfoContext(ctx, "Starting run", "name", cp.Name, "run_id", cp.RunID, "mode", opts.Mode)
	}

	summary, err := c.run(ctx, cp, opts)
	if err != nil {
		// The checkpoint keeps the last finished step so the run can resume.
		if saveErr := c.checkpoints.SaveWithError(context.WithoutCancel(ctx), cp, err); saveErr != nil {
			c.logger.WarnContext(ctx, "Failed to save checkpoint", "error", saveErr)
		}
		return nil, err
	}
	summary.Resumed = resumed
	return summary, nil
}

func (c *Client) run(ctx context.Context, cp *checkpoint.RunCheckpoint, opts RunOptions) (*RunSummary, error) {
	in, err := c.LoadInputs(ctx)
	if err != nil {
		return nil, err
	}
	cp.Questions = in.Questions
	cp.Answers = len(in.Answers)

	var features tables.Features
	if cp.Reached(checkpoint.StepFeaturesComputed) {
		if features, err = c.store.LoadFeatures(); err != nil {
			return nil, err
		}
	} else {
		if features, err = c.ComputeFeatures(ctx, in); err != nil {
			return nil, err
		}
		if err := c.checkpoints.SaveWithStep(ctx, cp, checkpoint.StepFeaturesComputed); err != nil {
			return nil, err
		}
	}

	if !cp.Reached(checkpoint.StepLikenessScored) {
		result, err := c.ScoreLikeness(ctx, in, features, opts.Mode, opts.Targets)
		if err != nil {
			return nil, err
		}
		cp.Tasks = result.Completed + result.Failed + result.Skipped
		cp.Completed, cp.Failed, cp.Skipped = result.Completed, result.Failed, result.Skipped
		if err := c.checkpoints.SaveWithStep(ctx, cp, checkpoint.StepLikenessScored); err != nil {
			return nil, err
		}
	}

	if !cp.Reached(checkpoint.StepClustersAnalyzed) {
		verdicts, err := c.AnalyzeClusters(ctx, in, features)
		if err != nil {
			return nil, err
		}
		cp.ClusterVerdicts = len(verdicts)
		if err := c.checkpoints.SaveWithStep(ctx, cp, checkpoint.StepClustersAnalyzed); err != nil {
			return nil, err
		}
	}

	var rows []report.Row
	if cp.Reached(checkpoint.StepReportWritten) {
		if rows, err = c.store.LoadReport(); err != nil {
			return nil, err
		}
	} else {
		if rows, err = c.BuildReport(ctx, in, features); err != nil {
			return nil, err
		}
		cp.ReportRows = len(rows)
		cp.Suspect = len(report.Filter(rows, "", true))
		if err := c.checkpoints.SaveWithStep(ctx, cp, checkpoint.StepReportWritten); err != nil {
			return nil, err
		}
	}

	if err := c.checkpoints.SaveWithStep(ctx, cp, checkpoint.StepCompleted); err != nil {
		return nil, err
	}
	c.logger.InfoContext(ctx, "Run completed",
		"run_id", cp.RunID,
		"answers", cp.Answers,
		"failed", cp.Failed,
		"suspect", cp.Suspect)
	return &RunSummary{Checkpoint: cp, Questions: report.Summarize(rows)}, nil
}
