package orchestrator

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/soundprediction/likeness/pkg/types"
)

// Mode selects which tasks a scoring run executes.
type Mode string

const (
	// ModeAll scores every task.
	ModeAll Mode = "all"
	// ModeMissing scores tasks without a prior verdict.
	ModeMissing Mode = "missing"
	// ModeFailed scores tasks whose prior verdict is a failure.
	ModeFailed Mode = "failed"
	// ModeSelected scores the tasks named in an explicit target list.
	ModeSelected Mode = "selected"
)

// ErrUnknownMode is returned by ParseMode for unsupported values.
var ErrUnknownMode = errors.New("unknown scoring mode")

// ParseMode converts a command line value into a Mode.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeAll, ModeMissing, ModeFailed, ModeSelected:
		return m, nil
	case "":
		return ModeAll, nil
	}
	return "", fmt.Errorf("%w: %q (want all, missing, failed or selected)", ErrUnknownMode, s)
}

// FeatureSet holds every per-answer feature table of one run.
type FeatureSet struct {
	Answers   []types.Answer
	Reference []types.SimilarityResult
	Peer      []types.SimilarityResult
	Symbolic  []types.SymbolicScore
	Clusters  []types.ClusterAssignment
}

// BuildTasks joins the feature tables into one task per non-empty answer.
// A missing reference, peer or symbolic row is an InputDataError; cluster
// ids are optional. Tasks are ordered by (question, student).
func BuildTasks(fs FeatureSet) ([]types.ScoringTask, error) {
	reference := indexSimilarity(fs.Reference)
	peer := indexSimilarity(fs.Peer)
	symbolic := make(map[types.TaskKey]float64, len(fs.Symbolic))
	for _, s := range fs.Symbolic {
		symbolic[s.Key()] = s.Score
	}
	clusters := make(map[types.TaskKey]int, len(fs.Clusters))
	for _, c := range fs.Clusters {
		clusters[c.Key()] = c.ClusterID
	}

	var tasks []types.ScoringTask
	var missing []string
	for _, a := range fs.Answers {
		if strings.TrimSpace(a.Text) == "" {
			continue
		}
		key := a.Key()
		task := types.ScoringTask{Key: key, AnswerText: a.Text}

		var ok bool
		if task.Reference, ok = reference[key]; !ok {
			missing = append(missing, "reference_similarity "+key.String())
		}
		if task.Peer, ok = peer[key]; !ok {
			missing = append(missing, "peer_similarity "+key.String())
		}
		if task.Symbolic, ok = symbolic[key]; !ok {
			missing = append(missing, "symbolic "+key.String())
		}
		task.ClusterID, task.HasCluster = clusters[key]
		tasks = append(tasks, task)
	}

	if len(missing) > 0 {
		return nil, types.NewInputDataError("features", fmt.Errorf("missing feature rows: %s", summarize(missing, 5)))
	}

	slices.SortFunc(tasks, func(a, b types.ScoringTask) int {
		return types.CompareTaskKeys(a.Key, b.Key)
	})
	return tasks, nil
}

// Filter returns the tasks a run in mode must execute. prior holds the
// verdicts of earlier runs; targets is only used by ModeSelected.
func Filter(tasks []types.ScoringTask, mode Mode, prior []types.LikenessVerdict, targets []types.TaskKey) ([]types.ScoringTask, error) {
	priorByKey := make(map[types.TaskKey]types.LikenessVerdict, len(prior))
	for _, v := range prior {
		priorByKey[v.Key()] = v
	}

	var keep func(types.ScoringTask) bool
	switch mode {
	case ModeAll:
		keep = func(types.ScoringTask) bool { return true }
	case ModeMissing:
		keep = func(t types.ScoringTask) bool {
			_, ok := priorByKey[t.Key]
			return !ok
		}
	case ModeFailed:
		keep = func(t types.ScoringTask) bool {
			v, ok := priorByKey[t.Key]
			return ok && v.Status.Failed()
		}
	case ModeSelected:
		if len(targets) == 0 {
			return nil, types.NewInputDataError("targets", errors.New("selected mode requires at least one target"))
		}
		wanted := make(map[types.TaskKey]struct{}, len(targets))
		for _, k := range targets {
			wanted[k] = struct{}{}
		}
		keep = func(t types.ScoringTask) bool {
			_, ok := wanted[t.Key]
			return ok
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	var out []types.ScoringTask
	for _, t := range tasks {
		if keep(t) {
			out = append(out, t)
		}
	}
	return out, nil
}

// MergeVerdicts overlays fresh verdicts on prior ones. The result holds one
// verdict per key, ordered by (question, student).
func MergeVerdicts(prior, fresh []types.LikenessVerdict) []types.LikenessVerdict {
	byKey := make(map[types.TaskKey]types.LikenessVerdict, len(prior)+len(fresh))
	for _, v := range prior {
		byKey[v.Key()] = v
	}
	for _, v := range fresh {
		byKey[v.Key()] = v
	}

	out := make([]types.LikenessVerdict, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, v)
	}
	slices.SortFunc(out, func(a, b types.LikenessVerdict) int {
		return types.CompareTaskKeys(a.Key(), b.Key())
	})
	return out
}

func indexSimilarity(rows []types.SimilarityResult) map[types.TaskKey]types.SimilarityResult {
	m := make(map[types.TaskKey]types.SimilarityResult, len(rows))
	for _, r := range rows {
		m[r.Key()] = r
	}
	return m
}

func summarize(items []string, n int) string {
	if len(items) <= n {
		return strings.Join(items, ", ")
	}
	return fmt.Sprintf("%s and %d more", strings.Join(items[:n], ", "), len(items)-n)
}
