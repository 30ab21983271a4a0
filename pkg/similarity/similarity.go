// Package similarity scores answers against a reference corpus and against
// the other answers to the same question.
package similarity

import (
	"log/slog"
	"strings"

	"github.com/soundprediction/likeness/pkg/shingle"
	"github.com/soundprediction/likeness/pkg/types"
)

// DefaultNGram is the shingle length used by both scorers unless configured.
const DefaultNGram = 3

// DefaultMaxPopulation is the documented bound for peer scoring. Peer scoring is
// O(n²) per question; larger populations are still scored in full but logged.
const DefaultMaxPopulation = 500

// ReferenceScorer compares one answer against the reference answers of its question.
type ReferenceScorer struct {
	N      int
	logger *slog.Logger
}

// NewReferenceScorer creates a reference scorer with shingle length n.
func NewReferenceScorer(n int, logger *slog.Logger) *ReferenceScorer {
	if n < 1 {
		n = DefaultNGram
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ReferenceScorer{N: n, logger: logger}
}

// Score returns the max and mean similarity of text against refs and the id of
// the best reference. With no references it returns (0, 0, "").
// Ties keep the first reference in corpus order.
func (s *ReferenceScorer) Score(text string, refs []types.ReferenceAnswer) (simMax, simMean float64, bestID string) {
	if len(refs) == 0 {
		return 0, 0, ""
	}
	answer := shingle.Shingles(text, s.N)
	sum := 0.0
	simMax = -1
	for _, ref := range refs {
		sim := shingle.Jaccard(answer, shingle.Shingles(ref.Text, s.N))
		sum += sim
		if sim > simMax {
			simMax = sim
			bestID = ref.RefID
		}
	}
	return types.Clamp01(simMax), types.Clamp01(sum / float64(len(refs))), bestID
}

// ScoreQuestion scores every answer of one question against the question's references.
func (s *ReferenceScorer) ScoreQuestion(questionID string, answers []types.Answer, refs []types.ReferenceAnswer) []types.SimilarityResult {
	if len(refs) == 0 {
		s.logger.Debug("No reference answers, reference similarity degraded to zero",
			"question_id", questionID, "answers", len(answers))
	}

	// Shingle references once per question.
	refSets := make([]shingle.Set, len(refs))
	for i, ref := range refs {
		refSets[i] = shingle.Shingles(ref.Text, s.N)
	}

	results := make([]types.SimilarityResult, 0, len(answers))
	for _, a := range answers {
		res := types.SimilarityResult{SubjectID: a.StudentID, QuestionID: questionID}
		if len(refSets) > 0 {
			set := shingle.Shingles(a.Text, s.N)
			best, sum := -1.0, 0.0
			for i, rs := range refSets {
				sim := shingle.Jaccard(set, rs)
				sum += sim
				if sim > best {
					best = sim
					res.BestMatchID = refs[i].RefID
				}
			}
			res.SimMax = types.Clamp01(best)
			res.SimMean = types.Clamp01(sum / float64(len(refSets)))
		}
		results = append(results, res)
	}
	return results
}

// PeerScorer compares every answer of a question with every other answer.
type PeerScorer struct {
	N             int
	MaxPopulation int
	logger        *slog.Logger
}

// NewPeerScorer creates a peer scorer with shingle length n.
func NewPeerScorer(n, maxPopulation int, logger *slog.Logger) *PeerScorer {
	if n < 1 {
		n = DefaultNGram
	}
	if maxPopulation <= 0 {
		maxPopulation = DefaultMaxPopulation
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &PeerScorer{N: n, MaxPopulation: maxPopulation, logger: logger}
}

// Score returns one result per non-blank answer (max/mean similarity to
// every other student who answered and the most similar peer) and the
// upper-triangular pair matrix. Blank answers are not part of the population.
// A single respondent gets (0, 0, "").
func (s *PeerScorer) Score(questionID string, answers []types.Answer) ([]types.SimilarityResult, []types.PairSimilarity) {
	answers = NonBlank(answers)
	n := len(answers)
	if n > s.MaxPopulation {
		s.logger.Warn("Peer population exceeds documented bound, computing all pairs anyway",
			"question_id", questionID, "population", n, "bound", s.MaxPopulation)
	}

	sets := make([]shingle.Set, n)
	for i, a := range answers {
		sets[i] = shingle.Shingles(a.Text, s.N)
	}

	sim := make([][]float64, n)
	for i := range sim {
		sim[i] = make([]float64, n)
	}
	pairs := make([]types.PairSimilarity, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			v := types.Clamp01(shingle.Jaccard(sets[i], sets[j]))
			sim[i][j] = v
			sim[j][i] = v
			pairs = append(pairs, types.PairSimilarity{
				QuestionID: questionID,
				StudentA:   answers[i].StudentID,
				StudentB:   answers[j].StudentID,
				Similarity: v,
			})
		}
	}

	results := make([]types.SimilarityResult, n)
	for i, a := range answers {
		res := types.SimilarityResult{SubjectID: a.StudentID, QuestionID: questionID}
		if n > 1 {
			best, sum := -1.0, 0.0
			for j := 0; j < n; j++ {
				if j == i {
					continue
				}
				sum += sim[i][j]
				if sim[i][j] > best {
					best = sim[i][j]
					res.BestMatchID = answers[j].StudentID
				}
			}
			res.SimMax = best
			res.SimMean = types.Clamp01(sum / float64(n-1))
		}
		results[i] = res
	}
	return results, pairs
}

// NonBlank returns the answers whose text is not only whitespace, in order.
func NonBlank(answers []types.Answer) []types.Answer {
	out := make([]types.Answer, 0, len(answers))
	for _, a := range answers {
		if strings.TrimSpace(a.Text) != "" {
			out = append(out, a)
		}
	}
	return out
}
