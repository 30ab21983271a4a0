package report

import (
	"fmt"
	"slices"

	"github.com/soundprediction/likeness/pkg/types"
)

// DefaultSuspectThreshold is the likeness score at which an answer is flagged.
const DefaultSuspectThreshold = 0.7

// Row is one answer with every feature and verdict joined in.
type Row struct {
	StudentID  string `json:"student_id" parquet:"student_id"`
	QuestionID string `json:"question_id" parquet:"question_id"`
	AnswerLen  int    `json:"answer_len" parquet:"answer_len"`

	ReferenceSimMax    float64 `json:"reference_sim_max" parquet:"reference_sim_max"`
	ReferenceSimMean   float64 `json:"reference_sim_mean" parquet:"reference_sim_mean"`
	ReferenceBestMatch string  `json:"reference_best_match" parquet:"reference_best_match"`
	PeerSimMax         float64 `json:"peer_sim_max" parquet:"peer_sim_max"`
	PeerSimMean        float64 `json:"peer_sim_mean" parquet:"peer_sim_mean"`
	PeerBestMatch      string  `json:"peer_best_match" parquet:"peer_best_match"`
	Symbolic           float64 `json:"symbolic" parquet:"symbolic"`

	ClusterID           int                 `json:"cluster_id" parquet:"cluster_id"`
	HasCluster          bool                `json:"has_cluster" parquet:"has_cluster"`
	ClusterTemplateness float64             `json:"cluster_templateness" parquet:"cluster_templateness"`
	ClusterStatus       types.VerdictStatus `json:"cluster_status" parquet:"cluster_status"`

	LikenessScore     float64             `json:"likeness_score" parquet:"likeness_score"`
	LikenessStatus    types.VerdictStatus `json:"likeness_status" parquet:"likeness_status"`
	LikenessRationale string              `json:"likeness_rationale" parquet:"likeness_rationale"`
	Backend           string              `json:"backend" parquet:"backend"`

	Suspect bool `json:"suspect" parquet:"suspect"`
}

// Key returns the (student, question) key of the row.
func (r Row) Key() types.TaskKey {
	return types.TaskKey{StudentID: r.StudentID, QuestionID: r.QuestionID}
}

// Input holds the tables joined into the report.
type Input struct {
	Answers         []types.Answer
	Reference       []types.SimilarityResult
	Peer            []types.SimilarityResult
	Symbolic        []types.SymbolicScore
	Clusters        []types.ClusterAssignment
	ClusterVerdicts []types.ClusterVerdict
	Verdicts        []types.LikenessVerdict
}

// Join builds one row per answer. Duplicate keys, and rows whose key is not
// an answer, are reported as *types.AggregationError. An answer without a
// likeness verdict gets status not_evaluated. Suspect is set only for
// evaluated rows whose score reaches threshold.
func Join(in Input, threshold float64) ([]Row, error) {
	rows := make([]Row, 0, len(in.Answers))
	index := make(map[types.TaskKey]int, len(in.Answers))
	for _, a := range in.Answers {
		key := a.Key()
		if _, dup := index[key]; dup {
			return nil, &types.AggregationError{Table: "answers", Key: key.String(), Reason: "duplicate answer"}
		}
		index[key] = len(rows)
		rows = append(rows, Row{
			StudentID:      a.StudentID,
			QuestionID:     a.QuestionID,
			AnswerLen:      len([]rune(a.Text)),
			LikenessStatus: types.StatusNotEvaluated,
		})
	}

	// attach runs fn on the row of key, checking it exists and is only
	// visited once per table.
	attach := func(table string, key types.TaskKey, seen map[types.TaskKey]bool, fn func(r *Row)) error {
		i, ok := index[key]
		if !ok {
			return &types.AggregationError{Table: table, Key: key.String(), Reason: "no matching answer"}
		}
		if seen[key] {
			return &types.AggregationError{Table: table, Key: key.String(), Reason: "duplicate row"}
		}
		seen[key] = true
		fn(&rows[i])
		return nil
	}

	seen := map[types.TaskKey]bool{}
	for _, r := range in.Reference {
		if err := attach("reference_similarity", r.Key(), seen, func(row *Row) {
			row.ReferenceSimMax, row.ReferenceSimMean, row.ReferenceBestMatch = r.SimMax, r.SimMean, r.BestMatchID
		}); err != nil {
			return nil, err
		}
	}

	seen = map[types.TaskKey]bool{}
	for _, r := range in.Peer {
		if err := attach("peer_similarity", r.Key(), seen, func(row *Row) {
			row.PeerSimMax, row.PeerSimMean, row.PeerBestMatch = r.SimMax, r.SimMean, r.BestMatchID
		}); err != nil {
			return nil, err
		}
	}

	seen = map[types.TaskKey]bool{}
	for _, s := range in.Symbolic {
		if err := attach("symbolic", s.Key(), seen, func(row *Row) {
			row.Symbolic = s.Score
		}); err != nil {
			return nil, err
		}
	}

	clusterVerdicts := make(map[types.ClusterKey]types.ClusterVerdict, len(in.ClusterVerdicts))
	for _, v := range in.ClusterVerdicts {
		if _, dup := clusterVerdicts[v.Key()]; dup {
			return nil, &types.AggregationError{
				Table:  "cluster_verdicts",
				Key:    fmt.Sprintf("%s#%d", v.QuestionID, v.ClusterID),
				Reason: "duplicate row",
			}
		}
		clusterVerdicts[v.Key()] = v
	}

	seen = map[types.TaskKey]bool{}
	for _, c := range in.Clusters {
		if err := attach("clusters", c.Key(), seen, func(row *Row) {
			row.ClusterID, row.HasCluster = c.ClusterID, true
			row.ClusterStatus = types.StatusNotEvaluated
			if v, ok := clusterVerdicts[types.ClusterKey{QuestionID: c.QuestionID, ClusterID: c.ClusterID}]; ok {
				row.ClusterTemplateness, row.ClusterStatus = v.TemplatenessScore, v.Status
			}
		}); err != nil {
			return nil, err
		}
	}

	seen = map[types.TaskKey]bool{}
	for _, v := range in.Verdicts {
		if err := attach("likeness_verdicts", v.Key(), seen, func(row *Row) {
			row.LikenessScore, row.LikenessStatus = v.Score, v.Status
			row.LikenessRationale, row.Backend = v.Rationale, v.Backend
			row.Suspect = v.Status == types.StatusOK && v.Score >= threshold
		}); err != nil {
			return nil, err
		}
	}

	slices.SortFunc(rows, func(a, b Row) int {
		return types.CompareTaskKeys(a.Key(), b.Key())
	})
	return rows, nil
}

// QuestionSummary aggregates the report rows of one question.
type QuestionSummary struct {
	QuestionID   string  `json:"question_id"`
	Answers      int     `json:"answers"`
	Evaluated    int     `json:"evaluated"`
	Failed       int     `json:"failed"`
	NotEvaluated int     `json:"not_evaluated"`
	Suspect      int     `json:"suspect"`
	MeanScore    float64 `json:"mean_score"`
}

// Summarize counts statuses and suspects per question, ordered by question.
// MeanScore averages evaluated rows only.
func Summarize(rows []Row) []QuestionSummary {
	byQuestion := make(map[string]*QuestionSummary)
	var order []string
	sums := make(map[string]float64)
	for _, r := range rows {
		s, ok := byQuestion[r.QuestionID]
		if !ok {
			s = &QuestionSummary{QuestionID: r.QuestionID}
			byQuestion[r.QuestionID] = s
			order = append(order, r.QuestionID)
		}
		s.Answers++
		switch {
		case r.LikenessStatus == types.StatusOK:
			s.Evaluated++
			sums[r.QuestionID] += r.LikenessScore
		case r.LikenessStatus.Failed():
			s.Failed++
		default:
			s.NotEvaluated++
		}
		if r.Suspect {
			s.Suspect++
		}
	}

	slices.SortFunc(order, types.CompareQuestionIDs)
	out := make([]QuestionSummary, 0, len(order))
	for _, q := range order {
		s := byQuestion[q]
		if s.Evaluated > 0 {
			s.MeanScore = sums[q] / float64(s.Evaluated)
		}
		out = append(out, *s)
	}
	return out
}

// Filter returns the rows matching question (when non-empty) and, when
// suspectOnly is set, only suspect rows.
func Filter(rows []Row, question string, suspectOnly bool) []Row {
	var out []Row
	for _, r := range rows {
		if question != "" && r.QuestionID != question {
			continue
		}
		if suspectOnly && !r.Suspect {
			continue
		}
		out = append(out, r)
	}
	return out
}
