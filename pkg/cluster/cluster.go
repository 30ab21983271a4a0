// Package cluster groups the answers of one question into template clusters
// using character n-gram TF-IDF vectors and seeded k-means.
//
// Given the same answers and the same seed the assignment is identical across
// runs. Cluster ids are renumbered by first appearance in input order but are
// not comparable between runs over different inputs.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/soundprediction/likeness/pkg/types"
)

// Tier maps populations up to MaxPopulation (inclusive) to a cluster count.
type Tier struct {
	MaxPopulation int `mapstructure:"max_population" json:"max_population"`
	Clusters      int `mapstructure:"clusters" json:"clusters"`
}

// DefaultTiers are the population breakpoints [4, 10, 20] → [1, 2, 3].
func DefaultTiers() []Tier {
	return []Tier{
		{MaxPopulation: 4, Clusters: 1},
		{MaxPopulation: 10, Clusters: 2},
		{MaxPopulation: 20, Clusters: 3},
	}
}

// Config configures a Clusterer.
type Config struct {
	NGramMin        int
	NGramMax        int
	Tiers           []Tier
	DefaultClusters int
	MaxClusters     int
	NInit           int
	MaxIter         int
	Seed            uint64
}

// DefaultConfig returns the default clustering configuration.
func DefaultConfig() Config {
	return Config{
		NGramMin:        3,
		NGramMax:        5,
		Tiers:           DefaultTiers(),
		DefaultClusters: 4,
		MaxClusters:     4,
		NInit:           10,
		MaxIter:         300,
		Seed:            42,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.NGramMin < 1 || c.NGramMax < c.NGramMin {
		return fmt.Errorf("invalid n-gram range [%d, %d]", c.NGramMin, c.NGramMax)
	}
	if c.NInit < 1 {
		return fmt.Errorf("n_init must be at least 1, got %d", c.NInit)
	}
	if c.MaxIter < 1 {
		return fmt.Errorf("max_iter must be at least 1, got %d", c.MaxIter)
	}
	if c.DefaultClusters < 1 {
		return fmt.Errorf("default cluster count must be at least 1, got %d", c.DefaultClusters)
	}
	for _, t := range c.Tiers {
		if t.Clusters < 1 {
			return fmt.Errorf("tier for population %d has cluster count %d", t.MaxPopulation, t.Clusters)
		}
	}
	return nil
}

// DecideClusters returns the cluster count for a population of n samples:
// the first tier whose MaxPopulation is ≥ n, otherwise defaultK, clamped to
// [1, min(maxK, n)]. A non-positive maxK only caps at n.
func DecideClusters(n int, tiers []Tier, defaultK, maxK int) int {
	if n <= 0 {
		return 0
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].MaxPopulation < sorted[j].MaxPopulation })

	k := defaultK
	for _, t := range sorted {
		if n <= t.MaxPopulation {
			k = t.Clusters
			break
		}
	}
	upper := n
	if maxK > 0 && maxK < upper {
		upper = maxK
	}
	if k > upper {
		k = upper
	}
	if k < 1 {
		k = 1
	}
	return k
}

// Result is the clustering of one question.
type Result struct {
	QuestionID  string
	K           int
	Inertia     float64
	Assignments []types.ClusterAssignment
}

// Clusterer clusters answers per question.
type Clusterer struct {
	cfg    Config
	logger *slog.Logger
}

// NewClusterer creates a clusterer. Zero-valued fields fall back to defaults.
func NewClusterer(cfg Config, logger *slog.Logger) (*Clusterer, error) {
	def := DefaultConfig()
	if cfg.NGramMin == 0 && cfg.NGramMax == 0 {
		cfg.NGramMin, cfg.NGramMax = def.NGramMin, def.NGramMax
	}
	if cfg.Tiers == nil {
		cfg.Tiers = def.Tiers
	}
	if cfg.DefaultClusters == 0 {
		cfg.DefaultClusters = def.DefaultClusters
	}
	if cfg.NInit == 0 {
		cfg.NInit = def.NInit
	}
	if cfg.MaxIter == 0 {
		cfg.MaxIter = def.MaxIter
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Clusterer{cfg: cfg, logger: logger}, nil
}

// Cluster assigns every non-empty answer of one question to a cluster.
// Answers with empty text get no assignment.
func (c *Clusterer) Cluster(questionID string, answers []types.Answer) Result {
	var members []types.Answer
	for _, a := range answers {
		if strings.TrimSpace(a.Text) != "" {
			members = append(members, a)
		}
	}
	res := Result{QuestionID: questionID}
	if len(members) == 0 {
		return res
	}

	res.K = DecideClusters(len(members), c.cfg.Tiers, c.cfg.DefaultClusters, c.cfg.MaxClusters)

	labels := make([]int, len(members))
	if res.K > 1 {
		texts := make([]string, len(members))
		for i, m := range members {
			texts[i] = m.Text
		}
		rows, dim := vectorize(texts, c.cfg.NGramMin, c.cfg.NGramMax)
		km := kmeans(rows, dim, res.K, c.cfg.NInit, c.cfg.MaxIter, c.cfg.Seed)
		labels = relabel(km.labels)
		res.Inertia = km.inertia
		c.logger.Debug("Clustered question",
			"question_id", questionID, "samples", len(members), "k", res.K,
			"inertia", km.inertia, "iterations", km.iters)
	}

	res.Assignments = make([]types.ClusterAssignment, len(members))
	for i, m := range members {
		res.Assignments[i] = types.ClusterAssignment{
			QuestionID: questionID,
			StudentID:  m.StudentID,
			ClusterID:  labels[i],
		}
	}
	return res
}

// relabel renumbers labels in order of first appearance.
func relabel(labels []int) []int {
	mapping := make(map[int]int)
	out := make([]int, len(labels))
	for i, l := range labels {
		id, ok := mapping[l]
		if !ok {
			id = len(mapping)
			mapping[l] = id
		}
		out[i] = id
	}
	return out
}
