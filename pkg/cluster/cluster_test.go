package cluster

import (
	"fmt"
	"math"
	"testing"

	"github.com/soundprediction/likeness/pkg/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecideClusters(t *testing.T) {
	tiers := DefaultTiers()

	tests := []struct {
		n    int
		maxK int
		want int
	}{
		{1, 4, 1},
		{4, 4, 1},
		{5, 4, 2},
		{10, 4, 2},
		{11, 4, 3},
		{20, 4, 3},
		{25, 4, 4},
		{25, 2, 2},
		{300, 0, 4},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d max=%d", tt.n, tt.maxK), func(t *testing.T) {
			assert.Equal(t, tt.want, DecideClusters(tt.n, tiers, 4, tt.maxK))
		})
	}

	t.Run("clamped to sample count", func(t *testing.T) {
		custom := []Tier{{MaxPopulation: 3, Clusters: 5}}
		assert.Equal(t, 2, DecideClusters(2, custom, 4, 10))
	})

	t.Run("bounds hold for every population", func(t *testing.T) {
		for n := 1; n <= 60; n++ {
			k := DecideClusters(n, tiers, 4, 4)
			assert.GreaterOrEqual(t, k, 1)
			assert.LessOrEqual(t, k, int(math.Min(4, float64(n))))
		}
	})

	t.Run("unsorted tiers", func(t *testing.T) {
		shuffled := []Tier{tiers[2], tiers[0], tiers[1]}
		assert.Equal(t, 1, DecideClusters(3, shuffled, 4, 4))
		assert.Equal(t, 2, DecideClusters(7, shuffled, 4, 4))
	})
}

func sampleAnswers(n int) []types.Answer {
	styles := []string{
		"## Summary\n**Point one** is important. Furthermore, the result is clear.",
		"i think the plant grows because of sun and water",
		"In conclusion, the experiment demonstrates a robust and scalable approach.",
		"光合成は光のエネルギーを使って糖を作る仕組みです。",
	}
	answers := make([]types.Answer, n)
	for i := range answers {
		answers[i] = types.Answer{
			StudentID:  fmt.Sprintf("S%02d", i+1),
			QuestionID: "Q1",
			Text:       fmt.Sprintf("%s (%d)", styles[i%len(styles)], i%3),
		}
	}
	return answers
}

func TestClusterer(t *testing.T) {
	c, err := NewClusterer(DefaultConfig(), nil)
	require.NoError(t, err)

	t.Run("25 students yields 4 clusters", func(t *testing.T) {
		res := c.Cluster("Q1", sampleAnswers(25))
		assert.Equal(t, 4, res.K)
		require.Len(t, res.Assignments, 25)

		seen := map[int]bool{}
		for _, a := range res.Assignments {
			assert.GreaterOrEqual(t, a.ClusterID, 0)
			assert.Less(t, a.ClusterID, 4)
			seen[a.ClusterID] = true
		}
		assert.Len(t, seen, 4)
		assert.Equal(t, 0, res.Assignments[0].ClusterID)
	})

	t.Run("deterministic for same input and seed", func(t *testing.T) {
		answers := sampleAnswers(17)
		first := c.Cluster("Q1", answers)
		for i := 0; i < 5; i++ {
			again := c.Cluster("Q1", answers)
			assert.Equal(t, first.Assignments, again.Assignments)
			assert.Equal(t, first.Inertia, again.Inertia)
		}
	})

	t.Run("same style lands in same cluster", func(t *testing.T) {
		res := c.Cluster("Q1", sampleAnswers(24))
		byStudent := map[string]int{}
		for _, a := range res.Assignments {
			byStudent[a.StudentID] = a.ClusterID
		}
		// S01, S05, S09 share the first style.
		assert.Equal(t, byStudent["S01"], byStudent["S05"])
		assert.Equal(t, byStudent["S01"], byStudent["S09"])
	})

	t.Run("empty answers are skipped", func(t *testing.T) {
		answers := []types.Answer{
			{StudentID: "S1", Text: "something written"},
			{StudentID: "S2", Text: "   "},
			{StudentID: "S3", Text: ""},
		}
		res := c.Cluster("Q2", answers)
		assert.Equal(t, 1, res.K)
		require.Len(t, res.Assignments, 1)
		assert.Equal(t, "S1", res.Assignments[0].StudentID)
		assert.Equal(t, 0, res.Assignments[0].ClusterID)
	})

	t.Run("no answers", func(t *testing.T) {
		res := c.Cluster("Q3", nil)
		assert.Equal(t, 0, res.K)
		assert.Empty(t, res.Assignments)
	})

	t.Run("identical answers do not panic", func(t *testing.T) {
		answers := make([]types.Answer, 12)
		for i := range answers {
			answers[i] = types.Answer{StudentID: fmt.Sprintf("S%d", i), Text: "same"}
		}
		res := c.Cluster("Q4", answers)
		assert.Equal(t, 3, res.K)
		assert.Len(t, res.Assignments, 12)
	})
}

func TestVectorize(t *testing.T) {
	rows, dim := vectorize([]string{"abcd", "ABCD", "xyz"}, 3, 3)
	require.Len(t, rows, 3)
	assert.Equal(t, 3, dim) // abc, bcd, xyz
	assert.Equal(t, rows[0], rows[1])
	for _, r := range rows {
		assert.InDelta(t, 1.0, r.squaredNorm(), 1e-9)
	}
}

func TestConfigValidate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.NGramMax = 2
	assert.Error(t, cfg.Validate())

	_, err := NewClusterer(Config{NGramMin: 0, NGramMax: 3}, nil)
	assert.Error(t, err)
}
